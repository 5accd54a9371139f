// Package translate converts records between the local camelCase shape and
// the remote snake_case relational shape.
package translate

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/marcus/rxsync/internal/models"
	"github.com/marcus/rxsync/internal/remote"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrUnresolvedRef means a referenced record has no key on the other side
	// yet. The drainer treats it as an ordering dependency, not a failure.
	ErrUnresolvedRef = errors.New("unresolved reference")
	// ErrUnknownEntity is returned for entities with no schema.
	ErrUnknownEntity = errors.New("no translation schema")
	// ErrBadValue is returned when a field value has the wrong shape.
	ErrBadValue = errors.New("bad field value")
)

// KeyResolver maps keys between the local and remote stores.
type KeyResolver interface {
	// RemoteKey returns the remote key of a local record, found=false when
	// the record has not been synced yet.
	RemoteKey(entity string, localKey int64) (remoteKey int64, found bool, err error)
	// LocalKey returns the local key of the record mapped to remoteKey.
	LocalKey(entity string, remoteKey int64) (localKey int64, found bool, err error)
}

const (
	localID       = "id"
	localClientID = "clientId"
	remoteID      = "id"
	remoteClient  = "client_id"
)

// ToRemote translates a local payload into a remote write. For creates data is
// the full record; for updates it is the changed fields only, and the item
// list is sent only when it changed. Deletes need no data.
func ToRemote(entity string, action models.ActionType, data map[string]any, keys KeyResolver) (remote.Write, error) {
	s, ok := Lookup(entity)
	if !ok {
		return remote.Write{}, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	w := remote.Write{Table: s.Table}
	if action == models.ActionDelete {
		return w, nil
	}

	w.Row = remote.Row{}
	for name, value := range data {
		switch {
		case name == localID:
			continue
		case name == localClientID:
			if action == models.ActionCreate {
				w.Row[remoteClient] = value
			}
			continue
		case s.isLocalOnly(name):
			continue
		case s.Items != nil && name == s.Items.Field:
			children, err := itemsToRemote(s, value, keys)
			if err != nil {
				return remote.Write{}, err
			}
			w.Children = children
			continue
		}

		f, ok := findLocal(s.Fields, name)
		if !ok {
			slog.Debug("translate: dropping unknown field", "entity", entity, "field", name)
			continue
		}
		v, err := fieldToRemote(entity, f, value, keys)
		if err != nil {
			return remote.Write{}, err
		}
		w.Row[f.Remote] = v
	}

	if action == models.ActionCreate && s.Items != nil && w.Children == nil {
		w.Children = &remote.Children{Table: s.Items.Table, ForeignKey: s.Items.ForeignKey, Rows: []remote.Row{}}
	}
	return w, nil
}

func itemsToRemote(s *Schema, value any, keys KeyResolver) (*remote.Children, error) {
	list, ok := value.([]any)
	if value != nil && !ok {
		return nil, fmt.Errorf("%w: %s.%s is not a list", ErrBadValue, s.Entity, s.Items.Field)
	}
	children := &remote.Children{Table: s.Items.Table, ForeignKey: s.Items.ForeignKey, Rows: make([]remote.Row, 0, len(list))}
	for i, raw := range list {
		item, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s[%d] is not an object", ErrBadValue, s.Entity, s.Items.Field, i)
		}
		row, err := objectToRemote(s.Entity+"."+s.Items.Field, s.Items.Fields, item, keys)
		if err != nil {
			return nil, err
		}
		row[positionColumn] = i
		children.Rows = append(children.Rows, row)
	}
	return children, nil
}

func objectToRemote(path string, fields []Field, obj map[string]any, keys KeyResolver) (remote.Row, error) {
	row := remote.Row{}
	for name, value := range obj {
		f, ok := findLocal(fields, name)
		if !ok {
			slog.Debug("translate: dropping unknown field", "path", path, "field", name)
			continue
		}
		v, err := fieldToRemote(path, f, value, keys)
		if err != nil {
			return nil, err
		}
		row[f.Remote] = v
	}
	return row, nil
}

func fieldToRemote(path string, f Field, value any, keys KeyResolver) (any, error) {
	switch {
	case f.Ref != "":
		return refToRemote(path, f, value, keys)
	case f.Elem != nil:
		list, ok := value.([]any)
		if value != nil && !ok {
			return nil, fmt.Errorf("%w: %s.%s is not a list", ErrBadValue, path, f.Local)
		}
		out := make([]any, 0, len(list))
		for i, raw := range list {
			obj, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s[%d] is not an object", ErrBadValue, path, f.Local, i)
			}
			row, err := objectToRemote(path+"."+f.Local, f.Elem, obj, keys)
			if err != nil {
				return nil, err
			}
			out = append(out, map[string]any(row))
		}
		return encodeJSON(out)
	case f.JSON:
		return encodeJSON(normalize(value))
	}
	return normalize(value), nil
}

func refToRemote(path string, f Field, value any, keys KeyResolver) (any, error) {
	if value == nil {
		return nil, nil
	}
	localKey, ok := toInt64(value)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s = %v is not a key", ErrBadValue, path, f.Local, value)
	}
	remoteKey, found, err := keys.RemoteKey(f.Ref, localKey)
	if err != nil {
		return nil, fmt.Errorf("resolve %s.%s: %w", path, f.Local, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s.%s -> %s/%d", ErrUnresolvedRef, path, f.Local, f.Ref, localKey)
	}
	return remoteKey, nil
}

// FromRemote translates a remote row (and its children) into a local payload.
// The remote id is not copied; client_id becomes clientId.
func FromRemote(entity string, row remote.Row, children *remote.Children, keys KeyResolver) (map[string]any, error) {
	s, ok := Lookup(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}

	out := map[string]any{}
	for col, value := range row {
		switch col {
		case remoteID:
			continue
		case remoteClient:
			out[localClientID] = value
			continue
		}
		f, ok := findRemote(s.Fields, col)
		if !ok {
			continue
		}
		v, err := fieldFromRemote(entity, f, value, keys)
		if err != nil {
			return nil, err
		}
		out[f.Local] = v
	}

	if s.Items != nil && children != nil {
		items, err := itemsFromRemote(s, children, keys)
		if err != nil {
			return nil, err
		}
		out[s.Items.Field] = items
	}
	return out, nil
}

func itemsFromRemote(s *Schema, children *remote.Children, keys KeyResolver) ([]any, error) {
	rows := make([]remote.Row, len(children.Rows))
	copy(rows, children.Rows)
	sort.SliceStable(rows, func(i, j int) bool {
		a, _ := toInt64(rows[i][positionColumn])
		b, _ := toInt64(rows[j][positionColumn])
		return a < b
	})

	items := make([]any, 0, len(rows))
	for _, row := range rows {
		item, err := objectFromRemote(s.Entity+"."+s.Items.Field, s.Items.Fields, row, keys)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func objectFromRemote(path string, fields []Field, row map[string]any, keys KeyResolver) (map[string]any, error) {
	out := map[string]any{}
	for col, value := range row {
		f, ok := findRemote(fields, col)
		if !ok {
			continue
		}
		v, err := fieldFromRemote(path, f, value, keys)
		if err != nil {
			return nil, err
		}
		out[f.Local] = v
	}
	return out, nil
}

func fieldFromRemote(path string, f Field, value any, keys KeyResolver) (any, error) {
	switch {
	case f.Ref != "":
		if value == nil {
			return nil, nil
		}
		remoteKey, ok := toInt64(value)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s = %v is not a key", ErrBadValue, path, f.Remote, value)
		}
		localKey, found, err := keys.LocalKey(f.Ref, remoteKey)
		if err != nil {
			return nil, fmt.Errorf("resolve %s.%s: %w", path, f.Remote, err)
		}
		if !found {
			return nil, fmt.Errorf("%w: %s.%s <- %s remote %d", ErrUnresolvedRef, path, f.Remote, f.Ref, remoteKey)
		}
		return localKey, nil
	case f.Elem != nil:
		decoded, err := decodeJSON(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrBadValue, path, f.Remote, err)
		}
		list, _ := decoded.([]any)
		out := make([]any, 0, len(list))
		for _, raw := range list {
			obj, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			item, err := objectFromRemote(path+"."+f.Remote, f.Elem, obj, keys)
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	case f.JSON:
		v, err := decodeJSON(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrBadValue, path, f.Remote, err)
		}
		return v, nil
	}
	return value, nil
}

// normalize NFC-normalizes every string in v, so that text composed on
// different keyboards compares equal remotely.
func normalize(v any) any {
	switch t := v.(type) {
	case string:
		return norm.NFC.String(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	}
	return v
}

func encodeJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(normalize(v))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadValue, err)
	}
	return string(raw), nil
}

// decodeJSON accepts JSON text (as stored) or an already-decoded value.
func decodeJSON(v any) (any, error) {
	var raw []byte
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		raw = []byte(t)
	case []byte:
		raw = t
	default:
		return v, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
