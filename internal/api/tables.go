package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/marcus/rxsync/internal/remote"
)

// --- Wire types ---

// WriteRequest is the body of POST and PATCH /v1/tables/{table}.
type WriteRequest struct {
	Row      remote.Row       `json:"row"`
	Children *remote.Children `json:"children,omitempty"`
}

// KeyResponse carries a remote key.
type KeyResponse struct {
	Key     int64 `json:"key"`
	Created bool  `json:"created,omitempty"`
}

// RowResponse is the response of GET /v1/tables/{table}/{id}.
type RowResponse struct {
	Key      int64            `json:"key"`
	Row      remote.Row       `json:"row"`
	Children *remote.Children `json:"children,omitempty"`
}

// handleInsert creates a row. A replay with a known client_id answers 200
// with the existing key instead of 201.
func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	req, ok := decodeWrite(w, r)
	if !ok {
		return
	}

	res, err := s.store.Insert(r.Context(), table, req.Row, req.Children)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.metrics.RecordInsert(res.Created)

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
		s.publish(r, table, remote.ChangeInsert, res.Key)
	} else {
		logFor(r.Context()).Info("insert replay", "table", table, "key", res.Key)
	}
	writeJSON(w, status, KeyResponse{Key: res.Key, Created: res.Created})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	key, ok := pathKey(w, r)
	if !ok {
		return
	}
	req, ok := decodeWrite(w, r)
	if !ok {
		return
	}

	if err := s.store.Update(r.Context(), table, key, req.Row, req.Children); err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.metrics.RecordUpdate()
	s.publish(r, table, remote.ChangeUpdate, key)
	writeJSON(w, http.StatusOK, KeyResponse{Key: key})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	key, ok := pathKey(w, r)
	if !ok {
		return
	}

	if err := s.store.Delete(r.Context(), table, key); err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.metrics.RecordDelete()
	s.hub.Publish(remote.Change{Table: table, Type: remote.ChangeDelete, Key: key, DeviceID: deviceOf(r)})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	key, ok := pathKey(w, r)
	if !ok {
		return
	}

	row, children, err := s.store.Get(r.Context(), table, key)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RowResponse{Key: key, Row: row, Children: children})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "client_id is required")
		return
	}

	key, err := s.store.Lookup(r.Context(), table, clientID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, KeyResponse{Key: key})
}

// publish reads back the committed row and hands it to the hub.
func (s *Server) publish(r *http.Request, table string, typ remote.ChangeType, key int64) {
	row, children, err := s.store.Get(r.Context(), table, key)
	if err != nil {
		logFor(r.Context()).Warn("change feed: read back", "table", table, "key", key, "err", err)
		return
	}
	s.hub.Publish(remote.Change{
		Table:    table,
		Type:     typ,
		Key:      key,
		Row:      row,
		Children: children,
		DeviceID: deviceOf(r),
	})
}

func deviceOf(r *http.Request) string {
	if dev := getDeviceFromContext(r.Context()); dev != nil {
		return dev.DeviceID
	}
	return ""
}

func pathKey(w http.ResponseWriter, r *http.Request) (int64, bool) {
	key, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || key <= 0 {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid row id")
		return 0, false
	}
	return key, true
}

// decodeWrite parses a WriteRequest. Integers are kept as int64 so keys
// reach SQLite unchanged.
func decodeWrite(w http.ResponseWriter, r *http.Request) (*WriteRequest, bool) {
	var req WriteRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON: "+err.Error())
		return nil, false
	}
	if req.Row == nil {
		req.Row = remote.Row{}
	}
	if err := normalizeRow(req.Row); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return nil, false
	}
	if req.Children != nil {
		for i, row := range req.Children.Rows {
			if err := normalizeRow(row); err != nil {
				writeError(w, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("children[%d]: %v", i, err))
				return nil, false
			}
		}
	}
	return &req, true
}

// normalizeRow converts JSON numbers to int64 or float64 and rejects nested
// values; JSON columns travel as strings.
func normalizeRow(row remote.Row) error {
	for col, v := range row {
		switch v := v.(type) {
		case nil, string, bool:
		case json.Number:
			if n, err := v.Int64(); err == nil {
				row[col] = n
			} else if f, err := v.Float64(); err == nil {
				row[col] = f
			} else {
				return fmt.Errorf("column %s: invalid number %s", col, v)
			}
		default:
			return fmt.Errorf("column %s: value must be a scalar", col)
		}
	}
	return nil
}
