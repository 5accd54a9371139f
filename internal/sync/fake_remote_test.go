package sync

import (
	"context"
	"fmt"
	gosync "sync"

	"github.com/marcus/rxsync/internal/remote"
)

// call is one remote operation seen by fakeRemote.
type call struct {
	Op       string
	Table    string
	Key      int64
	Row      remote.Row
	Children *remote.Children
}

// fakeRemote is an in-memory remote store. Inserts upsert by client_id the
// way the real server does. fail, when set, can reject any call before it is
// applied; afterInsert runs after a successful insert and can replace its
// result with an error (the "crash after remote commit" case).
type fakeRemote struct {
	mu          gosync.Mutex
	nextKey     int64
	rows        map[string]map[int64]remote.Row
	calls       []call
	fail        func(c call) error
	afterInsert func(c call) error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{nextKey: 501, rows: map[string]map[int64]remote.Row{}}
}

func (f *fakeRemote) record(c call) error {
	f.calls = append(f.calls, c)
	if f.fail != nil {
		return f.fail(c)
	}
	return nil
}

func (f *fakeRemote) Insert(_ context.Context, table string, row remote.Row, children *remote.Children) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := call{Op: "insert", Table: table, Row: row, Children: children}
	if err := f.record(c); err != nil {
		return 0, err
	}
	key, ok := f.byClientID(table, row["client_id"])
	if !ok {
		key = f.nextKey
		f.nextKey++
		if f.rows[table] == nil {
			f.rows[table] = map[int64]remote.Row{}
		}
		f.rows[table][key] = row
	}
	if f.afterInsert != nil {
		if err := f.afterInsert(c); err != nil {
			return 0, err
		}
	}
	return key, nil
}

func (f *fakeRemote) Update(_ context.Context, table string, key int64, row remote.Row, children *remote.Children) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(call{Op: "update", Table: table, Key: key, Row: row, Children: children}); err != nil {
		return err
	}
	existing, ok := f.rows[table][key]
	if !ok {
		return &remote.RejectedError{Status: 404, Code: "not_found", Message: fmt.Sprintf("%s/%d", table, key)}
	}
	for k, v := range row {
		existing[k] = v
	}
	return nil
}

func (f *fakeRemote) Delete(_ context.Context, table string, key int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(call{Op: "delete", Table: table, Key: key}); err != nil {
		return err
	}
	delete(f.rows[table], key)
	return nil
}

func (f *fakeRemote) Lookup(_ context.Context, table, clientID string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.byClientID(table, clientID)
	return key, ok, nil
}

func (f *fakeRemote) byClientID(table string, clientID any) (int64, bool) {
	for key, row := range f.rows[table] {
		if row["client_id"] == clientID {
			return key, true
		}
	}
	return 0, false
}

// writes returns the calls that reached the store, minus lookups.
func (f *fakeRemote) writes() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeRemote) count(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[table])
}

// fakeConn is a switchable connectivity source.
type fakeConn struct {
	mu      gosync.Mutex
	online  bool
	offline int
}

func (c *fakeConn) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *fakeConn) MarkOffline() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = false
	c.offline++
}

// fakePinger fails while down is set.
type fakePinger struct {
	mu   gosync.Mutex
	down bool
}

func (p *fakePinger) set(down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.down = down
}

func (p *fakePinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.down {
		return remote.ErrUnavailable
	}
	return nil
}
