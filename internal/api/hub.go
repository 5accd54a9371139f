package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/marcus/rxsync/internal/remote"
)

const (
	subscriberBuffer = 256
	changeWriteLimit = 10 * time.Second
	feedPingInterval = 30 * time.Second
)

// Hub fans committed changes out to change feed subscribers.
type Hub struct {
	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	closed  bool
	metrics *Metrics
}

type subscriber struct {
	tables   map[string]bool // empty means every table
	deviceID string
	ch       chan remote.Change

	// set before ch is closed
	status websocket.StatusCode
	reason string
}

// NewHub creates an empty hub.
func NewHub(m *Metrics) *Hub {
	return &Hub{subs: make(map[*subscriber]struct{}), metrics: m}
}

func (h *Hub) subscribe(tables []string, deviceID string) *subscriber {
	sub := &subscriber{
		tables:   make(map[string]bool, len(tables)),
		deviceID: deviceID,
		ch:       make(chan remote.Change, subscriberBuffer),
	}
	for _, t := range tables {
		sub.tables[t] = true
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.status, sub.reason = websocket.StatusGoingAway, "server shutting down"
		close(sub.ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	h.metrics.SubscriberDelta(1)
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
		h.metrics.SubscriberDelta(-1)
	}
}

// Publish delivers a committed change to every interested subscriber except
// the device that made it. A subscriber whose buffer is full is disconnected
// so it can reconnect and catch up rather than silently miss changes.
func (h *Hub) Publish(change remote.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if len(sub.tables) > 0 && !sub.tables[change.Table] {
			continue
		}
		if change.DeviceID != "" && sub.deviceID == change.DeviceID {
			continue
		}
		select {
		case sub.ch <- change:
		default:
			h.metrics.RecordChangeDropped()
			slog.Warn("change feed: subscriber too slow, disconnecting", "device", sub.deviceID)
			delete(h.subs, sub)
			sub.status, sub.reason = websocket.StatusPolicyViolation, "subscriber too slow"
			close(sub.ch)
			h.metrics.SubscriberDelta(-1)
		}
	}
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		sub.status, sub.reason = websocket.StatusGoingAway, "server shutting down"
		close(sub.ch)
		h.metrics.SubscriberDelta(-1)
	}
}

// count returns the number of live subscribers.
func (h *Hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// handleChanges upgrades to a WebSocket and streams changes for the tables
// named in ?tables= (all tables when absent).
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	tables := splitList(r.URL.Query().Get("tables"))
	for _, t := range tables {
		if !s.store.HasTable(t) {
			writeError(w, http.StatusNotFound, ErrCodeUnknownTable, "unknown table: "+t)
			return
		}
	}

	// The server's read/write timeouts would otherwise cut the feed.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.config.CORSAllowedOrigins,
	})
	if err != nil {
		logFor(r.Context()).Warn("change feed: accept", "err", err)
		return
	}
	defer conn.CloseNow()

	var deviceID string
	if dev := getDeviceFromContext(r.Context()); dev != nil {
		deviceID = dev.DeviceID
	}
	sub := s.hub.subscribe(tables, deviceID)
	defer s.hub.unsubscribe(sub)
	logFor(r.Context()).Info("change feed: subscribed", "tables", tables)

	ctx := conn.CloseRead(r.Context())
	ping := time.NewTicker(feedPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, changeWriteLimit)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		case change, ok := <-sub.ch:
			if !ok {
				conn.Close(sub.status, sub.reason)
				return
			}
			wctx, cancel := context.WithTimeout(ctx, changeWriteLimit)
			err := wsjson.Write(wctx, conn, change)
			cancel()
			if err != nil {
				logFor(r.Context()).Debug("change feed: write", "err", err)
				return
			}
			s.metrics.RecordChangeSent()
		}
	}
}
