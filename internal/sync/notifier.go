package sync

import (
	gosync "sync"
	"time"

	"github.com/marcus/rxsync/internal/models"
)

// Notifier holds the current sync status and fans it out to observers. Only
// the latest value matters: a slow observer sees the newest status, never a
// backlog.
type Notifier struct {
	mu      gosync.Mutex
	current models.SyncStatus
	subs    map[int]chan models.SyncStatus
	nextID  int
	now     func() time.Time
}

// NewNotifier creates a notifier whose initial state is offline.
func NewNotifier() *Notifier {
	n := &Notifier{subs: map[int]chan models.SyncStatus{}, now: time.Now}
	n.current = models.SyncStatus{State: models.SyncOffline, At: n.now()}
	return n
}

// Publish replaces the current status and delivers it to every observer.
func (n *Notifier) Publish(s models.SyncStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if s.At.IsZero() {
		s.At = n.now()
	}
	n.current = s
	for _, ch := range n.subs {
		offer(ch, s)
	}
}

// Current returns the latest status.
func (n *Notifier) Current() models.SyncStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Subscribe returns a channel that always holds the latest status (the
// current one is delivered immediately) and a cancel func that closes it.
func (n *Notifier) Subscribe() (<-chan models.SyncStatus, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	ch := make(chan models.SyncStatus, 1)
	ch <- n.current
	n.subs[id] = ch

	var once gosync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs, id)
			close(ch)
		})
	}
}

// offer replaces whatever is buffered in ch with s. Callers hold n.mu, so
// there is no competing sender.
func offer(ch chan models.SyncStatus, s models.SyncStatus) {
	select {
	case <-ch:
	default:
	}
	ch <- s
}

func pendingStatus(n int) models.SyncStatus {
	if n == 0 {
		return models.SyncStatus{State: models.SyncSynced}
	}
	return models.SyncStatus{State: models.SyncPending, Pending: n}
}
