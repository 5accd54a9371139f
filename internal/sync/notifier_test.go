package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus/rxsync/internal/models"
)

func TestNotifier_StartsOffline(t *testing.T) {
	n := NewNotifier()
	assert.Equal(t, models.SyncOffline, n.Current().State)
	assert.False(t, n.Current().At.IsZero())
}

func TestNotifier_SubscribeGetsCurrentImmediately(t *testing.T) {
	n := NewNotifier()
	n.Publish(models.SyncStatus{State: models.SyncPending, Pending: 3})

	ch, cancel := n.Subscribe()
	defer cancel()

	s := <-ch
	assert.Equal(t, models.SyncPending, s.State)
	assert.Equal(t, 3, s.Pending)
}

func TestNotifier_SlowObserverSeesLatestOnly(t *testing.T) {
	n := NewNotifier()
	ch, cancel := n.Subscribe()
	defer cancel()

	for i := 1; i <= 5; i++ {
		n.Publish(models.SyncStatus{State: models.SyncSyncing, Processed: i, Total: 5})
	}
	n.Publish(models.SyncStatus{State: models.SyncSynced})

	s := <-ch
	assert.Equal(t, models.SyncSynced, s.State)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected backlog value %+v", extra)
	default:
	}
}

func TestNotifier_FanOut(t *testing.T) {
	n := NewNotifier()
	a, cancelA := n.Subscribe()
	b, cancelB := n.Subscribe()
	defer cancelB()
	<-a
	<-b

	n.Publish(models.SyncStatus{State: models.SyncError, Remaining: 2, LastError: "rejected"})
	assert.Equal(t, models.SyncError, (<-a).State)
	assert.Equal(t, 2, (<-b).Remaining)

	cancelA()
	cancelA()
	_, ok := <-a
	require.False(t, ok, "cancel closes the channel")

	n.Publish(models.SyncStatus{State: models.SyncSynced})
	assert.Equal(t, models.SyncSynced, (<-b).State)
}

func TestPendingStatus(t *testing.T) {
	assert.Equal(t, models.SyncSynced, pendingStatus(0).State)
	s := pendingStatus(4)
	assert.Equal(t, models.SyncPending, s.State)
	assert.Equal(t, 4, s.Pending)
}
