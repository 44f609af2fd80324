package events

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, q Queue) Event {
	t.Helper()
	select {
	case ev, ok := <-q.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("UPDATED")
	require.NoError(t, err)
	assert.Equal(t, KindUpdated, k)

	_, err = ParseKind("DELETED")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestNew(t *testing.T) {
	a := New(7, KindCreated)
	b := New(7, KindCreated)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, int64(7), a.ProjectID)
	assert.Equal(t, time.UTC, a.CreatedAt.Location())
}

func TestMemoryQueue(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, New(1, KindCreated)))
	require.NoError(t, q.Publish(ctx, New(2, KindUpdated)))

	n, err := q.Pending()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	first := receive(t, q)
	second := receive(t, q)
	assert.Equal(t, int64(1), first.ProjectID)
	assert.Equal(t, int64(2), second.ProjectID)

	require.NoError(t, q.Ack(ctx, first))
	require.NoError(t, q.Ack(ctx, second))
	n, _ = q.Pending()
	assert.Equal(t, 0, n)

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Publish(ctx, New(3, KindCreated)), ErrQueueClosed)

	_, ok := <-q.Events()
	assert.False(t, ok)
}

func TestMemoryQueue_PublishBlocksWhenFull(t *testing.T) {
	q := NewMemoryQueue(1)
	require.NoError(t, q.Publish(context.Background(), New(1, KindCreated)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, New(2, KindCreated)), context.DeadlineExceeded)
}

func TestBoltQueue_DeliversInOrder(t *testing.T) {
	q, err := OpenBoltQueue(filepath.Join(t.TempDir(), "outbox.db"))
	require.NoError(t, err)
	defer q.Close()
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, q.Publish(ctx, New(i, KindUpdated)))
	}

	for i := int64(1); i <= 5; i++ {
		ev := receive(t, q)
		assert.Equal(t, i, ev.ProjectID)
		assert.Equal(t, KindUpdated, ev.Kind)
		require.NoError(t, q.Ack(ctx, ev))
	}

	n, err := q.Pending()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBoltQueue_RedeliversUnackedAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outbox.db")
	ctx := context.Background()

	q, err := OpenBoltQueue(path)
	require.NoError(t, err)
	acked := New(1, KindCreated)
	unacked := New(2, KindCreated)
	require.NoError(t, q.Publish(ctx, acked))
	require.NoError(t, q.Publish(ctx, unacked))

	got := receive(t, q)
	require.Equal(t, acked.ID, got.ID)
	require.NoError(t, q.Ack(ctx, got))
	got = receive(t, q)
	require.Equal(t, unacked.ID, got.ID)
	require.NoError(t, q.Close())

	q, err = OpenBoltQueue(path)
	require.NoError(t, err)
	defer q.Close()

	n, err := q.Pending()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	replayed := receive(t, q)
	assert.Equal(t, unacked.ID, replayed.ID)
	assert.Equal(t, int64(2), replayed.ProjectID)
}

func TestBoltQueue_Close(t *testing.T) {
	q, err := OpenBoltQueue(filepath.Join(t.TempDir(), "outbox.db"))
	require.NoError(t, err)

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Publish(context.Background(), New(1, KindCreated)), ErrQueueClosed)

	_, ok := <-q.Events()
	assert.False(t, ok)
}
