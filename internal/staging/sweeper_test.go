package staging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_SweepOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	require.NoError(t, store.Put(ctx, "abandoned", Payload{{"a": 1}}))

	store.now = func() time.Time { return base.Add(50 * time.Minute) }
	require.NoError(t, store.Put(ctx, "fresh", Payload{{"a": 2}}))

	sweeper := NewSweeper(store, time.Hour, time.Minute)
	sweeper.now = func() time.Time { return base.Add(90 * time.Minute) }

	n, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, store.Len())

	_, err = store.TakeOnce(ctx, "fresh")
	assert.NoError(t, err)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	store := NewMemoryStore()
	store.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	require.NoError(t, store.Put(context.Background(), "stale", Payload{}))

	sweeper := NewSweeper(store, time.Hour, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
