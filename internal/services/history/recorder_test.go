package history_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherelay/internal/domain"
	"cipherelay/internal/services/history"
	"cipherelay/internal/store"
)

type failingStore struct{}

func (failingStore) AppendMessage(context.Context, domain.Message) error {
	return errors.New("disk full")
}

func TestRecorder_PersistsQueuedRecords(t *testing.T) {
	mem := store.NewMemoryStore()
	rec := history.New(mem, 8, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = rec.Run(ctx); close(done) }()

	assert.True(t, rec.Record(domain.Message{ID: "m1", From: "alice", To: "bob"}))
	assert.True(t, rec.Record(domain.Message{ID: "m2", From: "bob"}))

	require.Eventually(t, func() bool { return len(mem.Messages()) == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, history.Stats{Stored: 2}, rec.Stats())
}

func TestRecorder_FullQueueDropsWithoutBlocking(t *testing.T) {
	rec := history.New(store.NewMemoryStore(), 1, zerolog.Nop())

	// No worker running: the second record has nowhere to go.
	assert.True(t, rec.Record(domain.Message{ID: "m1"}))
	assert.False(t, rec.Record(domain.Message{ID: "m2"}))
	assert.Equal(t, uint64(1), rec.Stats().Dropped)
}

func TestRecorder_FlushesOnCancel(t *testing.T) {
	mem := store.NewMemoryStore()
	rec := history.New(mem, 4, zerolog.Nop())
	for _, id := range []string{"a", "b", "c"} {
		require.True(t, rec.Record(domain.Message{ID: id}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rec.Run(ctx))

	assert.Len(t, mem.Messages(), 3)
}

func TestRecorder_StoreFailureCounted(t *testing.T) {
	rec := history.New(failingStore{}, 4, zerolog.Nop())
	require.True(t, rec.Record(domain.Message{ID: "m1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rec.Run(ctx))

	assert.Equal(t, history.Stats{Failed: 1}, rec.Stats())
}
