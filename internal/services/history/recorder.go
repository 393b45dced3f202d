package history

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"cipherelay/internal/domain"
)

const (
	// DefaultQueueSize bounds how many records may wait for the worker.
	DefaultQueueSize = 1024

	// appendTimeout bounds one store write.
	appendTimeout = 5 * time.Second
)

// Recorder is a fire-and-forget front for a MessageStore.
type Recorder struct {
	store domain.MessageStore
	queue chan domain.Message
	log   zerolog.Logger

	dropped atomic.Uint64
	failed  atomic.Uint64
	stored  atomic.Uint64
}

var _ domain.MessageRecorder = (*Recorder)(nil)

// New returns a Recorder writing to store. Run must be started for records
// to be persisted.
func New(store domain.MessageStore, queueSize int, log zerolog.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Recorder{
		store: store,
		queue: make(chan domain.Message, queueSize),
		log:   log.With().Str("component", "history").Logger(),
	}
}

// Record queues msg for persistence without blocking.
func (r *Recorder) Record(msg domain.Message) bool {
	select {
	case r.queue <- msg:
		return true
	default:
		r.dropped.Add(1)
		r.log.Warn().Str("message_id", msg.ID).Msg("history queue full, dropping record")
		return false
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case msg := <-r.queue:
			r.persist(msg)
		case <-ctx.Done():
			r.flush()
			return nil
		}
	}
}

func (r *Recorder) flush() {
	for {
		select {
		case msg := <-r.queue:
			r.persist(msg)
		default:
			return
		}
	}
}

func (r *Recorder) persist(msg domain.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	if err := r.store.AppendMessage(ctx, msg); err != nil {
		r.failed.Add(1)
		r.log.Error().Err(err).Str("message_id", msg.ID).Msg("persist message")
		return
	}
	r.stored.Add(1)
}

// Stats reports how many records were stored, failed and dropped.
type Stats struct {
	Stored  uint64 `json:"stored"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
}

// Stats returns the recorder's counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Stored:  r.stored.Load(),
		Failed:  r.failed.Load(),
		Dropped: r.dropped.Load(),
	}
}
