package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"cipherelay/internal/domain"
)

// shardCount must be a power of two.
const shardCount = 32

// evictionNotice is sent to a connection that loses its identity to a newer login.
const evictionNotice = "session replaced by a newer login"

type entry struct {
	conn         domain.Conn
	registeredAt time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[domain.Identity]entry
}

// Registry maps identities to their single active connection.
type Registry struct {
	shards [shardCount]shard
	log    zerolog.Logger
	now    func() time.Time
}

// New returns an empty registry.
func New(log zerolog.Logger) *Registry {
	r := &Registry{
		log: log.With().Str("component", "registry").Logger(),
		now: time.Now,
	}
	for i := range r.shards {
		r.shards[i].entries = make(map[domain.Identity]entry)
	}
	return r
}

func (r *Registry) shardFor(id domain.Identity) *shard {
	return &r.shards[xxhash.Sum64String(string(id))&(shardCount-1)]
}

// Register installs conn as id's active connection. A previously registered
// connection for id is notified, closed and returned.
func (r *Registry) Register(id domain.Identity, conn domain.Conn) (evicted domain.Conn) {
	s := r.shardFor(id)
	s.mu.Lock()
	prev, existed := s.entries[id]
	s.entries[id] = entry{conn: conn, registeredAt: r.now().UTC()}
	s.mu.Unlock()

	r.log.Info().
		Str("identity", id.String()).
		Str("conn_id", conn.ID()).
		Str("transport", conn.Transport()).
		Msg("registered")

	if !existed || prev.conn == conn {
		return nil
	}
	r.log.Info().
		Str("identity", id.String()).
		Str("conn_id", prev.conn.ID()).
		Msg("evicting previous connection")
	_ = prev.conn.Send(domain.SystemEnvelope(evictionNotice))
	_ = prev.conn.Close()
	return prev.conn
}

// Unregister removes id's entry if present. It reports whether an entry
// was removed; calling it for an absent identity is not an error.
func (r *Registry) Unregister(id domain.Identity) bool {
	s := r.shardFor(id)
	s.mu.Lock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if ok {
		r.log.Info().Str("identity", id.String()).Msg("unregistered")
	}
	return ok
}

// Release removes id's entry only if it still belongs to conn.
func (r *Registry) Release(id domain.Identity, conn domain.Conn) bool {
	s := r.shardFor(id)
	s.mu.Lock()
	e, ok := s.entries[id]
	ok = ok && e.conn == conn
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()
	if ok {
		r.log.Info().Str("identity", id.String()).Str("conn_id", conn.ID()).Msg("released")
	}
	return ok
}

// Lookup returns id's active connection.
func (r *Registry) Lookup(id domain.Identity) (domain.Conn, bool) {
	s := r.shardFor(id)
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	return e.conn, ok
}

// Send delivers env to id's connection. It returns false at once when id is
// not connected. A connection that is closed or cannot keep up is evicted.
func (r *Registry) Send(id domain.Identity, env domain.Envelope) bool {
	conn, ok := r.Lookup(id)
	if !ok {
		return false
	}
	return r.deliver(id, conn, env)
}

// Broadcast delivers env to every registered identity except exclude and
// returns how many deliveries succeeded. A failing target never stops
// delivery to the rest.
func (r *Registry) Broadcast(exclude domain.Identity, env domain.Envelope) int {
	delivered := 0
	for _, t := range r.targets() {
		if t.id == exclude {
			continue
		}
		if r.deliver(t.id, t.conn, env) {
			delivered++
		}
	}
	return delivered
}

func (r *Registry) deliver(id domain.Identity, conn domain.Conn, env domain.Envelope) bool {
	err := conn.Send(env)
	if err == nil {
		return true
	}
	if errors.Is(err, domain.ErrConnClosed) || errors.Is(err, domain.ErrSlowConsumer) {
		r.log.Warn().
			Err(err).
			Str("identity", id.String()).
			Str("conn_id", conn.ID()).
			Msg("send failed, evicting")
		r.Release(id, conn)
		_ = conn.Close()
		return false
	}
	// The envelope could not be encoded for this peer; the connection is fine.
	r.log.Warn().Err(err).Str("identity", id.String()).Msg("send failed")
	return false
}

type target struct {
	id   domain.Identity
	conn domain.Conn
}

func (r *Registry) targets() []target {
	var out []target
	r.view(func(id domain.Identity, e entry) {
		out = append(out, target{id: id, conn: e.conn})
	})
	return out
}

// view calls fn for every entry while holding all shard read locks, which
// are taken in index order. fn must not call back into the registry.
func (r *Registry) view(fn func(domain.Identity, entry)) {
	for i := range r.shards {
		r.shards[i].mu.RLock()
	}
	defer func() {
		for i := range r.shards {
			r.shards[i].mu.RUnlock()
		}
	}()
	for i := range r.shards {
		for id, e := range r.shards[i].entries {
			fn(id, e)
		}
	}
}

// Snapshot returns the connected identities, sorted, as of one instant.
func (r *Registry) Snapshot() []domain.Identity {
	out := make([]domain.Identity, 0)
	r.view(func(id domain.Identity, _ entry) {
		out = append(out, id)
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Entries returns presence details for every connected identity, sorted by
// identity.
func (r *Registry) Entries() []domain.Presence {
	out := make([]domain.Presence, 0)
	r.view(func(id domain.Identity, e entry) {
		out = append(out, domain.Presence{
			Identity:     id,
			ConnID:       e.conn.ID(),
			RemoteAddr:   e.conn.RemoteAddr(),
			Transport:    e.conn.Transport(),
			RegisteredAt: e.registeredAt,
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Len returns the number of connected identities.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}
