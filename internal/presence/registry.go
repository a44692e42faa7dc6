// Package presence tracks which identities currently hold live connections.
// The registry is the sole source of truth for online status; the persisted
// last-seen timestamp is a derived, best-effort mirror.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/talentlink/talentlink/internal/domain"
)

// Conn is a non-owning reference to a live transport session bound to an
// authenticated identity. The transport layer owns the connection lifecycle;
// the registry only targets pushes at it.
type Conn interface {
	// ID uniquely identifies this connection among the identity's devices.
	ID() string

	// Identity returns the identity the connection was authenticated as.
	Identity() domain.Identity

	// Send pushes one event to the connection. Errors are delivery
	// failures on a single device and never abort the caller's operation.
	Send(ctx context.Context, ev domain.Event) error
}

// LastSeenRecorder receives the approximate last-seen timestamp when an
// identity's final connection goes away.
type LastSeenRecorder func(identityID string, at time.Time)

// maxPendingStatus bounds the per-connection status queue. A connection that
// cannot drain this many broadcasts is effectively dead; further broadcasts
// to it are dropped rather than buffered without limit.
const maxPendingStatus = 256

// subscriber pairs a connection with its pending status broadcasts. Events
// are enqueued under the registry lock, in transition order, and delivered by
// a single drain goroutine per connection, so one connection's slow or stuck
// Send never holds up the registry or any other connection.
type subscriber struct {
	conn Conn

	mu       sync.Mutex
	pending  []domain.Event
	draining bool
}

func (s *subscriber) enqueue(ev domain.Event) {
	s.mu.Lock()
	if len(s.pending) >= maxPendingStatus {
		s.mu.Unlock()
		slog.Debug("Presence broadcast dropped, queue full", "conn_id", s.conn.ID())
		return
	}
	s.pending = append(s.pending, ev)
	if !s.draining {
		s.draining = true
		go s.drain()
	}
	s.mu.Unlock()
}

func (s *subscriber) drain() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		ev := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		if err := s.conn.Send(context.Background(), ev); err != nil {
			slog.Debug("Presence broadcast failed", "conn_id", s.conn.ID(), "error", err)
		}
	}
}

// Registry maps identities to their active connections. An identity key
// exists iff its connection set is non-empty; online/offline broadcasts fire
// exactly once per transition of the key's existence, regardless of how many
// devices the identity fans in from.
type Registry struct {
	mu       sync.RWMutex
	active   map[string]map[string]*subscriber
	lastSeen LastSeenRecorder
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]map[string]*subscriber),
	}
}

// SetLastSeenRecorder installs the hook invoked on offline transitions.
func (r *Registry) SetLastSeenRecorder(rec LastSeenRecorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSeen = rec
}

// Register adds a connection to its identity's set. Re-registering the same
// connection is a no-op. Returns true if the identity just came online.
func (r *Registry) Register(conn Conn) bool {
	identityID := conn.Identity().ID

	r.mu.Lock()
	conns, existed := r.active[identityID]
	if !existed {
		conns = make(map[string]*subscriber)
		r.active[identityID] = conns
	}
	if _, dup := conns[conn.ID()]; dup {
		r.mu.Unlock()
		return false
	}
	conns[conn.ID()] = &subscriber{conn: conn}
	if !existed {
		// Enqueue while holding the lock so no subscriber can observe an
		// offline transition reordered ahead of this online one. Delivery
		// itself happens on the subscribers' drain goroutines.
		slog.Info("Identity online", "identity", identityID, "conn_id", conn.ID())
		r.broadcastLocked(domain.IdentityStatusEvent(domain.PresenceStatus{
			Identity: identityID,
			IsOnline: true,
			At:       time.Now(),
		}))
	} else {
		slog.Debug("Connection added", "identity", identityID, "conn_id", conn.ID())
	}
	r.mu.Unlock()
	return !existed
}

// Deregister removes a connection from its identity's set. Removing the last
// connection deletes the key, records last-seen, and broadcasts the offline
// transition. Returns true if the identity just went offline.
func (r *Registry) Deregister(conn Conn) bool {
	identityID := conn.Identity().ID

	r.mu.Lock()
	conns, ok := r.active[identityID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if current, exists := conns[conn.ID()]; !exists || current.conn != conn {
		r.mu.Unlock()
		return false
	}
	delete(conns, conn.ID())
	wentOffline := len(conns) == 0
	rec := r.lastSeen
	if wentOffline {
		delete(r.active, identityID)
		now := time.Now()
		slog.Info("Identity offline", "identity", identityID, "conn_id", conn.ID())
		r.broadcastLocked(domain.IdentityStatusEvent(domain.PresenceStatus{
			Identity: identityID,
			IsOnline: false,
			At:       now,
		}))
		r.mu.Unlock()
		if rec != nil {
			rec(identityID, now)
		}
		return true
	}
	slog.Debug("Connection removed", "identity", identityID, "conn_id", conn.ID())
	r.mu.Unlock()
	return false
}

// IsOnline reports whether the identity has at least one active connection.
func (r *Registry) IsOnline(identityID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active[identityID]) > 0
}

// ConnectionsFor returns the identity's active connections. An empty result
// means "deliver nothing"; it is never an error.
func (r *Registry) ConnectionsFor(identityID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.active[identityID]
	if len(conns) == 0 {
		return nil
	}
	result := make([]Conn, 0, len(conns))
	for _, s := range conns {
		result = append(result, s.conn)
	}
	return result
}

// OnlineIdentities returns the IDs of all currently online identities.
func (r *Registry) OnlineIdentities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	return ids
}

// broadcastLocked queues a status event for every subscriber. Callers hold
// r.mu, which is what guarantees per-identity transition order in each
// subscriber's queue; no network write happens here.
func (r *Registry) broadcastLocked(ev domain.Event) {
	for _, conns := range r.active {
		for _, s := range conns {
			s.enqueue(ev)
		}
	}
}
