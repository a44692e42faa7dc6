package chat

import (
	"context"
	"sync"
	"time"

	"github.com/talentlink/talentlink/internal/domain"
	"github.com/talentlink/talentlink/internal/presence"
)

// DefaultTypingTimeout is the quiescence window after which an un-refreshed
// typing indicator auto-clears.
const DefaultTypingTimeout = 2 * time.Second

// TypingCoordinator owns the ephemeral typing-indicator state: one
// cancellable timer per (sender, receiver) pair. Nothing here is persisted;
// indicators are best-effort and self-healing via timeout.
type TypingCoordinator struct {
	mu       sync.Mutex
	timers   map[typingKey]*time.Timer
	registry *presence.Registry
	window   time.Duration
}

type typingKey struct {
	senderID   string
	receiverID string
}

// NewTypingCoordinator creates a coordinator with the given quiescence
// window. A non-positive window falls back to the default.
func NewTypingCoordinator(registry *presence.Registry, window time.Duration) *TypingCoordinator {
	if window <= 0 {
		window = DefaultTypingTimeout
	}
	return &TypingCoordinator{
		timers:   make(map[typingKey]*time.Timer),
		registry: registry,
		window:   window,
	}
}

// Start pushes a typingStart to the receiver's connections and (re)arms the
// quiescence timer for the pair. Repeated starts refresh the timer and push
// again: a receiver who connected mid-typing still hears about it, and a
// refresh re-asserts the indicator over any stop that raced ahead of it.
func (t *TypingCoordinator) Start(senderID, receiverID string) {
	if senderID == "" || receiverID == "" || senderID == receiverID {
		return
	}
	key := typingKey{senderID: senderID, receiverID: receiverID}

	t.mu.Lock()
	if timer, ok := t.timers[key]; ok {
		timer.Reset(t.window)
	} else {
		t.timers[key] = time.AfterFunc(t.window, func() {
			t.expire(key)
		})
	}
	t.mu.Unlock()

	t.push(receiverID, domain.TypingStartEvent(senderID, domain.ConversationKey(senderID, receiverID)))
}

// Stop cancels the pair's timer and pushes typingStop immediately.
func (t *TypingCoordinator) Stop(senderID, receiverID string) {
	key := typingKey{senderID: senderID, receiverID: receiverID}

	t.mu.Lock()
	timer, ok := t.timers[key]
	if ok {
		timer.Stop()
		delete(t.timers, key)
	}
	t.mu.Unlock()
	if !ok {
		return
	}

	t.push(receiverID, domain.TypingStopEvent(senderID, domain.ConversationKey(senderID, receiverID)))
}

// ReleaseSender cancels every timer owned by a sender and clears the
// indicator on the affected receivers; called when the sender's last
// connection goes away so timers do not leak.
func (t *TypingCoordinator) ReleaseSender(senderID string) {
	t.mu.Lock()
	var released []typingKey
	for key, timer := range t.timers {
		if key.senderID == senderID {
			timer.Stop()
			delete(t.timers, key)
			released = append(released, key)
		}
	}
	t.mu.Unlock()

	for _, key := range released {
		t.push(key.receiverID, domain.TypingStopEvent(key.senderID, domain.ConversationKey(key.senderID, key.receiverID)))
	}
}

// Active reports whether a typing timer is currently armed for the pair.
func (t *TypingCoordinator) Active(senderID, receiverID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[typingKey{senderID: senderID, receiverID: receiverID}]
	return ok
}

func (t *TypingCoordinator) expire(key typingKey) {
	t.mu.Lock()
	if _, ok := t.timers[key]; !ok {
		// An explicit Stop raced the timer and already fired the event.
		t.mu.Unlock()
		return
	}
	delete(t.timers, key)
	t.mu.Unlock()

	t.push(key.receiverID, domain.TypingStopEvent(key.senderID, domain.ConversationKey(key.senderID, key.receiverID)))
}

func (t *TypingCoordinator) push(receiverID string, ev domain.Event) {
	for _, c := range t.registry.ConnectionsFor(receiverID) {
		_ = c.Send(context.Background(), ev)
	}
}
