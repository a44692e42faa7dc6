package presence

import (
	"context"
	"log/slog"
	"sync"

	"github.com/talentlink/talentlink/internal/domain"
)

// Rooms tracks ad-hoc connection groupings, such as a specific
// job-application thread. Membership is per connection, not per identity,
// and holds both forward and reverse indexes so teardown on disconnect is
// proportional to the connection's own rooms.
type Rooms struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Conn     // forward: room -> connID -> conn
	conns map[string]map[string]struct{} // reverse: connID -> rooms
}

// NewRooms creates an empty room table.
func NewRooms() *Rooms {
	return &Rooms{
		rooms: make(map[string]map[string]Conn),
		conns: make(map[string]map[string]struct{}),
	}
}

// Join adds a connection to a room.
func (r *Rooms) Join(roomID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]Conn)
	}
	r.rooms[roomID][conn.ID()] = conn
	if r.conns[conn.ID()] == nil {
		r.conns[conn.ID()] = make(map[string]struct{})
	}
	r.conns[conn.ID()][roomID] = struct{}{}
	slog.Debug("Joined room", "room", roomID, "conn_id", conn.ID())
}

// Leave removes a connection from a room. Empty rooms are deleted.
func (r *Rooms) Leave(roomID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(roomID, conn.ID())
}

// LeaveAll removes a connection from every room it joined; called on
// connection teardown.
func (r *Rooms) LeaveAll(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for roomID := range r.conns[conn.ID()] {
		r.leaveLocked(roomID, conn.ID())
	}
}

func (r *Rooms) leaveLocked(roomID, connID string) {
	if members, ok := r.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	if rooms, ok := r.conns[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.conns, connID)
		}
	}
}

// Members returns the connections currently in a room.
func (r *Rooms) Members(roomID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[roomID]
	if len(members) == 0 {
		return nil
	}
	result := make([]Conn, 0, len(members))
	for _, c := range members {
		result = append(result, c)
	}
	return result
}

// Broadcast pushes an event to every connection in the room except the
// sender. Zero members is the expected no-op case.
func (r *Rooms) Broadcast(ctx context.Context, roomID string, from Conn, ev domain.Event) {
	for _, c := range r.Members(roomID) {
		if from != nil && c.ID() == from.ID() {
			continue
		}
		if err := c.Send(ctx, ev); err != nil {
			slog.Debug("Room broadcast failed", "room", roomID, "conn_id", c.ID(), "error", err)
		}
	}
}
