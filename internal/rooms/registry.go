// Package rooms implements named multicast groups over session ids. The
// registry never owns session memory; broadcast hands payloads to the QoS
// layer per member.
package rooms

import (
	"sort"
	"sync"

	"github.com/efecan0/trading-gateway-go/internal/logger"
)

// Enqueuer delivers one payload to one session as a fresh QoS-tracked DATA
// frame. Implemented by the QoS engine adapter in the transport wiring.
type Enqueuer interface {
	Enqueue(sessionID, method string, payload []byte) error
}

type Registry struct {
	mu    sync.Mutex
	rooms map[string]map[string]struct{} // room -> set of session ids
	out   Enqueuer
}

func NewRegistry(out Enqueuer) *Registry {
	return &Registry{
		rooms: make(map[string]map[string]struct{}),
		out:   out,
	}
}

// Join adds the session to the room, creating the room on first join.
func (r *Registry) Join(room, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	members[sessionID] = struct{}{}
	logger.Conn(sessionID).DebugF("Joined room %s (%d members)", room, len(members))
}

// Leave removes the session; the room is garbage-collected when it empties.
func (r *Registry) Leave(room, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// LeaveAll evicts the session from every room it is in.
func (r *Registry) LeaveAll(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room, members := range r.rooms {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

// Members returns a sorted snapshot of the room's membership.
func (r *Registry) Members(room string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.rooms[room]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RoomsOf returns a sorted snapshot of the rooms the session belongs to.
func (r *Registry) RoomsOf(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for room, members := range r.rooms {
		if _, ok := members[sessionID]; ok {
			out = append(out, room)
		}
	}
	sort.Strings(out)
	return out
}

// Broadcast enqueues the identical payload for every member. Iteration runs
// over a snapshot, so concurrent join/leave is safe during delivery.
func (r *Registry) Broadcast(room, method string, payload []byte) int {
	members := r.Members(room)
	for _, sessionID := range members {
		if err := r.out.Enqueue(sessionID, method, payload); err != nil {
			logger.Conn(sessionID).WarnF("Broadcast to room %s failed, details: %v", room, err)
		}
	}
	return len(members)
}
