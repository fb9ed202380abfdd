// Package runtime owns the live fan-out machinery: the membership registry
// and the supervised background workers. It contains no business rules.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"voynich/contract"
	"voynich/domain"
	"voynich/domain/event"
)

// Registry is the in-memory index of which connections are joined to which
// room. Connection handlers and the expiry sweep all mutate it concurrently,
// so a single mutex guards the whole structure; every operation is O(1) or
// O(room size), which keeps the critical sections short.
//
// Invariant: a roomID key exists in rooms iff its session map is non-empty.
// Empty entries are pruned immediately, which keeps the eviction sweep cheap.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomID]map[uuid.UUID]contract.Session
	byConn map[uuid.UUID]domain.RoomID
	log    *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		rooms:  make(map[domain.RoomID]map[uuid.UUID]contract.Session),
		byConn: make(map[uuid.UUID]domain.RoomID),
		log:    log,
	}
}

// Join registers the session under roomID, creating the room entry if absent,
// and returns the new participant count. A connection belongs to at most one
// room at a time: a previous membership is dropped first.
func (r *Registry) Join(roomID domain.RoomID, connectionID uuid.UUID, identity string, sink contract.EventSink) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, ok := r.byConn[connectionID]; ok {
		r.removeLocked(previous, connectionID)
	}

	if _, ok := r.rooms[roomID]; !ok {
		r.rooms[roomID] = make(map[uuid.UUID]contract.Session)
	}
	r.rooms[roomID][connectionID] = contract.Session{
		ConnectionID: connectionID,
		RoomID:       roomID,
		Identity:     identity,
		Sink:         sink,
	}
	r.byConn[connectionID] = roomID
	return len(r.rooms[roomID])
}

// Leave locates the room holding connectionID, removes the session and prunes
// the room entry when it becomes empty. It returns the room and the remaining
// count so the caller can broadcast the update, or ok=false when the
// connection held no membership.
func (r *Registry) Leave(connectionID uuid.UUID) (domain.RoomID, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.byConn[connectionID]
	if !ok {
		return "", 0, false
	}
	r.removeLocked(roomID, connectionID)
	return roomID, len(r.rooms[roomID]), true
}

// Evict forcibly removes a room's entry and returns the sessions that must be
// told about the expiration. Evicting an absent room is a no-op and yields an
// empty set, so the sweep stays idempotent.
func (r *Registry) Evict(roomID domain.RoomID) []contract.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	evicted := make([]contract.Session, 0, len(members))
	for connectionID, session := range members {
		evicted = append(evicted, session)
		delete(r.byConn, connectionID)
	}
	delete(r.rooms, roomID)
	return evicted
}

// Broadcast delivers the event to every session registered to the room at the
// moment the snapshot is taken. Delivery happens outside the lock so a slow
// sink never blocks Join/Leave on other rooms, or on the same one. A sink
// that fails to consume is treated as disconnected and removed.
func (r *Registry) Broadcast(ctx context.Context, roomID domain.RoomID, e event.Event) {
	r.mu.RLock()
	snapshot := lo.Values(r.rooms[roomID])
	r.mu.RUnlock()

	for _, session := range snapshot {
		if err := session.Sink.Consume(ctx, e); err != nil {
			r.log.Warn(fmt.Sprintf("Dropping unreachable session %s", session.ConnectionID),
				"room_id", roomID, "error", err)
			r.Leave(session.ConnectionID)
		}
	}
}

// Stats reports current occupancy for telemetry.
func (r *Registry) Stats() (rooms int, sessions int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), len(r.byConn)
}

// removeLocked deletes one membership and prunes the room entry when empty.
// Callers must hold the write lock.
func (r *Registry) removeLocked(roomID domain.RoomID, connectionID uuid.UUID) {
	delete(r.byConn, connectionID)
	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
}
