package runtime

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"voynich/domain"
	"voynich/domain/event"
	"voynich/errors"
)

// recordingSink memorizes every event it consumed.
type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *recordingSink) Consume(_ context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) received() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.events...)
}

// deadSink behaves like a saturated or closed connection.
type deadSink struct{}

func (deadSink) Consume(context.Context, event.Event) error {
	return errors.ErrSinkSaturated
}

func TestRegistry_Join_One_Room_One_Participant(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	roomID := domain.RoomID("aaaabbbbccccddddeeeeffff00001111")
	connectionID := uuid.New()

	// Given no room exists
	req.Empty(registry.rooms)
	req.Empty(registry.byConn)

	// When a participant joins
	count := registry.Join(roomID, connectionID, "alice", &recordingSink{})

	// Then the room entry exists with a single member
	req.Equal(1, count)
	req.Len(registry.rooms, 1)
	req.Contains(registry.rooms[roomID], connectionID)
	req.Equal(roomID, registry.byConn[connectionID])
}

func TestRegistry_Join_One_Room_Multiple_Participants(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	roomID := domain.RoomID("aaaabbbbccccddddeeeeffff00001111")

	// When two participants join the same room
	first := registry.Join(roomID, uuid.New(), "alice", &recordingSink{})
	second := registry.Join(roomID, uuid.New(), "bob", &recordingSink{})

	// Then the count grows with each join
	req.Equal(1, first)
	req.Equal(2, second)
	req.Len(registry.rooms[roomID], 2)
}

func TestRegistry_Leave_Prunes_Empty_Room(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	roomID := domain.RoomID("aaaabbbbccccddddeeeeffff00001111")
	connectionID := uuid.New()
	registry.Join(roomID, connectionID, "alice", &recordingSink{})

	// When the only participant leaves
	leftRoom, remaining, ok := registry.Leave(connectionID)

	// Then the room entry is gone entirely, not left dangling
	req.True(ok)
	req.Equal(roomID, leftRoom)
	req.Equal(0, remaining)
	req.Empty(registry.rooms)
	req.Empty(registry.byConn)
}

func TestRegistry_Leave_Keeps_NonEmpty_Room(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	roomID := domain.RoomID("aaaabbbbccccddddeeeeffff00001111")
	leaver := uuid.New()
	registry.Join(roomID, leaver, "alice", &recordingSink{})
	registry.Join(roomID, uuid.New(), "bob", &recordingSink{})

	// When one of two participants leaves
	_, remaining, ok := registry.Leave(leaver)

	// Then the room survives with the remaining member
	req.True(ok)
	req.Equal(1, remaining)
	req.Len(registry.rooms[roomID], 1)
}

func TestRegistry_Leave_Unknown_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())

	_, _, ok := registry.Leave(uuid.New())

	req.False(ok)
}

func TestRegistry_Evict_Returns_Sessions_And_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	roomID := domain.RoomID("aaaabbbbccccddddeeeeffff00001111")
	registry.Join(roomID, uuid.New(), "alice", &recordingSink{})
	registry.Join(roomID, uuid.New(), "bob", &recordingSink{})

	// When the room is evicted
	evicted := registry.Evict(roomID)

	// Then both sessions are returned and all state is cleaned up
	req.Len(evicted, 2)
	req.Empty(registry.rooms)
	req.Empty(registry.byConn)

	// And evicting again is a harmless no-op
	req.Empty(registry.Evict(roomID))
}

func TestRegistry_Broadcast_Reaches_Current_Members_Only(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	roomID := domain.RoomID("aaaabbbbccccddddeeeeffff00001111")
	otherRoom := domain.RoomID("11110000ffffeeeeddddccccbbbbaaaa")
	stayer := &recordingSink{}
	leaverSink := &recordingSink{}
	bystander := &recordingSink{}
	leaver := uuid.New()
	registry.Join(roomID, uuid.New(), "alice", stayer)
	registry.Join(roomID, leaver, "bob", leaverSink)
	registry.Join(otherRoom, uuid.New(), "carol", bystander)

	// Given one participant already left
	registry.Leave(leaver)

	// When an event is broadcast to the room
	evt := event.UserCount{RoomID: roomID, Count: 1}
	registry.Broadcast(context.Background(), roomID, evt)

	// Then only the current member of that room receives it
	req.Equal([]event.Event{evt}, stayer.received())
	req.Empty(leaverSink.received())
	req.Empty(bystander.received())
}

func TestRegistry_Broadcast_Removes_Unreachable_Sessions(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	roomID := domain.RoomID("aaaabbbbccccddddeeeeffff00001111")
	healthy := &recordingSink{}
	registry.Join(roomID, uuid.New(), "alice", healthy)
	registry.Join(roomID, uuid.New(), "bob", deadSink{})

	// When a broadcast hits a saturated sink
	registry.Broadcast(context.Background(), roomID, event.UserCount{RoomID: roomID, Count: 2})

	// Then the dead session is cleaned up exactly like a disconnect
	rooms, sessions := registry.Stats()
	req.Equal(1, rooms)
	req.Equal(1, sessions)
	req.Len(healthy.received(), 1)
}
