package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"voynich/domain"
	"voynich/domain/event"
	apperrors "voynich/errors"
	"voynich/infrastructure/storage"
	"voynich/mocks"
	"voynich/runtime"
)

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

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	options := badger.DefaultOptions("").
		WithInMemory(true).
		WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestExpiryWorker_Sweep_Erases_And_Notifies(t *testing.T) {
	req := require.New(t)
	mockClock := clock.NewMock()
	repository := storage.NewRoomRepository(openTestDB(t), slog.Default(), mockClock)
	registry := runtime.NewRegistry(slog.Default())
	worker := NewExpiryWorker(slog.Default(), repository, registry, mockClock, time.Minute)

	// Given a short-lived room with a message and two live sessions,
	// and a long-lived room with one session
	doomed, err := repository.CreateRoom(time.Minute)
	req.NoError(err)
	req.NoError(repository.InsertMessage(domain.SealedMessage{
		ID:        uuid.New(),
		RoomID:    doomed.ID,
		Sender:    "alice",
		Content:   "00:00",
		CreatedAt: mockClock.Now().UTC(),
	}))
	survivor, err := repository.CreateRoom(time.Hour)
	req.NoError(err)

	alice := &recordingSink{}
	bob := &recordingSink{}
	carol := &recordingSink{}
	registry.Join(doomed.ID, uuid.New(), "alice", alice)
	registry.Join(doomed.ID, uuid.New(), "bob", bob)
	registry.Join(survivor.ID, uuid.New(), "carol", carol)

	// When the clock passes the short TTL and a sweep runs
	mockClock.Add(2 * time.Minute)
	worker.Sweep(context.Background())

	// Then the expired room and its messages are gone from the store
	_, err = repository.GetRoom(doomed.ID)
	req.ErrorIs(err, apperrors.ErrRoomNotFound)
	messages, err := repository.ListMessages(doomed.ID)
	req.NoError(err)
	req.Empty(messages)

	// And both of its sessions got the terminal signal, the bystander none
	req.Equal([]event.Event{event.ChatExpired{RoomID: doomed.ID}}, alice.received())
	req.Equal([]event.Event{event.ChatExpired{RoomID: doomed.ID}}, bob.received())
	req.Empty(carol.received())

	// And the surviving room is intact
	_, err = repository.GetRoom(survivor.ID)
	req.NoError(err)
	rooms, sessions := registry.Stats()
	req.Equal(1, rooms)
	req.Equal(1, sessions)
}

func TestExpiryWorker_Sweep_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	mockClock := clock.NewMock()
	repository := storage.NewRoomRepository(openTestDB(t), slog.Default(), mockClock)
	registry := runtime.NewRegistry(slog.Default())
	worker := NewExpiryWorker(slog.Default(), repository, registry, mockClock, time.Minute)

	room, err := repository.CreateRoom(time.Minute)
	req.NoError(err)
	sink := &recordingSink{}
	registry.Join(room.ID, uuid.New(), "alice", sink)

	mockClock.Add(2 * time.Minute)
	worker.Sweep(context.Background())
	worker.Sweep(context.Background())

	// A second cycle finds nothing to erase and signals nobody twice
	req.Len(sink.received(), 1)
}

func TestExpiryWorker_One_Room_Failure_Does_Not_Abort_Sweep(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockRoomStore(ctrl)
	registry := runtime.NewRegistry(slog.Default())
	mockClock := clock.NewMock()
	worker := NewExpiryWorker(slog.Default(), store, registry, mockClock, time.Minute)

	broken := domain.RoomID("11111111111111111111111111111111")
	healthy := domain.RoomID("22222222222222222222222222222222")
	sink := &recordingSink{}
	registry.Join(healthy, uuid.New(), "alice", sink)

	store.EXPECT().ListExpiredRooms(gomock.Any()).Return([]domain.RoomID{broken, healthy}, nil)
	store.EXPECT().DeleteRoom(broken).Return(fmt.Errorf("value log corrupted"))
	store.EXPECT().DeleteRoom(healthy).Return(nil)

	worker.Sweep(context.Background())

	// The room after the failing one is still erased and notified
	req.Equal([]event.Event{event.ChatExpired{RoomID: healthy}}, sink.received())
	_, sessions := registry.Stats()
	req.Zero(sessions)
}

func TestExpiryWorker_Run_Ticks_With_The_Clock(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockRoomStore(ctrl)
	registry := runtime.NewRegistry(slog.Default())
	mockClock := clock.NewMock()
	worker := NewExpiryWorker(slog.Default(), store, registry, mockClock, time.Minute)

	swept := make(chan struct{}, 1)
	store.EXPECT().ListExpiredRooms(gomock.Any()).DoAndReturn(func(time.Time) ([]domain.RoomID, error) {
		select {
		case swept <- struct{}{}:
		default:
		}
		return nil, nil
	}).MinTimes(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	// Let the goroutine install its ticker before moving time forward.
	time.Sleep(10 * time.Millisecond)
	mockClock.Add(time.Minute)

	select {
	case <-swept:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep never ran")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on cancellation")
	}
	req.Error(ctx.Err())
}
