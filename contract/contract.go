//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"

	"voynich/domain"
	"voynich/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes, avoiding the need for
// manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one participant's outbound channel. Consume returns an error
// when the sink is closed or saturated; callers treat that exactly like a
// disconnect and remove the session.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// Session is a live connection's membership in a room.
type Session struct {
	ConnectionID uuid.UUID
	RoomID       domain.RoomID
	Identity     string
	Sink         EventSink
}

// IRegistry is the shared room -> participants index. A room key exists in
// the registry iff at least one session is joined to it.
type IRegistry interface {
	Join(roomID domain.RoomID, connectionID uuid.UUID, identity string, sink EventSink) int
	Leave(connectionID uuid.UUID) (domain.RoomID, int, bool)
	Evict(roomID domain.RoomID) []Session
	Broadcast(ctx context.Context, roomID domain.RoomID, e event.Event)
	Stats() (rooms int, sessions int)
}

// RoomStore is the durable side of the system. It only ever receives sealed
// payloads; rooms own their messages and deleting a room cascades to them.
type RoomStore interface {
	CreateRoom(ttl time.Duration) (domain.Room, error)
	GetRoom(id domain.RoomID) (domain.Room, error)
	InsertMessage(msg domain.SealedMessage) error
	ListMessages(id domain.RoomID) ([]domain.SealedMessage, error)
	ListExpiredRooms(now time.Time) ([]domain.RoomID, error)
	DeleteRoom(id domain.RoomID) error
}

// CryptoBox is the opaque confidentiality transform applied to data at rest.
type CryptoBox interface {
	Seal(plaintext []byte) (string, error)
	Open(token string) ([]byte, error)
}
