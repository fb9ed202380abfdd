// Package event defines what is fanned out to the participants of a room.
package event

import (
	"time"

	"github.com/google/uuid"

	"voynich/domain"
)

// Event is anything delivered to every current participant of one room.
type Event interface {
	Room() domain.RoomID
}

// UserCount tells every participant, joiner included, how many people are
// currently in the room.
type UserCount struct {
	RoomID domain.RoomID
	Count  int
}

func (e UserCount) Room() domain.RoomID { return e.RoomID }

// MessageDelivered carries the server-confirmed plaintext message, including
// the generated id and timestamp, back to every participant. The sender
// receives its own message too, so its UI reflects stored state.
type MessageDelivered struct {
	ID         uuid.UUID
	RoomID     domain.RoomID
	Sender     string
	Content    string
	Attachment *domain.Attachment
	CreatedAt  time.Time
}

func (e MessageDelivered) Room() domain.RoomID { return e.RoomID }

// ChatExpired is the terminal signal: the room and its messages are gone.
type ChatExpired struct {
	RoomID domain.RoomID
}

func (e ChatExpired) Room() domain.RoomID { return e.RoomID }
