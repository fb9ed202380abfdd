package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is the plaintext representation of a chat message. It only ever
// lives in memory, between opening stored ciphertext and handing the payload
// to a session, or between receiving a send and sealing it for storage.
type Message struct {
	ID         uuid.UUID
	RoomID     RoomID
	Sender     string
	Content    string
	Attachment *Attachment
	CreatedAt  time.Time
}

// SealedMessage is what the store sees: every confidential field replaced by
// an opaque token. Sender labels and timestamps stay readable so the store
// can order and attribute messages without opening them.
type SealedMessage struct {
	ID         uuid.UUID
	RoomID     RoomID
	Sender     string
	Content    string
	Attachment *SealedAttachment
	CreatedAt  time.Time
}

// SealedAttachment mirrors Attachment with each field sealed independently.
type SealedAttachment struct {
	Name      string
	MediaType string
	Data      string
}
