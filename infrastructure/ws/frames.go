package ws

import (
	"time"

	"voynich/domain/event"
)

// Client-to-server frame types.
const (
	frameJoin    = "join"
	frameMessage = "message"
)

// Server-to-client frame types. Message frames reuse the same name in both
// directions.
const (
	frameUserCount   = "userCount"
	frameChatExpired = "chatExpired"
	frameError       = "error"
)

// envelope carries only the discriminator; the raw frame is decoded a second
// time into the concrete shape.
type envelope struct {
	Type string `json:"type"`
}

type joinFrame struct {
	RoomID   string `json:"roomId" validate:"required,len=32,hexadecimal"`
	Identity string `json:"identity" validate:"required,max=64"`
}

// messageFrame carries its own sender label: a free-form attribution, not an
// identity. It may differ from the label given at join time.
type messageFrame struct {
	RoomID     string           `json:"roomId" validate:"required,len=32,hexadecimal"`
	Sender     string           `json:"sender" validate:"required,max=64"`
	Content    string           `json:"content" validate:"required"`
	Attachment *attachmentFrame `json:"attachment,omitempty"`
}

// attachmentFrame carries binary data base64-encoded by encoding/json.
type attachmentFrame struct {
	Name      string `json:"name" validate:"required"`
	MediaType string `json:"mediaType" validate:"required"`
	Data      []byte `json:"data" validate:"required"`
}

type serverFrame struct {
	Type       string           `json:"type"`
	ID         string           `json:"id,omitempty"`
	Sender     string           `json:"sender,omitempty"`
	Content    string           `json:"content,omitempty"`
	Attachment *attachmentFrame `json:"attachment,omitempty"`
	CreatedAt  *time.Time       `json:"createdAt,omitempty"`
	Count      int              `json:"count,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// frameFromEvent maps a fan-out event to its wire shape. The second return
// marks terminal frames, after which the connection closes.
func frameFromEvent(e event.Event) (serverFrame, bool) {
	switch ev := e.(type) {
	case event.UserCount:
		return serverFrame{Type: frameUserCount, Count: ev.Count}, false
	case event.MessageDelivered:
		frame := serverFrame{
			Type:      frameMessage,
			ID:        ev.ID.String(),
			Sender:    ev.Sender,
			Content:   ev.Content,
			CreatedAt: &ev.CreatedAt,
		}
		if ev.Attachment != nil {
			frame.Attachment = &attachmentFrame{
				Name:      ev.Attachment.Name,
				MediaType: ev.Attachment.MediaType,
				Data:      ev.Attachment.Data,
			}
		}
		return frame, false
	case event.ChatExpired:
		return serverFrame{Type: frameChatExpired}, true
	default:
		return serverFrame{Type: frameError, Reason: "internal error"}, false
	}
}
