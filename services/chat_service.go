//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"voynich/contract"
	"voynich/domain"
	"voynich/domain/event"
	apperrors "voynich/errors"
)

type IChatService interface {
	CreateRoom(ctx context.Context, ttl time.Duration) (domain.Room, error)
	Join(ctx context.Context, roomID domain.RoomID, connectionID uuid.UUID, identity string, sink contract.EventSink) (int, error)
	Send(ctx context.Context, roomID domain.RoomID, sender, content string, attachment *domain.Attachment) error
	Leave(ctx context.Context, connectionID uuid.UUID)
	History(ctx context.Context, roomID domain.RoomID) (domain.Room, []domain.Message, error)
}

// ChatService holds the transition logic shared by the realtime gateway and
// the REST facade. Store and seal results are always acquired before the
// registry is touched, so no I/O ever happens under the membership lock.
type ChatService struct {
	log      *slog.Logger
	store    contract.RoomStore
	box      contract.CryptoBox
	registry contract.IRegistry
	clock    clock.Clock
}

func NewChatService(log *slog.Logger, store contract.RoomStore, box contract.CryptoBox,
	registry contract.IRegistry, clk clock.Clock) *ChatService {
	return &ChatService{log: log, store: store, box: box, registry: registry, clock: clk}
}

func (s *ChatService) CreateRoom(_ context.Context, ttl time.Duration) (domain.Room, error) {
	room, err := s.store.CreateRoom(ttl)
	if err != nil {
		return domain.Room{}, err
	}
	s.log.Info("Room created", "room_id", room.ID, "expires_at", room.ExpiresAt)
	return room, nil
}

// Join registers the connection under the room and reports the new
// participant count to everyone in it, the joiner included. Joining an
// unknown or expired room fails without registering anything.
func (s *ChatService) Join(ctx context.Context, roomID domain.RoomID, connectionID uuid.UUID,
	identity string, sink contract.EventSink) (int, error) {
	room, err := s.store.GetRoom(roomID)
	if err != nil {
		return 0, err
	}
	if room.Expired(s.clock.Now()) {
		return 0, apperrors.ErrRoomExpired
	}

	count := s.registry.Join(roomID, connectionID, identity, sink)
	s.registry.Broadcast(ctx, roomID, event.UserCount{RoomID: roomID, Count: count})
	s.log.Info("Participant joined", "room_id", roomID, "connection_id", connectionID, "count", count)
	return count, nil
}

// Send seals and persists the message, then fans the plaintext out to every
// registered session. Expiry is re-checked here because a room can die
// between join and send; such a send must fail immediately, not wait for the
// next sweep.
func (s *ChatService) Send(ctx context.Context, roomID domain.RoomID, sender, content string,
	attachment *domain.Attachment) error {
	if err := attachment.Validate(); err != nil {
		return err
	}

	room, err := s.store.GetRoom(roomID)
	if err != nil {
		return err
	}
	if room.Expired(s.clock.Now()) {
		return apperrors.ErrRoomExpired
	}

	sealed := domain.SealedMessage{
		ID:        uuid.New(),
		RoomID:    roomID,
		Sender:    sender,
		CreatedAt: s.clock.Now().UTC(),
	}
	if sealed.Content, err = s.box.Seal([]byte(content)); err != nil {
		return fmt.Errorf("sealing content: %w", err)
	}
	if sealed.Attachment, err = s.sealAttachment(attachment); err != nil {
		return err
	}

	if err := s.store.InsertMessage(sealed); err != nil {
		return err
	}

	s.registry.Broadcast(ctx, roomID, event.MessageDelivered{
		ID:         sealed.ID,
		RoomID:     roomID,
		Sender:     sender,
		Content:    content,
		Attachment: attachment,
		CreatedAt:  sealed.CreatedAt,
	})
	return nil
}

// Leave removes the connection's membership and, when the room still has
// participants, tells them about the new count. Leaving twice, or after an
// eviction, is a harmless no-op.
func (s *ChatService) Leave(ctx context.Context, connectionID uuid.UUID) {
	roomID, remaining, ok := s.registry.Leave(connectionID)
	if !ok {
		return
	}
	s.log.Info("Participant left", "room_id", roomID, "connection_id", connectionID, "remaining", remaining)
	if remaining > 0 {
		s.registry.Broadcast(ctx, roomID, event.UserCount{RoomID: roomID, Count: remaining})
	}
}

// History returns the room and its full message sequence, opened for
// delivery. A token that no longer opens means corruption or a key mismatch;
// that error surfaces, it is never silently dropped.
func (s *ChatService) History(_ context.Context, roomID domain.RoomID) (domain.Room, []domain.Message, error) {
	room, err := s.store.GetRoom(roomID)
	if err != nil {
		return domain.Room{}, nil, err
	}

	sealed, err := s.store.ListMessages(roomID)
	if err != nil {
		return domain.Room{}, nil, err
	}

	messages := make([]domain.Message, 0, len(sealed))
	for _, msg := range sealed {
		opened, err := s.openMessage(msg)
		if err != nil {
			return domain.Room{}, nil, fmt.Errorf("opening message %s: %w", msg.ID, err)
		}
		messages = append(messages, opened)
	}
	return room, messages, nil
}

func (s *ChatService) sealAttachment(attachment *domain.Attachment) (*domain.SealedAttachment, error) {
	if attachment == nil {
		return nil, nil
	}
	sealed := &domain.SealedAttachment{}
	var err error
	if sealed.Name, err = s.box.Seal([]byte(attachment.Name)); err != nil {
		return nil, fmt.Errorf("sealing attachment name: %w", err)
	}
	if sealed.MediaType, err = s.box.Seal([]byte(attachment.MediaType)); err != nil {
		return nil, fmt.Errorf("sealing attachment media type: %w", err)
	}
	if sealed.Data, err = s.box.Seal(attachment.Data); err != nil {
		return nil, fmt.Errorf("sealing attachment data: %w", err)
	}
	return sealed, nil
}

func (s *ChatService) openMessage(msg domain.SealedMessage) (domain.Message, error) {
	content, err := s.box.Open(msg.Content)
	if err != nil {
		return domain.Message{}, err
	}
	opened := domain.Message{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		Sender:    msg.Sender,
		Content:   string(content),
		CreatedAt: msg.CreatedAt,
	}
	if msg.Attachment != nil {
		name, err := s.box.Open(msg.Attachment.Name)
		if err != nil {
			return domain.Message{}, err
		}
		mediaType, err := s.box.Open(msg.Attachment.MediaType)
		if err != nil {
			return domain.Message{}, err
		}
		data, err := s.box.Open(msg.Attachment.Data)
		if err != nil {
			return domain.Message{}, err
		}
		opened.Attachment = &domain.Attachment{
			Name:      string(name),
			MediaType: string(mediaType),
			Data:      data,
		}
	}
	return opened, nil
}
