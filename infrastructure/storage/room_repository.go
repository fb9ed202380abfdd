package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"voynich/domain"
	apperrors "voynich/errors"
)

const (
	roomPrefix    = "room:"
	messagePrefix = "msg:"
)

// RoomRepository persists rooms and their sealed messages in BadgerDB.
//
// Message keys are formatted as "msg:{room_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two
//     messages arrive at the same nanosecond.
//
// Values are CBOR-encoded; the repository never sees plaintext content.
//
// Room timestamps come from the injected clock, the same one driving the
// expiry sweep, so "created" and "expired" are judged against a single
// time source.
type RoomRepository struct {
	db    *badger.DB
	log   *slog.Logger
	clock clock.Clock
}

func NewRoomRepository(db *badger.DB, log *slog.Logger, clk clock.Clock) RoomRepository {
	return RoomRepository{db: db, log: log, clock: clk}
}

// Timestamps are stored as UnixNano so no precision is lost in the codec.
type storedRoom struct {
	ID        string
	CreatedAt int64
	ExpiresAt int64
}

type storedAttachment struct {
	Name      string
	MediaType string
	Data      string
}

type storedMessage struct {
	ID         string
	Room       string
	Sender     string
	Content    string
	Attachment *storedAttachment
	CreatedAt  int64
}

// CreateRoom stores a fresh room whose expiration lies ttl in the future.
func (r RoomRepository) CreateRoom(ttl time.Duration) (domain.Room, error) {
	if ttl <= 0 {
		return domain.Room{}, fmt.Errorf("room ttl must be positive, got %s", ttl)
	}
	id, err := domain.NewRoomID()
	if err != nil {
		return domain.Room{}, err
	}
	now := r.clock.Now().UTC()
	room := domain.Room{ID: id, CreatedAt: now, ExpiresAt: now.Add(ttl)}

	bytes, err := cbor.Marshal(fromRoom(room))
	if err != nil {
		return domain.Room{}, err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(roomKey(id), bytes)
	})
	if err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

// GetRoom returns ErrRoomNotFound for unknown ids; expiry is the caller's
// concern, an expired-but-unswept room is still readable.
func (r RoomRepository) GetRoom(id domain.RoomID) (domain.Room, error) {
	var room domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			var stored storedRoom
			if err := cbor.Unmarshal(value, &stored); err != nil {
				return err
			}
			room = toRoom(stored)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Room{}, apperrors.ErrRoomNotFound
	}
	return room, err
}

// InsertMessage persists a sealed message under its room. The owning room is
// checked inside the same transaction, so a message can never be written for
// a room the sweep already deleted.
func (r RoomRepository) InsertMessage(msg domain.SealedMessage) error {
	bytes, err := cbor.Marshal(fromSealedMessage(msg))
	if err != nil {
		return err
	}
	key := messageKey(msg.RoomID, msg.CreatedAt, msg.ID)
	err = r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(msg.RoomID)); err != nil {
			return err
		}
		return txn.Set(key, bytes)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return apperrors.ErrRoomNotFound
	}
	return err
}

// ListMessages returns the room's sealed messages in ascending creation
// order. Thanks to the padded timestamp in the key, a forward prefix scan is
// already sorted.
func (r RoomRepository) ListMessages(id domain.RoomID) ([]domain.SealedMessage, error) {
	var stored []storedMessage
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(messagePrefix + string(id) + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var m storedMessage
				if err := cbor.Unmarshal(value, &m); err != nil {
					return err
				}
				stored = append(stored, m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.SealedMessage, 0, len(stored))
	for _, m := range stored {
		msg, err := toSealedMessage(m)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// ListExpiredRooms scans the room prefix and returns every id whose
// expiration is at or before now. Room counts are small, a full scan is fine.
func (r RoomRepository) ListExpiredRooms(now time.Time) ([]domain.RoomID, error) {
	var expired []domain.RoomID
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(roomPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var stored storedRoom
				if err := cbor.Unmarshal(value, &stored); err != nil {
					return err
				}
				if room := toRoom(stored); room.Expired(now) {
					expired = append(expired, room.ID)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return expired, err
}

// ListRooms returns every stored room, expired or not. Used by the
// inspection tooling, not by the serving path.
func (r RoomRepository) ListRooms() ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(roomPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var stored storedRoom
				if err := cbor.Unmarshal(value, &stored); err != nil {
					return err
				}
				rooms = append(rooms, toRoom(stored))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return rooms, err
}

// DeleteRoom removes the room and cascades to every message it owns.
// Deleting an absent room is a no-op.
//
// The room key goes first, in its own transaction: once it is gone,
// InsertMessage can no longer add to the backlog, so the scan that follows
// sees every message the room will ever own. The message keys are then
// deleted through a write batch, which splits itself across transactions,
// so a large backlog never trips the single-transaction size limit.
func (r RoomRepository) DeleteRoom(id domain.RoomID) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(roomKey(id))
	})
	if err != nil {
		return err
	}

	var keys [][]byte
	err = r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte(messagePrefix + string(id) + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	batch := r.db.NewWriteBatch()
	defer batch.Cancel()
	for _, key := range keys {
		if err := batch.Delete(key); err != nil {
			return err
		}
	}
	return batch.Flush()
}

func roomKey(id domain.RoomID) []byte {
	return []byte(roomPrefix + string(id))
}

func messageKey(roomID domain.RoomID, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", messagePrefix, roomID, at.UnixNano(), id))
}

func fromRoom(room domain.Room) storedRoom {
	return storedRoom{
		ID:        string(room.ID),
		CreatedAt: room.CreatedAt.UnixNano(),
		ExpiresAt: room.ExpiresAt.UnixNano(),
	}
}

func toRoom(stored storedRoom) domain.Room {
	return domain.Room{
		ID:        domain.RoomID(stored.ID),
		CreatedAt: time.Unix(0, stored.CreatedAt).UTC(),
		ExpiresAt: time.Unix(0, stored.ExpiresAt).UTC(),
	}
}

func fromSealedMessage(msg domain.SealedMessage) storedMessage {
	stored := storedMessage{
		ID:        msg.ID.String(),
		Room:      string(msg.RoomID),
		Sender:    msg.Sender,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt.UnixNano(),
	}
	if msg.Attachment != nil {
		stored.Attachment = &storedAttachment{
			Name:      msg.Attachment.Name,
			MediaType: msg.Attachment.MediaType,
			Data:      msg.Attachment.Data,
		}
	}
	return stored
}

func toSealedMessage(stored storedMessage) (domain.SealedMessage, error) {
	parsedID, err := uuid.Parse(stored.ID)
	if err != nil {
		return domain.SealedMessage{}, err
	}
	msg := domain.SealedMessage{
		ID:        parsedID,
		RoomID:    domain.RoomID(stored.Room),
		Sender:    stored.Sender,
		Content:   stored.Content,
		CreatedAt: time.Unix(0, stored.CreatedAt).UTC(),
	}
	if stored.Attachment != nil {
		msg.Attachment = &domain.SealedAttachment{
			Name:      stored.Attachment.Name,
			MediaType: stored.Attachment.MediaType,
			Data:      stored.Attachment.Data,
		}
	}
	return msg, nil
}
