// Package domain contains core concepts of the ephemeral chat system.
// This file defines the Room entity and its expiration rule.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// RoomID is the opaque random token identifying a room.
type RoomID string

// NewRoomID returns a 32-character hexadecimal token built from 16 bytes
// of crypto/rand entropy.
func NewRoomID() (RoomID, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return RoomID(hex.EncodeToString(raw)), nil
}

// Room is a time-boxed chat session. Invariant: ExpiresAt > CreatedAt.
// Once a room is expired it must not accept new joins or messages, and the
// sweep will erase it together with everything it owns.
type Room struct {
	ID        RoomID
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the room is logically dead at the given instant.
func (r Room) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
