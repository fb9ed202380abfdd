package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRoomID_Shape_And_Uniqueness(t *testing.T) {
	req := require.New(t)

	first, err := NewRoomID()
	req.NoError(err)
	req.Len(string(first), 32)
	req.Regexp("^[0-9a-f]{32}$", string(first))

	second, err := NewRoomID()
	req.NoError(err)
	req.NotEqual(first, second)
}

func TestRoom_Expired(t *testing.T) {
	req := require.New(t)
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	room := Room{ID: "abc", CreatedAt: now.Add(-time.Hour), ExpiresAt: now}

	// The deadline itself already counts as expired
	req.True(room.Expired(now))
	req.True(room.Expired(now.Add(time.Second)))
	req.False(room.Expired(now.Add(-time.Nanosecond)))
}
