package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidRoomID(t *testing.T) {
	req := require.New(t)

	req.True(ValidRoomID("64f1c2a9e4b0a1b2c3d4e5f6"))
	req.True(ValidRoomID("user:42"))
	req.True(ValidRoomID("general_chat-1"))

	req.False(ValidRoomID(""))
	req.False(ValidRoomID(":leading-colon"))
	req.False(ValidRoomID("has space"))
	req.False(ValidRoomID("semi;colon"))
}

func TestPrivateRoomID(t *testing.T) {
	req := require.New(t)

	req.Equal("user:42", PrivateRoomID("42"))
	req.True(IsPrivateRoomID(PrivateRoomID("42")))
	req.False(IsPrivateRoomID("64f1c2a9e4b0a1b2c3d4e5f6"))
	req.False(IsPrivateRoomID("users-lounge"))
}

func TestValidate_SendMessagePayload(t *testing.T) {
	t.Run("body only is accepted", func(t *testing.T) {
		require.NoError(t, Validate(SendMessagePayload{RoomID: "r1", Body: "hi"}))
	})

	t.Run("image only is accepted", func(t *testing.T) {
		require.NoError(t, Validate(SendMessagePayload{RoomID: "r1", Image: "https://cdn.example.com/a.png"}))
	})

	t.Run("missing room id is rejected", func(t *testing.T) {
		require.Error(t, Validate(SendMessagePayload{Body: "hi"}))
	})

	t.Run("empty message is rejected", func(t *testing.T) {
		require.Error(t, Validate(SendMessagePayload{RoomID: "r1"}))
	})
}
