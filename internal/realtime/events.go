package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"realtime-chat/internal/models"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownFrame   = errors.New("unknown frame type")
	ErrInvalidRoomID  = errors.New("invalid room id")
	// ErrSuperseded is returned for frames read from a connection that a
	// newer login of the same user has replaced.
	ErrSuperseded = errors.New("connection superseded by a newer login")

	// ErrPrivateRoom refuses leave-room on the caller's own user:<id> room.
	ErrPrivateRoom = errors.New("cannot leave your private room")
)

// Inbound is one decoded client frame. The set of variants is closed.
type Inbound interface {
	inbound()
}

type JoinRoom struct {
	RoomID string
}

type LeaveRoom struct {
	RoomID string
}

type SendMessage struct {
	models.SendMessagePayload
}

func (JoinRoom) inbound()    {}
func (LeaveRoom) inbound()   {}
func (SendMessage) inbound() {}

// Decode parses raw into one of the inbound variants. The frame id is
// returned whenever it could be read so the caller can address its ack.
func Decode(raw []byte) (string, Inbound, error) {
	var frame models.InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch frame.Type {
	case models.EventJoinRoom, models.EventLeaveRoom:
		var p models.RoomPayload
		if err := decodePayload(frame.Payload, &p); err != nil {
			return frame.ID, nil, err
		}
		if !models.ValidRoomID(p.RoomID) {
			return frame.ID, nil, ErrInvalidRoomID
		}
		if frame.Type == models.EventJoinRoom {
			return frame.ID, JoinRoom{RoomID: p.RoomID}, nil
		}
		return frame.ID, LeaveRoom{RoomID: p.RoomID}, nil

	case models.EventSendMessage:
		var p models.SendMessagePayload
		if err := decodePayload(frame.Payload, &p); err != nil {
			return frame.ID, nil, err
		}
		if !models.ValidRoomID(p.RoomID) {
			return frame.ID, nil, ErrInvalidRoomID
		}
		if err := models.Validate(p); err != nil {
			return frame.ID, nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return frame.ID, SendMessage{SendMessagePayload: p}, nil

	case "":
		return frame.ID, nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	return frame.ID, nil, fmt.Errorf("%w: %q", ErrUnknownFrame, frame.Type)
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrMalformedFrame)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}
