package push

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/cihanisildar/abroado-client/internal/content"
)

// EventType names the push events the platform delivers.
type EventType string

const (
	EventNewMessage    EventType = "new_message"
	EventOnlineMembers EventType = "online_members_update"
	EventTyping        EventType = "typing"
)

// Event is one decoded push event. Only the fields relevant to its type
// are populated; the client does not validate schema beyond what it reads.
type Event struct {
	Type          EventType
	RoomID        string
	Message       *content.ChatMessage
	OnlineMembers []string
	UserID        string
	IsTyping      bool
}

var errUnknownEvent = errors.New("unknown event type")

type wireMessage struct {
	ID       string    `json:"id"`
	RoomID   string    `json:"room_id"`
	AuthorID string    `json:"author_id"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sent_at"`
}

type wireFrame struct {
	Type          string       `json:"type"`
	Token         string       `json:"token,omitempty"`
	RoomID        string       `json:"room_id,omitempty"`
	Message       *wireMessage `json:"message,omitempty"`
	OnlineMembers []string     `json:"online_members,omitempty"`
	UserID        string       `json:"user_id,omitempty"`
	IsTyping      bool         `json:"is_typing,omitempty"`
	Error         string       `json:"error,omitempty"`
}

const (
	frameAuth  = "auth"
	frameAck   = "ack"
	frameError = "error"
	frameJoin  = "join"
	frameLeave = "leave"
)

func decodeEvent(raw []byte) (Event, error) {
	var frame wireFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Event{}, err
	}

	switch EventType(frame.Type) {
	case EventNewMessage:
		if frame.Message == nil || frame.Message.ID == "" {
			return Event{}, errors.New("new_message frame missing message")
		}
		roomID := frame.RoomID
		if roomID == "" {
			roomID = frame.Message.RoomID
		}
		return Event{
			Type:   EventNewMessage,
			RoomID: roomID,
			Message: &content.ChatMessage{
				ID:       frame.Message.ID,
				RoomID:   roomID,
				AuthorID: frame.Message.AuthorID,
				Body:     frame.Message.Body,
				SentAt:   frame.Message.SentAt,
			},
		}, nil
	case EventOnlineMembers:
		return Event{
			Type:          EventOnlineMembers,
			RoomID:        frame.RoomID,
			OnlineMembers: frame.OnlineMembers,
		}, nil
	case EventTyping:
		return Event{
			Type:     EventTyping,
			RoomID:   frame.RoomID,
			UserID:   frame.UserID,
			IsTyping: frame.IsTyping,
		}, nil
	default:
		return Event{}, errUnknownEvent
	}
}
