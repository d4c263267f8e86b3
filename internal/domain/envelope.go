package domain

import "encoding/json"

type EventType string

// Типы событий, которые ходят по relay
const (
	EventJoin         EventType = "join"          // присоединение к комнате (вход + presence)
	EventLeave        EventType = "leave"         // выход из комнаты (выход + presence)
	EventCodeChange   EventType = "code-change"   // дельта кода
	EventCursorChange EventType = "cursor-change" // позиция курсора
	EventTypingStart  EventType = "typing-start"
	EventTypingStop   EventType = "typing-stop"
	EventError        EventType = "error" // только сервер -> клиент
)

// Envelope — единица обмена между клиентом и relay.
// SenderID/SenderUsername/Timestamp проставляются только сервером;
// значения из входящего сообщения игнорируются.
type Envelope struct {
	Type           EventType       `json:"type"`
	RoomID         string          `json:"roomId"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	SenderID       string          `json:"senderId,omitempty"`
	SenderUsername string          `json:"senderUsername,omitempty"`
	Timestamp      int64           `json:"timestamp,omitempty"` // unix millis, server-assigned
}

// Relayable сообщает, пересылается ли тип как есть другим участникам комнаты.
func (t EventType) Relayable() bool {
	switch t {
	case EventCodeChange, EventCursorChange, EventTypingStart, EventTypingStop:
		return true
	default:
		return false
	}
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrCodeAccessDenied = "access-denied"
	ErrCodeUnknownRoom  = "unknown-room"
	ErrCodeBadEvent     = "bad-event"
)
