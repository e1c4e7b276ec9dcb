package entity

import "time"

type SenderRole string

const (
	SenderCustomer SenderRole = "customer"
	SenderAgent    SenderRole = "agent"
	SenderSystem   SenderRole = "system"
)

type MessageType string

const (
	MessageText MessageType = "text"
	MessageFile MessageType = "file"
)

// FilePayload carries an attachment inline as a data URI, the way the widget
// ships files to the server.
type FilePayload struct {
	Name     string `json:"name"`
	MimeType string `json:"type"`
	Size     int64  `json:"size,omitempty"`
	Data     string `json:"data,omitempty"`
}

// Message is a chat message as seen on the wire. ID is empty for pure system
// messages, which can therefore never be deduplicated.
type Message struct {
	ID        string       `json:"id,omitempty"`
	RoomID    string       `json:"room_id,omitempty"`
	Sender    SenderRole   `json:"sender_type"`
	Type      MessageType  `json:"type"`
	Content   string       `json:"content"`
	File      *FilePayload `json:"file,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

func (m Message) FromCustomer() bool {
	return m.Sender == SenderCustomer
}
