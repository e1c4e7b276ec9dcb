package transport

import (
	"encoding/json"
	"time"

	"supportchat/internal/domain/entity"
)

// Request events, acknowledged by the server.
const (
	EventCustomerRegister   = "customer_register"
	EventCustomerReconnect  = "customer_reconnect"
	EventUpdateCustomerInfo = "update_customer_info"
	EventJoinDirectChat     = "join_direct_chat"
	EventGetChatHistory     = "get_chat_history"
	EventJoinRoom           = "join_room"
	EventJoinPublicRoom     = "join_public_room"
	EventLeavePublicRoom    = "leave_public_room"
	EventGetPublicRooms     = "get_public_rooms"
	EventSendMessage        = "send_message"
	EventSendPublicMessage  = "send_public_message"
)

// Fire-and-forget and push events.
const (
	EventMarkMessageRead = "mark_message_read"
	EventNewMessage      = "new_message"
	EventRoomList        = "room_list"
	EventRoomUsersList   = "room_users_list"
	EventDomainInfo      = "domain_info"

	eventAck = "ack"
)

// Frame is the JSON envelope carried on the websocket. Outbound requests set
// Seq; the server acknowledges with an "ack" frame carrying the same Seq.
// Push events arrive with Seq zero.
type Frame struct {
	Event string          `json:"event"`
	Seq   uint64          `json:"seq,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Result is the outcome of a request, decoded at the transport boundary from
// the duck-typed {success, error, ...} acknowledgement payload. Code is set
// only for locally produced failures.
type Result struct {
	OK   bool
	Err  string
	Code string
	Data json.RawMessage
}

func (r Result) Decode(out interface{}) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, out)
}

func decodeResult(data json.RawMessage) Result {
	var ack struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &ack); err != nil {
		return Result{Err: "malformed acknowledgement", Data: data}
	}
	return Result{OK: ack.Success, Err: ack.Error, Data: data}
}

// Handler consumes the data payload of a push event.
type Handler func(data json.RawMessage)

type RegisterPayload struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Fingerprint string `json:"device_fingerprint"`
	APIKey      string `json:"api_key"`
	Origin      string `json:"origin,omitempty"`
	Domain      string `json:"domain"`
}

type RegisterReply struct {
	CustomerID string `json:"customerId"`
}

type ReconnectPayload struct {
	CustomerID string `json:"customerId"`
	APIKey     string `json:"api_key"`
	Domain     string `json:"domain"`
}

type ReconnectReply struct {
	CustomerInfo *entity.Customer `json:"customerInfo,omitempty"`
	JoinedRooms  []entity.Room    `json:"joinedRooms,omitempty"`
	ActiveRoomID string           `json:"activeRoomId,omitempty"`
}

type UpdateInfoPayload struct {
	CustomerID string `json:"customerId"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Domain     string `json:"domain"`
}

type JoinDirectPayload struct {
	CustomerID string `json:"customerId"`
}

type JoinDirectReply struct {
	RoomID         string `json:"roomId"`
	WelcomeMessage string `json:"welcomeMessage,omitempty"`
}

type HistoryPayload struct {
	RoomID string `json:"roomId"`
}

type HistoryReply struct {
	Messages []entity.Message `json:"messages"`
}

type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type PublicRoomPayload struct {
	RoomID string `json:"room_id"`
}

type JoinRoomReply struct {
	Room           *entity.Room `json:"room,omitempty"`
	RoomName       string       `json:"roomName,omitempty"`
	WelcomeMessage string       `json:"welcomeMessage,omitempty"`
}

type PublicRoomsPayload struct {
	IncludeGlobal bool `json:"include_global"`
}

type PublicRoomsReply struct {
	Rooms []entity.Room `json:"rooms"`
}

type SendMessagePayload struct {
	RoomID     string              `json:"room_id"`
	CustomerID string              `json:"customerId,omitempty"`
	Content    string              `json:"content"`
	Type       entity.MessageType  `json:"type"`
	File       *entity.FilePayload `json:"file,omitempty"`
}

type SendReply struct {
	Message struct {
		ID        string    `json:"id"`
		CreatedAt time.Time `json:"createdAt"`
	} `json:"message"`
}

type MarkReadPayload struct {
	MessageID string `json:"messageId"`
}

type RoomListPush struct {
	Rooms []entity.Room `json:"rooms"`
}

type RoomUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type RoomUsersPush struct {
	Users []RoomUser `json:"users"`
}
