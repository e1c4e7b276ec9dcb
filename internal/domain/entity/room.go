package entity

type RoomKind string

const (
	RoomDirect RoomKind = "direct"
	RoomPublic RoomKind = "public"
)

type Room struct {
	ID             string   `json:"_id"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Kind           RoomKind `json:"kind,omitempty"`
	MemberCount    int      `json:"member_count,omitempty"`
	WelcomeMessage string   `json:"welcomeMessage,omitempty"`
}
