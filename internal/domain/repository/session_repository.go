package repository

import (
	"context"

	"supportchat/internal/domain/entity"
)

// SessionRepository is the durable key-value store behind the widget session:
// customer identity (with a 30-day expiry), joined public rooms, per-room
// unread counters, and a capped recent-message cache per room.
type SessionRepository interface {
	SaveCustomer(ctx context.Context, record entity.CustomerRecord) error
	// LoadCustomer returns nil when no record exists or the stored record has
	// expired; an expired record is removed as a side effect.
	LoadCustomer(ctx context.Context) (*entity.CustomerRecord, error)
	// ClearCustomer removes the identity record and every key derived from it
	// (joined rooms, unread counters, cached messages).
	ClearCustomer(ctx context.Context, customerID string) error

	SaveJoinedRooms(ctx context.Context, customerID string, rooms []entity.Room) error
	LoadJoinedRooms(ctx context.Context, customerID string) ([]entity.Room, error)

	SaveUnreadCounts(ctx context.Context, customerID string, counts map[string]int) error
	LoadUnreadCounts(ctx context.Context, customerID string) (map[string]int, error)

	AppendCachedMessage(ctx context.Context, customerID, roomID string, message entity.Message) error
	LoadCachedMessages(ctx context.Context, customerID, roomID string) ([]entity.Message, error)
	ClearCachedMessages(ctx context.Context, customerID, roomID string) error
}
