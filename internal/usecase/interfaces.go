package usecase

import (
	"context"

	"supportchat/internal/domain/entity"
	"supportchat/internal/infrastructure/transport"
)

// Transport is the realtime connection the session talks through. The
// concrete implementation lives in infrastructure/transport.
type Transport interface {
	Connect()
	Close()
	Connected() bool
	Request(ctx context.Context, event string, payload interface{}) transport.Result
	Notify(event string, payload interface{}) error
	Handle(event string, fn transport.Handler)
	OnConnect(fn func())
	OnDisconnect(fn func())
	OnReconnectExhausted(fn func())
}

// HistoryFallback fetches room history over REST when the realtime request
// fails.
type HistoryFallback interface {
	RoomHistory(ctx context.Context, customerID, roomID string) ([]entity.Message, error)
}

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notifier receives toast-style notifications. Rendering them is the
// embedder's job.
type Notifier interface {
	Notify(level Level, message string)
}
