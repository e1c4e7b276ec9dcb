package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"supportchat/internal/domain/entity"
	"supportchat/pkg/errors"
	"supportchat/pkg/logger"
)

// HistoryClient fetches room history over plain HTTP. It backs up the
// realtime history request, which can fail while a room is still reachable.
type HistoryClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHistoryClient(baseURL, apiKey string) *HistoryClient {
	return &HistoryClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type historyResponse struct {
	Messages []wireMessage `json:"messages"`
}

type wireMessage struct {
	ID          string    `json:"_id"`
	RoomID      string    `json:"room_id"`
	MessageText string    `json:"message_text"`
	SenderType  string    `json:"sender_type"`
	CreatedAt   time.Time `json:"created_at"`
	FileData    *wireFile `json:"file_data,omitempty"`
}

type wireFile struct {
	OriginalName string `json:"originalname"`
	MimeType     string `json:"mimetype"`
	Path         string `json:"path"`
	Size         int64  `json:"size,omitempty"`
}

// RoomHistory returns the room's messages in server order. The caller sorts.
func (h *HistoryClient) RoomHistory(ctx context.Context, customerID, roomID string) ([]entity.Message, error) {
	url := fmt.Sprintf("%s/api/message/room/%s", h.baseURL, roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Operation("failed to build history request", err)
	}
	req.Header.Set("Customer-ID", customerID)
	req.Header.Set("X-API-Key", h.apiKey)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errors.Operation("history request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("History endpoint returned %d for room %s", resp.StatusCode, roomID)
		return nil, errors.Operation(fmt.Sprintf("history endpoint returned %d", resp.StatusCode), nil)
	}

	var body historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Operation("failed to decode history response", err)
	}

	messages := make([]entity.Message, 0, len(body.Messages))
	for _, wm := range body.Messages {
		messages = append(messages, wm.toEntity(roomID))
	}
	return messages, nil
}

func (wm wireMessage) toEntity(roomID string) entity.Message {
	msg := entity.Message{
		ID:        wm.ID,
		RoomID:    wm.RoomID,
		Sender:    entity.SenderRole(wm.SenderType),
		Type:      entity.MessageText,
		Content:   wm.MessageText,
		CreatedAt: wm.CreatedAt,
	}
	if msg.RoomID == "" {
		msg.RoomID = roomID
	}
	if wm.FileData != nil {
		msg.Type = entity.MessageFile
		msg.File = &entity.FilePayload{
			Name:     wm.FileData.OriginalName,
			MimeType: wm.FileData.MimeType,
			Size:     wm.FileData.Size,
			Data:     wm.FileData.Path,
		}
		if msg.Content == "" {
			msg.Content = wm.FileData.OriginalName
		}
	}
	return msg
}
