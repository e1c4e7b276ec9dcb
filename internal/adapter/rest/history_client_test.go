package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportchat/internal/domain/entity"
)

func TestRoomHistoryMapsWireFormat(t *testing.T) {
	var gotPath, gotCustomer string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCustomer = r.Header.Get("Customer-ID")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"messages": [
				{
					"_id": "msg-1",
					"room_id": "room-9",
					"message_text": "hello",
					"sender_type": "agent",
					"created_at": "2026-08-30T10:00:00Z"
				},
				{
					"_id": "msg-2",
					"sender_type": "customer",
					"file_data": {
						"originalname": "photo.png",
						"mimetype": "image/png",
						"path": "/uploads/photo.png"
					}
				}
			]
		}`))
	}))
	defer ts.Close()

	client := NewHistoryClient(ts.URL, "key-1")
	messages, err := client.RoomHistory(context.Background(), "cust-1", "room-9")

	require.NoError(t, err)
	assert.Equal(t, "/api/message/room/room-9", gotPath)
	assert.Equal(t, "cust-1", gotCustomer)
	require.Len(t, messages, 2)

	assert.Equal(t, "msg-1", messages[0].ID)
	assert.Equal(t, "room-9", messages[0].RoomID)
	assert.Equal(t, entity.SenderAgent, messages[0].Sender)
	assert.Equal(t, entity.MessageText, messages[0].Type)
	assert.Equal(t, "hello", messages[0].Content)

	// File entries become file messages; the room id falls back to the
	// requested room when the wire omits it.
	assert.Equal(t, entity.MessageFile, messages[1].Type)
	assert.Equal(t, "room-9", messages[1].RoomID)
	require.NotNil(t, messages[1].File)
	assert.Equal(t, "photo.png", messages[1].File.Name)
	assert.Equal(t, "photo.png", messages[1].Content)
}

func TestRoomHistoryNon200(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer ts.Close()

	client := NewHistoryClient(ts.URL, "key-1")
	_, err := client.RoomHistory(context.Background(), "cust-1", "room-9")

	assert.Error(t, err)
}

func TestRoomHistoryServerUnreachable(t *testing.T) {
	client := NewHistoryClient("http://127.0.0.1:1", "key-1")
	_, err := client.RoomHistory(context.Background(), "cust-1", "room-9")
	assert.Error(t, err)
}
