package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServer acks every request and records the query string it was dialed
// with.
type testServer struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	query    string
	silent   bool
	pushes   chan Frame
}

func newTestServer() *testServer {
	return &testServer{pushes: make(chan Frame, 8)}
}

func (s *testServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.query = r.URL.RawQuery
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	go func() {
		for frame := range s.pushes {
			conn.WriteJSON(frame)
		}
	}()

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if s.silent || frame.Seq == 0 {
			continue
		}
		ack, _ := json.Marshal(map[string]interface{}{
			"success": true,
			"echoed":  frame.Event,
		})
		conn.WriteJSON(Frame{Event: "ack", Seq: frame.Seq, Data: ack})
	}
}

func dialTestClient(t *testing.T, server *testServer, timeout time.Duration) *Client {
	t.Helper()
	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)

	client := NewClient(ts.URL, "key-1", "example.com", timeout)
	connected := make(chan struct{})
	client.OnConnect(func() { close(connected) })
	client.Connect()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}
	t.Cleanup(client.Close)
	return client
}

func TestRequestRoundTrip(t *testing.T) {
	server := newTestServer()
	client := dialTestClient(t, server, time.Second)

	res := client.Request(context.Background(), EventGetPublicRooms, PublicRoomsPayload{IncludeGlobal: true})

	require.True(t, res.OK)
	var body struct {
		Echoed string `json:"echoed"`
	}
	require.NoError(t, res.Decode(&body))
	assert.Equal(t, EventGetPublicRooms, body.Echoed)
}

func TestDialCarriesAPIKeyAndDomain(t *testing.T) {
	server := newTestServer()
	dialTestClient(t, server, time.Second)

	server.mu.Lock()
	query := server.query
	server.mu.Unlock()
	assert.Contains(t, query, "api_key=key-1")
	assert.Contains(t, query, "domain=example.com")
}

func TestRequestFailsFastWithoutConnection(t *testing.T) {
	client := NewClient("http://localhost:1", "key", "example.com", time.Second)

	start := time.Now()
	res := client.Request(context.Background(), EventSendMessage, nil)

	assert.False(t, res.OK)
	assert.Equal(t, "NOT_CONNECTED", res.Code)
	// Fail-fast, not a timeout.
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestRequestTimesOutWithoutAck(t *testing.T) {
	server := newTestServer()
	server.silent = true
	client := dialTestClient(t, server, 50*time.Millisecond)

	res := client.Request(context.Background(), EventSendMessage, SendMessagePayload{RoomID: "r1"})

	assert.False(t, res.OK)
	assert.Equal(t, "NO_RESPONSE", res.Code)
}

func TestRequestHonorsContextCancellation(t *testing.T) {
	server := newTestServer()
	server.silent = true
	client := dialTestClient(t, server, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res := client.Request(ctx, EventSendMessage, SendMessagePayload{RoomID: "r1"})
	assert.Equal(t, "NO_RESPONSE", res.Code)
}

func TestPushEventsReachHandler(t *testing.T) {
	server := newTestServer()

	received := make(chan json.RawMessage, 1)
	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)

	client := NewClient(ts.URL, "key", "example.com", time.Second)
	client.Handle(EventNewMessage, func(data json.RawMessage) { received <- data })
	connected := make(chan struct{})
	client.OnConnect(func() { close(connected) })
	client.Connect()
	<-connected
	t.Cleanup(client.Close)

	payload, _ := json.Marshal(map[string]string{"content": "hi"})
	server.pushes <- Frame{Event: EventNewMessage, Data: payload}

	select {
	case data := <-received:
		assert.Contains(t, string(data), "hi")
	case <-time.After(2 * time.Second):
		t.Fatal("push never reached the handler")
	}
}

func TestCloseStopsReconnecting(t *testing.T) {
	server := newTestServer()
	ts := httptest.NewServer(server)

	client := NewClient(ts.URL, "key", "example.com", time.Second)
	connected := make(chan struct{})
	client.OnConnect(func() { close(connected) })
	reconnected := make(chan struct{}, 1)
	client.OnDisconnect(func() { reconnected <- struct{}{} })
	client.Connect()
	<-connected

	client.Close()
	ts.Close()

	// A locally closed client neither reports a disconnect nor redials.
	select {
	case <-reconnected:
		t.Fatal("disconnect callback fired after local close")
	case <-time.After(100 * time.Millisecond):
	}
	assert.False(t, client.Connected())
}

func TestWSURLSchemeConversion(t *testing.T) {
	client := NewClient("https://chat.example.com/", "k", "d", time.Second)
	url := client.wsURL()

	assert.True(t, strings.HasPrefix(url, "wss://chat.example.com/ws?"))
}
