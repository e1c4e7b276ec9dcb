package stubserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"supportchat/internal/domain/entity"
	"supportchat/internal/infrastructure/transport"
	"supportchat/pkg/logger"
	"supportchat/pkg/response"
	"supportchat/pkg/utils"
)

// Server is an in-memory realtime backend speaking the widget's wire
// protocol. It exists for local development and integration tests; nothing in
// it persists across restarts.
type Server struct {
	echo     *echo.Echo
	upgrader websocket.Upgrader

	mu        sync.RWMutex
	customers map[string]*entity.Customer
	rooms     map[string]*room
	clients   map[*client]struct{}
}

type room struct {
	info     entity.Room
	messages []entity.Message
	members  map[*client]struct{}
}

type client struct {
	conn       *websocket.Conn
	writeMu    sync.Mutex
	customerID string
	activeRoom string
}

func New() *Server {
	s := &Server{
		customers: make(map[string]*entity.Customer),
		rooms:     make(map[string]*room),
		clients:   make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.seedPublicRooms()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.GET("/health", s.handleHealth)
	e.GET("/ws", s.handleWS)
	e.GET("/api/message/room/:roomId", s.handleRoomHistory)

	s.echo = e
	return s
}

// Handler exposes the server for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) seedPublicRooms() {
	for _, info := range []entity.Room{
		{ID: "global", Name: "Global", Description: "Open discussion for everyone", Kind: entity.RoomPublic},
		{ID: "announcements", Name: "Announcements", Description: "Product updates", Kind: entity.RoomPublic, WelcomeMessage: "Welcome to the announcements room."},
	} {
		s.rooms[info.ID] = &room{info: info, members: make(map[*client]struct{})}
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return response.Success(c, map[string]string{"status": "ok"})
}

func (s *Server) handleRoomHistory(c echo.Context) error {
	roomID := c.Param("roomId")
	page := utils.GetPaginationParams(c)

	s.mu.RLock()
	rm, ok := s.rooms[roomID]
	var messages []entity.Message
	if ok {
		messages = append(messages, rm.messages...)
	}
	s.mu.RUnlock()

	if !ok {
		return response.Error(c, http.StatusNotFound, "ROOM_NOT_FOUND", "room not found")
	}

	if page.Offset >= len(messages) {
		messages = nil
	} else {
		messages = messages[page.Offset:]
		if len(messages) > page.PageSize {
			messages = messages[:page.PageSize]
		}
	}

	wire := make([]map[string]interface{}, 0, len(messages))
	for _, msg := range messages {
		entry := map[string]interface{}{
			"_id":          msg.ID,
			"room_id":      msg.RoomID,
			"message_text": msg.Content,
			"sender_type":  msg.Sender,
			"created_at":   msg.CreatedAt,
		}
		if msg.File != nil {
			entry["file_data"] = map[string]interface{}{
				"originalname": msg.File.Name,
				"mimetype":     msg.File.MimeType,
				"path":         msg.File.Data,
				"size":         msg.File.Size,
			}
		}
		wire = append(wire, entry)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"messages": wire})
}

func (s *Server) handleWS(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	cl := &client{conn: conn}

	s.mu.Lock()
	s.clients[cl] = struct{}{}
	s.mu.Unlock()

	cl.push(transport.EventDomainInfo, map[string]string{
		"domain": c.QueryParam("domain"),
		"plan":   "standard",
	})

	go s.serve(cl)
	return nil
}

func (s *Server) serve(cl *client) {
	defer s.dropClient(cl)

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame transport.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			logger.Warn("Stub server dropping malformed frame: %v", err)
			continue
		}
		s.dispatch(cl, frame)
	}
}

func (s *Server) dropClient(cl *client) {
	s.mu.Lock()
	delete(s.clients, cl)
	for _, rm := range s.rooms {
		delete(rm.members, cl)
	}
	s.mu.Unlock()
	cl.conn.Close()
}

func (s *Server) dispatch(cl *client, frame transport.Frame) {
	switch frame.Event {
	case transport.EventCustomerRegister:
		s.register(cl, frame)
	case transport.EventCustomerReconnect:
		s.reconnect(cl, frame)
	case transport.EventUpdateCustomerInfo:
		s.updateInfo(cl, frame)
	case transport.EventJoinDirectChat:
		s.joinDirect(cl, frame)
	case transport.EventGetChatHistory:
		s.chatHistory(cl, frame)
	case transport.EventJoinRoom, transport.EventJoinPublicRoom:
		s.joinRoom(cl, frame)
	case transport.EventLeavePublicRoom:
		s.leaveRoom(cl, frame)
	case transport.EventGetPublicRooms:
		s.publicRooms(cl, frame)
	case transport.EventSendMessage, transport.EventSendPublicMessage:
		s.sendMessage(cl, frame)
	case transport.EventMarkMessageRead:
		// Fire-and-forget; nothing to acknowledge.
	default:
		cl.ack(frame.Seq, map[string]interface{}{
			"success": false,
			"error":   "unknown event " + frame.Event,
		})
	}
}

func (s *Server) register(cl *client, frame transport.Frame) {
	var payload transport.RegisterPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil || payload.Name == "" || payload.Email == "" {
		cl.ack(frame.Seq, map[string]interface{}{"success": false, "error": "invalid registration"})
		return
	}

	customer := &entity.Customer{
		ID:          uuid.New().String(),
		Name:        payload.Name,
		Email:       payload.Email,
		Phone:       payload.Phone,
		Fingerprint: payload.Fingerprint,
		Domain:      payload.Domain,
	}

	s.mu.Lock()
	s.customers[customer.ID] = customer
	s.mu.Unlock()
	cl.customerID = customer.ID

	cl.ack(frame.Seq, map[string]interface{}{"success": true, "customerId": customer.ID})
}

func (s *Server) reconnect(cl *client, frame transport.Frame) {
	var payload transport.ReconnectPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		cl.ack(frame.Seq, map[string]interface{}{"success": false, "error": "invalid reconnect payload"})
		return
	}

	s.mu.RLock()
	customer, ok := s.customers[payload.CustomerID]
	var joined []entity.Room
	for _, rm := range s.rooms {
		if _, member := rm.members[cl]; member {
			joined = append(joined, rm.info)
		}
	}
	s.mu.RUnlock()

	if !ok {
		cl.ack(frame.Seq, map[string]interface{}{"success": false, "error": "customer not found"})
		return
	}
	cl.customerID = customer.ID

	cl.ack(frame.Seq, map[string]interface{}{
		"success":      true,
		"customerInfo": customer,
		"joinedRooms":  joined,
		"activeRoomId": cl.activeRoom,
	})
}

func (s *Server) updateInfo(cl *client, frame transport.Frame) {
	var payload transport.UpdateInfoPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		cl.ack(frame.Seq, map[string]interface{}{"success": false, "error": "invalid update payload"})
		return
	}

	s.mu.Lock()
	customer, ok := s.customers[payload.CustomerID]
	if ok {
		customer.Name = payload.Name
		customer.Email = payload.Email
		customer.Phone = payload.Phone
	}
	s.mu.Unlock()

	if !ok {
		cl.ack(frame.Seq, map[string]interface{}{"success": false, "error": "customer not found"})
		return
	}
	cl.ack(frame.Seq, map[string]interface{}{"success": true})
}

func (s *Server) joinDirect(cl *client, frame transport.Frame) {
	var payload transport.JoinDirectPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		cl.ack(frame.Seq, map[string]interface{}{"success": false, "error": "invalid join payload"})
		return
	}

	s.mu.Lock()
	if _, ok := s.customers[payload.CustomerID]; !ok {
		s.mu.Unlock()
		cl.ack(frame.Seq, map[string]interface{}{"success": false, "error": "customer not found"})
		return
	}
	roomID := "direct-" + payload.CustomerID
	rm, ok := s.rooms[roomID]
	if !ok {
		rm = &room{
			info:    entity.Room{ID: roomID, Name: "Support", Kind: entity.RoomDirect},
			members: make(map[*client]struct{}),
		}
		s.rooms[roomID] = rm
	}
	rm.members[cl] = struct{}{}
	s.mu.Unlock()

	cl.activeRoom = roomID
	cl.ack(frame.Seq, map[string]interface{}{
		"success":        true,
		"roomId":         roomID,
		"welcomeMessage": "You are connected to support.",
	})
}

func (s *Server) chatHistory(cl *client, frame transport.Frame) {
	var payload transport.HistoryPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		cl.ack(frame.Seq, map[string]interface{}{"success": false, "error": "invalid history payload"})
		return
	}

	s.mu.RLock()
	rm, ok := s.rooms[payload.RoomID]
	var messages []entity.Message
	if ok {
		messages = append(messages, rm.messages...)
	}
	s.mu.RUnlock()

	if !ok {
		cl.ack(frame.Seq, map[string]interface{}{"success": false, "error": "room not found"})
		return
	}
	cl.ack(frame.Seq, map[string]interface{}{"success": true, "messages": messages})
}

func (s *Server) joinRoom(cl *client, frame transport.Frame) {
	roomID := roomIDFrom(frame.Data)
	if roomID == "" {
		cl.ack(frame.Seq, map[string]interface{}{"success": false, "error": "missing room id"})
		return
	}

	s.mu.Lock()
	rm, ok := s.rooms[roomID]
	if ok {
		rm.members[cl] = struct{}{}
	}
	s.mu.Unlock()

	if !ok {
		cl.ack(frame.Seq, map[string]interface{}{"success": false, "error": "room not found"})
		return
	}
	cl.activeRoom = roomID

	cl.ack(frame.Seq, map[string]interface{}{
		"success":        true,
		"room":           rm.info,
		"roomName":       rm.info.Name,
		"welcomeMessage": rm.info.WelcomeMessage,
	})
	s.pushRoomUsers(rm)
}

func (s *Server) leaveRoom(cl *client, frame transport.Frame) {
	roomID := roomIDFrom(frame.Data)

	s.mu.Lock()
	rm, ok := s.rooms[roomID]
	if ok {
		delete(rm.members, cl)
	}
	s.mu.Unlock()

	if !ok {
		cl.ack(frame.Seq, map[string]interface{}{"success": false, "error": "room not found"})
		return
	}
	if cl.activeRoom == roomID {
		cl.activeRoom = ""
	}
	cl.ack(frame.Seq, map[string]interface{}{"success": true})
	s.pushRoomUsers(rm)
}

func (s *Server) publicRooms(cl *client, frame transport.Frame) {
	var payload transport.PublicRoomsPayload
	_ = json.Unmarshal(frame.Data, &payload)

	s.mu.RLock()
	rooms := make([]entity.Room, 0, len(s.rooms))
	for _, rm := range s.rooms {
		if rm.info.Kind != entity.RoomPublic {
			continue
		}
		if rm.info.ID == "global" && !payload.IncludeGlobal {
			continue
		}
		info := rm.info
		info.MemberCount = len(rm.members)
		rooms = append(rooms, info)
	}
	s.mu.RUnlock()

	cl.ack(frame.Seq, map[string]interface{}{"success": true, "rooms": rooms})
}

func (s *Server) sendMessage(cl *client, frame transport.Frame) {
	var payload transport.SendMessagePayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil || payload.RoomID == "" {
		cl.ack(frame.Seq, map[string]interface{}{"success": false, "error": "invalid message payload"})
		return
	}

	msg := entity.Message{
		ID:        uuid.New().String(),
		RoomID:    payload.RoomID,
		Sender:    entity.SenderCustomer,
		Type:      payload.Type,
		Content:   payload.Content,
		File:      payload.File,
		CreatedAt: time.Now().UTC(),
	}
	if msg.Type == "" {
		msg.Type = entity.MessageText
	}

	s.mu.Lock()
	rm, ok := s.rooms[payload.RoomID]
	var members []*client
	if ok {
		rm.messages = append(rm.messages, msg)
		for member := range rm.members {
			members = append(members, member)
		}
	}
	s.mu.Unlock()

	if !ok {
		cl.ack(frame.Seq, map[string]interface{}{"success": false, "error": "room not found"})
		return
	}

	cl.ack(frame.Seq, map[string]interface{}{
		"success": true,
		"message": map[string]interface{}{"id": msg.ID, "createdAt": msg.CreatedAt},
	})

	// The sender gets the broadcast too; clients are expected to reconcile it
	// against their optimistic echo.
	for _, member := range members {
		member.push(transport.EventNewMessage, msg)
	}
}

func (s *Server) pushRoomUsers(rm *room) {
	s.mu.RLock()
	users := make([]transport.RoomUser, 0, len(rm.members))
	var members []*client
	for member := range rm.members {
		members = append(members, member)
		if customer, ok := s.customers[member.customerID]; ok {
			users = append(users, transport.RoomUser{ID: customer.ID, Name: customer.Name})
		}
	}
	s.mu.RUnlock()

	for _, member := range members {
		member.push(transport.EventRoomUsersList, transport.RoomUsersPush{Users: users})
	}
}

// AgentSend injects an agent-authored message into a room. Tests and demos
// use it to simulate the other side of the conversation.
func (s *Server) AgentSend(roomID, content string) (entity.Message, bool) {
	msg := entity.Message{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Sender:    entity.SenderAgent,
		Type:      entity.MessageText,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	rm, ok := s.rooms[roomID]
	var members []*client
	if ok {
		rm.messages = append(rm.messages, msg)
		for member := range rm.members {
			members = append(members, member)
		}
	}
	s.mu.Unlock()

	if !ok {
		return entity.Message{}, false
	}
	for _, member := range members {
		member.push(transport.EventNewMessage, msg)
	}
	return msg, true
}

func roomIDFrom(data json.RawMessage) string {
	var payload struct {
		RoomID      string `json:"roomId"`
		RoomIDSnake string `json:"room_id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	if payload.RoomID != "" {
		return payload.RoomID
	}
	return payload.RoomIDSnake
}

func (cl *client) ack(seq uint64, payload interface{}) {
	cl.write(transport.Frame{Event: "ack", Seq: seq, Data: marshal(payload)})
}

func (cl *client) push(event string, payload interface{}) {
	cl.write(transport.Frame{Event: event, Data: marshal(payload)})
}

func (cl *client) write(frame transport.Frame) {
	cl.writeMu.Lock()
	defer cl.writeMu.Unlock()
	if err := cl.conn.WriteJSON(frame); err != nil {
		logger.Debug("Stub server write failed: %v", err)
	}
}

func marshal(payload interface{}) json.RawMessage {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Stub server failed to marshal payload: %v", err)
		return json.RawMessage(`{}`)
	}
	return data
}
