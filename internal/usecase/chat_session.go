package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"supportchat/internal/domain/entity"
	"supportchat/internal/domain/repository"
	"supportchat/internal/infrastructure/transport"
	"supportchat/pkg/errors"
	"supportchat/pkg/logger"
)

// maxFileSize bounds inline attachments at 5MB.
const maxFileSize = 5 * 1024 * 1024

// ChatSession is the single authority behind the widget: every realtime
// request goes through its connected/registered gates, and every outcome is
// turned into the matching view transition and notification.
type ChatSession struct {
	transport Transport
	sessions  repository.SessionRepository
	history   HistoryFallback
	store     *MessageStore
	views     *ViewController
	notifier  Notifier
	validate  *validator.Validate

	apiKey string
	domain string

	mu          sync.Mutex
	customer    *entity.Customer
	registered  bool
	activeRoom  string
	joinedRooms []entity.Room
	publicRooms []entity.Room
	unread      map[string]int
	totalUnread int
	roomUsers   []transport.RoomUser
	domainInfo  json.RawMessage
}

type RegistrationInput struct {
	Name       string `validate:"required"`
	Email      string `validate:"required,email"`
	Phone      string `validate:"required"`
	NextAction NextAction
}

func NewChatSession(
	t Transport,
	sessions repository.SessionRepository,
	history HistoryFallback,
	store *MessageStore,
	views *ViewController,
	notifier Notifier,
	apiKey, domain string,
) *ChatSession {
	s := &ChatSession{
		transport: t,
		sessions:  sessions,
		history:   history,
		store:     store,
		views:     views,
		notifier:  notifier,
		validate:  validator.New(),
		apiKey:    apiKey,
		domain:    domain,
		unread:    make(map[string]int),
	}

	t.Handle(transport.EventNewMessage, s.handleNewMessage)
	t.Handle(transport.EventRoomList, s.handleRoomList)
	t.Handle(transport.EventRoomUsersList, s.handleRoomUsers)
	t.Handle(transport.EventDomainInfo, s.handleDomainInfo)
	t.OnConnect(s.handleConnected)
	t.OnDisconnect(func() {
		s.notifier.Notify(LevelWarning, "Connection to the server was lost. Reconnecting...")
	})
	t.OnReconnectExhausted(func() {
		s.notifier.Notify(LevelError, "Could not reach the server after several attempts. Please reload the page.")
	})

	return s
}

// Start restores any persisted session, routes to the initial screen and
// opens the transport.
func (s *ChatSession) Start(ctx context.Context) error {
	record, err := s.sessions.LoadCustomer(ctx)
	if err != nil {
		logger.Error("Failed to load stored customer: %v", err)
	}

	if record != nil {
		customer := record.Customer
		rooms, err := s.sessions.LoadJoinedRooms(ctx, customer.ID)
		if err != nil {
			logger.Error("Failed to load joined rooms: %v", err)
		}
		counts, err := s.sessions.LoadUnreadCounts(ctx, customer.ID)
		if err != nil {
			logger.Error("Failed to load unread counters: %v", err)
		}
		if counts == nil {
			counts = make(map[string]int)
		}

		s.mu.Lock()
		s.customer = &customer
		s.registered = true
		s.joinedRooms = rooms
		s.unread = counts
		s.totalUnread = sumCounts(counts)
		s.mu.Unlock()

		logger.Info("Restored session for customer %s with %d joined rooms", customer.ID, len(rooms))
		s.views.Show(ViewWelcome)
	} else {
		s.views.ShowRegister(RegisterFresh, NextDirect)
	}

	s.transport.Connect()
	return nil
}

// Close releases the transport. Persisted state stays behind for next start.
func (s *ChatSession) Close() {
	s.transport.Close()
}

func (s *ChatSession) Registered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered
}

func (s *ChatSession) Customer() *entity.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.customer == nil {
		return nil
	}
	c := *s.customer
	return &c
}

func (s *ChatSession) ActiveRoom() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRoom
}

func (s *ChatSession) JoinedRooms() []entity.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.Room(nil), s.joinedRooms...)
}

func (s *ChatSession) PublicRooms() []entity.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.Room(nil), s.publicRooms...)
}

func (s *ChatSession) RoomUsers() []transport.RoomUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.RoomUser(nil), s.roomUsers...)
}

// DomainInfo returns the raw domain_info push, if one has arrived.
func (s *ChatSession) DomainInfo() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(json.RawMessage(nil), s.domainInfo...)
}

// Register validates the signup form locally, then exchanges it for a
// server-assigned customer id and routes to the originally requested room
// kind.
func (s *ChatSession) Register(ctx context.Context, input RegistrationInput) error {
	if err := s.validate.Struct(input); err != nil {
		s.notifier.Notify(LevelError, "Name, email and phone are all required.")
		return errors.Validation("name, email and phone are required", err)
	}
	if !s.transport.Connected() {
		s.notifier.Notify(LevelError, "No connection to the server. Please try again shortly.")
		return errors.NotConnected()
	}

	s.notifier.Notify(LevelInfo, "Registering your details...")

	payload := transport.RegisterPayload{
		Name:        input.Name,
		Email:       input.Email,
		Phone:       input.Phone,
		Fingerprint: deviceFingerprint(),
		APIKey:      s.apiKey,
		Domain:      s.domain,
	}
	res := s.transport.Request(ctx, transport.EventCustomerRegister, payload)
	if !res.OK {
		logger.Warn("Registration failed: %s", failureText(res))
		s.notifier.Notify(LevelError, orDefault(res.Err, "Registration failed. Please try again."))
		return errors.Operation("registration failed", nil)
	}

	var reply transport.RegisterReply
	if err := res.Decode(&reply); err != nil || reply.CustomerID == "" {
		logger.Error("Registration reply missing customer id: %v", err)
		s.notifier.Notify(LevelError, "Registration failed. Please try again.")
		return errors.Operation("registration reply missing customer id", err)
	}

	customer := entity.Customer{
		ID:          reply.CustomerID,
		Name:        input.Name,
		Email:       input.Email,
		Phone:       input.Phone,
		Fingerprint: payload.Fingerprint,
		Domain:      s.domain,
	}

	s.mu.Lock()
	s.customer = &customer
	s.registered = true
	s.mu.Unlock()

	if err := s.sessions.SaveCustomer(ctx, entity.CustomerRecord{Customer: customer, StoredAt: time.Now()}); err != nil {
		logger.Error("Failed to persist customer: %v", err)
	}

	logger.Info("Registered customer %s", customer.ID)
	s.notifier.Notify(LevelSuccess, "Registration successful!")

	return s.routeNextAction(ctx, input.NextAction)
}

// UpdateInfo pushes edited contact details to the server and merges them into
// the persisted session.
func (s *ChatSession) UpdateInfo(ctx context.Context, input RegistrationInput) error {
	if err := s.validate.Struct(input); err != nil {
		s.notifier.Notify(LevelError, "Name, email and phone are all required.")
		return errors.Validation("name, email and phone are required", err)
	}
	if !s.transport.Connected() {
		s.notifier.Notify(LevelError, "No connection to the server. Please try again shortly.")
		return errors.NotConnected()
	}
	customer := s.Customer()
	if customer == nil {
		s.notifier.Notify(LevelError, "Please register before updating your details.")
		s.views.ShowRegister(RegisterFresh, input.NextAction)
		return errors.NotRegistered()
	}

	s.notifier.Notify(LevelInfo, "Updating your details...")

	res := s.transport.Request(ctx, transport.EventUpdateCustomerInfo, transport.UpdateInfoPayload{
		CustomerID: customer.ID,
		Name:       input.Name,
		Email:      input.Email,
		Phone:      input.Phone,
		Domain:     s.domain,
	})
	if !res.OK {
		logger.Warn("Customer info update failed: %s", failureText(res))
		s.notifier.Notify(LevelError, orDefault(res.Err, "Update failed. Please try again."))
		return errors.Operation("customer info update failed", nil)
	}

	s.mu.Lock()
	s.customer.Name = input.Name
	s.customer.Email = input.Email
	s.customer.Phone = input.Phone
	updated := *s.customer
	s.mu.Unlock()

	if err := s.sessions.SaveCustomer(ctx, entity.CustomerRecord{Customer: updated, StoredAt: time.Now()}); err != nil {
		logger.Error("Failed to persist customer: %v", err)
	}

	s.notifier.Notify(LevelSuccess, "Details updated!")
	return s.routeNextAction(ctx, input.NextAction)
}

func (s *ChatSession) routeNextAction(ctx context.Context, next NextAction) error {
	if next == NextPublic {
		return s.ShowPublicRooms(ctx)
	}
	return s.StartDirectChat(ctx)
}

// StartDirectChat opens the one-to-one support room, creating it implicitly
// on the server side.
func (s *ChatSession) StartDirectChat(ctx context.Context) error {
	customer := s.Customer()
	if customer == nil {
		s.notifier.Notify(LevelError, "Please register before chatting with support.")
		s.views.ShowRegister(RegisterFresh, NextDirect)
		return errors.NotRegistered()
	}

	s.views.Show(ViewDirectChat)
	s.store.Clear()
	s.displaySystem("Connecting you to a support agent...")

	res := s.transport.Request(ctx, transport.EventJoinDirectChat, transport.JoinDirectPayload{CustomerID: customer.ID})
	if !res.OK {
		logger.Warn("Joining direct chat failed: %s", failureText(res))
		if isCustomerNotFound(res.Err) {
			s.invalidateSession(ctx, NextDirect)
			return errors.CustomerNotFound(res.Err)
		}
		s.notifier.Notify(LevelError, orDefault(res.Err, "Could not reach support. Please try again later."))
		s.displaySystem("Could not connect you to a support agent. Please try again later.")
		return errors.Operation("join direct chat failed", nil)
	}

	var reply transport.JoinDirectReply
	if err := res.Decode(&reply); err != nil {
		logger.Error("Malformed join_direct_chat reply: %v", err)
	}

	s.mu.Lock()
	s.activeRoom = reply.RoomID
	s.mu.Unlock()

	// History replaces the rendered view, so it goes in before the welcome
	// line.
	s.LoadHistory(ctx, reply.RoomID)
	s.displaySystem(orDefault(reply.WelcomeMessage, "Welcome to the support chat. An agent will be with you shortly."))
	return nil
}

// JoinRoom enters a named room and renders its history.
func (s *ChatSession) JoinRoom(ctx context.Context, roomID string) error {
	res := s.transport.Request(ctx, transport.EventJoinRoom, transport.JoinRoomPayload{RoomID: roomID})
	if !res.OK {
		logger.Warn("Joining room %s failed: %s", roomID, failureText(res))
		s.notifier.Notify(LevelError, orDefault(res.Err, "Could not join the room. Please try again later."))
		return errors.Operation("join room failed", nil)
	}

	var reply transport.JoinRoomReply
	if err := res.Decode(&reply); err != nil {
		logger.Error("Malformed join_room reply: %v", err)
	}

	s.mu.Lock()
	s.activeRoom = roomID
	if reply.Room != nil && !containsRoom(s.joinedRooms, roomID) {
		s.joinedRooms = append(s.joinedRooms, *reply.Room)
	}
	s.mu.Unlock()

	s.views.Show(ViewChatRoom)
	s.store.Clear()
	s.LoadHistory(ctx, roomID)
	return nil
}

// ShowPublicRooms fetches the public room catalogue and switches to it.
func (s *ChatSession) ShowPublicRooms(ctx context.Context) error {
	if s.Customer() == nil {
		s.notifier.Notify(LevelError, "Please register before browsing public rooms.")
		s.views.ShowRegister(RegisterFresh, NextPublic)
		return errors.NotRegistered()
	}

	s.notifier.Notify(LevelInfo, "Loading public rooms...")

	res := s.transport.Request(ctx, transport.EventGetPublicRooms, transport.PublicRoomsPayload{IncludeGlobal: true})
	if !res.OK {
		logger.Warn("Fetching public rooms failed: %s", failureText(res))
		s.notifier.Notify(LevelError, orDefault(res.Err, "Could not load public rooms. Please try again later."))
		return errors.Operation("get public rooms failed", nil)
	}

	var reply transport.PublicRoomsReply
	if err := res.Decode(&reply); err != nil {
		logger.Error("Malformed get_public_rooms reply: %v", err)
	}

	s.mu.Lock()
	s.publicRooms = reply.Rooms
	s.mu.Unlock()

	s.views.Show(ViewPublicRooms)
	return nil
}

// JoinPublicRoom enters a public room, records the membership durably and
// renders the room.
func (s *ChatSession) JoinPublicRoom(ctx context.Context, roomID string) error {
	customer := s.Customer()
	if customer == nil {
		s.notifier.Notify(LevelError, "Please register before joining a room.")
		s.views.ShowRegister(RegisterFresh, NextPublic)
		return errors.NotRegistered()
	}

	s.notifier.Notify(LevelInfo, "Joining the room...")

	res := s.transport.Request(ctx, transport.EventJoinPublicRoom, transport.PublicRoomPayload{RoomID: roomID})
	if !res.OK {
		logger.Warn("Joining public room %s failed: %s", roomID, failureText(res))
		s.notifier.Notify(LevelError, orDefault(res.Err, "Could not join the room. Please try again later."))
		return errors.Operation("join public room failed", nil)
	}

	var reply transport.JoinRoomReply
	if err := res.Decode(&reply); err != nil {
		logger.Error("Malformed join_public_room reply: %v", err)
	}

	s.mu.Lock()
	s.activeRoom = roomID
	room := findRoom(s.publicRooms, roomID)
	if room == nil {
		room = reply.Room
	}
	if room == nil {
		room = &entity.Room{ID: roomID, Name: orDefault(reply.RoomName, "Public room"), Kind: entity.RoomPublic}
	}
	if !containsRoom(s.joinedRooms, roomID) {
		s.joinedRooms = append(s.joinedRooms, *room)
	}
	rooms := append([]entity.Room(nil), s.joinedRooms...)
	s.mu.Unlock()

	if err := s.sessions.SaveJoinedRooms(ctx, customer.ID, rooms); err != nil {
		logger.Error("Failed to persist joined rooms: %v", err)
	}

	s.views.Show(ViewPublicChat)
	s.store.Clear()
	s.LoadHistory(ctx, roomID)
	s.displaySystem(orDefault(reply.WelcomeMessage, "Welcome to the public chat room."))
	return nil
}

// LeavePublicRoom drops membership of the active public room and returns to
// the room catalogue.
func (s *ChatSession) LeavePublicRoom(ctx context.Context) error {
	customer := s.Customer()
	roomID := s.ActiveRoom()
	if customer == nil || roomID == "" {
		logger.Warn("Leave requested with no active public room")
		return nil
	}

	s.notifier.Notify(LevelInfo, "Leaving the room...")

	res := s.transport.Request(ctx, transport.EventLeavePublicRoom, transport.PublicRoomPayload{RoomID: roomID})
	if !res.OK {
		logger.Warn("Leaving public room %s failed: %s", roomID, failureText(res))
		s.notifier.Notify(LevelError, orDefault(res.Err, "Could not leave the room. Please try again later."))
		return errors.Operation("leave public room failed", nil)
	}

	s.mu.Lock()
	s.joinedRooms = removeRoom(s.joinedRooms, roomID)
	rooms := append([]entity.Room(nil), s.joinedRooms...)
	s.activeRoom = ""
	s.mu.Unlock()

	if err := s.sessions.SaveJoinedRooms(ctx, customer.ID, rooms); err != nil {
		logger.Error("Failed to persist joined rooms: %v", err)
	}

	s.notifier.Notify(LevelSuccess, "You left the room.")
	return s.ShowPublicRooms(ctx)
}

// SendText renders an optimistic echo, dispatches the send and reconciles the
// acknowledgement against the transient element.
func (s *ChatSession) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.send(ctx, entity.Message{
		RoomID:  s.ActiveRoom(),
		Sender:  entity.SenderCustomer,
		Type:    entity.MessageText,
		Content: text,
	})
}

// SendFile ships an attachment inline. Files above 5MB are rejected locally.
func (s *ChatSession) SendFile(ctx context.Context, file entity.FilePayload) error {
	if file.Size > maxFileSize {
		s.notifier.Notify(LevelError, "Files must not exceed 5MB.")
		return errors.Validation("file too large", nil)
	}

	s.notifier.Notify(LevelInfo, "Uploading the file...")

	err := s.send(ctx, entity.Message{
		RoomID:  s.ActiveRoom(),
		Sender:  entity.SenderCustomer,
		Type:    entity.MessageFile,
		Content: file.Name,
		File:    &file,
	})
	if err == nil {
		s.notifier.Notify(LevelSuccess, "File uploaded.")
	}
	return err
}

func (s *ChatSession) send(ctx context.Context, msg entity.Message) error {
	if msg.RoomID == "" {
		s.notifier.Notify(LevelError, "You have not joined a room yet.")
		return errors.Operation("no active room", nil)
	}

	customer := s.Customer()
	if customer == nil {
		s.notifier.Notify(LevelError, "Please register before sending messages.")
		return errors.NotRegistered()
	}

	// Optimistic render happens before the request is dispatched.
	view := s.store.AppendLocal(msg)
	tempID := view.ID

	event := transport.EventSendMessage
	if s.views.Current() == ViewPublicChat {
		event = transport.EventSendPublicMessage
	}

	res := s.transport.Request(ctx, event, transport.SendMessagePayload{
		RoomID:     msg.RoomID,
		CustomerID: customer.ID,
		Content:    msg.Content,
		Type:       msg.Type,
		File:       msg.File,
	})
	if !res.OK {
		logger.Warn("Send on %s failed: %s", msg.RoomID, failureText(res))
		s.store.Fail(tempID)
		s.notifier.Notify(LevelError, orDefault(res.Err, "Could not send the message. Please try again."))
		return errors.Operation("send failed", nil)
	}

	var reply transport.SendReply
	if err := res.Decode(&reply); err != nil || reply.Message.ID == "" {
		logger.Warn("Send acknowledged without a message id")
		return nil
	}

	s.store.MarkSeen(reply.Message.ID)
	s.store.Resolve(tempID, reply.Message.ID, reply.Message.CreatedAt)

	confirmed := msg
	confirmed.ID = reply.Message.ID
	confirmed.CreatedAt = reply.Message.CreatedAt
	if err := s.sessions.AppendCachedMessage(ctx, customer.ID, msg.RoomID, confirmed); err != nil {
		logger.Error("Failed to cache sent message: %v", err)
	}
	return nil
}

// MarkMessageRead issues the fire-and-forget read receipt.
func (s *ChatSession) MarkMessageRead(messageID string) {
	if err := s.transport.Notify(transport.EventMarkMessageRead, transport.MarkReadPayload{MessageID: messageID}); err != nil {
		logger.Debug("mark_message_read dropped: %v", err)
	}
}

// LoadHistory replaces the rendered view with the room's history, oldest
// first, falling back to the REST endpoint when the realtime request fails.
func (s *ChatSession) LoadHistory(ctx context.Context, roomID string) {
	res := s.transport.Request(ctx, transport.EventGetChatHistory, transport.HistoryPayload{RoomID: roomID})
	if res.OK {
		var reply transport.HistoryReply
		if err := res.Decode(&reply); err != nil {
			logger.Error("Malformed chat history reply: %v", err)
			return
		}
		s.renderHistory(reply.Messages)
		return
	}

	logger.Warn("Realtime history fetch for %s failed (%s), falling back to REST", roomID, failureText(res))

	customer := s.Customer()
	if customer == nil || s.history == nil {
		return
	}
	messages, err := s.history.RoomHistory(ctx, customer.ID, roomID)
	if err != nil {
		logger.Error("REST history fallback failed: %v", err)
		return
	}
	s.renderHistory(messages)
}

func (s *ChatSession) renderHistory(messages []entity.Message) {
	sorted := append([]entity.Message(nil), messages...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	s.store.Clear()
	for _, msg := range sorted {
		s.store.Append(msg)
	}
}

// Logout clears the persisted identity and every in-memory trace of it.
func (s *ChatSession) Logout(ctx context.Context) error {
	customer := s.Customer()
	customerID := ""
	if customer != nil {
		customerID = customer.ID
	}
	if err := s.sessions.ClearCustomer(ctx, customerID); err != nil {
		logger.Error("Failed to clear stored session: %v", err)
	}
	s.resetSession()
	s.views.Show(ViewWelcome)
	return nil
}

// NavigateBack performs the state-specific back transition. Leaving a public
// chat returns to the room catalogue without leaving the room.
func (s *ChatSession) NavigateBack(ctx context.Context) {
	if s.views.Current() == ViewPublicChat {
		s.ShowPublicRooms(ctx)
		return
	}
	s.views.Back()
}

// TotalUnread is the aggregate across all rooms.
func (s *ChatSession) TotalUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalUnread
}

func (s *ChatSession) UnreadFor(roomID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[roomID]
}

// ResetUnread is the dedicated counter reset; switching rooms never zeroes
// counters implicitly.
func (s *ChatSession) ResetUnread(ctx context.Context, roomID string) {
	s.mu.Lock()
	delete(s.unread, roomID)
	s.totalUnread = sumCounts(s.unread)
	counts := copyCounts(s.unread)
	customerID := ""
	if s.customer != nil {
		customerID = s.customer.ID
	}
	s.mu.Unlock()

	if customerID != "" {
		if err := s.sessions.SaveUnreadCounts(ctx, customerID, counts); err != nil {
			logger.Error("Failed to persist unread counters: %v", err)
		}
	}
}

func (s *ChatSession) handleConnected() {
	customer := s.Customer()
	if customer == nil {
		return
	}

	ctx := context.Background()
	res := s.transport.Request(ctx, transport.EventCustomerReconnect, transport.ReconnectPayload{
		CustomerID: customer.ID,
		APIKey:     s.apiKey,
		Domain:     s.domain,
	})
	if !res.OK {
		logger.Warn("Customer reconnect failed: %s", failureText(res))
		if isCustomerNotFound(res.Err) {
			s.invalidateSession(ctx, NextDirect)
			return
		}
		s.notifier.Notify(LevelError, orDefault(res.Err, "Reconnect failed. Please try again later."))
		return
	}

	var reply transport.ReconnectReply
	if err := res.Decode(&reply); err != nil {
		logger.Error("Malformed customer_reconnect reply: %v", err)
	}

	s.mu.Lock()
	if reply.CustomerInfo != nil {
		info := *reply.CustomerInfo
		if info.ID == "" {
			info.ID = customer.ID
		}
		s.customer = &info
	}
	if reply.JoinedRooms != nil {
		s.joinedRooms = reply.JoinedRooms
	}
	if reply.ActiveRoomID != "" {
		s.activeRoom = reply.ActiveRoomID
	}
	merged := *s.customer
	rooms := append([]entity.Room(nil), s.joinedRooms...)
	activeRoom := s.activeRoom
	s.mu.Unlock()

	if err := s.sessions.SaveCustomer(ctx, entity.CustomerRecord{Customer: merged, StoredAt: time.Now()}); err != nil {
		logger.Error("Failed to persist customer after reconnect: %v", err)
	}
	if err := s.sessions.SaveJoinedRooms(ctx, merged.ID, rooms); err != nil {
		logger.Error("Failed to persist joined rooms after reconnect: %v", err)
	}

	s.notifier.Notify(LevelSuccess, "Reconnected!")

	// Re-enter the room the user was looking at, if any.
	switch s.views.Current() {
	case ViewDirectChat:
		s.StartDirectChat(ctx)
	case ViewPublicChat:
		if activeRoom != "" {
			s.JoinPublicRoom(ctx, activeRoom)
		}
	case ViewChatRoom:
		if activeRoom != "" {
			s.JoinRoom(ctx, activeRoom)
		}
	}
}

func (s *ChatSession) handleNewMessage(data json.RawMessage) {
	var msg entity.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Warn("Dropping malformed new_message push: %v", err)
		return
	}

	s.mu.Lock()
	activeRoom := s.activeRoom
	customerID := ""
	if s.customer != nil {
		customerID = s.customer.ID
	}
	s.mu.Unlock()

	if msg.RoomID != "" && msg.RoomID != activeRoom {
		// Not on screen: count it instead of rendering it. The customer's own
		// echoes never count against them.
		if !msg.FromCustomer() {
			s.bumpUnread(msg.RoomID)
		}
		return
	}

	outcome := s.store.Ingest(msg)
	if outcome == IngestRendered && msg.ID != "" && customerID != "" {
		if err := s.sessions.AppendCachedMessage(context.Background(), customerID, msg.RoomID, msg); err != nil {
			logger.Error("Failed to cache received message: %v", err)
		}
	}
}

func (s *ChatSession) handleRoomList(data json.RawMessage) {
	var push transport.RoomListPush
	if err := json.Unmarshal(data, &push); err != nil {
		logger.Warn("Dropping malformed room_list push: %v", err)
		return
	}
	s.mu.Lock()
	s.publicRooms = push.Rooms
	s.mu.Unlock()
}

func (s *ChatSession) handleRoomUsers(data json.RawMessage) {
	var push transport.RoomUsersPush
	if err := json.Unmarshal(data, &push); err != nil {
		logger.Warn("Dropping malformed room_users_list push: %v", err)
		return
	}
	s.mu.Lock()
	s.roomUsers = push.Users
	s.mu.Unlock()
}

func (s *ChatSession) handleDomainInfo(data json.RawMessage) {
	s.mu.Lock()
	s.domainInfo = append(json.RawMessage(nil), data...)
	s.mu.Unlock()
}

func (s *ChatSession) bumpUnread(roomID string) {
	s.mu.Lock()
	s.unread[roomID]++
	s.totalUnread = sumCounts(s.unread)
	counts := copyCounts(s.unread)
	customerID := ""
	if s.customer != nil {
		customerID = s.customer.ID
	}
	s.mu.Unlock()

	if customerID != "" {
		if err := s.sessions.SaveUnreadCounts(context.Background(), customerID, counts); err != nil {
			logger.Error("Failed to persist unread counters: %v", err)
		}
	}
}

// invalidateSession is the response to the server no longer knowing this
// customer: wipe the identity and force a fresh registration.
func (s *ChatSession) invalidateSession(ctx context.Context, next NextAction) {
	customer := s.Customer()
	customerID := ""
	if customer != nil {
		customerID = customer.ID
	}
	if err := s.sessions.ClearCustomer(ctx, customerID); err != nil {
		logger.Error("Failed to clear invalidated session: %v", err)
	}
	s.resetSession()
	s.notifier.Notify(LevelWarning, "Your saved details are no longer valid. Please register again.")
	s.views.ShowRegister(RegisterFresh, next)
}

func (s *ChatSession) resetSession() {
	s.mu.Lock()
	s.customer = nil
	s.registered = false
	s.activeRoom = ""
	s.joinedRooms = nil
	s.unread = make(map[string]int)
	s.totalUnread = 0
	s.roomUsers = nil
	s.mu.Unlock()
	s.store.Clear()
}

func (s *ChatSession) displaySystem(content string) {
	s.store.Append(entity.Message{
		Sender:    entity.SenderSystem,
		Type:      entity.MessageText,
		Content:   content,
		CreatedAt: time.Now(),
	})
}

func isCustomerNotFound(errText string) bool {
	return strings.Contains(strings.ToLower(errText), "not found")
}

func failureText(res transport.Result) string {
	if res.Err != "" {
		return res.Err
	}
	return "no response"
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func sumCounts(counts map[string]int) int {
	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}

func copyCounts(counts map[string]int) map[string]int {
	out := make(map[string]int, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out
}

func containsRoom(rooms []entity.Room, roomID string) bool {
	return findRoom(rooms, roomID) != nil
}

func findRoom(rooms []entity.Room, roomID string) *entity.Room {
	for i := range rooms {
		if rooms[i].ID == roomID {
			return &rooms[i]
		}
	}
	return nil
}

func removeRoom(rooms []entity.Room, roomID string) []entity.Room {
	out := rooms[:0]
	for _, room := range rooms {
		if room.ID != roomID {
			out = append(out, room)
		}
	}
	return out
}

// deviceFingerprint derives a stable 32-character identifier from host
// attributes, mirroring what the widget reports at registration.
func deviceFingerprint() string {
	host, _ := os.Hostname()
	components := []string{
		host,
		runtime.GOOS,
		runtime.GOARCH,
		strconv.Itoa(runtime.NumCPU()),
		time.Now().Location().String(),
	}
	sum := sha256.Sum256([]byte(strings.Join(components, "###")))
	encoded := base64.RawStdEncoding.EncodeToString(sum[:])
	if len(encoded) > 32 {
		encoded = encoded[:32]
	}
	return encoded
}
