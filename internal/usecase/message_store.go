package usecase

import (
	"fmt"
	"sync"
	"time"

	"supportchat/internal/domain/entity"
	"supportchat/pkg/logger"
)

// MessageView is the in-memory stand-in for a rendered message element. The
// store indexes views by identifier (temporary ids included) so reconciliation
// never searches the rendered list.
type MessageView struct {
	ID        string
	RoomID    string
	Sender    entity.SenderRole
	Type      entity.MessageType
	Content   string
	File      *entity.FilePayload
	CreatedAt time.Time
	Transient bool
	Failed    bool
}

// Sink observes view-model changes so an embedding UI can draw them.
type Sink interface {
	Appended(view *MessageView)
	Updated(view *MessageView)
	Cleared()
}

// IngestOutcome says what happened to a pushed message.
type IngestOutcome int

const (
	IngestRendered IngestOutcome = iota
	IngestPromoted
	IngestDiscarded
)

// MessageStore decides whether a message gets rendered and reconciles
// optimistic local echoes with server-confirmed messages. A message
// identifier, once observed, is rendered at most once per session.
type MessageStore struct {
	mu         sync.Mutex
	sink       Sink
	seen       map[string]struct{}
	order      []*MessageView
	index      map[string]*MessageView
	transients []*MessageView
	lastStamp  int64
	now        func() time.Time
}

func NewMessageStore(sink Sink) *MessageStore {
	return &MessageStore{
		sink:  sink,
		seen:  make(map[string]struct{}),
		index: make(map[string]*MessageView),
		now:   time.Now,
	}
}

// nextTempStamp returns a strictly increasing millisecond reading so that
// temporary ids are unique per send even within the same millisecond.
func (s *MessageStore) nextTempStamp() int64 {
	stamp := s.now().UnixMilli()
	if stamp <= s.lastStamp {
		stamp = s.lastStamp + 1
	}
	s.lastStamp = stamp
	return stamp
}

// AppendLocal renders an optimistic local echo and returns its view, tagged
// with a temporary identifier of the form temp-<stamp> (temp-file-<stamp> for
// attachments).
func (s *MessageStore) AppendLocal(msg entity.Message) *MessageView {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := "temp"
	if msg.Type == entity.MessageFile {
		prefix = "temp-file"
	}
	view := &MessageView{
		ID:        fmt.Sprintf("%s-%d", prefix, s.nextTempStamp()),
		RoomID:    msg.RoomID,
		Sender:    msg.Sender,
		Type:      msg.Type,
		Content:   msg.Content,
		File:      msg.File,
		CreatedAt: msg.CreatedAt,
		Transient: true,
	}
	if view.CreatedAt.IsZero() {
		view.CreatedAt = s.now()
	}
	s.append(view)
	s.transients = append(s.transients, view)
	return view
}

// Append renders a message unconditionally, bypassing deduplication. History
// loads and identifier-less system messages come through here.
func (s *MessageStore) Append(msg entity.Message) *MessageView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendMessage(msg)
}

func (s *MessageStore) appendMessage(msg entity.Message) *MessageView {
	view := &MessageView{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		Sender:    msg.Sender,
		Type:      msg.Type,
		Content:   msg.Content,
		File:      msg.File,
		CreatedAt: msg.CreatedAt,
	}
	if msg.ID != "" {
		s.seen[msg.ID] = struct{}{}
	}
	s.append(view)
	return view
}

func (s *MessageStore) append(view *MessageView) {
	s.order = append(s.order, view)
	if view.ID != "" {
		s.index[view.ID] = view
	}
	if s.sink != nil {
		s.sink.Appended(view)
	}
}

// MarkSeen records an identifier as observed without rendering anything.
// Successful send acknowledgements land here before the broadcast echo can.
func (s *MessageStore) MarkSeen(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	s.seen[id] = struct{}{}
	s.mu.Unlock()
}

func (s *MessageStore) Seen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[id]
	return ok
}

// Resolve promotes the transient element carrying tempID to a permanent
// message: identifier rewritten, transient flag cleared, timestamp refreshed
// from the server-provided value when present.
func (s *MessageStore) Resolve(tempID, realID string, createdAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	view, ok := s.index[tempID]
	if !ok || !view.Transient {
		return false
	}
	s.promote(view, realID, createdAt)
	return true
}

func (s *MessageStore) promote(view *MessageView, realID string, createdAt time.Time) {
	delete(s.index, view.ID)
	view.ID = realID
	view.Transient = false
	if !createdAt.IsZero() {
		view.CreatedAt = createdAt
	}
	if realID != "" {
		s.index[realID] = view
		s.seen[realID] = struct{}{}
	}
	s.dropTransient(view)
	if s.sink != nil {
		s.sink.Updated(view)
	}
}

// Fail marks a transient element as errored without removing it. A failed
// element counts as resolved and is no longer eligible for echo matching.
func (s *MessageStore) Fail(tempID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	view, ok := s.index[tempID]
	if !ok || !view.Transient {
		return false
	}
	view.Failed = true
	s.dropTransient(view)
	if s.sink != nil {
		s.sink.Updated(view)
	}
	return true
}

func (s *MessageStore) dropTransient(view *MessageView) {
	for i, t := range s.transients {
		if t == view {
			s.transients = append(s.transients[:i], s.transients[i+1:]...)
			return
		}
	}
}

// Ingest routes a pushed message: identifier-less messages always render;
// already-seen identifiers are discarded silently; a customer-role echo with
// an outstanding transient resolves the oldest unresolved transient instead
// of rendering a duplicate.
func (s *MessageStore) Ingest(msg entity.Message) IngestOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		s.appendMessage(msg)
		return IngestRendered
	}
	if _, ok := s.seen[msg.ID]; ok {
		return IngestDiscarded
	}
	if _, ok := s.index[msg.ID]; ok {
		return IngestDiscarded
	}
	if msg.FromCustomer() && len(s.transients) > 0 {
		logger.Debug("Reconciling broadcast echo %s against oldest transient", msg.ID)
		s.promote(s.transients[0], msg.ID, msg.CreatedAt)
		return IngestPromoted
	}
	s.appendMessage(msg)
	return IngestRendered
}

// Clear discards the rendered view, as happens when navigation leaves a chat
// screen. The seen-identifier set survives so a reloaded view stays
// deduplicated for the rest of the session.
func (s *MessageStore) Clear() {
	s.mu.Lock()
	s.order = nil
	s.index = make(map[string]*MessageView)
	s.transients = nil
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.Cleared()
	}
}

// Views returns a snapshot of the rendered list in display order.
func (s *MessageStore) Views() []MessageView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MessageView, 0, len(s.order))
	for _, v := range s.order {
		out = append(out, *v)
	}
	return out
}

// OutstandingTransients reports how many local echoes are still unresolved.
func (s *MessageStore) OutstandingTransients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transients)
}
