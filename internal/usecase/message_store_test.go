package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"supportchat/internal/domain/entity"
)

type recordingSink struct {
	appended []string
	updated  []string
	cleared  int
}

func (r *recordingSink) Appended(view *MessageView) { r.appended = append(r.appended, view.Content) }
func (r *recordingSink) Updated(view *MessageView)  { r.updated = append(r.updated, view.ID) }
func (r *recordingSink) Cleared()                   { r.cleared++ }

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestAppendLocalTempIDsStayUnique(t *testing.T) {
	store := NewMessageStore(nil)
	store.now = fixedClock(time.UnixMilli(1700000000000))

	// Two sends inside the same millisecond must still get distinct ids.
	first := store.AppendLocal(entity.Message{Sender: entity.SenderCustomer, Type: entity.MessageText, Content: "hello"})
	second := store.AppendLocal(entity.Message{Sender: entity.SenderCustomer, Type: entity.MessageText, Content: "hello"})

	assert.Equal(t, "temp-1700000000000", first.ID)
	assert.Equal(t, "temp-1700000000001", second.ID)
	assert.Equal(t, 2, store.OutstandingTransients())
}

func TestAppendLocalFilePrefix(t *testing.T) {
	store := NewMessageStore(nil)
	store.now = fixedClock(time.UnixMilli(42))

	view := store.AppendLocal(entity.Message{
		Sender: entity.SenderCustomer,
		Type:   entity.MessageFile,
		File:   &entity.FilePayload{Name: "invoice.pdf"},
	})

	assert.Equal(t, "temp-file-42", view.ID)
	assert.True(t, view.Transient)
}

func TestResolvePromotesTransient(t *testing.T) {
	sink := &recordingSink{}
	store := NewMessageStore(sink)

	view := store.AppendLocal(entity.Message{Sender: entity.SenderCustomer, Content: "hi"})
	serverTime := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	assert.True(t, store.Resolve(view.ID, "msg-1", serverTime))
	assert.Equal(t, 0, store.OutstandingTransients())
	assert.True(t, store.Seen("msg-1"))

	views := store.Views()
	assert.Len(t, views, 1)
	assert.Equal(t, "msg-1", views[0].ID)
	assert.False(t, views[0].Transient)
	assert.Equal(t, serverTime, views[0].CreatedAt)
	assert.Equal(t, []string{"msg-1"}, sink.updated)
}

func TestResolveUnknownTempID(t *testing.T) {
	store := NewMessageStore(nil)
	assert.False(t, store.Resolve("temp-999", "msg-1", time.Time{}))
}

func TestIngestDiscardsSeenID(t *testing.T) {
	store := NewMessageStore(nil)
	store.MarkSeen("msg-1")

	outcome := store.Ingest(entity.Message{ID: "msg-1", Sender: entity.SenderAgent, Content: "hi"})

	assert.Equal(t, IngestDiscarded, outcome)
	assert.Empty(t, store.Views())
}

func TestIngestRendersExactlyOnce(t *testing.T) {
	store := NewMessageStore(nil)
	msg := entity.Message{ID: "msg-1", Sender: entity.SenderAgent, Content: "hi"}

	assert.Equal(t, IngestRendered, store.Ingest(msg))
	assert.Equal(t, IngestDiscarded, store.Ingest(msg))
	assert.Len(t, store.Views(), 1)
}

func TestIngestPromotesOldestTransient(t *testing.T) {
	store := NewMessageStore(nil)
	store.now = fixedClock(time.UnixMilli(1000))

	// Two identical texts in flight: the broadcast echo must resolve the
	// older one, not render a third copy.
	store.AppendLocal(entity.Message{Sender: entity.SenderCustomer, Content: "same text"})
	store.AppendLocal(entity.Message{Sender: entity.SenderCustomer, Content: "same text"})

	outcome := store.Ingest(entity.Message{ID: "msg-1", Sender: entity.SenderCustomer, Content: "same text"})

	assert.Equal(t, IngestPromoted, outcome)
	assert.Equal(t, 1, store.OutstandingTransients())

	views := store.Views()
	assert.Len(t, views, 2)
	assert.Equal(t, "msg-1", views[0].ID)
	assert.False(t, views[0].Transient)
	assert.True(t, views[1].Transient)
}

func TestIngestAgentMessageNeverPromotes(t *testing.T) {
	store := NewMessageStore(nil)
	store.AppendLocal(entity.Message{Sender: entity.SenderCustomer, Content: "mine"})

	outcome := store.Ingest(entity.Message{ID: "msg-1", Sender: entity.SenderAgent, Content: "theirs"})

	assert.Equal(t, IngestRendered, outcome)
	assert.Equal(t, 1, store.OutstandingTransients())
	assert.Len(t, store.Views(), 2)
}

func TestIngestIdentifierlessAlwaysRenders(t *testing.T) {
	store := NewMessageStore(nil)
	msg := entity.Message{Sender: entity.SenderSystem, Content: "welcome"}

	assert.Equal(t, IngestRendered, store.Ingest(msg))
	assert.Equal(t, IngestRendered, store.Ingest(msg))
	assert.Len(t, store.Views(), 2)
}

func TestFailResolvesTransient(t *testing.T) {
	store := NewMessageStore(nil)
	view := store.AppendLocal(entity.Message{Sender: entity.SenderCustomer, Content: "oops"})

	assert.True(t, store.Fail(view.ID))
	assert.Equal(t, 0, store.OutstandingTransients())

	// A failed element no longer takes part in echo matching.
	outcome := store.Ingest(entity.Message{ID: "msg-1", Sender: entity.SenderCustomer, Content: "oops"})
	assert.Equal(t, IngestRendered, outcome)

	views := store.Views()
	assert.Len(t, views, 2)
	assert.True(t, views[0].Failed)
}

func TestClearKeepsSeenSet(t *testing.T) {
	sink := &recordingSink{}
	store := NewMessageStore(sink)

	store.Ingest(entity.Message{ID: "msg-1", Sender: entity.SenderAgent, Content: "hi"})
	store.Clear()

	assert.Empty(t, store.Views())
	assert.Equal(t, 1, sink.cleared)
	assert.Equal(t, IngestDiscarded, store.Ingest(entity.Message{ID: "msg-1", Sender: entity.SenderAgent, Content: "hi"}))
}
