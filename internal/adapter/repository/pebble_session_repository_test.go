package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportchat/internal/domain/entity"
)

func newTestRepo(t *testing.T) *PebbleSessionRepository {
	t.Helper()
	repo, err := NewPebbleSessionRepository(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestCustomerRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	record := entity.CustomerRecord{
		Customer: entity.Customer{ID: "cust-1", Name: "Ana", Email: "ana@example.com"},
		StoredAt: time.Now(),
	}
	require.NoError(t, repo.SaveCustomer(ctx, record))

	loaded, err := repo.LoadCustomer(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "cust-1", loaded.Customer.ID)
	assert.Equal(t, "Ana", loaded.Customer.Name)
}

func TestLoadCustomerMissing(t *testing.T) {
	repo := newTestRepo(t)

	loaded, err := repo.LoadCustomer(context.Background())
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestExpiredCustomerIsCleared(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	record := entity.CustomerRecord{
		Customer: entity.Customer{ID: "cust-1", Name: "Ana"},
		StoredAt: time.Now(),
	}
	require.NoError(t, repo.SaveCustomer(ctx, record))
	require.NoError(t, repo.SaveJoinedRooms(ctx, "cust-1", []entity.Room{{ID: "global"}}))

	// Advance the clock past the retention window.
	repo.now = func() time.Time { return time.Now().Add(entity.CustomerTTL + time.Hour) }

	loaded, err := repo.LoadCustomer(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Expiry wipes the derived keys too.
	rooms, err := repo.LoadJoinedRooms(ctx, "cust-1")
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestJoinedRoomsRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rooms := []entity.Room{
		{ID: "global", Name: "Global", Kind: entity.RoomPublic},
		{ID: "help", Name: "Help", Kind: entity.RoomPublic},
	}
	require.NoError(t, repo.SaveJoinedRooms(ctx, "cust-1", rooms))

	loaded, err := repo.LoadJoinedRooms(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, rooms, loaded)

	// Per-customer isolation.
	other, err := repo.LoadJoinedRooms(ctx, "cust-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestUnreadCountsRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveUnreadCounts(ctx, "cust-1", map[string]int{"global": 3, "help": 1}))

	counts, err := repo.LoadUnreadCounts(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"global": 3, "help": 1}, counts)

	empty, err := repo.LoadUnreadCounts(ctx, "cust-2")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMessageCacheKeepsNewestFifty(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < messageCacheCap+10; i++ {
		msg := entity.Message{
			ID:      fmt.Sprintf("msg-%03d", i),
			RoomID:  "global",
			Sender:  entity.SenderCustomer,
			Content: fmt.Sprintf("message %d", i),
		}
		require.NoError(t, repo.AppendCachedMessage(ctx, "cust-1", "global", msg))
	}

	messages, err := repo.LoadCachedMessages(ctx, "cust-1", "global")
	require.NoError(t, err)
	require.Len(t, messages, messageCacheCap)
	assert.Equal(t, "msg-010", messages[0].ID)
	assert.Equal(t, fmt.Sprintf("msg-%03d", messageCacheCap+9), messages[len(messages)-1].ID)
}

func TestMessageCachePerRoom(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.AppendCachedMessage(ctx, "cust-1", "global", entity.Message{ID: "a"}))
	require.NoError(t, repo.AppendCachedMessage(ctx, "cust-1", "help", entity.Message{ID: "b"}))

	global, err := repo.LoadCachedMessages(ctx, "cust-1", "global")
	require.NoError(t, err)
	require.Len(t, global, 1)
	assert.Equal(t, "a", global[0].ID)
}

func TestClearCustomerRemovesEverything(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveCustomer(ctx, entity.CustomerRecord{
		Customer: entity.Customer{ID: "cust-1"},
		StoredAt: time.Now(),
	}))
	require.NoError(t, repo.SaveJoinedRooms(ctx, "cust-1", []entity.Room{{ID: "global"}}))
	require.NoError(t, repo.SaveUnreadCounts(ctx, "cust-1", map[string]int{"global": 2}))
	require.NoError(t, repo.AppendCachedMessage(ctx, "cust-1", "global", entity.Message{ID: "a"}))
	require.NoError(t, repo.AppendCachedMessage(ctx, "cust-1", "help", entity.Message{ID: "b"}))

	require.NoError(t, repo.ClearCustomer(ctx, "cust-1"))

	loaded, err := repo.LoadCustomer(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	rooms, _ := repo.LoadJoinedRooms(ctx, "cust-1")
	assert.Empty(t, rooms)
	counts, _ := repo.LoadUnreadCounts(ctx, "cust-1")
	assert.Empty(t, counts)
	cached, _ := repo.LoadCachedMessages(ctx, "cust-1", "global")
	assert.Empty(t, cached)
	cached, _ = repo.LoadCachedMessages(ctx, "cust-1", "help")
	assert.Empty(t, cached)
}
