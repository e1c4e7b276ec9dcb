package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/pebble/v2"

	"supportchat/internal/domain/entity"
	"supportchat/internal/domain/repository"
	"supportchat/pkg/errors"
	"supportchat/pkg/logger"
)

const (
	customerKey    = "customer"
	roomsKeyPrefix = "rooms/"
	unreadPrefix   = "unread/"
	msgCachePrefix = "msgs/"

	// messageCacheCap bounds the recent-message cache kept per room.
	messageCacheCap = 50
)

type PebbleSessionRepository struct {
	db  *pebble.DB
	now func() time.Time
}

func NewPebbleSessionRepository(dir string) (*PebbleSessionRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Storage("failed to create data directory", err)
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, errors.Storage("failed to open session store", err)
	}
	return &PebbleSessionRepository{db: db, now: time.Now}, nil
}

func (r *PebbleSessionRepository) Close() error {
	return r.db.Close()
}

func (r *PebbleSessionRepository) SaveCustomer(ctx context.Context, record entity.CustomerRecord) error {
	return r.setJSON(customerKey, record)
}

func (r *PebbleSessionRepository) LoadCustomer(ctx context.Context) (*entity.CustomerRecord, error) {
	var record entity.CustomerRecord
	found, err := r.getJSON(customerKey, &record)
	if err != nil || !found {
		return nil, err
	}
	if record.Customer.ID == "" {
		logger.Warn("Stored customer record is missing an id, discarding")
		return nil, r.db.Delete([]byte(customerKey), pebble.Sync)
	}
	if record.Expired(r.now()) {
		logger.Info("Stored customer record expired, clearing session for %s", record.Customer.ID)
		if err := r.ClearCustomer(ctx, record.Customer.ID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &record, nil
}

func (r *PebbleSessionRepository) ClearCustomer(ctx context.Context, customerID string) error {
	batch := r.db.NewBatch()
	defer batch.Close()

	if err := batch.Delete([]byte(customerKey), nil); err != nil {
		return errors.Storage("failed to clear customer record", err)
	}
	if customerID != "" {
		for _, key := range []string{roomsKeyPrefix + customerID, unreadPrefix + customerID} {
			if err := batch.Delete([]byte(key), nil); err != nil {
				return errors.Storage("failed to clear session keys", err)
			}
		}
		if err := r.deleteRange(batch, msgCachePrefix+customerID+"/"); err != nil {
			return err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return errors.Storage("failed to commit session clear", err)
	}
	return nil
}

func (r *PebbleSessionRepository) SaveJoinedRooms(ctx context.Context, customerID string, rooms []entity.Room) error {
	return r.setJSON(roomsKeyPrefix+customerID, rooms)
}

func (r *PebbleSessionRepository) LoadJoinedRooms(ctx context.Context, customerID string) ([]entity.Room, error) {
	var rooms []entity.Room
	if _, err := r.getJSON(roomsKeyPrefix+customerID, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *PebbleSessionRepository) SaveUnreadCounts(ctx context.Context, customerID string, counts map[string]int) error {
	return r.setJSON(unreadPrefix+customerID, counts)
}

func (r *PebbleSessionRepository) LoadUnreadCounts(ctx context.Context, customerID string) (map[string]int, error) {
	counts := map[string]int{}
	if _, err := r.getJSON(unreadPrefix+customerID, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *PebbleSessionRepository) AppendCachedMessage(ctx context.Context, customerID, roomID string, message entity.Message) error {
	key := msgCacheKey(customerID, roomID)
	var messages []entity.Message
	if _, err := r.getJSON(key, &messages); err != nil {
		return err
	}
	messages = append(messages, message)
	if len(messages) > messageCacheCap {
		messages = messages[len(messages)-messageCacheCap:]
	}
	return r.setJSON(key, messages)
}

func (r *PebbleSessionRepository) LoadCachedMessages(ctx context.Context, customerID, roomID string) ([]entity.Message, error) {
	var messages []entity.Message
	if _, err := r.getJSON(msgCacheKey(customerID, roomID), &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *PebbleSessionRepository) ClearCachedMessages(ctx context.Context, customerID, roomID string) error {
	if err := r.db.Delete([]byte(msgCacheKey(customerID, roomID)), pebble.Sync); err != nil {
		return errors.Storage("failed to clear message cache", err)
	}
	return nil
}

func (r *PebbleSessionRepository) setJSON(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Storage("failed to encode "+key, err)
	}
	if err := r.db.Set([]byte(key), data, pebble.Sync); err != nil {
		return errors.Storage("failed to write "+key, err)
	}
	return nil
}

func (r *PebbleSessionRepository) getJSON(key string, out interface{}) (bool, error) {
	value, closer, err := r.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, errors.Storage("failed to read "+key, err)
	}
	defer closer.Close()
	if err := json.Unmarshal(value, out); err != nil {
		return false, errors.Storage("failed to decode "+key, err)
	}
	return true, nil
}

func (r *PebbleSessionRepository) deleteRange(batch *pebble.Batch, prefix string) error {
	it, err := r.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "\xff"),
	})
	if err != nil {
		return errors.Storage("failed to iterate "+prefix, err)
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		if !strings.HasPrefix(string(it.Key()), prefix) {
			break
		}
		key := append([]byte(nil), it.Key()...)
		if err := batch.Delete(key, nil); err != nil {
			return errors.Storage("failed to delete "+string(key), err)
		}
	}
	return nil
}

func msgCacheKey(customerID, roomID string) string {
	return fmt.Sprintf("%s%s/%s", msgCachePrefix, customerID, roomID)
}

var _ repository.SessionRepository = (*PebbleSessionRepository)(nil)
