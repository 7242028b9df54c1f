package storage

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/xaenox/appdock/internal/models"
	"github.com/xaenox/appdock/internal/realtime"
)

// MemoryStorage keeps everything in maps. It publishes the same change
// events a Postgres trigger would, so realtime behavior is identical
// from the hub's point of view. Used for tests and local demo runs.
type MemoryStorage struct {
	mu       sync.RWMutex
	nextApp  int64
	apps     map[string]*models.App
	messages map[string]*models.Message
	items    map[string]*models.Item
	// itemSeq records insertion order per item id, standing in for the
	// created_at column Postgres orders by.
	itemSeq map[string]int64
	nextSeq int64
	hub     *realtime.Hub
}

func NewMemoryStorage(hub *realtime.Hub) *MemoryStorage {
	return &MemoryStorage{
		nextApp:  1,
		apps:     make(map[string]*models.App),
		messages: make(map[string]*models.Message),
		items:    make(map[string]*models.Item),
		itemSeq:  make(map[string]int64),
		hub:      hub,
	}
}

func (s *MemoryStorage) publish(table, typ, appID string, row any) {
	raw, err := json.Marshal(row)
	if err != nil {
		return
	}
	s.hub.Publish(realtime.Event{
		Table: table,
		Type:  typ,
		AppID: appID,
		Row:   raw,
	})
}

func (s *MemoryStorage) GetAppByName(ctx context.Context, name string) (*models.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if app, exists := s.apps[name]; exists {
		copied := *app
		return &copied, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) CreateApp(ctx context.Context, name, appType string) (*models.App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app := &models.App{
		ID:        s.nextApp,
		Name:      name,
		Type:      appType,
		CreatedAt: time.Now(),
	}
	s.nextApp++
	s.apps[name] = app

	copied := *app
	return &copied, nil
}

func (s *MemoryStorage) GetMessages(ctx context.Context, appID int64) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var messages []*models.Message
	for _, msg := range s.messages {
		if msg.Deleted || msg.AppID == nil || *msg.AppID != appID {
			continue
		}
		copied := *msg
		messages = append(messages, &copied)
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

func (s *MemoryStorage) InsertMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	copied := *msg
	s.messages[msg.ID] = &copied
	s.mu.Unlock()

	s.publish("messages", realtime.EventInsert, messageAppID(msg), msg)
	return nil
}

func (s *MemoryStorage) DeleteMessage(ctx context.Context, id string) error {
	s.mu.Lock()
	msg, exists := s.messages[id]
	if !exists {
		s.mu.Unlock()
		return ErrNotFound
	}
	msg.Deleted = true
	copied := *msg
	s.mu.Unlock()

	s.publish("messages", realtime.EventUpdate, messageAppID(&copied), &copied)
	return nil
}

func (s *MemoryStorage) GetItems(ctx context.Context, listID string) ([]*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []*models.Item
	for _, item := range s.items {
		if item.AppID != listID {
			continue
		}
		copied := *item
		items = append(items, &copied)
	}

	// Same order Postgres returns: oldest insert first.
	sort.Slice(items, func(i, j int) bool {
		return s.itemSeq[items[i].ID] < s.itemSeq[items[j].ID]
	})
	return items, nil
}

func (s *MemoryStorage) UpsertItem(ctx context.Context, item *models.Item) error {
	s.mu.Lock()
	_, existed := s.items[item.ID]
	if !existed {
		s.nextSeq++
		s.itemSeq[item.ID] = s.nextSeq
	}
	copied := *item
	s.items[item.ID] = &copied
	s.mu.Unlock()

	typ := realtime.EventInsert
	if existed {
		typ = realtime.EventUpdate
	}
	s.publish("items", typ, item.AppID, item)
	return nil
}

func (s *MemoryStorage) DeleteItem(ctx context.Context, listID, id string) error {
	s.mu.Lock()
	item, exists := s.items[id]
	if !exists || item.AppID != listID {
		s.mu.Unlock()
		return nil
	}
	delete(s.items, id)
	delete(s.itemSeq, id)
	copied := *item
	s.mu.Unlock()

	s.publish("items", realtime.EventDelete, listID, &copied)
	return nil
}

func (s *MemoryStorage) DeleteItems(ctx context.Context, listID string) error {
	s.mu.Lock()
	var removed []*models.Item
	for id, item := range s.items {
		if item.AppID == listID {
			removed = append(removed, item)
			delete(s.items, id)
			delete(s.itemSeq, id)
		}
	}
	s.mu.Unlock()

	for _, item := range removed {
		s.publish("items", realtime.EventDelete, listID, item)
	}
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

func messageAppID(msg *models.Message) string {
	if msg.AppID == nil {
		return ""
	}
	return strconv.FormatInt(*msg.AppID, 10)
}
