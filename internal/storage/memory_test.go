package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaenox/appdock/internal/models"
	"github.com/xaenox/appdock/internal/realtime"
	"go.uber.org/zap"
)

func TestMemoryAppLookup(t *testing.T) {
	s := NewMemoryStorage(realtime.NewHub(zap.NewNop()))
	ctx := context.Background()

	_, err := s.GetAppByName(ctx, "demo")
	require.ErrorIs(t, err, ErrNotFound)

	created, err := s.CreateApp(ctx, "demo", models.AppTypeChat)
	require.NoError(t, err)

	got, err := s.GetAppByName(ctx, "demo")
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, models.AppTypeChat, got.Type)
}

func TestMemorySoftDeleteExcludesMessages(t *testing.T) {
	s := NewMemoryStorage(realtime.NewHub(zap.NewNop()))
	ctx := context.Background()

	app, err := s.CreateApp(ctx, "demo", models.AppTypeChat)
	require.NoError(t, err)

	msg := models.NewMessage(&app.ID, "hello")
	require.NoError(t, s.InsertMessage(ctx, msg))

	messages, err := s.GetMessages(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	require.NoError(t, s.DeleteMessage(ctx, msg.ID))

	messages, err = s.GetMessages(ctx, app.ID)
	require.NoError(t, err)
	require.Empty(t, messages, "soft-deleted rows are excluded from select")

	require.ErrorIs(t, s.DeleteMessage(ctx, "missing"), ErrNotFound)
}

func TestMemoryPublishesChangeEvents(t *testing.T) {
	hub := realtime.NewHub(zap.NewNop())
	s := NewMemoryStorage(hub)
	ctx := context.Background()

	sub := hub.Subscribe("list-1")
	defer sub.Unsubscribe()

	item := &models.Item{
		ID:      "a",
		AppID:   "list-1",
		Content: models.ItemContent{Text: "milk", Category: "🥛"},
	}
	require.NoError(t, s.UpsertItem(ctx, item))

	ev := waitEvent(t, sub.C)
	require.Equal(t, "items", ev.Table)
	require.Equal(t, realtime.EventInsert, ev.Type)

	var row models.Item
	require.NoError(t, json.Unmarshal(ev.Row, &row))
	require.Equal(t, "milk", row.Content.Text)

	// Second write to the same id is an update
	item.Content.Done = true
	require.NoError(t, s.UpsertItem(ctx, item))
	ev = waitEvent(t, sub.C)
	require.Equal(t, realtime.EventUpdate, ev.Type)

	require.NoError(t, s.DeleteItem(ctx, "list-1", "a"))
	ev = waitEvent(t, sub.C)
	require.Equal(t, realtime.EventDelete, ev.Type)
}

func TestMemoryItemsKeepInsertionOrder(t *testing.T) {
	s := NewMemoryStorage(realtime.NewHub(zap.NewNop()))
	ctx := context.Background()

	// Ids deliberately out of lexical order
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.UpsertItem(ctx, &models.Item{ID: id, AppID: "list-1"}))
	}

	// An update must not move the row
	require.NoError(t, s.UpsertItem(ctx, &models.Item{
		ID:      "c",
		AppID:   "list-1",
		Content: models.ItemContent{Done: true},
	}))

	items, err := s.GetItems(ctx, "list-1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i, want := range []string{"c", "a", "b"} {
		require.Equal(t, want, items[i].ID)
	}
}

func TestMemoryDeleteItems(t *testing.T) {
	s := NewMemoryStorage(realtime.NewHub(zap.NewNop()))
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		require.NoError(t, s.UpsertItem(ctx, &models.Item{ID: id, AppID: "list-1"}))
	}
	require.NoError(t, s.UpsertItem(ctx, &models.Item{ID: "c", AppID: "list-2"}))

	require.NoError(t, s.DeleteItems(ctx, "list-1"))

	items, err := s.GetItems(ctx, "list-1")
	require.NoError(t, err)
	require.Empty(t, items)

	items, err = s.GetItems(ctx, "list-2")
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func waitEvent(t *testing.T, c <-chan realtime.Event) realtime.Event {
	t.Helper()
	select {
	case ev := <-c:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return realtime.Event{}
	}
}
