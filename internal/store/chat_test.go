package store

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaenox/appdock/internal/models"
	"github.com/xaenox/appdock/internal/realtime"
	"github.com/xaenox/appdock/internal/storage"
	"go.uber.org/zap"
)

type fakeCompleter struct {
	reply string
	err   error
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func TestEphemeralChatAppendsLocally(t *testing.T) {
	s, err := NewChatStore(context.Background(), ChatOptions{Logger: zap.NewNop()})
	require.NoError(t, err)
	defer s.Close()

	s.AddMessage("hello")

	messages := s.Messages()
	require.Len(t, messages, 1)
	require.Nil(t, messages[0].AppID)
	require.Equal(t, "hello", messages[0].Content[0].Text)
}

func TestEphemeralChatAssistantReply(t *testing.T) {
	s, err := NewChatStore(context.Background(), ChatOptions{
		Assistant: &fakeCompleter{reply: "hi there"},
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)
	defer s.Close()

	s.AddMessage("hello")

	require.Eventually(t, func() bool {
		messages := s.Messages()
		return len(messages) == 2 && messages[1].Content[0].Text == "hi there"
	}, time.Second, 5*time.Millisecond)
}

func TestAppBoundChatLoadsHistory(t *testing.T) {
	hub := realtime.NewHub(zap.NewNop())
	backend := storage.NewMemoryStorage(hub)
	app, err := backend.CreateApp(context.Background(), "demo", models.AppTypeChat)
	require.NoError(t, err)

	existing := models.NewMessage(&app.ID, "earlier")
	require.NoError(t, backend.InsertMessage(context.Background(), existing))

	s, err := NewChatStore(context.Background(), ChatOptions{
		App:     app,
		Backend: backend,
		Events:  hub,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)
	defer s.Close()

	messages := s.Messages()
	require.Len(t, messages, 1)
	require.Equal(t, "earlier", messages[0].Content[0].Text)
}

func TestAppBoundChatInsertsRemotely(t *testing.T) {
	hub := realtime.NewHub(zap.NewNop())
	backend := storage.NewMemoryStorage(hub)
	app, err := backend.CreateApp(context.Background(), "demo", models.AppTypeChat)
	require.NoError(t, err)

	s, err := NewChatStore(context.Background(), ChatOptions{
		App:     app,
		Backend: backend,
		Events:  hub,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)
	defer s.Close()

	s.AddMessage("hello")

	// Optimistic append is immediate
	require.Len(t, s.Messages(), 1)

	// The remote insert lands without user involvement
	require.Eventually(t, func() bool {
		stored, err := backend.GetMessages(context.Background(), app.ID)
		return err == nil && len(stored) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRealtimeEchoIsDeduplicated(t *testing.T) {
	hub := realtime.NewHub(zap.NewNop())
	backend := storage.NewMemoryStorage(hub)
	app, err := backend.CreateApp(context.Background(), "demo", models.AppTypeChat)
	require.NoError(t, err)

	s, err := NewChatStore(context.Background(), ChatOptions{
		App:     app,
		Backend: backend,
		Events:  hub,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)
	defer s.Close()

	unsubscribe := s.SubscribeToMessages()
	defer unsubscribe()

	s.AddMessage("hello")

	// Wait for the insert and its echo to settle; the echo must not
	// produce a duplicate entry.
	require.Eventually(t, func() bool {
		stored, err := backend.GetMessages(context.Background(), app.ID)
		return err == nil && len(stored) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Len(t, s.Messages(), 1)
}

func TestRealtimeDeliversOtherWriters(t *testing.T) {
	hub := realtime.NewHub(zap.NewNop())
	backend := storage.NewMemoryStorage(hub)
	app, err := backend.CreateApp(context.Background(), "demo", models.AppTypeChat)
	require.NoError(t, err)

	s, err := NewChatStore(context.Background(), ChatOptions{
		App:     app,
		Backend: backend,
		Events:  hub,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)
	defer s.Close()

	var notified atomic.Int32
	cancel := s.Watch(func() { notified.Add(1) })
	defer cancel()

	unsubscribe := s.SubscribeToMessages()
	defer unsubscribe()

	// Another client writes to the same app
	other := models.NewMessage(&app.ID, "from elsewhere")
	require.NoError(t, backend.InsertMessage(context.Background(), other))

	require.Eventually(t, func() bool {
		messages := s.Messages()
		return len(messages) == 1 && messages[0].Content[0].Text == "from elsewhere"
	}, time.Second, 5*time.Millisecond)
	require.Positive(t, notified.Load())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := realtime.NewHub(zap.NewNop())
	backend := storage.NewMemoryStorage(hub)
	app, err := backend.CreateApp(context.Background(), "demo", models.AppTypeChat)
	require.NoError(t, err)

	s, err := NewChatStore(context.Background(), ChatOptions{
		App:     app,
		Backend: backend,
		Events:  hub,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)
	defer s.Close()

	unsubscribe := s.SubscribeToMessages()
	unsubscribe()

	other := models.NewMessage(&app.ID, "missed")
	require.NoError(t, backend.InsertMessage(context.Background(), other))

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, s.Messages())
}
