package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/xaenox/appdock/internal/models"
	"github.com/xaenox/appdock/internal/realtime"
	"go.uber.org/zap"
)

// MessageBackend is the slice of remote storage the chat store needs.
type MessageBackend interface {
	GetMessages(ctx context.Context, appID int64) ([]*models.Message, error)
	InsertMessage(ctx context.Context, msg *models.Message) error
}

// Completer produces a free-text reply for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ChatOptions configure a chat store. App nil means an ephemeral
// session: messages live in memory only and, when Assistant is set, each
// sent message gets an assistant reply appended when it resolves.
type ChatOptions struct {
	App       *models.App
	Backend   MessageBackend
	Events    realtime.Source
	Assistant Completer
	Logger    *zap.Logger
}

// ChatStore holds the in-memory message sequence for one chat session.
// All reads and writes go through it; views Watch it for re-render.
type ChatStore struct {
	notifier

	app       *models.App
	backend   MessageBackend
	events    realtime.Source
	assistant Completer
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	messages []*models.Message
	seen     map[string]struct{}
	sub      *realtime.Subscription
}

// NewChatStore builds the store and, for an app-bound session, loads the
// existing message history.
func NewChatStore(ctx context.Context, opts ChatOptions) (*ChatStore, error) {
	if opts.App != nil && opts.Backend == nil {
		return nil, fmt.Errorf("app-bound chat store requires a backend")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	storeCtx, cancel := context.WithCancel(context.Background())
	s := &ChatStore{
		app:       opts.App,
		backend:   opts.Backend,
		events:    opts.Events,
		assistant: opts.Assistant,
		logger:    opts.Logger,
		ctx:       storeCtx,
		cancel:    cancel,
		seen:      make(map[string]struct{}),
	}

	if s.app != nil {
		messages, err := s.backend.GetMessages(ctx, s.app.ID)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("load messages: %w", err)
		}
		for _, msg := range messages {
			s.messages = append(s.messages, msg)
			s.seen[msg.ID] = struct{}{}
		}
	}

	return s, nil
}

// Messages returns a snapshot of the message sequence in insertion
// order.
func (s *ChatStore) Messages() []*models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// AddMessage appends a user message. App-bound: the local append is
// optimistic and the remote insert is fire-and-forget; a failed insert
// is logged, never rolled back, and the realtime echo is dropped by id.
// Unbound: the append always succeeds locally, and in assistant mode a
// completion reply is appended whenever it resolves. Replies to
// concurrent sends are not ordered relative to each other.
func (s *ChatStore) AddMessage(text string) {
	var appID *int64
	if s.app != nil {
		id := s.app.ID
		appID = &id
	}
	msg := models.NewMessage(appID, text)

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.seen[msg.ID] = struct{}{}
	s.mu.Unlock()
	s.notify()

	if s.app != nil {
		go func() {
			if err := s.backend.InsertMessage(s.ctx, msg); err != nil {
				s.logger.Error("Failed to insert message",
					zap.Error(err),
					zap.String("message_id", msg.ID),
					zap.Int64("app_id", s.app.ID))
				return
			}
			s.logger.Debug("Message stored", zap.String("message_id", msg.ID))
		}()
		return
	}

	if s.assistant != nil {
		go s.reply(text)
	}
}

func (s *ChatStore) reply(text string) {
	response, err := s.assistant.Complete(s.ctx, text)
	if err != nil {
		s.logger.Error("Failed to get assistant reply", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.messages = append(s.messages, models.NewMessage(nil, response))
	s.mu.Unlock()
	s.notify()
}

// SubscribeToMessages opens the realtime subscription for this app and
// appends inserted rows to the sequence, dropping echoes of messages
// this store created. At most one subscription is active; a second call
// replaces the first. The returned function stops delivery.
func (s *ChatStore) SubscribeToMessages() (unsubscribe func()) {
	if s.app == nil || s.events == nil {
		return func() {}
	}

	s.mu.Lock()
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	sub := s.events.Subscribe(strconv.FormatInt(s.app.ID, 10))
	s.sub = sub
	s.mu.Unlock()

	go func() {
		for ev := range sub.C {
			if ev.Table != "messages" || ev.Type != realtime.EventInsert {
				continue
			}
			var msg models.Message
			if err := json.Unmarshal(ev.Row, &msg); err != nil {
				s.logger.Error("Failed to decode message event", zap.Error(err))
				continue
			}

			s.mu.Lock()
			if _, dup := s.seen[msg.ID]; dup {
				s.mu.Unlock()
				continue
			}
			s.seen[msg.ID] = struct{}{}
			s.messages = append(s.messages, &msg)
			s.mu.Unlock()
			s.notify()
		}
	}()

	return sub.Unsubscribe
}

// Close tears down the subscription and any in-flight work.
func (s *ChatStore) Close() {
	s.cancel()
	s.mu.Lock()
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
	s.mu.Unlock()
}
