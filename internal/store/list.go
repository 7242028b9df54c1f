package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xaenox/appdock/internal/assistant"
	"github.com/xaenox/appdock/internal/models"
	"github.com/xaenox/appdock/internal/realtime"
	"go.uber.org/zap"
)

// ItemBackend is the slice of remote storage the list store needs.
type ItemBackend interface {
	GetItems(ctx context.Context, listID string) ([]*models.Item, error)
	UpsertItem(ctx context.Context, item *models.Item) error
	DeleteItem(ctx context.Context, listID, id string) error
	DeleteItems(ctx context.Context, listID string) error
}

// Assistant is the completion surface the list store uses for category
// prediction and bulk item extraction.
type Assistant interface {
	PredictCategory(ctx context.Context, text, listTitle string) string
	ExtractItems(ctx context.Context, text, listTitle string, current []string) ([]string, error)
}

// Notice is a user-facing notification that stays up until dismissed.
type Notice struct {
	ID     int
	Title  string
	Detail string
}

type opKind int

const (
	opUpsert opKind = iota
	opDelete
	opClear
)

// pushOp is one queued remote mutation.
type pushOp struct {
	kind opKind
	item *models.Item
	id   string
}

const (
	defaultDebounce  = 1500 * time.Millisecond
	defaultRetryBase = 500 * time.Millisecond
	defaultRetryMax  = 10 * time.Second
	pushQueueSize    = 256
)

// ListOptions configure a list store.
type ListOptions struct {
	ListID    string
	Lists     *Lists
	Backend   ItemBackend
	Events    realtime.Source
	Assistant Assistant
	Cache     *Cache
	Logger    *zap.Logger

	// Zero values take the defaults; tests shrink these.
	Debounce  time.Duration
	RetryBase time.Duration
	RetryMax  time.Duration
}

// ListStore is the local-first store for one list's items. Mutations
// apply locally first, persist to the cache, and are queued for the
// remote backend where they retry forever with exponential backoff.
// Inbound realtime events merge last-write-wins: whichever side applies
// later overwrites, with no version guard.
type ListStore struct {
	notifier

	listID    string
	lists     *Lists
	backend   ItemBackend
	events    realtime.Source
	assistant Assistant
	cache     *Cache
	logger    *zap.Logger

	debounce  time.Duration
	retryBase time.Duration
	retryMax  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	items      map[string]*models.Item
	draftID    string
	input      string
	busy       bool
	timers     map[string]*time.Timer
	predicting map[string]bool
	notices    []Notice
	noticeSeq  int
	sub        *realtime.Subscription

	pending chan pushOp
}

// NewListStore loads the cached item snapshot, registers the list's
// metadata, starts the push worker and, when an event source is
// present, the realtime merge loop. A background pull refreshes the
// snapshot from the backend.
func NewListStore(opts ListOptions) (*ListStore, error) {
	if opts.ListID == "" {
		return nil, fmt.Errorf("list store requires a list id")
	}
	if opts.Backend == nil {
		return nil, fmt.Errorf("list store requires a backend")
	}
	if opts.Lists == nil {
		return nil, fmt.Errorf("list store requires the list registry")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Debounce == 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.RetryBase == 0 {
		opts.RetryBase = defaultRetryBase
	}
	if opts.RetryMax == 0 {
		opts.RetryMax = defaultRetryMax
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &ListStore{
		listID:     opts.ListID,
		lists:      opts.Lists,
		backend:    opts.Backend,
		events:     opts.Events,
		assistant:  opts.Assistant,
		cache:      opts.Cache,
		logger:     opts.Logger,
		debounce:   opts.Debounce,
		retryBase:  opts.RetryBase,
		retryMax:   opts.RetryMax,
		ctx:        ctx,
		cancel:     cancel,
		items:      make(map[string]*models.Item),
		timers:     make(map[string]*time.Timer),
		predicting: make(map[string]bool),
		pending:    make(chan pushOp, pushQueueSize),
	}

	s.lists.Ensure(s.listID)

	if s.cache != nil {
		if _, err := s.cache.Get(itemsCacheKey(s.listID), &s.items); err != nil {
			s.logger.Error("Failed to load cached items", zap.Error(err))
		}
		if s.items == nil {
			s.items = make(map[string]*models.Item)
		}
	}

	go s.pushLoop()
	if s.events != nil {
		s.sub = s.events.Subscribe(s.listID)
		go s.mergeLoop(s.sub)
	}
	go s.refresh()

	return s, nil
}

// Title returns the list's title from the metadata registry.
func (s *ListStore) Title() string {
	info, _ := s.lists.Get(s.listID)
	return info.Title
}

// Rename updates the list title. Repeating the same title is a no-op.
func (s *ListStore) Rename(title string) {
	s.lists.Rename(s.listID, title)
}

// Items returns a snapshot sorted the way the list renders: open items
// before done ones, grouped by category.
func (s *ListStore) Items() []*models.Item {
	s.mu.Lock()
	out := make([]*models.Item, 0, len(s.items))
	for _, item := range s.items {
		copied := *item
		out = append(out, &copied)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Content.Done != b.Content.Done {
			return !a.Content.Done
		}
		if a.Content.Category != b.Content.Category {
			return a.Content.Category < b.Content.Category
		}
		return a.ID < b.ID
	})
	return out
}

// Get returns the item with the given id, if present.
func (s *ListStore) Get(id string) (models.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return models.Item{}, false
	}
	return *item, true
}

func (s *ListStore) add(text, category string) *models.Item {
	item := &models.Item{
		ID:    models.NewID(),
		AppID: s.listID,
		Content: models.ItemContent{
			Text:     text,
			Category: category,
		},
	}

	s.mu.Lock()
	s.items[item.ID] = item
	s.persistLocked()
	copied := *item
	s.mu.Unlock()

	s.enqueue(pushOp{kind: opUpsert, item: &copied})
	s.notify()
	return item
}

// AddItem creates an item with the default category.
func (s *ListStore) AddItem(text string) *models.Item {
	return s.add(text, assistant.DefaultCategory)
}

// SetText replaces an item's text.
func (s *ListStore) SetText(id, text string) {
	s.mutate(id, func(item *models.Item) {
		item.Content.Text = text
	})
}

// Toggle flips an item's done flag.
func (s *ListStore) Toggle(id string) {
	s.mutate(id, func(item *models.Item) {
		item.Content.Done = !item.Content.Done
	})
}

func (s *ListStore) mutate(id string, fn func(*models.Item)) {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	fn(item)
	s.persistLocked()
	copied := *item
	s.mu.Unlock()

	s.enqueue(pushOp{kind: opUpsert, item: &copied})
	s.notify()
}

// Remove deletes an item. A category prediction still pending for it
// becomes a no-op when it resolves.
func (s *ListStore) Remove(id string) {
	s.mu.Lock()
	if _, ok := s.items[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.items, id)
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
		delete(s.predicting, id)
	}
	if s.draftID == id {
		s.draftID = ""
	}
	s.persistLocked()
	s.mu.Unlock()

	s.enqueue(pushOp{kind: opDelete, id: id})
	s.notify()
}

// ClearAll removes every item.
func (s *ListStore) ClearAll() {
	s.mu.Lock()
	s.items = make(map[string]*models.Item)
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.predicting = make(map[string]bool)
	s.draftID = ""
	s.persistLocked()
	s.mu.Unlock()

	s.enqueue(pushOp{kind: opClear})
	s.notify()
}

// UpdateDraft feeds the direct-input flow: the first keystroke creates
// a draft item with the default category, later keystrokes retype it,
// and each one restarts the category-prediction debounce. Returns the
// draft item's id.
func (s *ListStore) UpdateDraft(text string) string {
	s.mu.Lock()
	if s.draftID == "" {
		if text == "" {
			s.mu.Unlock()
			return ""
		}
		item := &models.Item{
			ID:    models.NewID(),
			AppID: s.listID,
			Content: models.ItemContent{
				Text:     text,
				Category: assistant.DefaultCategory,
			},
		}
		s.draftID = item.ID
		s.items[item.ID] = item
		s.persistLocked()
		s.schedulePredictLocked(item.ID)
		copied := *item
		s.mu.Unlock()

		s.enqueue(pushOp{kind: opUpsert, item: &copied})
		s.notify()
		return item.ID
	}

	id := s.draftID
	item, ok := s.items[id]
	if !ok {
		s.draftID = ""
		s.mu.Unlock()
		return ""
	}
	item.Content.Text = text
	s.persistLocked()
	s.schedulePredictLocked(id)
	copied := *item
	s.mu.Unlock()

	s.enqueue(pushOp{kind: opUpsert, item: &copied})
	s.notify()
	return id
}

// FinishDraft ends the direct-input flow. An empty draft is removed.
func (s *ListStore) FinishDraft() {
	s.mu.Lock()
	id := s.draftID
	s.draftID = ""
	var empty bool
	if item, ok := s.items[id]; ok {
		empty = strings.TrimSpace(item.Content.Text) == ""
	}
	s.mu.Unlock()

	if id != "" && empty {
		s.Remove(id)
	}
}

// Input returns the pending bulk-add text.
func (s *ListStore) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// SetInput stores the bulk-add text being typed.
func (s *ListStore) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
	s.notify()
}

// Busy reports whether a bulk add is in flight.
func (s *ListStore) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Predicting reports whether any category prediction is pending.
func (s *ListStore) Predicting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.predicting) > 0
}

// Submit expands the pending input into items, one per extracted text,
// each with its own predicted category. A malformed extraction response
// raises a persistent notice and keeps the input for another try; any
// other failure clears the input.
func (s *ListStore) Submit(ctx context.Context) error {
	s.mu.Lock()
	text := strings.TrimSpace(s.input)
	if text == "" || s.busy {
		s.mu.Unlock()
		return nil
	}
	s.busy = true
	current := make([]string, 0, len(s.items))
	for _, item := range s.items {
		current = append(current, item.Content.Text)
	}
	s.mu.Unlock()
	s.notify()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
		s.notify()
	}()

	title := s.Title()
	texts, err := s.assistant.ExtractItems(ctx, text, title, current)
	if err != nil {
		var bad *assistant.BadResponseError
		if errors.As(err, &bad) {
			s.addNotice("Invalid response format", bad.Raw)
			return err
		}
		s.mu.Lock()
		s.input = ""
		s.mu.Unlock()
		s.logger.Error("Failed to extract items", zap.Error(err))
		return err
	}

	for _, t := range texts {
		category := s.assistant.PredictCategory(ctx, t, title)
		s.add(t, category)
	}

	s.mu.Lock()
	s.input = ""
	s.mu.Unlock()
	s.notify()
	return nil
}

// Notices returns the undismissed notifications, oldest first.
func (s *ListStore) Notices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Notice, len(s.notices))
	copy(out, s.notices)
	return out
}

// Dismiss removes the notice with the given id.
func (s *ListStore) Dismiss(id int) {
	s.mu.Lock()
	kept := s.notices[:0]
	for _, n := range s.notices {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	s.notices = kept
	s.mu.Unlock()
	s.notify()
}

func (s *ListStore) addNotice(title, detail string) {
	s.mu.Lock()
	s.noticeSeq++
	s.notices = append(s.notices, Notice{ID: s.noticeSeq, Title: title, Detail: detail})
	s.mu.Unlock()
	s.notify()
}

// Close stops the worker, timers and realtime subscription. Queued
// pushes that have not reached the backend are lost.
func (s *ListStore) Close() {
	s.cancel()
	s.mu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
	s.mu.Unlock()
}

func (s *ListStore) schedulePredictLocked(id string) {
	if s.assistant == nil {
		return
	}
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	s.predicting[id] = true
	s.timers[id] = time.AfterFunc(s.debounce, func() {
		s.resolvePrediction(id)
	})
}

// resolvePrediction runs when a debounce timer fires. The existence
// check repeats after the slow call: an item deleted while the
// prediction was in flight must not be resurrected.
func (s *ListStore) resolvePrediction(id string) {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok {
		delete(s.timers, id)
		delete(s.predicting, id)
		s.mu.Unlock()
		return
	}
	text := item.Content.Text
	s.mu.Unlock()

	category := s.assistant.PredictCategory(s.ctx, text, s.Title())

	s.mu.Lock()
	delete(s.timers, id)
	delete(s.predicting, id)
	item, ok = s.items[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	item.Content.Category = category
	s.persistLocked()
	copied := *item
	s.mu.Unlock()

	s.enqueue(pushOp{kind: opUpsert, item: &copied})
	s.notify()
}

func (s *ListStore) enqueue(op pushOp) {
	select {
	case s.pending <- op:
	case <-s.ctx.Done():
	}
}

func (s *ListStore) pushLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case op := <-s.pending:
			s.pushWithRetry(op)
		}
	}
}

// pushWithRetry mirrors one mutation to the backend, retrying forever
// with exponential backoff. Failures are logged, never surfaced.
func (s *ListStore) pushWithRetry(op pushOp) {
	for attempt := 0; ; attempt++ {
		var err error
		switch op.kind {
		case opUpsert:
			err = s.backend.UpsertItem(s.ctx, op.item)
		case opDelete:
			err = s.backend.DeleteItem(s.ctx, s.listID, op.id)
		case opClear:
			err = s.backend.DeleteItems(s.ctx, s.listID)
		}
		if err == nil || s.ctx.Err() != nil {
			return
		}

		delay := s.backoff(attempt)
		s.logger.Warn("Remote write failed, retrying",
			zap.Error(err),
			zap.String("list_id", s.listID),
			zap.Duration("backoff", delay))

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (s *ListStore) backoff(attempt int) time.Duration {
	if attempt > 20 {
		return s.retryMax
	}
	delay := s.retryBase * time.Duration(1<<uint(attempt))
	if delay > s.retryMax || delay <= 0 {
		delay = s.retryMax
	}
	return delay
}

// mergeLoop applies inbound realtime item events. Last write wins by
// arrival: a slow local update can overwrite a newer remote one and
// vice versa.
func (s *ListStore) mergeLoop(sub *realtime.Subscription) {
	for ev := range sub.C {
		if ev.Table != "items" {
			continue
		}
		var item models.Item
		if err := json.Unmarshal(ev.Row, &item); err != nil {
			s.logger.Error("Failed to decode item event", zap.Error(err))
			continue
		}

		s.mu.Lock()
		switch ev.Type {
		case realtime.EventDelete:
			delete(s.items, item.ID)
		default:
			copied := item
			s.items[item.ID] = &copied
		}
		s.persistLocked()
		s.mu.Unlock()
		s.notify()
	}
}

// refresh pulls the backend's snapshot once at startup. The cached
// local state already rendered; remote rows merge over it.
func (s *ListStore) refresh() {
	items, err := s.backend.GetItems(s.ctx, s.listID)
	if err != nil {
		s.logger.Warn("Failed to refresh items from backend",
			zap.Error(err),
			zap.String("list_id", s.listID))
		return
	}

	s.mu.Lock()
	for _, item := range items {
		copied := *item
		s.items[item.ID] = &copied
	}
	s.persistLocked()
	s.mu.Unlock()
	s.notify()
}

func (s *ListStore) persistLocked() {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(itemsCacheKey(s.listID), s.items); err != nil {
		s.logger.Error("Failed to persist items", zap.Error(err))
	}
}
