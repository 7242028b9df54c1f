package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Event types mirror the database operations that produce them.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// Event is a change notification for a watched table row, scoped by the
// app (or list) id the row belongs to. Row is the full row as JSON; for
// deletes it is the row as it was before removal.
type Event struct {
	Table string          `json:"table"`
	Type  string          `json:"type"`
	AppID string          `json:"app_id"`
	Row   json.RawMessage `json:"row"`
}

// subscriberBuffer is how many events a slow subscriber may fall behind
// before events are dropped for it.
const subscriberBuffer = 64

// Subscription is a handle to a stream of events filtered by app id.
// Events arrive on C in the order they were published. Unsubscribe stops
// delivery and C is closed once no more events can arrive; it is safe to
// call more than once.
type Subscription struct {
	AppID string
	C     chan Event

	stop func()
	once sync.Once
}

func (s *Subscription) Unsubscribe() {
	s.once.Do(s.stop)
}

// Source hands out filtered event subscriptions. Hub is the in-process
// implementation; RemoteSource is the same surface over a dialed
// websocket stream, so client stores cannot tell where they run.
type Source interface {
	Subscribe(appID string) *Subscription
}

// Hub fans change events out to subscribers. Storage backends publish
// into it; client stores and websocket peers subscribe.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		logger: logger,
	}
}

// Subscribe registers a new subscription delivering events whose AppID
// equals appID. An empty appID receives every event.
func (h *Hub) Subscribe(appID string) *Subscription {
	sub := &Subscription{
		AppID: appID,
		C:     make(chan Event, subscriberBuffer),
	}
	// Publish sends only under the lock, so once remove returns no
	// further sends are possible and closing C is safe.
	sub.stop = func() {
		h.remove(sub)
		close(sub.C)
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Publish delivers ev to every matching subscriber. Delivery is
// non-blocking: a subscriber that has fallen subscriberBuffer events
// behind loses this event rather than stalling the publisher.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		if sub.AppID != "" && sub.AppID != ev.AppID {
			continue
		}
		select {
		case sub.C <- ev:
		default:
			h.logger.Warn("Dropping event for slow subscriber",
				zap.String("table", ev.Table),
				zap.String("type", ev.Type),
				zap.String("app_id", ev.AppID))
		}
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}
