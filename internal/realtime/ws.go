package realtime

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The stream carries no credentials and is scoped by filter only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler streams hub events to websocket peers as JSON. The filter is
// taken from the app_id query parameter; a connection without one
// receives every event.
func Handler(hub *Hub, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("Failed to upgrade realtime connection", zap.Error(err))
			return
		}

		appID := r.URL.Query().Get("app_id")
		sub := hub.Subscribe(appID)

		// Reader goroutine: we never expect frames from the peer, but
		// reading is how gorilla surfaces close frames and errors.
		go func() {
			defer sub.Unsubscribe()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		defer conn.Close()
		for ev := range sub.C {
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debug("Realtime peer gone",
					zap.String("app_id", appID),
					zap.Error(err))
				sub.Unsubscribe()
				return
			}
		}
	})
}

// RemoteSource implements Source over the websocket stream of a remote
// server. Every Subscribe opens its own connection.
type RemoteSource struct {
	URL    string
	Logger *zap.Logger
}

// Subscribe dials the stream filtered by appID. A failed dial is logged
// and yields an already-closed subscription, matching a hub subscriber
// whose feed has ended.
func (rs *RemoteSource) Subscribe(appID string) *Subscription {
	sub, err := Dial(context.Background(), rs.URL, appID)
	if err != nil {
		if rs.Logger != nil {
			rs.Logger.Error("Failed to dial realtime stream",
				zap.Error(err),
				zap.String("app_id", appID))
		}
		dead := &Subscription{AppID: appID, C: make(chan Event)}
		dead.stop = func() {}
		close(dead.C)
		return dead
	}
	return sub
}

// Dial opens a websocket subscription against a remote hub at rawURL
// (ws:// or wss://, path included) filtered by appID. The returned
// subscription behaves like a local one: events on C, Unsubscribe to
// stop. The connection closes when ctx is done or on Unsubscribe.
func Dial(ctx context.Context, rawURL, appID string) (*Subscription, error) {
	if appID != "" {
		rawURL += "?app_id=" + appID
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	sub := &Subscription{
		AppID: appID,
		C:     make(chan Event, subscriberBuffer),
	}
	// Unsubscribe closes the connection; the reader owns C and closes
	// it when the connection dies, so no send can race the close.
	sub.stop = func() { conn.Close() }

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(sub.C)
		defer close(done)
		for {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case sub.C <- ev:
			default:
			}
		}
	}()

	return sub, nil
}
