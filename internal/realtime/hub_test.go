package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubFiltersByAppID(t *testing.T) {
	hub := NewHub(zap.NewNop())

	mine := hub.Subscribe("1")
	defer mine.Unsubscribe()
	other := hub.Subscribe("2")
	defer other.Unsubscribe()
	all := hub.Subscribe("")
	defer all.Unsubscribe()

	hub.Publish(Event{Table: "messages", Type: EventInsert, AppID: "1"})

	select {
	case ev := <-mine.C:
		require.Equal(t, "1", ev.AppID)
	case <-time.After(time.Second):
		t.Fatal("matching subscriber got nothing")
	}

	select {
	case <-all.C:
	case <-time.After(time.Second):
		t.Fatal("unfiltered subscriber got nothing")
	}

	select {
	case ev := <-other.C:
		t.Fatalf("subscriber for app 2 received %+v", ev)
	default:
	}
}

func TestHubOrderPreserved(t *testing.T) {
	hub := NewHub(zap.NewNop())
	sub := hub.Subscribe("1")
	defer sub.Unsubscribe()

	for i := 0; i < 10; i++ {
		row, _ := json.Marshal(i)
		hub.Publish(Event{Table: "items", Type: EventInsert, AppID: "1", Row: row})
	}

	for i := 0; i < 10; i++ {
		ev := <-sub.C
		var got int
		require.NoError(t, json.Unmarshal(ev.Row, &got))
		require.Equal(t, i, got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(zap.NewNop())
	sub := hub.Subscribe("1")

	sub.Unsubscribe()
	sub.Unsubscribe() // safe to repeat

	_, open := <-sub.C
	require.False(t, open)

	// Publishing afterwards must not panic
	hub.Publish(Event{Table: "items", Type: EventInsert, AppID: "1"})
}

func TestWebsocketStream(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(Handler(hub, zap.NewNop()))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := Dial(ctx, wsURL, "7")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	// Give the server a moment to register the subscription
	time.Sleep(20 * time.Millisecond)

	row, _ := json.Marshal(map[string]string{"id": "a"})
	hub.Publish(Event{Table: "items", Type: EventInsert, AppID: "7", Row: row})
	hub.Publish(Event{Table: "items", Type: EventUpdate, AppID: "8", Row: row})

	select {
	case ev := <-sub.C:
		require.Equal(t, EventInsert, ev.Type)
		require.Equal(t, "7", ev.AppID)
	case <-time.After(time.Second):
		t.Fatal("no event over websocket")
	}

	select {
	case ev, open := <-sub.C:
		if open {
			t.Fatalf("received event for another app: %+v", ev)
		}
	default:
	}
}

func TestWebsocketDialUnsubscribeReleasesGoroutines(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(Handler(hub, zap.NewNop()))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	before := runtime.NumGoroutine()

	// A background context never fires Done; teardown must come from
	// Unsubscribe alone.
	sub, err := Dial(context.Background(), wsURL, "")
	require.NoError(t, err)
	sub.Unsubscribe()

	select {
	case _, open := <-sub.C:
		require.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, time.Second, 10*time.Millisecond)
}

func TestWebsocketDialCancel(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(Handler(hub, zap.NewNop()))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := Dial(ctx, wsURL, "")
	require.NoError(t, err)

	cancel()

	select {
	case _, open := <-sub.C:
		require.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
