package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xaenox/appdock/internal/models"
	"github.com/xaenox/appdock/internal/realtime"
	"github.com/xaenox/appdock/internal/storage"
	"go.uber.org/zap"
)

// Client talks to a running server over its HTTP API. It satisfies the
// store backends (store.ItemBackend, store.MessageBackend) and the
// completion surface, so client stores run against it exactly as they
// run against local storage.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Completion-backed endpoints can be slow.
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

// Events returns the realtime event source for this server, dialing its
// websocket stream per subscription.
func (c *Client) Events(logger *zap.Logger) *realtime.RemoteSource {
	wsURL := c.baseURL
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	return &realtime.RemoteSource{URL: wsURL + "/api/realtime", Logger: logger}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return storage.ErrNotFound
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetAppByName resolves a route name to its app. Unknown names return
// storage.ErrNotFound, same as the storage layer.
func (c *Client) GetAppByName(ctx context.Context, name string) (*models.App, error) {
	var app models.App
	if err := c.do(ctx, http.MethodGet, "/api/apps/"+name, nil, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (c *Client) GetMessages(ctx context.Context, appID int64) ([]*models.Message, error) {
	var messages []*models.Message
	path := "/api/apps/" + strconv.FormatInt(appID, 10) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *Client) InsertMessage(ctx context.Context, msg *models.Message) error {
	if msg.AppID == nil {
		return fmt.Errorf("message has no app binding")
	}
	path := "/api/apps/" + strconv.FormatInt(*msg.AppID, 10) + "/messages"
	body := map[string]any{"id": msg.ID, "content": msg.Content}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) GetItems(ctx context.Context, listID string) ([]*models.Item, error) {
	var items []*models.Item
	if err := c.do(ctx, http.MethodGet, "/api/lists/"+listID+"/items", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) UpsertItem(ctx context.Context, item *models.Item) error {
	path := "/api/lists/" + item.AppID + "/items/" + item.ID
	body := map[string]any{"content": item.Content}
	return c.do(ctx, http.MethodPut, path, body, nil)
}

func (c *Client) DeleteItem(ctx context.Context, listID, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/lists/"+listID+"/items/"+id, nil, nil)
}

func (c *Client) DeleteItems(ctx context.Context, listID string) error {
	return c.do(ctx, http.MethodDelete, "/api/lists/"+listID+"/items", nil, nil)
}

// Complete proxies a prompt through the completion endpoint.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	var resp struct {
		Text string `json:"text"`
	}
	body := map[string]string{"prompt": prompt}
	if err := c.do(ctx, http.MethodPost, "/api/completion", body, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}
