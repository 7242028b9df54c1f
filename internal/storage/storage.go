package storage

import (
	"context"
	"errors"

	"github.com/xaenox/appdock/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Storage owns durable state. Every mutation publishes a change event to
// the realtime hub the backend was constructed with, so client stores
// and websocket peers observe the same stream regardless of backend.
type Storage interface {
	// Apps
	GetAppByName(ctx context.Context, name string) (*models.App, error)
	CreateApp(ctx context.Context, name, appType string) (*models.App, error)

	// Messages. Select excludes soft-deleted rows; DeleteMessage only
	// flips the flag, rows are never removed.
	GetMessages(ctx context.Context, appID int64) ([]*models.Message, error)
	InsertMessage(ctx context.Context, msg *models.Message) error
	DeleteMessage(ctx context.Context, id string) error

	// List items, keyed by the owning list id.
	GetItems(ctx context.Context, listID string) ([]*models.Item, error)
	UpsertItem(ctx context.Context, item *models.Item) error
	DeleteItem(ctx context.Context, listID, id string) error
	DeleteItems(ctx context.Context, listID string) error

	Close() error
}
