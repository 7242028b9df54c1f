package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/xaenox/appdock/internal/models"
	"github.com/xaenox/appdock/internal/realtime"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

// notifyChannel is the pg_notify channel the migration triggers write to.
const notifyChannel = "appdock_changes"

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

func (c DatabaseConfig) connString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// PostgresStorage is the durable backend. Row triggers feed a NOTIFY
// channel; a pq.Listener republishes those notifications into the
// realtime hub, so writes made by any process show up as events here.
type PostgresStorage struct {
	db       *sql.DB
	listener *pq.Listener
	hub      *realtime.Hub
	logger   *zap.Logger
	done     chan struct{}
}

func NewPostgresStorage(config DatabaseConfig, hub *realtime.Hub, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := config.connString()

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	storage := &PostgresStorage{
		db:     db,
		hub:    hub,
		logger: logger,
		done:   make(chan struct{}),
	}

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	listener := pq.NewListener(connStr, time.Second, 30*time.Second, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Error("Listener connection event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := listener.Listen(notifyChannel); err != nil {
		db.Close()
		return nil, fmt.Errorf("error listening on %s: %v", notifyChannel, err)
	}
	storage.listener = listener

	go storage.forwardNotifications()

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	// Read migrations file
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %v", err)
	}

	// Execute migrations
	_, err = s.db.Exec(string(migrationSQL))
	if err != nil {
		return fmt.Errorf("error executing migrations: %v", err)
	}

	return nil
}

func (s *PostgresStorage) forwardNotifications() {
	for {
		select {
		case <-s.done:
			return
		case n := <-s.listener.Notify:
			if n == nil {
				// Reconnect marker; subscribers may have missed events.
				s.logger.Warn("Listener reconnected, change feed may have gaps")
				continue
			}
			var ev realtime.Event
			if err := json.Unmarshal([]byte(n.Extra), &ev); err != nil {
				s.logger.Error("Failed to decode change notification",
					zap.Error(err),
					zap.String("payload", n.Extra))
				continue
			}
			s.hub.Publish(ev)
		}
	}
}

func (s *PostgresStorage) GetAppByName(ctx context.Context, name string) (*models.App, error) {
	query := `
		SELECT id, name, type, created_at
		FROM apps
		WHERE name = $1`

	app := &models.App{}
	err := s.db.QueryRowContext(ctx, query, name).Scan(&app.ID, &app.Name, &app.Type, &app.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying app: %v", err)
	}

	return app, nil
}

func (s *PostgresStorage) CreateApp(ctx context.Context, name, appType string) (*models.App, error) {
	query := `
		INSERT INTO apps (name, type)
		VALUES ($1, $2)
		RETURNING id, name, type, created_at`

	app := &models.App{}
	err := s.db.QueryRowContext(ctx, query, name, appType).Scan(&app.ID, &app.Name, &app.Type, &app.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("error creating app: %v", err)
	}

	return app, nil
}

func (s *PostgresStorage) GetMessages(ctx context.Context, appID int64) ([]*models.Message, error) {
	query := `
		SELECT id, app_id, content, deleted, created_at
		FROM messages
		WHERE app_id = $1 AND NOT deleted
		ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, appID)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %v", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		var content []byte
		err := rows.Scan(&msg.ID, &msg.AppID, &content, &msg.Deleted, &msg.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("error scanning message: %v", err)
		}
		if err := json.Unmarshal(content, &msg.Content); err != nil {
			return nil, fmt.Errorf("error decoding message content: %v", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (s *PostgresStorage) InsertMessage(ctx context.Context, msg *models.Message) error {
	content, err := json.Marshal(msg.Content)
	if err != nil {
		return fmt.Errorf("error encoding message content: %v", err)
	}

	query := `
		INSERT INTO messages (id, app_id, content, created_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.db.ExecContext(ctx, query, msg.ID, msg.AppID, content, msg.CreatedAt); err != nil {
		return fmt.Errorf("error inserting message: %v", err)
	}

	return nil
}

func (s *PostgresStorage) DeleteMessage(ctx context.Context, id string) error {
	query := `
		UPDATE messages
		SET deleted = TRUE
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("error deleting message: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *PostgresStorage) GetItems(ctx context.Context, listID string) ([]*models.Item, error) {
	query := `
		SELECT id, app_id, content
		FROM items
		WHERE app_id = $1
		ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, listID)
	if err != nil {
		return nil, fmt.Errorf("error querying items: %v", err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item := &models.Item{}
		var content []byte
		if err := rows.Scan(&item.ID, &item.AppID, &content); err != nil {
			return nil, fmt.Errorf("error scanning item: %v", err)
		}
		if err := json.Unmarshal(content, &item.Content); err != nil {
			return nil, fmt.Errorf("error decoding item content: %v", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func (s *PostgresStorage) UpsertItem(ctx context.Context, item *models.Item) error {
	content, err := json.Marshal(item.Content)
	if err != nil {
		return fmt.Errorf("error encoding item content: %v", err)
	}

	query := `
		INSERT INTO items (id, app_id, content)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content, updated_at = now()`

	if _, err := s.db.ExecContext(ctx, query, item.ID, item.AppID, content); err != nil {
		return fmt.Errorf("error upserting item: %v", err)
	}

	return nil
}

func (s *PostgresStorage) DeleteItem(ctx context.Context, listID, id string) error {
	query := `
		DELETE FROM items
		WHERE app_id = $1 AND id = $2`

	if _, err := s.db.ExecContext(ctx, query, listID, id); err != nil {
		return fmt.Errorf("error deleting item: %v", err)
	}

	return nil
}

func (s *PostgresStorage) DeleteItems(ctx context.Context, listID string) error {
	query := `
		DELETE FROM items
		WHERE app_id = $1`

	if _, err := s.db.ExecContext(ctx, query, listID); err != nil {
		return fmt.Errorf("error deleting items: %v", err)
	}

	return nil
}

func (s *PostgresStorage) Close() error {
	close(s.done)
	if s.listener != nil {
		s.listener.Close()
	}
	return s.db.Close()
}
