package models

import (
	"time"

	"github.com/google/uuid"
)

// App is a tenant: a named context that scopes messages (and optionally
// list items) to a shared experience. An entity with no App binding is
// ephemeral and lives only in local state.
type App struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// App experience types, selected by the app row when a client resolves a
// path to an app.
const (
	AppTypeChat = "chat"
	AppTypeList = "list"
)

// MessagePart is one fragment of message content.
type MessagePart struct {
	Text string `json:"text"`
}

// Message is an append-only chat entry. AppID is nil for session-local
// messages. Rows are never removed; Deleted is a soft-delete flag.
type Message struct {
	ID        string        `json:"id"`
	AppID     *int64        `json:"app_id"`
	Content   []MessagePart `json:"content"`
	Deleted   bool          `json:"deleted"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewMessage builds a message with a generated id and the current time.
// The id doubles as an idempotency key: a realtime echo of our own
// insert carries the same id and can be dropped on receipt.
func NewMessage(appID *int64, text string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		AppID:     appID,
		Content:   []MessagePart{{Text: text}},
		CreatedAt: time.Now(),
	}
}

// ItemContent is the mutable payload of a todo item.
type ItemContent struct {
	Text     string `json:"text"`
	Done     bool   `json:"done"`
	Category string `json:"category"`
}

// Item is a todo entry belonging to exactly one list; AppID is the list
// id in this context.
type Item struct {
	ID      string      `json:"id"`
	AppID   string      `json:"app_id"`
	Content ItemContent `json:"content"`
}

// ListInfo is per-list metadata. It is never synced remotely; the local
// persisted cache is its only home.
type ListInfo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewID returns a client-generated entity id.
func NewID() string {
	return uuid.New().String()
}

// Language is a UI language preference.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageHebrew  Language = "he"
)

// Valid reports whether l is one of the supported languages.
func (l Language) Valid() bool {
	return l == LanguageEnglish || l == LanguageHebrew
}
