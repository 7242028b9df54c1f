package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/xaenox/appdock/internal/models"
	"github.com/xaenox/appdock/internal/storage"
	"go.uber.org/zap"
)

// Completer produces a free-text reply for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Handler struct {
	storage   storage.Storage
	completer Completer
	logger    *zap.Logger
}

func NewHandler(store storage.Storage, completer Completer, logger *zap.Logger) *Handler {
	return &Handler{
		storage:   store,
		completer: completer,
		logger:    logger,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

type completionRequest struct {
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Text string `json:"text"`
}

// CompletionHandler proxies a prompt to the completion backend. The
// response is always plain text; call sites that expect a JSON array
// enforce that convention themselves.
func (h *Handler) CompletionHandler(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Prompt == "" {
		h.writeError(w, http.StatusBadRequest, "Prompt is required")
		return
	}

	text, err := h.completer.Complete(r.Context(), req.Prompt)
	if err != nil {
		h.logger.Error("Completion failed", zap.Error(err))
		h.writeError(w, http.StatusBadGateway, "Completion failed")
		return
	}

	h.writeJSON(w, http.StatusOK, completionResponse{Text: text})
}

// languageCookie persists the UI language preference.
const languageCookie = "language"

type languageRequest struct {
	Language models.Language `json:"language"`
}

// SetLanguageHandler validates and persists the language preference.
// Anything but "en" or "he" is rejected synchronously.
func (h *Handler) SetLanguageHandler(w http.ResponseWriter, r *http.Request) {
	var req languageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !req.Language.Valid() {
		h.writeError(w, http.StatusBadRequest, "Invalid language")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     languageCookie,
		Value:    string(req.Language),
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
	})

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetLanguageHandler returns the persisted preference, defaulting to
// English.
func (h *Handler) GetLanguageHandler(w http.ResponseWriter, r *http.Request) {
	lang := models.LanguageEnglish
	if c, err := r.Cookie(languageCookie); err == nil {
		if l := models.Language(c.Value); l.Valid() {
			lang = l
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]models.Language{"language": lang})
}

// GetAppHandler resolves an app by name. Unknown names are 404, which
// is what routes a visitor to the not-found page.
func (h *Handler) GetAppHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "app")

	app, err := h.storage.GetAppByName(r.Context(), name)
	if errors.Is(err, storage.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "App not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to look up app", zap.Error(err), zap.String("name", name))
		h.writeError(w, http.StatusInternalServerError, "Failed to look up app")
		return
	}

	h.writeJSON(w, http.StatusOK, app)
}

func (h *Handler) appID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "app"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid app id")
		return 0, false
	}
	return id, true
}

// ListMessagesHandler returns the app's messages, soft-deleted rows
// excluded, in insertion order.
func (h *Handler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}

	messages, err := h.storage.GetMessages(r.Context(), appID)
	if err != nil {
		h.logger.Error("Failed to list messages", zap.Error(err), zap.Int64("app_id", appID))
		h.writeError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}

	h.writeJSON(w, http.StatusOK, messages)
}

type createMessageRequest struct {
	ID      string               `json:"id"`
	Content []models.MessagePart `json:"content"`
}

// CreateMessageHandler inserts a message for the app. The client may
// supply its own id, which doubles as the idempotency key its realtime
// echo is matched on; otherwise one is generated.
func (h *Handler) CreateMessageHandler(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}

	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Content) == 0 {
		h.writeError(w, http.StatusBadRequest, "Content is required")
		return
	}

	msg := models.NewMessage(&appID, "")
	msg.Content = req.Content
	if req.ID != "" {
		msg.ID = req.ID
	}

	if err := h.storage.InsertMessage(r.Context(), msg); err != nil {
		h.logger.Error("Failed to insert message", zap.Error(err), zap.String("message_id", msg.ID))
		h.writeError(w, http.StatusInternalServerError, "Failed to insert message")
		return
	}

	h.writeJSON(w, http.StatusCreated, msg)
}

// DeleteMessageHandler soft-deletes a message; the row stays.
func (h *Handler) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "messageID")

	err := h.storage.DeleteMessage(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "Message not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to delete message", zap.Error(err), zap.String("message_id", id))
		h.writeError(w, http.StatusInternalServerError, "Failed to delete message")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ListItemsHandler returns the list's items.
func (h *Handler) ListItemsHandler(w http.ResponseWriter, r *http.Request) {
	listID := chi.URLParam(r, "listID")

	items, err := h.storage.GetItems(r.Context(), listID)
	if err != nil {
		h.logger.Error("Failed to list items", zap.Error(err), zap.String("list_id", listID))
		h.writeError(w, http.StatusInternalServerError, "Failed to list items")
		return
	}
	if items == nil {
		items = []*models.Item{}
	}

	h.writeJSON(w, http.StatusOK, items)
}

type upsertItemRequest struct {
	Content models.ItemContent `json:"content"`
}

// CreateItemHandler adds an item with a generated id.
func (h *Handler) CreateItemHandler(w http.ResponseWriter, r *http.Request) {
	listID := chi.URLParam(r, "listID")

	var req upsertItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	item := &models.Item{
		ID:      models.NewID(),
		AppID:   listID,
		Content: req.Content,
	}
	if err := h.storage.UpsertItem(r.Context(), item); err != nil {
		h.logger.Error("Failed to create item", zap.Error(err), zap.String("list_id", listID))
		h.writeError(w, http.StatusInternalServerError, "Failed to create item")
		return
	}

	h.writeJSON(w, http.StatusCreated, item)
}

// UpsertItemHandler writes an item under a client-chosen id. Writes are
// last-write-wins; there is no version check.
func (h *Handler) UpsertItemHandler(w http.ResponseWriter, r *http.Request) {
	listID := chi.URLParam(r, "listID")
	itemID := chi.URLParam(r, "itemID")

	var req upsertItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	item := &models.Item{
		ID:      itemID,
		AppID:   listID,
		Content: req.Content,
	}
	if err := h.storage.UpsertItem(r.Context(), item); err != nil {
		h.logger.Error("Failed to upsert item", zap.Error(err), zap.String("item_id", itemID))
		h.writeError(w, http.StatusInternalServerError, "Failed to upsert item")
		return
	}

	h.writeJSON(w, http.StatusOK, item)
}

// DeleteItemHandler removes one item.
func (h *Handler) DeleteItemHandler(w http.ResponseWriter, r *http.Request) {
	listID := chi.URLParam(r, "listID")
	itemID := chi.URLParam(r, "itemID")

	if err := h.storage.DeleteItem(r.Context(), listID, itemID); err != nil {
		h.logger.Error("Failed to delete item", zap.Error(err), zap.String("item_id", itemID))
		h.writeError(w, http.StatusInternalServerError, "Failed to delete item")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ClearItemsHandler removes every item of the list.
func (h *Handler) ClearItemsHandler(w http.ResponseWriter, r *http.Request) {
	listID := chi.URLParam(r, "listID")

	if err := h.storage.DeleteItems(r.Context(), listID); err != nil {
		h.logger.Error("Failed to clear items", zap.Error(err), zap.String("list_id", listID))
		h.writeError(w, http.StatusInternalServerError, "Failed to clear items")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
