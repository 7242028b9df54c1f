package store

import (
	"sync"
	"time"

	"github.com/xaenox/appdock/internal/models"
	"go.uber.org/zap"
)

// listsCacheKey is the fixed cache key holding list metadata.
const listsCacheKey = "lists"

func itemsCacheKey(listID string) string {
	return "todos-" + listID
}

// Lists is the list-metadata registry. Metadata never syncs remotely;
// the local persisted cache is its single home.
type Lists struct {
	notifier

	cache  *Cache
	logger *zap.Logger

	mu    sync.Mutex
	lists []models.ListInfo
}

func NewLists(cache *Cache, logger *zap.Logger) *Lists {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Lists{cache: cache, logger: logger}

	if _, err := cache.Get(listsCacheKey, &l.lists); err != nil {
		logger.Error("Failed to load list metadata", zap.Error(err))
	}
	return l
}

// All returns the list metadata in creation order.
func (l *Lists) All() []models.ListInfo {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.ListInfo, len(l.lists))
	copy(out, l.lists)
	return out
}

// Get looks a list up by id.
func (l *Lists) Get(id string) (models.ListInfo, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, info := range l.lists {
		if info.ID == id {
			return info, true
		}
	}
	return models.ListInfo{}, false
}

// Create adds a new list with a generated id.
func (l *Lists) Create(title string) models.ListInfo {
	info := models.ListInfo{
		ID:        models.NewID(),
		Title:     title,
		CreatedAt: time.Now(),
	}

	l.mu.Lock()
	l.lists = append(l.lists, info)
	l.persistLocked()
	l.mu.Unlock()
	l.notify()

	return info
}

// Ensure registers id with an empty title if it is not known yet. This
// is the open-a-list-by-link path: visiting a list id you have never
// seen creates its metadata entry.
func (l *Lists) Ensure(id string) models.ListInfo {
	l.mu.Lock()
	for _, info := range l.lists {
		if info.ID == id {
			l.mu.Unlock()
			return info
		}
	}
	info := models.ListInfo{ID: id, CreatedAt: time.Now()}
	l.lists = append(l.lists, info)
	l.persistLocked()
	l.mu.Unlock()
	l.notify()

	return info
}

// Rename sets the title of id. Renaming to the current title is a
// no-op; unknown ids are ignored.
func (l *Lists) Rename(id, title string) {
	l.mu.Lock()
	changed := false
	for i := range l.lists {
		if l.lists[i].ID == id && l.lists[i].Title != title {
			l.lists[i].Title = title
			changed = true
		}
	}
	if changed {
		l.persistLocked()
	}
	l.mu.Unlock()

	if changed {
		l.notify()
	}
}

// Delete removes the list's metadata and drops its cached items, making
// them unreachable through the per-list accessor.
func (l *Lists) Delete(id string) {
	l.mu.Lock()
	kept := l.lists[:0]
	removed := false
	for _, info := range l.lists {
		if info.ID == id {
			removed = true
			continue
		}
		kept = append(kept, info)
	}
	l.lists = kept
	if removed {
		l.persistLocked()
	}
	l.mu.Unlock()

	if !removed {
		return
	}
	if err := l.cache.Delete(itemsCacheKey(id)); err != nil {
		l.logger.Error("Failed to drop cached items", zap.Error(err), zap.String("list_id", id))
	}
	l.notify()
}

func (l *Lists) persistLocked() {
	if err := l.cache.Set(listsCacheKey, l.lists); err != nil {
		l.logger.Error("Failed to persist list metadata", zap.Error(err))
	}
}
