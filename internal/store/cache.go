package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/xaenox/appdock/internal/models"
)

// Cache is the local persisted key-value store: a single JSON file
// mirroring what the browser kept in localStorage. Values are stored
// as raw JSON under fixed keys ("lists", "todos-<list id>", "language").
type Cache struct {
	mu   sync.Mutex
	path string
	data map[string]json.RawMessage
}

// OpenCache loads the cache file at path, starting empty if it does not
// exist yet.
func OpenCache(path string) (*Cache, error) {
	c := &Cache{
		path: path,
		data: make(map[string]json.RawMessage),
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("read cache: %w", err)
	}
	if err := json.Unmarshal(b, &c.data); err != nil {
		return nil, fmt.Errorf("decode cache: %w", err)
	}
	return c, nil
}

// Get unmarshals the value under key into dest. The second return is
// false when the key is absent.
func (c *Cache) Get(key string, dest any) (bool, error) {
	c.mu.Lock()
	raw, ok := c.data[key]
	c.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode cache key %q: %w", key, err)
	}
	return true, nil
}

// Set stores v under key and persists the whole cache.
func (c *Cache) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache key %q: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return c.flushLocked()
}

// Delete removes key and persists.
func (c *Cache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[key]; !ok {
		return nil
	}
	delete(c.data, key)
	return c.flushLocked()
}

// languageCacheKey holds the UI language preference.
const languageCacheKey = "language"

// Language returns the persisted language preference, defaulting to
// English.
func (c *Cache) Language() models.Language {
	var lang models.Language
	if ok, err := c.Get(languageCacheKey, &lang); err != nil || !ok || !lang.Valid() {
		return models.LanguageEnglish
	}
	return lang
}

// SetLanguage persists the preference; invalid values are ignored.
func (c *Cache) SetLanguage(lang models.Language) error {
	if !lang.Valid() {
		return fmt.Errorf("invalid language %q", lang)
	}
	return c.Set(languageCacheKey, lang)
}

func (c *Cache) flushLocked() error {
	b, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	if err := os.WriteFile(c.path, b, 0o644); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}
