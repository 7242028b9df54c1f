package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaenox/appdock/internal/models"
)

func TestCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	c, err := OpenCache(path)
	require.NoError(t, err)

	require.NoError(t, c.Set("language", "he"))

	var lang string
	ok, err := c.Get("language", &lang)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "he", lang)

	// Reopen from disk
	c2, err := OpenCache(path)
	require.NoError(t, err)
	ok, err = c2.Get("language", &lang)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "he", lang)
}

func TestCacheMissingKey(t *testing.T) {
	c, err := OpenCache(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, err)

	var v string
	ok, err := c.Get("absent", &v)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCacheLanguagePreference(t *testing.T) {
	c, err := OpenCache(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, err)

	require.Equal(t, models.LanguageEnglish, c.Language(), "default is English")

	require.NoError(t, c.SetLanguage(models.LanguageHebrew))
	require.Equal(t, models.LanguageHebrew, c.Language())

	require.Error(t, c.SetLanguage("fr"))
	require.Equal(t, models.LanguageHebrew, c.Language(), "invalid set leaves preference unchanged")
}

func TestCacheDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	c, err := OpenCache(path)
	require.NoError(t, err)

	require.NoError(t, c.Set("todos-1", []string{"milk"}))
	require.NoError(t, c.Delete("todos-1"))

	var v []string
	ok, err := c.Get("todos-1", &v)
	require.NoError(t, err)
	require.False(t, ok)

	// Deleting a missing key is fine
	require.NoError(t, c.Delete("todos-1"))
}
