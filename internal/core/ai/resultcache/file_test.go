package resultcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileStorePutAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache", "results_ollama.json")

	store, err := NewFileStore(path)
	assert.NoError(t, err)
	assert.False(t, store.Contains(ctx, "beef-stew"))

	err = store.Put(ctx, "beef-stew", Entry{
		Categories: []string{"Main Dishes"},
		Tags:       []string{"beef"},
	})
	assert.NoError(t, err)
	assert.True(t, store.Contains(ctx, "beef-stew"))

	// 每次寫入都即時落盤，重新開啟能看到舊資料
	reloaded, err := NewFileStore(path)
	assert.NoError(t, err)
	assert.True(t, reloaded.Contains(ctx, "beef-stew"))
	assert.False(t, reloaded.Contains(ctx, "pancakes"))
}

func TestFileStoreCorruptFileTreatedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	assert.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	store, err := NewFileStore(path)
	assert.NoError(t, err)
	assert.False(t, store.Contains(context.Background(), "anything"))
}
