package cleanup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Checkpoint 已合併來源 id 的持久化集合
// 讓清理作業重跑時不會對同一來源再發一次合併，崩潰後也能續跑
type Checkpoint struct {
	mu   sync.Mutex
	path string
	ids  map[string]bool
}

type checkpointPayload struct {
	MergedSourceIDs []string `json:"merged_source_ids"`
}

// LoadCheckpoint 讀取檢查點檔案，不存在或毀損時視為空集合
func LoadCheckpoint(path string) *Checkpoint {
	cp := &Checkpoint{path: path, ids: map[string]bool{}}

	data, err := os.ReadFile(path)
	if err != nil {
		return cp
	}
	var payload checkpointPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return cp
	}
	for _, id := range payload.MergedSourceIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			cp.ids[trimmed] = true
		}
	}
	return cp
}

// Contains 回報來源 id 是否已合併
func (c *Checkpoint) Contains(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ids[id]
}

// Record 記錄已合併的來源 id 並立即寫回磁碟
func (c *Checkpoint) Record(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[id] = true
	return c.flushLocked()
}

// Path 檢查點檔案路徑
func (c *Checkpoint) Path() string {
	return c.path
}

func (c *Checkpoint) flushLocked() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint dir: %w", err)
	}
	ids := make([]string, 0, len(c.ids))
	for id := range c.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data, err := json.MarshalIndent(checkpointPayload{MergedSourceIDs: ids}, "", "  ")
	if err != nil {
		return err
	}

	// 先寫暫存檔再改名，避免中斷留下半份檔案
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return os.Rename(tmp, c.path)
}
