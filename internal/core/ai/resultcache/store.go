package resultcache

import (
	"context"
	"fmt"

	"mealie-organizer/internal/infrastructure/config"
)

// Entry 單一食譜最後套用的分類與標籤名稱
type Entry struct {
	Categories []string `json:"categories"`
	Tags       []string `json:"tags"`
}

// Store 分類結果快取
// 啟動時讀取一次，之後每成功寫入一筆就同步落盤，中斷最多損失一筆
type Store interface {
	Contains(ctx context.Context, slug string) bool
	Put(ctx context.Context, slug string, entry Entry) error
}

// New 依設定選擇快取後端
func New(cfg *config.Config) (Store, error) {
	switch cfg.Cache.Backend {
	case "redis":
		return NewRedisStore(cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
	case "file":
		return NewFileStore(cfg.CacheFileForProvider())
	default:
		return nil, fmt.Errorf("invalid cache backend %q: use 'file' or 'redis'", cfg.Cache.Backend)
	}
}
