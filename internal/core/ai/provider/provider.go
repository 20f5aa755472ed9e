package provider

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"mealie-organizer/internal/infrastructure/config"
)

// Provider LLM 提供者抽象，一個 prompt 換一段文字回應
// 回傳空字串且無錯誤代表提供者已用盡重試，由呼叫端決定後續
type Provider interface {
	Name() string
	Query(ctx context.Context, prompt string) (string, error)
}

const jsonOnlySuffix = "\n\nRespond only with valid JSON."

// New 依設定建立提供者
func New(cfg *config.Config) (Provider, error) {
	switch cfg.Categorizer.Provider {
	case "chatgpt":
		if cfg.Providers.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the chatgpt provider")
		}
		return NewChatGPT(cfg.Providers.OpenAI), nil
	case "ollama":
		return NewOllama(cfg.Providers.Ollama), nil
	default:
		return nil, fmt.Errorf("invalid provider %q: use 'ollama' or 'chatgpt'", cfg.Categorizer.Provider)
	}
}

// backoffWait 指數退避加抖動
func backoffWait(base float64, attempt int, jitter float64) time.Duration {
	seconds := base*float64(int(1)<<attempt) + rand.Float64()*jitter
	return time.Duration(seconds * float64(time.Second))
}
