package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"mealie-organizer/internal/infrastructure/config"
	"mealie-organizer/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Ollama 本地串流生成提供者，將增量片段拼成完整回應
type Ollama struct {
	config config.OllamaConfig
	client *resty.Client
}

// NewOllama 創建 Ollama 提供者
func NewOllama(cfg config.OllamaConfig) *Ollama {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)

	return &Ollama{config: cfg, client: client}
}

// Name 提供者顯示名稱
func (o *Ollama) Name() string {
	return fmt.Sprintf("Ollama (%s)", o.config.Model)
}

type ollamaChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Query 送出 prompt 並串流組裝模型回應
func (o *Ollama) Query(ctx context.Context, prompt string) (string, error) {
	payload := map[string]interface{}{
		"model":  o.config.Model,
		"prompt": prompt + jsonOnlySuffix,
		"options": map[string]interface{}{
			"num_ctx":     o.config.NumCtx,
			"temperature": o.config.Temperature,
			"num_predict": o.config.NumPredict,
			"top_p":       o.config.TopP,
			"num_thread":  o.config.NumThread,
		},
	}

	retries := o.config.HTTPRetries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		resp, err := o.client.R().
			SetContext(ctx).
			SetBody(payload).
			SetDoNotParseResponse(true).
			Post("/generate")
		if err != nil {
			lastErr = err
			if attempt < retries-1 {
				wait := backoffWait(1.25, attempt, 0.5)
				common.LogWarn("ollama request exception",
					zap.Int("attempt", attempt+1),
					zap.Int("retries", retries),
					zap.Duration("sleep", wait),
					zap.Error(err))
				sleepCtx(ctx, wait)
				continue
			}
			break
		}

		status := resp.StatusCode()
		if status == http.StatusTooManyRequests || status >= 500 {
			resp.RawBody().Close()
			wait := backoffWait(1.25, attempt, 0.5)
			common.LogWarn("ollama transient http status",
				zap.Int("status", status),
				zap.Int("attempt", attempt+1),
				zap.Int("retries", retries),
				zap.Duration("sleep", wait))
			sleepCtx(ctx, wait)
			continue
		}
		if status >= 400 {
			resp.RawBody().Close()
			return "", common.NewAPIError(http.MethodPost, resp.Request.URL, status, "", nil)
		}

		var text strings.Builder
		scanner := bufio.NewScanner(resp.RawBody())
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var chunk ollamaChunk
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				continue
			}
			text.WriteString(chunk.Response)
		}
		resp.RawBody().Close()
		if err := scanner.Err(); err != nil {
			lastErr = err
			if attempt < retries-1 {
				sleepCtx(ctx, backoffWait(1.25, attempt, 0.5))
				continue
			}
			break
		}
		return strings.TrimSpace(text.String()), nil
	}

	if lastErr != nil {
		return "", fmt.Errorf("ollama request failed after %d attempts: %w", retries, lastErr)
	}
	return "", fmt.Errorf("ollama retries exhausted")
}
