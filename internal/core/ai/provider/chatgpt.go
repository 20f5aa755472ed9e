package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mealie-organizer/internal/infrastructure/config"
	"mealie-organizer/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ChatGPT 託管式 chat-completion 提供者
type ChatGPT struct {
	config config.OpenAIConfig
	client *resty.Client
}

// NewChatGPT 創建 ChatGPT 提供者
func NewChatGPT(cfg config.OpenAIConfig) *ChatGPT {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.APIKey)).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)

	return &ChatGPT{config: cfg, client: client}
}

// Name 提供者顯示名稱
func (c *ChatGPT) Name() string {
	return fmt.Sprintf("ChatGPT (%s)", c.config.Model)
}

// Query 送出 prompt 並取回模型文字，暫時性錯誤自帶退避重試
func (c *ChatGPT) Query(ctx context.Context, prompt string) (string, error) {
	payload := map[string]interface{}{
		"model":       c.config.Model,
		"temperature": 0,
		"messages": []map[string]string{
			{"role": "system", "content": "You are a precise JSON-only assistant."},
			{"role": "user", "content": prompt + jsonOnlySuffix},
		},
	}

	retries := c.config.HTTPRetries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		resp, err := c.client.R().
			SetContext(ctx).
			SetBody(payload).
			Post("/chat/completions")
		if err != nil {
			lastErr = err
			if attempt < retries-1 {
				wait := backoffWait(1.5, attempt, 0.5)
				common.LogWarn("chatgpt request exception",
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
			// 尊重 Retry-After，沒有就退避
			wait := backoffWait(1.5, attempt, 0.5)
			if after := resp.Header().Get("Retry-After"); after != "" {
				if seconds, err := strconv.Atoi(after); err == nil {
					wait = time.Duration(seconds)*time.Second + backoffWait(0, 0, 0.5)
				}
			}
			common.LogWarn("chatgpt transient http status",
				zap.Int("status", status),
				zap.Int("attempt", attempt+1),
				zap.Int("retries", retries),
				zap.Duration("sleep", wait))
			sleepCtx(ctx, wait)
			continue
		}
		if status >= 400 {
			return "", common.NewAPIError(http.MethodPost, resp.Request.URL, status, resp.String(), nil)
		}

		var result struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.Unmarshal(resp.Body(), &result); err != nil {
			return "", fmt.Errorf("failed to parse chatgpt response: %w", err)
		}
		if len(result.Choices) == 0 {
			return "", fmt.Errorf("no choices in chatgpt response")
		}
		return strings.TrimSpace(result.Choices[0].Message.Content), nil
	}

	if lastErr != nil {
		return "", fmt.Errorf("chatgpt request failed after %d attempts: %w", retries, lastErr)
	}
	return "", fmt.Errorf("chatgpt retries exhausted")
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
