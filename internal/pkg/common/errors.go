package common

import (
	"errors"
	"fmt"
	"strings"
)

// APIError 表示 Mealie REST 呼叫失敗（網路錯誤或 status >= 400）
type APIError struct {
	Method string // HTTP 方法
	URL    string // 請求網址
	Status int    // HTTP 狀態碼，網路層失敗時為 0
	Body   string // 截斷後的回應內容
	Err    error  // 原始錯誤
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s %s failed (%d): %s", e.Method, e.URL, e.Status, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("%s %s failed", e.Method, e.URL)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewAPIError 創建新的 API 錯誤
func NewAPIError(method, url string, status int, body string, err error) *APIError {
	return &APIError{
		Method: method,
		URL:    url,
		Status: status,
		Body:   ShortText(body, 240),
		Err:    err,
	}
}

// APIStatus 取出錯誤鏈中的 HTTP 狀態碼，沒有則回傳 0
func APIStatus(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsConflict 檢查是否為 409 資源衝突
func IsConflict(err error) bool {
	return APIStatus(err) == 409
}

// IsDuplicateFoodError 檢查是否為食材名稱唯一性約束衝突
// Mealie 會在 response body 帶出 postgres 的錯誤訊息
func IsDuplicateFoodError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	lowered := strings.ToLower(apiErr.Body)
	return strings.Contains(lowered, "duplicate key value violates unique constraint") &&
		strings.Contains(lowered, "ingredient_foods_name_group_id_key")
}
