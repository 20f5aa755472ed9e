package common

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	openFencePattern  = regexp.MustCompile("(?i)^```(?:json)?\\s*")
	closeFencePattern = regexp.MustCompile("\\s*```$")
	trailingCommaRe   = regexp.MustCompile(`,(\s*[\]}])`)
	unquotedKeyRe     = regexp.MustCompile(`([{\[,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	bracketArrayRe    = regexp.MustCompile(`(?s)\[.*\]`)
)

// CleanModelJSON 清理模型輸出常見的 JSON 雜訊：
// code fence、彎引號、單引號、結尾多餘逗號、未加引號的鍵
func CleanModelJSON(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = openFencePattern.ReplaceAllString(cleaned, "")
	cleaned = closeFencePattern.ReplaceAllString(cleaned, "")
	cleaned = strings.ReplaceAll(cleaned, "“", `"`)
	cleaned = strings.ReplaceAll(cleaned, "”", `"`)
	cleaned = strings.ReplaceAll(cleaned, "'", `"`)
	cleaned = trailingCommaRe.ReplaceAllString(cleaned, "$1")
	cleaned = unquotedKeyRe.ReplaceAllString(cleaned, `$1"$2":`)
	return cleaned
}

// ParseModelJSON 防禦性解析模型回應，回傳解析後的值
// 直接解析失敗時退一步抽出第一個頂層 [...] 再試一次
func ParseModelJSON(raw string) (interface{}, bool) {
	cleaned := CleanModelJSON(raw)

	var value interface{}
	if err := json.Unmarshal([]byte(cleaned), &value); err == nil {
		return value, true
	}

	match := bracketArrayRe.FindString(cleaned)
	if match == "" {
		return nil, false
	}
	if err := json.Unmarshal([]byte(match), &value); err == nil {
		return value, true
	}
	return nil, false
}

// ParseModelArray 解析模型回應並要求頂層為物件陣列
func ParseModelArray(raw string) ([]map[string]interface{}, bool) {
	value, ok := ParseModelJSON(raw)
	if !ok {
		return nil, false
	}
	items, ok := value.([]interface{})
	if !ok {
		return nil, false
	}
	entries := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if entry, ok := item.(map[string]interface{}); ok {
			entries = append(entries, entry)
		}
	}
	return entries, true
}

// WriteIndented 以縮排格式編碼，報告與檢查點檔案共用
func WriteIndented(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// WriteJSONFile 以縮排 JSON 寫入檔案，必要時建立父目錄
func WriteJSONFile(path string, v interface{}) error {
	data, err := WriteIndented(v)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
