package common

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var nameSplitRe = regexp.MustCompile(`[;,]`)

// ShortText 壓縮為單行並截斷，用於日誌與錯誤訊息
func ShortText(value string, maxLen int) string {
	text := strings.TrimSpace(strings.ReplaceAll(value, "\n", " "))
	if len(text) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return text[:maxLen]
	}
	return text[:maxLen-3] + "..."
}

// NormalizeName 正規化實體名稱：Unicode NFKC、case fold、空白合併
// 名稱唯一性一律以此結果比較，不比對原始字串
func NormalizeName(name string) string {
	text := norm.NFKC.String(name)
	text = cases.Fold().String(text)
	return strings.Join(strings.Fields(text), " ")
}

// NormalizeNameList 將模型回傳的名稱欄位整理成字串切片
// 字串以逗號或分號切開，陣列逐項轉字串
func NormalizeNameList(value interface{}) []string {
	var names []string
	switch v := value.(type) {
	case string:
		for _, part := range nameSplitRe.Split(v, -1) {
			if text := strings.TrimSpace(part); text != "" {
				names = append(names, text)
			}
		}
	case []interface{}:
		for _, item := range v {
			text := ""
			if s, ok := item.(string); ok {
				text = strings.TrimSpace(s)
			}
			if text != "" {
				names = append(names, text)
			}
		}
	case []string:
		for _, item := range v {
			if text := strings.TrimSpace(item); text != "" {
				names = append(names, text)
			}
		}
	}
	return names
}

// SimilarityRatio 計算兩字串的相似度，結果落在 [0,1]
// 演算法等價於 difflib 的 2*M/T：M 為遞迴最長共同子串的字元總數
func SimilarityRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	matched := matchTotal(ra, rb)
	return 2.0 * float64(matched) / float64(total)
}

func matchTotal(a, b []rune) int {
	ai, bi, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchTotal(a[:ai], b[:bi]) +
		matchTotal(a[ai+size:], b[bi+size:])
}

func longestMatch(a, b []rune) (int, int, int) {
	bestA, bestB, bestSize := 0, 0, 0
	// lengths[j] 為以 a[i-1]/b[j-1] 結尾的共同子串長度
	lengths := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		prev := 0
		for j := 1; j <= len(b); j++ {
			cur := lengths[j]
			if a[i-1] == b[j-1] {
				lengths[j] = prev + 1
				if lengths[j] > bestSize {
					bestSize = lengths[j]
					bestA = i - lengths[j]
					bestB = j - lengths[j]
				}
			} else {
				lengths[j] = 0
			}
			prev = cur
		}
	}
	return bestA, bestB, bestSize
}
