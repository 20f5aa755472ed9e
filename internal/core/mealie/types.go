package mealie

import "encoding/json"

// RecipeSummary 食譜清單項目，僅保留管線需要的欄位
type RecipeSummary struct {
	ID                   string `json:"id"`
	Slug                 string `json:"slug"`
	Name                 string `json:"name"`
	GroupID              string `json:"groupId"`
	DateAdded            string `json:"dateAdded,omitempty"`
	HasParsedIngredients bool   `json:"hasParsedIngredients,omitempty"`
}

// Organizer 分類或標籤
type Organizer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	GroupID string `json:"groupId,omitempty"`
}

// Entity 食材、單位或器具等分類法實體
type Entity struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	PluralName   string `json:"pluralName,omitempty"`
	Abbreviation string `json:"abbreviation,omitempty"`
	GroupID      string `json:"groupId,omitempty"`
}

// Label 群組標籤
type Label struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Color   string `json:"color,omitempty"`
	GroupID string `json:"groupId,omitempty"`
}

// Cookbook 食譜書
type Cookbook struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	Position    int    `json:"position,omitempty"`
	GroupID     string `json:"groupId,omitempty"`
}

// ParsedIngredient 解析端點回傳的單筆結果
type ParsedIngredient struct {
	Input      string                 `json:"input"`
	Confidence map[string]float64     `json:"confidence"`
	Ingredient map[string]interface{} `json:"ingredient"`
}

// AverageConfidence 取出解析信心的平均值，缺漏時回傳 0
func (p ParsedIngredient) AverageConfidence() float64 {
	if p.Confidence == nil {
		return 0
	}
	return p.Confidence["average"]
}

// paginatedResponse Mealie 的分頁包裝
type paginatedResponse struct {
	Page       int             `json:"page"`
	PerPage    int             `json:"perPage"`
	Total      int             `json:"total"`
	TotalPages int             `json:"totalPages"`
	Items      json.RawMessage `json:"items"`
	Next       string          `json:"next"`
}
