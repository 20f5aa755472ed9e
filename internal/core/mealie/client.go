package mealie

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"mealie-organizer/internal/infrastructure/config"
	"mealie-organizer/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const defaultPerPage = 1000

// Client Mealie API 用戶端
type Client struct {
	config *config.Config
	client *resty.Client
	// 基底路徑（通常是 /api），用於修正分頁 next 連結
	basePath string
}

// NewClient 創建 Mealie 用戶端
func NewClient(cfg *config.Config) *Client {
	parsed, _ := url.Parse(cfg.Mealie.URL)
	basePath := ""
	if parsed != nil {
		basePath = strings.TrimRight(parsed.Path, "/")
	}

	client := resty.New().
		SetBaseURL(cfg.Mealie.URL).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.Mealie.APIKey)).
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.Mealie.Timeout).
		SetRetryCount(cfg.Mealie.Retries).
		SetRetryWaitTime(cfg.Mealie.Backoff).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil || r.Request == nil {
				return err != nil
			}
			// 僅重試冪等的 GET，429 與 5xx 視為暫時性失敗
			if r.Request.Method != http.MethodGet {
				return false
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})

	return &Client{
		config:   cfg,
		client:   client,
		basePath: basePath,
	}
}

// apiError 將非 2xx 回應包成 APIError
func (c *Client) apiError(method string, resp *resty.Response) error {
	return common.NewAPIError(method, resp.Request.URL, resp.StatusCode(), resp.String(), nil)
}

// normalizeNext 修正分頁 next 連結
// Mealie 回傳的 next 可能缺少 /api 前綴，也可能重複帶上基底路徑
func (c *Client) normalizeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" {
		return ""
	}
	if parsed, err := url.Parse(next); err == nil && parsed.Host != "" {
		next = parsed.RequestURI()
	}
	if c.basePath != "" && strings.HasPrefix(next, c.basePath+"/") {
		next = strings.TrimPrefix(next, c.basePath)
	}
	if !strings.HasPrefix(next, "/") {
		next = "/" + next
	}
	return next
}

// fetchAllPages 逐頁抓取並交給 onPage 解碼
func (c *Client) fetchAllPages(ctx context.Context, path string, perPage int, params map[string]string, onPage func(items json.RawMessage) error) error {
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	query := map[string]string{
		"page":    "1",
		"perPage": fmt.Sprintf("%d", perPage),
	}
	for k, v := range params {
		query[k] = v
	}

	next := path
	useQuery := true
	for next != "" {
		req := c.client.R().SetContext(ctx)
		if useQuery {
			req.SetQueryParams(query)
		}
		resp, err := req.Get(next)
		if err != nil {
			return fmt.Errorf("failed to fetch %s: %w", next, err)
		}
		if resp.StatusCode() >= 400 {
			return c.apiError(http.MethodGet, resp)
		}

		var page paginatedResponse
		if err := json.Unmarshal(resp.Body(), &page); err != nil {
			return fmt.Errorf("failed to parse page of %s: %w", next, err)
		}
		if len(page.Items) > 0 {
			if err := onPage(page.Items); err != nil {
				return err
			}
		}

		next = c.normalizeNext(page.Next)
		// next 連結已含查詢參數
		useQuery = false
	}
	return nil
}

// ListRecipes 列出所有食譜的原始項目，保留未知欄位
// 食譜列表使用設定的分頁大小，分類法端點固定抓大頁
func (c *Client) ListRecipes(ctx context.Context) ([]map[string]interface{}, error) {
	var recipes []map[string]interface{}
	err := c.fetchAllPages(ctx, "/recipes", c.config.Parser.PageSize, nil, func(items json.RawMessage) error {
		var page []map[string]interface{}
		if err := json.Unmarshal(items, &page); err != nil {
			return fmt.Errorf("unexpected recipes page: %w", err)
		}
		recipes = append(recipes, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	common.LogDebug("fetched recipes", zap.Int("count", len(recipes)))
	return recipes, nil
}

// ListRecipeSummaries 列出食譜摘要
func (c *Client) ListRecipeSummaries(ctx context.Context) ([]RecipeSummary, error) {
	var summaries []RecipeSummary
	err := c.fetchAllPages(ctx, "/recipes", c.config.Parser.PageSize, nil, func(items json.RawMessage) error {
		var page []RecipeSummary
		if err := json.Unmarshal(items, &page); err != nil {
			return fmt.Errorf("unexpected recipes page: %w", err)
		}
		summaries = append(summaries, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// GetRecipe 取得單一食譜的完整內容
func (c *Client) GetRecipe(ctx context.Context, slug string) (map[string]interface{}, error) {
	resp, err := c.client.R().SetContext(ctx).Get("/recipes/" + slug)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recipe %s: %w", slug, err)
	}
	if resp.StatusCode() >= 400 {
		return nil, c.apiError(http.MethodGet, resp)
	}

	var recipe map[string]interface{}
	if err := json.Unmarshal(resp.Body(), &recipe); err != nil {
		return nil, fmt.Errorf("failed to parse recipe %s: %w", slug, err)
	}
	return recipe, nil
}

// PatchRecipe 局部更新食譜
func (c *Client) PatchRecipe(ctx context.Context, slug string, patch map[string]interface{}) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(patch).
		Patch("/recipes/" + slug)
	if err != nil {
		return fmt.Errorf("failed to patch recipe %s: %w", slug, err)
	}
	if resp.StatusCode() >= 400 {
		return c.apiError(http.MethodPatch, resp)
	}
	return nil
}

// PatchRecipeIngredients 覆寫食譜的食材清單
func (c *Client) PatchRecipeIngredients(ctx context.Context, slug string, ingredients []map[string]interface{}) error {
	return c.PatchRecipe(ctx, slug, map[string]interface{}{"recipeIngredient": ingredients})
}

// ParseIngredients 呼叫 Mealie 的食材解析端點
func (c *Client) ParseIngredients(ctx context.Context, strategy string, ingredients []string) ([]ParsedIngredient, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"strategy":    strategy,
			"ingredients": ingredients,
		}).
		Post("/parser/ingredients")
	if err != nil {
		return nil, fmt.Errorf("failed to parse ingredients with %s: %w", strategy, err)
	}
	if resp.StatusCode() >= 400 {
		return nil, c.apiError(http.MethodPost, resp)
	}

	var parsed []ParsedIngredient
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("unexpected parser response: %w", err)
	}
	return parsed, nil
}

// ----- 組織器（分類與標籤） -----

func (c *Client) listOrganizers(ctx context.Context, path string) ([]Organizer, error) {
	var organizers []Organizer
	err := c.fetchAllPages(ctx, path, defaultPerPage, nil, func(items json.RawMessage) error {
		var page []Organizer
		if err := json.Unmarshal(items, &page); err != nil {
			return fmt.Errorf("unexpected organizer page: %w", err)
		}
		organizers = append(organizers, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return organizers, nil
}

func (c *Client) createOrganizer(ctx context.Context, path, name string) (*Organizer, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"name": name}).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create organizer %q: %w", name, err)
	}
	if resp.StatusCode() >= 400 {
		return nil, c.apiError(http.MethodPost, resp)
	}

	var organizer Organizer
	if err := json.Unmarshal(resp.Body(), &organizer); err != nil {
		return nil, fmt.Errorf("unexpected organizer response: %w", err)
	}
	return &organizer, nil
}

func (c *Client) deleteByID(ctx context.Context, path, id string) error {
	resp, err := c.client.R().SetContext(ctx).Delete(path + "/" + id)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", path, id, err)
	}
	if resp.StatusCode() >= 400 {
		return c.apiError(http.MethodDelete, resp)
	}
	return nil
}

// ListCategories 列出所有分類
func (c *Client) ListCategories(ctx context.Context) ([]Organizer, error) {
	return c.listOrganizers(ctx, "/organizers/categories")
}

// CreateCategory 建立分類
func (c *Client) CreateCategory(ctx context.Context, name string) (*Organizer, error) {
	return c.createOrganizer(ctx, "/organizers/categories", name)
}

// DeleteCategory 刪除分類
func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	return c.deleteByID(ctx, "/organizers/categories", id)
}

// ListTags 列出所有標籤
func (c *Client) ListTags(ctx context.Context) ([]Organizer, error) {
	return c.listOrganizers(ctx, "/organizers/tags")
}

// CreateTag 建立標籤
func (c *Client) CreateTag(ctx context.Context, name string) (*Organizer, error) {
	return c.createOrganizer(ctx, "/organizers/tags", name)
}

// DeleteTag 刪除標籤
func (c *Client) DeleteTag(ctx context.Context, id string) error {
	return c.deleteByID(ctx, "/organizers/tags", id)
}

// ----- 分類法實體（食材、單位、器具） -----

func (c *Client) listEntities(ctx context.Context, path string) ([]Entity, error) {
	var entities []Entity
	err := c.fetchAllPages(ctx, path, defaultPerPage, nil, func(items json.RawMessage) error {
		var page []Entity
		if err := json.Unmarshal(items, &page); err != nil {
			return fmt.Errorf("unexpected entity page: %w", err)
		}
		entities = append(entities, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entities, nil
}

func (c *Client) createEntity(ctx context.Context, path string, body map[string]string) (*Entity, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create entity %q: %w", body["name"], err)
	}
	if resp.StatusCode() >= 400 {
		return nil, c.apiError(http.MethodPost, resp)
	}

	var entity Entity
	if err := json.Unmarshal(resp.Body(), &entity); err != nil {
		return nil, fmt.Errorf("unexpected entity response: %w", err)
	}
	return &entity, nil
}

// mergePayloads 各版本 Mealie 接受的合併欄位名稱，依序嘗試
func mergePayloads(kind, fromID, toID string) []map[string]string {
	payloads := []map[string]string{
		{"fromId": fromID, "toId": toID},
		{"from": fromID, "to": toID},
		{"sourceId": fromID, "targetId": toID},
	}
	switch kind {
	case "food":
		payloads = append(payloads, map[string]string{"fromFood": fromID, "toFood": toID})
	case "unit":
		payloads = append(payloads, map[string]string{"fromUnit": fromID, "toUnit": toID})
	case "tool":
		payloads = append(payloads, map[string]string{"fromTool": fromID, "toTool": toID})
	}
	return payloads
}

// mergeEntities 嘗試各種合併欄位格式，直到其一成功
// 任何錯誤狀態都換下一種格式，全部失敗才回報最後一個錯誤
func (c *Client) mergeEntities(ctx context.Context, path, kind, fromID, toID string) error {
	var lastErr error
	for _, payload := range mergePayloads(kind, fromID, toID) {
		resp, err := c.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(payload).
			Post(path)
		if err != nil {
			return fmt.Errorf("failed to merge %s %s into %s: %w", kind, fromID, toID, err)
		}
		if resp.StatusCode() < 400 {
			return nil
		}
		lastErr = c.apiError(http.MethodPost, resp)
	}
	return fmt.Errorf("all merge payload shapes rejected for %s: %w", kind, lastErr)
}

// ListFoods 列出所有食材
func (c *Client) ListFoods(ctx context.Context) ([]Entity, error) {
	return c.listEntities(ctx, "/foods")
}

// CreateFood 建立食材
func (c *Client) CreateFood(ctx context.Context, name string) (*Entity, error) {
	return c.createEntity(ctx, "/foods", map[string]string{"name": name})
}

// MergeFoods 將 fromID 食材併入 toID
func (c *Client) MergeFoods(ctx context.Context, fromID, toID string) error {
	return c.mergeEntities(ctx, "/foods/merge", "food", fromID, toID)
}

// ListUnits 列出所有單位
func (c *Client) ListUnits(ctx context.Context) ([]Entity, error) {
	return c.listEntities(ctx, "/units")
}

// CreateUnit 建立單位
func (c *Client) CreateUnit(ctx context.Context, name, abbreviation string) (*Entity, error) {
	body := map[string]string{"name": name}
	if abbreviation != "" {
		body["abbreviation"] = abbreviation
	}
	return c.createEntity(ctx, "/units", body)
}

// MergeUnits 將 fromID 單位併入 toID
func (c *Client) MergeUnits(ctx context.Context, fromID, toID string) error {
	return c.mergeEntities(ctx, "/units/merge", "unit", fromID, toID)
}

// ListTools 列出所有器具
func (c *Client) ListTools(ctx context.Context) ([]Entity, error) {
	return c.listEntities(ctx, "/tools")
}

// CreateTool 建立器具
func (c *Client) CreateTool(ctx context.Context, name string) (*Entity, error) {
	return c.createEntity(ctx, "/tools", map[string]string{"name": name})
}

// MergeTools 將 fromID 器具併入 toID
func (c *Client) MergeTools(ctx context.Context, fromID, toID string) error {
	return c.mergeEntities(ctx, "/tools/merge", "tool", fromID, toID)
}

// ----- 群組標籤 -----

// ListLabels 列出群組標籤
func (c *Client) ListLabels(ctx context.Context) ([]Label, error) {
	var labels []Label
	err := c.fetchAllPages(ctx, "/groups/labels", defaultPerPage, nil, func(items json.RawMessage) error {
		var page []Label
		if err := json.Unmarshal(items, &page); err != nil {
			return fmt.Errorf("unexpected label page: %w", err)
		}
		labels = append(labels, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return labels, nil
}

// CreateLabel 建立群組標籤
func (c *Client) CreateLabel(ctx context.Context, name, color string) (*Label, error) {
	body := map[string]string{"name": name}
	if color != "" {
		body["color"] = color
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/groups/labels")
	if err != nil {
		return nil, fmt.Errorf("failed to create label %q: %w", name, err)
	}
	if resp.StatusCode() >= 400 {
		return nil, c.apiError(http.MethodPost, resp)
	}

	var label Label
	if err := json.Unmarshal(resp.Body(), &label); err != nil {
		return nil, fmt.Errorf("unexpected label response: %w", err)
	}
	return &label, nil
}

// DeleteLabel 刪除群組標籤
func (c *Client) DeleteLabel(ctx context.Context, id string) error {
	return c.deleteByID(ctx, "/groups/labels", id)
}

// ----- 食譜書 -----

// ListCookbooks 列出食譜書
func (c *Client) ListCookbooks(ctx context.Context) ([]Cookbook, error) {
	var cookbooks []Cookbook
	err := c.fetchAllPages(ctx, "/households/cookbooks", defaultPerPage, nil, func(items json.RawMessage) error {
		var page []Cookbook
		if err := json.Unmarshal(items, &page); err != nil {
			return fmt.Errorf("unexpected cookbook page: %w", err)
		}
		cookbooks = append(cookbooks, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cookbooks, nil
}

// CreateCookbook 建立食譜書
func (c *Client) CreateCookbook(ctx context.Context, book map[string]interface{}) (*Cookbook, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(book).
		Post("/households/cookbooks")
	if err != nil {
		return nil, fmt.Errorf("failed to create cookbook: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return nil, c.apiError(http.MethodPost, resp)
	}

	var cookbook Cookbook
	if err := json.Unmarshal(resp.Body(), &cookbook); err != nil {
		return nil, fmt.Errorf("unexpected cookbook response: %w", err)
	}
	return &cookbook, nil
}

// UpdateCookbook 更新食譜書
func (c *Client) UpdateCookbook(ctx context.Context, id string, book map[string]interface{}) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(book).
		Put("/households/cookbooks/" + id)
	if err != nil {
		return fmt.Errorf("failed to update cookbook %s: %w", id, err)
	}
	if resp.StatusCode() >= 400 {
		return c.apiError(http.MethodPut, resp)
	}
	return nil
}

// DeleteCookbook 刪除食譜書
func (c *Client) DeleteCookbook(ctx context.Context, id string) error {
	return c.deleteByID(ctx, "/households/cookbooks", id)
}

// ----- 使用者 -----

// SelfWithToken 以轉發的使用者 token 查詢目前使用者，供外掛伺服器驗證
func (c *Client) SelfWithToken(ctx context.Context, token string) (map[string]interface{}, int, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", token)).
		Get("/users/self")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch current user: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return nil, resp.StatusCode(), c.apiError(http.MethodGet, resp)
	}

	var user map[string]interface{}
	if err := json.Unmarshal(resp.Body(), &user); err != nil {
		return nil, resp.StatusCode(), fmt.Errorf("unexpected user response: %w", err)
	}
	return user, resp.StatusCode(), nil
}
