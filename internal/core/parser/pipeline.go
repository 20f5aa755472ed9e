package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"mealie-organizer/internal/core/mealie"
	"mealie-organizer/internal/infrastructure/config"
	"mealie-organizer/internal/pkg/common"

	"go.uber.org/zap"
)

// 零數量仍合理的單位，例如 a pinch of salt
var zeroQtyAllowedUnits = map[string]bool{
	"pinch": true,
	"dash":  true,
}

// 代表盛盤說明而非食材的片語
var servingPhrases = []string{"for serving", "for garnish", "for dipping"}

var (
	nonIngredientPrefixRe = regexp.MustCompile(`(?i)^(for|to)\s+`)
	digitRe               = regexp.MustCompile(`\d`)
	whitespaceRe          = regexp.MustCompile(`\s+`)
)

// errAlreadyParsed 表示食譜的食材已具結構化食材引用
var errAlreadyParsed = errors.New("recipe already parsed")

// Attempt 單一解析策略的失敗紀錄
type Attempt struct {
	Strategy string `json:"strategy"`
	Error    string `json:"error"`
}

// ReviewRecord 需要人工覆核的食譜紀錄
type ReviewRecord struct {
	Slug              string                   `json:"slug"`
	Name              string                   `json:"name"`
	Reason            string                   `json:"reason"`
	Parser            string                   `json:"parser,omitempty"`
	Error             string                   `json:"error,omitempty"`
	RawLines          []string                 `json:"raw_lines,omitempty"`
	Attempts          []Attempt                `json:"attempts,omitempty"`
	Parsed            []map[string]interface{} `json:"parsed,omitempty"`
	SuspiciousReasons map[string]int           `json:"suspicious_reasons,omitempty"`
}

// Summary 一次解析執行的統計
type Summary struct {
	TotalCandidates         int `json:"total_candidates"`
	ParsedSuccessfully      int `json:"parsed_successfully"`
	RequiresReview          int `json:"requires_review"`
	SkippedEmpty            int `json:"skipped_empty"`
	SkippedAlreadyParsed    int `json:"skipped_already_parsed"`
	DroppedBlankIngredients int `json:"dropped_blank_ingredients"`
}

// Pipeline 食材解析管線
type Pipeline struct {
	client *mealie.Client
	config *config.Config
	dryRun bool
}

// NewPipeline 創建解析管線
func NewPipeline(client *mealie.Client, cfg *config.Config, dryRun bool) *Pipeline {
	return &Pipeline{
		client: client,
		config: cfg,
		dryRun: dryRun || cfg.DryRun,
	}
}

func quantityValue(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func hasEntity(entity interface{}) bool {
	if entity == nil {
		return false
	}
	if m, ok := entity.(map[string]interface{}); ok {
		return stringField(m, "id") != "" || stringField(m, "name") != ""
	}
	return true
}

func entityName(entity interface{}) string {
	if m, ok := entity.(map[string]interface{}); ok {
		return strings.ToLower(stringField(m, "name"))
	}
	return ""
}

// slimEntity 僅保留 id 與 name，捨棄其餘欄位
func slimEntity(entity interface{}) map[string]interface{} {
	m, ok := entity.(map[string]interface{})
	if !ok {
		return nil
	}
	id := stringField(m, "id")
	if id == "" {
		return nil
	}
	return map[string]interface{}{"id": id, "name": stringField(m, "name")}
}

// isBlankIngredient 空白食材：沒有備註、數量為零、也沒有食材與單位
func isBlankIngredient(ingredient map[string]interface{}) bool {
	note := stringField(ingredient, "note")
	quantity := quantityValue(ingredient["quantity"])
	return note == "" && quantity == 0 && !hasEntity(ingredient["food"]) && !hasEntity(ingredient["unit"])
}

// suspicionReason 回傳可疑原因，正常則為空字串
func suspicionReason(ingredient map[string]interface{}) string {
	if isBlankIngredient(ingredient) {
		return ""
	}

	note := strings.ToLower(stringField(ingredient, "note"))
	for _, phrase := range servingPhrases {
		if strings.Contains(note, phrase) {
			return ""
		}
	}

	quantity := quantityValue(ingredient["quantity"])
	unit := ingredient["unit"]
	if quantity == 0 && unit != nil {
		if zeroQtyAllowedUnits[entityName(unit)] || strings.Contains(note, "to taste") {
			return ""
		}
		return "zero_qty_with_unit"
	}

	if ingredient["food"] == nil && note == "" {
		return "missing_food_no_note"
	}
	return ""
}

// ExtractRawLines 從食譜 JSON 取出原始食材文字
// 若每個項目都已帶食材引用則回傳 errAlreadyParsed
func ExtractRawLines(recipe map[string]interface{}) ([]string, error) {
	if raw, ok := recipe["recipeIngredient"]; ok {
		items, _ := raw.([]interface{})
		if len(items) == 0 {
			return nil, nil
		}

		switch items[0].(type) {
		case string:
			var lines []string
			for _, item := range items {
				if s, ok := item.(string); ok {
					if text := strings.TrimSpace(s); text != "" {
						lines = append(lines, text)
					}
				}
			}
			return lines, nil
		case map[string]interface{}:
			allFoodNull := true
			for _, item := range items {
				entry, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				if entry["food"] != nil {
					allFoodNull = false
					break
				}
			}
			if !allFoodNull {
				return nil, errAlreadyParsed
			}
			var lines []string
			for _, item := range items {
				entry, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				text := stringField(entry, "originalText")
				if text == "" {
					text = stringField(entry, "rawText")
				}
				if text == "" {
					text = stringField(entry, "note")
				}
				if text == "" {
					text = stringField(entry, "display")
				}
				if text != "" {
					lines = append(lines, text)
				}
			}
			return lines, nil
		}
		return nil, nil
	}

	if raw, ok := recipe["ingredients"]; ok {
		items, _ := raw.([]interface{})
		var lines []string
		for _, item := range items {
			entry, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if text := stringField(entry, "rawText"); text != "" {
				lines = append(lines, text)
			}
		}
		return lines, nil
	}
	return nil, nil
}

// isNonIngredientHeader 過濾段落標題，例如 "For the sauce:"
func isNonIngredientHeader(line string) bool {
	stripped := strings.TrimSpace(line)
	if stripped == "" {
		return true
	}
	words := len(strings.Fields(stripped))
	if strings.HasSuffix(stripped, ":") && words <= 8 && !digitRe.MatchString(stripped) {
		return true
	}
	if nonIngredientPrefixRe.MatchString(stripped) && words <= 8 && !digitRe.MatchString(stripped) {
		return true
	}
	return false
}

// SanitizeRawLines 正規化並濾除非食材行，回傳保留行與捨棄行數
func SanitizeRawLines(lines []string) ([]string, int) {
	var cleaned []string
	dropped := 0
	for _, raw := range lines {
		line := whitespaceRe.ReplaceAllString(strings.TrimSpace(raw), " ")
		if line == "" {
			dropped++
			continue
		}
		if isNonIngredientHeader(line) {
			dropped++
			continue
		}
		cleaned = append(cleaned, line)
	}
	return cleaned, dropped
}

// ensureFoodObject 解析器只給名稱時在遠端建立食材
// 唯一性衝突代表遠端已存在，交由覆核處理而非重試
func (p *Pipeline) ensureFoodObject(ctx context.Context, food interface{}) map[string]interface{} {
	m, ok := food.(map[string]interface{})
	if !ok {
		return nil
	}
	if stringField(m, "id") != "" {
		return slimEntity(m)
	}
	name := stringField(m, "name")
	if name == "" {
		return nil
	}

	created, err := p.client.CreateFood(ctx, name)
	if err != nil {
		if common.IsConflict(err) || common.IsDuplicateFoodError(err) {
			common.LogWarn("food create duplicate, keeping for review", zap.String("name", name))
			return nil
		}
		common.LogWarn("food create failed", zap.String("name", name), zap.String("error", common.ShortText(err.Error(), 220)))
		return nil
	}
	return map[string]interface{}{"id": created.ID, "name": created.Name}
}

// parseWithFallback 依序嘗試解析策略，全部行都達信心門檻才算成功
func (p *Pipeline) parseWithFallback(ctx context.Context, lines []string) ([]mealie.ParsedIngredient, string, []Attempt) {
	var attempts []Attempt
	for _, strategy := range p.config.Parser.Strategies {
		parsed, err := p.client.ParseIngredients(ctx, strategy, lines)
		if err != nil {
			attempts = append(attempts, Attempt{Strategy: strategy, Error: common.ShortText(err.Error(), 220)})
			continue
		}
		if len(parsed) == 0 {
			attempts = append(attempts, Attempt{Strategy: strategy, Error: "empty parser response"})
			continue
		}
		allConfident := true
		for _, item := range parsed {
			if item.AverageConfidence() < p.config.Parser.ConfidenceThreshold {
				allConfident = false
				break
			}
		}
		if !allConfident {
			attempts = append(attempts, Attempt{Strategy: strategy, Error: "below confidence threshold"})
			continue
		}
		return parsed, strategy, attempts
	}
	return nil, "", attempts
}

// normalizeParsedBlock 正規化解析結果，回傳保留的食材、可疑原因統計與空白捨棄數
func (p *Pipeline) normalizeParsedBlock(ctx context.Context, parsed []mealie.ParsedIngredient) ([]map[string]interface{}, map[string]int, int) {
	var normalized []map[string]interface{}
	suspicious := map[string]int{}
	droppedBlank := 0

	for _, item := range parsed {
		ingredient := map[string]interface{}{}
		for k, v := range item.Ingredient {
			ingredient[k] = v
		}
		ingredient["food"] = normalizeNilMap(p.ensureFoodObject(ctx, ingredient["food"]))
		ingredient["unit"] = normalizeNilMap(slimEntity(ingredient["unit"]))
		delete(ingredient, "confidence")
		delete(ingredient, "display")

		if isBlankIngredient(ingredient) {
			droppedBlank++
			continue
		}
		if reason := suspicionReason(ingredient); reason != "" {
			suspicious[reason]++
		}
		normalized = append(normalized, ingredient)
	}
	return normalized, suspicious, droppedBlank
}

// normalizeNilMap 讓 nil map 在 JSON 序列化時輸出 null 而非型別化 nil
func normalizeNilMap(m map[string]interface{}) interface{} {
	if m == nil {
		return nil
	}
	return m
}

// Run 執行完整的解析管線
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	if t := p.config.Parser.ConfidenceThreshold; t <= 0 || t > 1 {
		return nil, fmt.Errorf("confidence threshold must be between 0 and 1")
	}
	if err := os.MkdirAll(p.config.Parser.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	all, err := p.client.ListRecipeSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}

	var slugs []string
	for _, recipe := range all {
		if recipe.Slug == "" || recipe.HasParsedIngredients {
			continue
		}
		slugs = append(slugs, recipe.Slug)
	}

	if after := p.config.Parser.AfterSlug; after != "" {
		found := -1
		for i, slug := range slugs {
			if slug == after {
				found = i
				break
			}
		}
		if found >= 0 {
			slugs = slugs[found+1:]
			common.LogInfo("resuming after slug", zap.String("slug", after))
		} else {
			common.LogWarn("after-slug not found, starting from beginning", zap.String("slug", after))
		}
	}
	if max := p.config.Parser.MaxRecipes; max > 0 && len(slugs) > max {
		slugs = slugs[:max]
	}

	summary := &Summary{TotalCandidates: len(slugs)}
	if len(slugs) == 0 {
		common.LogInfo("no unparsed recipes found")
		return summary, nil
	}

	var reviews []ReviewRecord
	var successes []string

	for idx, slug := range slugs {
		started := time.Now()

		recipe, err := p.client.GetRecipe(ctx, slug)
		if err != nil {
			reviews = append(reviews, ReviewRecord{Slug: slug, Name: "<unknown>", Reason: "recipe_fetch_failed", Error: err.Error()})
			continue
		}

		recipeName := stringField(recipe, "name")
		if recipeName == "" {
			recipeName = slug
		}

		rawLines, err := ExtractRawLines(recipe)
		if errors.Is(err, errAlreadyParsed) {
			summary.SkippedAlreadyParsed++
			continue
		}
		if len(rawLines) == 0 {
			summary.SkippedEmpty++
			continue
		}

		rawLines, droppedInput := SanitizeRawLines(rawLines)
		if droppedInput > 0 {
			common.LogInfo("dropped non-ingredient lines", zap.String("slug", slug), zap.Int("dropped", droppedInput))
		}
		if len(rawLines) == 0 {
			summary.SkippedEmpty++
			continue
		}

		parsed, parserUsed, attempts := p.parseWithFallback(ctx, rawLines)
		if parserUsed == "" {
			reviews = append(reviews, ReviewRecord{
				Slug:     slug,
				Name:     recipeName,
				Reason:   "parser_failed_threshold",
				RawLines: rawLines,
				Attempts: attempts,
			})
			continue
		}

		normalized, suspicious, droppedBlank := p.normalizeParsedBlock(ctx, parsed)
		summary.DroppedBlankIngredients += droppedBlank
		if len(normalized) == 0 {
			reviews = append(reviews, ReviewRecord{
				Slug:     slug,
				Name:     recipeName,
				Reason:   "no_usable_ingredients_after_cleanup",
				Parser:   parserUsed,
				RawLines: rawLines,
			})
			continue
		}
		if len(suspicious) > 0 {
			// 任何一行可疑就整份送覆核，不做部分寫入
			reviews = append(reviews, ReviewRecord{
				Slug:              slug,
				Name:              recipeName,
				Reason:            "suspicious_result",
				Parser:            parserUsed,
				RawLines:          rawLines,
				Parsed:            normalized,
				SuspiciousReasons: suspicious,
			})
			continue
		}

		if p.dryRun {
			common.LogInfo("plan: would patch ingredients",
				zap.String("slug", slug),
				zap.String("parser", parserUsed),
				zap.Int("ingredients", len(normalized)))
		} else {
			if err := p.client.PatchRecipeIngredients(ctx, slug, normalized); err != nil {
				reviews = append(reviews, ReviewRecord{
					Slug:   slug,
					Name:   recipeName,
					Reason: "patch_failed",
					Parser: parserUsed,
					Error:  err.Error(),
					Parsed: normalized,
				})
				continue
			}
		}

		successes = append(successes, recipeName)
		summary.ParsedSuccessfully++
		common.LogInfo("recipe parsed",
			zap.Int("index", idx+1),
			zap.Int("total", summary.TotalCandidates),
			zap.String("slug", slug),
			zap.String("parser", parserUsed),
			zap.Duration("duration", time.Since(started)))

		if p.config.Parser.Delay > 0 {
			time.Sleep(p.config.Parser.Delay)
		}
	}

	if len(successes) > 0 {
		successPath := filepath.Join(p.config.Parser.OutputDir, p.config.Parser.SuccessFile)
		if err := os.WriteFile(successPath, []byte(strings.Join(successes, "\n")), 0o644); err != nil {
			common.LogWarn("failed to write success log", zap.Error(err))
		} else {
			common.LogInfo("parsed recipes written", zap.Int("count", len(successes)), zap.String("path", successPath))
		}
	}
	if len(reviews) > 0 {
		reviewPath := filepath.Join(p.config.Parser.OutputDir, p.config.Parser.LowConfidenceFile)
		if err := common.WriteJSONFile(reviewPath, reviews); err != nil {
			common.LogWarn("failed to write review file", zap.Error(err))
		}
		summary.RequiresReview = len(reviews)
		common.LogWarn("recipes need review", zap.Int("count", len(reviews)), zap.String("path", reviewPath))
	}
	return summary, nil
}
