package categorizer

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"mealie-organizer/internal/core/ai/provider"
	"mealie-organizer/internal/core/ai/resultcache"
	"mealie-organizer/internal/core/mealie"
	"mealie-organizer/internal/infrastructure/config"
	"mealie-organizer/internal/pkg/common"

	"go.uber.org/zap"
)

// 目標選擇策略，一次執行只用一種
const (
	TargetMissingCategories = "missing-categories"
	TargetMissingTags       = "missing-tags"
	TargetMissingEither     = "missing-either"
)

// 提示詞中剔除的雜訊標籤片語
var noisyTagPhrases = []string{"how to make", "recipe", "without drippings", "from drippings", "from scratch"}

// Engine 並行的食譜分類引擎
type Engine struct {
	client   *mealie.Client
	provider provider.Provider
	cache    resultcache.Store
	config   *config.Config

	ReplaceExisting bool
	TargetMode      string
	DryRun          bool

	stats    Stats
	progress progress
	start    time.Time
}

// NewEngine 創建分類引擎
func NewEngine(client *mealie.Client, prov provider.Provider, cache resultcache.Store, cfg *config.Config) *Engine {
	return &Engine{
		client:     client,
		provider:   prov,
		cache:      cache,
		config:     cfg,
		TargetMode: TargetMissingEither,
		DryRun:     cfg.DryRun,
	}
}

// Stats 目前統計複本
func (e *Engine) Stats() Stats {
	return e.stats.Snapshot()
}

// safeQueryWithRetry 查詢並防禦性解析，失敗時指數退避加抖動重試
func (e *Engine) safeQueryWithRetry(ctx context.Context, prompt string) (interface{}, bool) {
	attempts := e.config.Categorizer.QueryRetries
	if attempts < 1 {
		attempts = 1
	}
	base := e.config.Categorizer.QueryRetryBase.Seconds()

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := e.provider.Query(ctx, prompt)
		if err != nil {
			common.LogWarn("provider query failed", zap.Error(err))
		} else if result != "" {
			if parsed, ok := common.ParseModelJSON(result); ok {
				return parsed, true
			}
		}
		common.LogWarn("query retry failed", zap.Int("attempt", attempt+1), zap.Int("attempts", attempts))
		e.stats.add(&e.stats.QueryRetryWarnings, 1)
		if attempt < attempts-1 {
			sleep := time.Duration((base*float64(int(1)<<attempt) + rand.Float64()*0.75) * float64(time.Second))
			select {
			case <-ctx.Done():
				e.stats.add(&e.stats.QueryFailures, 1)
				return nil, false
			case <-time.After(sleep):
			}
		}
	}
	e.stats.add(&e.stats.QueryFailures, 1)
	return nil, false
}

func listField(recipe map[string]interface{}, key string) []interface{} {
	if items, ok := recipe[key].([]interface{}); ok {
		return items
	}
	return nil
}

func slugOf(recipe map[string]interface{}) string {
	slug, _ := recipe["slug"].(string)
	return strings.TrimSpace(slug)
}

// buildTagUsage 各標籤在食譜中出現的次數
func buildTagUsage(recipes []map[string]interface{}) map[string]int {
	usage := map[string]int{}
	for _, recipe := range recipes {
		for _, raw := range listField(recipe, "tags") {
			tag, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			if name, ok := tag["name"].(string); ok {
				if trimmed := strings.TrimSpace(name); trimmed != "" {
					usage[trimmed]++
				}
			}
		}
	}
	return usage
}

// filterTagCandidates 剔除過長、過於少用或名稱含雜訊片語的標籤
func (e *Engine) filterTagCandidates(tags []mealie.Organizer, recipes []map[string]interface{}) []string {
	usage := buildTagUsage(recipes)
	maxLen := e.config.Categorizer.TagMaxNameLength
	minUsage := e.config.Categorizer.TagMinUsage

	seen := map[string]bool{}
	var candidates []string
	excluded := 0

	for _, tag := range tags {
		name := strings.TrimSpace(tag.Name)
		if name == "" {
			continue
		}
		tooLong := maxLen > 0 && len(name) > maxLen
		tooRare := minUsage > 0 && usage[name] < minUsage
		noisy := false
		lowered := strings.ToLower(name)
		for _, phrase := range noisyTagPhrases {
			if strings.Contains(lowered, phrase) {
				noisy = true
				break
			}
		}
		if tooLong || tooRare || noisy {
			excluded++
			continue
		}
		if !seen[name] {
			seen[name] = true
			candidates = append(candidates, name)
		}
	}

	if excluded > 0 {
		common.LogInfo("excluding low-quality tag candidates from prompting", zap.Int("excluded", excluded))
		e.stats.add(&e.stats.ExcludedTagCandidates, excluded)
	}
	sort.Strings(candidates)
	return candidates
}

// selectTargets 依策略挑出要處理的食譜
func (e *Engine) selectTargets(all []map[string]interface{}) []map[string]interface{} {
	if e.ReplaceExisting {
		return all
	}
	var targets []map[string]interface{}
	for _, recipe := range all {
		missingCategories := len(listField(recipe, "recipeCategory")) == 0
		missingTags := len(listField(recipe, "tags")) == 0
		switch e.TargetMode {
		case TargetMissingCategories:
			if missingCategories {
				targets = append(targets, recipe)
			}
		case TargetMissingTags:
			if missingTags {
				targets = append(targets, recipe)
			}
		default:
			if missingCategories || missingTags {
				targets = append(targets, recipe)
			}
		}
	}
	return targets
}

func extractEntryForSlug(parsed interface{}, slug string) map[string]interface{} {
	entries, ok := parsed.([]interface{})
	if !ok {
		return nil
	}
	for _, raw := range entries {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if entrySlug, _ := entry["slug"].(string); strings.TrimSpace(entrySlug) == slug {
			return entry
		}
	}
	return nil
}

// parseEntryLabels 模型偶爾改用 tag 或 labels 當鍵名，一併接受
func parseEntryLabels(entry map[string]interface{}) (categories, tags []string) {
	categories = common.NormalizeNameList(entry["categories"])
	tagsField := entry["tags"]
	if tagsField == nil {
		if entry["tag"] != nil {
			tagsField = entry["tag"]
		} else {
			tagsField = entry["labels"]
		}
	}
	tags = common.NormalizeNameList(tagsField)
	return categories, tags
}

// ensureTagsForEntries 對缺標籤的條目補發一次限定範圍的標籤提示
// 分類沒有對應的補問機制
func (e *Engine) ensureTagsForEntries(ctx context.Context, entries []interface{}, recipesBySlug map[string]map[string]interface{}, tagNames []string) {
	var missing []map[string]interface{}
	seen := map[string]bool{}
	for _, raw := range entries {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		slug, _ := entry["slug"].(string)
		slug = strings.TrimSpace(slug)
		recipe, known := recipesBySlug[slug]
		if slug == "" || !known || len(common.NormalizeNameList(entry["tags"])) > 0 {
			continue
		}
		if !seen[slug] {
			seen[slug] = true
			missing = append(missing, recipe)
		}
	}
	if len(missing) == 0 {
		return
	}

	parsed, ok := e.safeQueryWithRetry(ctx, makeTagPrompt(missing, tagNames))
	if !ok {
		return
	}
	results, ok := parsed.([]interface{})
	if !ok {
		return
	}

	tagMap := map[string][]string{}
	for _, raw := range results {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		slug, _ := item["slug"].(string)
		slug = strings.TrimSpace(slug)
		if slug == "" {
			continue
		}
		if tags := common.NormalizeNameList(item["tags"]); len(tags) > 0 {
			tagMap[slug] = tags
		}
	}

	for _, raw := range entries {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		slug, _ := entry["slug"].(string)
		slug = strings.TrimSpace(slug)
		if tags, ok := tagMap[slug]; ok && len(common.NormalizeNameList(entry["tags"])) == 0 {
			converted := make([]interface{}, len(tags))
			for i, tag := range tags {
				converted[i] = tag
			}
			entry["tags"] = converted
		}
	}
}

// updateRecipeMetadata 比對目錄套用新分類與標籤
// 名稱大小寫不敏感比對，目錄中不存在的名稱直接忽略
func (e *Engine) updateRecipeMetadata(
	ctx context.Context,
	recipe map[string]interface{},
	categoryNames, tagNames []string,
	categoriesByName, tagsByName map[string]mealie.Organizer,
) bool {
	slug := slugOf(recipe)

	var existingCategories, existingTags []interface{}
	if !e.ReplaceExisting {
		existingCategories = listField(recipe, "recipeCategory")
		existingTags = listField(recipe, "tags")
	}

	existingSlug := func(items []interface{}) map[string]bool {
		set := map[string]bool{}
		for _, raw := range items {
			if item, ok := raw.(map[string]interface{}); ok {
				if s, ok := item["slug"].(string); ok {
					set[s] = true
				}
			}
		}
		return set
	}

	catSlugs := existingSlug(existingCategories)
	tagSlugs := existingSlug(existingTags)
	updatedCategories := append([]interface{}{}, existingCategories...)
	updatedTags := append([]interface{}{}, existingTags...)

	appendMatches := func(names []string, lookup map[string]mealie.Organizer, existingSet map[string]bool, target *[]interface{}) (bool, []string) {
		changed := false
		var added []string
		for _, name := range names {
			match, ok := lookup[strings.ToLower(strings.TrimSpace(name))]
			if !ok {
				continue
			}
			if existingSet[match.Slug] {
				continue
			}
			*target = append(*target, map[string]interface{}{
				"id":      match.ID,
				"name":    match.Name,
				"slug":    match.Slug,
				"groupId": match.GroupID,
			})
			existingSet[match.Slug] = true
			changed = true
			added = append(added, match.Name)
		}
		return changed, added
	}

	catsChanged, catsAdded := appendMatches(categoryNames, categoriesByName, catSlugs, &updatedCategories)
	tagsChanged, tagsAdded := appendMatches(tagNames, tagsByName, tagSlugs, &updatedTags)

	if !catsChanged && !tagsChanged {
		e.stats.add(&e.stats.RecipesNoChange, 1)
		return false
	}

	payload := map[string]interface{}{}
	if catsChanged {
		payload["recipeCategory"] = updatedCategories
	}
	if tagsChanged {
		payload["tags"] = updatedTags
	}

	if e.DryRun {
		common.LogInfo("plan: would update recipe",
			zap.String("slug", slug),
			zap.Strings("categories_added", catsAdded),
			zap.Strings("tags_added", tagsAdded))
		e.stats.add(&e.stats.RecipesPlanned, 1)
		e.stats.add(&e.stats.CategoriesAdded, len(catsAdded))
		e.stats.add(&e.stats.TagsAdded, len(tagsAdded))
		return true
	}

	if err := e.client.PatchRecipe(ctx, slug, payload); err != nil {
		common.LogError("recipe update failed", zap.String("slug", slug), zap.Error(err))
		e.stats.add(&e.stats.UpdateFailures, 1)
		return false
	}

	common.LogInfo("recipe updated",
		zap.String("slug", slug),
		zap.Strings("categories_added", catsAdded),
		zap.Strings("tags_added", tagsAdded))
	e.stats.add(&e.stats.RecipesUpdated, 1)
	e.stats.add(&e.stats.CategoriesAdded, len(catsAdded))
	e.stats.add(&e.stats.TagsAdded, len(tagsAdded))

	names := func(items []interface{}) []string {
		var out []string
		for _, raw := range items {
			if item, ok := raw.(map[string]interface{}); ok {
				if name, ok := item["name"].(string); ok {
					out = append(out, name)
				}
			}
		}
		return out
	}
	// 每筆成功寫入後立即落盤，中斷最多損失一筆快取
	if err := e.cache.Put(ctx, slug, resultcache.Entry{
		Categories: names(updatedCategories),
		Tags:       names(updatedTags),
	}); err != nil {
		common.LogWarn("failed to persist result cache", zap.String("slug", slug), zap.Error(err))
	}
	return true
}

// applyParsedEntriesToBatch 把模型回應套用到批次中的食譜
func (e *Engine) applyParsedEntriesToBatch(
	ctx context.Context,
	batch []map[string]interface{},
	parsed []interface{},
	tagNames []string,
	categoriesByName, tagsByName map[string]mealie.Organizer,
) int {
	recipesBySlug := map[string]map[string]interface{}{}
	for _, recipe := range batch {
		if slug := slugOf(recipe); slug != "" {
			recipesBySlug[slug] = recipe
		}
	}
	processed := map[string]bool{}
	e.ensureTagsForEntries(ctx, parsed, recipesBySlug, tagNames)

	for _, raw := range parsed {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		slug, _ := entry["slug"].(string)
		slug = strings.TrimSpace(slug)
		if slug == "" {
			continue
		}
		recipe, known := recipesBySlug[slug]
		if !known {
			common.LogWarn("ignoring unknown slug from model", zap.String("slug", slug))
			e.stats.add(&e.stats.UnknownSlugCount, 1)
			continue
		}

		categories, tags := parseEntryLabels(entry)
		e.updateRecipeMetadata(ctx, recipe, categories, tags, categoriesByName, tagsByName)
		processed[slug] = true
	}

	missing := 0
	for slug := range recipesBySlug {
		if !processed[slug] {
			missing++
		}
	}
	if missing > 0 {
		common.LogWarn("model returned no data for some recipes", zap.Int("missing", missing))
		e.stats.add(&e.stats.ModelMissingEntryCount, missing)
	}
	return len(recipesBySlug)
}

// classifySingleRecipeWithFallback 單食譜重試組合提示，再退而分拆成分類與標籤兩問
func (e *Engine) classifySingleRecipeWithFallback(ctx context.Context, recipe map[string]interface{}, categoryNames, tagNames []string) (categories, tags []string, ok bool) {
	slug := slugOf(recipe)
	if slug == "" {
		return nil, nil, false
	}

	single := []map[string]interface{}{recipe}
	parsed, _ := e.safeQueryWithRetry(ctx, makePrompt(single, categoryNames, tagNames))
	if entry := extractEntryForSlug(parsed, slug); entry != nil {
		categories, tags = parseEntryLabels(entry)
		return categories, tags, true
	}

	common.LogWarn("per-recipe classify failed, trying split prompts", zap.String("slug", slug))

	categoryResults, _ := e.safeQueryWithRetry(ctx, makeCategoryPrompt(single, categoryNames))
	if entry := extractEntryForSlug(categoryResults, slug); entry != nil {
		categories = common.NormalizeNameList(entry["categories"])
	}

	tagResults, _ := e.safeQueryWithRetry(ctx, makeTagPrompt(single, tagNames))
	if entry := extractEntryForSlug(tagResults, slug); entry != nil {
		_, tags = parseEntryLabels(entry)
	}

	if len(categories) == 0 && len(tags) == 0 {
		return nil, nil, false
	}
	return categories, tags, true
}

// processBatchWithFallback 批次解析失敗後逐食譜處理
func (e *Engine) processBatchWithFallback(ctx context.Context, batch []map[string]interface{}, categoryNames, tagNames []string, categoriesByName, tagsByName map[string]mealie.Organizer) {
	common.LogWarn("falling back to per-recipe classification for this batch")
	e.stats.add(&e.stats.FallbackBatches, 1)

	for _, recipe := range batch {
		slug := slugOf(recipe)
		e.stats.add(&e.stats.PerRecipeFallbackAttempts, 1)
		categories, tags, ok := e.classifySingleRecipeWithFallback(ctx, recipe, categoryNames, tagNames)
		if !ok {
			common.LogWarn("no classification after fallback attempts", zap.String("slug", slug))
			e.stats.add(&e.stats.PerRecipeNoClassification, 1)
			e.progress.advance(1)
			continue
		}
		e.updateRecipeMetadata(ctx, recipe, categories, tags, categoriesByName, tagsByName)
		e.progress.advance(1)
	}
}

// processBatch 處理單一批次：快取預跳、組合提示、失敗時退回逐食譜
func (e *Engine) processBatch(ctx context.Context, batch []map[string]interface{}, categoryNames, tagNames []string, categoriesByName, tagsByName map[string]mealie.Organizer) {
	if len(batch) == 0 {
		return
	}

	// dry-run 故意停用快取預跳，完整評估整個目標集
	if !e.ReplaceExisting && !e.DryRun {
		var remaining []map[string]interface{}
		skipped := 0
		for _, recipe := range batch {
			slug := slugOf(recipe)
			cached := slug != "" && e.cache.Contains(ctx, slug) &&
				len(listField(recipe, "recipeCategory")) > 0 && len(listField(recipe, "tags")) > 0
			if cached {
				skipped++
				continue
			}
			remaining = append(remaining, recipe)
		}
		if skipped > 0 {
			e.progress.advance(skipped)
			e.stats.add(&e.stats.CachedSkipped, skipped)
		}
		batch = remaining
		if len(batch) == 0 {
			return
		}
	}

	parsed, ok := e.safeQueryWithRetry(ctx, makePrompt(batch, categoryNames, tagNames))
	entries, isList := parsed.([]interface{})
	if !ok || !isList {
		common.LogWarn("batch failed parsing after retries")
		e.stats.add(&e.stats.BatchParseFailures, 1)
		e.processBatchWithFallback(ctx, batch, categoryNames, tagNames, categoriesByName, tagsByName)
		return
	}

	processed := e.applyParsedEntriesToBatch(ctx, batch, entries, tagNames, categoriesByName, tagsByName)
	e.progress.advance(processed)
}

// etaReporter 背景回報吞吐與預估剩餘時間，每五秒一次
func (e *Engine) etaReporter(stop <-chan struct{}) {
	lastDone := -1
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		done, total := e.progress.snapshot()
		if total == 0 || done >= total {
			return
		}
		if done != lastDone {
			e.logProgress(done, total)
			lastDone = done
		}
	}
}

func (e *Engine) logProgress(done, total int) {
	elapsed := time.Since(e.start).Seconds()
	if elapsed <= 0 {
		elapsed = 1e-9
	}
	rate := float64(done) / elapsed
	eta := "inf min"
	if rate > 0 {
		remaining := float64(total-done) / rate
		eta = fmt.Sprintf("%.1f min", remaining/60)
	}
	common.LogInfo("progress",
		zap.Int("done", done),
		zap.Int("total", total),
		zap.String("rate", fmt.Sprintf("%.2f/s", rate)),
		zap.String("eta", eta))
}

func (e *Engine) printSummary() {
	done, total := e.progress.snapshot()
	elapsed := time.Since(e.start).Seconds()
	if elapsed <= 0 {
		elapsed = 1e-9
	}
	stats := e.stats.Snapshot()
	common.LogInfo("run metrics",
		zap.Int("done", done),
		zap.Int("total", total),
		zap.Int("updated", stats.RecipesUpdated),
		zap.Int("planned", stats.RecipesPlanned),
		zap.Int("unchanged", stats.RecipesNoChange),
		zap.Int("cached_skipped", stats.CachedSkipped),
		zap.Int("unclassified", stats.PerRecipeNoClassification))
	common.LogInfo("run metrics (queries)",
		zap.Int("retries", stats.QueryRetryWarnings),
		zap.Int("exhausted_queries", stats.QueryFailures),
		zap.Int("batch_parse_failures", stats.BatchParseFailures),
		zap.Int("fallback_batches", stats.FallbackBatches),
		zap.Int("per_recipe_fallbacks", stats.PerRecipeFallbackAttempts))
	common.LogInfo("run metrics (writes)",
		zap.Int("categories_added", stats.CategoriesAdded),
		zap.Int("tags_added", stats.TagsAdded),
		zap.Int("update_failures", stats.UpdateFailures),
		zap.Int("unknown_slugs", stats.UnknownSlugCount),
		zap.Int("model_missing_entries", stats.ModelMissingEntryCount),
		zap.Int("excluded_tag_candidates", stats.ExcludedTagCandidates))
	common.LogInfo("run duration",
		zap.String("duration", fmt.Sprintf("%.1f min", elapsed/60)),
		zap.String("avg_rate", fmt.Sprintf("%.2f/s", float64(done)/elapsed)))
}

// Run 執行完整分類流程
func (e *Engine) Run(ctx context.Context) error {
	mode := "categorize/tag missing categories or tags"
	switch {
	case e.ReplaceExisting:
		mode = "re-categorization (all recipes)"
	case e.TargetMode == TargetMissingCategories:
		mode = "categorize missing categories"
	case e.TargetMode == TargetMissingTags:
		mode = "tag missing tags"
	}
	common.LogInfo("categorization starting",
		zap.String("mode", mode),
		zap.String("provider", e.provider.Name()),
		zap.Bool("dry_run", e.DryRun))

	allRecipes, err := e.client.ListRecipes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list recipes: %w", err)
	}
	categories, err := e.client.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("failed to list categories: %w", err)
	}
	tags, err := e.client.ListTags(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tags: %w", err)
	}

	categoriesByName := map[string]mealie.Organizer{}
	for _, c := range categories {
		if name := strings.TrimSpace(c.Name); name != "" {
			categoriesByName[strings.ToLower(name)] = c
		}
	}
	tagsByName := map[string]mealie.Organizer{}
	for _, t := range tags {
		if name := strings.TrimSpace(t.Name); name != "" {
			tagsByName[strings.ToLower(name)] = t
		}
	}

	categoryNameSet := map[string]bool{}
	for _, c := range categories {
		if name := strings.TrimSpace(c.Name); name != "" {
			categoryNameSet[name] = true
		}
	}
	categoryNames := make([]string, 0, len(categoryNameSet))
	for name := range categoryNameSet {
		categoryNames = append(categoryNames, name)
	}
	sort.Strings(categoryNames)

	tagNames := e.filterTagCandidates(tags, allRecipes)
	if len(tagNames) == 0 {
		tagNameSet := map[string]bool{}
		for _, t := range tags {
			if name := strings.TrimSpace(t.Name); name != "" {
				tagNameSet[name] = true
			}
		}
		for name := range tagNameSet {
			tagNames = append(tagNames, name)
		}
		sort.Strings(tagNames)
		common.LogWarn("tag candidate filtering removed everything, using full tag list")
	}

	targets := e.selectTargets(allRecipes)
	common.LogInfo("recipes to process", zap.Int("count", len(targets)))

	e.start = time.Now()
	e.progress.reset(len(targets))
	if len(targets) == 0 {
		common.LogInfo("categorization complete")
		e.printSummary()
		return nil
	}

	stop := make(chan struct{})
	go e.etaReporter(stop)

	batchSize := e.config.Categorizer.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	var batches [][]map[string]interface{}
	for i := 0; i < len(targets); i += batchSize {
		end := i + batchSize
		if end > len(targets) {
			end = len(targets)
		}
		batches = append(batches, targets[i:end])
	}

	workers := e.config.Categorizer.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan []map[string]interface{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range jobs {
				e.runBatch(ctx, batch, categoryNames, tagNames, categoriesByName, tagsByName)
			}
		}()
	}
	for _, batch := range batches {
		jobs <- batch
	}
	close(jobs)
	wg.Wait()

	close(stop)
	done, total := e.progress.snapshot()
	e.logProgress(done, total)
	common.LogInfo("categorization complete")
	e.printSummary()
	return nil
}

// runBatch 單批次掛掉不影響其他批次
func (e *Engine) runBatch(ctx context.Context, batch []map[string]interface{}, categoryNames, tagNames []string, categoriesByName, tagsByName map[string]mealie.Organizer) {
	defer func() {
		if r := recover(); r != nil {
			common.LogError("batch crashed", zap.Any("panic", r))
		}
	}()
	e.processBatch(ctx, batch, categoryNames, tagNames, categoriesByName, tagsByName)
}
