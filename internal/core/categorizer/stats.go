package categorizer

import "sync"

// Stats 分類執行的計數器，各 worker 共用
type Stats struct {
	mu sync.Mutex

	QueryRetryWarnings        int `json:"query_retry_warnings"`
	QueryFailures             int `json:"query_failures"`
	ExcludedTagCandidates     int `json:"excluded_tag_candidates"`
	CachedSkipped             int `json:"cached_skipped"`
	BatchParseFailures        int `json:"batch_parse_failures"`
	FallbackBatches           int `json:"fallback_batches"`
	PerRecipeFallbackAttempts int `json:"per_recipe_fallback_attempts"`
	PerRecipeNoClassification int `json:"per_recipe_no_classification"`
	UnknownSlugCount          int `json:"unknown_slug_count"`
	ModelMissingEntryCount    int `json:"model_missing_entry_count"`
	RecipesUpdated            int `json:"recipes_updated"`
	RecipesPlanned            int `json:"recipes_planned"`
	RecipesNoChange           int `json:"recipes_no_change"`
	UpdateFailures            int `json:"update_failures"`
	CategoriesAdded           int `json:"categories_added"`
	TagsAdded                 int `json:"tags_added"`
}

func (s *Stats) add(field *int, amount int) {
	if amount == 0 {
		return
	}
	s.mu.Lock()
	*field += amount
	s.mu.Unlock()
}

// Snapshot 回傳目前計數的複本
func (s *Stats) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		QueryRetryWarnings:        s.QueryRetryWarnings,
		QueryFailures:             s.QueryFailures,
		ExcludedTagCandidates:     s.ExcludedTagCandidates,
		CachedSkipped:             s.CachedSkipped,
		BatchParseFailures:        s.BatchParseFailures,
		FallbackBatches:           s.FallbackBatches,
		PerRecipeFallbackAttempts: s.PerRecipeFallbackAttempts,
		PerRecipeNoClassification: s.PerRecipeNoClassification,
		UnknownSlugCount:          s.UnknownSlugCount,
		ModelMissingEntryCount:    s.ModelMissingEntryCount,
		RecipesUpdated:            s.RecipesUpdated,
		RecipesPlanned:            s.RecipesPlanned,
		RecipesNoChange:           s.RecipesNoChange,
		UpdateFailures:            s.UpdateFailures,
		CategoriesAdded:           s.CategoriesAdded,
		TagsAdded:                 s.TagsAdded,
	}
}

// progress 進度計數，僅由 worker 推進、回報執行緒讀取
type progress struct {
	mu    sync.Mutex
	done  int
	total int
}

func (p *progress) reset(total int) {
	p.mu.Lock()
	p.done = 0
	p.total = total
	p.mu.Unlock()
}

func (p *progress) advance(count int) {
	if count == 0 {
		return
	}
	p.mu.Lock()
	p.done += count
	p.mu.Unlock()
}

func (p *progress) snapshot() (done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done, p.total
}
