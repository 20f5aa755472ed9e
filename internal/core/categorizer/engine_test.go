package categorizer

import (
	"context"
	"testing"

	"mealie-organizer/internal/core/mealie"
	"mealie-organizer/internal/infrastructure/config"
	"mealie-organizer/internal/pkg/common"

	"github.com/stretchr/testify/assert"
)

type scriptedProvider struct {
	prompts  []string
	response string
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Query(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.response, nil
}

func testEngine(cfg *config.Config) *Engine {
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &Engine{config: cfg, TargetMode: TargetMissingEither}
}

func recipeWith(slug string, categories, tags []interface{}) map[string]interface{} {
	return map[string]interface{}{
		"slug":           slug,
		"name":           slug,
		"recipeCategory": categories,
		"tags":           tags,
	}
}

func TestParseEntryLabelsKeyFallback(t *testing.T) {
	categories, tags := parseEntryLabels(map[string]interface{}{
		"categories": []interface{}{"Main Dishes"},
		"tags":       []interface{}{"beef", "stew"},
	})
	assert.Equal(t, []string{"Main Dishes"}, categories)
	assert.Equal(t, []string{"beef", "stew"}, tags)

	// tags 缺席時接受 tag 鍵
	_, tags = parseEntryLabels(map[string]interface{}{
		"tag": []interface{}{"beef"},
	})
	assert.Equal(t, []string{"beef"}, tags)

	// 再退而求其次接受 labels 鍵
	_, tags = parseEntryLabels(map[string]interface{}{
		"labels": "beef, stew",
	})
	assert.Equal(t, []string{"beef", "stew"}, tags)
}

func TestSelectTargets(t *testing.T) {
	cat := []interface{}{map[string]interface{}{"name": "Dinner"}}
	tag := []interface{}{map[string]interface{}{"name": "beef"}}

	complete := recipeWith("complete", cat, tag)
	noTags := recipeWith("no-tags", cat, nil)
	noCategories := recipeWith("no-categories", nil, tag)
	empty := recipeWith("empty", nil, nil)
	all := []map[string]interface{}{complete, noTags, noCategories, empty}

	engine := testEngine(nil)
	targets := engine.selectTargets(all)
	assert.Len(t, targets, 3)

	engine.TargetMode = TargetMissingTags
	targets = engine.selectTargets(all)
	assert.Len(t, targets, 2)
	assert.Equal(t, "no-tags", slugOf(targets[0]))

	engine.TargetMode = TargetMissingCategories
	targets = engine.selectTargets(all)
	assert.Len(t, targets, 2)
	assert.Equal(t, "no-categories", slugOf(targets[0]))

	// 覆寫模式處理所有食譜
	engine.ReplaceExisting = true
	assert.Len(t, engine.selectTargets(all), 4)
}

func TestFilterTagCandidates(t *testing.T) {
	cfg := &config.Config{}
	cfg.Categorizer.TagMaxNameLength = 24
	cfg.Categorizer.TagMinUsage = 2
	engine := testEngine(cfg)

	tags := []mealie.Organizer{
		{ID: "1", Name: "beef"},
		{ID: "2", Name: "how to make beef stew"},
		{ID: "3", Name: "a very long tag name that goes on forever"},
		{ID: "4", Name: "rarely-used"},
		{ID: "5", Name: "beef"},
	}
	recipes := []map[string]interface{}{
		recipeWith("a", nil, []interface{}{
			map[string]interface{}{"name": "beef"},
		}),
		recipeWith("b", nil, []interface{}{
			map[string]interface{}{"name": "beef"},
			map[string]interface{}{"name": "rarely-used"},
		}),
	}

	candidates := engine.filterTagCandidates(tags, recipes)
	assert.Equal(t, []string{"beef"}, candidates)
}

func TestExtractEntryForSlug(t *testing.T) {
	parsed := []interface{}{
		map[string]interface{}{"slug": "pancakes", "tags": []interface{}{"breakfast"}},
		map[string]interface{}{"slug": " waffles ", "tags": []interface{}{}},
	}

	entry := extractEntryForSlug(parsed, "waffles")
	assert.NotNil(t, entry)

	assert.Nil(t, extractEntryForSlug(parsed, "missing"))
	assert.Nil(t, extractEntryForSlug("not a list", "pancakes"))
}

func TestBuildTagUsage(t *testing.T) {
	recipes := []map[string]interface{}{
		recipeWith("a", nil, []interface{}{
			map[string]interface{}{"name": "beef"},
			map[string]interface{}{"name": " "},
		}),
		recipeWith("b", nil, []interface{}{
			map[string]interface{}{"name": "beef"},
		}),
	}

	usage := buildTagUsage(recipes)
	assert.Equal(t, 2, usage["beef"])
	assert.Equal(t, 0, usage[""])
}

func TestMakePromptIncludesRecipeLines(t *testing.T) {
	recipes := []map[string]interface{}{
		{
			"slug": "beef-stew",
			"name": "Beef Stew",
			"ingredients": []interface{}{
				map[string]interface{}{"title": "beef chuck"},
				map[string]interface{}{"title": "carrots"},
			},
		},
	}

	prompt := makePrompt(recipes, []string{"Main Dishes"}, []string{"beef"})
	assert.Contains(t, prompt, `slug=beef-stew`)
	assert.Contains(t, prompt, `name="Beef Stew"`)
	assert.Contains(t, prompt, "beef chuck")
	assert.Contains(t, prompt, "Main Dishes")
}

func TestEnsureTagsTopUpIsTagOnly(t *testing.T) {
	cfg := &config.Config{}
	cfg.Categorizer.QueryRetries = 1
	engine := testEngine(cfg)
	stub := &scriptedProvider{response: `[{"slug":"plain-rice","tags":["side","rice"]}]`}
	engine.provider = stub

	entries := []interface{}{
		map[string]interface{}{"slug": "beef-stew", "categories": []interface{}{}, "tags": []interface{}{"beef"}},
		map[string]interface{}{"slug": "plain-rice", "categories": []interface{}{"Side Dishes"}, "tags": []interface{}{}},
	}
	recipesBySlug := map[string]map[string]interface{}{
		"beef-stew":  recipeWith("beef-stew", nil, nil),
		"plain-rice": recipeWith("plain-rice", nil, nil),
	}

	engine.ensureTagsForEntries(context.Background(), entries, recipesBySlug, []string{"side", "rice"})

	// 只對缺標籤的條目補問一次
	assert.Len(t, stub.prompts, 1)
	assert.Contains(t, stub.prompts[0], "plain-rice")
	assert.NotContains(t, stub.prompts[0], "beef-stew")

	topped := extractEntryForSlug(entries, "plain-rice")
	assert.Equal(t, []string{"side", "rice"}, common.NormalizeNameList(topped["tags"]))

	// 缺分類不觸發補問，既有標籤不被改寫
	untouched := extractEntryForSlug(entries, "beef-stew")
	assert.Equal(t, []string{"beef"}, common.NormalizeNameList(untouched["tags"]))
	assert.Empty(t, common.NormalizeNameList(untouched["categories"]))
	assert.Equal(t, 0, engine.Stats().QueryFailures)
}

func TestEnsureTagsTopUpUnparseableResponse(t *testing.T) {
	cfg := &config.Config{}
	cfg.Categorizer.QueryRetries = 1
	engine := testEngine(cfg)
	engine.provider = &scriptedProvider{response: "no json here"}

	entries := []interface{}{
		map[string]interface{}{"slug": "plain-rice", "tags": []interface{}{}},
	}
	recipesBySlug := map[string]map[string]interface{}{
		"plain-rice": recipeWith("plain-rice", nil, nil),
	}

	engine.ensureTagsForEntries(context.Background(), entries, recipesBySlug, []string{"side"})

	entry := extractEntryForSlug(entries, "plain-rice")
	assert.Empty(t, common.NormalizeNameList(entry["tags"]))
	assert.Equal(t, 1, engine.Stats().QueryFailures)
}
