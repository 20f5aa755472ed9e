package cleanup

import (
	"testing"

	"mealie-organizer/internal/core/mealie"

	"github.com/stretchr/testify/assert"
)

func TestBuildFoodUsage(t *testing.T) {
	recipes := []map[string]interface{}{
		{
			"recipeIngredient": []interface{}{
				map[string]interface{}{"food": map[string]interface{}{"id": "f1"}},
				map[string]interface{}{"food": map[string]interface{}{"id": "f1"}},
				map[string]interface{}{"food": nil},
			},
		},
		{
			"ingredients": []interface{}{
				map[string]interface{}{"food": map[string]interface{}{"id": "f2"}},
			},
		},
	}

	usage := BuildFoodUsage(recipes)
	assert.Equal(t, 2, usage["f1"])
	assert.Equal(t, 1, usage["f2"])
	assert.Equal(t, 0, usage["missing"])
}

func TestBuildMergePlanPrefersUsageThenLowestID(t *testing.T) {
	foods := []mealie.Entity{
		{ID: "b", Name: "Onion", GroupID: "g1"},
		{ID: "a", Name: "onion ", GroupID: "g1"},
		{ID: "c", Name: "ONION", GroupID: "g1"},
		{ID: "d", Name: "Garlic", GroupID: "g1"},
	}
	usage := map[string]int{"b": 5, "a": 1, "c": 1}

	plan := BuildMergePlan(foods, usage)
	assert.Len(t, plan, 2)
	for _, action := range plan {
		assert.Equal(t, "b", action.TargetID)
		assert.Equal(t, "onion", action.NormalizedName)
	}
	// 排序固定：依正規化名稱、群組、來源 id
	assert.Equal(t, "a", plan[0].SourceID)
	assert.Equal(t, "c", plan[1].SourceID)
}

func TestBuildMergePlanTieBreaksOnID(t *testing.T) {
	foods := []mealie.Entity{
		{ID: "z9", Name: "salt", GroupID: "g1"},
		{ID: "a1", Name: "Salt", GroupID: "g1"},
	}

	plan := BuildMergePlan(foods, map[string]int{})
	assert.Len(t, plan, 1)
	assert.Equal(t, "a1", plan[0].TargetID)
	assert.Equal(t, "z9", plan[0].SourceID)
}

func TestBuildMergePlanKeepsGroupsApart(t *testing.T) {
	foods := []mealie.Entity{
		{ID: "a", Name: "onion", GroupID: "g1"},
		{ID: "b", Name: "onion", GroupID: "g2"},
	}

	plan := BuildMergePlan(foods, map[string]int{})
	assert.Empty(t, plan)
}

func TestBuildFuzzyCandidates(t *testing.T) {
	job := &FoodsCleanup{AllowFuzzy: true}
	foods := []mealie.Entity{
		{ID: "a", Name: "chicken breast", GroupID: "g1"},
		{ID: "b", Name: "chicken breasts", GroupID: "g1"},
		{ID: "c", Name: "beef brisket", GroupID: "g1"},
	}

	candidates := job.BuildFuzzyCandidates(foods)
	assert.Len(t, candidates, 1)
	assert.Equal(t, "chicken breast", candidates[0].FoodAName)
	assert.Equal(t, "chicken breasts", candidates[0].FoodBName)
	assert.GreaterOrEqual(t, candidates[0].Similarity, 0.92)

	job.AllowFuzzy = false
	assert.Nil(t, job.BuildFuzzyCandidates(foods))
}
