package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeNameCollapsesVariants(t *testing.T) {
	assert.Equal(t, NormalizeName("Onion"), NormalizeName("  onion "))
	assert.Equal(t, NormalizeName("ONION"), NormalizeName("onion"))
	assert.Equal(t, NormalizeName("olive   oil"), NormalizeName("Olive Oil"))
	assert.NotEqual(t, NormalizeName("onion"), NormalizeName("onions"))
}

func TestShortText(t *testing.T) {
	assert.Equal(t, "hello world", ShortText("hello\nworld", 40))
	assert.Equal(t, "hello w...", ShortText("hello world and more text", 10))
	assert.Equal(t, "abc", ShortText("  abc  ", 10))
}

func TestNormalizeNameList(t *testing.T) {
	assert.Equal(t, []string{"Breakfast", "Brunch"}, NormalizeNameList("Breakfast, Brunch"))
	assert.Equal(t, []string{"Soups", "Stews"}, NormalizeNameList("Soups; Stews"))
	assert.Equal(t, []string{"beef", "stew"}, NormalizeNameList([]interface{}{"beef", "", "stew"}))
	assert.Equal(t, []string{"beef"}, NormalizeNameList([]string{" beef "}))
	assert.Nil(t, NormalizeNameList(42))
}

func TestSimilarityRatio(t *testing.T) {
	assert.Equal(t, 1.0, SimilarityRatio("tomato", "tomato"))
	assert.Equal(t, 1.0, SimilarityRatio("", ""))
	assert.Equal(t, 0.0, SimilarityRatio("abc", "xyz"))

	// 單複數差異應落在模糊合併門檻附近
	assert.InDelta(t, 2.0*14.0/29.0, SimilarityRatio("chicken breast", "chicken breasts"), 1e-9)
	assert.Greater(t, SimilarityRatio("chicken breast", "chicken breasts"), 0.92)
	assert.Less(t, SimilarityRatio("chicken breast", "beef brisket"), 0.92)
}
