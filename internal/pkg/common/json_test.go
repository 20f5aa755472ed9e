package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseModelJSONFencedResponse(t *testing.T) {
	raw := "```json\n[{\"slug\": \"beef-stew\", \"categories\": [\"Main Dishes\"], \"tags\": [\"beef\"]}]\n```"

	value, ok := ParseModelJSON(raw)
	assert.True(t, ok)

	items, ok := value.([]interface{})
	assert.True(t, ok)
	assert.Len(t, items, 1)
}

func TestParseModelJSONRepairsSloppyOutput(t *testing.T) {
	// 未加引號的鍵、單引號、結尾逗號
	raw := `[{slug: 'beef-stew', categories: ['Main Dishes',], tags: ['beef', 'stew',],},]`

	entries, ok := ParseModelArray(raw)
	assert.True(t, ok)
	assert.Len(t, entries, 1)
	assert.Equal(t, "beef-stew", entries[0]["slug"])
}

func TestParseModelJSONCurlyQuotes(t *testing.T) {
	raw := `[{“slug”: “pancakes”, “tags”: [“breakfast”]}]`

	entries, ok := ParseModelArray(raw)
	assert.True(t, ok)
	assert.Equal(t, "pancakes", entries[0]["slug"])
}

func TestParseModelJSONExtractsEmbeddedArray(t *testing.T) {
	raw := `Here is the classification you asked for:
[{"slug": "pancakes", "categories": ["Breakfast"], "tags": []}]
Let me know if you need anything else.`

	entries, ok := ParseModelArray(raw)
	assert.True(t, ok)
	assert.Len(t, entries, 1)
	assert.Equal(t, "pancakes", entries[0]["slug"])
}

func TestParseModelJSONRejectsGarbage(t *testing.T) {
	_, ok := ParseModelJSON("I could not classify these recipes.")
	assert.False(t, ok)
}

func TestWriteJSONFileCreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reports", "out.json")

	err := WriteJSONFile(path, map[string]int{"total": 3})
	assert.NoError(t, err)

	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Contains(t, string(data), `"total": 3`)
}
