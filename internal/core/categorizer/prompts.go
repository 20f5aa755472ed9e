package categorizer

import (
	"fmt"
	"strings"
)

// 提示詞僅允許清單內的名稱，模型不得自創分類或標籤

func recipeLines(recipes []map[string]interface{}) string {
	var b strings.Builder
	for _, recipe := range recipes {
		var ingredients []string
		if raw, ok := recipe["ingredients"].([]interface{}); ok {
			for i, item := range raw {
				if i >= 10 {
					break
				}
				if entry, ok := item.(map[string]interface{}); ok {
					if title, ok := entry["title"].(string); ok && title != "" {
						ingredients = append(ingredients, title)
					}
				}
			}
		}
		slug, _ := recipe["slug"].(string)
		name, _ := recipe["name"].(string)
		b.WriteString(fmt.Sprintf("\n- slug=%s | name=%q | ingredients: %s", slug, name, strings.Join(ingredients, ", ")))
	}
	return b.String()
}

func bulletList(names []string) string {
	var b strings.Builder
	for _, name := range names {
		b.WriteString("- ")
		b.WriteString(name)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func makePrompt(recipes []map[string]interface{}, categoryNames, tagNames []string) string {
	prompt := fmt.Sprintf(`You are a food recipe classifier.

For each recipe below:
1) Select one or more matching categories FROM THIS LIST ONLY.
2) Select one or more relevant tags FROM THIS LIST ONLY. Use an empty array ONLY if nothing fits.

Return results ONLY as valid JSON array like:
[
  {"slug": "recipe-slug", "categories": ["Dinner"], "tags": ["Quick"]}
]

If nothing matches, use empty arrays. Do not invent new names. No extra commentary.

Categories:
%s

Tags:
%s

Recipes:
%s`, bulletList(categoryNames), bulletList(tagNames), recipeLines(recipes))
	return strings.TrimSpace(prompt)
}

func makeCategoryPrompt(recipes []map[string]interface{}, categoryNames []string) string {
	prompt := fmt.Sprintf(`You are a food recipe category selector.

Select one or more applicable categories for each recipe from THIS LIST ONLY:
%s

Return ONLY valid JSON array like:
[
  {"slug": "recipe-slug", "categories": ["Dinner"]}
]

If absolutely no categories match, use an empty array. No commentary.

Recipes:
%s`, bulletList(categoryNames), recipeLines(recipes))
	return strings.TrimSpace(prompt)
}

func makeTagPrompt(recipes []map[string]interface{}, tagNames []string) string {
	prompt := fmt.Sprintf(`You are a food recipe tagging assistant.

Select at least one applicable tag for each recipe from THIS LIST ONLY:
%s

Return ONLY valid JSON array like:
[
  {"slug": "recipe-slug", "tags": ["Quick", "Weeknight"]}
]

If absolutely no tags match, use an empty array. No commentary.

Recipes:
%s`, bulletList(tagNames), recipeLines(recipes))
	return strings.TrimSpace(prompt)
}
