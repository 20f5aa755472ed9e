package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeRawLinesFiltersHeaders(t *testing.T) {
	lines := []string{
		"For the sauce:",
		"2 cups flour",
		"   ",
		"To serve",
		"1   tsp  salt",
		"Topping:",
		"1 cup shredded cheese, for topping:",
	}

	cleaned, dropped := SanitizeRawLines(lines)

	assert.Equal(t, []string{"2 cups flour", "1 tsp salt", "1 cup shredded cheese, for topping:"}, cleaned)
	assert.Equal(t, 4, dropped)
}

func TestIsNonIngredientHeader(t *testing.T) {
	assert.True(t, isNonIngredientHeader("For the marinade:"))
	assert.True(t, isNonIngredientHeader("to garnish"))
	assert.True(t, isNonIngredientHeader("Dressing:"))
	// 含數字的行視為真正的食材
	assert.False(t, isNonIngredientHeader("For 2 servings:"))
	assert.False(t, isNonIngredientHeader("2 cloves garlic"))
	// 過長的行不會被當成標題
	assert.False(t, isNonIngredientHeader("for a very long sentence that keeps going and going and clearly is not a header"))
}

func TestIsBlankIngredient(t *testing.T) {
	assert.True(t, isBlankIngredient(map[string]interface{}{
		"note": "", "quantity": float64(0), "food": nil, "unit": nil,
	}))
	assert.False(t, isBlankIngredient(map[string]interface{}{
		"note": "chopped", "quantity": float64(0), "food": nil, "unit": nil,
	}))
	assert.False(t, isBlankIngredient(map[string]interface{}{
		"note": "", "quantity": float64(2), "food": nil, "unit": nil,
	}))
	assert.False(t, isBlankIngredient(map[string]interface{}{
		"note": "", "quantity": float64(0),
		"food": map[string]interface{}{"id": "abc", "name": "salt"}, "unit": nil,
	}))
}

func TestSuspicionReason(t *testing.T) {
	cup := map[string]interface{}{"id": "u1", "name": "cup"}
	pinch := map[string]interface{}{"id": "u2", "name": "pinch"}

	assert.Equal(t, "zero_qty_with_unit", suspicionReason(map[string]interface{}{
		"note": "flour", "quantity": float64(0), "food": nil, "unit": cup,
	}))
	// pinch/dash 允許零數量
	assert.Equal(t, "", suspicionReason(map[string]interface{}{
		"note": "salt", "quantity": float64(0), "food": nil, "unit": pinch,
	}))
	// "to taste" 備註抵銷零數量
	assert.Equal(t, "", suspicionReason(map[string]interface{}{
		"note": "salt, to taste", "quantity": float64(0), "food": nil, "unit": cup,
	}))
	// for serving 備註整行豁免
	assert.Equal(t, "", suspicionReason(map[string]interface{}{
		"note": "lime wedges, for serving", "quantity": float64(0), "food": nil, "unit": cup,
	}))
	assert.Equal(t, "missing_food_no_note", suspicionReason(map[string]interface{}{
		"note": "", "quantity": float64(1), "food": nil, "unit": nil,
	}))
	assert.Equal(t, "", suspicionReason(map[string]interface{}{
		"note": "chopped", "quantity": float64(1),
		"food": map[string]interface{}{"id": "f1", "name": "onion"}, "unit": nil,
	}))
}

func TestExtractRawLinesFromStrings(t *testing.T) {
	recipe := map[string]interface{}{
		"recipeIngredient": []interface{}{"2 cups flour", "  ", "1 tsp salt"},
	}
	lines, err := ExtractRawLines(recipe)
	assert.NoError(t, err)
	assert.Equal(t, []string{"2 cups flour", "1 tsp salt"}, lines)
}

func TestExtractRawLinesAlreadyParsed(t *testing.T) {
	recipe := map[string]interface{}{
		"recipeIngredient": []interface{}{
			map[string]interface{}{
				"originalText": "2 cups flour",
				"food":         map[string]interface{}{"id": "f1", "name": "flour"},
			},
		},
	}
	_, err := ExtractRawLines(recipe)
	assert.ErrorIs(t, err, errAlreadyParsed)
}

func TestExtractRawLinesTextFallbackOrder(t *testing.T) {
	recipe := map[string]interface{}{
		"recipeIngredient": []interface{}{
			map[string]interface{}{"originalText": "2 cups flour", "food": nil},
			map[string]interface{}{"rawText": "1 tsp salt", "food": nil},
			map[string]interface{}{"note": "1 egg", "food": nil},
			map[string]interface{}{"display": "3 tbsp butter", "food": nil},
			map[string]interface{}{"food": nil},
		},
	}
	lines, err := ExtractRawLines(recipe)
	assert.NoError(t, err)
	assert.Equal(t, []string{"2 cups flour", "1 tsp salt", "1 egg", "3 tbsp butter"}, lines)
}

func TestExtractRawLinesLegacyIngredientsKey(t *testing.T) {
	recipe := map[string]interface{}{
		"ingredients": []interface{}{
			map[string]interface{}{"rawText": "500 g minced beef"},
			map[string]interface{}{"rawText": ""},
		},
	}
	lines, err := ExtractRawLines(recipe)
	assert.NoError(t, err)
	assert.Equal(t, []string{"500 g minced beef"}, lines)
}

func TestQuantityValue(t *testing.T) {
	assert.Equal(t, 2.5, quantityValue(2.5))
	assert.Equal(t, 3.0, quantityValue("3"))
	assert.Equal(t, 0.0, quantityValue(nil))
	assert.Equal(t, 0.0, quantityValue("not a number"))
}
