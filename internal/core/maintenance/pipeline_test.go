package maintenance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStagesDefaults(t *testing.T) {
	stages, err := ParseStages("", nil)
	assert.NoError(t, err)
	assert.Equal(t, []string{"parse", "foods", "units", "tools", "labels", "categorize"}, stages)

	stages, err = ParseStages("", []string{"foods", "units"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"foods", "units"}, stages)
}

func TestParseStagesExplicitList(t *testing.T) {
	stages, err := ParseStages(" Foods , categorize ", nil)
	assert.NoError(t, err)
	assert.Equal(t, []string{"foods", "categorize"}, stages)
}

func TestParseStagesUnknownStage(t *testing.T) {
	_, err := ParseStages("foods,audit", nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown maintenance stage")
}

func TestParseStagesEmptySelection(t *testing.T) {
	_, err := ParseStages(" , ,", nil)
	assert.Error(t, err)
}
