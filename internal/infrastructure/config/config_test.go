package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	os.Setenv("MEALIE_URL", "http://mealie.local/api/")
	os.Setenv("MEALIE_API_KEY", "secret-token-value")
	defer os.Unsetenv("MEALIE_URL")
	defer os.Unsetenv("MEALIE_API_KEY")

	cfg, err := LoadConfig()
	assert.NoError(t, err)
	assert.NotNil(t, cfg)

	// URL 結尾的斜線要剝掉
	assert.Equal(t, "http://mealie.local/api", cfg.Mealie.URL)
	assert.Equal(t, 30*time.Second, cfg.Mealie.Timeout)

	assert.Equal(t, 0.80, cfg.Parser.ConfidenceThreshold)
	assert.Equal(t, []string{"nlp", "openai"}, cfg.Parser.Strategies)
	assert.Equal(t, 200, cfg.Parser.PageSize)

	assert.Equal(t, "ollama", cfg.Categorizer.Provider)
	assert.Equal(t, 2, cfg.Categorizer.BatchSize)
	assert.Equal(t, 3, cfg.Categorizer.MaxWorkers)

	assert.Equal(t, "file", cfg.Cache.Backend)
	assert.Equal(t, "/mo-plugin", cfg.Plugin.BasePath)
	assert.Equal(t, 9102, cfg.Plugin.BindPort)
	assert.Equal(t, []string{"mealie.access_token", "access_token"}, cfg.Plugin.TokenCookies)
	assert.Equal(t, []string{"parse", "foods", "units", "tools", "labels", "categorize"}, cfg.Maintenance.DefaultStages)
}

func TestLoadConfigMissingAPIKey(t *testing.T) {
	os.Setenv("MEALIE_URL", "http://mealie.local/api")
	os.Unsetenv("MEALIE_API_KEY")
	defer os.Unsetenv("MEALIE_URL")

	_, err := LoadConfig()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "MEALIE_API_KEY")
}

func TestLoadConfigPlaceholderURLRejected(t *testing.T) {
	os.Setenv("MEALIE_URL", "http://your.server.ip.address:9000")
	os.Setenv("MEALIE_API_KEY", "secret-token-value")
	defer os.Unsetenv("MEALIE_URL")
	defer os.Unsetenv("MEALIE_API_KEY")

	_, err := LoadConfig()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "MEALIE_URL")
}

func TestForceParserOverridesStrategies(t *testing.T) {
	os.Setenv("MEALIE_URL", "http://mealie.local/api")
	os.Setenv("MEALIE_API_KEY", "secret-token-value")
	os.Setenv("FORCE_PARSER", "brute")
	defer os.Unsetenv("MEALIE_URL")
	defer os.Unsetenv("MEALIE_API_KEY")
	defer os.Unsetenv("FORCE_PARSER")

	cfg, err := LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, []string{"brute"}, cfg.Parser.Strategies)
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", MaskAPIKey("short"))
	assert.Equal(t, "abcd...wxyz", MaskAPIKey("abcd1234efghwxyz"))
}

func TestCacheFileForProvider(t *testing.T) {
	cfg := &Config{}
	cfg.Categorizer.Provider = "ollama"
	assert.Equal(t, "cache/results_ollama.json", cfg.CacheFileForProvider())

	cfg.Categorizer.CacheFile = "custom/results.json"
	assert.Equal(t, "custom/results.json", cfg.CacheFileForProvider())
}
