package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const mealieURLPlaceholder = "http://your.server.ip.address:9000/api"

// Config 應用配置
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Mealie      MealieConfig      `mapstructure:"mealie"`
	Parser      ParserConfig      `mapstructure:"parser"`
	Categorizer CategorizerConfig `mapstructure:"categorizer"`
	Providers   ProvidersConfig   `mapstructure:"providers"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Taxonomy    TaxonomyConfig    `mapstructure:"taxonomy"`
	Plugin      PluginConfig      `mapstructure:"plugin"`
	DryRun      bool              `mapstructure:"dry_run"`
	LogLevel    string            `mapstructure:"log_level"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env     string `mapstructure:"env"`
	Debug   bool   `mapstructure:"debug"`
	Version string `mapstructure:"version"`
	Name    string `mapstructure:"name"`
}

// MealieConfig Mealie API 連線設定
type MealieConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
	Backoff time.Duration `mapstructure:"backoff"`
}

// ParserConfig 食材解析管線設定
type ParserConfig struct {
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	Strategies          []string      `mapstructure:"strategies"`
	ForceParser         string        `mapstructure:"force_parser"`
	PageSize            int           `mapstructure:"page_size"`
	Delay               time.Duration `mapstructure:"delay"`
	MaxRecipes          int           `mapstructure:"max_recipes"`
	AfterSlug           string        `mapstructure:"after_slug"`
	OutputDir           string        `mapstructure:"output_dir"`
	LowConfidenceFile   string        `mapstructure:"low_confidence_file"`
	SuccessFile         string        `mapstructure:"success_file"`
}

// CategorizerConfig 分類引擎設定
type CategorizerConfig struct {
	Provider         string        `mapstructure:"provider"`
	BatchSize        int           `mapstructure:"batch_size"`
	MaxWorkers       int           `mapstructure:"max_workers"`
	TagMaxNameLength int           `mapstructure:"tag_max_name_length"`
	TagMinUsage      int           `mapstructure:"tag_min_usage"`
	QueryRetries     int           `mapstructure:"query_retries"`
	QueryRetryBase   time.Duration `mapstructure:"query_retry_base"`
	CacheFile        string        `mapstructure:"cache_file"`
}

// ProvidersConfig AI 提供者設定
type ProvidersConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
	Ollama OllamaConfig `mapstructure:"ollama"`
}

// OpenAIConfig ChatGPT 供應商
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	HTTPRetries int           `mapstructure:"http_retries"`
}

// OllamaConfig 本地 Ollama 供應商
type OllamaConfig struct {
	URL         string        `mapstructure:"url"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	HTTPRetries int           `mapstructure:"http_retries"`
	NumCtx      int           `mapstructure:"num_ctx"`
	Temperature float64       `mapstructure:"temperature"`
	NumPredict  int           `mapstructure:"num_predict"`
	TopP        float64       `mapstructure:"top_p"`
	NumThread   int           `mapstructure:"num_thread"`
}

// CacheConfig 分類結果快取設定
type CacheConfig struct {
	Backend   string `mapstructure:"backend"` // file 或 redis
	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`
}

// MaintenanceConfig 資料維護設定
type MaintenanceConfig struct {
	MaxActionsPerStage int      `mapstructure:"max_actions_per_stage"`
	CheckpointDir      string   `mapstructure:"checkpoint_dir"`
	DefaultStages      []string `mapstructure:"default_stages"`
}

// TaxonomyConfig 分類法來源與報告檔案
type TaxonomyConfig struct {
	UnitsAliasFile  string `mapstructure:"units_alias_file"`
	ToolsFile       string `mapstructure:"tools_file"`
	LabelsFile      string `mapstructure:"labels_file"`
	FoodsReportFile string `mapstructure:"foods_report_file"`
	UnitsReportFile string `mapstructure:"units_report_file"`
	FoodsAllowFuzzy bool   `mapstructure:"foods_allow_fuzzy"`
}

// PluginConfig 伴生管理伺服器設定
type PluginConfig struct {
	BindHost     string        `mapstructure:"bind_host"`
	BindPort     int           `mapstructure:"bind_port"`
	BasePath     string        `mapstructure:"base_path"`
	TokenCookies []string      `mapstructure:"token_cookies"`
	AuthTimeout  time.Duration `mapstructure:"auth_timeout"`
}

// LoadConfig 載入設定
func LoadConfig() (*Config, error) {
	// 加載 .env 文件（不存在時忽略）
	_ = godotenv.Load()

	// 設定預設值
	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 綁定環境變量（沿用既有的變數名稱）
	bindEnvs()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Parser.ForceParser != "" {
		config.Parser.Strategies = []string{config.Parser.ForceParser}
	}

	// 驗證必要設定，設定錯誤在任何遠端呼叫前就失敗
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func bindEnvs() {
	viper.BindEnv("mealie.url", "MEALIE_URL")
	viper.BindEnv("mealie.api_key", "MEALIE_API_KEY")
	viper.BindEnv("mealie.timeout", "REQUEST_TIMEOUT_SECONDS")
	viper.BindEnv("mealie.retries", "REQUEST_RETRIES")
	viper.BindEnv("mealie.backoff", "REQUEST_BACKOFF_SECONDS")

	viper.BindEnv("parser.confidence_threshold", "CONFIDENCE_THRESHOLD")
	viper.BindEnv("parser.strategies", "PARSER_STRATEGIES")
	viper.BindEnv("parser.force_parser", "FORCE_PARSER")
	viper.BindEnv("parser.page_size", "PAGE_SIZE")
	viper.BindEnv("parser.delay", "DELAY_SECONDS")
	viper.BindEnv("parser.max_recipes", "MAX_RECIPES")
	viper.BindEnv("parser.after_slug", "AFTER_SLUG")
	viper.BindEnv("parser.output_dir", "OUTPUT_DIR")
	viper.BindEnv("parser.low_confidence_file", "LOW_CONFIDENCE_FILE")
	viper.BindEnv("parser.success_file", "SUCCESS_FILE")

	viper.BindEnv("categorizer.provider", "CATEGORIZER_PROVIDER")
	viper.BindEnv("categorizer.batch_size", "BATCH_SIZE")
	viper.BindEnv("categorizer.max_workers", "MAX_WORKERS")
	viper.BindEnv("categorizer.tag_max_name_length", "TAG_MAX_NAME_LENGTH")
	viper.BindEnv("categorizer.tag_min_usage", "TAG_MIN_USAGE")
	viper.BindEnv("categorizer.query_retries", "QUERY_RETRIES")
	viper.BindEnv("categorizer.query_retry_base", "QUERY_RETRY_BASE_SECONDS")
	viper.BindEnv("categorizer.cache_file", "CACHE_FILE")

	viper.BindEnv("providers.openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("providers.openai.base_url", "OPENAI_BASE_URL")
	viper.BindEnv("providers.openai.model", "OPENAI_MODEL")
	viper.BindEnv("providers.openai.timeout", "OPENAI_REQUEST_TIMEOUT")
	viper.BindEnv("providers.openai.http_retries", "OPENAI_HTTP_RETRIES")

	viper.BindEnv("providers.ollama.url", "OLLAMA_URL")
	viper.BindEnv("providers.ollama.model", "OLLAMA_MODEL")
	viper.BindEnv("providers.ollama.timeout", "OLLAMA_REQUEST_TIMEOUT")
	viper.BindEnv("providers.ollama.http_retries", "OLLAMA_HTTP_RETRIES")
	viper.BindEnv("providers.ollama.num_ctx", "OLLAMA_NUM_CTX")
	viper.BindEnv("providers.ollama.temperature", "OLLAMA_TEMPERATURE")
	viper.BindEnv("providers.ollama.num_predict", "OLLAMA_NUM_PREDICT")
	viper.BindEnv("providers.ollama.top_p", "OLLAMA_TOP_P")
	viper.BindEnv("providers.ollama.num_thread", "OLLAMA_NUM_THREAD")

	viper.BindEnv("cache.backend", "CACHE_BACKEND")
	viper.BindEnv("cache.redis_addr", "REDIS_ADDR")
	viper.BindEnv("cache.redis_db", "REDIS_DB")

	viper.BindEnv("maintenance.max_actions_per_stage", "MAX_ACTIONS_PER_STAGE")
	viper.BindEnv("maintenance.checkpoint_dir", "CHECKPOINT_DIR")
	viper.BindEnv("maintenance.default_stages", "MAINTENANCE_STAGES")

	viper.BindEnv("taxonomy.units_alias_file", "UNITS_ALIAS_FILE")
	viper.BindEnv("taxonomy.tools_file", "TOOLS_FILE")
	viper.BindEnv("taxonomy.labels_file", "LABELS_FILE")
	viper.BindEnv("taxonomy.foods_report_file", "FOODS_REPORT_FILE")
	viper.BindEnv("taxonomy.units_report_file", "UNITS_REPORT_FILE")
	viper.BindEnv("taxonomy.foods_allow_fuzzy", "FOODS_ALLOW_FUZZY")

	viper.BindEnv("plugin.bind_host", "PLUGIN_BIND_HOST")
	viper.BindEnv("plugin.bind_port", "PLUGIN_BIND_PORT")
	viper.BindEnv("plugin.base_path", "PLUGIN_BASE_PATH")
	viper.BindEnv("plugin.token_cookies", "PLUGIN_TOKEN_COOKIES")
	viper.BindEnv("plugin.auth_timeout", "PLUGIN_AUTH_TIMEOUT_SECONDS")

	viper.BindEnv("dry_run", "DRY_RUN")
	viper.BindEnv("log_level", "LOG_LEVEL")
}

// setDefaults 設定預設值
func setDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.name", "mealie-organizer")

	viper.SetDefault("mealie.timeout", "30s")
	viper.SetDefault("mealie.retries", 3)
	viper.SetDefault("mealie.backoff", "400ms")

	viper.SetDefault("parser.confidence_threshold", 0.80)
	viper.SetDefault("parser.strategies", []string{"nlp", "openai"})
	viper.SetDefault("parser.page_size", 200)
	viper.SetDefault("parser.delay", "100ms")
	viper.SetDefault("parser.max_recipes", 0)
	viper.SetDefault("parser.output_dir", "reports")
	viper.SetDefault("parser.low_confidence_file", "review_low_confidence.json")
	viper.SetDefault("parser.success_file", "parsed_success.log")

	viper.SetDefault("categorizer.provider", "ollama")
	viper.SetDefault("categorizer.batch_size", 2)
	viper.SetDefault("categorizer.max_workers", 3)
	viper.SetDefault("categorizer.tag_max_name_length", 24)
	viper.SetDefault("categorizer.tag_min_usage", 0)
	viper.SetDefault("categorizer.query_retries", 3)
	viper.SetDefault("categorizer.query_retry_base", "1250ms")
	viper.SetDefault("categorizer.cache_file", "")

	viper.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("providers.openai.model", "gpt-4o-mini")
	viper.SetDefault("providers.openai.timeout", "120s")
	viper.SetDefault("providers.openai.http_retries", 3)

	viper.SetDefault("providers.ollama.url", "http://localhost:11434/api")
	viper.SetDefault("providers.ollama.model", "mistral:7b")
	viper.SetDefault("providers.ollama.timeout", "180s")
	viper.SetDefault("providers.ollama.http_retries", 3)
	viper.SetDefault("providers.ollama.num_ctx", 1024)
	viper.SetDefault("providers.ollama.temperature", 0.1)
	viper.SetDefault("providers.ollama.num_predict", 96)
	viper.SetDefault("providers.ollama.top_p", 0.8)
	viper.SetDefault("providers.ollama.num_thread", 8)

	viper.SetDefault("cache.backend", "file")
	viper.SetDefault("cache.redis_addr", "localhost:6379")
	viper.SetDefault("cache.redis_db", 0)

	viper.SetDefault("maintenance.max_actions_per_stage", 250)
	viper.SetDefault("maintenance.checkpoint_dir", "cache/maintenance")
	viper.SetDefault("maintenance.default_stages", []string{"parse", "foods", "units", "tools", "labels", "categorize"})

	viper.SetDefault("taxonomy.units_alias_file", "configs/taxonomy/units_aliases.json")
	viper.SetDefault("taxonomy.tools_file", "configs/taxonomy/tools.json")
	viper.SetDefault("taxonomy.labels_file", "configs/taxonomy/labels.json")
	viper.SetDefault("taxonomy.foods_report_file", "reports/foods_cleanup_report.json")
	viper.SetDefault("taxonomy.units_report_file", "reports/units_cleanup_report.json")
	viper.SetDefault("taxonomy.foods_allow_fuzzy", false)

	viper.SetDefault("plugin.bind_host", "0.0.0.0")
	viper.SetDefault("plugin.bind_port", 9102)
	viper.SetDefault("plugin.base_path", "/mo-plugin")
	viper.SetDefault("plugin.token_cookies", []string{"mealie.access_token", "access_token"})
	viper.SetDefault("plugin.auth_timeout", "15s")

	viper.SetDefault("dry_run", false)
	viper.SetDefault("log_level", "info")
}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	url := strings.TrimSpace(config.Mealie.URL)
	if url == "" || strings.EqualFold(url, mealieURLPlaceholder) ||
		strings.Contains(strings.ToLower(url), "your.server.ip.address") {
		return fmt.Errorf("MEALIE_URL is not configured")
	}
	config.Mealie.URL = strings.TrimRight(url, "/")

	if strings.TrimSpace(config.Mealie.APIKey) == "" {
		return fmt.Errorf("MEALIE_API_KEY is empty")
	}

	if config.Parser.ConfidenceThreshold <= 0 || config.Parser.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be between 0 and 1")
	}
	if config.Parser.PageSize <= 0 {
		return fmt.Errorf("invalid parser page size")
	}
	if len(config.Parser.Strategies) == 0 {
		return fmt.Errorf("parser strategies cannot be empty")
	}

	if config.Categorizer.BatchSize <= 0 {
		return fmt.Errorf("invalid categorizer batch size")
	}
	if config.Categorizer.MaxWorkers <= 0 {
		return fmt.Errorf("invalid categorizer max workers")
	}
	if config.Categorizer.QueryRetries <= 0 {
		config.Categorizer.QueryRetries = 1
	}

	switch config.Categorizer.Provider {
	case "ollama", "chatgpt":
	default:
		return fmt.Errorf("invalid provider %q: use 'ollama' or 'chatgpt'", config.Categorizer.Provider)
	}

	switch config.Cache.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("invalid cache backend %q: use 'file' or 'redis'", config.Cache.Backend)
	}

	if config.Maintenance.MaxActionsPerStage <= 0 {
		config.Maintenance.MaxActionsPerStage = 1
	}

	if !strings.HasPrefix(config.Plugin.BasePath, "/") {
		config.Plugin.BasePath = "/" + config.Plugin.BasePath
	}
	config.Plugin.BasePath = strings.TrimRight(config.Plugin.BasePath, "/")
	if config.Plugin.BasePath == "" {
		config.Plugin.BasePath = "/mo-plugin"
	}

	return nil
}

// MaskAPIKey 遮蔽金鑰，僅保留前後四碼供日誌輸出
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// CacheFileForProvider 回傳提供者專屬的結果快取路徑
func (c *Config) CacheFileForProvider() string {
	if strings.TrimSpace(c.Categorizer.CacheFile) != "" {
		return c.Categorizer.CacheFile
	}
	return fmt.Sprintf("cache/results_%s.json", c.Categorizer.Provider)
}
