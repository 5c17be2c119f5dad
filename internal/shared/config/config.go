package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// placeholderAPIKey is the value shipped in sample env files; it counts as unset.
const placeholderAPIKey = "votre_clé_api_openai_ici"

// Config holds application configuration.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	LLMProvider    string
	LLMModel       string
	LLMTemperature float64
	LLMMaxTokens   int
	OpenAIAPIKey   string
	GeminiAPIKey   string
	OpenAITimeout  time.Duration

	Catalog CatalogConfig

	WorkerConcurrency int
	ShutdownTimeout   time.Duration
	MaxUploadBytes    int64

	CORSAllowOrigins []string
	RunRatePerSecond float64
	RunRateBurst     int

	LogLevel string
	LogJSON  bool
}

// CatalogConfig locates the reference catalog file and names its columns.
type CatalogConfig struct {
	Path             string
	TTL              time.Duration
	CodeColumn       string
	LabelColumn      string
	DefinitionColumn string
	AliasesColumn    string
	Delimiter        string
}

// Load reads configuration from .env files and the environment.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return Config{
		Port:        v.GetString("PORT"),
		Env:         normalizeEnv(v.GetString("ENV")),
		DatabaseURL: strings.TrimSpace(v.GetString("DATABASE_URL")),

		ObjectStoreType: normalizeStoreType(v.GetString("OBJECT_STORE")),
		LocalStoreDir:   v.GetString("LOCAL_STORE_DIR"),
		AWSRegion:       v.GetString("AWS_REGION"),
		S3Bucket:        v.GetString("S3_BUCKET"),
		S3Prefix:        v.GetString("S3_PREFIX"),
		SSEKMSKeyID:     v.GetString("SSE_KMS_KEY_ID"),

		LLMProvider:    normalizeProvider(v.GetString("LLM_PROVIDER")),
		LLMModel:       strings.TrimSpace(v.GetString("LLM_MODEL")),
		LLMTemperature: v.GetFloat64("LLM_TEMPERATURE"),
		LLMMaxTokens:   v.GetInt("LLM_MAX_TOKENS"),
		OpenAIAPIKey:   apiKey(v.GetString("OPENAI_API_KEY")),
		GeminiAPIKey:   apiKey(v.GetString("GEMINI_API_KEY")),
		OpenAITimeout:  seconds(v.GetInt("OPENAI_TIMEOUT_SECONDS"), 120),

		Catalog: CatalogConfig{
			Path:             v.GetString("METIERS_FILE_PATH"),
			TTL:              seconds(v.GetInt("METIERS_CACHE_TTL"), 3600),
			CodeColumn:       v.GetString("CATALOG_CODE_COLUMN"),
			LabelColumn:      v.GetString("CATALOG_LABEL_COLUMN"),
			DefinitionColumn: v.GetString("CATALOG_DEFINITION_COLUMN"),
			AliasesColumn:    v.GetString("CATALOG_ALIASES_COLUMN"),
			Delimiter:        v.GetString("CATALOG_DELIMITER"),
		},

		WorkerConcurrency: positive(v.GetInt("WORKER_CONCURRENCY"), 4),
		ShutdownTimeout:   seconds(v.GetInt("SHUTDOWN_TIMEOUT_SECONDS"), 30),
		MaxUploadBytes:    v.GetInt64("MAX_UPLOAD_BYTES"),

		CORSAllowOrigins: splitList(v.GetString("CORS_ALLOW_ORIGINS")),
		RunRatePerSecond: v.GetFloat64("RUN_RATE_PER_SECOND"),
		RunRateBurst:     positive(v.GetInt("RUN_RATE_BURST"), 5),

		LogLevel: v.GetString("LOG_LEVEL"),
		LogJSON:  v.GetBool("LOG_JSON"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "dev")
	v.SetDefault("OBJECT_STORE", "local")
	v.SetDefault("LOCAL_STORE_DIR", "./data")
	v.SetDefault("LLM_PROVIDER", "openai")
	v.SetDefault("LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("LLM_TEMPERATURE", 0.1)
	v.SetDefault("LLM_MAX_TOKENS", 2000)
	v.SetDefault("OPENAI_TIMEOUT_SECONDS", 120)
	v.SetDefault("METIERS_FILE_PATH", "datas/unix_cr_gd_dp_v458_utf8.csv")
	v.SetDefault("METIERS_CACHE_TTL", 3600)
	v.SetDefault("CATALOG_CODE_COLUMN", "code_rome")
	v.SetDefault("CATALOG_LABEL_COLUMN", "libelle_rome")
	v.SetDefault("CATALOG_DEFINITION_COLUMN", "definition")
	v.SetDefault("CATALOG_ALIASES_COLUMN", "appellations")
	v.SetDefault("CATALOG_DELIMITER", "auto")
	v.SetDefault("WORKER_CONCURRENCY", 4)
	v.SetDefault("SHUTDOWN_TIMEOUT_SECONDS", 30)
	v.SetDefault("MAX_UPLOAD_BYTES", 10<<20)
	v.SetDefault("RUN_RATE_BURST", 5)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_JSON", true)
}

// DevLike reports whether in-memory fallbacks are acceptable.
func (c Config) DevLike() bool {
	return c.Env != "production"
}

// Fields returns the effective configuration for a startup log line, secrets redacted.
func (c Config) Fields() []zap.Field {
	return []zap.Field{
		zap.String("env", c.Env),
		zap.String("port", c.Port),
		zap.Bool("database", c.DatabaseURL != ""),
		zap.String("object_store", c.ObjectStoreType),
		zap.String("llm_provider", c.LLMProvider),
		zap.String("llm_model", c.LLMModel),
		zap.Bool("openai_key", c.OpenAIAPIKey != ""),
		zap.Bool("gemini_key", c.GeminiAPIKey != ""),
		zap.String("catalog_path", c.Catalog.Path),
		zap.Duration("catalog_ttl", c.Catalog.TTL),
		zap.Int("worker_concurrency", c.WorkerConcurrency),
	}
}

func apiKey(raw string) string {
	key := strings.TrimSpace(raw)
	if key == placeholderAPIKey {
		return ""
	}
	return key
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func seconds(n, def int) time.Duration {
	return time.Duration(positive(n, def)) * time.Second
}

func positive(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizeProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "gemini", "google":
		return "gemini"
	default:
		return "openai"
	}
}
