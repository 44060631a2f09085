package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port    string
	LogMode string

	DatabaseURL string

	// LLM
	LLMProvider       string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAIVisionModel string
	OpenAIEmbedModel  string
	GeminiAPIKey      string
	GeminiModel       string
	GeminiEmbedModel  string

	// Векторный индекс
	VectorBackend    string
	MilvusAddress    string
	MilvusCollection string

	// Таймауты на каждый внешний вызов
	ExtractTimeout time.Duration
	LLMTimeout     time.Duration
	DBTimeout      time.Duration
	EmbedTimeout   time.Duration
	RequestTimeout time.Duration

	MaxUploadBytes int64

	UploadBucket     string
	LogRetention     time.Duration
	PurgeSchedule    string
	TelegramBotToken string
	WebhookURL       string
}

// fileConfig — необязательный YAML-оверлей с несекретными настройками.
type fileConfig struct {
	Port          string `yaml:"port"`
	LogMode       string `yaml:"log_mode"`
	LLMProvider   string `yaml:"llm_provider"`
	VectorBackend string `yaml:"vector_backend"`
	OpenAI        struct {
		Model       string `yaml:"model"`
		VisionModel string `yaml:"vision_model"`
		EmbedModel  string `yaml:"embed_model"`
	} `yaml:"openai"`
	Gemini struct {
		Model      string `yaml:"model"`
		EmbedModel string `yaml:"embed_model"`
	} `yaml:"gemini"`
	Milvus struct {
		Address    string `yaml:"address"`
		Collection string `yaml:"collection"`
	} `yaml:"milvus"`
	Timeouts struct {
		ExtractSec int `yaml:"extract_sec"`
		LLMSec     int `yaml:"llm_sec"`
		DBSec      int `yaml:"db_sec"`
		EmbedSec   int `yaml:"embed_sec"`
		RequestSec int `yaml:"request_sec"`
	} `yaml:"timeouts"`
	MaxUploadMB      int    `yaml:"max_upload_mb"`
	LogRetentionDays int    `yaml:"log_retention_days"`
	PurgeSchedule    string `yaml:"purge_schedule"`
}

// ConfigError — невалидная настройка, обнаруженная при старте.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

// Load читает .env (если есть), затем YAML-оверлей, затем переменные окружения.
// Ключи провайдеров не обязательны: их отсутствие проявится на запросе как 503.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var fc fileConfig
	path := getEnv("CONFIG_FILE", "config.yaml")
	if b, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg := &Config{
		Port:    getEnv("PORT", or(fc.Port, "8000")),
		LogMode: getEnv("LOG_MODE", or(fc.LogMode, "dev")),

		DatabaseURL: resolveDSN(),

		LLMProvider:       strings.ToLower(getEnv("LLM_PROVIDER", or(fc.LLMProvider, "openai"))),
		OpenAIAPIKey:      strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:     strings.TrimRight(getEnv("OPENAI_BASE_URL", "https://api.openai.com"), "/"),
		OpenAIModel:       getEnv("OPENAI_MODEL", or(fc.OpenAI.Model, "gpt-4o-mini")),
		OpenAIVisionModel: getEnv("OPENAI_VISION_MODEL", or(fc.OpenAI.VisionModel, "gpt-4o")),
		OpenAIEmbedModel:  getEnv("OPENAI_EMBED_MODEL", or(fc.OpenAI.EmbedModel, "text-embedding-3-small")),
		GeminiAPIKey:      strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:       getEnv("GEMINI_MODEL", or(fc.Gemini.Model, "gemini-2.5-flash")),
		GeminiEmbedModel:  getEnv("GEMINI_EMBED_MODEL", or(fc.Gemini.EmbedModel, "text-embedding-004")),

		VectorBackend:    strings.ToLower(getEnv("VECTOR_BACKEND", or(fc.VectorBackend, "pgvector"))),
		MilvusAddress:    getEnv("MILVUS_ADDRESS", or(fc.Milvus.Address, "127.0.0.1:19530")),
		MilvusCollection: getEnv("MILVUS_COLLECTION", or(fc.Milvus.Collection, "problem_embeddings")),

		ExtractTimeout: seconds("EXTRACT_TIMEOUT_SEC", fc.Timeouts.ExtractSec, 90),
		LLMTimeout:     seconds("LLM_TIMEOUT_SEC", fc.Timeouts.LLMSec, 60),
		DBTimeout:      seconds("DB_TIMEOUT_SEC", fc.Timeouts.DBSec, 10),
		EmbedTimeout:   seconds("EMBED_TIMEOUT_SEC", fc.Timeouts.EmbedSec, 20),
		RequestTimeout: seconds("REQUEST_TIMEOUT_SEC", fc.Timeouts.RequestSec, 180),

		MaxUploadBytes: int64(getInt("MAX_UPLOAD_MB", nonZero(fc.MaxUploadMB, 10))) << 20,

		UploadBucket:     strings.TrimSpace(os.Getenv("UPLOAD_BUCKET")),
		LogRetention:     time.Duration(getInt("UPLOAD_LOG_RETENTION_DAYS", nonZero(fc.LogRetentionDays, 90))) * 24 * time.Hour,
		PurgeSchedule:    getEnv("PURGE_SCHEDULE", or(fc.PurgeSchedule, "@daily")),
		TelegramBotToken: strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		WebhookURL:       strings.TrimSpace(os.Getenv("WEBHOOK_URL")),
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.LLMProvider {
	case "openai", "gpt", "gemini":
	default:
		return &ConfigError{Field: "LLM_PROVIDER", Message: "use openai or gemini"}
	}
	switch c.VectorBackend {
	case "pgvector", "milvus":
	default:
		return &ConfigError{Field: "VECTOR_BACKEND", Message: "use pgvector or milvus"}
	}
	if c.MaxUploadBytes <= 0 {
		return &ConfigError{Field: "MAX_UPLOAD_MB", Message: "must be > 0"}
	}
	return nil
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func seconds(k string, fileVal, def int) time.Duration {
	return time.Duration(getInt(k, nonZero(fileVal, def))) * time.Second
}

func or(v, def string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func nonZero(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// resolveDSN: DATABASE_URL, иначе собираем из POSTGRES_* / PG*.
func resolveDSN() string {
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		return v
	}
	user := getEnv("POSTGRES_USER", "recs")
	pass := os.Getenv("POSTGRES_PASSWORD")
	host := getEnv("PGHOST", "localhost")
	port := getEnv("PGPORT", "5432")
	db := getEnv("POSTGRES_DB", "recs")

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + db,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// SafeDSNSummary — DSN без пароля, для логов.
func SafeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "dsn: parse error"
	}
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, u.User.Username())
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, u.User.Username())
}
