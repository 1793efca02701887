// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port              int           `yaml:"port"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"` // SSE keep-alive comments
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"` // HS256 secret for bearer tokens
	DevUserID string `yaml:"dev_user_id"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL       string        `yaml:"url"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	TTL       time.Duration `yaml:"ttl"`        // user cache
	ThreadTTL time.Duration `yaml:"thread_ttl"` // message list cache, kept below the eviction grace
}

type LLMConfig struct {
	BaseURL         string        `yaml:"base_url"` // OpenAI-compatible endpoint, OpenRouter by default
	Model           string        `yaml:"model"`
	FallbackKey     string        `yaml:"fallback_key"` // server key used when a user's key is rate limited
	FallbackBaseURL string        `yaml:"fallback_base_url"`
	FallbackModel   string        `yaml:"fallback_model"`
	ConcurrentLimit int           `yaml:"concurrent_limit"` // max concurrent LLM calls
	Timeout         time.Duration `yaml:"timeout"`
}

type EmbeddingConfig struct {
	GeminiKey  string `yaml:"gemini_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

type SearchConfig struct {
	TavilyURL      string `yaml:"tavily_url"`
	MaxResults     int    `yaml:"max_results"`
	DeepMaxResults int    `yaml:"deep_max_results"`
	Concurrency    int    `yaml:"concurrency"`
	ChunkTokens    int    `yaml:"chunk_tokens"`
}

type VectorConfig struct {
	QdrantURL string `yaml:"qdrant_url"`
	APIKey    string `yaml:"api_key"`
}

type StageTimeouts struct {
	Planning   time.Duration `yaml:"planning"`
	Searching  time.Duration `yaml:"searching"`
	Extracting time.Duration `yaml:"extracting"`
	Compiling  time.Duration `yaml:"compiling"`
}

type PipelineConfig struct {
	Workers        int           `yaml:"workers"`
	QueueSize      int           `yaml:"queue_size"`
	EvictionGrace  time.Duration `yaml:"eviction_grace"` // how long finished turns stay in memory
	PersistTimeout time.Duration `yaml:"persist_timeout"`
	EventBuffer    int           `yaml:"event_buffer"` // per-subscriber bus buffer
	StageTimeouts  StageTimeouts `yaml:"stage_timeouts"`
}

type SchedulerConfig struct {
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	StaleAfter        time.Duration `yaml:"stale_after"`
}

type RateLimitConfig struct {
	JobsPerWindow int           `yaml:"jobs_per_window"`
	Window        time.Duration `yaml:"window"`
}

type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Vector    VectorConfig    `yaml:"vector"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Upload    UploadConfig    `yaml:"upload"`
	Security  SecurityConfig  `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, fills defaults and validates the
// settings the service cannot start without.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Auth.JWTSecret == "" && !dev {
		return nil, errors.New("auth.jwt_secret is required outside dev mode")
	}
	if cfg.Embedding.GeminiKey == "" {
		return nil, errors.New("embedding.gemini_key is required")
	}
	if cfg.Security.EncryptionKey == "" {
		return nil, errors.New("security.encryption_key is required")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	}
	cfg.Server.HeartbeatInterval = orDuration(cfg.Server.HeartbeatInterval, 15*time.Second)
	cfg.Server.ShutdownTimeout = orDuration(cfg.Server.ShutdownTimeout, 10*time.Second)
	if cfg.Auth.DevUserID == "" {
		cfg.Auth.DevUserID = "dev-user-123"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = orDuration(cfg.Redis.TTL, time.Hour)
	cfg.Redis.ThreadTTL = orDuration(cfg.Redis.ThreadTTL, 20*time.Second)

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "openai/gpt-4o-mini"
	}
	if cfg.LLM.FallbackBaseURL == "" {
		cfg.LLM.FallbackBaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.LLM.FallbackModel == "" {
		cfg.LLM.FallbackModel = cfg.LLM.Model
	}
	if cfg.LLM.ConcurrentLimit <= 0 {
		cfg.LLM.ConcurrentLimit = 16
	}
	cfg.LLM.Timeout = orDuration(cfg.LLM.Timeout, 2*time.Minute)

	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-004"
	}
	if cfg.Embedding.Dimensions <= 0 {
		cfg.Embedding.Dimensions = 768
	}

	if cfg.Search.TavilyURL == "" {
		cfg.Search.TavilyURL = "https://api.tavily.com"
	}
	if cfg.Search.MaxResults <= 0 {
		cfg.Search.MaxResults = 10
	}
	if cfg.Search.DeepMaxResults <= 0 {
		cfg.Search.DeepMaxResults = 20
	}
	if cfg.Search.Concurrency <= 0 {
		cfg.Search.Concurrency = 4
	}
	if cfg.Search.ChunkTokens <= 0 {
		cfg.Search.ChunkTokens = 256
	}
	if cfg.Vector.QdrantURL == "" {
		cfg.Vector.QdrantURL = "http://localhost:6333"
	}

	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = 8
	}
	if cfg.Pipeline.QueueSize <= 0 {
		cfg.Pipeline.QueueSize = cfg.Pipeline.Workers * 4
	}
	cfg.Pipeline.EvictionGrace = orDuration(cfg.Pipeline.EvictionGrace, time.Minute)
	cfg.Pipeline.PersistTimeout = orDuration(cfg.Pipeline.PersistTimeout, 5*time.Second)
	if cfg.Pipeline.EventBuffer <= 0 {
		cfg.Pipeline.EventBuffer = 1024
	}
	st := &cfg.Pipeline.StageTimeouts
	st.Planning = orDuration(st.Planning, 2*time.Minute)
	st.Searching = orDuration(st.Searching, 4*time.Minute)
	st.Extracting = orDuration(st.Extracting, 5*time.Minute)
	st.Compiling = orDuration(st.Compiling, 5*time.Minute)

	cfg.Scheduler.ReconcileInterval = orDuration(cfg.Scheduler.ReconcileInterval, 5*time.Minute)
	cfg.Scheduler.StaleAfter = orDuration(cfg.Scheduler.StaleAfter, 30*time.Minute)

	if cfg.RateLimit.JobsPerWindow <= 0 {
		cfg.RateLimit.JobsPerWindow = 20
	}
	cfg.RateLimit.Window = orDuration(cfg.RateLimit.Window, time.Minute)

	if cfg.Upload.MaxBytes <= 0 {
		cfg.Upload.MaxBytes = 10 << 20
	}
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
