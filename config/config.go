package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	EmbedderHashing = "hashing"
	EmbedderOllama  = "ollama"
	EmbedderOpenAI  = "openai"
)

// Config holds all configuration for the service
type Config struct {
	General   GeneralConfig   `mapstructure:"general" yaml:"general"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Chunker   ChunkerConfig   `mapstructure:"chunker" yaml:"chunker"`
	Embedder  EmbedderConfig  `mapstructure:"embedder" yaml:"embedder"`
	Retrieval RetrievalConfig `mapstructure:"retrieval" yaml:"retrieval"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Levels    LevelsConfig    `mapstructure:"levels" yaml:"levels"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Ingest    IngestConfig    `mapstructure:"ingest" yaml:"ingest"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address      string   `mapstructure:"address" yaml:"address"`
	BodyLimit    string   `mapstructure:"body_limit" yaml:"body_limit"`
	AllowOrigins []string `mapstructure:"allow_origins" yaml:"allow_origins"`
	DefaultLevel int      `mapstructure:"default_level" yaml:"default_level"`
	Migrations   string   `mapstructure:"migrations" yaml:"migrations"`
}

func (s ServerConfig) Normalize() ServerConfig {
	s.Address = strings.TrimSpace(s.Address)
	if s.Address == "" {
		s.Address = ":8000"
	}
	if s.Address[0] != ':' && !strings.Contains(s.Address, ":") {
		s.Address = ":" + s.Address
	}
	if strings.TrimSpace(s.Migrations) == "" {
		s.Migrations = "file://migrations"
	}
	return s
}

func (s ServerConfig) Validate() error {
	if s.DefaultLevel < 0 || s.DefaultLevel > 5 {
		return fmt.Errorf("server.default_level must be between 0 and 5")
	}
	return nil
}

// StorageConfig selects the vector store backend and the optional embedding cache.
type StorageConfig struct {
	Driver   string         `mapstructure:"driver" yaml:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
}

func (s StorageConfig) Normalize() StorageConfig {
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	if s.Driver == "" {
		s.Driver = DriverPostgres
	}
	if strings.TrimSpace(s.SQLite.Path) == "" {
		s.SQLite.Path = filepath.Join("data", "docchat.db")
	}
	return s
}

func (s StorageConfig) Validate() error {
	switch s.Driver {
	case DriverPostgres:
		if err := s.Postgres.Validate(); err != nil {
			return err
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, s.Driver)
	}
	return s.Redis.Validate()
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url" yaml:"url"`
	Host     string        `mapstructure:"host" yaml:"host"`
	Port     string        `mapstructure:"port" yaml:"port"`
	User     string        `mapstructure:"user" yaml:"user"`
	Password string        `mapstructure:"password" yaml:"password"`
	DBName   string        `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string        `mapstructure:"sslmode" yaml:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN returns the URL when set, otherwise builds one from the parts.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     p.Host + ":" + port,
		Path:     "/" + p.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(ssl),
	}
	return u.String()
}

type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// RedisConfig contains Redis connection settings. An empty host disables the embedding cache.
type RedisConfig struct {
	Host     string        `mapstructure:"host" yaml:"host"`
	Port     string        `mapstructure:"port" yaml:"port"`
	Password string        `mapstructure:"password" yaml:"password"`
	DB       int           `mapstructure:"db" yaml:"db"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required when host is set")
	}
	if r.CacheTTL < 0 {
		return fmt.Errorf("storage.redis.cache_ttl cannot be negative")
	}
	return nil
}

type ChunkerConfig struct {
	Size    int `mapstructure:"size" yaml:"size"`
	Overlap int `mapstructure:"overlap" yaml:"overlap"`
}

func (c ChunkerConfig) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("chunker.size must be > 0")
	}
	if c.Overlap <= 0 || c.Overlap >= c.Size {
		return fmt.Errorf("chunker.overlap must satisfy 0 < overlap < size")
	}
	return nil
}

// EmbedderConfig selects the embedding backend.
type EmbedderConfig struct {
	Type              string        `mapstructure:"type" yaml:"type"`
	Model             string        `mapstructure:"model" yaml:"model"`
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	Dimensions        int           `mapstructure:"dimensions" yaml:"dimensions"`
	BatchSize         int           `mapstructure:"batch_size" yaml:"batch_size"`
	Parallelism       int           `mapstructure:"parallelism" yaml:"parallelism"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

func (e EmbedderConfig) Normalize() EmbedderConfig {
	e.Type = strings.ToLower(strings.TrimSpace(e.Type))
	if e.Type == "" {
		e.Type = EmbedderHashing
	}
	return e
}

func (e EmbedderConfig) Validate() error {
	switch e.Type {
	case EmbedderHashing:
	case EmbedderOllama, EmbedderOpenAI:
		if strings.TrimSpace(e.Model) == "" {
			return fmt.Errorf("embedder.model required for %s", e.Type)
		}
	default:
		return fmt.Errorf("unsupported embedder.type: %s", e.Type)
	}
	if e.Dimensions <= 0 {
		return fmt.Errorf("embedder.dimensions must be > 0")
	}
	if e.BatchSize < 0 || e.Parallelism < 0 {
		return fmt.Errorf("embedder.batch_size and embedder.parallelism cannot be negative")
	}
	return nil
}

type RetrievalConfig struct {
	TopK             int    `mapstructure:"top_k" yaml:"top_k"`
	NoContextMessage string `mapstructure:"no_context_message" yaml:"no_context_message"`
}

func (r RetrievalConfig) Validate() error {
	if r.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be > 0")
	}
	return nil
}

// LLMConfig configures the answer engine. Candidates are tried in order.
type LLMConfig struct {
	Timeout         time.Duration  `mapstructure:"timeout" yaml:"timeout"`
	MaxContextChars int            `mapstructure:"max_context_chars" yaml:"max_context_chars"`
	PromptTemplate  string         `mapstructure:"prompt_template" yaml:"prompt_template"`
	GeneralTemplate string         `mapstructure:"general_template" yaml:"general_template"`
	TimeoutMessage  string         `mapstructure:"timeout_message" yaml:"timeout_message"`
	FailureMessage  string         `mapstructure:"failure_message" yaml:"failure_message"`
	StopMarkers     []string       `mapstructure:"stop_markers" yaml:"stop_markers"`
	Candidates      []LLMCandidate `mapstructure:"candidates" yaml:"candidates"`
	// APIKeys holds per-provider credentials used when a candidate has none of its own.
	APIKeys map[string]string `mapstructure:"api_keys" yaml:"api_keys"`
}

// LLMCandidate represents a single model the engine may call
type LLMCandidate struct {
	Name        string        `mapstructure:"name" yaml:"name"`
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

func (l LLMConfig) Normalize() LLMConfig {
	for i := range l.Candidates {
		c := &l.Candidates[i]
		c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
		if c.APIKey == "" {
			c.APIKey = l.APIKeys[c.Provider]
		}
		if c.Name == "" {
			c.Name = c.Model
		}
	}
	return l
}

func (l LLMConfig) Validate() error {
	if l.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be > 0")
	}
	if l.MaxContextChars <= 0 {
		return fmt.Errorf("llm.max_context_chars must be > 0")
	}
	if len(l.Candidates) == 0 {
		return fmt.Errorf("llm.candidates requires at least one model")
	}
	for i, c := range l.Candidates {
		if strings.TrimSpace(c.Model) == "" {
			return fmt.Errorf("llm.candidates[%d].model required", i)
		}
		if strings.TrimSpace(c.Provider) == "" {
			return fmt.Errorf("llm.candidates[%d].provider required", i)
		}
	}
	return nil
}

// TelemetryConfig controls span export. Prometheus metrics are always served on /metrics.
type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled" yaml:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name" yaml:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
}

func (t TelemetryConfig) Validate() error {
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	return nil
}

// IngestConfig moves chunking and embedding of uploads onto a Redis stream
// consumed by `docchat worker`. Off by default: uploads are ingested inline.
type IngestConfig struct {
	Async       bool          `mapstructure:"async" yaml:"async"`
	Stream      string        `mapstructure:"stream" yaml:"stream"`
	Group       string        `mapstructure:"group" yaml:"group"`
	Consumer    string        `mapstructure:"consumer" yaml:"consumer"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	ClaimIdle   time.Duration `mapstructure:"claim_idle" yaml:"claim_idle"`
	MaxLen      int64         `mapstructure:"max_len" yaml:"max_len"`
}

func (i IngestConfig) Normalize() IngestConfig {
	if strings.TrimSpace(i.Consumer) == "" {
		if host, err := os.Hostname(); err == nil {
			i.Consumer = host
		} else {
			i.Consumer = "docchat-worker"
		}
	}
	return i
}

func (i IngestConfig) validate(redis RedisConfig) error {
	if !i.Async {
		return nil
	}
	if !redis.Enabled() {
		return fmt.Errorf("ingest.async requires storage.redis.host")
	}
	if strings.TrimSpace(i.Stream) == "" || strings.TrimSpace(i.Group) == "" {
		return fmt.Errorf("ingest.stream and ingest.group required when ingest.async is set")
	}
	if i.MaxAttempts <= 0 {
		return fmt.Errorf("ingest.max_attempts must be > 0")
	}
	return nil
}

// LevelsConfig holds prompt prefixes per user expertise band.
type LevelsConfig struct {
	Beginner     string `mapstructure:"beginner" yaml:"beginner"`
	Intermediate string `mapstructure:"intermediate" yaml:"intermediate"`
	Expert       string `mapstructure:"expert" yaml:"expert"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.body_limit", "32M")
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("server.default_level", 1)
	v.SetDefault("server.migrations", "file://migrations")
	v.SetDefault("storage.driver", DriverPostgres)
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.postgres.timeout", 10*time.Second)
	v.SetDefault("storage.sqlite.path", filepath.Join("data", "docchat.db"))
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("storage.redis.cache_ttl", 24*time.Hour)
	v.SetDefault("chunker.size", 800)
	v.SetDefault("chunker.overlap", 200)
	v.SetDefault("embedder.type", EmbedderHashing)
	v.SetDefault("embedder.dimensions", 384)
	v.SetDefault("embedder.batch_size", 32)
	v.SetDefault("embedder.parallelism", 4)
	v.SetDefault("embedder.timeout", 30*time.Second)
	v.SetDefault("embedder.max_retries", 2)
	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.no_context_message", "No relevant content found in the document.")
	v.SetDefault("llm.timeout", 2*time.Minute)
	v.SetDefault("llm.max_context_chars", 4000)
	v.SetDefault("llm.candidates", []map[string]any{
		{"name": "gemma-3-27b", "provider": "replicate", "model": "google-deepmind/gemma-3-27b-it"},
		{"name": "gemma-3-4b", "provider": "replicate", "model": "google-deepmind/gemma-3-4b-it"},
	})
	v.SetDefault("ingest.stream", "document.ingest")
	v.SetDefault("ingest.group", "docchat-workers")
	v.SetDefault("ingest.max_attempts", 3)
	v.SetDefault("ingest.claim_idle", 5*time.Minute)
	v.SetDefault("ingest.max_len", 10000)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.service_name", "docchat")
	v.SetDefault("levels.beginner", "I am a beginner user with little to no prior knowledge of the subject.")
	v.SetDefault("levels.intermediate", "I am an intermediate user with some knowledge of the subject.")
	v.SetDefault("levels.expert", "I am an expert user with extensive knowledge of the subject.")
}

// bindCompat maps the conventional unprefixed variables onto config keys.
func bindCompat(v *viper.Viper) {
	_ = v.BindEnv("storage.postgres.url", "DOCCHAT_STORAGE_POSTGRES_URL", "DATABASE_URL")
	_ = v.BindEnv("storage.postgres.host", "DOCCHAT_STORAGE_POSTGRES_HOST", "POSTGRES_HOST")
	_ = v.BindEnv("storage.postgres.port", "DOCCHAT_STORAGE_POSTGRES_PORT", "POSTGRES_PORT")
	_ = v.BindEnv("storage.postgres.user", "DOCCHAT_STORAGE_POSTGRES_USER", "POSTGRES_USER")
	_ = v.BindEnv("storage.postgres.password", "DOCCHAT_STORAGE_POSTGRES_PASSWORD", "POSTGRES_PASSWORD")
	_ = v.BindEnv("storage.postgres.dbname", "DOCCHAT_STORAGE_POSTGRES_DBNAME", "POSTGRES_DB")
	_ = v.BindEnv("storage.postgres.sslmode", "DOCCHAT_STORAGE_POSTGRES_SSLMODE", "POSTGRES_SSLMODE")
	_ = v.BindEnv("llm.api_keys.replicate", "DOCCHAT_LLM_API_KEYS_REPLICATE", "REPLICATE_API_TOKEN")
	_ = v.BindEnv("llm.api_keys.openai", "DOCCHAT_LLM_API_KEYS_OPENAI", "OPENAI_API_KEY")
}

// LoadConfig reads .env, the config file and DOCCHAT_* variables, in increasing precedence.
// With an empty path the file is optional and searched in ./config and the working directory.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Join(filepath.Dir(exe), "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("DOCCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindCompat(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) Normalize() Config {
	c.Server = c.Server.Normalize()
	c.Storage = c.Storage.Normalize()
	c.Embedder = c.Embedder.Normalize()
	c.LLM = c.LLM.Normalize()
	c.Ingest = c.Ingest.Normalize()
	return c
}

func (c Config) Validate() error {
	for _, fn := range []func() error{
		c.Server.Validate,
		c.Storage.Validate,
		c.Chunker.Validate,
		c.Embedder.Validate,
		c.Retrieval.Validate,
		c.LLM.Validate,
		c.Telemetry.Validate,
		func() error { return c.Ingest.validate(c.Storage.Redis) },
	} {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}
