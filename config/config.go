// Package config loads recall's configuration with the precedence
// flag > env > file > defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/memory"
)

// EnvPrefix prefixes every recall environment variable, e.g. RECALL_LLM_MODEL.
const EnvPrefix = "RECALL"

// Config is the top-level recall configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Embedder EmbedderConfig `mapstructure:"embedder"`
	Store    StoreConfig    `mapstructure:"store"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Server   ServerConfig   `mapstructure:"server"`
}

// LLMConfig selects the chat model.
type LLMConfig struct {
	// Provider is one of groq, openai, anthropic, google.
	Provider    string   `mapstructure:"provider"`
	APIKey      string   `mapstructure:"api_key"`
	Model       string   `mapstructure:"model"`
	BaseURL     string   `mapstructure:"base_url"`
	MaxTokens   int64    `mapstructure:"max_tokens"`
	Temperature *float64 `mapstructure:"temperature"`
}

// EmbedderConfig selects the embedding model.
type EmbedderConfig struct {
	// Provider is one of auto, hash, onnx, openai, google.
	// auto picks onnx when compiled in, hash otherwise.
	Provider      string `mapstructure:"provider"`
	Model         string `mapstructure:"model"`
	APIKey        string `mapstructure:"api_key"`
	BaseURL       string `mapstructure:"base_url"`
	Dimensions    int    `mapstructure:"dimensions"`
	ModelPath     string `mapstructure:"model_path"`
	TokenizerPath string `mapstructure:"tokenizer_path"`
	LibraryPath   string `mapstructure:"library_path"`

	// CacheSize bounds the embedding cache. Zero disables it.
	CacheSize int64 `mapstructure:"cache_size"`
}

// StoreConfig selects the vector store.
type StoreConfig struct {
	// Backend is one of chromem, sqlitevec, postgres.
	Backend     string `mapstructure:"backend"`
	Path        string `mapstructure:"path"`
	Collection  string `mapstructure:"collection"`
	Compress    bool   `mapstructure:"compress"`
	DatabaseURL string `mapstructure:"database_url"`
}

// MemoryConfig tunes the pipeline.
type MemoryConfig struct {
	IngestPolicy string        `mapstructure:"ingest_policy"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ShowContext  bool          `mapstructure:"show_context"`
}

// ServerConfig controls the network front ends.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	GRPCListen      string        `mapstructure:"grpc_listen"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// nativeKeys lists provider-native environment variables consulted when no
// explicit api_key is configured, in order.
var nativeKeys = map[string][]string{
	"groq":      {"GROQ_API_KEY"},
	"openai":    {"OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
	"google":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	// Every key gets a default, even an empty one, so Unmarshal sees
	// values that only come from the environment.
	v.SetDefault("llm.provider", "groq")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.max_tokens", 1024)

	v.SetDefault("embedder.provider", "auto")
	v.SetDefault("embedder.model", "")
	v.SetDefault("embedder.api_key", "")
	v.SetDefault("embedder.base_url", "")
	v.SetDefault("embedder.dimensions", 0)
	v.SetDefault("embedder.library_path", "")
	v.SetDefault("embedder.model_path", "models/all-MiniLM-L6-v2/model.onnx")
	v.SetDefault("embedder.tokenizer_path", "models/all-MiniLM-L6-v2/tokenizer.json")
	v.SetDefault("embedder.cache_size", 0)

	v.SetDefault("store.backend", "chromem")
	v.SetDefault("store.path", "./chromem_store")
	v.SetDefault("store.collection", "user_memories")
	v.SetDefault("store.compress", false)
	v.SetDefault("store.database_url", "")

	v.SetDefault("memory.ingest_policy", "all")
	v.SetDefault("memory.timeout", 30*time.Second)
	v.SetDefault("memory.show_context", true)

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.grpc_listen", "")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
}

// SetupEnv binds RECALL_* variables (dots become underscores).
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("store.database_url", EnvPrefix+"_STORE_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("llm.temperature")
}

// Load reads .env (if present), the optional config file at path and the
// environment, then validates. Any problem is a configuration error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, core.NewError(core.KindConfiguration, "load config", fmt.Errorf("reading config %s: %w", path, err))
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, core.NewError(core.KindConfiguration, "load config", fmt.Errorf("unmarshalling config: %w", err))
	}

	cfg.normalize()
	cfg.resolveKeys()

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, core.NewError(core.KindConfiguration, "validate config", errors.Join(errs...))
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.Embedder.Provider = strings.ToLower(strings.TrimSpace(c.Embedder.Provider))
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "sqlitevec" && c.Store.Path == "./chromem_store" {
		c.Store.Path = "./recall.db"
	}
}

// resolveKeys falls back to provider-native environment variables.
func (c *Config) resolveKeys() {
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = firstEnv(nativeKeys[c.LLM.Provider])
	}
	if c.Embedder.APIKey == "" {
		c.Embedder.APIKey = firstEnv(nativeKeys[c.Embedder.Provider])
	}
}

func firstEnv(names []string) string {
	for _, name := range names {
		if val := os.Getenv(name); val != "" {
			return val
		}
	}
	return ""
}

// Validate checks the configuration for logical errors.
// It returns every problem found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateLLM()...)
	errs = append(errs, c.validateEmbedder()...)
	errs = append(errs, c.validateStore()...)
	errs = append(errs, c.validateMemory()...)
	errs = append(errs, c.validateServer()...)

	return errs
}

func (c *Config) validateLLM() []error {
	var errs []error

	keys, ok := nativeKeys[c.LLM.Provider]
	if !ok {
		errs = append(errs, fmt.Errorf("config: llm.provider must be one of [groq, openai, anthropic, google], got %q", c.LLM.Provider))
	} else if c.LLM.APIKey == "" {
		errs = append(errs, fmt.Errorf("config: missing API key for %s (set %s or %s_LLM_API_KEY)",
			c.LLM.Provider, strings.Join(keys, " or "), EnvPrefix))
	}

	if c.LLM.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("config: llm.max_tokens must not be negative, got %d", c.LLM.MaxTokens))
	}

	return errs
}

func (c *Config) validateEmbedder() []error {
	var errs []error

	switch c.Embedder.Provider {
	case "auto", "hash", "onnx":
	case "openai", "google":
		if c.Embedder.APIKey == "" {
			errs = append(errs, fmt.Errorf("config: missing API key for %s embedder (set %s or %s_EMBEDDER_API_KEY)",
				c.Embedder.Provider, strings.Join(nativeKeys[c.Embedder.Provider], " or "), EnvPrefix))
		}
	default:
		errs = append(errs, fmt.Errorf("config: embedder.provider must be one of [auto, hash, onnx, openai, google], got %q", c.Embedder.Provider))
	}

	if c.Embedder.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("config: embedder.dimensions must not be negative, got %d", c.Embedder.Dimensions))
	}
	if c.Embedder.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("config: embedder.cache_size must not be negative, got %d", c.Embedder.CacheSize))
	}

	return errs
}

func (c *Config) validateStore() []error {
	var errs []error

	switch c.Store.Backend {
	case "chromem":
	case "sqlitevec":
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("config: store.path is required for sqlitevec"))
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("config: store.database_url is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: store.backend must be one of [chromem, sqlitevec, postgres], got %q", c.Store.Backend))
	}

	if c.Store.Collection == "" {
		errs = append(errs, fmt.Errorf("config: store.collection must not be empty"))
	}

	return errs
}

func (c *Config) validateMemory() []error {
	var errs []error

	if _, err := memory.PolicyByName(c.Memory.IngestPolicy); err != nil {
		errs = append(errs, fmt.Errorf("config: memory.ingest_policy: %w", err))
	}
	if c.Memory.Timeout < 0 {
		errs = append(errs, fmt.Errorf("config: memory.timeout must not be negative, got %s", c.Memory.Timeout))
	}

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	for key, addr := range map[string]string{"server.listen": c.Server.Listen, "server.grpc_listen": c.Server.GRPCListen} {
		if addr == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, fmt.Errorf("config: %s must be a valid host:port address, got %q: %w", key, addr, err))
		}
	}

	return errs
}
