package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Chat        ChatConfig                `json:"chat"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Embedding   EmbeddingConfig           `json:"embedding"`
	Memory      MemoryConfig              `json:"memory"`
	Vector      VectorConfig              `json:"vector"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address"`
	Env               string `json:"env"`
	AdminToken        string `json:"admin_token"`
	TokenTTLHours     int    `json:"token_ttl_hours"`
	MinWorkers        int    `json:"min_workers"`
	MaxWorkers        int    `json:"max_workers"`
	QueueSize         int    `json:"queue_size"`
	WorkerIdleTimeout int    `json:"worker_idle_timeout"` // minutes
}

// ChatConfig selects the completion provider used for turns and extraction.
type ChatConfig struct {
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	ReplyLanguage string `json:"reply_language"`
}

type EmbeddingConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type MemoryConfig struct {
	SaveBackground  *bool  `json:"save_background"`
	RetrieveTopK    int    `json:"retrieve_top_k"`
	NamespacePrefix string `json:"namespace_prefix"`
	WriteTimeoutSec int    `json:"write_timeout_sec"`
	Debug           bool   `json:"debug"`
}

type VectorConfig struct {
	PersistPath string `json:"persist_path"`
	Compress    bool   `json:"compress"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

const (
	defaultProvider      = "openai"
	defaultChatModel     = "gpt-4o-mini"
	defaultEmbedModel    = "text-embedding-3-small"
	defaultEmbedBaseURL  = "https://api.openai.com/v1"
	defaultNamespace     = "mem"
	defaultRetrieveTopK  = 2
	defaultWriteTimeout  = 60
	defaultReplyLanguage = "English"
)

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// relative sqlite / vector paths are anchored next to the config file
	baseDir := filepath.Dir(absPath)
	for name, db := range cfg.Databases {
		if isSQLite(name) && db.DSN != "" && db.DSN != ":memory:" && !strings.HasPrefix(db.DSN, "file:") && !filepath.IsAbs(db.DSN) {
			db.DSN = filepath.Join(baseDir, db.DSN)
			cfg.Databases[name] = db
		}
	}
	if p := cfg.Vector.PersistPath; p != "" && !filepath.IsAbs(p) {
		cfg.Vector.PersistPath = filepath.Join(baseDir, p)
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields. Exposed so tests can build configs in code.
func (c *Config) ApplyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8090"
	}
	if c.BasicConfig.Env == "" {
		c.BasicConfig.Env = "prod"
	}
	if c.BasicConfig.TokenTTLHours <= 0 {
		c.BasicConfig.TokenTTLHours = 24
	}
	if c.BasicConfig.MinWorkers <= 0 {
		c.BasicConfig.MinWorkers = 1
	}
	if c.BasicConfig.MaxWorkers < c.BasicConfig.MinWorkers {
		c.BasicConfig.MaxWorkers = c.BasicConfig.MinWorkers * 4
	}
	if c.BasicConfig.QueueSize <= 0 {
		c.BasicConfig.QueueSize = 256
	}
	if c.Chat.Provider == "" {
		c.Chat.Provider = defaultProvider
	}
	if c.Chat.ReplyLanguage == "" {
		c.Chat.ReplyLanguage = defaultReplyLanguage
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	if c.Chat.Model == "" {
		if p, ok := c.Providers[c.Chat.Provider]; ok && p.Model != "" {
			c.Chat.Model = p.Model
		} else {
			c.Chat.Model = defaultChatModel
		}
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = defaultEmbedModel
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = defaultEmbedBaseURL
	}
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = c.Providers["openai"].APIKey
	}
	if c.Memory.SaveBackground == nil {
		on := true
		c.Memory.SaveBackground = &on
	}
	if c.Memory.RetrieveTopK <= 0 {
		c.Memory.RetrieveTopK = defaultRetrieveTopK
	}
	if c.Memory.NamespacePrefix == "" {
		c.Memory.NamespacePrefix = defaultNamespace
	}
	if c.Memory.WriteTimeoutSec <= 0 {
		c.Memory.WriteTimeoutSec = defaultWriteTimeout
	}
	if c.Redis.Host == "" {
		c.Redis.Host = "127.0.0.1"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
}

// Validate reports configuration that cannot work at runtime.
func (c *Config) Validate() error {
	if len(c.Databases) == 0 {
		return fmt.Errorf("at least one database must be configured")
	}
	switch c.Chat.Provider {
	case "openai", "claude", "gemini":
	default:
		return fmt.Errorf("unsupported chat provider: %s", c.Chat.Provider)
	}
	return nil
}

// BackgroundMemory reports whether memory writes are queued instead of inline.
func (c *Config) BackgroundMemory() bool {
	return c.Memory.SaveBackground == nil || *c.Memory.SaveBackground
}

// ChatProvider returns the provider block selected for chat, with the chat model applied.
func (c *Config) ChatProvider() ProviderConfig {
	p := c.Providers[c.Chat.Provider]
	p.Model = c.Chat.Model
	return p
}

func (c *Config) applyEnv() {
	envKeys := map[string]string{
		"openai": "OPENAI_API_KEY",
		"claude": "ANTHROPIC_API_KEY",
		"gemini": "GEMINI_API_KEY",
	}
	for provider, key := range envKeys {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		if c.Providers == nil {
			c.Providers = map[string]ProviderConfig{}
		}
		p := c.Providers[provider]
		p.APIKey = v
		c.Providers[provider] = p
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		c.Chat.Model = v
	}
	if v := os.Getenv("OPENAI_EMBED_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("TUTORGATE_ADMIN_TOKEN"); v != "" {
		c.BasicConfig.AdminToken = v
	}
	if v := os.Getenv("MEMORY_SAVE_BACKGROUND"); v != "" {
		on := v == "1" || strings.EqualFold(v, "true")
		c.Memory.SaveBackground = &on
	}
	if os.Getenv("MEMORY_DEBUG") == "1" {
		c.Memory.Debug = true
	}
}

func isSQLite(name string) bool {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}
