package config

import (
	"fmt"
	"time"
)

// Config holds all recall configuration. The toml tags define the file
// layout; viper decodes through the matching mapstructure tags.
type Config struct {
	Server    ServerConfig    `toml:"server" mapstructure:"server"`
	Database  DatabaseConfig  `toml:"database" mapstructure:"database"`
	LLM       LLMConfig       `toml:"llm" mapstructure:"llm"`
	Embedding EmbeddingConfig `toml:"embedding" mapstructure:"embedding"`
	Semantic  SemanticConfig  `toml:"semantic" mapstructure:"semantic"`
	Temporal  TemporalConfig  `toml:"temporal" mapstructure:"temporal"`
	Retrieval RetrievalConfig `toml:"retrieval" mapstructure:"retrieval"`
	Lifecycle LifecycleConfig `toml:"lifecycle" mapstructure:"lifecycle"`
	Events    EventsConfig    `toml:"events" mapstructure:"events"`
	Log       LogConfig       `toml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Bind string `toml:"bind" mapstructure:"bind"`
	Port int    `toml:"port" mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path" mapstructure:"path"` // empty: ~/.recall/recall.db
}

type LLMConfig struct {
	Provider      string   `toml:"provider" mapstructure:"provider"` // "anthropic", "openai", "ollama", "exec", "claude-cli", "mock"
	Model         string   `toml:"model" mapstructure:"model"`
	AnthropicKey  string   `toml:"anthropic_key" mapstructure:"anthropic_key"`
	OpenAIKey     string   `toml:"openai_key" mapstructure:"openai_key"`
	OpenAIBaseURL string   `toml:"openai_base_url" mapstructure:"openai_base_url"`
	OllamaURL     string   `toml:"ollama_url" mapstructure:"ollama_url"`
	Command       []string `toml:"command" mapstructure:"command"` // exec provider argv, prompt on stdin
	MaxTokens     int      `toml:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries    int      `toml:"max_retries" mapstructure:"max_retries"`
	Timeout       string   `toml:"timeout" mapstructure:"timeout"`
}

type EmbeddingConfig struct {
	Provider   string `toml:"provider" mapstructure:"provider"` // "auto", "ollama", "tfidf"
	OllamaURL  string `toml:"ollama_url" mapstructure:"ollama_url"`
	Model      string `toml:"model" mapstructure:"model"`
	Dimensions int    `toml:"dimensions" mapstructure:"dimensions"`
	MaxTerms   int    `toml:"max_terms" mapstructure:"max_terms"`
}

type SemanticConfig struct {
	Provider   string `toml:"provider" mapstructure:"provider"` // "sqlite", "qdrant"
	Host       string `toml:"host" mapstructure:"host"`
	Port       int    `toml:"port" mapstructure:"port"`
	APIKey     string `toml:"api_key" mapstructure:"api_key"`
	UseTLS     bool   `toml:"use_tls" mapstructure:"use_tls"`
	Collection string `toml:"collection" mapstructure:"collection"`
}

type TemporalConfig struct {
	Provider string `toml:"provider" mapstructure:"provider"` // "sqlite", "postgres"
	DSN      string `toml:"dsn" mapstructure:"dsn"`
}

type RetrievalConfig struct {
	Threshold        float64            `toml:"threshold" mapstructure:"threshold"`
	TopK             int                `toml:"top_k" mapstructure:"top_k"`
	SemanticLimit    int                `toml:"semantic_limit" mapstructure:"semantic_limit"`
	TemporalLimit    int                `toml:"temporal_limit" mapstructure:"temporal_limit"`
	RelationalLimit  int                `toml:"relational_limit" mapstructure:"relational_limit"`
	SessionDepth     int                `toml:"session_depth" mapstructure:"session_depth"`
	SinceWindow      string             `toml:"since_window" mapstructure:"since_window"`
	AdapterTimeout   string             `toml:"adapter_timeout" mapstructure:"adapter_timeout"`
	PromoteSummaries bool               `toml:"promote_summaries" mapstructure:"promote_summaries"`
	Speakers         map[string]float64 `toml:"speakers" mapstructure:"speakers"`
}

type LifecycleConfig struct {
	Enabled   bool    `toml:"enabled" mapstructure:"enabled"`
	Interval  string  `toml:"interval" mapstructure:"interval"`
	DaysOld   int     `toml:"days_old" mapstructure:"days_old"`
	BoostStep float64 `toml:"boost_step" mapstructure:"boost_step"`
	// MaxPromptChars skips groups whose text exceeds it; 0 disables the cap.
	MaxPromptChars int `toml:"max_prompt_chars" mapstructure:"max_prompt_chars"`
}

type EventsConfig struct {
	Enabled  bool     `toml:"enabled" mapstructure:"enabled"`
	Brokers  []string `toml:"brokers" mapstructure:"brokers"`
	Topic    string   `toml:"topic" mapstructure:"topic"`
	ClientID string   `toml:"client_id" mapstructure:"client_id"`
}

type LogConfig struct {
	Level  string `toml:"level" mapstructure:"level"`   // "debug", "info"
	Format string `toml:"format" mapstructure:"format"` // "text", "json", "pretty"
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		LLM: LLMConfig{
			Provider:   "openai",
			Model:      "gpt-4",
			OllamaURL:  "http://localhost:11434",
			MaxTokens:  1024,
			MaxRetries: 3,
			Timeout:    "120s",
		},
		Embedding: EmbeddingConfig{
			Provider:   "auto",
			OllamaURL:  "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			MaxTerms:   512,
		},
		Semantic: SemanticConfig{
			Provider:   "sqlite",
			Host:       "localhost",
			Port:       6334,
			Collection: "semantic_logs",
		},
		Temporal: TemporalConfig{
			Provider: "sqlite",
		},
		Retrieval: RetrievalConfig{
			Threshold:        0.4,
			TopK:             12,
			SemanticLimit:    5,
			TemporalLimit:    5,
			RelationalLimit:  5,
			SessionDepth:     2,
			SinceWindow:      "720h",
			AdapterTimeout:   "3s",
			PromoteSummaries: true,
			Speakers: map[string]float64{
				"carol": 1.0,
				"eve":   0.7,
				"bob":   0.5,
			},
		},
		Lifecycle: LifecycleConfig{
			Enabled:   true,
			Interval:  "24h",
			DaysOld:   30,
			BoostStep: 0.05,
		},
		Events: EventsConfig{
			Topic:    "recall.lifecycle",
			ClientID: "recall",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// BaseURL is the http URL a client uses to reach the server.
func (c *Config) BaseURL() string {
	return "http://" + c.ListenAddr()
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	switch c.Semantic.Provider {
	case "sqlite", "qdrant":
	default:
		return fmt.Errorf("semantic.provider: unknown provider %q", c.Semantic.Provider)
	}
	switch c.Temporal.Provider {
	case "sqlite":
	case "postgres":
		if c.Temporal.DSN == "" {
			return fmt.Errorf("temporal.dsn is required for the postgres provider")
		}
	default:
		return fmt.Errorf("temporal.provider: unknown provider %q", c.Temporal.Provider)
	}
	if c.Events.Enabled && len(c.Events.Brokers) == 0 {
		return fmt.Errorf("events.brokers is required when events are enabled")
	}
	for name, s := range map[string]string{
		"retrieval.since_window":    c.Retrieval.SinceWindow,
		"retrieval.adapter_timeout": c.Retrieval.AdapterTimeout,
		"lifecycle.interval":        c.Lifecycle.Interval,
		"llm.timeout":               c.LLM.Timeout,
	} {
		if s == "" {
			continue
		}
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// SinceWindow returns retrieval.since_window, falling back to 30 days.
func (c *Config) SinceWindow() time.Duration {
	return duration(c.Retrieval.SinceWindow, 30*24*time.Hour)
}

// AdapterTimeout returns retrieval.adapter_timeout, falling back to 3s.
func (c *Config) AdapterTimeout() time.Duration {
	return duration(c.Retrieval.AdapterTimeout, 3*time.Second)
}

// LifecycleInterval returns lifecycle.interval, or 0 when the schedule is
// disabled.
func (c *Config) LifecycleInterval() time.Duration {
	if !c.Lifecycle.Enabled {
		return 0
	}
	return duration(c.Lifecycle.Interval, 24*time.Hour)
}

// LLMTimeout returns llm.timeout, falling back to 120s.
func (c *LLMConfig) LLMTimeout() time.Duration {
	return duration(c.Timeout, 120*time.Second)
}

func duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
