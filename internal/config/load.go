package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

const (
	dirName    = ".recall"
	configName = "config"
	envPrefix  = "RECALL"
)

// Dir returns ~/.recall.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return dirName
	}
	return filepath.Join(home, dirName)
}

// DefaultPath returns ~/.recall/config.toml.
func DefaultPath() string {
	return filepath.Join(Dir(), configName+".toml")
}

// Load reads configuration. Precedence, highest first:
//  1. RECALL_* environment variables (RECALL_LLM_PROVIDER, RECALL_SEMANTIC_PROVIDER, ...)
//  2. the file at path, or ~/.recall/config.toml when path is empty
//  3. Default()
//
// A missing file is not an error. ANTHROPIC_API_KEY and OPENAI_API_KEY are
// honored for the provider keys.
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	// decode speakers into a fresh map
	cfg.Retrieval.Speakers = nil
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(Dir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
		case path != "" && errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm.anthropic_key", envPrefix+"_LLM_ANTHROPIC_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("llm.openai_key", envPrefix+"_LLM_OPENAI_KEY", "OPENAI_API_KEY")
	return v, nil
}

// setDefaults registers Default() under dotted keys so environment
// variables can override any of them.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.bind", d.Server.Bind)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.anthropic_key", d.LLM.AnthropicKey)
	v.SetDefault("llm.openai_key", d.LLM.OpenAIKey)
	v.SetDefault("llm.openai_base_url", d.LLM.OpenAIBaseURL)
	v.SetDefault("llm.ollama_url", d.LLM.OllamaURL)
	v.SetDefault("llm.command", d.LLM.Command)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.max_retries", d.LLM.MaxRetries)
	v.SetDefault("llm.timeout", d.LLM.Timeout)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.ollama_url", d.Embedding.OllamaURL)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.max_terms", d.Embedding.MaxTerms)

	v.SetDefault("semantic.provider", d.Semantic.Provider)
	v.SetDefault("semantic.host", d.Semantic.Host)
	v.SetDefault("semantic.port", d.Semantic.Port)
	v.SetDefault("semantic.api_key", d.Semantic.APIKey)
	v.SetDefault("semantic.use_tls", d.Semantic.UseTLS)
	v.SetDefault("semantic.collection", d.Semantic.Collection)

	v.SetDefault("temporal.provider", d.Temporal.Provider)
	v.SetDefault("temporal.dsn", d.Temporal.DSN)

	v.SetDefault("retrieval.threshold", d.Retrieval.Threshold)
	v.SetDefault("retrieval.top_k", d.Retrieval.TopK)
	v.SetDefault("retrieval.semantic_limit", d.Retrieval.SemanticLimit)
	v.SetDefault("retrieval.temporal_limit", d.Retrieval.TemporalLimit)
	v.SetDefault("retrieval.relational_limit", d.Retrieval.RelationalLimit)
	v.SetDefault("retrieval.session_depth", d.Retrieval.SessionDepth)
	v.SetDefault("retrieval.since_window", d.Retrieval.SinceWindow)
	v.SetDefault("retrieval.adapter_timeout", d.Retrieval.AdapterTimeout)
	v.SetDefault("retrieval.promote_summaries", d.Retrieval.PromoteSummaries)
	v.SetDefault("retrieval.speakers", d.Retrieval.Speakers)

	v.SetDefault("lifecycle.enabled", d.Lifecycle.Enabled)
	v.SetDefault("lifecycle.interval", d.Lifecycle.Interval)
	v.SetDefault("lifecycle.days_old", d.Lifecycle.DaysOld)
	v.SetDefault("lifecycle.boost_step", d.Lifecycle.BoostStep)
	v.SetDefault("lifecycle.max_prompt_chars", d.Lifecycle.MaxPromptChars)

	v.SetDefault("events.enabled", d.Events.Enabled)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
	v.SetDefault("events.client_id", d.Events.ClientID)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Write encodes cfg as TOML at path, creating parent directories. An
// existing file is replaced.
func Write(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
