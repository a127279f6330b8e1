package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Bot      BotConfig
	LLM      LLMConfig
	Prompt   PromptConfig
	History  HistoryConfig
	Store    StoreConfig
	Telegram TelegramConfig
	Server   ServerConfig
	MCP      MCPConfig
	Log      LogConfig
}

// BotConfig describes the bot's own identity
type BotConfig struct {
	Username     string `mapstructure:"username"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

// LLMConfig holds the LLM configuration
type LLMConfig struct {
	Provider        string        `mapstructure:"provider"`
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	Temperature     float32       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
	FallbackMessage string        `mapstructure:"fallback_message"`
}

// PromptConfig holds the prompt budgets
type PromptConfig struct {
	SummaryMaxTokens    int `mapstructure:"summary_max_tokens"`
	SummaryChunkChars   int `mapstructure:"summary_chunk_chars"`
	DialogueMaxTokens   int `mapstructure:"dialogue_max_tokens"`
	DialogueMaxTurns    int `mapstructure:"dialogue_max_turns"`
	DefaultSummaryCount int `mapstructure:"default_summary_count"`
	MaxSummaryCount     int `mapstructure:"max_summary_count"`
}

// HistoryConfig holds the retention policy
type HistoryConfig struct {
	MaxMessages int `mapstructure:"max_messages"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	Path        string `mapstructure:"path"`
	DSN         string `mapstructure:"dsn"`
	Compression string `mapstructure:"compression"`
}

// TelegramConfig holds the Bot API configuration
type TelegramConfig struct {
	Token          string        `mapstructure:"token"`
	APIBase        string        `mapstructure:"api_base"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// MCPConfig controls the MCP tool server
type MCPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LogConfig controls the logger
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const DefaultSystemPrompt = `You are an AI assistant living in a Telegram bot. Your job is to sum up text and give short answers.
Only give information you are confident in.
Your commands are /sum_up, /show_chats and /remove_chat. To summarize a group the user adds you to it
(you register it for them automatically) or sends /start inside a group you are already in.
A command can be canceled by sending "x" or anything that doesn't fit the expected format.
Always answer in the language the user writes in.`

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.username", "big_summarizer_bot")
	v.SetDefault("bot.system_prompt", DefaultSystemPrompt)

	// Keys without a meaningful default still need registering so that
	// AutomaticEnv can see them during Unmarshal.
	v.SetDefault("llm.api_key", "")
	v.SetDefault("telegram.token", "")
	v.SetDefault("store.dsn", "")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-3.5-turbo")
	v.SetDefault("llm.temperature", 0)
	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.timeout", 10*time.Second)
	v.SetDefault("llm.fallback_message", "Sorry, something went wrong. 😒\nI can't do it or answer your question. 😅")

	v.SetDefault("prompt.summary_max_tokens", 3000)
	v.SetDefault("prompt.summary_chunk_chars", 100)
	v.SetDefault("prompt.dialogue_max_tokens", 3000)
	v.SetDefault("prompt.dialogue_max_turns", 100)
	v.SetDefault("prompt.default_summary_count", 100)
	v.SetDefault("prompt.max_summary_count", 1000)

	v.SetDefault("history.max_messages", 10000)

	v.SetDefault("store.driver", "file")
	v.SetDefault("store.path", "data")
	v.SetDefault("store.compression", "none")

	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.poll_timeout", 30*time.Second)
	v.SetDefault("telegram.request_timeout", 45*time.Second)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")

	v.SetDefault("mcp.enabled", false)
	v.SetDefault("mcp.addr", "127.0.0.1:8090")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load loads the configuration from the file named by CONFIG_PATH, or from
// config.yaml in the working directory. A missing file is not an error:
// defaults and SUMMARIZER_* environment variables still apply.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_PATH"))
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("summarizer")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &config, nil
}

// Validate reports settings the process cannot serve events without.
func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("llm.api_key is required"))
	}
	if c.Bot.Username == "" {
		errs = append(errs, errors.New("bot.username is required"))
	}
	if c.History.MaxMessages <= 0 {
		errs = append(errs, fmt.Errorf("history.max_messages must be positive, got %d", c.History.MaxMessages))
	}
	if c.Prompt.MaxSummaryCount <= 0 || c.Prompt.DefaultSummaryCount <= 0 || c.Prompt.DefaultSummaryCount > c.Prompt.MaxSummaryCount {
		errs = append(errs, fmt.Errorf("prompt summary counts out of range: default %d, max %d", c.Prompt.DefaultSummaryCount, c.Prompt.MaxSummaryCount))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout must be positive"))
	}
	return errors.Join(errs...)
}
