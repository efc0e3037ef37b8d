package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Council   CouncilConfig
	Providers ProvidersConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CouncilConfig controls the answer and review rounds.
type CouncilConfig struct {
	MaxConcurrency    int
	AnswerTimeoutSec  int
	ReviewTimeoutSec  int
	ReviewTemperature float32
	ReviewMaxTokens   int
	SelfExclusion     bool
	ModelCacheTTLSec  int
}

type ProvidersConfig struct {
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Google    GoogleConfig
	LMStudio  LMStudioConfig
}

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	TimeoutSec int
}

type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Version    string
	TimeoutSec int
}

type GoogleConfig struct {
	APIKey string
}

type LMStudioConfig struct {
	BaseURL    string
	TimeoutSec int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/agent-council")

	viper.SetEnvPrefix("COUNCIL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the server cannot run with. Bad values fail at
// startup instead of surfacing mid-run as stuck fan-outs or dead timeouts.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Council.MaxConcurrency < 1 {
		return fmt.Errorf("council maxConcurrency must be at least 1, got %d", c.Council.MaxConcurrency)
	}
	if c.Council.AnswerTimeoutSec < 1 {
		return fmt.Errorf("council answerTimeoutSec must be positive, got %d", c.Council.AnswerTimeoutSec)
	}
	if c.Council.ReviewTimeoutSec < 1 {
		return fmt.Errorf("council reviewTimeoutSec must be positive, got %d", c.Council.ReviewTimeoutSec)
	}
	if c.Council.ReviewMaxTokens < 1 {
		return fmt.Errorf("council reviewMaxTokens must be positive, got %d", c.Council.ReviewMaxTokens)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	// Answer and review rounds run synchronously inside the request, so the
	// write timeout has to outlast a full fan-out, not a typical response.
	viper.SetDefault("server.writeTimeout", 600)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/council.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("council.maxConcurrency", 6)
	viper.SetDefault("council.answerTimeoutSec", 120)
	viper.SetDefault("council.reviewTimeoutSec", 120)
	viper.SetDefault("council.reviewTemperature", 0.3)
	viper.SetDefault("council.reviewMaxTokens", 4096)
	viper.SetDefault("council.selfExclusion", false)
	viper.SetDefault("council.modelCacheTTLSec", 60)

	// Secrets get empty defaults so viper knows the keys and AutomaticEnv
	// can bind them.
	viper.SetDefault("providers.openai.apiKey", "")
	viper.SetDefault("providers.openai.baseURL", "")
	viper.SetDefault("providers.openai.timeoutSec", 120)
	viper.SetDefault("providers.anthropic.apiKey", "")
	viper.SetDefault("providers.anthropic.baseURL", "https://api.anthropic.com")
	viper.SetDefault("providers.anthropic.version", "2023-06-01")
	viper.SetDefault("providers.anthropic.timeoutSec", 120)
	viper.SetDefault("providers.google.apiKey", "")
	viper.SetDefault("providers.lmstudio.baseURL", "http://localhost:1234/v1")
	viper.SetDefault("providers.lmstudio.timeoutSec", 120)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
