package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port      string `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret,omitempty"` // signs first-party dashboard tokens
}

// RedisConfig holds redis configuration (rate limiting and the prompt store)
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// MilvusConfig holds vector store configuration
type MilvusConfig struct {
	Address            string `yaml:"address"`             // default: localhost:19530
	Collection         string `yaml:"collection"`          // default: askbase_sections
	EmbeddingDimension int    `yaml:"embedding_dimension"` // default: 1536
}

// OpenAIConfig holds upstream model configuration
type OpenAIConfig struct {
	APIKey           string `yaml:"api_key"` // platform key; projects may bring their own
	ChatModel        string `yaml:"chat_model"`
	CompletionsModel string `yaml:"completions_model"`
	EmbeddingModel   string `yaml:"embedding_model"`
}

// RateLimitConfig holds per-project throttle configuration
type RateLimitConfig struct {
	WindowSeconds int64 `yaml:"window_seconds"`
	MaxRequests   int64 `yaml:"max_requests"`
}

// CompletionConfig holds prompt-assembly defaults
type CompletionConfig struct {
	IDontKnowMessage    string `yaml:"i_dont_know_message"`
	SystemPrompt        string `yaml:"system_prompt"`
	MaxCompletionTokens int    `yaml:"max_completion_tokens"`
	ContextTokensCutoff int    `yaml:"context_tokens_cutoff"` // legacy completions mode
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config holds the overall application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Redis      RedisConfig      `yaml:"redis"`
	Milvus     MilvusConfig     `yaml:"milvus"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Completion CompletionConfig `yaml:"completion"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// NewConfig returns a configuration populated with defaults.
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: "8001"},
		Redis:  RedisConfig{Addr: "localhost:6379"},
		Milvus: MilvusConfig{
			Address:            "localhost:19530",
			Collection:         "askbase_sections",
			EmbeddingDimension: 1536,
		},
		OpenAI: OpenAIConfig{
			ChatModel:        "gpt-4o-mini",
			CompletionsModel: "gpt-3.5-turbo-instruct",
			EmbeddingModel:   "text-embedding-ada-002",
		},
		RateLimit: RateLimitConfig{WindowSeconds: 60, MaxRequests: 60},
		Completion: CompletionConfig{
			IDontKnowMessage:    "Sorry, I am not sure how to answer that.",
			SystemPrompt:        "You are a very enthusiastic company representative who loves to help people.",
			MaxCompletionTokens: 500,
			ContextTokensCutoff: 800,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// LoadConfig loads configuration from a YAML file, then applies environment
// variable overrides. A missing file is not an error; defaults apply.
func LoadConfig(configPath string) (*Config, error) {
	config := NewConfig()

	if configPath == "" {
		configPath = "config.yaml"
	}

	yamlFile, err := os.ReadFile(configPath)
	if err == nil {
		if err := yaml.Unmarshal(yamlFile, config); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if portEnv := os.Getenv("SERVER_PORT"); portEnv != "" {
		config.Server.Port = portEnv
	}
	if secretEnv := os.Getenv("JWT_SECRET"); secretEnv != "" {
		config.Server.JWTSecret = secretEnv
	}
	if redisEnv := os.Getenv("REDIS_ADDR"); redisEnv != "" {
		config.Redis.Addr = redisEnv
	}
	if milvusEnv := os.Getenv("MILVUS_ADDRESS"); milvusEnv != "" {
		config.Milvus.Address = milvusEnv
	}
	if apiKeyEnv := os.Getenv("OPENAI_API_KEY"); apiKeyEnv != "" {
		config.OpenAI.APIKey = apiKeyEnv
	}

	return config, nil
}
