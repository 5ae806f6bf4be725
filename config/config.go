package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

type Backend struct {
	BaseURL    string        `yaml:"base_url" env:"RAG_BACKEND_URL" env-default:"http://localhost:3000" validate:"required,url"`
	ChatPath   string        `yaml:"chat_path" env:"RAG_CHAT_PATH" env-default:"/api/chat" validate:"required,startswith=/"`
	HealthPath string        `yaml:"health_path" env:"RAG_HEALTH_PATH" env-default:"/api/health" validate:"required,startswith=/"`
	Timeout    time.Duration `yaml:"timeout" env:"RAG_BACKEND_TIMEOUT" env-default:"0s" validate:"gte=0"`
}

type Conversation struct {
	Storage       string        `yaml:"storage" env:"CONVERSATION_STORAGE" env-default:"memory" validate:"oneof=memory redis"`
	IdleTimeout   time.Duration `yaml:"idle_timeout" env:"CONVERSATION_IDLE_TIMEOUT" env-default:"1h" validate:"gte=0"`
	Language      string        `yaml:"language" env:"CONVERSATION_LANGUAGE" env-default:"en" validate:"oneof=en ja"`
	PreviewLength int           `yaml:"preview_length" env:"CITATION_PREVIEW_LENGTH" env-default:"160" validate:"gt=0"`
}

type Redis struct {
	Endpoint string `yaml:"endpoint" env:"REDIS_ENDPOINT" env-default:"localhost:6379" validate:"required"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0" validate:"gte=0"`
}

type Telegram struct {
	TelegramAPIToken string `yaml:"api_token" env:"TELEGRAM_APITOKEN"`
}

type Log struct {
	File       string `yaml:"file" env:"LOG_FILE" env-default:"logs/ragchat.log" validate:"required"`
	Level      string `yaml:"level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	Production bool   `yaml:"production" env:"LOG_PRODUCTION" env-default:"false"`
}

type Tracing struct {
	Enabled     bool   `yaml:"enabled" env:"OTEL_ENABLED" env-default:"false"`
	Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4318"`
	ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME" env-default:"rag-chat-bot"`
}

type Config struct {
	Backend      Backend      `yaml:"backend"`
	Conversation Conversation `yaml:"conversation"`
	Redis        Redis        `yaml:"redis"`
	Telegram     Telegram     `yaml:"telegram"`
	Log          Log          `yaml:"log"`
	Tracing      Tracing      `yaml:"tracing"`
}

// LoadConfig reads cfgPath when it is set, then the environment. A .env file in the working
// directory is loaded into the environment first if present.
func LoadConfig(cfgPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if cfgPath != "" {
		if err := cleanenv.ReadConfig(cfgPath, &cfg); err != nil {
			return nil, err
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
