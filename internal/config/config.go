package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

// Config carries the settings shared by the courier binaries. Only the
// FCM API key is mandatory; queue and registry settings are validated
// by the components that need them.
type Config struct {
	APIKey         string `env:"FCM_API_KEY,required=true"`
	Endpoint       string `env:"FCM_ENDPOINT"`
	TimeoutSeconds int    `env:"FCM_TIMEOUT_SECONDS,default=10"`
	Debug          bool   `env:"FCM_DEBUG,default=false"`

	LogLevel string `env:"LOG_LEVEL,default=info"`

	RabbitMQURL string `env:"RABBITMQ_URL"`

	RegistryBackend string `env:"REGISTRY_BACKEND,default=none"`
	RedisURL        string `env:"REDIS_URL"`
	DatabaseDSN     string `env:"DATABASE_DSN"`

	RelayConcurrency int `env:"RELAY_CONCURRENCY,default=8"`
	RelayPort        int `env:"RELAY_PORT,default=8080"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Timeout() time.Duration {
	if c == nil || c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MockConfig configures the standalone mock provider.
type MockConfig struct {
	Port     int    `env:"MOCKFCM_PORT,default=9099"`
	APIKey   string `env:"MOCKFCM_API_KEY,default=mock-api-key"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func LoadMock() (*MockConfig, error) {
	var cfg MockConfig
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load mock config: %w", err)
	}
	return &cfg, nil
}
