package config

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	DriverScylla = "scylla"
	DriverBadger = "badger"
)

type Config struct {
	GatewayAddr      string        `env:"GATEWAY_ADDR,default=:8080"`
	APIAddr          string        `env:"API_ADDR,default=:8081"`
	JWTSecret        string        `env:"JWT_SECRET,required=true"`
	TokenTTL         time.Duration `env:"TOKEN_TTL,default=24h"`
	StoreDriver      string        `env:"STORE_DRIVER,default=scylla"`
	ScyllaHosts      string        `env:"SCYLLA_HOSTS,default=localhost:9042"`
	ScyllaKeyspace   string        `env:"SCYLLA_KEYSPACE,default=chat"`
	BadgerPath       string        `env:"BADGER_PATH,default=./data/messages"`
	RedisAddr        string        `env:"REDIS_ADDR,default=localhost:6379"`
	KafkaBrokers     string        `env:"KAFKA_BROKERS"`
	KafkaTopic       string        `env:"KAFKA_TOPIC,default=chat-messages"`
	KafkaGroupID     string        `env:"KAFKA_GROUP_ID,default=activity-projector"`
	SnowflakeNode    int64         `env:"SNOWFLAKE_NODE,default=1"`
	MaxMessageLength int           `env:"MAX_MESSAGE_LENGTH,default=2000"`
	SendBufferSize   int           `env:"SEND_BUFFER_SIZE,default=256"`
	EventTimeout     time.Duration `env:"EVENT_TIMEOUT,default=0s"`
	LogLevel         string        `env:"LOG_LEVEL,default=INFO"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.StoreDriver != DriverScylla && c.StoreDriver != DriverBadger {
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverScylla, DriverBadger, c.StoreDriver)
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be positive, got %d", c.MaxMessageLength)
	}
	if c.SendBufferSize <= 0 {
		return fmt.Errorf("SEND_BUFFER_SIZE must be positive, got %d", c.SendBufferSize)
	}
	return nil
}

func (c Config) ScyllaHostList() []string {
	return splitList(c.ScyllaHosts)
}

// KafkaBrokerList is empty when publishing is disabled.
func (c Config) KafkaBrokerList() []string {
	return splitList(c.KafkaBrokers)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
