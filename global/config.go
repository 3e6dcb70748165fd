package global

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the whole process configuration, read once from the environment.
// Empty RedisAddr / MongoURI / NatsURL disable the corresponding backend: the
// engine then runs on the in-memory store, which is only meant for dev and
// tests.
type Config struct {
	GatewayID  string `env:"GATEWAY_ID" envDefault:"gw-1"`
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	MongoURI string `env:"MONGO_URI"`
	MongoDB  string `env:"MONGO_DB" envDefault:"imsync"`

	NatsURL string `env:"NATS_URL"`

	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret"`

	// PresenceTTL is the window after which a silent user flips offline.
	// HeartbeatInterval must stay strictly below it.
	PresenceTTL       time.Duration `env:"PRESENCE_TTL" envDefault:"30s"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"10s"`

	FanoutWorkers int `env:"FANOUT_WORKERS" envDefault:"8"`
	FanoutQueue   int `env:"FANOUT_QUEUE" envDefault:"4096"`
	SendQueueSize int `env:"SEND_QUEUE_SIZE" envDefault:"256"`

	NodeID int64 `env:"NODE_ID" envDefault:"1"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
