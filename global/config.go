package global

import (
	"os"
	"strconv"
	"strings"

	"OpsFlow/tools/ids"
)

// AppConfig is the process configuration, read once from env at
// startup and passed by value from main.
type AppConfig struct {
	HTTPAddr  string
	GatewayID string
	JWTSecret []byte

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MongoURI string
	MongoDB  string

	NatsURL      string // empty disables the cross-node relay
	KafkaBrokers []string
	KafkaTopic   string // empty disables the analytics firehose

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Load reads the full configuration from the environment.
func Load() AppConfig {
	cfg := AppConfig{
		HTTPAddr:  envStr("HTTP_ADDR", ":8080"),
		GatewayID: envStr("GATEWAY_ID", "gateway-1"),
		JWTSecret: []byte(envStr("JWT_SECRET", "dev-secret-change-me")),

		RedisAddr:     envStr("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),

		MongoURI: envStr("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:  envStr("MONGO_DB", "opsflow"),

		NatsURL:    os.Getenv("NATS_URL"),
		KafkaTopic: os.Getenv("KAFKA_ANALYTICS_TOPIC"),

		SMTPHost: envStr("SMTP_HOST", "localhost"),
		SMTPPort: envInt("SMTP_PORT", 587),
		SMTPUser: os.Getenv("SMTP_USER"),
		SMTPPass: os.Getenv("SMTP_PASS"),
		SMTPFrom: envStr("SMTP_FROM", "noreply@opsflow.com"),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

// ConfigIds seeds the snowflake node id from env.
func ConfigIds() {
	ids.SetNodeID(int64(envInt("NODE_ID", 1)))
}
