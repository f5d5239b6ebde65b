package models

import "time"

// Config はブローカーの設定。config.json と環境変数から読み込む
type Config struct {
	BrokerAddr string `json:"broker_addr"`
	HTTPAddr   string `json:"http_addr"`

	DBHost     string `json:"db_host"`
	DBUser     string `json:"db_user"`
	DBPassword string `json:"db_password"`
	DBName     string `json:"db_name"`
	DBSSLMode  string `json:"db_sslmode"`

	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	JWTSecret      string   `json:"jwt_secret"`
	AuditRetention string   `json:"audit_retention"`
	CORSOrigins    []string `json:"cors_origins"`
}

const DefaultAuditRetention = 30 * 24 * time.Hour

// Retention parses AuditRetention, falling back to DefaultAuditRetention.
func (c Config) Retention() time.Duration {
	d, err := time.ParseDuration(c.AuditRetention)
	if err != nil || d <= 0 {
		return DefaultAuditRetention
	}
	return d
}

// PostgresEnabled reports whether an audit database is configured.
func (c Config) PostgresEnabled() bool { return c.DBHost != "" }

// RedisEnabled reports whether a presence store is configured.
func (c Config) RedisEnabled() bool { return c.RedisAddr != "" }
