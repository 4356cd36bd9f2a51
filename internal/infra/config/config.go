package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Tokens    TokenSettings     `mapstructure:"tokens"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the family revocation cache connection.
type RedisSettings struct {
	Host                   string        `mapstructure:"host"`
	Port                   int           `mapstructure:"port"`
	DB                     int           `mapstructure:"db"`
	Password               string        `mapstructure:"password"`
	TLSEnabled             bool          `mapstructure:"tls_enabled"`
	FamilyRevocationPrefix string        `mapstructure:"family_revocation_prefix"`
	FamilyRevocationTTL    time.Duration `mapstructure:"family_revocation_ttl"`
}

// KafkaSettings configures the session event producer. Empty brokers switch
// the publisher to the logging stub.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// TokenSettings configures token lifetimes and signing key material. The
// refresh TTL and retention window are deliberate configuration inputs; the
// defaults below are documented, not hard-coded policy.
type TokenSettings struct {
	KeyDirectory    string        `mapstructure:"key_directory"`
	SigningKID      string        `mapstructure:"signing_kid"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
	RetentionWindow time.Duration `mapstructure:"retention_window"`
	PurgeInterval   time.Duration `mapstructure:"purge_interval"`
}

type TelemetrySettings struct {
	MetricsHost string `mapstructure:"metrics_host"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("CINEVERSE")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.family_revocation_prefix",
		"redis.family_revocation_ttl",
		"kafka.brokers",
		"kafka.topic_prefix",
		"tokens.key_directory",
		"tokens.signing_kid",
		"tokens.access_token_ttl",
		"tokens.refresh_token_ttl",
		"tokens.retention_window",
		"tokens.purge_interval",
		"telemetry.metrics_host",
		"telemetry.metrics_port",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cineverse-sessions")
	v.SetDefault("app.env", "development")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "sessions")
	v.SetDefault("postgres.password", "sessions_password")
	v.SetDefault("postgres.database", "cineverse")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.family_revocation_prefix", "sessions:family_revoked")
	v.SetDefault("redis.family_revocation_ttl", "720h")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "cineverse")

	v.SetDefault("tokens.key_directory", "./secrets")
	v.SetDefault("tokens.signing_kid", "")
	v.SetDefault("tokens.access_token_ttl", "15m")
	v.SetDefault("tokens.refresh_token_ttl", "720h")
	v.SetDefault("tokens.retention_window", "720h")
	v.SetDefault("tokens.purge_interval", "1h")

	v.SetDefault("telemetry.metrics_host", "0.0.0.0")
	v.SetDefault("telemetry.metrics_port", 9090)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "CINEVERSE_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
