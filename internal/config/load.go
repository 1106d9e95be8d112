package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. CLIENTFLOW_SERVER_PORT.
const EnvPrefix = "CLIENTFLOW"

// keys without a default still need binding so env vars reach Unmarshal.
var boundKeys = []string{
	"database.url",
	"auth.jwt_secret",
	"auth.admin_email",
	"auth.admin_password",
	"firebase.credentials_file",
	"firebase.project_id",
	"firebase.storage_bucket",
	"events.nats_url",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.auth_rate_limit", 1.0)
	v.SetDefault("server.auth_rate_burst", 5)

	v.SetDefault("database.driver", "sqlite")

	v.SetDefault("auth.token_lifetime_minutes", 60*12)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.admin_name", "Admin")

	v.SetDefault("reminder.interval", "60s")
	v.SetDefault("reminder.threshold", "4h")

	v.SetDefault("notifications.feed_capacity", 10)

	v.SetDefault("attachments.mode", "extended")

	v.SetDefault("blob.driver", "local")
	v.SetDefault("blob.local_dir", "data/uploads")
	v.SetDefault("blob.public_base_url", "/files")

	v.SetDefault("events.subject_prefix", "clientflow")

	v.SetDefault("push.enabled", false)
	v.SetDefault("push.admin_topic", "clientflow-admin")
}

// Load reads configuration from defaults, an optional config file and
// CLIENTFLOW_ environment variables, in increasing precedence. An empty
// configFile looks for config.yaml in the working directory and tolerates
// its absence.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range boundKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
