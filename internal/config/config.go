package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server        ServerConfig        `mapstructure:"server" validate:"required"`
	Database      DatabaseConfig      `mapstructure:"database" validate:"required"`
	Auth          AuthConfig          `mapstructure:"auth" validate:"required"`
	Reminder      ReminderConfig      `mapstructure:"reminder" validate:"required"`
	Notifications NotificationsConfig `mapstructure:"notifications" validate:"required"`
	Attachments   AttachmentsConfig   `mapstructure:"attachments" validate:"required"`
	Blob          BlobConfig          `mapstructure:"blob" validate:"required"`
	Firebase      FirebaseConfig      `mapstructure:"firebase"`
	Events        EventsConfig        `mapstructure:"events"`
	Push          PushConfig          `mapstructure:"push"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	// AuthRateLimit is the sustained sign-in/sign-up rate allowed per client IP, per second.
	AuthRateLimit float64 `mapstructure:"auth_rate_limit" validate:"gt=0"`
	AuthRateBurst int     `mapstructure:"auth_rate_burst" validate:"gt=0"`
}

// DatabaseConfig selects the task and user store backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=postgres sqlite"`
	// URL is a postgres connection string or a sqlite file path.
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
	BCryptCost           int    `mapstructure:"bcrypt_cost" validate:"min=4,max=31"`
	// The admin account is created at startup when it does not exist yet.
	AdminEmail    string `mapstructure:"admin_email" validate:"omitempty,email"`
	AdminPassword string `mapstructure:"admin_password" validate:"required_with=AdminEmail"`
	AdminName     string `mapstructure:"admin_name"`
}

// ReminderConfig tunes the admin reminder sweep.
type ReminderConfig struct {
	Interval  time.Duration `mapstructure:"interval" validate:"gt=0"`
	Threshold time.Duration `mapstructure:"threshold" validate:"gt=0"`
}

// NotificationsConfig sizes the per-session feed.
type NotificationsConfig struct {
	FeedCapacity int `mapstructure:"feed_capacity" validate:"gt=0"`
}

// AttachmentsConfig selects the staging limits for task submissions.
type AttachmentsConfig struct {
	Mode string `mapstructure:"mode" validate:"required,oneof=simple extended"`
}

// BlobConfig selects where attachment bytes are written.
type BlobConfig struct {
	Driver        string `mapstructure:"driver" validate:"required,oneof=local firebase"`
	LocalDir      string `mapstructure:"local_dir" validate:"required_if=Driver local"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// FirebaseConfig holds credentials for firebase storage and messaging.
type FirebaseConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	ProjectID       string `mapstructure:"project_id"`
	StorageBucket   string `mapstructure:"storage_bucket"`
}

// EventsConfig enables publishing workflow events to NATS.
type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url" validate:"omitempty,url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// PushConfig enables firebase cloud messaging for workflow events.
type PushConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AdminTopic string `mapstructure:"admin_topic" validate:"required_if=Enabled true"`
}
