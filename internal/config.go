package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModePIN      = "pin"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Uploads   UploadsConfig     `yaml:"uploads"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Recurring RecurringConfig   `yaml:"recurring"`
	Events    EventsConfig      `yaml:"events"`
	AMQP      AMQPConfig        `yaml:"amqp"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{&c.App, &c.Uploads, &c.SQLite, &c.Auth, &c.Recurring, &c.Events, &c.AMQP} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// UploadsConfig describes the blob store root and the staging area policy.
type UploadsConfig struct {
	Path           string        `yaml:"path"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	TempTTL        time.Duration `yaml:"temp_ttl"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
}

// Validate validates the uploads configuration.
func (c *UploadsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.MaxUploadBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.TempTTL, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.SweepInterval, validation.Required, validation.Min(time.Second)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "pin": clients log in with a PIN and send the issued token as a Bearer
//     token. Either PIN or PINHash (bcrypt) must be set.
type AuthConfig struct {
	Mode            string        `yaml:"mode"`
	PIN             string        `yaml:"pin"`
	PINHash         string        `yaml:"pin_hash"`
	TokenTTL        time.Duration `yaml:"token_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModePIN)),
		validation.Field(&c.TokenTTL, validation.Min(time.Minute)),
		validation.Field(&c.CleanupInterval, validation.Min(time.Second)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModePIN && c.PIN == "" && c.PINHash == "" {
		return fmt.Errorf("auth: mode is %q but neither pin nor pin_hash is set", AuthModePIN)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModePIN
}

// RecurringConfig controls the startup recurring-transaction check.
type RecurringConfig struct {
	Enabled     bool          `yaml:"enabled"`
	SettleDelay time.Duration `yaml:"settle_delay"`
}

// Validate validates the recurring configuration.
func (c *RecurringConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SettleDelay, validation.Min(time.Duration(0))),
	)
}

// EventsConfig tunes the server-sent event stream.
type EventsConfig struct {
	SummaryThrottle time.Duration `yaml:"summary_throttle"`
	Heartbeat       time.Duration `yaml:"heartbeat"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SummaryThrottle, validation.Min(time.Duration(0))),
		validation.Field(&c.Heartbeat, validation.Min(time.Duration(0))),
	)
}

// AMQPConfig enables publishing change events to a RabbitMQ topic exchange.
// An empty URL disables it.
type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// Enabled reports whether an AMQP broker is configured.
func (c *AMQPConfig) Enabled() bool {
	return c.URL != ""
}

// Validate validates the AMQP configuration.
func (c *AMQPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Exchange, validation.When(c.Enabled(), validation.Required)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 3001,
			},
		},
		Uploads: UploadsConfig{
			Path:           "./uploads",
			MaxUploadBytes: 100 << 20,
			TempTTL:        24 * time.Hour,
			SweepInterval:  time.Hour,
		},
		SQLite: SQLiteConfig{
			Path: "./tirelire.db",
		},
		Auth: AuthConfig{
			Mode:            AuthModeDisabled,
			TokenTTL:        30 * 24 * time.Hour,
			CleanupInterval: time.Hour,
		},
		Recurring: RecurringConfig{
			Enabled:     true,
			SettleDelay: time.Second,
		},
		Events: EventsConfig{
			SummaryThrottle: 2 * time.Second,
			Heartbeat:       25 * time.Second,
		},
		AMQP: AMQPConfig{
			Exchange: "tirelire.changes",
		},
	}
}
