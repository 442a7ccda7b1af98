package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Org    OrgConfig         `yaml:"org"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	Events EventsConfig      `yaml:"events"`
	Client ClientConfig      `yaml:"client"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Org.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Events.Validate(); err != nil {
		return err
	}
	return c.Client.Validate()
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

// OrgConfig holds the org root: the directory of markdown documents served.
// Its projects/ subdirectory is exposed by the projects browser.
type OrgConfig struct {
	Root string `yaml:"root"`
}

// Validate validates the org configuration.
func (c *OrgConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
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
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// EventsConfig tunes the server change feeds.
type EventsConfig struct {
	// GraphThrottle is the minimum interval between graph.updated events.
	GraphThrottle time.Duration `yaml:"graph_throttle"`
	PingInterval  time.Duration `yaml:"ping_interval"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.GraphThrottle, validation.Required),
		validation.Field(&c.PingInterval, validation.Required),
		validation.Field(&c.WriteTimeout, validation.Required),
		validation.Field(&c.ReadTimeout, validation.Required),
	); err != nil {
		return err
	}
	if c.ReadTimeout <= c.PingInterval {
		return fmt.Errorf("events: read_timeout (%s) must exceed ping_interval (%s)", c.ReadTimeout, c.PingInterval)
	}
	return nil
}

// ClientConfig configures the view and edit commands.
type ClientConfig struct {
	ServerURL string `yaml:"server_url"`
	Token     string `yaml:"token"`
	// ReconnectDelay is the first change feed reconnect delay; it doubles up
	// to MaxReconnectDelay.
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`
	// Editor overrides $VISUAL and $EDITOR for the edit command.
	Editor string `yaml:"editor"`
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ServerURL, validation.Required, is.URL),
		validation.Field(&c.ReconnectDelay, validation.Required),
		validation.Field(&c.MaxReconnectDelay, validation.Required, validation.Min(c.ReconnectDelay)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Org: OrgConfig{
			Root: "./org",
		},
		SQLite: SQLiteConfig{
			Path: "./orgview.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Events: EventsConfig{
			GraphThrottle: 2 * time.Second,
			PingInterval:  30 * time.Second,
			WriteTimeout:  5 * time.Second,
			ReadTimeout:   75 * time.Second,
		},
		Client: ClientConfig{
			ServerURL:         "http://localhost:8080",
			ReconnectDelay:    time.Second,
			MaxReconnectDelay: 30 * time.Second,
		},
	}
}
