package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/bread/internal/resolver"
	"github.com/starford/bread/internal/site"
	"github.com/starford/bread/internal/watch"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Site    SiteConfig        `yaml:"site"`
	Catalog CatalogConfig     `yaml:"catalog"`
	Watch   WatchConfig       `yaml:"watch"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Site.Validate(); err != nil {
		return err
	}
	if err := c.Watch.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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

// HTTPConfig holds the dev server configuration.
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

// SiteConfig describes the site to build. Templates and Static are optional
// directories.
type SiteConfig struct {
	Title      string `yaml:"title"`
	Source     string `yaml:"source"`
	Templates  string `yaml:"templates"`
	Static     string `yaml:"static"`
	Output     string `yaml:"output"`
	Workers    int    `yaml:"workers"`
	DateFormat string `yaml:"date_format"`
	SafeMode   bool   `yaml:"safe_mode"`
}

// Validate validates the site configuration.
func (c *SiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Source, validation.Required),
		validation.Field(&c.Output, validation.Required, validation.By(c.outsideSource)),
		validation.Field(&c.Workers, validation.Min(0)),
	)
}

// outsideSource rejects an output root that is, or lies inside, the source
// root: every build would discover its own output.
func (c *SiteConfig) outsideSource(any) error {
	src, err := filepath.Abs(c.Source)
	if err != nil {
		return err
	}
	out, err := filepath.Abs(c.Output)
	if err != nil {
		return err
	}
	if out == src || strings.HasPrefix(out, src+string(filepath.Separator)) {
		return errors.New("must not be inside the source directory")
	}
	return nil
}

// Builder returns the build configuration.
func (c *SiteConfig) Builder() site.Config {
	return site.Config{
		Title:      c.Title,
		Source:     c.Source,
		Templates:  c.Templates,
		Static:     c.Static,
		Output:     c.Output,
		Workers:    c.Workers,
		DateFormat: c.DateFormat,
		SafeMode:   c.SafeMode,
	}
}

// CatalogConfig holds the SQLite catalog configuration. An empty Path
// disables the catalog; queries then answer from the last build in memory.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether a catalog file is configured.
func (c *CatalogConfig) Enabled() bool {
	return c.Path != ""
}

// WatchConfig tunes the dev server's file watcher.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": POST /api/build requires a Bearer token; Token must be non-empty.
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Site: SiteConfig{
			Source:     "./content",
			Templates:  "./templates",
			Static:     "./static",
			Output:     "./public",
			DateFormat: resolver.DefaultDateFormat,
		},
		Catalog: CatalogConfig{
			Path: "./bread.db",
		},
		Watch: WatchConfig{
			Debounce: watch.DefaultDebounce,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
