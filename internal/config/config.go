// Package config loads client settings from defaults, an optional YAML file
// and PROPCHAT_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/raphaelgruber/propchat/internal/models"
	"github.com/raphaelgruber/propchat/internal/rag"
)

// EnvPrefix is prepended to every environment variable, e.g. PROPCHAT_API_URL.
const EnvPrefix = "PROPCHAT"

// Config holds all configuration values.
type Config struct {
	// Backend
	APIURL            string        `mapstructure:"api_url"`
	Token             string        `mapstructure:"token"`
	OrganizationID    string        `mapstructure:"organization_id"`
	Timeout           time.Duration `mapstructure:"timeout"`
	StreamIdleTimeout time.Duration `mapstructure:"stream_idle_timeout"`

	// Retrieval defaults
	MaxCitations   int      `mapstructure:"max_citations"`
	DefaultSources []string `mapstructure:"default_sources"`
	RAGEnabled     bool     `mapstructure:"rag_enabled"`
	StrictMode     bool     `mapstructure:"strict_mode"`

	// Logging
	LogFile     string     `mapstructure:"log_file"`
	LogLevelRaw string     `mapstructure:"log_level"`
	LogLevel    slog.Level `mapstructure:"-"`

	// ConfigFile is the file that was read, if any.
	ConfigFile string `mapstructure:"-"`
}

// Load reads configuration. An empty path looks for
// $XDG_CONFIG_HOME/propchat/config.yaml and ignores it if missing; an
// explicit path must exist.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "propchat"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()
	cfg.LogLevel = parseLogLevel(cfg.LogLevelRaw)
	cfg.DefaultSources = splitSources(cfg.DefaultSources)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_url", "http://localhost:8000/api/v1")
	v.SetDefault("token", "")
	v.SetDefault("organization_id", "")
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("stream_idle_timeout", time.Duration(0))
	v.SetDefault("max_citations", rag.DefaultMaxCitations)
	v.SetDefault("default_sources", []string{})
	v.SetDefault("rag_enabled", false)
	v.SetDefault("strict_mode", false)
	v.SetDefault("log_file", filepath.Join(os.TempDir(), "propchat.log"))
	v.SetDefault("log_level", "INFO")
}

// Validate checks value ranges.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api_url %q", c.APIURL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("invalid timeout %s", c.Timeout)
	}
	if c.StreamIdleTimeout < 0 {
		return fmt.Errorf("invalid stream_idle_timeout %s", c.StreamIdleTimeout)
	}
	if c.MaxCitations < rag.MinCitations || c.MaxCitations > rag.MaxCitations {
		return fmt.Errorf("max_citations must be between %d and %d, got %d", rag.MinCitations, rag.MaxCitations, c.MaxCitations)
	}
	for _, s := range c.DefaultSources {
		if _, err := models.ParseSourceType(s); err != nil {
			return fmt.Errorf("default_sources: %w", err)
		}
	}
	return nil
}

// RAGOptions builds the initial retrieval options. An empty default_sources
// selects every source.
func (c Config) RAGOptions() rag.Options {
	opts := rag.DefaultOptions()
	opts.Enabled = c.RAGEnabled
	opts.Strict = c.StrictMode
	if len(c.DefaultSources) > 0 {
		types := make([]models.SourceType, 0, len(c.DefaultSources))
		for _, s := range c.DefaultSources {
			if t, err := models.ParseSourceType(s); err == nil {
				types = append(types, t)
			}
		}
		opts.SetSources(types...)
	}
	return opts
}

// Overrides carries the configured citation limit into every request.
func (c Config) Overrides() rag.Overrides {
	n := c.MaxCitations
	return rag.Overrides{MaxCitations: &n}
}

// splitSources accepts both YAML lists and comma separated env values.
func splitSources(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
