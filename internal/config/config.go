// Package config loads listsync settings from listsync.toml and LISTSYNC_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/aboutus/listsync/internal/logging"
	"github.com/aboutus/listsync/internal/settle"
)

// FileName is the config file searched for in the working directory and
// in $HOME/.config/listsync.
const FileName = "listsync.toml"

// EnvPrefix prefixes every environment override, e.g. LISTSYNC_SITE_URL.
const EnvPrefix = "LISTSYNC"

// Backends.
const (
	BackendREST  = "rest"
	BackendLocal = "local"
)

// Config is the full listsync configuration.
type Config struct {
	SiteURL     string `mapstructure:"site_url"`
	AccessToken string `mapstructure:"access_token"`
	ListName    string `mapstructure:"list_name"`
	// Template is a template file path; empty means the built-in template.
	Template string `mapstructure:"template"`
	Backend  string `mapstructure:"backend"`
	// ExcludeNames are titles a newly created list must not take.
	ExcludeNames []string `mapstructure:"exclude_names"`

	Local     LocalConfig     `mapstructure:"local"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Log       LogConfig       `mapstructure:"log"`
	Settle    SettleConfig    `mapstructure:"settle"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	HTTP      HTTPConfig      `mapstructure:"http"`

	// Source is the file the config was read from, if any.
	Source string `mapstructure:"-"`
}

// LocalConfig configures the emulated site backend.
type LocalConfig struct {
	Path string `mapstructure:"path"`
}

// JournalConfig configures the run journal.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// SettleConfig tunes the pauses and retries around remote writes.
type SettleConfig struct {
	ResetPause time.Duration `mapstructure:"reset_pause"`
	AddPause   time.Duration `mapstructure:"add_pause"`
	Attempts   int           `mapstructure:"attempts"`
}

// DashboardConfig configures the live dashboard.
type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// HTTPConfig configures the REST backend's HTTP client.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site_url", "")
	v.SetDefault("access_token", "")
	v.SetDefault("list_name", "About Us")
	v.SetDefault("template", "")
	v.SetDefault("backend", BackendREST)
	v.SetDefault("exclude_names", []string{})
	v.SetDefault("local.path", filepath.Join(".listsync", "site.db"))
	v.SetDefault("journal.path", filepath.Join(".listsync", "journal.db"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("settle.reset_pause", time.Second)
	v.SetDefault("settle.add_pause", 250*time.Millisecond)
	v.SetDefault("settle.attempts", 3)
	v.SetDefault("dashboard.port", 8080)
	v.SetDefault("http.timeout", 30*time.Second)
}

// Load reads the config. An explicit path must exist; otherwise listsync.toml
// is looked up in the working directory and $HOME/.config/listsync, and a
// missing file just means defaults plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "listsync"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Source = v.ConfigFileUsed()
	return &cfg, nil
}

// Validate checks the settings a run depends on.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendREST:
		if c.SiteURL == "" {
			return fmt.Errorf("site_url is required for the %s backend", BackendREST)
		}
	case BackendLocal:
		if c.Local.Path == "" {
			return fmt.Errorf("local.path is required for the %s backend", BackendLocal)
		}
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendREST, BackendLocal)
	}
	if c.Settle.Attempts < 1 {
		return fmt.Errorf("settle.attempts must be at least 1")
	}
	if c.Settle.ResetPause < 0 || c.Settle.AddPause < 0 {
		return fmt.Errorf("settle pauses cannot be negative")
	}
	return nil
}

// Policy returns the settle policy with the configured pauses and attempts.
func (c *Config) Policy() *settle.Policy {
	p := settle.Default()
	for kind, rule := range p.Rules {
		if c.Settle.Attempts > 0 {
			rule.Attempts = c.Settle.Attempts
		}
		switch kind {
		case settle.OpViewFieldsReset:
			rule.Pause = c.Settle.ResetPause
		case settle.OpViewFieldAdd:
			rule.Pause = c.Settle.AddPause
		}
		p.Rules[kind] = rule
	}
	if c.Settle.Attempts > 0 {
		p.Fallback.Attempts = c.Settle.Attempts
	}
	return p
}

// Logging returns the logger settings.
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
	}
}

// fileDoc is the on-disk layout written by Write. Durations are strings so
// the file stays readable.
type fileDoc struct {
	SiteURL      string   `toml:"site_url"`
	AccessToken  string   `toml:"access_token,omitempty"`
	ListName     string   `toml:"list_name"`
	Template     string   `toml:"template,omitempty"`
	Backend      string   `toml:"backend"`
	ExcludeNames []string `toml:"exclude_names,omitempty"`

	Local struct {
		Path string `toml:"path"`
	} `toml:"local"`
	Journal struct {
		Path string `toml:"path"`
	} `toml:"journal"`
	Log struct {
		Level      string `toml:"level"`
		File       string `toml:"file,omitempty"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
	} `toml:"log"`
	Settle struct {
		ResetPause string `toml:"reset_pause"`
		AddPause   string `toml:"add_pause"`
		Attempts   int    `toml:"attempts"`
	} `toml:"settle"`
	Dashboard struct {
		Port int `toml:"port"`
	} `toml:"dashboard"`
	HTTP struct {
		Timeout string `toml:"timeout"`
	} `toml:"http"`
}

// Write saves cfg as TOML at path. The file may hold an access token, so it
// is only readable by its owner.
func Write(path string, cfg *Config) error {
	var doc fileDoc
	doc.SiteURL = cfg.SiteURL
	doc.AccessToken = cfg.AccessToken
	doc.ListName = cfg.ListName
	doc.Template = cfg.Template
	doc.Backend = cfg.Backend
	doc.ExcludeNames = cfg.ExcludeNames
	doc.Local.Path = cfg.Local.Path
	doc.Journal.Path = cfg.Journal.Path
	doc.Log.Level = cfg.Log.Level
	doc.Log.File = cfg.Log.File
	doc.Log.MaxSizeMB = cfg.Log.MaxSizeMB
	doc.Log.MaxBackups = cfg.Log.MaxBackups
	doc.Settle.ResetPause = cfg.Settle.ResetPause.String()
	doc.Settle.AddPause = cfg.Settle.AddPause.String()
	doc.Settle.Attempts = cfg.Settle.Attempts
	doc.Dashboard.Port = cfg.Dashboard.Port
	doc.HTTP.Timeout = cfg.HTTP.Timeout.String()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(doc); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return f.Close()
}
