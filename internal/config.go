package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultServerURL      = "http://localhost:8000/api"
	DefaultRequestTimeout = 30 * time.Second
	DefaultCatalogTTL     = 5 * time.Minute
	EnvPrefix             = "KBCHAT"
)

// Config holds the client settings
type Config struct {
	ServerURL      string        `mapstructure:"server_url" yaml:"server_url"`
	TopK           int           `mapstructure:"top_k" yaml:"top_k"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	LogLevel       string        `mapstructure:"log_level" yaml:"log_level"`
	LogFile        string        `mapstructure:"log_file" yaml:"log_file,omitempty"`
	CacheDir       string        `mapstructure:"cache_dir" yaml:"cache_dir"`
	CatalogTTL     time.Duration `mapstructure:"catalog_ttl" yaml:"catalog_ttl"`

	// Source is the config file that was read, empty when none was found
	Source string `mapstructure:"-" yaml:"-"`
}

// flagKeys maps command-line flag names to config keys
var flagKeys = map[string]string{
	"server":   "server_url",
	"top-k":    "top_k",
	"log-file": "log_file",
	"timeout":  "request_timeout",
}

// DefaultConfigPath returns ~/.kbchat/config.yaml
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".kbchat", "config.yaml"), nil
}

// DefaultCacheDir returns ~/.kbchat-cache
func DefaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kbchat-cache"
	}
	return filepath.Join(home, ".kbchat-cache")
}

// LoadConfig resolves settings from defaults, the config file, KBCHAT_*
// environment variables and any changed flags, in increasing precedence.
// An empty path means the default location, which may be absent.
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("server_url", DefaultServerURL)
	v.SetDefault("top_k", DefaultTopK)
	v.SetDefault("request_timeout", DefaultRequestTimeout)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("cache_dir", DefaultCacheDir())
	v.SetDefault("catalog_ttl", DefaultCatalogTTL)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for flag, key := range flagKeys {
			if f := flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, &ConfigError{Key: key, Err: err}
				}
			}
		}
	}

	source := ""
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		source = path
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Source = source
	cfg.CacheDir = expandHome(cfg.CacheDir)
	cfg.LogFile = expandHome(cfg.LogFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every setting is usable
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return &ConfigError{Key: "server_url", Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ConfigError{Key: "server_url", Err: fmt.Errorf("scheme must be http or https, got %q", u.Scheme)}
	}
	if u.Host == "" {
		return &ConfigError{Key: "server_url", Err: errors.New("missing host")}
	}
	if c.TopK < 1 || c.TopK > 50 {
		return &ConfigError{Key: "top_k", Err: fmt.Errorf("must be between 1 and 50, got %d", c.TopK)}
	}
	if c.RequestTimeout <= 0 {
		return &ConfigError{Key: "request_timeout", Err: fmt.Errorf("must be positive, got %s", c.RequestTimeout)}
	}
	if c.CatalogTTL < 0 {
		return &ConfigError{Key: "catalog_ttl", Err: fmt.Errorf("must not be negative, got %s", c.CatalogTTL)}
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return &ConfigError{Key: "log_level", Err: err}
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
