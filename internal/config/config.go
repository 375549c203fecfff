package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "REDLINE"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDocumentRootDir = "documents"
	defaultLogLevel        = "info"
	defaultWindowMillis    = 5000
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress          string
	AuthSigningKey       string
	DocumentRootDir      string
	LogLevel             string
	ConflictWindowMillis int64
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("documents.root_dir", defaultDocumentRootDir)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("conflict.window_ms", defaultWindowMillis)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		AuthSigningKey:       configViper.GetString("auth.signing_secret"),
		DocumentRootDir:      configViper.GetString("documents.root_dir"),
		LogLevel:             configViper.GetString("log.level"),
		ConflictWindowMillis: configViper.GetInt64("conflict.window_ms"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AuthSigningKey) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DocumentRootDir) == "" {
		return fmt.Errorf("documents.root_dir is required")
	}
	if c.ConflictWindowMillis <= 0 {
		return fmt.Errorf("conflict.window_ms must be positive")
	}
	return nil
}
