package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                  = "ABROADO"
	defaultAPIBaseURL          = "https://api.abroado.com"
	defaultPushURL             = "wss://api.abroado.com/ws"
	defaultStateDBPath         = "abroado-client.db"
	defaultDevtoolsAddress     = "127.0.0.1:7465"
	defaultLogLevel            = "info"
	defaultTypingQuietInterval = time.Second
)

// AppConfig captures runtime configuration for the sync client.
type AppConfig struct {
	APIBaseURL          string
	PushURL             string
	RefreshPath         string
	StateDBPath         string
	DevtoolsAddress     string
	LogLevel            string
	TypingQuietInterval time.Duration
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

	configViper.SetDefault("api.base_url", defaultAPIBaseURL)
	configViper.SetDefault("api.refresh_path", "/auth/refresh")
	configViper.SetDefault("push.url", defaultPushURL)
	configViper.SetDefault("state.path", defaultStateDBPath)
	configViper.SetDefault("devtools.address", defaultDevtoolsAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("typing.quiet_interval", defaultTypingQuietInterval)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		APIBaseURL:          configViper.GetString("api.base_url"),
		PushURL:             configViper.GetString("push.url"),
		RefreshPath:         configViper.GetString("api.refresh_path"),
		StateDBPath:         configViper.GetString("state.path"),
		DevtoolsAddress:     configViper.GetString("devtools.address"),
		LogLevel:            configViper.GetString("log.level"),
		TypingQuietInterval: configViper.GetDuration("typing.quiet_interval"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// RefreshURL is the absolute refresh endpoint derived from the API base.
func (c AppConfig) RefreshURL() string {
	return strings.TrimRight(c.APIBaseURL, "/") + c.RefreshPath
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if strings.TrimSpace(c.PushURL) == "" {
		return fmt.Errorf("push.url is required")
	}
	if !strings.HasPrefix(c.RefreshPath, "/") {
		return fmt.Errorf("api.refresh_path must start with /")
	}
	if strings.TrimSpace(c.StateDBPath) == "" {
		return fmt.Errorf("state.path is required")
	}
	if c.TypingQuietInterval <= 0 {
		return fmt.Errorf("typing.quiet_interval must be positive")
	}
	return nil
}
