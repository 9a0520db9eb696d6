// Package config loads the messenger configuration from a YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/couriermsg/courier/internal/credstore"
	"github.com/couriermsg/courier/internal/messaging"
)

// Config holds the messenger configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Messaging   MessagingConfig   `yaml:"messaging"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Images      ImagesConfig      `yaml:"images"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// EnvironmentConfig selects the deployment environment: the app identity
// and the identity-provider flow used for authentication. An empty AppID is
// valid and means no messaging client will be constructed.
type EnvironmentConfig struct {
	AppID       string       `yaml:"app_id"`
	Provider    string       `yaml:"provider"` // "http" or "oauth2"
	ProviderURL string       `yaml:"provider_url"`
	OAuth2      OAuth2Config `yaml:"oauth2"`
}

// OAuth2Config configures the oauth2 identity flow.
type OAuth2Config struct {
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// MessagingConfig holds messaging SDK connection settings.
type MessagingConfig struct {
	Token                    string   `yaml:"token"`
	HistoricSync             string   `yaml:"historic_sync"`
	AutoDownloadContentTypes []string `yaml:"auto_download_content_types"`
}

// CredentialsConfig holds credential persistence settings.
type CredentialsConfig struct {
	File   string `yaml:"file"`
	Secret string `yaml:"secret"`
}

// ImagesConfig holds image pipeline settings.
type ImagesConfig struct {
	CacheEntries int `yaml:"cache_entries"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
	Stderr bool   `yaml:"stderr"`
}

// Load reads the configuration from a YAML file, expanding environment
// variables, applying defaults, and validating.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Environment.Provider == "" {
		c.Environment.Provider = "http"
	}
	if c.Messaging.HistoricSync == "" {
		c.Messaging.HistoricSync = string(messaging.SyncFromLastMessage)
	}
	if len(c.Messaging.AutoDownloadContentTypes) == 0 {
		c.Messaging.AutoDownloadContentTypes = messaging.DefaultOptions().AutoDownloadContentTypes
	}
	if c.Credentials.File == "" {
		c.Credentials.File = credstore.DefaultPath()
	}
	if c.Images.CacheEntries == 0 {
		c.Images.CacheEntries = 256
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

func (c *Config) validate() error {
	switch c.Environment.Provider {
	case "http":
		if c.Environment.AppID != "" && c.Environment.ProviderURL == "" {
			return fmt.Errorf("environment.provider_url is required for the http provider")
		}
	case "oauth2":
		if c.Environment.OAuth2.TokenURL == "" {
			return fmt.Errorf("environment.oauth2.token_url is required for the oauth2 provider")
		}
		if c.Environment.OAuth2.ClientID == "" {
			return fmt.Errorf("environment.oauth2.client_id is required for the oauth2 provider")
		}
	default:
		return fmt.Errorf("environment.provider must be %q or %q, got %q", "http", "oauth2", c.Environment.Provider)
	}

	if c.Environment.AppID != "" && c.Messaging.Token == "" {
		return fmt.Errorf("messaging.token is required when environment.app_id is set")
	}

	switch messaging.HistoricSyncPolicy(c.Messaging.HistoricSync) {
	case messaging.SyncFromLastMessage, messaging.SyncAllHistory:
	default:
		return fmt.Errorf("messaging.historic_sync must be %q or %q, got %q",
			messaging.SyncFromLastMessage, messaging.SyncAllHistory, c.Messaging.HistoricSync)
	}

	return nil
}

// Options assembles the messaging options value from the configuration.
func (c *Config) Options() messaging.Options {
	return messaging.Options{
		HistoricSyncPolicy:       messaging.HistoricSyncPolicy(c.Messaging.HistoricSync),
		AutoDownloadContentTypes: c.Messaging.AutoDownloadContentTypes,
	}
}
