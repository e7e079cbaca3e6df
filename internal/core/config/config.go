// Package config handles configuration loading and validation for parley.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport names accepted by server.transport.
const (
	TransportWebsocket = "websocket"
	TransportNATS      = "nats"
)

// Config holds the application configuration.
type Config struct {
	Server         ServerConfig      `yaml:"server"`
	Auth           AuthConfig        `yaml:"auth"`
	Reconnect      ReconnectConfig   `yaml:"reconnect"`
	RequestTimeout time.Duration     `yaml:"request_timeout"`
	Typing         TypingConfig      `yaml:"typing"`
	Attachments    AttachmentsConfig `yaml:"attachments"`
	Messages       MessagesConfig    `yaml:"messages"`
	DataDir        string            `yaml:"-"` // set by caller, not from config file
}

// ServerConfig locates the chat server.
type ServerConfig struct {
	APIURL    string `yaml:"api_url"`
	SocketURL string `yaml:"socket_url"`
	Transport string `yaml:"transport"`
	NATSURL   string `yaml:"nats_url"`
}

// AuthConfig holds the credentials used for both the REST API and the
// realtime connection. Token takes precedence over TokenFile.
type AuthConfig struct {
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
	UserID    string `yaml:"user_id"`
}

// ReconnectConfig bounds automatic reconnection.
type ReconnectConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Interval    time.Duration `yaml:"interval"`
}

// TypingConfig tunes the typing tracker. A zero RemoteExpiry keeps remote
// typing entries until the server says otherwise.
type TypingConfig struct {
	Hold         time.Duration `yaml:"hold"`
	RemoteExpiry time.Duration `yaml:"remote_expiry"`
}

// AttachmentsConfig limits what the composer accepts.
type AttachmentsConfig struct {
	MaxBytes        int64    `yaml:"max_bytes"`
	AllowedPrefixes []string `yaml:"allowed_prefixes"`
}

// MessagesConfig tunes history loading.
type MessagesConfig struct {
	PageSize int `yaml:"page_size"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			APIURL:    "http://localhost:3000",
			SocketURL: "ws://localhost:3000/socket",
			Transport: TransportWebsocket,
		},
		Reconnect: ReconnectConfig{
			MaxAttempts: 5,
			Interval:    time.Second,
		},
		RequestTimeout: 10 * time.Second,
		Typing: TypingConfig{
			Hold: 2 * time.Second,
		},
		Attachments: AttachmentsConfig{
			MaxBytes:        2 << 20,
			AllowedPrefixes: []string{"image/", "video/"},
		},
		Messages: MessagesConfig{
			PageSize: 50,
		},
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Server.Transport == "" {
		c.Server.Transport = defaults.Server.Transport
	}
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = defaults.Reconnect.MaxAttempts
	}
	if c.Reconnect.Interval == 0 {
		c.Reconnect.Interval = defaults.Reconnect.Interval
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.Typing.Hold == 0 {
		c.Typing.Hold = defaults.Typing.Hold
	}
	if c.Attachments.MaxBytes == 0 {
		c.Attachments.MaxBytes = defaults.Attachments.MaxBytes
	}
	if len(c.Attachments.AllowedPrefixes) == 0 {
		c.Attachments.AllowedPrefixes = defaults.Attachments.AllowedPrefixes
	}
	if c.Messages.PageSize == 0 {
		c.Messages.PageSize = defaults.Messages.PageSize
	}
}

// Token resolves the bearer token, reading auth.token_file when no inline
// token is set. An empty result means the user is not signed in.
func (c *Config) Token() (string, error) {
	if c.Auth.Token != "" {
		return c.Auth.Token, nil
	}
	if c.Auth.TokenFile == "" {
		return "", nil
	}

	data, err := os.ReadFile(c.Auth.TokenFile)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// PrefsFile returns the path to the local preferences JSON file.
func (c *Config) PrefsFile() string {
	return filepath.Join(c.DataDir, "prefs.json")
}
