package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/hay-kot/criterio"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// fieldErrors accumulates criterio field errors.
type fieldErrors struct {
	errs criterio.FieldErrors
}

func (f *fieldErrors) add(field string, format string, args ...any) {
	f.errs = append(f.errs, criterio.FieldErrors{{Field: field, Err: fmt.Errorf(format, args...)}}...)
}

func (f *fieldErrors) err() error {
	if len(f.errs) == 0 {
		return nil
	}
	return f.errs
}

// Validate checks the structural invariants that every command relies on.
func (c *Config) Validate() error {
	var fe fieldErrors

	if c.DataDir == "" {
		fe.add("data_dir", "data directory cannot be empty")
	}

	c.validateServer(&fe)

	if c.Reconnect.MaxAttempts < 0 {
		fe.add("reconnect.max_attempts", "must not be negative")
	}
	if c.Reconnect.Interval < 0 {
		fe.add("reconnect.interval", "must not be negative")
	}
	if c.RequestTimeout < 0 {
		fe.add("request_timeout", "must not be negative")
	}
	if c.Typing.Hold < 0 {
		fe.add("typing.hold", "must not be negative")
	}
	if c.Typing.RemoteExpiry < 0 {
		fe.add("typing.remote_expiry", "must not be negative")
	}
	if c.Attachments.MaxBytes < 0 {
		fe.add("attachments.max_bytes", "must not be negative")
	}
	if c.Messages.PageSize < 0 {
		fe.add("messages.page_size", "must not be negative")
	}

	return fe.err()
}

func (c *Config) validateServer(fe *fieldErrors) {
	checkURL(fe, "server.api_url", c.Server.APIURL, "http", "https")

	switch c.Server.Transport {
	case TransportWebsocket:
		checkURL(fe, "server.socket_url", c.Server.SocketURL, "ws", "wss")
	case TransportNATS:
		checkURL(fe, "server.nats_url", c.Server.NATSURL, "nats", "tls")
		if c.Auth.UserID == "" {
			fe.add("auth.user_id", "required when server.transport is %q", TransportNATS)
		}
	default:
		fe.add("server.transport", "unknown transport %q, use %q or %q", c.Server.Transport, TransportWebsocket, TransportNATS)
	}
}

func checkURL(fe *fieldErrors, field, raw string, schemes ...string) {
	if raw == "" {
		fe.add(field, "cannot be empty")
		return
	}

	u, err := url.Parse(raw)
	if err != nil {
		fe.add(field, "invalid url: %v", err)
		return
	}
	if !slices.Contains(schemes, u.Scheme) {
		fe.add(field, "scheme must be one of %s, got %q", strings.Join(schemes, ", "), u.Scheme)
	}
	if u.Host == "" {
		fe.add(field, "url %q has no host", raw)
	}
}

// ValidateDeep performs comprehensive validation of the configuration.
// Unlike Validate(), this checks file access for the config file, data
// directory and token file.
func (c *Config) ValidateDeep(configPath string) error {
	var fe fieldErrors

	if err := c.Validate(); err != nil {
		var structural criterio.FieldErrors
		if errors.As(err, &structural) {
			fe.errs = append(fe.errs, structural...)
		}
	}

	if configPath != "" {
		if info, err := os.Stat(configPath); err == nil {
			if info.IsDir() {
				fe.add("config_file", "%s is a directory, not a file", configPath)
			}
		} else if !os.IsNotExist(err) {
			fe.add("config_file", "cannot access %s: %v", configPath, err)
		}
	}

	if c.DataDir != "" {
		if info, err := os.Stat(c.DataDir); err == nil {
			if !info.IsDir() {
				fe.add("data_dir", "%s exists but is not a directory", c.DataDir)
			}
		} else if !os.IsNotExist(err) {
			fe.add("data_dir", "cannot access %s: %v", c.DataDir, err)
		}
	}

	if c.Auth.Token == "" && c.Auth.TokenFile != "" {
		if _, err := c.Token(); err != nil {
			fe.add("auth.token_file", "%v", err)
		}
	}

	return fe.err()
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if c.Auth.Token == "" && c.Auth.TokenFile == "" {
		warnings = append(warnings, ValidationWarning{
			Category: "Auth",
			Item:     "token",
			Message:  "no token configured; pass --token or set PARLEY_TOKEN",
		})
	}

	if c.Auth.Token != "" && c.Auth.TokenFile != "" {
		warnings = append(warnings, ValidationWarning{
			Category: "Auth",
			Item:     "token_file",
			Message:  "auth.token is set, auth.token_file is ignored",
		})
	}

	if c.Auth.UserID == "" && c.Server.Transport != TransportNATS {
		warnings = append(warnings, ValidationWarning{
			Category: "Auth",
			Item:     "user_id",
			Message:  "no user id configured; commands that connect will refuse to start",
		})
	}

	if c.Server.Transport == TransportWebsocket && c.Server.NATSURL != "" {
		warnings = append(warnings, ValidationWarning{
			Category: "Server",
			Item:     "nats_url",
			Message:  "nats_url is ignored while transport is websocket",
		})
	}

	if c.Reconnect.MaxAttempts == 0 {
		warnings = append(warnings, ValidationWarning{
			Category: "Reconnect",
			Item:     "max_attempts",
			Message:  "reconnection is disabled; a dropped connection stays down",
		})
	}

	for _, prefix := range c.Attachments.AllowedPrefixes {
		if !strings.HasSuffix(prefix, "/") {
			warnings = append(warnings, ValidationWarning{
				Category: "Attachments",
				Item:     prefix,
				Message:  "prefix does not end in '/', it will match partial type names",
			})
		}
	}

	return warnings
}
