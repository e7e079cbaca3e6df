package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/hay-kot/parley/internal/api"
	"github.com/hay-kot/parley/internal/composer"
	"github.com/hay-kot/parley/internal/core/config"
	"github.com/hay-kot/parley/internal/core/prefs"
	"github.com/hay-kot/parley/internal/directory"
	"github.com/hay-kot/parley/internal/parley"
	"github.com/hay-kot/parley/internal/realtime"
	"github.com/hay-kot/parley/internal/store/jsonfile"
	"github.com/hay-kot/parley/internal/transport/natsbus"
	"github.com/hay-kot/parley/internal/transport/websocket"
	"github.com/hay-kot/parley/internal/typing"
)

var (
	ErrNoToken = errors.New("no auth token configured, set auth.token, auth.token_file or --token")
	ErrNoUser  = errors.New("auth.user_id is required")
)

type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string
	DataDir    string
	Token      string

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "parley", "config.yaml")
}

// DefaultDataDir returns the default data directory using XDG_DATA_HOME.
func DefaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "parley")
}

func (f *Flags) token() (string, error) {
	if f.Token != "" {
		return f.Token, nil
	}
	token, err := f.Config.Token()
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// API returns a REST client for the configured server.
func (f *Flags) API() (*api.Client, error) {
	if f.Config == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	token, err := f.token()
	if err != nil {
		return nil, err
	}
	return api.New(api.Options{
		BaseURL: f.Config.Server.APIURL,
		Token:   token,
		Timeout: f.Config.RequestTimeout,
	}, log.With().Str("component", "api").Logger()), nil
}

func (f *Flags) dialer() realtime.Dialer {
	cfg := f.Config
	logger := log.With().Str("component", "transport").Str("kind", cfg.Server.Transport).Logger()

	if cfg.Server.Transport == config.TransportNATS {
		return natsbus.NewDialer(natsbus.Options{
			URL:            cfg.Server.NATSURL,
			UserID:         cfg.Auth.UserID,
			MaxReconnects:  cfg.Reconnect.MaxAttempts,
			ReconnectWait:  cfg.Reconnect.Interval,
			RequestTimeout: cfg.RequestTimeout,
		}, logger)
	}

	return websocket.NewDialer(websocket.Options{
		URL:            cfg.Server.SocketURL,
		MaxAttempts:    cfg.Reconnect.MaxAttempts,
		Interval:       cfg.Reconnect.Interval,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)
}

// Connect builds the chat service, opens the realtime connection and loads
// the conversation directory. Callers must Close the returned service.
func (f *Flags) Connect(ctx context.Context) (*parley.Service, error) {
	client, err := f.API()
	if err != nil {
		return nil, err
	}

	cfg := f.Config
	if cfg.Auth.UserID == "" {
		return nil, ErrNoUser
	}

	var (
		manager = realtime.NewManager(f.dialer(), log.With().Str("component", "realtime").Logger())
		favs    = f.favorites()
		logger  = log.With().Str("component", "parley").Logger()
	)

	svc := parley.New(manager, client, favs, parley.Options{
		SelfID:   cfg.Auth.UserID,
		PageSize: cfg.Messages.PageSize,
		Typing: typing.Options{
			Hold:         cfg.Typing.Hold,
			RemoteExpiry: cfg.Typing.RemoteExpiry,
		},
		Limits: composer.Limits{
			MaxBytes:        cfg.Attachments.MaxBytes,
			AllowedPrefixes: cfg.Attachments.AllowedPrefixes,
		},
	}, logger)

	token, _ := f.token()
	if err := svc.Start(ctx, token); err != nil {
		svc.Close()
		return nil, err
	}
	return svc, nil
}

func (f *Flags) favorites() *prefs.Favorites {
	return prefs.NewFavorites(jsonfile.NewPrefStore(f.Config.PrefsFile()))
}

// Directory loads the conversation list over the REST API without opening a
// realtime connection. The returned directory cannot join rooms.
func (f *Flags) Directory(ctx context.Context) (*directory.Directory, *api.Client, error) {
	client, err := f.API()
	if err != nil {
		return nil, nil, err
	}
	if f.Config.Auth.UserID == "" {
		return nil, nil, ErrNoUser
	}

	dir := directory.New(client, f.favorites(), nil, f.Config.Auth.UserID, log.With().Str("component", "directory").Logger())
	if _, err := dir.LoadAll(ctx); err != nil {
		return nil, nil, err
	}
	return dir, client, nil
}

type discardSink struct{}

func (discardSink) Deliver(string, json.RawMessage) {}
func (discardSink) SetConnected(bool)               {}
func (discardSink) Closed()                         {}

// Probe opens one realtime connection with the configured credentials and
// closes it again.
func (f *Flags) Probe(ctx context.Context) error {
	token, err := f.token()
	if err != nil {
		return err
	}
	conn, err := f.dialer().Dial(ctx, token, discardSink{})
	if err != nil {
		return err
	}
	return conn.Close()
}
