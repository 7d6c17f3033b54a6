package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/backoffice/internal/client"
	"github.com/wolfeidau/backoffice/internal/config"
	"github.com/wolfeidau/backoffice/internal/credentials"
	"github.com/wolfeidau/backoffice/internal/logger"
	"github.com/wolfeidau/backoffice/internal/models"
	"github.com/wolfeidau/backoffice/internal/notify"
	"github.com/wolfeidau/backoffice/internal/push"
	"github.com/wolfeidau/backoffice/internal/session"
)

type Globals struct {
	Debug      bool
	Version    string
	ConfigPath string
	StoreDir   string

	// Stdout receives command output; nil means os.Stdout.
	Stdout io.Writer
}

func (g *Globals) stdout() io.Writer {
	if g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

// app wires the session, push and notification components for one command.
type app struct {
	config        config.Config
	store         credentials.Store
	client        *client.AuthenticatedClient
	sessions      *session.Manager
	devices       *push.Registrar
	notifications *notify.API
	hub           *notify.Hub
}

func newApp(globals *Globals) (*app, error) {
	cfg, err := config.Load(globals.ConfigPath)
	if err != nil {
		return nil, err
	}
	if globals.StoreDir != "" {
		cfg.StoreDir = globals.StoreDir
	}

	log.Logger = logger.Setup(globals.Debug || cfg.Debug)

	store, err := credentials.NewFileStore(cfg.StoreDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential store: %w", err)
	}

	api, err := client.New(client.Config{
		BaseURL:  cfg.APIURL,
		Timeout:  cfg.RequestTimeout,
		Cache:    cfg.Cache,
		CacheDir: cfg.CacheDir,
	})
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(session.Config{
		RefreshURL:      cfg.RefreshURL,
		RefreshInterval: cfg.RefreshInterval,
	}, store, api)

	provider := &push.StaticProvider{Token: cfg.PushToken}
	devices := push.NewRegistrar(push.RegistrarConfig{
		Platform:  cfg.Platform,
		OSVersion: cfg.OSVersion,
	}, api, provider, nil)

	notifications := notify.NewAPI(api)
	hub := notify.NewHub(sessions, notifications, provider, notify.WithDeviceRegistrar(devices))

	return &app{
		config:        cfg,
		store:         store,
		client:        api,
		sessions:      sessions,
		devices:       devices,
		notifications: notifications,
		hub:           hub,
	}, nil
}

// withDevices attaches push device registration to the session lifecycle.
func (a *app) withDevices() *app {
	a.sessions.SetDeviceRegistrar(a.devices)
	return a
}

// requireSession restores the stored session and fails when it is logged out.
func (a *app) requireSession(ctx context.Context) (models.Session, error) {
	sess := a.sessions.Bootstrap(ctx)
	if !sess.IsAuthenticated() {
		return models.Session{}, fmt.Errorf("%w\n\nRun 'backoffice-cli login --email <email>' to log in", session.ErrNotAuthenticated)
	}
	return sess, nil
}

func (a *app) Close() {
	a.hub.Close()
	a.sessions.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
