package commands

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/backoffice/internal/models"
	"github.com/wolfeidau/backoffice/internal/session"
	"github.com/wolfeidau/backoffice/internal/telemetry"
)

// DaemonCmd restores the session and keeps it refreshed until interrupted.
type DaemonCmd struct {
	Telemetry   bool    `help:"export metrics and traces over OTLP" default:"false" env:"BACKOFFICE_TELEMETRY"`
	SampleRatio float64 `help:"fraction of traces to sample" default:"1.0" env:"BACKOFFICE_TRACE_SAMPLE_RATIO"`
}

func (c *DaemonCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(globals)
	if err != nil {
		return err
	}
	defer a.Close()

	if c.Telemetry {
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Options{
			ServiceName: "backoffice-cli",
			Version:     globals.Version,
			SampleRatio: c.SampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	loggedOut := make(chan struct{})
	var once sync.Once

	unsubscribe := a.sessions.Subscribe(func(change session.Change) {
		log.Info().
			Str("reason", string(change.Reason)).
			Bool("authenticated", change.Session.IsAuthenticated()).
			Msg("session changed")

		if !a.sessions.IsAuthenticated() {
			once.Do(func() { close(loggedOut) })
		}
	})
	defer unsubscribe()

	a.hub.OnForegroundMessage(func(msg models.PushMessage) error {
		log.Info().Str("message_id", msg.MessageID).Msg("push message received")
		return nil
	})

	a.withDevices()
	if _, err := a.requireSession(ctx); err != nil {
		return err
	}
	a.hub.Start(ctx)

	log.Info().
		Str("version", globals.Version).
		Dur("refresh_interval", a.config.RefreshInterval).
		Msg("Daemon started")

	select {
	case <-ctx.Done():
		fmt.Fprintln(globals.stdout(), "Received interrupt signal, shutting down...")
		return nil
	case <-loggedOut:
		return fmt.Errorf("%w: session ended, log in again to resume", session.ErrNotAuthenticated)
	}
}
