package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// refresher periodically refreshes the access token of one session generation.
// A tick is skipped while the previous refresh is still running.
type refresher struct {
	generation uint64
	cancel     context.CancelFunc
}

// rearmLocked starts or stops the refresher to match the session state.
// Must be called with m.mu held. Stopping never waits for the loop, because
// the loop itself may be the caller (a failed refresh logs out).
func (m *Manager) rearmLocked() {
	wanted := !m.closed && m.state.IsAuthenticated() && m.state.HasRefreshToken()

	if m.refresher != nil {
		if wanted && m.refresher.generation == m.generation {
			return
		}
		m.refresher.cancel()
		m.refresher = nil
		log.Debug().Msg("scheduled refresh stopped")
	}

	if !wanted {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &refresher{generation: m.generation, cancel: cancel}
	m.refresher = r

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.refreshLoop(ctx, r.generation)
	}()

	log.Debug().
		Dur("interval", m.cfg.RefreshInterval).
		Msg("scheduled refresh started")
}

func (m *Manager) refreshLoop(ctx context.Context, generation uint64) {
	ticker := time.NewTicker(m.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			m.scheduledRefresh(ctx, generation)

		case <-ctx.Done():
			return
		}
	}
}

// scheduledRefresh refreshes only if the session that armed the timer is still
// current. Failures are absorbed; the refresh itself logs out on failure.
func (m *Manager) scheduledRefresh(ctx context.Context, generation uint64) {
	m.mu.Lock()
	current := m.generation == generation && m.state.HasRefreshToken()
	m.mu.Unlock()

	if !current {
		return
	}

	if err := m.RefreshAccessToken(ctx); err != nil {
		log.Warn().Err(err).Msg("scheduled token refresh failed")
	}
}
