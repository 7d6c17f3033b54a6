package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/backoffice/internal/client"
	"github.com/wolfeidau/backoffice/internal/credentials"
	"github.com/wolfeidau/backoffice/internal/models"
	"github.com/wolfeidau/backoffice/internal/observer"
	"github.com/wolfeidau/backoffice/internal/telemetry"
	"golang.org/x/sync/singleflight"
)

const (
	// LoginPath is the manager login endpoint, relative to the API base URL.
	LoginPath = "/api/v1/bo/managers/login/"

	// DefaultRefreshInterval is how often the access token is refreshed in the background.
	DefaultRefreshInterval = 30 * time.Minute
)

// Config configures a Manager.
type Config struct {
	// RefreshURL is the absolute token refresh endpoint. It is served from a
	// different host than the rest of the API.
	RefreshURL string

	// RefreshInterval is the scheduled refresh period. Defaults to DefaultRefreshInterval.
	RefreshInterval time.Duration
}

// DeviceRegistrar syncs the push device token with the backend. Implementations
// must absorb their own failures.
type DeviceRegistrar interface {
	RegisterDevice(ctx context.Context)
	UnregisterDevice(ctx context.Context)
}

// Reason describes why the session changed.
type Reason string

const (
	ReasonBootstrap Reason = "bootstrap"
	ReasonLogin     Reason = "login"
	ReasonLogout    Reason = "logout"
	ReasonRefresh   Reason = "refresh"
	ReasonTenant    Reason = "tenant"
	ReasonExpired   Reason = "expired"
)

// Change is delivered to subscribers after every session mutation.
type Change struct {
	Session models.Session
	Reason  Reason
}

// Manager is the single source of truth for authentication state. It owns the
// credentials attached by the API client and the scheduled refresh loop.
type Manager struct {
	cfg     Config
	store   credentials.Store
	api     *client.AuthenticatedClient
	anon    *client.AuthenticatedClient
	metrics *telemetry.Metrics
	changes *observer.Registry[Change]

	mu         sync.Mutex
	state      models.Session
	generation uint64
	refresher  *refresher
	devices    DeviceRegistrar
	closed     bool

	refreshGroup singleflight.Group
	wg           sync.WaitGroup
}

// NewManager creates a manager in the bootstrapping state. Bootstrap must be
// called before the session is used.
func NewManager(cfg Config, store credentials.Store, api *client.AuthenticatedClient) *Manager {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}

	m := &Manager{
		cfg:     cfg,
		store:   store,
		api:     api,
		anon:    api.NewUnauthenticated(),
		metrics: telemetry.GetMetrics(),
		changes: observer.NewRegistry[Change]("session"),
		state:   models.Session{IsBootstrapping: true},
	}

	api.OnSessionExpired(m.expire)

	return m
}

// SetDeviceRegistrar wires the push registration service into the lifecycle.
func (m *Manager) SetDeviceRegistrar(d DeviceRegistrar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = d
}

// SetMetrics overrides the metric instruments, mainly for tests.
func (m *Manager) SetMetrics(metrics *telemetry.Metrics) {
	m.metrics = metrics
}

// Client returns the API client carrying the session credentials.
func (m *Manager) Client() *client.AuthenticatedClient {
	return m.api
}

// Session returns a copy of the current session.
func (m *Manager) Session() models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// IsAuthenticated reports whether the session holds an access token and a user.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.IsAuthenticated()
}

// Subscribe registers fn for session changes and returns a disposer.
func (m *Manager) Subscribe(fn func(Change)) (unsubscribe func()) {
	return m.changes.AddFunc(fn)
}

// Bootstrap restores the session from durable storage. Storage failures are
// treated as an empty store. It never fails.
func (m *Manager) Bootstrap(ctx context.Context) models.Session {
	persisted, err := credentials.LoadAuth(ctx, m.store)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read persisted session, starting logged out")
		persisted = credentials.AuthState{}
	}

	m.mu.Lock()
	m.generation++
	if persisted.AccessToken != "" && persisted.User != nil {
		tenant := persisted.RestaurantID
		if tenant == "" {
			tenant = persisted.User.TenantID
		}
		m.state = models.Session{
			AccessToken:       persisted.AccessToken,
			RefreshToken:      persisted.RefreshToken,
			AccessTokenExpiry: tokenExpiry(persisted.AccessToken),
			User:              persisted.User,
			ActiveTenantID:    tenant,
			Language:          persisted.Language,
		}
		m.api.SetCredentials(persisted.AccessToken, tenant)
	} else {
		m.state = models.Session{Language: persisted.Language}
		m.api.ClearCredentials()
	}
	m.rearmLocked()
	snapshot := m.state.Clone()
	devices := m.devices
	m.mu.Unlock()

	log.Info().
		Bool("authenticated", snapshot.IsAuthenticated()).
		Str("restaurant_id", snapshot.ActiveTenantID).
		Msg("session bootstrapped")

	m.changes.Dispatch(Change{Session: snapshot, Reason: ReasonBootstrap})

	if snapshot.IsAuthenticated() && devices != nil {
		m.background(ctx, devices.RegisterDevice)
	}

	return snapshot
}

// Login authenticates with the backend and replaces the session. Failures reset
// the session to logged out and are returned as *AuthError.
func (m *Manager) Login(ctx context.Context, creds models.Credentials) (models.Session, error) {
	ctx, span := telemetry.StartSpan(ctx, "session.Login")
	sess, err := m.login(ctx, creds)
	telemetry.EndSpan(span, err)
	return sess, err
}

func (m *Manager) login(ctx context.Context, creds models.Credentials) (models.Session, error) {
	var pair models.TokenPair
	if err := m.anon.Post(ctx, LoginPath, creds, &pair); err != nil {
		authErr := classifyLoginError(err)
		m.loginFailed(ctx, authErr)
		return models.Session{}, authErr
	}

	if pair.Access == "" || pair.User == nil {
		authErr := &AuthError{Kind: KindMalformedResponse, Err: errors.New("login response missing access token or user")}
		m.loginFailed(ctx, authErr)
		return models.Session{}, authErr
	}

	tenant := pair.User.TenantID

	err := credentials.SaveAuth(ctx, m.store, credentials.AuthState{
		AccessToken:  pair.Access,
		RefreshToken: pair.Refresh,
		RestaurantID: tenant,
		User:         pair.User,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to persist session, continuing in memory")
	}

	m.mu.Lock()
	m.generation++
	m.state = models.Session{
		AccessToken:       pair.Access,
		RefreshToken:      pair.Refresh,
		AccessTokenExpiry: tokenExpiry(pair.Access),
		User:              pair.User,
		ActiveTenantID:    tenant,
		Language:          m.state.Language,
	}
	m.api.SetCredentials(pair.Access, tenant)
	m.rearmLocked()
	snapshot := m.state.Clone()
	devices := m.devices
	m.mu.Unlock()

	m.metrics.LoginsTotal.Add(ctx, 1)

	log.Info().
		Int64("user_id", pair.User.ID).
		Str("restaurant_id", tenant).
		Msg("logged in")

	m.changes.Dispatch(Change{Session: snapshot, Reason: ReasonLogin})

	if devices != nil {
		devices.RegisterDevice(ctx)
	}

	return snapshot, nil
}

func (m *Manager) loginFailed(ctx context.Context, err *AuthError) {
	m.metrics.LoginFailuresTotal.Add(ctx, 1)
	log.Warn().Err(err).Str("kind", string(err.Kind)).Msg("login failed")
	m.reset(ctx, ReasonLogout)
}

// Logout unregisters the device token (best effort), clears persisted
// credentials and resets the session. Calling it when logged out is safe.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	devices := m.devices
	m.mu.Unlock()

	if devices != nil {
		devices.UnregisterDevice(ctx)
	}

	if m.reset(ctx, ReasonLogout) {
		m.metrics.LogoutsTotal.Add(ctx, 1)
		log.Info().Msg("logged out")
	}
}

// expire handles a session-expired response from any API call. Responses to
// requests sent with a token that has since been replaced are ignored.
func (m *Manager) expire(ctx context.Context, bearer string) {
	m.metrics.SessionExpiredTotal.Add(ctx, 1)

	sentWithCurrentToken := func(s models.Session) bool { return s.AccessToken == bearer }
	if m.resetIf(ctx, ReasonExpired, sentWithCurrentToken) {
		log.Warn().Msg("session expired, credentials cleared")
	}
}

// reset moves the session to the logged-out state. It reports whether the
// session was authenticated before the call. Subscribers are only notified
// on an actual transition, so concurrent resets collapse into one change.
func (m *Manager) reset(ctx context.Context, reason Reason) bool {
	return m.resetIf(ctx, reason, nil)
}

// resetIf resets the session only when match accepts the current state. A nil
// match always resets.
func (m *Manager) resetIf(ctx context.Context, reason Reason, match func(models.Session) bool) bool {
	m.mu.Lock()
	if match != nil && !match(m.state) {
		m.mu.Unlock()
		log.Debug().Str("reason", string(reason)).Msg("ignoring reset for a replaced session")
		return false
	}
	wasAuthenticated := m.state.IsAuthenticated()
	m.generation++
	m.state = models.Session{Language: m.state.Language}
	m.api.ClearCredentials()
	m.rearmLocked()
	snapshot := m.state.Clone()
	m.mu.Unlock()

	if err := credentials.ClearAuth(ctx, m.store); err != nil {
		log.Error().Err(err).Msg("failed to clear persisted session")
	}

	if wasAuthenticated {
		m.changes.Dispatch(Change{Session: snapshot, Reason: reason})
	}

	return wasAuthenticated
}

// RefreshAccessToken exchanges the refresh token for a new access token.
// Concurrent calls share one request. Any failure logs the session out, unless
// the session was replaced while the request was in flight.
func (m *Manager) RefreshAccessToken(ctx context.Context) error {
	_, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		ctx, span := telemetry.StartSpan(ctx, "session.Refresh")
		err := m.refresh(ctx)
		telemetry.EndSpan(span, err)
		return nil, err
	})
	return err
}

func (m *Manager) refresh(ctx context.Context) error {
	m.mu.Lock()
	refreshToken := m.state.RefreshToken
	generation := m.generation
	m.mu.Unlock()

	m.metrics.RefreshTotal.Add(ctx, 1)

	if refreshToken == "" {
		m.metrics.RefreshFailureTotal.Add(ctx, 1)
		log.Warn().Msg("no refresh token, logging out")
		m.Logout(ctx)
		return &AuthError{Kind: KindRefreshFailed, Err: ErrNoRefreshToken}
	}

	started := time.Now()

	var pair models.TokenPair
	err := m.anon.Post(ctx, m.cfg.RefreshURL, map[string]string{"refresh": refreshToken}, &pair)
	if err == nil && pair.Access == "" {
		err = &AuthError{Kind: KindMalformedResponse, Err: errors.New("refresh response missing access token")}
	}

	m.metrics.RefreshDuration.Record(ctx, float64(time.Since(started).Milliseconds()))

	if err != nil {
		m.metrics.RefreshFailureTotal.Add(ctx, 1)

		if m.isCurrent(generation) {
			log.Warn().Err(err).Msg("token refresh failed, logging out")
			m.Logout(ctx)
		} else {
			log.Debug().Err(err).Msg("token refresh failed for a replaced session")
		}

		return &AuthError{Kind: KindRefreshFailed, Err: err}
	}

	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		log.Debug().Msg("discarding refreshed token for a replaced session")
		return &AuthError{Kind: KindRefreshFailed, Err: ErrSessionChanged}
	}
	m.state.AccessToken = pair.Access
	m.state.AccessTokenExpiry = tokenExpiry(pair.Access)
	if pair.Refresh != "" {
		m.state.RefreshToken = pair.Refresh
	}
	m.api.SetCredentials(m.state.AccessToken, m.state.ActiveTenantID)
	m.rearmLocked()
	snapshot := m.state.Clone()
	m.mu.Unlock()

	if err := m.store.Set(ctx, credentials.KeyAccessToken, snapshot.AccessToken); err != nil {
		log.Error().Err(err).Msg("failed to persist access token")
	}
	if err := m.store.Set(ctx, credentials.KeyRefreshToken, snapshot.RefreshToken); err != nil {
		log.Error().Err(err).Msg("failed to persist refresh token")
	}

	log.Debug().
		Time("expiry", snapshot.AccessTokenExpiry).
		Bool("rotated", pair.Refresh != "").
		Msg("access token refreshed")

	m.changes.Dispatch(Change{Session: snapshot, Reason: ReasonRefresh})

	return nil
}

// UpdateTenantSelection switches the active restaurant of an authenticated session.
func (m *Manager) UpdateTenantSelection(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	if !m.state.IsAuthenticated() {
		m.mu.Unlock()
		log.Error().Str("restaurant_id", tenantID).Msg("cannot switch restaurant without an authenticated session")
		return &AuthError{Kind: KindNotAuthenticated}
	}
	user := m.state.User.WithTenant(tenantID)
	m.state.User = &user
	m.state.ActiveTenantID = tenantID
	m.api.SetTenant(tenantID)
	snapshot := m.state.Clone()
	m.mu.Unlock()

	if err := m.store.Set(ctx, credentials.KeyRestaurantID, tenantID); err != nil {
		log.Error().Err(err).Msg("failed to persist restaurant selection")
	}
	if err := credentials.SaveUser(ctx, m.store, &user); err != nil {
		log.Error().Err(err).Msg("failed to persist user record")
	}

	log.Info().Str("restaurant_id", tenantID).Msg("restaurant selected")

	m.changes.Dispatch(Change{Session: snapshot, Reason: ReasonTenant})

	return nil
}

// SetLanguage persists the UI locale preference.
func (m *Manager) SetLanguage(ctx context.Context, lang string) error {
	m.mu.Lock()
	m.state.Language = lang
	m.mu.Unlock()

	return m.store.Set(ctx, credentials.KeyLanguage, lang)
}

// Close stops the scheduled refresh and waits for background work. It is idempotent.
// A refresh interrupted by Close does not log the session out.
func (m *Manager) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		m.generation++
	}
	m.rearmLocked()
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Manager) isCurrent(generation uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation == generation
}

// background runs fn detached from the caller's cancellation.
func (m *Manager) background(ctx context.Context, fn func(context.Context)) {
	ctx = context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn(ctx)
	}()
}

// tokenExpiry reads the exp claim of a JWT access token without verifying it.
// Opaque tokens yield the zero time.
func tokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
