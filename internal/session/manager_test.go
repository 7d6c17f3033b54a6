package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/backoffice/internal/client"
	"github.com/wolfeidau/backoffice/internal/credentials"
	"github.com/wolfeidau/backoffice/internal/models"
	"github.com/wolfeidau/backoffice/internal/telemetry/telemetrytest"
	"go.opentelemetry.io/otel/codes"
)

const refreshPath = "/api/auth/token/refresh"

// fakeBackend serves the login and refresh endpoints.
type fakeBackend struct {
	srv *httptest.Server

	mu            sync.Mutex
	loginStatus   int
	loginBody     any
	refreshStatus int
	refreshBody   any
	refreshGate   chan struct{}
	apiStatus     int
	apiGate       chan struct{}

	loginCalls   atomic.Int32
	refreshCalls atomic.Int32
	apiCalls     atomic.Int32
	lastRefresh  atomic.Value
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	b := &fakeBackend{
		loginStatus:   http.StatusOK,
		refreshStatus: http.StatusOK,
		apiStatus:     http.StatusOK,
		loginBody: map[string]any{
			"access":  "tok1",
			"refresh": "ref1",
			"user":    map[string]any{"id": 1, "email": "a@b.com", "restaurant_id": "r1"},
		},
		refreshBody: map[string]any{"access": "tok2"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+LoginPath, func(w http.ResponseWriter, r *http.Request) {
		b.loginCalls.Add(1)
		assert.Empty(t, r.Header.Get(client.HeaderAuthorization))

		var creds models.Credentials
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&creds))

		b.mu.Lock()
		status, body := b.loginStatus, b.loginBody
		b.mu.Unlock()
		writeJSON(w, status, body)
	})
	mux.HandleFunc("POST "+refreshPath, func(w http.ResponseWriter, r *http.Request) {
		b.refreshCalls.Add(1)
		assert.Empty(t, r.Header.Get(client.HeaderAuthorization), "refresh must not carry the stale access token")

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		b.lastRefresh.Store(body["refresh"])

		b.mu.Lock()
		gate, status, resp := b.refreshGate, b.refreshStatus, b.refreshBody
		b.mu.Unlock()
		if gate != nil {
			<-gate
		}
		writeJSON(w, status, resp)
	})
	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		b.apiCalls.Add(1)

		b.mu.Lock()
		status, gate := b.apiStatus, b.apiGate
		b.mu.Unlock()
		if gate != nil {
			<-gate
		}
		w.WriteHeader(status)
	})

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)

	return b
}

func (b *fakeBackend) set(fn func(b *fakeBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

type fakeDevices struct {
	registered   atomic.Int32
	unregistered atomic.Int32
}

func (f *fakeDevices) RegisterDevice(context.Context)   { f.registered.Add(1) }
func (f *fakeDevices) UnregisterDevice(context.Context) { f.unregistered.Add(1) }

type harness struct {
	backend *fakeBackend
	store   *credentials.MemoryStore
	api     *client.AuthenticatedClient
	devices *fakeDevices
	manager *Manager
}

func newHarness(t *testing.T, interval time.Duration) *harness {
	t.Helper()

	backend := newFakeBackend(t)

	api, err := client.New(client.Config{BaseURL: backend.srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	store := credentials.NewMemoryStore()
	devices := &fakeDevices{}

	m := NewManager(Config{RefreshURL: backend.srv.URL + refreshPath, RefreshInterval: interval}, store, api)
	m.SetDeviceRegistrar(devices)
	t.Cleanup(m.Close)

	return &harness{backend: backend, store: store, api: api, devices: devices, manager: m}
}

func (h *harness) login(t *testing.T) models.Session {
	t.Helper()
	sess, err := h.manager.Login(context.Background(), models.Credentials{Email: "a@b.com", Password: "x"})
	require.NoError(t, err)
	return sess
}

func assertHeaders(t *testing.T, api *client.AuthenticatedClient, sess models.Session) {
	t.Helper()

	h := api.Headers()
	if sess.AccessToken == "" {
		_, ok := h[client.HeaderAuthorization]
		assert.False(t, ok, "Authorization header should be absent")
	} else {
		assert.Equal(t, "Bearer "+sess.AccessToken, h.Get(client.HeaderAuthorization))
	}
	if sess.ActiveTenantID == "" {
		_, ok := h[client.HeaderRestaurantID]
		assert.False(t, ok, "X-Restaurant-ID header should be absent")
	} else {
		assert.Equal(t, sess.ActiveTenantID, h.Get(client.HeaderRestaurantID))
	}
}

func assertLoggedOut(t *testing.T, h *harness) {
	t.Helper()

	sess := h.manager.Session()
	assert.False(t, sess.IsAuthenticated())
	assert.Empty(t, sess.AccessToken)
	assert.Empty(t, sess.RefreshToken)
	assert.Nil(t, sess.User)
	for _, key := range credentials.AuthKeys {
		assert.False(t, h.store.Has(key), "key %s should be removed", key)
	}
	assertHeaders(t, h.api, sess)
}

func TestManager_Login(t *testing.T) {
	t.Run("establishes the session", func(t *testing.T) {
		h := newHarness(t, time.Hour)

		sess := h.login(t)

		assert.Equal(t, "tok1", sess.AccessToken)
		assert.Equal(t, "ref1", sess.RefreshToken)
		assert.Equal(t, "r1", sess.ActiveTenantID)
		assert.True(t, sess.IsAuthenticated())
		require.NotNil(t, sess.User)
		assert.Equal(t, int64(1), sess.User.ID)

		assert.Equal(t, "Bearer tok1", h.api.Headers().Get(client.HeaderAuthorization))
		assert.Equal(t, "r1", h.api.Headers().Get(client.HeaderRestaurantID))

		v, err := h.store.Get(context.Background(), credentials.KeyAccessToken)
		require.NoError(t, err)
		assert.Equal(t, "tok1", v)
		v, err = h.store.Get(context.Background(), credentials.KeyRestaurantID)
		require.NoError(t, err)
		assert.Equal(t, "r1", v)

		assert.Equal(t, int32(1), h.devices.registered.Load())
	})

	t.Run("accepts a numeric restaurant id", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		h.backend.set(func(b *fakeBackend) {
			b.loginBody = map[string]any{
				"access": "tok1",
				"user":   map[string]any{"id": 7, "restaurant_id": 42},
			}
		})

		sess := h.login(t)
		assert.Equal(t, "42", sess.ActiveTenantID)
		assert.Empty(t, sess.RefreshToken)
	})

	t.Run("invalid credentials are returned and reset the session", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		h.login(t)

		h.backend.set(func(b *fakeBackend) {
			b.loginStatus = http.StatusBadRequest
			b.loginBody = map[string]any{"detail": "invalid credentials"}
		})

		_, err := h.manager.Login(context.Background(), models.Credentials{Email: "a@b.com", Password: "wrong"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Equal(t, http.StatusBadRequest, client.StatusCode(err))

		assertLoggedOut(t, h)
	})

	t.Run("missing user in 2xx response is malformed", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		h.backend.set(func(b *fakeBackend) {
			b.loginBody = map[string]any{"access": "tok1"}
		})

		_, err := h.manager.Login(context.Background(), models.Credentials{})
		assert.ErrorIs(t, err, ErrMalformedResponse)
		assertLoggedOut(t, h)
		assert.Zero(t, h.devices.registered.Load())
	})

	t.Run("missing access token in 2xx response is malformed", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		h.backend.set(func(b *fakeBackend) {
			b.loginBody = map[string]any{"user": map[string]any{"id": 1}}
		})

		_, err := h.manager.Login(context.Background(), models.Credentials{})
		assert.ErrorIs(t, err, ErrMalformedResponse)
		assertLoggedOut(t, h)
	})

	t.Run("server errors are distinguishable", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		h.backend.set(func(b *fakeBackend) { b.loginStatus = http.StatusBadGateway })

		_, err := h.manager.Login(context.Background(), models.Credentials{})
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("network errors are distinguishable", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		h.backend.srv.Close()

		_, err := h.manager.Login(context.Background(), models.Credentials{})
		assert.ErrorIs(t, err, ErrNetwork)
		assertLoggedOut(t, h)
	})

	t.Run("reads expiry from JWT access tokens", func(t *testing.T) {
		h := newHarness(t, time.Hour)

		exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		}).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		h.backend.set(func(b *fakeBackend) {
			b.loginBody = map[string]any{"access": token, "user": map[string]any{"id": 1}}
		})

		sess := h.login(t)
		assert.True(t, exp.Equal(sess.AccessTokenExpiry))
	})
}

func TestManager_Bootstrap(t *testing.T) {
	ctx := context.Background()

	t.Run("restores a persisted session", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		user := &models.User{ID: 1, Email: "a@b.com", TenantID: "r1", IsManager: true}
		require.NoError(t, credentials.SaveAuth(ctx, h.store, credentials.AuthState{
			AccessToken: "A",
			User:        user,
		}))

		assert.True(t, h.manager.Session().IsBootstrapping)

		sess := h.manager.Bootstrap(ctx)

		assert.False(t, sess.IsBootstrapping)
		assert.True(t, sess.IsAuthenticated())
		require.NotNil(t, sess.User)
		assert.Equal(t, *user, *sess.User)
		assert.Equal(t, "r1", sess.ActiveTenantID)
		assertHeaders(t, h.api, sess)

		require.Eventually(t, func() bool {
			return h.devices.registered.Load() == 1
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("persisted restaurant id wins over the user record", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		require.NoError(t, credentials.SaveAuth(ctx, h.store, credentials.AuthState{
			AccessToken:  "A",
			RestaurantID: "r9",
			User:         &models.User{ID: 1, TenantID: "r1"},
		}))

		sess := h.manager.Bootstrap(ctx)
		assert.Equal(t, "r9", sess.ActiveTenantID)
		assert.Equal(t, "r9", h.api.Headers().Get(client.HeaderRestaurantID))
	})

	t.Run("empty store yields logged out", func(t *testing.T) {
		h := newHarness(t, time.Hour)

		sess := h.manager.Bootstrap(ctx)

		assert.False(t, sess.IsBootstrapping)
		assert.False(t, sess.IsAuthenticated())
		assertHeaders(t, h.api, sess)
		assert.Zero(t, h.devices.registered.Load())
	})

	t.Run("token without user yields logged out", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		require.NoError(t, h.store.Set(ctx, credentials.KeyAccessToken, "A"))

		sess := h.manager.Bootstrap(ctx)
		assert.False(t, sess.IsAuthenticated())
		assertHeaders(t, h.api, sess)
	})

	t.Run("corrupt user record yields logged out", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		require.NoError(t, h.store.Set(ctx, credentials.KeyAccessToken, "A"))
		require.NoError(t, h.store.Set(ctx, credentials.KeyUser, "{nope"))

		sess := h.manager.Bootstrap(ctx)
		assert.False(t, sess.IsAuthenticated())
	})

	t.Run("storage read failure yields logged out", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		require.NoError(t, credentials.SaveAuth(ctx, h.store, credentials.AuthState{
			AccessToken: "A",
			User:        &models.User{ID: 1},
		}))
		h.store.FailReads = true

		sess := h.manager.Bootstrap(ctx)
		assert.False(t, sess.IsBootstrapping)
		assert.False(t, sess.IsAuthenticated())
		assertHeaders(t, h.api, sess)
	})

	t.Run("restores the language preference", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		require.NoError(t, h.store.Set(ctx, credentials.KeyLanguage, "fr"))

		sess := h.manager.Bootstrap(ctx)
		assert.Equal(t, "fr", sess.Language)
	})
}

func TestManager_Logout(t *testing.T) {
	ctx := context.Background()

	t.Run("clears session, storage and headers", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		h.login(t)

		h.manager.Logout(ctx)

		assertLoggedOut(t, h)
		assert.Equal(t, int32(1), h.devices.unregistered.Load())
	})

	t.Run("is idempotent", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		h.login(t)
		require.NoError(t, h.store.Set(ctx, credentials.KeyLanguage, "en"))

		h.manager.Logout(ctx)
		once := h.manager.Session()

		h.manager.Logout(ctx)
		twice := h.manager.Session()

		assert.Equal(t, once, twice)
		assertLoggedOut(t, h)
		assert.True(t, h.store.Has(credentials.KeyLanguage))
		assert.Equal(t, int32(2), h.devices.unregistered.Load())
	})

	t.Run("notifies subscribers once per transition", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		h.login(t)

		var reasons []Reason
		unsubscribe := h.manager.Subscribe(func(c Change) { reasons = append(reasons, c.Reason) })
		defer unsubscribe()

		h.manager.Logout(ctx)
		h.manager.Logout(ctx)

		assert.Equal(t, []Reason{ReasonLogout}, reasons)
	})
}

func TestManager_RefreshAccessToken(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces the access token and keeps the refresh token", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		h.login(t)

		require.NoError(t, h.manager.RefreshAccessToken(ctx))

		sess := h.manager.Session()
		assert.True(t, sess.IsAuthenticated())
		assert.Equal(t, "tok2", sess.AccessToken)
		assert.Equal(t, "ref1", sess.RefreshToken)
		assert.Equal(t, "ref1", h.backend.lastRefresh.Load())
		assertHeaders(t, h.api, sess)

		v, err := h.store.Get(ctx, credentials.KeyAccessToken)
		require.NoError(t, err)
		assert.Equal(t, "tok2", v)
		v, err = h.store.Get(ctx, credentials.KeyRefreshToken)
		require.NoError(t, err)
		assert.Equal(t, "ref1", v)
	})

	t.Run("stores a rotated refresh token", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		h.login(t)
		h.backend.set(func(b *fakeBackend) {
			b.refreshBody = map[string]any{"access": "tok2", "refresh": "ref2"}
		})

		require.NoError(t, h.manager.RefreshAccessToken(ctx))

		assert.Equal(t, "ref2", h.manager.Session().RefreshToken)
		v, err := h.store.Get(ctx, credentials.KeyRefreshToken)
		require.NoError(t, err)
		assert.Equal(t, "ref2", v)
	})

	t.Run("401 from the refresh endpoint logs out", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		h.login(t)
		h.backend.set(func(b *fakeBackend) {
			b.refreshStatus = http.StatusUnauthorized
			b.refreshBody = map[string]any{"detail": "token_not_valid"}
		})

		err := h.manager.RefreshAccessToken(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRefreshFailed)

		assertLoggedOut(t, h)
	})

	t.Run("missing access token in 2xx response logs out", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		h.login(t)
		h.backend.set(func(b *fakeBackend) { b.refreshBody = map[string]any{} })

		err := h.manager.RefreshAccessToken(ctx)
		assert.ErrorIs(t, err, ErrRefreshFailed)
		assert.ErrorIs(t, err, ErrMalformedResponse)
		assertLoggedOut(t, h)
	})

	t.Run("without a refresh token logs out", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		h.backend.set(func(b *fakeBackend) {
			b.loginBody = map[string]any{"access": "tok1", "user": map[string]any{"id": 1}}
		})
		h.login(t)

		err := h.manager.RefreshAccessToken(ctx)
		assert.ErrorIs(t, err, ErrRefreshFailed)
		assert.ErrorIs(t, err, ErrNoRefreshToken)
		assert.Zero(t, h.backend.refreshCalls.Load())
		assertLoggedOut(t, h)
	})

	t.Run("concurrent calls share one request", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		h.login(t)

		gate := make(chan struct{})
		h.backend.set(func(b *fakeBackend) { b.refreshGate = gate })

		var wg sync.WaitGroup
		var started atomic.Int32
		errs := make([]error, 5)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				started.Add(1)
				errs[i] = h.manager.RefreshAccessToken(ctx)
			}()
		}

		require.Eventually(t, func() bool {
			return started.Load() == 5 && h.backend.refreshCalls.Load() == 1
		}, time.Second, 5*time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		close(gate)
		wg.Wait()

		for _, err := range errs {
			assert.NoError(t, err)
		}
		assert.Equal(t, int32(1), h.backend.refreshCalls.Load())
	})

	t.Run("refresh completing after logout does not re-authenticate", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		h.login(t)

		gate := make(chan struct{})
		h.backend.set(func(b *fakeBackend) { b.refreshGate = gate })

		done := make(chan error, 1)
		go func() { done <- h.manager.RefreshAccessToken(ctx) }()

		require.Eventually(t, func() bool {
			return h.backend.refreshCalls.Load() == 1
		}, time.Second, 5*time.Millisecond)

		h.manager.Logout(ctx)
		close(gate)

		err := <-done
		assert.ErrorIs(t, err, ErrSessionChanged)
		assertLoggedOut(t, h)
	})
}

func TestManager_UpdateTenantSelection(t *testing.T) {
	ctx := context.Background()

	t.Run("switches restaurant and keeps the access token", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		h.login(t)

		require.NoError(t, h.manager.UpdateTenantSelection(ctx, "r2"))

		sess := h.manager.Session()
		assert.Equal(t, "tok1", sess.AccessToken)
		assert.Equal(t, "r2", sess.ActiveTenantID)
		assert.Equal(t, "r2", sess.User.TenantID)
		assert.Equal(t, "r2", h.api.Headers().Get(client.HeaderRestaurantID))
		assert.Equal(t, "Bearer tok1", h.api.Headers().Get(client.HeaderAuthorization))

		persisted, err := credentials.LoadAuth(ctx, h.store)
		require.NoError(t, err)
		assert.Equal(t, "r2", persisted.RestaurantID)
		require.NotNil(t, persisted.User)
		assert.Equal(t, "r2", persisted.User.TenantID)
		assert.Equal(t, "tok1", persisted.AccessToken)
	})

	t.Run("requires an authenticated session", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		h.manager.Bootstrap(ctx)

		err := h.manager.UpdateTenantSelection(ctx, "r2")
		assert.ErrorIs(t, err, ErrNotAuthenticated)
		assert.False(t, h.store.Has(credentials.KeyRestaurantID))
		assert.Empty(t, h.api.Headers().Get(client.HeaderRestaurantID))
	})

	t.Run("does not mutate previously returned sessions", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		before := h.login(t)

		require.NoError(t, h.manager.UpdateTenantSelection(ctx, "r2"))
		assert.Equal(t, "r1", before.User.TenantID)
	})
}

func TestManager_HeaderSyncInvariant(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour)

	steps := []struct {
		name string
		run  func()
	}{
		{"bootstrap", func() { h.manager.Bootstrap(ctx) }},
		{"login", func() { h.login(t) }},
		{"refresh", func() { require.NoError(t, h.manager.RefreshAccessToken(ctx)) }},
		{"tenant switch", func() { require.NoError(t, h.manager.UpdateTenantSelection(ctx, "r2")) }},
		{"logout", func() { h.manager.Logout(ctx) }},
		{"login again", func() { h.login(t) }},
		{"tenant switch again", func() { require.NoError(t, h.manager.UpdateTenantSelection(ctx, "r3")) }},
		{"logout again", func() { h.manager.Logout(ctx) }},
	}

	for _, step := range steps {
		step.run()
		sess := h.manager.Session()
		t.Run(step.name, func(t *testing.T) {
			assertHeaders(t, h.api, sess)
		})
	}
}

func TestManager_SessionExpired(t *testing.T) {
	ctx := context.Background()

	for _, status := range []int{http.StatusUnauthorized, http.StatusLengthRequired} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			h := newHarness(t, time.Hour)
			h.login(t)
			h.backend.set(func(b *fakeBackend) { b.apiStatus = status })

			var reasons []Reason
			h.manager.Subscribe(func(c Change) { reasons = append(reasons, c.Reason) })

			err := h.api.Get(ctx, "/api/v1/notifications/", nil, nil)
			require.ErrorIs(t, err, client.ErrSessionExpired)

			assertLoggedOut(t, h)
			assert.Equal(t, []Reason{ReasonExpired}, reasons)

			// a later explicit logout must not fail or notify again
			h.manager.Logout(ctx)
			assert.Equal(t, []Reason{ReasonExpired}, reasons)
		})
	}
	t.Run("rejection of a replaced token keeps the new session", func(t *testing.T) {
		h := newHarness(t, time.Hour)
		h.login(t)

		gate := make(chan struct{})
		h.backend.set(func(b *fakeBackend) {
			b.apiStatus = http.StatusUnauthorized
			b.apiGate = gate
		})

		errc := make(chan error, 1)
		go func() { errc <- h.api.Get(ctx, "/api/v1/notifications/", nil, nil) }()
		require.Eventually(t, func() bool {
			return h.backend.apiCalls.Load() == 1
		}, time.Second, 5*time.Millisecond)

		h.backend.set(func(b *fakeBackend) {
			b.loginBody = map[string]any{
				"access":  "tok3",
				"refresh": "ref3",
				"user":    map[string]any{"id": 2, "email": "c@d.com", "restaurant_id": "r9"},
			}
		})
		sess := h.login(t)

		var reasons []Reason
		h.manager.Subscribe(func(c Change) { reasons = append(reasons, c.Reason) })

		close(gate)
		require.ErrorIs(t, <-errc, client.ErrSessionExpired)

		assert.True(t, h.manager.IsAuthenticated())
		assert.Equal(t, "tok3", h.manager.Session().AccessToken)
		assert.Empty(t, reasons)
		assertHeaders(t, h.api, sess)
		assert.True(t, h.store.Has(credentials.KeyAccessToken))
	})
}

func TestManager_ScheduledRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("refreshes on the interval while authenticated", func(t *testing.T) {
		h := newHarness(t, 20*time.Millisecond)
		h.login(t)

		require.Eventually(t, func() bool {
			return h.backend.refreshCalls.Load() >= 1
		}, time.Second, 5*time.Millisecond)
		assert.True(t, h.manager.IsAuthenticated())
	})

	t.Run("stops after logout", func(t *testing.T) {
		h := newHarness(t, 30*time.Millisecond)
		h.login(t)

		h.manager.Logout(ctx)
		before := h.backend.refreshCalls.Load()

		time.Sleep(150 * time.Millisecond)

		assert.Equal(t, before, h.backend.refreshCalls.Load())
		assertLoggedOut(t, h)
	})

	t.Run("is not armed without a refresh token", func(t *testing.T) {
		h := newHarness(t, 20*time.Millisecond)
		h.backend.set(func(b *fakeBackend) {
			b.loginBody = map[string]any{"access": "tok1", "user": map[string]any{"id": 1}}
		})
		h.login(t)

		time.Sleep(100 * time.Millisecond)

		assert.Zero(t, h.backend.refreshCalls.Load())
		assert.True(t, h.manager.IsAuthenticated())
	})

	t.Run("failed scheduled refresh logs out and stops", func(t *testing.T) {
		h := newHarness(t, 20*time.Millisecond)
		h.login(t)
		h.backend.set(func(b *fakeBackend) { b.refreshStatus = http.StatusUnauthorized })

		require.Eventually(t, func() bool {
			return !h.manager.IsAuthenticated()
		}, time.Second, 5*time.Millisecond)

		calls := h.backend.refreshCalls.Load()
		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, calls, h.backend.refreshCalls.Load())
	})

	t.Run("stops on close", func(t *testing.T) {
		h := newHarness(t, 20*time.Millisecond)
		h.login(t)

		h.manager.Close()
		h.manager.Close()
		before := h.backend.refreshCalls.Load()

		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, before, h.backend.refreshCalls.Load())
		assert.True(t, h.manager.IsAuthenticated())
	})
}

func TestManager_Tracing(t *testing.T) {
	ctx := context.Background()

	t.Run("login and refresh wrap their backend calls", func(t *testing.T) {
		recorder := telemetrytest.RecordSpans(t)
		h := newHarness(t, time.Hour)

		h.login(t)
		require.NoError(t, h.manager.RefreshAccessToken(ctx))

		login := telemetrytest.Ended(recorder, "session.Login")
		require.Len(t, login, 1)
		refresh := telemetrytest.Ended(recorder, "session.Refresh")
		require.Len(t, refresh, 1)

		requests := telemetrytest.Ended(recorder, "HTTP POST")
		require.Len(t, requests, 2)
		assert.Equal(t, login[0].SpanContext().SpanID(), requests[0].Parent().SpanID())
		assert.Equal(t, refresh[0].SpanContext().SpanID(), requests[1].Parent().SpanID())
	})

	t.Run("failed login is recorded as an error", func(t *testing.T) {
		recorder := telemetrytest.RecordSpans(t)
		h := newHarness(t, time.Hour)
		h.backend.set(func(b *fakeBackend) { b.loginStatus = http.StatusBadRequest })

		_, err := h.manager.Login(ctx, models.Credentials{Email: "a@b.com", Password: "x"})
		require.Error(t, err)

		login := telemetrytest.Ended(recorder, "session.Login")
		require.Len(t, login, 1)
		assert.Equal(t, codes.Error, login[0].Status().Code)
	})
}
