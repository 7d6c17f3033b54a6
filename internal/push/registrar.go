// Package push bridges OS notification permission, the push provider's device
// tokens and the backend device-token registry.
package push

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/backoffice/internal/client"
	"github.com/wolfeidau/backoffice/internal/models"
	"github.com/wolfeidau/backoffice/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DeviceTokensPath is the backend device-token registry endpoint.
	DeviceTokensPath = "/api/v1/device-tokens/"

	defaultMaxTries        = 3
	defaultInitialInterval = 500 * time.Millisecond
)

// API is the subset of the authenticated client used for device sync.
type API interface {
	Post(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string, body any) error
}

type registerRequest struct {
	Token      string          `json:"token"`
	DeviceType models.Platform `json:"device_type"`
}

type unregisterRequest struct {
	Token string `json:"token"`
}

// RegistrarConfig configures a Registrar.
type RegistrarConfig struct {
	Platform  models.Platform
	OSVersion int

	// MaxTries bounds backend sync attempts, including the first.
	MaxTries uint

	// InitialInterval is the first retry delay of the exponential backoff.
	InitialInterval time.Duration
}

// Registrar registers this installation's push token with the backend.
// RegisterDevice and UnregisterDevice are best effort: every failure is
// logged and never returned.
type Registrar struct {
	api         API
	provider    Provider
	permissions PermissionStrategy
	platform    models.Platform
	metrics     *telemetry.Metrics

	maxTries        uint
	initialInterval time.Duration
}

// NewRegistrar creates a registrar. osPerms may be nil when the platform has no
// runtime permission API.
func NewRegistrar(cfg RegistrarConfig, api API, provider Provider, osPerms OSPermissions) *Registrar {
	if cfg.MaxTries == 0 {
		cfg.MaxTries = defaultMaxTries
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = defaultInitialInterval
	}

	return &Registrar{
		api:             api,
		provider:        provider,
		permissions:     NewPermissionStrategy(cfg.Platform, cfg.OSVersion, provider, osPerms),
		platform:        cfg.Platform,
		metrics:         telemetry.GetMetrics(),
		maxTries:        cfg.MaxTries,
		initialInterval: cfg.InitialInterval,
	}
}

// SetMetrics overrides the metric instruments, mainly for tests.
func (r *Registrar) SetMetrics(metrics *telemetry.Metrics) {
	r.metrics = metrics
}

// CheckAndRequestPermission returns the current notification permission. When
// force is set and permission is not granted the user is prompted and the
// status re-read. With force unset the call has no side effects.
func (r *Registrar) CheckAndRequestPermission(ctx context.Context, force bool) models.PermissionStatus {
	status, err := r.permissions.HasPermission(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read notification permission")
		status = models.PermissionUndetermined
	}

	if !force || status == models.PermissionGranted {
		return status
	}

	return r.request(ctx)
}

func (r *Registrar) request(ctx context.Context) models.PermissionStatus {
	if _, err := r.permissions.RequestPermission(ctx); err != nil {
		log.Warn().Err(err).Msg("notification permission request failed")
	}

	status, err := r.permissions.HasPermission(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read notification permission")
		return models.PermissionUndetermined
	}

	return status
}

// RegisterDevice prompts for permission if it has not been decided yet, then
// submits the provider's registration token to the backend.
func (r *Registrar) RegisterDevice(ctx context.Context) {
	ctx, span := telemetry.StartSpan(ctx, "push.RegisterDevice",
		trace.WithAttributes(attribute.String("platform", string(r.platform))))
	err := r.register(ctx)
	telemetry.EndSpan(span, err)

	if err != nil {
		r.metrics.DeviceRegistrationFailuresTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("platform", string(r.platform))))
		log.Warn().Err(err).Str("platform", string(r.platform)).Msg("device registration failed")
	}
}

func (r *Registrar) register(ctx context.Context) error {
	status := r.CheckAndRequestPermission(ctx, false)
	if status == models.PermissionUndetermined {
		status = r.request(ctx)
	}

	if status != models.PermissionGranted {
		log.Info().Str("permission", string(status)).Msg("push notifications not permitted, skipping device registration")
		return nil
	}

	token, err := r.provider.GetRegistrationToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to get registration token: %w", err)
	}
	if token == "" {
		log.Info().Msg("push provider returned no registration token")
		return nil
	}

	body := registerRequest{Token: token, DeviceType: r.platform}
	if err := r.sync(ctx, func() error { return r.api.Post(ctx, DeviceTokensPath, body, nil) }); err != nil {
		return fmt.Errorf("failed to register device token: %w", err)
	}

	r.metrics.DeviceRegistrationsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("platform", string(r.platform))))

	log.Info().
		Str("token_fingerprint", Fingerprint(token)).
		Str("platform", string(r.platform)).
		Msg("device registered")

	return nil
}

// UnregisterDevice asks the backend to forget the provider's current token.
func (r *Registrar) UnregisterDevice(ctx context.Context) {
	ctx, span := telemetry.StartSpan(ctx, "push.UnregisterDevice",
		trace.WithAttributes(attribute.String("platform", string(r.platform))))
	err := r.unregister(ctx)
	telemetry.EndSpan(span, err)

	if err != nil {
		log.Warn().Err(err).Msg("device unregister failed")
	}
}

func (r *Registrar) unregister(ctx context.Context) error {
	token, err := r.provider.GetRegistrationToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to get registration token for unregister: %w", err)
	}
	if token == "" {
		return nil
	}

	body := unregisterRequest{Token: token}
	if err := r.sync(ctx, func() error { return r.api.Delete(ctx, DeviceTokensPath, body) }); err != nil {
		return fmt.Errorf("failed to unregister device token %s: %w", Fingerprint(token), err)
	}

	log.Info().Str("token_fingerprint", Fingerprint(token)).Msg("device unregistered")

	return nil
}

// sync retries op with exponential backoff. Client errors are not retried.
func (r *Registrar) sync(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err == nil {
			return struct{}{}, nil
		}
		if isPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		log.Debug().Err(err).Msg("device token sync failed, retrying")
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.maxTries),
	)

	return err
}

func isPermanent(err error) bool {
	if errors.Is(err, client.ErrSessionExpired) || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusBadRequest && !apiErr.Temporary()
	}
	return false
}

// Fingerprint returns a short, non-reversible identifier for a device token
// suitable for logs.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base58.Encode(sum[:])[:12]
}
