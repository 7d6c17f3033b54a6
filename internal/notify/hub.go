// Package notify turns push provider events into listener fan-out and keeps
// the notification counters in sync with the backend.
package notify

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/backoffice/internal/models"
	"github.com/wolfeidau/backoffice/internal/observer"
	"github.com/wolfeidau/backoffice/internal/push"
	"github.com/wolfeidau/backoffice/internal/session"
	"github.com/wolfeidau/backoffice/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LocalNotifier displays a notification on the device.
type LocalNotifier interface {
	Show(ctx context.Context, title, body string, data map[string]string) error
}

// DeepLinker hands a reservation id to the navigation layer.
type DeepLinker interface {
	OpenReservation(ctx context.Context, reservationID string)
}

// Sessions is the part of the session manager the hub depends on.
type Sessions interface {
	IsAuthenticated() bool
	Subscribe(fn func(session.Change)) (unsubscribe func())
}

// Option configures a Hub.
type Option func(*Hub)

func WithNotifier(n LocalNotifier) Option {
	return func(h *Hub) { h.notifier = n }
}

func WithDeepLinker(l DeepLinker) Option {
	return func(h *Hub) { h.linker = l }
}

// WithDeviceRegistrar re-registers the device when the provider rotates its token.
func WithDeviceRegistrar(d session.DeviceRegistrar) Option {
	return func(h *Hub) { h.devices = d }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// Hub subscribes to the push provider while the session is authenticated.
type Hub struct {
	sessions Sessions
	api      *API
	provider push.Provider
	notifier LocalNotifier
	linker   DeepLinker
	devices  session.DeviceRegistrar
	metrics  *telemetry.Metrics

	foreground *observer.Registry[models.PushMessage]
	opened     *observer.Registry[models.PushMessage]

	// lifecycle serializes attaching and detaching the provider streams.
	lifecycle sync.Mutex

	mu                 sync.Mutex
	ctx                context.Context
	unsubscribeSession func()
	streams            []func()
	coldStartChecked   bool
	counters           models.NotificationCounters
}

func NewHub(sessions Sessions, api *API, provider push.Provider, opts ...Option) *Hub {
	h := &Hub{
		sessions:   sessions,
		api:        api,
		provider:   provider,
		metrics:    telemetry.GetMetrics(),
		foreground: observer.NewRegistry[models.PushMessage]("foreground"),
		opened:     observer.NewRegistry[models.PushMessage]("opened"),
		ctx:        context.Background(),
	}

	for _, opt := range opts {
		opt(h)
	}

	onFailure := func(error) {
		h.metrics.ListenerFailuresTotal.Add(h.context(), 1)
	}
	h.foreground.OnFailure = onFailure
	h.opened.OnFailure = onFailure

	return h
}

// Start follows the session: provider streams are attached while it is
// authenticated and detached when it is not.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.unsubscribeSession != nil {
		h.mu.Unlock()
		return
	}
	h.ctx = context.WithoutCancel(ctx)
	h.unsubscribeSession = h.sessions.Subscribe(h.sessionChanged)
	h.mu.Unlock()

	h.sync()
}

// Close detaches from the provider and the session. It is idempotent.
func (h *Hub) Close() {
	h.mu.Lock()
	unsubscribe := h.unsubscribeSession
	h.unsubscribeSession = nil
	h.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}

	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()
	h.detach()
}

// OnForegroundMessage registers a listener for messages received while the
// app is in the foreground.
func (h *Hub) OnForegroundMessage(fn func(models.PushMessage) error) (remove func()) {
	return h.foreground.Add(fn)
}

// OnNotificationOpened registers a listener for notifications the user tapped.
func (h *Hub) OnNotificationOpened(fn func(models.PushMessage) error) (remove func()) {
	return h.opened.Add(fn)
}

// Counters returns the last fetched notification counters.
func (h *Hub) Counters() models.NotificationCounters {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counters
}

// FetchCounters replaces the local counters with the backend's. It does
// nothing when the session is not authenticated.
func (h *Hub) FetchCounters(ctx context.Context) error {
	if !h.sessions.IsAuthenticated() {
		return nil
	}

	counters, err := h.api.Count(ctx)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.counters = counters
	h.mu.Unlock()

	log.Debug().
		Int("unread", counters.Unread).
		Int("total", counters.Total).
		Msg("notification counters updated")

	return nil
}

func (h *Hub) MarkRead(ctx context.Context, id string) error {
	if err := h.api.MarkRead(ctx, id); err != nil {
		return err
	}
	return h.FetchCounters(ctx)
}

func (h *Hub) MarkAllRead(ctx context.Context) error {
	if err := h.api.MarkAllRead(ctx); err != nil {
		return err
	}
	return h.FetchCounters(ctx)
}

func (h *Hub) ClearAll(ctx context.Context) error {
	if err := h.api.ClearAll(ctx); err != nil {
		return err
	}
	return h.FetchCounters(ctx)
}

// sessionChanged follows the manager's current state rather than the
// snapshot in c, since changes from concurrent transitions can arrive out of
// order.
func (h *Hub) sessionChanged(c session.Change) {
	authenticated, attached := h.sync()
	if !authenticated || attached {
		return
	}

	switch c.Reason {
	case session.ReasonLogin, session.ReasonBootstrap, session.ReasonTenant:
		h.refreshCounters()
	}
}

// sync attaches the provider streams while the hub is started and the session
// is authenticated, and detaches them otherwise. It reports whether the session
// is authenticated and whether this call attached the streams. A fresh attach
// fetches counters and checks the cold-start message on the first attach.
func (h *Hub) sync() (authenticated, attached bool) {
	h.lifecycle.Lock()

	h.mu.Lock()
	started := h.unsubscribeSession != nil
	h.mu.Unlock()

	authenticated = started && h.sessions.IsAuthenticated()
	if !authenticated {
		h.detach()
		h.lifecycle.Unlock()
		return false, false
	}

	attached, checkColdStart := h.attach()
	h.lifecycle.Unlock()

	if !attached {
		return true, false
	}

	if checkColdStart {
		h.checkColdStart()
	}
	h.refreshCounters()

	return true, true
}

// attach subscribes the provider streams if they are not already. The caller
// holds h.lifecycle.
func (h *Hub) attach() (attached, checkColdStart bool) {
	h.mu.Lock()
	if h.streams != nil {
		h.mu.Unlock()
		return false, false
	}
	h.mu.Unlock()

	streams := []func(){
		h.provider.OnForegroundMessage(h.handleForeground),
		h.provider.OnBackgroundTap(h.handleOpened),
		h.provider.OnTokenRotation(h.handleTokenRotation),
	}

	h.mu.Lock()
	h.streams = streams
	checkColdStart = !h.coldStartChecked
	h.coldStartChecked = true
	h.mu.Unlock()

	log.Debug().Msg("push streams attached")

	return true, checkColdStart
}

// detach unsubscribes the provider streams and resets the counters. The caller
// holds h.lifecycle.
func (h *Hub) detach() {
	h.mu.Lock()
	streams := h.streams
	h.streams = nil
	h.counters = models.NotificationCounters{}
	h.mu.Unlock()

	if streams == nil {
		return
	}

	for _, unsubscribe := range streams {
		unsubscribe()
	}

	log.Debug().Msg("push streams detached")
}

func (h *Hub) checkColdStart() {
	msg, err := h.provider.GetColdStartMessage(h.context())
	if err != nil {
		log.Warn().Err(err).Msg("failed to read cold start message")
		return
	}
	if msg != nil {
		h.open(*msg, "cold_start")
	}
}

func (h *Hub) handleForeground(msg models.PushMessage) {
	ctx := h.context()
	h.count(ctx, "foreground")

	if title, body, ok := displayText(msg); ok && h.notifier != nil {
		if err := h.notifier.Show(ctx, title, body, msg.Data); err != nil {
			log.Warn().Err(err).Str("message_id", msg.MessageID).Msg("failed to show local notification")
		}
	}

	h.refreshCounters()
	h.foreground.Dispatch(msg)
}

func (h *Hub) handleOpened(msg models.PushMessage) {
	h.open(msg, "tap")
}

func (h *Hub) open(msg models.PushMessage, source string) {
	ctx := h.context()
	h.count(ctx, source)

	if id := msg.ReservationID(); id != "" && h.linker != nil {
		log.Debug().Str("reservation_id", id).Str("source", source).Msg("opening reservation")
		h.linker.OpenReservation(ctx, id)
	}

	h.opened.Dispatch(msg)
}

func (h *Hub) handleTokenRotation(string) {
	log.Info().Msg("push token rotated, re-registering device")
	if h.devices != nil {
		h.devices.RegisterDevice(h.context())
	}
}

func (h *Hub) refreshCounters() {
	if err := h.FetchCounters(h.context()); err != nil {
		log.Warn().Err(err).Msg("failed to refresh notification counters")
	}
}

func (h *Hub) count(ctx context.Context, kind string) {
	h.metrics.PushMessagesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (h *Hub) context() context.Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ctx
}
