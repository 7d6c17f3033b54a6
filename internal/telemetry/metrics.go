package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/backoffice"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Session metrics
	LoginsTotal         metric.Int64Counter
	LoginFailuresTotal  metric.Int64Counter
	LogoutsTotal        metric.Int64Counter
	RefreshTotal        metric.Int64Counter
	RefreshFailureTotal metric.Int64Counter
	RefreshDuration     metric.Float64Histogram
	SessionExpiredTotal metric.Int64Counter

	// Push metrics
	DeviceRegistrationsTotal        metric.Int64Counter
	DeviceRegistrationFailuresTotal metric.Int64Counter

	// Notification metrics
	PushMessagesTotal     metric.Int64Counter
	ListenerFailuresTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = NewMetrics(otel.GetMeterProvider())
	})
	return metrics
}

// NewMetrics creates all metric instruments from the given provider.
func NewMetrics(provider metric.MeterProvider) *Metrics {
	meter := provider.Meter(meterName)

	m := &Metrics{}

	m.LoginsTotal, _ = meter.Int64Counter(
		"backoffice.session.logins.total",
		metric.WithDescription("Total number of successful logins"),
		metric.WithUnit("{login}"),
	)

	m.LoginFailuresTotal, _ = meter.Int64Counter(
		"backoffice.session.login_failures.total",
		metric.WithDescription("Total number of failed logins"),
		metric.WithUnit("{login}"),
	)

	m.LogoutsTotal, _ = meter.Int64Counter(
		"backoffice.session.logouts.total",
		metric.WithDescription("Total number of logouts, including forced ones"),
		metric.WithUnit("{logout}"),
	)

	m.RefreshTotal, _ = meter.Int64Counter(
		"backoffice.session.refresh.total",
		metric.WithDescription("Total number of access token refresh attempts"),
		metric.WithUnit("{refresh}"),
	)

	m.RefreshFailureTotal, _ = meter.Int64Counter(
		"backoffice.session.refresh.failures.total",
		metric.WithDescription("Total number of failed access token refreshes"),
		metric.WithUnit("{refresh}"),
	)

	m.RefreshDuration, _ = meter.Float64Histogram(
		"backoffice.session.refresh.duration",
		metric.WithDescription("Duration of access token refresh calls"),
		metric.WithUnit("ms"),
	)

	m.SessionExpiredTotal, _ = meter.Int64Counter(
		"backoffice.session.expired.total",
		metric.WithDescription("Total number of API calls rejected as session expired"),
		metric.WithUnit("{call}"),
	)

	m.DeviceRegistrationsTotal, _ = meter.Int64Counter(
		"backoffice.push.registrations.total",
		metric.WithDescription("Total number of device tokens synced to the backend"),
		metric.WithUnit("{registration}"),
	)

	m.DeviceRegistrationFailuresTotal, _ = meter.Int64Counter(
		"backoffice.push.registration_failures.total",
		metric.WithDescription("Total number of failed device registrations"),
		metric.WithUnit("{registration}"),
	)

	m.PushMessagesTotal, _ = meter.Int64Counter(
		"backoffice.notify.messages.total",
		metric.WithDescription("Total number of push messages received"),
		metric.WithUnit("{message}"),
	)

	m.ListenerFailuresTotal, _ = meter.Int64Counter(
		"backoffice.notify.listener_failures.total",
		metric.WithDescription("Total number of notification listeners that failed or panicked"),
		metric.WithUnit("{failure}"),
	)

	return m
}
