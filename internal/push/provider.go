package push

import (
	"context"

	"github.com/wolfeidau/backoffice/internal/models"
)

// Provider is the push delivery transport. It issues device registration tokens
// and delivers messages; the concrete SDK binding lives outside this module.
type Provider interface {
	RequestPermission(ctx context.Context) (models.PermissionStatus, error)
	HasPermission(ctx context.Context) (models.PermissionStatus, error)
	GetRegistrationToken(ctx context.Context) (string, error)

	// GetColdStartMessage returns the message that launched the app, or nil.
	GetColdStartMessage(ctx context.Context) (*models.PushMessage, error)

	// The On* methods subscribe to provider events and return an unsubscribe func.
	OnForegroundMessage(fn func(models.PushMessage)) (unsubscribe func())
	OnBackgroundTap(fn func(models.PushMessage)) (unsubscribe func())
	OnTokenRotation(fn func(token string)) (unsubscribe func())
}

// OSPermissions is the operating system's runtime notification permission API,
// available on Android 13 (API level 33) and later.
type OSPermissions interface {
	RequestPostNotifications(ctx context.Context) (models.PermissionStatus, error)
	PostNotificationsStatus(ctx context.Context) (models.PermissionStatus, error)
}
