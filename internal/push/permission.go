package push

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/backoffice/internal/models"
)

// AndroidRuntimePermissionLevel is the first Android API level that requires
// the POST_NOTIFICATIONS runtime permission.
const AndroidRuntimePermissionLevel = 33

// PermissionStrategy requests and reports notification permission for one platform.
type PermissionStrategy interface {
	RequestPermission(ctx context.Context) (models.PermissionStatus, error)
	HasPermission(ctx context.Context) (models.PermissionStatus, error)
}

// NewPermissionStrategy selects the strategy for the device once at startup.
// Android at or above AndroidRuntimePermissionLevel uses the OS runtime
// permission; iOS and older Android versions use the provider's own request.
func NewPermissionStrategy(platform models.Platform, osVersion int, provider Provider, osPerms OSPermissions) PermissionStrategy {
	if platform == models.PlatformAndroid && osVersion >= AndroidRuntimePermissionLevel && osPerms != nil {
		log.Debug().Int("os_version", osVersion).Msg("using android runtime notification permission")
		return &androidRuntimeStrategy{os: osPerms}
	}

	log.Debug().
		Str("platform", string(platform)).
		Int("os_version", osVersion).
		Msg("using provider notification permission")

	return &providerStrategy{provider: provider}
}

type providerStrategy struct {
	provider Provider
}

func (s *providerStrategy) RequestPermission(ctx context.Context) (models.PermissionStatus, error) {
	return s.provider.RequestPermission(ctx)
}

func (s *providerStrategy) HasPermission(ctx context.Context) (models.PermissionStatus, error) {
	return s.provider.HasPermission(ctx)
}

type androidRuntimeStrategy struct {
	os OSPermissions
}

func (s *androidRuntimeStrategy) RequestPermission(ctx context.Context) (models.PermissionStatus, error) {
	return s.os.RequestPostNotifications(ctx)
}

func (s *androidRuntimeStrategy) HasPermission(ctx context.Context) (models.PermissionStatus, error) {
	return s.os.PostNotificationsStatus(ctx)
}
