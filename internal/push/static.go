package push

import (
	"context"

	"github.com/wolfeidau/backoffice/internal/models"
)

// StaticProvider is a Provider for hosts without a push transport, such as the
// CLI. It reports permission as granted when a token is configured and never
// delivers messages.
type StaticProvider struct {
	Token string
}

func (p *StaticProvider) status() models.PermissionStatus {
	if p.Token == "" {
		return models.PermissionDenied
	}
	return models.PermissionGranted
}

func (p *StaticProvider) RequestPermission(context.Context) (models.PermissionStatus, error) {
	return p.status(), nil
}

func (p *StaticProvider) HasPermission(context.Context) (models.PermissionStatus, error) {
	return p.status(), nil
}

func (p *StaticProvider) GetRegistrationToken(context.Context) (string, error) {
	return p.Token, nil
}

func (p *StaticProvider) GetColdStartMessage(context.Context) (*models.PushMessage, error) {
	return nil, nil
}

func (p *StaticProvider) OnForegroundMessage(func(models.PushMessage)) func() { return func() {} }
func (p *StaticProvider) OnBackgroundTap(func(models.PushMessage)) func()     { return func() {} }
func (p *StaticProvider) OnTokenRotation(func(string)) func()                 { return func() {} }
