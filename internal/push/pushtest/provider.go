// Package pushtest provides an in-memory push provider for tests.
package pushtest

import (
	"context"
	"sync"

	"github.com/wolfeidau/backoffice/internal/models"
)

// Provider is a scriptable push provider. Emit* methods deliver events to the
// currently subscribed handlers.
type Provider struct {
	mu sync.Mutex

	Permission models.PermissionStatus
	Token      string
	ColdStart  *models.PushMessage

	nextID     int
	foreground map[int]func(models.PushMessage)
	taps       map[int]func(models.PushMessage)
	rotations  map[int]func(string)
}

// NewProvider returns a provider that has granted permission and issues token.
func NewProvider(token string) *Provider {
	return &Provider{
		Permission: models.PermissionGranted,
		Token:      token,
		foreground: make(map[int]func(models.PushMessage)),
		taps:       make(map[int]func(models.PushMessage)),
		rotations:  make(map[int]func(string)),
	}
}

func (p *Provider) RequestPermission(context.Context) (models.PermissionStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Permission == models.PermissionUndetermined {
		p.Permission = models.PermissionGranted
	}
	return p.Permission, nil
}

func (p *Provider) HasPermission(context.Context) (models.PermissionStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Permission, nil
}

func (p *Provider) GetRegistrationToken(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Token, nil
}

func (p *Provider) GetColdStartMessage(context.Context) (*models.PushMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	msg := p.ColdStart
	p.ColdStart = nil
	return msg, nil
}

func (p *Provider) OnForegroundMessage(fn func(models.PushMessage)) func() {
	return subscribe(p, p.foreground, fn)
}

func (p *Provider) OnBackgroundTap(fn func(models.PushMessage)) func() {
	return subscribe(p, p.taps, fn)
}

func (p *Provider) OnTokenRotation(fn func(string)) func() {
	return subscribe(p, p.rotations, fn)
}

// Subscriptions returns the number of live handlers across all streams.
func (p *Provider) Subscriptions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.foreground) + len(p.taps) + len(p.rotations)
}

// EmitForeground delivers msg to the foreground handlers.
func (p *Provider) EmitForeground(msg models.PushMessage) {
	for _, fn := range snapshot(p, p.foreground) {
		fn(msg)
	}
}

// EmitTap delivers msg to the background-tap handlers.
func (p *Provider) EmitTap(msg models.PushMessage) {
	for _, fn := range snapshot(p, p.taps) {
		fn(msg)
	}
}

// RotateToken replaces the token and notifies the rotation handlers.
func (p *Provider) RotateToken(token string) {
	p.mu.Lock()
	p.Token = token
	p.mu.Unlock()

	for _, fn := range snapshot(p, p.rotations) {
		fn(token)
	}
}

func subscribe[T any](p *Provider, handlers map[int]T, fn T) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	handlers[id] = fn

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(handlers, id)
	}
}

func snapshot[T any](p *Provider, handlers map[int]T) []T {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]T, 0, len(handlers))
	for _, fn := range handlers {
		out = append(out, fn)
	}
	return out
}
