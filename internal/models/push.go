package models

import (
	"fmt"
	"strings"
)

// PermissionStatus is the OS notification permission state.
type PermissionStatus string

const (
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
	PermissionUndetermined PermissionStatus = "undetermined"
)

// Platform identifies the device operating system. The value is sent to the
// backend as the device_type discriminator.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// UnmarshalText implements encoding.TextUnmarshaler for Platform.
func (p *Platform) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "android", "ios":
		*p = Platform(v)
		return nil
	default:
		return fmt.Errorf("invalid platform: %q (valid options: android, ios)", v)
	}
}

// PushMessage is a message delivered by the push provider.
type PushMessage struct {
	MessageID    string            `json:"message_id,omitempty"`
	Notification *PushNotification `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
}

// PushNotification is the structured display payload of a push message.
type PushNotification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

// ReservationID returns the deep-link reservation identifier carried in the data payload.
func (m PushMessage) ReservationID() string {
	if m.Data == nil {
		return ""
	}
	if id := m.Data["reservation_id"]; id != "" {
		return id
	}
	return m.Data["reservationId"]
}
