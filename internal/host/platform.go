// Package host models the device capabilities the assistant can drive:
// launching apps, opening URLs and system composers, and permission checks.
package host

import (
	"context"
	"errors"
)

// Permission names a runtime permission the host may grant.
type Permission string

const (
	PermissionCallPhone   Permission = "call_phone"
	PermissionSendSMS     Permission = "send_sms"
	PermissionCamera      Permission = "camera"
	PermissionRecordAudio Permission = "record_audio"
)

// ErrUnavailable is returned when the host cannot perform a capability at all.
var ErrUnavailable = errors.New("host capability unavailable")

// Platform is the capability surface supplied by the host environment.
type Platform interface {
	// LaunchApplication starts the app with the given identifier. It reports
	// false when the app is not installed.
	LaunchApplication(ctx context.Context, identifier string) (bool, error)
	OpenURL(ctx context.Context, url string) error
	OpenDialer(ctx context.Context) error
	OpenComposer(ctx context.Context, recipientHint string) error
	OpenCameraCapture(ctx context.Context) error
	OpenMusicPlayer(ctx context.Context) error
	OpenAlarmCreation(ctx context.Context, timeHint string) error
	OpenCalendarEventCreation(ctx context.Context) error
	OpenSystemSettings(ctx context.Context) error
	HasPermission(ctx context.Context, p Permission) (bool, error)
}
