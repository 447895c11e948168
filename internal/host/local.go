package host

import (
	"context"
	"slices"
	"sync"

	"github.com/comigor/panda-go/internal/logger"
)

// Effect is a side effect requested from the LocalHost.
type Effect struct {
	Capability string
	Argument   string
}

// LocalHost is a Platform without a device behind it. It logs and records
// every request, grants only the configured permissions, and treats apps as
// installed when InstalledApps is empty or lists them.
type LocalHost struct {
	mu        sync.Mutex
	granted   []Permission
	installed []string
	effects   []Effect
	failures  map[string]error
}

// NewLocalHost returns a LocalHost granting the named permissions.
func NewLocalHost(granted, installedApps []string) *LocalHost {
	h := &LocalHost{failures: make(map[string]error)}
	for _, p := range granted {
		h.granted = append(h.granted, Permission(p))
	}
	h.installed = append(h.installed, installedApps...)
	return h
}

// FailOn makes the named capability return err on every call.
func (h *LocalHost) FailOn(capability string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[capability] = err
}

// Effects returns the side effects performed so far.
func (h *LocalHost) Effects() []Effect {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.effects)
}

func (h *LocalHost) record(ctx context.Context, capability, arg string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.failures[capability]; err != nil {
		logger.FromContext(ctx).Warn("host capability failed", "capability", capability, "error", err)
		return err
	}
	h.effects = append(h.effects, Effect{Capability: capability, Argument: arg})
	logger.FromContext(ctx).Info("host capability invoked", "capability", capability, "argument", arg)
	return nil
}

func (h *LocalHost) LaunchApplication(ctx context.Context, identifier string) (bool, error) {
	h.mu.Lock()
	installed := len(h.installed) == 0 || slices.Contains(h.installed, identifier)
	h.mu.Unlock()
	if !installed {
		logger.FromContext(ctx).Info("application not installed", "identifier", identifier)
		return false, nil
	}
	if err := h.record(ctx, ToolLaunchApplication, identifier); err != nil {
		return false, err
	}
	return true, nil
}

func (h *LocalHost) OpenURL(ctx context.Context, url string) error {
	return h.record(ctx, ToolOpenURL, url)
}

func (h *LocalHost) OpenDialer(ctx context.Context) error {
	return h.record(ctx, ToolOpenDialer, "")
}

func (h *LocalHost) OpenComposer(ctx context.Context, recipientHint string) error {
	return h.record(ctx, ToolOpenComposer, recipientHint)
}

func (h *LocalHost) OpenCameraCapture(ctx context.Context) error {
	return h.record(ctx, ToolOpenCamera, "")
}

func (h *LocalHost) OpenMusicPlayer(ctx context.Context) error {
	return h.record(ctx, ToolOpenMusicPlayer, "")
}

func (h *LocalHost) OpenAlarmCreation(ctx context.Context, timeHint string) error {
	return h.record(ctx, ToolOpenAlarm, timeHint)
}

func (h *LocalHost) OpenCalendarEventCreation(ctx context.Context) error {
	return h.record(ctx, ToolOpenCalendarEvent, "")
}

func (h *LocalHost) OpenSystemSettings(ctx context.Context) error {
	return h.record(ctx, ToolOpenSettings, "")
}

func (h *LocalHost) HasPermission(_ context.Context, p Permission) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Contains(h.granted, p), nil
}

var _ Platform = (*LocalHost)(nil)
