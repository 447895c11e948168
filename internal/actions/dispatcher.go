// Package actions turns classified commands into host side effects and the
// sentence the assistant says back.
package actions

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/comigor/panda-go/internal/host"
	"github.com/comigor/panda-go/internal/intent"
	"github.com/comigor/panda-go/internal/logger"
)

// FailureKind classifies why an action could not be performed.
type FailureKind string

const (
	FailurePermission   FailureKind = "permission"
	FailureNotInstalled FailureKind = "not_installed"
	FailurePlatform     FailureKind = "platform"
)

// Failure is the typed cause behind a failure reply.
type Failure struct {
	Kind   FailureKind
	Action intent.Action
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s %s: %v", f.Action, f.Kind, f.Err)
	}
	return fmt.Sprintf("%s %s", f.Action, f.Kind)
}

func (f *Failure) Unwrap() error { return f.Err }

// ErrUnknownAction is wrapped in a Failure when no handler is registered.
var ErrUnknownAction = errors.New("no handler for action")

// Handler performs one kind of action and returns the reply text.
type Handler func(ctx context.Context, cmd intent.Command) (string, error)

// Dispatcher routes commands to their handler.
type Dispatcher struct {
	host     host.Platform
	now      func() time.Time
	handlers map[intent.Action]Handler
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the time source used for time and date replies.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher returns a Dispatcher with a handler for every intent.Action.
func NewDispatcher(p host.Platform, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		host:     p,
		now:      time.Now,
		handlers: make(map[intent.Action]Handler),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.Register(intent.ActionOpenApp, d.openApp)
	d.Register(intent.ActionOpenSettings, d.openSettings)
	d.Register(intent.ActionWebSearch, d.webSearch)
	d.Register(intent.ActionVideoSearch, d.videoSearch)
	d.Register(intent.ActionCall, d.call)
	d.Register(intent.ActionSendMessage, d.sendMessage)
	d.Register(intent.ActionCamera, d.camera)
	d.Register(intent.ActionMusic, d.music)
	d.Register(intent.ActionAlarm, d.alarm)
	d.Register(intent.ActionCalendarEvent, d.calendarEvent)
	d.Register(intent.ActionCurrentTime, d.currentTime)
	d.Register(intent.ActionCurrentDate, d.currentDate)
	d.Register(intent.ActionBrowser, d.browser)
	return d
}

// Register installs or replaces the handler for action.
func (d *Dispatcher) Register(action intent.Action, h Handler) {
	d.handlers[action] = h
}

// Execute performs cmd. The returned text is always suitable for the user,
// including on failure; the error carries the typed cause.
func (d *Dispatcher) Execute(ctx context.Context, cmd intent.Command) (string, error) {
	log := logger.FromContext(ctx).With("action", cmd.Action, "rule", cmd.Rule)

	h, ok := d.handlers[cmd.Action]
	if !ok {
		log.Error("no handler registered")
		return "Sorry, I don't know how to do that yet.", &Failure{Kind: FailurePlatform, Action: cmd.Action, Err: ErrUnknownAction}
	}

	text, err := h(ctx, cmd)
	if err != nil {
		log.Warn("action failed", "error", err)
		var f *Failure
		if !errors.As(err, &f) {
			err = &Failure{Kind: FailurePlatform, Action: cmd.Action, Err: err}
		}
		return text, err
	}
	log.Debug("action performed", "reply", text)
	return text, nil
}

func platformFailure(action intent.Action, err error) error {
	return &Failure{Kind: FailurePlatform, Action: action, Err: err}
}

func (d *Dispatcher) launch(ctx context.Context, action intent.Action, app intent.App) (string, error) {
	ok, err := d.host.LaunchApplication(ctx, app.Identifier)
	if err != nil {
		return fmt.Sprintf("Sorry, I couldn't open %s. %s", app.Name, err.Error()), platformFailure(action, err)
	}
	if !ok {
		return fmt.Sprintf("%s is not installed on your device. Would you like to install it from Play Store?", app.Name),
			&Failure{Kind: FailureNotInstalled, Action: action}
	}
	return fmt.Sprintf("Opening %s! ✨", app.Name), nil
}

func (d *Dispatcher) openApp(ctx context.Context, cmd intent.Command) (string, error) {
	app := cmd.App
	if app.Identifier == "" {
		app, _ = intent.LookupApp(cmd.Argument)
	}
	return d.launch(ctx, cmd.Action, app)
}

func (d *Dispatcher) openSettings(ctx context.Context, cmd intent.Command) (string, error) {
	if err := d.host.OpenSystemSettings(ctx); err != nil {
		return "Couldn't open settings.", platformFailure(cmd.Action, err)
	}
	return "Opening Settings! ⚙️", nil
}

// GoogleSearchURL returns the web search URL for query.
func GoogleSearchURL(query string) string {
	return "https://www.google.com/search?q=" + url.QueryEscape(query)
}

// YouTubeSearchURL returns the video search URL for query.
func YouTubeSearchURL(query string) string {
	return "https://www.youtube.com/results?search_query=" + url.QueryEscape(query)
}

func (d *Dispatcher) webSearch(ctx context.Context, cmd intent.Command) (string, error) {
	if err := d.host.OpenURL(ctx, GoogleSearchURL(cmd.Argument)); err != nil {
		return "Couldn't perform Google search.", platformFailure(cmd.Action, err)
	}
	return fmt.Sprintf("Searching Google for '%s'! 🔍", cmd.Argument), nil
}

func (d *Dispatcher) videoSearch(ctx context.Context, cmd intent.Command) (string, error) {
	if err := d.host.OpenURL(ctx, YouTubeSearchURL(cmd.Argument)); err != nil {
		return "Couldn't search YouTube.", platformFailure(cmd.Action, err)
	}
	return fmt.Sprintf("Searching YouTube for '%s'! 🎥", cmd.Argument), nil
}

func (d *Dispatcher) call(ctx context.Context, cmd intent.Command) (string, error) {
	granted, err := d.host.HasPermission(ctx, host.PermissionCallPhone)
	if err != nil || !granted {
		return "I need phone permission to make calls. Please grant permission in settings.",
			&Failure{Kind: FailurePermission, Action: cmd.Action, Err: err}
	}
	if err := d.host.OpenDialer(ctx); err != nil {
		return "Couldn't open dialer.", platformFailure(cmd.Action, err)
	}
	if !cmd.HasArgument {
		return "Opening dialer! 📞", nil
	}
	return fmt.Sprintf("Opening dialer to call %s! 📞", cmd.Argument), nil
}

func (d *Dispatcher) sendMessage(ctx context.Context, cmd intent.Command) (string, error) {
	if err := d.host.OpenComposer(ctx, cmd.Argument); err != nil {
		return "Couldn't open SMS app.", platformFailure(cmd.Action, err)
	}
	if !cmd.HasArgument {
		return "Opening SMS! 💬", nil
	}
	return fmt.Sprintf("Opening SMS to send message to %s! 💬", cmd.Argument), nil
}

func (d *Dispatcher) camera(ctx context.Context, cmd intent.Command) (string, error) {
	if err := d.host.OpenCameraCapture(ctx); err != nil {
		return "Couldn't open camera.", platformFailure(cmd.Action, err)
	}
	return "Opening camera! 📸", nil
}

// music falls back to launching the Music app when the host has no generic
// music player.
func (d *Dispatcher) music(ctx context.Context, cmd intent.Command) (string, error) {
	err := d.host.OpenMusicPlayer(ctx)
	if err == nil {
		return "Opening music player! 🎵", nil
	}
	logger.FromContext(ctx).Info("music player unavailable, launching music app", "error", err)
	music, _ := intent.LookupApp("music")
	return d.launch(ctx, cmd.Action, music)
}

func (d *Dispatcher) alarm(ctx context.Context, cmd intent.Command) (string, error) {
	if err := d.host.OpenAlarmCreation(ctx, cmd.Argument); err != nil {
		return "Couldn't set alarm.", platformFailure(cmd.Action, err)
	}
	return "Opening alarm settings! ⏰", nil
}

func (d *Dispatcher) calendarEvent(ctx context.Context, cmd intent.Command) (string, error) {
	if err := d.host.OpenCalendarEventCreation(ctx); err != nil {
		return "Couldn't open calendar.", platformFailure(cmd.Action, err)
	}
	return "Opening calendar to create event! 📅", nil
}

func (d *Dispatcher) currentTime(context.Context, intent.Command) (string, error) {
	return fmt.Sprintf("The current time is %s ⏰", d.now().Format("3:04 PM")), nil
}

func (d *Dispatcher) currentDate(context.Context, intent.Command) (string, error) {
	return fmt.Sprintf("Today is %s 📆", d.now().Format("Monday, January 2, 2006")), nil
}

func (d *Dispatcher) browser(ctx context.Context, cmd intent.Command) (string, error) {
	if err := d.host.OpenURL(ctx, "https://www.google.com"); err != nil {
		return "Couldn't open browser.", platformFailure(cmd.Action, err)
	}
	return "Opening browser! 🌐", nil
}
