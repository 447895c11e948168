// Package agent runs one conversation turn: classify the input, perform the
// matched command or consult the fallback responder, persist the reply, and
// publish it to listeners.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless" // FSM library
	"github.com/sourcegraph/conc"

	"github.com/comigor/panda-go/internal/history"
	"github.com/comigor/panda-go/internal/intent"
	"github.com/comigor/panda-go/internal/logger"
)

// WelcomeText greets the user on an empty conversation.
const WelcomeText = "Hello! I'm Panda AI by Max, your personal voice assistant. " +
	"Tap the microphone to speak, or type your message below. " +
	"I can help you open apps, search the web, make calls, and much more!"

// ErrEmptyInput is returned by Submit for blank text.
var ErrEmptyInput = errors.New("empty input")

// FSM States
type FSMState string

const (
	StateIdle        FSMState = "Idle"
	StateClassifying FSMState = "Classifying"
	StateDispatching FSMState = "Dispatching"
	StateConsulting  FSMState = "Consulting"
	StatePersisting  FSMState = "Persisting"
	StatePublishing  FSMState = "Publishing"
	StateDone        FSMState = "Done"  // Terminal: reply stored and published
	StateError       FSMState = "Error" // Terminal: reply could not be stored
)

// FSM Triggers
type FSMTrigger string

const (
	TriggerProcessInput   FSMTrigger = "ProcessInput"
	TriggerCommandMatched FSMTrigger = "CommandMatched"
	TriggerNoMatch        FSMTrigger = "NoMatch"
	TriggerReplyReady     FSMTrigger = "ReplyReady"
	TriggerPersisted      FSMTrigger = "Persisted"
	TriggerPublished      FSMTrigger = "Published"
	TriggerErrorOccurred  FSMTrigger = "ErrorOccurred"
)

// Source tells where a reply came from.
type Source string

const (
	SourceCommand  Source = "command"
	SourceFallback Source = "fallback"
	SourceGreeting Source = "greeting"
)

// Classifier maps raw input to a command.
type Classifier interface {
	Classify(raw string) intent.Result
}

// Dispatcher performs a matched command and returns the reply text.
type Dispatcher interface {
	Execute(ctx context.Context, cmd intent.Command) (string, error)
}

// Responder answers input no command matched.
type Responder interface {
	Respond(ctx context.Context, message string) (string, error)
}

// Reply is the outcome of one turn.
type Reply struct {
	TurnID  string          `json:"turn_id"`
	Text    string          `json:"text"`
	Source  Source          `json:"source"`
	Command *intent.Command `json:"command,omitempty"`
	Message history.Message `json:"message"`
	// Err is the typed cause behind a failure reply (an *actions.Failure or
	// *llm.Error). Text already holds what to tell the user.
	Err error `json:"-"`
}

// Agent is the conversation orchestrator. Concurrent Process calls are not
// serialized; their replies are stored in completion order.
type Agent struct {
	matcher    Classifier
	dispatcher Dispatcher
	responder  Responder
	store      history.Store
	now        func() time.Time

	loading atomic.Int32

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Reply)
}

// Option configures an Agent.
type Option func(*Agent)

// WithClock overrides the time source used to stamp messages.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// New creates a new agent. The store's lifecycle stays with the caller.
func New(matcher Classifier, dispatcher Dispatcher, responder Responder, store history.Store, opts ...Option) *Agent {
	a := &Agent{
		matcher:    matcher,
		dispatcher: dispatcher,
		responder:  responder,
		store:      store,
		now:        time.Now,
		subs:       make(map[int]func(Reply)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Loading reports whether any turn is in progress.
func (a *Agent) Loading() bool {
	return a.loading.Load() > 0
}

// Submit stores text as a user message and then processes it.
func (a *Agent) Submit(ctx context.Context, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, ErrEmptyInput
	}
	if _, err := a.AddMessage(ctx, text, true); err != nil {
		return Reply{}, err
	}
	return a.Process(ctx, text)
}

// Process handles one user message. Commands always win over the fallback
// responder, which is only consulted when nothing matched. The reply is
// persisted before it is published. Cancelling ctx does not abort a turn
// once it has started. The returned error is non-nil only when
// persisting failed; action and fallback failures are reported through
// Reply.Err with a user-facing Reply.Text.
func (a *Agent) Process(ctx context.Context, text string) (Reply, error) {
	// FSM context data
	type fsmContext struct {
		reply     Reply
		command   intent.Command
		lastError error
	}
	turn := &fsmContext{reply: Reply{TurnID: uuid.NewString()}}
	log := logger.FromContext(ctx).With("turn_id", turn.reply.TurnID)

	// A started turn always runs to a stored reply, even if the caller goes
	// away. The fallback client carries its own transport timeouts.
	ctx = context.WithoutCancel(ctx)

	a.loading.Add(1)
	defer a.loading.Add(-1)

	fsm := stateless.NewStateMachineWithMode(StateIdle, stateless.FiringQueued)

	fsm.Configure(StateIdle).
		Permit(TriggerProcessInput, StateClassifying)

	fsm.Configure(StateClassifying).
		OnEntry(func(ctx context.Context, _ ...any) error {
			res := a.matcher.Classify(text)
			if !res.Matched {
				log.Debug("no command matched")
				return fsm.FireCtx(ctx, TriggerNoMatch)
			}
			turn.command = res.Command
			log.Debug("command matched", "action", res.Command.Action, "rule", res.Command.Rule)
			return fsm.FireCtx(ctx, TriggerCommandMatched)
		}).
		Permit(TriggerCommandMatched, StateDispatching).
		Permit(TriggerNoMatch, StateConsulting)

	fsm.Configure(StateDispatching).
		OnEntry(func(ctx context.Context, _ ...any) error {
			cmd := turn.command
			turn.reply.Source = SourceCommand
			turn.reply.Command = &cmd
			turn.reply.Text, turn.reply.Err = a.dispatcher.Execute(ctx, cmd)
			return fsm.FireCtx(ctx, TriggerReplyReady)
		}).
		Permit(TriggerReplyReady, StatePersisting)

	fsm.Configure(StateConsulting).
		OnEntry(func(ctx context.Context, _ ...any) error {
			turn.reply.Source = SourceFallback
			turn.reply.Text, turn.reply.Err = a.responder.Respond(ctx, text)
			return fsm.FireCtx(ctx, TriggerReplyReady)
		}).
		Permit(TriggerReplyReady, StatePersisting)

	fsm.Configure(StatePersisting).
		OnEntry(func(ctx context.Context, _ ...any) error {
			msg := history.Message{Text: turn.reply.Text, Timestamp: a.now()}
			if err := a.store.Append(ctx, &msg); err != nil {
				turn.lastError = fmt.Errorf("persist reply: %w", err)
				return fsm.FireCtx(ctx, TriggerErrorOccurred)
			}
			turn.reply.Message = msg
			return fsm.FireCtx(ctx, TriggerPersisted)
		}).
		Permit(TriggerPersisted, StatePublishing).
		Permit(TriggerErrorOccurred, StateError)

	fsm.Configure(StatePublishing).
		OnEntry(func(ctx context.Context, _ ...any) error {
			a.publish(turn.reply)
			return fsm.FireCtx(ctx, TriggerPublished)
		}).
		Permit(TriggerPublished, StateDone)

	fsm.Configure(StateDone)
	fsm.Configure(StateError).
		OnEntry(func(context.Context, ...any) error {
			if turn.lastError == nil {
				turn.lastError = errors.New("turn ended in error state without a specific error")
			}
			return nil
		})

	if err := fsm.FireCtx(ctx, TriggerProcessInput); err != nil {
		log.Error("turn state machine failed", "error", err)
		return turn.reply, fmt.Errorf("process turn: %w", err)
	}

	state, err := fsm.State(ctx)
	if err != nil {
		return turn.reply, fmt.Errorf("process turn: %w", err)
	}
	switch state {
	case StateDone:
		log.Info("turn complete", "source", turn.reply.Source, "failed", turn.reply.Err != nil)
		return turn.reply, nil
	case StateError:
		log.Error("turn failed", "error", turn.lastError)
		return turn.reply, turn.lastError
	default:
		return turn.reply, fmt.Errorf("turn ended in unexpected state %v", state)
	}
}

// AddMessage stores text as a message without processing it.
func (a *Agent) AddMessage(ctx context.Context, text string, fromUser bool) (history.Message, error) {
	msg := history.Message{Text: text, FromUser: fromUser, Timestamp: a.now()}
	if err := a.store.Append(ctx, &msg); err != nil {
		return history.Message{}, fmt.Errorf("store message: %w", err)
	}
	return msg, nil
}

// Greet stores and publishes the welcome message when the conversation is
// empty. It reports whether a greeting was sent.
func (a *Agent) Greet(ctx context.Context) (bool, error) {
	has, err := a.HasMessages(ctx)
	if err != nil || has {
		return false, err
	}
	msg, err := a.AddMessage(ctx, WelcomeText, false)
	if err != nil {
		return false, err
	}
	a.publish(Reply{TurnID: uuid.NewString(), Text: msg.Text, Source: SourceGreeting, Message: msg})
	return true, nil
}

// HasMessages reports whether the conversation holds any message.
func (a *Agent) HasMessages(ctx context.Context) (bool, error) {
	n, err := a.store.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count messages: %w", err)
	}
	return n > 0, nil
}

// Messages returns the conversation in chronological order.
func (a *Agent) Messages(ctx context.Context) ([]history.Message, error) {
	return a.store.List(ctx)
}

// Latest returns up to n messages, newest first.
func (a *Agent) Latest(ctx context.Context, n int) ([]history.Message, error) {
	return a.store.Latest(ctx, n)
}

// Count returns the number of stored messages.
func (a *Agent) Count(ctx context.Context) (int, error) {
	return a.store.Count(ctx)
}

// DeleteMessage removes one message.
func (a *Agent) DeleteMessage(ctx context.Context, id int64) error {
	return a.store.Delete(ctx, id)
}

// Clear deletes the whole conversation.
func (a *Agent) Clear(ctx context.Context) error {
	if err := a.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	logger.FromContext(ctx).Info("conversation cleared")
	return nil
}

// SubscribeMessages registers fn for full conversation snapshots.
func (a *Agent) SubscribeMessages(fn func([]history.Message)) func() {
	return a.store.Subscribe(fn)
}

// SubscribeLatest registers fn for every published reply. The returned func
// unsubscribes.
func (a *Agent) SubscribeLatest(fn func(Reply)) func() {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	id := a.nextID
	a.nextID++
	a.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			a.subMu.Lock()
			delete(a.subs, id)
			a.subMu.Unlock()
		})
	}
}

func (a *Agent) publish(r Reply) {
	a.subMu.Lock()
	fns := make([]func(Reply), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.subMu.Unlock()

	var wg conc.WaitGroup
	for _, fn := range fns {
		wg.Go(func() { fn(r) })
	}
	wg.Wait()
}
