package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comigor/panda-go/internal/actions"
	"github.com/comigor/panda-go/internal/config"
	"github.com/comigor/panda-go/internal/history"
	"github.com/comigor/panda-go/internal/host"
	"github.com/comigor/panda-go/internal/intent"
	"github.com/comigor/panda-go/internal/llm"
)

type mockResponder struct {
	mu    sync.Mutex
	calls []string
	reply string
	err   error
	block chan struct{}
	// ctxErr is ctx.Err() as seen when Respond returns.
	ctxErr error
}

func (m *mockResponder) Respond(ctx context.Context, message string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, message)
	m.mu.Unlock()
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	m.ctxErr = ctx.Err()
	m.mu.Unlock()
	return m.reply, m.err
}

func (m *mockResponder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockLLM counts chat-completion requests.
type mockLLM struct {
	mu    sync.Mutex
	calls int
}

func (m *mockLLM) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return openai.ChatCompletionResponse{}, nil
}

type fixture struct {
	agent     *Agent
	host      *host.LocalHost
	store     history.Store
	responder *mockResponder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := host.NewLocalHost([]string{string(host.PermissionCallPhone)}, nil)
	store := history.NewMemoryStore()
	resp := &mockResponder{reply: "Pandas mostly eat bamboo."}
	a := New(intent.NewMatcher(nil), actions.NewDispatcher(h), resp, store)
	return &fixture{agent: a, host: h, store: store, responder: resp}
}

func TestProcess_CommandSkipsResponder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, input := range []string{"open youtube", "what time is it", "call mom", "search for cats"} {
		reply, err := f.agent.Process(ctx, input)
		require.NoError(t, err, input)
		assert.Equal(t, SourceCommand, reply.Source, input)
		require.NotNil(t, reply.Command)
		assert.NotEmpty(t, reply.TurnID)
	}
	assert.Zero(t, f.responder.callCount(), "responder must not run when a command matched")
	assert.Len(t, f.host.Effects(), 3)
}

func TestProcess_CommandReplyIsPersisted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply, err := f.agent.Process(ctx, "Open YouTube")
	require.NoError(t, err)
	assert.Equal(t, "Opening YouTube! ✨", reply.Text)
	assert.Equal(t, intent.ActionOpenApp, reply.Command.Action)
	assert.NoError(t, reply.Err)

	msgs, err := f.store.List(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Opening YouTube! ✨", msgs[0].Text)
	assert.False(t, msgs[0].FromUser)
	assert.Equal(t, reply.Message.ID, msgs[0].ID)
}

func TestProcess_FallbackWhenUnmatched(t *testing.T) {
	f := newFixture(t)

	reply, err := f.agent.Process(context.Background(), "what do pandas eat")
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, reply.Source)
	assert.Nil(t, reply.Command)
	assert.Equal(t, "Pandas mostly eat bamboo.", reply.Text)
	assert.Equal(t, []string{"what do pandas eat"}, f.responder.calls)
}

func TestProcess_UnconfiguredKeyMakesNoNetworkCall(t *testing.T) {
	client := &mockLLM{}
	cfg := config.LLMConfig{APIKey: config.UnconfiguredAPIKey, Model: "gpt-3.5-turbo"}
	store := history.NewMemoryStore()
	a := New(intent.NewMatcher(nil), actions.NewDispatcher(host.NewLocalHost(nil, nil)), llm.NewResponder(client, cfg), store)

	reply, err := a.Process(context.Background(), "tell me a joke")
	require.NoError(t, err)
	assert.Equal(t, llm.ConfigurationText, reply.Text)
	assert.ErrorIs(t, reply.Err, llm.ErrNotConfigured)
	assert.Zero(t, client.calls)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSubmit_PersistsUserMessageFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.agent.Submit(ctx, "  open camera ")
	require.NoError(t, err)

	msgs, err := f.agent.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "open camera", msgs[0].Text)
	assert.True(t, msgs[0].FromUser)
	assert.Equal(t, "Opening camera! 📸", msgs[1].Text)
	assert.False(t, msgs[1].FromUser)

	_, err = f.agent.Submit(ctx, "   ")
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestClear_HasMessagesFalse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.agent.Submit(ctx, "hello there")
	require.NoError(t, err)
	has, err := f.agent.HasMessages(ctx)
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, f.agent.Clear(ctx))
	has, err = f.agent.HasMessages(ctx)
	require.NoError(t, err)
	assert.False(t, has)
	n, err := f.agent.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSubmit_ConcurrentTurnsPersistAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.agent.Submit(ctx, fmt.Sprintf("question number %d", i))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs, err := f.agent.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	var users []string
	for _, m := range msgs {
		if m.FromUser {
			users = append(users, m.Text)
		}
	}
	assert.ElementsMatch(t, []string{"question number 0", "question number 1"}, users)
	assert.Equal(t, 2, f.responder.callCount())
}

func TestSubscribeLatest_AfterPersist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		got     []Reply
		counted []int
	)
	cancel := f.agent.SubscribeLatest(func(r Reply) {
		n, err := f.store.Count(ctx)
		assert.NoError(t, err)
		mu.Lock()
		got = append(got, r)
		counted = append(counted, n)
		mu.Unlock()
	})

	reply, err := f.agent.Process(ctx, "open settings")
	require.NoError(t, err)

	cancel()
	_, err = f.agent.Process(ctx, "open settings")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, reply.TurnID, got[0].TurnID)
	assert.Equal(t, []int{1}, counted, "reply is stored before it is published")
}

func TestLoading(t *testing.T) {
	f := newFixture(t)
	f.responder.block = make(chan struct{})
	require.False(t, f.agent.Loading())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := f.agent.Process(context.Background(), "tell me something")
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool { return f.responder.callCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, f.agent.Loading())
	close(f.responder.block)
	<-done
	assert.False(t, f.agent.Loading())
}

func TestGreet_OnlyOnEmptyHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var greetings []Reply
	f.agent.SubscribeLatest(func(r Reply) { greetings = append(greetings, r) })

	sent, err := f.agent.Greet(ctx)
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = f.agent.Greet(ctx)
	require.NoError(t, err)
	assert.False(t, sent)

	msgs, err := f.agent.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, WelcomeText, msgs[0].Text)
	require.Len(t, greetings, 1)
	assert.Equal(t, SourceGreeting, greetings[0].Source)
}

func TestLatestAndDelete(t *testing.T) {
	now := time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)
	store := history.NewMemoryStore()
	a := New(intent.NewMatcher(nil), actions.NewDispatcher(host.NewLocalHost(nil, nil)), &mockResponder{reply: "ok"}, store,
		WithClock(func() time.Time {
			now = now.Add(time.Second)
			return now
		}))
	ctx := context.Background()

	first, err := a.AddMessage(ctx, "one", true)
	require.NoError(t, err)
	_, err = a.AddMessage(ctx, "two", false)
	require.NoError(t, err)

	latest, err := a.Latest(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "two", latest[0].Text)

	require.NoError(t, a.DeleteMessage(ctx, first.ID))
	require.ErrorIs(t, a.DeleteMessage(ctx, first.ID), history.ErrNotFound)

	var snaps int
	cancel := a.SubscribeMessages(func([]history.Message) { snaps++ })
	defer cancel()
	require.NoError(t, a.Clear(ctx))
	assert.Equal(t, 1, snaps)
}
