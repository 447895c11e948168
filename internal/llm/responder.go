package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/panda-go/internal/config"
	"github.com/comigor/panda-go/internal/logger"
)

// Texts returned to the user when the fallback cannot produce an answer.
const (
	ConfigurationText = "⚠️ Please configure your OpenAI API key to enable AI responses. " +
		"Get your key from https://platform.openai.com/api-keys"
	EmptyReplyText = "I didn't quite understand that. Could you try again?"
)

// ErrorKind classifies fallback failures.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindStatus        ErrorKind = "status"
	KindTransport     ErrorKind = "transport"
)

// ErrNotConfigured is wrapped by configuration errors.
var ErrNotConfigured = errors.New("llm api key not configured")

// Error is the typed cause of a fallback failure.
type Error struct {
	Kind   ErrorKind
	Status int // HTTP status for KindStatus
	Err    error
}

func (e *Error) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("llm %s %d: %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("llm %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// UserText is what the assistant says when this error occurs.
func (e *Error) UserText() string {
	switch e.Kind {
	case KindConfiguration:
		return ConfigurationText
	case KindStatus:
		return fmt.Sprintf("Sorry, I'm having trouble connecting to my AI brain. Error: %d", e.Status)
	default:
		msg := ""
		if e.Err != nil {
			msg = e.Err.Error()
		}
		return fmt.Sprintf("Oops! I encountered an error: %s. Please check your internet connection.", msg)
	}
}

// Responder answers free-form input through a chat-completion endpoint.
type Responder struct {
	client Client
	cfg    config.LLMConfig
}

// NewResponder returns a Responder. client may be nil when cfg carries no
// credential; such a Responder only ever returns the configuration text.
func NewResponder(client Client, cfg config.LLMConfig) *Responder {
	return &Responder{client: client, cfg: cfg}
}

// Respond sends message with the persona prompt and returns the first
// choice. On failure the returned text is the apology to show the user and
// the error is an *Error. There is no retry.
func (r *Responder) Respond(ctx context.Context, message string) (string, error) {
	log := logger.FromContext(ctx)

	if !r.cfg.Configured() || r.client == nil {
		e := &Error{Kind: KindConfiguration, Err: ErrNotConfigured}
		log.Warn("fallback skipped", "error", e)
		return e.UserText(), e
	}

	resp, err := r.client.CreateChatCompletion(ctx, r.request(message))
	if err != nil {
		e := classify(err)
		if e.Kind == KindStatus {
			log.Error("llm returned error status", "status", e.Status, "error", err)
		} else {
			log.Error("error getting llm response", "error", err)
		}
		return e.UserText(), e
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		log.Warn("llm response had no content", "choices", len(resp.Choices))
		return EmptyReplyText, nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (r *Responder) request(message string) openai.ChatCompletionRequest {
	var messages []openai.ChatCompletionMessage
	if prompt := strings.TrimSpace(r.cfg.SystemPrompt); prompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: prompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})

	return openai.ChatCompletionRequest{
		Model:       r.cfg.Model,
		Messages:    messages,
		Temperature: r.cfg.Temperature,
		MaxTokens:   r.cfg.MaxTokens,
	}
}

func classify(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &Error{Kind: KindStatus, Status: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &Error{Kind: KindStatus, Status: reqErr.HTTPStatusCode, Err: err}
	}
	return &Error{Kind: KindTransport, Err: err}
}
