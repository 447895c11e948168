// Package llm reaches the chat-completion endpoint used for input no command
// matched.
package llm

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/panda-go/internal/config"
)

// Client is the slice of *openai.Client the responder needs.
type Client interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

var _ Client = (*openai.Client)(nil)

// NewClient creates a new OpenAI client whose transport enforces the
// configured connect, read and write timeouts.
func NewClient(cfg config.LLMConfig) *openai.Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	config.HTTPClient = newHTTPClient(cfg)

	return openai.NewClientWithConfig(config)
}

func newHTTPClient(cfg config.LLMConfig) *http.Client {
	connect := orDefault(cfg.ConnectTimeout, 30*time.Second)
	read := orDefault(cfg.ReadTimeout, 30*time.Second)
	write := orDefault(cfg.WriteTimeout, 30*time.Second)

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = connect
	transport.ResponseHeaderTimeout = read

	return &http.Client{
		Transport: transport,
		// upper bound for a whole exchange: connect, send the body, read the answer
		Timeout: connect + write + read,
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
