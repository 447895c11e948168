package host

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/comigor/panda-go/internal/config"
	"github.com/comigor/panda-go/internal/logger"
)

// MCP tool names exposed by a host capability server.
const (
	ToolLaunchApplication = "launch_application"
	ToolOpenURL           = "open_url"
	ToolOpenDialer        = "open_dialer"
	ToolOpenComposer      = "open_composer"
	ToolOpenCamera        = "open_camera"
	ToolOpenMusicPlayer   = "open_music_player"
	ToolOpenAlarm         = "open_alarm"
	ToolOpenCalendarEvent = "open_calendar_event"
	ToolOpenSettings      = "open_settings"
	ToolHasPermission     = "has_permission"
)

// MCPClient defines the methods MCPHost expects from an MCP client.
type MCPClient interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// MCPHost implements Platform by calling tools on an MCP server running on
// (or bridging to) the device.
type MCPHost struct {
	client MCPClient
	name   string
}

// NewMCPHost connects to the configured server and initializes the session.
func NewMCPHost(ctx context.Context, cfg config.MCPServerConfig) (*MCPHost, error) {
	var (
		c   *client.Client
		err error
	)
	switch cfg.Type {
	case config.ClientTypeSSE:
		var opts []transport.ClientOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(cfg.Headers))
		}
		c, err = client.NewSSEMCPClient(cfg.URL, opts...)
	case config.ClientTypeStreamableHTTP:
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		c, err = client.NewStreamableHttpClient(cfg.URL, opts...)
	case config.ClientTypeStdio:
		var env []string
		for k, v := range cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", strings.ToUpper(k), v))
		}
		c, err = client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	default:
		return nil, fmt.Errorf("unsupported MCP server type %q (want sse, streamable_http or stdio)", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("create MCP client %s: %w", cfg.Name, err)
	}

	// stdio clients start their transport on construction
	if cfg.Type != config.ClientTypeStdio {
		if err := c.Start(ctx); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("start MCP client %s: %w", cfg.Name, err)
		}
	}

	h := NewMCPHostWithClient(c, cfg.Name)
	if err := h.initialize(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return h, nil
}

// NewMCPHostWithClient wraps an already started client. The session is not
// initialized.
func NewMCPHostWithClient(c MCPClient, name string) *MCPHost {
	return &MCPHost{client: c, name: name}
}

func (h *MCPHost) initialize(ctx context.Context) error {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "panda", Version: "1.0.0"}
	if _, err := h.client.Initialize(ctx, req); err != nil {
		return fmt.Errorf("initialize MCP client %s: %w", h.name, err)
	}
	logger.L.Info("host MCP server initialized", "name", h.name)
	return nil
}

// Close shuts the MCP session down.
func (h *MCPHost) Close() error {
	return h.client.Close()
}

// call invokes tool and returns its first text content.
func (h *MCPHost) call(ctx context.Context, tool string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	logger.FromContext(ctx).Debug("calling host tool", "tool", tool, "arguments", args)
	res, err := h.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("host tool %s: %w", tool, err)
	}
	if res == nil {
		return "", fmt.Errorf("host tool %s: %w", tool, ErrUnavailable)
	}

	var text string
	for _, item := range res.Content {
		if tc, ok := item.(mcp.TextContent); ok {
			text = tc.Text
			break
		}
	}
	if res.IsError {
		if text == "" {
			text = "tool execution resulted in an error"
		}
		return "", fmt.Errorf("host tool %s: %w", tool, errors.New(text))
	}
	return text, nil
}

func (h *MCPHost) callBool(ctx context.Context, tool string, args map[string]any) (bool, error) {
	text, err := h.call(ctx, tool, args)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "true", "yes", "1":
		return true, nil
	case "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("host tool %s: unexpected answer %q", tool, text)
}

func (h *MCPHost) exec(ctx context.Context, tool string, args map[string]any) error {
	_, err := h.call(ctx, tool, args)
	return err
}

func (h *MCPHost) LaunchApplication(ctx context.Context, identifier string) (bool, error) {
	return h.callBool(ctx, ToolLaunchApplication, map[string]any{"identifier": identifier})
}

func (h *MCPHost) OpenURL(ctx context.Context, url string) error {
	return h.exec(ctx, ToolOpenURL, map[string]any{"url": url})
}

func (h *MCPHost) OpenDialer(ctx context.Context) error {
	return h.exec(ctx, ToolOpenDialer, nil)
}

func (h *MCPHost) OpenComposer(ctx context.Context, recipientHint string) error {
	return h.exec(ctx, ToolOpenComposer, map[string]any{"recipient": recipientHint})
}

func (h *MCPHost) OpenCameraCapture(ctx context.Context) error {
	return h.exec(ctx, ToolOpenCamera, nil)
}

func (h *MCPHost) OpenMusicPlayer(ctx context.Context) error {
	return h.exec(ctx, ToolOpenMusicPlayer, nil)
}

func (h *MCPHost) OpenAlarmCreation(ctx context.Context, timeHint string) error {
	return h.exec(ctx, ToolOpenAlarm, map[string]any{"time": timeHint})
}

func (h *MCPHost) OpenCalendarEventCreation(ctx context.Context) error {
	return h.exec(ctx, ToolOpenCalendarEvent, nil)
}

func (h *MCPHost) OpenSystemSettings(ctx context.Context) error {
	return h.exec(ctx, ToolOpenSettings, nil)
}

func (h *MCPHost) HasPermission(ctx context.Context, p Permission) (bool, error) {
	return h.callBool(ctx, ToolHasPermission, map[string]any{"permission": string(p)})
}

var _ Platform = (*MCPHost)(nil)
