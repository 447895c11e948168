package main

import (
	"context"
	"errors"

	"github.com/comigor/panda-go/internal/actions"
	"github.com/comigor/panda-go/internal/agent"
	"github.com/comigor/panda-go/internal/config"
	"github.com/comigor/panda-go/internal/history"
	"github.com/comigor/panda-go/internal/host"
	"github.com/comigor/panda-go/internal/intent"
	"github.com/comigor/panda-go/internal/llm"
	"github.com/comigor/panda-go/internal/logger"
)

// app owns the long-lived resources of a running assistant.
type app struct {
	prefs   *config.Preferences
	store   history.Store
	agent   *agent.Agent
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := history.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a := &app{
		prefs:   config.NewPreferences(cfg.Preferences),
		store:   store,
		closers: []func() error{store.Close},
	}

	platform, err := newPlatform(ctx, cfg.Host)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if c, ok := platform.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	var client llm.Client
	if cfg.LLM.Configured() {
		client = llm.NewClient(cfg.LLM)
	} else {
		logger.L.Warn("llm api key not configured; fallback answers are disabled")
	}

	a.agent = agent.New(
		intent.NewMatcher(nil),
		actions.NewDispatcher(platform),
		llm.NewResponder(client, cfg.LLM),
		store,
	)
	return a, nil
}

// newPlatform connects to the configured MCP device server, or falls back
// to the local host.
func newPlatform(ctx context.Context, cfg config.HostConfig) (host.Platform, error) {
	if cfg.MCPServer == nil || cfg.MCPServer.Type == "" {
		logger.L.Info("no MCP server configured; using local host")
		return host.NewLocalHost(cfg.GrantedPermissions, cfg.InstalledApps), nil
	}
	h, err := host.NewMCPHost(ctx, *cfg.MCPServer)
	if err != nil {
		return nil, err
	}
	logger.L.Info("connected to MCP host", "name", cfg.MCPServer.Name, "type", cfg.MCPServer.Type)
	return h, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
