package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/comigor/panda-go/internal/agent"
	"github.com/comigor/panda-go/internal/config"
	"github.com/comigor/panda-go/internal/history"
	"github.com/comigor/panda-go/internal/logger"
	"github.com/comigor/panda-go/internal/server"
	"github.com/comigor/panda-go/internal/speech"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			config.Watch(cfg, func(p config.PreferencesConfig) {
				logger.L.Info("preferences reloaded", "tts_enabled", p.TTSEnabled, "assistant_name", p.AssistantName)
				a.prefs.Update(p)
			})
			if _, err := a.agent.Greet(ctx); err != nil {
				logger.L.Warn("failed to store welcome message", "error", err)
			}

			if cfg.Log.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
			return server.Run(ctx, addr, server.NewRouter(a.agent))
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant on the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			// Replies go to stdout; keep logs out of the way.
			logger.SetOutput(cmd.ErrOrStderr(), cfg.Log.Format)

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			config.Watch(cfg, a.prefs.Update)

			out := cmd.OutOrStdout()
			speaker := speech.NewGatedSpeaker(speech.NewConsoleSpeaker(out, a.prefs), a.prefs)
			cancel := a.agent.SubscribeLatest(func(r agent.Reply) {
				if err := speaker.Speak(ctx, r.Text); err != nil {
					logger.L.Warn("failed to speak reply", "error", err)
				}
			})
			defer cancel()

			greeted, err := a.agent.Greet(ctx)
			if err != nil {
				logger.L.Warn("failed to store welcome message", "error", err)
			}
			if greeted && !a.prefs.TTSEnabled() {
				fmt.Fprintln(out, agent.WelcomeText)
			}

			return chatLoop(ctx, a, speech.NewLineRecognizer(cmd.InOrStdin()), out)
		},
	}
}

func chatLoop(ctx context.Context, a *app, rec *speech.LineRecognizer, out io.Writer) error {
	for {
		text, err := rec.Listen(ctx)
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}

		reply, err := a.agent.Submit(ctx, text)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		// Spoken replies were already written by the speaker.
		if !a.prefs.TTSEnabled() {
			fmt.Fprintln(out, reply.Text)
		}
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the stored conversation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := history.Open(ctx, cfg.Storage)
			if err != nil {
				return err
			}
			defer store.Close()

			var msgs []history.Message
			if limit > 0 {
				msgs, err = store.Latest(ctx, limit)
				slices.Reverse(msgs)
			} else {
				msgs, err = store.List(ctx)
			}
			if err != nil {
				return err
			}

			name := config.NewPreferences(cfg.Preferences).AssistantName()
			for _, m := range msgs {
				who := name
				if m.FromUser {
					who = "You"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", m.Timestamp.Format("2006-01-02 15:04:05"), who, m.Text)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "only show the N most recent messages")
	return cmd
}

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the whole conversation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := history.Open(ctx, cfg.Storage)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
			return nil
		},
	}
}
