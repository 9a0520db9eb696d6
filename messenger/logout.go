package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/couriermsg/courier/internal/appctx"
	"github.com/couriermsg/courier/internal/config"
	"github.com/couriermsg/courier/internal/environment/demo"
	"github.com/couriermsg/courier/internal/messaging"
	"github.com/couriermsg/courier/internal/pkg/logger"
)

type deauthResult struct {
	reason string
	ok     bool
}

type deauthWaitCallback struct {
	ch chan deauthResult
}

func (w *deauthWaitCallback) DeauthenticationSucceeded(client messaging.Client) {
	w.ch <- deauthResult{ok: true}
}

func (w *deauthWaitCallback) DeauthenticationFailed(client messaging.Client, reason string) {
	w.ch <- deauthResult{reason: reason}
}

func newLogoutCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Drop the messaging session and clear cached credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log, err := logger.SetupLogger(logger.Config{
				Level:  logger.ParseLevel(cfg.Logging.Level),
				Format: cfg.Logging.Format,
			})
			if err != nil {
				return fmt.Errorf("failed to set up logging: %w", err)
			}

			env := demo.New(cfg, log)
			reg := appctx.New(env, appctx.Settings{
				Options: cfg.Options(),
				Logger:  log,
			})
			reg.StartCreationCycle()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			client, err := reg.AwaitClient(ctx)
			if err != nil {
				return fmt.Errorf("messaging client unavailable: %w", err)
			}
			if client == nil {
				// No environment to deauthenticate against; clear local
				// credentials so a stale login does not linger.
				if err := reg.Auth().Flow().ClearCredentials(); err != nil {
					return fmt.Errorf("failed to clear credentials: %w", err)
				}
				fmt.Println("Cleared cached credentials")
				return nil
			}

			cb := &deauthWaitCallback{ch: make(chan deauthResult, 1)}
			reg.Auth().Deauthenticate(ctx, cb)

			select {
			case res := <-cb.ch:
				if !res.ok {
					return fmt.Errorf("deauthentication failed: %s", res.reason)
				}
				fmt.Println("Logged out")
			case <-ctx.Done():
				return fmt.Errorf("timed out waiting for deauthentication")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/messenger.yaml", "path to configuration file")
	return cmd
}
