package main

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/couriermsg/courier/internal/appctx"
	"github.com/couriermsg/courier/internal/auth"
	"github.com/couriermsg/courier/internal/config"
	"github.com/couriermsg/courier/internal/environment/demo"
	"github.com/couriermsg/courier/internal/pkg/logger"
)

// loginTimeout bounds the full authentication exchange: client
// construction, challenge, identity-provider round trip, and confirmation.
const loginTimeout = 60 * time.Second

// authResult carries the asynchronous authentication outcome back to the
// command goroutine.
type authResult struct {
	userID string
	reason string
	ok     bool
}

type waitCallback struct {
	ch chan authResult
}

func (w *waitCallback) AuthenticationSucceeded(userID string) {
	w.ch <- authResult{userID: userID, ok: true}
}

func (w *waitCallback) AuthenticationFailed(reason string) {
	w.ch <- authResult{reason: reason}
}

func newLoginCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with the configured identity provider",
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

			ctx, cancel := context.WithTimeout(cmd.Context(), loginTimeout)
			defer cancel()

			client, err := reg.AwaitClient(ctx)
			if err != nil {
				return fmt.Errorf("messaging client unavailable: %w", err)
			}
			if client == nil {
				return fmt.Errorf("no messaging environment configured; set environment.app_id in %s", configPath)
			}

			username, password, err := promptCredentials()
			if err != nil {
				return err
			}

			cb := &waitCallback{ch: make(chan authResult, 1)}
			reg.Auth().Authenticate(ctx, auth.Credentials{
				Username: username,
				Secret:   password,
			}, cb)

			select {
			case res := <-cb.ch:
				if !res.ok {
					return fmt.Errorf("authentication failed: %s", res.reason)
				}
				fmt.Printf("Logged in as %s (user id %s)\n", username, res.userID)
			case <-ctx.Done():
				return fmt.Errorf("timed out waiting for authentication")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return reg.Close(shutdownCtx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/messenger.yaml", "path to configuration file")
	return cmd
}

func promptCredentials() (username, password string, err error) {
	fmt.Print("Username: ")
	if _, err = fmt.Scanln(&username); err != nil {
		return "", "", fmt.Errorf("failed to read username: %w", err)
	}

	fmt.Print("Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", "", fmt.Errorf("failed to read password: %w", err)
	}

	return username, string(passwordBytes), nil
}
