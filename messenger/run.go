package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/couriermsg/courier/internal/appctx"
	"github.com/couriermsg/courier/internal/config"
	"github.com/couriermsg/courier/internal/environment/demo"
	"github.com/couriermsg/courier/internal/pkg/logger"
)

func newRunCommand() *cobra.Command {
	var (
		configPath string
		logLevel   string
		logFormat  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the messenger runtime",
		Long: `Start the messenger runtime. The messaging client is constructed in the
background; if credentials from a previous login are cached, the session is
resumed automatically.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if !cmd.Flags().Changed("log-level") && cfg.Logging.Level != "" {
				logLevel = cfg.Logging.Level
			}
			if !cmd.Flags().Changed("log-format") && cfg.Logging.Format != "" {
				logFormat = cfg.Logging.Format
			}

			logFile := cfg.Logging.File
			if logFile == "" && !cfg.Logging.Stderr {
				logFile = logger.GetDefaultLogFile()
			}

			log, err := logger.SetupLogger(logger.Config{
				Level:       logger.ParseLevel(logLevel),
				LogFile:     logFile,
				LogToStderr: true,
				Format:      logFormat,
			})
			if err != nil {
				return fmt.Errorf("failed to set up logging: %w", err)
			}

			log.Info("starting courier messenger",
				slog.String("config", configPath),
			)

			env := demo.New(cfg, log)
			reg := appctx.New(env, appctx.Settings{
				Options:           cfg.Options(),
				ImageCacheEntries: cfg.Images.CacheEntries,
				Logger:            logger.WithComponent(log, "runtime"),
			})

			reg.StartCreationCycle()

			routeCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			needLogin, err := reg.Auth().RouteLogin(routeCtx)
			cancel()
			if err != nil {
				log.Warn("login routing unavailable", "error", err)
			} else if needLogin {
				log.Info("no active session, run `courier login` to authenticate")
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			log.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := reg.Close(shutdownCtx); err != nil {
				log.Error("error during shutdown", slog.String("error", err.Error()))
				return err
			}

			log.Info("stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/messenger.yaml", "path to configuration file")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "log format (json, text)")

	return cmd
}
