package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couriermsg/courier/internal/config"
	"github.com/couriermsg/courier/internal/credstore"
)

func newWhoamiCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the cached login identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			store := credstore.New(cfg.Credentials.File, []byte(cfg.Credentials.Secret))
			creds, err := store.Load()
			if err != nil {
				return fmt.Errorf("failed to read cached credentials: %w", err)
			}
			if creds == nil {
				fmt.Println("Not logged in")
				return nil
			}

			fmt.Printf("Logged in as %s\n", creds.Username)
			if cfg.Environment.AppID != "" {
				fmt.Printf("Environment: %s\n", cfg.Environment.AppID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/messenger.yaml", "path to configuration file")
	return cmd
}
