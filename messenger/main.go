package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "courier",
		Short: "Courier messenger client",
		Long: `Courier is a messaging client runtime. It constructs the messaging SDK
client in the background, manages authentication against the configured
identity provider, and serves message-part images through a caching pipeline.`,
	}

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newLoginCommand())
	cmd.AddCommand(newLogoutCommand())
	cmd.AddCommand(newWhoamiCommand())

	return cmd
}
