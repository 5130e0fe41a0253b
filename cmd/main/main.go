package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// -----------------------------------------------------------------------------

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// -----------------------------------------------------------------------------

// newRootCmd creates the root command; without a subcommand it serves.
func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "market-feed",
		Short: "Simulated commodity price feed over WebSocket",
		Long: `market-feed keeps a simulated grain market in memory, moves prices on a fixed
tick and pushes the full snapshot to every connected WebSocket subscriber.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (defaults and MARKET_FEED_* env when empty)")

	rootCmd.AddCommand(newServeCmd(&configPath))
	rootCmd.AddCommand(newWatchCmd(&configPath))
	rootCmd.AddCommand(newStatusCmd(&configPath))
	rootCmd.AddCommand(newConfigCmd(&configPath))

	return rootCmd
}
