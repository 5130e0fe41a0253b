package main

import (
	"fmt"
	"time"

	"market-feed/src/config"
	"market-feed/src/display"
	"market-feed/src/logger"
	"market-feed/src/network"

	"github.com/spf13/cobra"
)

// -----------------------------------------------------------------------------

func newStatusCmd(configPath *string) *cobra.Command {
	var baseURL string
	var showSnapshot bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running server's health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig(*configPath)
			if err != nil {
				return err
			}

			if baseURL == "" {
				baseURL, err = network.BaseURLFromWS(cfg.Subscriber.URL)
				if err != nil {
					return err
				}
			}

			client := network.NewFeedClient(baseURL, logger.NewLogger(cfg.LogLevel, "status"))
			ctx := cmd.Context()

			health, err := client.Health(ctx)
			if err != nil {
				return err
			}
			settings, err := client.Settings(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Server:        %s\n", baseURL)
			fmt.Printf("Status:        %s\n", health.Status)
			fmt.Printf("Connections:   %d\n", health.Connections)
			fmt.Printf("Ticks:         %d\n", health.Ticks)
			fmt.Printf("Last update:   %s\n", time.UnixMilli(health.LatestUpdate).Format(time.RFC3339))
			fmt.Printf("Tick interval: %v\n", time.Duration(settings.TickIntervalMs)*time.Millisecond)
			fmt.Printf("History:       %d points\n", settings.HistoryLength)
			if settings.SessionMIC != "" {
				fmt.Printf("Session:       %s\n", settings.SessionMIC)
			}

			if showSnapshot {
				state, err := client.Snapshot(ctx)
				if err != nil {
					return err
				}
				fmt.Println(display.Snapshot(state))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "", "server base url (derived from subscriber.url when empty)")
	cmd.Flags().BoolVar(&showSnapshot, "snapshot", false, "also print the latest snapshot")

	return cmd
}
