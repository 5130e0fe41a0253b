package main

import (
	"fmt"
	"strings"

	"market-feed/src/config"
	"market-feed/src/display"
	"market-feed/src/logger"
	"market-feed/src/subscriber"

	"github.com/spf13/cobra"
)

// -----------------------------------------------------------------------------

func newWatchCmd(configPath *string) *cobra.Command {
	var url string
	var reconnect bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Subscribe to a feed and render live prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig(*configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("url") {
				cfg.Subscriber.URL = url
			}
			if cmd.Flags().Changed("reconnect") {
				cfg.Subscriber.Reconnect = reconnect
			}

			// Keep INFO chatter off the rendered screen
			level := cfg.LogLevel
			if strings.ToUpper(level) != "DEBUG" {
				level = "ERROR"
			}
			sub := subscriber.NewSubscriber(cfg.Subscriber, logger.NewLogger(level, "watch"))

			done := make(chan error, 1)
			go func() { done <- sub.Run(cmd.Context()) }()

			render := func() {
				fmt.Print(display.ClearScreen())
				fmt.Println(display.Screen(cfg.Subscriber.URL, sub.Status(), sub.Err(), sub.Snapshot()))
			}
			render()

			for {
				select {
				case <-sub.Changes():
					render()
				case err := <-done:
					render()
					sub.Close()
					return err
				case <-cmd.Context().Done():
					sub.Close()
					<-done
					render()
					return nil
				}
			}
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "feed WebSocket url (overrides subscriber.url)")
	cmd.Flags().BoolVar(&reconnect, "reconnect", false, "reconnect with backoff after the connection drops")

	return cmd
}
