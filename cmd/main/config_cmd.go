package main

import (
	"fmt"

	"market-feed/src/config"

	"github.com/spf13/cobra"
)

// -----------------------------------------------------------------------------

// newConfigCmd creates the config command
func newConfigCmd(configPath *string) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the resolved configuration",
	}

	// config show subcommand
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print defaults merged with file and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig(*configPath)
			if err != nil {
				return err
			}
			data, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	})

	// config write subcommand
	configCmd.AddCommand(&cobra.Command{
		Use:   "write PATH",
		Short: "Write the resolved configuration to a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Save(args[0]); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", args[0])
			return nil
		},
	})

	return configCmd
}
