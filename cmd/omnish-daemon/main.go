// Command omnish-daemon runs the long-lived omnish session recorder and
// aggregator. It owns the transport socket, the session store, the
// scheduled task runtime, and LLM dispatch.
package main

import (
	"fmt"
	"os"

	"github.com/omnish-sh/omnish/internal/config"
	"github.com/omnish-sh/omnish/internal/daemon"
	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "omnish-daemon",
		Short: "omnish session recorder daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = config.ConfigPath()
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.ApplyDefaults()
			return daemon.Run(cfg)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to config file (default: "+config.ConfigPath()+")")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
