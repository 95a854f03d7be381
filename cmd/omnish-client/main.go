// Command omnish-client wraps the user's shell in a pty, mirrors the
// session to omnish-daemon, and layers the chat interceptor and ghost
// completion UX over the raw keystroke stream.
package main

import (
	"fmt"
	"os"

	"github.com/omnish-sh/omnish/internal/clientrt"
	"github.com/omnish-sh/omnish/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "omnish-client",
		Short: "run a recorded, chat-augmented shell session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = config.ConfigPath()
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.ApplyDefaults()

			code, err := clientrt.Run(cfg)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
			os.Exit(code)
			return nil
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to config file (default: "+config.ConfigPath()+")")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
