package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/skybridge/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "skybridge",
	Short: "MAVLink to MQTT bridge and hub provisioning service",
	// Without a subcommand the process runs the vehicle bridge.
	RunE:         runBridge,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "/etc/skybridge/skybridge.yaml", "configuration file (optional)")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
