package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kilianp07/skybridge/app"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Bridge the vehicle link to the MQTT broker",
	RunE:  runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
}

func runBridge(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := app.NewBridge(cfg)
	if err != nil {
		return err
	}
	return svc.Run(ctx)
}
