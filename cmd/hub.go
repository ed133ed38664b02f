package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kilianp07/skybridge/app"
)

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Serve the hub management API",
	RunE:  runHub,
}

func init() {
	rootCmd.AddCommand(hubCmd)
}

func runHub(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := app.NewHub(cfg.Hub)
	if err != nil {
		return err
	}
	return svc.Run(ctx)
}
