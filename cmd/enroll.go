package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/skybridge/app"
	"github.com/kilianp07/skybridge/core/provision"
	"github.com/kilianp07/skybridge/infra/logger"
	"github.com/kilianp07/skybridge/infra/service"
)

var enrollOpts struct {
	deviceID  string
	username  string
	password  string
	noRestart bool
}

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Provision broker credentials and ACL rules for a device on this hub",
	RunE:  runEnroll,
}

func init() {
	f := enrollCmd.Flags()
	f.StringVar(&enrollOpts.deviceID, "device-id", "", "device identifier")
	f.StringVar(&enrollOpts.username, "username", "", "broker username (default drone_<device-id>)")
	f.StringVar(&enrollOpts.password, "password", "", "broker password")
	f.BoolVar(&enrollOpts.noRestart, "no-restart", false, "do not restart the broker")
	_ = enrollCmd.MarkFlagRequired("device-id")
	_ = enrollCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New("enroll")
	var restarter provision.Restarter
	if !enrollOpts.noRestart {
		restarter = service.NewManager(cfg.Hub.ManagedServices,
			service.WithSudo(cfg.Hub.UseSudo),
			service.WithTimeout(cfg.Hub.RestartTimeout()),
			service.WithLogger(log))
	}
	store := app.NewEnroller(cfg.Hub, restarter, log, nil)
	res, err := store.Enroll(ctx, enrollOpts.deviceID, enrollOpts.username, enrollOpts.password)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "enrolled %s as %s\n", res.DeviceID, res.Username)
	if res.RestartRequired {
		fmt.Fprintf(cmd.OutOrStdout(), "restart %s to apply the new credentials\n", cfg.Hub.BrokerService)
	}
	return nil
}
