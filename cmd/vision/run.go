package main

import (
	"targetvision/internal/app"

	"github.com/spf13/cobra"
)

var runOpts struct {
	port  int
	debug string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the vision pipeline and the telemetry server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runOpts.port != 0 {
			cfg.Port = runOpts.port
		}
		if runOpts.debug != "" {
			cfg.DebugDisplay = runOpts.debug
		}

		application, err := app.NewApp(cfg, log)
		if err != nil {
			return err
		}
		defer application.Close()

		return application.Run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().IntVar(&runOpts.port, "port", 0, "HTTP port (default: $PORT or 8080)")
	runCmd.Flags().StringVar(&runOpts.debug, "debug", "", "debug display: none, regular, bounding_box, mask, corners, contours")
	rootCmd.AddCommand(runCmd)
}
