package main

import (
	"fmt"
	"os"

	"targetvision/internal/app"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <dir>",
	Short: "Estimate target poses for every image in a directory and store them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := app.ListImages(args[0])
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("No images found")
			return nil
		}

		bar := progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("🎯 Analyzing"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)

		found, failed := 0, 0
		session, err := app.Snapshot(cmd.Context(), cfg, log, files, func(r app.SnapshotResult) {
			switch {
			case r.Err != nil:
				failed++
			case r.Pose != nil:
				found++
			}
			bar.Add(1)
		})
		bar.Finish()
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}

		fmt.Printf("✅ %d images, target found in %d, %d failed\n", len(files), found, failed)
		fmt.Printf("🗄️  Session %s in %s\n", session, cfg.DatabasePath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
}
