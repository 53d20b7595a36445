package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"targetvision/internal/app"
	"targetvision/internal/dto"
	"targetvision/internal/repository/sqlite"

	"github.com/spf13/cobra"
)

var historyOpts struct {
	limit     int
	session   string
	foundOnly bool
	asJSON    bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print recent poses from the pose history",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := app.OpenDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		filter := &dto.PoseFilter{SessionID: historyOpts.session, Limit: historyOpts.limit}
		if historyOpts.foundOnly {
			found := true
			filter.Found = &found
		}

		poses, err := sqlite.NewPoseRepository(db).GetRecent(filter)
		if err != nil {
			return err
		}

		if historyOpts.asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(poses)
		}

		if len(poses) == 0 {
			fmt.Println("No poses recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tTIME\tSOURCE\tHEADING\tDISTANCE\tYAW")
		fmt.Fprintln(w, "--\t----\t------\t-------\t--------\t---")
		for _, p := range poses {
			ts := p.Timestamp.Local().Format("2006-01-02 15:04:05")
			if p.Pose == nil {
				fmt.Fprintf(w, "%d\t%s\t%s\t-\t-\t-\n", p.ID, ts, p.Source)
				continue
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%.1f°\t%.1f in\t%.1f°\n",
				p.ID, ts, p.Source, p.Pose.Heading, p.Pose.Distance, p.Pose.ObjectYaw)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyOpts.limit, "limit", "n", 20, "number of poses to print")
	historyCmd.Flags().StringVar(&historyOpts.session, "session", "", "only poses of this session")
	historyCmd.Flags().BoolVar(&historyOpts.foundOnly, "found", false, "only cycles where the target was found")
	historyCmd.Flags().BoolVar(&historyOpts.asJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(historyCmd)
}
