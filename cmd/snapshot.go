package cmd

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openswoop/rosterwatch/pkg/report"
)

// snapshotCmd represents the snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot [term]",
	Short: "Export the stored baseline of a term to a CSV file",
	Long: `Writes the snapshot the next sync will compare against, one row per
course and instructor.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		termArg(args)
		if cfg.Term == "" {
			return errors.New("term is required")
		}
		if err := cfg.ValidateStorage(); err != nil {
			return err
		}

		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		store, err := snapshotStore(cfg, db)
		if err != nil {
			return err
		}
		snapshot, err := store.LoadSnapshot(cmd.Context(), cfg.Term)
		if err != nil {
			return err
		}
		if snapshot == nil {
			return fmt.Errorf("no snapshot stored for term %s", cfg.Term)
		}

		fileName := output
		if fileName == "" {
			fileName = fmt.Sprintf("snapshot_%s.csv", cfg.Term)
		}
		if err := report.WriteCsvFile(report.Snapshot(*snapshot), fileName); err != nil {
			return err
		}
		log.Info().Int("courses", len(snapshot.Courses)).Str("file", fileName).Msg("Wrote snapshot")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.Flags().StringVarP(&output, "output", "o", "", `Output file, "-" for stdout (default: snapshot_<term>.csv)`)
}
