package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openswoop/rosterwatch/pkg/report"
)

var since string
var output string

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report [term]",
	Short: "Export the change log of a term to a CSV file",
	Long: `Writes every recorded instructor change of a term, oldest first, as CSV.
Use --since to limit the export to changes observed on or after a date.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		termArg(args)
		if cfg.Term == "" {
			return errors.New("term is required")
		}
		if err := cfg.ValidateStorage(); err != nil {
			return err
		}
		from, err := parseSince(since)
		if err != nil {
			return err
		}

		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		records, err := db.ListChanges(cmd.Context(), cfg.Term, from)
		if err != nil {
			return err
		}
		fileName := output
		if fileName == "" {
			fileName = fmt.Sprintf("changes_%s.csv", cfg.Term)
		}
		if err := report.WriteCsvFile(report.Changes(records), fileName); err != nil {
			return err
		}
		log.Info().Int("changes", len(records)).Str("file", fileName).Msg("Wrote change report")
		return nil
	},
}

// parseSince accepts a date or an RFC 3339 timestamp.
func parseSince(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: expected YYYY-MM-DD or RFC 3339", value)
	}
	return t, nil
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&since, "since", "", "Only include changes observed on or after this date")
	reportCmd.Flags().StringVarP(&output, "output", "o", "", `Output file, "-" for stdout (default: changes_<term>.csv)`)
}
