package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tkoike/issuegate/internal/domain/model/report"
)

// newProcessCmd builds the `process` command: one CandidateReport plus an
// actor id in, one Decision out. Suppressions are successful invocations
// (exit 0); only corrupt state or an unusable store exits non-zero.
func newProcessCmd() *cobra.Command {
	var actorID string
	var inputPath string

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Decide whether a candidate report creates, updates or is suppressed",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := readReport(inputPath)
			if err != nil {
				return err
			}

			uc, closeHistory, err := newProcessUseCase(globalConfig)
			if err != nil {
				return err
			}
			defer closeHistory()

			d, err := uc.Process(cmd.Context(), r, actorID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(d)
		},
	}

	cmd.Flags().StringVar(&actorID, "actor", "", "identity attempting the operation (required)")
	cmd.Flags().StringVar(&inputPath, "input", "-", "candidate report JSON file, or - for stdin")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func readReport(path string) (report.CandidateReport, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return report.CandidateReport{}, fmt.Errorf("read candidate report: %w", err)
	}

	var r report.CandidateReport
	if err := json.Unmarshal(data, &r); err != nil {
		return report.CandidateReport{}, fmt.Errorf("parse candidate report: %w", err)
	}
	return r, nil
}
