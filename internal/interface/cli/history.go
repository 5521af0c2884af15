package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tkoike/issuegate/internal/infra/persistence/sqlite"
)

// newHistoryCmd prints recent decisions from the audit store.
func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent process decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.NewHistoryRepository(globalConfig.HistoryDBPath())
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no decisions recorded")
				return nil
			}
			for _, e := range entries {
				detail := e.ExternalID
				if e.Reason != "" {
					detail = e.Reason
				}
				fmt.Fprintf(out, "%s  %-10s  actor=%s fp=%s %s\n",
					e.DecidedAt.Format(time.RFC3339), e.Action, e.ActorID, e.Fingerprint, detail)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of decisions to show")
	return cmd
}
