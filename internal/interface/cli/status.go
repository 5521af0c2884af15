package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// newStatusCmd summarizes the tracking registry.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize the tracking registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := afero.NewOsFs()
			registry := newRegistryRepo(fs, globalConfig)

			records, err := registry.All(cmd.Context())
			if err != nil {
				return err
			}

			totalUpdates := 0
			provisional := 0
			for _, rec := range records {
				totalUpdates += rec.UpdateCount
				if rec.IsProvisional() {
					provisional++
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "registry: %s\n", registryPath(globalConfig))
			fmt.Fprintf(out, "records: %d (provisional: %d)\n", len(records), provisional)
			fmt.Fprintf(out, "total updates: %d\n", totalUpdates)

			fps := make([]string, 0, len(records))
			for fp := range records {
				fps = append(fps, fp)
			}
			sort.Strings(fps)
			for _, fp := range fps {
				rec := records[fp]
				fmt.Fprintf(out, "  %s -> %s (updates: %d, last: %s)\n",
					fp, displayID(rec.ExternalIssueID), rec.UpdateCount, rec.LastUpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func displayID(externalID string) string {
	if externalID == "" {
		return "<provisional>"
	}
	return externalID
}
