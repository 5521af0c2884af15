package cli

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// newLocksCmd lists lock files; the cleanup subcommand removes expired
// ones. Unexpired locks are never touched.
func newLocksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locks",
		Short: "List named operation locks",
		RunE: func(cmd *cobra.Command, args []string) error {
			locks := newLockRepo(afero.NewOsFs(), globalConfig)
			held, err := locks.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(held) == 0 {
				fmt.Fprintln(out, "no locks")
				return nil
			}
			for _, l := range held {
				state := "held"
				if l.IsExpired() {
					state = "expired"
				}
				fmt.Fprintf(out, "%s  %s  holder=%s pid=%d host=%s expires=%s\n",
					l.Name().String(), state, l.HolderID(), l.PID(), l.Hostname(),
					l.ExpiresAt().Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired lock files",
		RunE: func(cmd *cobra.Command, args []string) error {
			locks := newLockRepo(afero.NewOsFs(), globalConfig)
			removed, err := locks.CleanupExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired lock(s)\n", removed)
			return nil
		},
	})
	return cmd
}
