package cli

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// newDoctorCmd verifies the state layout and parses every persisted
// document. Corrupt files are reported, never repaired or removed; the
// forensic state is preserved for inspection.
func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the health of persisted engine state",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := afero.NewOsFs()
			out := cmd.OutOrStdout()
			problems := 0

			for _, dir := range []string{lockDir(globalConfig), attemptsDir(globalConfig)} {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					fmt.Fprintf(out, "WARN: %s missing (run init)\n", dir)
				}
			}

			registry := newRegistryRepo(fs, globalConfig)
			if records, err := registry.All(cmd.Context()); err != nil {
				fmt.Fprintf(out, "NG: registry: %v\n", err)
				problems++
			} else {
				fmt.Fprintf(out, "OK: registry (%d records)\n", len(records))
			}

			locks := newLockRepo(fs, globalConfig)
			if held, err := locks.List(cmd.Context()); err != nil {
				fmt.Fprintf(out, "NG: locks: %v\n", err)
				problems++
			} else {
				expired := 0
				for _, l := range held {
					if l.IsExpired() {
						expired++
					}
				}
				fmt.Fprintf(out, "OK: locks (%d held, %d expired)\n", len(held)-expired, expired)
			}

			attempts := newAttemptLog(fs, globalConfig)
			if err := attempts.Verify(cmd.Context()); err != nil {
				fmt.Fprintf(out, "NG: attempt logs: %v\n", err)
				problems++
			} else {
				fmt.Fprintln(out, "OK: attempt logs")
			}

			if problems > 0 {
				return fmt.Errorf("doctor found %d problem(s)", problems)
			}
			return nil
		},
	}
}
