package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const settingTemplate = `# issuegate configuration. Absent keys use the documented defaults.
#
# lock_ttl_sec: 300            # max lock hold before it is stealable
# rate_limit_max_ops: 10       # granted ops per operation per window
# rate_limit_window_sec: 3600
# loop_threshold: 3            # identical (actor, op) attempts treated as a loop
# loop_window_sec: 3600
# cooldown_sec: 1800           # min interval between an actor's attempts
# fingerprint_length: 16
# tracker_bin: issue-tracker
# tracker_timeout_sec: 60
# stderr_level: info
`

// newInitCmd creates the state layout under the configured home.
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the issuegate state layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := globalConfig.Home()
			dirs := []string{
				filepath.Join(home, "var", "registry"),
				filepath.Join(home, "var", "lock"),
				filepath.Join(home, "var", "attempts"),
				filepath.Join(home, "var", "history"),
			}
			for _, dir := range dirs {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create %s: %w", dir, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", dir)
			}

			settingPath := filepath.Join(home, "setting.yaml")
			if _, err := os.Stat(settingPath); os.IsNotExist(err) {
				if err := os.WriteFile(settingPath, []byte(settingTemplate), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", settingPath, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", settingPath)
			}
			return nil
		},
	}
}
