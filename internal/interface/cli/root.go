package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tkoike/issuegate/internal/app"
	"github.com/tkoike/issuegate/internal/app/config"
	infraConfig "github.com/tkoike/issuegate/internal/infra/config"
)

// globalConfig holds the loaded configuration for all commands
var globalConfig config.Config

// NewRoot builds the issuegate command tree.
func NewRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "issuegate",
		Short:         "Deduplication and safety gate for automated issue filing",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load configuration before any command runs
			// Priority: setting.yaml > defaults
			baseDir := ".issuegate"
			if home := os.Getenv("ISSUEGATE_HOME"); home != "" {
				baseDir = home
			}

			cfg, err := infraConfig.LoadSettings(baseDir)
			if err != nil {
				return err
			}
			globalConfig = cfg
			app.SetLogger(app.NewLogger(os.Stderr, cfg.StderrLevel()))
			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.AddCommand(newProcessCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newLocksCmd())
	cmd.AddCommand(newHistoryCmd())
	return cmd
}
