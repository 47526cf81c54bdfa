package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newMigrateCommand reports migration status; PersistentPreRunE has already
// opened the store and applied any pending migrations by the time this
// runs, mirroring how the engine always migrates on startup rather than
// requiring a separate apply step.
func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Show applied and pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := a.db.MigrationStatus()
			if err != nil {
				return err
			}
			for _, s := range statuses {
				if s.Applied {
					printSuccess(fmt.Sprintf("%s %s (applied)", s.Version, s.Name))
				} else {
					printWarning(fmt.Sprintf("%s %s (pending)", s.Version, s.Name))
				}
			}
			return nil
		},
	}
}
