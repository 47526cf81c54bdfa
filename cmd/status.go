package cmd

import (
	"fmt"

	"github.com/malwarebo/orderbridge/models"
	"github.com/spf13/cobra"
)

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print every enabled connection's breaker state and recent cycle history",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner()

			conns, err := a.connections.ListEnabled()
			if err != nil {
				return err
			}
			if len(conns) == 0 {
				printWarning("no enabled connections")
				return nil
			}

			for _, dc := range conns {
				printStep(dc.Name, fmt.Sprintf("breaker=%s failures=%d", dc.BreakerState, dc.BreakerFailureCount))
				if dc.LastSuccessAt != nil {
					printInfo("  last success: " + dc.LastSuccessAt.Format("2006-01-02 15:04:05"))
				} else {
					printInfo("  last success: never")
				}

				if dc.HealthCheckedAt != nil {
					healthLine := fmt.Sprintf("  health: %s (checked %s)", dc.HealthStatus, dc.HealthCheckedAt.Format("2006-01-02 15:04:05"))
					if dc.HealthConsecutiveFailures > 0 {
						healthLine += fmt.Sprintf(", %d consecutive failures", dc.HealthConsecutiveFailures)
					}
					if dc.HealthStatus == "unhealthy" {
						printError(healthLine)
					} else {
						printInfo(healthLine)
					}
				} else {
					printInfo("  health: not yet checked")
				}

				logs, err := a.syncLogs.Recent(dc.ID, 5)
				if err != nil {
					printError("  failed to load sync logs: " + err.Error())
					continue
				}
				for _, l := range logs {
					if l.ErrorMessage != "" {
						printError(fmt.Sprintf("  %s found=%d sent=%d failed=%d error=%s",
							l.StartedAt.Format("15:04:05"), l.OrdersFound, l.OrdersSent, l.OrdersFailed, l.ErrorMessage))
					} else {
						printSuccess(fmt.Sprintf("  %s found=%d sent=%d failed=%d",
							l.StartedAt.Format("15:04:05"), l.OrdersFound, l.OrdersSent, l.OrdersFailed))
					}
				}

				pending, err := a.retryItems.ForConnection(dc.ID, models.RetryPending)
				if err != nil {
					printError("  failed to load retry queue: " + err.Error())
					continue
				}
				if len(pending) > 0 {
					printInfo(fmt.Sprintf("  retry queue: %d pending", len(pending)))
				}
			}
			return nil
		},
	}
}
