package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/malwarebo/orderbridge/breaker"
	"github.com/malwarebo/orderbridge/scheduler"
)

func newTestCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "test <connection-id>",
		Short: "Run a single dry-run poll cycle without recording deliveries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid connection id %q: %w", args[0], err)
			}

			dc, err := a.connections.GetByID(uint(id))
			if err != nil {
				return err
			}

			printStep("1/1", fmt.Sprintf("running dry-run cycle for %q", dc.Name))
			result := scheduler.RunOnce(cmd.Context(), scheduler.Config{
				HTTPTimeout:      a.cfg.HTTPTimeout(),
				RetryMaxAttempts: a.cfg.RetryMaxAttempts,
				BreakerConfig: breaker.Config{
					FailureThreshold:     a.cfg.CBFailureThreshold,
					RecoveryTimeout:      a.cfg.CBRecoveryTimeout(),
					HalfOpenSuccessCount: a.cfg.CBHalfOpenSuccesses,
				},
			}, a.connections, a.sentOrders, a.retryItems, a.syncLogs, dc)

			if result.Err != nil {
				printError(result.Err.Error())
				return result.Err
			}
			if result.SkippedOpen {
				printWarning("circuit is open; cycle skipped")
				return nil
			}
			printSuccess(fmt.Sprintf("found=%d sent=%d failed=%d", result.OrdersFound, result.OrdersSent, result.OrdersFailed))
			return nil
		},
	}
}
