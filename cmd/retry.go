package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/malwarebo/orderbridge/models"
)

func newRetryCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <retry-item-id>",
		Short: "Force a retry item back to pending, due immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid retry item id %q: %w", args[0], err)
			}

			item, err := a.retryItems.GetByID(uint(id))
			if err != nil {
				return err
			}

			now := time.Now()
			if err := a.retryItems.RecordAttempt(item.ID, item.Attempts, item.LastError, &now, models.RetryPending); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("retry item %d rescheduled for immediate retry", id))
			return nil
		},
	}
}
