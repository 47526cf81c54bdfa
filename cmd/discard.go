package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newDiscardCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <retry-item-id>",
		Short: "Mark a retry item discarded without another delivery attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid retry item id %q: %w", args[0], err)
			}
			if err := a.retryItems.Discard(uint(id)); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("retry item %d discarded", id))
			return nil
		},
	}
}
