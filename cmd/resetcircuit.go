package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newResetCircuitCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-circuit <connection-id>",
		Short: "Force a connection's circuit breaker back to CLOSED",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid connection id %q: %w", args[0], err)
			}
			if err := a.connections.ResetCircuit(uint(id)); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("circuit reset for connection %d", id))
			return nil
		},
	}
}
