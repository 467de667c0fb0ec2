package main

import (
	"fmt"
	"time"

	"github.com/shallowred/shallowred/pkg/timecontrol"
	"github.com/spf13/cobra"
)

var (
	budgetMoves     int
	budgetRemaining time.Duration
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Print the time budget for one move",
	Long: `Print the time the engine would spend on its next move given the
number of moves it has already played and the time left on its clock.

Examples:
  shallowred budget --moves 30 --remaining 30s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if budgetMoves < 0 {
			return fmt.Errorf("--moves must not be negative")
		}
		fmt.Fprintln(cmd.OutOrStdout(), timecontrol.Allocate(budgetMoves, budgetRemaining))
		return nil
	},
}

func init() {
	budgetCmd.Flags().IntVarP(&budgetMoves, "moves", "m", 0, "Moves already played")
	budgetCmd.Flags().DurationVarP(&budgetRemaining, "remaining", "r", 0, "Time left on the clock")
	rootCmd.AddCommand(budgetCmd)
}
