package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// SweepCmd creates the sweep command: a single expiry pass, for cron-style
// external scheduling instead of the in-process ticker
func SweepCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run a single expiry sweep over lapsed offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.Sweeper.Sweep(app.Ctx)
			if err != nil {
				return err
			}

			// Display results
			fmt.Printf("\n✓ Sweep completed\n\n")
			fmt.Printf("Lapsed offers found: %d\n", result.Scanned)
			fmt.Printf("Escalated:           %d\n", result.Escalated)
			fmt.Printf("Exhausted:           %d\n", result.Exhausted)
			fmt.Printf("Skipped (raced):     %d\n", result.Skipped)
			fmt.Printf("Failed:              %d\n\n", result.Failed)

			return nil
		},
	}
}
