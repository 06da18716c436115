package main

import (
	"github.com/spf13/cobra"

	"davi/internal/services"
)

func (a *admin) giantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "giant",
		Short: "Inspect debt payoff progress",
	}

	var userID, giantID int64
	forecast := &cobra.Command{
		Use:   "forecast",
		Short: "Project when a giant will be paid off",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withFinance(cmd.Context(), func(f *services.Finance) error {
				fc, err := f.ForecastGiant(cmd.Context(), userID, giantID)
				if err != nil {
					return err
				}
				a.printf("paid:      %s\n", fc.Paid)
				a.printf("remaining: %s\n", fc.Remaining)
				a.printf("daily:     %.2f\n", fc.DailyRate)
				a.printf("progress:  %.1f%%\n", fc.Progress*100)
				if fc.DaysToPayoff == nil {
					a.printf("payoff:    never at the current weekly goal\n")
				} else {
					a.printf("payoff:    %.0f days\n", *fc.DaysToPayoff)
				}
				return nil
			})
		},
	}
	forecast.Flags().Int64Var(&userID, "user", 0, "Owner user id")
	forecast.Flags().Int64Var(&giantID, "giant", 0, "Giant id")
	_ = forecast.MarkFlagRequired("user")
	_ = forecast.MarkFlagRequired("giant")

	cmd.AddCommand(forecast)
	return cmd
}
