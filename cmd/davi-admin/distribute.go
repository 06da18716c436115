package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"davi/internal/core"
	"davi/internal/services"
)

type distributeFlags struct {
	userID      int64
	amount      string
	kind        string
	mode        string
	target      int64
	record      bool
	date        string
	description string
}

func (a *admin) distributeCmd() *cobra.Command {
	var fl distributeFlags
	cmd := &cobra.Command{
		Use:   "distribute",
		Short: "Split an amount across a user's buckets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withFinance(cmd.Context(), func(f *services.Finance) error {
				req, err := fl.request(f.Today())
				if err != nil {
					return err
				}
				var dist core.Distribution
				if req.Record {
					dist, err = f.RecordAndDistribute(cmd.Context(), req)
				} else {
					dist, err = f.Distribute(cmd.Context(), req)
				}
				if err != nil {
					return err
				}
				return a.printDistribution(dist)
			})
		},
	}
	cmd.Flags().Int64Var(&fl.userID, "user", 0, "Owner user id")
	cmd.Flags().StringVar(&fl.amount, "amount", "", "Positive amount, e.g. 100 or 12.50")
	cmd.Flags().StringVar(&fl.kind, "kind", string(core.KindIncome), "income or expense")
	cmd.Flags().StringVar(&fl.mode, "mode", string(core.ModeAuto), "auto or explicit")
	cmd.Flags().Int64Var(&fl.target, "target", 0, "Target bucket id for explicit mode")
	cmd.Flags().BoolVar(&fl.record, "record", false, "Also record the unallocated parent movement")
	cmd.Flags().StringVar(&fl.date, "date", "", "Movement date (YYYY-MM-DD), defaults to today")
	cmd.Flags().StringVar(&fl.description, "description", "", "Movement description")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (fl distributeFlags) request(today core.Date) (core.DistributionRequest, error) {
	amount, err := core.ParseAmount(fl.amount)
	if err != nil {
		return core.DistributionRequest{}, fmt.Errorf("--amount: %w", err)
	}
	date := today
	if fl.date != "" {
		if date, err = core.ParseDate(fl.date); err != nil {
			return core.DistributionRequest{}, fmt.Errorf("--date: %w", err)
		}
	}
	return core.DistributionRequest{
		UserID:         fl.userID,
		Amount:         amount,
		Kind:           core.Kind(fl.kind),
		Date:           date,
		Description:    fl.description,
		Mode:           core.Mode(fl.mode),
		TargetBucketID: fl.target,
		Record:         fl.record,
	}, nil
}

func (a *admin) printDistribution(dist core.Distribution) error {
	if dist.ParentID != 0 {
		a.printf("parent movement %d\n", dist.ParentID)
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MOVEMENT\tBUCKET\tAMOUNT")
	for i, e := range dist.Entries {
		var id int64
		if i < len(dist.MovementIDs) {
			id = dist.MovementIDs[i]
		}
		bucket := "-"
		if e.BucketID != nil {
			bucket = fmt.Sprint(*e.BucketID)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", id, bucket, e.Amount)
	}
	return tw.Flush()
}
