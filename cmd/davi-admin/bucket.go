package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"davi/internal/services"
)

func (a *admin) bucketCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bucket",
		Short: "Inspect and create buckets",
	}

	var userID int64
	list := &cobra.Command{
		Use:   "list",
		Short: "List a user's buckets with their balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withFinance(cmd.Context(), func(f *services.Finance) error {
				buckets, err := f.ListBuckets(cmd.Context(), userID)
				if err != nil {
					return err
				}
				if len(buckets) == 0 {
					a.printf("no buckets\n")
					return nil
				}
				tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tPERCENT\tBALANCE\tTYPE")
				for _, b := range buckets {
					fmt.Fprintf(tw, "%d\t%s\t%g\t%s\t%s\n", b.ID, b.Name, b.Percent, b.Balance, b.Type)
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().Int64Var(&userID, "user", 0, "Owner user id")
	_ = list.MarkFlagRequired("user")

	var (
		createUser  int64
		name        string
		bucketType  string
		percent     float64
		description string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withFinance(cmd.Context(), func(f *services.Finance) error {
				id, err := f.CreateBucket(cmd.Context(), createUser, name, bucketType, percent, description)
				if err != nil {
					return err
				}
				a.printf("created bucket %d\n", id)
				return nil
			})
		},
	}
	create.Flags().Int64Var(&createUser, "user", 0, "Owner user id")
	create.Flags().StringVar(&name, "name", "", "Bucket name")
	create.Flags().StringVar(&bucketType, "type", "", "Bucket type label")
	create.Flags().Float64Var(&percent, "percent", 0, "Share of auto distributions, 0-100")
	create.Flags().StringVar(&description, "description", "", "Free-form description")
	_ = create.MarkFlagRequired("user")
	_ = create.MarkFlagRequired("name")

	cmd.AddCommand(list, create)
	return cmd
}
