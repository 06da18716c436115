package main

import (
	"github.com/spf13/cobra"

	"davi/internal/services"
)

func (a *admin) userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	var password string
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Register a new account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withFinance(cmd.Context(), func(f *services.Finance) error {
				u, err := f.CreateUser(cmd.Context(), args[0], password)
				if err != nil {
					return err
				}
				a.printf("created user %d (%s)\n", u.ID, u.Name)
				return nil
			})
		},
	}
	create.Flags().StringVar(&password, "password", "", "Password for the new account")
	_ = create.MarkFlagRequired("password")

	cmd.AddCommand(create)
	return cmd
}
