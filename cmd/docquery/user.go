package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUserCmd(opts *rootOptions) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	var email, password string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a user without going through the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.auth.Register(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s)\n", user.ID, user.Email)
			return nil
		},
	}
	createCmd.Flags().StringVar(&email, "email", "", "email address (required)")
	createCmd.Flags().StringVar(&password, "password", "", "password (required)")
	_ = createCmd.MarkFlagRequired("email")
	_ = createCmd.MarkFlagRequired("password")

	userCmd.AddCommand(createCmd)
	return userCmd
}
