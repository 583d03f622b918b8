package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"qmdoc/core/internal/policy"
	"qmdoc/core/internal/users"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(userCreateCmd(), userSetRoleCmd(), userListCmd(), userPasswordCmd())
	return cmd
}

func userCreateCmd() *cobra.Command {
	var (
		username    string
		password    string
		displayName string
		email       string
		role        string
		canStart    bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			user, err := e.users.Create(cmd.Context(), users.CreateRequest{
				Username:         username,
				Password:         password,
				DisplayName:      displayName,
				Email:            email,
				Role:             policy.NormalizeSystemRole(role),
				CanStartWorkflow: canStart,
			})
			if err != nil {
				return err
			}
			fmt.Printf("created user %s (%s, role %s)\n", user.Username, user.ID, user.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Login name")
	cmd.Flags().StringVar(&password, "password", "", "Initial password (min 8 characters)")
	cmd.Flags().StringVar(&displayName, "display-name", "", "Name shown on documents and signatures")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&role, "role", "USER", "System role (ADMIN, QMB, USER, VIEWER)")
	cmd.Flags().BoolVar(&canStart, "can-start", false, "Allow this user to start workflows")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("password")
	return cmd
}

func userSetRoleCmd() *cobra.Command {
	var (
		role     string
		canStart bool
	)
	cmd := &cobra.Command{
		Use:   "set-role <username>",
		Short: "Change a user's system role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.users.SetRole(cmd.Context(), args[0], policy.NormalizeSystemRole(role), canStart); err != nil {
				return err
			}
			fmt.Printf("updated %s to role %s\n", args[0], policy.NormalizeSystemRole(role))
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "System role (ADMIN, QMB, USER, VIEWER)")
	cmd.Flags().BoolVar(&canStart, "can-start", false, "Allow this user to start workflows")
	cmd.MarkFlagRequired("role")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			accounts, err := e.users.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, user := range accounts {
				start := ""
				if user.CanStartWorkflow {
					start = " [starter]"
				}
				fmt.Printf("%-16s  %-6s  %s%s\n", user.Username, user.Role, user.DisplayName, start)
			}
			return nil
		},
	}
}

func userPasswordCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "set-password <username>",
		Short: "Set a user's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			return e.users.ChangePassword(cmd.Context(), args[0], password)
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "New password (min 8 characters)")
	cmd.MarkFlagRequired("password")
	return cmd
}
