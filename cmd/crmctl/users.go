package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"crmflow/internal/core/apperror"
	"crmflow/internal/core/security"
	"crmflow/internal/domain/auth"
)

var (
	userEmail     string
	userPassword  string
	userRole      string
	userFirstName string
	userLastName  string

	seedDomain   string
	seedPassword string
)

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		role, ok := security.ParseRole(userRole)
		if !ok {
			return fmt.Errorf("unknown role %q (one of %s)", userRole, roleList())
		}

		a, ctx, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		u, err := a.Auth.CreateUser(ctx, auth.CreateUserRequest{
			Email:     userEmail,
			Password:  userPassword,
			FirstName: userFirstName,
			LastName:  userLastName,
			Role:      role,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) %s\n", u.Email, u.Role, u.ID)
		return nil
	},
}

// seedCmd creates one account per role, skipping emails already taken.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create one demo account per role",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, ctx, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		for _, role := range security.AllRoles {
			email := strings.ToLower(string(role)) + "@" + seedDomain
			u, err := a.Auth.CreateUser(ctx, auth.CreateUserRequest{
				Email:    email,
				Password: seedPassword,
				Role:     role,
			})
			var appErr *apperror.AppError
			if errors.As(err, &appErr) && appErr.Code == apperror.CodeConflict {
				fmt.Fprintf(cmd.OutOrStdout(), "exists  %s\n", email)
				continue
			}
			if err != nil {
				return fmt.Errorf("seed %s: %w", role, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", u.Email, u.Role)
		}
		return nil
	},
}

func init() {
	f := createUserCmd.Flags()
	f.StringVar(&userEmail, "email", "", "account email")
	f.StringVar(&userPassword, "password", "", "initial password")
	f.StringVar(&userRole, "role", "", "role, one of "+roleList())
	f.StringVar(&userFirstName, "first-name", "", "first name")
	f.StringVar(&userLastName, "last-name", "", "last name")
	_ = createUserCmd.MarkFlagRequired("email")
	_ = createUserCmd.MarkFlagRequired("password")
	_ = createUserCmd.MarkFlagRequired("role")

	seedCmd.Flags().StringVar(&seedDomain, "domain", "example.com", "email domain of seeded accounts")
	seedCmd.Flags().StringVar(&seedPassword, "password", "changeme123", "password of seeded accounts")
}

func roleList() string {
	names := make([]string, len(security.AllRoles))
	for i, r := range security.AllRoles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}
