package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/motorcrm/motorcrm/internal/users"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage user accounts",
}

var userCreateOpts struct {
	orgID    int64
	email    string
	name     string
	password string
	role     string
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an active account with one role",
	RunE:  runUsersCreate,
}

func init() {
	f := usersCreateCmd.Flags()
	f.Int64Var(&userCreateOpts.orgID, "org-id", 0, "organization id")
	f.StringVar(&userCreateOpts.email, "email", "", "login email")
	f.StringVar(&userCreateOpts.name, "name", "", "display name (defaults to the email)")
	f.StringVar(&userCreateOpts.password, "password", "", "initial password, at least 8 characters")
	f.StringVar(&userCreateOpts.role, "role", "agent", "role name: admin, manager or agent")
	_ = usersCreateCmd.MarkFlagRequired("org-id")
	_ = usersCreateCmd.MarkFlagRequired("email")
	_ = usersCreateCmd.MarkFlagRequired("password")
	usersCmd.AddCommand(usersCreateCmd)
}

func runUsersCreate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.cleanup()

	if _, err := e.orgs.Get(ctx, userCreateOpts.orgID); err != nil {
		return fmt.Errorf("organization %d: %w", userCreateOpts.orgID, err)
	}
	name := userCreateOpts.name
	if name == "" {
		name = userCreateOpts.email
	}
	user, err := e.users.Create(ctx, userCreateOpts.orgID, 0, users.CreateUserInput{
		Email:    userCreateOpts.email,
		FullName: name,
		Password: userCreateOpts.password,
		Role:     userCreateOpts.role,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "user %s created (id %d, role %s)\n", user.Email, user.ID, user.Role())
	return nil
}
