package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/motorcrm/motorcrm/internal/tenancy"
	"github.com/motorcrm/motorcrm/internal/users"
)

var seedOpts struct {
	org           string
	locale        string
	currency      string
	adminEmail    string
	adminName     string
	adminPassword string
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create an organization, its built-in roles and an admin account",
	Long: `Create the organization named by --org together with every permission,
the admin, manager and agent roles, and an admin account.

Running seed again is safe: existing rows are kept.`,
	RunE: runSeed,
}

func init() {
	f := seedCmd.Flags()
	f.StringVar(&seedOpts.org, "org", "", "organization name")
	f.StringVar(&seedOpts.locale, "locale", "en", "organization locale (en or fr)")
	f.StringVar(&seedOpts.currency, "currency", "EUR", "ISO currency code")
	f.StringVar(&seedOpts.adminEmail, "admin-email", "", "email of the admin account")
	f.StringVar(&seedOpts.adminName, "admin-name", "Administrator", "display name of the admin account")
	f.StringVar(&seedOpts.adminPassword, "admin-password", "", "password of the admin account")
	_ = seedCmd.MarkFlagRequired("org")
	_ = seedCmd.MarkFlagRequired("admin-email")
	_ = seedCmd.MarkFlagRequired("admin-password")
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.cleanup()

	org, created, err := e.orgs.Ensure(ctx, tenancy.CreateInput{Name: seedOpts.org, Locale: seedOpts.locale, Currency: seedOpts.currency})
	if err != nil {
		return fmt.Errorf("organization: %w", err)
	}
	if created {
		fmt.Fprintf(cmd.OutOrStdout(), "organization %q created (id %d)\n", org.Name, org.ID)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "organization %q exists (id %d)\n", org.Name, org.ID)
	}

	roles, err := e.rbac.SeedBuiltins(ctx, org.ID)
	if err != nil {
		return fmt.Errorf("roles: %w", err)
	}
	for _, role := range roles {
		fmt.Fprintf(cmd.OutOrStdout(), "role %s: %d permissions\n", role.Name, len(role.Permissions))
	}

	admin, err := e.users.Create(ctx, org.ID, 0, users.CreateUserInput{
		Email:    seedOpts.adminEmail,
		FullName: seedOpts.adminName,
		Password: seedOpts.adminPassword,
		Role:     "admin",
	})
	switch {
	case errors.Is(err, users.ErrEmailTaken):
		fmt.Fprintf(cmd.OutOrStdout(), "admin %s exists\n", seedOpts.adminEmail)
	case err != nil:
		return fmt.Errorf("admin: %w", err)
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "admin %s created (id %d)\n", admin.Email, admin.ID)
	}
	return nil
}
