// Command motorctl is the operator CLI: seeding, user management and job triggers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "motorctl",
	Short:         "Operate a MotorCRM installation",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(seedCmd, usersCmd, jobsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "motorctl:", err)
		os.Exit(1)
	}
}
