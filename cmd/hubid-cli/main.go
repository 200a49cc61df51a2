package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hubid-cli",
		Short: "Hub identity administration",
		Long: `hubid-cli administers hub accounts.

Database commands (migrate, generate, lookup, link, unlink) read the same
environment as the server (DB_TYPE, DSN, ADMIN_ROLE_POLICY).

Server commands (health, audit) talk to a running instance:
  HUBID_URL    Base URL of the server (default: http://localhost:8080)
  HUBID_TOKEN  Session token of an admin account`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		migrateCmd(),
		generateCmd(),
		lookupCmd(),
		linkCmd(),
		unlinkCmd(),
		healthCmd(),
		auditCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Show CLI version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "hubid-cli %s\n", Version)
			},
		},
	)
	return root
}
