package main

import (
	"errors"
	"fmt"

	"github.com/cksportal/hubid/core/domain"
	"github.com/spf13/cobra"
)

func generateCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "generate <kind>",
		Short: "Reserve the next account code for a kind",
		Example: `  hubid-cli generate contractor
  hubid-cli generate crew --count=3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return errors.New("--count must be at least 1")
			}
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}

			s, err := openStore(false)
			if err != nil {
				return err
			}
			defer s.Close()

			for i := 0; i < count; i++ {
				c, err := s.identity.Generate(cmd.Context(), kind)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 1, "number of codes to reserve")
	return cmd
}

func lookupCmd() *cobra.Command {
	var byExternalID bool
	cmd := &cobra.Command{
		Use:   "lookup <code>",
		Short: "Resolve an account by code or linked identity",
		Example: `  hubid-cli lookup con-007
  hubid-cli lookup user_2abc --external-id`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(false)
			if err != nil {
				return err
			}
			defer s.Close()

			var acct *domain.HubAccountRecord
			if byExternalID {
				acct, err = s.identity.FindAccountByExternalID(cmd.Context(), args[0])
			} else {
				acct, err = s.identity.FindAccountByCode(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			if acct == nil {
				return fmt.Errorf("no account matches %q", args[0])
			}
			return printJSON(cmd.OutOrStdout(), acct)
		},
	}
	cmd.Flags().BoolVar(&byExternalID, "external-id", false, "treat the argument as an issuer user id")
	return cmd
}
