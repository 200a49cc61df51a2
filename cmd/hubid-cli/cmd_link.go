package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func linkCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "link <kind> <code> <external-id>",
		Short:   "Attach an issuer identity to an account",
		Example: "  hubid-cli link manager MGR-003 user_2abc",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			s, err := openStore(false)
			if err != nil {
				return err
			}
			defer s.Close()

			ok, err := s.accounts.LinkExternalIdentity(cmd.Context(), kind, args[1], args[2])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no %s account with code %q", kind, args[1])
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Linked")
			return nil
		},
	}
}

func unlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <kind> <code>",
		Short: "Detach the issuer identity from an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			s, err := openStore(false)
			if err != nil {
				return err
			}
			defer s.Close()

			ok, err := s.accounts.UnlinkExternalIdentity(cmd.Context(), kind, args[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s %q has no linked identity", kind, args[1])
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Unlinked")
			return nil
		},
	}
}
