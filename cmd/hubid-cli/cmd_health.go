package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "health [live|ready|full]",
		Short:     "Check server health",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"live", "ready", "full"},
		RunE: func(cmd *cobra.Command, args []string) error {
			sub := "full"
			if len(args) > 0 {
				sub = args[0]
			}

			var path string
			switch sub {
			case "live":
				path = "/healthz"
			case "ready":
				path = "/ready"
			case "full":
				path = "/health"
			default:
				return fmt.Errorf("unknown health check: %s", sub)
			}

			data, status, err := newClient().get(path, nil)
			if err != nil {
				return err
			}
			if err := prettyPrint(cmd.OutOrStdout(), data); err != nil {
				return err
			}
			if status == http.StatusServiceUnavailable {
				return fmt.Errorf("server is not healthy")
			}
			return nil
		},
	}
}
