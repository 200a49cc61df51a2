package main

import (
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func auditCmd() *cobra.Command {
	var actor, subject, eventType string
	var limit int

	cmd := &cobra.Command{
		Use:     "audit",
		Short:   "Query audit events",
		Example: "  hubid-cli audit --subject=CON-007 --limit=20",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if actor != "" {
				q.Set("actor", actor)
			}
			if subject != "" {
				q.Set("subject", subject)
			}
			if eventType != "" {
				q.Set("type", eventType)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}

			data, _, err := newClient().get("/api/admin/audit", q)
			if err != nil {
				return err
			}
			return prettyPrint(cmd.OutOrStdout(), data)
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "filter by actor")
	cmd.Flags().StringVar(&subject, "subject", "", "filter by subject code")
	cmd.Flags().StringVar(&eventType, "type", "", "filter by event type")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum events (server default 50)")
	return cmd
}
