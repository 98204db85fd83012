package client

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

// NewStatsCommand builds the `stats` command group for rollups.
func NewStatsCommand(base BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "stats", Short: "Completion rollup operations"}

	dailyCmd := &cobra.Command{
		Use:   "daily",
		Short: "List daily rollups",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			q := url.Values{}
			if from != "" {
				q.Set("from", from)
			}
			if to != "" {
				q.Set("to", to)
			}
			path := "/v1/stats/daily"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			return getJSON(base, path)
		},
	}
	dailyCmd.Flags().String("from", "", "Inclusive lower bound (yyyy-mm-dd)")
	dailyCmd.Flags().String("to", "", "Inclusive upper bound (yyyy-mm-dd)")
	cmd.AddCommand(dailyCmd)

	websitesCmd := &cobra.Command{
		Use:   "websites",
		Short: "List per-website rollups",
		RunE: func(cmd *cobra.Command, args []string) error {
			website, _ := cmd.Flags().GetString("website")
			path := "/v1/stats/websites"
			if website != "" {
				path += "?website=" + url.QueryEscape(website)
			}
			return getJSON(base, path)
		},
	}
	websitesCmd.Flags().String("website", "", "Restrict to one website")
	cmd.AddCommand(websitesCmd)

	rebuildCmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild rollups from the whole outcome log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON(base, "/v1/stats/rebuild", map[string]any{})
		},
	}
	cmd.AddCommand(rebuildCmd)

	return cmd
}

// NewAuditCommand builds the `audit` command group.
func NewAuditCommand(base BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "audit", Short: "Audit trail operations"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			sinceMs, _ := cmd.Flags().GetInt64("since-ms")
			q := url.Values{}
			if limit > 0 {
				q.Set("limit", fmt.Sprint(limit))
			}
			if sinceMs > 0 {
				q.Set("since_ms", fmt.Sprint(sinceMs))
			}
			path := "/v1/audit"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			return getJSON(base, path)
		},
	}
	listCmd.Flags().Int("limit", 0, "Maximum events to return")
	listCmd.Flags().Int64("since-ms", 0, "Only events at or after this epoch ms")
	cmd.AddCommand(listCmd)

	return cmd
}
