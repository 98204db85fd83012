package client

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

// NewAllocCommand builds the `alloc` command group covering the claim queue.
func NewAllocCommand(base BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "alloc", Short: "Allocation queue operations"}

	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Generate batches for NEW requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON(base, "/v1/alloc/process", map[string]any{})
		},
	}
	cmd.AddCommand(processCmd)

	releaseCmd := &cobra.Command{
		Use:   "release",
		Short: "Return expired claims to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON(base, "/v1/alloc/release-expired", map[string]any{})
		},
	}
	cmd.AddCommand(releaseCmd)

	claimCmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim pending items for a worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			worker, _ := cmd.Flags().GetString("worker")
			max, _ := cmd.Flags().GetInt("max")
			return postJSON(base, "/v1/alloc/claim", map[string]any{
				"worker": worker, "max_items": max,
			})
		},
	}
	claimCmd.Flags().String("worker", "", "Worker identity")
	claimCmd.Flags().Int("max", 0, "Maximum items to claim (0 uses the configured cap)")
	_ = claimCmd.MarkFlagRequired("worker")
	cmd.AddCommand(claimCmd)

	completeCmd := &cobra.Command{
		Use:   "complete",
		Short: "Report an item outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, _ := cmd.Flags().GetString("item")
			outcome, _ := cmd.Flags().GetString("outcome")
			resultStr, _ := cmd.Flags().GetString("result")
			body := map[string]any{"item_id": itemID, "outcome": outcome}
			if resultStr != "" {
				var result json.RawMessage
				if err := json.Unmarshal([]byte(resultStr), &result); err != nil {
					return fmt.Errorf("--result must be valid JSON: %w", err)
				}
				body["result"] = result
			}
			return postJSON(base, "/v1/alloc/complete", body)
		},
	}
	completeCmd.Flags().String("item", "", "Item ID (hex)")
	completeCmd.Flags().String("outcome", "DONE", "Outcome: DONE|FAILED")
	completeCmd.Flags().String("result", "", "Result payload as a JSON value")
	_ = completeCmd.MarkFlagRequired("item")
	cmd.AddCommand(completeCmd)

	pendingCmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending items in claim order",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			q := url.Values{}
			if filter != "" {
				q.Set("filter", filter)
			}
			if limit > 0 {
				q.Set("limit", fmt.Sprint(limit))
			}
			path := "/v1/alloc/pending"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			return getJSON(base, path)
		},
	}
	pendingCmd.Flags().String("filter", "", `CEL filter, e.g. 'website == "example.com" && score > 50'`)
	pendingCmd.Flags().Int("limit", 0, "Maximum items to return")
	cmd.AddCommand(pendingCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show queue composition",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON(base, "/v1/alloc/stats")
		},
	}
	cmd.AddCommand(statsCmd)

	return cmd
}
