package client

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

// NewRequestCommand builds the `request` command group: submit, list, delete.
func NewRequestCommand(base BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "request", Short: "Service request operations"}

	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new service request",
		RunE: func(cmd *cobra.Command, args []string) error {
			website, _ := cmd.Flags().GetString("website")
			priority, _ := cmd.Flags().GetInt64("priority")
			configStr, _ := cmd.Flags().GetString("config")
			body := map[string]any{"website": website, "priority": priority}
			if configStr != "" {
				var cfg json.RawMessage
				if err := json.Unmarshal([]byte(configStr), &cfg); err != nil {
					return fmt.Errorf("--config must be valid JSON: %w", err)
				}
				body["config"] = cfg
			}
			return postJSON(base, "/v1/requests", body)
		},
	}
	submitCmd.Flags().String("website", "", "Target website")
	submitCmd.Flags().Int64("priority", 0, "Explicit priority (higher first)")
	submitCmd.Flags().String("config", "", "Request config as a JSON object")
	_ = submitCmd.MarkFlagRequired("website")
	cmd.AddCommand(submitCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List service requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")
			q := url.Values{}
			if status != "" {
				q.Set("status", status)
			}
			if limit > 0 {
				q.Set("limit", fmt.Sprint(limit))
			}
			path := "/v1/requests"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			return getJSON(base, path)
		},
	}
	listCmd.Flags().String("status", "", "Filter by status (NEW|PENDING|RUNNING|COMPLETED|ERROR)")
	listCmd.Flags().Int("limit", 0, "Maximum requests to return")
	cmd.AddCommand(listCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Soft-delete a service request",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			return postJSON(base, "/v1/requests/delete", map[string]string{"request_id": id})
		},
	}
	deleteCmd.Flags().String("id", "", "Request ID (hex)")
	_ = deleteCmd.MarkFlagRequired("id")
	cmd.AddCommand(deleteCmd)

	return cmd
}
