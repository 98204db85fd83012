package client

import (
	"github.com/spf13/cobra"
)

// NewConfigCommand builds the `config` command group for live settings.
func NewConfigCommand(base BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Live settings operations"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List settings with current and default values",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON(base, "/v1/config")
		},
	}
	cmd.AddCommand(listCmd)

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Update one setting",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, _ := cmd.Flags().GetString("key")
			value, _ := cmd.Flags().GetString("value")
			return postJSON(base, "/v1/config/update", map[string]string{
				"key": key, "value": value,
			})
		},
	}
	setCmd.Flags().String("key", "", "Setting key")
	setCmd.Flags().String("value", "", "New value")
	_ = setCmd.MarkFlagRequired("key")
	_ = setCmd.MarkFlagRequired("value")
	cmd.AddCommand(setCmd)

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset every setting to its default",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON(base, "/v1/config/reset", map[string]any{})
		},
	}
	cmd.AddCommand(resetCmd)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Insert defaults for missing settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON(base, "/v1/config/init", map[string]any{})
		},
	}
	cmd.AddCommand(initCmd)

	return cmd
}
