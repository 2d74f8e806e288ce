package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(_ *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the storage token and erase stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			if err := a.tokens.Disconnect(cmd.Context()); err != nil {
				return fmt.Errorf("failed to clear credentials: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Credentials cleared")
			return nil
		},
	}
}
