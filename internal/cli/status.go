package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored storage credential state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}

			state := a.tokens.State()
			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(state)
			}

			fmt.Fprintf(out, "Connected:   %t\n", state.Authenticated)
			fmt.Fprintf(out, "Refreshable: %t\n", state.CanRefresh)
			if state.Account != "" {
				fmt.Fprintf(out, "Account:     %s\n", state.Account)
			}
			if !state.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "Expires:     %s\n", state.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}
