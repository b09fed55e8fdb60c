package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and release this device's binding",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				s, err := app.Auth.GetSession(ctx)
				if err != nil {
					return err
				}
				if s == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
					return nil
				}
				if err := app.Service.SignOut(ctx); err != nil {
					return fmt.Errorf("sign out: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
				return nil
			})
		},
	}
}
