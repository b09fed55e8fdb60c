package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	profiledomain "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/profile/domain"
)

func newDeviceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "device",
		Short: "Show this installation's device id and whether the account is bound to it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				id, err := app.Devices.GetDeviceID(ctx)
				if err != nil {
					return err
				}
				s, err := app.Auth.GetSession(ctx)
				if err != nil {
					return err
				}
				if s == nil {
					printDevice(cmd.OutOrStdout(), id, nil)
					return nil
				}
				profile, err := app.Profiles.GetByID(ctx, s.UserID)
				if err != nil {
					return fmt.Errorf("fetch profile: %w", err)
				}
				printDevice(cmd.OutOrStdout(), id, profile)
				return nil
			})
		},
	}
}

func printDevice(out io.Writer, id string, profile *profiledomain.Profile) {
	fmt.Fprintf(out, "device:  %s\n", id)
	switch {
	case profile == nil:
		fmt.Fprintln(out, "binding: signed out")
	case profile.BoundDevice() == "":
		fmt.Fprintf(out, "binding: %s is not bound to any device\n", profile.Email)
	case profile.BoundDevice() == id:
		fmt.Fprintf(out, "binding: %s is bound to this device\n", profile.Email)
	default:
		fmt.Fprintf(out, "binding: %s is bound to another device\n", profile.Email)
	}
}
