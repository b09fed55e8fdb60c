package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	identityservice "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/identity/service"
)

// signInService is the part of AuthService the login flow drives.
type signInService interface {
	SignIn(ctx context.Context, email, password string) (*identityservice.SignInResult, error)
	ConfirmLoginOnThisDevice(ctx context.Context) (*identityservice.SignInResult, error)
	CancelDeviceConflict()
}

const conflictPrompt = "This account is signed in on another device. Sign in here and end that session? [y/N] "

func newLoginCommand() *cobra.Command {
	var (
		email    string
		takeover bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and bind this device to the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
				if email == "" {
					var err error
					if email, err = p.Line("Email: "); err != nil {
						return err
					}
				}
				password, err := p.Password("Password: ")
				if err != nil {
					return err
				}
				return login(ctx, app.Service, p, cmd.OutOrStdout(), email, password, takeover)
			})
		},
	}
	cmd.Flags().StringVarP(&email, "email", "u", "", "Account email")
	cmd.Flags().BoolVarP(&takeover, "yes", "y", false, "Take over the account from another device without asking")
	return cmd
}

// login signs in and, when the account is bound elsewhere, asks before taking it over.
func login(ctx context.Context, svc signInService, p *prompter, out io.Writer, email, password string, takeover bool) error {
	res, err := svc.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, identityservice.ErrInvalidCredentials) {
			return errors.New("invalid email or password")
		}
		return fmt.Errorf("sign in: %w", err)
	}

	if res.Conflict {
		ok := takeover
		if !ok {
			if ok, err = p.Confirm(conflictPrompt); err != nil {
				svc.CancelDeviceConflict()
				return err
			}
		}
		if !ok {
			svc.CancelDeviceConflict()
			fmt.Fprintln(out, "Sign-in cancelled; the other device stays signed in.")
			return nil
		}
		if res, err = svc.ConfirmLoginOnThisDevice(ctx); err != nil {
			svc.CancelDeviceConflict()
			return fmt.Errorf("sign in on this device: %w", err)
		}
	}

	fmt.Fprintf(out, "Signed in as %s.\n", res.Profile.Email)
	if !res.Profile.HasAccess {
		fmt.Fprintln(out, "This account does not have reading access yet.")
	}
	return nil
}
