package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	documentdomain "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/document/domain"
	documentservice "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/document/service"
	identitydomain "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/identity/domain"
)

// ErrDeviceReplaced is returned by open when the account was taken over by another device.
var ErrDeviceReplaced = errors.New("this account is now signed in on another device")

func newOpenCommand() *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "open <content-id>",
		Short: "Open a document and keep its signed link fresh until interrupted",
		Long: `Prints a signed link for the document page, then prints a new one whenever it is refreshed.
Send SIGUSR1 when the reader is hidden, SIGUSR2 when it is visible again and SIGHUP when the
network is back.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				return openDocument(ctx, app, args[0], page, cmd.OutOrStdout(), cmd.ErrOrStderr())
			})
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 0, "Page number")
	return cmd
}

func openDocument(ctx context.Context, app *App, contentID string, page int, out, errOut io.Writer) error {
	if err := (documentdomain.Request{ContentID: contentID, DeviceID: "-", Page: page}).Validate(); err != nil {
		return err
	}
	if _, err := app.Recovery.EnsureSession(ctx); err != nil {
		if errors.Is(err, identitydomain.ErrNoSession) {
			return errors.New("not signed in; run reader login")
		}
		return err
	}
	ok, err := app.Validator.Revalidate(ctx)
	if err != nil {
		app.Log.Warn("binding check unavailable; continuing", "error", err)
	}
	if !ok {
		return ErrDeviceReplaced
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		replaced bool
	)
	ref := documentservice.NewURLRefresher(contentID, page, documentdomain.SignedURL{}, app.Documents, app.Recovery, app.Devices, app.URLConfig(), app.Sink, app.Log)
	ref.OnRefreshed = func(u documentdomain.SignedURL) {
		mu.Lock()
		defer mu.Unlock()
		printURL(out, u)
	}
	ref.OnFailed = func(err error) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(errOut, "link refresh failed; the current link may stop working:", err)
	}
	app.Validator.OnInvalidated = func() {
		mu.Lock()
		replaced = true
		mu.Unlock()
		cancel()
	}

	if err := ref.Refresh(ctx); err != nil {
		return fmt.Errorf("open %s: %w", contentID, err)
	}
	if err := app.Run(ctx, ref); err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if replaced {
		return ErrDeviceReplaced
	}
	return nil
}

func printURL(out io.Writer, u documentdomain.SignedURL) {
	fmt.Fprintf(out, "%s\t%s\n", u.ExpiresAt.UTC().Format(time.RFC3339), u.URL)
}
