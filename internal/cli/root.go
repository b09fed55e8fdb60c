package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/config"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/logging"
)

// NewRootCommand returns the reader command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "reader",
		Short:         "Secure reader session client",
		Long:          `Signs in to the reading service, keeps one device bound per account and keeps document links fresh while reading.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newLoginCommand(),
		newLogoutCommand(),
		newDeviceCommand(),
		newOpenCommand(),
		newMigrateCommand(),
	)
	return root
}

// Execute runs the root command and reports errors on stderr.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// withApp loads config, opens the app, runs fn and closes the app.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("shutdown incomplete", "error", err)
		}
	}()
	return fn(ctx, app)
}
