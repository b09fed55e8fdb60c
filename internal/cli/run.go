package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/liveness"
)

// livenessSignals maps process signals to app lifecycle signals: SIGUSR1 hides the app, SIGUSR2
// brings it back to the foreground and SIGHUP reports regained connectivity.
func livenessSignals(s os.Signal) []liveness.Signal {
	switch s {
	case syscall.SIGUSR1:
		return []liveness.Signal{liveness.Hidden}
	case syscall.SIGUSR2:
		return []liveness.Signal{liveness.Visible, liveness.Focus}
	case syscall.SIGHUP:
		return []liveness.Signal{liveness.Online}
	}
	return nil
}

// Run keeps the session alive until ctx is cancelled or the process is interrupted. The session
// recovery loop and every target share one watcher; the validator follows auth-state changes.
func (a *App) Run(ctx context.Context, targets ...liveness.Target) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := liveness.NewWatcher(a.Log)
	w.Register(a.Recovery)
	for _, t := range targets {
		w.Register(t)
	}

	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGHUP)
	defer signal.Stop(sigs)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-sigs:
				for _, ls := range livenessSignals(s) {
					w.Notify(ls)
				}
			}
		}
	}()

	validated := make(chan struct{})
	go func() {
		defer close(validated)
		_ = a.Validator.Watch(ctx, a.Auth)
	}()

	err := w.Run(ctx)
	w.Wait()
	<-validated
	if ctx.Err() != nil {
		return nil
	}
	return err
}
