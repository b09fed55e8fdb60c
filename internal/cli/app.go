// Package cli implements the reader command line: sign-in with device conflict resolution,
// sign-out, device identity and a long-running document session.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/appstate"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/config"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/db"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/db/migrate"
	devicerepo "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/device/repository"
	deviceservice "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/device/service"
	documentservice "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/document/service"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/identity/auth"
	identityservice "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/identity/service"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/logging"
	profilerepo "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/profile/repository"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/retry"
	sessionservice "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/session/service"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/storage"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/supabase"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/telemetry"
	telemetryotel "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/telemetry/otel"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/telemetry/producer"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

const serviceName = "secure-reader"

// App is the wired session core for one process.
type App struct {
	Config *config.Config
	Log    *slog.Logger

	State      *appstate.Store
	Sink       *telemetry.Sink
	Devices    *deviceservice.Store
	Auth       *auth.Manager
	Profiles   profilerepo.Repository
	Documents  *supabase.DocumentClient
	Terminator *sessionservice.Terminator
	Validator  *sessionservice.Validator
	Recovery   *sessionservice.Recovery
	Service    *identityservice.AuthService

	store   *sql.DB
	closers []func(context.Context) error
}

// Open wires every component from cfg. On error everything opened so far is closed.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (app *App, err error) {
	log = logging.OrDefault(log)
	a := &App{Config: cfg, Log: log, State: appstate.NewStore()}
	defer func() {
		if err != nil {
			_ = a.Close(ctx)
		}
	}()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, Version, cfg.OTLPInsecure, log)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	a.closers = append(a.closers, providers.Shutdown)

	metrics, err := telemetry.NewMetrics(providers.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("telemetry metrics: %w", err)
	}
	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	if kp := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic, log); kp != nil {
		var stream producer.Producer = kp
		emitters = append(emitters, stream)
		a.closers = append(a.closers, func(context.Context) error { return stream.Close() })
	}
	a.Sink = &telemetry.Sink{Emitter: telemetry.Multi(emitters...), Metrics: metrics}

	a.store, err = db.OpenSQLite(cfg.StorePath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return a.store.Close() })
	if err := migrate.Run(cfg.StorePath(), "up"); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	kv := storage.NewSQLiteKV(a.store)

	a.Devices = deviceservice.NewStore(devicerepo.NewKVRepository(kv), log)

	client := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseAnonKey)
	a.Auth = auth.NewManager(supabase.NewAuthClient(client), kv, log)
	if _, err := a.Auth.Restore(ctx); err != nil {
		log.Warn("persisted session unreadable; starting signed out", "error", err)
	}
	a.Documents = supabase.NewDocumentClient(client)

	switch cfg.ProfileBackend {
	case config.ProfileBackendPostgres:
		pool, err := db.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { pool.Close(); return nil })
		a.Profiles = profilerepo.NewPostgresRepository(pool)
	default:
		a.Profiles = supabase.NewProfileClient(client, a.Auth)
	}

	policy := retry.Policy{MaxAttempts: cfg.RefreshMaxAttempts, Delay: cfg.RetryDelay()}
	a.Terminator = sessionservice.NewTerminator(a.Auth, a.Profiles, a.Devices, a.State, log)
	a.Validator = sessionservice.NewValidator(a.Auth, a.Profiles, a.Devices, a.State, a.Terminator, a.Sink, log)
	a.Recovery = sessionservice.NewRecovery(a.Auth, a.State, sessionservice.RecoveryConfig{
		Lookahead:      cfg.Lookahead(),
		DwellThreshold: cfg.DwellThreshold(),
		Interval:       cfg.SessionInterval(),
		Policy:         policy,
	}, a.Sink, log)
	a.Service = identityservice.NewAuthService(a.Auth, a.Profiles, a.Devices, a.Terminator, a.State, a.Sink, log)
	return a, nil
}

// URLConfig returns the document URL refresher settings from config.
func (a *App) URLConfig() documentservice.Config {
	return documentservice.Config{
		Interval:        a.Config.URLInterval(),
		Threshold:       a.Config.URLThreshold(),
		HiddenThreshold: a.Config.URLHidden(),
		Policy:          retry.Policy{MaxAttempts: a.Config.RefreshMaxAttempts, Delay: a.Config.RetryDelay()},
	}
}

// Close flushes pending telemetry and releases everything Open acquired, in reverse order.
func (a *App) Close(ctx context.Context) error {
	if !telemetry.Drain(telemetry.ShutdownDrainDuration) {
		a.Log.Warn("telemetry: pending events dropped at shutdown")
	}
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
