package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	_ "modernc.org/sqlite"

	"github.com/plaenen/learnerstore/pkg/config"
	cqrsnats "github.com/plaenen/learnerstore/pkg/cqrs/nats"
	"github.com/plaenen/learnerstore/pkg/domain"
	"github.com/plaenen/learnerstore/pkg/eventsourcing"
	"github.com/plaenen/learnerstore/pkg/learner"
	"github.com/plaenen/learnerstore/pkg/learner/progress"
	"github.com/plaenen/learnerstore/pkg/learner/progress/natsquery"
	"github.com/plaenen/learnerstore/pkg/lessons"
	"github.com/plaenen/learnerstore/pkg/lessons/natslookup"
	natsbus "github.com/plaenen/learnerstore/pkg/messaging/nats"
	"github.com/plaenen/learnerstore/pkg/middleware"
	"github.com/plaenen/learnerstore/pkg/observability"
	"github.com/plaenen/learnerstore/pkg/observability/sqliteexport"
	"github.com/plaenen/learnerstore/pkg/projection"
	"github.com/plaenen/learnerstore/pkg/runner"
	"github.com/plaenen/learnerstore/pkg/runtime/embeddednats"
	"github.com/plaenen/learnerstore/pkg/runtime/eventbus"
	"github.com/plaenen/learnerstore/pkg/security/credentials"
	"github.com/plaenen/learnerstore/pkg/store/sqlite"
)

// app holds the wired daemon. Closers run in reverse order after the
// runner has stopped every service.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	tel        *observability.Telemetry
	catalog    *lessons.Catalog
	bus        *eventbus.Service
	commandBus *eventsourcing.CommandBus
	progress   *progress.Store
	services   []runner.Service
	runnerOpts []runner.Option

	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, runnerOpts ...runner.Option) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, runnerOpts: runnerOpts}
	defer func() {
		if err != nil {
			err = errors.Join(err, a.close(context.Background()))
		}
	}()

	if err := a.initTelemetry(ctx); err != nil {
		return nil, err
	}

	clientOpts, serverOpts, err := a.natsAuth(ctx)
	if err != nil {
		return nil, err
	}
	a.initTransport(clientOpts, serverOpts)

	es, err := sqlite.NewEventStore(ctx,
		sqlite.WithDSN(cfg.DBPath),
		sqlite.WithWALMode(true),
	)
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return es.Close() })

	checkpoints, err := sqlite.NewCheckpointStore(ctx, es.DB())
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}

	a.catalog, err = lessons.OpenCatalog(ctx, cfg.CatalogURL, cfg.CatalogKey)
	if err != nil {
		return nil, err
	}
	logger.Info("lesson catalog loaded", slog.Int("lessons", a.catalog.Len()))

	events := observability.InstrumentEventStore(es, a.tel)
	lookup := lessons.Instrument(
		natslookup.NewClient(a.bus.Conn,
			natslookup.WithSubject(cfg.LessonSubject),
			natslookup.WithTimeout(cfg.LookupTimeout),
		),
		a.tel,
	)

	engine := learner.NewEngine(events, lookup,
		eventsourcing.WithEventBus(a.bus),
		eventsourcing.WithLogger(logger),
		eventsourcing.WithMaxConflictRetries(cfg.MaxConflictRetries),
	)

	a.commandBus = eventsourcing.NewCommandBus()
	a.commandBus.Use(middleware.Recovery(logger))
	a.commandBus.Use(middleware.Tracing(a.tel.Tracer()))
	a.commandBus.Use(middleware.Metrics(a.tel.Metrics))
	a.commandBus.Use(middleware.Logging(logger))
	a.commandBus.Use(middleware.Validation())
	learner.Register(a.commandBus, engine)

	a.progress = progress.NewStore()
	projections := projection.NewManager(events, checkpoints,
		projection.WithLogger(logger),
		projection.WithEventBus(a.bus),
		projection.WithEventHook(func(ctx context.Context, name string, evt *domain.Event) {
			a.tel.Metrics.RecordProjectionEvent(ctx, name, evt.EventType)
		}),
		projection.WithErrorHook(func(ctx context.Context, name string, _ error) {
			a.tel.Metrics.RecordProjectionError(ctx, name)
		}),
	)
	projections.Register(a.progress.Projection())

	a.services = append(a.services,
		natslookup.NewService(a.bus.Conn, a.catalog,
			natslookup.WithServiceSubject(cfg.LessonSubject),
			natslookup.WithServiceLogger(logger),
		),
		progressService(projections),
		natsquery.New(a.bus.Conn, a.progress, natsquery.WithLogger(logger)),
		cqrsnats.NewServer(a.bus.Conn, a.commandBus, decodeCommand,
			cqrsnats.WithSubjectPrefix(cfg.CommandPrefix),
			cqrsnats.WithServiceVersion(version),
			cqrsnats.WithLogger(logger),
		),
	)
	return a, nil
}

// initTelemetry exports to SQLite when a telemetry database is configured and
// records nothing otherwise.
func (a *app) initTelemetry(ctx context.Context) error {
	otelCfg := observability.Config{
		ServiceName:     a.cfg.ServiceName,
		ServiceVersion:  version,
		Environment:     a.cfg.Environment,
		TraceSampleRate: a.cfg.TraceSampleRate,
		SetGlobal:       true,
		Logger:          a.logger,
	}

	if a.cfg.TelemetryDBPath != "" {
		db, err := sql.Open("sqlite", a.cfg.TelemetryDBPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
		if err != nil {
			return fmt.Errorf("open telemetry database: %w", err)
		}
		db.SetMaxOpenConns(1)
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })

		exporter, err := sqliteexport.New(ctx, db, sqliteexport.WithRetention(a.cfg.TelemetryRetention))
		if err != nil {
			return err
		}
		otelCfg.TraceExporter = exporter.SpanExporter()
		otelCfg.MetricReader = sdkmetric.NewPeriodicReader(exporter.MetricExporter(),
			sdkmetric.WithInterval(a.cfg.MetricInterval),
		)
	}

	tel, err := observability.Init(ctx, otelCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.tel = tel
	a.closers = append(a.closers, tel.Shutdown)
	return nil
}

// natsAuth loads sealed credentials when configured. The embedded server is
// told to require them and every client presents them.
func (a *app) natsAuth(ctx context.Context) ([]nats.Option, []natsbus.ServerOption, error) {
	if !a.cfg.Authenticated() {
		return nil, nil, nil
	}

	provider, err := credentials.OpenSealedProvider(ctx, a.cfg.NATSCredentialsKeeper, a.cfg.NATSCredentialsURL,
		credentials.WithObjectKey(a.cfg.NATSCredentialsKey),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("load nats credentials: %w", err)
	}
	defer provider.Close()

	creds, err := provider.Credentials(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load nats credentials: %w", err)
	}
	a.logger.Info("nats credentials loaded", slog.Any("credentials", creds))
	return creds.NATSOptions(), []natsbus.ServerOption{creds.ServerOption()}, nil
}

func (a *app) initTransport(clientOpts []nats.Option, serverOpts []natsbus.ServerOption) {
	busCfg := natsbus.DefaultConfig()
	busCfg.StreamName = a.cfg.EventStream

	busOpts := []eventbus.Option{
		eventbus.WithConfig(busCfg),
		eventbus.WithConnectOptions(clientOpts...),
		eventbus.WithLogger(a.logger),
		eventbus.WithTracer(a.tel.Tracer()),
	}

	if a.cfg.Embedded() {
		serverOpts = append(serverOpts,
			natsbus.WithPort(a.cfg.NATSPort),
			natsbus.WithServerName(a.cfg.ServiceName),
		)
		if a.cfg.NATSStoreDir != "" {
			serverOpts = append(serverOpts, natsbus.WithStoreDir(a.cfg.NATSStoreDir))
		}
		server := embeddednats.New(
			embeddednats.WithLogger(a.logger),
			embeddednats.WithTracer(a.tel.Tracer()),
			embeddednats.WithServerOptions(serverOpts...),
			embeddednats.WithClientOptions(clientOpts...),
		)
		a.services = append(a.services, server)
		busOpts = append(busOpts, eventbus.WithURLFunc(server.URL))
	} else {
		busOpts = append(busOpts, eventbus.WithURL(a.cfg.NATSURL))
	}

	a.bus = eventbus.New(busOpts...)
	a.services = append(a.services, a.bus)
}

// Run starts every service and blocks until ctx is cancelled or a shutdown
// signal arrives.
func (a *app) Run(ctx context.Context) error {
	opts := append([]runner.Option{
		runner.WithLogger(a.logger),
		runner.WithShutdownTimeout(a.cfg.ShutdownTimeout),
	}, a.runnerOpts...)

	runErr := runner.New(a.services, opts...).Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.close(closeCtx))
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

// progressService rebuilds the in-memory progress read model from the store
// and then keeps it current from the event bus.
func progressService(m *projection.Manager) runner.Service {
	return runner.Func{
		ServiceName: "progress-projection",
		OnStart: func(ctx context.Context) error {
			if err := m.Rebuild(ctx, progress.ProjectionName); err != nil {
				return err
			}
			// The projection outlives the startup deadline; StopAll ends it.
			return m.Start(context.WithoutCancel(ctx), progress.ProjectionName)
		},
		OnStop: func(context.Context) error {
			m.StopAll()
			return nil
		},
	}
}

func decodeCommand(commandType string, data []byte) (eventsourcing.Command, error) {
	cmd, err := learner.DecodeCommand(commandType, data)
	if err != nil {
		return nil, err
	}
	return cmd, nil
}
