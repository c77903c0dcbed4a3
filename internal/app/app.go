package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/PYPE-AI-MAIN/whispey/internal/config"
	"github.com/PYPE-AI-MAIN/whispey/internal/events"
	"github.com/PYPE-AI-MAIN/whispey/internal/observability"
	"github.com/PYPE-AI-MAIN/whispey/internal/observability/logging"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/evaluation"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/export"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/session"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/trace"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Manager   *session.Manager
	Exporter  *export.Exporter
	Publisher *events.Publisher

	ready atomic.Bool
}

// New wires the session pipeline from cfg. It fails only when a configured
// rate card cannot be loaded.
func New(cfg *config.Config) (*Application, error) {
	a := &Application{Cfg: cfg}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	var opts []session.Option
	if path := cfg.Pricing.RatesFile; path != "" {
		card, err := trace.LoadRateCard(path)
		if err != nil {
			return nil, fmt.Errorf("pricing: %w", err)
		}
		opts = append(opts, session.WithPricer(card))
		appLogger.Info().Str("path", path).Msg("Rate card loaded")
	}

	a.Exporter = export.New(export.Config{
		APIURL:               cfg.Export.APIURL,
		APIKey:               cfg.Export.APIKey,
		CompressionThreshold: cfg.Export.CompressionThreshold,
		TwoPhaseThreshold:    cfg.Export.TwoPhaseThreshold,
		Timeout:              cfg.Export.Timeout,
	}, a.Logger)

	a.Publisher = events.New(&events.Config{
		Enabled:        cfg.Kafka.Enabled,
		Brokers:        cfg.Kafka.Brokers,
		TopicCallLog:   cfg.Kafka.TopicCallLog,
		TopicBugReport: cfg.Kafka.TopicBugReport,
		Principal:      cfg.Kafka.Principal,
	})

	opts = append(opts,
		session.WithPublisher(a.Publisher),
		session.WithEvaluator(evaluation.NewRunner(cfg.Evaluation.Timeout, a.Logger)),
		session.WithTurnRecorder(observability.NewSpanBridge(nil)),
	)
	a.Manager = session.NewManager(session.Config{
		BugReport:   cfg.BugReport,
		Environment: cfg.Export.Environment,
	}, a.Exporter, a.Logger, opts...)

	appLogger.Info().
		Bool("bugReports", cfg.BugReport.Enabled).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("Whispey telemetry application created")
	return a, nil
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	logging.Init(logging.Config{
		Level:      a.Cfg.Observability.LogLevel,
		Format:     a.Cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	a.Logger = logging.Logger().With().
		Str("service", "whispey").
		Str("environment", a.Cfg.Service.Environment).
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Msg("Logger setup completed")
}

// Start marks the application ready to serve traffic.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.ready.Store(true)
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Whispey telemetry service starting")
	return nil
}

// Ready reports whether the application accepts traffic.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Shutdown stops accepting traffic, exports every live session and closes
// the publisher.
func (a *Application) Shutdown(ctx context.Context) error {
	a.ready.Store(false)
	a.Logger.Info().Int("sessions", len(a.Manager.IDs())).Msg("Whispey telemetry service shutting down")

	err := a.Manager.Shutdown(ctx)
	if cerr := a.Publisher.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}
