package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/realtimemesh"
	"github.com/hupe1980/realtimemesh/config"
	"github.com/hupe1980/realtimemesh/guardrail"
	"github.com/hupe1980/realtimemesh/logging"
	"github.com/hupe1980/realtimemesh/model"
	"github.com/hupe1980/realtimemesh/model/anthropic"
	"github.com/hupe1980/realtimemesh/model/openai"
	"github.com/hupe1980/realtimemesh/observability"
	"github.com/hupe1980/realtimemesh/scenario"
	"github.com/hupe1980/realtimemesh/session"
	"github.com/hupe1980/realtimemesh/transport/realtime"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the realtime model and run one session",
		Long: `Dial the realtime websocket, configure the root agent of the scenario
and run a single session until the provider disconnects or the process is
interrupted.

Configuration is read from --config, REALTIMEMESH_* environment variables
and the flags below.`,
		Args: cobra.NoArgs,
	}

	v := bindRunFlags(cmd)

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadFrom(v, flags.config)
		if err != nil {
			return err
		}
		initial, _ := cmd.Flags().GetString("agent")
		return run(cmd.Context(), cfg, flags.scenario, initial)
	}

	return cmd
}

// bindRunFlags registers the run flags on cmd and binds them to the config
// keys they override.
func bindRunFlags(cmd *cobra.Command) *viper.Viper {
	v := config.NewViper()
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().String("agent", "", "Initial agent, defaults to the scenario root")
	cmd.Flags().String("opening-message", "", "User message sent right after connecting so the agent speaks first")
	cmd.Flags().Duration("max-duration", 0, "End the session after this duration, e.g. 2m (0 disables)")
	_ = v.BindPFlag("log.level", cmd.Flags().Lookup("log-level"))
	_ = v.BindPFlag("metrics.addr", cmd.Flags().Lookup("metrics-addr"))
	_ = v.BindPFlag("session.opening_message", cmd.Flags().Lookup("opening-message"))
	_ = v.BindPFlag("session.max_duration", cmd.Flags().Lookup("max-duration"))
	return v
}

func run(ctx context.Context, cfg *config.Config, scenarioPath, initial string) error {
	level := logging.ParseLevel(cfg.Log.Level)
	logger := logging.NewSlogLogger(level, cfg.Log.Format, false).WithComponent("realtimemesh")

	sc, err := scenario.Load(scenarioPath)
	if err != nil {
		return err
	}
	applyEscalationDefaults(sc, cfg.Escalation)

	reasoning, err := newModel(cfg.Reasoning, cfg.Reasoning.Model)
	if err != nil {
		return err
	}

	g, err := scenario.Build(sc, func(o *scenario.BuildOptions) {
		o.Model = reasoning
		o.Logger = logger
		o.AlarmHandler = func(_ context.Context, reason, urgency string) error {
			logger.Error("alarm.raised", "reason", reason, "urgency", urgency)
			return nil
		}
	})
	if err != nil {
		return err
	}

	observer, shutdownMetrics, err := newObserver(cfg, level, logger)
	if err != nil {
		return err
	}
	defer shutdownMetrics()

	sessionOpts := func(o *session.Options) {
		o.InitialAgent = initial
		o.AutoContinueFirstHandoff = cfg.Session.AutoContinueFirstHandoff
		o.OpeningMessage = cfg.Session.OpeningMessage
		o.MaxDuration = cfg.Session.MaxDuration
		o.GuardrailTimeout = cfg.Guardrail.Timeout
		o.Brand = cfg.Guardrail.Brand
		if o.Brand == "" {
			o.Brand = sc.Brand
		}
	}

	var classifier guardrail.Classifier
	if cfg.Guardrail.Enabled {
		llm, err := newModel(cfg.Reasoning, cfg.Guardrail.Model)
		if err != nil {
			return err
		}
		classifier = guardrail.NewModelClassifier(llm)
	}

	mesh, err := realtimemesh.New(g, func(o *realtimemesh.Options) {
		o.EngineConfig.MaxConcurrentSessions = cfg.Engine.MaxSessions
		o.Logger = logger
		o.Observer = observer
	})
	if err != nil {
		return err
	}

	conn, err := realtime.Dial(ctx, func(o *realtime.Options) {
		o.URL = cfg.Realtime.URL
		o.Model = cfg.Realtime.Model
		o.APIKey = cfg.Realtime.APIKey
		o.WriteTimeout = cfg.Realtime.WriteTimeout
		o.Codec.TranscriptionModel = cfg.Realtime.TranscriptionModel
		o.Logger = logger.WithComponent("transport")
	})
	if err != nil {
		return fmt.Errorf("dial realtime: %w", err)
	}

	s, err := mesh.Serve(ctx, conn, sessionOpts, func(o *session.Options) {
		o.Classifier = classifier
	})
	if err != nil {
		return err
	}

	logger.Info("session.finished",
		"session_id", s.ID(),
		"reason", s.CloseReason(),
		"agent", s.ActiveAgent(),
		"items", len(s.Transcript()),
	)
	return nil
}

func applyEscalationDefaults(sc *scenario.Scenario, cfg config.EscalationConfig) {
	if sc.Supervisor == nil {
		sc.Supervisor = &scenario.Supervisor{}
	}
	if sc.Supervisor.MaxIterations == 0 {
		sc.Supervisor.MaxIterations = cfg.MaxIterations
	}
	if sc.Supervisor.Timeout == "" && cfg.Timeout > 0 {
		sc.Supervisor.Timeout = cfg.Timeout.String()
	}
}

func newModel(cfg config.ReasoningConfig, name string) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
			if name != "" {
				o.Model = name
			}
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
			if name != "" {
				o.Model = anthropicsdk.Model(name)
			}
		}), nil
	default:
		return nil, fmt.Errorf("unsupported reasoning provider %q", cfg.Provider)
	}
}

func newObserver(cfg *config.Config, level logging.LogLevel, logger logging.Logger) (observability.Observer, func(), error) {
	slogLevel := slog.LevelInfo
	if level == logging.LogLevelDebug {
		slogLevel = slog.LevelDebug
	}
	events := observability.NewSlogObserver(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})))

	if cfg.Metrics.Addr == "" {
		return events, func() {}, nil
	}

	reg := prometheus.NewRegistry()
	metrics, err := observability.NewPrometheusObserver(reg, cfg.Metrics.Namespace)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics.server.failed", "addr", cfg.Metrics.Addr, "error", err.Error())
		}
	}()
	logger.Info("metrics.server.started", "addr", cfg.Metrics.Addr)

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return observability.NewMultiObserver(events, metrics), shutdown, nil
}
