package main

import (
	"context"
	"flag"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"yieldsplit/config"
	"yieldsplit/core/engine"
	"yieldsplit/core/events"
	"yieldsplit/core/host"
	"yieldsplit/crypto"
	"yieldsplit/observability"
	"yieldsplit/observability/logging"
	telemetry "yieldsplit/observability/otel"
	"yieldsplit/services/yieldd/auth"
	yielddconfig "yieldsplit/services/yieldd/config"
	"yieldsplit/services/yieldd/server"
	ysstorage "yieldsplit/services/yieldd/storage"
	"yieldsplit/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/yieldd/config.yaml", "path to yieldd configuration file")
	flag.Parse()

	cfg, err := yielddconfig.Load(cfgPath)
	if err != nil {
		log.Fatalf("yieldd: load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("YIELDSPLIT_ENV"))
	logger := logging.Setup("yieldd", env)
	if cfg.LogFile != "" {
		var closer io.Closer
		logger, closer = logging.SetupWithFile("yieldd", env, cfg.LogFile, logging.DefaultFileOptions())
		defer closer.Close()
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv("yieldd", env))
	if err != nil {
		log.Fatalf("yieldd: init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	engineCfg, err := config.Load(cfg.SeriesConfig)
	if err != nil {
		log.Fatalf("yieldd: load series config: %v", err)
	}
	admin, err := crypto.KeystoreAddress(engineCfg.AdminKeystorePath)
	if err != nil {
		log.Fatalf("yieldd: read admin keystore: %v", err)
	}

	db, err := storage.Open(engineCfg.StorageBackend, engineCfg.DataDir)
	if err != nil {
		log.Fatalf("yieldd: open state: %v", err)
	}
	defer db.Close()

	stream := events.NewBroadcaster(cfg.Stream.Buffer)
	metrics := observability.Engine()
	emitter := events.Multi{stream, observability.NewEventMetrics(metrics, engineCfg.Series.Scale)}
	h, err := host.New(db, host.WithEmitter(emitter), host.WithLogger(logger))
	if err != nil {
		log.Fatalf("yieldd: init host: %v", err)
	}
	eng, err := engine.New(h, engineCfg, engine.WithMetrics(metrics), engine.WithLogger(logger))
	if err != nil {
		log.Fatalf("yieldd: init engine: %v", err)
	}
	current, err := eng.Bootstrap(context.Background(), admin)
	if err != nil {
		log.Fatalf("yieldd: bootstrap: %v", err)
	}
	logger.Info("series ready",
		slog.Uint64("series", current.Number),
		slog.String("clearinghouse", current.Clearinghouse),
		slog.Uint64("maturity", current.Maturity))

	dsn := cfg.Journal.DSN
	if cfg.Journal.Driver == "sqlite" {
		if dsn, err = ysstorage.FileDSN(dsn); err != nil {
			log.Fatalf("yieldd: resolve journal DSN: %v", err)
		}
	}
	journal, err := ysstorage.Open(cfg.Journal.Driver, dsn)
	if err != nil {
		log.Fatalf("yieldd: open journal: %v", err)
	}
	defer journal.Close()
	if last, err := journal.LastSequence(context.Background()); err == nil {
		logger.Info("event journal opened", slog.Uint64("last_sequence", last))
	}

	authn, err := auth.NewAuthenticator(auth.Config{
		HMACSecret: cfg.Auth.HMACSecret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ClockSkew:  cfg.Auth.ClockSkew.Duration,
	}, logger)
	if err != nil {
		log.Fatalf("yieldd: init auth: %v", err)
	}

	srv, err := server.New(server.Config{
		ListenAddress:   cfg.ListenAddress,
		ReadTimeout:     cfg.HTTP.ReadTimeout.Duration,
		WriteTimeout:    cfg.HTTP.WriteTimeout.Duration,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout.Duration,
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
	}, eng, journal, stream, authn, logger)
	if err != nil {
		log.Fatalf("yieldd: init server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if engineCfg.Series.AutoRollover {
		go rolloverLoop(ctx, eng, journal, admin, cfg.Rollover.Interval.Duration, logger)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("yieldd stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// rolloverLoop deploys the next series whenever the current one matures.
func rolloverLoop(ctx context.Context, eng *engine.Engine, journal *ysstorage.Journal, admin crypto.Address, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rolled, receipt, err := eng.Rollover(ctx, admin, 0)
			if err != nil {
				logger.Warn("automatic rollover failed", slog.String("error", err.Error()))
				continue
			}
			if !rolled {
				continue
			}
			if err := journal.Record(ctx, "rollover", receipt); err != nil {
				logger.Error("journal record failed", slog.String("op", "rollover"), slog.String("error", err.Error()))
			}
		}
	}
}
