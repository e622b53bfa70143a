package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tailored-agentic-units/stategraph/config"
	"github.com/tailored-agentic-units/stategraph/engine"
	"github.com/tailored-agentic-units/stategraph/observability"
	"github.com/tailored-agentic-units/stategraph/pipeline"
)

const observerName = "stategraph-cli"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run executes one report and returns the process exit code. Deferred
// cleanup runs before main exits.
func run(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("stategraph", flag.ContinueOnError)
	var (
		configFile  = fs.String("config", "", "Path to engine config YAML/JSON file")
		prompt      = fs.String("prompt", "", "Report request; empty produces the full report")
		dbPath      = fs.String("db", "", "SQLite database with srag_records; empty uses generated sample data")
		outFile     = fs.String("out", "", "Write the HTML report to this file instead of stdout")
		stepLimit   = fs.Int("step-limit", -1, "Maximum rounds per run (overrides config)")
		timeout     = fs.Duration("timeout", 0, "Run timeout (overrides config)")
		metricsAddr = fs.String("metrics-addr", "", "Serve /healthz and /metrics on this address until interrupted")
		redisAddr   = fs.String("redis-addr", os.Getenv("REDIS_ADDR"), "Publish engine events to a Redis stream at this address")
		logLevel    = fs.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := initLogger(*logLevel)
	defer logger.Sync()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", zap.Error(err))
		return 1
	}
	if *stepLimit >= 0 {
		cfg.StepLimit = *stepLimit
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}

	registry := prometheus.NewRegistry()
	observers := []observability.Observer{
		observability.NewZapObserver(logger),
		engine.NewMetricsObserver(registry),
	}

	if *redisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: *redisAddr})
		defer client.Close()

		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unavailable, event stream disabled", zap.String("addr", *redisAddr), zap.Error(err))
		} else {
			observers = append(observers, observability.NewStreamObserver(client, observability.StreamConfig{}))
			logger.Info("publishing events to redis", zap.String("addr", *redisAddr))
		}
	}

	observability.RegisterObserver(observerName, observability.NewMultiObserver(observers...))
	cfg.Observer = observerName

	eng, err := engine.New(cfg)
	if err != nil {
		logger.Error("failed to create engine", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *metricsAddr != "" {
		srv := &http.Server{
			Addr:              *metricsAddr,
			Handler:           newRouter(registry),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("addr", *metricsAddr))

		// Keep serving after the run until interrupted.
		defer func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown failed", zap.Error(err))
			}
		}()
	}

	source, err := openSource(ctx, *dbPath)
	if err != nil {
		logger.Error("failed to open data source", zap.Error(err))
		return 1
	}
	defer source.Close()

	p, err := pipeline.New(eng, pipeline.Deps{
		Classifier:  pipeline.NewKeywordClassifier(),
		Metrics:     source,
		Calculator:  source,
		Designer:    pipeline.TableDesigner{},
		News:        sampleNews,
		Synthesizer: pipeline.TemplateSynthesizer{},
		Renderer:    pipeline.NewMarkdownRenderer(),
		Retry:       retryPolicy,
	})
	if err != nil {
		logger.Error("failed to build pipeline", zap.Error(err))
		return 1
	}

	out, err := p.Run(ctx, *prompt)
	if err != nil {
		logger.Error("report run failed", zap.Error(err))
		return 1
	}

	switch {
	case out.Intent.OffTopic:
		fmt.Fprintln(os.Stderr, "The request is outside the scope of the surveillance report.")
	case *outFile != "":
		if err := os.WriteFile(*outFile, []byte(out.Report), 0o644); err != nil {
			logger.Error("failed to write report", zap.Error(err))
			return 1
		}
		logger.Info("report written", zap.String("path", *outFile))
	default:
		fmt.Fprintln(stdout, out.Report)
	}

	logger.Info("run finished",
		zap.String("run_id", out.Result.RunID),
		zap.Int("rounds", out.Result.Rounds),
		zap.Int("degraded", len(out.Result.Degraded)))

	return 0
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(zapLevel)
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapConfig.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
