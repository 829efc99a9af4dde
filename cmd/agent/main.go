package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/formpulse/internal/application"
	appanalysis "github.com/bryanwahyu/formpulse/internal/application/analysis"
	"github.com/bryanwahyu/formpulse/internal/application/feedback"
	"github.com/bryanwahyu/formpulse/internal/application/trigger"
	"github.com/bryanwahyu/formpulse/internal/config"
	domain "github.com/bryanwahyu/formpulse/internal/domain/analysis"
	"github.com/bryanwahyu/formpulse/internal/infra/actuator"
	"github.com/bryanwahyu/formpulse/internal/infra/ai"
	"github.com/bryanwahyu/formpulse/internal/infra/ai/anthropic"
	"github.com/bryanwahyu/formpulse/internal/infra/ai/openai"
	"github.com/bryanwahyu/formpulse/internal/infra/capture"
	"github.com/bryanwahyu/formpulse/internal/infra/console"
	"github.com/bryanwahyu/formpulse/internal/infra/httpserver"
	"github.com/bryanwahyu/formpulse/internal/infra/keyboard"
	"github.com/bryanwahyu/formpulse/internal/infra/storage"
	"github.com/bryanwahyu/formpulse/internal/middleware"
)

type analyzer interface {
	domain.Analyzer
	Name() string
	Model() string
}

func main() {
	os.Exit(run())
}

func run() int {
	// path config
	path := config.DefaultPath
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		return 1
	}
	setupLogger(os.Stderr, cfg.Log.Level)

	apiKey, err := config.LoadCredential(cfg.Inference.Provider, os.Getenv, config.EnvFiles(config.ExecutableDir()))
	if err != nil {
		name := config.CredentialVar(cfg.Inference.Provider)
		fmt.Fprintln(os.Stderr, "[ERROR] API key not found.")
		fmt.Fprintf(os.Stderr, "  Option 1: %s=... %s\n", name, os.Args[0])
		fmt.Fprintf(os.Stderr, "  Option 2: create a .env file next to the binary with %s=...\n", name)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// init capture
	capturer, err := capture.NewCommand(cfg.Capture.Command, cfg.Capture.Path, cfg.Capture.Timeout)
	if err != nil {
		slog.Error("capture init error", "error", err)
		return 1
	}

	// init actuator
	actuatorPath := cfg.Actuator.Path
	if actuatorPath == "" {
		actuatorPath = actuator.DefaultPath()
	}
	act := actuator.NewExecutable(actuatorPath, cfg.Actuator.Timeout)

	// init inference
	policy := ai.Policy{
		MaxRetries: cfg.Inference.MaxRetries,
		Step:       cfg.Inference.BackoffStep,
	}
	model := newAnalyzer(cfg, apiKey, policy)

	// init archive (opt-in)
	var archive domain.ArtifactStore
	archiveName := ""
	health := map[string]middleware.HealthChecker{}
	if cfg.Archive.Enabled {
		store, err := storage.New(ctx,
			cfg.Archive.Endpoint,
			cfg.Archive.Region,
			cfg.Archive.BucketName,
			cfg.Archive.AccessKey,
			cfg.Archive.SecretKey,
			cfg.Archive.UseSSL,
		)
		if err != nil {
			slog.Error("archive init error", "error", err)
			return 1
		}
		archive = store
		archiveName = store.Name()
		health["archive"] = store
	}

	// key source first: raw mode changes how output must be written
	src, raw, err := keyboard.Open(cfg.Trigger.Source, cfg.Trigger.Modifier, stop)
	if err != nil {
		slog.Error("key source error", "source", cfg.Trigger.Source, "error", err)
		return 1
	}
	var out io.Writer = os.Stdout
	if raw {
		out = console.NewCRLFWriter(os.Stdout)
		setupLogger(console.NewCRLFWriter(os.Stderr), cfg.Log.Level)
	}
	reporter := console.NewReporter(out)

	console.Banner{
		Provider:     model.Name(),
		Model:        model.Model(),
		APIKey:       apiKey,
		Trigger:      hotkeyLabel(raw, cfg.Trigger.Modifier, cfg.Trigger.Letter),
		Source:       sourceLabel(raw),
		Actuator:     actuatorPath,
		ActuatorOK:   act.Available() == nil,
		CaptureTool:  strings.Join(cfg.Capture.Command, " "),
		ControlAddr:  cfg.Addr(),
		ArchiveStore: archiveName,
	}.Print(out)

	metrics := middleware.NewMetrics()
	clock := application.SystemClock{}
	svc := appanalysis.NewService(appanalysis.Deps{
		Capturer: capturer,
		Analyzer: model,
		Feedback: &feedback.Translator{
			Pulser:   act,
			Reporter: reporter,
			Clock:    clock,
			Pause:    cfg.Feedback.Pause,
		},
		Reporter: reporter,
		Archive:  archive,
		Metrics:  metrics,
		Clock:    clock,
	})

	listener := trigger.NewListener(cfg.TriggerLetter(), cfg.Trigger.Debounce, clock, svc.Trigger)

	g, gctx := errgroup.WithContext(ctx)
	svc.Start(gctx)
	g.Go(func() error {
		svc.Wait()
		return nil
	})
	g.Go(func() error {
		err := listener.Run(gctx, src)
		if err != nil && gctx.Err() == nil {
			return fmt.Errorf("trigger listener: %w", err)
		}
		return nil
	})

	if addr := cfg.Addr(); addr != "" {
		health["actuator"] = middleware.ExecutableChecker{Path: act.Path}
		health["capture"] = middleware.ExecutableChecker{Path: capturer.Name}
		srv := &http.Server{
			Addr: addr,
			Handler: httpserver.NewRouter(svc, httpserver.Options{
				Token:          cfg.Server.Token,
				AllowedOrigins: cfg.Server.AllowedOrigins,
				Metrics:        metrics,
				Health:         health,
			}),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		g.Go(func() error {
			slog.Info("control api listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("control api: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if err != nil {
		slog.Error("agent stopped", "error", err)
		return 1
	}
	fmt.Fprintln(out, "Bye.")
	return 0
}

func newAnalyzer(cfg *config.Config, apiKey string, policy ai.Policy) analyzer {
	policy.OnRetry = func(retry int, wait time.Duration, err error) {
		slog.Warn("inference overloaded, retrying", "retry", retry, "max", cfg.Inference.MaxRetries, "wait", wait, "error", err)
	}
	if cfg.Inference.Provider == config.ProviderOpenAI {
		return openai.NewClient(openai.Options{
			APIKey:  apiKey,
			Model:   cfg.ModelName(),
			Timeout: cfg.Inference.Timeout,
			Retry:   policy,
		})
	}
	return anthropic.NewClient(anthropic.Options{
		APIKey:    apiKey,
		Endpoint:  cfg.Inference.Endpoint,
		Model:     cfg.ModelName(),
		Version:   cfg.Inference.Version,
		MaxTokens: cfg.Inference.MaxTokens,
		Timeout:   cfg.Inference.Timeout,
		Retry:     policy,
	})
}

func setupLogger(w io.Writer, level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
}

// In raw terminal mode only Ctrl+<letter> reaches the agent.
func hotkeyLabel(raw bool, modifier, letter string) string {
	if raw || modifier == "" {
		modifier = "ctrl"
	}
	return strings.ToUpper(modifier[:1]) + modifier[1:] + "+" + strings.ToUpper(letter)
}

func sourceLabel(raw bool) string {
	if raw {
		return "this terminal"
	}
	return "global"
}
