// Command server runs the codechat service: a streaming chat endpoint whose
// model can execute Python in an isolated sandbox.
//
// Configuration is read from a YAML file (-config, CODECHAT_CONFIG,
// ./config.yaml or /etc/codechat/config.yaml), a .env file, and CODECHAT_*
// environment variables. The Mistral provider reads MISTRAL_API_KEY and the
// Anthropic provider reads ANTHROPIC_API_KEY.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/rhuss/codechat/pkg/config"
	"github.com/rhuss/codechat/pkg/debug"
	"github.com/rhuss/codechat/pkg/engine"
	"github.com/rhuss/codechat/pkg/executor"
	"github.com/rhuss/codechat/pkg/mcpserver"
	"github.com/rhuss/codechat/pkg/observability"
	"github.com/rhuss/codechat/pkg/tools"
	transporthttp "github.com/rhuss/codechat/pkg/transport/http"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	debug.Init(debug.Options{Level: "info", Format: *logFormat})

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Observability.Tracing.Enabled,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		Insecure:    cfg.Observability.Tracing.Insecure,
		ServiceName: cfg.Observability.Tracing.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	prov, err := newProvider(cfg.Provider)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	defer prov.Close()

	sb, closeSandbox, err := newSandbox(cfg.Sandbox)
	if err != nil {
		return fmt.Errorf("creating sandbox backend: %w", err)
	}
	defer closeSandbox()

	python := tools.NewPythonTool(executor.New(sb))
	registry := tools.NewRegistry(python)

	recorder, err := newRecorder(ctx, cfg.Audit)
	if err != nil {
		return fmt.Errorf("creating audit recorder: %w", err)
	}
	if recorder != nil {
		defer recorder.Close()
	}

	eng, err := engine.New(prov, registry, recorder, engine.Config{
		Model:        cfg.Provider.Model,
		SystemPrompt: cfg.Engine.SystemPrompt,
		MaxSteps:     cfg.Engine.MaxSteps,
		MaxTokens:    cfg.Provider.MaxTokens,
		Temperature:  cfg.Provider.Temperature,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	mcpSrv, err := mcpserver.New(python, version)
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	authMW, err := newAuthMiddleware(cfg.Auth, cfg.RateLimit)
	if err != nil {
		return fmt.Errorf("configuring authentication: %w", err)
	}

	adapterCfg := transporthttp.DefaultConfig()
	adapterCfg.MaxBodySize = cfg.Server.MaxBodySize
	adapterCfg.Recorder = recorder
	adapterCfg.MCPHandler = mcpSrv.Handler()
	adapterCfg.Metrics = cfg.Observability.Metrics.Enabled
	adapterCfg.HTTPMiddleware = authMW

	srv := transporthttp.NewServer(eng,
		transporthttp.WithAddr(":"+strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithAdapterConfig(adapterCfg),
		transporthttp.WithRequestTimeout(cfg.Server.RequestTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	)

	slog.Info("codechat configured",
		"version", version,
		"provider", prov.Name(),
		"model", cfg.Provider.Model,
		"sandbox", cfg.Sandbox.Backend,
		"audit", cfg.Audit.Type,
		"auth", cfg.Auth.Type,
		"max_steps", cfg.Engine.MaxSteps,
	)

	return srv.ListenAndServe()
}
