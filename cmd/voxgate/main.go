// Command voxgate is the main entry point for the voxgate voice agent bridge.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/voxgate/voxgate/internal/callstore"
	"github.com/voxgate/voxgate/internal/config"
	"github.com/voxgate/voxgate/internal/health"
	"github.com/voxgate/voxgate/internal/observe"
	"github.com/voxgate/voxgate/internal/orchestrator"
	"github.com/voxgate/voxgate/internal/resilience"
	"github.com/voxgate/voxgate/internal/server"
	"github.com/voxgate/voxgate/internal/telephony"
	"github.com/voxgate/voxgate/internal/tool"
	"github.com/voxgate/voxgate/internal/tool/bookstore"
	"github.com/voxgate/voxgate/pkg/provider/llm"
	"github.com/voxgate/voxgate/pkg/provider/llm/anyllm"
	openaillm "github.com/voxgate/voxgate/pkg/provider/llm/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxgate: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxgate: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("voxgate starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voxgate",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── LLM provider ──────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	provider, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to create llm provider", "name", cfg.Providers.LLM.Name, "err", err)
		return 1
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", cfg.Providers.LLM.Model)

	if len(cfg.Providers.Fallbacks) > 0 {
		failover, err := resilience.NewFailover(cfg.Providers.LLM.Name, provider)
		if err != nil {
			slog.Error("failed to create failover provider", "err", err)
			return 1
		}
		for _, entry := range cfg.Providers.Fallbacks {
			fb, err := reg.CreateLLM(entry)
			if err != nil {
				slog.Error("failed to create fallback provider", "name", entry.Name, "err", err)
				return 1
			}
			if err := failover.AddFallback(entry.Name, fb); err != nil {
				slog.Error("failed to register fallback provider", "name", entry.Name, "err", err)
				return 1
			}
			slog.Info("provider created", "kind", "llm-fallback", "name", entry.Name, "model", entry.Model)
		}
		provider = failover
	}

	// ── Tool registry ─────────────────────────────────────────────────────────
	tools, err := tool.NewRegistry(bookstore.Tools()...)
	if err != nil {
		slog.Error("failed to build tool registry", "err", err)
		return 1
	}
	var mcpShutdowns []func() error
	defer func() {
		for _, shutdown := range mcpShutdowns {
			if err := shutdown(); err != nil {
				slog.Warn("mcp server close error", "err", err)
			}
		}
	}()
	for _, mcpCfg := range cfg.MCP.Servers {
		shutdown, err := tools.RegisterMCPServer(ctx, mcpCfg)
		if err != nil {
			slog.Error("failed to connect mcp server", "name", mcpCfg.Name, "err", err)
			return 1
		}
		mcpShutdowns = append(mcpShutdowns, shutdown)
		slog.Info("mcp server connected", "name", mcpCfg.Name, "transport", mcpCfg.Transport)
	}

	// ── Call store (optional) ─────────────────────────────────────────────────
	var (
		store    callstore.Store
		checkers []health.Checker
	)
	if dsn := cfg.CallStore.PostgresDSN; dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			slog.Error("failed to create postgres pool", "err", err)
			return 1
		}
		defer pool.Close()

		pg := callstore.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("failed to migrate call store", "err", err)
			return 1
		}
		store = pg
		checkers = append(checkers, health.Checker{
			Name:  "postgres",
			Check: pool.Ping,
		})
		slog.Info("call store ready")
	}

	// ── Orchestrator and telephony clients (optional) ─────────────────────────
	var registrar server.CallRegistrar
	if cfg.Orchestrator.APIKey != "" {
		var opts []orchestrator.Option
		if cfg.Orchestrator.BaseURL != "" {
			opts = append(opts, orchestrator.WithBaseURL(cfg.Orchestrator.BaseURL))
		}
		client, err := orchestrator.New(cfg.Orchestrator.APIKey, opts...)
		if err != nil {
			slog.Error("failed to create orchestrator client", "err", err)
			return 1
		}
		registrar = client
	}

	var dialer server.OutboundDialer
	if cfg.Telephony.AccountSID != "" {
		var opts []telephony.Option
		if cfg.Telephony.BaseURL != "" {
			opts = append(opts, telephony.WithBaseURL(cfg.Telephony.BaseURL))
		}
		client, err := telephony.New(cfg.Telephony.AccountSID, cfg.Telephony.AuthToken, cfg.Telephony.FromNumber, opts...)
		if err != nil {
			slog.Error("failed to create telephony client", "err", err)
			return 1
		}
		dialer = client
	}

	// ── Server ────────────────────────────────────────────────────────────────
	srvOpts := []server.Option{
		server.WithGreeting(cfg.Agent.Greeting),
		server.WithHealthCheckers(checkers...),
	}
	if store != nil {
		srvOpts = append(srvOpts, server.WithCallStore(store))
	}
	if dialer != nil {
		srvOpts = append(srvOpts, server.WithDialer(dialer))
	}
	if cfg.Server.TLS != nil {
		srvOpts = append(srvOpts, server.WithTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile))
	}

	srv, err := server.New(cfg.Server.ListenAddr, cfg.Agent.ID, cfg.Agent.Persona, provider, tools, registrar, srvOpts...)
	if err != nil {
		slog.Error("failed to initialise server", "err", err)
		return 1
	}

	printStartupSummary(cfg)
	slog.Info("server ready, press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires the built-in LLM provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// The native OpenAI adapter streams through the official SDK.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaillm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openaillm.WithOrganization(org))
		}
		return openaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining hosted backends share the any-llm dispatch layer:
	// optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          voxgate startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("LLM", cfg.Providers.LLM.Name+" / "+cfg.Providers.LLM.Model)
	printRow("Agent", cfg.Agent.ID)
	printRow("Orchestrator", enabledIf(cfg.Orchestrator.APIKey != ""))
	printRow("Telephony", enabledIf(cfg.Telephony.AccountSID != ""))
	printRow("Call store", enabledIf(cfg.CallStore.PostgresDSN != ""))
	fmt.Printf("║  MCP servers     : %-19d ║\n", len(cfg.MCP.Servers))
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", kind, value)
}

func enabledIf(on bool) string {
	if on {
		return "enabled"
	}
	return "(disabled)"
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
