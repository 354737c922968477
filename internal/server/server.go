// Package server exposes the voxgate HTTP surface: the transcript WebSocket
// that drives drafting cycles, the telephony voice webhook that registers
// inbound calls, and the operational endpoints (health probes and metrics).
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxgate/voxgate/internal/callstore"
	"github.com/voxgate/voxgate/internal/health"
	"github.com/voxgate/voxgate/internal/observe"
	"github.com/voxgate/voxgate/internal/orchestrator"
	"github.com/voxgate/voxgate/internal/tool"
	"github.com/voxgate/voxgate/pkg/provider/llm"
)

// shutdownTimeout bounds graceful HTTP shutdown on context cancellation.
const shutdownTimeout = 10 * time.Second

// defaultAudioHost is the orchestrator endpoint that telephony audio streams
// connect to.
const defaultAudioHost = "api.retellai.com"

// CallRegistrar registers a new audio session for an agent.
// *orchestrator.Client satisfies this interface.
type CallRegistrar interface {
	RegisterCall(ctx context.Context, agentID, protocol string) (*orchestrator.Call, error)
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithCallStore enables call lifecycle persistence.
func WithCallStore(s callstore.Store) Option {
	return func(srv *Server) { srv.calls = s }
}

// WithHealthCheckers adds readiness checkers to /readyz.
func WithHealthCheckers(checkers ...health.Checker) Option {
	return func(srv *Server) { srv.checkers = append(srv.checkers, checkers...) }
}

// WithMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(srv *Server) { srv.metrics = m }
}

// WithAudioHost overrides the orchestrator host that answered telephony calls
// stream their audio to.
func WithAudioHost(host string) Option {
	return func(srv *Server) { srv.audioHost = host }
}

// WithGreeting overrides the greeting spoken when a session is established.
func WithGreeting(g string) Option {
	return func(srv *Server) { srv.greeting = g }
}

// WithTLS serves HTTPS using the given certificate and key files.
func WithTLS(certFile, keyFile string) Option {
	return func(srv *Server) {
		srv.certFile = certFile
		srv.keyFile = keyFile
	}
}

// Server is the voxgate HTTP/WebSocket server. One Server handles many
// concurrent call sessions; each session gets its own drafting engine.
type Server struct {
	listenAddr string
	agentID    string
	persona    string
	greeting   string
	audioHost  string
	certFile   string
	keyFile    string

	provider  llm.Provider
	tools     *tool.Registry
	registrar CallRegistrar
	dialer    OutboundDialer
	calls     callstore.Store
	metrics   *observe.Metrics
	checkers  []health.Checker

	httpSrv *http.Server
}

// New constructs a Server. provider and tools are shared across all sessions;
// registrar may be nil when the voice webhook is not used.
func New(listenAddr, agentID, persona string, provider llm.Provider, tools *tool.Registry, registrar CallRegistrar, opts ...Option) (*Server, error) {
	if listenAddr == "" {
		return nil, errors.New("server: listenAddr must not be empty")
	}
	if provider == nil {
		return nil, errors.New("server: provider must not be nil")
	}
	if tools == nil {
		return nil, errors.New("server: tools must not be nil")
	}
	s := &Server{
		listenAddr: listenAddr,
		agentID:    agentID,
		persona:    persona,
		audioHost:  defaultAudioHost,
		provider:   provider,
		tools:      tools,
		registrar:  registrar,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.httpSrv = &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// routes assembles the HTTP mux. The WebSocket endpoint bypasses the
// observability middleware because the connection upgrade needs the raw
// ResponseWriter.
func (s *Server) routes() http.Handler {
	mw := observe.Middleware(s.metrics)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /llm-websocket/{call_id}", s.handleTranscriptWS)

	instrumented := http.NewServeMux()
	instrumented.HandleFunc("POST /voice-webhook/{agent_id}", s.handleVoiceWebhook)
	instrumented.HandleFunc("POST /calls", s.handleOutboundCall)
	instrumented.HandleFunc("/twiml/{call_id}", s.handleTwiML)
	instrumented.Handle("GET /metrics", promhttp.Handler())
	health.New(s.checkers...).Register(instrumented)

	mux.Handle("/", mw(instrumented))
	return mux
}

// Run starts the server and blocks until ctx is cancelled or the listener
// fails. Shutdown is graceful with a [shutdownTimeout] bound.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server listening", slog.String("addr", s.listenAddr), slog.Bool("tls", s.certFile != ""))
		var err error
		if s.certFile != "" {
			err = s.httpSrv.ListenAndServeTLS(s.certFile, s.keyFile)
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen: %w", err)
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
