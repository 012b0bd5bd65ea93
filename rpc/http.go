// Package rpc serves the ledger over JSON-RPC 2.0 and streams committed events
// over websocket.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"healthkey/core"
	"healthkey/indexer"
	"healthkey/observability/metrics"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// RewardHistory answers reward history queries. The indexer implements it.
type RewardHistory interface {
	RewardHistory(ctx context.Context, recipient [20]byte, limit int) ([]indexer.RewardRecord, error)
	TotalRewarded(ctx context.Context, recipient [20]byte) (uint64, error)
}

// Config tunes the RPC server.
type Config struct {
	// RequestsPerMinute of zero disables rate limiting.
	RequestsPerMinute float64
	Burst             int
	TrustProxyHeaders bool

	// AuthSecret enables HS256 bearer tokens on hk_sendTransaction.
	AuthSecret   string
	AuthIssuer   string
	AuthAudience string

	// Idempotency is optional.
	Idempotency *IdempotencyStore

	AllowedOrigins []string
	Logger         *slog.Logger
}

type failure struct {
	status int
	err    *RPCError
}

func fail(status, code int, message string, data interface{}) *failure {
	return &failure{status: status, err: &RPCError{Code: code, Message: message, Data: data}}
}

type methodHandler func(r *http.Request, req *RPCRequest) (interface{}, *failure)

// Server exposes a Node over HTTP.
type Server struct {
	node    *core.Node
	history RewardHistory
	cfg     Config
	logger  *slog.Logger
	limiter *rateLimiter
	auth    *authenticator
	metrics *metrics.RPCMetrics
	methods map[string]methodHandler

	serverMu   sync.Mutex
	httpServer *http.Server
}

// NewServer builds a server. history may be nil, in which case
// hk_getRewardHistory reports the indexer as unavailable.
func NewServer(node *core.Node, history RewardHistory, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		node:    node,
		history: history,
		cfg:     cfg,
		logger:  logger,
		limiter: newRateLimiter(cfg.RequestsPerMinute, cfg.Burst, cfg.TrustProxyHeaders),
		auth:    newAuthenticator(cfg.AuthSecret, cfg.AuthIssuer, cfg.AuthAudience, logger),
		metrics: metrics.RPC(),
	}
	s.methods = map[string]methodHandler{
		"hk_sendTransaction":   s.handleSendTransaction,
		"hk_chainInfo":         s.handleChainInfo,
		"hk_getNonce":          s.handleGetNonce,
		"hk_getProfile":        s.handleGetProfile,
		"hk_getVaultAuthority": s.handleGetVaultAuthority,
		"hk_getTokenBalance":   s.handleGetTokenBalance,
		"hk_getReceipt":        s.handleGetReceipt,
		"hk_getRewardHistory":  s.handleGetRewardHistory,
		"hk_auditSupply":       s.handleAuditSupply,
		"hk_idl":               s.handleIDL,
	}
	return s
}

// Handler returns the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/ws/events", s.handleEventsWS)
	r.With(s.limiter.Middleware).Post("/", s.handle)
	return otelhttp.NewHandler(r, "healthkey.rpc")
}

// Serve answers requests on listener until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()

	s.logger.Info("rpc server listening", slog.String("addr", listener.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		<-errCh
		s.logger.Info("rpc server stopped")
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	head := s.node.Head()
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"chainId": s.node.ChainID(),
		"slot":    head.Slot,
	})
}

// handle is the JSON-RPC entry point.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	handler, ok := s.methods[req.Method]
	if !ok {
		s.metrics.Observe("unknown", "not_found", time.Since(start))
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		return
	}
	result, failed := handler(r, req)
	if failed != nil {
		s.metrics.Observe(req.Method, "error", time.Since(start))
		s.logger.Debug("rpc request failed",
			slog.String("request_id", RequestIDFrom(r.Context())),
			slog.String("method", req.Method),
			slog.Int("code", failed.err.Code),
			slog.String("message", failed.err.Message))
		writeError(w, failed.status, req.ID, failed.err.Code, failed.err.Message, failed.err.Data)
		return
	}
	s.metrics.Observe(req.Method, "ok", time.Since(start))
	writeResult(w, req.ID, result)
}
