package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nestegg/native/daily"
	"nestegg/native/dca"
	"nestegg/native/hook"
	"nestegg/native/ledger"
	"nestegg/native/strategy"
	"nestegg/observability"
	"nestegg/state"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

// Server exposes the savings engines over a single JSON-RPC 2.0 endpoint.
// Mutating methods require the bearer token; reads are open.
type Server struct {
	strategies  *strategy.Engine
	vault       *ledger.Ledger
	interceptor *hook.Interceptor
	dcaEngine   *dca.Engine
	daily       *daily.Engine
	manager     *state.Manager
	authToken   string
	logger      *slog.Logger

	// In-flight trade contexts keyed by trader. The exchange serializes
	// trades per trader, so at most one context lives here per key.
	tradesMu sync.Mutex
	trades   map[string]*hook.SwapContext
}

// NewServer wires the RPC surface over the supplied engines and state
// manager. An empty auth token disables every mutating method.
func NewServer(strategies *strategy.Engine, vault *ledger.Ledger, interceptor *hook.Interceptor, dcaEngine *dca.Engine, dailyEngine *daily.Engine, manager *state.Manager, authToken string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		strategies:  strategies,
		vault:       vault,
		interceptor: interceptor,
		dcaEngine:   dcaEngine,
		daily:       dailyEngine,
		manager:     manager,
		authToken:   strings.TrimSpace(authToken),
		logger:      logger,
		trades:      make(map[string]*hook.SwapContext),
	}
}

// Handler returns the HTTP mux serving the RPC endpoint and the Prometheus
// scrape endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start blocks serving the RPC endpoint on the supplied address.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
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

	started := time.Now()
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.route(recorder, r, req)
	observability.ModuleMetrics().Observe(moduleOf(req.Method), req.Method, recorder.status, time.Since(started))
}

func (s *Server) route(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	mutating := map[string]bool{
		"strategy_set":         true,
		"strategy_clear":       true,
		"dca_enable":           true,
		"dca_disable":          true,
		"dca_setTickStrategy":  true,
		"dca_queue":            true,
		"dca_execute":          true,
		"daily_configure":      true,
		"daily_execute":        true,
		"daily_withdraw":       true,
		"daily_disable":        true,
		"savings_withdraw":     true,
		"hook_preTrade":        true,
		"hook_postTrade":       true,
		"admin_setTreasury":    true,
		"admin_setFee":         true,
		"admin_registerModule": true,
		"admin_pause":          true,
		"admin_unpause":        true,
	}
	if mutating[req.Method] {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}

	switch req.Method {
	case "strategy_set":
		s.handleStrategySet(w, req)
	case "strategy_get":
		s.handleStrategyGet(w, req)
	case "strategy_clear":
		s.handleStrategyClear(w, req)
	case "dca_enable":
		s.handleDCAEnable(w, req)
	case "dca_disable":
		s.handleDCADisable(w, req)
	case "dca_setTickStrategy":
		s.handleDCASetTickStrategy(w, req)
	case "dca_queue":
		s.handleDCAQueue(w, req)
	case "dca_execute":
		s.handleDCAExecute(w, req)
	case "dca_shouldExecute":
		s.handleDCAShouldExecute(w, req)
	case "dca_list":
		s.handleDCAList(w, req)
	case "daily_configure":
		s.handleDailyConfigure(w, req)
	case "daily_execute":
		s.handleDailyExecute(w, req)
	case "daily_withdraw":
		s.handleDailyWithdraw(w, req)
	case "daily_disable":
		s.handleDailyDisable(w, req)
	case "daily_get":
		s.handleDailyGet(w, req)
	case "savings_balance":
		s.handleSavingsBalance(w, req)
	case "savings_withdraw":
		s.handleSavingsWithdraw(w, req)
	case "hook_preTrade":
		s.handleHookPreTrade(w, req)
	case "hook_postTrade":
		s.handleHookPostTrade(w, req)
	case "admin_setTreasury":
		s.handleAdminSetTreasury(w, req)
	case "admin_setFee":
		s.handleAdminSetFee(w, req)
	case "admin_registerModule":
		s.handleAdminRegisterModule(w, req)
	case "admin_pause":
		s.handleAdminSetPaused(w, req, true)
	case "admin_unpause":
		s.handleAdminSetPaused(w, req, false)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func moduleOf(method string) string {
	if idx := strings.IndexByte(method, '_'); idx > 0 {
		return method[:idx]
	}
	return method
}
