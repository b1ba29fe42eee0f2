package rpc

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wordsale/config"
	"wordsale/core/events"
	"wordsale/crypto"
	"wordsale/native/wordsale"
	"wordsale/observability"
	"wordsale/state"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	rpcTokenEnv     = "WORDSALE_RPC_TOKEN"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001

	codeSaleNotFound     = -32040
	codeWrongPhase       = -32041
	codeCallerForbidden  = -32042
	codeDeadlineExceeded = -32043
	codeBadPayment       = -32044
	codeAlreadySet       = -32045
	codeInsufficient     = -32046
	codeNothingToClaim   = -32047
	codeSaleConflict     = -32048
)

// Server exposes the sale engine over JSON-RPC 2.0.
type Server struct {
	engine    *wordsale.Engine
	state     *state.Manager
	feed      *events.MemoryEmitter
	cfg       *config.Config
	log       *slog.Logger
	authToken string
	limiter   *rateLimiter
}

// NewServer builds an RPC server around an engine and its state manager. The
// feed emitter should be the one the engine publishes to; it backs the
// wordsale_events query. A bearer token is read from WORDSALE_RPC_TOKEN; when
// set, every request must carry it.
func NewServer(engine *wordsale.Engine, st *state.Manager, feed *events.MemoryEmitter, cfg *config.Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return &Server{
		engine:    engine,
		state:     st,
		feed:      feed,
		cfg:       cfg,
		log:       log,
		authToken: strings.TrimSpace(os.Getenv(rpcTokenEnv)),
		limiter:   newRateLimiter(cfg.RPCRequestsPerMinute, cfg.RPCBurst, log),
	}
}

// Handler returns the HTTP handler serving the RPC endpoint and Prometheus
// metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", s.limiter.middleware(http.HandlerFunc(s.handle)))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start serves the RPC endpoint on addr, blocking until the listener fails.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", slog.String("addr", addr))
	return http.ListenAndServe(addr, s.Handler())
}

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError carries a JSON-RPC error object.
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
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "invalid bearer token"}
	}
	return nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "invalid_request", "POST required")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "invalid_request", "request too large")
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_request", "jsonrpc must be 2.0")
		return
	}

	handler, ok := s.routes()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", req.Method)
		return
	}

	start := time.Now()
	outcome := handler(w, r, &req)
	observability.Metrics().ObserveRequest(req.Method, outcome, start)
}

type handlerFunc func(http.ResponseWriter, *http.Request, *RPCRequest) string

func (s *Server) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		"wordsale_create":           s.handleCreate,
		"wordsale_commitCollateral": s.handleCommitCollateral,
		"wordsale_sendBloomFilter":  s.handleSendBloomFilter,
		"wordsale_startSale":        s.handleStartSale,
		"wordsale_deposit":          s.handleDeposit,
		"wordsale_acceptSale":       s.handleAcceptSale,
		"wordsale_refuseSale":       s.handleRefuseSale,
		"wordsale_sendWords":        s.handleSendWords,
		"wordsale_withdraw":         s.handleWithdraw,
		"wordsale_get":              s.handleGet,
		"wordsale_withdrawable":     s.handleWithdrawable,
		"wordsale_balance":          s.handleBalance,
		"wordsale_events":           s.handleEvents,
		"wordsale_fund":             s.handleFund,
	}
}

// engineErrorCode maps the engine's rejection taxonomy onto RPC error codes.
func engineErrorCode(err error) int {
	switch {
	case errors.Is(err, wordsale.ErrSaleNotFound):
		return codeSaleNotFound
	case errors.Is(err, wordsale.ErrWrongPhase):
		return codeWrongPhase
	case errors.Is(err, wordsale.ErrUnauthorized):
		return codeCallerForbidden
	case errors.Is(err, wordsale.ErrDeadlineExceeded):
		return codeDeadlineExceeded
	case errors.Is(err, wordsale.ErrBadPayment):
		return codeBadPayment
	case errors.Is(err, wordsale.ErrAlreadySet):
		return codeAlreadySet
	case errors.Is(err, wordsale.ErrInsufficientFunds):
		return codeInsufficient
	case errors.Is(err, wordsale.ErrNothingToWithdraw):
		return codeNothingToClaim
	case errors.Is(err, wordsale.ErrSaleExists):
		return codeSaleConflict
	default:
		return codeServerError
	}
}

func engineErrorStatus(code int) int {
	switch code {
	case codeSaleNotFound:
		return http.StatusNotFound
	case codeCallerForbidden:
		return http.StatusForbidden
	case codeSaleConflict:
		return http.StatusConflict
	case codeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// writeEngineError renders an engine rejection and records it, returning the
// outcome label for metrics.
func (s *Server) writeEngineError(w http.ResponseWriter, req *RPCRequest, err error) string {
	code := engineErrorCode(err)
	observability.Metrics().ObserveError(req.Method, fmt.Sprintf("%d", code))
	writeError(w, engineErrorStatus(code), req.ID, code, "rejected", err.Error())
	return "error"
}

func (s *Server) writeParamError(w http.ResponseWriter, req *RPCRequest, detail string) string {
	observability.Metrics().ObserveError(req.Method, fmt.Sprintf("%d", codeInvalidParams))
	writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", detail)
	return "error"
}

// decodeParams unmarshals the single parameter object every wordsale method
// expects.
func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseSaleID(s string) ([32]byte, error) {
	var id [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return id, fmt.Errorf("invalid sale id: %w", err)
	}
	if len(raw) != 32 {
		return id, fmt.Errorf("sale id must be 32 bytes, got %d", len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func parsePositiveBigInt(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return value, nil
}

// parseFilterValue accepts a Bloom-filter bit vector as a decimal string or
// 0x-prefixed hex.
func parseFilterValue(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(trimmed, "0x"); ok {
		value, ok := new(big.Int).SetString(rest, 16)
		if !ok {
			return nil, fmt.Errorf("invalid filter hex %q", s)
		}
		return value, nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid filter value %q", s)
	}
	return value, nil
}

func parseAddressParam(field, s string) (crypto.Address, error) {
	addr, err := crypto.ParseAddress(s)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}
