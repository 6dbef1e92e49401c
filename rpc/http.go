package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"gridchain/core"
	"gridchain/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	rateLimitWindow = time.Minute
	maxTxPerWindow  = 60
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// AuthTokenEnv names the environment variable carrying the bearer token that
// gates mutating RPC methods.
const AuthTokenEnv = "GRID_RPC_TOKEN"

type rateLimiter struct {
	count       int
	windowStart time.Time
}

// Server exposes the node's native module operations over JSON-RPC 2.0.
type Server struct {
	node    *core.Node
	metrics *observability.ModuleMetrics

	mu           sync.Mutex
	rateLimiters map[string]*rateLimiter
	authToken    string
}

// NewServer constructs a server bound to the supplied node. The auth token is
// read from the environment; when unset, mutating methods are rejected.
func NewServer(node *core.Node) *Server {
	return &Server{
		node:         node,
		metrics:      observability.Modules(),
		rateLimiters: make(map[string]*rateLimiter),
		authToken:    strings.TrimSpace(os.Getenv(AuthTokenEnv)),
	}
}

// SetAuthToken overrides the bearer token, primarily for tests.
func (s *Server) SetAuthToken(token string) {
	s.authToken = strings.TrimSpace(token)
}

// Start serves the JSON-RPC endpoint on addr until the listener fails.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/", s)
	return http.ListenAndServe(addr, mux)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
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
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "rpc auth token not configured"}
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "missing bearer token"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "invalid bearer token"}
	}
	return nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) allow(source string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	limiter, ok := s.rateLimiters[source]
	if !ok || now.Sub(limiter.windowStart) >= rateLimitWindow {
		s.rateLimiters[source] = &rateLimiter{count: 1, windowStart: now}
		return true
	}
	if limiter.count >= maxTxPerWindow {
		return false
	}
	limiter.count++
	return true
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

// mutating names the methods that change state and therefore require the
// bearer token and count against the per-source rate limit.
var mutating = map[string]bool{
	"registry_register":        true,
	"registry_updateRole":      true,
	"token_transfer":           true,
	"token_mint":               true,
	"market_createListing":     true,
	"market_purchase":          true,
	"market_placeBid":          true,
	"market_finalizeAuction":   true,
	"market_cancelListing":     true,
	"market_confirmDelivery":   true,
	"market_settlePayment":     true,
	"market_openDispute":       true,
	"market_resolveDispute":    true,
	"market_setPlatformFee":    true,
	"market_setListingLimits":  true,
	"market_transferOwnership": true,
	"meter_submitReading":      true,
	"meter_verifyReading":      true,
}

func (s *Server) handlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"registry_register":   s.handleRegistryRegister,
		"registry_updateRole": s.handleRegistryUpdateRole,
		"registry_get":        s.handleRegistryGet,

		"token_transfer":    s.handleTokenTransfer,
		"token_mint":        s.handleTokenMint,
		"token_balanceOf":   s.handleTokenBalanceOf,
		"token_totalSupply": s.handleTokenTotalSupply,

		"market_createListing":     s.handleMarketCreateListing,
		"market_purchase":          s.handleMarketPurchase,
		"market_placeBid":          s.handleMarketPlaceBid,
		"market_finalizeAuction":   s.handleMarketFinalizeAuction,
		"market_cancelListing":     s.handleMarketCancelListing,
		"market_confirmDelivery":   s.handleMarketConfirmDelivery,
		"market_settlePayment":     s.handleMarketSettlePayment,
		"market_openDispute":       s.handleMarketOpenDispute,
		"market_resolveDispute":    s.handleMarketResolveDispute,
		"market_setPlatformFee":    s.handleMarketSetPlatformFee,
		"market_setListingLimits":  s.handleMarketSetListingLimits,
		"market_transferOwnership": s.handleMarketTransferOwnership,
		"market_getListing":        s.handleMarketGetListing,
		"market_getEscrow":         s.handleMarketGetEscrow,
		"market_getTradingHistory": s.handleMarketGetTradingHistory,
		"market_getHighestBid":     s.handleMarketGetHighestBid,
		"market_getBid":            s.handleMarketGetBid,
		"market_listingNonce":      s.handleMarketListingNonce,
		"market_owner":             s.handleMarketOwner,
		"market_platformFee":       s.handleMarketPlatformFee,

		"meter_submitReading": s.handleMeterSubmitReading,
		"meter_getReading":    s.handleMeterGetReading,
		"meter_verifyReading": s.handleMeterVerifyReading,
		"meter_totals":        s.handleMeterTotals,

		"grid_height":       s.handleGridHeight,
		"grid_recentEvents": s.handleGridRecentEvents,
	}
}

// ServeHTTP implements http.Handler for the JSON-RPC endpoint.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_request", "jsonrpc version must be 2.0")
		return
	}
	handler, ok := s.handlers()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", req.Method)
		return
	}
	start := time.Now()
	recorder := &statusRecorder{ResponseWriter: w}
	if mutating[req.Method] {
		if authErr := s.requireAuth(r); authErr != nil {
			s.metrics.Observe(req.Method, start, "unauthorized")
			writeError(recorder, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		if !s.allow(clientIP(r)) {
			s.metrics.Observe(req.Method, start, "rate_limited")
			writeError(recorder, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate_limited", "too many requests")
			return
		}
	}
	handler(recorder, r, &req)
	s.metrics.Observe(req.Method, start, recorder.errKind)
}

// statusRecorder lets the dispatcher attribute an error kind to the metrics
// without re-parsing the response body.
type statusRecorder struct {
	http.ResponseWriter
	errKind string
}

func (s *Server) writeModuleError(w http.ResponseWriter, id interface{}, err error, codes moduleCodes) {
	code, kind, status := codes.classify(err)
	if recorder, ok := w.(*statusRecorder); ok {
		recorder.errKind = kind
	}
	writeError(w, status, id, code, kind, err.Error())
}

// moduleCodes maps a module's sentinel errors onto its JSON-RPC code block.
type moduleCodes struct {
	invalidParams     int
	notFound          int
	forbidden         int
	conflict          int
	insufficientFunds int
	internal          int
	classifyFn        func(err error) (kind string, slot int)
}

const (
	slotInvalidParams = iota
	slotNotFound
	slotForbidden
	slotConflict
	slotInsufficientFunds
	slotInternal
)

func (c moduleCodes) classify(err error) (int, string, int) {
	kind, slot := "internal", slotInternal
	if c.classifyFn != nil {
		kind, slot = c.classifyFn(err)
	}
	switch slot {
	case slotInvalidParams:
		return c.invalidParams, kind, http.StatusBadRequest
	case slotNotFound:
		return c.notFound, kind, http.StatusNotFound
	case slotForbidden:
		return c.forbidden, kind, http.StatusForbidden
	case slotConflict:
		return c.conflict, kind, http.StatusConflict
	case slotInsufficientFunds:
		return c.insufficientFunds, kind, http.StatusUnprocessableEntity
	default:
		return c.internal, kind, http.StatusInternalServerError
	}
}

func singleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return errors.New("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}
