// Package rpc implements the JSON-RPC 2.0 API server.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/Klingon-tech/cryptoken/config"
	"github.com/Klingon-tech/cryptoken/internal/engine"
	"github.com/Klingon-tech/cryptoken/internal/ledger"
	klog "github.com/Klingon-tech/cryptoken/internal/log"
	"github.com/rs/zerolog"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// Server is the JSON-RPC 2.0 HTTP server.
type Server struct {
	addr        string
	engine      *engine.Engine // For wallet_*, balance_* and launch endpoints (nil = disabled).
	ledger      ledger.Ledger  // For ledger_* endpoints (nil = disabled).
	server      *http.Server
	logger      zerolog.Logger
	ln          net.Listener
	allowedNets []*net.IPNet // Empty = allow all.
	corsOrigins []string     // Empty = no CORS headers.
}

// New creates a new RPC server. The rpcCfg parameter controls IP filtering
// and CORS. A zero-value RPCConfig allows all IPs and disables CORS.
// Endpoints are enabled by attaching an engine or a ledger.
func New(addr string, rpcCfg ...config.RPCConfig) *Server {
	s := &Server{
		addr:   addr,
		logger: klog.RPC,
	}

	if len(rpcCfg) > 0 {
		s.allowedNets = parseAllowedIPs(rpcCfg[0].AllowedIPs)
		s.corsOrigins = rpcCfg[0].CORSOrigins
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)

	s.server = &http.Server{
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		// Two-leg trades may run a compensating transfer before replying.
		WriteTimeout: 2 * time.Minute,
	}

	return s
}

// parseAllowedIPs converts string IP/CIDR entries into net.IPNet.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		// Try as a single IP (add /32 or /128).
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// Start begins listening and serving in a background goroutine.
// It returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()

	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// SetEngine enables the wallet, balance and launch endpoints.
func (s *Server) SetEngine(e *engine.Engine) {
	s.engine = e
}

// SetLedger enables the ledger_queryOutputs, ledger_getTransaction and
// ledger_commitTransaction endpoints.
func (s *Server) SetLedger(l ledger.Ledger) {
	s.ledger = l
}

// handleRequest is the main HTTP handler for JSON-RPC requests.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	// IP filtering.
	if len(s.allowedNets) > 0 {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		ip := net.ParseIP(host)
		if ip == nil || !s.isIPAllowed(ip) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	// CORS headers.
	s.setCORSHeaders(w, r)

	// Handle CORS preflight.
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, nil, CodeInvalidRequest, "only POST method is allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, nil, CodeParseError, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		writeError(w, nil, CodeInvalidRequest, "request body too large")
		return
	}

	req, err := decodeRequest(body)
	if err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}

	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\"")
		return
	}

	result, rpcErr := s.dispatch(r.Context(), req)
	if rpcErr != nil {
		writeJSON(w, Response{
			JSONRPC: "2.0",
			Error:   rpcErr,
			ID:      req.ID,
		})
		return
	}

	writeJSON(w, Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	})
}

// decodeRequest parses a request body. Numbers are kept as json.Number so
// amounts above 2^53 survive the round trip through parseParams.
func decodeRequest(body []byte) (*Request, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var req Request
	if err := dec.Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// dispatch routes a request to the appropriate handler.
func (s *Server) dispatch(ctx context.Context, req *Request) (interface{}, *Error) {
	switch req.Method {
	case "wallet_register":
		return s.withEngine(ctx, req, s.handleWalletRegister)
	case "wallet_fetch":
		return s.withEngine(ctx, req, s.handleWalletFetch)
	case "wallet_validatePrivateKey":
		return s.withEngine(ctx, req, s.handleWalletValidatePrivateKey)
	case "wallet_deposit":
		return s.withEngine(ctx, req, s.handleWalletDeposit)
	case "wallet_withdraw":
		return s.withEngine(ctx, req, s.handleWalletWithdraw)
	case "wallet_transferToken":
		return s.withEngine(ctx, req, s.handleWalletTransferToken)
	case "wallet_sellToken":
		return s.withEngine(ctx, req, s.handleWalletSellToken)
	case "wallet_buyToken":
		return s.withEngine(ctx, req, s.handleWalletBuyToken)
	case "token_launch":
		return s.withEngine(ctx, req, s.handleTokenLaunch)
	case "myr_launch":
		return s.withEngine(ctx, req, s.handleMYRLaunch)
	case "balance_token":
		return s.withEngine(ctx, req, s.handleBalanceToken)
	case "balance_myr":
		return s.withEngine(ctx, req, s.handleBalanceMYR)
	case "ledger_getOutputs":
		return s.withEngine(ctx, req, s.handleLedgerGetOutputs)
	case "issuer_myrOutputs":
		return s.withEngine(ctx, req, s.handleIssuerMYROutputs)
	case ledger.MethodQueryOutputs:
		return s.withLedger(ctx, req, s.handleLedgerQueryOutputs)
	case ledger.MethodGetTransaction:
		return s.withLedger(ctx, req, s.handleLedgerGetTransaction)
	case ledger.MethodCommitTransaction:
		return s.withLedger(ctx, req, s.handleLedgerCommitTransaction)
	default:
		return nil, methodNotFound(req.Method)
	}
}

type handlerFunc func(context.Context, *Request) (interface{}, *Error)

// withEngine runs h only when an engine is attached.
func (s *Server) withEngine(ctx context.Context, req *Request, h handlerFunc) (interface{}, *Error) {
	if s.engine == nil {
		return nil, methodNotFound(req.Method)
	}
	return h(ctx, req)
}

// withLedger runs h only when a ledger is attached.
func (s *Server) withLedger(ctx context.Context, req *Request, h handlerFunc) (interface{}, *Error) {
	if s.ledger == nil {
		return nil, methodNotFound(req.Method)
	}
	return h(ctx, req)
}

func methodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", method)}
}

// writeJSON writes a JSON-RPC response.
func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes a JSON-RPC error response.
func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeJSON(w, Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	})
}

// isIPAllowed checks if the IP is in the allowed networks list.
func (s *Server) isIPAllowed(ip net.IP) bool {
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// setCORSHeaders adds CORS headers based on the configured origins.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsOrigins) == 0 {
		return
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	// Check if origin is allowed.
	allowed := false
	for _, o := range s.corsOrigins {
		if o == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			allowed = true
			break
		}
		if o == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			allowed = true
			break
		}
	}

	if allowed {
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}
}

// parseParams unmarshals the request params into the given target.
func parseParams(req *Request, target interface{}) *Error {
	if req.Params == nil {
		return &Error{Code: CodeInvalidParams, Message: "params required"}
	}

	data, err := json.Marshal(req.Params)
	if err != nil {
		return &Error{Code: CodeInvalidParams, Message: "invalid params"}
	}

	if err := json.Unmarshal(data, target); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}
