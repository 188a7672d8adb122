// Package rpc implements the JSON-RPC 2.0 API server.
//
// A server exposes two method families. chain_*, tx_*, mempool_* and
// regtest_* serve compact blocks from the chains registered with SetChain,
// so one daemon can act as the node of another. wallet_* calls a
// boundary.Wallet and renders its records as JSON.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/Klingon-tech/warpwallet/config"
	"github.com/Klingon-tech/warpwallet/internal/boundary"
	klog "github.com/Klingon-tech/warpwallet/internal/log"
	"github.com/Klingon-tech/warpwallet/internal/mempool"
	"github.com/Klingon-tech/warpwallet/internal/miner"
	"github.com/rs/zerolog"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// Chain is a chain the server serves blocks and relays transactions for.
type Chain interface {
	boundary.Backend
	mempool.Source
}

// Server is the JSON-RPC 2.0 HTTP server.
type Server struct {
	addr        string
	wallet      *boundary.Wallet       // For wallet RPC (nil = disabled).
	chains      map[uint8]Chain        // coin id → served chain
	miners      map[uint8]*miner.Miner // coin id → regtest miner
	server      *http.Server
	logger      zerolog.Logger
	ln          net.Listener
	allowedNets []*net.IPNet // Empty = allow all.
	corsOrigins []string     // Empty = no CORS headers.
}

// New creates a new RPC server. The rpcCfg parameter controls IP filtering
// and CORS. A zero-value RPCConfig allows all IPs and disables CORS.
func New(addr string, rpcCfg ...config.RPCConfig) *Server {
	s := &Server{
		addr:   addr,
		chains: make(map[uint8]Chain),
		miners: make(map[uint8]*miner.Miner),
		logger: klog.WithComponent("rpc"),
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
		// A first scan of a long chain runs inside one request.
		WriteTimeout: 10 * time.Minute,
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

// SetWallet enables the wallet_* endpoints.
func (s *Server) SetWallet(w *boundary.Wallet) {
	s.wallet = w
}

// SetChain serves chain c as coin id.
func (s *Server) SetChain(id uint8, c Chain) {
	s.chains[id] = c
}

// SetMiner serves the development chain m as coin id and enables the
// regtest_* endpoints for it.
func (s *Server) SetMiner(id uint8, m *miner.Miner) {
	s.chains[id] = m
	s.miners[id] = m
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

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}

	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\"")
		return
	}

	result, rpcErr := s.dispatch(r.Context(), &req)
	if rpcErr != nil {
		s.logger.Debug().Str("method", req.Method).Int("code", rpcErr.Code).Msg(rpcErr.Message)
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

// dispatch routes a request to the appropriate handler.
func (s *Server) dispatch(ctx context.Context, req *Request) (interface{}, *Error) {
	switch req.Method {
	case "chain_getInfo":
		return s.handleChainGetInfo(ctx, req)
	case "chain_getBlock":
		return s.handleChainGetBlock(ctx, req)
	case "chain_getTreeState":
		return s.handleChainGetTreeState(ctx, req)
	case "tx_submit":
		return s.handleTxSubmit(ctx, req)
	case "mempool_getContent":
		return s.handleMempoolGetContent(ctx, req)
	case "regtest_mine":
		return s.handleRegtestMine(req)
	case "regtest_fund":
		return s.handleRegtestFund(req)
	case "wallet_listCoins":
		return s.handleWalletListCoins(req)
	case "wallet_generatePhrase":
		return s.handleWalletGeneratePhrase(req)
	case "wallet_createAccount":
		return s.handleWalletCreateAccount(req)
	case "wallet_importKey":
		return s.handleWalletImportKey(req)
	case "wallet_listAccounts":
		return s.handleWalletListAccounts(req)
	case "wallet_getAccount":
		return s.handleWalletGetAccount(req)
	case "wallet_renameAccount":
		return s.handleWalletRenameAccount(req)
	case "wallet_reorderAccount":
		return s.handleWalletReorderAccount(req)
	case "wallet_hideAccount":
		return s.handleWalletHideAccount(req)
	case "wallet_setBirth":
		return s.handleWalletSetBirth(req)
	case "wallet_deleteAccount":
		return s.handleWalletDeleteAccount(req)
	case "wallet_downgrade":
		return s.handleWalletDowngrade(req)
	case "wallet_newAddress":
		return s.handleWalletNewAddress(req)
	case "wallet_newTransparentAddress":
		return s.handleWalletNewTransparentAddress(req)
	case "wallet_getBalance":
		return s.handleWalletGetBalance(req)
	case "wallet_listNotes":
		return s.handleWalletListNotes(req)
	case "wallet_excludeNote":
		return s.handleWalletExcludeNote(req)
	case "wallet_scan":
		return s.handleWalletScan(ctx, req)
	case "wallet_rewind":
		return s.handleWalletRewind(req)
	case "wallet_reset":
		return s.handleWalletReset(req)
	case "wallet_listCheckpoints":
		return s.handleWalletListCheckpoints(req)
	case "wallet_purgeCheckpoints":
		return s.handleWalletPurgeCheckpoints(req)
	case "wallet_buildPayment":
		return s.handleWalletBuildPayment(req)
	case "wallet_sign":
		return s.handleWalletSign(ctx, req)
	case "wallet_send":
		return s.handleWalletSend(ctx, req)
	case "wallet_dropPayment":
		return s.handleWalletDropPayment(req)
	case "wallet_listTxs":
		return s.handleWalletListTxs(req)
	case "wallet_getTx":
		return s.handleWalletGetTx(req)
	case "wallet_listMessages":
		return s.handleWalletListMessages(req)
	case "wallet_markRead":
		return s.handleWalletMarkRead(req)
	case "wallet_unreadCount":
		return s.handleWalletUnreadCount(req)
	case "wallet_listContacts":
		return s.handleWalletListContacts(req)
	case "wallet_putContact":
		return s.handleWalletPutContact(req)
	case "wallet_deleteContact":
		return s.handleWalletDeleteContact(req)
	case "wallet_saveContacts":
		return s.handleWalletSaveContacts(ctx, req)
	case "wallet_exportBackup":
		return s.handleWalletExportBackup(req)
	case "wallet_restoreBackup":
		return s.handleWalletRestoreBackup(req)
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
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

// parseOptionalParams is parseParams for endpoints whose params may be
// omitted.
func parseOptionalParams(req *Request, target interface{}) *Error {
	if req.Params == nil {
		return nil
	}
	return parseParams(req, target)
}

// resolveChain returns the chain served as coin id. Coin 0 names the only
// served chain when there is exactly one.
func (s *Server) resolveChain(id uint8) (uint8, Chain, *Error) {
	if id == 0 && len(s.chains) == 1 {
		for only, c := range s.chains {
			return only, c, nil
		}
	}
	c, ok := s.chains[id]
	if !ok {
		return 0, nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("coin %d is not served by this node (serving %v)", id, s.chainIDs())}
	}
	return id, c, nil
}

func (s *Server) chainIDs() []uint8 {
	ids := make([]uint8, 0, len(s.chains))
	for id := range s.chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
