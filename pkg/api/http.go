// Package api exposes the inbound queue over HTTP. Relayers authenticate with an API key that maps to the account
// submissions are attributed to.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	localCommon "github.com/mw-chain/polkadot-sdk/pkg/common"
	"github.com/mw-chain/polkadot-sdk/pkg/inbound"
	"github.com/mw-chain/polkadot-sdk/pkg/ledger"
	"go.uber.org/zap"
)

const MaxBodySize = 5 * 1024 * 1024

// Queue is the subset of *inbound.Queue served by the API.
type Queue interface {
	Submit(caller localCommon.AccountID, proof *inbound.EventProof) error
	SetOperatingMode(caller localCommon.AccountID, mode inbound.OperatingMode) error
	OperatingMode() (inbound.OperatingMode, error)
	Nonce(ch localCommon.ChannelID) (uint64, error)
	Balance(who localCommon.AccountID) (*uint256.Int, error)
	SetBalance(caller, who localCommon.AccountID, amount *uint256.Int) error
}

var _ Queue = (*inbound.Queue)(nil)

type (
	submitResponse struct {
		Status string `json:"status"`
	}

	nonceResponse struct {
		ChannelID localCommon.ChannelID `json:"channelId"`
		Nonce     uint64                `json:"nonce"`
	}

	modeBody struct {
		Mode inbound.OperatingMode `json:"mode"`
	}

	// setModeRequest requires mode to be present.
	setModeRequest struct {
		Mode *inbound.OperatingMode `json:"mode"`
	}

	balanceBody struct {
		Account localCommon.AccountID `json:"account"`
		Balance string                `json:"balance"`
	}
)

type httpServer struct {
	logger      *zap.Logger
	env         localCommon.Environment
	permissions *Permissions
	queue       Queue
}

// statusForError maps queue errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, inbound.ErrInvalidLog),
		errors.Is(err, inbound.ErrInvalidChannel),
		errors.Is(err, inbound.ErrInvalidGateway),
		errors.Is(err, inbound.ErrInvalidNonce):
		return http.StatusBadRequest
	case errors.Is(err, inbound.ErrInvalidProof):
		return http.StatusUnprocessableEntity
	case errors.Is(err, inbound.ErrHalted):
		return http.StatusServiceUnavailable
	case errors.Is(err, inbound.ErrBadOrigin):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrBelowMinimum):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *httpServer) writeError(w http.ResponseWriter, endpoint string, err error, status int) {
	httpRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("endpoint", endpoint), zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}

func (s *httpServer) writeJSON(w http.ResponseWriter, endpoint string, v interface{}) {
	w.Header().Add("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.String("endpoint", endpoint), zap.Error(err))
		return
	}
	httpRequests.WithLabelValues(endpoint, strconv.Itoa(http.StatusOK)).Inc()
}

// authenticate resolves the caller from the X-Api-Key header and applies the caller's rate limit. On failure the
// response has been written.
func (s *httpServer) authenticate(w http.ResponseWriter, r *http.Request, endpoint string) (*permissionEntry, bool) {
	// There should be one and only one API key in the header.
	apiKeys, exists := r.Header["X-Api-Key"]
	if !exists || len(apiKeys) != 1 {
		s.logger.Debug("received a request with the wrong number of api keys", zap.Stringer("url", r.URL), zap.Int("numApiKeys", len(apiKeys)))
		s.writeError(w, endpoint, errors.New("api key is missing"), http.StatusUnauthorized)
		return nil, false
	}

	entry, exists := s.permissions.GetUserEntry(apiKeys[0])
	if !exists {
		s.logger.Debug("invalid api key", zap.String("apiKey", apiKeys[0]))
		s.writeError(w, endpoint, errors.New("invalid api key"), http.StatusForbidden)
		return nil, false
	}

	if !entry.limiter.Allow() {
		rateLimitedRequests.WithLabelValues(entry.userName).Inc()
		s.writeError(w, endpoint, errors.New("rate limit exceeded"), http.StatusTooManyRequests)
		return nil, false
	}
	return entry, true
}

func (s *httpServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	const endpoint = "submit"

	// Set CORS headers for all requests.
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// Set CORS headers for the preflight request
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Api-Key")
		w.Header().Set("Access-Control-Max-Age", "3600")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	entry, ok := s.authenticate(w, r, endpoint)
	if !ok {
		return
	}

	var proof inbound.EventProof
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodySize)).Decode(&proof); err != nil {
		s.logger.Debug("failed to decode body", zap.String("userName", entry.userName), zap.Error(err))
		s.writeError(w, endpoint, err, http.StatusBadRequest)
		return
	}

	if err := s.queue.Submit(entry.account, &proof); err != nil {
		s.writeError(w, endpoint, err, statusForError(err))
		return
	}

	s.writeJSON(w, endpoint, &submitResponse{Status: "accepted"})
}

func (s *httpServer) handleGetNonce(w http.ResponseWriter, r *http.Request) {
	const endpoint = "nonce"

	ch, err := localCommon.StringToChannelID(mux.Vars(r)["channelID"])
	if err != nil {
		s.writeError(w, endpoint, err, http.StatusBadRequest)
		return
	}

	nonce, err := s.queue.Nonce(ch)
	if err != nil {
		s.writeError(w, endpoint, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, endpoint, &nonceResponse{ChannelID: ch, Nonce: nonce})
}

func (s *httpServer) handleGetMode(w http.ResponseWriter, _ *http.Request) {
	const endpoint = "get_mode"

	mode, err := s.queue.OperatingMode()
	if err != nil {
		s.writeError(w, endpoint, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, endpoint, &modeBody{Mode: mode})
}

func (s *httpServer) handleSetMode(w http.ResponseWriter, r *http.Request) {
	const endpoint = "set_mode"

	entry, ok := s.authenticate(w, r, endpoint)
	if !ok {
		return
	}

	var req setModeRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, endpoint, err, http.StatusBadRequest)
		return
	}
	if req.Mode == nil {
		s.writeError(w, endpoint, errors.New("mode is missing"), http.StatusBadRequest)
		return
	}

	if err := s.queue.SetOperatingMode(entry.account, *req.Mode); err != nil {
		s.writeError(w, endpoint, err, statusForError(err))
		return
	}

	s.logger.Info("operating mode changed via api", zap.String("userName", entry.userName), zap.Stringer("mode", *req.Mode))
	s.writeJSON(w, endpoint, &modeBody{Mode: *req.Mode})
}

func (s *httpServer) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	const endpoint = "get_balance"

	who, err := localCommon.StringToAccountID(mux.Vars(r)["account"])
	if err != nil {
		s.writeError(w, endpoint, err, http.StatusBadRequest)
		return
	}

	bal, err := s.queue.Balance(who)
	if err != nil {
		s.writeError(w, endpoint, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, endpoint, &balanceBody{Account: who, Balance: bal.Dec()})
}

func (s *httpServer) handleSetBalance(w http.ResponseWriter, r *http.Request) {
	const endpoint = "set_balance"

	if !s.env.AllowsBalanceOverride() {
		s.writeError(w, endpoint, fmt.Errorf("setting balances is not allowed in %s", s.env), http.StatusForbidden)
		return
	}

	entry, ok := s.authenticate(w, r, endpoint)
	if !ok {
		return
	}

	who, err := localCommon.StringToAccountID(mux.Vars(r)["account"])
	if err != nil {
		s.writeError(w, endpoint, err, http.StatusBadRequest)
		return
	}

	var body balanceBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodySize)).Decode(&body); err != nil {
		s.writeError(w, endpoint, err, http.StatusBadRequest)
		return
	}
	amount, err := uint256.FromDecimal(body.Balance)
	if err != nil {
		s.writeError(w, endpoint, fmt.Errorf("invalid balance %q: %w", body.Balance, err), http.StatusBadRequest)
		return
	}

	if err := s.queue.SetBalance(entry.account, who, amount); err != nil {
		s.writeError(w, endpoint, err, statusForError(err))
		return
	}
	s.writeJSON(w, endpoint, &balanceBody{Account: who, Balance: amount.Dec()})
}

func (s *httpServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("health check")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "ok")
}

// NewRouter returns the API routes.
func NewRouter(logger *zap.Logger, env localCommon.Environment, permissions *Permissions, queue Queue) *mux.Router {
	s := &httpServer{
		logger:      logger.With(zap.String("component", "api")),
		env:         env,
		permissions: permissions,
		queue:       queue,
	}
	r := mux.NewRouter()
	r.HandleFunc("/v1/submit", s.handleSubmit).Methods("POST", "OPTIONS")
	r.HandleFunc("/v1/nonce/{channelID}", s.handleGetNonce).Methods("GET")
	r.HandleFunc("/v1/mode", s.handleGetMode).Methods("GET")
	r.HandleFunc("/v1/mode", s.handleSetMode).Methods("PUT")
	r.HandleFunc("/v1/balance/{account}", s.handleGetBalance).Methods("GET")
	r.HandleFunc("/v1/balance/{account}", s.handleSetBalance).Methods("PUT")
	r.HandleFunc("/v1/health", s.handleHealth).Methods("GET")
	return r
}

func NewHTTPServer(addr string, logger *zap.Logger, env localCommon.Environment, permissions *Permissions, queue Queue) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(logger, env, permissions, queue),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
