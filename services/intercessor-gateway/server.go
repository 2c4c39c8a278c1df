package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"intercessor/core/events"
	"intercessor/core/types"
	"intercessor/crypto"
	"intercessor/native/common"
	"intercessor/native/intercessor"
	"intercessor/observability"
)

const maxRequestBody = 1 << 20

// Server exposes the trade intent engines over HTTP.
type Server struct {
	engine    *intercessor.Engine
	native    *intercessor.NativeEngine
	registry  *intercessor.Registry
	authority [20]byte
	auth      *Authenticator
	log       *slog.Logger

	router http.Handler
}

// NewServer wires the engines behind an authenticated chi router.
func NewServer(engine *intercessor.Engine, native *intercessor.NativeEngine, registry *intercessor.Registry, authority [20]byte, auth *Authenticator, log *slog.Logger) *Server {
	if engine == nil {
		panic("engine required")
	}
	if native == nil {
		panic("native engine required")
	}
	if registry == nil {
		panic("registry required")
	}
	if auth == nil {
		panic("authenticator required")
	}
	if log == nil {
		log = slog.Default()
	}
	srv := &Server{
		engine:    engine,
		native:    native,
		registry:  registry,
		authority: authority,
		auth:      auth,
		log:       log,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(protected chi.Router) {
		protected.Use(s.authenticate)
		protected.Post("/participants", s.handleAdmit)
		protected.Post("/trades", s.handleTrade)
		protected.Get("/trades/{id}", s.handleTradeGet)
		protected.Post("/trades/{id}/cancel", s.handleTradeCancel)
		protected.Post("/native/deposits", s.handleNativeDeposit)
		protected.Post("/native/trades", s.handleNativeTrade)
		protected.Post("/native/trades/{id}/cancel", s.handleNativeCancel)
	})

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r)
		duration := time.Since(start)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		observability.GatewayMetrics().ObserveRequest(route, r.Method, recorder.status, duration)
		s.log.Info("request",
			slog.String("requestId", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", recorder.status),
			slog.Duration("duration", duration),
		)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
			return
		}
		if _, err := s.auth.Authenticate(r, body); err != nil {
			s.writeError(w, http.StatusUnauthorized, err)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type admitRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleAdmit(w http.ResponseWriter, r *http.Request) {
	var req admitRequest
	if !s.decode(w, r, &req) {
		return
	}
	identity, err := parseAddress(req.Address)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("address: %w", err))
		return
	}
	if err := s.registry.Admit(s.authority, identity); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"address": req.Address, "status": "admitted"})
}

type tradeRequest struct {
	TradeID          string `json:"tradeId"`
	Caller           string `json:"caller"`
	BaseAmount       string `json:"baseAmount"`
	BaseCounterparty string `json:"baseCounterparty"`
	BaseAsset        string `json:"baseAsset"`
	TermAmount       string `json:"termAmount"`
	TermCounterparty string `json:"termCounterparty"`
	TermAsset        string `json:"termAsset"`
}

type tradeResponse struct {
	TradeID string `json:"tradeId"`
	Settled bool   `json:"settled"`
	Status  string `json:"status"`
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("caller: %w", err))
		return
	}
	baseCp, err := parseAddress(req.BaseCounterparty)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("baseCounterparty: %w", err))
		return
	}
	termCp, err := parseAddress(req.TermCounterparty)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("termCounterparty: %w", err))
		return
	}
	baseAmount, err := parseAmount(req.BaseAmount)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("baseAmount: %w", err))
		return
	}
	termAmount, err := parseAmount(req.TermAmount)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("termAmount: %w", err))
		return
	}
	settled, err := s.engine.Trade(caller, req.TradeID,
		baseAmount, baseCp, intercessor.FungibleAsset(req.BaseAsset),
		termAmount, termCp, intercessor.FungibleAsset(req.TermAsset))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	status := "pending"
	code := http.StatusAccepted
	if settled {
		status = "settled"
		code = http.StatusOK
	}
	writeJSON(w, code, tradeResponse{TradeID: strings.TrimSpace(req.TradeID), Settled: settled, Status: status})
}

type intentView struct {
	TradeID          string `json:"tradeId"`
	Initiator        string `json:"initiator"`
	BaseAmount       string `json:"baseAmount"`
	BaseCounterparty string `json:"baseCounterparty"`
	BaseAsset        string `json:"baseAsset"`
	TermAmount       string `json:"termAmount"`
	TermCounterparty string `json:"termCounterparty"`
	TermAsset        string `json:"termAsset"`
	EscrowedNative   string `json:"escrowedNative,omitempty"`
	CreatedAt        int64  `json:"createdAt"`
	Status           string `json:"status"`
}

func viewIntent(intent *intercessor.TradeIntent) intentView {
	view := intentView{
		TradeID:          intent.TradeID,
		Initiator:        crypto.NewAddress(intent.Initiator[:]).String(),
		BaseAmount:       intent.Base.Amount.String(),
		BaseCounterparty: crypto.NewAddress(intent.Base.Counterparty[:]).String(),
		BaseAsset:        intent.Base.Asset.Symbol,
		TermAmount:       intent.Term.Amount.String(),
		TermCounterparty: crypto.NewAddress(intent.Term.Counterparty[:]).String(),
		TermAsset:        intent.Term.Asset.Symbol,
		CreatedAt:        intent.CreatedAt,
		Status:           intent.Status.String(),
	}
	if intent.EscrowedNative != nil {
		view.EscrowedNative = intent.EscrowedNative.String()
	}
	return view
}

func (s *Server) handleTradeGet(w http.ResponseWriter, r *http.Request) {
	tradeID := chi.URLParam(r, "id")
	intent, ok, err := s.engine.Pending(tradeID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		s.writeEngineError(w, intercessor.ErrIntentNotFound)
		return
	}
	writeJSON(w, http.StatusOK, viewIntent(intent))
}

type cancelRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) handleTradeCancel(w http.ResponseWriter, r *http.Request) {
	s.cancel(w, r, s.engine.Cancel)
}

func (s *Server) handleNativeCancel(w http.ResponseWriter, r *http.Request) {
	s.cancel(w, r, s.native.Cancel)
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request, cancelFn func([20]byte, string) error) {
	tradeID := chi.URLParam(r, "id")
	var req cancelRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("caller: %w", err))
		return
	}
	if err := cancelFn(caller, tradeID); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tradeId": strings.TrimSpace(tradeID), "status": "cancelled"})
}

type nativeDepositRequest struct {
	TradeID          string `json:"tradeId"`
	Caller           string `json:"caller"`
	Value            string `json:"value"`
	TermAmount       string `json:"termAmount"`
	TermCounterparty string `json:"termCounterparty"`
	TermAsset        string `json:"termAsset"`
}

func (s *Server) handleNativeDeposit(w http.ResponseWriter, r *http.Request) {
	var req nativeDepositRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("caller: %w", err))
		return
	}
	termCp, err := parseAddress(req.TermCounterparty)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("termCounterparty: %w", err))
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("value: %w", err))
		return
	}
	termAmount, err := parseAmount(req.TermAmount)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("termAmount: %w", err))
		return
	}
	if err := s.native.Deposit(caller, req.TradeID, caller, termAmount, termCp, intercessor.FungibleAsset(req.TermAsset), value); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tradeResponse{TradeID: strings.TrimSpace(req.TradeID), Settled: false, Status: "pending"})
}

type nativeTradeRequest struct {
	TradeID          string `json:"tradeId"`
	Caller           string `json:"caller"`
	BaseAmount       string `json:"baseAmount"`
	BaseCounterparty string `json:"baseCounterparty"`
	TermAmount       string `json:"termAmount"`
	TermCounterparty string `json:"termCounterparty"`
	TermAsset        string `json:"termAsset"`
}

func (s *Server) handleNativeTrade(w http.ResponseWriter, r *http.Request) {
	var req nativeTradeRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("caller: %w", err))
		return
	}
	baseCp, err := parseAddress(req.BaseCounterparty)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("baseCounterparty: %w", err))
		return
	}
	termCp, err := parseAddress(req.TermCounterparty)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("termCounterparty: %w", err))
		return
	}
	baseAmount, err := parseAmount(req.BaseAmount)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("baseAmount: %w", err))
		return
	}
	termAmount, err := parseAmount(req.TermAmount)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("termAmount: %w", err))
		return
	}
	if err := s.native.Trade(caller, req.TradeID, baseAmount, baseCp, termAmount, termCp, intercessor.FungibleAsset(req.TermAsset)); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tradeResponse{TradeID: strings.TrimSpace(req.TradeID), Settled: true, Status: "settled"})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return false
	}
	if len(body) > maxRequestBody {
		s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", maxRequestBody))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON payload: %w", err))
		return false
	}
	return true
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, intercessor.ErrUnauthorized):
		s.writeError(w, http.StatusForbidden, err)
	case errors.Is(err, intercessor.ErrIntentNotFound):
		s.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, intercessor.ErrTermsMismatch):
		s.writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, intercessor.ErrDuplicatePending), errors.Is(err, intercessor.ErrSettlementFailed):
		s.writeError(w, http.StatusConflict, err)
	case errors.Is(err, common.ErrModulePaused):
		s.writeError(w, http.StatusServiceUnavailable, err)
	default:
		s.writeError(w, http.StatusBadRequest, err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func parseAddress(raw string) ([20]byte, error) {
	addr, err := crypto.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Bytes20(), nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if amount.Sign() <= 0 {
		return nil, errors.New("amount must be positive")
	}
	return amount, nil
}

// slogEmitter bridges engine events into structured logs.
type slogEmitter struct {
	log *slog.Logger
}

// Emit satisfies events.Emitter.
func (e slogEmitter) Emit(evt events.Event) {
	if e.log == nil {
		return
	}
	attrs := []any{slog.String("event", evt.EventType())}
	if provider, ok := evt.(interface{ Event() *types.Event }); ok {
		if payload := provider.Event(); payload != nil {
			for k, v := range payload.Attributes {
				attrs = append(attrs, slog.String(k, v))
			}
		}
	}
	e.log.Info("engine event", attrs...)
}
