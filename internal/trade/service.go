// Package trade provides the HTTP handlers for the trading simulator:
// initializing a session, executing orders, and querying state, history
// and prices.
//
// All monetary values use shopspring/decimal; never float64 for money.
package trade

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/alphafinance/sim-engine/internal/engine"
	"github.com/alphafinance/sim-engine/internal/model"
	"github.com/alphafinance/sim-engine/internal/simulator"
	"github.com/alphafinance/sim-engine/internal/tier"
)

// Error codes that are not engine rejection reasons.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeInvalidLevel       = "invalid_level"
	CodeNotInitialized     = "not_initialized"
	CodeAlreadyInitialized = "already_initialized"
	CodeInternal           = "internal_error"
)

// Service exposes a simulator.Manager over HTTP. The manager serializes
// operations per user, so handlers hold no locks of their own.
type Service struct {
	mgr *simulator.Manager
}

// NewService creates a new trade service.
func NewService(mgr *simulator.Manager) *Service {
	return &Service{mgr: mgr}
}

// Routes mounts the simulator endpoints on r.
func (s *Service) Routes(r chi.Router) {
	r.Route("/simulator/{userID}", func(r chi.Router) {
		r.Post("/initialize", s.InitializeSimulator)
		r.Get("/state", s.GetState)
		r.Post("/trade", s.ExecuteTrade)
		r.Get("/trades", s.GetTrades)
		r.Post("/update-prices", s.UpdatePrices)
	})
	r.Get("/levels", s.ListLevels)
	r.Get("/analytics/overview", s.AnalyticsOverview)
}

// --- Request/Response types ---

// InitializeRequest is the JSON body for POST /simulator/{userID}/initialize.
type InitializeRequest struct {
	Level string `json:"level"` // empty → beginner
	Reset bool   `json:"reset"`
}

// TradeRequest is the JSON body for POST /simulator/{userID}/trade.
type TradeRequest struct {
	Symbol     string           `json:"symbol"`
	Side       string           `json:"side"`       // "buy" or "sell"
	Quantity   int64            `json:"quantity"`   // whole shares
	OrderType  string           `json:"order_type"` // "market" (default) or "limit"
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
}

// TradesResponse is the JSON body returned from GET /simulator/{userID}/trades.
type TradesResponse struct {
	UserID string        `json:"user_id"`
	Trades []model.Trade `json:"trades"`
	Total  int64         `json:"total"`
}

// ErrorResponse is the error envelope of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// --- HTTP Handlers ---

// InitializeSimulator handles POST /api/v1/simulator/{userID}/initialize
func (s *Service) InitializeSimulator(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req InitializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
		return
	}
	if req.Level == "" {
		req.Level = tier.Beginner
	}

	snap, err := s.mgr.Initialize(r.Context(), userID, req.Level, req.Reset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// GetState handles GET /api/v1/simulator/{userID}/state
func (s *Service) GetState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.mgr.State(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ExecuteTrade handles POST /api/v1/simulator/{userID}/trade
// Executes at the current market price and returns the trade with the new
// cash balance.
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var body tradeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
		return
	}

	req := body.TradeRequest
	order := model.Order{
		Symbol:     req.Symbol,
		Side:       model.Side(req.Side),
		Type:       model.OrderType(req.OrderType),
		LimitPrice: req.LimitPrice,
	}
	order.Quantity, order.RawQuantity = parseQuantity(body.Quantity)

	res, err := s.mgr.Trade(r.Context(), chi.URLParam(r, "userID"), order)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// tradeBody reads quantity raw so that a malformed one is rejected by the
// engine in its validation order rather than as an undecodable body.
type tradeBody struct {
	TradeRequest
	Quantity json.RawMessage `json:"quantity"`
}

var (
	minQuantity = decimal.NewFromInt(math.MinInt64)
	maxQuantity = decimal.NewFromInt(math.MaxInt64)
)

// parseQuantity returns the whole share count of a JSON quantity, or the
// raw text when it is not a number holding an int64 (strings, booleans and
// fractions included). A missing or null quantity reads as 0.
func parseQuantity(raw json.RawMessage) (int64, string) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return 0, ""
	}
	q, err := decimal.NewFromString(text)
	if err != nil || !q.IsInteger() || q.LessThan(minQuantity) || q.GreaterThan(maxQuantity) {
		return 0, text
	}
	return q.IntPart(), ""
}

// GetTrades handles GET /api/v1/simulator/{userID}/trades
// Returns the newest trades first, at most ?limit=N (default 50).
func (s *Service) GetTrades(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	limit := simulator.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	trades, total, err := s.mgr.History(r.Context(), userID, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, TradesResponse{UserID: userID, Trades: trades, Total: total})
}

// UpdatePrices handles POST /api/v1/simulator/{userID}/update-prices
func (s *Service) UpdatePrices(w http.ResponseWriter, r *http.Request) {
	upd, err := s.mgr.UpdatePrices(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, upd)
}

// ListLevels handles GET /api/v1/levels
func (s *Service) ListLevels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.Catalog().Levels())
}

// AnalyticsOverview handles GET /api/v1/analytics/overview
func (s *Service) AnalyticsOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := s.mgr.Overview(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// fail maps a manager error onto the error envelope.
func (s *Service) fail(w http.ResponseWriter, r *http.Request, err error) {
	var rej *engine.Rejection
	switch {
	case errors.As(err, &rej):
		writeError(w, rejectionStatus(rej.Reason), string(rej.Reason), rej.Message)
	case errors.Is(err, simulator.ErrNotInitialized):
		writeError(w, http.StatusNotFound, CodeNotInitialized, "simulator not initialized; call initialize first")
	case errors.Is(err, simulator.ErrAlreadyInitialized):
		writeError(w, http.StatusConflict, CodeAlreadyInitialized, "simulator already initialized; pass reset to start over")
	case errors.Is(err, simulator.ErrInvalidLevel):
		writeError(w, http.StatusBadRequest, CodeInvalidLevel, err.Error())
	default:
		slog.Error("simulator request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"user", chi.URLParam(r, "userID"),
			"err", err,
		)
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

func rejectionStatus(reason engine.Reason) int {
	switch reason {
	case engine.ReasonLimitNotMet, engine.ReasonInsufficientFunds, engine.ReasonInsufficientShares:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}
