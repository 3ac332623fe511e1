package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/punchamoorthee/crashops/internal/domain"
	"github.com/punchamoorthee/crashops/internal/engine"
	"github.com/punchamoorthee/crashops/internal/ledger"
	"github.com/punchamoorthee/crashops/internal/payment"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crashops_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crashops_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	store    ledger.Store
	engine   *engine.Engine
	payments *payment.Manager

	welcomeBonus int64
}

func NewHandler(store ledger.Store, eng *engine.Engine, payments *payment.Manager, welcomeBonus int64) *Handler {
	return &Handler{store: store, engine: eng, payments: payments, welcomeBonus: welcomeBonus}
}

// Routes mounts every endpoint on the given subrouter.
func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	r.HandleFunc("/accounts/{id}", h.GetAccount).Methods("GET")
	r.HandleFunc("/accounts/{id}/entries", h.GetEntries).Methods("GET")
	r.HandleFunc("/accounts/{id}/rounds", h.GetRoundHistory).Methods("GET")
	r.HandleFunc("/rounds", h.StartRound).Methods("POST")
	r.HandleFunc("/rounds/{id}", h.GetRound).Methods("GET")
	r.HandleFunc("/rounds/{id}/cashout", h.Cashout).Methods("POST")
	r.HandleFunc("/payments", h.InitiatePayment).Methods("POST")
	r.HandleFunc("/payments/{id}", h.GetPayment).Methods("GET")
	r.HandleFunc("/payments/{id}/cancel", h.CancelPayment).Methods("POST")
}

type createAccountRequest struct {
	SponsorID *int64 `json:"sponsor_id,omitempty"`
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	// Empty body means no sponsor.
	_ = json.NewDecoder(r.Body).Decode(&req)

	acc, err := h.store.CreateAccount(r.Context(), req.SponsorID, h.welcomeBonus)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/accounts")
		return
	}
	h.respondJSON(w, http.StatusCreated, acc, "POST", "/accounts")
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	acc, err := h.store.GetAccount(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/accounts/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, acc, "GET", "/accounts/{id}")
}

func (h *Handler) GetEntries(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	limit, offset := pagination(r, 50)

	entries, err := h.store.Entries(r.Context(), id, limit, offset)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/accounts/{id}/entries")
		return
	}
	h.respondJSON(w, http.StatusOK, entries, "GET", "/accounts/{id}/entries")
}

func (h *Handler) GetRoundHistory(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	limit, offset := pagination(r, 20)

	rounds, err := h.engine.History(r.Context(), id, limit, offset)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/accounts/{id}/rounds")
		return
	}
	h.respondJSON(w, http.StatusOK, rounds, "GET", "/accounts/{id}/rounds")
}

type startRoundRequest struct {
	AccountID int64 `json:"account_id"`
	Stake     int64 `json:"stake"`
}

func (h *Handler) StartRound(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/rounds"))
	defer timer.ObserveDuration()

	var req startRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", "/rounds")
		return
	}
	if req.Stake <= 0 {
		h.respondError(w, http.StatusUnprocessableEntity, "Positive stake required", "POST", "/rounds")
		return
	}

	// The idempotency key becomes the BET transaction reference; a retry of
	// the same key is rejected by the unique index instead of double-debiting.
	reference := r.Header.Get("Idempotency-Key")

	round, err := h.engine.StartRound(r.Context(), req.AccountID, req.Stake, reference)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/rounds")
		return
	}
	h.respondJSON(w, http.StatusCreated, round, "POST", "/rounds")
}

func (h *Handler) GetRound(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	snap, err := h.engine.Tick(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/rounds/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, snap, "GET", "/rounds/{id}")
}

func (h *Handler) Cashout(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/rounds/{id}/cashout"))
	defer timer.ObserveDuration()

	id := pathID(r)
	round, err := h.engine.Cashout(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/rounds/{id}/cashout")
		return
	}
	h.respondJSON(w, http.StatusOK, round, "POST", "/rounds/{id}/cashout")
}

type initiatePaymentRequest struct {
	AccountID int64  `json:"account_id"`
	Kind      string `json:"kind"`
	Amount    int64  `json:"amount"`
	Phone     string `json:"phone"`
}

func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/payments"))
	defer timer.ObserveDuration()

	var req initiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", "/payments")
		return
	}

	kind := domain.SessionKind(req.Kind)
	if kind != domain.SessionDeposit && kind != domain.SessionWithdraw {
		h.respondError(w, http.StatusUnprocessableEntity, "Kind must be DEPOSIT or WITHDRAW", "POST", "/payments")
		return
	}

	sess, err := h.payments.Initiate(r.Context(), req.AccountID, kind, req.Amount, req.Phone)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/payments")
		return
	}

	// Adapter failure at initiate comes back as an already-FAILED session.
	if sess.Status == domain.SessionFailed {
		h.respondJSON(w, http.StatusBadGateway, sess, "POST", "/payments")
		return
	}
	h.respondJSON(w, http.StatusAccepted, sess, "POST", "/payments")
}

// GetPayment drives a provider poll for pending sessions, so a client
// checking back is also what advances reconciliation.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, err := h.payments.Poll(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/payments/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, sess, "GET", "/payments/{id}")
}

type cancelPaymentRequest struct {
	AccountID int64 `json:"account_id"`
}

func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req cancelPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", "/payments/{id}/cancel")
		return
	}

	sess, err := h.payments.Cancel(r.Context(), id, req.AccountID)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/payments/{id}/cancel")
		return
	}
	h.respondJSON(w, http.StatusOK, sess, "POST", "/payments/{id}/cancel")
}

// respondDomainError maps sentinel errors to status codes and reason
// messages. Conflict and validation failures are safe to retry after the
// client refreshes its state.
func (h *Handler) respondDomainError(w http.ResponseWriter, err error, method, endpoint string) {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, ledger.ErrRoundNotFound),
		errors.Is(err, ledger.ErrSessionNotFound):
		h.respondError(w, http.StatusNotFound, err.Error(), method, endpoint)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		h.respondError(w, http.StatusUnprocessableEntity, "Insufficient funds", method, endpoint)
	case errors.Is(err, ledger.ErrRoundActive):
		h.respondError(w, http.StatusConflict, "Round already active", method, endpoint)
	case errors.Is(err, ledger.ErrRoundResolved):
		h.respondError(w, http.StatusConflict, "Round already resolved", method, endpoint)
	case errors.Is(err, ledger.ErrDuplicateReference):
		h.respondError(w, http.StatusConflict, "Duplicate idempotency key", method, endpoint)
	case errors.Is(err, engine.ErrBetOutOfRange),
		errors.Is(err, engine.ErrCashoutTooEarly),
		errors.Is(err, payment.ErrAmountOutOfRange),
		errors.Is(err, payment.ErrUnknownOperator):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error(), method, endpoint)
	case errors.Is(err, payment.ErrNotSessionOwner):
		h.respondError(w, http.StatusForbidden, err.Error(), method, endpoint)
	default:
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", method, endpoint)
	}
}

// Helpers
func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func pagination(r *http.Request, defaultLimit int) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = defaultLimit
	}
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
