package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/punchamoorthee/crashops/internal/domain"
	"github.com/punchamoorthee/crashops/internal/ledger"
)

var (
	ErrAmountOutOfRange = errors.New("amount outside configured range")
	ErrNotSessionOwner  = errors.New("session belongs to another account")
)

var sessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "crashops_session_transitions_total",
	Help: "Payment session terminal transitions, labeled by kind, status and trigger",
}, []string{"kind", "status", "trigger"})

type Config struct {
	DepositMin  int64
	DepositMax  int64
	WithdrawMin int64
	WithdrawMax int64

	SessionTTL      time.Duration
	MaxPollAttempts int
}

// Manager drives the PENDING -> {COMPLETED, FAILED, CANCELLED} session state
// machine. Provider calls happen with no ledger lock held; the withdraw hold
// exists precisely so that is safe.
type Manager struct {
	store     ledger.Store
	providers map[string]Provider
	cfg       Config
	logger    *slog.Logger
	clock     func() time.Time
	newID     func() string
}

func NewManager(store ledger.Store, providers map[string]Provider, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		providers: providers,
		cfg:       cfg,
		logger:    logger,
		clock:     time.Now,
		newID:     newSessionID,
	}
}

// SetClock replaces the manager's time source. Test hook.
func (m *Manager) SetClock(now func() time.Time) {
	m.clock = now
}

func newSessionID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return "ps_" + hex.EncodeToString(b)
}

func (m *Manager) amountInRange(kind domain.SessionKind, amount int64) bool {
	if kind == domain.SessionDeposit {
		return amount >= m.cfg.DepositMin && amount <= m.cfg.DepositMax
	}
	return amount >= m.cfg.WithdrawMin && amount <= m.cfg.WithdrawMax
}

// Initiate validates the request, persists the PENDING session (holding the
// debit for withdrawals) and starts the external flow. When the provider call
// itself fails the session comes back already FAILED, with the cause recorded
// and any hold reversed.
func (m *Manager) Initiate(ctx context.Context, accountID int64, kind domain.SessionKind, amount int64, phone string) (*domain.PaymentSession, error) {
	if !m.amountInRange(kind, amount) {
		return nil, fmt.Errorf("%w: %d", ErrAmountOutOfRange, amount)
	}
	operator, err := OperatorForPhone(phone)
	if err != nil {
		return nil, err
	}
	provider, ok := m.providers[operator]
	if !ok {
		return nil, fmt.Errorf("operator %q has no configured provider", operator)
	}

	sess := &domain.PaymentSession{
		ID:        m.newID(),
		AccountID: accountID,
		Kind:      kind,
		Amount:    amount,
		Phone:     phone,
		Operator:  operator,
		Status:    domain.SessionPending,
		ExpiresAt: m.clock().Add(m.cfg.SessionTTL),
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	m.logger.Info("payment session created",
		"session_id", sess.ID, "account_id", accountID, "kind", kind, "amount", amount, "operator", operator)

	result, err := provider.Initiate(ctx, sess)
	if err != nil {
		return m.resolve(ctx, sess.ID, domain.SessionFailed, "provider initiate: "+err.Error(), "initiate")
	}

	if result.ProviderRef != "" {
		if err := m.store.SetSessionProvider(ctx, sess.ID, result.ProviderRef); err != nil {
			return nil, err
		}
		sess.ProviderRef = result.ProviderRef
	}

	// Some providers settle synchronously.
	if result.Status.Terminal() {
		return m.resolve(ctx, sess.ID, result.Status, "provider settled at initiate", "initiate")
	}
	return sess, nil
}

// Reconcile applies a provider-reported terminal status. Idempotent: a
// session already terminal is returned unchanged.
func (m *Manager) Reconcile(ctx context.Context, sessionID string, status domain.SessionStatus, trigger string) (*domain.PaymentSession, error) {
	if !status.Terminal() {
		return m.store.GetSession(ctx, sessionID)
	}
	return m.resolve(ctx, sessionID, status, "", trigger)
}

func (m *Manager) resolve(ctx context.Context, sessionID string, status domain.SessionStatus, cause, trigger string) (*domain.PaymentSession, error) {
	sess, changed, err := m.store.ResolveSession(ctx, sessionID, status, cause)
	if err != nil {
		return nil, err
	}
	if changed {
		sessionTransitions.WithLabelValues(string(sess.Kind), string(status), trigger).Inc()
		m.logger.Info("payment session resolved",
			"session_id", sess.ID, "account_id", sess.AccountID, "kind", sess.Kind,
			"status", status, "cause", cause, "trigger", trigger)
	}
	return sess, nil
}

// Poll drives the provider status check for a PENDING session. Provider
// errors are retryable until the attempt budget is exhausted, at which point
// the session fails.
func (m *Manager) Poll(ctx context.Context, sessionID string) (*domain.PaymentSession, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return sess, nil
	}
	if m.clock().After(sess.ExpiresAt) {
		return m.resolve(ctx, sess.ID, domain.SessionFailed, "session expired", "poll")
	}
	if sess.ProviderRef == "" {
		return sess, nil
	}

	provider, ok := m.providers[sess.Operator]
	if !ok {
		return nil, fmt.Errorf("operator %q has no configured provider", sess.Operator)
	}

	status, err := provider.PollStatus(ctx, sess.ProviderRef)
	if err != nil {
		attempts, aerr := m.store.RecordPollAttempt(ctx, sess.ID)
		if aerr != nil {
			return nil, aerr
		}
		if attempts >= m.cfg.MaxPollAttempts {
			return m.resolve(ctx, sess.ID, domain.SessionFailed,
				"poll attempts exhausted: "+err.Error(), "poll")
		}
		m.logger.Warn("provider poll failed",
			"session_id", sess.ID, "operator", sess.Operator, "attempt", attempts, "error", err)
		return sess, nil
	}

	if status.Terminal() {
		return m.resolve(ctx, sess.ID, status, "", "poll")
	}
	return sess, nil
}

// Cancel lets the owning account abandon a PENDING session; the withdraw
// hold, if any, is reversed through the same path as expiry.
func (m *Manager) Cancel(ctx context.Context, sessionID string, accountID int64) (*domain.PaymentSession, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.AccountID != accountID {
		return nil, ErrNotSessionOwner
	}
	return m.resolve(ctx, sessionID, domain.SessionCancelled, "cancelled by owner", "client")
}

// ExpireStale fails every PENDING session past its deadline. Called by the
// reaper.
func (m *Manager) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	stale, err := m.store.StaleSessions(ctx, now, 100)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, sess := range stale {
		if _, err := m.resolve(ctx, sess.ID, domain.SessionFailed, "session expired", "sweep"); err != nil {
			return expired, fmt.Errorf("expiry of session %s failed: %w", sess.ID, err)
		}
		expired++
	}
	return expired, nil
}
