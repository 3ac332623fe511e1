// Package ledger defines the durable storage contract for the wagering core:
// accounts, the append-only transaction trail, wager rounds and payment
// sessions. Every method that moves money is one atomic unit; a failed call
// leaves no partial mutation behind.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/punchamoorthee/crashops/internal/domain"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrRoundNotFound      = errors.New("round not found")
	ErrSessionNotFound    = errors.New("payment session not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrRoundActive        = errors.New("round already active")
	ErrRoundResolved      = errors.New("round already resolved")
	ErrDuplicateReference = errors.New("duplicate transaction reference")
)

// Store is implemented by the Postgres store for production and by the
// in-memory store for tests and the simulation deployment mode.
type Store interface {
	// CreateAccount registers a player, optionally linked to a sponsor.
	// A non-zero welcomeBonus credits the bonus balance with a
	// BONUS_NEW_PLAYER transaction in the same unit.
	CreateAccount(ctx context.Context, sponsorID *int64, welcomeBonus int64) (*domain.Account, error)
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)

	// Apply locks the account row, validates funds for debit types, mutates
	// the balance and appends the transaction record, all or nothing.
	// amount is a positive magnitude; the stored delta is signed by type.
	Apply(ctx context.Context, accountID int64, typ domain.TransactionType, amount int64, reference string) (*domain.Transaction, error)
	Entries(ctx context.Context, accountID int64, limit, offset int) ([]*domain.Transaction, error)

	// PlaceBet debits the stake, creates the PLAYING round and, on the
	// account's first bet ever, consumes the first-bet flag and unlocks the
	// bonus balance, all in one atomic unit. firstBet reports whether this
	// call consumed the flag.
	PlaceBet(ctx context.Context, accountID, stake int64, crashPoint float64, reference string) (round *domain.Round, firstBet bool, err error)
	GetRound(ctx context.Context, roundID int64) (*domain.Round, error)
	ActiveRound(ctx context.Context, accountID int64) (*domain.Round, error)

	// ResolveRound is the single terminal-transition path. The status flip is
	// a compare-and-swap against PLAYING; a non-zero payout credits a WIN
	// transaction in the same unit. Returns ErrRoundResolved when the round
	// is already terminal.
	ResolveRound(ctx context.Context, roundID int64, status domain.RoundStatus, multiplier float64, payout int64, reference string) (*domain.Round, error)
	RoundHistory(ctx context.Context, accountID int64, limit, offset int) ([]*domain.Round, error)
	StaleRounds(ctx context.Context, olderThan time.Time, limit int) ([]*domain.Round, error)

	// CreateSession persists a payment session; for WITHDRAW kinds the held
	// debit is applied in the same unit and ErrInsufficientFunds aborts both.
	CreateSession(ctx context.Context, s *domain.PaymentSession) error
	GetSession(ctx context.Context, id string) (*domain.PaymentSession, error)
	SetSessionProvider(ctx context.Context, id, providerRef string) error
	RecordPollAttempt(ctx context.Context, id string) (int, error)

	// ResolveSession flips a PENDING session to a terminal status together
	// with its ledger effect (deposit credit, or withdraw-hold refund on
	// failure/cancel). Re-applying a terminal status is a no-op: changed is
	// false and the stored session is returned unmodified.
	ResolveSession(ctx context.Context, id string, status domain.SessionStatus, cause string) (s *domain.PaymentSession, changed bool, err error)
	StaleSessions(ctx context.Context, now time.Time, limit int) ([]*domain.PaymentSession, error)

	// GrantReferralBonus credits the sponsor's bonus balance exactly once per
	// (sponsor, referred) pair. granted is false on replay.
	GrantReferralBonus(ctx context.Context, sponsorID, referredID, amount int64) (granted bool, err error)
}
