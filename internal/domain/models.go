package domain

import "time"

// Account represents a player's wallet in the ledger. Balance and BonusBalance
// are integer cents; only the ledger store mutates them.
type Account struct {
	ID               int64     `json:"id"`
	Balance          int64     `json:"balance"`
	BonusBalance     int64     `json:"bonus_balance"`
	BonusUnlocked    bool      `json:"bonus_unlocked"`
	SponsorID        *int64    `json:"sponsor_id,omitempty"`
	FirstBetConsumed bool      `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
}

type TransactionType string

const (
	TxDeposit        TransactionType = "DEPOSIT"
	TxWithdraw       TransactionType = "WITHDRAW"
	TxBet            TransactionType = "BET"
	TxWin            TransactionType = "WIN"
	TxRefund         TransactionType = "REFUND"
	TxBonusNewPlayer TransactionType = "BONUS_NEW_PLAYER"
	TxBonusReferral  TransactionType = "BONUS_REFERRAL"
)

// Debit reports whether the type removes funds from the account.
func (t TransactionType) Debit() bool {
	return t == TxBet || t == TxWithdraw
}

// Bonus reports whether the type moves the bonus balance rather than the
// withdrawable one.
func (t TransactionType) Bonus() bool {
	return t == TxBonusNewPlayer || t == TxBonusReferral
}

type TransactionStatus string

const (
	TxStatusCompleted TransactionStatus = "COMPLETED"
	TxStatusFailed    TransactionStatus = "FAILED"
	TxStatusCancelled TransactionStatus = "CANCELLED"
)

// Transaction is one immutable leg of the audit trail. Amount is the signed
// balance delta: credits positive, debits negative. The sum of completed
// amounts for an account always equals its balance.
type Transaction struct {
	ID        int64             `json:"id"`
	AccountID int64             `json:"account_id"`
	Type      TransactionType   `json:"type"`
	Amount    int64             `json:"amount"`
	Status    TransactionStatus `json:"status"`
	Reference string            `json:"reference,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type RoundStatus string

const (
	RoundPlaying   RoundStatus = "PLAYING"
	RoundCashedOut RoundStatus = "CASHED_OUT"
	RoundCrashed   RoundStatus = "CRASHED"
)

// Terminal reports whether the status is final.
func (s RoundStatus) Terminal() bool {
	return s == RoundCashedOut || s == RoundCrashed
}

// Round is one wager cycle. Multiplier is derived from StartedAt while the
// round is PLAYING and frozen at the value the terminal transition committed.
// CrashPoint is sampled at creation and never serialized before the round ends.
type Round struct {
	ID         int64       `json:"id"`
	AccountID  int64       `json:"account_id"`
	Stake      int64       `json:"stake"`
	Multiplier float64     `json:"multiplier"`
	CrashPoint float64     `json:"-"`
	Status     RoundStatus `json:"status"`
	Payout     int64       `json:"payout"`
	StartedAt  time.Time   `json:"started_at"`
	EndedAt    *time.Time  `json:"ended_at,omitempty"`
}

type SessionKind string

const (
	SessionDeposit  SessionKind = "DEPOSIT"
	SessionWithdraw SessionKind = "WITHDRAW"
)

type SessionStatus string

const (
	SessionPending   SessionStatus = "PENDING"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionFailed    SessionStatus = "FAILED"
	SessionCancelled SessionStatus = "CANCELLED"
)

// Terminal reports whether the status is final. Transitions out of a terminal
// status are never applied.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionCancelled
}

// PaymentSession tracks one deposit or withdraw request against a mobile-money
// provider. Withdraw sessions hold the debit from creation; the hold is
// reversed when the session fails, is cancelled, or expires.
type PaymentSession struct {
	ID          string        `json:"id"`
	AccountID   int64         `json:"account_id"`
	Kind        SessionKind   `json:"kind"`
	Amount      int64         `json:"amount"`
	Phone       string        `json:"phone"`
	Operator    string        `json:"operator"`
	ProviderRef string        `json:"provider_ref,omitempty"`
	Status      SessionStatus `json:"status"`
	Cause       string        `json:"cause,omitempty"`
	Attempts    int           `json:"attempts"`
	CreatedAt   time.Time     `json:"created_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}
