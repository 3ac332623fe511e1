package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/punchamoorthee/crashops/internal/domain"
)

const pgUniqueViolation = "23505"

// PostgresStore implements Store on a pgx connection pool. All money-moving
// methods run inside a repeatable-read transaction with the relevant account
// row locked via SELECT ... FOR UPDATE.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// Pool exposes the underlying pool for the seeder.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.db
}

// Migrate creates the schema. Idempotent; safe to run at every startup.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id BIGSERIAL PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			bonus_balance BIGINT NOT NULL DEFAULT 0,
			bonus_unlocked BOOLEAN NOT NULL DEFAULT FALSE,
			sponsor_id BIGINT REFERENCES accounts(id),
			first_bet_consumed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(id),
			type TEXT NOT NULL,
			amount BIGINT NOT NULL,
			status TEXT NOT NULL,
			reference TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS transactions_reference_key
			ON transactions(reference) WHERE reference <> ''`,
		`CREATE INDEX IF NOT EXISTS transactions_account_idx
			ON transactions(account_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS rounds (
			id BIGSERIAL PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(id),
			stake BIGINT NOT NULL,
			multiplier DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			crash_point DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL DEFAULT 'PLAYING',
			payout BIGINT NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			ended_at TIMESTAMPTZ
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS rounds_one_playing
			ON rounds(account_id) WHERE status = 'PLAYING'`,
		`CREATE INDEX IF NOT EXISTS rounds_stale_idx
			ON rounds(started_at) WHERE status = 'PLAYING'`,
		`CREATE TABLE IF NOT EXISTS payment_sessions (
			id TEXT PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(id),
			kind TEXT NOT NULL,
			amount BIGINT NOT NULL,
			phone TEXT NOT NULL,
			operator TEXT NOT NULL,
			provider_ref TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'PENDING',
			cause TEXT NOT NULL DEFAULT '',
			attempts INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			expires_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS payment_sessions_stale_idx
			ON payment_sessions(expires_at) WHERE status = 'PENDING'`,
		`CREATE TABLE IF NOT EXISTS referral_grants (
			sponsor_id BIGINT NOT NULL REFERENCES accounts(id),
			referred_id BIGINT NOT NULL REFERENCES accounts(id),
			granted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (sponsor_id, referred_id)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	return tx, nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, sponsorID *int64, welcomeBonus int64) (*domain.Account, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var acc domain.Account
	acc.SponsorID = sponsorID
	acc.BonusBalance = welcomeBonus
	err = tx.QueryRow(ctx,
		`INSERT INTO accounts (bonus_balance, sponsor_id) VALUES ($1, $2)
		 RETURNING id, created_at`,
		welcomeBonus, sponsorID,
	).Scan(&acc.ID, &acc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("account insert failed: %w", err)
	}

	if welcomeBonus > 0 {
		if _, err := insertTransaction(ctx, tx, acc.ID, domain.TxBonusNewPlayer, welcomeBonus, ""); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return &acc, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	acc, err := scanAccount(s.db.QueryRow(ctx,
		`SELECT id, balance, bonus_balance, bonus_unlocked, sponsor_id, first_bet_consumed, created_at
		 FROM accounts WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	return acc, err
}

// lockAccount acquires the row lock that serializes every balance mutation
// for the account.
func lockAccount(ctx context.Context, tx pgx.Tx, id int64) (balance, bonus int64, err error) {
	err = tx.QueryRow(ctx,
		"SELECT balance, bonus_balance FROM accounts WHERE id = $1 FOR UPDATE", id,
	).Scan(&balance, &bonus)
	if err == pgx.ErrNoRows {
		return 0, 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("lock acquisition failed: %w", err)
	}
	return balance, bonus, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, accountID int64, typ domain.TransactionType, amount int64, reference string) (*domain.Transaction, error) {
	delta := amount
	if typ.Debit() {
		delta = -amount
	}

	rec := &domain.Transaction{
		AccountID: accountID,
		Type:      typ,
		Amount:    delta,
		Status:    domain.TxStatusCompleted,
		Reference: reference,
	}
	err := tx.QueryRow(ctx,
		`INSERT INTO transactions (account_id, type, amount, status, reference)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		accountID, typ, delta, rec.Status, reference,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrDuplicateReference
		}
		return nil, fmt.Errorf("transaction insert failed: %w", err)
	}
	return rec, nil
}

// applyBalance mutates the locked account's balance (or bonus balance for
// bonus types) by the signed delta of the given type.
func applyBalance(ctx context.Context, tx pgx.Tx, accountID int64, typ domain.TransactionType, amount int64) error {
	delta := amount
	if typ.Debit() {
		delta = -amount
	}
	column := "balance"
	if typ.Bonus() {
		column = "bonus_balance"
	}
	_, err := tx.Exec(ctx,
		"UPDATE accounts SET "+column+" = "+column+" + $1 WHERE id = $2",
		delta, accountID)
	if err != nil {
		return fmt.Errorf("balance update failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Apply(ctx context.Context, accountID int64, typ domain.TransactionType, amount int64, reference string) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d", amount)
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	balance, _, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if typ.Debit() && balance < amount {
		return nil, ErrInsufficientFunds
	}

	if err := applyBalance(ctx, tx, accountID, typ, amount); err != nil {
		return nil, err
	}
	rec, err := insertTransaction(ctx, tx, accountID, typ, amount, reference)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Entries(ctx context.Context, accountID int64, limit, offset int) ([]*domain.Transaction, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, account_id, type, amount, status, reference, created_at
		 FROM transactions WHERE account_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Type, &t.Amount, &t.Status, &t.Reference, &t.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &t)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) PlaceBet(ctx context.Context, accountID, stake int64, crashPoint float64, reference string) (*domain.Round, bool, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	balance, _, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, false, err
	}
	if balance < stake {
		return nil, false, ErrInsufficientFunds
	}

	var active bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM rounds WHERE account_id = $1 AND status = 'PLAYING')",
		accountID,
	).Scan(&active)
	if err != nil {
		return nil, false, fmt.Errorf("active round check failed: %w", err)
	}
	if active {
		return nil, false, ErrRoundActive
	}

	if err := applyBalance(ctx, tx, accountID, domain.TxBet, stake); err != nil {
		return nil, false, err
	}
	if _, err := insertTransaction(ctx, tx, accountID, domain.TxBet, stake, reference); err != nil {
		return nil, false, err
	}

	// First real-money bet consumes the flag and unlocks the bonus balance.
	var firstBet bool
	err = tx.QueryRow(ctx,
		`UPDATE accounts SET first_bet_consumed = TRUE, bonus_unlocked = TRUE
		 WHERE id = $1 AND first_bet_consumed = FALSE
		 RETURNING TRUE`, accountID,
	).Scan(&firstBet)
	if err != nil && err != pgx.ErrNoRows {
		return nil, false, fmt.Errorf("first-bet flag update failed: %w", err)
	}

	round := &domain.Round{
		AccountID:  accountID,
		Stake:      stake,
		Multiplier: 1.0,
		CrashPoint: crashPoint,
		Status:     domain.RoundPlaying,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO rounds (account_id, stake, crash_point) VALUES ($1, $2, $3)
		 RETURNING id, started_at`,
		accountID, stake, crashPoint,
	).Scan(&round.ID, &round.StartedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, false, ErrRoundActive
		}
		return nil, false, fmt.Errorf("round insert failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("tx commit failed: %w", err)
	}
	return round, firstBet, nil
}

const roundColumns = `id, account_id, stake, multiplier, crash_point, status, payout, started_at, ended_at`

func (s *PostgresStore) GetRound(ctx context.Context, roundID int64) (*domain.Round, error) {
	r, err := scanRound(s.db.QueryRow(ctx,
		"SELECT "+roundColumns+" FROM rounds WHERE id = $1", roundID))
	if err == pgx.ErrNoRows {
		return nil, ErrRoundNotFound
	}
	return r, err
}

func (s *PostgresStore) ActiveRound(ctx context.Context, accountID int64) (*domain.Round, error) {
	r, err := scanRound(s.db.QueryRow(ctx,
		"SELECT "+roundColumns+" FROM rounds WHERE account_id = $1 AND status = 'PLAYING'", accountID))
	if err == pgx.ErrNoRows {
		return nil, ErrRoundNotFound
	}
	return r, err
}

func (s *PostgresStore) ResolveRound(ctx context.Context, roundID int64, status domain.RoundStatus, multiplier float64, payout int64, reference string) (*domain.Round, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("non-terminal resolve status %q", status)
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	round, err := scanRound(tx.QueryRow(ctx,
		"SELECT "+roundColumns+" FROM rounds WHERE id = $1 FOR UPDATE", roundID))
	if err == pgx.ErrNoRows {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("round lock failed: %w", err)
	}
	if round.Status != domain.RoundPlaying {
		return nil, ErrRoundResolved
	}

	// Status CAS: the WHERE guard is what makes the loser of a cashout/crash
	// race fail instead of double-applying.
	tag, err := tx.Exec(ctx,
		`UPDATE rounds SET status = $1, multiplier = $2, payout = $3, ended_at = now()
		 WHERE id = $4 AND status = 'PLAYING'`,
		status, multiplier, payout, roundID)
	if err != nil {
		return nil, fmt.Errorf("round update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrRoundResolved
	}

	if payout > 0 {
		if _, _, err := lockAccount(ctx, tx, round.AccountID); err != nil {
			return nil, err
		}
		if err := applyBalance(ctx, tx, round.AccountID, domain.TxWin, payout); err != nil {
			return nil, err
		}
		if _, err := insertTransaction(ctx, tx, round.AccountID, domain.TxWin, payout, reference); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}

	now := time.Now()
	round.Status = status
	round.Multiplier = multiplier
	round.Payout = payout
	round.EndedAt = &now
	return round, nil
}

func (s *PostgresStore) RoundHistory(ctx context.Context, accountID int64, limit, offset int) ([]*domain.Round, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+roundColumns+` FROM rounds WHERE account_id = $1
		 ORDER BY started_at DESC, id DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRounds(rows)
}

func (s *PostgresStore) StaleRounds(ctx context.Context, olderThan time.Time, limit int) ([]*domain.Round, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+roundColumns+` FROM rounds
		 WHERE status = 'PLAYING' AND started_at < $1
		 ORDER BY started_at ASC LIMIT $2`,
		olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRounds(rows)
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *domain.PaymentSession) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	balance, _, err := lockAccount(ctx, tx, sess.AccountID)
	if err != nil {
		return err
	}

	// Withdraw holds the funds up front so no ledger lock is ever held while
	// the provider call is in flight.
	if sess.Kind == domain.SessionWithdraw {
		if balance < sess.Amount {
			return ErrInsufficientFunds
		}
		if err := applyBalance(ctx, tx, sess.AccountID, domain.TxWithdraw, sess.Amount); err != nil {
			return err
		}
		if _, err := insertTransaction(ctx, tx, sess.AccountID, domain.TxWithdraw, sess.Amount, sess.ID); err != nil {
			return err
		}
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO payment_sessions (id, account_id, kind, amount, phone, operator, status, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`,
		sess.ID, sess.AccountID, sess.Kind, sess.Amount, sess.Phone, sess.Operator, sess.Status, sess.ExpiresAt,
	).Scan(&sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("session insert failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

const sessionColumns = `id, account_id, kind, amount, phone, operator, provider_ref, status, cause, attempts, created_at, expires_at, completed_at`

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*domain.PaymentSession, error) {
	sess, err := scanSession(s.db.QueryRow(ctx,
		"SELECT "+sessionColumns+" FROM payment_sessions WHERE id = $1", id))
	if err == pgx.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

func (s *PostgresStore) SetSessionProvider(ctx context.Context, id, providerRef string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE payment_sessions SET provider_ref = $1 WHERE id = $2", providerRef, id)
	if err != nil {
		return fmt.Errorf("provider ref update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PostgresStore) RecordPollAttempt(ctx context.Context, id string) (int, error) {
	var attempts int
	err := s.db.QueryRow(ctx,
		"UPDATE payment_sessions SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts", id,
	).Scan(&attempts)
	if err == pgx.ErrNoRows {
		return 0, ErrSessionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("attempt update failed: %w", err)
	}
	return attempts, nil
}

func (s *PostgresStore) ResolveSession(ctx context.Context, id string, status domain.SessionStatus, cause string) (*domain.PaymentSession, bool, error) {
	if !status.Terminal() {
		return nil, false, fmt.Errorf("non-terminal resolve status %q", status)
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	sess, err := scanSession(tx.QueryRow(ctx,
		"SELECT "+sessionColumns+" FROM payment_sessions WHERE id = $1 FOR UPDATE", id))
	if err == pgx.ErrNoRows {
		return nil, false, ErrSessionNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("session lock failed: %w", err)
	}

	// Monotone state machine: once terminal, every further resolve is a no-op.
	if sess.Status.Terminal() {
		return sess, false, nil
	}

	if _, _, err := lockAccount(ctx, tx, sess.AccountID); err != nil {
		return nil, false, err
	}

	switch {
	case sess.Kind == domain.SessionDeposit && status == domain.SessionCompleted:
		if err := applyBalance(ctx, tx, sess.AccountID, domain.TxDeposit, sess.Amount); err != nil {
			return nil, false, err
		}
		if _, err := insertTransaction(ctx, tx, sess.AccountID, domain.TxDeposit, sess.Amount, sess.ID); err != nil {
			return nil, false, err
		}
	case sess.Kind == domain.SessionWithdraw && status != domain.SessionCompleted:
		// Failed or cancelled withdraw: reverse the hold.
		if err := applyBalance(ctx, tx, sess.AccountID, domain.TxRefund, sess.Amount); err != nil {
			return nil, false, err
		}
		if _, err := insertTransaction(ctx, tx, sess.AccountID, domain.TxRefund, sess.Amount, sess.ID+":refund"); err != nil {
			return nil, false, err
		}
	}

	var completedAt time.Time
	err = tx.QueryRow(ctx,
		`UPDATE payment_sessions SET status = $1, cause = $2, completed_at = now()
		 WHERE id = $3 AND status = 'PENDING' RETURNING completed_at`,
		status, cause, id,
	).Scan(&completedAt)
	if err != nil {
		return nil, false, fmt.Errorf("session update failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("tx commit failed: %w", err)
	}

	sess.Status = status
	sess.Cause = cause
	sess.CompletedAt = &completedAt
	return sess, true, nil
}

func (s *PostgresStore) StaleSessions(ctx context.Context, now time.Time, limit int) ([]*domain.PaymentSession, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+sessionColumns+` FROM payment_sessions
		 WHERE status = 'PENDING' AND expires_at < $1
		 ORDER BY expires_at ASC LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.PaymentSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// GrantReferralBonus runs in its own transaction after the referred player's
// bet has committed, so the bettor's and the sponsor's account rows are never
// locked together.
func (s *PostgresStore) GrantReferralBonus(ctx context.Context, sponsorID, referredID, amount int64) (bool, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO referral_grants (sponsor_id, referred_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		sponsorID, referredID)
	if err != nil {
		return false, fmt.Errorf("grant insert failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, _, err := lockAccount(ctx, tx, sponsorID); err != nil {
		return false, err
	}
	if err := applyBalance(ctx, tx, sponsorID, domain.TxBonusReferral, amount); err != nil {
		return false, err
	}
	reference := fmt.Sprintf("referral:%d:%d", sponsorID, referredID)
	if _, err := insertTransaction(ctx, tx, sponsorID, domain.TxBonusReferral, amount, reference); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("tx commit failed: %w", err)
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var acc domain.Account
	err := row.Scan(&acc.ID, &acc.Balance, &acc.BonusBalance, &acc.BonusUnlocked,
		&acc.SponsorID, &acc.FirstBetConsumed, &acc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func scanRound(row rowScanner) (*domain.Round, error) {
	var r domain.Round
	err := row.Scan(&r.ID, &r.AccountID, &r.Stake, &r.Multiplier, &r.CrashPoint,
		&r.Status, &r.Payout, &r.StartedAt, &r.EndedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanSession(row rowScanner) (*domain.PaymentSession, error) {
	var sess domain.PaymentSession
	err := row.Scan(&sess.ID, &sess.AccountID, &sess.Kind, &sess.Amount, &sess.Phone,
		&sess.Operator, &sess.ProviderRef, &sess.Status, &sess.Cause, &sess.Attempts,
		&sess.CreatedAt, &sess.ExpiresAt, &sess.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func collectRounds(rows pgx.Rows) ([]*domain.Round, error) {
	var rounds []*domain.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
