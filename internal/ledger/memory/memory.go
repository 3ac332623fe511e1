// Package memory implements ledger.Store with in-process maps. It backs the
// test suite and the simulation deployment mode; a single mutex stands in for
// the row locks the Postgres store takes, serializing every atomic unit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/punchamoorthee/crashops/internal/domain"
	"github.com/punchamoorthee/crashops/internal/ledger"
)

type grantKey struct {
	sponsorID  int64
	referredID int64
}

type Store struct {
	mu         sync.Mutex
	accounts   map[int64]*domain.Account
	txns       map[int64]*domain.Transaction
	byAccount  map[int64][]int64 // account id -> transaction ids, append order
	references map[string]int64  // non-empty reference -> transaction id
	rounds     map[int64]*domain.Round
	sessions   map[string]*domain.PaymentSession
	grants     map[grantKey]time.Time

	nextAccountID int64
	nextTxID      int64
	nextRoundID   int64

	// now is swappable so expiry tests can move the clock.
	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		accounts:   make(map[int64]*domain.Account),
		txns:       make(map[int64]*domain.Transaction),
		byAccount:  make(map[int64][]int64),
		references: make(map[string]int64),
		rounds:     make(map[int64]*domain.Round),
		sessions:   make(map[string]*domain.PaymentSession),
		grants:     make(map[grantKey]time.Time),
		now:        time.Now,
	}
}

// SetClock replaces the store's time source. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) CreateAccount(ctx context.Context, sponsorID *int64, welcomeBonus int64) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAccountID++
	acc := &domain.Account{
		ID:           s.nextAccountID,
		BonusBalance: welcomeBonus,
		SponsorID:    sponsorID,
		CreatedAt:    s.now(),
	}
	s.accounts[acc.ID] = acc

	if welcomeBonus > 0 {
		if _, err := s.insertTransaction(acc.ID, domain.TxBonusNewPlayer, welcomeBonus, ""); err != nil {
			delete(s.accounts, acc.ID)
			return nil, err
		}
	}
	cp := *acc
	return &cp, nil
}

func (s *Store) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	cp := *acc
	return &cp, nil
}

// insertTransaction appends the audit record. Caller holds s.mu and has
// already mutated the balance; the two always happen under the same lock.
func (s *Store) insertTransaction(accountID int64, typ domain.TransactionType, amount int64, reference string) (*domain.Transaction, error) {
	if reference != "" {
		if _, dup := s.references[reference]; dup {
			return nil, ledger.ErrDuplicateReference
		}
	}

	s.nextTxID++
	delta := amount
	if typ.Debit() {
		delta = -amount
	}
	rec := &domain.Transaction{
		ID:        s.nextTxID,
		AccountID: accountID,
		Type:      typ,
		Amount:    delta,
		Status:    domain.TxStatusCompleted,
		Reference: reference,
		CreatedAt: s.now(),
	}
	s.txns[rec.ID] = rec
	s.byAccount[accountID] = append(s.byAccount[accountID], rec.ID)
	if reference != "" {
		s.references[reference] = rec.ID
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) applyBalance(acc *domain.Account, typ domain.TransactionType, amount int64) {
	delta := amount
	if typ.Debit() {
		delta = -amount
	}
	if typ.Bonus() {
		acc.BonusBalance += delta
	} else {
		acc.Balance += delta
	}
}

func (s *Store) Apply(ctx context.Context, accountID int64, typ domain.TransactionType, amount int64, reference string) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	if typ.Debit() && acc.Balance < amount {
		return nil, ledger.ErrInsufficientFunds
	}

	rec, err := s.insertTransaction(accountID, typ, amount, reference)
	if err != nil {
		return nil, err
	}
	s.applyBalance(acc, typ, amount)
	return rec, nil
}

func (s *Store) Entries(ctx context.Context, accountID int64, limit, offset int) ([]*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[accountID]; !ok {
		return nil, ledger.ErrAccountNotFound
	}

	ids := s.byAccount[accountID]
	var entries []*domain.Transaction
	// Newest first, like the Postgres read path.
	for i := len(ids) - 1 - offset; i >= 0 && len(entries) < limit; i-- {
		cp := *s.txns[ids[i]]
		entries = append(entries, &cp)
	}
	return entries, nil
}

func (s *Store) PlaceBet(ctx context.Context, accountID, stake int64, crashPoint float64, reference string) (*domain.Round, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return nil, false, ledger.ErrAccountNotFound
	}
	if acc.Balance < stake {
		return nil, false, ledger.ErrInsufficientFunds
	}
	for _, r := range s.rounds {
		if r.AccountID == accountID && r.Status == domain.RoundPlaying {
			return nil, false, ledger.ErrRoundActive
		}
	}

	if _, err := s.insertTransaction(accountID, domain.TxBet, stake, reference); err != nil {
		return nil, false, err
	}
	s.applyBalance(acc, domain.TxBet, stake)

	firstBet := !acc.FirstBetConsumed
	if firstBet {
		acc.FirstBetConsumed = true
		acc.BonusUnlocked = true
	}

	s.nextRoundID++
	round := &domain.Round{
		ID:         s.nextRoundID,
		AccountID:  accountID,
		Stake:      stake,
		Multiplier: 1.0,
		CrashPoint: crashPoint,
		Status:     domain.RoundPlaying,
		StartedAt:  s.now(),
	}
	s.rounds[round.ID] = round
	cp := *round
	return &cp, firstBet, nil
}

func (s *Store) GetRound(ctx context.Context, roundID int64) (*domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rounds[roundID]
	if !ok {
		return nil, ledger.ErrRoundNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) ActiveRound(ctx context.Context, accountID int64) (*domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rounds {
		if r.AccountID == accountID && r.Status == domain.RoundPlaying {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ledger.ErrRoundNotFound
}

func (s *Store) ResolveRound(ctx context.Context, roundID int64, status domain.RoundStatus, multiplier float64, payout int64, reference string) (*domain.Round, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("non-terminal resolve status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rounds[roundID]
	if !ok {
		return nil, ledger.ErrRoundNotFound
	}
	if r.Status != domain.RoundPlaying {
		return nil, ledger.ErrRoundResolved
	}

	if payout > 0 {
		acc, ok := s.accounts[r.AccountID]
		if !ok {
			return nil, ledger.ErrAccountNotFound
		}
		if _, err := s.insertTransaction(r.AccountID, domain.TxWin, payout, reference); err != nil {
			return nil, err
		}
		s.applyBalance(acc, domain.TxWin, payout)
	}

	now := s.now()
	r.Status = status
	r.Multiplier = multiplier
	r.Payout = payout
	r.EndedAt = &now
	cp := *r
	return &cp, nil
}

func (s *Store) RoundHistory(ctx context.Context, accountID int64, limit, offset int) ([]*domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []*domain.Round
	for _, r := range s.rounds {
		if r.AccountID == accountID {
			cp := *r
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) StaleRounds(ctx context.Context, olderThan time.Time, limit int) ([]*domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []*domain.Round
	for _, r := range s.rounds {
		if r.Status == domain.RoundPlaying && r.StartedAt.Before(olderThan) {
			cp := *r
			stale = append(stale, &cp)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].StartedAt.Before(stale[j].StartedAt) })
	if len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (s *Store) CreateSession(ctx context.Context, sess *domain.PaymentSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[sess.AccountID]
	if !ok {
		return ledger.ErrAccountNotFound
	}

	if sess.Kind == domain.SessionWithdraw {
		if acc.Balance < sess.Amount {
			return ledger.ErrInsufficientFunds
		}
		if _, err := s.insertTransaction(sess.AccountID, domain.TxWithdraw, sess.Amount, sess.ID); err != nil {
			return err
		}
		s.applyBalance(acc, domain.TxWithdraw, sess.Amount)
	}

	sess.CreatedAt = s.now()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*domain.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ledger.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) SetSessionProvider(ctx context.Context, id, providerRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ledger.ErrSessionNotFound
	}
	sess.ProviderRef = providerRef
	return nil
}

func (s *Store) RecordPollAttempt(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return 0, ledger.ErrSessionNotFound
	}
	sess.Attempts++
	return sess.Attempts, nil
}

func (s *Store) ResolveSession(ctx context.Context, id string, status domain.SessionStatus, cause string) (*domain.PaymentSession, bool, error) {
	if !status.Terminal() {
		return nil, false, fmt.Errorf("non-terminal resolve status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false, ledger.ErrSessionNotFound
	}
	if sess.Status.Terminal() {
		cp := *sess
		return &cp, false, nil
	}

	acc, ok := s.accounts[sess.AccountID]
	if !ok {
		return nil, false, ledger.ErrAccountNotFound
	}

	switch {
	case sess.Kind == domain.SessionDeposit && status == domain.SessionCompleted:
		if _, err := s.insertTransaction(sess.AccountID, domain.TxDeposit, sess.Amount, sess.ID); err != nil {
			return nil, false, err
		}
		s.applyBalance(acc, domain.TxDeposit, sess.Amount)
	case sess.Kind == domain.SessionWithdraw && status != domain.SessionCompleted:
		if _, err := s.insertTransaction(sess.AccountID, domain.TxRefund, sess.Amount, sess.ID+":refund"); err != nil {
			return nil, false, err
		}
		s.applyBalance(acc, domain.TxRefund, sess.Amount)
	}

	now := s.now()
	sess.Status = status
	sess.Cause = cause
	sess.CompletedAt = &now
	cp := *sess
	return &cp, true, nil
}

func (s *Store) StaleSessions(ctx context.Context, now time.Time, limit int) ([]*domain.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []*domain.PaymentSession
	for _, sess := range s.sessions {
		if sess.Status == domain.SessionPending && sess.ExpiresAt.Before(now) {
			cp := *sess
			stale = append(stale, &cp)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ExpiresAt.Before(stale[j].ExpiresAt) })
	if len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (s *Store) GrantReferralBonus(ctx context.Context, sponsorID, referredID, amount int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := grantKey{sponsorID, referredID}
	if _, done := s.grants[key]; done {
		return false, nil
	}
	acc, ok := s.accounts[sponsorID]
	if !ok {
		return false, ledger.ErrAccountNotFound
	}

	reference := fmt.Sprintf("referral:%d:%d", sponsorID, referredID)
	if _, err := s.insertTransaction(sponsorID, domain.TxBonusReferral, amount, reference); err != nil {
		return false, err
	}
	s.applyBalance(acc, domain.TxBonusReferral, amount)
	s.grants[key] = s.now()
	return true, nil
}

var _ ledger.Store = (*Store)(nil)
