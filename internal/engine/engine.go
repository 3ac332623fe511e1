// Package engine owns the lifecycle of a wager round: stake debit, derived
// multiplier growth, and the single terminal transition shared by cash-out,
// crash and the stale-round reaper.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/crashops/internal/domain"
	"github.com/punchamoorthee/crashops/internal/ledger"
)

var (
	ErrBetOutOfRange   = errors.New("bet outside configured range")
	ErrCashoutTooEarly = errors.New("cashout below minimum multiplier")
)

var (
	roundsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crashops_rounds_started_total",
		Help: "Rounds created with a successful stake debit",
	})
	roundsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crashops_rounds_resolved_total",
		Help: "Terminal round transitions, labeled by outcome and trigger",
	}, []string{"outcome", "trigger"})
	payoutAmounts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crashops_payout_cents",
		Help:    "WIN credit amounts in cents",
		Buckets: prometheus.ExponentialBuckets(100, 10, 7),
	})
)

// FirstBetListener is notified after the transaction consuming an account's
// first-bet flag has committed.
type FirstBetListener interface {
	OnFirstBet(ctx context.Context, accountID int64)
}

type Config struct {
	MinBet     int64
	MaxBet     int64
	MinCashout float64
	GrowthRate float64
}

type Engine struct {
	store    ledger.Store
	oracle   Oracle
	cfg      Config
	logger   *slog.Logger
	listener FirstBetListener
	clock    func() time.Time
}

func New(store ledger.Store, oracle Oracle, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		oracle: oracle,
		cfg:    cfg,
		logger: logger,
		clock:  time.Now,
	}
}

// SetFirstBetListener wires the referral trigger. Must be called before the
// engine serves requests.
func (e *Engine) SetFirstBetListener(l FirstBetListener) {
	e.listener = l
}

// SetClock replaces the engine's time source. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	e.clock = now
}

// StartRound debits the stake and creates the PLAYING round as one atomic
// unit. The crash point is sampled here and stored with the round so a
// process restart cannot lose it.
func (e *Engine) StartRound(ctx context.Context, accountID, stake int64, reference string) (*domain.Round, error) {
	if stake < e.cfg.MinBet || stake > e.cfg.MaxBet {
		return nil, fmt.Errorf("%w: stake %d not in [%d, %d]", ErrBetOutOfRange, stake, e.cfg.MinBet, e.cfg.MaxBet)
	}

	crashPoint := e.oracle.Sample()
	round, firstBet, err := e.store.PlaceBet(ctx, accountID, stake, crashPoint, reference)
	if err != nil {
		return nil, err
	}

	roundsStarted.Inc()
	e.logger.Info("round started",
		"round_id", round.ID, "account_id", accountID, "stake", stake, "first_bet", firstBet)

	if firstBet && e.listener != nil {
		e.listener.OnFirstBet(ctx, accountID)
	}
	return round, nil
}

// multiplierAt derives the growth curve value at the given instant,
// quantized to two decimals and never decreasing below 1.0.
func (e *Engine) multiplierAt(r *domain.Round, at time.Time) float64 {
	elapsed := at.Sub(r.StartedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	m := math.Exp(e.cfg.GrowthRate * elapsed)
	q, _ := decimal.NewFromFloat(m).RoundDown(2).Float64()
	if q < 1.0 {
		return 1.0
	}
	return q
}

// Payout converts stake × multiplier to whole cents, rounding half up.
func Payout(stake int64, multiplier float64) int64 {
	return decimal.NewFromInt(stake).
		Mul(decimal.NewFromFloat(multiplier)).
		Round(0).
		IntPart()
}

// Snapshot is the live view the presentation layer polls. The crash point is
// only revealed once the round is over.
type Snapshot struct {
	RoundID    int64              `json:"round_id"`
	Status     domain.RoundStatus `json:"status"`
	Multiplier float64            `json:"multiplier"`
	Crashed    bool               `json:"crashed"`
	CrashPoint float64            `json:"crash_point,omitempty"`
	Payout     int64              `json:"payout,omitempty"`
}

// Tick reports the round's current multiplier and commits the crash
// transition once the sampled crash point has been reached. It never credits.
func (e *Engine) Tick(ctx context.Context, roundID int64) (*Snapshot, error) {
	r, err := e.store.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		return snapshotTerminal(r), nil
	}

	m := e.multiplierAt(r, e.clock())
	if m < r.CrashPoint {
		return &Snapshot{RoundID: r.ID, Status: r.Status, Multiplier: m}, nil
	}

	resolved, err := e.resolveCrash(ctx, r, "tick")
	if err != nil {
		return nil, err
	}
	return snapshotTerminal(resolved), nil
}

// Cashout resolves the race against the crash event: whichever terminal
// transition commits its compare-and-swap first wins, the other is rejected.
func (e *Engine) Cashout(ctx context.Context, roundID int64) (*domain.Round, error) {
	r, err := e.store.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		return nil, ledger.ErrRoundResolved
	}

	m := e.multiplierAt(r, e.clock())
	if m >= r.CrashPoint {
		// Crash happened before the request was accepted; commit it and
		// reject the cash-out.
		if _, err := e.resolveCrash(ctx, r, "cashout"); err != nil {
			return nil, err
		}
		return nil, ledger.ErrRoundResolved
	}
	if m < e.cfg.MinCashout {
		return nil, fmt.Errorf("%w: multiplier %.2f below %.2f", ErrCashoutTooEarly, m, e.cfg.MinCashout)
	}

	payout := Payout(r.Stake, m)
	resolved, err := e.store.ResolveRound(ctx, r.ID, domain.RoundCashedOut, m, payout,
		fmt.Sprintf("round:%d:win", r.ID))
	if err != nil {
		return nil, err
	}

	roundsResolved.WithLabelValues("cashed_out", "cashout").Inc()
	payoutAmounts.Observe(float64(payout))
	e.logger.Info("round cashed out",
		"round_id", r.ID, "account_id", r.AccountID, "multiplier", m, "payout", payout)
	return resolved, nil
}

// resolveCrash commits the CRASHED transition through the same CAS path as
// cash-out. A lost race is fine: the round ended the other way.
func (e *Engine) resolveCrash(ctx context.Context, r *domain.Round, trigger string) (*domain.Round, error) {
	resolved, err := e.store.ResolveRound(ctx, r.ID, domain.RoundCrashed, r.CrashPoint, 0, "")
	if errors.Is(err, ledger.ErrRoundResolved) {
		return e.store.GetRound(ctx, r.ID)
	}
	if err != nil {
		return nil, err
	}

	roundsResolved.WithLabelValues("crashed", trigger).Inc()
	e.logger.Info("round crashed",
		"round_id", r.ID, "account_id", r.AccountID, "crash_point", r.CrashPoint, "trigger", trigger)
	return resolved, nil
}

// History is the paginated round read path.
func (e *Engine) History(ctx context.Context, accountID int64, limit, offset int) ([]*domain.Round, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return e.store.RoundHistory(ctx, accountID, limit, offset)
}

// ActiveRound returns the account's PLAYING round, if any.
func (e *Engine) ActiveRound(ctx context.Context, accountID int64) (*domain.Round, error) {
	return e.store.ActiveRound(ctx, accountID)
}

// SweepStale force-crashes PLAYING rounds older than timeout, on the
// assumption the client disconnected. Same CAS path as everything else, so a
// late legitimate cash-out either beat us or gets ErrRoundResolved.
func (e *Engine) SweepStale(ctx context.Context, timeout time.Duration) (int, error) {
	cutoff := e.clock().Add(-timeout)
	stale, err := e.store.StaleRounds(ctx, cutoff, 100)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, r := range stale {
		_, err := e.store.ResolveRound(ctx, r.ID, domain.RoundCrashed, r.CrashPoint, 0, "")
		if errors.Is(err, ledger.ErrRoundResolved) {
			continue
		}
		if err != nil {
			return swept, fmt.Errorf("sweep of round %d failed: %w", r.ID, err)
		}
		roundsResolved.WithLabelValues("crashed", "reaper").Inc()
		e.logger.Info("stale round reaped", "round_id", r.ID, "account_id", r.AccountID)
		swept++
	}
	return swept, nil
}

func snapshotTerminal(r *domain.Round) *Snapshot {
	return &Snapshot{
		RoundID:    r.ID,
		Status:     r.Status,
		Multiplier: r.Multiplier,
		Crashed:    r.Status == domain.RoundCrashed,
		CrashPoint: r.CrashPoint,
		Payout:     r.Payout,
	}
}
