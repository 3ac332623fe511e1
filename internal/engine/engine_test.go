package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/punchamoorthee/crashops/internal/domain"
	"github.com/punchamoorthee/crashops/internal/ledger"
	"github.com/punchamoorthee/crashops/internal/ledger/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newEngine(t *testing.T, oracle Oracle) (*Engine, *memory.Store, *fakeClock) {
	t.Helper()
	store := memory.NewStore()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store.SetClock(clock.Now)

	e := New(store, oracle, Config{
		MinBet:     100,
		MaxBet:     100000,
		MinCashout: 2.0,
		GrowthRate: 0.08,
	}, nil)
	e.SetClock(clock.Now)
	return e, store, clock
}

func fund(t *testing.T, store *memory.Store, amount int64) int64 {
	t.Helper()
	acc, err := store.CreateAccount(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Apply(context.Background(), acc.ID, domain.TxDeposit, amount, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return acc.ID
}

func TestStartRound_StakeRange(t *testing.T) {
	e, store, _ := newEngine(t, Fixed{Crash: 10})
	accID := fund(t, store, 100000)

	for _, stake := range []int64{99, 100001} {
		_, err := e.StartRound(context.Background(), accID, stake, "")
		if !errors.Is(err, ErrBetOutOfRange) {
			t.Errorf("stake %d: expected ErrBetOutOfRange, got %v", stake, err)
		}
	}
	acc, _ := store.GetAccount(context.Background(), accID)
	if acc.Balance != 100000 {
		t.Errorf("rejected stake moved money: %d", acc.Balance)
	}
}

func TestStartRound_SecondRoundRejected(t *testing.T) {
	e, store, _ := newEngine(t, Fixed{Crash: 10})
	accID := fund(t, store, 10000)

	if _, err := e.StartRound(context.Background(), accID, 500, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := e.StartRound(context.Background(), accID, 500, "")
	if !errors.Is(err, ledger.ErrRoundActive) {
		t.Fatalf("expected ErrRoundActive, got %v", err)
	}
	acc, _ := store.GetAccount(context.Background(), accID)
	if acc.Balance != 9500 {
		t.Errorf("expected a single debit, balance %d", acc.Balance)
	}
}

// Balance 10.00, stake 5.00, cash out at 2.5x -> 17.50.
func TestCashout_CreditsStakeTimesMultiplier(t *testing.T) {
	e, store, clock := newEngine(t, Fixed{Crash: 10})
	accID := fund(t, store, 1000)

	r, err := e.StartRound(context.Background(), accID, 500, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// exp(0.08 * 11.46s) = 2.5013 -> 2.50 after quantizing.
	clock.Advance(11460 * time.Millisecond)

	resolved, err := e.Cashout(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Status != domain.RoundCashedOut {
		t.Fatalf("expected CASHED_OUT, got %s", resolved.Status)
	}
	if resolved.Multiplier != 2.5 {
		t.Errorf("expected multiplier 2.50, got %v", resolved.Multiplier)
	}
	if resolved.Payout != 1250 {
		t.Errorf("expected payout 1250, got %d", resolved.Payout)
	}

	acc, _ := store.GetAccount(context.Background(), accID)
	if acc.Balance != 1750 {
		t.Errorf("expected balance 1750, got %d", acc.Balance)
	}

	entries, _ := store.Entries(context.Background(), accID, 10, 0)
	var bets, wins int
	for _, tx := range entries {
		switch tx.Type {
		case domain.TxBet:
			bets++
		case domain.TxWin:
			wins++
		}
	}
	if bets != 1 || wins != 1 {
		t.Errorf("expected one BET and one WIN, got %d/%d", bets, wins)
	}
}

func TestCashout_TooEarly(t *testing.T) {
	e, store, clock := newEngine(t, Fixed{Crash: 10})
	accID := fund(t, store, 1000)

	r, _ := e.StartRound(context.Background(), accID, 500, "")

	// exp(0.08 * 3.3s) = 1.302 -> multiplier 1.30, below the 2.0 minimum.
	clock.Advance(3300 * time.Millisecond)

	_, err := e.Cashout(context.Background(), r.ID)
	if !errors.Is(err, ErrCashoutTooEarly) {
		t.Fatalf("expected ErrCashoutTooEarly, got %v", err)
	}

	got, _ := store.GetRound(context.Background(), r.ID)
	if got.Status != domain.RoundPlaying {
		t.Errorf("early cashout must leave round PLAYING, got %s", got.Status)
	}
}

func TestCashout_AfterCrashPointRejected(t *testing.T) {
	e, store, clock := newEngine(t, Fixed{Crash: 2.0})
	accID := fund(t, store, 1000)

	r, _ := e.StartRound(context.Background(), accID, 500, "")

	// exp(0.08 * 9s) = 2.054, past the sampled crash point of 2.0.
	clock.Advance(9 * time.Second)

	_, err := e.Cashout(context.Background(), r.ID)
	if !errors.Is(err, ledger.ErrRoundResolved) {
		t.Fatalf("expected ErrRoundResolved, got %v", err)
	}

	got, _ := store.GetRound(context.Background(), r.ID)
	if got.Status != domain.RoundCrashed {
		t.Fatalf("expected CRASHED, got %s", got.Status)
	}
	if got.Payout != 0 {
		t.Errorf("crash must not pay out, got %d", got.Payout)
	}
	acc, _ := store.GetAccount(context.Background(), accID)
	if acc.Balance != 500 {
		t.Errorf("expected stake forfeited, balance %d", acc.Balance)
	}
}

func TestTick_ReportsGrowthThenCrash(t *testing.T) {
	e, store, clock := newEngine(t, Fixed{Crash: 2.0})
	accID := fund(t, store, 1000)

	r, _ := e.StartRound(context.Background(), accID, 500, "")

	snap, err := e.Tick(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Crashed || snap.Multiplier != 1.0 {
		t.Errorf("fresh round should be at 1.0, got %+v", snap)
	}

	clock.Advance(5 * time.Second)
	snap, _ = e.Tick(context.Background(), r.ID)
	if snap.Crashed {
		t.Fatalf("crashed before crash point: %+v", snap)
	}
	if snap.Multiplier < 1.48 || snap.Multiplier > 1.50 {
		t.Errorf("expected multiplier near 1.49, got %v", snap.Multiplier)
	}

	clock.Advance(4 * time.Second)
	snap, _ = e.Tick(context.Background(), r.ID)
	if !snap.Crashed || snap.Status != domain.RoundCrashed {
		t.Fatalf("expected crash to commit, got %+v", snap)
	}
	if snap.CrashPoint != 2.0 {
		t.Errorf("terminal snapshot should reveal crash point, got %v", snap.CrashPoint)
	}
}

func TestTick_MultiplierNeverDecreases(t *testing.T) {
	e, store, clock := newEngine(t, Fixed{Crash: 100})
	accID := fund(t, store, 1000)
	r, _ := e.StartRound(context.Background(), accID, 500, "")

	last := 0.0
	for i := 0; i < 20; i++ {
		snap, err := e.Tick(context.Background(), r.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if snap.Multiplier < last {
			t.Fatalf("multiplier decreased: %v -> %v", last, snap.Multiplier)
		}
		last = snap.Multiplier
		clock.Advance(500 * time.Millisecond)
	}
}

func TestSweepStale(t *testing.T) {
	e, store, clock := newEngine(t, Fixed{Crash: 50})
	accID := fund(t, store, 1000)

	r, _ := e.StartRound(context.Background(), accID, 400, "")
	balanceAfterStake := int64(600)

	clock.Advance(3 * time.Minute)
	swept, err := e.SweepStale(context.Background(), 2*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected one reaped round, got %d", swept)
	}

	got, _ := store.GetRound(context.Background(), r.ID)
	if got.Status != domain.RoundCrashed || got.Payout != 0 {
		t.Errorf("expected CRASHED with no payout, got %+v", got)
	}
	acc, _ := store.GetAccount(context.Background(), accID)
	if acc.Balance != balanceAfterStake {
		t.Errorf("expected balance %d after sweep, got %d", balanceAfterStake, acc.Balance)
	}
}

func TestSweepStale_SkipsFreshRounds(t *testing.T) {
	e, store, clock := newEngine(t, Fixed{Crash: 50})
	accID := fund(t, store, 1000)
	e.StartRound(context.Background(), accID, 400, "")

	clock.Advance(time.Minute)
	swept, err := e.SweepStale(context.Background(), 2*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if swept != 0 {
		t.Errorf("fresh round reaped: %d", swept)
	}
}

func TestPayoutRounding(t *testing.T) {
	cases := []struct {
		stake      int64
		multiplier float64
		want       int64
	}{
		{500, 2.5, 1250},
		{333, 1.5, 500},  // 499.5 rounds half up
		{101, 1.33, 134}, // 134.33 truncates on rounding
		{100, 1.0, 100},
	}
	for _, c := range cases {
		if got := Payout(c.stake, c.multiplier); got != c.want {
			t.Errorf("Payout(%d, %v) = %d, want %d", c.stake, c.multiplier, got, c.want)
		}
	}
}

type recordingListener struct {
	mu  sync.Mutex
	ids []int64
}

func (l *recordingListener) OnFirstBet(ctx context.Context, accountID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = append(l.ids, accountID)
}

func TestFirstBetListenerFiresOnce(t *testing.T) {
	e, store, _ := newEngine(t, Fixed{Crash: 10})
	accID := fund(t, store, 10000)

	listener := &recordingListener{}
	e.SetFirstBetListener(listener)

	r, err := e.StartRound(context.Background(), accID, 500, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.ResolveRound(context.Background(), r.ID, domain.RoundCrashed, 10, 0, "")

	if _, err := e.StartRound(context.Background(), accID, 500, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(listener.ids) != 1 || listener.ids[0] != accID {
		t.Errorf("expected one first-bet notification for %d, got %v", accID, listener.ids)
	}
}
