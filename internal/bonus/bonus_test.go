package bonus

import (
	"context"
	"testing"

	"github.com/punchamoorthee/crashops/internal/domain"
	"github.com/punchamoorthee/crashops/internal/engine"
	"github.com/punchamoorthee/crashops/internal/ledger/memory"
)

func TestOnFirstBet_GrantsSponsorOnce(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	sponsor, err := store.CreateAccount(ctx, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	referred, err := store.CreateAccount(ctx, &sponsor.ID, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	trigger := NewTrigger(store, 1500, nil)
	trigger.OnFirstBet(ctx, referred.ID)
	trigger.OnFirstBet(ctx, referred.ID)

	got, _ := store.GetAccount(ctx, sponsor.ID)
	if got.BonusBalance != 1500 {
		t.Errorf("expected sponsor bonus balance 1500, got %d", got.BonusBalance)
	}

	entries, _ := store.Entries(ctx, sponsor.ID, 10, 0)
	var grants int
	for _, tx := range entries {
		if tx.Type == domain.TxBonusReferral {
			grants++
		}
	}
	if grants != 1 {
		t.Errorf("expected one referral entry, got %d", grants)
	}
}

func TestOnFirstBet_NoSponsorIsNoop(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	acc, err := store.CreateAccount(ctx, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	trigger := NewTrigger(store, 1500, nil)
	trigger.OnFirstBet(ctx, acc.ID)

	entries, _ := store.Entries(ctx, acc.ID, 10, 0)
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

// End to end through the engine: the first settled stake debit is what fires
// the grant, and later bets never fire it again.
func TestFirstBetThroughEngine(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	sponsor, _ := store.CreateAccount(ctx, nil, 0)
	referred, _ := store.CreateAccount(ctx, &sponsor.ID, 0)
	if _, err := store.Apply(ctx, referred.ID, domain.TxDeposit, 10000, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := engine.New(store, engine.Fixed{Crash: 10}, engine.Config{
		MinBet:     100,
		MaxBet:     100000,
		MinCashout: 1.2,
		GrowthRate: 0.08,
	}, nil)
	e.SetFirstBetListener(NewTrigger(store, 1500, nil))

	r, err := e.StartRound(ctx, referred.ID, 500, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.ResolveRound(ctx, r.ID, domain.RoundCrashed, 10, 0, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.StartRound(ctx, referred.ID, 500, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := store.GetAccount(ctx, sponsor.ID)
	if got.BonusBalance != 1500 {
		t.Errorf("expected sponsor bonus balance 1500, got %d", got.BonusBalance)
	}
}
