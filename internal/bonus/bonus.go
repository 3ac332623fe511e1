// Package bonus grants the sponsor referral bonus when a referred player
// places their first real-money bet.
package bonus

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/punchamoorthee/crashops/internal/ledger"
)

var referralGrants = promauto.NewCounter(prometheus.CounterOpts{
	Name: "crashops_referral_grants_total",
	Help: "Referral bonuses credited to sponsors",
})

type Trigger struct {
	store  ledger.Store
	amount int64
	logger *slog.Logger
}

func NewTrigger(store ledger.Store, amount int64, logger *slog.Logger) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{store: store, amount: amount, logger: logger}
}

// OnFirstBet runs after the transaction that consumed the account's first-bet
// flag committed. The store's grant row makes the credit once-only even if
// the flag consumption were ever replayed.
func (t *Trigger) OnFirstBet(ctx context.Context, accountID int64) {
	acc, err := t.store.GetAccount(ctx, accountID)
	if err != nil {
		t.logger.Error("referral lookup failed", "account_id", accountID, "error", err)
		return
	}
	if acc.SponsorID == nil || t.amount <= 0 {
		return
	}

	granted, err := t.store.GrantReferralBonus(ctx, *acc.SponsorID, accountID, t.amount)
	if err != nil {
		t.logger.Error("referral grant failed",
			"sponsor_id", *acc.SponsorID, "referred_id", accountID, "error", err)
		return
	}
	if granted {
		referralGrants.Inc()
		t.logger.Info("referral bonus granted",
			"sponsor_id", *acc.SponsorID, "referred_id", accountID, "amount", t.amount)
	}
}
