// Package payment owns the deposit/withdraw session lifecycle and the
// reconciliation of asynchronous mobile-money provider confirmations against
// it.
package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/punchamoorthee/crashops/internal/domain"
)

var ErrUnknownOperator = errors.New("no operator for phone number")

// InitiateResult is what a provider reports when the external flow starts.
type InitiateResult struct {
	ProviderRef  string
	Status       domain.SessionStatus
	Instructions string
}

// Provider is the uniform contract every mobile-money integration implements.
// Calls must honor ctx deadlines; the manager never holds a ledger lock while
// either method is in flight.
type Provider interface {
	Initiate(ctx context.Context, sess *domain.PaymentSession) (*InitiateResult, error)
	PollStatus(ctx context.Context, providerRef string) (domain.SessionStatus, error)
}

// Local mobile prefixes per operator.
var operatorPrefixes = map[string]string{
	"074": "airtel",
	"076": "airtel",
	"077": "airtel",
	"062": "moov",
	"065": "moov",
	"066": "moov",
	"060": "mobicash",
}

// OperatorForPhone maps a subscriber number to its mobile-money operator.
// Accepts local numbers with or without the +241 country code.
func OperatorForPhone(phone string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)

	digits = strings.TrimPrefix(digits, "241")
	if len(digits) < 3 {
		return "", ErrUnknownOperator
	}
	op, ok := operatorPrefixes[digits[:3]]
	if !ok {
		return "", ErrUnknownOperator
	}
	return op, nil
}
