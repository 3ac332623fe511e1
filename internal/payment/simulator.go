package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/punchamoorthee/crashops/internal/domain"
)

// Simulator stands in for a live provider when no credentials are configured.
// It runs the exact state-transition path production uses: Initiate returns a
// pending reference and PollStatus resolves it after a scripted number of
// polls.
type Simulator struct {
	// CompleteAfter is how many polls a reference stays pending before
	// resolving. Zero resolves on the first poll.
	CompleteAfter int
	// Outcome is the terminal status PollStatus eventually reports.
	// Defaults to COMPLETED.
	Outcome domain.SessionStatus
	// InitiateErr, when set, makes every Initiate call fail.
	InitiateErr error
	// PollErr, when set, makes every PollStatus call fail without resolving.
	PollErr error

	mu    sync.Mutex
	polls map[string]int
}

func NewSimulator() *Simulator {
	return &Simulator{
		Outcome: domain.SessionCompleted,
		polls:   make(map[string]int),
	}
}

func (s *Simulator) Initiate(ctx context.Context, sess *domain.PaymentSession) (*InitiateResult, error) {
	if s.InitiateErr != nil {
		return nil, s.InitiateErr
	}

	ref := "SIM-" + sess.ID
	s.mu.Lock()
	s.polls[ref] = 0
	s.mu.Unlock()

	return &InitiateResult{
		ProviderRef:  ref,
		Status:       domain.SessionPending,
		Instructions: "Confirm the payment prompt on your handset",
	}, nil
}

func (s *Simulator) PollStatus(ctx context.Context, providerRef string) (domain.SessionStatus, error) {
	if s.PollErr != nil {
		return "", s.PollErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.polls[providerRef]
	if !ok {
		return "", fmt.Errorf("unknown provider reference %q", providerRef)
	}
	s.polls[providerRef] = n + 1
	if n < s.CompleteAfter {
		return domain.SessionPending, nil
	}

	outcome := s.Outcome
	if outcome == "" {
		outcome = domain.SessionCompleted
	}
	return outcome, nil
}

var _ Provider = (*Simulator)(nil)
