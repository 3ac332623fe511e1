package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/punchamoorthee/crashops/internal/domain"
)

// RestProvider talks to an operator's mobile-money HTTP API. Authentication
// details vary per operator and live behind the gateway URL; the wire shape
// here is the aggregator contract shared by all three.
type RestProvider struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewRestProvider(name, baseURL, apiKey string, timeout time.Duration) *RestProvider {
	return &RestProvider{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type pushRequest struct {
	SessionID string `json:"session_id"`
	Phone     string `json:"phone"`
	Amount    int64  `json:"amount"`
	Direction string `json:"direction"`
}

type pushResponse struct {
	Reference    string `json:"reference"`
	Status       string `json:"status"`
	Instructions string `json:"instructions"`
}

func (p *RestProvider) Initiate(ctx context.Context, sess *domain.PaymentSession) (*InitiateResult, error) {
	direction := "collect"
	if sess.Kind == domain.SessionWithdraw {
		direction = "disburse"
	}
	body, err := json.Marshal(pushRequest{
		SessionID: sess.ID,
		Phone:     sess.Phone,
		Amount:    sess.Amount,
		Direction: direction,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/push", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s initiate failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%s initiate returned %d", p.name, resp.StatusCode)
	}

	var pr pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("%s initiate decode failed: %w", p.name, err)
	}
	return &InitiateResult{
		ProviderRef:  pr.Reference,
		Status:       mapProviderStatus(pr.Status),
		Instructions: pr.Instructions,
	}, nil
}

func (p *RestProvider) PollStatus(ctx context.Context, providerRef string) (domain.SessionStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/status/"+providerRef, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s poll failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s poll returned %d", p.name, resp.StatusCode)
	}

	var pr pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", fmt.Errorf("%s poll decode failed: %w", p.name, err)
	}
	return mapProviderStatus(pr.Status), nil
}

func mapProviderStatus(s string) domain.SessionStatus {
	switch s {
	case "SUCCESS", "COMPLETED":
		return domain.SessionCompleted
	case "FAILED", "REJECTED", "EXPIRED":
		return domain.SessionFailed
	case "CANCELLED":
		return domain.SessionCancelled
	default:
		return domain.SessionPending
	}
}

var _ Provider = (*RestProvider)(nil)
