package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/punchamoorthee/crashops/internal/domain"
	"github.com/punchamoorthee/crashops/internal/engine"
	"github.com/punchamoorthee/crashops/internal/ledger/memory"
	"github.com/punchamoorthee/crashops/internal/payment"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	store := memory.NewStore()

	eng := engine.New(store, engine.Fixed{Crash: 10}, engine.Config{
		MinBet:     100,
		MaxBet:     100000,
		MinCashout: 1.0,
		GrowthRate: 0.08,
	}, nil)

	sim := payment.NewSimulator()
	payments := payment.NewManager(store, map[string]payment.Provider{
		"airtel":   sim,
		"moov":     sim,
		"mobicash": sim,
	}, payment.Config{
		DepositMin:      500,
		DepositMax:      1000000,
		WithdrawMin:     1000,
		WithdrawMax:     500000,
		SessionTTL:      10 * time.Minute,
		MaxPollAttempts: 3,
	}, nil)

	h := NewHandler(store, eng, payments, 500)
	r := mux.NewRouter()
	h.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, out.Bytes()
}

func TestCreateAccount_GrantsWelcomeBonus(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, "POST", srv.URL+"/accounts", nil, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}

	var acc domain.Account
	if err := json.Unmarshal(body, &acc); err != nil {
		t.Fatalf("decode account: %v", err)
	}
	if acc.ID == 0 {
		t.Error("expected an assigned account id")
	}
	if acc.BonusBalance != 500 {
		t.Errorf("expected welcome bonus 500, got %d", acc.BonusBalance)
	}
	if acc.Balance != 0 {
		t.Errorf("welcome bonus must not touch the cash balance, got %d", acc.Balance)
	}
}

func TestGetAccount_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, "GET", srv.URL+"/accounts/9999", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestStartRound_IdempotencyKeyConflict(t *testing.T) {
	srv, store := newTestServer(t)

	acc, _ := store.CreateAccount(context.Background(), nil, 0)
	store.Apply(context.Background(), acc.ID, domain.TxDeposit, 10000, "")

	req := map[string]any{"account_id": acc.ID, "stake": 500}
	headers := map[string]string{"Idempotency-Key": "bet-abc-1"}

	resp, body := doJSON(t, "POST", srv.URL+"/rounds", req, headers)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}

	var round domain.Round
	if err := json.Unmarshal(body, &round); err != nil {
		t.Fatalf("decode round: %v", err)
	}
	if round.Status != domain.RoundPlaying {
		t.Errorf("expected PLAYING, got %s", round.Status)
	}

	// Resolve so the retry is stopped by the reference, not the active round.
	store.ResolveRound(context.Background(), round.ID, domain.RoundCrashed, 10, 0, "")

	resp, _ = doJSON(t, "POST", srv.URL+"/rounds", req, headers)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 on replayed key, got %d", resp.StatusCode)
	}

	got, _ := store.GetAccount(context.Background(), acc.ID)
	if got.Balance != 9500 {
		t.Errorf("replayed key double-debited: %d", got.Balance)
	}
}

func TestStartRound_Validation(t *testing.T) {
	srv, store := newTestServer(t)
	acc, _ := store.CreateAccount(context.Background(), nil, 0)
	store.Apply(context.Background(), acc.ID, domain.TxDeposit, 10000, "")

	cases := []struct {
		name string
		req  map[string]any
		want int
	}{
		{"zero stake", map[string]any{"account_id": acc.ID, "stake": 0}, http.StatusUnprocessableEntity},
		{"below minimum", map[string]any{"account_id": acc.ID, "stake": 50}, http.StatusUnprocessableEntity},
		{"unknown account", map[string]any{"account_id": 9999, "stake": 500}, http.StatusNotFound},
	}
	for _, c := range cases {
		resp, body := doJSON(t, "POST", srv.URL+"/rounds", c.req, nil)
		if resp.StatusCode != c.want {
			t.Errorf("%s: expected %d, got %d: %s", c.name, c.want, resp.StatusCode, body)
		}
	}
}

func TestStartRound_SecondActiveRoundConflicts(t *testing.T) {
	srv, store := newTestServer(t)
	acc, _ := store.CreateAccount(context.Background(), nil, 0)
	store.Apply(context.Background(), acc.ID, domain.TxDeposit, 10000, "")

	req := map[string]any{"account_id": acc.ID, "stake": 500}
	resp, _ := doJSON(t, "POST", srv.URL+"/rounds", req, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, "POST", srv.URL+"/rounds", req, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 on second round, got %d", resp.StatusCode)
	}
}

func TestCashoutEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	acc, _ := store.CreateAccount(context.Background(), nil, 0)
	store.Apply(context.Background(), acc.ID, domain.TxDeposit, 1000, "")

	resp, body := doJSON(t, "POST", srv.URL+"/rounds",
		map[string]any{"account_id": acc.ID, "stake": 500}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var round domain.Round
	json.Unmarshal(body, &round)

	url := fmt.Sprintf("%s/rounds/%d/cashout", srv.URL, round.ID)
	resp, body = doJSON(t, "POST", url, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var resolved domain.Round
	if err := json.Unmarshal(body, &resolved); err != nil {
		t.Fatalf("decode round: %v", err)
	}
	if resolved.Status != domain.RoundCashedOut {
		t.Errorf("expected CASHED_OUT, got %s", resolved.Status)
	}

	resp, _ = doJSON(t, "POST", url, nil, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 on repeat cashout, got %d", resp.StatusCode)
	}
}

func TestRoundSnapshotHidesCrashPoint(t *testing.T) {
	srv, store := newTestServer(t)
	acc, _ := store.CreateAccount(context.Background(), nil, 0)
	store.Apply(context.Background(), acc.ID, domain.TxDeposit, 1000, "")

	resp, body := doJSON(t, "POST", srv.URL+"/rounds",
		map[string]any{"account_id": acc.ID, "stake": 500}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var round domain.Round
	json.Unmarshal(body, &round)

	resp, body = doJSON(t, "GET", fmt.Sprintf("%s/rounds/%d", srv.URL, round.ID), nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var snap map[string]any
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if _, ok := snap["crash_point"]; ok {
		t.Error("live snapshot must not reveal the crash point")
	}
	if snap["status"] != string(domain.RoundPlaying) {
		t.Errorf("expected PLAYING, got %v", snap["status"])
	}
}

func TestInitiatePaymentEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	acc, _ := store.CreateAccount(context.Background(), nil, 0)

	resp, body := doJSON(t, "POST", srv.URL+"/payments", map[string]any{
		"account_id": acc.ID,
		"kind":       "DEPOSIT",
		"amount":     5000,
		"phone":      "074123456",
	}, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, body)
	}

	var sess domain.PaymentSession
	if err := json.Unmarshal(body, &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.Status != domain.SessionPending {
		t.Errorf("expected PENDING, got %s", sess.Status)
	}
	if sess.Operator != "airtel" {
		t.Errorf("expected airtel, got %s", sess.Operator)
	}
}

func TestInitiatePayment_BadKind(t *testing.T) {
	srv, store := newTestServer(t)
	acc, _ := store.CreateAccount(context.Background(), nil, 0)

	resp, _ := doJSON(t, "POST", srv.URL+"/payments", map[string]any{
		"account_id": acc.ID,
		"kind":       "TRANSFER",
		"amount":     5000,
		"phone":      "074123456",
	}, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", resp.StatusCode)
	}
}

func TestCancelPayment_WrongOwnerForbidden(t *testing.T) {
	srv, store := newTestServer(t)
	owner, _ := store.CreateAccount(context.Background(), nil, 0)
	store.Apply(context.Background(), owner.ID, domain.TxDeposit, 5000, "")
	other, _ := store.CreateAccount(context.Background(), nil, 0)

	resp, body := doJSON(t, "POST", srv.URL+"/payments", map[string]any{
		"account_id": owner.ID,
		"kind":       "WITHDRAW",
		"amount":     2000,
		"phone":      "065123456",
	}, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, body)
	}
	var sess domain.PaymentSession
	json.Unmarshal(body, &sess)

	url := srv.URL + "/payments/" + sess.ID + "/cancel"
	resp, _ = doJSON(t, "POST", url, map[string]any{"account_id": other.ID}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}

	resp, body = doJSON(t, "POST", url, map[string]any{"account_id": owner.ID}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	json.Unmarshal(body, &sess)
	if sess.Status != domain.SessionCancelled {
		t.Errorf("expected CANCELLED, got %s", sess.Status)
	}
}
