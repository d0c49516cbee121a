package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"asset-pool-ledger/internal/dispatch"
	"asset-pool-ledger/internal/ledger"
	"asset-pool-ledger/internal/money"
	"asset-pool-ledger/internal/payout"
)

const testDestination = "0x52908400098527886E0F7030069857D2E4169EE7"

// ============================================================================
// Test helpers
// ============================================================================

type testEnv struct {
	server *Server
	store  *ledger.MemoryStore
	mock   *dispatch.MockDispatcher
}

type envelope struct {
	Success bool            `json:"success"`
	Error   bool            `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type nopPublisher struct{}

func (nopPublisher) PublishWithdrawal(string, string, string, string, string) {}
func (nopPublisher) PublishError(string, string, error)                       {}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := ledger.NewMemoryStore()
	l := ledger.New(store, ledger.DefaultConfig(), zerolog.Nop())
	mock := dispatch.NewMockDispatcher()
	payouts := payout.NewService(store, mock, nopPublisher{}, payout.DefaultConfig(), zerolog.Nop())

	server := NewServer(ServerConfig{Host: "127.0.0.1", Port: 0}, l, payouts, zerolog.Nop(),
		WithHealthCheck("store", func(context.Context) error { return nil }))
	return &testEnv{server: server, store: store, mock: mock}
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(UserHeader, userID)
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)

	var resp envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to parse response %q: %v", w.Body.String(), err)
		}
	}
	return w.Code, resp
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode data %s: %v", string(raw), err)
	}
}

func (e *testEnv) openPool(t *testing.T) *ledger.Asset {
	t.Helper()
	code, resp := e.do(t, http.MethodPost, "/api/pools", "", map[string]string{
		"title":              "Test asset",
		"target_price":       "5.22",
		"platform_fee_ratio": "0.15",
	})
	if code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", code, resp.Message)
	}
	var asset ledger.Asset
	decode(t, resp.Data, &asset)
	return &asset
}

func (e *testEnv) deposit(t *testing.T, userID, amount string) {
	t.Helper()
	code, resp := e.do(t, http.MethodPost, "/api/wallet/deposits", userID, map[string]string{"amount": amount})
	if code != http.StatusOK {
		t.Fatalf("Expected deposit status 200, got %d: %s", code, resp.Message)
	}
}

func seedWithdrawable(t *testing.T, store ledger.Store, userID, amount string) {
	t.Helper()
	err := store.WithTx(context.Background(), func(tx ledger.Tx) error {
		return tx.InsertWallet(context.Background(), &ledger.Wallet{
			UserID:              userID,
			WithdrawableBalance: money.MustParse(amount),
			TotalProfitReceived: money.MustParse(amount),
		})
	})
	if err != nil {
		t.Fatalf("seed wallet: %v", err)
	}
}

// ============================================================================
// Health and routing
// ============================================================================

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got '%v'", response["status"])
	}
}

func TestHealthEndpoint_UnhealthyDependency(t *testing.T) {
	env := newTestEnv(t)
	env.server.health["redis"] = func(context.Context) error { return context.DeadlineExceeded }

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}

func TestNoRoute(t *testing.T) {
	env := newTestEnv(t)
	code, resp := env.do(t, http.MethodGet, "/api/unknown", "", nil)
	if code != http.StatusNotFound || !resp.Error {
		t.Errorf("Expected 404 error envelope, got %d %+v", code, resp)
	}
}

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/pools", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Expected wildcard origin, got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestRequireUser(t *testing.T) {
	env := newTestEnv(t)
	code, _ := env.do(t, http.MethodGet, "/api/wallet", "", nil)
	if code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", code)
	}
}

// ============================================================================
// Pools
// ============================================================================

func TestOpenPool_InvalidBody(t *testing.T) {
	env := newTestEnv(t)
	code, _ := env.do(t, http.MethodPost, "/api/pools", "", map[string]string{"target_price": "abc"})
	if code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", code)
	}
}

func TestGetPool_NotFound(t *testing.T) {
	env := newTestEnv(t)
	code, _ := env.do(t, http.MethodGet, "/api/pools/missing", "", nil)
	if code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", code)
	}
}

func TestPoolLifecycle(t *testing.T) {
	env := newTestEnv(t)
	asset := env.openPool(t)
	env.deposit(t, "user-a", "10.00")
	env.deposit(t, "user-b", "10.00")

	path := "/api/pools/" + asset.ID
	for _, c := range []struct{ user, amount string }{{"user-a", "4.00"}, {"user-b", "2.00"}} {
		code, resp := env.do(t, http.MethodPost, path+"/contributions", c.user, map[string]string{"amount": c.amount})
		if code != http.StatusOK {
			t.Fatalf("Expected contribution by %s to succeed, got %d %+v", c.user, code, resp)
		}
	}

	code, resp := env.do(t, http.MethodGet, path+"/stats", "", nil)
	if code != http.StatusOK {
		t.Fatalf("Expected stats status 200, got %d", code)
	}
	var stats ledger.ContributionStats
	decode(t, resp.Data, &stats)

	code, resp = env.do(t, http.MethodPost, path+"/process", "", nil)
	if code != http.StatusOK {
		t.Fatalf("Expected process status 200, got %d %+v", code, resp)
	}
	var processed ledger.ProcessingOutcome
	decode(t, resp.Data, &processed)
	if processed.Status != ledger.AssetStatusAvailable {
		t.Errorf("Expected status AVAILABLE, got %s", processed.Status)
	}
	if processed.AccessGranted != 2 {
		t.Errorf("Expected access granted to 2 contributors, got %d", processed.AccessGranted)
	}

	code, resp = env.do(t, http.MethodGet, path+"/access", "user-a", nil)
	if code != http.StatusOK {
		t.Fatalf("Expected access status 200, got %d", code)
	}
	var access ledger.AssetAccess
	decode(t, resp.Data, &access)
	if !access.HasAccess || access.AccessType != ledger.AccessTypeContribution {
		t.Errorf("Expected contributor access, got %+v", access)
	}

	code, resp = env.do(t, http.MethodPost, path+"/sales", "", map[string]string{"sale_proceeds": "1.00"})
	if code != http.StatusOK {
		t.Fatalf("Expected sale status 200, got %d %+v", code, resp)
	}
	var dist ledger.DistributionOutcome
	decode(t, resp.Data, &dist)
	if !dist.PlatformProfit.Equal(money.MustParse("0.15")) {
		t.Errorf("Expected platform profit 0.15, got %s", dist.PlatformProfit)
	}

	code, resp = env.do(t, http.MethodGet, "/api/wallet", "user-a", nil)
	if code != http.StatusOK {
		t.Fatalf("Expected wallet status 200, got %d", code)
	}
	var wallet ledger.Wallet
	decode(t, resp.Data, &wallet)
	if !wallet.WithdrawableBalance.Equal(money.MustParse("0.64")) {
		t.Errorf("Expected withdrawable 0.64, got %s", wallet.WithdrawableBalance)
	}

	code, _ = env.do(t, http.MethodGet, path+"/distributions", "", nil)
	if code != http.StatusOK {
		t.Errorf("Expected distributions status 200, got %d", code)
	}
	code, _ = env.do(t, http.MethodGet, "/api/wallet/profit-shares", "user-a", nil)
	if code != http.StatusOK {
		t.Errorf("Expected profit shares status 200, got %d", code)
	}
}

func TestContribute_RejectedIsUnprocessable(t *testing.T) {
	env := newTestEnv(t)
	asset := env.openPool(t)
	env.deposit(t, "user-a", "10.00")

	code, resp := env.do(t, http.MethodPost, "/api/pools/"+asset.ID+"/contributions", "user-a", map[string]string{"amount": "0.50"})
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d", code)
	}
	var out ledger.ContributionOutcome
	decode(t, resp.Data, &out)
	if out.Reason != ledger.ReasonMinimumNotMet {
		t.Errorf("Expected reason %s, got %s", ledger.ReasonMinimumNotMet, out.Reason)
	}
}

func TestPurchase_NotAvailable(t *testing.T) {
	env := newTestEnv(t)
	asset := env.openPool(t)
	env.deposit(t, "user-c", "10.00")

	code, resp := env.do(t, http.MethodPost, "/api/pools/"+asset.ID+"/purchases", "user-c", map[string]string{"price": "1.00"})
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d", code)
	}
	var out ledger.PurchaseOutcome
	decode(t, resp.Data, &out)
	if out.Reason != ledger.ReasonNotAvailable {
		t.Errorf("Expected reason %s, got %s", ledger.ReasonNotAvailable, out.Reason)
	}
}

// ============================================================================
// Wallet
// ============================================================================

func TestDeposit_InvalidAmount(t *testing.T) {
	env := newTestEnv(t)
	code, _ := env.do(t, http.MethodPost, "/api/wallet/deposits", "user-a", map[string]string{"amount": "-5.00"})
	if code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", code)
	}
}

func TestGetTransactions(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, "user-a", "10.00")
	env.deposit(t, "user-a", "5.00")

	tests := []struct {
		name     string
		query    string
		wantCode int
		wantLen  int
	}{
		{"default limit", "", http.StatusOK, 2},
		{"limited", "?limit=1", http.StatusOK, 1},
		{"bad limit", "?limit=abc", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := env.do(t, http.MethodGet, "/api/wallet/transactions"+tt.query, "user-a", nil)
			if code != tt.wantCode {
				t.Fatalf("Expected status %d, got %d", tt.wantCode, code)
			}
			if code != http.StatusOK {
				return
			}
			var txs []ledger.Transaction
			decode(t, resp.Data, &txs)
			if len(txs) != tt.wantLen {
				t.Errorf("Expected %d transactions, got %d", tt.wantLen, len(txs))
			}
		})
	}
}

func TestWithdraw_TimeoutHeldThenResolved(t *testing.T) {
	env := newTestEnv(t)
	cfg := payout.DefaultConfig()
	cfg.DispatchTimeout = 20 * time.Millisecond
	env.server.payouts = payout.NewService(env.store, env.mock, nopPublisher{}, cfg, zerolog.Nop())
	env.mock.SetLatency(time.Second)
	seedWithdrawable(t, env.store, "user-a", "10.00")

	code, resp := env.do(t, http.MethodPost, "/api/wallet/withdrawals", "user-a", map[string]string{
		"amount":      "4.00",
		"currency":    "USDT",
		"destination": testDestination,
	})
	if code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d %+v", code, resp)
	}
	var held payout.WithdrawalOutcome
	decode(t, resp.Data, &held)
	if held.Status != ledger.WithdrawalStatusPending || held.Reason != payout.ReasonTransferPending {
		t.Fatalf("Expected withdrawal held PENDING, got %+v", held)
	}

	path := "/api/withdrawals/" + held.WithdrawalID + "/resolve"
	code, resp = env.do(t, http.MethodPost, path, "", map[string]string{"tx_hash": "0xlate"})
	if code != http.StatusOK {
		t.Fatalf("Expected resolve status 200, got %d %+v", code, resp)
	}
	var resolved payout.WithdrawalOutcome
	decode(t, resp.Data, &resolved)
	if !resolved.Success || resolved.TxHash != "0xlate" {
		t.Errorf("Expected completed withdrawal, got %+v", resolved)
	}

	code, _ = env.do(t, http.MethodPost, path, "", map[string]string{"tx_hash": "0xagain"})
	if code != http.StatusConflict {
		t.Errorf("Expected status 409 on second resolve, got %d", code)
	}
}

func TestWithdraw_Success(t *testing.T) {
	env := newTestEnv(t)
	seedWithdrawable(t, env.store, "user-a", "10.00")

	code, resp := env.do(t, http.MethodPost, "/api/wallet/withdrawals", "user-a", map[string]string{
		"amount":      "4.00",
		"currency":    "USDT",
		"destination": testDestination,
	})
	if code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d %+v", code, resp)
	}
	var out payout.WithdrawalOutcome
	decode(t, resp.Data, &out)
	if out.TxHash == "" {
		t.Error("Expected a tx hash")
	}
	if env.mock.Count() != 1 {
		t.Errorf("Expected 1 settled transfer, got %d", env.mock.Count())
	}

	code, resp = env.do(t, http.MethodGet, "/api/wallet/withdrawals", "user-a", nil)
	if code != http.StatusOK {
		t.Fatalf("Expected history status 200, got %d", code)
	}
	var history []ledger.Withdrawal
	decode(t, resp.Data, &history)
	if len(history) != 1 || history[0].Status != ledger.WithdrawalStatusCompleted {
		t.Errorf("Expected one completed withdrawal, got %+v", history)
	}
}

func TestWithdraw_Rejections(t *testing.T) {
	env := newTestEnv(t)
	seedWithdrawable(t, env.store, "user-a", "2.00")

	tests := []struct {
		name        string
		amount      string
		destination string
		wantCode    int
		wantReason  payout.FailureReason
	}{
		{"below minimum", "0.50", testDestination, http.StatusUnprocessableEntity, payout.ReasonBelowMinimum},
		{"over withdrawable", "5.00", testDestination, http.StatusUnprocessableEntity, payout.ReasonInsufficientWithdrawable},
		{"bad address", "1.00", "0x1234", http.StatusUnprocessableEntity, payout.ReasonInvalidDestination},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := env.do(t, http.MethodPost, "/api/wallet/withdrawals", "user-a", map[string]string{
				"amount":      tt.amount,
				"currency":    "USDT",
				"destination": tt.destination,
			})
			if code != tt.wantCode {
				t.Fatalf("Expected status %d, got %d", tt.wantCode, code)
			}
			var out payout.WithdrawalOutcome
			decode(t, resp.Data, &out)
			if out.Reason != tt.wantReason {
				t.Errorf("Expected reason %s, got %s", tt.wantReason, out.Reason)
			}
		})
	}
}

func TestWithdraw_NoWallet(t *testing.T) {
	env := newTestEnv(t)
	code, _ := env.do(t, http.MethodPost, "/api/wallet/withdrawals", "ghost", map[string]string{
		"amount":      "2.00",
		"currency":    "USDT",
		"destination": testDestination,
	})
	if code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", code)
	}
}
