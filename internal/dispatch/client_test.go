package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"asset-pool-ledger/internal/money"
	"asset-pool-ledger/internal/payout"
	"asset-pool-ledger/internal/vault"
)

const testDestination = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func newTestDispatcher(t *testing.T, handler http.HandlerFunc, retries int) *HTTPDispatcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	creds := vault.NewMockClient()
	if err := creds.StoreCredentials(context.Background(), vault.Credentials{Provider: Provider, APIKey: "test-key"}); err != nil {
		t.Fatalf("StoreCredentials: %v", err)
	}
	d := NewHTTPDispatcher(ClientConfig{BaseURL: srv.URL, Timeout: 5 * time.Second, RetryMax: retries}, creds, zerolog.Nop())
	d.httpClient.RetryWaitMin = time.Millisecond
	d.httpClient.RetryWaitMax = 5 * time.Millisecond
	return d
}

func testRequest() payout.DispatchRequest {
	return payout.DispatchRequest{
		WithdrawalID: "wd-1",
		Destination:  testDestination,
		Amount:       money.MustParse("12.50"),
		Currency:     "USDT",
		Network:      "POLYGON",
	}
}

func TestHTTPDispatcher_Success(t *testing.T) {
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transfers" || r.Method != http.MethodPost {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Expected bearer token, got %q", got)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "wd-1" {
			t.Errorf("Expected idempotency key wd-1, got %q", got)
		}
		var body payout.DispatchRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if !body.Amount.Equal(money.MustParse("12.50")) {
			t.Errorf("Expected amount 12.50, got %s", body.Amount)
		}
		json.NewEncoder(w).Encode(map[string]string{"tx_hash": "0xdeadbeef"})
	}, 0)

	s, err := d.Dispatch(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if s.TxHash != "0xdeadbeef" {
		t.Errorf("Expected tx hash 0xdeadbeef, got %s", s.TxHash)
	}
	if s.Network != "POLYGON" {
		t.Errorf("Expected network defaulted to POLYGON, got %s", s.Network)
	}
}

func TestHTTPDispatcher_ErrorCodes(t *testing.T) {
	tests := []struct {
		code   string
		status int
		reason payout.FailureReason
	}{
		{"INSUFFICIENT_FUNDS", http.StatusUnprocessableEntity, payout.ReasonInsufficientFunds},
		{"INVALID_ADDRESS", http.StatusBadRequest, payout.ReasonInvalidDestination},
		{"UNSUPPORTED_CURRENCY", http.StatusBadRequest, payout.ReasonUnsupportedNetwork},
		{"SOMETHING_ELSE", http.StatusConflict, payout.ReasonTransferFailed},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]string{"code": tt.code, "message": "nope"})
			}, 0)

			_, err := d.Dispatch(context.Background(), testRequest())
			var de *payout.DispatchError
			if !errors.As(err, &de) || de.Reason != tt.reason {
				t.Errorf("Expected %s, got %v", tt.reason, err)
			}
		})
	}
}

func TestHTTPDispatcher_RetriesWithSameKey(t *testing.T) {
	var calls int32
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Idempotency-Key") != "wd-1" {
			t.Errorf("Expected stable idempotency key, got %q", r.Header.Get("Idempotency-Key"))
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"tx_hash": "0xabc"})
	}, 2)

	s, err := d.Dispatch(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if s.TxHash != "0xabc" || atomic.LoadInt32(&calls) != 2 {
		t.Errorf("Expected success on second attempt, got %s after %d calls", s.TxHash, calls)
	}
}

func TestHTTPDispatcher_ServerErrorIsTransferFailed(t *testing.T) {
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, 0)

	_, err := d.Dispatch(context.Background(), testRequest())
	if payout.Classify(err).Reason != payout.ReasonTransferFailed {
		t.Errorf("Expected TRANSFER_FAILED, got %v", err)
	}
}

func TestHTTPDispatcher_InvalidAddressNeverSent(t *testing.T) {
	var calls int32
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}, 0)

	req := testRequest()
	req.Destination = "0x1234"
	_, err := d.Dispatch(context.Background(), req)
	if payout.Classify(err).Reason != payout.ReasonInvalidDestination {
		t.Errorf("Expected INVALID_DESTINATION, got %v", err)
	}
	if calls != 0 {
		t.Errorf("Expected no request to the service, got %d", calls)
	}
}

func TestHTTPDispatcher_MissingCredentials(t *testing.T) {
	d := NewHTTPDispatcher(ClientConfig{BaseURL: "http://127.0.0.1:1"}, vault.NewMockClient(), zerolog.Nop())

	_, err := d.Dispatch(context.Background(), testRequest())
	if !errors.Is(err, vault.ErrCredentialsNotFound) {
		t.Errorf("Expected ErrCredentialsNotFound, got %v", err)
	}
}

func TestMockDispatcher(t *testing.T) {
	m := NewMockDispatcher()
	ctx := context.Background()

	first, err := m.Dispatch(ctx, testRequest())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	again, _ := m.Dispatch(ctx, testRequest())
	if first.TxHash != again.TxHash || m.Count() != 1 {
		t.Errorf("Expected repeated withdrawal ID to settle once")
	}

	m.FailDestination(testDestination, payout.ReasonInsufficientFunds)
	req := testRequest()
	req.WithdrawalID = "wd-2"
	if _, err := m.Dispatch(ctx, req); payout.Classify(err).Reason != payout.ReasonInsufficientFunds {
		t.Errorf("Expected forced INSUFFICIENT_FUNDS, got %v", err)
	}

	m.SetLatency(time.Second)
	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	req.WithdrawalID = "wd-3"
	if _, err := m.Dispatch(short, req); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}
