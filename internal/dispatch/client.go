package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"asset-pool-ledger/internal/payout"
	"asset-pool-ledger/internal/vault"
)

// Provider is the Vault key the transfer service credentials live under
const Provider = "transfer-service"

// CredentialSource supplies transfer service credentials
type CredentialSource interface {
	GetCredentials(ctx context.Context, provider string) (*vault.Credentials, error)
}

// ClientConfig configures the HTTP dispatcher
type ClientConfig struct {
	BaseURL  string
	Timeout  time.Duration
	RetryMax int
}

// HTTPDispatcher sends withdrawals to the external transfer service. Every
// request carries the withdrawal ID as its idempotency key, so retried
// attempts settle at most once.
type HTTPDispatcher struct {
	baseURL    string
	creds      CredentialSource
	httpClient *retryablehttp.Client
	logger     zerolog.Logger
}

// NewHTTPDispatcher creates a dispatcher against cfg.BaseURL
func NewHTTPDispatcher(cfg ClientConfig, creds CredentialSource, logger zerolog.Logger) *HTTPDispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	logger = logger.With().Str("component", "HTTPDispatcher").Logger()

	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = cfg.Timeout
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = leveledLogger{logger}

	return &HTTPDispatcher{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		creds:      creds,
		httpClient: client,
		logger:     logger,
	}
}

// transferResponse is the transfer service's reply body
type transferResponse struct {
	TxHash    string    `json:"tx_hash"`
	Network   string    `json:"network"`
	SettledAt time.Time `json:"settled_at"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
}

// Dispatch posts the transfer and maps the reply onto a settlement or a
// typed failure.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, req payout.DispatchRequest) (*payout.Settlement, error) {
	if err := ValidateAddress(req.Network, req.Destination); err != nil {
		return nil, err
	}

	creds, err := d.creds.GetCredentials(ctx, Provider)
	if err != nil {
		return nil, payout.NewDispatchError(payout.ReasonTransferFailed, "transfer service credentials unavailable", err)
	}
	baseURL := d.baseURL
	if creds.BaseURL != "" {
		baseURL = strings.TrimRight(creds.BaseURL, "/")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("error encoding transfer: %w", err)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/transfers", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+creds.APIKey)
	httpReq.Header.Set("Idempotency-Key", req.WithdrawalID)

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, payout.NewDispatchError(payout.ReasonTransferFailed, "dispatch timed out", err)
		}
		return nil, payout.NewDispatchError(payout.ReasonTransferFailed, "error calling transfer service", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, payout.NewDispatchError(payout.ReasonTransferFailed, "error reading response", err)
	}

	var tr transferResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &tr); err != nil {
			return nil, payout.NewDispatchError(payout.ReasonTransferFailed,
				fmt.Sprintf("unreadable response (status %d)", resp.StatusCode), err)
		}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		reason := reasonForCode(tr.Code)
		msg := tr.Message
		if msg == "" {
			msg = fmt.Sprintf("transfer service returned %d", resp.StatusCode)
		}
		d.logger.Warn().
			Str("withdrawal_id", req.WithdrawalID).
			Int("status", resp.StatusCode).
			Str("code", tr.Code).
			Msg("Transfer rejected")
		return nil, payout.NewDispatchError(reason, msg, nil)
	}

	if tr.TxHash == "" {
		return nil, payout.NewDispatchError(payout.ReasonTransferFailed, "transfer service returned no tx hash", nil)
	}
	if tr.Network == "" {
		tr.Network = req.Network
	}
	if tr.SettledAt.IsZero() {
		tr.SettledAt = time.Now().UTC()
	}

	d.logger.Info().
		Str("withdrawal_id", req.WithdrawalID).
		Str("tx_hash", tr.TxHash).
		Msg("Transfer settled")
	return &payout.Settlement{TxHash: tr.TxHash, Network: tr.Network, SettledAt: tr.SettledAt}, nil
}

// reasonForCode maps transfer service error codes to failure reasons
func reasonForCode(code string) payout.FailureReason {
	switch strings.ToUpper(code) {
	case "INSUFFICIENT_FUNDS":
		return payout.ReasonInsufficientFunds
	case "INVALID_ADDRESS", "INVALID_DESTINATION":
		return payout.ReasonInvalidDestination
	case "UNSUPPORTED_NETWORK", "UNSUPPORTED_CURRENCY":
		return payout.ReasonUnsupportedNetwork
	default:
		return payout.ReasonTransferFailed
	}
}

// leveledLogger routes retryablehttp logging through zerolog
type leveledLogger struct {
	logger zerolog.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.log(l.logger.Error(), msg, kv) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.log(l.logger.Debug(), msg, kv) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.log(l.logger.Debug(), msg, kv) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.log(l.logger.Warn(), msg, kv) }

func (l leveledLogger) log(ev *zerolog.Event, msg string, kv []interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			ev = ev.Interface(key, kv[i+1])
		}
	}
	ev.Msg(msg)
}
