// Package services provides external service integrations and technical concerns like gateways and notifications
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valzstore/topup-engine/models"
)

// Service error constants
var (
	// ErrGatewayUnavailable covers network failures, timeouts and non-2xx
	// gateway responses. Transient; the poll scheduler owns the retry
	// policy, the client never retries on its own.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrLedgerUnavailable covers failures reaching the external account
	// ledger. Transient and safe to retry only before the credit CAS.
	ErrLedgerUnavailable = errors.New("account ledger unavailable")
)

// IsGatewayUnavailable reports whether err is a transient gateway failure
func IsGatewayUnavailable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable)
}

// IsLedgerUnavailable reports whether err is a transient ledger failure
func IsLedgerUnavailable(err error) bool {
	return errors.Is(err, ErrLedgerUnavailable)
}

// PaymentIntent is the gateway's answer to an intent creation: an opaque
// QR payload for display plus the total the payer must transfer.
type PaymentIntent struct {
	TotalAmount uint64
	QRPayload   string
	QRImageURL  string
}

// PaymentGatewayClient is the thin adapter over the QRIS gateway
type PaymentGatewayClient interface {
	// CreateIntent renders a dynamic QR for the given total amount
	CreateIntent(ctx context.Context, totalAmount uint64) (*PaymentIntent, error)
	// ListRecentTransactions returns settled transactions observed within
	// the window, in no particular order; callers sort.
	ListRecentTransactions(ctx context.Context, window time.Duration) ([]models.GatewayTransaction, error)
}

// OrkutClient talks to the Orkut QRIS aggregator (jkt48connect API).
// Every call is bounded by the HTTP client timeout; a cycle never hangs
// on a slow gateway.
type OrkutClient struct {
	BaseURL     string
	APIKey      string
	MerchantID  string
	MerchantKey string
	StaticQRIS  string
	HTTPClient  *http.Client
}

// NewOrkutClient creates a new Orkut gateway client
func NewOrkutClient(baseURL, apiKey, merchantID, merchantKey, staticQRIS string, timeout time.Duration) *OrkutClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OrkutClient{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		APIKey:      apiKey,
		MerchantID:  merchantID,
		MerchantKey: merchantKey,
		StaticQRIS:  staticQRIS,
		HTTPClient:  &http.Client{Timeout: timeout},
	}
}

func (c *OrkutClient) Name() string { return "orkut" }

type orkutCreatePaymentResp struct {
	Status      string `json:"status"`
	DynamicQRIS string `json:"dynamicQRIS"`
	QRImageURL  string `json:"qrImageUrl"`
	TotalAmount uint64 `json:"totalAmount"`
	Fee         uint64 `json:"fee"`
	Message     string `json:"message"`
}

// CreateIntent renders a dynamic QRIS for the exact total amount. The fee
// is already folded into the total by the caller, so includeFee stays off.
func (c *OrkutClient) CreateIntent(ctx context.Context, totalAmount uint64) (*PaymentIntent, error) {
	q := url.Values{}
	q.Set("amount", strconv.FormatUint(totalAmount, 10))
	q.Set("qris", c.StaticQRIS)
	q.Set("includeFee", "false")
	q.Set("api_key", c.APIKey)

	endpoint := c.BaseURL + "/api/orkut/createpayment?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: createpayment: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: createpayment returned HTTP %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var out orkutCreatePaymentResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: createpayment: invalid response body: %v", ErrGatewayUnavailable, err)
	}
	if out.DynamicQRIS == "" {
		return nil, fmt.Errorf("%w: createpayment: empty QRIS payload (%s)", ErrGatewayUnavailable, out.Message)
	}

	total := out.TotalAmount
	if total == 0 {
		total = totalAmount
	}
	return &PaymentIntent{
		TotalAmount: total,
		QRPayload:   out.DynamicQRIS,
		QRImageURL:  out.QRImageURL,
	}, nil
}

type orkutTransaction struct {
	ReferenceID string `json:"reference_id"`
	IssuerReff  string `json:"issuer_reff"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
}

type orkutStatusResp struct {
	Status string             `json:"status"`
	Data   []orkutTransaction `json:"data"`
}

// ListRecentTransactions fetches settled mutations from the gateway and
// keeps those inside the window.
func (c *OrkutClient) ListRecentTransactions(ctx context.Context, window time.Duration) ([]models.GatewayTransaction, error) {
	q := url.Values{}
	q.Set("merchant", c.MerchantID)
	q.Set("keyorkut", c.MerchantKey)
	q.Set("api_key", c.APIKey)

	endpoint := c.BaseURL + "/api/orkut/cekstatus?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: cekstatus: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: cekstatus returned HTTP %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var out orkutStatusResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: cekstatus: invalid response body: %v", ErrGatewayUnavailable, err)
	}
	if !strings.EqualFold(out.Status, "success") {
		return nil, fmt.Errorf("%w: cekstatus returned status %q", ErrGatewayUnavailable, out.Status)
	}

	cutoff := time.Now().UTC().Add(-window)
	txns := make([]models.GatewayTransaction, 0, len(out.Data))
	for _, raw := range out.Data {
		amount, err := strconv.ParseUint(strings.TrimSpace(raw.Amount), 10, 64)
		if err != nil {
			continue // Non-numeric mutation rows (fees, adjustments) are not settlements
		}
		occurredAt, err := parseOrkutDate(raw.Date)
		if err != nil {
			continue
		}
		if window > 0 && occurredAt.Before(cutoff) {
			continue
		}
		externalID := raw.ReferenceID
		if externalID == "" {
			externalID = raw.IssuerReff
		}
		if externalID == "" {
			// The aggregator omits references on some mutation types; a
			// synthetic id keeps consumed-txn tracking functional.
			externalID = fmt.Sprintf("%s/%d", raw.Date, amount)
		}
		txns = append(txns, models.GatewayTransaction{
			ExternalID: externalID,
			Amount:     amount,
			OccurredAt: occurredAt,
		})
	}
	return txns, nil
}

// parseOrkutDate accepts the two timestamp shapes the aggregator emits
func parseOrkutDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized gateway date %q", s)
}
