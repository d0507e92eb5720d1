package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// AccountLedger is the external balance store. The engine never reads
// balances; it only issues the single increase per credited deposit.
type AccountLedger interface {
	AddBalance(ctx context.Context, accountRef string, amount uint64) error
}

// DashLedgerClient applies balance increases through the dashboard
// add-balance endpoint.
type DashLedgerClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewDashLedgerClient creates a new dashboard ledger client
func NewDashLedgerClient(baseURL, apiKey string, timeout time.Duration) *DashLedgerClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DashLedgerClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type dashAddBalanceResp struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AddBalance increases the account balance by amount (minor units)
func (c *DashLedgerClient) AddBalance(ctx context.Context, accountRef string, amount uint64) error {
	q := url.Values{}
	q.Set("phone_number", accountRef)
	q.Set("amount", strconv.FormatUint(amount, 10))
	if c.APIKey != "" {
		q.Set("api_key", c.APIKey)
	}

	endpoint := c.BaseURL + "/api/auth/add-balance?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: add-balance: %v", ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: add-balance returned HTTP %d", ErrLedgerUnavailable, resp.StatusCode)
	}

	var out dashAddBalanceResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("%w: add-balance: invalid response body: %v", ErrLedgerUnavailable, err)
	}
	if !out.Success {
		return fmt.Errorf("%w: add-balance rejected: %s", ErrLedgerUnavailable, out.Message)
	}
	return nil
}
