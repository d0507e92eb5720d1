package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DepositEvent is the structured notification emitted after a deposit
// reaches a terminal outcome. Dispatch is strictly after the credit is
// durably recorded, and delivery failures never roll anything back.
type DepositEvent struct {
	AccountRef      string `json:"account_ref"`
	RequestedAmount uint64 `json:"requested_amount"`
	TotalAmount     uint64 `json:"total_amount"`
	Fee             uint64 `json:"fee"`
	Outcome         string `json:"outcome"`
}

// NotificationSink receives deposit outcome events, best-effort
type NotificationSink interface {
	NotifyDepositEvent(ctx context.Context, event DepositEvent) error
}

// DiscordWebhookNotifier posts deposit events as Discord embeds, mirroring
// the dashboard's notification format.
type DiscordWebhookNotifier struct {
	WebhookURL  string
	MaxAttempts int
	HTTPClient  *http.Client
	Logger      *log.Logger
}

// NewDiscordWebhookNotifier creates a new Discord webhook notifier
func NewDiscordWebhookNotifier(webhookURL string, maxAttempts int, timeout time.Duration, logger *log.Logger) *DiscordWebhookNotifier {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &DiscordWebhookNotifier{
		WebhookURL:  strings.TrimSpace(webhookURL),
		MaxAttempts: maxAttempts,
		HTTPClient:  &http.Client{Timeout: timeout},
		Logger:      logger,
	}
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title  string              `json:"title"`
	Fields []discordEmbedField `json:"fields"`
	Color  int                 `json:"color"`
}

type discordWebhookBody struct {
	Embeds []discordEmbed `json:"embeds"`
}

const (
	discordColorGreen = 3066993
	discordColorRed   = 15158332
)

// NotifyDepositEvent posts the event, retrying up to MaxAttempts. A final
// failure is logged and swallowed; notification loss is acceptable,
// credit loss is not.
func (n *DiscordWebhookNotifier) NotifyDepositEvent(ctx context.Context, event DepositEvent) error {
	if n.WebhookURL == "" {
		return nil
	}

	color := discordColorGreen
	title := "Deposit Berhasil"
	if event.Outcome != "credited" {
		color = discordColorRed
		title = fmt.Sprintf("Deposit %s", event.Outcome)
	}
	body := discordWebhookBody{
		Embeds: []discordEmbed{{
			Title: title,
			Fields: []discordEmbedField{
				{Name: "Nomor", Value: event.AccountRef, Inline: true},
				{Name: "Nominal", Value: fmt.Sprintf("Rp%d", event.RequestedAmount), Inline: true},
				{Name: "Total Pembayaran", Value: fmt.Sprintf("Rp%d", event.TotalAmount), Inline: true},
				{Name: "Fee", Value: fmt.Sprintf("Rp%d", event.Fee), Inline: true},
			},
			Color: color,
		}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= n.MaxAttempts; attempt++ {
		lastErr = n.post(ctx, payload)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	n.Logger.Printf("notification: dropping deposit event for %s after %d attempts: %v", event.AccountRef, n.MaxAttempts, lastErr)
	return nil
}

func (n *DiscordWebhookNotifier) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// MockNotificationSink records events for tests
type MockNotificationSink struct {
	mu     sync.Mutex
	events []DepositEvent
}

// NewMockNotificationSink creates a new mock notification sink
func NewMockNotificationSink() *MockNotificationSink {
	return &MockNotificationSink{}
}

func (m *MockNotificationSink) NotifyDepositEvent(ctx context.Context, event DepositEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// GetEvents returns a copy of the recorded events
func (m *MockNotificationSink) GetEvents() []DepositEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DepositEvent, len(m.events))
	copy(out, m.events)
	return out
}

// ClearEvents drops all recorded events
func (m *MockNotificationSink) ClearEvents() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}
