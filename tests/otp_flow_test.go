// Package tests contains tests for the OTP issue/consume flow
package tests

import (
	"context"
	"testing"
	"time"

	"github.com/valzstore/topup-engine/app/dto"
	businessflow "github.com/valzstore/topup-engine/business_flow"
	"github.com/valzstore/topup-engine/config"
	testingutil "github.com/valzstore/topup-engine/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func otpConfig() config.OTPConfig {
	return config.OTPConfig{CodeLength: 6, TTL: 5 * time.Minute}
}

type otpHarness struct {
	store *testingutil.InMemoryOTPCodeRepository
	flow  *businessflow.OTPFlowImpl
	clock *time.Time
}

// newOTPHarness wires the flow and the store to a shared movable clock
func newOTPHarness() *otpHarness {
	start := time.Now().UTC()
	clock := &start
	store := testingutil.NewInMemoryOTPCodeRepository()
	store.Now = func() time.Time { return *clock }
	flow := businessflow.NewOTPFlow(store, otpConfig(), nil).
		WithClock(func() time.Time { return *clock })
	return &otpHarness{store: store, flow: flow, clock: clock}
}

func (h *otpHarness) advance(d time.Duration) {
	*h.clock = h.clock.Add(d)
}

func (h *otpHarness) issue(t *testing.T, accountRef string) *dto.IssueOTPResponse {
	t.Helper()
	metadata := businessflow.NewClientMetadata("127.0.0.1", "test-agent")
	issued, err := h.flow.IssueOTP(context.Background(), &dto.IssueOTPRequest{AccountRef: accountRef}, metadata)
	require.NoError(t, err)
	require.True(t, issued.Success)
	return issued
}

func (h *otpHarness) consume(t *testing.T, accountRef, code string) *dto.ConsumeOTPResponse {
	t.Helper()
	metadata := businessflow.NewClientMetadata("127.0.0.1", "test-agent")
	consumed, err := h.flow.ConsumeOTP(context.Background(), &dto.ConsumeOTPRequest{AccountRef: accountRef, Code: code}, metadata)
	require.NoError(t, err)
	require.True(t, consumed.Success)
	return consumed
}

func TestOTPFlow(t *testing.T) {
	t.Run("IssueThenConsume", func(t *testing.T) {
		h := newOTPHarness()
		issued := h.issue(t, "628100")
		assert.Len(t, issued.Code, 6)

		assert.True(t, h.consume(t, "628100", issued.Code).Valid)
	})

	t.Run("CodeBurnsOnFirstUse", func(t *testing.T) {
		h := newOTPHarness()
		issued := h.issue(t, "628100")

		assert.True(t, h.consume(t, "628100", issued.Code).Valid)
		assert.False(t, h.consume(t, "628100", issued.Code).Valid)
	})

	t.Run("WrongCodeRejected", func(t *testing.T) {
		h := newOTPHarness()
		issued := h.issue(t, "628100")

		wrong := "000000"
		if issued.Code == wrong {
			wrong = "000001"
		}
		assert.False(t, h.consume(t, "628100", wrong).Valid)

		// The real code survives a failed guess
		assert.True(t, h.consume(t, "628100", issued.Code).Valid)
	})

	t.Run("ExpiredCodeRejected", func(t *testing.T) {
		h := newOTPHarness()
		issued := h.issue(t, "628100")

		h.advance(5*time.Minute + time.Second)
		assert.False(t, h.consume(t, "628100", issued.Code).Valid)
	})

	t.Run("WrongLengthCodeRejectedWithoutLookup", func(t *testing.T) {
		h := newOTPHarness()
		h.issue(t, "628100")

		assert.False(t, h.consume(t, "628100", "1234").Valid)
		assert.False(t, h.consume(t, "628100", "").Valid)
	})

	t.Run("FailureModesAreIndistinguishable", func(t *testing.T) {
		h := newOTPHarness()
		issued := h.issue(t, "628100")
		expired := h.issue(t, "628200")
		h.advance(5*time.Minute + time.Second)
		reissued := h.issue(t, "628100")

		// Wrong code, expired code and never-issued account all produce the
		// exact same response shape with no error.
		wrong := h.consume(t, "628100", pickOther(reissued.Code))
		lapsed := h.consume(t, "628200", expired.Code)
		unknown := h.consume(t, "628999", issued.Code)
		assert.Equal(t, wrong, lapsed)
		assert.Equal(t, lapsed, unknown)
		assert.False(t, wrong.Valid)
	})

	t.Run("AccountMayHoldSeveralLiveCodes", func(t *testing.T) {
		h := newOTPHarness()
		first := h.issue(t, "628100")
		second := h.issue(t, "628100")
		if first.Code == second.Code {
			t.Skip("random codes collided")
		}

		assert.True(t, h.consume(t, "628100", second.Code).Valid)
		assert.True(t, h.consume(t, "628100", first.Code).Valid)
	})

	t.Run("MissingAccountRef", func(t *testing.T) {
		h := newOTPHarness()
		metadata := businessflow.NewClientMetadata("127.0.0.1", "test-agent")

		_, err := h.flow.IssueOTP(context.Background(), &dto.IssueOTPRequest{}, metadata)
		require.Error(t, err)
		assert.True(t, businessflow.IsOTPAccountRequired(err))

		_, err = h.flow.ConsumeOTP(context.Background(), &dto.ConsumeOTPRequest{Code: "123456"}, metadata)
		require.Error(t, err)
		assert.True(t, businessflow.IsOTPAccountRequired(err))
	})
}

func TestListActiveOTPs(t *testing.T) {
	h := newOTPHarness()
	h.issue(t, "628100")
	h.issue(t, "628200")
	h.advance(3 * time.Minute)
	survivor := h.issue(t, "628300")
	h.advance(2*time.Minute + time.Second)
	// First two codes are past their TTL now, the third has 3 minutes left

	items, err := h.flow.ListActiveOTPs(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "628300", items[0].AccountRef)
	assert.Equal(t, survivor.Code, items[0].Code)
}

// pickOther returns a six digit code different from the given one
func pickOther(code string) string {
	if code == "000000" {
		return "000001"
	}
	return "000000"
}
