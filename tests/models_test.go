// Package tests contains tests for domain model helpers
package tests

import (
	"testing"
	"time"

	"github.com/valzstore/topup-engine/models"
	"github.com/valzstore/topup-engine/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepositRequestStates(t *testing.T) {
	t.Run("TerminalStates", func(t *testing.T) {
		finals := []models.DepositRequestStatus{
			models.DepositStatusCredited,
			models.DepositStatusFailed,
			models.DepositStatusExpired,
		}
		for _, status := range finals {
			d := &models.DepositRequest{Status: status}
			assert.True(t, d.IsFinal(), "status %s should be terminal", status)
			assert.False(t, d.IsAwaitingPayment())
		}
	})

	t.Run("LiveStates", func(t *testing.T) {
		for _, status := range []models.DepositRequestStatus{
			models.DepositStatusCreated,
			models.DepositStatusAwaitingPayment,
			models.DepositStatusMatched,
		} {
			d := &models.DepositRequest{Status: status}
			assert.False(t, d.IsFinal(), "status %s should not be terminal", status)
		}

		d := &models.DepositRequest{Status: models.DepositStatusAwaitingPayment}
		assert.True(t, d.IsAwaitingPayment())
	})

	t.Run("Expiry", func(t *testing.T) {
		past := &models.DepositRequest{ExpiresAt: time.Now().UTC().Add(-time.Minute)}
		assert.True(t, past.IsExpired())

		future := &models.DepositRequest{ExpiresAt: time.Now().UTC().Add(time.Minute)}
		assert.False(t, future.IsExpired())
	})
}

func TestOTPCodeExpiry(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	code := &models.OTPCode{
		AccountRef: "628100",
		Code:       "123456",
		CreatedAt:  issued,
		ExpiresAt:  issued.Add(5 * time.Minute),
	}

	assert.False(t, code.IsExpired(issued))
	assert.False(t, code.IsExpired(issued.Add(5*time.Minute)))
	assert.True(t, code.IsExpired(issued.Add(5*time.Minute+time.Nanosecond)))
}

func TestRandomNumericCode(t *testing.T) {
	t.Run("FixedLengthWithLeadingZeros", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			code, err := utils.RandomNumericCode(6)
			require.NoError(t, err)
			require.Len(t, code, 6)
			for _, c := range code {
				assert.True(t, c >= '0' && c <= '9')
			}
		}
	})

	t.Run("RejectsNonPositiveLength", func(t *testing.T) {
		_, err := utils.RandomNumericCode(0)
		assert.Error(t, err)
		_, err = utils.RandomNumericCode(-3)
		assert.Error(t, err)
	})
}

func TestRandomUint64InRange(t *testing.T) {
	t.Run("StaysWithinBounds", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			v, err := utils.RandomUint64InRange(10, 50)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, v, uint64(10))
			assert.LessOrEqual(t, v, uint64(50))
		}
	})

	t.Run("DegenerateRange", func(t *testing.T) {
		v, err := utils.RandomUint64InRange(25, 25)
		require.NoError(t, err)
		assert.Equal(t, uint64(25), v)
	})

	t.Run("RejectsInvertedRange", func(t *testing.T) {
		_, err := utils.RandomUint64InRange(50, 10)
		assert.Error(t, err)
	})
}
