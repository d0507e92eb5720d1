// Package tests contains tests for the deposit creation flow
package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/valzstore/topup-engine/app/dto"
	"github.com/valzstore/topup-engine/app/services"
	businessflow "github.com/valzstore/topup-engine/business_flow"
	"github.com/valzstore/topup-engine/config"
	"github.com/valzstore/topup-engine/models"
	testingutil "github.com/valzstore/topup-engine/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func depositConfig() config.DepositConfig {
	return config.DepositConfig{
		MinAmount:  1000,
		FeeMin:     10,
		FeeMax:     50,
		RequestTTL: 15 * time.Minute,
	}
}

func TestCreateDeposit(t *testing.T) {
	metadata := businessflow.NewClientMetadata("127.0.0.1", "test-agent")

	t.Run("SuccessfulCreation", func(t *testing.T) {
		deposits := testingutil.NewInMemoryDepositRequestRepository()
		gateway := testingutil.NewFakeGateway()
		flow := businessflow.NewDepositFlow(deposits, gateway, nil, depositConfig())

		result, err := flow.CreateDeposit(context.Background(), &dto.CreateDepositRequest{
			AccountRef: "6281234567890",
			Amount:     50000,
		}, metadata)
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.True(t, result.Success)

		d := result.Deposit
		assert.Equal(t, "6281234567890", d.AccountRef)
		assert.Equal(t, uint64(50000), d.RequestedAmount)
		assert.GreaterOrEqual(t, d.Fee, uint64(10))
		assert.LessOrEqual(t, d.Fee, uint64(50))
		assert.Equal(t, d.RequestedAmount+d.Fee, d.TotalAmount)
		assert.Equal(t, string(models.DepositStatusAwaitingPayment), d.Status)
		assert.NotEmpty(t, d.QRPayload)
		assert.NotEmpty(t, d.UUID)

		// The stored record carries the same quoted amounts
		stored, err := deposits.ByUUID(context.Background(), d.UUID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, d.TotalAmount, stored.TotalAmount)
		assert.Equal(t, models.DepositStatusAwaitingPayment, stored.Status)
	})

	t.Run("FeeIsFixedAtCreation", func(t *testing.T) {
		deposits := testingutil.NewInMemoryDepositRequestRepository()
		gateway := testingutil.NewFakeGateway()
		flow := businessflow.NewDepositFlow(deposits, gateway, nil, depositConfig())

		result, err := flow.CreateDeposit(context.Background(), &dto.CreateDepositRequest{
			AccountRef: "6281234567890",
			Amount:     25000,
		}, metadata)
		require.NoError(t, err)

		// Re-reading never changes the quoted amounts
		for i := 0; i < 3; i++ {
			got, err := flow.GetDeposit(context.Background(), result.Deposit.UUID)
			require.NoError(t, err)
			assert.Equal(t, result.Deposit.Fee, got.Fee)
			assert.Equal(t, result.Deposit.TotalAmount, got.TotalAmount)
		}
	})

	t.Run("AmountBelowMinimum", func(t *testing.T) {
		deposits := testingutil.NewInMemoryDepositRequestRepository()
		gateway := testingutil.NewFakeGateway()
		flow := businessflow.NewDepositFlow(deposits, gateway, nil, depositConfig())

		_, err := flow.CreateDeposit(context.Background(), &dto.CreateDepositRequest{
			AccountRef: "6281234567890",
			Amount:     500,
		}, metadata)
		require.Error(t, err)
		assert.True(t, businessflow.IsAmountTooLow(err))
		assert.Zero(t, gateway.IntentCalls())
	})

	t.Run("MissingAccountRef", func(t *testing.T) {
		deposits := testingutil.NewInMemoryDepositRequestRepository()
		gateway := testingutil.NewFakeGateway()
		flow := businessflow.NewDepositFlow(deposits, gateway, nil, depositConfig())

		_, err := flow.CreateDeposit(context.Background(), &dto.CreateDepositRequest{
			Amount: 50000,
		}, metadata)
		require.Error(t, err)
		assert.True(t, businessflow.IsAccountRefRequired(err))
	})

	t.Run("GatewayFailureLeavesNoRecord", func(t *testing.T) {
		deposits := testingutil.NewInMemoryDepositRequestRepository()
		gateway := testingutil.NewFakeGateway()
		gateway.FailIntents(services.ErrGatewayUnavailable)
		flow := businessflow.NewDepositFlow(deposits, gateway, nil, depositConfig())

		_, err := flow.CreateDeposit(context.Background(), &dto.CreateDepositRequest{
			AccountRef: "6281234567890",
			Amount:     50000,
		}, metadata)
		require.Error(t, err)
		assert.True(t, businessflow.IsGatewayUnavailable(err))

		count, err := deposits.Count(context.Background(), models.DepositRequestFilter{})
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestGetDeposit(t *testing.T) {
	deposits := testingutil.NewInMemoryDepositRequestRepository()
	gateway := testingutil.NewFakeGateway()
	flow := businessflow.NewDepositFlow(deposits, gateway, nil, depositConfig())

	t.Run("NotFound", func(t *testing.T) {
		_, err := flow.GetDeposit(context.Background(), "00000000-0000-0000-0000-000000000000")
		require.Error(t, err)
		assert.True(t, businessflow.IsDepositNotFound(err))
	})
}

func TestListDeposits(t *testing.T) {
	deposits := testingutil.NewInMemoryDepositRequestRepository()
	fixtures := testingutil.NewTestFixtures(deposits)
	gateway := testingutil.NewFakeGateway()
	flow := businessflow.NewDepositFlow(deposits, gateway, nil, depositConfig())

	base := time.Now().UTC().Add(-1 * time.Hour)
	for i := 0; i < 5; i++ {
		_, err := fixtures.CreateDepositRequest("628111", 10000+uint64(i)*1000, 15,
			testingutil.WithCreatedAt(base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}
	_, err := fixtures.CreateDepositRequest("628222", 99000, 20)
	require.NoError(t, err)

	t.Run("NewestFirstWithPagination", func(t *testing.T) {
		page, err := flow.ListDeposits(context.Background(), &dto.ListDepositsRequest{
			AccountRef: "628111",
			Page:       1,
			PageSize:   3,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(5), page.Total)
		require.Len(t, page.Items, 3)
		// Newest created request comes first
		assert.Equal(t, uint64(14000), page.Items[0].RequestedAmount)
		assert.Equal(t, uint64(13000), page.Items[1].RequestedAmount)

		second, err := flow.ListDeposits(context.Background(), &dto.ListDepositsRequest{
			AccountRef: "628111",
			Page:       2,
			PageSize:   3,
		})
		require.NoError(t, err)
		require.Len(t, second.Items, 2)
		assert.Equal(t, uint64(11000), second.Items[0].RequestedAmount)
	})

	t.Run("OtherAccountInvisible", func(t *testing.T) {
		page, err := flow.ListDeposits(context.Background(), &dto.ListDepositsRequest{AccountRef: "628222"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)
	})

	t.Run("MissingAccountRef", func(t *testing.T) {
		_, err := flow.ListDeposits(context.Background(), &dto.ListDepositsRequest{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, businessflow.ErrAccountRefRequired))
	})
}
