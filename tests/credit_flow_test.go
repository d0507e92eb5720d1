// Package tests contains tests for the exactly-once crediting flow
package tests

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/valzstore/topup-engine/app/services"
	businessflow "github.com/valzstore/topup-engine/business_flow"
	"github.com/valzstore/topup-engine/models"
	testingutil "github.com/valzstore/topup-engine/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCreditHarness() (*testingutil.InMemoryDepositRequestRepository, *testingutil.InMemoryTransactionRepository, *testingutil.FakeLedger, *services.MockNotificationSink, *businessflow.CreditFlowImpl) {
	deposits := testingutil.NewInMemoryDepositRequestRepository()
	txns := testingutil.NewInMemoryTransactionRepository()
	ledger := testingutil.NewFakeLedger()
	notifier := services.NewMockNotificationSink()
	flow := businessflow.NewCreditFlow(deposits, txns, ledger, notifier, nil)
	return deposits, txns, ledger, notifier, flow
}

func matchedDeposit(t *testing.T, deposits *testingutil.InMemoryDepositRequestRepository, requested, fee uint64) *models.DepositRequest {
	t.Helper()
	fixtures := testingutil.NewTestFixtures(deposits)
	request, err := fixtures.CreateDepositRequest("628555", requested, fee,
		testingutil.WithStatus(models.DepositStatusMatched),
		testingutil.WithMatchedTxn("TXN-1", time.Now().UTC()))
	require.NoError(t, err)
	return request
}

func TestCredit(t *testing.T) {
	t.Run("CreditsRequestedAmountNotTotal", func(t *testing.T) {
		deposits, txns, ledger, notifier, flow := newCreditHarness()
		request := matchedDeposit(t, deposits, 50000, 12)

		result, err := flow.Credit(context.Background(), request)
		require.NoError(t, err)
		assert.True(t, result.Applied)
		assert.Equal(t, uint64(50000), result.Amount)

		// The payer transferred 50012 but the ledger gets exactly 50000
		calls := ledger.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, uint64(50000), calls[0].Amount)
		assert.Equal(t, "628555", calls[0].AccountRef)

		stored, err := deposits.ByID(context.Background(), request.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DepositStatusCredited, stored.Status)
		require.NotNil(t, stored.CreditedAt)

		// Audit row records the completed mutation
		rows, err := txns.ByDepositRequestID(context.Background(), request.ID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, models.TransactionStatusCompleted, rows[0].Status)
		assert.Equal(t, uint64(50000), rows[0].Amount)
		assert.Equal(t, uint64(12), rows[0].Fee)

		// Notification fires after the durable credit
		events := notifier.GetEvents()
		require.Len(t, events, 1)
		assert.Equal(t, "credited", events[0].Outcome)
		assert.Equal(t, uint64(50012), events[0].TotalAmount)
	})

	t.Run("SecondCreditIsNoOp", func(t *testing.T) {
		deposits, _, ledger, _, flow := newCreditHarness()
		request := matchedDeposit(t, deposits, 20000, 15)

		first, err := flow.Credit(context.Background(), request)
		require.NoError(t, err)
		assert.True(t, first.Applied)

		second, err := flow.Credit(context.Background(), request)
		require.NoError(t, err)
		assert.False(t, second.Applied)

		assert.Len(t, ledger.Calls(), 1)
	})

	t.Run("ConcurrentCreditsSingleWinner", func(t *testing.T) {
		deposits, _, ledger, _, flow := newCreditHarness()
		request := matchedDeposit(t, deposits, 30000, 10)

		var wg sync.WaitGroup
		applied := make([]bool, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				result, err := flow.Credit(context.Background(), request)
				if err == nil && result != nil {
					applied[i] = result.Applied
				}
			}(i)
		}
		wg.Wait()

		winners := 0
		for _, a := range applied {
			if a {
				winners++
			}
		}
		assert.Equal(t, 1, winners)
		assert.Len(t, ledger.Calls(), 1)
	})

	t.Run("UnmatchedRequestRejected", func(t *testing.T) {
		deposits, _, ledger, _, flow := newCreditHarness()
		fixtures := testingutil.NewTestFixtures(deposits)
		request, err := fixtures.CreateDepositRequest("628555", 10000, 10)
		require.NoError(t, err)

		_, err = flow.Credit(context.Background(), request)
		require.Error(t, err)
		assert.True(t, businessflow.IsPreconditionFailed(err))
		assert.Empty(t, ledger.Calls())
	})

	t.Run("ApplyFailureIsFatalAndNeverRetried", func(t *testing.T) {
		deposits, txns, ledger, notifier, flow := newCreditHarness()
		request := matchedDeposit(t, deposits, 40000, 25)
		ledger.Fail(errors.New("ledger rejected the mutation"))

		_, err := flow.Credit(context.Background(), request)
		require.Error(t, err)
		assert.True(t, businessflow.IsCreditApplyFailed(err))

		// The request lands in failed for manual reconciliation
		stored, err := deposits.ByID(context.Background(), request.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DepositStatusFailed, stored.Status)

		// Audit row marks the failed apply
		rows, err := txns.ByDepositRequestID(context.Background(), request.ID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, models.TransactionStatusApplyFailed, rows[0].Status)

		events := notifier.GetEvents()
		require.Len(t, events, 1)
		assert.Equal(t, "credit_apply_failed", events[0].Outcome)

		// A later attempt loses the CAS and must not touch the ledger
		ledger.Fail(nil)
		retry, err := flow.Credit(context.Background(), request)
		require.NoError(t, err)
		assert.False(t, retry.Applied)
		assert.Empty(t, ledger.Calls())
	})
}
