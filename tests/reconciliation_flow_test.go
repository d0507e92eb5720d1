// Package tests contains tests for the reconciliation poll cycle
package tests

import (
	"context"
	"testing"
	"time"

	"github.com/valzstore/topup-engine/app/services"
	businessflow "github.com/valzstore/topup-engine/business_flow"
	"github.com/valzstore/topup-engine/models"
	testingutil "github.com/valzstore/topup-engine/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconHarness struct {
	deposits *testingutil.InMemoryDepositRequestRepository
	fixtures *testingutil.TestFixtures
	gateway  *testingutil.FakeGateway
	ledger   *testingutil.FakeLedger
	notifier *services.MockNotificationSink
	flow     *businessflow.ReconciliationFlowImpl
}

func newReconHarness() *reconHarness {
	deposits := testingutil.NewInMemoryDepositRequestRepository()
	txns := testingutil.NewInMemoryTransactionRepository()
	ledger := testingutil.NewFakeLedger()
	notifier := services.NewMockNotificationSink()
	gateway := testingutil.NewFakeGateway()
	creditFlow := businessflow.NewCreditFlow(deposits, txns, ledger, notifier, nil)
	flow := businessflow.NewReconciliationFlow(deposits, gateway, creditFlow, 30*time.Minute, nil)
	return &reconHarness{
		deposits: deposits,
		fixtures: testingutil.NewTestFixtures(deposits),
		gateway:  gateway,
		ledger:   ledger,
		notifier: notifier,
		flow:     flow,
	}
}

func TestPollOnce(t *testing.T) {
	t.Run("ExactMatchCreditsRequestedAmount", func(t *testing.T) {
		h := newReconHarness()
		request, err := h.fixtures.CreateDepositRequest("628100", 50000, 12)
		require.NoError(t, err)
		h.gateway.AddTransaction(testingutil.GatewayTxn("TXN-A", 50012, time.Now().UTC()))

		outcome, err := h.flow.PollOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, outcome.Matched)
		assert.Equal(t, 1, outcome.Credited)
		assert.Zero(t, outcome.Expired)

		stored, err := h.deposits.ByID(context.Background(), request.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DepositStatusCredited, stored.Status)
		require.NotNil(t, stored.MatchedTxnID)
		assert.Equal(t, "TXN-A", *stored.MatchedTxnID)

		calls := h.ledger.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, uint64(50000), calls[0].Amount)
	})

	t.Run("OffByOneNeverMatches", func(t *testing.T) {
		h := newReconHarness()
		request, err := h.fixtures.CreateDepositRequest("628100", 50000, 12)
		require.NoError(t, err)
		h.gateway.AddTransaction(testingutil.GatewayTxn("TXN-LOW", 50011, time.Now().UTC()))
		h.gateway.AddTransaction(testingutil.GatewayTxn("TXN-HIGH", 50013, time.Now().UTC()))

		outcome, err := h.flow.PollOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, outcome.Matched)

		stored, err := h.deposits.ByID(context.Background(), request.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DepositStatusAwaitingPayment, stored.Status)
		assert.Empty(t, h.ledger.Calls())
	})

	t.Run("DoublePollIsIdempotent", func(t *testing.T) {
		h := newReconHarness()
		_, err := h.fixtures.CreateDepositRequest("628100", 20000, 20)
		require.NoError(t, err)
		h.gateway.AddTransaction(testingutil.GatewayTxn("TXN-B", 20020, time.Now().UTC()))

		first, err := h.flow.PollOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, first.Matched)
		assert.Equal(t, 1, first.Credited)

		// The gateway keeps reporting the same transaction; nothing changes
		second, err := h.flow.PollOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, second.Matched)
		assert.Zero(t, second.Credited)
		assert.Len(t, h.ledger.Calls(), 1)
	})

	t.Run("EqualTotalsServedOldestFirst", func(t *testing.T) {
		h := newReconHarness()
		base := time.Now().UTC().Add(-10 * time.Minute)
		older, err := h.fixtures.CreateDepositRequest("628111", 10000, 25,
			testingutil.WithCreatedAt(base))
		require.NoError(t, err)
		newer, err := h.fixtures.CreateDepositRequest("628222", 10000, 25,
			testingutil.WithCreatedAt(base.Add(2*time.Minute)))
		require.NoError(t, err)

		// Two identical-amount settlements; the earlier one must fund the
		// older request.
		h.gateway.AddTransaction(testingutil.GatewayTxn("TXN-LATE", 10025, base.Add(5*time.Minute)))
		h.gateway.AddTransaction(testingutil.GatewayTxn("TXN-EARLY", 10025, base.Add(3*time.Minute)))

		outcome, err := h.flow.PollOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, outcome.Matched)
		assert.Equal(t, 2, outcome.Credited)

		storedOlder, err := h.deposits.ByID(context.Background(), older.ID)
		require.NoError(t, err)
		require.NotNil(t, storedOlder.MatchedTxnID)
		assert.Equal(t, "TXN-EARLY", *storedOlder.MatchedTxnID)

		storedNewer, err := h.deposits.ByID(context.Background(), newer.ID)
		require.NoError(t, err)
		require.NotNil(t, storedNewer.MatchedTxnID)
		assert.Equal(t, "TXN-LATE", *storedNewer.MatchedTxnID)
	})

	t.Run("DistinctTotalsDisambiguateSameAccount", func(t *testing.T) {
		h := newReconHarness()
		first, err := h.fixtures.CreateDepositRequest("628333", 50000, 12)
		require.NoError(t, err)
		second, err := h.fixtures.CreateDepositRequest("628333", 50000, 31)
		require.NoError(t, err)

		h.gateway.AddTransaction(testingutil.GatewayTxn("TXN-31", 50031, time.Now().UTC()))

		outcome, err := h.flow.PollOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, outcome.Matched)

		storedFirst, err := h.deposits.ByID(context.Background(), first.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DepositStatusAwaitingPayment, storedFirst.Status)

		storedSecond, err := h.deposits.ByID(context.Background(), second.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DepositStatusCredited, storedSecond.Status)
	})

	t.Run("ExpiredRequestIsSweptNotSettled", func(t *testing.T) {
		h := newReconHarness()
		request, err := h.fixtures.CreateDepositRequest("628444", 15000, 10,
			testingutil.WithExpiresAt(time.Now().UTC().Add(-1*time.Minute)))
		require.NoError(t, err)

		// A matching transaction arrives after the deadline; it must not
		// resurrect the request.
		h.gateway.AddTransaction(testingutil.GatewayTxn("TXN-LATE-PAY", 15010, time.Now().UTC()))

		outcome, err := h.flow.PollOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, outcome.Expired)
		assert.Zero(t, outcome.Matched)

		stored, err := h.deposits.ByID(context.Background(), request.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DepositStatusExpired, stored.Status)
		assert.Empty(t, h.ledger.Calls())
	})

	t.Run("GatewayFailureSurfacesAfterSweep", func(t *testing.T) {
		h := newReconHarness()
		_, err := h.fixtures.CreateDepositRequest("628555", 10000, 10)
		require.NoError(t, err)
		_, err = h.fixtures.CreateDepositRequest("628555", 12000, 10,
			testingutil.WithExpiresAt(time.Now().UTC().Add(-1*time.Minute)))
		require.NoError(t, err)
		h.gateway.FailListing(services.ErrGatewayUnavailable)

		outcome, err := h.flow.PollOnce(context.Background())
		require.Error(t, err)
		assert.True(t, businessflow.IsGatewayUnavailable(err))
		require.NotNil(t, outcome)
		assert.Equal(t, 1, outcome.Expired)
	})

	t.Run("LeftoverMatchedRequestGetsCredited", func(t *testing.T) {
		h := newReconHarness()
		// A previous cycle matched this request and crashed before crediting
		request, err := h.fixtures.CreateDepositRequest("628666", 30000, 18,
			testingutil.WithStatus(models.DepositStatusMatched),
			testingutil.WithMatchedTxn("TXN-LEFTOVER", time.Now().UTC()))
		require.NoError(t, err)

		outcome, err := h.flow.PollOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, outcome.Matched)
		assert.Equal(t, 1, outcome.Credited)

		stored, err := h.deposits.ByID(context.Background(), request.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DepositStatusCredited, stored.Status)
	})

	t.Run("ConsumedTransactionNeverFundsASecondRequest", func(t *testing.T) {
		h := newReconHarness()
		_, err := h.fixtures.CreateDepositRequest("628777", 25000, 30)
		require.NoError(t, err)
		h.gateway.AddTransaction(testingutil.GatewayTxn("TXN-ONCE", 25030, time.Now().UTC()))

		_, err = h.flow.PollOnce(context.Background())
		require.NoError(t, err)

		// A second request quoting the same total appears while the gateway
		// still reports the consumed transaction
		latecomer, err := h.fixtures.CreateDepositRequest("628888", 25000, 30)
		require.NoError(t, err)

		outcome, err := h.flow.PollOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, outcome.Matched)

		stored, err := h.deposits.ByID(context.Background(), latecomer.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DepositStatusAwaitingPayment, stored.Status)
		assert.Len(t, h.ledger.Calls(), 1)
	})
}
