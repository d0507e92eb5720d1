// Package tests contains integration tests for the SQL-backed repositories.
// They need a reachable PostgreSQL server and skip themselves otherwise.
package tests

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/valzstore/topup-engine/models"
	"github.com/valzstore/topup-engine/repository"
	testingutil "github.com/valzstore/topup-engine/testing"
	"github.com/valzstore/topup-engine/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepoDB(t *testing.T) *testingutil.TestDB {
	t.Helper()
	if os.Getenv("TEST_DB_HOST") == "" {
		t.Skip("TEST_DB_HOST not set; skipping database integration tests")
	}
	tdb, err := testingutil.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, tdb.TeardownTestDB())
	})
	return tdb
}

func seedDepositRequest(t *testing.T, repo repository.DepositRequestRepository, accountRef string, total uint64) *models.DepositRequest {
	t.Helper()
	now := time.Now().UTC()
	request := &models.DepositRequest{
		AccountRef:      accountRef,
		RequestedAmount: total - 15,
		Fee:             15,
		TotalAmount:     total,
		Currency:        utils.RupiahCurrency,
		Status:          models.DepositStatusAwaitingPayment,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(15 * time.Minute),
	}
	require.NoError(t, repo.Save(context.Background(), request))
	return request
}

func TestDepositRequestRepositoryIntegration(t *testing.T) {
	tdb := setupRepoDB(t)
	repo := repository.NewDepositRequestRepository(tdb.DB)
	ctx := context.Background()

	t.Run("SaveAndLookup", func(t *testing.T) {
		request := seedDepositRequest(t, repo, "628100", 50015)

		byID, err := repo.ByID(ctx, request.ID)
		require.NoError(t, err)
		require.NotNil(t, byID)
		assert.Equal(t, request.TotalAmount, byID.TotalAmount)

		byUUID, err := repo.ByUUID(ctx, request.UUID.String())
		require.NoError(t, err)
		require.NotNil(t, byUUID)
		assert.Equal(t, request.ID, byUUID.ID)
	})

	t.Run("TransitionIsCompareAndSwap", func(t *testing.T) {
		request := seedDepositRequest(t, repo, "628200", 20015)

		err := repo.TransitionStatus(ctx, request.ID,
			models.DepositStatusAwaitingPayment, models.DepositStatusMatched,
			repository.TransitionFields{
				StatusReason: "settled by gateway transaction",
				MatchedTxnID: utils.ToPtr("TXN-IT-1"),
				MatchedAt:    utils.UTCNowPtr(),
			})
		require.NoError(t, err)

		// The same transition again loses: the row is no longer awaiting
		err = repo.TransitionStatus(ctx, request.ID,
			models.DepositStatusAwaitingPayment, models.DepositStatusMatched,
			repository.TransitionFields{})
		require.Error(t, err)
		assert.True(t, repository.IsStaleState(err))

		stored, err := repo.ByID(ctx, request.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DepositStatusMatched, stored.Status)
	})

	t.Run("MatchedTxnIDIsUnique", func(t *testing.T) {
		first := seedDepositRequest(t, repo, "628300", 30015)
		second := seedDepositRequest(t, repo, "628300", 30015)

		err := repo.TransitionStatus(ctx, first.ID,
			models.DepositStatusAwaitingPayment, models.DepositStatusMatched,
			repository.TransitionFields{MatchedTxnID: utils.ToPtr("TXN-IT-DUP")})
		require.NoError(t, err)

		// Recording the same settling transaction twice violates the index
		err = repo.TransitionStatus(ctx, second.ID,
			models.DepositStatusAwaitingPayment, models.DepositStatusMatched,
			repository.TransitionFields{MatchedTxnID: utils.ToPtr("TXN-IT-DUP")})
		require.Error(t, err)
		assert.False(t, repository.IsStaleState(err))
	})

	t.Run("CountByMatchedTxnID", func(t *testing.T) {
		request := seedDepositRequest(t, repo, "628400", 40015)
		require.NoError(t, repo.TransitionStatus(ctx, request.ID,
			models.DepositStatusAwaitingPayment, models.DepositStatusMatched,
			repository.TransitionFields{MatchedTxnID: utils.ToPtr("TXN-IT-COUNT")}))

		count, err := repo.Count(ctx, models.DepositRequestFilter{MatchedTxnID: utils.ToPtr("TXN-IT-COUNT")})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		count, err = repo.Count(ctx, models.DepositRequestFilter{MatchedTxnID: utils.ToPtr("TXN-IT-ABSENT")})
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestTransactionRepositoryIntegration(t *testing.T) {
	tdb := setupRepoDB(t)
	deposits := repository.NewDepositRequestRepository(tdb.DB)
	txns := repository.NewTransactionRepository(tdb.DB)
	ctx := context.Background()

	request := seedDepositRequest(t, deposits, "628500", 60015)

	txn := &models.Transaction{
		CorrelationID:    request.CorrelationID,
		DepositRequestID: request.ID,
		AccountRef:       request.AccountRef,
		Type:             models.TransactionTypeDepositCredit,
		Status:           models.TransactionStatusCompleted,
		Amount:           request.RequestedAmount,
		Fee:              request.Fee,
		Currency:         request.Currency,
		Description:      "deposit credited to account ledger",
	}
	require.NoError(t, txns.Save(ctx, txn))

	rows, err := txns.ByDepositRequestID(ctx, request.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, request.RequestedAmount, rows[0].Amount)

	byCorrelation, err := txns.ByCorrelationID(ctx, request.CorrelationID)
	require.NoError(t, err)
	require.Len(t, byCorrelation, 1)
	assert.Equal(t, txn.UUID, byCorrelation[0].UUID)
}
