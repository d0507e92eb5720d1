// Package businessflow contains the business logic for reconciliation workflows
package businessflow

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/valzstore/topup-engine/app/dto"
	"github.com/valzstore/topup-engine/app/services"
	"github.com/valzstore/topup-engine/models"
	"github.com/valzstore/topup-engine/repository"
	"github.com/valzstore/topup-engine/utils"
)

// ReconciliationFlow pairs observed gateway transactions with pending
// deposit requests and drives matched requests through crediting.
type ReconciliationFlow interface {
	PollOnce(ctx context.Context) (*dto.PollOutcome, error)
}

// ReconciliationFlowImpl implements the reconciliation business flow.
// Safe to run from any number of concurrent pollers: every state change
// is a CAS on DepositRequest.status and losing a race is a silent no-op.
type ReconciliationFlowImpl struct {
	depositRepo repository.DepositRequestRepository
	gateway     services.PaymentGatewayClient
	creditFlow  CreditFlow
	window      time.Duration
	logger      *log.Logger

	now utils.Clock
}

// NewReconciliationFlow creates a new reconciliation flow instance
func NewReconciliationFlow(
	depositRepo repository.DepositRequestRepository,
	gateway services.PaymentGatewayClient,
	creditFlow CreditFlow,
	window time.Duration,
	logger *log.Logger,
) *ReconciliationFlowImpl {
	if window <= 0 {
		window = 30 * time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ReconciliationFlowImpl{
		depositRepo: depositRepo,
		gateway:     gateway,
		creditFlow:  creditFlow,
		window:      window,
		logger:      logger,
		now:         utils.UTCNow,
	}
}

// WithClock overrides the time source, for tests
func (f *ReconciliationFlowImpl) WithClock(clock utils.Clock) *ReconciliationFlowImpl {
	f.now = clock
	return f
}

// PollOnce runs one reconciliation cycle: expiry sweep, transaction
// matching, then crediting of everything in matched (including leftovers
// from earlier cycles that crashed between match and credit).
//
// Running the cycle twice over an unchanged transaction set is a no-op:
// matched requests are no longer awaiting_payment and consumed external
// ids never match a second request.
func (f *ReconciliationFlowImpl) PollOnce(ctx context.Context) (*dto.PollOutcome, error) {
	outcome := &dto.PollOutcome{StartedAt: f.now()}

	pending, err := f.depositRepo.ListAwaitingPayment(ctx)
	if err != nil {
		return nil, NewBusinessError("POLL_FAILED", "Failed to list pending deposit requests", err)
	}

	// Expiry sweep first: a late transaction must never settle a request
	// whose TTL has passed.
	now := f.now()
	live := pending[:0]
	for _, req := range pending {
		if now.After(req.ExpiresAt) {
			err := f.depositRepo.TransitionStatus(ctx, req.ID,
				models.DepositStatusAwaitingPayment, models.DepositStatusExpired,
				repository.TransitionFields{StatusReason: "request ttl passed without settlement"})
			switch {
			case err == nil:
				outcome.Expired++
			case repository.IsStaleState(err):
				// Another writer got there first; nothing to do.
			default:
				f.logger.Printf("reconciliation: expire request %d failed: %v", req.ID, err)
			}
			continue
		}
		live = append(live, req)
	}

	if len(live) > 0 {
		txns, err := f.gateway.ListRecentTransactions(ctx, f.window)
		if err != nil {
			// Transient; the scheduler owns backoff, a cycle never retries
			// the gateway on its own.
			return outcome, NewBusinessError("POLL_GATEWAY_FAILED", "Failed to list gateway transactions", err)
		}
		if err := f.matchTransactions(ctx, live, txns, outcome); err != nil {
			return outcome, err
		}
	}

	// Credit everything sitting in matched, whether matched in this cycle
	// or left behind by an interrupted one.
	matched, err := f.depositRepo.ByStatus(ctx, models.DepositStatusMatched, 0, 0)
	if err != nil {
		return outcome, NewBusinessError("POLL_FAILED", "Failed to list matched deposit requests", err)
	}
	for _, req := range matched {
		result, err := f.creditFlow.Credit(ctx, req)
		if err != nil {
			if IsCreditApplyFailed(err) {
				outcome.ApplyFailures++
			}
			f.logger.Printf("reconciliation: credit request %d failed: %v", req.ID, err)
			continue
		}
		if result != nil && result.Applied {
			outcome.Credited++
		}
	}

	outcome.FinishedAt = f.now()
	return outcome, nil
}

// matchTransactions pairs unconsumed transactions with pending requests
// by exact total amount. Requests are serviced oldest first, and among
// equal-amount transactions the earliest occurredAt wins.
func (f *ReconciliationFlowImpl) matchTransactions(ctx context.Context, pending []*models.DepositRequest, txns []models.GatewayTransaction, outcome *dto.PollOutcome) error {
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].OccurredAt.Before(txns[j].OccurredAt)
	})
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	consumedInCycle := make(map[string]bool, len(txns))

	for _, req := range pending {
		for i := range txns {
			txn := &txns[i]
			if txn.Amount != req.TotalAmount {
				continue
			}
			if consumedInCycle[txn.ExternalID] {
				continue
			}
			consumed, err := f.isConsumed(ctx, txn.ExternalID)
			if err != nil {
				return NewBusinessError("POLL_FAILED", "Failed to check consumed transactions", err)
			}
			if consumed {
				consumedInCycle[txn.ExternalID] = true
				continue
			}

			matchedAt := f.now()
			err = f.depositRepo.TransitionStatus(ctx, req.ID,
				models.DepositStatusAwaitingPayment, models.DepositStatusMatched,
				repository.TransitionFields{
					StatusReason: "settled by gateway transaction",
					MatchedTxnID: utils.ToPtr(txn.ExternalID),
					MatchedAt:    &matchedAt,
				})
			if repository.IsStaleState(err) {
				// A concurrent matcher claimed this request. Leave the
				// transaction unconsumed here; the winner recorded it.
				break
			}
			if err != nil {
				f.logger.Printf("reconciliation: match request %d failed: %v", req.ID, err)
				break
			}

			consumedInCycle[txn.ExternalID] = true
			outcome.Matched++
			break
		}
	}
	return nil
}

// isConsumed reports whether a gateway transaction already settled some
// request in an earlier cycle. The unique index on matched_txn_id backs
// this check against races between pollers.
func (f *ReconciliationFlowImpl) isConsumed(ctx context.Context, externalID string) (bool, error) {
	count, err := f.depositRepo.Count(ctx, models.DepositRequestFilter{MatchedTxnID: &externalID})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
