// Package businessflow contains the business logic for ledger crediting workflows
package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/valzstore/topup-engine/app/dto"
	"github.com/valzstore/topup-engine/app/services"
	"github.com/valzstore/topup-engine/models"
	"github.com/valzstore/topup-engine/repository"
	"github.com/valzstore/topup-engine/utils"
)

// CreditFlow performs the exactly-once balance increase for a matched
// deposit request.
type CreditFlow interface {
	Credit(ctx context.Context, request *models.DepositRequest) (*dto.CreditResult, error)
}

// CreditFlowImpl implements the crediting business flow
type CreditFlowImpl struct {
	depositRepo repository.DepositRequestRepository
	txnRepo     repository.TransactionRepository
	ledger      services.AccountLedger
	notifier    services.NotificationSink
	logger      *log.Logger

	now utils.Clock
}

// NewCreditFlow creates a new credit flow instance
func NewCreditFlow(
	depositRepo repository.DepositRequestRepository,
	txnRepo repository.TransactionRepository,
	ledger services.AccountLedger,
	notifier services.NotificationSink,
	logger *log.Logger,
) *CreditFlowImpl {
	if logger == nil {
		logger = log.Default()
	}
	return &CreditFlowImpl{
		depositRepo: depositRepo,
		txnRepo:     txnRepo,
		ledger:      ledger,
		notifier:    notifier,
		logger:      logger,
		now:         utils.UTCNow,
	}
}

// WithClock overrides the time source, for tests
func (f *CreditFlowImpl) WithClock(clock utils.Clock) *CreditFlowImpl {
	f.now = clock
	return f
}

// Credit applies the balance increase for a matched request. The status
// CAS runs before the ledger call: invoked any number of times, the
// balance mutation happens at most once, because only the caller that
// wins the matched->credited CAS reaches the ledger.
//
// The credited amount is the requested amount, not the total; the fee is
// platform revenue.
func (f *CreditFlowImpl) Credit(ctx context.Context, request *models.DepositRequest) (*dto.CreditResult, error) {
	if request == nil {
		return nil, ErrPreconditionFailed
	}
	if request.Status != models.DepositStatusMatched {
		return nil, fmt.Errorf("%w: request %d is %s", ErrPreconditionFailed, request.ID, request.Status)
	}

	creditedAt := f.now()
	err := f.depositRepo.TransitionStatus(ctx, request.ID,
		models.DepositStatusMatched, models.DepositStatusCredited,
		repository.TransitionFields{
			StatusReason: "balance credit applied",
			CreditedAt:   &creditedAt,
		})
	if repository.IsStaleState(err) {
		// Another credit attempt already ran; exactly-once means this
		// invocation succeeds as a no-op.
		return &dto.CreditResult{Applied: false}, nil
	}
	if err != nil {
		return nil, NewBusinessError("CREDIT_FAILED", "Failed to transition deposit request to credited", err)
	}

	// Point of no return: the record says credited. A ledger failure from
	// here on is a fatal inconsistency, never an automatic retry.
	if err := f.ledger.AddBalance(ctx, request.AccountRef, request.RequestedAmount); err != nil {
		f.recordApplyFailure(ctx, request, err)
		return nil, fmt.Errorf("%w: request %d: %v", ErrCreditApplyFailed, request.ID, err)
	}

	f.recordTransaction(ctx, request, models.TransactionStatusCompleted, "deposit credited to account ledger")

	// Notification strictly after the durable credit, best-effort.
	_ = f.notifier.NotifyDepositEvent(ctx, services.DepositEvent{
		AccountRef:      request.AccountRef,
		RequestedAmount: request.RequestedAmount,
		TotalAmount:     request.TotalAmount,
		Fee:             request.Fee,
		Outcome:         "credited",
	})

	return &dto.CreditResult{Applied: true, Amount: request.RequestedAmount}, nil
}

// recordApplyFailure marks the request failed and writes the audit row
// the manual reconciliation path works from. Both writes are best-effort:
// the loud CreditApplyFailed error is the primary signal.
func (f *CreditFlowImpl) recordApplyFailure(ctx context.Context, request *models.DepositRequest, cause error) {
	f.logger.Printf("credit: FATAL: request %d credited but balance apply failed for %s: %v",
		request.ID, request.AccountRef, cause)

	err := f.depositRepo.TransitionStatus(ctx, request.ID,
		models.DepositStatusCredited, models.DepositStatusFailed,
		repository.TransitionFields{StatusReason: "balance apply failed after credit acknowledged"})
	if err != nil && !repository.IsStaleState(err) {
		f.logger.Printf("credit: could not mark request %d failed: %v", request.ID, err)
	}

	f.recordTransaction(ctx, request, models.TransactionStatusApplyFailed, cause.Error())

	_ = f.notifier.NotifyDepositEvent(ctx, services.DepositEvent{
		AccountRef:      request.AccountRef,
		RequestedAmount: request.RequestedAmount,
		TotalAmount:     request.TotalAmount,
		Fee:             request.Fee,
		Outcome:         "credit_apply_failed",
	})
}

func (f *CreditFlowImpl) recordTransaction(ctx context.Context, request *models.DepositRequest, status models.TransactionStatus, description string) {
	externalRef := ""
	if request.MatchedTxnID != nil {
		externalRef = *request.MatchedTxnID
	}
	meta, _ := json.Marshal(map[string]any{
		"deposit_request_uuid": request.UUID.String(),
		"requested_amount":     request.RequestedAmount,
		"fee":                  request.Fee,
		"total_amount":         request.TotalAmount,
	})
	txn := &models.Transaction{
		CorrelationID:     request.CorrelationID,
		DepositRequestID:  request.ID,
		AccountRef:        request.AccountRef,
		Type:              models.TransactionTypeDepositCredit,
		Status:            status,
		Amount:            request.RequestedAmount,
		Fee:               request.Fee,
		Currency:          request.Currency,
		ExternalReference: externalRef,
		Description:       description,
		Metadata:          meta,
	}
	if err := f.txnRepo.Save(ctx, txn); err != nil {
		f.logger.Printf("credit: failed to record transaction for request %d: %v", request.ID, err)
	}
}
