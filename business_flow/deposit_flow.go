// Package businessflow contains the business logic for deposit workflows
package businessflow

import (
	"context"
	"encoding/json"

	"github.com/valzstore/topup-engine/app/dto"
	"github.com/valzstore/topup-engine/app/services"
	"github.com/valzstore/topup-engine/config"
	"github.com/valzstore/topup-engine/models"
	"github.com/valzstore/topup-engine/repository"
	"github.com/valzstore/topup-engine/utils"
	"gorm.io/gorm"
)

// DepositFlow handles deposit request creation and lookup
type DepositFlow interface {
	CreateDeposit(ctx context.Context, req *dto.CreateDepositRequest, metadata *ClientMetadata) (*dto.CreateDepositResponse, error)
	GetDeposit(ctx context.Context, uuid string) (*dto.DepositRequestDTO, error)
	ListDeposits(ctx context.Context, req *dto.ListDepositsRequest) (*dto.ListDepositsResponse, error)
	ListFailedCredits(ctx context.Context, limit, offset int) ([]dto.DepositRequestDTO, error)
}

// DepositFlowImpl implements the deposit business flow
type DepositFlowImpl struct {
	depositRepo repository.DepositRequestRepository
	gateway     services.PaymentGatewayClient
	db          *gorm.DB
	cfg         config.DepositConfig

	now utils.Clock
}

// NewDepositFlow creates a new deposit flow instance
func NewDepositFlow(
	depositRepo repository.DepositRequestRepository,
	gateway services.PaymentGatewayClient,
	db *gorm.DB,
	cfg config.DepositConfig,
) *DepositFlowImpl {
	return &DepositFlowImpl{
		depositRepo: depositRepo,
		gateway:     gateway,
		db:          db,
		cfg:         cfg,
		now:         utils.UTCNow,
	}
}

// WithClock overrides the time source, for tests
func (f *DepositFlowImpl) WithClock(clock utils.Clock) *DepositFlowImpl {
	f.now = clock
	return f
}

// CreateDeposit quotes a fee, obtains a QR intent from the gateway and
// persists the request in awaiting_payment. The fee is drawn once, before
// the total is quoted to the user, and never recomputed: randomizing it
// keeps concurrent totals on the shared payment channel distinguishable.
func (f *DepositFlowImpl) CreateDeposit(ctx context.Context, req *dto.CreateDepositRequest, metadata *ClientMetadata) (*dto.CreateDepositResponse, error) {
	if err := f.validateCreateDeposit(req); err != nil {
		return nil, NewBusinessError("CREATE_DEPOSIT_FAILED", "Create deposit failed", err)
	}

	fee, err := utils.RandomUint64InRange(f.cfg.FeeMin, f.cfg.FeeMax)
	if err != nil {
		return nil, NewBusinessError("CREATE_DEPOSIT_FAILED", "Failed to compute fee", err)
	}
	totalAmount := req.Amount + fee

	// Gateway failure means no record at all: the caller retries, the
	// engine never synthesizes a request it cannot display a QR for.
	intent, err := f.gateway.CreateIntent(ctx, totalAmount)
	if err != nil {
		return nil, NewBusinessError("GATEWAY_INTENT_FAILED", "Failed to create payment intent", err)
	}

	now := f.now()
	metaJSON, _ := json.Marshal(map[string]any{
		"source":     "qris_topup",
		"ip_address": metadata.IPAddress,
		"request_id": metadata.RequestID,
	})

	request := &models.DepositRequest{
		AccountRef:      req.AccountRef,
		RequestedAmount: req.Amount,
		Fee:             fee,
		TotalAmount:     totalAmount,
		Currency:        utils.RupiahCurrency,
		QRPayload:       intent.QRPayload,
		QRImageRef:      intent.QRImageURL,
		Status:          models.DepositStatusCreated,
		StatusReason:    "deposit request created",
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(f.cfg.RequestTTL),
		Metadata:        metaJSON,
	}

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if err := f.depositRepo.Save(txCtx, request); err != nil {
			return err
		}
		return f.depositRepo.TransitionStatus(txCtx, request.ID,
			models.DepositStatusCreated, models.DepositStatusAwaitingPayment,
			repository.TransitionFields{StatusReason: "qr issued, awaiting payment"})
	})
	if err != nil {
		return nil, NewBusinessError("CREATE_DEPOSIT_FAILED", "Failed to persist deposit request", err)
	}
	request.Status = models.DepositStatusAwaitingPayment

	return &dto.CreateDepositResponse{
		Message: "Deposit request created successfully",
		Success: true,
		Deposit: toDepositRequestDTO(request),
	}, nil
}

func (f *DepositFlowImpl) validateCreateDeposit(req *dto.CreateDepositRequest) error {
	if req.AccountRef == "" {
		return ErrAccountRefRequired
	}
	if req.Amount < f.cfg.MinAmount {
		return ErrAmountTooLow
	}
	return nil
}

// GetDeposit returns a single deposit request by UUID
func (f *DepositFlowImpl) GetDeposit(ctx context.Context, uuid string) (*dto.DepositRequestDTO, error) {
	request, err := f.depositRepo.ByUUID(ctx, uuid)
	if err != nil {
		return nil, NewBusinessError("GET_DEPOSIT_FAILED", "Failed to fetch deposit request", err)
	}
	if request == nil {
		return nil, ErrDepositNotFound
	}
	d := toDepositRequestDTO(request)
	return &d, nil
}

// ListDeposits returns the deposit history for an account, newest first
func (f *DepositFlowImpl) ListDeposits(ctx context.Context, req *dto.ListDepositsRequest) (*dto.ListDepositsResponse, error) {
	if req.AccountRef == "" {
		return nil, ErrAccountRefRequired
	}
	limit := req.PageSize
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}

	requests, err := f.depositRepo.ByAccountRef(ctx, req.AccountRef, limit, (page-1)*limit)
	if err != nil {
		return nil, NewBusinessError("LIST_DEPOSITS_FAILED", "Failed to list deposit requests", err)
	}
	total, err := f.depositRepo.Count(ctx, models.DepositRequestFilter{AccountRef: &req.AccountRef})
	if err != nil {
		return nil, NewBusinessError("LIST_DEPOSITS_FAILED", "Failed to count deposit requests", err)
	}

	items := make([]dto.DepositRequestDTO, 0, len(requests))
	for _, r := range requests {
		items = append(items, toDepositRequestDTO(r))
	}
	return &dto.ListDepositsResponse{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: limit,
	}, nil
}

// ListFailedCredits returns requests stuck in failed for manual
// reconciliation (administrative)
func (f *DepositFlowImpl) ListFailedCredits(ctx context.Context, limit, offset int) ([]dto.DepositRequestDTO, error) {
	requests, err := f.depositRepo.ByStatus(ctx, models.DepositStatusFailed, limit, offset)
	if err != nil {
		return nil, NewBusinessError("LIST_FAILED_CREDITS_FAILED", "Failed to list failed credits", err)
	}
	items := make([]dto.DepositRequestDTO, 0, len(requests))
	for _, r := range requests {
		items = append(items, toDepositRequestDTO(r))
	}
	return items, nil
}

func toDepositRequestDTO(r *models.DepositRequest) dto.DepositRequestDTO {
	d := dto.DepositRequestDTO{
		UUID:            r.UUID.String(),
		AccountRef:      r.AccountRef,
		RequestedAmount: r.RequestedAmount,
		Fee:             r.Fee,
		TotalAmount:     r.TotalAmount,
		Currency:        r.Currency,
		QRPayload:       r.QRPayload,
		QRImageURL:      r.QRImageRef,
		Status:          string(r.Status),
		CreatedAt:       r.CreatedAt.Format(timeFormat),
		ExpiresAt:       r.ExpiresAt.Format(timeFormat),
	}
	if r.MatchedTxnID != nil {
		d.MatchedTxnID = *r.MatchedTxnID
	}
	if r.CreditedAt != nil {
		d.CreditedAt = r.CreditedAt.Format(timeFormat)
	}
	return d
}

const timeFormat = "2006-01-02T15:04:05Z07:00"
