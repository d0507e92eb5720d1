// Package businessflow contains the business logic for OTP workflows
package businessflow

import (
	"context"
	"log"

	"github.com/valzstore/topup-engine/app/dto"
	"github.com/valzstore/topup-engine/config"
	"github.com/valzstore/topup-engine/models"
	"github.com/valzstore/topup-engine/repository"
	"github.com/valzstore/topup-engine/utils"
)

// OTPFlow issues, consumes and inspects one-time codes
type OTPFlow interface {
	IssueOTP(ctx context.Context, req *dto.IssueOTPRequest, metadata *ClientMetadata) (*dto.IssueOTPResponse, error)
	ConsumeOTP(ctx context.Context, req *dto.ConsumeOTPRequest, metadata *ClientMetadata) (*dto.ConsumeOTPResponse, error)
	ListActiveOTPs(ctx context.Context) ([]dto.OTPCodeDTO, error)
}

// OTPFlowImpl implements the OTP business flow
type OTPFlowImpl struct {
	otpRepo repository.OTPCodeRepository
	cfg     config.OTPConfig
	logger  *log.Logger

	now utils.Clock
}

// NewOTPFlow creates a new OTP flow instance
func NewOTPFlow(otpRepo repository.OTPCodeRepository, cfg config.OTPConfig, logger *log.Logger) *OTPFlowImpl {
	if logger == nil {
		logger = log.Default()
	}
	return &OTPFlowImpl{
		otpRepo: otpRepo,
		cfg:     cfg,
		logger:  logger,
		now:     utils.UTCNow,
	}
}

// WithClock overrides the time source, for tests
func (f *OTPFlowImpl) WithClock(clock utils.Clock) *OTPFlowImpl {
	f.now = clock
	return f
}

// IssueOTP generates a fixed-length numeric code and stores it with the
// configured TTL. The store's key expiry is the scheduled deletion, so an
// unconsumed code vanishes on its own. Accounts may hold any number of
// live codes at once; each expires independently.
func (f *OTPFlowImpl) IssueOTP(ctx context.Context, req *dto.IssueOTPRequest, metadata *ClientMetadata) (*dto.IssueOTPResponse, error) {
	if req.AccountRef == "" {
		return nil, ErrOTPAccountRequired
	}

	code, err := utils.RandomNumericCode(f.cfg.CodeLength)
	if err != nil {
		return nil, NewBusinessError("ISSUE_OTP_FAILED", "Failed to generate OTP code", err)
	}

	now := f.now()
	otp := &models.OTPCode{
		AccountRef: req.AccountRef,
		Code:       code,
		CreatedAt:  now,
		ExpiresAt:  now.Add(f.cfg.TTL),
	}
	if err := f.otpRepo.Save(ctx, otp, f.cfg.TTL); err != nil {
		return nil, NewBusinessError("ISSUE_OTP_FAILED", "Failed to store OTP code", err)
	}

	f.logger.Printf("otp: issued code for account %s, expires %s", req.AccountRef, otp.ExpiresAt.Format(timeFormat))

	return &dto.IssueOTPResponse{
		Message:    "OTP issued successfully",
		Success:    true,
		AccountRef: otp.AccountRef,
		Code:       otp.Code,
		ExpiresAt:  otp.ExpiresAt.Format(timeFormat),
	}, nil
}

// ConsumeOTP validates and burns a code in one step. Wrong code, expired
// code and never-issued code are indistinguishable to the caller: all
// return Valid=false, leaking nothing about which codes ever existed.
// Consumption races expiry safely; whichever deletes first wins and the
// loser sees a plain failure.
func (f *OTPFlowImpl) ConsumeOTP(ctx context.Context, req *dto.ConsumeOTPRequest, metadata *ClientMetadata) (*dto.ConsumeOTPResponse, error) {
	if req.AccountRef == "" {
		return nil, ErrOTPAccountRequired
	}
	if len(req.Code) != f.cfg.CodeLength {
		// Shape check only; the response stays indistinguishable from a
		// wrong code.
		return &dto.ConsumeOTPResponse{Success: true, Valid: false}, nil
	}

	otp, err := f.otpRepo.GetAndDelete(ctx, req.AccountRef, req.Code)
	if err != nil {
		return nil, NewBusinessError("CONSUME_OTP_FAILED", "Failed to consume OTP code", err)
	}
	if otp == nil || otp.IsExpired(f.now()) {
		return &dto.ConsumeOTPResponse{Success: true, Valid: false}, nil
	}

	return &dto.ConsumeOTPResponse{Success: true, Valid: true}, nil
}

// ListActiveOTPs enumerates live codes (administrative/debug only)
func (f *OTPFlowImpl) ListActiveOTPs(ctx context.Context) ([]dto.OTPCodeDTO, error) {
	codes, err := f.otpRepo.ListActive(ctx)
	if err != nil {
		return nil, NewBusinessError("LIST_OTP_FAILED", "Failed to list active OTP codes", err)
	}
	now := f.now()
	items := make([]dto.OTPCodeDTO, 0, len(codes))
	for _, c := range codes {
		if c.IsExpired(now) {
			continue
		}
		items = append(items, dto.OTPCodeDTO{
			AccountRef: c.AccountRef,
			Code:       c.Code,
			CreatedAt:  c.CreatedAt.Format(timeFormat),
			ExpiresAt:  c.ExpiresAt.Format(timeFormat),
		})
	}
	return items, nil
}
