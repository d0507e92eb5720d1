// Package businessflow contains the business logic for the top-up engine.
package businessflow

import (
	"errors"
	"fmt"

	"github.com/valzstore/topup-engine/app/services"
	"github.com/valzstore/topup-engine/repository"
)

// Business flow error constants
var (
	// Deposit creation errors
	ErrAccountRefRequired = errors.New("account reference is required")
	ErrAmountTooLow       = errors.New("amount is too low")
	ErrDepositNotFound    = errors.New("deposit request not found")

	// Crediting errors
	// ErrPreconditionFailed means the caller handed over a request that is
	// not in the state the operation requires; a programmer error, never
	// retried.
	ErrPreconditionFailed = errors.New("deposit request is not in the required state")
	// ErrCreditApplyFailed means the request was flipped to credited but
	// the external balance increase did not happen. Fatal: retrying could
	// double-apply, abandoning under-applies. Requires manual
	// reconciliation via the transactions audit trail.
	ErrCreditApplyFailed = errors.New("credit acknowledged but balance apply failed")

	// OTP errors
	ErrOTPAccountRequired = errors.New("otp account reference is required")
	ErrOTPCodeLength      = errors.New("otp code has invalid length")
)

// Re-exported transport/storage sentinels so callers can test every error
// kind through this package.
var (
	ErrGatewayUnavailable = services.ErrGatewayUnavailable
	ErrLedgerUnavailable  = services.ErrLedgerUnavailable
	ErrStaleState         = repository.ErrStaleState
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsAccountRefRequired(err error) bool {
	return errors.Is(err, ErrAccountRefRequired)
}

func IsAmountTooLow(err error) bool {
	return errors.Is(err, ErrAmountTooLow)
}

func IsDepositNotFound(err error) bool {
	return errors.Is(err, ErrDepositNotFound)
}

func IsPreconditionFailed(err error) bool {
	return errors.Is(err, ErrPreconditionFailed)
}

func IsCreditApplyFailed(err error) bool {
	return errors.Is(err, ErrCreditApplyFailed)
}

func IsGatewayUnavailable(err error) bool {
	return errors.Is(err, services.ErrGatewayUnavailable)
}

func IsLedgerUnavailable(err error) bool {
	return errors.Is(err, services.ErrLedgerUnavailable)
}

func IsStaleState(err error) bool {
	return errors.Is(err, repository.ErrStaleState)
}

func IsOTPAccountRequired(err error) bool {
	return errors.Is(err, ErrOTPAccountRequired)
}
