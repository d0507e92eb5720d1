// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/valzstore/topup-engine/app/dto"
	businessflow "github.com/valzstore/topup-engine/business_flow"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// DepositHandlerInterface defines the contract for deposit handlers
type DepositHandlerInterface interface {
	CreateDeposit(c fiber.Ctx) error
	GetDeposit(c fiber.Ctx) error
	ListDeposits(c fiber.Ctx) error
	ListFailedCredits(c fiber.Ctx) error
}

// DepositHandler handles deposit-related HTTP requests
type DepositHandler struct {
	depositFlow businessflow.DepositFlow
	validator   *validator.Validate
}

// NewDepositHandler creates a new deposit handler
func NewDepositHandler(depositFlow businessflow.DepositFlow) *DepositHandler {
	return &DepositHandler{
		depositFlow: depositFlow,
		validator:   validator.New(),
	}
}

func (h *DepositHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *DepositHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreateDeposit opens a new top-up request and returns the QR to display
func (h *DepositHandler) CreateDeposit(c fiber.Ctx) error {
	var req dto.CreateDepositRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(c.Get("X-Request-ID"))

	result, err := h.depositFlow.CreateDeposit(h.createRequestContext(c), &req, metadata)
	if err != nil {
		if businessflow.IsAccountRefRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Account reference is required", "ACCOUNT_REF_REQUIRED", nil)
		}
		if businessflow.IsAmountTooLow(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Amount is too low", "AMOUNT_TOO_LOW", nil)
		}
		if businessflow.IsGatewayUnavailable(err) {
			return h.ErrorResponse(c, fiber.StatusBadGateway, "Payment gateway unavailable, try again", "GATEWAY_UNAVAILABLE", nil)
		}

		log.Println("Deposit creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Deposit creation failed", "CREATE_DEPOSIT_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Deposit request created successfully", result.Deposit)
}

// GetDeposit returns a single deposit request by UUID
func (h *DepositHandler) GetDeposit(c fiber.Ctx) error {
	uuid := c.Params("uuid")
	if uuid == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Deposit UUID is required", "INVALID_REQUEST", nil)
	}

	result, err := h.depositFlow.GetDeposit(h.createRequestContext(c), uuid)
	if err != nil {
		if businessflow.IsDepositNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Deposit request not found", "DEPOSIT_NOT_FOUND", nil)
		}
		log.Println("Deposit lookup failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Deposit lookup failed", "GET_DEPOSIT_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Deposit request retrieved successfully", result)
}

// ListDeposits returns the paginated deposit history for an account
func (h *DepositHandler) ListDeposits(c fiber.Ctx) error {
	req := dto.ListDepositsRequest{
		AccountRef: c.Query("account_ref"),
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "page_size", 20),
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	result, err := h.depositFlow.ListDeposits(h.createRequestContext(c), &req)
	if err != nil {
		if businessflow.IsAccountRefRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Account reference is required", "ACCOUNT_REF_REQUIRED", nil)
		}
		log.Println("Deposit listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Deposit listing failed", "LIST_DEPOSITS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Deposit history retrieved successfully", result)
}

// ListFailedCredits returns requests whose credit was acknowledged but not
// applied, for manual reconciliation (admin only)
func (h *DepositHandler) ListFailedCredits(c fiber.Ctx) error {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	result, err := h.depositFlow.ListFailedCredits(h.createRequestContext(c), limit, offset)
	if err != nil {
		log.Println("Failed credit listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed credit listing failed", "LIST_FAILED_CREDITS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Failed credits retrieved successfully", fiber.Map{
		"items": result,
		"count": len(result),
	})
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *DepositHandler) createRequestContext(c fiber.Ctx) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	ctx = context.WithValue(ctx, requestIDKey, c.Get(businessflow.RequestIDKey))
	ctx = context.WithValue(ctx, cancelFuncKey, cancel) // Stored for cleanup by the flow layer
	return ctx
}

type contextKey string

const (
	requestIDKey  contextKey = "request_id"
	cancelFuncKey contextKey = "cancel_func"
)

func queryInt(c fiber.Ctx, key string, def int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}
