// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"time"

	"github.com/valzstore/topup-engine/app/dto"
	businessflow "github.com/valzstore/topup-engine/business_flow"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	otpIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otp_codes_issued_total",
		Help: "One-time codes generated and stored",
	})

	otpConsumeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_consume_attempts_total",
			Help: "OTP consumption attempts partitioned by outcome",
		},
		[]string{"outcome"},
	)
)

// OTPHandlerInterface defines the contract for OTP handlers
type OTPHandlerInterface interface {
	IssueOTP(c fiber.Ctx) error
	ConsumeOTP(c fiber.Ctx) error
	ListActiveOTPs(c fiber.Ctx) error
}

// OTPHandler handles OTP-related HTTP requests
type OTPHandler struct {
	otpFlow   businessflow.OTPFlow
	validator *validator.Validate
}

// NewOTPHandler creates a new OTP handler
func NewOTPHandler(otpFlow businessflow.OTPFlow) *OTPHandler {
	return &OTPHandler{
		otpFlow:   otpFlow,
		validator: validator.New(),
	}
}

func (h *OTPHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *OTPHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// IssueOTP generates and stores a one-time code for an account
func (h *OTPHandler) IssueOTP(c fiber.Ctx) error {
	var req dto.IssueOTPRequest
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

	result, err := h.otpFlow.IssueOTP(h.createRequestContext(c), &req, metadata)
	if err != nil {
		if businessflow.IsOTPAccountRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Account reference is required", "ACCOUNT_REF_REQUIRED", nil)
		}
		log.Println("OTP issuance failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "OTP issuance failed", "ISSUE_OTP_FAILED", nil)
	}

	otpIssuedTotal.Inc()

	return h.SuccessResponse(c, fiber.StatusCreated, "OTP issued successfully", fiber.Map{
		"account_ref": result.AccountRef,
		"code":        result.Code,
		"expires_at":  result.ExpiresAt,
	})
}

// ConsumeOTP validates and burns a code in one step
func (h *OTPHandler) ConsumeOTP(c fiber.Ctx) error {
	var req dto.ConsumeOTPRequest
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

	result, err := h.otpFlow.ConsumeOTP(h.createRequestContext(c), &req, metadata)
	if err != nil {
		if businessflow.IsOTPAccountRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Account reference is required", "ACCOUNT_REF_REQUIRED", nil)
		}
		log.Println("OTP consumption failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "OTP consumption failed", "CONSUME_OTP_FAILED", nil)
	}

	if !result.Valid {
		otpConsumeTotal.WithLabelValues("invalid").Inc()
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid or expired OTP code", "OTP_INVALID", nil)
	}

	otpConsumeTotal.WithLabelValues("valid").Inc()
	return h.SuccessResponse(c, fiber.StatusOK, "OTP verified successfully", fiber.Map{
		"valid": true,
	})
}

// ListActiveOTPs enumerates live codes (admin only)
func (h *OTPHandler) ListActiveOTPs(c fiber.Ctx) error {
	result, err := h.otpFlow.ListActiveOTPs(h.createRequestContext(c))
	if err != nil {
		log.Println("OTP listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "OTP listing failed", "LIST_OTP_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Active OTP codes retrieved successfully", fiber.Map{
		"items": result,
		"count": len(result),
	})
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *OTPHandler) createRequestContext(c fiber.Ctx) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	ctx = context.WithValue(ctx, requestIDKey, c.Get(businessflow.RequestIDKey))
	ctx = context.WithValue(ctx, cancelFuncKey, cancel) // Stored for cleanup by the flow layer
	return ctx
}
