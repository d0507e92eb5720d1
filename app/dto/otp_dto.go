package dto

// IssueOTPRequest represents the request to issue a one-time code
type IssueOTPRequest struct {
	AccountRef string `json:"account_ref" validate:"required,min=1,max=64"` // Account the code is bound to
}

// IssueOTPResponse represents the response to an OTP issuance
type IssueOTPResponse struct {
	Message    string `json:"message"`
	Success    bool   `json:"success"`
	AccountRef string `json:"account_ref"`
	Code       string `json:"code"`       // Delivered out-of-band in production setups
	ExpiresAt  string `json:"expires_at"` // Absolute expiry (RFC3339)
}

// ConsumeOTPRequest represents the request to validate and burn a code
type ConsumeOTPRequest struct {
	AccountRef string `json:"account_ref" validate:"required,min=1,max=64"`
	Code       string `json:"code" validate:"required"`
}

// ConsumeOTPResponse represents the outcome of a consumption attempt.
// Valid is false for wrong, expired and unknown codes alike.
type ConsumeOTPResponse struct {
	Success bool `json:"success"`
	Valid   bool `json:"valid"`
}

// OTPCodeDTO represents a live code in administrative listings
type OTPCodeDTO struct {
	AccountRef string `json:"account_ref"`
	Code       string `json:"code"`
	CreatedAt  string `json:"created_at"`
	ExpiresAt  string `json:"expires_at"`
}
