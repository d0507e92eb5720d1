package utils

import (
	"time"
)

// OTP constants
const (
	// OTPExpiry is the time-to-live for OTP codes (5 minutes)
	OTPExpiry = 5 * time.Minute

	// OTPCodeLength is the number of digits in an OTP code
	OTPCodeLength = 6
)

// Deposit constants
const (
	// RupiahCurrency is the ISO currency code for amounts handled by the engine
	RupiahCurrency = "IDR"

	// DepositRequestTTL is the default validity window of a deposit request
	DepositRequestTTL = 15 * time.Minute

	// MinDepositAmount is the smallest accepted top-up amount in Rupiah
	MinDepositAmount = 1000
)
