package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService issues and validates the bearer tokens guarding the
// administrative endpoints (active OTP listing, failed-credit review).
type TokenService interface {
	GenerateAdminToken(subject string, ttl time.Duration) (string, error)
	ValidateAdminToken(token string) (string, error)
}

// JWTTokenService implements TokenService with HMAC-signed JWTs
type JWTTokenService struct {
	secretKey []byte
	issuer    string
}

// NewJWTTokenService creates a new JWT token service
func NewJWTTokenService(secretKey, issuer string) *JWTTokenService {
	return &JWTTokenService{
		secretKey: []byte(secretKey),
		issuer:    issuer,
	}
}

type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateAdminToken creates a signed admin token for the given subject
func (s *JWTTokenService) GenerateAdminToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := adminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign admin token: %w", err)
	}
	return signed, nil
}

// ValidateAdminToken verifies signature, expiry and role; returns the subject
func (s *JWTTokenService) ValidateAdminToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &adminClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secretKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("invalid admin token: %w", err)
	}
	claims, ok := token.Claims.(*adminClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid admin token")
	}
	if claims.Role != "admin" {
		return "", errors.New("token is not an admin token")
	}
	return claims.Subject, nil
}
