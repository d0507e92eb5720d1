package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/valzstore/topup-engine/models"
)

const otpKeyPrefix = "otp:"

// RedisOTPCodeRepository implements OTPCodeRepository on Redis. Key TTLs
// are the scheduled deletion: a code vanishes at expiry without any
// cleanup job, and GETDEL makes consumption atomic with removal. A key
// per (account, code) pair permits multiple live codes per account.
type RedisOTPCodeRepository struct {
	client *redis.Client
}

// NewRedisOTPCodeRepository creates a new Redis-backed OTP code repository
func NewRedisOTPCodeRepository(client *redis.Client) OTPCodeRepository {
	return &RedisOTPCodeRepository{client: client}
}

// otpRecord is the stored form; the code is also in the key but kept in
// the value so ListActive can reconstruct full records from a SCAN.
type otpRecord struct {
	AccountRef string    `json:"account_ref"`
	Code       string    `json:"code"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func otpKey(accountRef, code string) string {
	return fmt.Sprintf("%s%s:%s", otpKeyPrefix, accountRef, code)
}

// Save persists the code with the given TTL
func (r *RedisOTPCodeRepository) Save(ctx context.Context, code *models.OTPCode, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("otp ttl must be positive, got %s", ttl)
	}
	rec := otpRecord{
		AccountRef: code.AccountRef,
		Code:       code.Code,
		CreatedAt:  code.CreatedAt,
		ExpiresAt:  code.ExpiresAt,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal otp record: %w", err)
	}
	if err := r.client.Set(ctx, otpKey(code.AccountRef, code.Code), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store otp code: %w", err)
	}
	return nil
}

// Get fetches a live code; nil when absent or already expired
func (r *RedisOTPCodeRepository) Get(ctx context.Context, accountRef, code string) (*models.OTPCode, error) {
	raw, err := r.client.Get(ctx, otpKey(accountRef, code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch otp code: %w", err)
	}
	return decodeOTPRecord(raw)
}

// GetAndDelete atomically fetches and removes a live code; nil when the
// code is already gone (consumed or expired)
func (r *RedisOTPCodeRepository) GetAndDelete(ctx context.Context, accountRef, code string) (*models.OTPCode, error) {
	raw, err := r.client.GetDel(ctx, otpKey(accountRef, code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to consume otp code: %w", err)
	}
	return decodeOTPRecord(raw)
}

// Delete removes a code; deleting an absent code is a no-op
func (r *RedisOTPCodeRepository) Delete(ctx context.Context, accountRef, code string) error {
	if err := r.client.Del(ctx, otpKey(accountRef, code)).Err(); err != nil {
		return fmt.Errorf("failed to delete otp code: %w", err)
	}
	return nil
}

// ListActive enumerates every non-expired code (administrative/debug only)
func (r *RedisOTPCodeRepository) ListActive(ctx context.Context) ([]*models.OTPCode, error) {
	var codes []*models.OTPCode
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, otpKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan otp codes: %w", err)
		}
		for _, key := range keys {
			if !strings.HasPrefix(key, otpKeyPrefix) {
				continue
			}
			raw, err := r.client.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue // Expired between SCAN and GET
				}
				return nil, fmt.Errorf("failed to fetch otp code %s: %w", key, err)
			}
			code, err := decodeOTPRecord(raw)
			if err != nil {
				return nil, err
			}
			codes = append(codes, code)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return codes, nil
}

func decodeOTPRecord(raw []byte) (*models.OTPCode, error) {
	var rec otpRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal otp record: %w", err)
	}
	return &models.OTPCode{
		AccountRef: rec.AccountRef,
		Code:       rec.Code,
		CreatedAt:  rec.CreatedAt,
		ExpiresAt:  rec.ExpiresAt,
	}, nil
}
