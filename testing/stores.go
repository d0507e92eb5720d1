// Package testing provides in-memory stores and fakes for testing the top-up engine
package testing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/valzstore/topup-engine/models"
	"github.com/valzstore/topup-engine/repository"
)

// InMemoryDepositRequestRepository implements the deposit request store with
// a mutex guarding every operation, so the CAS semantics hold under
// concurrent test access exactly as the SQL implementation's conditional
// UPDATE does.
type InMemoryDepositRequestRepository struct {
	mu     sync.Mutex
	nextID uint
	byID   map[uint]*models.DepositRequest
}

// NewInMemoryDepositRequestRepository creates an empty in-memory deposit store
func NewInMemoryDepositRequestRepository() *InMemoryDepositRequestRepository {
	return &InMemoryDepositRequestRepository{
		nextID: 1,
		byID:   make(map[uint]*models.DepositRequest),
	}
}

func (r *InMemoryDepositRequestRepository) Save(ctx context.Context, request *models.DepositRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if request.UUID == uuid.Nil {
		request.UUID = uuid.New()
	}
	if request.CorrelationID == uuid.Nil {
		request.CorrelationID = uuid.New()
	}
	request.ID = r.nextID
	r.nextID++

	clone := *request
	r.byID[request.ID] = &clone
	return nil
}

func (r *InMemoryDepositRequestRepository) ByID(ctx context.Context, id uint) (*models.DepositRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req, ok := r.byID[id]; ok {
		clone := *req
		return &clone, nil
	}
	return nil, nil
}

func (r *InMemoryDepositRequestRepository) ByUUID(ctx context.Context, id string) (*models.DepositRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.byID {
		if req.UUID.String() == id {
			clone := *req
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *InMemoryDepositRequestRepository) ByAccountRef(ctx context.Context, accountRef string, limit, offset int) ([]*models.DepositRequest, error) {
	return r.list(func(req *models.DepositRequest) bool {
		return req.AccountRef == accountRef
	}, "created_at DESC", limit, offset)
}

func (r *InMemoryDepositRequestRepository) ByStatus(ctx context.Context, status models.DepositRequestStatus, limit, offset int) ([]*models.DepositRequest, error) {
	return r.list(func(req *models.DepositRequest) bool {
		return req.Status == status
	}, "created_at ASC", limit, offset)
}

func (r *InMemoryDepositRequestRepository) ListAwaitingPayment(ctx context.Context) ([]*models.DepositRequest, error) {
	return r.ByStatus(ctx, models.DepositStatusAwaitingPayment, 0, 0)
}

func (r *InMemoryDepositRequestRepository) ByFilter(ctx context.Context, filter models.DepositRequestFilter, orderBy string, limit, offset int) ([]*models.DepositRequest, error) {
	if orderBy == "" {
		orderBy = "created_at DESC"
	}
	return r.list(matchesDepositFilter(filter), orderBy, limit, offset)
}

func (r *InMemoryDepositRequestRepository) Count(ctx context.Context, filter models.DepositRequestFilter) (int64, error) {
	items, err := r.list(matchesDepositFilter(filter), "", 0, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(items)), nil
}

// TransitionStatus mirrors the conditional UPDATE of the SQL store: the
// status swap happens only when the current status equals `from`, and the
// unique constraint on the settling transaction id is enforced here too.
func (r *InMemoryDepositRequestRepository) TransitionStatus(ctx context.Context, id uint, from, to models.DepositRequestStatus, fields repository.TransitionFields) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.byID[id]
	if !ok || req.Status != from {
		return repository.ErrStaleState
	}
	if fields.MatchedTxnID != nil {
		for _, other := range r.byID {
			if other.ID != id && other.MatchedTxnID != nil && *other.MatchedTxnID == *fields.MatchedTxnID {
				return fmt.Errorf("duplicate matched txn id %q", *fields.MatchedTxnID)
			}
		}
	}

	req.Status = to
	req.UpdatedAt = time.Now().UTC()
	if fields.StatusReason != "" {
		req.StatusReason = fields.StatusReason
	}
	if fields.MatchedTxnID != nil {
		req.MatchedTxnID = fields.MatchedTxnID
	}
	if fields.MatchedAt != nil {
		req.MatchedAt = fields.MatchedAt
	}
	if fields.CreditedAt != nil {
		req.CreditedAt = fields.CreditedAt
	}
	return nil
}

func (r *InMemoryDepositRequestRepository) list(match func(*models.DepositRequest) bool, orderBy string, limit, offset int) ([]*models.DepositRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var items []*models.DepositRequest
	for _, req := range r.byID {
		if match(req) {
			clone := *req
			items = append(items, &clone)
		}
	}

	switch orderBy {
	case "created_at ASC":
		sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	default:
		sort.SliceStable(items, func(i, j int) bool { return items[j].CreatedAt.Before(items[i].CreatedAt) })
	}

	if offset > 0 {
		if offset >= len(items) {
			return nil, nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items, nil
}

func matchesDepositFilter(filter models.DepositRequestFilter) func(*models.DepositRequest) bool {
	return func(req *models.DepositRequest) bool {
		if filter.ID != nil && req.ID != *filter.ID {
			return false
		}
		if filter.UUID != nil && req.UUID != *filter.UUID {
			return false
		}
		if filter.AccountRef != nil && req.AccountRef != *filter.AccountRef {
			return false
		}
		if filter.TotalAmount != nil && req.TotalAmount != *filter.TotalAmount {
			return false
		}
		if filter.Status != nil && req.Status != *filter.Status {
			return false
		}
		if filter.MatchedTxnID != nil {
			if req.MatchedTxnID == nil || *req.MatchedTxnID != *filter.MatchedTxnID {
				return false
			}
		}
		return true
	}
}

// InMemoryTransactionRepository records audit rows in memory
type InMemoryTransactionRepository struct {
	mu     sync.Mutex
	nextID uint
	items  []*models.Transaction
}

// NewInMemoryTransactionRepository creates an empty in-memory transaction store
func NewInMemoryTransactionRepository() *InMemoryTransactionRepository {
	return &InMemoryTransactionRepository{nextID: 1}
}

func (r *InMemoryTransactionRepository) Save(ctx context.Context, txn *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if txn.UUID == uuid.Nil {
		txn.UUID = uuid.New()
	}
	txn.ID = r.nextID
	r.nextID++
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	clone := *txn
	r.items = append(r.items, &clone)
	return nil
}

func (r *InMemoryTransactionRepository) ByID(ctx context.Context, id uint) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, txn := range r.items {
		if txn.ID == id {
			clone := *txn
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *InMemoryTransactionRepository) ByCorrelationID(ctx context.Context, correlationID uuid.UUID) ([]*models.Transaction, error) {
	return r.filter(func(t *models.Transaction) bool { return t.CorrelationID == correlationID })
}

func (r *InMemoryTransactionRepository) ByDepositRequestID(ctx context.Context, depositRequestID uint) ([]*models.Transaction, error) {
	return r.filter(func(t *models.Transaction) bool { return t.DepositRequestID == depositRequestID })
}

func (r *InMemoryTransactionRepository) ByFilter(ctx context.Context, filter models.TransactionFilter, orderBy string, limit, offset int) ([]*models.Transaction, error) {
	return r.filter(matchesTransactionFilter(filter))
}

func (r *InMemoryTransactionRepository) Count(ctx context.Context, filter models.TransactionFilter) (int64, error) {
	items, err := r.filter(matchesTransactionFilter(filter))
	if err != nil {
		return 0, err
	}
	return int64(len(items)), nil
}

func (r *InMemoryTransactionRepository) filter(match func(*models.Transaction) bool) ([]*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []*models.Transaction
	for _, txn := range r.items {
		if match(txn) {
			clone := *txn
			items = append(items, &clone)
		}
	}
	return items, nil
}

func matchesTransactionFilter(filter models.TransactionFilter) func(*models.Transaction) bool {
	return func(t *models.Transaction) bool {
		if filter.DepositRequestID != nil && t.DepositRequestID != *filter.DepositRequestID {
			return false
		}
		if filter.AccountRef != nil && t.AccountRef != *filter.AccountRef {
			return false
		}
		if filter.Status != nil && t.Status != *filter.Status {
			return false
		}
		return true
	}
}

// InMemoryOTPCodeRepository implements the OTP store with lazy expiry:
// lookups past the deadline behave exactly as a lapsed key TTL would.
type InMemoryOTPCodeRepository struct {
	mu    sync.Mutex
	codes map[string]*models.OTPCode

	// Now is the time source used for expiry checks; tests override it to
	// step past TTLs without sleeping.
	Now func() time.Time
}

// NewInMemoryOTPCodeRepository creates an empty in-memory OTP store
func NewInMemoryOTPCodeRepository() *InMemoryOTPCodeRepository {
	return &InMemoryOTPCodeRepository{
		codes: make(map[string]*models.OTPCode),
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

func otpStoreKey(accountRef, code string) string {
	return accountRef + ":" + code
}

func (r *InMemoryOTPCodeRepository) Save(ctx context.Context, code *models.OTPCode, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("otp ttl must be positive, got %s", ttl)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *code
	r.codes[otpStoreKey(code.AccountRef, code.Code)] = &clone
	return nil
}

func (r *InMemoryOTPCodeRepository) Get(ctx context.Context, accountRef, code string) (*models.OTPCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(accountRef, code), nil
}

func (r *InMemoryOTPCodeRepository) GetAndDelete(ctx context.Context, accountRef, code string) (*models.OTPCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := r.getLocked(accountRef, code)
	delete(r.codes, otpStoreKey(accountRef, code))
	return found, nil
}

func (r *InMemoryOTPCodeRepository) Delete(ctx context.Context, accountRef, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.codes, otpStoreKey(accountRef, code))
	return nil
}

func (r *InMemoryOTPCodeRepository) ListActive(ctx context.Context) ([]*models.OTPCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.Now()
	var out []*models.OTPCode
	for key, code := range r.codes {
		if code.IsExpired(now) {
			delete(r.codes, key)
			continue
		}
		clone := *code
		out = append(out, &clone)
	}
	return out, nil
}

// getLocked drops expired entries on access, emulating key TTL lapse
func (r *InMemoryOTPCodeRepository) getLocked(accountRef, code string) *models.OTPCode {
	key := otpStoreKey(accountRef, code)
	found, ok := r.codes[key]
	if !ok {
		return nil
	}
	if found.IsExpired(r.Now()) {
		delete(r.codes, key)
		return nil
	}
	clone := *found
	return &clone
}
