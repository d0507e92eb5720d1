package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/valzstore/topup-engine/models"
	"github.com/valzstore/topup-engine/utils"
	"gorm.io/gorm"
)

// DepositRequestRepositoryImpl implements DepositRequestRepository interface
type DepositRequestRepositoryImpl struct {
	*BaseRepository[models.DepositRequest, models.DepositRequestFilter]
}

// NewDepositRequestRepository creates a new deposit request repository
func NewDepositRequestRepository(db *gorm.DB) DepositRequestRepository {
	return &DepositRequestRepositoryImpl{
		BaseRepository: NewBaseRepository[models.DepositRequest, models.DepositRequestFilter](db),
	}
}

// ByUUID finds a deposit request by UUID
func (r *DepositRequestRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.DepositRequest, error) {
	db := r.getDB(ctx)
	var request models.DepositRequest
	err := db.Where("uuid = ?", uuid).Last(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &request, nil
}

// ByAccountRef finds deposit requests for an account, newest first
func (r *DepositRequestRepositoryImpl) ByAccountRef(ctx context.Context, accountRef string, limit, offset int) ([]*models.DepositRequest, error) {
	db := r.getDB(ctx)
	var requests []*models.DepositRequest

	query := db.Where("account_ref = ?", accountRef).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

// ByStatus finds deposit requests by status
func (r *DepositRequestRepositoryImpl) ByStatus(ctx context.Context, status models.DepositRequestStatus, limit, offset int) ([]*models.DepositRequest, error) {
	db := r.getDB(ctx)
	var requests []*models.DepositRequest

	query := db.Where("status = ?", status).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

// ListAwaitingPayment returns every request the matcher may still settle,
// oldest first so the FIFO tie-break falls out of iteration order.
func (r *DepositRequestRepositoryImpl) ListAwaitingPayment(ctx context.Context) ([]*models.DepositRequest, error) {
	return r.ByStatus(ctx, models.DepositStatusAwaitingPayment, 0, 0)
}

// ByFilter retrieves deposit requests based on filter criteria
func (r *DepositRequestRepositoryImpl) ByFilter(ctx context.Context, filter models.DepositRequestFilter, orderBy string, limit, offset int) ([]*models.DepositRequest, error) {
	db := r.getDB(ctx)
	var requests []*models.DepositRequest

	query := db.Model(&models.DepositRequest{})
	query = r.applyFilter(query, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	} else {
		query = query.Order("created_at DESC")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

// Count returns the number of deposit requests matching the filter
func (r *DepositRequestRepositoryImpl) Count(ctx context.Context, filter models.DepositRequestFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64

	query := db.Model(&models.DepositRequest{})
	query = r.applyFilter(query, filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// TransitionStatus performs the compare-and-swap status change. The WHERE
// clause carries the expected prior status, so of any number of concurrent
// writers racing on the same (from, to) pair exactly one update sticks;
// the rest see zero affected rows and get ErrStaleState.
func (r *DepositRequestRepositoryImpl) TransitionStatus(ctx context.Context, id uint, from, to models.DepositRequestStatus, fields TransitionFields) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	updates := map[string]any{
		"status":     to,
		"updated_at": utils.UTCNow(),
	}
	if fields.StatusReason != "" {
		updates["status_reason"] = fields.StatusReason
	}
	if fields.MatchedTxnID != nil {
		updates["matched_txn_id"] = *fields.MatchedTxnID
	}
	if fields.MatchedAt != nil {
		updates["matched_at"] = *fields.MatchedAt
	}
	if fields.CreditedAt != nil {
		updates["credited_at"] = *fields.CreditedAt
	}

	res := db.Model(&models.DepositRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		err = fmt.Errorf("failed to transition deposit request %d from %s to %s: %w", id, from, to, res.Error)
		return err
	}
	if res.RowsAffected == 0 {
		err = ErrStaleState
		return err
	}

	return nil
}

// applyFilter applies the filter to the query
func (r *DepositRequestRepositoryImpl) applyFilter(query *gorm.DB, filter models.DepositRequestFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.CorrelationID != nil {
		query = query.Where("correlation_id = ?", *filter.CorrelationID)
	}
	if filter.AccountRef != nil {
		query = query.Where("account_ref = ?", *filter.AccountRef)
	}
	if filter.TotalAmount != nil {
		query = query.Where("total_amount = ?", *filter.TotalAmount)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.MatchedTxnID != nil {
		query = query.Where("matched_txn_id = ?", *filter.MatchedTxnID)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	if filter.ExpiresAfter != nil {
		query = query.Where("expires_at > ?", *filter.ExpiresAfter)
	}
	if filter.ExpiresBefore != nil {
		query = query.Where("expires_at < ?", *filter.ExpiresBefore)
	}
	return query
}
