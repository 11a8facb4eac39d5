package repository

import (
	"context"
	"time"

	"p2p/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Decision is the data written when a level decides.
type Decision struct {
	Status     string
	ApproverID uuid.UUID
	Comments   string
	DecidedAt  time.Time
}

type ApprovalRepository interface {
	FindByRequestAndLevel(ctx context.Context, requestID uuid.UUID, level string) (*model.Approval, error)
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.Approval, error)
	Decide(ctx context.Context, requestID uuid.UUID, level string, d Decision) error
	ResetChain(ctx context.Context, requestID uuid.UUID) error
}

type approvalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) FindByRequestAndLevel(ctx context.Context, requestID uuid.UUID, level string) (*model.Approval, error) {
	var a model.Approval
	if err := GetDB(ctx, r.db).First(&a, "purchase_request_id = ? AND level = ?", requestID, level).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *approvalRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.Approval, error) {
	var approvals []model.Approval
	err := GetDB(ctx, r.db).Where("purchase_request_id = ?", requestID).Order("level ASC").Find(&approvals).Error
	return approvals, err
}

// Decide records a decision on a PENDING row. A row that was already decided yields ErrStaleState.
func (r *approvalRepository) Decide(ctx context.Context, requestID uuid.UUID, level string, d Decision) error {
	res := GetDB(ctx, r.db).Model(&model.Approval{}).
		Where("purchase_request_id = ? AND level = ? AND status = ?", requestID, level, model.ApprovalPending).
		Updates(map[string]interface{}{
			"status":      d.Status,
			"approver_id": d.ApproverID,
			"comments":    d.Comments,
			"decided_at":  d.DecidedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrStaleState
	}
	return nil
}

// ResetChain puts both rows back to PENDING and clears prior decisions.
func (r *approvalRepository) ResetChain(ctx context.Context, requestID uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.Approval{}).
		Where("purchase_request_id = ?", requestID).
		Updates(map[string]interface{}{
			"status":      model.ApprovalPending,
			"approver_id": nil,
			"comments":    "",
			"decided_at":  nil,
		}).Error
}
