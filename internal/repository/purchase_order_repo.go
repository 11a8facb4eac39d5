package repository

import (
	"context"
	"fmt"

	"p2p/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// POListFilter scopes a purchase order listing. Nil scopes mean all orders.
type POListFilter struct {
	Status      string
	RequesterID *uuid.UUID // orders whose request was raised by this user
	ApproverID  *uuid.UUID // orders whose request this user approved
	Page        int
	Limit       int
}

type PurchaseOrderRepository interface {
	Create(ctx context.Context, po *model.PurchaseOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error)
	FindByRequestID(ctx context.Context, requestID uuid.UUID) (*model.PurchaseOrder, error)
	List(ctx context.Context, filter POListFilter) ([]model.PurchaseOrder, int64, error)
	ListAll(ctx context.Context, status string) ([]model.PurchaseOrder, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	CountByRequest(ctx context.Context, requestID uuid.UUID) (int64, error)
}

type purchaseOrderRepository struct {
	db *gorm.DB
}

func NewPurchaseOrderRepository(db *gorm.DB) PurchaseOrderRepository {
	return &purchaseOrderRepository{db: db}
}

// Create inserts the order. Unique violations on po_number or purchase_request_id return ErrDuplicate.
func (r *purchaseOrderRepository) Create(ctx context.Context, po *model.PurchaseOrder) error {
	if err := GetDB(ctx, r.db).Create(po).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return err
	}
	return nil
}

func (r *purchaseOrderRepository) withRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("PurchaseRequest").
		Preload("PurchaseRequest.Requester").
		Preload("PurchaseRequest.Items", orderedItems).
		Preload("CreatedBy")
}

func (r *purchaseOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error) {
	var po model.PurchaseOrder
	if err := r.withRelations(GetDB(ctx, r.db)).First(&po, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &po, nil
}

func (r *purchaseOrderRepository) FindByRequestID(ctx context.Context, requestID uuid.UUID) (*model.PurchaseOrder, error) {
	var po model.PurchaseOrder
	if err := GetDB(ctx, r.db).First(&po, "purchase_request_id = ?", requestID).Error; err != nil {
		return nil, err
	}
	return &po, nil
}

func (r *purchaseOrderRepository) scoped(db *gorm.DB, filter POListFilter) *gorm.DB {
	query := db.Model(&model.PurchaseOrder{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.RequesterID != nil {
		query = query.Where("purchase_request_id IN (?)",
			db.Model(&model.PurchaseRequest{}).Select("id").Where("requester_id = ?", *filter.RequesterID))
	}
	if filter.ApproverID != nil {
		query = query.Where("purchase_request_id IN (?)",
			db.Model(&model.Approval{}).Select("purchase_request_id").
				Where("approver_id = ? AND status = ?", *filter.ApproverID, model.ApprovalApproved))
	}
	return query
}

func (r *purchaseOrderRepository) List(ctx context.Context, filter POListFilter) ([]model.PurchaseOrder, int64, error) {
	var orders []model.PurchaseOrder
	var total int64

	db := GetDB(ctx, r.db)
	if err := r.scoped(db, filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	err := r.withRelations(r.scoped(db, filter)).
		Order("created_at DESC").
		Offset(offset).Limit(filter.Limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// ListAll returns every order, optionally by status, oldest first. Used for exports.
func (r *purchaseOrderRepository) ListAll(ctx context.Context, status string) ([]model.PurchaseOrder, error) {
	var orders []model.PurchaseOrder
	db := GetDB(ctx, r.db)
	query := r.withRelations(r.scoped(db, POListFilter{Status: status}))
	if err := query.Order("created_at ASC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus overwrites the status unconditionally.
func (r *purchaseOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	res := GetDB(ctx, r.db).Model(&model.PurchaseOrder{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *purchaseOrderRepository) CountByRequest(ctx context.Context, requestID uuid.UUID) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.PurchaseOrder{}).Where("purchase_request_id = ?", requestID).Count(&n).Error
	return n, err
}
