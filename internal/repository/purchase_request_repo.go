package repository

import (
	"context"
	"fmt"
	"strings"

	"p2p/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestListFilter scopes a request listing. Owner and Statuses are OR-ed together
// so a role can see its own rows plus the statuses its policy grants.
type RequestListFilter struct {
	OwnerID  *uuid.UUID
	Statuses []string
	Status   string // exact status requested by the caller
	Search   string // substring of title or description, case-insensitive
	Page     int
	Limit    int
}

type PurchaseRequestRepository interface {
	Create(ctx context.Context, req *model.PurchaseRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error)
	List(ctx context.Context, filter RequestListFilter) ([]model.PurchaseRequest, int64, error)
	UpdateFields(ctx context.Context, id uuid.UUID, expectedStatus string, fields map[string]interface{}) error
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to string) error
	ReplaceItems(ctx context.Context, id uuid.UUID, items []model.RequestItem) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type purchaseRequestRepository struct {
	db *gorm.DB
}

func NewPurchaseRequestRepository(db *gorm.DB) PurchaseRequestRepository {
	return &purchaseRequestRepository{db: db}
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func orderedApprovals(db *gorm.DB) *gorm.DB {
	return db.Order("level ASC")
}

// Create inserts the request together with its items and approval rows.
func (r *purchaseRequestRepository) Create(ctx context.Context, req *model.PurchaseRequest) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *purchaseRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error) {
	var req model.PurchaseRequest
	err := GetDB(ctx, r.db).
		Preload("Requester").
		Preload("Items", orderedItems).
		Preload("Approvals", orderedApprovals).
		Preload("Approvals.Approver").
		Preload("PurchaseOrder").
		First(&req, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// FindForUpdate locks the request row for the rest of the transaction and loads its items.
// The lock is taken on the bare row; preloads would lock joined tables too.
func (r *purchaseRequestRepository) FindForUpdate(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error) {
	db := GetDB(ctx, r.db)

	var req model.PurchaseRequest
	if err := forUpdate(db).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	if err := db.Where("purchase_request_id = ?", id).Order("position ASC").Find(&req.Items).Error; err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	return &req, nil
}

func (r *purchaseRequestRepository) scoped(db *gorm.DB, filter RequestListFilter) *gorm.DB {
	query := db.Model(&model.PurchaseRequest{})

	switch {
	case filter.OwnerID != nil && len(filter.Statuses) > 0:
		query = query.Where("requester_id = ? OR status IN ?", *filter.OwnerID, filter.Statuses)
	case filter.OwnerID != nil:
		query = query.Where("requester_id = ?", *filter.OwnerID)
	case len(filter.Statuses) > 0:
		query = query.Where("status IN ?", filter.Statuses)
	default:
		// nothing visible
		query = query.Where("1 = 0")
	}

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	return query
}

func (r *purchaseRequestRepository) List(ctx context.Context, filter RequestListFilter) ([]model.PurchaseRequest, int64, error) {
	var requests []model.PurchaseRequest
	var total int64

	db := GetDB(ctx, r.db)
	if err := r.scoped(db, filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	err := r.scoped(db, filter).
		Preload("Requester").
		Preload("Items", orderedItems).
		Preload("Approvals", orderedApprovals).
		Order("created_at DESC").
		Offset(offset).Limit(filter.Limit).
		Find(&requests).Error
	if err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

// UpdateFields applies fields only while the row is still in expectedStatus.
func (r *purchaseRequestRepository) UpdateFields(ctx context.Context, id uuid.UUID, expectedStatus string, fields map[string]interface{}) error {
	res := GetDB(ctx, r.db).Model(&model.PurchaseRequest{}).
		Where("id = ? AND status = ?", id, expectedStatus).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrStaleState
	}
	return nil
}

func (r *purchaseRequestRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	return r.UpdateFields(ctx, id, from, map[string]interface{}{"status": to})
}

func (r *purchaseRequestRepository) ReplaceItems(ctx context.Context, id uuid.UUID, items []model.RequestItem) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("purchase_request_id = ?", id).Delete(&model.RequestItem{}).Error; err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].PurchaseRequestID = id
	}
	return db.Create(&items).Error
}

// Delete removes the request with its items and approvals.
func (r *purchaseRequestRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("purchase_request_id = ?", id).Delete(&model.RequestItem{}).Error; err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	if err := db.Where("purchase_request_id = ?", id).Delete(&model.Approval{}).Error; err != nil {
		return fmt.Errorf("delete approvals: %w", err)
	}
	res := db.Where("id = ?", id).Delete(&model.PurchaseRequest{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
