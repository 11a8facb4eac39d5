package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PurchaseOrder status values. Finance may set any of them at any time.
const (
	POStatusGenerated = "GENERATED"
	POStatusSent      = "SENT"
	POStatusCompleted = "COMPLETED"
	POStatusCancelled = "CANCELLED"
)

// PurchaseOrder is created exactly once per request, when the request reaches APPROVED.
type PurchaseOrder struct {
	ID                uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	PONumber          string           `gorm:"column:po_number;type:varchar(50);uniqueIndex;not null" json:"po_number"`
	PurchaseRequestID uuid.UUID        `gorm:"type:uuid;uniqueIndex;not null" json:"purchase_request_id"`
	PurchaseRequest   *PurchaseRequest `gorm:"foreignKey:PurchaseRequestID" json:"purchase_request,omitempty"`
	VendorName        string           `gorm:"type:varchar(255)" json:"vendor_name"`
	VendorAddress     string           `gorm:"type:text" json:"vendor_address"`
	VendorEmail       string           `gorm:"type:varchar(255)" json:"vendor_email"`
	VendorPhone       string           `gorm:"type:varchar(50)" json:"vendor_phone"`
	TotalAmount       decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	Status            string           `gorm:"type:varchar(20);not null;default:'GENERATED';index" json:"status"`
	DocumentRef       string           `gorm:"type:text" json:"document_ref"` // Opaque handle from the document renderer
	Notes             string           `gorm:"type:text" json:"notes"`
	CreatedByID       *uuid.UUID       `gorm:"type:uuid" json:"created_by_id"`
	CreatedBy         *User            `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	CreatedAt         time.Time        `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func (po *PurchaseOrder) BeforeCreate(tx *gorm.DB) error {
	if po.ID == uuid.Nil {
		po.ID = uuid.New()
	}
	return nil
}

// IsValidPOStatus reports whether status is a known purchase order status.
func IsValidPOStatus(status string) bool {
	switch status {
	case POStatusGenerated, POStatusSent, POStatusCompleted, POStatusCancelled:
		return true
	}
	return false
}

// POSequence is the per-day counter behind PO numbers. Incrementing the row is the serialization point.
type POSequence struct {
	Day       string `gorm:"type:varchar(8);primaryKey" json:"day"` // YYYYMMDD
	LastValue int64  `gorm:"type:bigint;not null" json:"last_value"`
}

func (POSequence) TableName() string {
	return "po_sequences"
}
