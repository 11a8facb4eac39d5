package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreatePurchaseRequest = "CREATE_PURCHASE_REQUEST"
	ActionUpdatePurchaseRequest = "UPDATE_PURCHASE_REQUEST"
	ActionDeletePurchaseRequest = "DELETE_PURCHASE_REQUEST"
	ActionUploadProforma        = "UPLOAD_PROFORMA"
	ActionUploadReceipt         = "UPLOAD_RECEIPT"

	// Approval workflow actions
	ActionApproveRequest        = "APPROVE_REQUEST"
	ActionRejectRequest         = "REJECT_REQUEST"
	ActionGeneratePurchaseOrder = "GENERATE_PURCHASE_ORDER"
	ActionUpdatePOStatus        = "UPDATE_PO_STATUS"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`        // Reference string (uuid/code)
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable name
	Details    string     `gorm:"type:jsonb" json:"details"`                      // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Details == "" {
		a.Details = "{}"
	}
	return nil
}
