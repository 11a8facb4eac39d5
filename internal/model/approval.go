package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Approval levels, in the order they must decide.
const (
	ApprovalLevel1 = "LEVEL_1"
	ApprovalLevel2 = "LEVEL_2"
)

// Approval decision status values
const (
	ApprovalPending  = "PENDING"
	ApprovalApproved = "APPROVED"
	ApprovalRejected = "REJECTED"
)

// Approval records one level's decision on a purchase request.
// ApproverID, Comments and DecidedAt are only set once the level decides.
type Approval struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	PurchaseRequestID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_approval_request_level" json:"purchase_request_id"`
	Level             string     `gorm:"type:varchar(10);not null;uniqueIndex:idx_approval_request_level" json:"level"`
	Status            string     `gorm:"type:varchar(10);not null;default:'PENDING';index" json:"status"`
	ApproverID        *uuid.UUID `gorm:"type:uuid;index" json:"approver_id"`
	Approver          *User      `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`
	Comments          string     `gorm:"type:text" json:"comments"`
	DecidedAt         *time.Time `json:"decided_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (a *Approval) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// NewApprovalChain returns the two PENDING rows every request is created with.
func NewApprovalChain(requestID uuid.UUID) []Approval {
	return []Approval{
		{PurchaseRequestID: requestID, Level: ApprovalLevel1, Status: ApprovalPending},
		{PurchaseRequestID: requestID, Level: ApprovalLevel2, Status: ApprovalPending},
	}
}
