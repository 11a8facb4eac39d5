package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PurchaseRequest status values. APPROVED is the only terminal accepted state.
const (
	RequestStatusPending        = "PENDING"
	RequestStatusApprovedLevel1 = "APPROVED_LEVEL_1"
	RequestStatusApproved       = "APPROVED"
	RequestStatusRejected       = "REJECTED"
)

// PurchaseRequest is the aggregate root: items, both approval rows and the optional purchase order hang off it.
type PurchaseRequest struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Title         string          `gorm:"type:varchar(255);not null" json:"title"`
	Description   string          `gorm:"type:text" json:"description"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Status        string          `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	RequesterID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"requester_id"`
	Requester     *User           `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	ProformaPath  string          `gorm:"type:text" json:"proforma_path"`
	ReceiptPath   string          `gorm:"type:text" json:"receipt_path"`
	ExtractedData string          `gorm:"type:jsonb;not null;default:'{}'" json:"extracted_data"` // Serialized best-effort document extraction
	Items         []RequestItem   `gorm:"foreignKey:PurchaseRequestID" json:"items"`
	Approvals     []Approval      `gorm:"foreignKey:PurchaseRequestID" json:"approvals"`
	PurchaseOrder *PurchaseOrder  `gorm:"foreignKey:PurchaseRequestID" json:"purchase_order,omitempty"`
	CreatedAt     time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (r *PurchaseRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.ExtractedData == "" {
		r.ExtractedData = "{}"
	}
	return nil
}

// RequestItem is one line of the request ledger. Position keeps the submitted order.
type RequestItem struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	PurchaseRequestID uuid.UUID       `gorm:"type:uuid;not null;index" json:"purchase_request_id"`
	Position          int             `gorm:"type:int;not null" json:"position"`
	ItemName          string          `gorm:"type:varchar(255);not null" json:"item_name"`
	Description       string          `gorm:"type:text" json:"description"`
	Quantity          int             `gorm:"type:int;not null" json:"quantity"`
	UnitPrice         decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	TotalPrice        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_price"`
}

func (i *RequestItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	i.TotalPrice = i.LineTotal()
	return nil
}

// LineTotal is quantity × unit price.
func (i RequestItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
