package service

import (
	"p2p/internal/model"
)

// --- Requests ---

type RequestItemInput struct {
	ItemName    string `json:"item_name" validate:"required,max=255"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity" validate:"gte=1"`
	UnitPrice   string `json:"unit_price" validate:"required"`
}

type CreatePurchaseRequestDTO struct {
	Title       string             `json:"title" validate:"required,max=255"`
	Description string             `json:"description"`
	Amount      string             `json:"amount" validate:"required"`
	Items       []RequestItemInput `json:"items" validate:"required,min=1,dive"`
}

// UpdatePurchaseRequestDTO changes only the fields that are set. Items, when present, replace all items.
type UpdatePurchaseRequestDTO struct {
	Title       *string            `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string            `json:"description"`
	Amount      *string            `json:"amount"`
	Items       []RequestItemInput `json:"items" validate:"omitempty,min=1,dive"`
}

type DecisionDTO struct {
	Comments string `json:"comments" validate:"max=2000"`
}

type RequestFilter struct {
	Status string
	Search string
	Page   int
	Limit  int
}

type UpdatePOStatusDTO struct {
	Status string `json:"status" validate:"required"`
}

type POFilter struct {
	Status string
	Page   int
	Limit  int
}

type AuditFilter struct {
	Action   string
	EntityID string
	Page     int
	Limit    int
}

// --- Responses ---

type RequestItemResponse struct {
	ID          string `json:"id"`
	ItemName    string `json:"item_name"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	TotalPrice  string `json:"total_price"`
}

type ApprovalResponse struct {
	Level        string  `json:"level"`
	Status       string  `json:"status"`
	ApproverID   *string `json:"approver_id"`
	ApproverName string  `json:"approver_name,omitempty"`
	Comments     string  `json:"comments"`
	DecidedAt    *string `json:"decided_at"`
}

type PurchaseOrderSummary struct {
	ID       string `json:"id"`
	PONumber string `json:"po_number"`
	Status   string `json:"status"`
}

type PurchaseRequestResponse struct {
	ID            string                 `json:"id"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description"`
	Amount        string                 `json:"amount"`
	Status        string                 `json:"status"`
	RequesterID   string                 `json:"requester_id"`
	RequesterName string                 `json:"requester_name"`
	ProformaPath  string                 `json:"proforma_path"`
	ReceiptPath   string                 `json:"receipt_path"`
	ExtractedData map[string]interface{} `json:"extracted_data"`
	Items         []RequestItemResponse  `json:"items"`
	Approvals     []ApprovalResponse     `json:"approvals"`
	PurchaseOrder *PurchaseOrderSummary  `json:"purchase_order"`
	CreatedAt     string                 `json:"created_at"`
	UpdatedAt     string                 `json:"updated_at"`
}

type PurchaseOrderResponse struct {
	ID                string                `json:"id"`
	PONumber          string                `json:"po_number"`
	PurchaseRequestID string                `json:"purchase_request_id"`
	RequestTitle      string                `json:"request_title"`
	RequesterName     string                `json:"requester_name"`
	VendorName        string                `json:"vendor_name"`
	VendorAddress     string                `json:"vendor_address"`
	VendorEmail       string                `json:"vendor_email"`
	VendorPhone       string                `json:"vendor_phone"`
	TotalAmount       string                `json:"total_amount"`
	Status            string                `json:"status"`
	DocumentRef       string                `json:"document_ref"`
	Notes             string                `json:"notes"`
	CreatedByID       *string               `json:"created_by_id"`
	Items             []RequestItemResponse `json:"items"`
	CreatedAt         string                `json:"created_at"`
	UpdatedAt         string                `json:"updated_at"`
}

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	FullName  string `json:"full_name"`
	Role      string `json:"role"`
}

// --- Mapping ---

func toItemResponses(items []model.RequestItem) []RequestItemResponse {
	out := make([]RequestItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, RequestItemResponse{
			ID:          it.ID.String(),
			ItemName:    it.ItemName,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.StringFixed(2),
			TotalPrice:  it.TotalPrice.StringFixed(2),
		})
	}
	return out
}

func toPurchaseRequestResponse(r model.PurchaseRequest) PurchaseRequestResponse {
	resp := PurchaseRequestResponse{
		ID:            r.ID.String(),
		Title:         r.Title,
		Description:   r.Description,
		Amount:        r.Amount.StringFixed(2),
		Status:        r.Status,
		RequesterID:   r.RequesterID.String(),
		ProformaPath:  r.ProformaPath,
		ReceiptPath:   r.ReceiptPath,
		ExtractedData: extractedFields(r.ExtractedData),
		Items:         toItemResponses(r.Items),
		Approvals:     make([]ApprovalResponse, 0, len(r.Approvals)),
		CreatedAt:     formatTime(r.CreatedAt),
		UpdatedAt:     formatTime(r.UpdatedAt),
	}
	if r.Requester != nil {
		resp.RequesterName = r.Requester.FullName()
	}
	for _, a := range r.Approvals {
		ar := ApprovalResponse{
			Level:      a.Level,
			Status:     a.Status,
			ApproverID: uuidPtrString(a.ApproverID),
			Comments:   a.Comments,
			DecidedAt:  formatTimePtr(a.DecidedAt),
		}
		if a.Approver != nil {
			ar.ApproverName = a.Approver.FullName()
		}
		resp.Approvals = append(resp.Approvals, ar)
	}
	if r.PurchaseOrder != nil {
		resp.PurchaseOrder = &PurchaseOrderSummary{
			ID:       r.PurchaseOrder.ID.String(),
			PONumber: r.PurchaseOrder.PONumber,
			Status:   r.PurchaseOrder.Status,
		}
	}
	return resp
}

func toPurchaseOrderResponse(po model.PurchaseOrder) PurchaseOrderResponse {
	resp := PurchaseOrderResponse{
		ID:                po.ID.String(),
		PONumber:          po.PONumber,
		PurchaseRequestID: po.PurchaseRequestID.String(),
		VendorName:        po.VendorName,
		VendorAddress:     po.VendorAddress,
		VendorEmail:       po.VendorEmail,
		VendorPhone:       po.VendorPhone,
		TotalAmount:       po.TotalAmount.StringFixed(2),
		Status:            po.Status,
		DocumentRef:       po.DocumentRef,
		Notes:             po.Notes,
		CreatedByID:       uuidPtrString(po.CreatedByID),
		Items:             []RequestItemResponse{},
		CreatedAt:         formatTime(po.CreatedAt),
		UpdatedAt:         formatTime(po.UpdatedAt),
	}
	if pr := po.PurchaseRequest; pr != nil {
		resp.RequestTitle = pr.Title
		resp.Items = toItemResponses(pr.Items)
		if pr.Requester != nil {
			resp.RequesterName = pr.Requester.FullName()
		}
	}
	return resp
}

func toUserResponse(u model.User) UserResponse {
	return UserResponse{
		ID:        u.ID.String(),
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		FullName:  u.FullName(),
		Role:      u.Role,
	}
}
