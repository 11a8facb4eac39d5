package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"p2p/internal/document"
	"p2p/internal/model"
	"p2p/internal/policy"
	"p2p/internal/repository"
	"p2p/pkg/apperror"
	"p2p/pkg/pagination"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Purchase Orders"

type PurchaseOrderService interface {
	List(ctx context.Context, actor model.Actor, filter POFilter) ([]PurchaseOrderResponse, int64, error)
	Get(ctx context.Context, id uuid.UUID, actor model.Actor) (*PurchaseOrderResponse, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, actor model.Actor, dto UpdatePOStatusDTO) (*PurchaseOrderResponse, error)
	Export(ctx context.Context, actor model.Actor, status string) ([]byte, error)
	OpenDocument(ctx context.Context, id uuid.UUID, actor model.Actor) (io.ReadCloser, string, error)
}

type purchaseOrderService struct {
	txManager repository.TransactionManager
	orders    repository.PurchaseOrderRepository
	approvals repository.ApprovalRepository
	audits    repository.AuditRepository
	policy    Authorizer
	store     document.Store
	notifier  Notifier
	log       *logrus.Entry
}

func NewPurchaseOrderService(
	txManager repository.TransactionManager,
	orders repository.PurchaseOrderRepository,
	approvals repository.ApprovalRepository,
	audits repository.AuditRepository,
	authz Authorizer,
	store document.Store,
	notifier Notifier,
	logger *logrus.Logger,
) PurchaseOrderService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &purchaseOrderService{
		txManager: txManager,
		orders:    orders,
		approvals: approvals,
		audits:    audits,
		policy:    authz,
		store:     store,
		notifier:  notifier,
		log:       componentLogger(logger, "purchase-orders"),
	}
}

func isApproverRole(role string) bool {
	return role == model.RoleApproverLevel1 || role == model.RoleApproverLevel2
}

// scope narrows a listing to what the actor may see. Roles that see every order get no scope.
func (s *purchaseOrderService) scope(actor model.Actor, filter *repository.POListFilter) error {
	id := actor.UserID
	switch {
	case s.policy.Allowed(actor.Role, policy.ActionViewOrder, policy.AnyStatus, false):
	case s.policy.Allowed(actor.Role, policy.ActionViewOrder, policy.AnyStatus, true):
		filter.RequesterID = &id
	case isApproverRole(actor.Role):
		filter.ApproverID = &id
	default:
		return apperror.PermissionDenied("role %q cannot view purchase orders", actor.Role)
	}
	return nil
}

func (s *purchaseOrderService) List(ctx context.Context, actor model.Actor, filter POFilter) ([]PurchaseOrderResponse, int64, error) {
	if filter.Status != "" && !model.IsValidPOStatus(filter.Status) {
		return nil, 0, apperror.Validation("unknown status %q", filter.Status)
	}
	params := pagination.Normalize(filter.Page, filter.Limit)
	repoFilter := repository.POListFilter{Status: filter.Status, Page: params.Page, Limit: params.Limit}
	if err := s.scope(actor, &repoFilter); err != nil {
		return nil, 0, err
	}

	orders, total, err := s.orders.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list purchase orders: %w", err)
	}
	res := make([]PurchaseOrderResponse, 0, len(orders))
	for _, po := range orders {
		res = append(res, toPurchaseOrderResponse(po))
	}
	return res, total, nil
}

// canView applies the listing scope to a single order.
func (s *purchaseOrderService) canView(ctx context.Context, actor model.Actor, po *model.PurchaseOrder) (bool, error) {
	if s.policy.Allowed(actor.Role, policy.ActionViewOrder, policy.AnyStatus, false) {
		return true, nil
	}
	isOwner := po.PurchaseRequest != nil && po.PurchaseRequest.RequesterID == actor.UserID
	if isOwner && s.policy.Allowed(actor.Role, policy.ActionViewOrder, policy.AnyStatus, true) {
		return true, nil
	}
	if !isApproverRole(actor.Role) {
		return false, nil
	}
	approvals, err := s.approvals.ListByRequest(ctx, po.PurchaseRequestID)
	if err != nil {
		return false, fmt.Errorf("failed to load approvals: %w", err)
	}
	for _, a := range approvals {
		if a.Status == model.ApprovalApproved && a.ApproverID != nil && *a.ApproverID == actor.UserID {
			return true, nil
		}
	}
	return false, nil
}

func (s *purchaseOrderService) load(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.PurchaseOrder, error) {
	po, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "purchase order", id)
	}
	ok, err := s.canView(ctx, actor, po)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.PermissionDenied("you cannot view this purchase order")
	}
	return po, nil
}

func (s *purchaseOrderService) Get(ctx context.Context, id uuid.UUID, actor model.Actor) (*PurchaseOrderResponse, error) {
	po, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	resp := toPurchaseOrderResponse(*po)
	return &resp, nil
}

// UpdateStatus sets any known status. Finance moves orders freely; there is no order lifecycle to enforce.
func (s *purchaseOrderService) UpdateStatus(ctx context.Context, id uuid.UUID, actor model.Actor, dto UpdatePOStatusDTO) (*PurchaseOrderResponse, error) {
	if !s.policy.Allowed(actor.Role, policy.ActionUpdateOrder, policy.AnyStatus, false) {
		return nil, apperror.PermissionDenied("role %q cannot update purchase orders", actor.Role)
	}
	if err := validateStruct(dto); err != nil {
		return nil, err
	}
	if !model.IsValidPOStatus(dto.Status) {
		return nil, apperror.Validation("unknown purchase order status %q", dto.Status)
	}

	var (
		po        *model.PurchaseOrder
		approvers []uuid.UUID
	)
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, id)
		if err != nil {
			return notFoundOr(err, "purchase order", id)
		}
		if err := s.orders.UpdateStatus(txCtx, id, dto.Status); err != nil {
			return notFoundOr(err, "purchase order", id)
		}
		entry := auditEntry(actor, model.ActionUpdatePOStatus, id.String(), current.PONumber, map[string]interface{}{
			"from_status": current.Status,
			"to_status":   dto.Status,
		})
		if err := s.audits.Log(txCtx, entry); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		approvals, err := s.approvals.ListByRequest(txCtx, current.PurchaseRequestID)
		if err != nil {
			return fmt.Errorf("failed to load approvals: %w", err)
		}
		approvers = approverIDs(approvals)
		po = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	var requester uuid.UUID
	if po.PurchaseRequest != nil {
		requester = po.PurchaseRequest.RequesterID
	}
	s.notifier.Publish(model.WorkflowEvent{
		Type:       model.EventPurchaseOrderUpdated,
		RequestID:  po.PurchaseRequestID,
		Requester:  requester,
		Status:     dto.Status,
		PONumber:   po.PONumber,
		ActorID:    actor.UserID,
		OccurredAt: time.Now(),
		Approvers:  approvers,
	})
	s.log.WithFields(logrus.Fields{"po_number": po.PONumber, "status": dto.Status}).Info("purchase order status updated")

	updated, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "purchase order", id)
	}
	resp := toPurchaseOrderResponse(*updated)
	return &resp, nil
}

var exportHeaders = []string{"PO Number", "Request", "Requester", "Vendor", "Vendor Email", "Total Amount", "Status", "Created At"}

// Export writes every order, optionally filtered by status, into an xlsx workbook.
func (s *purchaseOrderService) Export(ctx context.Context, actor model.Actor, status string) ([]byte, error) {
	if !s.policy.Allowed(actor.Role, policy.ActionExportOrders, policy.AnyStatus, false) {
		return nil, apperror.PermissionDenied("role %q cannot export purchase orders", actor.Role)
	}
	if status != "" && !model.IsValidPOStatus(status) {
		return nil, apperror.Validation("unknown status %q", status)
	}
	orders, err := s.orders.ListAll(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase orders: %w", err)
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.log.WithError(err).Warn("failed to close workbook")
		}
	}()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeaders); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	for i, po := range orders {
		r := toPurchaseOrderResponse(po)
		amount, _ := po.TotalAmount.Float64()
		row := []interface{}{r.PONumber, r.RequestTitle, r.RequesterName, r.VendorName, r.VendorEmail, amount, r.Status, po.CreatedAt.Format("2006-01-02 15:04")}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// OpenDocument streams the rendered purchase order. The caller closes the reader.
func (s *purchaseOrderService) OpenDocument(ctx context.Context, id uuid.UUID, actor model.Actor) (io.ReadCloser, string, error) {
	po, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, "", err
	}
	if po.DocumentRef == "" {
		return nil, "", apperror.NotFound("purchase order %s has no document", po.PONumber)
	}
	rc, err := s.store.Open(ctx, po.DocumentRef)
	if errors.Is(err, document.ErrNotFound) {
		return nil, "", apperror.NotFound("document for purchase order %s is missing", po.PONumber)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to open document: %w", err)
	}
	return rc, po.PONumber + ".pdf", nil
}
