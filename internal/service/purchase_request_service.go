package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"p2p/internal/document"
	"p2p/internal/model"
	"p2p/internal/policy"
	"p2p/internal/repository"
	"p2p/pkg/apperror"
	"p2p/pkg/pagination"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var requestStatuses = []string{
	model.RequestStatusPending,
	model.RequestStatusApprovedLevel1,
	model.RequestStatusApproved,
	model.RequestStatusRejected,
}

// ReceiptUploadResponse is returned after a receipt upload. Validation is nil when the request has no purchase order.
type ReceiptUploadResponse struct {
	Request    PurchaseRequestResponse `json:"request"`
	Validation *document.ReceiptCheck  `json:"validation"`
}

type PurchaseRequestService interface {
	Create(ctx context.Context, actor model.Actor, dto CreatePurchaseRequestDTO) (*PurchaseRequestResponse, error)
	Get(ctx context.Context, id uuid.UUID, actor model.Actor) (*PurchaseRequestResponse, error)
	List(ctx context.Context, actor model.Actor, filter RequestFilter) ([]PurchaseRequestResponse, int64, error)
	Update(ctx context.Context, id uuid.UUID, actor model.Actor, dto UpdatePurchaseRequestDTO) (*PurchaseRequestResponse, error)
	Delete(ctx context.Context, id uuid.UUID, actor model.Actor) error
	UploadProforma(ctx context.Context, id uuid.UUID, actor model.Actor, filename string, data []byte) (*PurchaseRequestResponse, error)
	UploadReceipt(ctx context.Context, id uuid.UUID, actor model.Actor, filename string, data []byte) (*ReceiptUploadResponse, error)
}

type purchaseRequestService struct {
	txManager repository.TransactionManager
	requests  repository.PurchaseRequestRepository
	approvals repository.ApprovalRepository
	orders    repository.PurchaseOrderRepository
	audits    repository.AuditRepository
	policy    Authorizer
	processor document.Processor
	store     document.Store
	notifier  Notifier
	log       *logrus.Entry
}

func NewPurchaseRequestService(
	txManager repository.TransactionManager,
	requests repository.PurchaseRequestRepository,
	approvals repository.ApprovalRepository,
	orders repository.PurchaseOrderRepository,
	audits repository.AuditRepository,
	authz Authorizer,
	processor document.Processor,
	store document.Store,
	notifier Notifier,
	logger *logrus.Logger,
) PurchaseRequestService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &purchaseRequestService{
		txManager: txManager,
		requests:  requests,
		approvals: approvals,
		orders:    orders,
		audits:    audits,
		policy:    authz,
		processor: processor,
		store:     store,
		notifier:  notifier,
		log:       componentLogger(logger, "purchase-requests"),
	}
}

func parseMoney(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, apperror.Validation("%s must be a decimal number", field)
	}
	if d.Exponent() < -2 {
		return decimal.Zero, apperror.Validation("%s must have at most 2 decimal places", field)
	}
	return d, nil
}

func buildItems(inputs []RequestItemInput) ([]model.RequestItem, decimal.Decimal, error) {
	items := make([]model.RequestItem, 0, len(inputs))
	total := decimal.Zero
	for i, in := range inputs {
		price, err := parseMoney(fmt.Sprintf("items[%d].unit_price", i), in.UnitPrice)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if price.IsNegative() {
			return nil, decimal.Zero, apperror.Validation("items[%d].unit_price must not be negative", i)
		}
		if in.Quantity < 1 {
			return nil, decimal.Zero, apperror.Validation("items[%d].quantity must be at least 1", i)
		}
		item := model.RequestItem{
			Position:    i,
			ItemName:    strings.TrimSpace(in.ItemName),
			Description: in.Description,
			Quantity:    in.Quantity,
			UnitPrice:   price,
		}
		item.TotalPrice = item.LineTotal()
		total = total.Add(item.TotalPrice)
		items = append(items, item)
	}
	return items, total, nil
}

// checkAmount enforces amount > 0 and amount == sum of line totals.
func checkAmount(amount, itemsTotal decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperror.Validation("amount must be greater than zero")
	}
	if !amount.Equal(itemsTotal) {
		return apperror.Validation("amount %s does not match the item total %s", amount.StringFixed(2), itemsTotal.StringFixed(2))
	}
	return nil
}

func (s *purchaseRequestService) Create(ctx context.Context, actor model.Actor, dto CreatePurchaseRequestDTO) (*PurchaseRequestResponse, error) {
	if !s.policy.Allowed(actor.Role, policy.ActionCreateRequest, policy.AnyStatus, true) {
		return nil, apperror.PermissionDenied("role %q cannot create purchase requests", actor.Role)
	}
	if err := validateStruct(dto); err != nil {
		return nil, err
	}
	amount, err := parseMoney("amount", dto.Amount)
	if err != nil {
		return nil, err
	}
	items, itemsTotal, err := buildItems(dto.Items)
	if err != nil {
		return nil, err
	}
	if err := checkAmount(amount, itemsTotal); err != nil {
		return nil, err
	}

	req := &model.PurchaseRequest{
		ID:            uuid.New(),
		Title:         strings.TrimSpace(dto.Title),
		Description:   dto.Description,
		Amount:        amount,
		Status:        model.RequestStatusPending,
		RequesterID:   actor.UserID,
		ExtractedData: "{}",
		Items:         items,
	}
	req.Approvals = model.NewApprovalChain(req.ID)

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.requests.Create(txCtx, req); err != nil {
			return fmt.Errorf("failed to create purchase request: %w", err)
		}
		entry := auditEntry(actor, model.ActionCreatePurchaseRequest, req.ID.String(), req.Title, map[string]interface{}{
			"amount": amount.StringFixed(2),
			"items":  len(items),
		})
		return s.audits.Log(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"request_id": req.ID, "requester_id": actor.UserID}).Info("purchase request created")
	s.notifier.Publish(model.WorkflowEvent{
		Type:       model.EventRequestCreated,
		RequestID:  req.ID,
		Requester:  req.RequesterID,
		Status:     req.Status,
		ActorID:    actor.UserID,
		OccurredAt: time.Now(),
	})
	return s.reload(ctx, req.ID)
}

func (s *purchaseRequestService) reload(ctx context.Context, id uuid.UUID) (*PurchaseRequestResponse, error) {
	req, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "purchase request", id)
	}
	resp := toPurchaseRequestResponse(*req)
	return &resp, nil
}

func (s *purchaseRequestService) Get(ctx context.Context, id uuid.UUID, actor model.Actor) (*PurchaseRequestResponse, error) {
	req, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "purchase request", id)
	}
	if !s.policy.Allowed(actor.Role, policy.ActionViewRequest, req.Status, req.RequesterID == actor.UserID) {
		return nil, apperror.PermissionDenied("you cannot view this purchase request")
	}
	resp := toPurchaseRequestResponse(*req)
	return &resp, nil
}

// List returns the requests the actor may see: their own when the role views by ownership,
// plus every request in a status the role views regardless of owner.
func (s *purchaseRequestService) List(ctx context.Context, actor model.Actor, filter RequestFilter) ([]PurchaseRequestResponse, int64, error) {
	if filter.Status != "" && !isRequestStatus(filter.Status) {
		return nil, 0, apperror.Validation("unknown status %q", filter.Status)
	}
	params := pagination.Normalize(filter.Page, filter.Limit)

	repoFilter := repository.RequestListFilter{
		Statuses: s.policy.StatusesFor(actor.Role, policy.ActionViewRequest, requestStatuses...),
		Status:   filter.Status,
		Search:   filter.Search,
		Page:     params.Page,
		Limit:    params.Limit,
	}
	if s.policy.Allowed(actor.Role, policy.ActionViewRequest, policy.AnyStatus, true) {
		owner := actor.UserID
		repoFilter.OwnerID = &owner
	}

	requests, total, err := s.requests.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list purchase requests: %w", err)
	}
	res := make([]PurchaseRequestResponse, 0, len(requests))
	for _, r := range requests {
		res = append(res, toPurchaseRequestResponse(r))
	}
	return res, total, nil
}

func isRequestStatus(status string) bool {
	for _, st := range requestStatuses {
		if st == status {
			return true
		}
	}
	return false
}

func (s *purchaseRequestService) Update(ctx context.Context, id uuid.UUID, actor model.Actor, dto UpdatePurchaseRequestDTO) (*PurchaseRequestResponse, error) {
	if err := validateStruct(dto); err != nil {
		return nil, err
	}

	var (
		requester uuid.UUID
		restarted bool
	)
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, err := s.requests.FindForUpdate(txCtx, id)
		if err != nil {
			return notFoundOr(err, "purchase request", id)
		}
		if !s.policy.Allowed(actor.Role, policy.ActionUpdateRequest, req.Status, req.RequesterID == actor.UserID) {
			return apperror.PermissionDenied("only the requester can edit a %s or %s request", model.RequestStatusPending, model.RequestStatusRejected)
		}
		requester = req.RequesterID

		fields := map[string]interface{}{"updated_at": time.Now()}
		changes := map[string]interface{}{}
		if dto.Title != nil {
			fields["title"] = strings.TrimSpace(*dto.Title)
			changes["title"] = fields["title"]
		}
		if dto.Description != nil {
			fields["description"] = *dto.Description
			changes["description"] = *dto.Description
		}

		amount := req.Amount
		if dto.Amount != nil {
			if amount, err = parseMoney("amount", *dto.Amount); err != nil {
				return err
			}
			fields["amount"] = amount
			changes["amount"] = amount.StringFixed(2)
		}

		itemsTotal := decimal.Zero
		for _, it := range req.Items {
			itemsTotal = itemsTotal.Add(it.LineTotal())
		}
		var items []model.RequestItem
		if dto.Items != nil {
			if items, itemsTotal, err = buildItems(dto.Items); err != nil {
				return err
			}
			changes["items"] = len(items)
		}
		if err := checkAmount(amount, itemsTotal); err != nil {
			return err
		}

		if req.Status == model.RequestStatusRejected {
			fields["status"] = model.RequestStatusPending
			restarted = true
		}
		if err := s.requests.UpdateFields(txCtx, id, req.Status, fields); err != nil {
			if errors.Is(err, repository.ErrStaleState) {
				return apperror.InvalidTransition("purchase request changed concurrently")
			}
			return fmt.Errorf("failed to update purchase request: %w", err)
		}
		if items != nil {
			if err := s.requests.ReplaceItems(txCtx, id, items); err != nil {
				return fmt.Errorf("failed to replace items: %w", err)
			}
		}
		if restarted {
			if err := s.approvals.ResetChain(txCtx, id); err != nil {
				return fmt.Errorf("failed to reset approvals: %w", err)
			}
			changes["status"] = model.RequestStatusPending
		}

		entry := auditEntry(actor, model.ActionUpdatePurchaseRequest, id.String(), req.Title, changes)
		return s.audits.Log(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	if restarted {
		s.log.WithField("request_id", id).Info("rejected purchase request resubmitted")
	}
	s.notifier.Publish(model.WorkflowEvent{
		Type:       model.EventRequestUpdated,
		RequestID:  id,
		Requester:  requester,
		Status:     model.RequestStatusPending,
		ActorID:    actor.UserID,
		OccurredAt: time.Now(),
	})
	return s.reload(ctx, id)
}

func (s *purchaseRequestService) Delete(ctx context.Context, id uuid.UUID, actor model.Actor) error {
	var documents []string
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, err := s.requests.FindForUpdate(txCtx, id)
		if err != nil {
			return notFoundOr(err, "purchase request", id)
		}
		if !s.policy.Allowed(actor.Role, policy.ActionDeleteRequest, req.Status, req.RequesterID == actor.UserID) {
			return apperror.PermissionDenied("only the requester can delete a %s or %s request", model.RequestStatusPending, model.RequestStatusRejected)
		}
		if err := s.requests.Delete(txCtx, id); err != nil {
			return notFoundOr(err, "purchase request", id)
		}
		for _, p := range []string{req.ProformaPath, req.ReceiptPath} {
			if p != "" {
				documents = append(documents, p)
			}
		}
		entry := auditEntry(actor, model.ActionDeletePurchaseRequest, id.String(), req.Title, map[string]interface{}{
			"status": req.Status,
			"amount": req.Amount.StringFixed(2),
		})
		return s.audits.Log(txCtx, entry)
	})
	if err != nil {
		return err
	}

	for _, key := range documents {
		if err := s.store.Delete(ctx, key); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("failed to remove request document")
		}
	}
	return nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func documentKey(kind string, requestID uuid.UUID, filename string) string {
	name := unsafeFilenameChars.ReplaceAllString(filepath.Base(filename), "_")
	if name == "" || name == "." || name == "_" {
		name = "upload"
	}
	return fmt.Sprintf("%s/%s/%d_%s", kind, requestID, time.Now().UnixNano(), name)
}

// extract runs the processor and reports rejected files as validation errors.
func (s *purchaseRequestService) extract(ctx context.Context, filename string, data []byte) (document.Extraction, error) {
	ex, err := s.processor.Extract(ctx, filename, data)
	switch {
	case err == nil:
		return ex, nil
	case errors.Is(err, document.ErrEmptyFile), errors.Is(err, document.ErrTooLarge), errors.Is(err, document.ErrUnsupportedType):
		return document.Extraction{}, apperror.Validation("%v", err)
	}
	return document.Extraction{}, fmt.Errorf("failed to process document: %w", err)
}

func (s *purchaseRequestService) UploadProforma(ctx context.Context, id uuid.UUID, actor model.Actor, filename string, data []byte) (*PurchaseRequestResponse, error) {
	req, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "purchase request", id)
	}
	if !s.policy.Allowed(actor.Role, policy.ActionUploadProforma, req.Status, req.RequesterID == actor.UserID) {
		return nil, apperror.PermissionDenied("only the requester can upload a proforma while the request is editable")
	}

	ex, err := s.extract(ctx, filename, data)
	if err != nil {
		return nil, err
	}
	extracted, err := json.Marshal(ex.Fields())
	if err != nil {
		return nil, fmt.Errorf("failed to encode extracted data: %w", err)
	}

	key := documentKey("proformas", id, filename)
	if err := s.store.Save(ctx, key, data); err != nil {
		return nil, fmt.Errorf("failed to store proforma: %w", err)
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		err := s.requests.UpdateFields(txCtx, id, req.Status, map[string]interface{}{
			"proforma_path":  key,
			"extracted_data": string(extracted),
			"updated_at":     time.Now(),
		})
		if errors.Is(err, repository.ErrStaleState) {
			return apperror.InvalidTransition("purchase request changed while uploading")
		}
		if err != nil {
			return fmt.Errorf("failed to attach proforma: %w", err)
		}
		entry := auditEntry(actor, model.ActionUploadProforma, id.String(), req.Title, map[string]interface{}{
			"file":      filepath.Base(filename),
			"mime_type": ex.MIMEType,
			"extracted": ex.Fields(),
		})
		return s.audits.Log(txCtx, entry)
	})
	if err != nil {
		_ = s.store.Delete(ctx, key)
		return nil, err
	}

	if req.ProformaPath != "" {
		if err := s.store.Delete(ctx, req.ProformaPath); err != nil {
			s.log.WithError(err).WithField("key", req.ProformaPath).Warn("failed to remove previous proforma")
		}
	}
	return s.reload(ctx, id)
}

func (s *purchaseRequestService) UploadReceipt(ctx context.Context, id uuid.UUID, actor model.Actor, filename string, data []byte) (*ReceiptUploadResponse, error) {
	req, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "purchase request", id)
	}
	if !s.policy.Allowed(actor.Role, policy.ActionUploadReceipt, req.Status, req.RequesterID == actor.UserID) {
		return nil, apperror.PermissionDenied("receipts can only be uploaded for approved requests by their requester or finance")
	}

	ex, err := s.extract(ctx, filename, data)
	if err != nil {
		return nil, err
	}

	var check *document.ReceiptCheck
	if req.PurchaseOrder != nil {
		c := document.CheckReceipt(ex, req.PurchaseOrder.TotalAmount)
		check = &c
	}

	key := documentKey("receipts", id, filename)
	if err := s.store.Save(ctx, key, data); err != nil {
		return nil, fmt.Errorf("failed to store receipt: %w", err)
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		err := s.requests.UpdateFields(txCtx, id, req.Status, map[string]interface{}{
			"receipt_path": key,
			"updated_at":   time.Now(),
		})
		if errors.Is(err, repository.ErrStaleState) {
			return apperror.InvalidTransition("purchase request changed while uploading")
		}
		if err != nil {
			return fmt.Errorf("failed to attach receipt: %w", err)
		}
		details := map[string]interface{}{"file": filepath.Base(filename)}
		if check != nil {
			details["valid"] = check.Valid
			details["message"] = check.Message
		}
		return s.audits.Log(txCtx, auditEntry(actor, model.ActionUploadReceipt, id.String(), req.Title, details))
	})
	if err != nil {
		_ = s.store.Delete(ctx, key)
		return nil, err
	}

	if check != nil && !check.Valid {
		s.log.WithFields(logrus.Fields{"request_id": id, "message": check.Message}).Warn("receipt does not match purchase order")
	}
	resp, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ReceiptUploadResponse{Request: *resp, Validation: check}, nil
}
