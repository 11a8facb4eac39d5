package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"p2p/internal/document"
	"p2p/internal/metrics"
	"p2p/internal/model"
	"p2p/internal/repository"
	"p2p/pkg/apperror"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PONumberFormat renders the day (YYYYMMDD) and the day's sequence value.
const PONumberFormat = "PO-%s-%04d"

// PurchaseOrderGenerator turns a finally approved request into its purchase order.
type PurchaseOrderGenerator interface {
	// Generate must run inside the approving transaction. Every failure is a GenerationFailed error.
	Generate(ctx context.Context, req *model.PurchaseRequest, actor model.Actor) (*model.PurchaseOrder, error)
	// Discard drops the rendered document of an order whose transaction did not commit.
	Discard(ctx context.Context, po *model.PurchaseOrder)
}

type purchaseOrderGenerator struct {
	orders   repository.PurchaseOrderRepository
	audits   repository.AuditRepository
	sequence repository.POSequence
	renderer document.Renderer
	now      func() time.Time
	log      *logrus.Entry
}

func NewPurchaseOrderGenerator(
	orders repository.PurchaseOrderRepository,
	audits repository.AuditRepository,
	sequence repository.POSequence,
	renderer document.Renderer,
	logger *logrus.Logger,
) PurchaseOrderGenerator {
	return &purchaseOrderGenerator{
		orders:   orders,
		audits:   audits,
		sequence: sequence,
		renderer: renderer,
		now:      time.Now,
		log:      componentLogger(logger, "po-generator"),
	}
}

func (g *purchaseOrderGenerator) fail(stage string, err error, format string, args ...interface{}) error {
	metrics.GenerationFailed(stage)
	g.log.WithError(err).WithField("stage", stage).Error(fmt.Sprintf(format, args...))
	return apperror.GenerationFailed(err, format, args...)
}

func (g *purchaseOrderGenerator) Generate(ctx context.Context, req *model.PurchaseRequest, actor model.Actor) (*model.PurchaseOrder, error) {
	started := g.now()
	defer metrics.ObserveGeneration(started)

	day := started.Format("20060102")
	seq, err := g.sequence.Next(ctx, day)
	if err != nil {
		return nil, g.fail(metrics.StageSequence, err, "failed to allocate purchase order number")
	}
	poNumber := fmt.Sprintf(PONumberFormat, day, seq)

	fields := extractedFields(req.ExtractedData)
	createdBy := actor.UserID
	po := &model.PurchaseOrder{
		ID:                uuid.New(),
		PONumber:          poNumber,
		PurchaseRequestID: req.ID,
		VendorName:        stringField(fields, "vendor_name"),
		VendorAddress:     stringField(fields, "vendor_address"),
		VendorEmail:       stringField(fields, "vendor_email"),
		VendorPhone:       stringField(fields, "vendor_phone"),
		TotalAmount:       req.Amount,
		Status:            model.POStatusGenerated,
		Notes:             fmt.Sprintf("Generated from purchase request: %s", req.Title),
		CreatedByID:       &createdBy,
	}

	doc := document.PurchaseOrderDocument{
		OrderID:       po.ID,
		PONumber:      po.PONumber,
		IssuedAt:      started,
		Status:        po.Status,
		RequestTitle:  req.Title,
		VendorName:    po.VendorName,
		VendorAddress: po.VendorAddress,
		VendorEmail:   po.VendorEmail,
		VendorPhone:   po.VendorPhone,
		Total:         po.TotalAmount,
		Notes:         po.Notes,
	}
	for _, it := range req.Items {
		doc.Items = append(doc.Items, document.LineItem{
			Name:        it.ItemName,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Total:       it.LineTotal(),
		})
	}

	handle, err := g.renderer.Render(ctx, doc)
	if err != nil {
		return nil, g.fail(metrics.StageRender, err, "failed to render purchase order %s", poNumber)
	}
	po.DocumentRef = handle

	if err := g.orders.Create(ctx, po); err != nil {
		g.Discard(ctx, po)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, g.fail(metrics.StagePersist, err, "purchase order already exists for request %s or number %s", req.ID, poNumber)
		}
		return nil, g.fail(metrics.StagePersist, err, "failed to save purchase order %s", poNumber)
	}

	entry := auditEntry(actor, model.ActionGeneratePurchaseOrder, po.ID.String(), po.PONumber, map[string]interface{}{
		"purchase_request_id": req.ID.String(),
		"total_amount":        po.TotalAmount.StringFixed(2),
	})
	if err := g.audits.Log(ctx, entry); err != nil {
		g.Discard(ctx, po)
		return nil, g.fail(metrics.StagePersist, err, "failed to record purchase order %s", poNumber)
	}

	g.log.WithFields(logrus.Fields{
		"po_number":  po.PONumber,
		"request_id": req.ID,
	}).Info("purchase order generated")
	return po, nil
}

func (g *purchaseOrderGenerator) Discard(ctx context.Context, po *model.PurchaseOrder) {
	if po == nil || po.DocumentRef == "" {
		return
	}
	if err := g.renderer.Discard(context.WithoutCancel(ctx), po.DocumentRef); err != nil {
		g.log.WithError(err).WithField("po_number", po.PONumber).Warn("failed to discard purchase order document")
	}
}
