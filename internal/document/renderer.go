package document

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItem is one row of a rendered purchase order.
type LineItem struct {
	Name        string
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
}

// PurchaseOrderDocument is everything the renderer needs; it never touches the database.
type PurchaseOrderDocument struct {
	OrderID       uuid.UUID
	PONumber      string
	IssuedAt      time.Time
	Status        string
	RequestTitle  string
	VendorName    string
	VendorAddress string
	VendorEmail   string
	VendorPhone   string
	Items         []LineItem
	Total         decimal.Decimal
	Notes         string
}

// Renderer produces a stored document and returns its handle.
type Renderer interface {
	Render(ctx context.Context, doc PurchaseOrderDocument) (string, error)
	// Discard removes a rendered document whose purchase order was never committed.
	Discard(ctx context.Context, handle string) error
}

type pdfRenderer struct {
	store   Store
	company string
}

// NewPDFRenderer renders A4 purchase orders and keeps them in store.
func NewPDFRenderer(store Store, company string) Renderer {
	return &pdfRenderer{store: store, company: company}
}

// HandleFor is the storage key of a purchase order document. Numbers released by a
// rolled back generation are handed out again, so the key is scoped by the order id.
func HandleFor(orderID uuid.UUID, poNumber string) string {
	return "purchase_orders/" + orderID.String() + "/" + poNumber + ".pdf"
}

func (r *pdfRenderer) Render(ctx context.Context, doc PurchaseOrderDocument) (string, error) {
	if doc.OrderID == uuid.Nil {
		return "", fmt.Errorf("render %s: missing order id", doc.PONumber)
	}
	data, err := r.pdf(doc)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", doc.PONumber, err)
	}
	handle := HandleFor(doc.OrderID, doc.PONumber)
	if err := r.store.Save(ctx, handle, data); err != nil {
		return "", fmt.Errorf("store %s: %w", doc.PONumber, err)
	}
	return handle, nil
}

func (r *pdfRenderer) Discard(ctx context.Context, handle string) error {
	return r.store.Delete(ctx, handle)
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func (r *pdfRenderer) pdf(doc PurchaseOrderDocument) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Purchase Order "+doc.PONumber, true)
	pdf.SetCreator(r.company, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetTextColor(31, 71, 136)
	pdf.CellFormat(0, 12, "PURCHASE ORDER", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(90, 90, 90)
	pdf.CellFormat(0, 6, tr(r.company), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetTextColor(0, 0, 0)
	header := [][2]string{
		{"PO Number:", doc.PONumber},
		{"Date:", doc.IssuedAt.Format("2006-01-02")},
		{"Status:", doc.Status},
		{"Request:", doc.RequestTitle},
	}
	for _, row := range header {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(40, 7, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 7, tr(row[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	if doc.VendorName != "" {
		pdf.SetFont("Helvetica", "B", 13)
		pdf.CellFormat(0, 8, "Vendor Information", "", 1, "L", false, 0, "")
		vendor := [][2]string{
			{"Name:", doc.VendorName},
			{"Email:", orNA(doc.VendorEmail)},
			{"Phone:", orNA(doc.VendorPhone)},
			{"Address:", orNA(doc.VendorAddress)},
		}
		for _, row := range vendor {
			pdf.SetFont("Helvetica", "B", 10)
			pdf.CellFormat(30, 6, row[0], "", 0, "L", false, 0, "")
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 6, tr(row[1]), "", "L", false)
		}
		pdf.Ln(4)
	}

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, "Items", "", 1, "L", false, 0, "")

	widths := []float64{45, 60, 15, 30, 30}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(128, 128, 128)
	pdf.SetTextColor(245, 245, 245)
	for i, h := range []string{"Item", "Description", "Qty", "Unit Price", "Total"} {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetFillColor(245, 245, 220)
	pdf.SetTextColor(0, 0, 0)
	for _, it := range doc.Items {
		desc := it.Description
		if r := []rune(desc); len(r) > 50 {
			desc = string(r[:50])
		}
		pdf.CellFormat(widths[0], 7, tr(it.Name), "1", 0, "L", true, 0, "")
		pdf.CellFormat(widths[1], 7, tr(desc), "1", 0, "L", true, 0, "")
		pdf.CellFormat(widths[2], 7, fmt.Sprintf("%d", it.Quantity), "1", 0, "C", true, 0, "")
		pdf.CellFormat(widths[3], 7, money(it.UnitPrice), "1", 0, "R", true, 0, "")
		pdf.CellFormat(widths[4], 7, money(it.Total), "1", 0, "R", true, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetTextColor(31, 71, 136)
	pdf.CellFormat(0, 8, "Total Amount: "+money(doc.Total), "", 1, "R", false, 0, "")

	if doc.Notes != "" {
		pdf.Ln(4)
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 7, "Notes", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, tr(doc.Notes), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
