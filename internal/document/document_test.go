package document

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const proformaText = `ACME Supplies Ltd
Vendor: ACME Supplies Ltd
Address: 12 Market Street, Springfield
Contact: sales@acme.example.com
Phone: 555-123-4567

Item        Qty   Price
Paper       10    300.00
Toner       10    200.00

Total: $5,000.00
`

func TestExtractPlainText(t *testing.T) {
	p := NewProcessor(0, logrus.New())

	ex, err := p.Extract(context.Background(), "proforma.txt", []byte(proformaText))
	require.NoError(t, err)

	assert.Equal(t, "text/plain", ex.MIMEType)
	assert.Equal(t, "ACME Supplies Ltd", ex.VendorName)
	assert.Equal(t, "12 Market Street, Springfield", ex.VendorAddress)
	assert.Equal(t, "sales@acme.example.com", ex.VendorEmail)
	assert.Equal(t, "555-123-4567", ex.VendorPhone)
	require.NotNil(t, ex.TotalAmount)
	assert.True(t, ex.TotalAmount.Equal(decimal.RequireFromString("5000.00")))

	fields := ex.Fields()
	assert.Equal(t, "ACME Supplies Ltd", fields["vendor_name"])
	assert.Equal(t, "5000.00", fields["total_amount"])
}

func TestExtractPartialText(t *testing.T) {
	p := NewProcessor(0, nil)
	ex, err := p.Extract(context.Background(), "note.txt", []byte("thanks for the order"))
	require.NoError(t, err)
	assert.Empty(t, ex.VendorName)
	assert.Nil(t, ex.TotalAmount)
	assert.Empty(t, ex.Fields())
}

func TestExtractBinaryFormatsReturnEmpty(t *testing.T) {
	p := NewProcessor(0, nil)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

	ex, err := p.Extract(context.Background(), "scan.png", png)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ex.MIMEType)
	assert.Empty(t, ex.Fields())
}

func TestExtractRejectsBadUploads(t *testing.T) {
	p := NewProcessor(16, nil)
	ctx := context.Background()

	_, err := p.Extract(ctx, "empty.txt", nil)
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = p.Extract(ctx, "big.txt", bytes.Repeat([]byte("a"), 17))
	assert.ErrorIs(t, err, ErrTooLarge)

	zip := []byte("PK\x03\x04\x14\x00\x00\x00")
	_, err = p.Extract(ctx, "x.zip", zip)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestCheckReceipt(t *testing.T) {
	po := decimal.RequireFromString("5000.00")
	amount := func(s string) Extraction {
		d := decimal.RequireFromString(s)
		return Extraction{TotalAmount: &d}
	}

	ok := CheckReceipt(amount("5040.00"), po)
	assert.True(t, ok.Valid)
	assert.Equal(t, "Receipt matches PO", ok.Message)

	bad := CheckReceipt(amount("5100.00"), po)
	assert.False(t, bad.Valid)
	assert.Equal(t, "Amount mismatch", bad.Message)
	require.NotNil(t, bad.VariancePercent)
	assert.True(t, bad.VariancePercent.Equal(decimal.NewFromInt(2)))

	missing := CheckReceipt(Extraction{}, po)
	assert.False(t, missing.Valid)
	assert.Equal(t, "Could not extract amount from receipt", missing.Message)
}

func TestLocalStoreRoundTripAndEscape(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "a/b.txt", []byte("hello")))
	rc, err := store.Open(ctx, "a/b.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, store.Delete(ctx, "a/b.txt"))
	require.NoError(t, store.Delete(ctx, "a/b.txt"))
	_, err = store.Open(ctx, "a/b.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	// Traversal is clamped inside the root.
	require.NoError(t, store.Save(ctx, "../../escape.txt", []byte("x")))
	rc, err = store.Open(ctx, "escape.txt")
	require.NoError(t, err)
	require.NoError(t, rc.Close())
}

func TestPDFRendererStoresDocument(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	r := NewPDFRenderer(store, "P2P Procurement")
	ctx := context.Background()

	orderID := uuid.New()
	handle, err := r.Render(ctx, PurchaseOrderDocument{
		OrderID:    orderID,
		PONumber:   "PO-20260301-0001",
		IssuedAt:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Status:     "GENERATED",
		VendorName: "ACME Supplies Ltd",
		Items: []LineItem{
			{Name: "Paper", Quantity: 10, UnitPrice: decimal.NewFromInt(300), Total: decimal.NewFromInt(3000)},
			{Name: "Toner", Quantity: 10, UnitPrice: decimal.NewFromInt(200), Total: decimal.NewFromInt(2000)},
		},
		Total: decimal.NewFromInt(5000),
		Notes: "Deliver to floor 3",
	})
	require.NoError(t, err)
	assert.Equal(t, "purchase_orders/"+orderID.String()+"/PO-20260301-0001.pdf", handle)

	rc, err := store.Open(ctx, handle)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	require.NoError(t, r.Discard(ctx, handle))
	_, err = store.Open(ctx, handle)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Render(ctx, PurchaseOrderDocument{PONumber: "PO-20260301-0002", Total: decimal.Zero})
	assert.Error(t, err, "documents are keyed by order id")
}
