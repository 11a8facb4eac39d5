package document

import (
	"github.com/shopspring/decimal"
)

// ReceiptTolerance is the largest accepted relative difference between receipt and order totals.
var ReceiptTolerance = decimal.NewFromFloat(0.01)

// ReceiptCheck compares an uploaded receipt with the purchase order it pays for.
type ReceiptCheck struct {
	Valid           bool             `json:"valid"`
	Message         string           `json:"message"`
	ReceiptAmount   *decimal.Decimal `json:"receipt_amount,omitempty"`
	POAmount        decimal.Decimal  `json:"po_amount"`
	VariancePercent *decimal.Decimal `json:"variance_percent,omitempty"`
}

// CheckReceipt validates the extracted receipt total against poAmount within ReceiptTolerance.
func CheckReceipt(ex Extraction, poAmount decimal.Decimal) ReceiptCheck {
	check := ReceiptCheck{POAmount: poAmount, ReceiptAmount: ex.TotalAmount}
	if ex.TotalAmount == nil {
		check.Message = "Could not extract amount from receipt"
		return check
	}

	var variance decimal.Decimal
	switch {
	case poAmount.IsZero() && ex.TotalAmount.IsZero():
		variance = decimal.Zero
	case poAmount.IsZero():
		variance = decimal.NewFromInt(1)
	default:
		variance = ex.TotalAmount.Sub(poAmount).Abs().Div(poAmount)
	}

	pct := variance.Mul(decimal.NewFromInt(100)).Round(2)
	check.VariancePercent = &pct
	if variance.LessThanOrEqual(ReceiptTolerance) {
		check.Valid = true
		check.Message = "Receipt matches PO"
		return check
	}
	check.Message = "Amount mismatch"
	return check
}
