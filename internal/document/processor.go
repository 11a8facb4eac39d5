package document

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DefaultMaxUploadSize caps uploaded proformas and receipts.
const DefaultMaxUploadSize = 10 << 20

var (
	ErrEmptyFile       = errors.New("document: file is empty")
	ErrTooLarge        = errors.New("document: file exceeds size limit")
	ErrUnsupportedType = errors.New("document: unsupported file type")
)

var allowedTypes = []string{"application/pdf", "image/jpeg", "image/png", "text/plain"}

// Extraction holds best-effort fields read from an uploaded document. Any field may be empty.
type Extraction struct {
	MIMEType      string
	VendorName    string
	VendorAddress string
	VendorEmail   string
	VendorPhone   string
	TotalAmount   *decimal.Decimal
}

// Fields renders the extraction as the loosely typed mapping stored on a request.
// Empty fields are left out.
func (e Extraction) Fields() map[string]interface{} {
	out := map[string]interface{}{}
	put := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	put("vendor_name", e.VendorName)
	put("vendor_address", e.VendorAddress)
	put("vendor_email", e.VendorEmail)
	put("vendor_phone", e.VendorPhone)
	if e.TotalAmount != nil {
		out["total_amount"] = e.TotalAmount.StringFixed(2)
	}
	return out
}

// Processor turns uploaded bytes into an Extraction.
type Processor interface {
	Extract(ctx context.Context, filename string, data []byte) (Extraction, error)
}

type textProcessor struct {
	maxSize int64
	logger  *logrus.Entry
}

// NewProcessor accepts PDF, JPEG, PNG and plain text up to maxSize bytes.
// Only plain text is scanned; other types yield an empty extraction since there is no OCR.
func NewProcessor(maxSize int64, logger *logrus.Logger) Processor {
	if maxSize <= 0 {
		maxSize = DefaultMaxUploadSize
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &textProcessor{maxSize: maxSize, logger: logger.WithField("component", "document_processor")}
}

var (
	vendorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?im)(?:Company|Vendor|Supplier):[ \t]*(.+)`),
		regexp.MustCompile(`(?m)^([A-Z][A-Za-z &]+(?:Ltd|Inc|Corp|LLC))`),
	}
	addressPattern = regexp.MustCompile(`(?im)Address:[ \t]*(.+)`)
	emailPattern   = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phonePattern   = regexp.MustCompile(`(?:\+?1[-.]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	amountPattern  = regexp.MustCompile(`(?i)(?:Total|Amount|Sum):\s*\$?\s*(\d+(?:,\d{3})*(?:\.\d{2})?)`)
)

func (p *textProcessor) Extract(ctx context.Context, filename string, data []byte) (Extraction, error) {
	if len(data) == 0 {
		return Extraction{}, ErrEmptyFile
	}
	if int64(len(data)) > p.maxSize {
		return Extraction{}, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(data), p.maxSize)
	}

	mt := mimetype.Detect(data)
	if !isAllowed(mt) {
		return Extraction{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
	}

	ex := Extraction{MIMEType: baseType(mt)}
	if !isA(mt, "text/plain") {
		p.logger.WithFields(logrus.Fields{"file": filename, "mime": ex.MIMEType}).Debug("no text layer to scan")
		return ex, nil
	}

	scan(string(data), &ex)
	p.logger.WithFields(logrus.Fields{
		"file":   filename,
		"vendor": ex.VendorName,
		"amount": ex.TotalAmount != nil,
	}).Info("document extracted")
	return ex, nil
}

func isAllowed(mt *mimetype.MIME) bool {
	for _, t := range allowedTypes {
		if isA(mt, t) {
			return true
		}
	}
	return false
}

// isA reports whether mt or one of its parents is t, so text/csv counts as text/plain.
func isA(mt *mimetype.MIME, t string) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(t) {
			return true
		}
	}
	return false
}

func baseType(mt *mimetype.MIME) string {
	s := mt.String()
	if i := strings.IndexByte(s, ';'); i >= 0 {
		return s[:i]
	}
	return s
}

func scan(text string, ex *Extraction) {
	for _, re := range vendorPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			ex.VendorName = strings.TrimSpace(m[1])
			break
		}
	}
	if m := addressPattern.FindStringSubmatch(text); m != nil {
		ex.VendorAddress = strings.TrimSpace(m[1])
	}
	ex.VendorEmail = emailPattern.FindString(text)
	ex.VendorPhone = phonePattern.FindString(text)
	ex.TotalAmount = findAmount(text)
}

func findAmount(text string) *decimal.Decimal {
	m := amountPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return nil
	}
	return &d
}
