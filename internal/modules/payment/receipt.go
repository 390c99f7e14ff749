// README: PDF payment receipt with a QR code of the transaction reference.
package payment

import (
	"bytes"
	"context"
	"fmt"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"

	"schoolride/internal/types"
)

// ReceiptPayload is the string encoded into the receipt QR code.
func ReceiptPayload(t *Transaction) string {
	return fmt.Sprintf("schoolride|%s|%s|%d", t.ID, t.BookingID, t.Paid())
}

// Receipt renders the transaction visible to callerID as a PDF.
func (s *Service) Receipt(ctx context.Context, id, callerID types.ID) ([]byte, error) {
	t, err := s.GetFor(ctx, id, callerID)
	if err != nil {
		return nil, err
	}
	if t.Paid() == 0 {
		return nil, ErrInvalidState
	}
	return RenderReceipt(t)
}

func RenderReceipt(t *Transaction) ([]byte, error) {
	qrPNG, err := qrcode.Encode(ReceiptPayload(t), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode receipt qr: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "School Ride Payment Receipt")
	pdf.Ln(14)

	pdf.SetFont("Arial", "", 12)
	lines := []string{
		fmt.Sprintf("Transaction: %s", t.ID),
		fmt.Sprintf("Booking: %s", t.BookingID),
		fmt.Sprintf("Status: %s", t.Status),
		fmt.Sprintf("Total: %s %d", t.Currency, t.Total),
		fmt.Sprintf("Paid: %s %d", t.Currency, t.Paid()),
		fmt.Sprintf("Outstanding: %s %d", t.Currency, t.Outstanding()),
	}
	if t.Outstanding() > 0 {
		lines = append(lines, fmt.Sprintf("Balance due: %s", types.FormatDay(t.BalanceDueDate)))
	}
	for _, l := range lines {
		pdf.Cell(0, 10, l)
		pdf.Ln(8)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 10, "Payments")
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 10)
	for _, r := range t.Records {
		if !r.Succeeded {
			continue
		}
		pdf.Cell(0, 8, fmt.Sprintf("%s  %s  %s %d  ref %s",
			r.CreatedAt.Format("2006-01-02 15:04"), r.Kind, t.Currency, r.Breakdown.Amount, r.GatewayRef))
		pdf.Ln(6)
	}

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 150, 30, 40, 40, false, opts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return buf.Bytes(), nil
}
