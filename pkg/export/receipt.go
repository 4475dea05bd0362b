package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Receipt is the printable content of a successful fee payment.
type Receipt struct {
	AcademyName   string
	ReceiptNumber string
	StudentID     string
	Amount        string
	Method        string
	TransactionID string
	RecordedAt    time.Time
	TotalFee      string
	PaidAmount    string
	Remaining     string
}

// ReceiptRenderer renders payment receipts as single-page A5 PDFs.
type ReceiptRenderer struct {
	academyName string
}

// NewReceiptRenderer constructs a renderer. academyName is printed when the receipt carries none.
func NewReceiptRenderer(academyName string) *ReceiptRenderer {
	return &ReceiptRenderer{academyName: academyName}
}

// Render creates the receipt document.
func (r *ReceiptRenderer) Render(receipt Receipt) ([]byte, error) {
	if receipt.ReceiptNumber == "" {
		return nil, fmt.Errorf("receipt requires a receipt number")
	}
	name := receipt.AcademyName
	if name == "" {
		name = r.academyName
	}

	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(12, 15, 12)
	pdf.SetTitle("Receipt "+receipt.ReceiptNumber, false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, name, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, "Payment receipt", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	rows := [][2]string{
		{"Receipt no.", receipt.ReceiptNumber},
		{"Student", receipt.StudentID},
		{"Date", receipt.RecordedAt.Format("2006-01-02 15:04 MST")},
		{"Method", receipt.Method},
		{"Transaction", receipt.TransactionID},
		{"Amount paid", receipt.Amount},
	}
	writeRows(pdf, rows)

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 7, "Current balance", "B", 1, "", false, 0, "")
	pdf.Ln(2)
	writeRows(pdf, [][2]string{
		{"Total fee", receipt.TotalFee},
		{"Paid to date", receipt.PaidAmount},
		{"Remaining", receipt.Remaining},
	})

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(pdf *gofpdf.Fpdf, rows [][2]string) {
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(40, 7, row[0], "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 7, row[1], "", 1, "", false, 0, "")
	}
}
