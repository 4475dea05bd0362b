package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRendersInHeaderOrder(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: PaymentHeaders,
		Rows: []map[string]string{
			{"recorded_at": "2026-03-02T09:00:00Z", "receipt_number": "RCP-2026-001", "transaction_id": "tx-1", "method": "cash", "amount": "5000", "status": "SUCCESS"},
			{"recorded_at": "2026-03-03T09:00:00Z", "transaction_id": "tx-2", "method": "card, visa", "amount": "10", "status": "FAILED"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"recorded_at,receipt_number,transaction_id,method,amount,status\n"+
			"2026-03-02T09:00:00Z,RCP-2026-001,tx-1,cash,5000,SUCCESS\n"+
			"2026-03-03T09:00:00Z,,tx-2,\"card, visa\",10,FAILED\n",
		string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestReceiptRendererProducesPDF(t *testing.T) {
	out, err := NewReceiptRenderer("Art Academy").Render(Receipt{
		ReceiptNumber: "RCP-2026-001",
		StudentID:     "stu-1",
		Amount:        "5000.00",
		Method:        "bank_transfer",
		TransactionID: "tx-1",
		RecordedAt:    time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
		TotalFee:      "15000.00",
		PaidAmount:    "5000.00",
		Remaining:     "10000.00",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestReceiptRendererRequiresNumber(t *testing.T) {
	_, err := NewReceiptRenderer("Art Academy").Render(Receipt{StudentID: "stu-1"})
	require.Error(t, err)
}
