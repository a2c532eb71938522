package interfaces

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"fee-ledger/internal/ledger/application"
	ledger "fee-ledger/internal/ledger/domain"
)

func sampleStatement() *application.Statement {
	due := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	entry := ledger.Entry{
		ID:              "entry-1",
		StudentID:       "stu-001",
		CatalogEntryID:  "fee-tuition",
		AcademicYearID:  "2026",
		PrincipalAmount: decimal.RequireFromString("1000"),
		DiscountAmount:  decimal.RequireFromString("100"),
		FinalAmount:     decimal.RequireFromString("900"),
		DueDate:         due,
		Status:          ledger.StatusPartial,
	}
	payment := ledger.Payment{
		ID:          "pay-1",
		EntryID:     "entry-1",
		Amount:      decimal.RequireFromString("400"),
		Method:      ledger.MethodMobileMoney,
		ExternalRef: "MM-7781",
		PaymentDate: due.AddDate(0, 0, -3),
		RecordedBy:  "bursar-01",
	}
	return &application.Statement{
		StudentID:      "stu-001",
		AcademicYearID: "2026",
		Entries: []application.EntryDetail{{
			EntryView: application.EntryView{
				Entry:   entry,
				Paid:    payment.Amount,
				Balance: decimal.RequireFromString("500"),
				Status:  ledger.StatusPartial,
			},
			Payments: []ledger.Payment{payment},
		}},
		TotalFinal:   decimal.RequireFromString("900"),
		TotalPaid:    decimal.RequireFromString("400"),
		TotalBalance: decimal.RequireFromString("500"),
		GeneratedAt:  due.AddDate(0, 1, 0),
	}
}

func TestBuildStatementPDF(t *testing.T) {
	data, err := BuildStatementPDF(sampleStatement(), StatementHeader{SchoolName: "Hillside Primary", Currency: "UGX"})
	if err != nil {
		t.Fatalf("build pdf: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("output is not a PDF")
	}
	if _, err := BuildStatementPDF(nil, StatementHeader{}); err == nil {
		t.Fatalf("expected error for nil statement")
	}
}

func TestBuildStatementXLSX(t *testing.T) {
	data, err := BuildStatementXLSX(sampleStatement(), StatementHeader{StudentName: "Ada Namutebi", Currency: "UGX"})
	if err != nil {
		t.Fatalf("build xlsx: %v", err)
	}
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer book.Close()

	student, err := book.GetCellValue("summary", "B3")
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if student != "Ada Namutebi (stu-001)" {
		t.Fatalf("student cell: %q", student)
	}
	outstanding, _ := book.GetCellValue("summary", "B9")
	if outstanding != "500.00" {
		t.Fatalf("outstanding cell: %q", outstanding)
	}
	status, _ := book.GetCellValue("entries", "J2")
	if status != "partial" {
		t.Fatalf("status cell: %q", status)
	}
	ref, _ := book.GetCellValue("payments", "F2")
	if ref != "MM-7781" {
		t.Fatalf("reference cell: %q", ref)
	}
}

func TestBuildReceiptPDF(t *testing.T) {
	stmt := sampleStatement()
	detail := stmt.Entries[0]
	data, err := BuildReceiptPDF(detail.EntryView, detail.Payments[0], StatementHeader{SchoolName: "Hillside Primary", Currency: "UGX"})
	if err != nil {
		t.Fatalf("build receipt: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("output is not a PDF")
	}

	foreign := detail.Payments[0]
	foreign.EntryID = "entry-2"
	if _, err := BuildReceiptPDF(detail.EntryView, foreign, StatementHeader{}); err == nil {
		t.Fatalf("expected error for payment of another entry")
	}
}
