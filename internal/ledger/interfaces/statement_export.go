package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"fee-ledger/internal/ledger/application"
	ledger "fee-ledger/internal/ledger/domain"
)

const dateLayout = "2006-01-02"

// StatementHeader carries presentation details that are not part of the
// ledger itself.
type StatementHeader struct {
	SchoolName  string
	StudentName string
	Currency    string
}

func (h StatementHeader) title() string {
	if h.SchoolName == "" {
		return "Fee Statement"
	}
	return h.SchoolName + " - Fee Statement"
}

func (h StatementHeader) student(stmt *application.Statement) string {
	if h.StudentName == "" {
		return stmt.StudentID
	}
	return fmt.Sprintf("%s (%s)", h.StudentName, stmt.StudentID)
}

func yearLabel(stmt *application.Statement) string {
	if stmt.AcademicYearID == "" {
		return "all"
	}
	return stmt.AcademicYearID
}

// BuildStatementPDF renders a student fee statement as PDF.
func BuildStatementPDF(stmt *application.Statement, header StatementHeader) ([]byte, error) {
	if stmt == nil {
		return nil, fmt.Errorf("statement export: nil statement")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, header.title())
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Student: %s", header.student(stmt)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Academic year: %s", yearLabel(stmt)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", stmt.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	columns := []struct {
		title string
		width float64
	}{
		{"Fee", 38}, {"Due", 24}, {"Principal", 24}, {"Discount", 22}, {"Final", 24}, {"Paid", 24}, {"Balance", 24},
	}
	for _, col := range columns {
		pdf.CellFormat(col.width, 6, col.title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, entry := range stmt.Entries {
		values := []string{
			entry.Entry.CatalogEntryID,
			entry.Entry.DueDate.Format(dateLayout),
			ledger.FormatMoney(entry.Entry.PrincipalAmount),
			ledger.FormatMoney(entry.Entry.DiscountAmount),
			ledger.FormatMoney(entry.Entry.FinalAmount),
			ledger.FormatMoney(entry.Paid),
			ledger.FormatMoney(entry.Balance),
		}
		for i, value := range values {
			align := "R"
			if i < 2 {
				align = "L"
			}
			pdf.CellFormat(columns[i].width, 6, value, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
		pdf.CellFormat(0, 5, fmt.Sprintf("  status: %s", entry.Status), "", 1, "L", false, 0, "")
		for _, payment := range entry.Payments {
			line := fmt.Sprintf("  %s  %s  %s %s", payment.PaymentDate.Format(dateLayout), payment.Method, header.Currency, ledger.FormatMoney(payment.Amount))
			if payment.ExternalRef != "" {
				line += "  ref " + payment.ExternalRef
			}
			pdf.CellFormat(0, 5, line, "", 1, "L", false, 0, "")
		}
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Total due (%s): %s", header.Currency, ledger.FormatMoney(stmt.TotalFinal)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total paid (%s): %s", header.Currency, ledger.FormatMoney(stmt.TotalPaid)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Outstanding (%s): %s", header.Currency, ledger.FormatMoney(stmt.TotalBalance)))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReceiptPDF renders a single payment receipt with the entry balance
// as it stands now.
func BuildReceiptPDF(entry application.EntryView, payment ledger.Payment, header StatementHeader) ([]byte, error) {
	if payment.ID == "" || payment.EntryID != entry.Entry.ID {
		return nil, fmt.Errorf("receipt export: payment %q does not belong to entry %q", payment.ID, entry.Entry.ID)
	}
	title := "Payment Receipt"
	if header.SchoolName != "" {
		title = header.SchoolName + " - " + title
	}
	student := entry.Entry.StudentID
	if header.StudentName != "" {
		student = fmt.Sprintf("%s (%s)", header.StudentName, entry.Entry.StudentID)
	}

	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetFont("Arial", "B", 12)
	pdf.AddPage()
	pdf.Cell(0, 8, title)
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 10)
	rows := [][2]string{
		{"Receipt", payment.ID},
		{"Reference", payment.ExternalRef},
		{"Student", student},
		{"Fee", entry.Entry.CatalogEntryID},
		{"Academic year", entry.Entry.AcademicYearID},
		{"Paid on", payment.PaymentDate.Format(dateLayout)},
		{"Method", string(payment.Method)},
		{"Amount", header.Currency + " " + ledger.FormatMoney(payment.Amount)},
		{"Recorded by", payment.RecordedBy},
		{"Balance", header.Currency + " " + ledger.FormatMoney(entry.Balance)},
		{"Status", string(entry.Status)},
	}
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		pdf.CellFormat(35, 6, row[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, row[1], "", 1, "L", false, 0, "")
	}
	if payment.Remarks != "" {
		pdf.Ln(2)
		pdf.MultiCell(0, 5, payment.Remarks, "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildStatementXLSX renders a student fee statement as a workbook with a
// summary, entries and payments sheet.
func BuildStatementXLSX(stmt *application.Statement, header StatementHeader) ([]byte, error) {
	if stmt == nil {
		return nil, fmt.Errorf("statement export: nil statement")
	}
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	entriesSheet := "entries"
	paymentsSheet := "payments"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(entriesSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(paymentsSheet); err != nil {
		return nil, err
	}

	summary := [][]any{
		{header.title()},
		{},
		{"Student", header.student(stmt)},
		{"Academic year", yearLabel(stmt)},
		{"Currency", header.Currency},
		{"Generated", stmt.GeneratedAt.Format(time.RFC3339)},
		{"Total due", ledger.FormatMoney(stmt.TotalFinal)},
		{"Total paid", ledger.FormatMoney(stmt.TotalPaid)},
		{"Outstanding", ledger.FormatMoney(stmt.TotalBalance)},
	}
	if err := writeRows(f, summarySheet, summary); err != nil {
		return nil, err
	}

	entries := [][]any{{"Entry", "Fee", "Academic year", "Due", "Principal", "Discount", "Final", "Paid", "Balance", "Status"}}
	payments := [][]any{{"Entry", "Payment", "Date", "Method", "Amount", "Reference", "Recorded by"}}
	for _, entry := range stmt.Entries {
		entries = append(entries, []any{
			entry.Entry.ID,
			entry.Entry.CatalogEntryID,
			entry.Entry.AcademicYearID,
			entry.Entry.DueDate.Format(dateLayout),
			ledger.FormatMoney(entry.Entry.PrincipalAmount),
			ledger.FormatMoney(entry.Entry.DiscountAmount),
			ledger.FormatMoney(entry.Entry.FinalAmount),
			ledger.FormatMoney(entry.Paid),
			ledger.FormatMoney(entry.Balance),
			string(entry.Status),
		})
		for _, payment := range entry.Payments {
			payments = append(payments, []any{
				entry.Entry.ID,
				payment.ID,
				payment.PaymentDate.Format(dateLayout),
				string(payment.Method),
				ledger.FormatMoney(payment.Amount),
				payment.ExternalRef,
				payment.RecordedBy,
			})
		}
	}
	if err := writeRows(f, entriesSheet, entries); err != nil {
		return nil, err
	}
	if err := writeRows(f, paymentsSheet, payments); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
