package ledger

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/starford/tirelire/internal/models"
)

const (
	transactionsSheet = "Transactions"
	summarySheet      = "Summary"
)

// XLSXContentType is the media type of ExportXLSX output.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var transactionHeaders = []string{"Date", "Title", "Type", "Category", "Amount", "Payment method", "Tags", "Recurring"}

// ExportXLSX writes transactions between from and to (nil bounds are open)
// as a workbook with a transaction sheet and a summary sheet.
func (s *Service) ExportXLSX(ctx context.Context, w io.Writer, from, to *models.Date) error {
	rows, err := s.db.ListExpenses(ctx, models.ExpenseFilter{DateFrom: from, DateTo: to, Limit: -1})
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(transactionsSheet)
	if err != nil {
		return fmt.Errorf("ledger: create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("ledger: drop default sheet: %w", err)
	}

	sw := sheetWriter{f: f, sheet: transactionsSheet}
	sw.row(1, toAny(transactionHeaders)...)
	for i, e := range rows {
		recurring := ""
		if e.IsRecurring {
			recurring = string(e.RecurringFrequency)
			if recurring == "" {
				recurring = "yes"
			}
		}
		sw.row(i+2,
			e.Date.String(),
			e.Title,
			string(e.Type),
			e.CategoryName,
			e.Amount.InexactFloat64(),
			e.PaymentMethod,
			strings.Join(e.Tags, ", "),
			recurring,
		)
	}
	sw.widths(map[string]float64{"A": 12, "B": 30, "C": 10, "D": 18, "E": 12, "F": 16, "G": 24, "H": 12})

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("ledger: create sheet: %w", err)
	}
	sum := summarize(rows)
	ss := sheetWriter{f: f, sheet: summarySheet}
	ss.row(1, "Total expenses", sum.TotalExpenses.InexactFloat64())
	ss.row(2, "Total income", sum.TotalIncome.InexactFloat64())
	ss.row(3, "Net", sum.NetAmount.InexactFloat64())
	ss.row(4, "Expense count", sum.ExpenseCount)
	ss.row(5, "Income count", sum.IncomeCount)
	ss.widths(map[string]float64{"A": 18, "B": 14})

	if sw.err != nil {
		return sw.err
	}
	if ss.err != nil {
		return ss.err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("ledger: write workbook: %w", err)
	}
	return nil
}

// sheetWriter keeps the first error of a run of cell writes.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	err   error
}

func (w *sheetWriter) row(n int, values ...any) {
	for col, v := range values {
		if w.err != nil {
			return
		}
		var cell string
		cell, w.err = excelize.CoordinatesToCellName(col+1, n)
		if w.err == nil {
			w.err = w.f.SetCellValue(w.sheet, cell, v)
		}
	}
}

func (w *sheetWriter) widths(cols map[string]float64) {
	for col, width := range cols {
		if w.err != nil {
			return
		}
		w.err = w.f.SetColWidth(w.sheet, col, col, width)
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
