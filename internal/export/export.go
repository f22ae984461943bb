// Package export renders a user's expenses as flat files.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"expense-ledger/internal/models"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// Header is the fixed column order of every export.
var Header = []string{"Title", "Amount", "Category", "Merchant", "Date"}

const sheetName = "Expenses"

// Record returns the export columns for one expense.
func Record(e models.Expense) []string {
	return []string{
		e.Title,
		strconv.FormatFloat(e.Amount, 'f', -1, 64),
		deref(e.Category),
		deref(e.Merchant),
		e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// WriteCSV writes a header row followed by one row per expense, in the given order.
func WriteCSV(w io.Writer, expenses []models.Expense) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	for _, e := range expenses {
		if err := cw.Write(Record(e)); err != nil {
			return errors.Wrap(err, "write csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}

// WriteXLSX writes the same rows as WriteCSV into a single-sheet workbook.
// Amounts are stored as numbers.
func WriteXLSX(w io.Writer, expenses []models.Expense) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return errors.Wrap(err, "name sheet")
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return errors.Wrap(err, "write xlsx header")
	}

	for i, e := range expenses {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.Wrap(err, "xlsx cell")
		}
		rec := Record(e)
		row := []interface{}{rec[0], e.Amount, rec[2], rec[3], rec[4]}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return errors.Wrap(err, "write xlsx row")
		}
	}

	f.SetColWidth(sheetName, "A", "A", 30)
	f.SetColWidth(sheetName, "C", "D", 18)
	f.SetColWidth(sheetName, "E", "E", 22)

	return errors.Wrap(f.Write(w), "write xlsx")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
