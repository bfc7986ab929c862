// Package export renders engine output tables into spreadsheet documents.
// It holds no logic of its own beyond layout; every figure comes in already
// computed.
package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"taxfolio/internal/core"
)

const (
	sheetTaxes    = "Taxes"
	sheetExpenses = "Expenses & Net"
	sheetIncomes  = "Incomes"
	sheetSummary  = "Summary"

	sheetMonthly     = "Monthly Summary"
	sheetYearly      = "Yearly Summary"
	sheetAllIncomes  = "All Incomes"
	sheetAllExpenses = "All Expenses"
)

// EntryWorkbook builds the per-entry report: the tax breakdown, the
// expense/net table, the entry's incomes with their withheld-only taxes
// due, and a summary sheet with two pie charts.
func EntryWorkbook(e core.Entry, calc *core.Calculator) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetTaxes); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(core.BreakdownColumns))
	for i, c := range core.BreakdownColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetTaxes, "A1", &header); err != nil {
		return nil, fmt.Errorf("write taxes header: %w", err)
	}
	totalTax := decimal.Zero
	for i, row := range e.Rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := []interface{}{
			row.Sender,
			string(row.Type),
			row.Date.Format("2006-01-02"),
			row.Gross.InexactFloat64(),
			row.SETax.InexactFloat64(),
			row.FedTax.InexactFloat64(),
			row.StateTax.InexactFloat64(),
			row.TotalTax.InexactFloat64(),
			row.Net.InexactFloat64(),
		}
		if err := f.SetSheetRow(sheetTaxes, cell, &values); err != nil {
			return nil, fmt.Errorf("write taxes row %d: %w", i, err)
		}
		totalTax = totalTax.Add(row.TotalTax)
	}

	if _, err := f.NewSheet(sheetExpenses); err != nil {
		return nil, fmt.Errorf("create expenses sheet: %w", err)
	}
	expHeader := make([]interface{}, len(core.ExpenseColumns))
	for i, c := range core.ExpenseColumns {
		expHeader[i] = c
	}
	if err := f.SetSheetRow(sheetExpenses, "A1", &expHeader); err != nil {
		return nil, fmt.Errorf("write expenses header: %w", err)
	}
	totalExpense, finalNet := decimal.Zero, decimal.Zero
	for i, line := range e.Expenses {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := []interface{}{
			line.Sender,
			line.Name,
			line.Amount.InexactFloat64(),
			line.NetAfter.InexactFloat64(),
		}
		if err := f.SetSheetRow(sheetExpenses, cell, &values); err != nil {
			return nil, fmt.Errorf("write expense row %d: %w", i, err)
		}
		totalExpense = totalExpense.Add(line.Amount)
		finalNet = finalNet.Add(line.NetAfter)
	}

	if err := writeEntryIncomes(f, e, calc); err != nil {
		return nil, err
	}
	if err := writeEntrySummary(f, totalTax, totalExpense, finalNet); err != nil {
		return nil, err
	}
	return f, nil
}

func writeEntryIncomes(f *excelize.File, e core.Entry, calc *core.Calculator) error {
	if _, err := f.NewSheet(sheetIncomes); err != nil {
		return fmt.Errorf("create incomes sheet: %w", err)
	}
	header := []interface{}{"Date", "Sender", "Type", "Gross", "Taxes Due"}
	if err := f.SetSheetRow(sheetIncomes, "A1", &header); err != nil {
		return fmt.Errorf("write incomes header: %w", err)
	}
	for i, row := range e.Rows {
		due, err := calc.TaxesDue(row.Type, row.Gross, core.TaxDueWithheldOnly)
		if err != nil {
			return fmt.Errorf("taxes due for row %d: %w", i, err)
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := []interface{}{
			row.Date.Format("2006-01-02"),
			row.Sender,
			string(row.Type),
			row.Gross.InexactFloat64(),
			due.InexactFloat64(),
		}
		if err := f.SetSheetRow(sheetIncomes, cell, &values); err != nil {
			return fmt.Errorf("write incomes row %d: %w", i, err)
		}
	}
	return nil
}

func writeEntrySummary(f *excelize.File, totalTax, totalExpense, finalNet decimal.Decimal) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	rows := [][]interface{}{
		{"Category", "Value"},
		{"Total Tax", totalTax.InexactFloat64()},
		{"Total Expenses", totalExpense.InexactFloat64()},
		{"Final Net", finalNet.InexactFloat64()},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		values := row
		if err := f.SetSheetRow(sheetSummary, cell, &values); err != nil {
			return fmt.Errorf("write summary row %d: %w", i, err)
		}
	}

	series := []excelize.ChartSeries{{
		Name:       sheetSummary,
		Categories: fmt.Sprintf("%s!$A$2:$A$4", sheetSummary),
		Values:     fmt.Sprintf("%s!$B$2:$B$4", sheetSummary),
	}}
	charts := []struct {
		cell  string
		title string
	}{
		{"E2", "Tax Breakdown"},
		{"E20", "Overall Distribution"},
	}
	for _, c := range charts {
		err := f.AddChart(sheetSummary, c.cell, &excelize.Chart{
			Type:   excelize.Pie,
			Series: series,
			Title:  []excelize.RichTextRun{{Text: c.title}},
		})
		if err != nil {
			return fmt.Errorf("add %s chart: %w", c.title, err)
		}
	}
	return nil
}

// StatementsWorkbook builds the statements report: monthly and yearly
// summaries plus flat listings of every contributing income and expense
// line.
func StatementsWorkbook(st core.Statement) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetMonthly); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := []interface{}{"Month", "Total Income", "Total Expenses", "Total Taxes Due"}
	if err := f.SetSheetRow(sheetMonthly, "A1", &header); err != nil {
		return nil, fmt.Errorf("write monthly header: %w", err)
	}
	for i, b := range st.Monthly {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := []interface{}{
			b.Month.Format("2006-01"),
			b.TotalIncome.InexactFloat64(),
			b.TotalExpense.InexactFloat64(),
			b.TotalTaxDue.InexactFloat64(),
		}
		if err := f.SetSheetRow(sheetMonthly, cell, &values); err != nil {
			return nil, fmt.Errorf("write monthly row %d: %w", i, err)
		}
	}

	if _, err := f.NewSheet(sheetYearly); err != nil {
		return nil, fmt.Errorf("create yearly sheet: %w", err)
	}
	yearHeader := []interface{}{"Year", "Total Income", "Total Expenses", "Total Taxes Due"}
	if err := f.SetSheetRow(sheetYearly, "A1", &yearHeader); err != nil {
		return nil, fmt.Errorf("write yearly header: %w", err)
	}
	for i, b := range st.Yearly {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := []interface{}{
			b.Year,
			b.TotalIncome.InexactFloat64(),
			b.TotalExpense.InexactFloat64(),
			b.TotalTaxDue.InexactFloat64(),
		}
		if err := f.SetSheetRow(sheetYearly, cell, &values); err != nil {
			return nil, fmt.Errorf("write yearly row %d: %w", i, err)
		}
	}

	if err := writeStatementListings(f, st); err != nil {
		return nil, err
	}
	return f, nil
}

func writeStatementListings(f *excelize.File, st core.Statement) error {
	if _, err := f.NewSheet(sheetAllIncomes); err != nil {
		return fmt.Errorf("create incomes sheet: %w", err)
	}
	incHeader := []interface{}{"Date", "Sender", "Type", "Gross", "Taxes Due", "Entry ID"}
	if err := f.SetSheetRow(sheetAllIncomes, "A1", &incHeader); err != nil {
		return fmt.Errorf("write incomes header: %w", err)
	}
	rowNum := 2
	for _, b := range st.Monthly {
		for _, it := range b.Incomes {
			cell, _ := excelize.CoordinatesToCellName(1, rowNum)
			values := []interface{}{
				it.Date.Format("2006-01-02"),
				it.Sender,
				string(it.Type),
				it.Gross.InexactFloat64(),
				it.TaxesDue.InexactFloat64(),
				it.EntryID,
			}
			if err := f.SetSheetRow(sheetAllIncomes, cell, &values); err != nil {
				return fmt.Errorf("write income listing row %d: %w", rowNum, err)
			}
			rowNum++
		}
	}

	if _, err := f.NewSheet(sheetAllExpenses); err != nil {
		return fmt.Errorf("create expenses sheet: %w", err)
	}
	expHeader := []interface{}{"Date", "Sender", "Expense", "Amount", "Entry ID"}
	if err := f.SetSheetRow(sheetAllExpenses, "A1", &expHeader); err != nil {
		return fmt.Errorf("write expenses header: %w", err)
	}
	rowNum = 2
	for _, b := range st.Monthly {
		for _, ex := range b.Expenses {
			cell, _ := excelize.CoordinatesToCellName(1, rowNum)
			values := []interface{}{
				ex.Date.Format("2006-01-02"),
				ex.Sender,
				ex.Name,
				ex.Amount.InexactFloat64(),
				ex.EntryID,
			}
			if err := f.SetSheetRow(sheetAllExpenses, cell, &values); err != nil {
				return fmt.Errorf("write expense listing row %d: %w", rowNum, err)
			}
			rowNum++
		}
	}
	return nil
}

// WriteWorkbook serializes a workbook to w and releases its resources.
func WriteWorkbook(f *excelize.File, w io.Writer) error {
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// SaveWorkbook writes a workbook to path and releases its resources.
func SaveWorkbook(f *excelize.File, path string) error {
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
