package core

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Column contracts shared with the export sink. Order matters; do not
// reorder without coordinating with every consumer of the tables.
var (
	BreakdownColumns = []string{"Sender", "Type", "Date", "Gross", "SE Tax", "Fed Tax", "State Tax", "Total Tax", "Net"}
	ExpenseColumns   = []string{"Sender", "Expense", "Amount", "Net After"}
)

const dateLayout = "2006-01-02"

// EncodeBreakdownCSV serializes breakdown rows for persistence or export.
// Decimal precision and ISO dates round-trip exactly through
// DecodeBreakdownCSV.
func EncodeBreakdownCSV(rows []BreakdownRow) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(BreakdownColumns); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.Sender,
			string(r.Type),
			r.Date.Format(dateLayout),
			FormatAmount(r.Gross),
			FormatAmount(r.SETax),
			FormatAmount(r.FedTax),
			FormatAmount(r.StateTax),
			FormatAmount(r.TotalTax),
			FormatAmount(r.Net),
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// DecodeBreakdownCSV parses a breakdown table produced by
// EncodeBreakdownCSV. An empty input decodes to no rows.
func DecodeBreakdownCSV(data string) ([]BreakdownRow, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	r := csv.NewReader(strings.NewReader(data))
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) != len(BreakdownColumns) {
		return nil, fmt.Errorf("breakdown table has %d columns, want %d", len(header), len(BreakdownColumns))
	}

	var rows []BreakdownRow
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		date, err := time.Parse(dateLayout, record[2])
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", record[2], err)
		}
		cells := make([]decimal.Decimal, 6)
		for i, raw := range record[3:] {
			d, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("parse %s %q: %w", BreakdownColumns[3+i], raw, err)
			}
			cells[i] = d
		}
		rows = append(rows, BreakdownRow{
			Sender:   record[0],
			Type:     IncomeType(record[1]),
			Date:     date,
			Gross:    cells[0],
			SETax:    cells[1],
			FedTax:   cells[2],
			StateTax: cells[3],
			TotalTax: cells[4],
			Net:      cells[5],
		})
	}
	return rows, nil
}

// EncodeExpensesCSV serializes allocated expense lines.
func EncodeExpensesCSV(lines []AllocatedExpenseLine) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(ExpenseColumns); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	for _, l := range lines {
		record := []string{
			l.Sender,
			l.Name,
			FormatAmount(l.Amount),
			FormatAmount(l.NetAfter),
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// DecodeExpensesCSV parses an expense/net table. Rows with a blank name or
// an unparsable amount are dropped, matching the boundary validation rule;
// a bad net-after cell still fails because it is engine output, not user
// input.
func DecodeExpensesCSV(data string) ([]AllocatedExpenseLine, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	r := csv.NewReader(strings.NewReader(data))
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) != len(ExpenseColumns) {
		return nil, fmt.Errorf("expense table has %d columns, want %d", len(header), len(ExpenseColumns))
	}

	var lines []AllocatedExpenseLine
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line, ok := ParseExpenseLine(record[0], record[1], record[2])
		if !ok {
			continue
		}
		netAfter, err := decimal.NewFromString(record[3])
		if err != nil {
			return nil, fmt.Errorf("parse net after %q: %w", record[3], err)
		}
		lines = append(lines, AllocatedExpenseLine{ExpenseLine: line, NetAfter: netAfter})
	}
	return lines, nil
}
