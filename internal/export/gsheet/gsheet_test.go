package gsheet

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"taxfolio/internal/core"
)

func TestStatementRowsLayout(t *testing.T) {
	st := core.Statement{
		Monthly: []core.MonthBucket{
			{
				Month:        time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
				TotalIncome:  decimal.RequireFromString("5000.00"),
				TotalExpense: decimal.RequireFromString("200.00"),
				TotalTaxDue:  decimal.RequireFromString("50.00"),
			},
			{
				Month:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
				TotalIncome:  decimal.RequireFromString("7000.00"),
				TotalExpense: decimal.RequireFromString("0.00"),
				TotalTaxDue:  decimal.RequireFromString("0.00"),
			},
		},
		Yearly: []core.YearBucket{{
			Year:         2024,
			TotalIncome:  decimal.RequireFromString("12000.00"),
			TotalExpense: decimal.RequireFromString("200.00"),
			TotalTaxDue:  decimal.RequireFromString("50.00"),
		}},
	}

	rows := statementRows(st)

	// header + 2 months + spacer + header + 1 year
	if len(rows) != 6 {
		t.Fatalf("got %d rows, want 6", len(rows))
	}
	if rows[0][0] != "Month" {
		t.Errorf("rows[0][0] = %v", rows[0][0])
	}
	if rows[1][0] != "2024-02" {
		t.Errorf("rows[1][0] = %v", rows[1][0])
	}
	if rows[2][1] != 7000.0 {
		t.Errorf("rows[2][1] = %v", rows[2][1])
	}
	if rows[3][0] != "" {
		t.Errorf("spacer row = %v", rows[3])
	}
	if rows[4][0] != "Year" {
		t.Errorf("rows[4][0] = %v", rows[4][0])
	}
	if rows[5][0] != 2024 {
		t.Errorf("rows[5][0] = %v", rows[5][0])
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), "   ", "Statements"); err == nil {
		t.Fatal("New should fail without a spreadsheet id")
	}
}
