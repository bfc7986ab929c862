package core

import (
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func sampleEntries(t *testing.T) []Entry {
	t.Helper()
	calc := NewCalculator(DefaultTaxConfig())

	bd, err := calc.BuildBreakdown([]IncomeRecord{
		{Sender: "Acme", Gross: decimal.NewFromInt(10000), Type: SelfEmployed, Date: testDate(2024, 3, 15)},
		{Sender: "Day Job", Gross: decimal.NewFromInt(4000), Type: Wage, Date: testDate(2024, 4, 2)},
	})
	if err != nil {
		t.Fatalf("BuildBreakdown: %v", err)
	}
	alloc, err := Allocate([]ExpenseLine{
		{Sender: "Acme", Name: "Laptop", Amount: decimal.NewFromInt(1000)},
	}, bd.OriginalNets(), CumulativeTotal)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	return []Entry{{
		ID:        1,
		Title:     "March checks",
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Rows:      bd.Rows,
		Expenses:  alloc.Lines,
	}}
}

func TestBuildStatementMonthlyBuckets(t *testing.T) {
	calc := NewCalculator(DefaultTaxConfig())
	st, err := calc.BuildStatement(sampleEntries(t), nil, TaxDueFullSelfEmployed)
	if err != nil {
		t.Fatalf("BuildStatement: %v", err)
	}

	if len(st.Monthly) != 2 {
		t.Fatalf("expected 2 month buckets, got %d", len(st.Monthly))
	}

	march := st.Monthly[0]
	if !march.Month.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("first bucket month = %v, want 2024-03", march.Month)
	}
	if march.TotalIncome.StringFixed(2) != "10000.00" {
		t.Fatalf("march income = %s", march.TotalIncome)
	}
	// Expense joins the Acme income's March date, not the entry save time.
	if march.TotalExpense.StringFixed(2) != "1000.00" {
		t.Fatalf("march expense = %s, want 1000.00", march.TotalExpense)
	}
	// Full liability on self-employed income: 1530 + 1000 + 400.
	if march.TotalTaxDue.StringFixed(2) != "2930.00" {
		t.Fatalf("march tax due = %s, want 2930.00", march.TotalTaxDue)
	}

	april := st.Monthly[1]
	if april.TotalIncome.StringFixed(2) != "4000.00" {
		t.Fatalf("april income = %s", april.TotalIncome)
	}
	if !april.TotalTaxDue.IsZero() {
		t.Fatalf("april tax due = %s, want 0 under full-SE policy", april.TotalTaxDue)
	}
}

func TestBuildStatementWithheldOnlyPolicy(t *testing.T) {
	calc := NewCalculator(DefaultTaxConfig())
	st, err := calc.BuildStatement(sampleEntries(t), nil, TaxDueWithheldOnly)
	if err != nil {
		t.Fatalf("BuildStatement: %v", err)
	}

	march, april := st.Monthly[0], st.Monthly[1]
	if !march.TotalTaxDue.IsZero() {
		t.Fatalf("march tax due = %s, want 0 for self-employed under withheld-only", march.TotalTaxDue)
	}
	// Wage income of 4000: federal 400 + state 160.
	if april.TotalTaxDue.StringFixed(2) != "560.00" {
		t.Fatalf("april tax due = %s, want 560.00", april.TotalTaxDue)
	}
}

func TestBuildStatementExpenseDateFallback(t *testing.T) {
	calc := NewCalculator(DefaultTaxConfig())
	entries := sampleEntries(t)
	// Orphan the expense: rename its sender away from any income row.
	entries[0].Expenses[0].Sender = "Gone LLC"

	st, err := calc.BuildStatement(entries, nil, TaxDueFullSelfEmployed)
	if err != nil {
		t.Fatalf("BuildStatement: %v", err)
	}
	var may *MonthBucket
	for i := range st.Monthly {
		if st.Monthly[i].Month.Month() == time.May {
			may = &st.Monthly[i]
		}
	}
	if may == nil {
		t.Fatalf("expected the orphaned expense to land in the entry's save month")
	}
	if may.TotalExpense.StringFixed(2) != "1000.00" {
		t.Fatalf("may expense = %s, want 1000.00", may.TotalExpense)
	}
}

func TestBuildStatementTypeFilter(t *testing.T) {
	calc := NewCalculator(DefaultTaxConfig())
	filter := Wage
	st, err := calc.BuildStatement(sampleEntries(t), &filter, TaxDueFullSelfEmployed)
	if err != nil {
		t.Fatalf("BuildStatement: %v", err)
	}
	for _, b := range st.Monthly {
		for _, it := range b.Incomes {
			if it.Type != Wage {
				t.Fatalf("income item of type %s survived the Wage filter", it.Type)
			}
		}
	}
	// Expense items are never filtered by income type.
	total := decimal.Zero
	for _, b := range st.Monthly {
		total = total.Add(b.TotalExpense)
	}
	if total.StringFixed(2) != "1000.00" {
		t.Fatalf("filtered statement lost expenses: total = %s", total)
	}
}

func TestBuildStatementYearlyIndependent(t *testing.T) {
	calc := NewCalculator(DefaultTaxConfig())
	st, err := calc.BuildStatement(sampleEntries(t), nil, TaxDueFullSelfEmployed)
	if err != nil {
		t.Fatalf("BuildStatement: %v", err)
	}
	if len(st.Yearly) != 1 {
		t.Fatalf("expected 1 year bucket, got %d", len(st.Yearly))
	}
	y := st.Yearly[0]
	if y.Year != 2024 {
		t.Fatalf("year = %d", y.Year)
	}
	if y.TotalIncome.StringFixed(2) != "14000.00" ||
		y.TotalExpense.StringFixed(2) != "1000.00" ||
		y.TotalTaxDue.StringFixed(2) != "2930.00" {
		t.Fatalf("yearly bucket %+v has wrong totals", y)
	}
}

func TestBuildStatementIdempotent(t *testing.T) {
	calc := NewCalculator(DefaultTaxConfig())
	entries := sampleEntries(t)

	first, err := calc.BuildStatement(entries, nil, TaxDueFullSelfEmployed)
	if err != nil {
		t.Fatalf("BuildStatement: %v", err)
	}
	second, err := calc.BuildStatement(entries, nil, TaxDueFullSelfEmployed)
	if err != nil {
		t.Fatalf("BuildStatement: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("two aggregations over unchanged entries differ")
	}
}

func TestBuildStatementEmpty(t *testing.T) {
	calc := NewCalculator(DefaultTaxConfig())
	st, err := calc.BuildStatement(nil, nil, TaxDueFullSelfEmployed)
	if err != nil {
		t.Fatalf("BuildStatement: %v", err)
	}
	if len(st.Monthly) != 0 || len(st.Yearly) != 0 {
		t.Fatalf("empty input produced buckets: %+v", st)
	}
}

func TestEntryValidate(t *testing.T) {
	if err := (Entry{Title: "ok"}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Entry{Title: "  "}).Validate(); err == nil {
		t.Fatalf("expected error for blank title")
	}
}
