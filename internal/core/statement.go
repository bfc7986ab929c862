package core

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TaxDuePolicy selects which "taxes due" figure statement aggregation
// reports per income item. The two consumers of statements historically
// disagree, so both policies are kept and each call site picks its own.
type TaxDuePolicy int

const (
	// TaxDueFullSelfEmployed charges self-employed income the full
	// SE+federal+state liability and withheld income nothing. The
	// statements view uses this.
	TaxDueFullSelfEmployed TaxDuePolicy = iota
	// TaxDueWithheldOnly charges withheld income federal+state and
	// self-employed income nothing, on the theory that SE taxes were
	// already settled in the entry's breakdown. The workbook export uses
	// this.
	TaxDueWithheldOnly
)

type (
	// Entry is a named, timestamped snapshot of one full computation pass.
	// Once saved it is immutable and is the sole source of truth for later
	// aggregation.
	Entry struct {
		ID        int64
		Title     string
		CreatedAt time.Time
		Rows      []BreakdownRow
		Expenses  []AllocatedExpenseLine
	}

	// IncomeItem is one income line flattened out of an entry for
	// statement bucketing.
	IncomeItem struct {
		EntryID  int64
		Date     time.Time
		Sender   string
		Type     IncomeType
		Gross    decimal.Decimal
		TaxesDue decimal.Decimal
	}

	// ExpenseItem is one expense line flattened out of an entry. Expenses
	// carry no date of their own; Date is the date of the matching income
	// in the same entry, falling back to the entry's save time.
	ExpenseItem struct {
		EntryID int64
		Date    time.Time
		Sender  string
		Name    string
		Amount  decimal.Decimal
	}

	// MonthBucket aggregates one calendar month. Month is the first day of
	// the month in UTC.
	MonthBucket struct {
		Month        time.Time
		TotalIncome  decimal.Decimal
		TotalExpense decimal.Decimal
		TotalTaxDue  decimal.Decimal
		Incomes      []IncomeItem
		Expenses     []ExpenseItem
	}

	// YearBucket aggregates one calendar year, computed independently of
	// the monthly buckets.
	YearBucket struct {
		Year         int
		TotalIncome  decimal.Decimal
		TotalExpense decimal.Decimal
		TotalTaxDue  decimal.Decimal
	}

	// Statement is the monthly and yearly view over a set of saved
	// entries. Buckets are sparse and sorted ascending by period.
	Statement struct {
		Monthly []MonthBucket
		Yearly  []YearBucket
	}
)

var ErrMissingTitle = errors.New("entry title cannot be empty")

func (e Entry) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return ErrMissingTitle
	}
	return nil
}

// TaxesDue returns the statement tax figure for one income line under the
// given policy. The gross is re-taxed with the calculator's current config;
// stored breakdown figures are never touched.
func (c *Calculator) TaxesDue(t IncomeType, gross decimal.Decimal, policy TaxDuePolicy) (decimal.Decimal, error) {
	selfEmployed := t == SelfEmployed
	if policy == TaxDueFullSelfEmployed && !selfEmployed {
		return decimal.Zero, nil
	}
	if policy == TaxDueWithheldOnly && selfEmployed {
		return decimal.Zero, nil
	}
	fed, err := c.FederalTax(gross)
	if err != nil {
		return decimal.Zero, err
	}
	state, err := c.StateTax(gross)
	if err != nil {
		return decimal.Zero, err
	}
	due := fed.Add(state)
	if policy == TaxDueFullSelfEmployed {
		se, err := c.SelfEmploymentTax(gross)
		if err != nil {
			return decimal.Zero, err
		}
		due = due.Add(se)
	}
	return Round2(due), nil
}

// BuildStatement buckets every entry's income and expense lines by calendar
// month and year. typeFilter, when non-nil, restricts income items to one
// income type; expense items are never filtered. Running it twice over the
// same entries yields identical statements.
func (c *Calculator) BuildStatement(entries []Entry, typeFilter *IncomeType, policy TaxDuePolicy) (Statement, error) {
	var incomes []IncomeItem
	var expenses []ExpenseItem

	for _, e := range entries {
		// Expense dates join on the sender's income within the same
		// entry; later rows win, matching the breakdown net index.
		dateBySender := make(map[string]time.Time, len(e.Rows))
		for _, row := range e.Rows {
			dateBySender[row.Sender] = row.Date
		}

		for _, row := range e.Rows {
			if typeFilter != nil && row.Type != *typeFilter {
				continue
			}
			due, err := c.TaxesDue(row.Type, row.Gross, policy)
			if err != nil {
				return Statement{}, err
			}
			incomes = append(incomes, IncomeItem{
				EntryID:  e.ID,
				Date:     row.Date,
				Sender:   row.Sender,
				Type:     row.Type,
				Gross:    row.Gross,
				TaxesDue: due,
			})
		}

		for _, line := range e.Expenses {
			d, ok := dateBySender[line.Sender]
			if !ok {
				d = e.CreatedAt
			}
			expenses = append(expenses, ExpenseItem{
				EntryID: e.ID,
				Date:    d,
				Sender:  line.Sender,
				Name:    line.Name,
				Amount:  line.Amount,
			})
		}
	}

	return Statement{
		Monthly: bucketByMonth(incomes, expenses),
		Yearly:  bucketByYear(incomes, expenses),
	}, nil
}

// MonthOf truncates a date to the first day of its month in UTC.
func MonthOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func bucketByMonth(incomes []IncomeItem, expenses []ExpenseItem) []MonthBucket {
	buckets := make(map[time.Time]*MonthBucket)
	get := func(m time.Time) *MonthBucket {
		if b, ok := buckets[m]; ok {
			return b
		}
		b := &MonthBucket{Month: m}
		buckets[m] = b
		return b
	}

	for _, it := range incomes {
		b := get(MonthOf(it.Date))
		b.TotalIncome = b.TotalIncome.Add(it.Gross)
		b.TotalTaxDue = b.TotalTaxDue.Add(it.TaxesDue)
		b.Incomes = append(b.Incomes, it)
	}
	for _, ex := range expenses {
		b := get(MonthOf(ex.Date))
		b.TotalExpense = b.TotalExpense.Add(ex.Amount)
		b.Expenses = append(b.Expenses, ex)
	}

	out := make([]MonthBucket, 0, len(buckets))
	for _, b := range buckets {
		b.TotalIncome = Round2(b.TotalIncome)
		b.TotalExpense = Round2(b.TotalExpense)
		b.TotalTaxDue = Round2(b.TotalTaxDue)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}

func bucketByYear(incomes []IncomeItem, expenses []ExpenseItem) []YearBucket {
	buckets := make(map[int]*YearBucket)
	get := func(y int) *YearBucket {
		if b, ok := buckets[y]; ok {
			return b
		}
		b := &YearBucket{Year: y}
		buckets[y] = b
		return b
	}

	for _, it := range incomes {
		b := get(it.Date.Year())
		b.TotalIncome = b.TotalIncome.Add(it.Gross)
		b.TotalTaxDue = b.TotalTaxDue.Add(it.TaxesDue)
	}
	for _, ex := range expenses {
		b := get(ex.Date.Year())
		b.TotalExpense = b.TotalExpense.Add(ex.Amount)
	}

	out := make([]YearBucket, 0, len(buckets))
	for _, b := range buckets {
		b.TotalIncome = Round2(b.TotalIncome)
		b.TotalExpense = Round2(b.TotalExpense)
		b.TotalTaxDue = Round2(b.TotalTaxDue)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}
