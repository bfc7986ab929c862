package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	SelfEmployed IncomeType = "1099-NEC"
	Wage         IncomeType = "W-2"
	Retirement   IncomeType = "Retirement"
)

type (
	// IncomeType labels one check. Values other than the three known
	// constants are tolerated and taxed like withheld income.
	IncomeType string

	// IncomeRecord is one check as entered: who paid it, how much, what
	// kind of income, and when. Immutable once a computation pass starts.
	IncomeRecord struct {
		Sender string
		Gross  decimal.Decimal
		Type   IncomeType
		Date   time.Time
	}

	// BreakdownRow is the computed tax view of one income record.
	BreakdownRow struct {
		Sender   string
		Type     IncomeType
		Date     time.Time
		Gross    decimal.Decimal
		SETax    decimal.Decimal
		FedTax   decimal.Decimal
		StateTax decimal.Decimal
		TotalTax decimal.Decimal
		Net      decimal.Decimal
	}

	// BreakdownTotals carries the column sums over all rows.
	BreakdownTotals struct {
		SETax    decimal.Decimal
		FedTax   decimal.Decimal
		StateTax decimal.Decimal
		TotalTax decimal.Decimal
		Net      decimal.Decimal
	}

	// Breakdown is the full tax table for one batch of checks, rows in
	// input order.
	Breakdown struct {
		Rows   []BreakdownRow
		Totals BreakdownTotals
	}
)

var (
	ErrMissingSender = errors.New("missing sender")
	ErrMissingType   = errors.New("missing income type")
	ErrMissingDate   = errors.New("missing date")
)

// ParseIncomeType maps a form value to an IncomeType. The second return is
// false for unrecognized values; callers keep the raw value and treat it as
// withheld income rather than failing.
func ParseIncomeType(s string) (IncomeType, bool) {
	switch IncomeType(strings.TrimSpace(s)) {
	case SelfEmployed:
		return SelfEmployed, true
	case Wage:
		return Wage, true
	case Retirement:
		return Retirement, true
	}
	return IncomeType(strings.TrimSpace(s)), false
}

func (r IncomeRecord) Validate() error {
	if strings.TrimSpace(r.Sender) == "" {
		return ErrMissingSender
	}
	if r.Gross.IsNegative() {
		return ErrNegativeGross
	}
	if strings.TrimSpace(string(r.Type)) == "" {
		return ErrMissingType
	}
	if r.Date.IsZero() {
		return ErrMissingDate
	}
	return nil
}

// BuildBreakdown computes the tax table for a batch of income records.
//
// Self-employed checks carry self-employment, federal and state tax; every
// other type is treated as already withheld and carries zeros in this pass.
// Each cell is rounded to two decimals at the row level and the totals are
// sums of the rounded rows, so the printed table is always internally
// consistent.
func (c *Calculator) BuildBreakdown(records []IncomeRecord) (Breakdown, error) {
	bd := Breakdown{Rows: make([]BreakdownRow, 0, len(records))}
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return Breakdown{}, err
		}

		se, fed, state := decimal.Zero, decimal.Zero, decimal.Zero
		if rec.Type == SelfEmployed {
			var err error
			if se, err = c.SelfEmploymentTax(rec.Gross); err != nil {
				return Breakdown{}, err
			}
			if fed, err = c.FederalTax(rec.Gross); err != nil {
				return Breakdown{}, err
			}
			if state, err = c.StateTax(rec.Gross); err != nil {
				return Breakdown{}, err
			}
		}

		row := BreakdownRow{
			Sender:   rec.Sender,
			Type:     rec.Type,
			Date:     rec.Date,
			Gross:    Round2(rec.Gross),
			SETax:    Round2(se),
			FedTax:   Round2(fed),
			StateTax: Round2(state),
		}
		row.TotalTax = row.SETax.Add(row.FedTax).Add(row.StateTax)
		row.Net = row.Gross.Sub(row.TotalTax)

		bd.Rows = append(bd.Rows, row)
		bd.Totals.SETax = bd.Totals.SETax.Add(row.SETax)
		bd.Totals.FedTax = bd.Totals.FedTax.Add(row.FedTax)
		bd.Totals.StateTax = bd.Totals.StateTax.Add(row.StateTax)
		bd.Totals.TotalTax = bd.Totals.TotalTax.Add(row.TotalTax)
		bd.Totals.Net = bd.Totals.Net.Add(row.Net)
	}
	return bd, nil
}

// OriginalNets indexes the per-sender net from the breakdown, the baseline
// the expense allocator subtracts from. When a sender appears on several
// checks the last row wins, matching how the table is keyed downstream.
func (b Breakdown) OriginalNets() map[string]decimal.Decimal {
	nets := make(map[string]decimal.Decimal, len(b.Rows))
	for _, row := range b.Rows {
		nets[row.Sender] = row.Net
	}
	return nets
}
