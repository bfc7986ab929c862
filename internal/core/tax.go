package core

import (
	"github.com/shopspring/decimal"
)

// Bracket is one step of a progressive tax table. A negative High marks the
// unbounded top bracket.
type Bracket struct {
	Low  decimal.Decimal
	High decimal.Decimal
	Rate decimal.Decimal
}

// Unbounded reports whether the bracket has no upper limit.
func (b Bracket) Unbounded() bool {
	return b.High.IsNegative()
}

// TaxConfig holds every rate the calculator needs. It is supplied once at
// construction and never mutated afterwards.
type TaxConfig struct {
	FederalBrackets    []Bracket
	StateRate          decimal.Decimal
	MedicareRate       decimal.Decimal
	SocialSecurityRate decimal.Decimal
	WageBase           decimal.Decimal
}

// DefaultTaxConfig returns the 2023 federal bracket table, the Louisiana
// flat state rate and the self-employment rates.
func DefaultTaxConfig() TaxConfig {
	return TaxConfig{
		FederalBrackets: []Bracket{
			{Low: decimal.NewFromInt(0), High: decimal.NewFromInt(11000), Rate: decimal.RequireFromString("0.10")},
			{Low: decimal.NewFromInt(11000), High: decimal.NewFromInt(44725), Rate: decimal.RequireFromString("0.12")},
			{Low: decimal.NewFromInt(44725), High: decimal.NewFromInt(95375), Rate: decimal.RequireFromString("0.22")},
			{Low: decimal.NewFromInt(95375), High: decimal.NewFromInt(182100), Rate: decimal.RequireFromString("0.24")},
			{Low: decimal.NewFromInt(182100), High: decimal.NewFromInt(231250), Rate: decimal.RequireFromString("0.32")},
			{Low: decimal.NewFromInt(231250), High: decimal.NewFromInt(578125), Rate: decimal.RequireFromString("0.35")},
			{Low: decimal.NewFromInt(578125), High: decimal.NewFromInt(-1), Rate: decimal.RequireFromString("0.37")},
		},
		StateRate:          decimal.RequireFromString("0.04"),
		MedicareRate:       decimal.RequireFromString("0.029"),
		SocialSecurityRate: decimal.RequireFromString("0.124"),
		WageBase:           decimal.NewFromInt(168666),
	}
}

// Calculator computes federal, state and self-employment taxes from an
// immutable TaxConfig. It holds no mutable state and is safe for concurrent
// use.
type Calculator struct {
	cfg TaxConfig
}

func NewCalculator(cfg TaxConfig) *Calculator {
	return &Calculator{cfg: cfg}
}

// FederalTax applies the progressive bracket table to gross. Each bracket
// taxes the slice of income between its bounds at its own rate; iteration
// stops at the first bracket whose lower bound is at or above gross.
func (c *Calculator) FederalTax(gross decimal.Decimal) (decimal.Decimal, error) {
	if gross.IsNegative() {
		return decimal.Zero, ErrNegativeGross
	}
	tax := decimal.Zero
	for _, b := range c.cfg.FederalBrackets {
		if gross.LessThanOrEqual(b.Low) {
			break
		}
		upper := gross
		if !b.Unbounded() && b.High.LessThan(gross) {
			upper = b.High
		}
		tax = tax.Add(upper.Sub(b.Low).Mul(b.Rate))
	}
	return tax, nil
}

// StateTax is a flat-rate multiplication on gross.
func (c *Calculator) StateTax(gross decimal.Decimal) (decimal.Decimal, error) {
	if gross.IsNegative() {
		return decimal.Zero, ErrNegativeGross
	}
	return gross.Mul(c.cfg.StateRate), nil
}

// SelfEmploymentTax is Medicare on the full gross plus Social Security on
// gross capped at the wage base.
func (c *Calculator) SelfEmploymentTax(gross decimal.Decimal) (decimal.Decimal, error) {
	if gross.IsNegative() {
		return decimal.Zero, ErrNegativeGross
	}
	medicare := gross.Mul(c.cfg.MedicareRate)
	ssBase := gross
	if c.cfg.WageBase.LessThan(gross) {
		ssBase = c.cfg.WageBase
	}
	socialSecurity := ssBase.Mul(c.cfg.SocialSecurityRate)
	return medicare.Add(socialSecurity), nil
}
