package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AllocationPolicy selects how per-line nets are derived from a sender's
// expense lines.
type AllocationPolicy int

const (
	// CumulativeTotal subtracts the sender's whole expense total from the
	// original net on every line, so all lines of a sender show the same
	// net-after value. This is the historical behavior and the default.
	CumulativeTotal AllocationPolicy = iota
	// RunningBalance subtracts only the expenses seen so far, giving a true
	// sequential running balance per sender.
	RunningBalance
)

type (
	// ExpenseLine is one expense attributed against an income sender.
	ExpenseLine struct {
		Sender string
		Name   string
		Amount decimal.Decimal
	}

	// AllocatedExpenseLine is an expense line plus the sender's net after
	// subtraction under the active policy.
	AllocatedExpenseLine struct {
		ExpenseLine
		NetAfter decimal.Decimal
	}

	// Allocation is the expense/net table for one computation pass, lines
	// in input order.
	Allocation struct {
		Lines        []AllocatedExpenseLine
		TotalExpense decimal.Decimal
		TotalNet     decimal.Decimal
	}
)

var ErrUnknownSender = errors.New("expense sender not present in income set")

// ParseExpenseLine builds an ExpenseLine from raw form fields. Lines with a
// blank name or an empty/unparsable amount are dropped, not errors; the
// second return reports whether the line survived.
func ParseExpenseLine(sender, name, amount string) (ExpenseLine, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ExpenseLine{}, false
	}
	amt, err := ParseAmount(amount)
	if err != nil {
		return ExpenseLine{}, false
	}
	return ExpenseLine{Sender: strings.TrimSpace(sender), Name: name, Amount: amt}, true
}

// Allocate computes per-line net-after-expense values against the per-sender
// original nets from a breakdown.
//
// TotalNet is always sum(originalNet) minus the expense total, independent of
// how the per-line values fall. A line naming a sender absent from
// originalNet fails the whole allocation with ErrUnknownSender.
func Allocate(lines []ExpenseLine, originalNet map[string]decimal.Decimal, policy AllocationPolicy) (Allocation, error) {
	totalBySender := make(map[string]decimal.Decimal, len(originalNet))
	totalExpense := decimal.Zero
	for _, l := range lines {
		if _, ok := originalNet[l.Sender]; !ok {
			return Allocation{}, fmt.Errorf("%w: %q", ErrUnknownSender, l.Sender)
		}
		totalBySender[l.Sender] = totalBySender[l.Sender].Add(l.Amount)
		totalExpense = totalExpense.Add(l.Amount)
	}

	alloc := Allocation{
		Lines:        make([]AllocatedExpenseLine, 0, len(lines)),
		TotalExpense: Round2(totalExpense),
	}

	spent := make(map[string]decimal.Decimal, len(totalBySender))
	for _, l := range lines {
		var used decimal.Decimal
		switch policy {
		case RunningBalance:
			spent[l.Sender] = spent[l.Sender].Add(l.Amount)
			used = spent[l.Sender]
		default:
			used = totalBySender[l.Sender]
		}
		alloc.Lines = append(alloc.Lines, AllocatedExpenseLine{
			ExpenseLine: l,
			NetAfter:    Round2(originalNet[l.Sender].Sub(used)),
		})
	}

	sumNet := decimal.Zero
	for _, net := range originalNet {
		sumNet = sumNet.Add(net)
	}
	alloc.TotalNet = Round2(sumNet.Sub(totalExpense))
	return alloc, nil
}
