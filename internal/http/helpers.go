package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"taxfolio/internal/core"
)

const dateLayout = "2006-01-02"

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func errorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// readJSON decodes the request body, capped at 1 MiB.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid entry id %q", raw)
	}
	return id, nil
}

type incomePayload struct {
	Sender string `json:"sender"`
	Type   string `json:"type"`
	Date   string `json:"date"`
	Gross  string `json:"gross"`
}

type expensePayload struct {
	Sender string `json:"sender"`
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

// decodeIncomes converts payload rows into income records, reporting the
// first offending row and field.
func decodeIncomes(payloads []incomePayload) ([]core.IncomeRecord, error) {
	if len(payloads) == 0 {
		return nil, fmt.Errorf("at least one income is required")
	}
	records := make([]core.IncomeRecord, 0, len(payloads))
	for i, p := range payloads {
		if strings.TrimSpace(p.Sender) == "" {
			return nil, fmt.Errorf("income %d: missing sender", i+1)
		}
		typ, known := core.ParseIncomeType(p.Type)
		if strings.TrimSpace(p.Type) == "" {
			return nil, fmt.Errorf("income %d: missing type", i+1)
		}
		if !known {
			slog.Warn("Unknown income type, treating as withheld",
				"income_type", p.Type, "sender", p.Sender)
		}
		date, err := time.Parse(dateLayout, strings.TrimSpace(p.Date))
		if err != nil {
			return nil, fmt.Errorf("income %d: invalid date %q", i+1, p.Date)
		}
		gross, err := core.ParseAmount(p.Gross)
		if err != nil {
			return nil, fmt.Errorf("income %d: invalid gross %q", i+1, p.Gross)
		}
		records = append(records, core.IncomeRecord{
			Sender: strings.TrimSpace(p.Sender),
			Type:   typ,
			Date:   date,
			Gross:  gross,
		})
	}
	return records, nil
}

// decodeExpenses converts payload rows into expense lines. Rows with a
// blank name or unusable amount are dropped, mirroring how a half-filled
// form row is ignored rather than rejected.
func decodeExpenses(payloads []expensePayload) []core.ExpenseLine {
	var lines []core.ExpenseLine
	for _, p := range payloads {
		if line, ok := core.ParseExpenseLine(p.Sender, p.Name, p.Amount); ok {
			lines = append(lines, line)
		}
	}
	return lines
}

func parsePolicy(s string) (core.AllocationPolicy, error) {
	switch strings.TrimSpace(s) {
	case "", "cumulative_total":
		return core.CumulativeTotal, nil
	case "running_balance":
		return core.RunningBalance, nil
	}
	return core.CumulativeTotal, fmt.Errorf("unknown allocation policy %q", s)
}

type breakdownRowJSON struct {
	Sender   string `json:"sender"`
	Type     string `json:"type"`
	Date     string `json:"date"`
	Gross    string `json:"gross"`
	SETax    string `json:"se_tax"`
	FedTax   string `json:"fed_tax"`
	StateTax string `json:"state_tax"`
	TotalTax string `json:"total_tax"`
	Net      string `json:"net"`
}

type breakdownTotalsJSON struct {
	SETax    string `json:"se_tax"`
	FedTax   string `json:"fed_tax"`
	StateTax string `json:"state_tax"`
	TotalTax string `json:"total_tax"`
	Net      string `json:"net"`
}

type breakdownJSON struct {
	Rows   []breakdownRowJSON  `json:"rows"`
	Totals breakdownTotalsJSON `json:"totals"`
}

func breakdownToJSON(bd core.Breakdown) breakdownJSON {
	out := breakdownJSON{
		Rows: make([]breakdownRowJSON, 0, len(bd.Rows)),
		Totals: breakdownTotalsJSON{
			SETax:    core.FormatAmount(bd.Totals.SETax),
			FedTax:   core.FormatAmount(bd.Totals.FedTax),
			StateTax: core.FormatAmount(bd.Totals.StateTax),
			TotalTax: core.FormatAmount(bd.Totals.TotalTax),
			Net:      core.FormatAmount(bd.Totals.Net),
		},
	}
	for _, row := range bd.Rows {
		out.Rows = append(out.Rows, rowToJSON(row))
	}
	return out
}

func rowToJSON(row core.BreakdownRow) breakdownRowJSON {
	return breakdownRowJSON{
		Sender:   row.Sender,
		Type:     string(row.Type),
		Date:     row.Date.Format(dateLayout),
		Gross:    core.FormatAmount(row.Gross),
		SETax:    core.FormatAmount(row.SETax),
		FedTax:   core.FormatAmount(row.FedTax),
		StateTax: core.FormatAmount(row.StateTax),
		TotalTax: core.FormatAmount(row.TotalTax),
		Net:      core.FormatAmount(row.Net),
	}
}

type allocatedLineJSON struct {
	Sender   string `json:"sender"`
	Name     string `json:"name"`
	Amount   string `json:"amount"`
	NetAfter string `json:"net_after"`
}

type allocationJSON struct {
	Lines        []allocatedLineJSON `json:"lines"`
	TotalExpense string              `json:"total_expense"`
	TotalNet     string              `json:"total_net"`
}

func allocationToJSON(alloc core.Allocation) allocationJSON {
	out := allocationJSON{
		Lines:        make([]allocatedLineJSON, 0, len(alloc.Lines)),
		TotalExpense: core.FormatAmount(alloc.TotalExpense),
		TotalNet:     core.FormatAmount(alloc.TotalNet),
	}
	for _, l := range alloc.Lines {
		out.Lines = append(out.Lines, lineToJSON(l))
	}
	return out
}

func lineToJSON(l core.AllocatedExpenseLine) allocatedLineJSON {
	return allocatedLineJSON{
		Sender:   l.Sender,
		Name:     l.Name,
		Amount:   core.FormatAmount(l.Amount),
		NetAfter: core.FormatAmount(l.NetAfter),
	}
}

type entrySummaryJSON struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	CreatedAt   string `json:"created_at"`
	IncomeRows  int    `json:"income_rows"`
	ExpenseRows int    `json:"expense_rows"`
}

type entryJSON struct {
	ID        int64               `json:"id"`
	Title     string              `json:"title"`
	CreatedAt string              `json:"created_at"`
	Rows      []breakdownRowJSON  `json:"rows"`
	Expenses  []allocatedLineJSON `json:"expenses"`
}

func entryToJSON(e core.Entry) entryJSON {
	out := entryJSON{
		ID:        e.ID,
		Title:     e.Title,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
		Rows:      make([]breakdownRowJSON, 0, len(e.Rows)),
		Expenses:  make([]allocatedLineJSON, 0, len(e.Expenses)),
	}
	for _, row := range e.Rows {
		out.Rows = append(out.Rows, rowToJSON(row))
	}
	for _, l := range e.Expenses {
		out.Expenses = append(out.Expenses, lineToJSON(l))
	}
	return out
}

type incomeItemJSON struct {
	EntryID  int64  `json:"entry_id"`
	Date     string `json:"date"`
	Sender   string `json:"sender"`
	Type     string `json:"type"`
	Gross    string `json:"gross"`
	TaxesDue string `json:"taxes_due"`
}

type expenseItemJSON struct {
	EntryID int64  `json:"entry_id"`
	Date    string `json:"date"`
	Sender  string `json:"sender"`
	Name    string `json:"name"`
	Amount  string `json:"amount"`
}

type monthBucketJSON struct {
	Month        string            `json:"month"`
	TotalIncome  string            `json:"total_income"`
	TotalExpense string            `json:"total_expenses"`
	TotalTaxDue  string            `json:"total_taxes_due"`
	Incomes      []incomeItemJSON  `json:"incomes"`
	Expenses     []expenseItemJSON `json:"expenses"`
}

type yearBucketJSON struct {
	Year         int    `json:"year"`
	TotalIncome  string `json:"total_income"`
	TotalExpense string `json:"total_expenses"`
	TotalTaxDue  string `json:"total_taxes_due"`
}

type statementJSON struct {
	Monthly []monthBucketJSON `json:"monthly"`
	Yearly  []yearBucketJSON  `json:"yearly"`
}

func statementToJSON(st core.Statement) statementJSON {
	out := statementJSON{
		Monthly: make([]monthBucketJSON, 0, len(st.Monthly)),
		Yearly:  make([]yearBucketJSON, 0, len(st.Yearly)),
	}
	for _, b := range st.Monthly {
		mb := monthBucketJSON{
			Month:        b.Month.Format("2006-01"),
			TotalIncome:  core.FormatAmount(b.TotalIncome),
			TotalExpense: core.FormatAmount(b.TotalExpense),
			TotalTaxDue:  core.FormatAmount(b.TotalTaxDue),
			Incomes:      make([]incomeItemJSON, 0, len(b.Incomes)),
			Expenses:     make([]expenseItemJSON, 0, len(b.Expenses)),
		}
		for _, it := range b.Incomes {
			mb.Incomes = append(mb.Incomes, incomeItemJSON{
				EntryID:  it.EntryID,
				Date:     it.Date.Format(dateLayout),
				Sender:   it.Sender,
				Type:     string(it.Type),
				Gross:    core.FormatAmount(it.Gross),
				TaxesDue: core.FormatAmount(it.TaxesDue),
			})
		}
		for _, ex := range b.Expenses {
			mb.Expenses = append(mb.Expenses, expenseItemJSON{
				EntryID: ex.EntryID,
				Date:    ex.Date.Format(dateLayout),
				Sender:  ex.Sender,
				Name:    ex.Name,
				Amount:  core.FormatAmount(ex.Amount),
			})
		}
		out.Monthly = append(out.Monthly, mb)
	}
	for _, b := range st.Yearly {
		out.Yearly = append(out.Yearly, yearBucketJSON{
			Year:         b.Year,
			TotalIncome:  core.FormatAmount(b.TotalIncome),
			TotalExpense: core.FormatAmount(b.TotalExpense),
			TotalTaxDue:  core.FormatAmount(b.TotalTaxDue),
		})
	}
	return out
}
