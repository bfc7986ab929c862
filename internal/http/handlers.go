package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"taxfolio/internal/core"
	"taxfolio/internal/export"
	"taxfolio/internal/services"
	"taxfolio/internal/storage"
)

type breakdownRequest struct {
	Incomes []incomePayload `json:"incomes"`
}

// handleBreakdown computes the tax table for a batch of checks without
// persisting anything.
func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	var req breakdownRequest
	if err := readJSON(w, r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	records, err := decodeIncomes(req.Incomes)
	if err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	bd, err := s.calc.BuildBreakdown(records)
	if err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, breakdownToJSON(bd))
}

type allocateRequest struct {
	Incomes  []incomePayload  `json:"incomes"`
	Expenses []expensePayload `json:"expenses"`
	Policy   string           `json:"policy"`
}

// handleAllocate recomputes the breakdown and spreads the expenses over
// the per-sender nets.
func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := readJSON(w, r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	policy, err := parsePolicy(req.Policy)
	if err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	records, err := decodeIncomes(req.Incomes)
	if err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	bd, err := s.calc.BuildBreakdown(records)
	if err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	alloc, err := core.Allocate(decodeExpenses(req.Expenses), bd.OriginalNets(), policy)
	if err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, allocationToJSON(alloc))
}

type createEntryRequest struct {
	Title    string           `json:"title"`
	Incomes  []incomePayload  `json:"incomes"`
	Expenses []expensePayload `json:"expenses"`
	Policy   string           `json:"policy"`
}

// handleCreateEntry runs the full computation pass and saves the result
// as a named entry.
func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := readJSON(w, r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Title) == "" {
		errorJSON(w, http.StatusUnprocessableEntity, "missing title")
		return
	}

	policy, err := parsePolicy(req.Policy)
	if err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	records, err := decodeIncomes(req.Incomes)
	if err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	bd, err := s.calc.BuildBreakdown(records)
	if err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	alloc, err := core.Allocate(decodeExpenses(req.Expenses), bd.OriginalNets(), policy)
	if err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := s.entries.SaveEntry(r.Context(), core.Entry{
		Title:    strings.TrimSpace(req.Title),
		Rows:     bd.Rows,
		Expenses: alloc.Lines,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "Save entry failed", "error", err, "entry_title", req.Title)
		errorJSON(w, http.StatusInternalServerError, "failed to save entry")
		return
	}

	s.statementsCache.Purge()
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.entries.ListEntries(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List entries failed", "error", err)
		errorJSON(w, http.StatusInternalServerError, "failed to list entries")
		return
	}

	out := make([]entrySummaryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, entrySummaryJSON{
			ID:          e.ID,
			Title:       e.Title,
			CreatedAt:   e.CreatedAt.Format(time.RFC3339),
			IncomeRows:  len(e.Rows),
			ExpenseRows: len(e.Expenses),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	e, err := s.entries.GetEntry(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		errorJSON(w, http.StatusNotFound, "entry not found")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Get entry failed", "error", err, "entry_id", id)
		errorJSON(w, http.StatusInternalServerError, "failed to load entry")
		return
	}

	writeJSON(w, http.StatusOK, entryToJSON(e))
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	err = s.entries.DeleteEntry(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		errorJSON(w, http.StatusNotFound, "entry not found")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Delete entry failed", "error", err, "entry_id", id)
		errorJSON(w, http.StatusInternalServerError, "failed to delete entry")
		return
	}

	s.statementsCache.Purge()
	w.WriteHeader(http.StatusNoContent)
}

// handleEntryReport streams the entry's workbook as a download.
func (s *Server) handleEntryReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	e, err := s.entries.GetEntry(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		errorJSON(w, http.StatusNotFound, "entry not found")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Get entry failed", "error", err, "entry_id", id)
		errorJSON(w, http.StatusInternalServerError, "failed to load entry")
		return
	}

	f, err := export.EntryWorkbook(e, s.calc)
	if err != nil {
		slog.ErrorContext(r.Context(), "Entry workbook failed", "error", err, "entry_id", id)
		errorJSON(w, http.StatusInternalServerError, "failed to build workbook")
		return
	}

	serveWorkbook(w, r, f, fmt.Sprintf("report_%d.xlsx", id))
}

func (s *Server) handleStatements(w http.ResponseWriter, r *http.Request) {
	filter := typeFilterFromQuery(r)
	st, err := s.cachedStatements(r, filter, core.TaxDueFullSelfEmployed)
	if err != nil {
		slog.ErrorContext(r.Context(), "Build statements failed", "error", err)
		errorJSON(w, http.StatusInternalServerError, "failed to build statements")
		return
	}

	writeJSON(w, http.StatusOK, statementToJSON(st))
}

// handleStatementsWorkbook streams the statements workbook. The workbook
// uses the withheld-only tax figures, unlike the JSON statements view.
func (s *Server) handleStatementsWorkbook(w http.ResponseWriter, r *http.Request) {
	filter := typeFilterFromQuery(r)
	st, err := s.cachedStatements(r, filter, core.TaxDueWithheldOnly)
	if err != nil {
		slog.ErrorContext(r.Context(), "Build statements failed", "error", err)
		errorJSON(w, http.StatusInternalServerError, "failed to build statements")
		return
	}

	f, err := export.StatementsWorkbook(st)
	if err != nil {
		slog.ErrorContext(r.Context(), "Statements workbook failed", "error", err)
		errorJSON(w, http.StatusInternalServerError, "failed to build workbook")
		return
	}

	serveWorkbook(w, r, f, "statements.xlsx")
}

type statementsReportRequest struct {
	Type string `json:"type"`
}

// handleQueueStatementsReport enqueues a statements workbook job for the
// report worker instead of building it inline.
func (s *Server) handleQueueStatementsReport(w http.ResponseWriter, r *http.Request) {
	// Body is optional; an empty POST queues an unfiltered report.
	var req statementsReportRequest
	if err := readJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.entries.RequestStatementsReport(r.Context(), strings.TrimSpace(req.Type))
	if errors.Is(err, services.ErrQueueUnavailable) {
		errorJSON(w, http.StatusServiceUnavailable, "report queue not available")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Queue statements report failed", "error", err)
		errorJSON(w, http.StatusInternalServerError, "failed to queue report")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// cachedStatements serves statements from the cache when a read repeats
// before any entry write. Writes purge the whole cache.
func (s *Server) cachedStatements(r *http.Request, filter *core.IncomeType, policy core.TaxDuePolicy) (core.Statement, error) {
	key := fmt.Sprintf("%d|", policy)
	if filter != nil {
		key += string(*filter)
	}
	if st, ok := s.statementsCache.Get(key); ok {
		return st, nil
	}

	st, err := s.entries.Statements(r.Context(), filter, policy)
	if err != nil {
		return core.Statement{}, err
	}
	s.statementsCache.Set(key, st)
	return st, nil
}

func typeFilterFromQuery(r *http.Request) *core.IncomeType {
	raw := strings.TrimSpace(r.URL.Query().Get("type"))
	if raw == "" {
		return nil
	}
	t, known := core.ParseIncomeType(raw)
	if !known {
		slog.WarnContext(r.Context(), "Unknown income type filter, filtering verbatim", "income_type", raw)
	}
	return &t
}

func serveWorkbook(w http.ResponseWriter, r *http.Request, f *excelize.File, filename string) {
	var buf bytes.Buffer
	if err := export.WriteWorkbook(f, &buf); err != nil {
		slog.ErrorContext(r.Context(), "Workbook serialization failed", "error", err)
		errorJSON(w, http.StatusInternalServerError, "failed to write workbook")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", buf.Len()))
	_, _ = w.Write(buf.Bytes())
}
