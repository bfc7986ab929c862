// Package worker turns queued report jobs into xlsx workbooks on disk and,
// when configured, pushes statement summaries to Google Sheets.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"taxfolio/internal/amqp"
	"taxfolio/internal/core"
	"taxfolio/internal/export"
	"taxfolio/internal/storage"
)

// StatementPublisher pushes a built statement to an external surface.
type StatementPublisher interface {
	PublishStatement(ctx context.Context, st core.Statement) error
}

// ReportWorker builds workbooks for report jobs. Every job reloads its
// data from storage so the report always reflects the saved state at
// build time, not at enqueue time.
type ReportWorker struct {
	storage   *storage.SQLiteRepository
	calc      *core.Calculator
	outputDir string
	publisher StatementPublisher
}

// NewReportWorker creates a worker writing workbooks under outputDir.
// publisher may be nil; statement jobs then produce the workbook only.
func NewReportWorker(storage *storage.SQLiteRepository, calc *core.Calculator, outputDir string, publisher StatementPublisher) *ReportWorker {
	return &ReportWorker{
		storage:   storage,
		calc:      calc,
		outputDir: outputDir,
		publisher: publisher,
	}
}

// HandleJob processes one report job from AMQP.
func (w *ReportWorker) HandleJob(ctx context.Context, msg *amqp.ReportJobMessage) error {
	switch msg.Kind {
	case amqp.JobEntryReport:
		return w.handleEntryReport(ctx, msg.EntryID)
	case amqp.JobStatementsReport:
		return w.handleStatementsReport(ctx, msg.TypeFilter)
	default:
		return fmt.Errorf("unknown job kind %q", msg.Kind)
	}
}

func (w *ReportWorker) handleEntryReport(ctx context.Context, entryID int64) error {
	entry, err := w.storage.Get(ctx, entryID)
	if err != nil {
		return fmt.Errorf("load entry %d: %w", entryID, err)
	}

	f, err := export.EntryWorkbook(entry, w.calc)
	if err != nil {
		return fmt.Errorf("build entry workbook: %w", err)
	}

	path, err := w.outputPath(fmt.Sprintf("report_%d.xlsx", entryID))
	if err != nil {
		return err
	}
	if err := export.SaveWorkbook(f, path); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Entry report written",
		"entry_id", entryID,
		"entry_title", entry.Title,
		"report_path", path)
	return nil
}

func (w *ReportWorker) handleStatementsReport(ctx context.Context, typeFilter string) error {
	entries, err := w.storage.List(ctx)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}

	var filter *core.IncomeType
	if typeFilter != "" {
		t, known := core.ParseIncomeType(typeFilter)
		if !known {
			slog.WarnContext(ctx, "Unknown income type in statements job, filtering verbatim",
				"income_type", typeFilter)
		}
		filter = &t
	}

	st, err := w.calc.BuildStatement(entries, filter, core.TaxDueWithheldOnly)
	if err != nil {
		return fmt.Errorf("build statement: %w", err)
	}

	f, err := export.StatementsWorkbook(st)
	if err != nil {
		return fmt.Errorf("build statements workbook: %w", err)
	}

	path, err := w.outputPath("statements.xlsx")
	if err != nil {
		return err
	}
	if err := export.SaveWorkbook(f, path); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Statements report written",
		"entries", len(entries),
		"report_path", path)

	if w.publisher != nil {
		// The published view charges self-employed income its full
		// liability, unlike the workbook's withheld-only figures.
		published, err := w.calc.BuildStatement(entries, filter, core.TaxDueFullSelfEmployed)
		if err != nil {
			return fmt.Errorf("build published statement: %w", err)
		}
		if err := w.publisher.PublishStatement(ctx, published); err != nil {
			return fmt.Errorf("publish statement: %w", err)
		}
	}
	return nil
}

func (w *ReportWorker) outputPath(name string) (string, error) {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	return filepath.Join(w.outputDir, name), nil
}
