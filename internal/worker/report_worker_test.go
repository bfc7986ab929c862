package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"taxfolio/internal/amqp"
	"taxfolio/internal/core"
	"taxfolio/internal/storage"
)

type capturePublisher struct {
	published []core.Statement
}

func (p *capturePublisher) PublishStatement(_ context.Context, st core.Statement) error {
	p.published = append(p.published, st)
	return nil
}

func newTestWorker(t *testing.T, publisher StatementPublisher) (*ReportWorker, *storage.SQLiteRepository, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := storage.NewSQLiteRepository(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	outDir := filepath.Join(dir, "reports")
	calc := core.NewCalculator(core.DefaultTaxConfig())
	return NewReportWorker(repo, calc, outDir, publisher), repo, outDir
}

func workerEntry() core.Entry {
	return core.Entry{
		Title:     "contract month",
		CreatedAt: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Rows: []core.BreakdownRow{{
			Sender:   "Acme",
			Type:     core.SelfEmployed,
			Date:     time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			Gross:    decimal.RequireFromString("10000.00"),
			SETax:    decimal.RequireFromString("1530.00"),
			FedTax:   decimal.RequireFromString("1000.00"),
			StateTax: decimal.RequireFromString("400.00"),
			TotalTax: decimal.RequireFromString("2930.00"),
			Net:      decimal.RequireFromString("7070.00"),
		}},
		Expenses: []core.AllocatedExpenseLine{{
			ExpenseLine: core.ExpenseLine{Sender: "Acme", Name: "Laptop", Amount: decimal.RequireFromString("1000.00")},
			NetAfter:    decimal.RequireFromString("6070.00"),
		}},
	}
}

func TestHandleEntryReportJob(t *testing.T) {
	w, repo, outDir := newTestWorker(t, nil)
	ctx := context.Background()

	id, err := repo.Save(ctx, workerEntry())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := w.HandleJob(ctx, amqp.NewEntryReportMessage(id)); err != nil {
		t.Fatalf("HandleJob: %v", err)
	}

	path := filepath.Join(outDir, fmt.Sprintf("report_%d.xlsx", id))
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open report: %v", err)
	}
	defer f.Close()

	got, err := f.GetCellValue("Taxes", "A2")
	if err != nil {
		t.Fatalf("GetCellValue: %v", err)
	}
	if got != "Acme" {
		t.Fatalf("Taxes!A2 = %q", got)
	}
}

func TestHandleEntryReportMissingEntry(t *testing.T) {
	w, _, _ := newTestWorker(t, nil)
	err := w.HandleJob(context.Background(), amqp.NewEntryReportMessage(999))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestHandleStatementsReportJob(t *testing.T) {
	pub := &capturePublisher{}
	w, repo, outDir := newTestWorker(t, pub)
	ctx := context.Background()

	if _, err := repo.Save(ctx, workerEntry()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := w.HandleJob(ctx, amqp.NewStatementsReportMessage("")); err != nil {
		t.Fatalf("HandleJob: %v", err)
	}

	if _, err := os.Stat(filepath.Join(outDir, "statements.xlsx")); err != nil {
		t.Fatalf("statements workbook: %v", err)
	}

	if len(pub.published) != 1 {
		t.Fatalf("published %d statements", len(pub.published))
	}
	// Published figures use the full self-employed liability.
	got := pub.published[0].Monthly[0].TotalTaxDue
	if !got.Equal(decimal.RequireFromString("2930.00")) {
		t.Fatalf("published tax due = %s", got)
	}
}

func TestHandleUnknownJobKind(t *testing.T) {
	w, _, _ := newTestWorker(t, nil)
	err := w.HandleJob(context.Background(), &amqp.ReportJobMessage{Kind: "mystery"})
	if err == nil {
		t.Fatal("expected error for unknown job kind")
	}
}
