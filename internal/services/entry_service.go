// Package services orchestrates the engine, the SQLite repository and the
// AMQP report queue behind one API the handlers call.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"taxfolio/internal/amqp"
	"taxfolio/internal/core"
	"taxfolio/internal/storage"
)

// ErrQueueUnavailable is returned when an operation exists only to enqueue
// a report job and no AMQP client is configured.
var ErrQueueUnavailable = errors.New("report queue not available")

// EntryService orchestrates entry operations across SQLite and AMQP
type EntryService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
	calc       *core.Calculator
}

func NewEntryService(storage *storage.SQLiteRepository, amqpClient *amqp.Client, calc *core.Calculator) *EntryService {
	return &EntryService{
		storage:    storage,
		amqpClient: amqpClient,
		calc:       calc,
	}
}

// SaveEntry persists an entry and queues its report job. The save is the
// source of truth; a failed publish is logged and the entry stays saved.
func (s *EntryService) SaveEntry(ctx context.Context, e core.Entry) (int64, error) {
	id, err := s.storage.Save(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("save entry: %w", err)
	}

	if err := s.publishJob(ctx, amqp.NewEntryReportMessage(id)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish entry report job",
			"entry_id", id, "error", err)
		// Don't fail the request - entry is saved locally
	}

	return id, nil
}

func (s *EntryService) GetEntry(ctx context.Context, id int64) (core.Entry, error) {
	return s.storage.Get(ctx, id)
}

func (s *EntryService) ListEntries(ctx context.Context) ([]core.Entry, error) {
	return s.storage.List(ctx)
}

func (s *EntryService) DeleteEntry(ctx context.Context, id int64) error {
	return s.storage.Delete(ctx, id)
}

// Statements builds the monthly and yearly view over every saved entry.
// filter narrows the incomes to one type; nil means all types.
func (s *EntryService) Statements(ctx context.Context, filter *core.IncomeType, policy core.TaxDuePolicy) (core.Statement, error) {
	entries, err := s.storage.List(ctx)
	if err != nil {
		return core.Statement{}, fmt.Errorf("list entries: %w", err)
	}
	st, err := s.calc.BuildStatement(entries, filter, policy)
	if err != nil {
		return core.Statement{}, fmt.Errorf("build statement: %w", err)
	}
	return st, nil
}

// RequestStatementsReport queues a statements workbook job. Unlike the
// save-time publish this is the whole operation, so a missing queue is an
// error rather than a skip.
func (s *EntryService) RequestStatementsReport(ctx context.Context, typeFilter string) error {
	if s.amqpClient == nil {
		return ErrQueueUnavailable
	}
	return s.amqpClient.PublishReportJob(ctx, amqp.NewStatementsReportMessage(typeFilter))
}

func (s *EntryService) publishJob(ctx context.Context, msg *amqp.ReportJobMessage) error {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping report job", "job_kind", msg.Kind)
		return nil
	}
	return s.amqpClient.PublishReportJob(ctx, msg)
}

// Close closes both storage and AMQP connections
func (s *EntryService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close entry service: %v", errs)
	}

	return nil
}
