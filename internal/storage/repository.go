// Package storage persists saved entries in SQLite. An entry is written
// once as a whole snapshot and never partially mutated; deletes cascade to
// the entry's income and expense rows.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"taxfolio/internal/core"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("entry not found")

const (
	dateLayout = "2006-01-02"
	timeLayout = time.RFC3339
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Save persists an entry with all its income and expense rows in one
// transaction and returns the new id. The entry's CreatedAt is used when
// set, otherwise the current time is recorded.
func (r *SQLiteRepository) Save(ctx context.Context, e core.Entry) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO entries (title, created_at) VALUES (?, ?)`,
		e.Title, createdAt.Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("entry id: %w", err)
	}

	for i, row := range e.Rows {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO incomes (entry_id, position, sender, income_type, date, gross, se_tax, fed_tax, state_tax, total_tax, net)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, i, row.Sender, string(row.Type), row.Date.Format(dateLayout),
			row.Gross.String(), row.SETax.String(), row.FedTax.String(),
			row.StateTax.String(), row.TotalTax.String(), row.Net.String())
		if err != nil {
			return 0, fmt.Errorf("insert income row %d: %w", i, err)
		}
	}

	for i, line := range e.Expenses {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO expenses (entry_id, position, sender, name, amount, net_after)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, i, line.Sender, line.Name, line.Amount.String(), line.NetAfter.String())
		if err != nil {
			return 0, fmt.Errorf("insert expense row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit entry: %w", err)
	}

	slog.InfoContext(ctx, "Entry saved",
		"entry_id", id,
		"entry_title", e.Title,
		"income_rows", len(e.Rows),
		"expense_rows", len(e.Expenses))

	return id, nil
}

// Get loads one entry with its rows in stored order.
func (r *SQLiteRepository) Get(ctx context.Context, id int64) (core.Entry, error) {
	var (
		e         core.Entry
		createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, created_at FROM entries WHERE id = ?`, id).
		Scan(&e.ID, &e.Title, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Entry{}, ErrNotFound
	}
	if err != nil {
		return core.Entry{}, fmt.Errorf("select entry: %w", err)
	}
	if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return core.Entry{}, fmt.Errorf("parse created_at: %w", err)
	}

	if e.Rows, err = r.incomeRows(ctx, id); err != nil {
		return core.Entry{}, err
	}
	if e.Expenses, err = r.expenseRows(ctx, id); err != nil {
		return core.Entry{}, err
	}
	return e, nil
}

// List returns all entries newest first, each fully loaded.
func (r *SQLiteRepository) List(ctx context.Context) ([]core.Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM entries ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan entry id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	entries := make([]core.Entry, 0, len(ids))
	for _, id := range ids {
		e, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Delete removes an entry and, via the cascade, its income and expense
// rows. Returns ErrNotFound when the id does not exist.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	slog.InfoContext(ctx, "Entry deleted", "entry_id", id)
	return nil
}

func (r *SQLiteRepository) incomeRows(ctx context.Context, entryID int64) ([]core.BreakdownRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT sender, income_type, date, gross, se_tax, fed_tax, state_tax, total_tax, net
		 FROM incomes WHERE entry_id = ? ORDER BY position`, entryID)
	if err != nil {
		return nil, fmt.Errorf("select incomes: %w", err)
	}
	defer rows.Close()

	var out []core.BreakdownRow
	for rows.Next() {
		var (
			row                               core.BreakdownRow
			typ, date                         string
			gross, se, fed, state, total, net string
		)
		if err := rows.Scan(&row.Sender, &typ, &date, &gross, &se, &fed, &state, &total, &net); err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		row.Type = core.IncomeType(typ)
		if row.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("parse income date: %w", err)
		}
		cells := []struct {
			dst *decimal.Decimal
			raw string
		}{
			{&row.Gross, gross}, {&row.SETax, se}, {&row.FedTax, fed},
			{&row.StateTax, state}, {&row.TotalTax, total}, {&row.Net, net},
		}
		for _, c := range cells {
			if *c.dst, err = decimal.NewFromString(c.raw); err != nil {
				return nil, fmt.Errorf("parse income amount %q: %w", c.raw, err)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) expenseRows(ctx context.Context, entryID int64) ([]core.AllocatedExpenseLine, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT sender, name, amount, net_after
		 FROM expenses WHERE entry_id = ? ORDER BY position`, entryID)
	if err != nil {
		return nil, fmt.Errorf("select expenses: %w", err)
	}
	defer rows.Close()

	var out []core.AllocatedExpenseLine
	for rows.Next() {
		var (
			line             core.AllocatedExpenseLine
			amount, netAfter string
		)
		if err := rows.Scan(&line.Sender, &line.Name, &amount, &netAfter); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		if line.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse expense amount %q: %w", amount, err)
		}
		if line.NetAfter, err = decimal.NewFromString(netAfter); err != nil {
			return nil, fmt.Errorf("parse expense net %q: %w", netAfter, err)
		}
		out = append(out, line)
	}
	return out, rows.Err()
}
