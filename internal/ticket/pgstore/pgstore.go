// Package pgstore provides a PostgreSQL implementation of ticket.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/deskside/internal/support"
	"github.com/linnemanlabs/deskside/internal/ticket"
)

var tracer = otel.Tracer("github.com/linnemanlabs/deskside/internal/ticket/pgstore")

//go:embed schema.sql
var schema string

// Store persists tickets in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply ticket schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const ticketColumns = `id, source, sender, subject, description, priority, category, assigned_team, status, created_at, updated_at`

func startSpan(ctx context.Context, name, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Create inserts a new ticket.
func (s *Store) Create(ctx context.Context, t *ticket.Ticket) error {
	ctx, span := startSpan(ctx, "ticket.pgstore.Create", "INSERT", attribute.String("ticket.id", t.ID))
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO tickets (`+ticketColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, string(t.Source), t.Sender, t.Subject, t.Description,
		string(t.Priority), string(t.Category), t.AssignedTeam, string(t.Status),
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fail(span, fmt.Errorf("insert ticket: %w", err))
	}
	return nil
}

// Get retrieves a ticket by id.
func (s *Store) Get(ctx context.Context, id string) (*ticket.Ticket, bool, error) {
	ctx, span := startSpan(ctx, "ticket.pgstore.Get", "SELECT", attribute.String("ticket.id", id))
	defer span.End()

	t, err := scanTicket(s.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fail(span, err)
	}
	return t, true, nil
}

// UpdateStatus locks the row, records the previous status, and writes the
// new one in a single transaction.
func (s *Store) UpdateStatus(ctx context.Context, id string, status ticket.Status, at time.Time) (*ticket.Ticket, ticket.Status, error) {
	ctx, span := startSpan(ctx, "ticket.pgstore.UpdateStatus", "UPDATE",
		attribute.String("ticket.id", id),
		attribute.String("ticket.status", string(status)),
	)
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, "", fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	var old string
	err = tx.QueryRow(ctx, `SELECT status FROM tickets WHERE id = $1 FOR UPDATE`, id).Scan(&old)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", fmt.Errorf("ticket %s: %w", id, ticket.ErrNotFound)
	}
	if err != nil {
		return nil, "", fail(span, fmt.Errorf("lock ticket: %w", err))
	}

	t, err := scanTicket(tx.QueryRow(ctx,
		`UPDATE tickets SET status = $2, updated_at = $3 WHERE id = $1
		 RETURNING `+ticketColumns,
		id, string(status), at,
	))
	if err != nil {
		return nil, "", fail(span, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", fail(span, fmt.Errorf("commit tx: %w", err))
	}
	return t, ticket.Status(old), nil
}

// List returns matching tickets, newest first.
func (s *Store) List(ctx context.Context, f ticket.Filter) ([]ticket.Ticket, error) {
	ctx, span := startSpan(ctx, "ticket.pgstore.List", "SELECT")
	defer span.End()

	var (
		where []string
		args  []any
	)
	if f.Sender != "" {
		args = append(args, f.Sender)
		where = append(where, fmt.Sprintf("sender ILIKE '%%' || $%d || '%%'", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, string(f.Category))
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}

	q := `SELECT ` + ticketColumns + ` FROM tickets`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.EffectiveLimit())
	q += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query tickets: %w", err))
	}
	defer rows.Close()

	var out []ticket.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fail(span, err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate tickets: %w", err))
	}
	return out, nil
}

func scanTicket(row pgx.Row) (*ticket.Ticket, error) {
	var (
		t                                  ticket.Ticket
		source, priority, category, status string
	)
	err := row.Scan(&t.ID, &source, &t.Sender, &t.Subject, &t.Description,
		&priority, &category, &t.AssignedTeam, &status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan ticket: %w", err)
	}
	t.Source = ticket.Source(source)
	t.Priority = support.Priority(priority)
	t.Category = support.Category(category)
	t.Status = ticket.Status(status)
	return &t, nil
}
