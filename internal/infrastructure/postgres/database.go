package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var dbTracer = otel.Tracer("ledger/db")

// PostgreSQL error codes the repositories translate into domain errors.
const (
	codeUniqueViolation      = "23505"
	codeInvalidTextInput     = "22P02"
	codeNumericValueOutRange = "22003"
)

const maxTracedStatement = 256

// querier is satisfied by both *DB and *Tx so repositories can run inside
// or outside a unit of work.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) rowScanner
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// executor is the untraced surface shared by *sql.DB and *sql.Tx.
type executor interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// rowScanner is implemented by *sql.Rows and *tracedRow.
type rowScanner interface {
	Scan(dest ...any) error
}

// DB is the ledger's connection pool. Every statement gets an OTel span.
type DB struct {
	*sql.DB
}

// New opens a connection pool and verifies it with a ping.
func New(connStr string) (*DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return tracedQuery(ctx, db.DB, query, args)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) rowScanner {
	return tracedQueryRow(ctx, db.DB, query, args)
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tracedExec(ctx, db.DB, query, args)
}

// Tx is a traced database transaction. Its span covers the whole unit of
// work and ends on Commit or Rollback.
type Tx struct {
	tx   *sql.Tx
	span trace.Span
}

// StartTx begins a traced transaction. The returned context carries the
// transaction span so statements nest under it.
func (db *DB) StartTx(ctx context.Context, opts *sql.TxOptions) (context.Context, *Tx, error) {
	attrs := []attribute.KeyValue{attribute.String("db.system", "postgresql")}
	if opts != nil {
		attrs = append(attrs, attribute.String("db.isolation", opts.Isolation.String()))
	}
	ctx, span := dbTracer.Start(ctx, "db.Tx", trace.WithAttributes(attrs...))

	tx, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		finishSpan(span, err)
		return ctx, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return ctx, &Tx{tx: tx, span: span}, nil
}

// InTx runs fn inside a transaction and commits when fn returns nil.
// Any error from fn rolls the transaction back and is returned unwrapped.
func (db *DB) InTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx *Tx) error) error {
	ctx, tx, err := db.StartTx(ctx, opts)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return tracedQuery(ctx, t.tx, query, args)
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) rowScanner {
	return tracedQueryRow(ctx, t.tx, query, args)
}

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tracedExec(ctx, t.tx, query, args)
}

func (t *Tx) Commit() error {
	err := t.tx.Commit()
	finishSpan(t.span, err)
	return err
}

// Rollback is a no-op after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	finishSpan(t.span, err)
	return err
}

// tracedRow keeps the span open until Scan, where sql.Row reports its errors.
type tracedRow struct {
	row  *sql.Row
	span trace.Span
}

func (r *tracedRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if r.span != nil {
		// a missing row is an answer, not a failure
		if errors.Is(err, sql.ErrNoRows) {
			finishSpan(r.span, nil)
		} else {
			finishSpan(r.span, err)
		}
		r.span = nil
	}
	return err
}

func tracedQuery(ctx context.Context, ex executor, query string, args []any) (*sql.Rows, error) {
	ctx, span := statementSpan(ctx, "db.Query", query)
	rows, err := ex.QueryContext(ctx, query, args...)
	finishSpan(span, err)
	return rows, err
}

func tracedQueryRow(ctx context.Context, ex executor, query string, args []any) *tracedRow {
	ctx, span := statementSpan(ctx, "db.QueryRow", query)
	return &tracedRow{row: ex.QueryRowContext(ctx, query, args...), span: span}
}

func tracedExec(ctx context.Context, ex executor, query string, args []any) (sql.Result, error) {
	ctx, span := statementSpan(ctx, "db.Exec", query)
	result, err := ex.ExecContext(ctx, query, args...)
	if err == nil {
		if n, rerr := result.RowsAffected(); rerr == nil {
			span.SetAttributes(attribute.Int64("db.rows_affected", n))
		}
	}
	finishSpan(span, err)
	return result, err
}

func statementSpan(ctx context.Context, name, query string) (context.Context, trace.Span) {
	return dbTracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", statementVerb(query)),
			attribute.String("db.statement", sanitizeQuery(query)),
		),
	)
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isUniqueViolation(err error) bool  { return pqCode(err) == codeUniqueViolation }
func isInvalidTextInput(err error) bool { return pqCode(err) == codeInvalidTextInput }
func isNumericOverflow(err error) bool  { return pqCode(err) == codeNumericValueOutRange }

// sanitizeQuery masks string and numeric literals so account numbers and
// amounts inlined into SQL never reach a trace. $N placeholders are kept.
func sanitizeQuery(q string) string {
	var b strings.Builder
	b.Grow(len(q))

	for i := 0; i < len(q); {
		ch := q[i]

		switch {
		case ch == '\'':
			b.WriteString("'?'")
			i = skipStringLiteral(q, i+1)
		case isDigit(ch) && (i == 0 || !isIdentChar(q[i-1])):
			b.WriteByte('?')
			for i < len(q) && (isDigit(q[i]) || q[i] == '.') {
				i++
			}
		default:
			b.WriteByte(ch)
			i++
		}
	}

	s := b.String()
	if len(s) > maxTracedStatement {
		return s[:maxTracedStatement] + "..."
	}
	return s
}

// skipStringLiteral returns the index just past the closing quote of a
// literal whose body starts at i. Doubled quotes are escapes.
func skipStringLiteral(q string, i int) int {
	for i < len(q) {
		if q[i] == '\'' {
			if i+1 < len(q) && q[i+1] == '\'' {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return i
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// isIdentChar includes '$' so placeholder digits are left alone.
func isIdentChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '$' || isDigit(c)
}

// statementVerb returns the leading SQL keyword, upper-cased.
func statementVerb(q string) string {
	q = strings.TrimLeftFunc(q, unicode.IsSpace)
	if idx := strings.IndexFunc(q, unicode.IsSpace); idx > 0 {
		q = q[:idx]
	}
	return strings.ToUpper(q)
}
