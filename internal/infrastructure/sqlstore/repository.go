// Package sqlstore implements domain.Repository over database/sql. Queries
// are written with ? placeholders and rewritten by the Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmehra2102/Ordinal/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultQueryTimeout = 5 * time.Second

// Dialect captures what differs between the supported SQL engines.
type Dialect interface {
	Name() string
	// Rebind rewrites ? placeholders into the engine's syntax.
	Rebind(query string) string
	// MapError translates engine errors into domain errors.
	MapError(err error) error
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository struct {
	db           *sql.DB
	q            querier
	dialect      Dialect
	tracer       trace.Tracer
	queryTimeout time.Duration
}

func NewRepository(db *sql.DB, dialect Dialect, queryTimeout time.Duration) *Repository {
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &Repository{
		db:           db,
		q:            db,
		dialect:      dialect,
		tracer:       otel.Tracer(dialect.Name() + "-repository"),
		queryTimeout: queryTimeout,
	}
}

const itemColumns = `id, parent_kind, parent_id, position, hidden, title, body, link_type, link_id, created_at, updated_at`

func (r *Repository) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, context.CancelFunc, trace.Span) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	ctx, span := r.tracer.Start(ctx, "repository."+name)
	span.SetAttributes(attribute.String("db.system", r.dialect.Name()))
	span.SetAttributes(attrs...)
	return ctx, cancel, span
}

func parentAttrs(parent domain.ParentID) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("parent.kind", string(parent.Kind)),
		attribute.Int64("parent.node_id", parent.NodeID),
	}
}

func (r *Repository) fail(span trace.Span, err error, format string) error {
	span.RecordError(err)
	return fmt.Errorf(format+": %w", r.dialect.MapError(err))
}

func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()
	return r.db.PingContext(ctx)
}

// WithinTx runs fn in a database transaction. Nested calls reuse the
// enclosing transaction.
func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.ItemStore) error) error {
	if _, inTx := r.q.(*sql.Tx); inTx {
		return fn(ctx, r)
	}

	ctx, span := r.tracer.Start(ctx, "repository.WithinTx")
	defer span.End()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txRepo := &Repository{
		db:           r.db,
		q:            tx,
		dialect:      r.dialect,
		tracer:       r.tracer,
		queryTimeout: r.queryTimeout,
	}
	if err := fn(ctx, txRepo); err != nil {
		span.RecordError(err)
		return err
	}

	if err := tx.Commit(); err != nil {
		return r.fail(span, err, "failed to commit transaction")
	}
	return nil
}

func (r *Repository) Insert(ctx context.Context, item *domain.Item) error {
	ctx, cancel, span := r.start(ctx, "Insert", parentAttrs(item.Parent)...)
	defer cancel()
	defer span.End()

	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	query := r.dialect.Rebind(`
		INSERT INTO ordered_items (
			parent_kind, parent_id, position, hidden, title, body, link_type, link_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	err := r.q.QueryRowContext(ctx, query,
		string(item.Parent.Kind),
		item.Parent.NodeID,
		int64(item.Position),
		item.Hidden,
		item.Payload.Title,
		item.Payload.Body,
		item.Payload.LinkType,
		item.Payload.LinkID,
		item.CreatedAt,
		item.UpdatedAt,
	).Scan(&item.ID)
	if err != nil {
		return r.fail(span, err, "failed to insert item")
	}

	span.SetAttributes(attribute.Int64("item.id", item.ID))
	return nil
}

func (r *Repository) GetByID(ctx context.Context, parent domain.ParentID, id int64) (*domain.Item, error) {
	ctx, cancel, span := r.start(ctx, "GetByID", append(parentAttrs(parent), attribute.Int64("item.id", id))...)
	defer cancel()
	defer span.End()

	query := r.dialect.Rebind(`
		SELECT ` + itemColumns + `
		FROM ordered_items
		WHERE id = ? AND parent_kind = ? AND parent_id = ?
	`)

	item, err := scanItem(r.q.QueryRowContext(ctx, query, id, string(parent.Kind), parent.NodeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			span.SetAttributes(attribute.Bool("not_found", true))
			return nil, fmt.Errorf("item %d under %s: %w", id, parent, domain.ErrItemNotFound)
		}
		return nil, r.fail(span, err, "failed to get item")
	}
	return item, nil
}

func (r *Repository) GetMaxPosition(ctx context.Context, parent domain.ParentID) (uint, error) {
	ctx, cancel, span := r.start(ctx, "GetMaxPosition", parentAttrs(parent)...)
	defer cancel()
	defer span.End()

	query := r.dialect.Rebind(`
		SELECT COALESCE(MAX(position), 0)
		FROM ordered_items
		WHERE parent_kind = ? AND parent_id = ?
	`)

	var top int64
	if err := r.q.QueryRowContext(ctx, query, string(parent.Kind), parent.NodeID).Scan(&top); err != nil {
		return 0, r.fail(span, err, "failed to get max position")
	}
	return uint(top), nil
}

func (r *Repository) GetByPosition(ctx context.Context, parent domain.ParentID, position uint) (*domain.Item, error) {
	ctx, cancel, span := r.start(ctx, "GetByPosition", append(parentAttrs(parent), attribute.Int64("position", int64(position)))...)
	defer cancel()
	defer span.End()

	query := r.dialect.Rebind(`
		SELECT ` + itemColumns + `
		FROM ordered_items
		WHERE parent_kind = ? AND parent_id = ? AND position = ?
		ORDER BY id
		LIMIT 1
	`)

	item, err := scanItem(r.q.QueryRowContext(ctx, query, string(parent.Kind), parent.NodeID, int64(position)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("position %d under %s: %w", position, parent, domain.ErrItemNotFound)
		}
		return nil, r.fail(span, err, "failed to get item by position")
	}
	return item, nil
}

func (r *Repository) ListOrderedByPosition(ctx context.Context, parent domain.ParentID, includeHidden bool) ([]*domain.Item, error) {
	ctx, cancel, span := r.start(ctx, "ListOrderedByPosition", parentAttrs(parent)...)
	defer cancel()
	defer span.End()

	hiddenFilter := " AND hidden = ?"
	args := []any{string(parent.Kind), parent.NodeID, false}
	if includeHidden {
		hiddenFilter = ""
		args = args[:2]
	}

	query := r.dialect.Rebind(`
		SELECT ` + itemColumns + `
		FROM ordered_items
		WHERE parent_kind = ? AND parent_id = ?` + hiddenFilter + `
		ORDER BY position, id
	`)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.fail(span, err, "failed to list items")
	}
	defer rows.Close()

	items := make([]*domain.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, r.fail(span, err, "failed to scan item")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, r.fail(span, err, "error iterating items")
	}

	span.SetAttributes(attribute.Int("returned_count", len(items)))
	return items, nil
}

func (r *Repository) UpdatePosition(ctx context.Context, id int64, position uint) error {
	ctx, cancel, span := r.start(ctx, "UpdatePosition", attribute.Int64("item.id", id), attribute.Int64("position", int64(position)))
	defer cancel()
	defer span.End()

	query := r.dialect.Rebind(`UPDATE ordered_items SET position = ?, updated_at = ? WHERE id = ?`)
	return r.execOne(ctx, span, query, "failed to update position", int64(position), time.Now().UTC(), id)
}

func (r *Repository) ShiftPositions(ctx context.Context, parent domain.ParentID, from, to uint, delta int) error {
	ctx, cancel, span := r.start(ctx, "ShiftPositions", append(parentAttrs(parent),
		attribute.Int64("from", int64(from)),
		attribute.Int64("to", int64(to)),
		attribute.Int("delta", delta),
	)...)
	defer cancel()
	defer span.End()

	query := r.dialect.Rebind(`
		UPDATE ordered_items
		SET position = position + ?, updated_at = ?
		WHERE parent_kind = ? AND parent_id = ? AND position BETWEEN ? AND ?
	`)

	result, err := r.q.ExecContext(ctx, query, delta, time.Now().UTC(), string(parent.Kind), parent.NodeID, int64(from), int64(to))
	if err != nil {
		return r.fail(span, err, "failed to shift positions")
	}
	if n, err := result.RowsAffected(); err == nil {
		span.SetAttributes(attribute.Int64("rows_affected", n))
	}
	return nil
}

func (r *Repository) DeleteByID(ctx context.Context, id int64) error {
	ctx, cancel, span := r.start(ctx, "DeleteByID", attribute.Int64("item.id", id))
	defer cancel()
	defer span.End()

	query := r.dialect.Rebind(`DELETE FROM ordered_items WHERE id = ?`)
	return r.execOne(ctx, span, query, "failed to delete item", id)
}

func (r *Repository) SetHidden(ctx context.Context, id int64, hidden bool) error {
	ctx, cancel, span := r.start(ctx, "SetHidden", attribute.Int64("item.id", id), attribute.Bool("hidden", hidden))
	defer cancel()
	defer span.End()

	query := r.dialect.Rebind(`UPDATE ordered_items SET hidden = ?, updated_at = ? WHERE id = ?`)
	return r.execOne(ctx, span, query, "failed to update hidden flag", hidden, time.Now().UTC(), id)
}

func (r *Repository) UpdatePayload(ctx context.Context, id int64, payload domain.Payload) error {
	ctx, cancel, span := r.start(ctx, "UpdatePayload", attribute.Int64("item.id", id))
	defer cancel()
	defer span.End()

	query := r.dialect.Rebind(`
		UPDATE ordered_items
		SET title = ?, body = ?, link_type = ?, link_id = ?, updated_at = ?
		WHERE id = ?
	`)
	return r.execOne(ctx, span, query, "failed to update payload",
		payload.Title,
		payload.Body,
		payload.LinkType,
		payload.LinkID,
		time.Now().UTC(),
		id,
	)
}

// execOne runs a single-row write and reports ErrItemNotFound when no row matched.
func (r *Repository) execOne(ctx context.Context, span trace.Span, query, msg string, args ...any) error {
	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return r.fail(span, err, msg)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return r.fail(span, err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		span.SetAttributes(attribute.Bool("not_found", true))
		return domain.ErrItemNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.Item, error) {
	item := &domain.Item{}
	var (
		kind                 string
		position             int64
		createdAt, updatedAt timestamp
	)

	err := row.Scan(
		&item.ID,
		&kind,
		&item.Parent.NodeID,
		&position,
		&item.Hidden,
		&item.Payload.Title,
		&item.Payload.Body,
		&item.Payload.LinkType,
		&item.Payload.LinkID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if position < 0 {
		return nil, fmt.Errorf("item %d has negative position %d: %w", item.ID, position, domain.ErrConstraintViolation)
	}
	item.Parent.Kind = domain.ListKind(kind)
	item.Position = uint(position)
	item.CreatedAt = time.Time(createdAt)
	item.UpdatedAt = time.Time(updatedAt)
	return item, nil
}

// timestamp scans the time representations the supported drivers produce.
type timestamp time.Time

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*t = timestamp(v.UTC())
		return nil
	case int64:
		*t = timestamp(time.Unix(0, v).UTC())
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	case nil:
		*t = timestamp(time.Time{})
		return nil
	}
	return fmt.Errorf("cannot scan %T into timestamp", src)
}

func (t *timestamp) parse(s string) error {
	// SQLite appends the monotonic clock reading when formatting time.Time.
	if i := strings.Index(s, " m="); i >= 0 {
		s = s[:i]
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = timestamp(parsed.UTC())
			return nil
		}
	}
	return fmt.Errorf("cannot parse %q as timestamp", s)
}

// RebindDollar rewrites ? placeholders into $1, $2, ...
func RebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
