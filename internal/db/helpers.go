package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"upkeep/internal/types"
)

// nilIfEmpty converts an empty string to nil so nullable columns store NULL.
func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// derefString returns the pointed-to string or "" for NULL.
func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nilIfZeroTime returns nil if the time is zero, otherwise returns a pointer
// to the time. Used to let the DB default (NOW()) apply when no time is set.
func nilIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// dateArg encodes a calendar date for a DATE column. The zero Date is NULL.
func dateArg(d types.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.In(time.UTC)
}

// dateFromColumn converts a scanned DATE column back to a Date. pgx returns
// dates as UTC midnight.
func dateFromColumn(t *time.Time) types.Date {
	if t == nil {
		return types.Date{}
	}
	return types.DateOf(t.UTC())
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint
// violation (error code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isForeignKeyViolation checks for SQLSTATE 23503.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// listQuery accumulates WHERE conditions and positional arguments for the
// keyset-paginated list queries shared by every repository.
type listQuery struct {
	alias      string
	conditions []string
	args       []any
}

func newListQuery(alias string) *listQuery {
	return &listQuery{alias: alias}
}

// where adds a condition. Each "?" in cond is replaced by the next
// positional parameter bound to the corresponding value.
func (q *listQuery) where(cond string, values ...any) {
	for _, v := range values {
		q.args = append(q.args, v)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(q.args)), 1)
	}
	q.conditions = append(q.conditions, cond)
}

// after restricts the page to rows strictly after the cursor in
// (created_at DESC, id DESC) order.
func (q *listQuery) after(c types.Cursor) {
	if c.IsZero() {
		return
	}
	q.where(fmt.Sprintf("(%[1]s.created_at, %[1]s.id) < (?, ?)", q.alias), c.CreatedAt, c.ID)
}

// build renders the final statement. It fetches limit+1 rows so the caller
// can detect whether another page exists.
func (q *listQuery) build(columns, table string, limit int) (string, []any) {
	where := ""
	if len(q.conditions) > 0 {
		where = "WHERE " + strings.Join(q.conditions, " AND ")
	}
	args := append(q.args, limit+1)
	sql := fmt.Sprintf(
		`SELECT %s
		 FROM %s %s
		 %s
		 ORDER BY %s.created_at DESC, %s.id DESC
		 LIMIT $%d`,
		columns, table, q.alias, where, q.alias, q.alias, len(args),
	)
	return sql, args
}

// pageOf trims the limit+1 fetch and computes the next cursor.
func pageOf[T any](rows []T, limit int, key func(T) types.Cursor) ([]T, types.PageInfo) {
	var info types.PageInfo
	if len(rows) > limit {
		info.HasMore = true
		info.NextCursor = key(rows[limit-1]).Encode()
		rows = rows[:limit]
	}
	return rows, info
}
