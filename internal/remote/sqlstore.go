package remote

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// SQLStore implements Store over database/sql, speaking either the MySQL or
// the Postgres placeholder dialect.
type SQLStore struct {
	db     *sql.DB
	driver string
	log    *zap.Logger

	colMu sync.RWMutex
	cols  map[string][]string
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func NewSQLStore(db *sql.DB, driverName string, log *zap.Logger) *SQLStore {
	return &SQLStore{
		db:     db,
		driver: driverName,
		log:    log,
		cols:   make(map[string][]string),
	}
}

func (s *SQLStore) placeholder(n int) string {
	if s.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) checkIdentifier(op, name string) error {
	if !identifierRe.MatchString(name) {
		return newError(op, name, KindQuery, fmt.Errorf("invalid identifier %q", name))
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return newError("ping", "", KindUnavailable, err)
	}
	return nil
}

func (s *SQLStore) Select(ctx context.Context, table string, q Query) ([]Record, error) {
	if err := s.checkIdentifier("select", table); err != nil {
		return nil, err
	}

	query, args, err := s.buildSelect(table, q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.classify("select", table, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *SQLStore) buildSelect(table string, q Query) (string, []any, error) {
	var (
		sb    strings.Builder
		args  []any
		conds []string
	)
	sb.WriteString("SELECT * FROM " + table)

	if len(q.Eq) > 0 {
		keys := make([]string, 0, len(q.Eq))
		for k := range q.Eq {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := s.checkIdentifier("select", k); err != nil {
				return "", nil, err
			}
			args = append(args, q.Eq[k])
			conds = append(conds, fmt.Sprintf("%s = %s", k, s.placeholder(len(args))))
		}
	}

	if q.Since != nil && len(q.SinceFields) > 0 {
		var since []string
		for _, f := range q.SinceFields {
			if err := s.checkIdentifier("select", f); err != nil {
				return "", nil, err
			}
			args = append(args, *q.Since)
			since = append(since, fmt.Sprintf("%s >= %s", f, s.placeholder(len(args))))
		}
		conds = append(conds, "("+strings.Join(since, " OR ")+")")
	}

	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}

	if q.OrderBy != "" {
		if err := s.checkIdentifier("select", q.OrderBy); err != nil {
			return "", nil, err
		}
		sb.WriteString(" ORDER BY " + q.OrderBy)
		if q.Descending {
			sb.WriteString(" DESC")
		}
	}

	if q.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", q.Limit))
	}

	return sb.String(), args, nil
}

func (s *SQLStore) Get(ctx context.Context, table, id string) (Record, error) {
	recs, err := s.Select(ctx, table, Query{Eq: map[string]any{"id": id}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

func (s *SQLStore) Insert(ctx context.Context, table string, rec Record) error {
	if err := s.checkIdentifier("insert", table); err != nil {
		return err
	}

	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		cols         []string
		placeholders []string
		args         []any
	)
	for _, k := range keys {
		if err := s.checkIdentifier("insert", k); err != nil {
			return err
		}
		cols = append(cols, k)
		args = append(args, rec[k])
		placeholders = append(placeholders, s.placeholder(len(args)))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return s.classify("insert", table, err)
	}
	return nil
}

func (s *SQLStore) Update(ctx context.Context, table, id string, rec Record) error {
	if err := s.checkIdentifier("update", table); err != nil {
		return err
	}

	keys := make([]string, 0, len(rec))
	for k := range rec {
		if k == "id" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return nil
	}

	var (
		sets []string
		args []any
	)
	for _, k := range keys {
		if err := s.checkIdentifier("update", k); err != nil {
			return err
		}
		args = append(args, rec[k])
		sets = append(sets, fmt.Sprintf("%s = %s", k, s.placeholder(len(args))))
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s",
		table, strings.Join(sets, ", "), s.placeholder(len(args)))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return s.classify("update", table, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, table, id string) (bool, error) {
	if err := s.checkIdentifier("delete", table); err != nil {
		return false, err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = %s", table, s.placeholder(1))
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, s.classify("delete", table, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLStore) Columns(ctx context.Context, table string) ([]string, error) {
	s.colMu.RLock()
	cached, ok := s.cols[table]
	s.colMu.RUnlock()
	if ok {
		return cached, nil
	}

	if err := s.checkIdentifier("columns", table); err != nil {
		return nil, err
	}

	var (
		rows *sql.Rows
		err  error
	)
	if s.driver == "postgres" {
		rows, err = s.db.QueryContext(ctx,
			"SELECT column_name FROM information_schema.columns WHERE table_name = $1", table)
	} else {
		rows, err = s.db.QueryContext(ctx, "SHOW COLUMNS FROM "+table)
	}
	if err != nil {
		return nil, s.classify("columns", table, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, s.classify("columns", table, err)
	}

	var cols []string
	for rows.Next() {
		// SHOW COLUMNS yields several fields per row; only the name matters.
		dest := make([]any, len(names))
		var field string
		dest[0] = &field
		for i := 1; i < len(dest); i++ {
			dest[i] = new(sql.RawBytes)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, s.classify("columns", table, err)
		}
		cols = append(cols, field)
	}
	if err := rows.Err(); err != nil {
		return nil, s.classify("columns", table, err)
	}

	s.colMu.Lock()
	s.cols[table] = cols
	s.colMu.Unlock()

	return cols, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, newError("scan", "", KindQuery, err)
	}

	records := []Record{}
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, newError("scan", "", KindQuery, err)
		}

		rec := make(Record, len(names))
		for i, name := range names {
			switch v := values[i].(type) {
			case []byte:
				rec[name] = string(v)
			default:
				rec[name] = v
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, newError("scan", "", KindTransient, err)
	}
	return records, nil
}

func (s *SQLStore) classify(op, table string, err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return newError(op, table, KindConflict, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return newError(op, table, KindConflict, err)
	}

	var netErr net.Error
	switch {
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return newError(op, table, KindUnavailable, err)
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		return newError(op, table, KindTransient, err)
	}

	return newError(op, table, KindQuery, err)
}
