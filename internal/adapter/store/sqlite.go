package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"topicidx/config"
	"topicidx/internal/domain"
)

// MetadataStore keeps one row per document in a SQLite table whose columns
// come from the configured schema.
type MetadataStore struct {
	db         *sql.DB
	table      string
	fields     []config.Field
	byName     map[string]config.Field
	sortable   map[string]bool
	filterable map[string]bool
	logger     *slog.Logger
}

// OpenMetadataStore opens (or creates) the database at path.
func OpenMetadataStore(path, table string, fields []config.Field, logger *slog.Logger) (*MetadataStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &MetadataStore{
		db:         db,
		table:      table,
		fields:     fields,
		byName:     make(map[string]config.Field, len(fields)),
		sortable:   make(map[string]bool),
		filterable: make(map[string]bool),
		logger:     logger,
	}
	for _, f := range fields {
		s.byName[f.Name] = f
		if f.AllowSort {
			s.sortable[f.Name] = true
		}
		if f.AllowFilter {
			s.filterable[f.Name] = true
		}
	}
	return s, nil
}

// Close closes the database.
func (s *MetadataStore) Close() error {
	return s.db.Close()
}

func (s *MetadataStore) conn(ctx context.Context) (*sql.Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata store: %v", domain.ErrDependencyUnavailable, err)
	}
	return conn, nil
}

// Rebuild drops and recreates the table, then inserts every record in one
// transaction. It returns the number of rows inserted.
func (s *MetadataStore) Rebuild(ctx context.Context, records []domain.IngestRecord) (int, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(s.table)); err != nil {
		return 0, fmt.Errorf("failed to drop table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.createStatement()); err != nil {
		return 0, fmt.Errorf("failed to create table: %w", err)
	}

	cols := []string{"id", "text", "parent_id"}
	for _, f := range s.fields {
		cols = append(cols, f.Name)
	}
	cols = append(cols, "inserted_at")

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
		marks[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(s.table), strings.Join(quoted, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	insertedAt := time.Now().UTC().Format(time.RFC3339)
	n := 0
	for _, r := range records {
		args := []any{r.ID, nullable(r.Text), nullable(r.ParentID)}
		for _, f := range s.fields {
			v, ok := r.Values[f.Name]
			if !ok || v == nil {
				v = f.Default
			}
			args = append(args, v)
		}
		args = append(args, insertedAt)

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return n, fmt.Errorf("failed to insert document %s: %w", r.ID, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	s.logger.Info("metadata_table_rebuilt",
		slog.String("table", s.table),
		slog.Int("rows", n))
	return n, nil
}

func (s *MetadataStore) createStatement() string {
	cols := []string{
		`"id" TEXT PRIMARY KEY`,
		`"text" TEXT`,
		`"parent_id" TEXT`,
	}
	for _, f := range s.fields {
		def := quote(f.Name) + " " + strings.ToUpper(f.Type)
		if !f.Optional {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}
	cols = append(cols, `"inserted_at" TEXT NOT NULL`)
	return fmt.Sprintf("CREATE TABLE %s (%s)", quote(s.table), strings.Join(cols, ", "))
}

// Lookup hydrates ids. Without a sort field the rows keep the order of ids.
func (s *MetadataStore) Lookup(ctx context.Context, ids []string, opts domain.LookupOptions) ([]domain.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	order, err := s.orderClause(opts)
	if err != nil {
		return nil, err
	}

	idList, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE id IN (SELECT value FROM json_each(?))", quote(s.table))
	args := []any{string(idList)}

	if opts.FilterField != "" {
		if !s.filterable[opts.FilterField] {
			return nil, fmt.Errorf("%w: field %q does not allow filtering", domain.ErrInvalidInput, opts.FilterField)
		}
		if opts.FilterSubstring != "" {
			query += fmt.Sprintf(` AND %s LIKE ? ESCAPE '\'`, quote(opts.FilterField))
			args = append(args, "%"+escapeLike(opts.FilterSubstring)+"%")
		}
	}
	query += order

	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	records, err := s.query(ctx, conn, query, args...)
	if err != nil {
		return nil, err
	}

	if order == "" {
		rank := make(map[string]int, len(ids))
		for i, id := range ids {
			if _, seen := rank[id]; !seen {
				rank[id] = i
			}
		}
		sortByRank(records, rank)
	}
	return records, nil
}

func (s *MetadataStore) orderClause(opts domain.LookupOptions) (string, error) {
	if opts.SortField == "" {
		return "", nil
	}
	if !s.sortable[opts.SortField] {
		return "", fmt.Errorf("%w: field %q does not allow sorting", domain.ErrInvalidInput, opts.SortField)
	}
	dir := "ASC"
	switch strings.ToLower(opts.SortOrder) {
	case "", "asc":
	case "desc":
		dir = "DESC"
	default:
		return "", fmt.Errorf("%w: sort order %q", domain.ErrInvalidInput, opts.SortOrder)
	}
	return fmt.Sprintf(" ORDER BY %s %s, id ASC", quote(opts.SortField), dir), nil
}

// Get returns the record with the given id.
func (s *MetadataStore) Get(ctx context.Context, id string) (domain.Record, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return domain.Record{}, err
	}
	defer conn.Close()

	records, err := s.query(ctx, conn, fmt.Sprintf("SELECT * FROM %s WHERE id = ?", quote(s.table)), id)
	if err != nil {
		return domain.Record{}, err
	}
	if len(records) == 0 {
		return domain.Record{}, fmt.Errorf("%w: document %q", domain.ErrNotFound, id)
	}
	return records[0], nil
}

// List returns up to limit records in insertion order.
func (s *MetadataStore) List(ctx context.Context, limit int) ([]domain.Record, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return s.query(ctx, conn, fmt.Sprintf("SELECT * FROM %s ORDER BY rowid LIMIT ?", quote(s.table)), limit)
}

// Corpus returns (id, text) pairs ordered by id. textField must be "text" or
// a declared field.
func (s *MetadataStore) Corpus(ctx context.Context, textField string) ([]domain.RawDocument, error) {
	if _, ok := s.byName[textField]; !ok && textField != "text" {
		return nil, fmt.Errorf("%w: unknown text field %q", domain.ErrInvalidInput, textField)
	}

	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, fmt.Sprintf("SELECT id, %s FROM %s ORDER BY id ASC",
		quote(textField), quote(s.table)))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read corpus: %v", domain.ErrDependencyUnavailable, err)
	}
	defer rows.Close()

	var docs []domain.RawDocument
	for rows.Next() {
		var id string
		var text sql.NullString
		if err := rows.Scan(&id, &text); err != nil {
			return nil, fmt.Errorf("failed to scan corpus row: %w", err)
		}
		docs = append(docs, domain.RawDocument{ID: id, Text: text.String})
	}
	return docs, rows.Err()
}

// Count returns the number of rows.
func (s *MetadataStore) Count(ctx context.Context) (int, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var n int
	err = conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quote(s.table)).Scan(&n)
	return n, err
}

// IDs returns every id in ascending order.
func (s *MetadataStore) IDs(ctx context.Context) ([]string, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, fmt.Sprintf("SELECT id FROM %s ORDER BY id ASC", quote(s.table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *MetadataStore) query(ctx context.Context, conn *sql.Conn, query string, args ...any) ([]domain.Record, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata query failed: %v", domain.ErrDependencyUnavailable, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []domain.Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rec := domain.Record{Metadata: make(map[string]any, len(cols))}
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			if col == "id" {
				rec.ID, _ = v.(string)
				continue
			}
			rec.Metadata[col] = v
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func sortByRank(records []domain.Record, rank map[string]int) {
	sort.SliceStable(records, func(i, j int) bool {
		return rank[records[i].ID] < rank[records[j].ID]
	})
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
