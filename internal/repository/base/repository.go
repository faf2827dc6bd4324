package base

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX общий интерфейс для *pgxpool.Pool и pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Fields значения колонок для вставки, обновления или фильтра
type Fields map[string]any

// Patch частичное обновление одной записи
type Patch struct {
	ID     int64
	Fields Fields
}

// Table описывает таблицу сущности E
type Table[E any] struct {
	Name string
	// Columns без id, в том порядке, в котором их читает Scan
	Columns []string
	// IgnoreConflict колонки уникального ключа; конфликтующая вставка
	// молча пропускается. Если пусто, конфликт возвращается как ошибка.
	IgnoreConflict string
	// Scan читает id и Columns
	Scan func(row pgx.Row) (*E, error)
}

func (t Table[E]) selectList() string {
	return "id, " + strings.Join(t.Columns, ", ")
}

func (t Table[E]) hasColumn(name string) bool {
	if name == "id" {
		return true
	}
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Store базовый репозиторий с общими CRUD методами.
// Изменения видны последующим чтениям в той же транзакции сразу,
// а фиксация (commit) остаётся за вызывающим.
type Store[E any] struct {
	db    DBTX
	table Table[E]
}

// NewStore создаёт новый базовый репозиторий
func NewStore[E any](db DBTX, table Table[E]) *Store[E] {
	return &Store[E]{db: db, table: table}
}

// DB возвращает соединение или транзакцию
func (s *Store[E]) DB() DBTX {
	return s.db
}

// TableName возвращает имя таблицы
func (s *Store[E]) TableName() string {
	return s.table.Name
}

// Create вставляет запись и возвращает её со сгенерированным id.
// Для таблиц с IgnoreConflict повторная вставка возвращает nil, nil.
func (s *Store[E]) Create(ctx context.Context, fields Fields) (*E, error) {
	query, args, err := s.insertSQL(fields, true)
	if err != nil {
		return nil, wrap("create", s.table.Name, err)
	}

	item, err := s.table.Scan(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if IsNotFound(err) && s.table.IgnoreConflict != "" {
			return nil, nil
		}
		return nil, wrap("create", s.table.Name, err)
	}

	return item, nil
}

// Get получает запись по ID, nil если не найдена
func (s *Store[E]) Get(ctx context.Context, id int64) (*E, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", s.table.selectList(), s.table.Name)
	return s.QueryOne(ctx, query, id)
}

// Find получает записи по равенству колонок. Срез в значении
// превращается в "= ANY", nil в "IS NULL".
func (s *Store[E]) Find(ctx context.Context, filter Fields) ([]*E, error) {
	keys, err := s.sortedKeys(filter)
	if err != nil {
		return nil, wrap("find", s.table.Name, err)
	}

	var (
		where []string
		args  []any
	)
	for _, k := range keys {
		v := filter[k]
		switch v.(type) {
		case nil:
			where = append(where, k+" IS NULL")
		case []int64, []string:
			args = append(args, v)
			where = append(where, fmt.Sprintf("%s = ANY($%d)", k, len(args)))
		default:
			args = append(args, v)
			where = append(where, fmt.Sprintf("%s = $%d", k, len(args)))
		}
	}

	query := fmt.Sprintf("SELECT %s FROM %s", s.table.selectList(), s.table.Name)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	return s.Query(ctx, query, args...)
}

// All получает все записи таблицы
func (s *Store[E]) All(ctx context.Context) ([]*E, error) {
	return s.Find(ctx, nil)
}

// Update частично обновляет запись. Для отсутствующего id nil без ошибки.
func (s *Store[E]) Update(ctx context.Context, id int64, fields Fields) (*E, error) {
	if len(fields) == 0 {
		return s.Get(ctx, id)
	}

	query, args, err := s.updateSQL(id, fields, true)
	if err != nil {
		return nil, wrap("update", s.table.Name, err)
	}
	return s.QueryOne(ctx, query, args...)
}

// Delete удаляет запись и сообщает, была ли она удалена
func (s *Store[E]) Delete(ctx context.Context, id int64) (bool, error) {
	affected, err := s.ExecAffected(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.table.Name), id)
	if err != nil {
		return false, wrap("delete", s.table.Name, err)
	}
	return affected > 0, nil
}

// BulkCreate вставляет записи одним пакетом: либо все, либо ни одной.
// Внутри транзакции используется точка сохранения.
func (s *Store[E]) BulkCreate(ctx context.Context, rows []Fields) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, fields := range rows {
		query, args, err := s.insertSQL(fields, false)
		if err != nil {
			return wrap("bulk create", s.table.Name, err)
		}
		batch.Queue(query, args...)
	}

	return wrap("bulk create", s.table.Name, s.sendAtomic(ctx, batch))
}

// BulkUpdate обновляет записи одним пакетом: либо все, либо ни одной
func (s *Store[E]) BulkUpdate(ctx context.Context, patches []Patch) error {
	if len(patches) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range patches {
		if len(p.Fields) == 0 {
			continue
		}
		query, args, err := s.updateSQL(p.ID, p.Fields, false)
		if err != nil {
			return wrap("bulk update", s.table.Name, err)
		}
		batch.Queue(query, args...)
	}
	if batch.Len() == 0 {
		return nil
	}

	return wrap("bulk update", s.table.Name, s.sendAtomic(ctx, batch))
}

// Query выполняет запрос, возвращающий колонки в порядке Scan
func (s *Store[E]) Query(ctx context.Context, query string, args ...any) ([]*E, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("query", s.table.Name, err)
	}
	defer rows.Close()

	var items []*E
	for rows.Next() {
		item, err := s.table.Scan(rows)
		if err != nil {
			return nil, wrap("scan", s.table.Name, err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("iterate", s.table.Name, err)
	}

	return items, nil
}

// QueryOne выполняет запрос и возвращает одну запись или nil
func (s *Store[E]) QueryOne(ctx context.Context, query string, args ...any) (*E, error) {
	item, err := s.table.Scan(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, wrap("query", s.table.Name, err)
	}
	return item, nil
}

// ExecAffected выполняет команду и возвращает количество затронутых строк
func (s *Store[E]) ExecAffected(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store[E]) sendAtomic(ctx context.Context, batch *pgx.Batch) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("statement %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *Store[E]) insertSQL(fields Fields, returning bool) (string, []any, error) {
	keys, err := s.sortedKeys(fields)
	if err != nil {
		return "", nil, err
	}

	var query string
	args := make([]any, 0, len(keys))
	if len(keys) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", s.table.Name)
	} else {
		placeholders := make([]string, 0, len(keys))
		for i, k := range keys {
			args = append(args, fields[k])
			placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			s.table.Name, strings.Join(keys, ", "), strings.Join(placeholders, ", "))
	}

	if s.table.IgnoreConflict != "" {
		query += fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", s.table.IgnoreConflict)
	}
	if returning {
		query += " RETURNING " + s.table.selectList()
	}

	return query, args, nil
}

func (s *Store[E]) updateSQL(id int64, fields Fields, returning bool) (string, []any, error) {
	keys, err := s.sortedKeys(fields)
	if err != nil {
		return "", nil, err
	}

	set := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+1)
	for i, k := range keys {
		if k == "id" {
			return "", nil, fmt.Errorf("column id is read-only")
		}
		args = append(args, fields[k])
		set = append(set, fmt.Sprintf("%s = $%d", k, i+1))
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		s.table.Name, strings.Join(set, ", "), len(args))
	if returning {
		query += " RETURNING " + s.table.selectList()
	}

	return query, args, nil
}

func (s *Store[E]) sortedKeys(fields Fields) ([]string, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !s.table.hasColumn(k) {
			return nil, fmt.Errorf("unknown column %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
