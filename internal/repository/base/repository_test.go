package base

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   int64
	Name string
	Note *string
}

var itemTable = Table[item]{
	Name:    "items",
	Columns: []string{"name", "note"},
	Scan: func(row pgx.Row) (*item, error) {
		var it item
		if err := row.Scan(&it.ID, &it.Name, &it.Note); err != nil {
			return nil, err
		}
		return &it, nil
	},
}

func TestInsertSQL(t *testing.T) {
	s := NewStore[item](nil, itemTable)

	query, args, err := s.insertSQL(Fields{"note": nil, "name": "a"}, true)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO items (name, note) VALUES ($1, $2) RETURNING id, name, note", query)
	assert.Equal(t, []any{"a", nil}, args)

	query, args, err = s.insertSQL(Fields{}, false)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO items DEFAULT VALUES", query)
	assert.Empty(t, args)
}

func TestInsertSQLIgnoreConflict(t *testing.T) {
	table := itemTable
	table.IgnoreConflict = "name"
	s := NewStore[item](nil, table)

	query, _, err := s.insertSQL(Fields{"name": "a"}, true)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO items (name) VALUES ($1) ON CONFLICT (name) DO NOTHING RETURNING id, name, note", query)
}

func TestUpdateSQL(t *testing.T) {
	s := NewStore[item](nil, itemTable)

	query, args, err := s.updateSQL(7, Fields{"note": "x", "name": "b"}, true)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE items SET name = $1, note = $2 WHERE id = $3 RETURNING id, name, note", query)
	assert.Equal(t, []any{"b", "x", int64(7)}, args)

	_, _, err = s.updateSQL(7, Fields{"id": 8}, false)
	assert.Error(t, err)
}

func TestUnknownColumnRejected(t *testing.T) {
	s := NewStore[item](nil, itemTable)
	ctx := context.Background()

	_, err := s.Create(ctx, Fields{"bogus": 1})
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "create", storeErr.Op)
	assert.Equal(t, "items", storeErr.Table)

	_, err = s.Find(ctx, Fields{"bogus": 1})
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "find", storeErr.Op)

	_, err = s.Update(ctx, 1, Fields{"bogus": 1})
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "update", storeErr.Op)

	err = s.BulkCreate(ctx, []Fields{{"name": "ok"}, {"bogus": 1}})
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "bulk create", storeErr.Op)

	err = s.BulkUpdate(ctx, []Patch{{ID: 1, Fields: Fields{"id": 2}}})
	require.ErrorAs(t, err, &storeErr)
}

func TestEmptyBulkIsNoop(t *testing.T) {
	s := NewStore[item](nil, itemTable)

	assert.NoError(t, s.BulkCreate(context.Background(), nil))
	assert.NoError(t, s.BulkUpdate(context.Background(), nil))
}

func TestStoreErrorIsConflict(t *testing.T) {
	unique := &StoreError{Op: "create", Table: "items", Err: &pgconn.PgError{Code: "23505"}}
	wrapped := fmt.Errorf("create item: %w", unique)

	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.True(t, IsUniqueViolation(wrapped))
	assert.Contains(t, unique.Error(), "create items")

	other := &StoreError{Op: "create", Table: "items", Err: &pgconn.PgError{Code: "23503"}}
	assert.False(t, errors.Is(other, ErrConflict))

	assert.True(t, IsNotFound(fmt.Errorf("x: %w", pgx.ErrNoRows)))
	assert.NoError(t, wrap("op", "items", nil))
}
