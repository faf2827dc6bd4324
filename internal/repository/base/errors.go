package base

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrConflict нарушение ограничения уникальности
var ErrConflict = errors.New("unique constraint violation")

const uniqueViolationCode = "23505"

// StoreError ошибка хранилища: нарушение ограничения или сбой БД.
// Транзакцию вызывающего нужно откатить.
type StoreError struct {
	Op    string
	Table string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is позволяет проверять конфликт через errors.Is(err, ErrConflict)
func (e *StoreError) Is(target error) bool {
	return target == ErrConflict && IsUniqueViolation(e.Err)
}

// IsNotFound проверяет является ли ошибка "строка не найдена"
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation проверяет код ошибки PostgreSQL 23505
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func wrap(op, table string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Table: table, Err: err}
}
