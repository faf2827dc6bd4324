package base

import (
	"context"
	"fmt"
)

// Association таблица связи многие-ко-многим
type Association struct {
	Table  string
	Owner  string
	Target string
}

// Add добавляет связи, существующие пропускаются
func (a Association) Add(ctx context.Context, db DBTX, ownerID int64, targetIDs []int64) error {
	if len(targetIDs) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING
	`, a.Table, a.Owner, a.Target)

	if _, err := db.Exec(ctx, query, ownerID, targetIDs); err != nil {
		return wrap("link", a.Table, err)
	}
	return nil
}

// Replace заменяет все связи владельца целиком
func (a Association) Replace(ctx context.Context, db DBTX, ownerID int64, targetIDs []int64) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", a.Table, a.Owner)
	if _, err := db.Exec(ctx, query, ownerID); err != nil {
		return wrap("unlink", a.Table, err)
	}
	return a.Add(ctx, db, ownerID, targetIDs)
}
