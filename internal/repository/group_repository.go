package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/Freeeeeet/meal_registry/internal/model"
	"github.com/Freeeeeet/meal_registry/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

var groupTable = base.Table[model.Group]{
	Name:    "class_groups",
	Columns: []string{"name", "active"},
	Scan: func(row pgx.Row) (*model.Group, error) {
		var g model.Group
		if err := row.Scan(&g.ID, &g.Name, &g.Active); err != nil {
			return nil, err
		}
		return &g, nil
	},
}

type GroupRepository struct {
	*base.Store[model.Group]
}

func NewGroupRepository(db base.DBTX) *GroupRepository {
	return &GroupRepository{Store: base.NewStore(db, groupTable)}
}

// GetByNames получает группы по набору имён
func (r *GroupRepository) GetByNames(ctx context.Context, names []string) ([]*model.Group, error) {
	names = NormalizeNames(names)
	if len(names) == 0 {
		return []*model.Group{}, nil
	}

	groups, err := r.Find(ctx, base.Fields{"name": names})
	if err != nil {
		return nil, fmt.Errorf("get groups by names: %w", err)
	}
	return groups, nil
}

// EnsureByNames возвращает группы, создавая отсутствующие
func (r *GroupRepository) EnsureByNames(ctx context.Context, names []string) ([]*model.Group, error) {
	names = NormalizeNames(names)
	if len(names) == 0 {
		return []*model.Group{}, nil
	}

	query := `
		INSERT INTO class_groups (name)
		SELECT unnest($1::text[])
		ON CONFLICT (name) DO NOTHING
	`
	if _, err := r.DB().Exec(ctx, query, names); err != nil {
		return nil, fmt.Errorf("ensure groups: %w", &base.StoreError{Op: "ensure", Table: groupTable.Name, Err: err})
	}

	return r.GetByNames(ctx, names)
}

// NormalizeNames обрезает пробелы, убирает пустые и повторяющиеся имена
func NormalizeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	result := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		result = append(result, n)
	}
	return result
}
