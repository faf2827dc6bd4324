package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/meal_registry/internal/model"
	"github.com/Freeeeeet/meal_registry/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

var sessionTable = base.Table[model.Session]{
	Name:    "meal_sessions",
	Columns: []string{"meal_kind", "period", "served_date", "served_time", "served_item", "created_at"},
	Scan: func(row pgx.Row) (*model.Session, error) {
		var (
			s    model.Session
			meal string
		)
		err := row.Scan(&s.ID, &meal, &s.Period, &s.Date, &s.Time, &s.ServedItem, &s.CreatedAt)
		if err != nil {
			return nil, err
		}
		s.Meal = model.MealKind(meal)
		return &s, nil
	},
}

var sessionGroups = base.Association{
	Table:  "session_groups",
	Owner:  "session_id",
	Target: "group_id",
}

type SessionRepository struct {
	*base.Store[model.Session]
}

func NewSessionRepository(db base.DBTX) *SessionRepository {
	return &SessionRepository{Store: base.NewStore(db, sessionTable)}
}

func sessionFields(session *model.Session) base.Fields {
	return base.Fields{
		"meal_kind":   string(session.Meal),
		"period":      session.Period,
		"served_date": model.Day(session.Date),
		"served_time": session.Time,
		"served_item": session.ServedItem,
	}
}

// Create создаёт сеанс. Совпадение (вид, дата, время) возвращает
// StoreError с ErrConflict.
func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	created, err := r.Store.Create(ctx, sessionFields(session))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	session.ID = created.ID
	session.Date = created.Date
	session.CreatedAt = created.CreatedAt
	return nil
}

// GetByID получает сеанс с группами-исключениями
func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*model.Session, error) {
	session, err := r.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session by id: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	if err := r.loadGroups(ctx, []*model.Session{session}); err != nil {
		return nil, err
	}
	return session, nil
}

// List получает все сеансы
func (r *SessionRepository) List(ctx context.Context) ([]*model.Session, error) {
	sessions, err := r.Query(ctx, fmt.Sprintf(`
		SELECT id, %s FROM meal_sessions
		ORDER BY served_date DESC, served_time DESC, id DESC
	`, joinColumns(sessionTable.Columns)))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	if err := r.loadGroups(ctx, sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// UpdateDetails обновляет вид, период, дату, время и блюдо сеанса
func (r *SessionRepository) UpdateDetails(ctx context.Context, session *model.Session) (bool, error) {
	updated, err := r.Update(ctx, session.ID, sessionFields(session))
	if err != nil {
		return false, fmt.Errorf("update session: %w", err)
	}
	return updated != nil, nil
}

// Delete удаляет сеанс вместе с его потреблениями
func (r *SessionRepository) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := r.Store.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return deleted, nil
}

// ReplaceGroups заменяет группы-исключения сеанса целиком
func (r *SessionRepository) ReplaceGroups(ctx context.Context, sessionID int64, groupIDs []int64) error {
	if err := sessionGroups.Replace(ctx, r.DB(), sessionID, groupIDs); err != nil {
		return fmt.Errorf("replace session groups: %w", err)
	}
	return nil
}

func (r *SessionRepository) loadGroups(ctx context.Context, sessions []*model.Session) error {
	if len(sessions) == 0 {
		return nil
	}

	byID := make(map[int64]*model.Session, len(sessions))
	ids := make([]int64, 0, len(sessions))
	for _, s := range sessions {
		byID[s.ID] = s
		ids = append(ids, s.ID)
	}

	query := `
		SELECT sg.session_id, g.id, g.name, g.active
		FROM session_groups sg
		JOIN class_groups g ON g.id = sg.group_id
		WHERE sg.session_id = ANY($1)
		ORDER BY sg.session_id, g.name
	`

	rows, err := r.DB().Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("load session groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sessionID int64
			group     model.Group
		)
		if err := rows.Scan(&sessionID, &group.ID, &group.Name, &group.Active); err != nil {
			return fmt.Errorf("scan session group: %w", err)
		}
		if s, ok := byID[sessionID]; ok {
			s.Groups = append(s.Groups, &group)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate session groups: %w", err)
	}

	return nil
}
