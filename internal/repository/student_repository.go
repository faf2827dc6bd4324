package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/meal_registry/internal/model"
	"github.com/Freeeeeet/meal_registry/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

var studentTable = base.Table[model.Student]{
	Name:    "students",
	Columns: []string{"prontuario", "name", "active", "created_at"},
	Scan: func(row pgx.Row) (*model.Student, error) {
		var s model.Student
		if err := row.Scan(&s.ID, &s.Prontuario, &s.Name, &s.Active, &s.CreatedAt); err != nil {
			return nil, err
		}
		return &s, nil
	},
}

var studentGroups = base.Association{
	Table:  "student_groups",
	Owner:  "student_id",
	Target: "group_id",
}

type StudentRepository struct {
	*base.Store[model.Student]
}

func NewStudentRepository(db base.DBTX) *StudentRepository {
	return &StudentRepository{Store: base.NewStore(db, studentTable)}
}

// GetByProntuario получает студента по prontuário вместе с группами
func (r *StudentRepository) GetByProntuario(ctx context.Context, prontuario string) (*model.Student, error) {
	students, err := r.Find(ctx, base.Fields{"prontuario": prontuario})
	if err != nil {
		return nil, fmt.Errorf("get student by prontuario: %w", err)
	}
	if len(students) == 0 {
		return nil, nil
	}

	if err := r.loadGroups(ctx, students); err != nil {
		return nil, err
	}
	return students[0], nil
}

// GetByProntuarios получает студентов по набору prontuário
func (r *StudentRepository) GetByProntuarios(ctx context.Context, prontuarios []string) ([]*model.Student, error) {
	if len(prontuarios) == 0 {
		return []*model.Student{}, nil
	}
	return r.findWithGroups(ctx, base.Fields{"prontuario": prontuarios})
}

// GetByIDs получает студентов по списку ID
func (r *StudentRepository) GetByIDs(ctx context.Context, ids []int64) ([]*model.Student, error) {
	if len(ids) == 0 {
		return []*model.Student{}, nil
	}
	return r.findWithGroups(ctx, base.Fields{"id": ids})
}

// ListActive получает всех активных студентов в порядке ID
func (r *StudentRepository) ListActive(ctx context.Context) ([]*model.Student, error) {
	return r.findWithGroups(ctx, base.Fields{"active": true})
}

// AddToGroups добавляет студента в группы
func (r *StudentRepository) AddToGroups(ctx context.Context, studentID int64, groupIDs []int64) error {
	if err := studentGroups.Add(ctx, r.DB(), studentID, groupIDs); err != nil {
		return fmt.Errorf("add student to groups: %w", err)
	}
	return nil
}

func (r *StudentRepository) findWithGroups(ctx context.Context, filter base.Fields) ([]*model.Student, error) {
	students, err := r.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find students: %w", err)
	}

	if err := r.loadGroups(ctx, students); err != nil {
		return nil, err
	}
	return students, nil
}

// loadGroups предзагружает группы одним запросом
func (r *StudentRepository) loadGroups(ctx context.Context, students []*model.Student) error {
	if len(students) == 0 {
		return nil
	}

	byID := make(map[int64]*model.Student, len(students))
	ids := make([]int64, 0, len(students))
	for _, s := range students {
		byID[s.ID] = s
		ids = append(ids, s.ID)
	}

	query := `
		SELECT sg.student_id, g.id, g.name, g.active
		FROM student_groups sg
		JOIN class_groups g ON g.id = sg.group_id
		WHERE sg.student_id = ANY($1)
		ORDER BY sg.student_id, g.id
	`

	rows, err := r.DB().Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("load student groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			studentID int64
			group     model.Group
		)
		if err := rows.Scan(&studentID, &group.ID, &group.Name, &group.Active); err != nil {
			return fmt.Errorf("scan student group: %w", err)
		}
		if s, ok := byID[studentID]; ok {
			s.Groups = append(s.Groups, &group)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate student groups: %w", err)
	}

	return nil
}
