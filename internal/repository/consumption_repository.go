package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/Freeeeeet/meal_registry/internal/model"
	"github.com/Freeeeeet/meal_registry/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

var consumptionTable = base.Table[model.Consumption]{
	Name:           "consumptions",
	Columns:        []string{"student_id", "session_id", "reservation_id", "consumed_at", "registered_at"},
	IgnoreConflict: "student_id, session_id",
	Scan: func(row pgx.Row) (*model.Consumption, error) {
		var c model.Consumption
		err := row.Scan(&c.ID, &c.StudentID, &c.SessionID, &c.ReservationID, &c.ConsumedAt, &c.RegisteredAt)
		if err != nil {
			return nil, err
		}
		return &c, nil
	},
}

type ConsumptionRepository struct {
	*base.Store[model.Consumption]
}

func NewConsumptionRepository(db base.DBTX) *ConsumptionRepository {
	return &ConsumptionRepository{Store: base.NewStore(db, consumptionTable)}
}

// Create записывает потребление. Повтор для пары (студент, сеанс)
// не создаёт строку и возвращает false.
func (r *ConsumptionRepository) Create(ctx context.Context, consumption *model.Consumption) (bool, error) {
	created, err := r.Store.Create(ctx, base.Fields{
		"student_id":     consumption.StudentID,
		"session_id":     consumption.SessionID,
		"reservation_id": consumption.ReservationID,
		"consumed_at":    consumption.ConsumedAt,
	})
	if err != nil {
		return false, fmt.Errorf("create consumption: %w", err)
	}
	if created == nil {
		return false, nil
	}

	consumption.ID = created.ID
	consumption.RegisteredAt = created.RegisteredAt
	return true, nil
}

// GetByID получает потребление по ID
func (r *ConsumptionRepository) GetByID(ctx context.Context, id int64) (*model.Consumption, error) {
	consumption, err := r.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get consumption by id: %w", err)
	}
	return consumption, nil
}

// GetByStudentAndSession получает потребление студента в сеансе
func (r *ConsumptionRepository) GetByStudentAndSession(ctx context.Context, studentID, sessionID int64) (*model.Consumption, error) {
	consumptions, err := r.Find(ctx, base.Fields{
		"student_id": studentID,
		"session_id": sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("get consumption: %w", err)
	}
	if len(consumptions) == 0 {
		return nil, nil
	}
	return consumptions[0], nil
}

// GetByProntuarioAndSession получает потребление по prontuário студента
func (r *ConsumptionRepository) GetByProntuarioAndSession(ctx context.Context, prontuario string, sessionID int64) (*model.Consumption, error) {
	query := fmt.Sprintf(`
		SELECT c.id, %s
		FROM consumptions c
		JOIN students s ON s.id = c.student_id
		WHERE s.prontuario = $1 AND c.session_id = $2
	`, prefixColumns("c", consumptionTable.Columns))

	consumption, err := r.QueryOne(ctx, query, prontuario, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get consumption by prontuario: %w", err)
	}
	return consumption, nil
}

// ListBySession получает все потребления сеанса в порядке регистрации
func (r *ConsumptionRepository) ListBySession(ctx context.Context, sessionID int64) ([]*model.Consumption, error) {
	consumptions, err := r.Find(ctx, base.Fields{"session_id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("list consumptions by session: %w", err)
	}
	return consumptions, nil
}

// Delete удаляет потребление, false если его не было
func (r *ConsumptionRepository) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := r.Store.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete consumption: %w", err)
	}
	return deleted, nil
}

// ReportBySession получает строки выгрузки потреблений сеанса.
// Dish не заполняется: его вычисляет сервис.
func (r *ConsumptionRepository) ReportBySession(ctx context.Context, sessionID int64) ([]*model.ConsumptionReport, error) {
	query := `
		SELECT
			c.id,
			s.prontuario,
			s.name,
			COALESCE((
				SELECT g.name
				FROM student_groups sg
				JOIN class_groups g ON g.id = sg.group_id
				WHERE sg.student_id = s.id
				ORDER BY g.id
				LIMIT 1
			), '') AS group_name,
			r.id IS NOT NULL AS has_reservation,
			r.dish,
			c.consumed_at
		FROM consumptions c
		JOIN students s ON s.id = c.student_id
		LEFT JOIN reservations r ON r.id = c.reservation_id
		WHERE c.session_id = $1
		ORDER BY s.name, c.id
	`

	rows, err := r.DB().Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("report consumptions: %w", err)
	}
	defer rows.Close()

	var reports []*model.ConsumptionReport
	for rows.Next() {
		var rep model.ConsumptionReport
		err := rows.Scan(
			&rep.ConsumptionID,
			&rep.Prontuario,
			&rep.StudentName,
			&rep.GroupName,
			&rep.HasReservation,
			&rep.ReservationDish,
			&rep.ConsumedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan consumption report: %w", err)
		}
		reports = append(reports, &rep)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consumption report: %w", err)
	}

	return reports, nil
}

func prefixColumns(alias string, columns []string) string {
	prefixed := make([]string, 0, len(columns))
	for _, c := range columns {
		prefixed = append(prefixed, alias+"."+c)
	}
	return strings.Join(prefixed, ", ")
}

func joinColumns(columns []string) string {
	return strings.Join(columns, ", ")
}
