package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/meal_registry/internal/model"
	"github.com/Freeeeeet/meal_registry/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

var reservationTable = base.Table[model.Reservation]{
	Name:           "reservations",
	Columns:        []string{"student_id", "meal_date", "dish", "cancelled", "created_at"},
	IgnoreConflict: "student_id, meal_date",
	Scan: func(row pgx.Row) (*model.Reservation, error) {
		var r model.Reservation
		err := row.Scan(&r.ID, &r.StudentID, &r.Date, &r.Dish, &r.Cancelled, &r.CreatedAt)
		if err != nil {
			return nil, err
		}
		return &r, nil
	},
}

type ReservationRepository struct {
	*base.Store[model.Reservation]
}

func NewReservationRepository(db base.DBTX) *ReservationRepository {
	return &ReservationRepository{Store: base.NewStore(db, reservationTable)}
}

// GetActiveForDate получает неотменённую бронь студента на дату
func (r *ReservationRepository) GetActiveForDate(ctx context.Context, studentID int64, date time.Time) (*model.Reservation, error) {
	reservations, err := r.Find(ctx, base.Fields{
		"student_id": studentID,
		"meal_date":  model.Day(date),
		"cancelled":  false,
	})
	if err != nil {
		return nil, fmt.Errorf("get active reservation: %w", err)
	}
	if len(reservations) == 0 {
		return nil, nil
	}
	return reservations[0], nil
}

// ListActiveByDate получает все неотменённые брони на дату
func (r *ReservationRepository) ListActiveByDate(ctx context.Context, date time.Time) ([]*model.Reservation, error) {
	reservations, err := r.Find(ctx, base.Fields{
		"meal_date": model.Day(date),
		"cancelled": false,
	})
	if err != nil {
		return nil, fmt.Errorf("list reservations by date: %w", err)
	}
	return reservations, nil
}

// SetCancelled отменяет или восстанавливает бронь, nil если не найдена
func (r *ReservationRepository) SetCancelled(ctx context.Context, id int64, cancelled bool) (*model.Reservation, error) {
	reservation, err := r.Update(ctx, id, base.Fields{"cancelled": cancelled})
	if err != nil {
		return nil, fmt.Errorf("set reservation cancelled: %w", err)
	}
	return reservation, nil
}
