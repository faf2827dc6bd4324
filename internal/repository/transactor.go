package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/meal_registry/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repositories репозитории поверх пула или транзакции
type Repositories struct {
	students     *StudentRepository
	groups       *GroupRepository
	reservations *ReservationRepository
	sessions     *SessionRepository
	consumptions *ConsumptionRepository
}

// NewRepositories создаёт репозитории поверх db
func NewRepositories(db base.DBTX) *Repositories {
	return &Repositories{
		students:     NewStudentRepository(db),
		groups:       NewGroupRepository(db),
		reservations: NewReservationRepository(db),
		sessions:     NewSessionRepository(db),
		consumptions: NewConsumptionRepository(db),
	}
}

func (r *Repositories) Students() Students         { return r.students }
func (r *Repositories) Groups() Groups             { return r.groups }
func (r *Repositories) Reservations() Reservations { return r.reservations }
func (r *Repositories) Sessions() Sessions         { return r.sessions }
func (r *Repositories) Consumptions() Consumptions { return r.consumptions }

// Transactor открывает транзакции на пуле
type Transactor struct {
	pool *pgxpool.Pool
}

func NewTransactor(pool *pgxpool.Pool) *Transactor {
	return &Transactor{pool: pool}
}

// InTx выполняет fn в транзакции
func (t *Transactor) InTx(ctx context.Context, fn func(tx Tx) error) error {
	// Начинаем транзакцию
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(NewRepositories(tx)); err != nil {
		return err
	}

	// Коммитим транзакцию
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
