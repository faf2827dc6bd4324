package repository

import (
	"context"
	"time"

	"github.com/Freeeeeet/meal_registry/internal/model"
	"github.com/Freeeeeet/meal_registry/internal/repository/base"
)

// Students доступ к студентам; группы всегда предзагружены
type Students interface {
	GetByProntuario(ctx context.Context, prontuario string) (*model.Student, error)
	GetByProntuarios(ctx context.Context, prontuarios []string) ([]*model.Student, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*model.Student, error)
	ListActive(ctx context.Context) ([]*model.Student, error)
	AddToGroups(ctx context.Context, studentID int64, groupIDs []int64) error
	BulkCreate(ctx context.Context, rows []base.Fields) error
	// BulkUpdate применяет все патчи или ни одного
	BulkUpdate(ctx context.Context, patches []base.Patch) error
}

type Groups interface {
	GetByNames(ctx context.Context, names []string) ([]*model.Group, error)
	EnsureByNames(ctx context.Context, names []string) ([]*model.Group, error)
}

type Reservations interface {
	GetActiveForDate(ctx context.Context, studentID int64, date time.Time) (*model.Reservation, error)
	ListActiveByDate(ctx context.Context, date time.Time) ([]*model.Reservation, error)
	SetCancelled(ctx context.Context, id int64, cancelled bool) (*model.Reservation, error)
	BulkCreate(ctx context.Context, rows []base.Fields) error
}

// Sessions доступ к сеансам; группы-исключения предзагружены
type Sessions interface {
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id int64) (*model.Session, error)
	List(ctx context.Context) ([]*model.Session, error)
	UpdateDetails(ctx context.Context, session *model.Session) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	ReplaceGroups(ctx context.Context, sessionID int64, groupIDs []int64) error
}

type Consumptions interface {
	// Create возвращает false, если пара (студент, сеанс) уже записана
	Create(ctx context.Context, consumption *model.Consumption) (bool, error)
	GetByID(ctx context.Context, id int64) (*model.Consumption, error)
	GetByStudentAndSession(ctx context.Context, studentID, sessionID int64) (*model.Consumption, error)
	GetByProntuarioAndSession(ctx context.Context, prontuario string, sessionID int64) (*model.Consumption, error)
	ListBySession(ctx context.Context, sessionID int64) ([]*model.Consumption, error)
	Delete(ctx context.Context, id int64) (bool, error)
	ReportBySession(ctx context.Context, sessionID int64) ([]*model.ConsumptionReport, error)
}

// Tx набор репозиториев, привязанных к одной транзакции
type Tx interface {
	Students() Students
	Groups() Groups
	Reservations() Reservations
	Sessions() Sessions
	Consumptions() Consumptions
}

// TxRunner выполняет fn в транзакции: commit при nil, иначе rollback
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
