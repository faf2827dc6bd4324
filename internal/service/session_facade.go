package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Freeeeeet/meal_registry/internal/model"
	"github.com/Freeeeeet/meal_registry/internal/repository"
	"github.com/Freeeeeet/meal_registry/internal/repository/base"
	"go.uber.org/zap"
)

// NewSession параметры создания сеанса
type NewSession struct {
	Meal            model.MealKind
	Date            time.Time
	Time            string
	Period          string
	ServedItem      *string
	ExceptionGroups []string
}

// SessionDetails редактируемые поля сеанса. Группы меняются отдельно.
type SessionDetails struct {
	Meal       model.MealKind
	Date       time.Time
	Time       string
	Period     string
	ServedItem *string
}

// SessionFacade владеет идентификатором активного сеанса.
// Все операции над активным сеансом выполняются под одним мьютексом.
type SessionFacade struct {
	mu       sync.Mutex
	activeID *int64

	tx           repository.TxRunner
	registration *RegistrationService
	logger       *zap.Logger
}

func NewSessionFacade(tx repository.TxRunner, registration *RegistrationService, logger *zap.Logger) *SessionFacade {
	return &SessionFacade{
		tx:           tx,
		registration: registration,
		logger:       logger,
	}
}

// CreateSession создаёт сеанс, прикрепляет группы-исключения (создавая
// неизвестные) и делает его активным
func (f *SessionFacade) CreateSession(ctx context.Context, params NewSession) (int64, error) {
	session, err := buildSession(SessionDetails{
		Meal:       params.Meal,
		Date:       params.Date,
		Time:       params.Time,
		Period:     params.Period,
		ServedItem: params.ServedItem,
	})
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	err = f.tx.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.Sessions().Create(ctx, session); err != nil {
			if errors.Is(err, base.ErrConflict) {
				return fmt.Errorf("%w: %s %s %s: %w", ErrSessionExists,
					session.Meal, session.Date.Format(model.DateLayout), session.Time, err)
			}
			return err
		}

		return attachGroups(ctx, tx, session.ID, params.ExceptionGroups)
	})
	if err != nil {
		return 0, err
	}

	id := session.ID
	f.activeID = &id

	f.logger.Info("Session created",
		zap.Int64("session_id", id),
		zap.String("meal", string(session.Meal)),
		zap.String("date", session.Date.Format(model.DateLayout)),
		zap.String("time", session.Time),
		zap.Strings("exception_groups", repository.NormalizeNames(params.ExceptionGroups)),
	)

	return id, nil
}

func buildSession(details SessionDetails) (*model.Session, error) {
	if !details.Meal.Valid() {
		return nil, fmt.Errorf("%w: unknown meal kind %q", ErrInvalidSession, details.Meal)
	}
	if details.Date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", ErrInvalidSession)
	}

	timeOfDay, err := model.NormalizeTimeOfDay(details.Time)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	// Подаваемое блюдо бывает только у перекуса
	var served *string
	if details.Meal == model.MealSnack && details.ServedItem != nil {
		if item := strings.TrimSpace(*details.ServedItem); item != "" {
			served = &item
		}
	}

	return &model.Session{
		Meal:       details.Meal,
		Period:     strings.TrimSpace(details.Period),
		Date:       model.Day(details.Date),
		Time:       timeOfDay,
		ServedItem: served,
	}, nil
}

func attachGroups(ctx context.Context, tx repository.Tx, sessionID int64, names []string) error {
	groups, err := tx.Groups().EnsureByNames(ctx, names)
	if err != nil {
		return fmt.Errorf("ensure exception groups: %w", err)
	}

	ids := make([]int64, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}

	return tx.Sessions().ReplaceGroups(ctx, sessionID, ids)
}

// SetActive делает существующий сеанс активным
func (f *SessionFacade) SetActive(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.tx.InTx(ctx, func(tx repository.Tx) error {
		_, err := getSession(ctx, tx, id)
		return err
	})
	if err != nil {
		return err
	}

	f.activeID = &id
	f.logger.Info("Session activated", zap.Int64("session_id", id))
	return nil
}

// Deactivate сбрасывает активный сеанс
func (f *SessionFacade) Deactivate() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.activeID != nil {
		f.logger.Info("Session deactivated", zap.Int64("session_id", *f.activeID))
	}
	f.activeID = nil
}

// ActiveSessionID возвращает активный сеанс, если он есть
func (f *SessionFacade) ActiveSessionID() (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.activeID == nil {
		return 0, false
	}
	return *f.activeID, true
}

// ActiveSession возвращает активный сеанс с группами-исключениями
func (f *SessionFacade) ActiveSession(ctx context.Context) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, err := f.requireActive()
	if err != nil {
		return nil, err
	}
	return f.getSession(ctx, id)
}

// UpdateExceptionGroups заменяет группы-исключения активного сеанса целиком.
// Уже записанные потребления сохраняются.
func (f *SessionFacade) UpdateExceptionGroups(ctx context.Context, names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, err := f.requireActive()
	if err != nil {
		return err
	}

	err = f.tx.InTx(ctx, func(tx repository.Tx) error {
		if _, err := getSession(ctx, tx, id); err != nil {
			return err
		}
		return attachGroups(ctx, tx, id, names)
	})
	if err != nil {
		return err
	}

	f.logger.Info("Exception groups replaced",
		zap.Int64("session_id", id),
		zap.Strings("groups", repository.NormalizeNames(names)),
	)
	return nil
}

// UpdateSessionDetails меняет вид, период, дату, время и блюдо сеанса
func (f *SessionFacade) UpdateSessionDetails(ctx context.Context, id int64, details SessionDetails) error {
	session, err := buildSession(details)
	if err != nil {
		return err
	}
	session.ID = id

	f.mu.Lock()
	defer f.mu.Unlock()

	err = f.tx.InTx(ctx, func(tx repository.Tx) error {
		updated, err := tx.Sessions().UpdateDetails(ctx, session)
		if err != nil {
			if errors.Is(err, base.ErrConflict) {
				return fmt.Errorf("%w: %w", ErrSessionExists, err)
			}
			return err
		}
		if !updated {
			return fmt.Errorf("%w: id %d", ErrSessionNotFound, id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	f.logger.Info("Session updated", zap.Int64("session_id", id))
	return nil
}

// DeleteSession удаляет сеанс вместе с потреблениями. Если он был активным,
// активный сеанс сбрасывается.
func (f *SessionFacade) DeleteSession(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.tx.InTx(ctx, func(tx repository.Tx) error {
		deleted, err := tx.Sessions().Delete(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("%w: id %d", ErrSessionNotFound, id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if f.activeID != nil && *f.activeID == id {
		f.activeID = nil
	}

	f.logger.Info("Session deleted", zap.Int64("session_id", id))
	return nil
}

// ListSessions возвращает все сеансы, новые первыми
func (f *SessionFacade) ListSessions(ctx context.Context) ([]*model.Session, error) {
	var sessions []*model.Session
	err := f.tx.InTx(ctx, func(tx repository.Tx) error {
		var err error
		sessions, err = tx.Sessions().List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (f *SessionFacade) GetSession(ctx context.Context, id int64) (*model.Session, error) {
	return f.getSession(ctx, id)
}

func (f *SessionFacade) getSession(ctx context.Context, id int64) (*model.Session, error) {
	var session *model.Session
	err := f.tx.InTx(ctx, func(tx repository.Tx) error {
		var err error
		session, err = getSession(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ListStudents список студентов активного сеанса
func (f *SessionFacade) ListStudents(ctx context.Context, filter ConsumedFilter) ([]StudentRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, err := f.requireActive()
	if err != nil {
		return nil, err
	}
	return f.registration.ListStudents(ctx, id, filter)
}

// Register регистрирует потребление студента в активном сеансе
func (f *SessionFacade) Register(ctx context.Context, prontuario string) (*RegistrationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, err := f.requireActive()
	if err != nil {
		return nil, err
	}
	return f.registration.Register(ctx, id, prontuario)
}

// UndoConsumption отменяет потребление по ID
func (f *SessionFacade) UndoConsumption(ctx context.Context, consumptionID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.requireActive(); err != nil {
		return false, err
	}
	return f.registration.Undo(ctx, consumptionID)
}

// UndoStudent отменяет потребление студента в активном сеансе
func (f *SessionFacade) UndoStudent(ctx context.Context, prontuario string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, err := f.requireActive()
	if err != nil {
		return false, err
	}
	return f.registration.UndoByStudent(ctx, id, prontuario)
}

// ListConsumptions выгрузка потреблений сеанса. Активный сеанс не нужен.
func (f *SessionFacade) ListConsumptions(ctx context.Context, sessionID int64) ([]*model.ConsumptionReport, error) {
	return f.registration.ListConsumptions(ctx, sessionID)
}

// SetReservationCancelled отменяет или восстанавливает бронь
func (f *SessionFacade) SetReservationCancelled(ctx context.Context, reservationID int64, cancelled bool) error {
	err := f.tx.InTx(ctx, func(tx repository.Tx) error {
		r, err := tx.Reservations().SetCancelled(ctx, reservationID, cancelled)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("%w: id %d", ErrReservationNotFound, reservationID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	f.logger.Info("Reservation updated",
		zap.Int64("reservation_id", reservationID),
		zap.Bool("cancelled", cancelled),
	)
	return nil
}

// requireActive вызывается под f.mu
func (f *SessionFacade) requireActive() (int64, error) {
	if f.activeID == nil {
		return 0, ErrNoActiveSession
	}
	return *f.activeID, nil
}
