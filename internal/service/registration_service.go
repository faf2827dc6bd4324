package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Freeeeeet/meal_registry/internal/model"
	"github.com/Freeeeeet/meal_registry/internal/queue"
	"github.com/Freeeeeet/meal_registry/internal/repository"
	"go.uber.org/zap"
)

// Причины результата регистрации
const (
	ReasonAuthorizedReservation = "authorized with reservation"
	ReasonAuthorizedException   = "authorized by group exception"
	ReasonAuthorizedSnack       = "authorized for snack (group)"
	ReasonAlreadyRegistered     = "already registered"
	ReasonAccessDenied          = "access denied"
)

// Исходы для метрик
const (
	outcomeAlreadyRegistered = "already_registered"
	outcomeDenied            = "denied"
)

// ConsumedFilter фильтр списка студентов по факту потребления
type ConsumedFilter int

const (
	AnyConsumption ConsumedFilter = iota
	OnlyConsumed
	OnlyPending
)

// RegistrationResult бизнес-исход регистрации. Отказ является результатом,
// а не ошибка.
type RegistrationResult struct {
	Authorized    bool            `json:"authorized"`
	Reason        string          `json:"reason"`
	StudentName   string          `json:"student_name"`
	Prontuario    string          `json:"prontuario"`
	Eligibility   EligibilityKind `json:"eligibility"`
	ConsumptionID int64           `json:"consumption_id,omitempty"`
	ConsumedAt    string          `json:"consumed_at,omitempty"`
	Dish          string          `json:"dish,omitempty"`
}

// StudentRow строка списка студентов сеанса
type StudentRow struct {
	StudentID     int64           `json:"student_id"`
	Prontuario    string          `json:"prontuario"`
	Name          string          `json:"name"`
	Group         string          `json:"group"`
	Dish          string          `json:"dish"`
	Status        string          `json:"status"`
	Eligibility   EligibilityKind `json:"eligibility"`
	Consumed      bool            `json:"consumed"`
	ConsumptionID *int64          `json:"consumption_id,omitempty"`
	ConsumedAt    string          `json:"consumed_at"`
	SearchCode    string          `json:"search_code"`
}

// RegistrationService проверяет право на питание и ведёт учёт потреблений
type RegistrationService struct {
	tx        repository.TxRunner
	publisher EventPublisher
	metrics   MetricsRecorder
	logger    *zap.Logger
	now       func() time.Time
}

func NewRegistrationService(
	tx repository.TxRunner,
	publisher EventPublisher,
	metrics MetricsRecorder,
	logger *zap.Logger,
) *RegistrationService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &RegistrationService{
		tx:        tx,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// ListStudents возвращает студентов, имеющих право на питание в сеансе,
// отсортированных по имени
func (s *RegistrationService) ListStudents(ctx context.Context, sessionID int64, filter ConsumedFilter) ([]StudentRow, error) {
	var rows []StudentRow

	err := s.tx.InTx(ctx, func(tx repository.Tx) error {
		session, err := getSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		consumptions, err := tx.Consumptions().ListBySession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("list consumptions: %w", err)
		}
		consumed := make(map[int64]*model.Consumption, len(consumptions))
		for _, c := range consumptions {
			consumed[c.StudentID] = c
		}

		var students []*model.Student
		if filter == OnlyConsumed {
			ids := make([]int64, 0, len(consumed))
			for id := range consumed {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			students, err = tx.Students().GetByIDs(ctx, ids)
		} else {
			students, err = tx.Students().ListActive(ctx)
		}
		if err != nil {
			return fmt.Errorf("get candidate students: %w", err)
		}

		reservations := make(map[int64]*model.Reservation)
		if session.Meal == model.MealLunch {
			list, err := tx.Reservations().ListActiveByDate(ctx, session.Date)
			if err != nil {
				return fmt.Errorf("list reservations: %w", err)
			}
			for _, r := range list {
				reservations[r.StudentID] = r
			}
		}

		for _, student := range students {
			decision := Decide(session, student, reservations[student.ID])
			if !decision.Eligible() {
				continue
			}

			c := consumed[student.ID]
			if filter == OnlyConsumed && c == nil {
				continue
			}
			if filter == OnlyPending && c != nil {
				continue
			}

			rows = append(rows, newStudentRow(student, decision, c))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	// Имена не уникальны: стабильная сортировка сохраняет порядок по id
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Name < rows[j].Name
	})

	return rows, nil
}

func newStudentRow(student *model.Student, decision Eligibility, c *model.Consumption) StudentRow {
	row := StudentRow{
		StudentID:   student.ID,
		Prontuario:  student.Prontuario,
		Name:        student.Name,
		Group:       student.PrimaryGroupName(),
		Dish:        decision.Dish,
		Status:      decision.Status,
		Eligibility: decision.Kind,
		SearchCode:  student.SearchCode(),
	}
	if c != nil {
		id := c.ID
		row.Consumed = true
		row.ConsumptionID = &id
		row.ConsumedAt = c.ConsumedAt
	}
	return row
}

// Register проверяет право студента и записывает потребление в одной
// транзакции. Повторная регистрация возвращает "already registered".
func (s *RegistrationService) Register(ctx context.Context, sessionID int64, prontuario string) (*RegistrationResult, error) {
	var (
		result  *RegistrationResult
		meal    model.MealKind
		outcome string
		event   *queue.ConsumptionEvent
	)

	err := s.tx.InTx(ctx, func(tx repository.Tx) error {
		session, err := getSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		meal = session.Meal

		student, err := tx.Students().GetByProntuario(ctx, prontuario)
		if err != nil {
			return fmt.Errorf("get student: %w", err)
		}
		if student == nil {
			return fmt.Errorf("%w: %s", ErrStudentNotFound, prontuario)
		}

		existing, err := tx.Consumptions().GetByStudentAndSession(ctx, student.ID, session.ID)
		if err != nil {
			return fmt.Errorf("check existing consumption: %w", err)
		}
		if existing != nil {
			result = alreadyRegistered(student, existing)
			outcome = outcomeAlreadyRegistered
			return nil
		}

		var reservation *model.Reservation
		if session.Meal == model.MealLunch {
			reservation, err = tx.Reservations().GetActiveForDate(ctx, student.ID, session.Date)
			if err != nil {
				return fmt.Errorf("get reservation: %w", err)
			}
		}

		decision := Decide(session, student, reservation)
		if !decision.Eligible() {
			result = &RegistrationResult{
				Authorized:  false,
				Reason:      ReasonAccessDenied,
				StudentName: student.Name,
				Prontuario:  student.Prontuario,
				Eligibility: NotEligible,
			}
			outcome = outcomeDenied
			return nil
		}

		consumption := &model.Consumption{
			StudentID:     student.ID,
			SessionID:     session.ID,
			ReservationID: decision.ReservationID,
			ConsumedAt:    s.now().Format(model.ConsumedAtLayout),
		}

		created, err := tx.Consumptions().Create(ctx, consumption)
		if err != nil {
			return fmt.Errorf("create consumption: %w", err)
		}
		if !created {
			// Параллельная регистрация успела раньше
			existing, err := tx.Consumptions().GetByStudentAndSession(ctx, student.ID, session.ID)
			if err != nil {
				return fmt.Errorf("reload consumption: %w", err)
			}
			result = alreadyRegistered(student, existing)
			outcome = outcomeAlreadyRegistered
			return nil
		}

		result = &RegistrationResult{
			Authorized:    true,
			Reason:        authorizedReason(session, decision),
			StudentName:   student.Name,
			Prontuario:    student.Prontuario,
			Eligibility:   decision.Kind,
			ConsumptionID: consumption.ID,
			ConsumedAt:    consumption.ConsumedAt,
			Dish:          decision.Dish,
		}
		outcome = decision.Kind.String()
		event = &queue.ConsumptionEvent{
			Type:          queue.EventConsumptionRegistered,
			ConsumptionID: consumption.ID,
			SessionID:     session.ID,
			StudentID:     student.ID,
			Prontuario:    student.Prontuario,
			StudentName:   student.Name,
			Dish:          decision.Dish,
			ConsumedAt:    consumption.ConsumedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RegistrationOutcome(meal, outcome)
	s.logger.Info("Consumption registration",
		zap.Int64("session_id", sessionID),
		zap.String("prontuario", result.Prontuario),
		zap.Bool("authorized", result.Authorized),
		zap.String("reason", result.Reason),
	)

	if event != nil {
		s.publish(ctx, *event)
	}

	return result, nil
}

func alreadyRegistered(student *model.Student, existing *model.Consumption) *RegistrationResult {
	result := &RegistrationResult{
		Authorized:  false,
		Reason:      ReasonAlreadyRegistered,
		StudentName: student.Name,
		Prontuario:  student.Prontuario,
		Eligibility: NotEligible,
	}
	if existing != nil {
		result.ConsumptionID = existing.ID
		result.ConsumedAt = existing.ConsumedAt
	}
	return result
}

func authorizedReason(session *model.Session, decision Eligibility) string {
	switch {
	case decision.Kind == EligibleByReservation:
		return ReasonAuthorizedReservation
	case session.Meal == model.MealSnack:
		return ReasonAuthorizedSnack
	default:
		return ReasonAuthorizedException
	}
}

// Undo удаляет потребление по ID. Отсутствующий ID не ошибка.
func (s *RegistrationService) Undo(ctx context.Context, consumptionID int64) (bool, error) {
	var removed *removedConsumption

	err := s.tx.InTx(ctx, func(tx repository.Tx) error {
		var err error
		removed, err = deleteConsumption(ctx, tx, consumptionID)
		return err
	})
	if err != nil {
		return false, err
	}

	return s.afterUndo(ctx, removed), nil
}

// UndoByStudent удаляет потребление студента в сеансе тем же путём, что и Undo
func (s *RegistrationService) UndoByStudent(ctx context.Context, sessionID int64, prontuario string) (bool, error) {
	var removed *removedConsumption

	err := s.tx.InTx(ctx, func(tx repository.Tx) error {
		student, err := tx.Students().GetByProntuario(ctx, prontuario)
		if err != nil {
			return fmt.Errorf("get student: %w", err)
		}
		if student == nil {
			return fmt.Errorf("%w: %s", ErrStudentNotFound, prontuario)
		}

		c, err := tx.Consumptions().GetByProntuarioAndSession(ctx, prontuario, sessionID)
		if err != nil {
			return fmt.Errorf("get consumption: %w", err)
		}
		if c == nil {
			return nil
		}

		removed, err = deleteConsumption(ctx, tx, c.ID)
		return err
	})
	if err != nil {
		return false, err
	}

	return s.afterUndo(ctx, removed), nil
}

type removedConsumption struct {
	consumption *model.Consumption
	student     *model.Student
}

// deleteConsumption единый путь удаления потребления. Бронь не трогается.
func deleteConsumption(ctx context.Context, tx repository.Tx, id int64) (*removedConsumption, error) {
	c, err := tx.Consumptions().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get consumption: %w", err)
	}
	if c == nil {
		return nil, nil
	}

	deleted, err := tx.Consumptions().Delete(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("delete consumption: %w", err)
	}
	if !deleted {
		return nil, nil
	}

	students, err := tx.Students().GetByIDs(ctx, []int64{c.StudentID})
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}

	removed := &removedConsumption{consumption: c}
	if len(students) > 0 {
		removed.student = students[0]
	}
	return removed, nil
}

func (s *RegistrationService) afterUndo(ctx context.Context, removed *removedConsumption) bool {
	if removed == nil {
		return false
	}

	c := removed.consumption
	s.metrics.ConsumptionUndone()
	s.logger.Info("Consumption undone",
		zap.Int64("consumption_id", c.ID),
		zap.Int64("session_id", c.SessionID),
		zap.Int64("student_id", c.StudentID),
	)

	event := queue.ConsumptionEvent{
		Type:          queue.EventConsumptionUndone,
		ConsumptionID: c.ID,
		SessionID:     c.SessionID,
		StudentID:     c.StudentID,
		ConsumedAt:    c.ConsumedAt,
	}
	if removed.student != nil {
		event.Prontuario = removed.student.Prontuario
		event.StudentName = removed.student.Name
	}
	s.publish(ctx, event)

	return true
}

// ListConsumptions возвращает строки выгрузки потреблений сеанса
func (s *RegistrationService) ListConsumptions(ctx context.Context, sessionID int64) ([]*model.ConsumptionReport, error) {
	var reports []*model.ConsumptionReport

	err := s.tx.InTx(ctx, func(tx repository.Tx) error {
		session, err := getSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		reports, err = tx.Consumptions().ReportBySession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("report consumptions: %w", err)
		}

		for _, rep := range reports {
			if rep.GroupName == "" {
				rep.GroupName = model.NoGroupLabel
			}
			rep.Dish = reportDish(session, rep)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return reports, nil
}

func (s *RegistrationService) publish(ctx context.Context, event queue.ConsumptionEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish consumption event",
			zap.String("type", string(event.Type)),
			zap.Int64("consumption_id", event.ConsumptionID),
			zap.Error(err),
		)
	}
}

func getSession(ctx context.Context, tx repository.Tx, sessionID int64) (*model.Session, error) {
	session, err := tx.Sessions().GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: id %d", ErrSessionNotFound, sessionID)
	}
	return session, nil
}
