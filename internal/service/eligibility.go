package service

import "github.com/Freeeeeet/meal_registry/internal/model"

type EligibilityKind int

const (
	NotEligible EligibilityKind = iota
	EligibleByReservation
	EligibleByGroupException
)

func (k EligibilityKind) String() string {
	switch k {
	case EligibleByReservation:
		return "reservation"
	case EligibleByGroupException:
		return "group_exception"
	default:
		return "not_eligible"
	}
}

// Подписи для списка студентов
const (
	StatusReservation    = "Reservation"
	StatusGroupException = "Exception (group)"
	StatusSnackGroup     = "Authorized (group)"

	// DishNoReservation блюдо обеда без брони
	DishNoReservation = "No reservation"
	// DishException блюдо в выгрузке, если допуск был по группе
	DishException = "No reservation (exception)"
)

// Eligibility результат проверки права студента на питание в сеансе
type Eligibility struct {
	Kind          EligibilityKind
	ReservationID *int64
	Dish          string
	Status        string
}

func (e Eligibility) Eligible() bool {
	return e.Kind != NotEligible
}

// Decide вычисляет право студента на питание в сеансе.
// reservation: неотменённая бронь студента на дату сеанса или nil.
// Функция чистая: список и регистрация обязаны вызывать именно её.
func Decide(session *model.Session, student *model.Student, reservation *model.Reservation) Eligibility {
	if session.Meal == model.MealLunch && reservationValid(session, student, reservation) {
		id := reservation.ID
		return Eligibility{
			Kind:          EligibleByReservation,
			ReservationID: &id,
			Dish:          reservation.DishLabel(),
			Status:        StatusReservation,
		}
	}

	if !sharesGroup(session, student) {
		return Eligibility{Kind: NotEligible}
	}

	if session.Meal == model.MealSnack {
		return Eligibility{
			Kind:   EligibleByGroupException,
			Dish:   session.SnackLabel(),
			Status: StatusSnackGroup,
		}
	}

	return Eligibility{
		Kind:   EligibleByGroupException,
		Dish:   DishNoReservation,
		Status: StatusGroupException,
	}
}

func reservationValid(session *model.Session, student *model.Student, reservation *model.Reservation) bool {
	return reservation != nil &&
		!reservation.Cancelled &&
		reservation.StudentID == student.ID &&
		model.Day(reservation.Date).Equal(model.Day(session.Date))
}

func sharesGroup(session *model.Session, student *model.Student) bool {
	if len(session.Groups) == 0 || len(student.Groups) == 0 {
		return false
	}
	allowed := session.GroupIDs()
	for _, g := range student.Groups {
		if _, ok := allowed[g.ID]; ok {
			return true
		}
	}
	return false
}

// reportDish вычисляет блюдо строки выгрузки по той же логике, что и Decide
func reportDish(session *model.Session, rep *model.ConsumptionReport) string {
	switch {
	case rep.HasReservation:
		if rep.ReservationDish != nil {
			return *rep.ReservationDish
		}
		return ""
	case session.Meal == model.MealSnack:
		return session.SnackLabel()
	default:
		return DishException
	}
}
