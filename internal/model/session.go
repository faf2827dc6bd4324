package model

import (
	"fmt"
	"strings"
	"time"
)

type MealKind string

const (
	MealLunch MealKind = "lunch"
	MealSnack MealKind = "snack"
)

const (
	DateLayout      = "2006-01-02"
	TimeOfDayLayout = "15:04"

	// DefaultSnackLabel используется, если у перекуса не указано блюдо
	DefaultSnackLabel = "Snack"
)

// ParseMealKind разбирает вид приёма пищи без учёта регистра
func ParseMealKind(s string) (MealKind, error) {
	switch MealKind(strings.ToLower(strings.TrimSpace(s))) {
	case MealLunch:
		return MealLunch, nil
	case MealSnack:
		return MealSnack, nil
	default:
		return "", fmt.Errorf("unknown meal kind %q", s)
	}
}

func (k MealKind) Valid() bool {
	return k == MealLunch || k == MealSnack
}

// Session один сеанс раздачи питания (обед или перекус)
type Session struct {
	ID         int64     `json:"id"`
	Meal       MealKind  `json:"meal"`
	Period     string    `json:"period"`
	Date       time.Time `json:"date"`
	Time       string    `json:"time"`        // HH:MM
	ServedItem *string   `json:"served_item"` // Только для перекуса
	CreatedAt  time.Time `json:"created_at"`

	// Группы-исключения: допускаются без брони
	Groups []*Group `json:"groups,omitempty"`
}

// GroupIDs возвращает множество идентификаторов групп-исключений
func (s *Session) GroupIDs() map[int64]struct{} {
	ids := make(map[int64]struct{}, len(s.Groups))
	for _, g := range s.Groups {
		ids[g.ID] = struct{}{}
	}
	return ids
}

// SnackLabel возвращает выдаваемое блюдо перекуса
func (s *Session) SnackLabel() string {
	if s.ServedItem == nil || strings.TrimSpace(*s.ServedItem) == "" {
		return DefaultSnackLabel
	}
	return *s.ServedItem
}

// Day обрезает время, оставляя календарный день в UTC
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate разбирает дату в формате YYYY-MM-DD
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// NormalizeTimeOfDay приводит время к виду HH:MM
func NormalizeTimeOfDay(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{TimeOfDayLayout, "15:04:05", "15.04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(TimeOfDayLayout), nil
		}
	}
	return "", fmt.Errorf("invalid time of day %q", s)
}
