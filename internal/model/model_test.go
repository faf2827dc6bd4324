package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchCode(t *testing.T) {
	assert.Equal(t, "b c d e", SearchCode("IQ30001234"))
	assert.Equal(t, "f g k", SearchCode("iq100056X"))
	assert.Equal(t, "S P a j", SearchCode("SP09"))
	assert.Equal(t, "", SearchCode(""))
}

func TestPrimaryGroupName(t *testing.T) {
	s := &Student{}
	assert.Equal(t, NoGroupLabel, s.PrimaryGroupName())

	s.Groups = []*Group{{ID: 2, Name: "LOG02"}, {ID: 5, Name: "ADM01"}}
	assert.Equal(t, "LOG02", s.PrimaryGroupName())
	assert.Len(t, s.GroupIDs(), 2)
}

func TestParseMealKind(t *testing.T) {
	kind, err := ParseMealKind(" Lunch ")
	require.NoError(t, err)
	assert.Equal(t, MealLunch, kind)

	kind, err = ParseMealKind("SNACK")
	require.NoError(t, err)
	assert.Equal(t, MealSnack, kind)

	_, err = ParseMealKind("dinner")
	assert.Error(t, err)
	assert.False(t, MealKind("dinner").Valid())
}

func TestNormalizeTimeOfDay(t *testing.T) {
	for in, want := range map[string]string{
		"11:30":    "11:30",
		"9:05":     "09:05",
		"11:30:59": "11:30",
		"15.00":    "15:00",
		" 07:45 ":  "07:45",
	} {
		got, err := NormalizeTimeOfDay(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "25:00", "noon", "11:60"} {
		_, err := NormalizeTimeOfDay(in)
		assert.Error(t, err, in)
	}
}

func TestSnackLabel(t *testing.T) {
	s := &Session{Meal: MealSnack}
	assert.Equal(t, DefaultSnackLabel, s.SnackLabel())

	blank := "  "
	s.ServedItem = &blank
	assert.Equal(t, DefaultSnackLabel, s.SnackLabel())

	item := "Pão com geleia"
	s.ServedItem = &item
	assert.Equal(t, item, s.SnackLabel())
}

func TestDayAndParseDate(t *testing.T) {
	d, err := ParseDate("2025-11-04")
	require.NoError(t, err)
	assert.True(t, Day(time.Date(2025, 11, 4, 23, 59, 0, 0, time.UTC)).Equal(d))

	_, err = ParseDate("04/11/2025")
	assert.Error(t, err)
}

func TestReservationDishLabel(t *testing.T) {
	r := &Reservation{}
	assert.Equal(t, "", r.DishLabel())

	dish := "Frango"
	r.Dish = &dish
	assert.Equal(t, "Frango", r.DishLabel())
}
