package model

import "time"

type Reservation struct {
	ID        int64     `json:"id"`
	StudentID int64     `json:"student_id"`
	Date      time.Time `json:"date"` // Календарный день, время не учитывается
	Dish      *string   `json:"dish"`
	Cancelled bool      `json:"cancelled"` // Отменённая бронь не даёт права на обед, но не удаляется
	CreatedAt time.Time `json:"created_at"`
}

// DishLabel возвращает название блюда или пустую строку
func (r *Reservation) DishLabel() string {
	if r.Dish == nil {
		return ""
	}
	return *r.Dish
}
