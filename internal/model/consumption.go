package model

import "time"

// ConsumedAtLayout формат времени регистрации потребления
const ConsumedAtLayout = "15:04:05"

// Consumption подтверждение того, что студент получил питание в сеансе.
// Создаётся и удаляется только сервисом регистрации.
type Consumption struct {
	ID            int64     `json:"id"`
	StudentID     int64     `json:"student_id"`
	SessionID     int64     `json:"session_id"`
	ReservationID *int64    `json:"reservation_id"` // nil, если допуск по группе-исключению
	ConsumedAt    string    `json:"consumed_at"`    // Местное время HH:MM:SS
	RegisteredAt  time.Time `json:"registered_at"`
}

// ConsumptionReport строка выгрузки для отчётов и синхронизации таблиц
type ConsumptionReport struct {
	ConsumptionID   int64   `json:"consumption_id"`
	Prontuario      string  `json:"prontuario"`
	StudentName     string  `json:"student_name"`
	GroupName       string  `json:"group_name"`
	HasReservation  bool    `json:"-"`
	ReservationDish *string `json:"-"`
	Dish            string  `json:"dish"`
	ConsumedAt      string  `json:"consumed_at"`
}
