// Package queue defines consumption events published to the message broker
// and the RabbitMQ publisher that delivers them.
package queue

import "time"

type EventType string

const (
	EventConsumptionRegistered EventType = "consumption.registered"
	EventConsumptionUndone     EventType = "consumption.undone"
)

// ConsumptionEvent carries enough of the registration for a spreadsheet
// sync worker to append or remove a row without querying the database.
type ConsumptionEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	ConsumptionID int64     `json:"consumption_id"`
	SessionID     int64     `json:"session_id"`
	StudentID     int64     `json:"student_id"`
	Prontuario    string    `json:"prontuario"`
	StudentName   string    `json:"student_name"`
	Dish          string    `json:"dish,omitempty"`
	ConsumedAt    string    `json:"consumed_at,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
