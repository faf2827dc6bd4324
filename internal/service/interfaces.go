package service

import (
	"context"

	"github.com/Freeeeeet/meal_registry/internal/model"
	"github.com/Freeeeeet/meal_registry/internal/queue"
)

// EventPublisher доставляет события потребления (RabbitMQ)
type EventPublisher interface {
	Publish(ctx context.Context, event queue.ConsumptionEvent) error
}

// MetricsRecorder считает исходы регистрации (Prometheus)
type MetricsRecorder interface {
	RegistrationOutcome(meal model.MealKind, outcome string)
	ConsumptionUndone()
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, queue.ConsumptionEvent) error { return nil }

type noopMetrics struct{}

func (noopMetrics) RegistrationOutcome(model.MealKind, string) {}
func (noopMetrics) ConsumptionUndone()                         {}
