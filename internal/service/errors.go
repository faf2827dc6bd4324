package service

import "errors"

var (
	ErrNoActiveSession     = errors.New("no active session")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExists       = errors.New("session with the same meal, date and time already exists")
	ErrInvalidSession      = errors.New("invalid session")
	ErrStudentNotFound     = errors.New("student not found")
	ErrReservationNotFound = errors.New("reservation not found")
)
