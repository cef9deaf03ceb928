package queue

import (
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// ValidationError reports malformed input. The message is safe to show to
// the caller as is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

type CapacityReason string

const (
	ReasonOnLeave CapacityReason = "on_leave"
	ReasonStopped CapacityReason = "stopped"
	ReasonFull    CapacityReason = "full"
)

// CapacityError means the request was well formed but the day cannot take
// another token.
type CapacityError struct {
	DoctorID uuid.UUID
	Date     civil.Date
	Reason   CapacityReason
}

func (e *CapacityError) Error() string {
	switch e.Reason {
	case ReasonOnLeave:
		return fmt.Sprintf("doctor is on leave on %s", e.Date)
	case ReasonStopped:
		return fmt.Sprintf("booking is stopped for %s", e.Date)
	default:
		return fmt.Sprintf("no tokens left for %s", e.Date)
	}
}

// capacityReason returns why a is not accepting tokens, or "" when it is.
func capacityReason(a *Availability) CapacityReason {
	switch {
	case a.IsLeave:
		return ReasonOnLeave
	case a.IsStopped:
		return ReasonStopped
	case a.FilledTokenCount >= a.TotalTokenCount:
		return ReasonFull
	}
	return ""
}

type InvalidTransitionError struct {
	From TokenStatus
	To   TokenStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move token from %s to %s", e.From, e.To)
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}
