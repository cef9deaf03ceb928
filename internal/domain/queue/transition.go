package queue

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// transitions lists, per target status, the statuses a token may leave to
// reach it. COMPLETED, MISSED and CANCELLED are terminal.
var transitions = map[TokenStatus][]TokenStatus{
	StatusInProgress: {StatusUpcoming},
	StatusCompleted:  {StatusUpcoming, StatusInProgress},
	StatusMissed:     {StatusUpcoming, StatusInProgress},
	StatusCancelled:  {StatusUpcoming},
}

// CanTransition reports whether a token in status from may move to to.
func CanTransition(from, to TokenStatus) bool {
	for _, allowed := range transitions[to] {
		if allowed == from {
			return true
		}
	}
	return false
}

func (st TokenStatus) valid() bool {
	switch st {
	case StatusUpcoming, StatusInProgress, StatusCompleted, StatusMissed, StatusCancelled:
		return true
	}
	return false
}

// takesNotes reports whether a token in status st may carry consultation notes.
func takesNotes(st TokenStatus) bool {
	return st == StatusInProgress || st == StatusCompleted
}

func (s *Service) GetToken(ctx context.Context, id uuid.UUID) (*Token, error) {
	return s.repo.GetToken(ctx, id)
}

// Transition moves a token to status to. notes, when non-blank, is stored in
// the same write and is only accepted on the way to IN_PROGRESS or COMPLETED.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to TokenStatus, notes *string) (t *Token, err error) {
	ctx, span := s.startSpan(ctx, "Transition",
		attribute.String("token_id", id.String()),
		attribute.String("to", string(to)))
	defer func() { endSpan(span, err) }()

	if !to.valid() {
		return nil, invalid("status", "unknown status %q", to)
	}

	if notes != nil {
		n := strings.TrimSpace(*notes)
		notes = nil
		if n != "" {
			notes = &n
		}
	}

	var from TokenStatus
	t, err = s.repo.UpdateToken(ctx, id, func(cur *Token) error {
		from = cur.Status
		if !CanTransition(cur.Status, to) {
			return &InvalidTransitionError{From: cur.Status, To: to}
		}
		if notes != nil && !takesNotes(to) {
			return invalid("consultation_notes", "cannot be added to a %s token", to)
		}
		cur.Status = to
		if notes != nil {
			cur.ConsultationNotes = notes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(from), string(to))
	s.logger.Info().
		Str("token_id", id.String()).
		Str("doctor_id", t.DoctorID.String()).
		Str("date", t.Date.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("token transitioned")
	return t, nil
}

// AnnotateToken stores consultation notes without a status change. Only a
// consultation that has started can carry notes.
func (s *Service) AnnotateToken(ctx context.Context, id uuid.UUID, notes string) (*Token, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, invalid("consultation_notes", "is required")
	}
	return s.repo.UpdateToken(ctx, id, func(t *Token) error {
		if !takesNotes(t.Status) {
			return invalid("consultation_notes", "cannot be added to a %s token", t.Status)
		}
		t.ConsultationNotes = &notes
		return nil
	})
}
