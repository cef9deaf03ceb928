package queue

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

const (
	minMobileDigits = 10
	maxMobileDigits = 15
)

// validMobile accepts 10 to 15 digits with an optional leading '+'.
func validMobile(m string) bool {
	m = strings.TrimPrefix(m, "+")
	if len(m) < minMobileDigits || len(m) > maxMobileDigits {
		return false
	}
	for _, r := range m {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validatePatient(p *PatientInfo) error {
	p.Name = strings.TrimSpace(p.Name)
	p.Mobile = strings.TrimSpace(p.Mobile)
	p.Description = strings.TrimSpace(p.Description)

	if p.Name == "" {
		return invalid("patient.name", "is required")
	}
	if !validMobile(p.Mobile) {
		return invalid("patient.mobile", "must be %d to %d digits", minMobileDigits, maxMobileDigits)
	}
	switch p.Source {
	case "":
		p.Source = SourceOnline
	case SourceOnline, SourceOffline:
	default:
		return invalid("patient.source", "must be %s or %s", SourceOnline, SourceOffline)
	}
	return nil
}

// IssueToken books the next queue number of a doctor's day. today is the
// caller's notion of the current date; booking before it is rejected.
func (s *Service) IssueToken(ctx context.Context, doctorID uuid.UUID, date, today civil.Date, p PatientInfo) (t *Token, err error) {
	ctx, span := s.startSpan(ctx, "IssueToken", dayAttrs(doctorID, date)...)
	defer func() { endSpan(span, err) }()

	if date.Before(today) {
		s.metrics.ObserveIssue("invalid")
		return nil, invalid("date", "%s is in the past", date)
	}
	if err := validatePatient(&p); err != nil {
		s.metrics.ObserveIssue("invalid")
		return nil, err
	}
	if _, err := s.lookupDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	t = &Token{
		ID:            uuid.New(),
		DoctorID:      doctorID,
		Date:          date,
		PatientID:     p.PatientID,
		PatientName:   p.Name,
		PatientMobile: p.Mobile,
		Status:        StatusUpcoming,
		Source:        p.Source,
	}
	if p.Description != "" {
		desc := p.Description
		t.Description = &desc
	}

	if _, err := s.repo.IssueToken(ctx, t); err != nil {
		var ce *CapacityError
		if errors.As(err, &ce) {
			s.metrics.ObserveIssue(string(ce.Reason))
			s.logger.Info().
				Str("doctor_id", doctorID.String()).
				Str("date", date.String()).
				Str("reason", string(ce.Reason)).
				Msg("token refused")
		}
		return nil, err
	}

	s.metrics.ObserveIssue("issued")
	s.logger.Info().
		Str("doctor_id", doctorID.String()).
		Str("date", date.String()).
		Str("token_id", t.ID.String()).
		Int("queue_number", t.QueueNumber).
		Str("source", string(t.Source)).
		Msg("token issued")
	return t, nil
}
