package queue

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// UpsertCapacity creates or reconfigures a day. Filled and completed counts
// are never touched.
func (s *Service) UpsertCapacity(ctx context.Context, doctorID uuid.UUID, date civil.Date, cfg CapacityConfig) (*Availability, error) {
	if cfg.TotalTokenCount < 0 {
		return nil, invalid("total_token_count", "must not be negative")
	}
	if _, err := s.lookupDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	a, err := s.repo.UpsertCapacity(ctx, doctorID, date, cfg)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("doctor_id", doctorID.String()).
		Str("date", date.String()).
		Int("total_token_count", cfg.TotalTokenCount).
		Bool("is_stopped", cfg.IsStopped).
		Bool("is_leave", cfg.IsLeave).
		Msg("capacity updated")
	return a, nil
}

// GetAvailability never fails for an unconfigured day: it returns a zero
// capacity record with Configured set to false.
func (s *Service) GetAvailability(ctx context.Context, doctorID uuid.UUID, date civil.Date) (*Availability, error) {
	a, err := s.repo.GetAvailability(ctx, doctorID, date)
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return absentAvailability(doctorID, date), nil
	}
	return a, err
}

// SetPause toggles the "doctor is away" signal. A pause needs a reason;
// resuming drops it.
func (s *Service) SetPause(ctx context.Context, doctorID uuid.UUID, date civil.Date, paused bool, reason string) (*Availability, error) {
	reason = strings.TrimSpace(reason)
	var stored *string
	if paused {
		if reason == "" {
			return nil, invalid("pause_reason", "is required when pausing")
		}
		stored = &reason
	}
	if _, err := s.lookupDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	a, err := s.repo.SetPause(ctx, doctorID, date, paused, stored)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("doctor_id", doctorID.String()).
		Str("date", date.String()).
		Bool("paused", paused).
		Msg("pause updated")
	return a, nil
}
