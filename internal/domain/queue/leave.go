package queue

import (
	"context"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// expandDates lists every date of the inclusive range [start, end].
func expandDates(start, end civil.Date) []civil.Date {
	var dates []civil.Date
	for d := start; !d.After(end); d = d.AddDays(1) {
		dates = append(dates, d)
	}
	return dates
}

// mergeLeaveDates sorts dates and folds runs of consecutive calendar days
// into closed ranges. Duplicates are dropped.
func mergeLeaveDates(dates []civil.Date) ([]LeaveRange, []civil.Date) {
	sorted := append([]civil.Date(nil), dates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	uniq := make([]civil.Date, 0, len(sorted))
	for i, d := range sorted {
		if i > 0 && d == sorted[i-1] {
			continue
		}
		uniq = append(uniq, d)
	}

	ranges := []LeaveRange{}
	for _, d := range uniq {
		if n := len(ranges); n > 0 && ranges[n-1].EndDate.AddDays(1) == d {
			ranges[n-1].EndDate = d
			continue
		}
		ranges = append(ranges, LeaveRange{StartDate: d, EndDate: d})
	}
	return ranges, uniq
}

func (s *Service) checkLeaveRange(start, end civil.Date) error {
	if end.Before(start) {
		return invalid("end_date", "must not be before start_date")
	}
	if days := end.DaysSince(start) + 1; days > s.maxLeaveDays {
		return invalid("end_date", "leave range of %d days exceeds the %d day limit", days, s.maxLeaveDays)
	}
	return nil
}

// MarkLeave flags every date of [start, end] as leave, creating zero
// capacity rows where needed. Marking the same range twice is a no-op.
func (s *Service) MarkLeave(ctx context.Context, doctorID uuid.UUID, start, end civil.Date) (dates []civil.Date, err error) {
	ctx, span := s.startSpan(ctx, "MarkLeave", dayAttrs(doctorID, start)...)
	defer func() { endSpan(span, err) }()

	if err := s.checkLeaveRange(start, end); err != nil {
		return nil, err
	}
	if _, err := s.lookupDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	dates = expandDates(start, end)
	for _, d := range dates {
		if _, err := s.repo.MarkLeave(ctx, doctorID, d); err != nil {
			return nil, err
		}
	}
	s.metrics.ObserveLeaveDays("marked", len(dates))
	s.logger.Info().
		Str("doctor_id", doctorID.String()).
		Str("start_date", start.String()).
		Str("end_date", end.String()).
		Int("days", len(dates)).
		Msg("leave marked")
	return dates, nil
}

// CancelLeave clears the leave flag on the days of [start, end] that have
// one and returns those days.
func (s *Service) CancelLeave(ctx context.Context, doctorID uuid.UUID, start, end civil.Date) ([]civil.Date, error) {
	if err := s.checkLeaveRange(start, end); err != nil {
		return nil, err
	}
	if _, err := s.lookupDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	cleared := []civil.Date{}
	for _, d := range expandDates(start, end) {
		ok, err := s.repo.ClearLeave(ctx, doctorID, d)
		if err != nil {
			return nil, err
		}
		if ok {
			cleared = append(cleared, d)
		}
	}
	s.metrics.ObserveLeaveDays("cancelled", len(cleared))
	s.logger.Info().
		Str("doctor_id", doctorID.String()).
		Str("start_date", start.String()).
		Str("end_date", end.String()).
		Int("days", len(cleared)).
		Msg("leave cancelled")
	return cleared, nil
}

// UpcomingLeaves returns the leave days of [from, to], both merged into
// ranges and as a flat list.
func (s *Service) UpcomingLeaves(ctx context.Context, doctorID uuid.UUID, from, to civil.Date) (*LeaveSummary, error) {
	if to.Before(from) {
		return nil, invalid("to", "must not be before from")
	}
	dates, err := s.repo.ListLeaveDates(ctx, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	ranges, uniq := mergeLeaveDates(dates)
	return &LeaveSummary{Ranges: ranges, Dates: uniq}, nil
}
