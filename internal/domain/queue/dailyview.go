package queue

import (
	"context"
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/medikore/medikore/internal/domain/directory"
)

const unspecifiedSpecialization = "Unspecified"

// CurrentConsultationNumber is the queue number of the consultation under
// way: the highest IN_PROGRESS number, else the highest COMPLETED number,
// else 0.
func CurrentConsultationNumber(tokens []*Token) int {
	var inProgress, completed int
	for _, t := range tokens {
		switch t.Status {
		case StatusInProgress:
			inProgress = max(inProgress, t.QueueNumber)
		case StatusCompleted:
			completed = max(completed, t.QueueNumber)
		}
	}
	if inProgress > 0 {
		return inProgress
	}
	return completed
}

// summarizeDay folds a day's tokens into a DoctorDay. tokens must be ordered
// by queue number.
func summarizeDay(doc *directory.Doctor, date civil.Date, avail *Availability, tokens []*Token, withTokens bool) *DoctorDay {
	day := &DoctorDay{
		DoctorID:                  doc.ID,
		DoctorName:                doc.Name,
		Specializations:           doc.Specializations,
		Date:                      date,
		Availability:              avail,
		AvailableTokens:           avail.AvailableTokens(),
		CurrentConsultationNumber: CurrentConsultationNumber(tokens),
	}
	day.Counts.Total = len(tokens)
	for _, t := range tokens {
		var list *[]*Token
		switch t.Status {
		case StatusUpcoming:
			day.Counts.Upcoming++
			list = &day.Upcoming
		case StatusInProgress:
			day.Counts.InProgress++
			list = &day.InProgress
		case StatusCompleted:
			day.Counts.Completed++
			list = &day.Completed
		case StatusMissed:
			day.Counts.Missed++
			list = &day.Missed
		case StatusCancelled:
			day.Counts.Cancelled++
			list = &day.Cancelled
		}
		if withTokens && list != nil {
			*list = append(*list, t)
		}
	}
	return day
}

func (s *Service) loadDay(ctx context.Context, doctorID uuid.UUID, date civil.Date) (*Availability, []*Token, error) {
	avail, err := s.GetAvailability(ctx, doctorID, date)
	if err != nil {
		return nil, nil, err
	}
	tokens, err := s.repo.ListTokens(ctx, doctorID, date)
	if err != nil {
		return nil, nil, err
	}
	return avail, tokens, nil
}

// DoctorDay returns the full view of one doctor's day, token lists included.
func (s *Service) DoctorDay(ctx context.Context, doctorID uuid.UUID, date civil.Date) (*DoctorDay, error) {
	doc, err := s.lookupDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	avail, tokens, err := s.loadDay(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	return summarizeDay(doc, date, avail, tokens, true), nil
}

// CurrentNumber is CurrentConsultationNumber for a stored day.
func (s *Service) CurrentNumber(ctx context.Context, doctorID uuid.UUID, date civil.Date) (int, error) {
	tokens, err := s.repo.ListTokens(ctx, doctorID, date)
	if err != nil {
		return 0, err
	}
	return CurrentConsultationNumber(tokens), nil
}

// HospitalDay summarizes every doctor of a hospital for one date. Doctor
// summaries carry counts only.
func (s *Service) HospitalDay(ctx context.Context, hospitalID uuid.UUID, date civil.Date) (view *HospitalDay, err error) {
	ctx, span := s.startSpan(ctx, "HospitalDay",
		attribute.String("hospital_id", hospitalID.String()),
		attribute.String("date", date.String()))
	defer func() { endSpan(span, err) }()

	hospital, doctors, err := s.lookupHospital(ctx, hospitalID)
	if err != nil {
		return nil, err
	}

	days := make([]*DoctorDay, len(doctors))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.viewWorkers)
	for i, doc := range doctors {
		g.Go(func() error {
			avail, tokens, err := s.loadDay(gctx, doc.ID, date)
			if err != nil {
				return err
			}
			days[i] = summarizeDay(doc, date, avail, tokens, false)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	view = &HospitalDay{
		HospitalID:   hospital.ID,
		HospitalName: hospital.Name,
		Date:         date,
		Doctors:      days,
	}
	for _, d := range days {
		view.Appointments += appointments(d)
		view.ConsultationsDone += d.Counts.Completed
	}
	view.Specializations = groupBySpecialization(days)
	return view, nil
}

// appointments counts the day's tokens that still stand.
func appointments(d *DoctorDay) int {
	return d.Counts.Total - d.Counts.Cancelled
}

// groupBySpecialization is the group step of the doctor/specialization join:
// a doctor with several specializations counts towards each of them.
func groupBySpecialization(days []*DoctorDay) []SpecializationDay {
	groups := map[string]*SpecializationDay{}
	add := func(name string, d *DoctorDay) {
		g, ok := groups[name]
		if !ok {
			g = &SpecializationDay{Name: name}
			groups[name] = g
		}
		g.Doctors++
		g.Appointments += appointments(d)
		g.ConsultationsDone += d.Counts.Completed
	}
	for _, d := range days {
		if len(d.Specializations) == 0 {
			add(unspecifiedSpecialization, d)
			continue
		}
		for _, name := range d.Specializations {
			add(name, d)
		}
	}

	out := make([]SpecializationDay, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SearchDay filters a doctor's tokens for date by a case-insensitive
// substring of patient name, mobile or description. An empty query matches
// everything.
func (s *Service) SearchDay(ctx context.Context, doctorID uuid.UUID, date civil.Date, query string) ([]*Token, error) {
	if _, err := s.lookupDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	tokens, err := s.repo.ListTokens(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	out := []*Token{}
	for _, t := range tokens {
		if matches(t, q) {
			out = append(out, t)
		}
	}
	return out, nil
}

func matches(t *Token, q string) bool {
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(t.PatientName), q) || strings.Contains(strings.ToLower(t.PatientMobile), q) {
		return true
	}
	return t.Description != nil && strings.Contains(strings.ToLower(*t.Description), q)
}

// ListTokens returns a day's tokens, optionally restricted to one status.
func (s *Service) ListTokens(ctx context.Context, doctorID uuid.UUID, date civil.Date, status TokenStatus) ([]*Token, error) {
	if status != "" && !status.valid() {
		return nil, invalid("status", "unknown status %q", status)
	}
	tokens, err := s.repo.ListTokens(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return tokens, nil
	}
	out := []*Token{}
	for _, t := range tokens {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}
