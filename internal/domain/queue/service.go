package queue

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/medikore/medikore/internal/domain/directory"
	"github.com/medikore/medikore/internal/platform/metrics"
)

const (
	DefaultMaxLeaveDays = 366
	defaultViewWorkers  = 8
)

// Service implements the availability and token queue operations. Every
// operation that depends on the calendar takes the relevant dates explicitly.
type Service struct {
	repo         Repository
	dir          Directory
	logger       zerolog.Logger
	metrics      *metrics.QueueMetrics
	tracer       trace.Tracer
	maxLeaveDays int
	viewWorkers  int
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l.With().Str("component", "queue").Logger() }
}

func WithMetrics(m *metrics.QueueMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithMaxLeaveDays caps the length of a single leave request.
func WithMaxLeaveDays(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLeaveDays = n
		}
	}
}

// WithViewWorkers bounds the per-doctor fan-out of the hospital view.
func WithViewWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.viewWorkers = n
		}
	}
}

// NewService wires a Service. dir may be nil, in which case doctor ids are
// not checked and hospital views are unavailable.
func NewService(repo Repository, dir Directory, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		dir:          dir,
		logger:       zerolog.Nop(),
		tracer:       otel.Tracer("github.com/medikore/medikore/internal/domain/queue"),
		maxLeaveDays: DefaultMaxLeaveDays,
		viewWorkers:  defaultViewWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "queue."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func dayAttrs(doctorID uuid.UUID, date civil.Date) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("doctor_id", doctorID.String()),
		attribute.String("date", date.String()),
	}
}

func (s *Service) lookupDoctor(ctx context.Context, id uuid.UUID) (*directory.Doctor, error) {
	if s.dir == nil {
		return &directory.Doctor{ID: id, Specializations: []string{}}, nil
	}
	d, err := s.dir.GetDoctor(ctx, id)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, &NotFoundError{Resource: "doctor", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("lookup doctor: %w", err)
	}
	return d, nil
}

func (s *Service) lookupHospital(ctx context.Context, id uuid.UUID) (*directory.Hospital, []*directory.Doctor, error) {
	if s.dir == nil {
		return nil, nil, &NotFoundError{Resource: "hospital", ID: id.String()}
	}
	h, err := s.dir.GetHospital(ctx, id)
	if err == nil {
		var doctors []*directory.Doctor
		doctors, err = s.dir.ListHospitalDoctors(ctx, id)
		if err == nil {
			return h, doctors, nil
		}
	}
	if errors.Is(err, directory.ErrNotFound) {
		return nil, nil, &NotFoundError{Resource: "hospital", ID: id.String()}
	}
	return nil, nil, fmt.Errorf("lookup hospital: %w", err)
}
