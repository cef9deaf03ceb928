package queue

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/medikore/medikore/internal/domain/directory"
)

// Repository persists availability rows and tokens. Every method touching an
// availability row is atomic for its (doctor, date) key.
type Repository interface {
	// GetAvailability returns a *NotFoundError when the row does not exist.
	GetAvailability(ctx context.Context, doctorID uuid.UUID, date civil.Date) (*Availability, error)
	UpsertCapacity(ctx context.Context, doctorID uuid.UUID, date civil.Date, cfg CapacityConfig) (*Availability, error)
	SetPause(ctx context.Context, doctorID uuid.UUID, date civil.Date, paused bool, reason *string) (*Availability, error)
	MarkLeave(ctx context.Context, doctorID uuid.UUID, date civil.Date) (*Availability, error)
	// ClearLeave reports whether an existing leave flag was cleared.
	ClearLeave(ctx context.Context, doctorID uuid.UUID, date civil.Date) (bool, error)
	ListLeaveDates(ctx context.Context, doctorID uuid.UUID, from, to civil.Date) ([]civil.Date, error)

	// IssueToken admits t into its day. On success t carries its queue
	// number and timestamps and the updated row is returned. A full, stopped
	// or on-leave day yields a *CapacityError and nothing is written.
	IssueToken(ctx context.Context, t *Token) (*Availability, error)
	GetToken(ctx context.Context, id uuid.UUID) (*Token, error)
	// UpdateToken loads the token, lets apply mutate it and stores the result.
	// A move into COMPLETED bumps consultations done on the same row in the
	// same unit of work.
	UpdateToken(ctx context.Context, id uuid.UUID, apply func(t *Token) error) (*Token, error)
	// ListTokens returns the day's tokens ordered by queue number.
	ListTokens(ctx context.Context, doctorID uuid.UUID, date civil.Date) ([]*Token, error)
}

// Directory resolves doctors and hospitals. It is owned by the directory
// package; the queue only reads from it.
type Directory interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*directory.Doctor, error)
	GetHospital(ctx context.Context, id uuid.UUID) (*directory.Hospital, error)
	ListHospitalDoctors(ctx context.Context, hospitalID uuid.UUID) ([]*directory.Doctor, error)
}
