// Package directory is a read-only view over the hospitals, doctors and
// specializations tables. Those tables are managed elsewhere.
package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("directory: not found")

type Hospital struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type Doctor struct {
	ID              uuid.UUID `json:"id"`
	HospitalID      uuid.UUID `json:"hospital_id"`
	Name            string    `json:"name"`
	Specializations []string  `json:"specializations"`
}

type Repository interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error)
	// ListHospitalDoctors returns ErrNotFound for an unknown hospital and an
	// empty slice for a hospital without doctors.
	ListHospitalDoctors(ctx context.Context, hospitalID uuid.UUID) ([]*Doctor, error)
}
