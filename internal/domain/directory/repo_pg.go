package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ db queryable }

// NewRepoPG accepts a *pgxpool.Pool or anything with the same query methods.
func NewRepoPG(db queryable) Repository { return &repoPG{db: db} }

// Doctors and their specializations are read with one LEFT JOIN and folded
// per doctor here, so no engine specific aggregate functions are needed.
const doctorJoin = `
	SELECT d.id, d.hospital_id, d.name, s.name
	FROM doctors d
	LEFT JOIN doctor_specializations ds ON ds.doctor_id = d.id
	LEFT JOIN specializations s ON s.id = ds.specialization_id`

func (r *repoPG) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	rows, err := r.db.Query(ctx, doctorJoin+` WHERE d.id = $1 ORDER BY s.name`, id)
	if err != nil {
		return nil, fmt.Errorf("query doctor: %w", err)
	}
	doctors, err := groupDoctors(rows)
	if err != nil {
		return nil, err
	}
	if len(doctors) == 0 {
		return nil, ErrNotFound
	}
	return doctors[0], nil
}

func (r *repoPG) GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	var h Hospital
	err := r.db.QueryRow(ctx, `SELECT id, name FROM hospitals WHERE id = $1`, id).Scan(&h.ID, &h.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query hospital: %w", err)
	}
	return &h, nil
}

func (r *repoPG) ListHospitalDoctors(ctx context.Context, hospitalID uuid.UUID) ([]*Doctor, error) {
	if _, err := r.GetHospital(ctx, hospitalID); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, doctorJoin+` WHERE d.hospital_id = $1 ORDER BY d.name, d.id, s.name`, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("query hospital doctors: %w", err)
	}
	return groupDoctors(rows)
}

// groupDoctors folds joined rows into one Doctor per id. Rows for the same
// doctor must be adjacent.
func groupDoctors(rows pgx.Rows) ([]*Doctor, error) {
	defer rows.Close()

	doctors := []*Doctor{}
	var cur *Doctor
	for rows.Next() {
		var (
			d    Doctor
			spec *string
		)
		if err := rows.Scan(&d.ID, &d.HospitalID, &d.Name, &spec); err != nil {
			return nil, fmt.Errorf("scan doctor: %w", err)
		}
		if cur == nil || cur.ID != d.ID {
			d.Specializations = []string{}
			cur = &d
			doctors = append(doctors, cur)
		}
		if spec != nil {
			cur.Specializations = append(cur.Specializations, *spec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate doctors: %w", err)
	}
	return doctors, nil
}
