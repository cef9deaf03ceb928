package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medikore/medikore/internal/domain/directory"
)

// Fixed ids so local clients can be pointed at a known hospital and doctors.
var (
	seedHospital = directory.Hospital{
		ID:   uuid.MustParse("6f1c2a0e-0000-4000-8000-000000000001"),
		Name: "Medikore General Hospital",
	}
	seedDoctors = []directory.Doctor{
		{
			ID:              uuid.MustParse("6f1c2a0e-0000-4000-8000-000000000101"),
			HospitalID:      seedHospital.ID,
			Name:            "Dr. Meera Rao",
			Specializations: []string{"Cardiology"},
		},
		{
			ID:              uuid.MustParse("6f1c2a0e-0000-4000-8000-000000000102"),
			HospitalID:      seedHospital.ID,
			Name:            "Dr. Arjun Iyer",
			Specializations: []string{"General Medicine", "Pediatrics"},
		},
		{
			ID:         uuid.MustParse("6f1c2a0e-0000-4000-8000-000000000103"),
			HospitalID: seedHospital.ID,
			Name:       "Dr. Sana Khan",
		},
	}
)

func seedMemory(m *directory.Memory) {
	m.AddHospital(seedHospital)
	for _, d := range seedDoctors {
		m.AddDoctor(d)
	}
}

// seedPostgres inserts the seed directory; rows that exist are left alone.
func seedPostgres(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("seed: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO hospitals (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		seedHospital.ID, seedHospital.Name); err != nil {
		return fmt.Errorf("seed hospital: %w", err)
	}
	for _, d := range seedDoctors {
		if _, err := tx.Exec(ctx, `INSERT INTO doctors (id, hospital_id, name) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
			d.ID, d.HospitalID, d.Name); err != nil {
			return fmt.Errorf("seed doctor %s: %w", d.Name, err)
		}
		for _, s := range d.Specializations {
			if _, err := tx.Exec(ctx, `
				WITH spec AS (
					INSERT INTO specializations (id, name) VALUES ($1, $2)
					ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
					RETURNING id
				)
				INSERT INTO doctor_specializations (doctor_id, specialization_id)
				SELECT $3, id FROM spec
				ON CONFLICT DO NOTHING`,
				uuid.New(), s, d.ID); err != nil {
				return fmt.Errorf("seed specialization %s: %w", s, err)
			}
		}
	}
	return tx.Commit(ctx)
}
