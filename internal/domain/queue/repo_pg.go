package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medikore/medikore/internal/platform/db"
)

type repoPG struct{ pool db.Pool }

// NewRepoPG accepts a *pgxpool.Pool or anything with the same surface.
func NewRepoPG(pool db.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

// pgDate converts a civil date into a value pgx binds to a DATE column.
func pgDate(d civil.Date) time.Time {
	return d.In(time.UTC)
}

const availCols = `doctor_id, date, total_token_count, filled_token_count, consultations_done,
	is_leave, is_stopped, is_paused, pause_reason, created_at, updated_at`

func scanAvailability(row pgx.Row) (*Availability, error) {
	var (
		a Availability
		d time.Time
	)
	err := row.Scan(&a.DoctorID, &d, &a.TotalTokenCount, &a.FilledTokenCount, &a.ConsultationsDone,
		&a.IsLeave, &a.IsStopped, &a.IsPaused, &a.PauseReason, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Date = civil.DateOf(d)
	a.Configured = true
	return &a, nil
}

const tokenCols = `id, doctor_id, date, queue_number, patient_id, patient_name, patient_mobile,
	description, status, source, consultation_notes, created_at, updated_at`

func scanToken(row pgx.Row) (*Token, error) {
	var (
		t              Token
		d              time.Time
		status, source string
	)
	err := row.Scan(&t.ID, &t.DoctorID, &d, &t.QueueNumber, &t.PatientID, &t.PatientName, &t.PatientMobile,
		&t.Description, &status, &source, &t.ConsultationNotes, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Date = civil.DateOf(d)
	t.Status = TokenStatus(status)
	t.Source = TokenSource(source)
	return &t, nil
}

func dayID(doctorID uuid.UUID, date civil.Date) string {
	return doctorID.String() + "/" + date.String()
}

// writeErr maps a missing doctor row to a NotFoundError.
func writeErr(op string, doctorID uuid.UUID, err error) error {
	if db.IsForeignKeyViolation(err) {
		return &NotFoundError{Resource: "doctor", ID: doctorID.String()}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *repoPG) GetAvailability(ctx context.Context, doctorID uuid.UUID, date civil.Date) (*Availability, error) {
	a, err := scanAvailability(r.conn(ctx).QueryRow(ctx,
		`SELECT `+availCols+` FROM doctor_availability WHERE doctor_id = $1 AND date = $2`,
		doctorID, pgDate(date)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: "availability", ID: dayID(doctorID, date)}
	}
	if err != nil {
		return nil, fmt.Errorf("get availability: %w", err)
	}
	return a, nil
}

func (r *repoPG) UpsertCapacity(ctx context.Context, doctorID uuid.UUID, date civil.Date, cfg CapacityConfig) (*Availability, error) {
	a, err := scanAvailability(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_availability (doctor_id, date, total_token_count, is_stopped, is_leave)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (doctor_id, date) DO UPDATE SET
			total_token_count = EXCLUDED.total_token_count,
			is_stopped = EXCLUDED.is_stopped,
			is_leave = EXCLUDED.is_leave,
			updated_at = NOW()
		RETURNING `+availCols,
		doctorID, pgDate(date), cfg.TotalTokenCount, cfg.IsStopped, cfg.IsLeave))
	if err != nil {
		return nil, writeErr("upsert capacity", doctorID, err)
	}
	return a, nil
}

func (r *repoPG) SetPause(ctx context.Context, doctorID uuid.UUID, date civil.Date, paused bool, reason *string) (*Availability, error) {
	a, err := scanAvailability(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_availability (doctor_id, date, is_paused, pause_reason)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (doctor_id, date) DO UPDATE SET
			is_paused = EXCLUDED.is_paused,
			pause_reason = EXCLUDED.pause_reason,
			updated_at = NOW()
		RETURNING `+availCols,
		doctorID, pgDate(date), paused, reason))
	if err != nil {
		return nil, writeErr("set pause", doctorID, err)
	}
	return a, nil
}

func (r *repoPG) MarkLeave(ctx context.Context, doctorID uuid.UUID, date civil.Date) (*Availability, error) {
	a, err := scanAvailability(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_availability (doctor_id, date, is_leave)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (doctor_id, date) DO UPDATE SET is_leave = TRUE, updated_at = NOW()
		RETURNING `+availCols,
		doctorID, pgDate(date)))
	if err != nil {
		return nil, writeErr("mark leave", doctorID, err)
	}
	return a, nil
}

func (r *repoPG) ClearLeave(ctx context.Context, doctorID uuid.UUID, date civil.Date) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctor_availability SET is_leave = FALSE, updated_at = NOW()
		WHERE doctor_id = $1 AND date = $2 AND is_leave`,
		doctorID, pgDate(date))
	if err != nil {
		return false, fmt.Errorf("clear leave: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) ListLeaveDates(ctx context.Context, doctorID uuid.UUID, from, to civil.Date) ([]civil.Date, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT date FROM doctor_availability
		WHERE doctor_id = $1 AND is_leave AND date BETWEEN $2 AND $3
		ORDER BY date`,
		doctorID, pgDate(from), pgDate(to))
	if err != nil {
		return nil, fmt.Errorf("list leave dates: %w", err)
	}
	defer rows.Close()

	dates := []civil.Date{}
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan leave date: %w", err)
		}
		dates = append(dates, civil.DateOf(d))
	}
	return dates, rows.Err()
}

// IssueToken claims the next queue number with a conditional UPDATE. The row
// lock it takes serializes concurrent issuers for the same day, and a losing
// issuer re-evaluates the WHERE clause against the committed count.
func (r *repoPG) IssueToken(ctx context.Context, t *Token) (*Availability, error) {
	var claimed *Availability
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)

		if _, err := q.Exec(ctx, `
			INSERT INTO doctor_availability (doctor_id, date) VALUES ($1, $2)
			ON CONFLICT (doctor_id, date) DO NOTHING`,
			t.DoctorID, pgDate(t.Date)); err != nil {
			return writeErr("ensure availability", t.DoctorID, err)
		}

		a, err := scanAvailability(q.QueryRow(ctx, `
			UPDATE doctor_availability
			SET filled_token_count = filled_token_count + 1, updated_at = NOW()
			WHERE doctor_id = $1 AND date = $2
				AND NOT is_leave AND NOT is_stopped
				AND filled_token_count < total_token_count
			RETURNING `+availCols,
			t.DoctorID, pgDate(t.Date)))
		if errors.Is(err, pgx.ErrNoRows) {
			cur, err := scanAvailability(q.QueryRow(ctx,
				`SELECT `+availCols+` FROM doctor_availability WHERE doctor_id = $1 AND date = $2`,
				t.DoctorID, pgDate(t.Date)))
			if err != nil {
				return fmt.Errorf("load availability: %w", err)
			}
			reason := capacityReason(cur)
			if reason == "" {
				reason = ReasonFull
			}
			return &CapacityError{DoctorID: t.DoctorID, Date: t.Date, Reason: reason}
		}
		if err != nil {
			return fmt.Errorf("claim queue number: %w", err)
		}

		t.QueueNumber = a.FilledTokenCount
		err = q.QueryRow(ctx, `
			INSERT INTO tokens (id, doctor_id, date, queue_number, patient_id, patient_name,
				patient_mobile, description, status, source)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING created_at, updated_at`,
			t.ID, t.DoctorID, pgDate(t.Date), t.QueueNumber, t.PatientID, t.PatientName,
			t.PatientMobile, t.Description, string(t.Status), string(t.Source)).
			Scan(&t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert token: %w", err)
		}
		claimed = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *repoPG) GetToken(ctx context.Context, id uuid.UUID) (*Token, error) {
	t, err := scanToken(r.conn(ctx).QueryRow(ctx, `SELECT `+tokenCols+` FROM tokens WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: "token", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	return t, nil
}

func (r *repoPG) UpdateToken(ctx context.Context, id uuid.UUID, apply func(t *Token) error) (*Token, error) {
	var updated *Token
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)

		t, err := scanToken(q.QueryRow(ctx, `SELECT `+tokenCols+` FROM tokens WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Resource: "token", ID: id.String()}
		}
		if err != nil {
			return fmt.Errorf("lock token: %w", err)
		}

		prev := t.Status
		if err := apply(t); err != nil {
			return err
		}

		err = q.QueryRow(ctx, `
			UPDATE tokens SET status = $2, consultation_notes = $3, updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at`,
			id, string(t.Status), t.ConsultationNotes).Scan(&t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update token: %w", err)
		}

		if t.Status == StatusCompleted && prev != StatusCompleted {
			if _, err := q.Exec(ctx, `
				UPDATE doctor_availability
				SET consultations_done = consultations_done + 1, updated_at = NOW()
				WHERE doctor_id = $1 AND date = $2`,
				t.DoctorID, pgDate(t.Date)); err != nil {
				return fmt.Errorf("count consultation: %w", err)
			}
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *repoPG) ListTokens(ctx context.Context, doctorID uuid.UUID, date civil.Date) ([]*Token, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+tokenCols+` FROM tokens WHERE doctor_id = $1 AND date = $2 ORDER BY queue_number`,
		doctorID, pgDate(date))
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	tokens := []*Token{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
