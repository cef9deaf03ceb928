//go:build integration

package integration

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/medikore/medikore/internal/domain/directory"
	"github.com/medikore/medikore/internal/domain/queue"
)

var testDay = civil.Date{Year: 2030, Month: 6, Day: 3}

// newDoctor inserts a hospital with one doctor and returns a service over
// the real repositories.
func newDoctor(t *testing.T, specializations ...string) (*queue.Service, uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	hospital, doctor := uuid.New(), uuid.New()

	if _, err := globalPool.Exec(ctx, `INSERT INTO hospitals (id, name) VALUES ($1, $2)`, hospital, "Hospital "+hospital.String()[:8]); err != nil {
		t.Fatalf("insert hospital: %v", err)
	}
	if _, err := globalPool.Exec(ctx, `INSERT INTO doctors (id, hospital_id, name) VALUES ($1, $2, $3)`, doctor, hospital, "Dr. Test"); err != nil {
		t.Fatalf("insert doctor: %v", err)
	}
	for _, s := range specializations {
		if _, err := globalPool.Exec(ctx, `
			WITH spec AS (
				INSERT INTO specializations (id, name) VALUES ($1, $2)
				ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
				RETURNING id
			)
			INSERT INTO doctor_specializations (doctor_id, specialization_id) SELECT $3, id FROM spec`,
			uuid.New(), s, doctor); err != nil {
			t.Fatalf("insert specialization: %v", err)
		}
	}

	svc := queue.NewService(queue.NewRepoPG(globalPool), directory.NewRepoPG(globalPool))
	return svc, hospital, doctor
}

func TestIssueToken_ConcurrentBookingsNeverOversell(t *testing.T) {
	ctx := context.Background()
	svc, _, doctor := newDoctor(t)

	const capacity, callers = 20, 50
	if _, err := svc.UpsertCapacity(ctx, doctor, testDay, queue.CapacityConfig{TotalTokenCount: capacity}); err != nil {
		t.Fatalf("configure: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []int
		refused int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := svc.IssueToken(ctx, doctor, testDay, testDay, queue.PatientInfo{Name: "P", Mobile: "9876543210"})
			mu.Lock()
			defer mu.Unlock()
			var ce *queue.CapacityError
			switch {
			case err == nil:
				numbers = append(numbers, tok.QueueNumber)
			case errors.As(err, &ce) && ce.Reason == queue.ReasonFull:
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(numbers) != capacity || refused != callers-capacity {
		t.Fatalf("expected %d issued and %d refused, got %d and %d", capacity, callers-capacity, len(numbers), refused)
	}
	sort.Ints(numbers)
	for i, n := range numbers {
		if n != i+1 {
			t.Fatalf("queue numbers are not 1..%d without gaps: %v", capacity, numbers)
		}
	}

	a, err := svc.GetAvailability(ctx, doctor, testDay)
	if err != nil {
		t.Fatal(err)
	}
	if a.FilledTokenCount != capacity || a.AvailableTokens() != 0 {
		t.Errorf("unexpected availability %+v", a)
	}
}

func TestTransition_CompletionCountsOnce(t *testing.T) {
	ctx := context.Background()
	svc, _, doctor := newDoctor(t)
	if _, err := svc.UpsertCapacity(ctx, doctor, testDay, queue.CapacityConfig{TotalTokenCount: 5}); err != nil {
		t.Fatal(err)
	}
	tok, err := svc.IssueToken(ctx, doctor, testDay, testDay, queue.PatientInfo{Name: "P", Mobile: "9876543210"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Transition(ctx, tok.ID, queue.StatusInProgress, nil); err != nil {
		t.Fatal(err)
	}
	notes := "follow up in a week"
	if _, err := svc.Transition(ctx, tok.ID, queue.StatusCompleted, &notes); err != nil {
		t.Fatal(err)
	}
	var te *queue.InvalidTransitionError
	if _, err := svc.Transition(ctx, tok.ID, queue.StatusCompleted, nil); !errors.As(err, &te) {
		t.Fatalf("expected an invalid transition, got %v", err)
	}

	a, err := svc.GetAvailability(ctx, doctor, testDay)
	if err != nil {
		t.Fatal(err)
	}
	if a.ConsultationsDone != 1 {
		t.Errorf("expected one consultation done, got %d", a.ConsultationsDone)
	}
	got, err := svc.GetToken(ctx, tok.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ConsultationNotes == nil || *got.ConsultationNotes != notes {
		t.Errorf("notes were not stored: %+v", got.ConsultationNotes)
	}
}

func TestLeave_BlocksBookingAndMerges(t *testing.T) {
	ctx := context.Background()
	svc, _, doctor := newDoctor(t)

	if _, err := svc.MarkLeave(ctx, doctor, testDay, testDay.AddDays(2)); err != nil {
		t.Fatal(err)
	}
	_, err := svc.IssueToken(ctx, doctor, testDay.AddDays(1), testDay, queue.PatientInfo{Name: "P", Mobile: "9876543210"})
	var ce *queue.CapacityError
	if !errors.As(err, &ce) || ce.Reason != queue.ReasonOnLeave {
		t.Fatalf("expected on_leave refusal, got %v", err)
	}

	if _, err := svc.CancelLeave(ctx, doctor, testDay.AddDays(1), testDay.AddDays(1)); err != nil {
		t.Fatal(err)
	}
	summary, err := svc.UpcomingLeaves(ctx, doctor, testDay, testDay.AddDays(30))
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Ranges) != 2 {
		t.Errorf("expected the range to split in two, got %+v", summary.Ranges)
	}
}

func TestHospitalDay_GroupsBySpecialization(t *testing.T) {
	ctx := context.Background()
	svc, hospital, doctor := newDoctor(t, "Cardiology", "Neurology")
	if _, err := svc.UpsertCapacity(ctx, doctor, testDay, queue.CapacityConfig{TotalTokenCount: 3}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := svc.IssueToken(ctx, doctor, testDay, testDay, queue.PatientInfo{Name: "P", Mobile: "9876543210"}); err != nil {
			t.Fatal(err)
		}
	}

	view, err := svc.HospitalDay(ctx, hospital, testDay)
	if err != nil {
		t.Fatal(err)
	}
	if view.Appointments != 2 || len(view.Doctors) != 1 {
		t.Fatalf("unexpected view %+v", view)
	}
	if len(view.Specializations) != 2 || view.Specializations[0].Name != "Cardiology" {
		t.Errorf("unexpected specializations %+v", view.Specializations)
	}
}
