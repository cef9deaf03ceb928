package queue

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medikore/medikore/internal/domain/directory"
)

func TestCurrentConsultationNumber(t *testing.T) {
	tok := func(n int, s TokenStatus) *Token { return &Token{QueueNumber: n, Status: s} }

	tests := []struct {
		name   string
		tokens []*Token
		want   int
	}{
		{"empty day", nil, 0},
		{"nothing started", []*Token{tok(1, StatusUpcoming), tok(2, StatusUpcoming)}, 0},
		{"in progress wins", []*Token{tok(1, StatusCompleted), tok(2, StatusInProgress), tok(4, StatusCompleted)}, 2},
		{"highest in progress", []*Token{tok(3, StatusInProgress), tok(5, StatusInProgress)}, 5},
		{"falls back to completed", []*Token{tok(1, StatusCompleted), tok(3, StatusCompleted), tok(2, StatusMissed)}, 3},
		{"missed and cancelled ignored", []*Token{tok(1, StatusMissed), tok(2, StatusCancelled)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CurrentConsultationNumber(tt.tokens))
		})
	}
}

func TestDoctorDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.configure(t, day1, 5)

	a := f.issue(t, day1, "a")
	b := f.issue(t, day1, "b")
	c := f.issue(t, day1, "c")
	f.issue(t, day1, "d")

	_, err := f.svc.Transition(ctx, a.ID, StatusCompleted, nil)
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, b.ID, StatusInProgress, nil)
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, c.ID, StatusCancelled, nil)
	require.NoError(t, err)

	day, err := f.svc.DoctorDay(ctx, f.doctor, day1)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Rao", day.DoctorName)
	assert.Equal(t, DayCounts{Total: 4, Upcoming: 1, InProgress: 1, Completed: 1, Cancelled: 1}, day.Counts)
	assert.Equal(t, 2, day.CurrentConsultationNumber)
	assert.Equal(t, 1, day.AvailableTokens)
	require.Len(t, day.Upcoming, 1)
	assert.Equal(t, 4, day.Upcoming[0].QueueNumber)
	require.Len(t, day.Cancelled, 1)

	n, err := f.svc.CurrentNumber(ctx, f.doctor, day1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDoctorDay_UnknownDoctor(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.DoctorDay(context.Background(), uuid.New(), day1)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestHospitalDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	second := uuid.New()
	f.dir.AddDoctor(directory.Doctor{ID: second, HospitalID: f.hospital, Name: "Dr. Iyer", Specializations: []string{"Cardiology", "Pediatrics"}})
	third := uuid.New()
	f.dir.AddDoctor(directory.Doctor{ID: third, HospitalID: f.hospital, Name: "Dr. Khan"})
	f.dir.AddDoctor(directory.Doctor{ID: uuid.New(), HospitalID: uuid.New(), Name: "Elsewhere"})

	f.configure(t, day1, 5)
	a := f.issue(t, day1, "a")
	b := f.issue(t, day1, "b")
	_, err := f.svc.Transition(ctx, a.ID, StatusCompleted, nil)
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, b.ID, StatusCancelled, nil)
	require.NoError(t, err)

	_, err = f.svc.UpsertCapacity(ctx, second, day1, CapacityConfig{TotalTokenCount: 3})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := f.svc.IssueToken(ctx, second, day1, day1, patient("x"))
		require.NoError(t, err)
	}

	view, err := f.svc.HospitalDay(ctx, f.hospital, day1)
	require.NoError(t, err)
	assert.Equal(t, "City Hospital", view.HospitalName)
	require.Len(t, view.Doctors, 3)
	assert.Equal(t, "Dr. Iyer", view.Doctors[0].DoctorName)
	assert.Nil(t, view.Doctors[0].Upcoming, "hospital view carries counts only")
	assert.Equal(t, 4, view.Appointments)
	assert.Equal(t, 1, view.ConsultationsDone)

	assert.Equal(t, []SpecializationDay{
		{Name: "Cardiology", Doctors: 2, Appointments: 4, ConsultationsDone: 1},
		{Name: "Pediatrics", Doctors: 1, Appointments: 3, ConsultationsDone: 0},
		{Name: unspecifiedSpecialization, Doctors: 1, Appointments: 0, ConsultationsDone: 0},
	}, view.Specializations)
}

func TestHospitalDay_UnknownHospital(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.HospitalDay(context.Background(), uuid.New(), day1)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "hospital", nf.Resource)
}

func TestSearchDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.configure(t, day1, 5)

	_, err := f.svc.IssueToken(ctx, f.doctor, day1, day1, PatientInfo{Name: "Asha Verma", Mobile: "9876543210"})
	require.NoError(t, err)
	_, err = f.svc.IssueToken(ctx, f.doctor, day1, day1, PatientInfo{Name: "Ravi", Mobile: "9123456780", Description: "Chest pain"})
	require.NoError(t, err)

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"asha", 1},
		{"91234", 1},
		{"CHEST", 1},
		{"nobody", 0},
	}
	for _, tt := range tests {
		got, err := f.svc.SearchDay(ctx, f.doctor, day1, tt.query)
		require.NoError(t, err)
		assert.Len(t, got, tt.want, "query %q", tt.query)
	}
}
