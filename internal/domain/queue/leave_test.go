package queue

import (
	"context"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mar(day int) civil.Date {
	return civil.Date{Year: 2024, Month: 3, Day: day}
}

func TestMergeLeaveDates(t *testing.T) {
	ranges, dates := mergeLeaveDates([]civil.Date{mar(14), mar(10), mar(11), mar(11), mar(12), mar(20)})

	assert.Equal(t, []civil.Date{mar(10), mar(11), mar(12), mar(14), mar(20)}, dates)
	assert.Equal(t, []LeaveRange{
		{StartDate: mar(10), EndDate: mar(12)},
		{StartDate: mar(14), EndDate: mar(14)},
		{StartDate: mar(20), EndDate: mar(20)},
	}, ranges)

	ranges, dates = mergeLeaveDates(nil)
	assert.Empty(t, ranges)
	assert.Empty(t, dates)
}

func TestMergeLeaveDates_AcrossMonthEnd(t *testing.T) {
	feb28 := civil.Date{Year: 2023, Month: 2, Day: 28}
	ranges, _ := mergeLeaveDates([]civil.Date{feb28, feb28.AddDays(1)})
	require.Len(t, ranges, 1)
	assert.Equal(t, civil.Date{Year: 2023, Month: 3, Day: 1}, ranges[0].EndDate)
}

func TestMarkLeave_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.MarkLeave(ctx, f.doctor, mar(10), mar(12))
	require.NoError(t, err)
	assert.Len(t, first, 3)

	_, err = f.svc.MarkLeave(ctx, f.doctor, mar(10), mar(12))
	require.NoError(t, err)

	summary, err := f.svc.UpcomingLeaves(ctx, f.doctor, mar(1), mar(31))
	require.NoError(t, err)
	assert.Equal(t, []LeaveRange{{StartDate: mar(10), EndDate: mar(12)}}, summary.Ranges)
	assert.Len(t, summary.Dates, 3)

	a, err := f.svc.GetAvailability(ctx, f.doctor, mar(11))
	require.NoError(t, err)
	assert.True(t, a.IsLeave)
	assert.Equal(t, 0, a.AvailableTokens())
}

func TestMarkLeave_KeepsExistingCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.configure(t, mar(10), 12)

	_, err := f.svc.MarkLeave(ctx, f.doctor, mar(10), mar(10))
	require.NoError(t, err)

	a, err := f.svc.GetAvailability(ctx, f.doctor, mar(10))
	require.NoError(t, err)
	assert.Equal(t, 12, a.TotalTokenCount)
	assert.True(t, a.IsLeave)
}

func TestCancelLeave_SplitsRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.MarkLeave(ctx, f.doctor, mar(10), mar(14))
	require.NoError(t, err)

	cleared, err := f.svc.CancelLeave(ctx, f.doctor, mar(12), mar(12))
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{mar(12)}, cleared)

	summary, err := f.svc.UpcomingLeaves(ctx, f.doctor, mar(1), mar(31))
	require.NoError(t, err)
	assert.Equal(t, []LeaveRange{
		{StartDate: mar(10), EndDate: mar(11)},
		{StartDate: mar(13), EndDate: mar(14)},
	}, summary.Ranges)

	// Days without leave are skipped.
	cleared, err = f.svc.CancelLeave(ctx, f.doctor, mar(1), mar(5))
	require.NoError(t, err)
	assert.Empty(t, cleared)
}

func TestLeave_RangeValidation(t *testing.T) {
	f := newFixture(t, WithMaxLeaveDays(7))
	ctx := context.Background()

	_, err := f.svc.MarkLeave(ctx, f.doctor, mar(12), mar(10))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "end_date", ve.Field)

	_, err = f.svc.MarkLeave(ctx, f.doctor, mar(1), mar(8))
	require.ErrorAs(t, err, &ve)

	_, err = f.svc.MarkLeave(ctx, f.doctor, mar(1), mar(7))
	require.NoError(t, err)

	_, err = f.svc.UpcomingLeaves(ctx, f.doctor, mar(10), mar(1))
	require.ErrorAs(t, err, &ve)
}

func TestUpcomingLeaves_Window(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.MarkLeave(ctx, f.doctor, mar(5), mar(9))
	require.NoError(t, err)

	summary, err := f.svc.UpcomingLeaves(ctx, f.doctor, mar(7), mar(20))
	require.NoError(t, err)
	assert.Equal(t, []LeaveRange{{StartDate: mar(7), EndDate: mar(9)}}, summary.Ranges)
}
