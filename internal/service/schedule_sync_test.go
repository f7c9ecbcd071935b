package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chatterdesk/presence-engine/internal/model"
)

func newScheduleSync(shiftRepo *mockShiftRepo, attendanceRepo *mockAttendanceRepo, at time.Time) (*ScheduleSyncService, *fakeRecorder) {
	recorder := &fakeRecorder{}
	svc := NewScheduleSyncService(shiftRepo, attendanceRepo, recorder, 30*time.Second)
	svc.now = func() time.Time { return at }
	return svc, recorder
}

func TestScheduleSync_OpensAndCloses(t *testing.T) {
	// 10:00 — inside the day shift, outside the overnight shift.
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	shiftRepo := new(mockShiftRepo)
	shiftRepo.On("ListAll", mock.Anything).Return([]model.ShiftAssignment{
		{AgentEmail: "day@x.com", CreatorID: "c1", ShiftTime: "09:00-17:00"},
		{AgentEmail: "night@x.com", CreatorID: "c2", ShiftTime: "23:00-07:00"},
	}, nil)

	attendanceRepo := new(mockAttendanceRepo)
	attendanceRepo.On("LiveBySource", mock.Anything, model.SourceSchedule).Return([]model.AttendanceSession{
		{ID: "s-night", AgentEmail: "night@x.com", CreatorID: "c2", Source: model.SourceSchedule, IsLive: true},
	}, nil)
	attendanceRepo.On("BulkOpen", mock.Anything, []model.Pair{{AgentEmail: "day@x.com", CreatorID: "c1"}}, model.SourceSchedule, now).
		Return(int64(1), nil)
	attendanceRepo.On("Close", mock.Anything, "s-night", now).Return(nil)

	svc, recorder := newScheduleSync(shiftRepo, attendanceRepo, now)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusOK, summary.Status)
	assert.Equal(t, 1, summary.ClockedIn)
	assert.Equal(t, 1, summary.ClockedOut)
	assert.Equal(t, 1, summary.ActiveCount)
	assert.Equal(t, 2, summary.TotalCandidates)
	assert.False(t, summary.Partial)

	attendanceRepo.AssertExpectations(t)
	assert.Contains(t, recorder.runs, "schedule")
}

func TestScheduleSync_OvernightShiftActiveAfterMidnight(t *testing.T) {
	now := time.Date(2026, 8, 30, 2, 0, 0, 0, time.UTC)

	shiftRepo := new(mockShiftRepo)
	shiftRepo.On("ListAll", mock.Anything).Return([]model.ShiftAssignment{
		{AgentEmail: "night@x.com", CreatorID: "c2", ShiftTime: "23:00-07:00"},
	}, nil)

	attendanceRepo := new(mockAttendanceRepo)
	attendanceRepo.On("LiveBySource", mock.Anything, model.SourceSchedule).Return([]model.AttendanceSession{}, nil)
	attendanceRepo.On("BulkOpen", mock.Anything, []model.Pair{{AgentEmail: "night@x.com", CreatorID: "c2"}}, model.SourceSchedule, now).
		Return(int64(1), nil)

	svc, _ := newScheduleSync(shiftRepo, attendanceRepo, now)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ClockedIn)
	assert.Zero(t, summary.ClockedOut)
}

func TestScheduleSync_NoAssignmentsIsNotConfigured(t *testing.T) {
	shiftRepo := new(mockShiftRepo)
	shiftRepo.On("ListAll", mock.Anything).Return([]model.ShiftAssignment{}, nil)

	attendanceRepo := new(mockAttendanceRepo)
	svc, _ := newScheduleSync(shiftRepo, attendanceRepo, time.Now())

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusNotConfigured, summary.Status)
	attendanceRepo.AssertNotCalled(t, "BulkOpen", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestScheduleSync_OverlappingDeclarationsOpenOnce(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	shiftRepo := new(mockShiftRepo)
	shiftRepo.On("ListAll", mock.Anything).Return([]model.ShiftAssignment{
		{AgentEmail: "a@x.com", CreatorID: "c1", ShiftTime: "09:00-17:00"},
		{AgentEmail: "a@x.com", CreatorID: "c1", ShiftTime: "08:00-12:00"},
	}, nil)

	attendanceRepo := new(mockAttendanceRepo)
	attendanceRepo.On("LiveBySource", mock.Anything, model.SourceSchedule).Return([]model.AttendanceSession{}, nil)
	attendanceRepo.On("BulkOpen", mock.Anything, []model.Pair{{AgentEmail: "a@x.com", CreatorID: "c1"}}, model.SourceSchedule, now).
		Return(int64(1), nil)

	svc, _ := newScheduleSync(shiftRepo, attendanceRepo, now)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ActiveCount)
	attendanceRepo.AssertExpectations(t)
}

func TestScheduleSync_MalformedShiftIsInactiveNotFatal(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	shiftRepo := new(mockShiftRepo)
	shiftRepo.On("ListAll", mock.Anything).Return([]model.ShiftAssignment{
		{AgentEmail: "a@x.com", CreatorID: "c1", ShiftTime: "garbage"},
		{AgentEmail: "b@x.com", CreatorID: "c2", ShiftTime: "09:00-17:00"},
	}, nil)

	attendanceRepo := new(mockAttendanceRepo)
	attendanceRepo.On("LiveBySource", mock.Anything, model.SourceSchedule).Return([]model.AttendanceSession{}, nil)
	attendanceRepo.On("BulkOpen", mock.Anything, []model.Pair{{AgentEmail: "b@x.com", CreatorID: "c2"}}, model.SourceSchedule, now).
		Return(int64(1), nil)

	svc, _ := newScheduleSync(shiftRepo, attendanceRepo, now)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ClockedIn)
}

func TestScheduleSync_CloseFailureSkipsAndContinues(t *testing.T) {
	now := time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC)

	shiftRepo := new(mockShiftRepo)
	shiftRepo.On("ListAll", mock.Anything).Return([]model.ShiftAssignment{
		{AgentEmail: "a@x.com", CreatorID: "c1", ShiftTime: "09:00-17:00"},
	}, nil)

	attendanceRepo := new(mockAttendanceRepo)
	attendanceRepo.On("LiveBySource", mock.Anything, model.SourceSchedule).Return([]model.AttendanceSession{
		{ID: "s1", AgentEmail: "a@x.com", CreatorID: "c1", Source: model.SourceSchedule, IsLive: true},
		{ID: "s2", AgentEmail: "b@x.com", CreatorID: "c2", Source: model.SourceSchedule, IsLive: true},
	}, nil)
	attendanceRepo.On("BulkOpen", mock.Anything, mock.Anything, model.SourceSchedule, now).Return(int64(0), nil)
	attendanceRepo.On("Close", mock.Anything, "s1", now).Return(errors.New("deadlock"))
	attendanceRepo.On("Close", mock.Anything, "s2", now).Return(nil)

	svc, _ := newScheduleSync(shiftRepo, attendanceRepo, now)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ClockedOut)
	attendanceRepo.AssertExpectations(t)
}
