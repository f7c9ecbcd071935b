package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/chatterdesk/presence-engine/internal/model"
	"github.com/chatterdesk/presence-engine/internal/repository"
	"github.com/chatterdesk/presence-engine/internal/telemetry"
)

type mockShiftRepo struct {
	mock.Mock
}

func (m *mockShiftRepo) ListAll(ctx context.Context) ([]model.ShiftAssignment, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.ShiftAssignment), args.Error(1)
}

func (m *mockShiftRepo) ListByAgent(ctx context.Context, agentEmail string) ([]model.ShiftAssignment, error) {
	args := m.Called(ctx, agentEmail)
	return args.Get(0).([]model.ShiftAssignment), args.Error(1)
}

func (m *mockShiftRepo) CreatorsForAgent(ctx context.Context, agentEmail string) ([]string, error) {
	args := m.Called(ctx, agentEmail)
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockShiftRepo) AgentEmails(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

type mockAttendanceRepo struct {
	mock.Mock
}

func (m *mockAttendanceRepo) FindByID(ctx context.Context, id string) (*model.AttendanceSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AttendanceSession), args.Error(1)
}

func (m *mockAttendanceRepo) FindLive(ctx context.Context, agentEmail, creatorID string, source model.SessionSource) (*model.AttendanceSession, error) {
	args := m.Called(ctx, agentEmail, creatorID, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AttendanceSession), args.Error(1)
}

func (m *mockAttendanceRepo) LiveBySource(ctx context.Context, source model.SessionSource) ([]model.AttendanceSession, error) {
	args := m.Called(ctx, source)
	return args.Get(0).([]model.AttendanceSession), args.Error(1)
}

func (m *mockAttendanceRepo) Open(ctx context.Context, agentEmail, creatorID string, source model.SessionSource, at time.Time) (*model.AttendanceSession, error) {
	args := m.Called(ctx, agentEmail, creatorID, source, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AttendanceSession), args.Error(1)
}

func (m *mockAttendanceRepo) BulkOpen(ctx context.Context, pairs []model.Pair, source model.SessionSource, at time.Time) (int64, error) {
	args := m.Called(ctx, pairs, source, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockAttendanceRepo) Close(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *mockAttendanceRepo) UpdateActivity(ctx context.Context, id string, percent *float64) error {
	args := m.Called(ctx, id, percent)
	return args.Error(0)
}

func (m *mockAttendanceRepo) List(ctx context.Context, filter model.SessionFilter, limit, offset int) ([]model.AttendanceSession, error) {
	args := m.Called(ctx, filter, limit, offset)
	return args.Get(0).([]model.AttendanceSession), args.Error(1)
}

func (m *mockAttendanceRepo) Count(ctx context.Context, filter model.SessionFilter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}

func (m *mockAttendanceRepo) WithTx(tx *sqlx.Tx) repository.AttendanceRepository {
	return m
}

type mockMemberRepo struct {
	mock.Mock
}

func (m *mockMemberRepo) FindByProviderUserID(ctx context.Context, providerUserID string) (*model.TelemetryMember, error) {
	args := m.Called(ctx, providerUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TelemetryMember), args.Error(1)
}

func (m *mockMemberRepo) ListAll(ctx context.Context) ([]model.TelemetryMember, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.TelemetryMember), args.Error(1)
}

func (m *mockMemberRepo) Create(ctx context.Context, params model.CreateTelemetryMemberParams) (*model.TelemetryMember, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TelemetryMember), args.Error(1)
}

type mockCredRepo struct {
	mock.Mock
}

func (m *mockCredRepo) FindByOrg(ctx context.Context, orgID string) (*model.TelemetryCredential, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TelemetryCredential), args.Error(1)
}

func (m *mockCredRepo) Create(ctx context.Context, params model.CreateTelemetryCredentialParams) (*model.TelemetryCredential, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TelemetryCredential), args.Error(1)
}

func (m *mockCredRepo) UpdateTokens(ctx context.Context, id string, accessToken, refreshToken string, expiresAt time.Time, prevUpdatedAt time.Time) (bool, error) {
	args := m.Called(ctx, id, accessToken, refreshToken, expiresAt, prevUpdatedAt)
	return args.Bool(0), args.Error(1)
}

func (m *mockCredRepo) MarkSynced(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

// fakeTelemetryAPI avoids mock ceremony for the provider client; tests set
// the maps directly.
type fakeTelemetryAPI struct {
	active   map[string]bool
	online   map[string]bool
	activity map[string]telemetry.Activity
	members  []telemetry.Member
	err      error
}

func (f *fakeTelemetryAPI) ActiveUserIDs(ctx context.Context, windowStart, windowEnd time.Time) (map[string]bool, error) {
	return f.active, f.err
}

func (f *fakeTelemetryAPI) OnlineUserIDs(ctx context.Context) (map[string]bool, error) {
	return f.online, f.err
}

func (f *fakeTelemetryAPI) AggregateActivity(ctx context.Context, windowStart, windowEnd time.Time) (map[string]telemetry.Activity, error) {
	return f.activity, f.err
}

func (f *fakeTelemetryAPI) Members(ctx context.Context) ([]telemetry.Member, error) {
	return f.members, f.err
}

type fakeRecorder struct {
	runs map[string]RunSummary
}

func (f *fakeRecorder) RecordRun(ctx context.Context, source string, summary RunSummary) {
	if f.runs == nil {
		f.runs = make(map[string]RunSummary)
	}
	f.runs[source] = summary
}
