package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/chatterdesk/presence-engine/internal/database"
	"github.com/chatterdesk/presence-engine/internal/model"
)

type AttendanceRepository interface {
	FindByID(ctx context.Context, id string) (*model.AttendanceSession, error)
	FindLive(ctx context.Context, agentEmail, creatorID string, source model.SessionSource) (*model.AttendanceSession, error)
	LiveBySource(ctx context.Context, source model.SessionSource) ([]model.AttendanceSession, error)
	// Open creates a live session for the pair unless one already exists.
	// Safe to call concurrently for the same key: the partial unique index
	// on (agent_email, creator_id, source) WHERE is_live guarantees at most
	// one live row.
	Open(ctx context.Context, agentEmail, creatorID string, source model.SessionSource, at time.Time) (*model.AttendanceSession, error)
	BulkOpen(ctx context.Context, pairs []model.Pair, source model.SessionSource, at time.Time) (int64, error)
	// Close is a no-op on an already-closed session.
	Close(ctx context.Context, id string, at time.Time) error
	UpdateActivity(ctx context.Context, id string, percent *float64) error
	List(ctx context.Context, filter model.SessionFilter, limit, offset int) ([]model.AttendanceSession, error)
	Count(ctx context.Context, filter model.SessionFilter) (int, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) AttendanceRepository
}

type attendanceRepo struct {
	db database.DBTX
}

func NewAttendanceRepository(db *sqlx.DB) AttendanceRepository {
	return &attendanceRepo{db: db}
}

func (r *attendanceRepo) WithTx(tx *sqlx.Tx) AttendanceRepository {
	return &attendanceRepo{db: tx}
}

func (r *attendanceRepo) FindByID(ctx context.Context, id string) (*model.AttendanceSession, error) {
	var session model.AttendanceSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM attendance_sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *attendanceRepo) FindLive(ctx context.Context, agentEmail, creatorID string, source model.SessionSource) (*model.AttendanceSession, error) {
	var session model.AttendanceSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM attendance_sessions
		WHERE agent_email = $1 AND creator_id = $2 AND source = $3 AND is_live
	`, agentEmail, creatorID, source)
	return HandleNotFound(&session, err)
}

func (r *attendanceRepo) LiveBySource(ctx context.Context, source model.SessionSource) ([]model.AttendanceSession, error) {
	var sessions []model.AttendanceSession
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM attendance_sessions
		WHERE source = $1 AND is_live
		ORDER BY clock_in ASC
	`, source)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *attendanceRepo) Open(ctx context.Context, agentEmail, creatorID string, source model.SessionSource, at time.Time) (*model.AttendanceSession, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_sessions (agent_email, creator_id, source, clock_in, is_live)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (agent_email, creator_id, source) WHERE is_live DO NOTHING
	`, agentEmail, creatorID, source, at)
	if err != nil {
		return nil, err
	}
	// The live row is either the one just inserted or the one a concurrent
	// run won the race with; both are correct.
	return r.FindLive(ctx, agentEmail, creatorID, source)
}

func (r *attendanceRepo) BulkOpen(ctx context.Context, pairs []model.Pair, source model.SessionSource, at time.Time) (int64, error) {
	if len(pairs) == 0 {
		return 0, nil
	}

	values := make([]string, 0, len(pairs))
	args := make([]interface{}, 0, len(pairs)*2+2)
	args = append(args, source, at)
	for i, p := range pairs {
		values = append(values, placeholderRow(i*2+3))
		args = append(args, p.AgentEmail, p.CreatorID)
	}

	query := `
		INSERT INTO attendance_sessions (agent_email, creator_id, source, clock_in, is_live)
		SELECT v.agent_email, v.creator_id, $1, $2, TRUE
		FROM (VALUES ` + strings.Join(values, ", ") + `) AS v(agent_email, creator_id)
		ON CONFLICT (agent_email, creator_id, source) WHERE is_live DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *attendanceRepo) Close(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attendance_sessions SET
			clock_out = $2,
			is_live = FALSE,
			updated_at = $2
		WHERE id = $1 AND is_live
	`, id, at)
	return err
}

func (r *attendanceRepo) UpdateActivity(ctx context.Context, id string, percent *float64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attendance_sessions SET
			activity_percent = $2,
			updated_at = NOW()
		WHERE id = $1 AND is_live
	`, id, percent)
	return err
}

func (r *attendanceRepo) List(ctx context.Context, filter model.SessionFilter, limit, offset int) ([]model.AttendanceSession, error) {
	where, args := buildSessionFilter(filter)
	args = append(args, limit, offset)

	var sessions []model.AttendanceSession
	query := `
		SELECT * FROM attendance_sessions
	` + where + `
		ORDER BY clock_in DESC
		LIMIT $` + itoa(len(args)-1) + ` OFFSET $` + itoa(len(args))
	err := r.db.SelectContext(ctx, &sessions, query, args...)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *attendanceRepo) Count(ctx context.Context, filter model.SessionFilter) (int, error) {
	where, args := buildSessionFilter(filter)

	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM attendance_sessions `+where, args...)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func buildSessionFilter(filter model.SessionFilter) (string, []interface{}) {
	conditions := []string{}
	args := []interface{}{}

	if filter.AgentEmail != "" {
		args = append(args, filter.AgentEmail)
		conditions = append(conditions, "agent_email = $"+itoa(len(args)))
	}
	if filter.CreatorID != "" {
		args = append(args, filter.CreatorID)
		conditions = append(conditions, "creator_id = $"+itoa(len(args)))
	}
	if filter.Source != "" {
		args = append(args, filter.Source)
		conditions = append(conditions, "source = $"+itoa(len(args)))
	}
	if filter.LiveOnly {
		conditions = append(conditions, "is_live")
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
