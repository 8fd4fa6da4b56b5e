package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"attendance_tracker_bot/internal/domain/report"

	"github.com/jmoiron/sqlx"
)

const entryColumns = `participant_id, name, phone_number, is_completed, COALESCE(message_id, '') AS message_id, started_at`

// Every entry mutation is one conditional statement; Postgres row locking makes each atomic.
type PostgresReportRepository struct {
	db *sqlx.DB
}

func NewPostgresReportRepository(db *sqlx.DB) *PostgresReportRepository {
	return &PostgresReportRepository{db: db}
}

func (r *PostgresReportRepository) Get(ctx context.Context, batchID int64, date string) (*report.DailyReport, error) {
	query := `SELECT id, batch_id, report_date, task_type, task_topic, created_at
               FROM daily_reports WHERE batch_id = $1 AND report_date = $2`
	dr := &report.DailyReport{}
	if err := r.db.GetContext(ctx, dr, query, batchID, date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, report.ErrNotFound
		}
		return nil, fmt.Errorf("error getting daily report: %w", err)
	}

	dr.TaskReport = make([]report.Entry, 0)
	entries := `SELECT ` + entryColumns + ` FROM task_entries WHERE report_id = $1 ORDER BY id`
	if err := r.db.SelectContext(ctx, &dr.TaskReport, entries, dr.ID); err != nil {
		return nil, fmt.Errorf("error loading task entries: %w", err)
	}
	return dr, nil
}

func (r *PostgresReportRepository) SetTaskType(ctx context.Context, batchID int64, date string, taskType report.TaskType) (*report.DailyReport, error) {
	query := `INSERT INTO daily_reports (batch_id, report_date, task_type) VALUES ($1, $2, $3)
               ON CONFLICT (batch_id, report_date) DO UPDATE SET task_type = EXCLUDED.task_type`
	if _, err := r.db.ExecContext(ctx, query, batchID, date, string(taskType)); err != nil {
		return nil, fmt.Errorf("error upserting task type: %w", err)
	}
	return r.Get(ctx, batchID, date)
}

func (r *PostgresReportRepository) SetTaskTopic(ctx context.Context, batchID int64, date, topic string) (*report.DailyReport, error) {
	query := `INSERT INTO daily_reports (batch_id, report_date, task_topic) VALUES ($1, $2, $3)
               ON CONFLICT (batch_id, report_date) DO UPDATE SET task_topic = EXCLUDED.task_topic`
	if _, err := r.db.ExecContext(ctx, query, batchID, date, topic); err != nil {
		return nil, fmt.Errorf("error upserting task topic: %w", err)
	}
	return r.Get(ctx, batchID, date)
}

func (r *PostgresReportRepository) AppendEntry(ctx context.Context, reportID int64, e report.NewEntry) (report.Entry, bool, error) {
	query := `INSERT INTO task_entries (report_id, participant_id, name, phone_number, started_at)
               VALUES ($1, $2, $3, $4, $5)
               ON CONFLICT (report_id, phone_number) DO NOTHING
               RETURNING ` + entryColumns
	var entry report.Entry
	err := r.db.GetContext(ctx, &entry, query, reportID, e.ParticipantID, e.Name, e.PhoneNumber, e.StartedAt)
	switch {
	case err == nil:
		return entry, true, nil
	case isPQCode(err, pqForeignKeyViolation):
		return report.Entry{}, false, report.ErrNotFound
	case !errors.Is(err, sql.ErrNoRows):
		return report.Entry{}, false, fmt.Errorf("error appending task entry: %w", err)
	}

	existing := `SELECT ` + entryColumns + ` FROM task_entries WHERE report_id = $1 AND phone_number = $2`
	if err := r.db.GetContext(ctx, &entry, existing, reportID, e.PhoneNumber); err != nil {
		return report.Entry{}, false, fmt.Errorf("error reading existing task entry: %w", err)
	}
	return entry, false, nil
}

func (r *PostgresReportRepository) CompleteEntry(ctx context.Context, reportID int64, phone, messageID string) (report.Entry, error) {
	query := `UPDATE task_entries SET is_completed = TRUE, message_id = $1
               WHERE report_id = $2 AND phone_number = $3 AND NOT is_completed
               RETURNING ` + entryColumns
	return r.updateOne(ctx, r.db, query, messageID, reportID, phone)
}

func (r *PostgresReportRepository) RestartEntry(ctx context.Context, reportID int64, phone string, at time.Time) (report.Entry, error) {
	query := `UPDATE task_entries SET started_at = $1
               WHERE report_id = $2 AND phone_number = $3 AND NOT is_completed
               RETURNING ` + entryColumns
	return r.updateOne(ctx, r.db, query, at, reportID, phone)
}

func (r *PostgresReportRepository) ReopenByMessage(ctx context.Context, batchID int64, messageID string, at time.Time) (report.Entry, error) {
	query := `UPDATE task_entries te SET is_completed = FALSE, message_id = NULL, started_at = $1
               FROM daily_reports dr
               WHERE te.report_id = dr.id AND dr.batch_id = $2 AND te.message_id = $3 AND te.is_completed
               RETURNING te.participant_id, te.name, te.phone_number, te.is_completed,
                         COALESCE(te.message_id, '') AS message_id, te.started_at`
	return r.updateOne(ctx, r.db, query, at, batchID, messageID)
}

func (r *PostgresReportRepository) updateOne(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (report.Entry, error) {
	var entry report.Entry
	if err := sqlx.GetContext(ctx, q, &entry, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return report.Entry{}, report.ErrEntryNotFound
		}
		return report.Entry{}, fmt.Errorf("error updating task entry: %w", err)
	}
	return entry, nil
}
