// internal/domain/report/repository.go
package report

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("daily report not found")
	ErrEntryNotFound = errors.New("task report entry not found")
)

// NewEntry is what is appended when a participant starts for the day.
type NewEntry struct {
	ParticipantID string
	Name          string
	PhoneNumber   string
	StartedAt     time.Time
}

// Repository defines operations on DailyReport and its entries.
// Each method is a single atomic find-and-modify on the store side.
type Repository interface {
	Get(ctx context.Context, batchID int64, date string) (*DailyReport, error)

	// SetTaskType and SetTaskTopic upsert the day's report; they are the only way a report is created.
	SetTaskType(ctx context.Context, batchID int64, date string, taskType TaskType) (*DailyReport, error)
	SetTaskTopic(ctx context.Context, batchID int64, date, topic string) (*DailyReport, error)

	// AppendEntry adds the entry unless one with the same phone number exists.
	// It returns the stored entry and whether it was created by this call.
	AppendEntry(ctx context.Context, reportID int64, e NewEntry) (Entry, bool, error)

	// CompleteEntry marks a started entry completed; ErrEntryNotFound if none is pending.
	CompleteEntry(ctx context.Context, reportID int64, phone, messageID string) (Entry, error)

	// RestartEntry resets the window of a started entry; ErrEntryNotFound if none is pending.
	RestartEntry(ctx context.Context, reportID int64, phone string, at time.Time) (Entry, error)

	// ReopenByMessage resets the entry whose accepted submission had messageID.
	ReopenByMessage(ctx context.Context, batchID int64, messageID string, at time.Time) (Entry, error)
}
