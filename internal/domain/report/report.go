// internal/domain/report/report.go
package report

import (
	"time"
)

// Entry is one participant's attendance state within a DailyReport.
// An entry that exists and is not completed is "started"; StartedAt is when its window opened.
type Entry struct {
	ParticipantID string    `db:"participant_id" json:"id"`
	Name          string    `db:"name" json:"name"`
	PhoneNumber   string    `db:"phone_number" json:"phoneNumber"`
	IsCompleted   bool      `db:"is_completed" json:"isCompleted"`
	MessageID     string    `db:"message_id" json:"messageID,omitempty"`
	StartedAt     time.Time `db:"started_at" json:"timestamp"`
}

// DailyReport aggregates attendance for one batch on one civil day.
type DailyReport struct {
	ID         int64     `db:"id" json:"id"`
	BatchID    int64     `db:"batch_id" json:"batchId"`
	Date       string    `db:"report_date" json:"date"`
	TaskType   TaskType  `db:"task_type" json:"taskType"`
	TaskTopic  string    `db:"task_topic" json:"taskTopic"`
	TaskReport []Entry   `db:"-" json:"taskReport"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// EntryByPhone returns the entry for the given phone number.
func (r *DailyReport) EntryByPhone(phone string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	for _, e := range r.TaskReport {
		if e.PhoneNumber == phone {
			return e, true
		}
	}
	return Entry{}, false
}

// Completed reports whether the participant with the given phone number has submitted.
func (r *DailyReport) Completed(phone string) bool {
	e, ok := r.EntryByPhone(phone)
	return ok && e.IsCompleted
}
