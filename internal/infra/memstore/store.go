// Package memstore keeps batches and daily reports in process memory.
// It backs the tests and STORE_DRIVER=memory runs; nothing survives a restart.
package memstore

import (
	"context"
	"sync"
	"time"

	"attendance_tracker_bot/internal/domain/batch"
	"attendance_tracker_bot/internal/domain/report"
)

// DB is the shared table set. One mutex guards everything, so each repository
// method is a single atomic find-and-modify.
type DB struct {
	mu      sync.Mutex
	now     func() time.Time
	batchPK int64
	batches map[int64]*batch.Batch

	reportPK int64
	reports  map[int64]*report.DailyReport
}

func New() *DB {
	return &DB{
		now:     time.Now,
		batches: make(map[int64]*batch.Batch),
		reports: make(map[int64]*report.DailyReport),
	}
}

func (db *DB) Batches() batch.Repository { return &batchRepository{db: db} }

func (db *DB) Reports() report.Repository { return &reportRepository{db: db} }

func cloneBatch(b *batch.Batch) *batch.Batch {
	c := *b
	c.Participants = append([]batch.Participant(nil), b.Participants...)
	return &c
}

func cloneReport(r *report.DailyReport) *report.DailyReport {
	c := *r
	c.TaskReport = append([]report.Entry(nil), r.TaskReport...)
	return &c
}

type batchRepository struct {
	db *DB
}

func (repo *batchRepository) byCoordinator(coordinatorID string) *batch.Batch {
	for _, b := range repo.db.batches {
		if b.CoordinatorID == coordinatorID {
			return b
		}
	}
	return nil
}

func (repo *batchRepository) byGroup(groupID string) *batch.Batch {
	for _, b := range repo.db.batches {
		if b.GroupID == groupID {
			return b
		}
	}
	return nil
}

func (repo *batchRepository) EnsureForCoordinator(_ context.Context, coordinatorID string) (*batch.Batch, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if b := repo.byCoordinator(coordinatorID); b != nil {
		return cloneBatch(b), nil
	}
	return cloneBatch(repo.insert(coordinatorID)), nil
}

func (repo *batchRepository) insert(coordinatorID string) *batch.Batch {
	now := repo.db.now()
	repo.db.batchPK++
	b := &batch.Batch{
		ID:                repo.db.batchPK,
		CoordinatorID:     coordinatorID,
		IsTrackingEnabled: true,
		IsSharingEnabled:  true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	repo.db.batches[b.ID] = b
	return b
}

func (repo *batchRepository) GetByCoordinator(_ context.Context, coordinatorID string) (*batch.Batch, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if b := repo.byCoordinator(coordinatorID); b != nil {
		return cloneBatch(b), nil
	}
	return nil, batch.ErrNotFound
}

func (repo *batchRepository) GetByGroup(_ context.Context, groupID string) (*batch.Batch, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if b := repo.byGroup(groupID); b != nil {
		return cloneBatch(b), nil
	}
	return nil, batch.ErrNotFound
}

func (repo *batchRepository) SelectGroup(_ context.Context, coordinatorID string, sel batch.GroupSelection) (*batch.Batch, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	now := repo.db.now()
	current := repo.byCoordinator(coordinatorID)
	owner := repo.byGroup(sel.GroupID)

	var target *batch.Batch
	switch {
	case owner != nil && owner.CoordinatorID != "" && owner.CoordinatorID != coordinatorID:
		return nil, batch.ErrGroupConflict
	case owner != nil && owner.CoordinatorID == "":
		// A detached batch keeps its history; the coordinator takes it over.
		if current != nil && current != owner {
			current.CoordinatorID = ""
			current.UpdatedAt = now
		}
		owner.CoordinatorID = coordinatorID
		target = owner
	case current != nil:
		target = current
	default:
		target = repo.insert(coordinatorID)
	}

	target.GroupID = sel.GroupID
	target.BatchName = sel.BatchName
	target.Participants = append([]batch.Participant(nil), sel.Participants...)
	target.UpdatedAt = now
	return cloneBatch(target), nil
}

func (repo *batchRepository) DetachCoordinator(_ context.Context, coordinatorID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	b := repo.byCoordinator(coordinatorID)
	if b == nil {
		return batch.ErrNotFound
	}
	b.CoordinatorID = ""
	b.UpdatedAt = repo.db.now()
	return nil
}

func (repo *batchRepository) UpdateSettings(_ context.Context, coordinatorID string, tracking, sharing bool) (*batch.Batch, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	b := repo.byCoordinator(coordinatorID)
	if b == nil {
		return nil, batch.ErrNotFound
	}
	b.IsTrackingEnabled = tracking
	b.IsSharingEnabled = sharing
	b.UpdatedAt = repo.db.now()
	return cloneBatch(b), nil
}

func (repo *batchRepository) SetParticipantRole(_ context.Context, coordinatorID, participantID string, role batch.Role) (*batch.Batch, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	b := repo.byCoordinator(coordinatorID)
	if b == nil {
		return nil, batch.ErrNotFound
	}
	for i := range b.Participants {
		if b.Participants[i].ID == participantID {
			b.Participants[i].Role = role
			b.UpdatedAt = repo.db.now()
			return cloneBatch(b), nil
		}
	}
	return nil, batch.ErrParticipantAbsent
}

type reportRepository struct {
	db *DB
}

func (repo *reportRepository) find(batchID int64, date string) *report.DailyReport {
	for _, r := range repo.db.reports {
		if r.BatchID == batchID && r.Date == date {
			return r
		}
	}
	return nil
}

func (repo *reportRepository) upsert(batchID int64, date string) *report.DailyReport {
	if r := repo.find(batchID, date); r != nil {
		return r
	}
	repo.db.reportPK++
	r := &report.DailyReport{ID: repo.db.reportPK, BatchID: batchID, Date: date, CreatedAt: repo.db.now()}
	repo.db.reports[r.ID] = r
	return r
}

func (repo *reportRepository) Get(_ context.Context, batchID int64, date string) (*report.DailyReport, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if r := repo.find(batchID, date); r != nil {
		return cloneReport(r), nil
	}
	return nil, report.ErrNotFound
}

func (repo *reportRepository) SetTaskType(_ context.Context, batchID int64, date string, taskType report.TaskType) (*report.DailyReport, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	r := repo.upsert(batchID, date)
	r.TaskType = taskType
	return cloneReport(r), nil
}

func (repo *reportRepository) SetTaskTopic(_ context.Context, batchID int64, date, topic string) (*report.DailyReport, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	r := repo.upsert(batchID, date)
	r.TaskTopic = topic
	return cloneReport(r), nil
}

func (repo *reportRepository) AppendEntry(_ context.Context, reportID int64, e report.NewEntry) (report.Entry, bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	r, ok := repo.db.reports[reportID]
	if !ok {
		return report.Entry{}, false, report.ErrNotFound
	}
	if existing, ok := r.EntryByPhone(e.PhoneNumber); ok {
		return existing, false, nil
	}
	entry := report.Entry{
		ParticipantID: e.ParticipantID,
		Name:          e.Name,
		PhoneNumber:   e.PhoneNumber,
		StartedAt:     e.StartedAt,
	}
	r.TaskReport = append(r.TaskReport, entry)
	return entry, true, nil
}

func (repo *reportRepository) CompleteEntry(_ context.Context, reportID int64, phone, messageID string) (report.Entry, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	e := repo.pending(reportID, phone)
	if e == nil {
		return report.Entry{}, report.ErrEntryNotFound
	}
	e.IsCompleted = true
	e.MessageID = messageID
	return *e, nil
}

func (repo *reportRepository) RestartEntry(_ context.Context, reportID int64, phone string, at time.Time) (report.Entry, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	e := repo.pending(reportID, phone)
	if e == nil {
		return report.Entry{}, report.ErrEntryNotFound
	}
	e.StartedAt = at
	return *e, nil
}

func (repo *reportRepository) pending(reportID int64, phone string) *report.Entry {
	r, ok := repo.db.reports[reportID]
	if !ok {
		return nil
	}
	for i := range r.TaskReport {
		if r.TaskReport[i].PhoneNumber == phone && !r.TaskReport[i].IsCompleted {
			return &r.TaskReport[i]
		}
	}
	return nil
}

func (repo *reportRepository) ReopenByMessage(_ context.Context, batchID int64, messageID string, at time.Time) (report.Entry, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if messageID == "" {
		return report.Entry{}, report.ErrEntryNotFound
	}
	for _, r := range repo.db.reports {
		if r.BatchID != batchID {
			continue
		}
		for i := range r.TaskReport {
			e := &r.TaskReport[i]
			if e.MessageID == messageID && e.IsCompleted {
				e.IsCompleted = false
				e.MessageID = ""
				e.StartedAt = at
				return *e, nil
			}
		}
	}
	return report.Entry{}, report.ErrEntryNotFound
}
