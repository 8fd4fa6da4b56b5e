package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"attendance_tracker_bot/internal/domain/batch"

	"github.com/jmoiron/sqlx"
)

const batchColumns = `id, COALESCE(coordinator_id, '') AS coordinator_id, COALESCE(group_id, '') AS group_id,
	batch_name, is_tracking_enabled, is_sharing_enabled, created_at, updated_at`

type PostgresBatchRepository struct {
	db *sqlx.DB
}

func NewPostgresBatchRepository(db *sqlx.DB) *PostgresBatchRepository {
	return &PostgresBatchRepository{db: db}
}

func (r *PostgresBatchRepository) EnsureForCoordinator(ctx context.Context, coordinatorID string) (*batch.Batch, error) {
	query := `INSERT INTO batches (coordinator_id) VALUES ($1) ON CONFLICT (coordinator_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, coordinatorID); err != nil {
		return nil, fmt.Errorf("error ensuring batch for coordinator: %w", err)
	}
	return r.GetByCoordinator(ctx, coordinatorID)
}

func (r *PostgresBatchRepository) GetByCoordinator(ctx context.Context, coordinatorID string) (*batch.Batch, error) {
	return r.getOne(ctx, `SELECT `+batchColumns+` FROM batches WHERE coordinator_id = $1`, coordinatorID)
}

func (r *PostgresBatchRepository) GetByGroup(ctx context.Context, groupID string) (*batch.Batch, error) {
	return r.getOne(ctx, `SELECT `+batchColumns+` FROM batches WHERE group_id = $1`, groupID)
}

func (r *PostgresBatchRepository) getOne(ctx context.Context, query string, arg any) (*batch.Batch, error) {
	b := &batch.Batch{}
	if err := r.db.GetContext(ctx, b, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, batch.ErrNotFound
		}
		return nil, fmt.Errorf("error getting batch: %w", err)
	}
	if err := r.loadParticipants(ctx, r.db, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *PostgresBatchRepository) loadParticipants(ctx context.Context, q sqlx.QueryerContext, b *batch.Batch) error {
	query := `SELECT participant_id, name, phone_number, role
               FROM batch_participants WHERE batch_id = $1 ORDER BY position`
	b.Participants = make([]batch.Participant, 0)
	if err := sqlx.SelectContext(ctx, q, &b.Participants, query, b.ID); err != nil {
		return fmt.Errorf("error loading participants of batch %d: %w", b.ID, err)
	}
	return nil
}

type batchOwner struct {
	ID            int64  `db:"id"`
	CoordinatorID string `db:"coordinator_id"`
}

// SelectGroup locks both the group's current owner and the caller's batch, so two
// coordinators racing for one group cannot both win.
func (r *PostgresBatchRepository) SelectGroup(ctx context.Context, coordinatorID string, sel batch.GroupSelection) (*batch.Batch, error) {
	txn, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for group selection: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	var owner batchOwner
	ownerFound := true
	err = txn.GetContext(ctx, &owner,
		`SELECT id, COALESCE(coordinator_id, '') AS coordinator_id FROM batches WHERE group_id = $1 FOR UPDATE`, sel.GroupID)
	if errors.Is(err, sql.ErrNoRows) {
		ownerFound = false
	} else if err != nil {
		return nil, fmt.Errorf("error locking group owner: %w", err)
	}

	var currentID int64
	currentFound := true
	err = txn.GetContext(ctx, &currentID, `SELECT id FROM batches WHERE coordinator_id = $1 FOR UPDATE`, coordinatorID)
	if errors.Is(err, sql.ErrNoRows) {
		currentFound = false
	} else if err != nil {
		return nil, fmt.Errorf("error locking coordinator batch: %w", err)
	}

	var targetID int64
	switch {
	case ownerFound && owner.CoordinatorID != "" && owner.CoordinatorID != coordinatorID:
		return nil, batch.ErrGroupConflict
	case ownerFound && owner.CoordinatorID == "":
		if currentFound && currentID != owner.ID {
			if _, err := txn.ExecContext(ctx, `UPDATE batches SET coordinator_id = NULL, updated_at = NOW() WHERE id = $1`, currentID); err != nil {
				return nil, fmt.Errorf("error detaching previous batch: %w", err)
			}
		}
		if _, err := txn.ExecContext(ctx, `UPDATE batches SET coordinator_id = $1 WHERE id = $2`, coordinatorID, owner.ID); err != nil {
			return nil, fmt.Errorf("error re-attaching batch: %w", err)
		}
		targetID = owner.ID
	case currentFound:
		targetID = currentID
	default:
		if err := txn.GetContext(ctx, &targetID, `INSERT INTO batches (coordinator_id) VALUES ($1) RETURNING id`, coordinatorID); err != nil {
			return nil, fmt.Errorf("error creating batch: %w", err)
		}
	}

	_, err = txn.ExecContext(ctx, `UPDATE batches SET group_id = $1, batch_name = $2, updated_at = NOW() WHERE id = $3`,
		sel.GroupID, sel.BatchName, targetID)
	if err != nil {
		if isPQCode(err, pqUniqueViolation) {
			return nil, batch.ErrGroupConflict
		}
		return nil, fmt.Errorf("error storing group selection: %w", err)
	}

	if _, err := txn.ExecContext(ctx, `DELETE FROM batch_participants WHERE batch_id = $1`, targetID); err != nil {
		return nil, fmt.Errorf("error clearing roster: %w", err)
	}
	stmt, err := txn.PrepareContext(ctx, `INSERT INTO batch_participants (batch_id, participant_id, name, phone_number, role, position)
                                         VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (batch_id, participant_id) DO NOTHING`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare roster insert: %w", err)
	}
	defer stmt.Close()
	for i, p := range sel.Participants {
		if _, err := stmt.ExecContext(ctx, targetID, p.ID, p.Name, p.PhoneNumber, string(p.Role), i); err != nil {
			return nil, fmt.Errorf("error inserting participant %s: %w", p.ID, err)
		}
	}

	b := &batch.Batch{}
	if err := txn.GetContext(ctx, b, `SELECT `+batchColumns+` FROM batches WHERE id = $1`, targetID); err != nil {
		return nil, fmt.Errorf("error reading selected batch: %w", err)
	}
	if err := r.loadParticipants(ctx, txn, b); err != nil {
		return nil, err
	}

	if err := txn.Commit(); err != nil {
		if isPQCode(err, pqUniqueViolation) {
			return nil, batch.ErrGroupConflict
		}
		return nil, fmt.Errorf("failed to commit group selection: %w", err)
	}
	return b, nil
}

func (r *PostgresBatchRepository) DetachCoordinator(ctx context.Context, coordinatorID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE batches SET coordinator_id = NULL, updated_at = NOW() WHERE coordinator_id = $1`, coordinatorID)
	if err != nil {
		return fmt.Errorf("error detaching coordinator: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return batch.ErrNotFound
	}
	return nil
}

func (r *PostgresBatchRepository) UpdateSettings(ctx context.Context, coordinatorID string, tracking, sharing bool) (*batch.Batch, error) {
	query := `UPDATE batches SET is_tracking_enabled = $1, is_sharing_enabled = $2, updated_at = NOW()
               WHERE coordinator_id = $3`
	res, err := r.db.ExecContext(ctx, query, tracking, sharing, coordinatorID)
	if err != nil {
		return nil, fmt.Errorf("error updating batch settings: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, batch.ErrNotFound
	}
	return r.GetByCoordinator(ctx, coordinatorID)
}

func (r *PostgresBatchRepository) SetParticipantRole(ctx context.Context, coordinatorID, participantID string, role batch.Role) (*batch.Batch, error) {
	query := `UPDATE batch_participants bp SET role = $1
               FROM batches b
               WHERE bp.batch_id = b.id AND b.coordinator_id = $2 AND bp.participant_id = $3`
	res, err := r.db.ExecContext(ctx, query, string(role), coordinatorID, participantID)
	if err != nil {
		return nil, fmt.Errorf("error setting participant role: %w", err)
	}
	b, err := r.GetByCoordinator(ctx, coordinatorID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, batch.ErrParticipantAbsent
	}
	return b, nil
}
