package batch

import (
	"context"
	"errors"
)

var (
	ErrNotFound          = errors.New("batch not found")
	ErrGroupConflict     = errors.New("group is already tracked by another coordinator")
	ErrParticipantAbsent = errors.New("participant is not part of the batch")
)

// GroupSelection is the data stored when a coordinator picks the group to track.
type GroupSelection struct {
	GroupID      string
	BatchName    string
	Participants []Participant
}

// Repository defines the operations for persisting and retrieving Batch entities.
// Every method is atomic per batch; callers never combine two calls to protect an invariant.
type Repository interface {
	// EnsureForCoordinator returns the coordinator's batch, creating an empty one if needed.
	EnsureForCoordinator(ctx context.Context, coordinatorID string) (*Batch, error)
	GetByCoordinator(ctx context.Context, coordinatorID string) (*Batch, error)
	GetByGroup(ctx context.Context, groupID string) (*Batch, error)

	// SelectGroup attaches a group to the coordinator's batch. A group owned by a different
	// coordinator yields ErrGroupConflict; a group owned by a detached batch is re-attached.
	SelectGroup(ctx context.Context, coordinatorID string, sel GroupSelection) (*Batch, error)

	// DetachCoordinator unsets the coordinator on its batch, keeping everything else.
	DetachCoordinator(ctx context.Context, coordinatorID string) error

	UpdateSettings(ctx context.Context, coordinatorID string, tracking, sharing bool) (*Batch, error)
	SetParticipantRole(ctx context.Context, coordinatorID, participantID string, role Role) (*Batch, error)
}
