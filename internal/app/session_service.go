package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"attendance_tracker_bot/internal/app/session"
	"attendance_tracker_bot/internal/domain/batch"
	"attendance_tracker_bot/internal/domain/notify"
	"attendance_tracker_bot/internal/domain/transport"
)

// Application-level errors for session and batch operations.
var (
	ErrNotConnected    = errors.New("coordinator has no live session")
	ErrNoGroupSelected = errors.New("coordinator has not selected a group")
)

// SessionService starts and stops coordinator sessions and applies batch configuration.
// A live session is the only authorization it checks.
type SessionService struct {
	deps *session.Deps
	// ctx outlives any single request; machines are bound to it.
	ctx     context.Context
	digests *DigestService

	mu       sync.Mutex
	machines map[string]*session.Machine
}

// NewSessionService takes ownership of deps.OnReplace.
func NewSessionService(ctx context.Context, deps *session.Deps, digests *DigestService) *SessionService {
	s := &SessionService{
		deps:     deps,
		ctx:      ctx,
		digests:  digests,
		machines: make(map[string]*session.Machine),
	}
	deps.OnReplace = s.replace
	return s
}

// Start begins a fresh session with a full retry budget. A coordinator whose
// machine is still running keeps it.
func (s *SessionService) Start(_ context.Context, coordinatorID string) (session.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.machines[coordinatorID]; ok && !m.Terminal() {
		return m.State(), nil
	}
	m, err := session.Start(s.ctx, s.deps, coordinatorID)
	if err != nil {
		return session.StateClosed, err
	}
	s.machines[coordinatorID] = m
	return m.State(), nil
}

func (s *SessionService) replace(coordinatorID string, old, next *session.Machine) {
	s.mu.Lock()
	cur, ok := s.machines[coordinatorID]
	if !ok || cur == old {
		s.machines[coordinatorID] = next
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	// A fresh start already superseded the restarting machine.
	next.Stop()
}

// RestoreAll starts a session for every coordinator with stored credentials.
func (s *SessionService) RestoreAll(ctx context.Context) error {
	ids, err := s.deps.Credentials.Coordinators(ctx)
	if err != nil {
		return fmt.Errorf("list stored credentials: %w", err)
	}
	var errs []error
	for _, id := range ids {
		if _, err := s.Start(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", id, err))
			continue
		}
		s.deps.Log.WithField("coordinator_id", id).Info("Session restored")
	}
	return errors.Join(errs...)
}

// Logout asks the transport to log out; the resulting close drives the cleanup.
func (s *SessionService) Logout(ctx context.Context, coordinatorID string) error {
	c, ok := s.deps.Registry.Get(coordinatorID)
	if !ok {
		return ErrNotConnected
	}
	if err := c.Logout(ctx); err != nil {
		return fmt.Errorf("transport logout: %w", err)
	}
	return nil
}

func (s *SessionService) IsConnected(coordinatorID string) bool {
	_, ok := s.deps.Registry.Get(coordinatorID)
	return ok
}

// Connected lists coordinators with a live session.
func (s *SessionService) Connected() []string { return s.deps.Registry.IDs() }

// SelectGroup stores the chosen group and its roster, then arms the digest.
func (s *SessionService) SelectGroup(ctx context.Context, coordinatorID, groupID string) (*batch.Batch, error) {
	c, ok := s.deps.Registry.Get(coordinatorID)
	if !ok {
		return nil, ErrNotConnected
	}

	// 1. Roster from the live group metadata
	info, err := c.GroupMetadata(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("fetch group metadata: %w", err)
	}
	participants := make([]batch.Participant, 0, len(info.Participants))
	for _, gp := range info.Participants {
		phone := transport.UserOf(gp.ID)
		role := batch.RoleStudent
		if phone == coordinatorID {
			role = batch.RoleNone
		}
		name := gp.Name
		if name == "" {
			name = phone
		}
		participants = append(participants, batch.Participant{ID: gp.ID, Name: name, PhoneNumber: phone, Role: role})
	}

	// 2. Conflict-checked store
	b, err := s.deps.Batches.SelectGroup(ctx, coordinatorID, batch.GroupSelection{
		GroupID:      info.ID,
		BatchName:    info.Name,
		Participants: participants,
	})
	if err != nil {
		return nil, fmt.Errorf("select group %s: %w", groupID, err)
	}

	// 3. Digest and dashboard
	if err := s.deps.Digest.Arm(coordinatorID); err != nil {
		return b, fmt.Errorf("arm digest: %w", err)
	}
	s.deps.Sink.Publish(ctx, coordinatorID, notify.StatusChanged{
		Kind: notify.StatusConnected, Message: "Tracking " + info.Name, GroupID: b.GroupID,
	})
	return b, nil
}

func (s *SessionService) UpdateSettings(ctx context.Context, coordinatorID string, tracking, sharing bool) (*batch.Batch, error) {
	if !s.IsConnected(coordinatorID) {
		return nil, ErrNotConnected
	}
	return s.deps.Batches.UpdateSettings(ctx, coordinatorID, tracking, sharing)
}

func (s *SessionService) SetParticipantRole(ctx context.Context, coordinatorID, participantID string, role batch.Role) (*batch.Batch, error) {
	if !s.IsConnected(coordinatorID) {
		return nil, ErrNotConnected
	}
	return s.deps.Batches.SetParticipantRole(ctx, coordinatorID, participantID, role)
}

// Batch returns the coordinator's batch for read-only views.
func (s *SessionService) Batch(ctx context.Context, coordinatorID string) (*batch.Batch, error) {
	if !s.IsConnected(coordinatorID) {
		return nil, ErrNotConnected
	}
	return s.deps.Batches.GetByCoordinator(ctx, coordinatorID)
}

// SendDigest is the manual digest send.
func (s *SessionService) SendDigest(ctx context.Context, coordinatorID string) error {
	return s.digests.SendManual(ctx, coordinatorID)
}

// Shutdown stops every machine without logging any coordinator out.
func (s *SessionService) Shutdown() {
	s.mu.Lock()
	machines := make([]*session.Machine, 0, len(s.machines))
	for _, m := range s.machines {
		machines = append(machines, m)
	}
	s.machines = make(map[string]*session.Machine)
	s.mu.Unlock()

	for _, m := range machines {
		m.Stop()
	}
}
