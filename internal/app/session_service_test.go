package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"attendance_tracker_bot/internal/app/session"
	"attendance_tracker_bot/internal/domain/batch"
	"attendance_tracker_bot/internal/domain/notify"
	"attendance_tracker_bot/internal/domain/transport"
	"attendance_tracker_bot/internal/domain/transport/transporttest"
	"attendance_tracker_bot/internal/infra/logger"
	"attendance_tracker_bot/internal/infra/memstore"
)

type nopArmer struct{ armed []string }

func (a *nopArmer) Arm(id string) error { a.armed = append(a.armed, id); return nil }
func (a *nopArmer) Cancel(string)       {}

type serviceEnv struct {
	svc      *SessionService
	dialer   *transporttest.Dialer
	recorder *notify.Recorder
	armer    *nopArmer
	batches  batch.Repository
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	db := memstore.New()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	e := &serviceEnv{
		dialer:   transporttest.NewDialer(),
		recorder: &notify.Recorder{},
		armer:    &nopArmer{},
		batches:  db.Batches(),
	}
	registry := session.NewRegistry()
	deps := &session.Deps{
		Dialer:      e.dialer,
		Credentials: e.dialer,
		Registry:    registry,
		Sink:        e.recorder,
		Batches:     e.batches,
		Digest:      e.armer,
		Log:         logger.Discard(),
		Options:     session.Options{MaxRetries: 1, Backoff: time.Millisecond, PictureTimeout: 10 * time.Millisecond},
	}
	digests := NewDigestService(registry, e.batches, db.Reports(), false, logger.Discard())
	e.svc = NewSessionService(ctx, deps, digests)
	t.Cleanup(e.svc.Shutdown)
	return e
}

// open starts a session for id and completes the challenge.
func (e *serviceEnv) open(t *testing.T, id string) *transporttest.Session {
	t.Helper()
	if _, err := e.svc.Start(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	s := <-e.dialer.Dialed()
	s.Events <- transport.ConnectionOpened{Identity: id + "@s.whatsapp.net"}
	deadline := time.Now().Add(2 * time.Second)
	for !e.svc.IsConnected(id) || !e.offered(id) {
		if time.Now().After(deadline) {
			t.Fatalf("%s never connected", id)
		}
		time.Sleep(5 * time.Millisecond)
	}
	return s
}

// offered reports whether the open handler finished by publishing group candidates.
func (e *serviceEnv) offered(id string) bool {
	for _, p := range e.recorder.Events() {
		if _, ok := p.Event.(notify.GroupCandidates); ok && p.CoordinatorID == id {
			return true
		}
	}
	return false
}

func TestSessionService_StartIsIdempotent(t *testing.T) {
	e := newServiceEnv(t)
	ctx := context.Background()

	if _, err := e.svc.Start(ctx, coordID); err != nil {
		t.Fatal(err)
	}
	st, err := e.svc.Start(ctx, coordID)
	if err != nil {
		t.Fatal(err)
	}
	if st != session.StateAwaitingChallenge {
		t.Errorf("state = %v", st)
	}
	if n := len(e.dialer.Sessions()); n != 1 {
		t.Errorf("dialed %d times, want 1", n)
	}
}

func TestSessionService_RequiresLiveSession(t *testing.T) {
	e := newServiceEnv(t)
	ctx := context.Background()

	if err := e.svc.Logout(ctx, coordID); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Logout err = %v", err)
	}
	if _, err := e.svc.SelectGroup(ctx, coordID, groupID); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SelectGroup err = %v", err)
	}
	if _, err := e.svc.UpdateSettings(ctx, coordID, true, true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("UpdateSettings err = %v", err)
	}
	if err := e.svc.SendDigest(ctx, coordID); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendDigest err = %v", err)
	}
}

func TestSessionService_SelectGroupBuildsRoster(t *testing.T) {
	e := newServiceEnv(t)
	ctx := context.Background()
	s := e.open(t, coordID)
	s.Client.SetGroups(transport.GroupInfo{
		ID:   groupID,
		Name: "Batch 7",
		Participants: []transport.GroupParticipant{
			{ID: coordJID, Name: "Meera"},
			{ID: ashaJID, Name: "Asha"},
			{ID: raviJID},
		},
	})

	b, err := e.svc.SelectGroup(ctx, coordID, groupID)
	if err != nil {
		t.Fatal(err)
	}
	if b.GroupID != groupID || b.BatchName != "Batch 7" || len(b.Participants) != 3 {
		t.Fatalf("batch = %+v", b)
	}
	if b.Participants[0].Role != batch.RoleNone || b.Participants[1].Role != batch.RoleStudent {
		t.Errorf("roles = %+v", b.Participants)
	}
	if b.Participants[2].Name != "919800000003" {
		t.Errorf("nameless participant = %+v", b.Participants[2])
	}
	if len(e.armer.armed) != 1 {
		t.Error("digest not armed")
	}

	var last notify.StatusChanged
	for _, p := range e.recorder.Events() {
		if st, ok := p.Event.(notify.StatusChanged); ok {
			last = st
		}
	}
	if last.GroupID != groupID {
		t.Errorf("last status = %+v", last)
	}

	updated, err := e.svc.SetParticipantRole(ctx, coordID, raviJID, batch.RoleTrainer)
	if err != nil {
		t.Fatal(err)
	}
	if tr, ok := updated.Trainer(); !ok || tr.ID != raviJID {
		t.Errorf("trainer = %+v", tr)
	}
}

func TestSessionService_SelectGroupConflict(t *testing.T) {
	e := newServiceEnv(t)
	ctx := context.Background()
	group := transport.GroupInfo{ID: groupID, Name: "Batch 7", Participants: []transport.GroupParticipant{{ID: ashaJID}}}

	first := e.open(t, coordID)
	first.Client.SetGroups(group)
	second := e.open(t, "919800000050")
	second.Client.SetGroups(group)

	if _, err := e.svc.SelectGroup(ctx, coordID, groupID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.SelectGroup(ctx, "919800000050", groupID); !errors.Is(err, batch.ErrGroupConflict) {
		t.Fatalf("err = %v, want ErrGroupConflict", err)
	}
	b, err := e.batches.GetByGroup(ctx, groupID)
	if err != nil || b.CoordinatorID != coordID {
		t.Errorf("owner = %+v, %v", b, err)
	}
}

func TestSessionService_RestoreAll(t *testing.T) {
	e := newServiceEnv(t)
	e.dialer.AddCredentials("919800000010")
	e.dialer.AddCredentials("919800000011")

	if err := e.svc.RestoreAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(e.dialer.Sessions()); n != 2 {
		t.Errorf("restored %d sessions, want 2", n)
	}
}
