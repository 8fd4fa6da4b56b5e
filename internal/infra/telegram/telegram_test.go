package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"attendance_tracker_bot/internal/app"
	"attendance_tracker_bot/internal/app/session"
	"attendance_tracker_bot/internal/domain/notify"
	"attendance_tracker_bot/internal/infra/logger"

	"gopkg.in/telebot.v3"
)

type sent struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []sent
	err   error
	block chan struct{}
}

func (f *fakeSender) SendMessage(chatID int64, text string, _ *telebot.SendOptions) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{chatID, text})
	return f.err
}

func (f *fakeSender) waitSent(t *testing.T, n int) []sent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.mu.Lock()
		got := append([]sent(nil), f.sent...)
		f.mu.Unlock()
		if len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("sent %d messages, want %d", len(got), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type fakeOps struct {
	live      []string
	digestErr error
	logoutErr error
	started   []string
}

func (f *fakeOps) Connected() []string { return f.live }

func (f *fakeOps) Start(_ context.Context, id string) (session.State, error) {
	f.started = append(f.started, id)
	return session.StateAwaitingChallenge, nil
}

func (f *fakeOps) Logout(context.Context, string) error     { return f.logoutErr }
func (f *fakeOps) SendDigest(context.Context, string) error { return f.digestErr }

func TestOperatorSink_ForwardsStatusOnly(t *testing.T) {
	s := &fakeSender{}
	sink := NewOperatorSink(s, 42, logger.Discard())
	defer sink.Close()
	ctx := context.Background()

	sink.Publish(ctx, "91", notify.QrIssued{Challenge: "secret"})
	sink.Publish(ctx, "91", notify.StatusChanged{Kind: notify.StatusConnected, GroupID: "g@g.us"})
	sink.Publish(ctx, "91", notify.GroupCandidates{Groups: []notify.GroupCandidate{{Name: "Batch 7", Size: 30}}})

	got := s.waitSent(t, 2)
	if len(got) != 2 {
		t.Fatalf("sent = %+v", got)
	}
	if got[0].chatID != 42 || got[0].text != "[91] connected (group g@g.us)" {
		t.Errorf("status message = %+v", got[0])
	}
	if !strings.Contains(got[1].text, "Batch 7 (30)") {
		t.Errorf("candidates message = %q", got[1].text)
	}
}

func TestOperatorSink_SendFailureIsSwallowed(t *testing.T) {
	s := &fakeSender{err: errors.New("telegram down")}
	sink := NewOperatorSink(s, 42, logger.Discard())
	defer sink.Close()

	sink.Publish(context.Background(), "91", notify.StatusChanged{Kind: notify.StatusError})
	sink.Publish(context.Background(), "91", notify.StatusChanged{Kind: notify.StatusDisconnected})
	s.waitSent(t, 2)
}

func TestOperatorSink_PublishDoesNotWaitForTelegram(t *testing.T) {
	s := &fakeSender{block: make(chan struct{})}
	sink := NewOperatorSink(s, 42, logger.Discard())
	defer sink.Close()

	published := make(chan struct{})
	go func() {
		for i := 0; i < operatorQueue+5; i++ {
			sink.Publish(context.Background(), "91", notify.StatusChanged{Kind: notify.StatusError})
		}
		close(published)
	}()

	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a stalled sender")
	}
	close(s.block)
	s.waitSent(t, 1)
}

func TestOperatorCommands(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		ops  *fakeOps
		run  func(*OperatorCommands) string
		want string
	}{
		{
			name: "no sessions",
			ops:  &fakeOps{},
			run:  func(oc *OperatorCommands) string { return oc.Sessions() },
			want: "No live sessions.",
		},
		{
			name: "sessions listed",
			ops:  &fakeOps{live: []string{"91", "92"}},
			run:  func(oc *OperatorCommands) string { return oc.Sessions() },
			want: "--- Live sessions (2) ---\n1. 91\n2. 92",
		},
		{
			name: "digest usage",
			ops:  &fakeOps{},
			run:  func(oc *OperatorCommands) string { return oc.Digest(ctx, nil) },
			want: "Invalid command format. Use: /digest <coordinator>",
		},
		{
			name: "digest without session",
			ops:  &fakeOps{digestErr: fmt.Errorf("send: %w", app.ErrNotConnected)},
			run:  func(oc *OperatorCommands) string { return oc.Digest(ctx, []string{"91"}) },
			want: "91 has no live session.",
		},
		{
			name: "digest without group",
			ops:  &fakeOps{digestErr: app.ErrNoGroupSelected},
			run:  func(oc *OperatorCommands) string { return oc.Digest(ctx, []string{"91"}) },
			want: "91 has not selected a group yet.",
		},
		{
			name: "digest sent",
			ops:  &fakeOps{},
			run:  func(oc *OperatorCommands) string { return oc.Digest(ctx, []string{"91"}) },
			want: "Digest sent for 91.",
		},
		{
			name: "logout without session",
			ops:  &fakeOps{logoutErr: app.ErrNotConnected},
			run:  func(oc *OperatorCommands) string { return oc.Logout(ctx, []string{"91"}) },
			want: "91 has no live session.",
		},
		{
			name: "connect",
			ops:  &fakeOps{},
			run:  func(oc *OperatorCommands) string { return oc.Connect(ctx, []string{" 91 "}) },
			want: "Session for 91 is " + session.StateAwaitingChallenge.String() + ".",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.run(NewOperatorCommands(tt.ops, logger.Discard()))
			if got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
		})
	}
}
