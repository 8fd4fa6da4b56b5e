package whatsapp

import (
	"context"
	"errors"
	"testing"
	"time"

	"attendance_tracker_bot/internal/domain/transport"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

const self = "919000000001@s.whatsapp.net"

func groupInfo(id string) types.MessageInfo {
	return types.MessageInfo{
		MessageSource: types.MessageSource{
			Chat:    types.NewJID("120363000000000001", types.GroupServer),
			Sender:  types.JID{User: "919000000002", Device: 7, Server: types.DefaultUserServer},
			IsGroup: true,
		},
		ID:        id,
		PushName:  "Asha",
		Timestamp: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestConvertEvent_Connection(t *testing.T) {
	tests := []struct {
		name   string
		raw    interface{}
		reason transport.CloseReason
	}{
		{"disconnected", &events.Disconnected{}, transport.CloseConnectionClosed},
		{"logged out", &events.LoggedOut{}, transport.CloseLoggedOut},
		{"replaced", &events.StreamReplaced{}, transport.CloseConnectionReplaced},
		{"connect failure", &events.ConnectFailure{Reason: events.ConnectFailureServiceUnavailable}, transport.CloseRestartRequired},
		{"connect failure logout", &events.ConnectFailure{Reason: events.ConnectFailureLoggedOut}, transport.CloseLoggedOut},
		{"outdated", &events.ClientOutdated{}, transport.CloseBadSession},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := convertEvent(tt.raw, self)
			if !ok {
				t.Fatal("event dropped")
			}
			closed, isClose := ev.(transport.ConnectionClosed)
			if !isClose {
				t.Fatalf("event = %T, want ConnectionClosed", ev)
			}
			if closed.Reason != tt.reason || closed.Identity != self {
				t.Errorf("close = %+v, want reason %s", closed, tt.reason)
			}
		})
	}

	ev, ok := convertEvent(&events.Connected{}, self)
	if opened, isOpen := ev.(transport.ConnectionOpened); !ok || !isOpen || opened.Identity != self {
		t.Errorf("connected = %#v", ev)
	}
	if _, ok := convertEvent(&events.PushNameSetting{}, self); ok {
		t.Error("unrelated event was translated")
	}
}

func TestConvertEvent_Message(t *testing.T) {
	ev, ok := convertEvent(&events.Message{
		Info:    groupInfo("ABC"),
		Message: &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("start")}},
	}, self)
	if !ok {
		t.Fatal("message dropped")
	}
	received := ev.(transport.MessagesReceived)
	if received.Type != "notify" || len(received.Messages) != 1 {
		t.Fatalf("received = %+v", received)
	}
	msg := received.Messages[0]
	if msg.Key.Sender != "919000000002@s.whatsapp.net" {
		t.Errorf("sender = %q, device suffix should be dropped", msg.Key.Sender)
	}
	if msg.Key.Chat != "120363000000000001@g.us" || msg.Text != "start" || !msg.IsGroup || msg.SenderName != "Asha" {
		t.Errorf("message = %+v", msg)
	}

	ev, _ = convertEvent(&events.Message{
		Info:    groupInfo("VOICE"),
		Message: &waE2E.Message{AudioMessage: &waE2E.AudioMessage{}},
	}, self)
	if msg := ev.(transport.MessagesReceived).Messages[0]; !msg.HasAudio || msg.Text != "" {
		t.Errorf("audio message = %+v", msg)
	}
}

func TestConvertEvent_Revoke(t *testing.T) {
	ev, ok := convertEvent(&events.Message{
		Info: groupInfo("REVOKER"),
		Message: &waE2E.Message{ProtocolMessage: &waE2E.ProtocolMessage{
			Type: waE2E.ProtocolMessage_REVOKE.Enum(),
			Key:  &waCommon.MessageKey{ID: proto.String("ORIGINAL")},
		}},
	}, self)
	if !ok {
		t.Fatal("revoke dropped")
	}
	updated, isUpdate := ev.(transport.MessagesUpdated)
	if !isUpdate || len(updated.Updates) != 1 {
		t.Fatalf("event = %#v", ev)
	}
	u := updated.Updates[0]
	if u.Stub != transport.StubRevoked || u.Key.ID != "ORIGINAL" || u.Key.Chat != "120363000000000001@g.us" {
		t.Errorf("update = %+v", u)
	}
}

func TestConvertQR(t *testing.T) {
	ev, ok := convertQR(whatsmeow.QRChannelItem{Event: whatsmeow.QRChannelEventCode, Code: "2@abc"})
	if c, isChallenge := ev.(transport.ChallengeIssued); !ok || !isChallenge || c.Code != "2@abc" {
		t.Errorf("code item = %#v", ev)
	}
	ev, _ = convertQR(whatsmeow.QRChannelTimeout)
	if c := ev.(transport.ConnectionClosed); c.Reason != transport.CloseTimedOut {
		t.Errorf("timeout item = %+v", c)
	}
	ev, _ = convertQR(whatsmeow.QRChannelClientOutdated)
	if c := ev.(transport.ConnectionClosed); c.Reason != transport.CloseBadSession || c.Err == nil {
		t.Errorf("outdated item = %+v", c)
	}
	if _, ok := convertQR(whatsmeow.QRChannelSuccess); ok {
		t.Error("success item should wait for the connected event")
	}
}

func TestTextMessage_Quote(t *testing.T) {
	plain := textMessage("hi", nil)
	if plain.GetConversation() != "hi" {
		t.Errorf("plain = %v", plain)
	}
	quoted := textMessage("ok", &transport.MessageKey{ID: "Q1", Sender: "919000000002@s.whatsapp.net"})
	ctx := quoted.GetExtendedTextMessage().GetContextInfo()
	if quoted.GetExtendedTextMessage().GetText() != "ok" || ctx.GetStanzaID() != "Q1" {
		t.Errorf("quoted = %v", quoted)
	}
}

func TestRunCtx_Abandons(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := runCtx(ctx, func() (int, error) {
		<-release
		return 1, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v", err)
	}
}
