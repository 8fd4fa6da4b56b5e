package whatsapp

import (
	"errors"
	"fmt"
	"strings"

	"attendance_tracker_bot/internal/domain/transport"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

var errClientOutdated = errors.New("client version rejected by server")

// convertMessage maps a protocol message event onto a transport event.
// A revoke becomes an update of the revoked message; anything else is a received message.
func convertMessage(evt *events.Message) transport.Event {
	if pm := evt.Message.GetProtocolMessage(); pm != nil && pm.GetType() == waE2E.ProtocolMessage_REVOKE {
		revoked := pm.GetKey()
		sender := evt.Info.Sender
		if p := revoked.GetParticipant(); p != "" {
			if jid, err := types.ParseJID(p); err == nil {
				sender = jid
			}
		}
		return transport.MessagesUpdated{Updates: []transport.MessageUpdate{{
			Key: transport.MessageKey{
				ID:     revoked.GetID(),
				Chat:   evt.Info.Chat.ToNonAD().String(),
				Sender: sender.ToNonAD().String(),
				FromMe: revoked.GetFromMe(),
			},
			Stub: transport.StubRevoked,
		}}}
	}

	msg := transport.Message{
		Key: transport.MessageKey{
			ID:     evt.Info.ID,
			Chat:   evt.Info.Chat.ToNonAD().String(),
			Sender: evt.Info.Sender.ToNonAD().String(),
			FromMe: evt.Info.IsFromMe,
		},
		SenderName: evt.Info.PushName,
		IsGroup:    evt.Info.IsGroup,
		Text:       messageText(evt.Message),
		HasAudio:   evt.Message.GetAudioMessage() != nil,
		HasImage:   evt.Message.GetImageMessage() != nil,
		Timestamp:  evt.Info.Timestamp,
	}
	return transport.MessagesReceived{Messages: []transport.Message{msg}, Type: "notify"}
}

func messageText(m *waE2E.Message) string {
	switch {
	case m.GetConversation() != "":
		return m.GetConversation()
	case m.GetExtendedTextMessage() != nil:
		return m.GetExtendedTextMessage().GetText()
	case m.GetImageMessage() != nil:
		return m.GetImageMessage().GetCaption()
	default:
		return ""
	}
}

// textMessage builds an outgoing text, quoting the given message when set.
func textMessage(text string, quoted *transport.MessageKey) *waE2E.Message {
	if quoted == nil {
		return &waE2E.Message{Conversation: proto.String(text)}
	}
	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String(text),
			ContextInfo: &waE2E.ContextInfo{
				StanzaID:      proto.String(quoted.ID),
				Participant:   proto.String(quoted.Sender),
				QuotedMessage: &waE2E.Message{Conversation: proto.String("")},
			},
		},
	}
}

// parseJID accepts either a full address or a bare phone number.
func parseJID(s string) (types.JID, error) {
	return types.ParseJID(transport.UserJID(s))
}

// convertEvent translates a protocol library event into a transport event.
// identity is the linked account at the time of the event, used to tag closes.
func convertEvent(raw interface{}, identity string) (transport.Event, bool) {
	switch evt := raw.(type) {
	case *events.Connected:
		return transport.ConnectionOpened{Identity: identity}, true
	case *events.Disconnected:
		return transport.ConnectionClosed{Reason: transport.CloseConnectionClosed, Identity: identity}, true
	case *events.LoggedOut:
		return transport.ConnectionClosed{
			Reason:   transport.CloseLoggedOut,
			Identity: identity,
			Err:      fmt.Errorf("logged out: %s", evt.Reason.String()),
		}, true
	case *events.StreamReplaced:
		return transport.ConnectionClosed{Reason: transport.CloseConnectionReplaced, Identity: identity}, true
	case *events.ConnectFailure:
		reason := transport.CloseRestartRequired
		if evt.Reason.IsLoggedOut() {
			reason = transport.CloseLoggedOut
		}
		return transport.ConnectionClosed{
			Reason:   reason,
			Identity: identity,
			Err:      fmt.Errorf("connect failure %d: %s", int(evt.Reason), evt.Message),
		}, true
	case *events.ClientOutdated:
		return transport.ConnectionClosed{Reason: transport.CloseBadSession, Identity: identity, Err: errClientOutdated}, true
	case *events.TemporaryBan:
		return transport.ConnectionClosed{Reason: transport.CloseBadSession, Identity: identity, Err: fmt.Errorf("temporary ban: %s", evt.String())}, true
	case *events.Message:
		if evt.Message == nil {
			return nil, false
		}
		return convertMessage(evt), true
	default:
		return nil, false
	}
}

// convertQR translates an item of the linking code channel.
func convertQR(item whatsmeow.QRChannelItem) (transport.Event, bool) {
	switch {
	case item.Event == whatsmeow.QRChannelEventCode:
		return transport.ChallengeIssued{Code: item.Code}, true
	case item == whatsmeow.QRChannelTimeout:
		return transport.ConnectionClosed{Reason: transport.CloseTimedOut}, true
	case item.Event == whatsmeow.QRChannelEventError:
		return transport.ConnectionClosed{Reason: transport.CloseBadSession, Err: item.Error}, true
	case strings.HasPrefix(item.Event, "err-"):
		return transport.ConnectionClosed{Reason: transport.CloseBadSession, Err: fmt.Errorf("pairing failed: %s", item.Event)}, true
	default:
		return nil, false
	}
}
