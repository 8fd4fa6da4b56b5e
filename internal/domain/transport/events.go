package transport

import "time"

// Event is one inbound notification from a transport session.
type Event interface {
	eventKind() string
}

// Kind returns a short label for logging and metrics.
func Kind(ev Event) string { return ev.eventKind() }

// CloseReason explains why a connection closed.
type CloseReason string

const (
	CloseTimedOut           CloseReason = "timed_out"
	CloseConnectionClosed   CloseReason = "connection_closed"
	CloseLoggedOut          CloseReason = "logged_out"
	CloseRestartRequired    CloseReason = "restart_required"
	CloseConnectionReplaced CloseReason = "connection_replaced"
	CloseBadSession         CloseReason = "bad_session"
)

// ChallengeIssued carries a new linking code.
type ChallengeIssued struct {
	Code string
}

// ConnectionOpened is emitted once the session is authenticated.
type ConnectionOpened struct {
	Identity string
}

// ConnectionClosed is emitted when the connection ends. Identity is the account that was linked, if any.
type ConnectionClosed struct {
	Reason   CloseReason
	Identity string
	Err      error
}

// Message is a normalized inbound chat message.
type Message struct {
	Key        MessageKey
	SenderName string
	IsGroup    bool
	Text       string
	HasAudio   bool
	HasImage   bool
	Timestamp  time.Time
}

// MessagesReceived is a batch of new messages. Type is "notify" for live traffic.
type MessagesReceived struct {
	Messages []Message
	Type     string
}

// StubType describes what happened to an existing message.
type StubType string

const StubRevoked StubType = "revoke"

// MessageUpdate reports a change to a previously delivered message.
type MessageUpdate struct {
	Key  MessageKey
	Stub StubType
}

// MessagesUpdated is a batch of message updates.
type MessagesUpdated struct {
	Updates []MessageUpdate
}

func (ChallengeIssued) eventKind() string  { return "challenge" }
func (ConnectionOpened) eventKind() string { return "open" }
func (ConnectionClosed) eventKind() string { return "close" }
func (MessagesReceived) eventKind() string { return "messages" }
func (MessagesUpdated) eventKind() string  { return "updates" }
