package transport

import (
	"context"
	"strings"
)

// MessageKey addresses a message for replies and reactions.
type MessageKey struct {
	ID     string
	Chat   string
	Sender string
	FromMe bool
}

// GroupParticipant is a member entry in group metadata.
type GroupParticipant struct {
	ID   string
	Name string
}

// GroupInfo is the metadata of a group visible to the linked account.
type GroupInfo struct {
	ID           string
	Name         string
	Participants []GroupParticipant
}

// Client defines the capabilities the core uses on one linked messaging account.
// This keeps the application logic independent of the protocol library.
type Client interface {
	// Identity is the account that completed the linking challenge, empty before that.
	Identity() string

	SendText(ctx context.Context, to, text string, quoted *MessageKey) (string, error)
	SendReaction(ctx context.Context, key MessageKey, emoji string) error
	JoinedGroups(ctx context.Context) ([]GroupInfo, error)
	GroupMetadata(ctx context.Context, groupID string) (GroupInfo, error)
	ProfilePictureURL(ctx context.Context, jid string) (string, error)
	Logout(ctx context.Context) error

	// Close tears down the connection without logging out.
	Close()
}

// Dialer opens a session for a coordinator, resuming stored credentials when present.
// The returned channel is closed when the client is closed.
type Dialer interface {
	Dial(ctx context.Context, coordinatorID string) (Client, <-chan Event, error)
}

// CredentialStore manages the linked-device credentials kept per coordinator.
type CredentialStore interface {
	Coordinators(ctx context.Context) ([]string, error)
	DeleteCredentials(ctx context.Context, coordinatorID string) error
}

// UserOf extracts the account part of an address: "9190...:12@s.whatsapp.net" -> "9190...".
func UserOf(jid string) string {
	user := jid
	if i := strings.IndexByte(user, '@'); i >= 0 {
		user = user[:i]
	}
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	return user
}

// UserJID builds the private chat address of an account.
func UserJID(user string) string {
	if strings.Contains(user, "@") {
		return user
	}
	return user + "@s.whatsapp.net"
}
