// Package transporttest provides an in-memory transport for tests.
package transporttest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"attendance_tracker_bot/internal/domain/transport"
)

var ErrSendFailed = errors.New("fake send failed")

// SentText records an outbound text message.
type SentText struct {
	To     string
	Text   string
	Quoted *transport.MessageKey
}

// SentReaction records an outbound reaction.
type SentReaction struct {
	Key   transport.MessageKey
	Emoji string
}

// Client is a scriptable transport.Client.
type Client struct {
	mu        sync.Mutex
	identity  string
	texts     []SentText
	reactions []SentReaction
	loggedOut bool
	closed    bool
	nextID    int

	Groups    []transport.GroupInfo
	Pictures  map[string]string
	FailSends bool
	// SlowPictures blocks ProfilePictureURL until the context is done for listed ids.
	SlowPictures map[string]bool
}

func NewClient(identity string) *Client {
	return &Client{identity: identity, Pictures: map[string]string{}, SlowPictures: map[string]bool{}}
}

func (c *Client) SetIdentity(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = id
}

// SetGroups replaces the groups the account belongs to.
func (c *Client) SetGroups(groups ...transport.GroupInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Groups = groups
}

func (c *Client) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *Client) SendText(_ context.Context, to, text string, quoted *transport.MessageKey) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailSends {
		return "", ErrSendFailed
	}
	c.nextID++
	c.texts = append(c.texts, SentText{To: to, Text: text, Quoted: quoted})
	return fmt.Sprintf("OUT%d", c.nextID), nil
}

func (c *Client) SendReaction(_ context.Context, key transport.MessageKey, emoji string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailSends {
		return ErrSendFailed
	}
	c.reactions = append(c.reactions, SentReaction{Key: key, Emoji: emoji})
	return nil
}

func (c *Client) JoinedGroups(context.Context) ([]transport.GroupInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transport.GroupInfo(nil), c.Groups...), nil
}

func (c *Client) GroupMetadata(_ context.Context, groupID string) (transport.GroupInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range c.Groups {
		if g.ID == groupID {
			return g, nil
		}
	}
	return transport.GroupInfo{}, fmt.Errorf("group %s not found", groupID)
}

func (c *Client) ProfilePictureURL(ctx context.Context, jid string) (string, error) {
	c.mu.Lock()
	slow := c.SlowPictures[jid]
	url, ok := c.Pictures[jid]
	c.mu.Unlock()
	if slow {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if !ok {
		return "", errors.New("no picture")
	}
	return url, nil
}

func (c *Client) Logout(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loggedOut = true
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Client) Texts() []SentText {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentText(nil), c.texts...)
}

func (c *Client) Reactions() []SentReaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentReaction(nil), c.reactions...)
}

func (c *Client) LoggedOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedOut
}

func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Session is one dialed connection: the client and the channel the test feeds events into.
type Session struct {
	Client *Client
	Events chan transport.Event
}

// Dialer hands out a fresh Session per Dial call and doubles as a CredentialStore.
type Dialer struct {
	mu       sync.Mutex
	sessions []*Session
	creds    map[string]bool
	deleted  []string
	dialed   chan *Session

	// Identity is what new clients report once opened; defaults to the coordinator id.
	Identity string
	DialErr  error
}

func NewDialer() *Dialer {
	return &Dialer{creds: map[string]bool{}, dialed: make(chan *Session, 64)}
}

func (d *Dialer) Dial(_ context.Context, coordinatorID string) (transport.Client, <-chan transport.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.DialErr != nil {
		return nil, nil, d.DialErr
	}
	identity := d.Identity
	if identity == "" {
		identity = coordinatorID
	}
	s := &Session{Client: NewClient(identity), Events: make(chan transport.Event, 16)}
	d.sessions = append(d.sessions, s)
	d.creds[coordinatorID] = true
	d.dialed <- s
	return s.Client, s.Events, nil
}

// Dialed returns the channel on which every new Session is announced.
func (d *Dialer) Dialed() <-chan *Session { return d.dialed }

func (d *Dialer) Sessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Session(nil), d.sessions...)
}

func (d *Dialer) AddCredentials(coordinatorID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creds[coordinatorID] = true
}

func (d *Dialer) Coordinators(context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.creds))
	for id := range d.creds {
		out = append(out, id)
	}
	return out, nil
}

func (d *Dialer) DeleteCredentials(_ context.Context, coordinatorID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.creds, coordinatorID)
	d.deleted = append(d.deleted, coordinatorID)
	return nil
}

func (d *Dialer) Deleted() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.deleted...)
}

func (d *Dialer) HasCredentials(coordinatorID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.creds[coordinatorID]
}
