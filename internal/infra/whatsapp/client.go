package whatsapp

import (
	"context"
	"fmt"
	"sync"

	"attendance_tracker_bot/internal/domain/transport"
	"attendance_tracker_bot/internal/infra/observability"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

const eventBuffer = 64

// Client wraps one whatsmeow client as a transport.Client.
type Client struct {
	cli    *whatsmeow.Client
	logger *logrus.Entry
	events chan transport.Event
	done   chan struct{}
	cancel context.CancelFunc

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

func newClient(device *store.Device, logger *logrus.Entry) *Client {
	c := &Client{
		cli:    whatsmeow.NewClient(device, NewLogger(logger.WithField("component", "whatsmeow"))),
		logger: logger,
		events: make(chan transport.Event, eventBuffer),
		done:   make(chan struct{}),
	}
	c.cli.AddEventHandler(c.handle)
	return c
}

// connect starts the socket. Devices without credentials go through the linking code flow first.
func (c *Client) connect(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	if c.cli.Store.ID != nil {
		return c.cli.Connect()
	}

	qr, err := c.cli.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("open linking channel: %w", err)
	}
	if err := c.cli.Connect(); err != nil {
		return err
	}
	observability.Go(c.logger, "linking codes", func() {
		for item := range qr {
			if ev, ok := convertQR(item); ok {
				c.emit(ev)
			}
		}
	})
	return nil
}

func (c *Client) handle(raw interface{}) {
	ev, ok := convertEvent(raw, c.Identity())
	if !ok {
		return
	}
	if _, replaced := raw.(*events.StreamReplaced); replaced {
		c.cli.EnableAutoReconnect = false
	}
	c.emit(ev)
}

func (c *Client) emit(ev transport.Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Client) Identity() string {
	id := c.cli.Store.ID
	if id == nil {
		return ""
	}
	return id.ToNonAD().String()
}

func (c *Client) SendText(ctx context.Context, to, text string, quoted *transport.MessageKey) (string, error) {
	jid, err := parseJID(to)
	if err != nil {
		return "", fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	resp, err := c.cli.SendMessage(ctx, jid, textMessage(text, quoted))
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) SendReaction(ctx context.Context, key transport.MessageKey, emoji string) error {
	chat, err := parseJID(key.Chat)
	if err != nil {
		return fmt.Errorf("invalid chat %q: %w", key.Chat, err)
	}
	sender, err := parseJID(key.Sender)
	if err != nil {
		return fmt.Errorf("invalid sender %q: %w", key.Sender, err)
	}
	_, err = c.cli.SendMessage(ctx, chat, c.cli.BuildReaction(chat, sender, key.ID, emoji))
	return err
}

func (c *Client) JoinedGroups(ctx context.Context) ([]transport.GroupInfo, error) {
	groups, err := runCtx(ctx, c.cli.GetJoinedGroups)
	if err != nil {
		return nil, fmt.Errorf("list joined groups: %w", err)
	}
	out := make([]transport.GroupInfo, 0, len(groups))
	for _, g := range groups {
		out = append(out, c.groupInfo(g))
	}
	return out, nil
}

func (c *Client) GroupMetadata(ctx context.Context, groupID string) (transport.GroupInfo, error) {
	jid, err := types.ParseJID(groupID)
	if err != nil {
		return transport.GroupInfo{}, fmt.Errorf("invalid group %q: %w", groupID, err)
	}
	g, err := runCtx(ctx, func() (*types.GroupInfo, error) { return c.cli.GetGroupInfo(jid) })
	if err != nil {
		return transport.GroupInfo{}, fmt.Errorf("group metadata %s: %w", groupID, err)
	}
	return c.groupInfo(g), nil
}

func (c *Client) groupInfo(g *types.GroupInfo) transport.GroupInfo {
	info := transport.GroupInfo{
		ID:           g.JID.String(),
		Name:         g.Name,
		Participants: make([]transport.GroupParticipant, 0, len(g.Participants)),
	}
	for _, p := range g.Participants {
		info.Participants = append(info.Participants, transport.GroupParticipant{
			ID:   p.JID.ToNonAD().String(),
			Name: c.contactName(p),
		})
	}
	return info
}

func (c *Client) contactName(p types.GroupParticipant) string {
	contact, err := c.cli.Store.Contacts.GetContact(p.JID)
	if err == nil && contact.Found {
		for _, name := range []string{contact.FullName, contact.FirstName, contact.PushName, contact.BusinessName} {
			if name != "" {
				return name
			}
		}
	}
	return p.DisplayName
}

func (c *Client) ProfilePictureURL(ctx context.Context, jid string) (string, error) {
	target, err := types.ParseJID(jid)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", jid, err)
	}
	info, err := runCtx(ctx, func() (*types.ProfilePictureInfo, error) {
		return c.cli.GetProfilePictureInfo(target, &whatsmeow.GetProfilePictureParams{Preview: true})
	})
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", whatsmeow.ErrProfilePictureNotSet
	}
	return info.URL, nil
}

// Logout unlinks the device. The server does not echo a logout event for
// locally initiated logouts, so the close is emitted here.
func (c *Client) Logout(ctx context.Context) error {
	identity := c.Identity()
	if _, err := runCtx(ctx, func() (struct{}, error) { return struct{}{}, c.cli.Logout() }); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	observability.Go(c.logger, "logout close", func() {
		c.emit(transport.ConnectionClosed{Reason: transport.CloseLoggedOut, Identity: identity})
	})
	return nil
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.cancel != nil {
			c.cancel()
		}
		c.cli.Disconnect()

		c.mu.Lock()
		c.closed = true
		close(c.events)
		c.mu.Unlock()
	})
}

// runCtx runs a blocking protocol call that takes no context and abandons it when ctx ends.
func runCtx[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
