package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"attendance_tracker_bot/internal/domain/batch"
	"attendance_tracker_bot/internal/domain/notify"
	"attendance_tracker_bot/internal/domain/transport"
	"attendance_tracker_bot/internal/infra/metrics"
	"attendance_tracker_bot/internal/infra/observability"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// State is the lifecycle position of one session.
type State int

const (
	StateAwaitingChallenge State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingChallenge:
		return "awaiting_challenge"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// MessageHandler receives the traffic of an open session.
type MessageHandler interface {
	HandleMessages(ctx context.Context, coordinatorID string, client transport.Client, ev transport.MessagesReceived) error
	HandleUpdates(ctx context.Context, coordinatorID string, client transport.Client, ev transport.MessagesUpdated) error
}

// DigestArmer arms and cancels the per-coordinator digest job.
type DigestArmer interface {
	Arm(coordinatorID string) error
	Cancel(coordinatorID string)
}

// Options are the policy knobs of the state machine.
type Options struct {
	// MaxRetries is the number of consecutive restart-required closures that ends the session.
	MaxRetries            int
	Backoff               time.Duration
	CredentialDeleteDelay time.Duration
	PictureTimeout        time.Duration
	GroupNameFilters      []string
}

// Deps are shared by every machine of the process.
type Deps struct {
	Dialer      transport.Dialer
	Credentials transport.CredentialStore
	Registry    *Registry
	Sink        notify.Sink
	Batches     batch.Repository
	Handler     MessageHandler
	Digest      DigestArmer
	Log         *logrus.Entry
	Options     Options

	// OnReplace is told when a restart hands the coordinator over to a new machine.
	OnReplace func(coordinatorID string, old, next *Machine)
}

// Machine owns one coordinator's transport session from challenge to close.
type Machine struct {
	deps          *Deps
	coordinatorID string
	retries       int
	log           *logrus.Entry
	parent        context.Context

	mu        sync.Mutex
	state     State
	terminal  bool
	challenge string
	client    transport.Client
	cancel    context.CancelFunc
	done      chan struct{}
}

// Start dials a fresh session for the coordinator with an untouched retry budget.
func Start(ctx context.Context, deps *Deps, coordinatorID string) (*Machine, error) {
	return start(ctx, deps, coordinatorID, 0)
}

func start(ctx context.Context, deps *Deps, coordinatorID string, retries int) (*Machine, error) {
	m := &Machine{
		deps:          deps,
		coordinatorID: coordinatorID,
		retries:       retries,
		log:           deps.Log.WithFields(logrus.Fields{"coordinator_id": coordinatorID, "attempt": retries}),
		parent:        ctx,
		state:         StateAwaitingChallenge,
		done:          make(chan struct{}),
	}

	client, events, err := deps.Dialer.Dial(ctx, coordinatorID)
	if err != nil {
		close(m.done)
		return nil, fmt.Errorf("dial session for %s: %w", coordinatorID, err)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.client = client
	m.cancel = cancel

	observability.Go(m.log, "session loop", func() { m.run(loopCtx, events) })
	m.log.Info("Session started")
	return m, nil
}

func (m *Machine) CoordinatorID() string { return m.coordinatorID }

func (m *Machine) Retries() int { return m.retries }

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Terminal reports whether the machine stopped processing events.
func (m *Machine) Terminal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminal
}

// Done is closed once the event loop has exited.
func (m *Machine) Done() <-chan struct{} { return m.done }

// Stop ends the event loop and closes the connection without logging out.
func (m *Machine) Stop() {
	m.finish()
	m.deps.Registry.RemoveIf(m.coordinatorID, m.client)
	m.client.Close()
}

func (m *Machine) finish() {
	m.markTerminal()
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// markTerminal stops the loop after the current event without cancelling its context.
func (m *Machine) markTerminal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateClosed
	m.terminal = true
}

func (m *Machine) run(ctx context.Context, events <-chan transport.Event) {
	defer close(m.done)
	defer m.cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				m.log.Info("Transport event stream closed")
				return
			}
			m.dispatch(ctx, ev)
			if m.Terminal() {
				return
			}
		}
	}
}

// dispatch handles one event; a failure is logged and never stops the loop.
func (m *Machine) dispatch(ctx context.Context, ev transport.Event) {
	kind := transport.Kind(ev)
	metrics.TransportEvents.WithLabelValues(kind).Inc()
	defer observability.Recover(m.log.WithField("event", kind), "session event handler")

	if err := m.handle(ctx, ev); err != nil {
		metrics.HandlerErrors.Inc()
		m.log.WithError(err).WithField("event", kind).Error("Failed to handle transport event")
	}
}

func (m *Machine) handle(ctx context.Context, ev transport.Event) error {
	switch e := ev.(type) {
	case transport.ChallengeIssued:
		return m.onChallenge(ctx, e)
	case transport.ConnectionOpened:
		return m.onOpen(ctx, e)
	case transport.ConnectionClosed:
		return m.onClose(ctx, e)
	case transport.MessagesReceived:
		if m.deps.Handler == nil {
			return nil
		}
		return m.deps.Handler.HandleMessages(ctx, m.coordinatorID, m.client, e)
	case transport.MessagesUpdated:
		if m.deps.Handler == nil {
			return nil
		}
		return m.deps.Handler.HandleUpdates(ctx, m.coordinatorID, m.client, e)
	default:
		m.log.Debugf("Ignoring transport event %T", ev)
		return nil
	}
}

func (m *Machine) onChallenge(ctx context.Context, e transport.ChallengeIssued) error {
	m.mu.Lock()
	pending := m.challenge
	if pending == "" || pending == e.Code {
		m.challenge = e.Code
		m.state = StateAwaitingChallenge
		m.mu.Unlock()
		m.deps.Sink.Publish(ctx, m.coordinatorID, notify.QrIssued{Challenge: e.Code})
		return nil
	}
	m.mu.Unlock()

	// The previous challenge was never completed: it is expired, not silently replaced.
	m.log.Warn("Challenge expired before it was completed")
	m.deps.Registry.RemoveIf(m.coordinatorID, m.client)
	m.markTerminal()
	err := m.deps.Credentials.DeleteCredentials(ctx, m.coordinatorID)
	m.client.Close()
	m.deps.Sink.Publish(ctx, m.coordinatorID, notify.StatusChanged{
		Kind:    notify.StatusExpired,
		Message: "QR code expired, start the session again to get a new one",
	})
	if err != nil {
		return fmt.Errorf("wipe credentials after expired challenge: %w", err)
	}
	return nil
}

func (m *Machine) onOpen(ctx context.Context, e transport.ConnectionOpened) error {
	identity := e.Identity
	if identity == "" {
		identity = m.client.Identity()
	}
	m.mu.Lock()
	m.challenge = ""
	m.mu.Unlock()

	if transport.UserOf(identity) != m.coordinatorID {
		m.log.WithField("identity", identity).Warn("Linked account does not match coordinator")
		m.markTerminal()
		m.deps.Sink.Publish(ctx, m.coordinatorID, notify.StatusChanged{
			Kind:    notify.StatusError,
			Message: "The scanned account does not match this coordinator's number",
		})
		if err := m.client.Logout(ctx); err != nil {
			m.log.WithError(err).Warn("Logout after identity mismatch failed")
		}
		m.client.Close()
		m.deleteCredentialsLater()
		return nil
	}

	m.mu.Lock()
	m.state = StateOpen
	m.mu.Unlock()
	m.deps.Registry.Set(m.coordinatorID, m.client)
	m.log.Info("Session open")

	b, err := m.deps.Batches.EnsureForCoordinator(ctx, m.coordinatorID)
	if err != nil {
		m.deps.Sink.Publish(ctx, m.coordinatorID, notify.StatusChanged{Kind: notify.StatusConnected, Message: "Connected"})
		return fmt.Errorf("load batch on open: %w", err)
	}

	if b.HasGroup() {
		m.deps.Sink.Publish(ctx, m.coordinatorID, notify.StatusChanged{
			Kind: notify.StatusConnected, Message: "Connected", GroupID: b.GroupID,
		})
		if err := m.deps.Digest.Arm(m.coordinatorID); err != nil {
			return fmt.Errorf("arm digest: %w", err)
		}
		return nil
	}

	m.deps.Sink.Publish(ctx, m.coordinatorID, notify.StatusChanged{Kind: notify.StatusConnected, Message: "Connected, select a group"})
	candidates, err := m.groupCandidates(ctx)
	if err != nil {
		return fmt.Errorf("list group candidates: %w", err)
	}
	m.deps.Sink.Publish(ctx, m.coordinatorID, notify.GroupCandidates{Groups: candidates})
	return nil
}

// groupCandidates lists the joined groups whose name matches one of the filters.
// Pictures are resolved in parallel; a slow or missing picture becomes "".
func (m *Machine) groupCandidates(ctx context.Context) ([]notify.GroupCandidate, error) {
	groups, err := m.client.JoinedGroups(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]notify.GroupCandidate, 0, len(groups))
	for _, g := range groups {
		if matchesAny(g.Name, m.deps.Options.GroupNameFilters) {
			candidates = append(candidates, notify.GroupCandidate{ID: g.ID, Name: g.Name, Size: len(g.Participants)})
		}
	}

	var eg errgroup.Group
	eg.SetLimit(8)
	for i := range candidates {
		i := i
		eg.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, m.deps.Options.PictureTimeout)
			defer cancel()
			url, err := m.client.ProfilePictureURL(pctx, candidates[i].ID)
			if err != nil {
				m.log.WithError(err).WithField("group_id", candidates[i].ID).Debug("No group picture")
				url = ""
			}
			candidates[i].PictureURL = url
			return nil
		})
	}
	_ = eg.Wait()
	return candidates, nil
}

func matchesAny(name string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, f := range filters {
		if strings.Contains(lower, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

func (m *Machine) onClose(ctx context.Context, e transport.ConnectionClosed) error {
	m.deps.Registry.RemoveIf(m.coordinatorID, m.client)
	m.mu.Lock()
	m.state = StateClosed
	m.mu.Unlock()

	log := m.log.WithField("reason", e.Reason)
	if e.Err != nil {
		log = log.WithError(e.Err)
	}

	switch e.Reason {
	case transport.CloseTimedOut:
		log.Warn("Session timed out")
		m.markTerminal()
		m.client.Close()
		m.deps.Sink.Publish(ctx, m.coordinatorID, notify.StatusChanged{Kind: notify.StatusError, Message: "Connection timed out, try again"})
		return nil

	case transport.CloseConnectionClosed:
		log.Info("Connection closed; waiting for the transport to reconnect")
		return nil

	case transport.CloseLoggedOut:
		log.Info("Session logged out")
		m.markTerminal()
		m.client.Close()
		m.deps.Digest.Cancel(m.coordinatorID)
		err := m.deps.Batches.DetachCoordinator(ctx, m.coordinatorID)
		if errors.Is(err, batch.ErrNotFound) {
			err = nil
		}
		m.deleteCredentialsLater()
		if transport.UserOf(e.Identity) == m.coordinatorID {
			m.deps.Sink.Publish(ctx, m.coordinatorID, notify.StatusChanged{Kind: notify.StatusDisconnected, Message: "Logged out"})
		}
		if err != nil {
			return fmt.Errorf("detach coordinator: %w", err)
		}
		return nil

	case transport.CloseRestartRequired:
		m.markTerminal()
		m.client.Close()
		if m.retries+1 >= m.deps.Options.MaxRetries {
			log.Error("Restart budget exhausted")
			m.deps.Sink.Publish(ctx, m.coordinatorID, notify.StatusChanged{
				Kind:    notify.StatusError,
				Message: fmt.Sprintf("Could not reconnect after %d restart requests", m.retries+1),
			})
			return nil
		}
		log.Warn("Restart required; reconnecting")
		observability.Go(m.log, "session restart", func() { m.restart(m.parent) })
		return nil

	default:
		log.Warn("Session closed")
		m.markTerminal()
		m.client.Close()
		m.deps.Sink.Publish(ctx, m.coordinatorID, notify.StatusChanged{Kind: notify.StatusError, Message: "Connection closed: " + string(e.Reason)})
		return nil
	}
}

func (m *Machine) restart(ctx context.Context) {
	t := time.NewTimer(m.deps.Options.Backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return
	case <-t.C:
	}

	next, err := start(ctx, m.deps, m.coordinatorID, m.retries+1)
	if err != nil {
		m.log.WithError(err).Error("Restart failed")
		m.deps.Sink.Publish(ctx, m.coordinatorID, notify.StatusChanged{Kind: notify.StatusError, Message: "Could not reconnect"})
		return
	}
	if m.deps.OnReplace != nil {
		m.deps.OnReplace(m.coordinatorID, m, next)
	}
}

// deleteCredentialsLater waits out in-flight writes before removing stored credentials.
func (m *Machine) deleteCredentialsLater() {
	delay := m.deps.Options.CredentialDeleteDelay
	observability.Go(m.log, "credential cleanup", func() {
		time.Sleep(delay)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.deps.Credentials.DeleteCredentials(ctx, m.coordinatorID); err != nil {
			m.log.WithError(err).Error("Failed to delete stored credentials")
			return
		}
		m.log.Info("Stored credentials deleted")
	})
}
