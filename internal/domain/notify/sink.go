package notify

import (
	"context"
	"sync"
)

// StatusKind is the kind carried by a status event.
type StatusKind string

const (
	StatusConnected    StatusKind = "connected"
	StatusDisconnected StatusKind = "disconnected"
	StatusExpired      StatusKind = "expired"
	StatusError        StatusKind = "error"
)

// Event is one named notification for a coordinator's dashboard.
type Event interface {
	Name() string
}

// QrIssued carries a linking challenge to display.
type QrIssued struct {
	Challenge string `json:"qr"`
}

// StatusChanged reports a session status transition.
type StatusChanged struct {
	Kind    StatusKind `json:"status"`
	Message string     `json:"message"`
	GroupID string     `json:"groupId,omitempty"`
}

// GroupCandidate is a group the coordinator may choose to track.
type GroupCandidate struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PictureURL string `json:"picture"`
	Size       int    `json:"size"`
}

// GroupCandidates lists groups offered for selection.
type GroupCandidates struct {
	Groups []GroupCandidate `json:"groups"`
}

func (QrIssued) Name() string        { return "qr" }
func (StatusChanged) Name() string   { return "status" }
func (GroupCandidates) Name() string { return "group-candidates" }

// Sink accepts events addressed to one coordinator. Delivery is best-effort.
type Sink interface {
	Publish(ctx context.Context, coordinatorID string, ev Event)
}

// Fanout publishes every event to all of its sinks.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, coordinatorID string, ev Event) {
	for _, s := range f {
		s.Publish(ctx, coordinatorID, ev)
	}
}

// Published is a recorded event.
type Published struct {
	CoordinatorID string
	Event         Event
}

// Recorder keeps every published event; it is used by tests and debugging tools.
type Recorder struct {
	mu     sync.Mutex
	events []Published
}

func (r *Recorder) Publish(_ context.Context, coordinatorID string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Published{CoordinatorID: coordinatorID, Event: ev})
}

func (r *Recorder) Events() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.events...)
}

// Statuses returns the status kinds published for a coordinator, in order.
func (r *Recorder) Statuses(coordinatorID string) []StatusKind {
	var out []StatusKind
	for _, p := range r.Events() {
		if s, ok := p.Event.(StatusChanged); ok && p.CoordinatorID == coordinatorID {
			out = append(out, s.Kind)
		}
	}
	return out
}
