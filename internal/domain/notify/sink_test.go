package notify

import (
	"context"
	"testing"
)

func TestFanout_PublishesToEverySink(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	Fanout{a, b}.Publish(context.Background(), "91", StatusChanged{Kind: StatusConnected})

	for i, r := range []*Recorder{a, b} {
		got := r.Statuses("91")
		if len(got) != 1 || got[0] != StatusConnected {
			t.Errorf("sink %d statuses = %v", i, got)
		}
	}
}

func TestEventNames(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{QrIssued{}, "qr"},
		{StatusChanged{}, "status"},
		{GroupCandidates{}, "group-candidates"},
	}
	for _, tt := range tests {
		if tt.ev.Name() != tt.want {
			t.Errorf("%T.Name() = %q, want %q", tt.ev, tt.ev.Name(), tt.want)
		}
	}
}
