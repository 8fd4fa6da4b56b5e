package batch

import (
	"strings"
	"time"
)

// Role is the part a participant plays in a batch.
type Role string

const (
	RoleStudent Role = "Student"
	RoleTrainer Role = "Trainer"
	RoleNone    Role = ""
)

// ParseRole accepts the role names case-insensitively.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "student":
		return RoleStudent, true
	case "trainer":
		return RoleTrainer, true
	case "":
		return RoleNone, true
	default:
		return RoleNone, false
	}
}

// Participant is a member of the tracked group.
// ID is the transport-level identifier; PhoneNumber is derived from it for display and matching.
type Participant struct {
	ID          string `db:"participant_id" json:"id"`
	Name        string `db:"name" json:"name"`
	PhoneNumber string `db:"phone_number" json:"phoneNumber"`
	Role        Role   `db:"role" json:"role"`
}

// Batch is a tracked cohort: one coordinator, one group, a participant roster.
// CoordinatorID is empty for a batch whose coordinator logged out.
type Batch struct {
	ID                int64         `db:"id" json:"id"`
	CoordinatorID     string        `db:"coordinator_id" json:"coordinatorId"`
	GroupID           string        `db:"group_id" json:"groupId"`
	BatchName         string        `db:"batch_name" json:"batchName"`
	IsTrackingEnabled bool          `db:"is_tracking_enabled" json:"isTrackingEnabled"`
	IsSharingEnabled  bool          `db:"is_sharing_enabled" json:"isSharingEnabled"`
	Participants      []Participant `db:"-" json:"participants"`
	CreatedAt         time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updatedAt"`
}

// HasGroup reports whether the coordinator has already selected a group.
func (b *Batch) HasGroup() bool {
	return b.GroupID != ""
}

// FindParticipant returns the participant with the given transport identifier.
func (b *Batch) FindParticipant(id string) (Participant, bool) {
	for _, p := range b.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// Trainer returns the first participant with the Trainer role.
func (b *Batch) Trainer() (Participant, bool) {
	for _, p := range b.Participants {
		if p.Role == RoleTrainer {
			return p, true
		}
	}
	return Participant{}, false
}

// Coordinator returns the participant whose phone number is the coordinator's own.
func (b *Batch) Coordinator() (Participant, bool) {
	if b.CoordinatorID == "" {
		return Participant{}, false
	}
	for _, p := range b.Participants {
		if p.PhoneNumber == b.CoordinatorID {
			return p, true
		}
	}
	return Participant{}, false
}

// Students returns the participants with the Student role, in roster order.
func (b *Batch) Students() []Participant {
	out := make([]Participant, 0, len(b.Participants))
	for _, p := range b.Participants {
		if p.Role == RoleStudent {
			out = append(out, p)
		}
	}
	return out
}
