package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Role distinguishes trainees from supervising clinicians.
type Role int

const (
	RoleTrainee Role = iota
	RoleSupervisor
)

// String returns a human-readable representation of the role.
func (r Role) String() string {
	switch r {
	case RoleTrainee:
		return "trainee"
	case RoleSupervisor:
		return "supervisor"
	default:
		return "unknown"
	}
}

// Person is a schedulable individual: a trainee or a supervising clinician.
// Identity fields are immutable once created; workload counters change as
// assignments are committed.
type Person struct {
	ID               uuid.UUID
	Name             string
	Role             Role
	TrainingYear     int      // PGY level for trainees, 0 for supervisors
	SupervisionRatio int      // max unsupervised juniors per supervisor, 0 = default
	Specialties      []string // rotation specialties this person can cover
	MoonlightHours   float64  // weekly external clinical hours counted toward duty limits

	// Mutable workload counters maintained by the committed store.
	AssignedBlocks int
	CallCount      int
}

// IsJunior reports whether the person requires supervision. Trainees in
// their first two training years may not work unsupervised.
func (p Person) IsJunior() bool {
	return p.Role == RoleTrainee && p.TrainingYear <= 2
}

// CanCover reports whether the person's specialties include the rotation.
// An empty specialty list means the person is unrestricted.
func (p Person) CanCover(rotation string) bool {
	if len(p.Specialties) == 0 {
		return true
	}
	for _, s := range p.Specialties {
		if s == rotation {
			return true
		}
	}
	return false
}

// Validate checks that the person record is sound.
func (p Person) Validate() error {
	if p.ID == uuid.Nil {
		return fmt.Errorf("person %q has no ID", p.Name)
	}
	if p.Role == RoleTrainee && p.TrainingYear <= 0 {
		return fmt.Errorf("trainee %s has no training year", p.Name)
	}
	return nil
}
