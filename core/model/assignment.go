package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AssignmentRole describes the capacity in which a person holds a block.
type AssignmentRole int

const (
	AssignClinical AssignmentRole = iota
	AssignSupervision
	AssignCall
)

// String returns a human-readable representation of the assignment role.
func (r AssignmentRole) String() string {
	switch r {
	case AssignSupervision:
		return "supervision"
	case AssignCall:
		return "call"
	default:
		return "clinical"
	}
}

// Assignment binds a person to a block in a rotation. At most one
// assignment may exist per (person, block). Assignments are never
// hard-deleted: superseded rows are voided and kept for audit.
type Assignment struct {
	ID       uuid.UUID
	PersonID uuid.UUID
	BlockID  uuid.UUID
	Role     AssignmentRole
	Rotation string

	// Explainability fields populated by the producing solver or swap.
	Score        float64
	Confidence   float64
	Alternatives []uuid.UUID // person IDs considered and rejected for the block
	Integrity    string      // hash over inputs and outputs, see Seal

	// Provenance: exactly one of RunID or SwapID is set.
	RunID  uuid.UUID
	SwapID uuid.UUID

	CreatedAt time.Time

	// Void fields. A voided assignment no longer occupies its slot but
	// remains queryable.
	Voided     bool
	VoidReason string
	VoidedAt   time.Time
}

// SlotKey identifies the (person, block) slot the assignment occupies.
func (a Assignment) SlotKey() string {
	return a.PersonID.String() + "/" + a.BlockID.String()
}

// Seal computes and stores the integrity hash over the assignment's
// identifying inputs and scoring outputs. Recomputing the seal over an
// unmodified row yields the same value, making tampering evident.
func (a *Assignment) Seal() {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%.6f|%.6f",
		a.ID, a.PersonID, a.BlockID, a.Role, a.Rotation, a.Score, a.Confidence)
	for _, alt := range a.Alternatives {
		fmt.Fprintf(h, "|%s", alt)
	}
	a.Integrity = hex.EncodeToString(h.Sum(nil))
}

// VerifySeal reports whether the stored integrity hash matches the row.
func (a Assignment) VerifySeal() bool {
	want := a.Integrity
	cp := a
	cp.Seal()
	return cp.Integrity == want
}

// Void marks the assignment as superseded without deleting it.
func (a *Assignment) Void(reason string, at time.Time) {
	a.Voided = true
	a.VoidReason = reason
	a.VoidedAt = at
}
