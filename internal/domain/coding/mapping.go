package coding

import "github.com/google/uuid"

// Mapping is the precomputed effect of one link rule on one link.
type Mapping struct {
	ID              uuid.UUID
	Seq             int64
	RuleID          uuid.UUID
	LinkID          uuid.UUID
	ReplacementLink string
	Criteria        Criteria

	// RuleLink is the owning rule's url prefix, nil when the rule row is gone.
	RuleLink *string
}
