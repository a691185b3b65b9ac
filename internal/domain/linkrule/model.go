package linkrule

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosisview/dvserver/internal/domain/coding"
)

// LinkRule rewrites links whose url matches Link into Transform for the
// requesters its Criteria selects.
type LinkRule struct {
	ID        uuid.UUID
	Link      string
	Transform string
	Criteria  coding.Criteria
	CreatedAt time.Time
	UpdatedAt time.Time

	// Mappings is populated after materialization.
	Mappings []*coding.Mapping
}

type ruleJSON struct {
	ID           uuid.UUID `json:"id"`
	Link         string    `json:"link"`
	Transform    string    `json:"transform"`
	CriteriaType string    `json:"criteriaType"`
	Criteria     string    `json:"criteria"`
	MappingCount int       `json:"mappingCount,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (r *LinkRule) MarshalJSON() ([]byte, error) {
	out := ruleJSON{
		ID:           r.ID,
		Link:         r.Link,
		Transform:    r.Transform,
		MappingCount: len(r.Mappings),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.Criteria != nil {
		out.CriteriaType = string(r.Criteria.Type())
		out.Criteria = r.Criteria.Value()
	}
	return json.Marshal(out)
}

// Request is the admin payload for creating or updating a rule.
type Request struct {
	Link         string `json:"link"`
	Transform    string `json:"transform"`
	CriteriaType string `json:"criteriaType"`
	Criteria     string `json:"criteria"`
}

// ToRule validates r and converts it into a LinkRule.
func (r Request) ToRule() (*LinkRule, error) {
	criteria, err := coding.ParseCriteria(r.CriteriaType, r.Criteria)
	if err != nil {
		return nil, err
	}
	return &LinkRule{Link: r.Link, Transform: r.Transform, Criteria: criteria}, nil
}
