package coding

import (
	"fmt"

	"github.com/diagnosisview/dvserver/pkg/apperrors"
)

// CriteriaType is the persisted discriminator of a Criteria.
type CriteriaType string

const CriteriaInstitution CriteriaType = "INSTITUTION"

// Criteria decides which requesters a link rule applies to. The set of
// implementations is closed; switch on the concrete type.
type Criteria interface {
	Type() CriteriaType
	Value() string
	isCriteria()
}

// InstitutionCriteria matches requests made on behalf of one institution.
type InstitutionCriteria struct {
	Code string
}

func (InstitutionCriteria) Type() CriteriaType { return CriteriaInstitution }
func (c InstitutionCriteria) Value() string    { return c.Code }
func (InstitutionCriteria) isCriteria()        {}

// ParseCriteria rebuilds a Criteria from its stored type and value.
// Unknown types are rejected with apperrors.ErrBadRequest.
func ParseCriteria(t, value string) (Criteria, error) {
	switch CriteriaType(t) {
	case CriteriaInstitution:
		if value == "" {
			return nil, fmt.Errorf("%w: institution criteria requires a value", apperrors.ErrBadRequest)
		}
		return InstitutionCriteria{Code: value}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported criteria type %q", apperrors.ErrBadRequest, t)
	}
}
