package coding

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Difficulty is the patient-facing complexity rating of a link.
type Difficulty string

const (
	DifficultyGreen         Difficulty = "GREEN"
	DifficultyAmber         Difficulty = "AMBER"
	DifficultyRed           Difficulty = "RED"
	DifficultyDoNotOverride Difficulty = "DO_NOT_OVERRIDE"
)

// Valid reports whether d is a known level. The empty value means unset and
// is also accepted.
func (d Difficulty) Valid() bool {
	switch d {
	case "", DifficultyGreen, DifficultyAmber, DifficultyRed, DifficultyDoNotOverride:
		return true
	}
	return false
}

// LinkType identifies the external source a link points at.
type LinkType string

const (
	LinkTypeNHSChoices  LinkType = "NHS_CHOICES"
	LinkTypeMedlinePlus LinkType = "MEDLINE_PLUS"
	LinkTypeCustom      LinkType = "CUSTOM"
	LinkTypeNICECKS     LinkType = "NICE_CKS"
	LinkTypeBMJ         LinkType = "BMJ"
)

func (t LinkType) Valid() bool {
	switch t {
	case LinkTypeNHSChoices, LinkTypeMedlinePlus, LinkTypeCustom, LinkTypeNICECKS, LinkTypeBMJ:
		return true
	}
	return false
}

// Link is one external reference url attached to a Code.
type Link struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	CodeID              uuid.UUID  `db:"code_id" json:"code_id"`
	URL                 string     `db:"link" json:"link"`
	Name                string     `db:"name" json:"name,omitempty"`
	LinkType            LinkType   `db:"link_type" json:"link_type"`
	DifficultyLevel     Difficulty `db:"difficulty_level" json:"difficulty_level,omitempty"`
	FreeLink            bool       `db:"free_link" json:"free_link"`
	TransformationsOnly bool       `db:"transformations_only" json:"transformations_only"`
	DisplayOrder        int        `db:"display_order" json:"display_order"`
	LogoRuleID          *uuid.UUID `db:"logo_rule_id" json:"logo_rule_id,omitempty"`
	ExternalID          string     `db:"external_id" json:"external_id,omitempty"`
	LastUpdate          time.Time  `db:"last_update" json:"last_update"`

	// LogoDifficulty is the override carried by the attached LogoRule, if any.
	LogoDifficulty Difficulty `json:"-"`
	// Mappings are ordered by insertion.
	Mappings []*Mapping `json:"-"`
}

// LinkImport is a link supplied by an external import. A nil flag keeps the
// value already stored for the link, or false for a new one.
type LinkImport struct {
	Link
	FreeLink            *bool `json:"free_link"`
	TransformationsOnly *bool `json:"transformations_only"`
}

// Difficulty returns the stored level, GREEN when never set.
func (l *Link) Difficulty() Difficulty {
	if l.DifficultyLevel == "" {
		return DifficultyGreen
	}
	return l.DifficultyLevel
}

// Category groups codes for browsing.
type Category struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	Number              int       `db:"number" json:"number"`
	IcdTenDescription   string    `db:"icd10_desc" json:"icd10_description,omitempty"`
	FriendlyDescription string    `db:"friendly_description" json:"friendly_description,omitempty"`
	Hidden              bool      `db:"hidden" json:"hidden"`
}

// ExternalStandard is a code in an external coding system (e.g. ICD-10)
// that a Code corresponds to.
type ExternalStandard struct {
	Standard   string `json:"standard"`
	CodeString string `json:"code"`
}

// Code is a diagnosis code, the aggregation root for links.
type Code struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	Code                string    `db:"code" json:"code"`
	FriendlyName        *string   `db:"friendly_name" json:"friendly_name,omitempty"`
	PatientFriendlyName *string   `db:"patient_friendly_name" json:"patient_friendly_name,omitempty"`
	FullDescription     *string   `db:"full_description" json:"full_description,omitempty"`
	CodeType            string    `db:"code_type" json:"code_type,omitempty"`
	StandardType        string    `db:"standard_type" json:"standard_type,omitempty"`
	SourceType          string    `db:"source_type" json:"source_type,omitempty"`
	RemovedExternally   bool      `db:"removed_externally" json:"removed_externally"`
	HideFromPatients    bool      `db:"hide_from_patients" json:"hide_from_patients"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`

	Categories        []*Category        `json:"categories,omitempty"`
	Tags              []string           `json:"tags,omitempty"`
	Synonyms          []string           `json:"synonyms,omitempty"`
	ExternalStandards []ExternalStandard `json:"external_standards,omitempty"`
	Links             []*Link            `json:"links,omitempty"`
}

// Deleted reports whether clients should treat the code as removed.
func (c *Code) Deleted() bool {
	return c.RemovedExternally || c.HideFromPatients
}

// StandardICD10 names the ICD-10 external standard.
const StandardICD10 = "ICD_10"

var icd10Category = regexp.MustCompile(`^[A-Z][0-9]{2}`)

// ICD10Prefix returns the ICD-10 category (the part before the decimal point)
// of term, or "" when term does not start like an ICD-10 code.
func ICD10Prefix(term string) string {
	term = strings.ToUpper(strings.TrimSpace(term))
	if i := strings.IndexByte(term, '.'); i >= 0 {
		term = term[:i]
	}
	if !icd10Category.MatchString(term) {
		return ""
	}
	return term
}
