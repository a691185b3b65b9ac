package logorule

import (
	"time"

	"github.com/google/uuid"

	"github.com/diagnosisview/dvserver/internal/domain/coding"
)

// LogoRule brands links whose url starts with StartsWith and may force
// their difficulty.
type LogoRule struct {
	ID             uuid.UUID         `db:"id" json:"id"`
	StartsWith     string            `db:"starts_with" json:"startsWith"`
	Logo           []byte            `db:"logo" json:"logo,omitempty"`
	LogoFileType   string            `db:"logo_file_type" json:"logoFileType,omitempty"`
	LinkDifficulty coding.Difficulty `db:"link_difficulty" json:"linkDifficulty,omitempty"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
}

// Override reports the difficulty the rule forces on its links, if any.
func (r *LogoRule) Override() (coding.Difficulty, bool) {
	if r.LinkDifficulty == "" || r.LinkDifficulty == coding.DifficultyDoNotOverride {
		return "", false
	}
	return r.LinkDifficulty, true
}
