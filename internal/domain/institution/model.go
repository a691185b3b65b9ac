package institution

import (
	"time"

	"github.com/google/uuid"
)

// Institution is an organisation whose members may see rewritten links.
type Institution struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Hidden    bool      `db:"hidden" json:"hidden"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
