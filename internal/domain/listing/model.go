package listing

import (
	"github.com/google/uuid"

	"github.com/diagnosisview/dvserver/internal/domain/coding"
	"github.com/diagnosisview/dvserver/internal/domain/resolution"
)

// CodeDTO is a code as listed to patients, with links already resolved for
// the requesting institution.
type CodeDTO struct {
	Code         string        `json:"code"`
	FriendlyName *string       `json:"friendlyName"`
	Deleted      bool          `json:"deleted"`
	Categories   []CategoryDTO `json:"categories"`
	Tags         []string      `json:"tags"`
	Links        []LinkDTO     `json:"links"`
}

type CategoryDTO struct {
	Number              int    `json:"number"`
	IcdTenDescription   string `json:"icd10Description,omitempty"`
	FriendlyDescription string `json:"friendlyDescription,omitempty"`
	Hidden              bool   `json:"hidden"`
}

type LinkDTO struct {
	ID                  uuid.UUID          `json:"id"`
	Name                string             `json:"name,omitempty"`
	Link                string             `json:"link"`
	OriginalLink        string             `json:"originalLink"`
	LinkType            coding.LinkType    `json:"linkType"`
	DifficultyLevel     coding.Difficulty  `json:"difficultyLevel"`
	DisplayOrder        int                `json:"displayOrder"`
	FreeLink            bool               `json:"freeLink"`
	TransformationsOnly bool               `json:"transformationsOnly"`
	Paywalled           resolution.Paywall `json:"paywalled"`
	LogoPath            string             `json:"logoPath,omitempty"`
}

func categoryDTO(c *coding.Category) CategoryDTO {
	return CategoryDTO{
		Number:              c.Number,
		IcdTenDescription:   c.IcdTenDescription,
		FriendlyDescription: c.FriendlyDescription,
		Hidden:              c.Hidden,
	}
}

func linkDTO(l *coding.Link, r resolution.Result) LinkDTO {
	dto := LinkDTO{
		ID:                  l.ID,
		Name:                l.Name,
		Link:                r.URL,
		OriginalLink:        r.OriginalURL,
		LinkType:            l.LinkType,
		DifficultyLevel:     r.Difficulty,
		DisplayOrder:        l.DisplayOrder,
		FreeLink:            l.FreeLink,
		TransformationsOnly: l.TransformationsOnly,
		Paywalled:           r.Paywalled,
	}
	if l.LogoRuleID != nil {
		dto.LogoPath = "/api/v1/logos/" + l.LogoRuleID.String() + "/image"
	}
	return dto
}
