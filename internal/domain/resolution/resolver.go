// Package resolution decides what a requester sees for a link: the url to
// follow, whether it is paywalled, whether it is shown at all, and its
// difficulty.
package resolution

import (
	"github.com/rs/zerolog"

	"github.com/diagnosisview/dvserver/internal/domain/coding"
	"github.com/diagnosisview/dvserver/internal/domain/institution"
)

// Paywall is the access state of a resolved link.
type Paywall string

const (
	// PaywallNone means no institution rule applies to the link.
	PaywallNone     Paywall = "NONE"
	PaywallLocked   Paywall = "LOCKED"
	PaywallUnlocked Paywall = "UNLOCKED"
)

// Result is the outcome of resolving one link for one requester.
type Result struct {
	URL         string
	OriginalURL string
	Paywalled   Paywall
	Displayed   bool
	Difficulty  coding.Difficulty
}

type Resolver struct {
	log zerolog.Logger
}

func NewResolver(log zerolog.Logger) *Resolver {
	return &Resolver{log: log.With().Str("component", "resolver").Logger()}
}

// Resolve walks l.Mappings in insertion order. Every institution mapping
// resets the result to locked on the rule's original link; a mapping for
// inst unlocks its replacement and stops the walk. Without a matching
// mapping the last mapping seen therefore decides the locked url. A nil
// inst never unlocks. Resolve does not fail: mappings it cannot interpret
// are skipped.
func (r *Resolver) Resolve(l *coding.Link, inst *institution.Institution) Result {
	res := Result{
		OriginalURL: l.URL,
		Paywalled:   PaywallNone,
		Difficulty:  l.Difficulty(),
	}

	var ruleURL string
walk:
	for _, m := range l.Mappings {
		switch c := m.Criteria.(type) {
		case coding.InstitutionCriteria:
			if m.RuleLink == nil {
				r.log.Warn().Str("link_id", l.ID.String()).Str("mapping_id", m.ID.String()).
					Str("rule_id", m.RuleID.String()).Msg("mapping references a missing link rule, skipped")
				continue
			}
			res.Paywalled = PaywallLocked
			ruleURL = *m.RuleLink
			if inst != nil && inst.Code == c.Code {
				res.Paywalled = PaywallUnlocked
				ruleURL = m.ReplacementLink
				break walk
			}
		default:
			r.log.Warn().Str("link_id", l.ID.String()).Str("mapping_id", m.ID.String()).
				Msg("mapping has unrecognised criteria, skipped")
		}
	}

	res.Displayed = ruleURL != "" || !l.TransformationsOnly
	res.URL = l.URL
	if ruleURL != "" {
		res.URL = ruleURL
	}

	if l.LogoDifficulty != "" && l.LogoDifficulty != coding.DifficultyDoNotOverride {
		res.Difficulty = l.LogoDifficulty
	}
	return res
}
