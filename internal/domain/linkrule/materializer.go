package linkrule

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/diagnosisview/dvserver/internal/domain/coding"
	"github.com/diagnosisview/dvserver/internal/platform/db"
)

// Materializer keeps link_rule_mapping in step with rules and links.
//
// Rule mutations scan with substring containment, while single-link
// matching uses starts-with. The two predicates differ on purpose and are
// not unified.
type Materializer struct {
	rules    Repository
	links    coding.LinkRepository
	mappings coding.MappingRepository
	workers  int
	log      zerolog.Logger
}

func NewMaterializer(rules Repository, links coding.LinkRepository, mappings coding.MappingRepository,
	workers int, log zerolog.Logger) *Materializer {
	if workers <= 0 {
		workers = 1
	}
	return &Materializer{
		rules:    rules,
		links:    links,
		mappings: mappings,
		workers:  workers,
		log:      log.With().Str("component", "materializer").Logger(),
	}
}

func newMapping(rule *LinkRule, l *coding.Link) *coding.Mapping {
	ruleLink := rule.Link
	return &coding.Mapping{
		RuleID:          rule.ID,
		LinkID:          l.ID,
		ReplacementLink: strings.ReplaceAll(l.URL, rule.Link, rule.Transform),
		Criteria:        rule.Criteria,
		RuleLink:        &ruleLink,
	}
}

func (m *Materializer) generate(ctx context.Context, rule *LinkRule) ([]*coding.Mapping, error) {
	links, err := m.links.FindByURLContaining(ctx, rule.Link)
	if err != nil {
		return nil, fmt.Errorf("find links containing %q: %w", rule.Link, err)
	}
	out := make([]*coding.Mapping, 0, len(links))
	for _, l := range links {
		out = append(out, newMapping(rule, l))
	}
	return out, nil
}

// Materialize creates one mapping per link whose url contains the rule's
// prefix and persists them in a single batch. The result is assigned to
// rule.Mappings.
func (m *Materializer) Materialize(ctx context.Context, rule *LinkRule) error {
	mappings, err := m.generate(ctx, rule)
	if err != nil {
		return err
	}
	if err := m.mappings.CreateBatch(ctx, mappings); err != nil {
		return fmt.Errorf("persist mappings for rule %s: %w", rule.ID, err)
	}
	rule.Mappings = mappings
	m.log.Info().Str("rule_id", rule.ID.String()).Int("mappings", len(mappings)).Msg("rule materialized")
	return nil
}

// Rematerialize drops the rule's mappings and regenerates them from its
// current prefix and transform.
func (m *Materializer) Rematerialize(ctx context.Context, rule *LinkRule) error {
	if err := m.mappings.DeleteByRule(ctx, rule.ID); err != nil {
		return fmt.Errorf("delete mappings for rule %s: %w", rule.ID, err)
	}
	return m.Materialize(ctx, rule)
}

// MatchLink returns a mapping for every rule whose prefix starts l's url.
// Nothing is persisted.
func (m *Materializer) MatchLink(ctx context.Context, l *coding.Link) ([]*coding.Mapping, error) {
	rules, err := m.rules.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list link rules: %w", err)
	}
	var out []*coding.Mapping
	for _, rule := range rules {
		if strings.HasPrefix(l.URL, rule.Link) {
			out = append(out, newMapping(rule, l))
		}
	}
	return out, nil
}

// RebuildAll drops every mapping and regenerates them from the stored rules.
// Rule and link writers are locked out until it commits, so nothing written
// between the scan and the delete is lost. Outside a caller's transaction the
// link scans run concurrently on other pool connections; inserts happen in
// rule creation order so mapping order stays deterministic. It returns the
// number of mappings written.
func (m *Materializer) RebuildAll(ctx context.Context) (int, error) {
	var (
		rules []*LinkRule
		all   []*coding.Mapping
	)
	err := db.RunInTx(ctx, func(txCtx context.Context) error {
		if err := m.mappings.LockForRebuild(txCtx); err != nil {
			return err
		}
		var err error
		rules, err = m.rules.List(txCtx)
		if err != nil {
			return fmt.Errorf("list link rules: %w", err)
		}

		scanCtx, limit := ctx, m.workers
		// A transaction cannot serve concurrent queries.
		if db.TxFromContext(ctx) != nil {
			scanCtx, limit = txCtx, 1
		}
		results := make([][]*coding.Mapping, len(rules))
		g, gctx := errgroup.WithContext(scanCtx)
		g.SetLimit(limit)
		for i, rule := range rules {
			i, rule := i, rule
			g.Go(func() error {
				mappings, err := m.generate(gctx, rule)
				if err != nil {
					return err
				}
				results[i] = mappings
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for _, r := range results {
			all = append(all, r...)
		}
		if err := m.mappings.DeleteAll(txCtx); err != nil {
			return err
		}
		return m.mappings.CreateBatch(txCtx, all)
	})
	if err != nil {
		return 0, fmt.Errorf("rebuild mappings: %w", err)
	}
	m.log.Info().Int("rules", len(rules)).Int("mappings", len(all)).Msg("mappings rebuilt")
	return len(all), nil
}
