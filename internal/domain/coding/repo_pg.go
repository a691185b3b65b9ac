package coding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosisview/dvserver/internal/platform/db"
	"github.com/diagnosisview/dvserver/pkg/apperrors"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, apperrors.ErrNotFound)
	}
	return err
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// likeEscape escapes LIKE wildcards so user input matches literally.
func likeEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// =========== Link Repository ===========

type linkRepoPG struct{ pool *pgxpool.Pool }

func NewLinkRepoPG(pool *pgxpool.Pool) LinkRepository { return &linkRepoPG{pool: pool} }

func (r *linkRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const linkCols = `l.id, l.code_id, l.link, COALESCE(l.name,''), l.link_type,
	COALESCE(l.difficulty_level,''), l.free_link, l.transformations_only, l.display_order,
	l.logo_rule_id, COALESCE(l.external_id,''), l.last_update, COALESCE(lr.link_difficulty,'')`

const linkFrom = ` FROM link l LEFT JOIN logo_rule lr ON lr.id = l.logo_rule_id`

func scanLink(row pgx.Row) (*Link, error) {
	var l Link
	var linkType, difficulty, logoDifficulty string
	err := row.Scan(&l.ID, &l.CodeID, &l.URL, &l.Name, &linkType,
		&difficulty, &l.FreeLink, &l.TransformationsOnly, &l.DisplayOrder,
		&l.LogoRuleID, &l.ExternalID, &l.LastUpdate, &logoDifficulty)
	if err != nil {
		return nil, err
	}
	l.LinkType = LinkType(linkType)
	l.DifficultyLevel = Difficulty(difficulty)
	l.LogoDifficulty = Difficulty(logoDifficulty)
	return &l, nil
}

func (r *linkRepoPG) queryLinks(ctx context.Context, where string, args ...interface{}) ([]*Link, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+linkCols+linkFrom+` `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()
	var links []*Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := loadMappings(ctx, r.conn(ctx), links); err != nil {
		return nil, err
	}
	return links, nil
}

// loadMappings attaches mappings to links, ordered by seq. The owning
// rule's url is joined in and stays nil if the rule row no longer exists.
func loadMappings(ctx context.Context, q queryable, links []*Link) error {
	if len(links) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Link, len(links))
	ids := make([]uuid.UUID, 0, len(links))
	for _, l := range links {
		byID[l.ID] = l
		ids = append(ids, l.ID)
	}
	rows, err := q.Query(ctx, `
		SELECT m.id, m.seq, m.link_rule_id, m.link_id, m.replacement_link, m.criteria_type, m.criteria, r.link
		FROM link_rule_mapping m LEFT JOIN link_rule r ON r.id = m.link_rule_id
		WHERE m.link_id = ANY($1::uuid[])
		ORDER BY m.seq`, uuidStrings(ids))
	if err != nil {
		return fmt.Errorf("query mappings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m Mapping
		var criteriaType, criteria string
		if err := rows.Scan(&m.ID, &m.Seq, &m.RuleID, &m.LinkID, &m.ReplacementLink, &criteriaType, &criteria, &m.RuleLink); err != nil {
			return fmt.Errorf("scan mapping: %w", err)
		}
		// An unrecognised stored type leaves Criteria nil; resolution ignores it.
		m.Criteria, _ = ParseCriteria(criteriaType, criteria)
		if l, ok := byID[m.LinkID]; ok {
			l.Mappings = append(l.Mappings, &m)
		}
	}
	return rows.Err()
}

func (r *linkRepoPG) Create(ctx context.Context, l *Link) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.LastUpdate = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO link (id, code_id, link, name, link_type, difficulty_level, free_link,
			transformations_only, display_order, logo_rule_id, external_id, last_update)
		VALUES ($1,$2,$3,NULLIF($4,''),$5,NULLIF($6,''),$7,$8,$9,$10,NULLIF($11,''),$12)`,
		l.ID, l.CodeID, l.URL, l.Name, string(l.LinkType), string(l.DifficultyLevel), l.FreeLink,
		l.TransformationsOnly, l.DisplayOrder, l.LogoRuleID, l.ExternalID, l.LastUpdate)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", apperrors.ErrConflict, pgErr.Detail)
		}
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

func (r *linkRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Link, error) {
	links, err := r.queryLinks(ctx, `WHERE l.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("link %s: %w", id, apperrors.ErrNotFound)
	}
	return links[0], nil
}

func (r *linkRepoPG) GetByExternalID(ctx context.Context, codeID uuid.UUID, externalID string) (*Link, error) {
	links, err := r.queryLinks(ctx, `WHERE l.code_id = $1 AND l.external_id = $2`, codeID, externalID)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("link with external id %q: %w", externalID, apperrors.ErrNotFound)
	}
	return links[0], nil
}

func (r *linkRepoPG) Update(ctx context.Context, l *Link) error {
	l.LastUpdate = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE link SET link=$2, name=NULLIF($3,''), link_type=$4, difficulty_level=NULLIF($5,''),
			free_link=$6, transformations_only=$7, display_order=$8, logo_rule_id=$9,
			external_id=NULLIF($10,''), last_update=$11
		WHERE id = $1`,
		l.ID, l.URL, l.Name, string(l.LinkType), string(l.DifficultyLevel),
		l.FreeLink, l.TransformationsOnly, l.DisplayOrder, l.LogoRuleID,
		l.ExternalID, l.LastUpdate)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", apperrors.ErrConflict, pgErr.Detail)
		}
		return fmt.Errorf("update link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("link %s: %w", l.ID, apperrors.ErrNotFound)
	}
	return nil
}

func (r *linkRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM link WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("link %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func (r *linkRepoPG) ListByCode(ctx context.Context, codeID uuid.UUID) ([]*Link, error) {
	return r.queryLinks(ctx, `WHERE l.code_id = $1 ORDER BY l.display_order`, codeID)
}

func (r *linkRepoPG) NextDisplayOrder(ctx context.Context, codeID uuid.UUID) (int, error) {
	var next int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(MAX(display_order), 0) + 1 FROM link WHERE code_id = $1`, codeID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next display order: %w", err)
	}
	return next, nil
}

func (r *linkRepoPG) FindByURLContaining(ctx context.Context, s string) ([]*Link, error) {
	return r.queryLinks(ctx, `WHERE l.link LIKE $1 ORDER BY l.code_id, l.display_order`, "%"+likeEscape(s)+"%")
}

func (r *linkRepoPG) FindByURLPrefix(ctx context.Context, prefix string) ([]*Link, error) {
	return r.queryLinks(ctx, `WHERE l.link LIKE $1 ORDER BY l.code_id, l.display_order`, likeEscape(prefix)+"%")
}

func (r *linkRepoPG) SetLogoRule(ctx context.Context, linkIDs []uuid.UUID, logoRuleID uuid.UUID) error {
	if len(linkIDs) == 0 {
		return nil
	}
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE link SET logo_rule_id = $1, last_update = NOW() WHERE id = ANY($2::uuid[])`,
		logoRuleID, uuidStrings(linkIDs))
	if err != nil {
		return fmt.Errorf("set logo rule: %w", err)
	}
	return nil
}

func (r *linkRepoPG) ClearLogoRule(ctx context.Context, logoRuleID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE link SET logo_rule_id = NULL, last_update = NOW() WHERE logo_rule_id = $1`, logoRuleID)
	if err != nil {
		return fmt.Errorf("clear logo rule: %w", err)
	}
	return nil
}

// =========== Mapping Repository ===========

type mappingRepoPG struct{ pool *pgxpool.Pool }

func NewMappingRepoPG(pool *pgxpool.Pool) MappingRepository { return &mappingRepoPG{pool: pool} }

func (r *mappingRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

// CreateBatch inserts all mappings in one round trip. Queue order fixes seq
// order, which is the iteration order seen at resolution time.
func (r *mappingRepoPG) CreateBatch(ctx context.Context, mappings []*Mapping) error {
	if len(mappings) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range mappings {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		if m.Criteria == nil {
			return fmt.Errorf("%w: mapping %s has no criteria", apperrors.ErrBadRequest, m.ID)
		}
		batch.Queue(`
			INSERT INTO link_rule_mapping (id, link_rule_id, link_id, replacement_link, criteria_type, criteria)
			VALUES ($1,$2,$3,$4,$5,$6) RETURNING seq`,
			m.ID, m.RuleID, m.LinkID, m.ReplacementLink, string(m.Criteria.Type()), m.Criteria.Value(),
		).QueryRow(func(row pgx.Row) error {
			return row.Scan(&m.Seq)
		})
	}
	if err := r.conn(ctx).SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert mappings: %w", err)
	}
	return nil
}

func (r *mappingRepoPG) ListByRule(ctx context.Context, ruleID uuid.UUID) ([]*Mapping, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT m.id, m.seq, m.link_rule_id, m.link_id, m.replacement_link, m.criteria_type, m.criteria, r.link
		FROM link_rule_mapping m LEFT JOIN link_rule r ON r.id = m.link_rule_id
		WHERE m.link_rule_id = $1 ORDER BY m.seq`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("query rule mappings: %w", err)
	}
	defer rows.Close()
	var out []*Mapping
	for rows.Next() {
		var m Mapping
		var criteriaType, criteria string
		if err := rows.Scan(&m.ID, &m.Seq, &m.RuleID, &m.LinkID, &m.ReplacementLink, &criteriaType, &criteria, &m.RuleLink); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		m.Criteria, _ = ParseCriteria(criteriaType, criteria)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *mappingRepoPG) DeleteByRule(ctx context.Context, ruleID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM link_rule_mapping WHERE link_rule_id = $1`, ruleID)
	if err != nil {
		return fmt.Errorf("delete rule mappings: %w", err)
	}
	return nil
}

func (r *mappingRepoPG) DeleteByLink(ctx context.Context, linkID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM link_rule_mapping WHERE link_id = $1`, linkID)
	if err != nil {
		return fmt.Errorf("delete link mappings: %w", err)
	}
	return nil
}

func (r *mappingRepoPG) DeleteAll(ctx context.Context) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM link_rule_mapping`); err != nil {
		return fmt.Errorf("delete all mappings: %w", err)
	}
	return nil
}

func (r *mappingRepoPG) LockForRebuild(ctx context.Context) error {
	tx := db.TxFromContext(ctx)
	if tx == nil {
		return errors.New("lock for rebuild: no transaction in context")
	}
	if _, err := tx.Exec(ctx, `LOCK TABLE link_rule, link IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return fmt.Errorf("lock for rebuild: %w", err)
	}
	return nil
}

// =========== Code Repository ===========

type codeRepoPG struct{ pool *pgxpool.Pool }

func NewCodeRepoPG(pool *pgxpool.Pool) CodeRepository { return &codeRepoPG{pool: pool} }

func (r *codeRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const codeCols = `id, code, friendly_name, patient_friendly_name, full_description,
	COALESCE(code_type,''), COALESCE(standard_type,''), COALESCE(source_type,''),
	removed_externally, hide_from_patients, created_at, updated_at`

func scanCode(row pgx.Row) (*Code, error) {
	var c Code
	err := row.Scan(&c.ID, &c.Code, &c.FriendlyName, &c.PatientFriendlyName, &c.FullDescription,
		&c.CodeType, &c.StandardType, &c.SourceType,
		&c.RemovedExternally, &c.HideFromPatients, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *codeRepoPG) Create(ctx context.Context, c *Code) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO code (id, code, friendly_name, patient_friendly_name, full_description,
			code_type, standard_type, source_type, removed_externally, hide_from_patients, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),NULLIF($7,''),NULLIF($8,''),$9,$10,$11,$12)`,
		c.ID, c.Code, c.FriendlyName, c.PatientFriendlyName, c.FullDescription,
		c.CodeType, c.StandardType, c.SourceType, c.RemovedExternally, c.HideFromPatients, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: code %q already exists", apperrors.ErrConflict, c.Code)
		}
		return fmt.Errorf("insert code: %w", err)
	}
	return r.replaceChildren(ctx, c)
}

func (r *codeRepoPG) Update(ctx context.Context, c *Code) error {
	c.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE code SET code=$2, friendly_name=$3, patient_friendly_name=$4, full_description=$5,
			code_type=NULLIF($6,''), standard_type=NULLIF($7,''), source_type=NULLIF($8,''),
			removed_externally=$9, hide_from_patients=$10, updated_at=$11
		WHERE id = $1`,
		c.ID, c.Code, c.FriendlyName, c.PatientFriendlyName, c.FullDescription,
		c.CodeType, c.StandardType, c.SourceType, c.RemovedExternally, c.HideFromPatients, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("code %s: %w", c.ID, apperrors.ErrNotFound)
	}
	return r.replaceChildren(ctx, c)
}

// replaceChildren rewrites the category, tag, synonym and external standard
// rows of c. Links are managed separately.
func (r *codeRepoPG) replaceChildren(ctx context.Context, c *Code) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM code_category WHERE code_id = $1`, c.ID)
	batch.Queue(`DELETE FROM code_tag WHERE code_id = $1`, c.ID)
	batch.Queue(`DELETE FROM code_synonym WHERE code_id = $1`, c.ID)
	batch.Queue(`DELETE FROM code_external_standard WHERE code_id = $1`, c.ID)
	for _, cat := range c.Categories {
		batch.Queue(`INSERT INTO code_category (code_id, category_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, c.ID, cat.ID)
	}
	for _, tag := range c.Tags {
		batch.Queue(`INSERT INTO code_tag (code_id, tag) VALUES ($1,$2) ON CONFLICT DO NOTHING`, c.ID, tag)
	}
	for _, syn := range c.Synonyms {
		batch.Queue(`INSERT INTO code_synonym (id, code_id, synonym) VALUES ($1,$2,$3)`, uuid.New(), c.ID, syn)
	}
	for _, es := range c.ExternalStandards {
		batch.Queue(`INSERT INTO code_external_standard (id, code_id, standard, code_string) VALUES ($1,$2,$3,$4)`,
			uuid.New(), c.ID, es.Standard, es.CodeString)
	}
	if err := r.conn(ctx).SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("write code children: %w", err)
	}
	return nil
}

func (r *codeRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Code, error) {
	c, err := scanCode(r.conn(ctx).QueryRow(ctx, `SELECT `+codeCols+` FROM code WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "code "+id.String())
	}
	if err := r.loadChildren(ctx, []*Code{c}); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *codeRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM code WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("code %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func (r *codeRepoPG) queryCodes(ctx context.Context, where string, args ...interface{}) ([]*Code, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+codeCols+` FROM code `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query codes: %w", err)
	}
	var codes []*Code
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan code: %w", err)
		}
		codes = append(codes, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, codes); err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *codeRepoPG) ListAll(ctx context.Context) ([]*Code, error) {
	return r.queryCodes(ctx, `ORDER BY code`)
}

func (r *codeRepoPG) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Code, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.queryCodes(ctx, `WHERE id = ANY($1::uuid[]) ORDER BY code`, uuidStrings(ids))
}

// loadChildren eagerly fetches everything hanging off the given codes.
func (r *codeRepoPG) loadChildren(ctx context.Context, codes []*Code) error {
	if len(codes) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Code, len(codes))
	ids := make([]uuid.UUID, 0, len(codes))
	for _, c := range codes {
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}
	idArg := uuidStrings(ids)
	q := r.conn(ctx)

	rows, err := q.Query(ctx, `
		SELECT cc.code_id, cat.id, cat.number, COALESCE(cat.icd10_desc,''), COALESCE(cat.friendly_description,''), cat.hidden
		FROM code_category cc JOIN category cat ON cat.id = cc.category_id
		WHERE cc.code_id = ANY($1::uuid[]) ORDER BY cat.number`, idArg)
	if err != nil {
		return fmt.Errorf("query code categories: %w", err)
	}
	for rows.Next() {
		var codeID uuid.UUID
		var cat Category
		if err := rows.Scan(&codeID, &cat.ID, &cat.Number, &cat.IcdTenDescription, &cat.FriendlyDescription, &cat.Hidden); err != nil {
			rows.Close()
			return fmt.Errorf("scan code category: %w", err)
		}
		byID[codeID].Categories = append(byID[codeID].Categories, &cat)
	}
	rows.Close()

	rows, err = q.Query(ctx, `SELECT code_id, tag FROM code_tag WHERE code_id = ANY($1::uuid[]) ORDER BY tag`, idArg)
	if err != nil {
		return fmt.Errorf("query code tags: %w", err)
	}
	for rows.Next() {
		var codeID uuid.UUID
		var tag string
		if err := rows.Scan(&codeID, &tag); err != nil {
			rows.Close()
			return fmt.Errorf("scan code tag: %w", err)
		}
		byID[codeID].Tags = append(byID[codeID].Tags, tag)
	}
	rows.Close()

	rows, err = q.Query(ctx, `SELECT code_id, synonym FROM code_synonym WHERE code_id = ANY($1::uuid[]) ORDER BY synonym`, idArg)
	if err != nil {
		return fmt.Errorf("query code synonyms: %w", err)
	}
	for rows.Next() {
		var codeID uuid.UUID
		var syn string
		if err := rows.Scan(&codeID, &syn); err != nil {
			rows.Close()
			return fmt.Errorf("scan code synonym: %w", err)
		}
		byID[codeID].Synonyms = append(byID[codeID].Synonyms, syn)
	}
	rows.Close()

	rows, err = q.Query(ctx, `SELECT code_id, standard, code_string FROM code_external_standard WHERE code_id = ANY($1::uuid[]) ORDER BY code_string`, idArg)
	if err != nil {
		return fmt.Errorf("query external standards: %w", err)
	}
	for rows.Next() {
		var codeID uuid.UUID
		var es ExternalStandard
		if err := rows.Scan(&codeID, &es.Standard, &es.CodeString); err != nil {
			rows.Close()
			return fmt.Errorf("scan external standard: %w", err)
		}
		byID[codeID].ExternalStandards = append(byID[codeID].ExternalStandards, es)
	}
	rows.Close()

	links := &linkRepoPG{pool: r.pool}
	all, err := links.queryLinks(ctx, `WHERE l.code_id = ANY($1::uuid[]) ORDER BY l.code_id, l.display_order`, idArg)
	if err != nil {
		return err
	}
	for _, l := range all {
		byID[l.CodeID].Links = append(byID[l.CodeID].Links, l)
	}
	return nil
}

func (r *codeRepoPG) SearchIDs(ctx context.Context, term string) ([]uuid.UUID, error) {
	pattern := "%" + likeEscape(term) + "%"
	prefix := ICD10Prefix(term)
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT c.id FROM code c
		LEFT JOIN code_synonym s ON s.code_id = c.id
		LEFT JOIN code_external_standard e ON e.code_id = c.id
		WHERE s.synonym ILIKE $1 OR c.friendly_name ILIKE $1 OR c.code ILIKE $1
		   OR ($2 <> '' AND e.standard = $3 AND e.code_string LIKE $2 || '%')`,
		pattern, likeEscape(prefix), StandardICD10)
	if err != nil {
		return nil, fmt.Errorf("search codes: %w", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan code id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *codeRepoPG) ListCategories(ctx context.Context) ([]*Category, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, number, COALESCE(icd10_desc,''), COALESCE(friendly_description,''), hidden
		FROM category ORDER BY number`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()
	var cats []*Category
	for rows.Next() {
		var cat Category
		if err := rows.Scan(&cat.ID, &cat.Number, &cat.IcdTenDescription, &cat.FriendlyDescription, &cat.Hidden); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, &cat)
	}
	return cats, rows.Err()
}
