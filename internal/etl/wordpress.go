package etl

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/BartekS5/rowmigrate/pkg/database"
	"github.com/BartekS5/rowmigrate/pkg/models"
	"github.com/BartekS5/rowmigrate/pkg/utils"
)

const defaultTablePrefix = "wp_"

// WordPressPostSource reads posts of one post type from a WordPress schema.
// Fields are named "<prefix>posts.<column>", "<prefix>postmeta.<meta_key>"
// and, for taxonomies enabled with WithTerms, "<prefix>terms.<taxonomy>".
type WordPressPostSource struct {
	db       *sql.DB
	dialect  database.Dialect
	postType string
	prefix   string
	perPage  int

	taxonomies     []string
	termsSeparator string

	postColumns []string
	metaKeys    []string
}

// NewWordPressPostSource samples the first post of postType ("post" when
// empty) to learn the available columns and meta keys.
func NewWordPressPostSource(ctx context.Context, db *sql.DB, driver, postType string) (*WordPressPostSource, error) {
	dialect, err := database.DialectFor(driver)
	if err != nil {
		return nil, configError("%v", err)
	}
	if postType == "" {
		postType = "post"
	}
	s := &WordPressPostSource{
		db:             db,
		dialect:        dialect,
		postType:       postType,
		prefix:         defaultTablePrefix,
		perPage:        defaultPerPage,
		termsSeparator: ",",
	}
	if err := s.sampleFields(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// SetTablePrefix switches to tables named with prefix and samples the
// fields again.
func (s *WordPressPostSource) SetTablePrefix(ctx context.Context, prefix string) error {
	s.prefix = prefix
	return s.sampleFields(ctx)
}

// WithTerms adds one "<prefix>terms.<taxonomy>" field per taxonomy. Its
// value is the post's term slugs joined with the terms separator.
func (s *WordPressPostSource) WithTerms(taxonomies ...string) *WordPressPostSource {
	if len(taxonomies) == 0 {
		taxonomies = []string{"category", "post_tag"}
	}
	s.taxonomies = append([]string(nil), taxonomies...)
	return s
}

func (s *WordPressPostSource) SetTermsSeparator(separator string) *WordPressPostSource {
	s.termsSeparator = separator
	return s
}

func (s *WordPressPostSource) SetPerPage(perPage int) error {
	if perPage < 1 {
		return configError("per page must be at least 1, got %d", perPage)
	}
	s.perPage = perPage
	return nil
}

func (s *WordPressPostSource) GetFields() []string {
	var fields []string
	for _, c := range s.postColumns {
		fields = append(fields, s.table("posts")+"."+c)
	}
	for _, k := range s.metaKeys {
		fields = append(fields, s.table("postmeta")+"."+k)
	}
	for _, t := range s.taxonomies {
		fields = append(fields, s.table("terms")+"."+t)
	}
	return fields
}

func (s *WordPressPostSource) table(name string) string {
	return s.prefix + name
}

func (s *WordPressPostSource) sampleFields(ctx context.Context) error {
	query := s.dialect.Paginate(
		fmt.Sprintf("SELECT * FROM %s WHERE post_type = %s", s.dialect.Quote(s.table("posts")), s.dialect.Placeholder(1)),
		"", 0, 1)
	rows, err := s.db.QueryContext(ctx, query, s.postType)
	if err != nil {
		return openError("WordPress posts table", s.table("posts"), err)
	}

	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return openError("WordPress posts table", s.table("posts"), err)
	}
	s.postColumns = cols
	s.metaKeys = nil

	var firstID interface{}
	if rows.Next() {
		values, err := scanValues(rows, len(cols))
		if err != nil {
			rows.Close()
			return fmt.Errorf("scanning first post: %w", err)
		}
		for i, c := range cols {
			if c == "ID" {
				firstID = values[i]
			}
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if firstID == nil {
		return nil
	}

	metaRows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT meta_key FROM %s WHERE post_id = %s ORDER BY meta_id",
			s.dialect.Quote(s.table("postmeta")), s.dialect.Placeholder(1)),
		firstID)
	if err != nil {
		return openError("WordPress postmeta table", s.table("postmeta"), err)
	}
	defer metaRows.Close()

	seen := make(map[string]struct{})
	for metaRows.Next() {
		var key string
		if err := metaRows.Scan(&key); err != nil {
			return fmt.Errorf("scanning meta key: %w", err)
		}
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			s.metaKeys = append(s.metaKeys, key)
		}
	}
	return metaRows.Err()
}

// wordPressRequest splits requested field names by the table they come from.
type wordPressRequest struct {
	columns    []string
	metaKeys   []string
	taxonomies []string
	wantID     bool
}

func (s *WordPressPostSource) parseRequest(fieldsToRetrieve []string) wordPressRequest {
	var req wordPressRequest
	known := newFieldSet(s.postColumns)
	postsPrefix := s.table("posts") + "."
	metaPrefix := s.table("postmeta") + "."
	termsPrefix := s.table("terms") + "."
	taxonomies := newFieldSet(s.taxonomies)

	for _, f := range fieldsToRetrieve {
		switch {
		case strings.HasPrefix(f, postsPrefix):
			col := strings.TrimPrefix(f, postsPrefix)
			if known.has(col) {
				req.columns = append(req.columns, col)
				if col == "ID" {
					req.wantID = true
				}
			}
		case strings.HasPrefix(f, metaPrefix):
			req.metaKeys = append(req.metaKeys, strings.TrimPrefix(f, metaPrefix))
		case strings.HasPrefix(f, termsPrefix):
			if tax := strings.TrimPrefix(f, termsPrefix); taxonomies.has(tax) {
				req.taxonomies = append(req.taxonomies, tax)
			}
		}
	}
	return req
}

type wordPressPost struct {
	id  interface{}
	row *models.DataRow
}

func (s *WordPressPostSource) GetDataRows(ctx context.Context, page int, fieldsToRetrieve []string) ([]*models.DataRow, error) {
	if page < 1 {
		page = 1
	}
	req := s.parseRequest(fieldsToRetrieve)
	needID := len(req.metaKeys) > 0 || len(req.taxonomies) > 0

	cols := req.columns
	if needID && !req.wantID {
		cols = append(append([]string(nil), cols...), "ID")
	}

	posts, err := s.fetchPosts(ctx, page, cols, req.wantID)
	if err != nil {
		return nil, err
	}

	// posts are fully read before the per-post queries so a single-connection
	// pool is never asked for a second one
	if needID {
		for _, p := range posts {
			if len(req.metaKeys) > 0 {
				if err := s.addMeta(ctx, p, req.metaKeys); err != nil {
					return nil, err
				}
			}
			if len(req.taxonomies) > 0 {
				if err := s.addTerms(ctx, p, req.taxonomies); err != nil {
					return nil, err
				}
			}
		}
	}

	out := make([]*models.DataRow, len(posts))
	for i, p := range posts {
		out[i] = p.row
	}
	return out, nil
}

func (s *WordPressPostSource) fetchPosts(ctx context.Context, page int, cols []string, keepID bool) ([]wordPressPost, error) {
	selectList := "1"
	if len(cols) > 0 {
		quoted := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = s.dialect.QuoteIdent(c)
		}
		selectList = strings.Join(quoted, ", ")
	}
	query := s.dialect.Paginate(
		fmt.Sprintf("SELECT %s FROM %s WHERE post_type = %s", selectList, s.dialect.Quote(s.table("posts")), s.dialect.Placeholder(1)),
		s.dialect.QuoteIdent("ID"), (page-1)*s.perPage, s.perPage)

	rows, err := s.db.QueryContext(ctx, query, s.postType)
	if err != nil {
		return nil, fmt.Errorf("querying posts page %d: %w", page, err)
	}
	defer rows.Close()

	var posts []wordPressPost
	for rows.Next() {
		values, err := scanValues(rows, len(cols))
		if err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		p := wordPressPost{row: models.NewDataRow()}
		for i, c := range cols {
			if c == "ID" {
				p.id = values[i]
				if !keepID {
					continue
				}
			}
			p.row.AddDataItem(s.table("posts")+"."+c, utils.ToString(values[i]))
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *WordPressPostSource) addMeta(ctx context.Context, p wordPressPost, keys []string) error {
	args := []interface{}{p.id}
	placeholders := make([]string, len(keys))
	for i, k := range keys {
		args = append(args, k)
		placeholders[i] = s.dialect.Placeholder(len(args))
	}
	query := fmt.Sprintf("SELECT meta_key, meta_value FROM %s WHERE post_id = %s AND meta_key IN (%s) ORDER BY meta_id",
		s.dialect.Quote(s.table("postmeta")), s.dialect.Placeholder(1), strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying meta of post %v: %w", p.id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("scanning meta of post %v: %w", p.id, err)
		}
		p.row.AddDataItem(s.table("postmeta")+"."+key, value.String)
	}
	return rows.Err()
}

func (s *WordPressPostSource) addTerms(ctx context.Context, p wordPressPost, taxonomies []string) error {
	args := []interface{}{p.id}
	placeholders := make([]string, len(taxonomies))
	for i, t := range taxonomies {
		args = append(args, t)
		placeholders[i] = s.dialect.Placeholder(len(args))
	}
	query := fmt.Sprintf("SELECT t.slug, tt.taxonomy FROM %s tr"+
		" JOIN %s tt ON tr.term_taxonomy_id = tt.term_taxonomy_id"+
		" JOIN %s t ON tt.term_id = t.term_id"+
		" WHERE tr.object_id = %s AND tt.taxonomy IN (%s)"+
		" ORDER BY tt.term_taxonomy_id",
		s.dialect.Quote(s.table("term_relationships")),
		s.dialect.Quote(s.table("term_taxonomy")),
		s.dialect.Quote(s.table("terms")),
		s.dialect.Placeholder(1), strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying terms of post %v: %w", p.id, err)
	}
	defer rows.Close()

	slugs := make(map[string][]string)
	for rows.Next() {
		var slug, taxonomy sql.NullString
		if err := rows.Scan(&slug, &taxonomy); err != nil {
			return fmt.Errorf("scanning terms of post %v: %w", p.id, err)
		}
		if slug.String != "" && taxonomy.String != "" {
			slugs[taxonomy.String] = append(slugs[taxonomy.String], slug.String)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, t := range taxonomies {
		p.row.AddDataItem(s.table("terms")+"."+t, strings.Join(slugs[t], s.termsSeparator))
	}
	return nil
}

func (s *WordPressPostSource) CountDataRows(ctx context.Context) (int, error) {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE post_type = %s", s.dialect.Quote(s.table("posts")), s.dialect.Placeholder(1))
	if err := s.db.QueryRowContext(ctx, query, s.postType).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting posts: %w", err)
	}
	return count, nil
}

func (s *WordPressPostSource) CountPages(ctx context.Context) (int, error) {
	rows, err := s.CountDataRows(ctx)
	if err != nil {
		return 0, err
	}
	return utils.CountPages(rows, s.perPage), nil
}

// Close is a no-op; the caller owns db.
func (s *WordPressPostSource) Close() error {
	return nil
}
