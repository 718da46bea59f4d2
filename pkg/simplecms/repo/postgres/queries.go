package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// queries implements simplecms.Store on top of a DBTX. Multi statement
// writes must run on a transaction.
type queries struct {
	db DBTX
}

const contentColumns = `id, kind, name, preview_url, published_on, published_by_user,
	status, version, original_id, created_at, updated_at`

const pageContentColumns = `id, page_id, region_id, content_id, parent_id, sort_order,
	version, created_at, updated_at`

// Page and region operations

func (q *queries) GetPage(ctx context.Context, id uuid.UUID) (*simplecms.Page, error) {
	query := `SELECT id, title, page_url, version, created_at, updated_at FROM pages WHERE id = $1`

	var page simplecms.Page
	err := q.db.QueryRow(ctx, query, id).Scan(
		&page.ID, &page.Title, &page.PageURL, &page.Version, &page.CreatedAt, &page.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplecms.NewNotFoundError(simplecms.EntityPage, id)
		}
		return nil, handlePostgresError("get page", err)
	}
	return &page, nil
}

func (q *queries) SavePage(ctx context.Context, page *simplecms.Page) error {
	if page.Version == 0 {
		page.Version = 1
	}
	query := `
		INSERT INTO pages (id, title, page_url, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			page_url = EXCLUDED.page_url,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at`

	_, err := q.db.Exec(ctx, query,
		page.ID, page.Title, page.PageURL, page.Version, page.CreatedAt, page.UpdatedAt)
	if err != nil {
		return handlePostgresError("save page", err)
	}
	return nil
}

func (q *queries) GetRegion(ctx context.Context, id uuid.UUID) (*simplecms.Region, error) {
	query := `SELECT id, region_identifier, version, created_at, updated_at FROM regions WHERE id = $1`

	var region simplecms.Region
	err := q.db.QueryRow(ctx, query, id).Scan(
		&region.ID, &region.RegionIdentifier, &region.Version, &region.CreatedAt, &region.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplecms.NewNotFoundError(simplecms.EntityRegion, id)
		}
		return nil, handlePostgresError("get region", err)
	}
	return &region, nil
}

func (q *queries) SaveRegion(ctx context.Context, region *simplecms.Region) error {
	if region.Version == 0 {
		region.Version = 1
	}
	query := `
		INSERT INTO regions (id, region_identifier, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			region_identifier = EXCLUDED.region_identifier,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at`

	_, err := q.db.Exec(ctx, query,
		region.ID, region.RegionIdentifier, region.Version, region.CreatedAt, region.UpdatedAt)
	if err != nil {
		return handlePostgresError("save region", err)
	}
	return nil
}

// Content operations

func scanContent(row pgx.Row) (*simplecms.Content, error) {
	var c simplecms.Content
	var kind, status string
	err := row.Scan(&c.ID, &kind, &c.Name, &c.PreviewURL, &c.PublishedOn, &c.PublishedByUser,
		&status, &c.Version, &c.OriginalID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Kind = simplecms.ContentKind(kind)
	c.Status = simplecms.ContentStatus(status)
	return &c, nil
}

func (q *queries) GetContent(ctx context.Context, id uuid.UUID, opts ...simplecms.FetchOption) (*simplecms.Content, error) {
	query := `SELECT ` + contentColumns + ` FROM contents WHERE id = $1`

	content, err := scanContent(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplecms.NewNotFoundError(simplecms.EntityContent, id)
		}
		return nil, handlePostgresError("get content", err)
	}

	fetch := simplecms.ResolveFetchOptions(opts...)
	if fetch.Options {
		if content.ContentOptions, err = q.getContentOptions(ctx, id); err != nil {
			return nil, err
		}
	}
	if fetch.Regions {
		if content.ContentRegions, err = q.getContentRegions(ctx, id); err != nil {
			return nil, err
		}
	}
	if fetch.ChildContents {
		if content.ChildContents, err = q.getChildContents(ctx, id); err != nil {
			return nil, err
		}
		content.ChildContentsLoaded = true
	}
	if fetch.History {
		if content.History, err = q.getHistory(ctx, id); err != nil {
			return nil, err
		}
	}
	return content, nil
}

func (q *queries) getContentOptions(ctx context.Context, contentID uuid.UUID) ([]*simplecms.ContentOption, error) {
	query := `
		SELECT id, content_id, key, type, default_value, is_deletable
		FROM content_options WHERE content_id = $1 ORDER BY position, key`

	rows, err := q.db.Query(ctx, query, contentID)
	if err != nil {
		return nil, handlePostgresError("get content options", err)
	}
	defer rows.Close()

	options := []*simplecms.ContentOption{}
	for rows.Next() {
		var o simplecms.ContentOption
		var optionType string
		if err := rows.Scan(&o.ID, &o.ContentID, &o.Key, &optionType, &o.DefaultValue, &o.IsDeletable); err != nil {
			return nil, handlePostgresError("scan content option", err)
		}
		o.Type = simplecms.OptionType(optionType)
		options = append(options, &o)
	}
	return options, rows.Err()
}

func (q *queries) getContentRegions(ctx context.Context, contentID uuid.UUID) ([]*simplecms.ContentRegion, error) {
	query := `
		SELECT cr.id, cr.content_id, cr.region_id,
		       r.region_identifier, r.version, r.created_at, r.updated_at
		FROM content_regions cr
		JOIN regions r ON r.id = cr.region_id
		WHERE cr.content_id = $1
		ORDER BY cr.position`

	rows, err := q.db.Query(ctx, query, contentID)
	if err != nil {
		return nil, handlePostgresError("get content regions", err)
	}
	defer rows.Close()

	regions := []*simplecms.ContentRegion{}
	for rows.Next() {
		cr := &simplecms.ContentRegion{Region: &simplecms.Region{}}
		if err := rows.Scan(&cr.ID, &cr.ContentID, &cr.RegionID,
			&cr.Region.RegionIdentifier, &cr.Region.Version, &cr.Region.CreatedAt, &cr.Region.UpdatedAt); err != nil {
			return nil, handlePostgresError("scan content region", err)
		}
		cr.Region.ID = cr.RegionID
		regions = append(regions, cr)
	}
	return regions, rows.Err()
}

func (q *queries) getChildContents(ctx context.Context, parentID uuid.UUID) ([]*simplecms.ChildContent, error) {
	query := `
		SELECT id, parent_id, child_id, assignment_identifier
		FROM child_contents WHERE parent_id = $1 ORDER BY position`

	rows, err := q.db.Query(ctx, query, parentID)
	if err != nil {
		return nil, handlePostgresError("get child contents", err)
	}

	children := []*simplecms.ChildContent{}
	byID := map[uuid.UUID]*simplecms.ChildContent{}
	for rows.Next() {
		child := &simplecms.ChildContent{Options: []*simplecms.ChildContentOption{}}
		if err := rows.Scan(&child.ID, &child.ParentID, &child.ChildID, &child.AssignmentIdentifier); err != nil {
			rows.Close()
			return nil, handlePostgresError("scan child content", err)
		}
		children = append(children, child)
		byID[child.ID] = child
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("get child contents", err)
	}
	if len(children) == 0 {
		return children, nil
	}

	optionQuery := `
		SELECT o.id, o.child_content_id, o.key, o.type, o.value, o.is_deletable
		FROM child_content_options o
		JOIN child_contents c ON c.id = o.child_content_id
		WHERE c.parent_id = $1
		ORDER BY o.position`

	optionRows, err := q.db.Query(ctx, optionQuery, parentID)
	if err != nil {
		return nil, handlePostgresError("get child content options", err)
	}
	defer optionRows.Close()

	for optionRows.Next() {
		var o simplecms.ChildContentOption
		var optionType string
		if err := optionRows.Scan(&o.ID, &o.ChildContentID, &o.Key, &optionType, &o.Value, &o.IsDeletable); err != nil {
			return nil, handlePostgresError("scan child content option", err)
		}
		o.Type = simplecms.OptionType(optionType)
		if child, ok := byID[o.ChildContentID]; ok {
			child.Options = append(child.Options, &o)
		}
	}
	return children, optionRows.Err()
}

func (q *queries) getHistory(ctx context.Context, originalID uuid.UUID) ([]*simplecms.Content, error) {
	query := `SELECT ` + contentColumns + ` FROM contents WHERE original_id = $1 ORDER BY created_at`

	rows, err := q.db.Query(ctx, query, originalID)
	if err != nil {
		return nil, handlePostgresError("get content history", err)
	}
	defer rows.Close()

	history := []*simplecms.Content{}
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, handlePostgresError("scan content history", err)
		}
		history = append(history, item)
	}
	return history, rows.Err()
}

// SaveContent must run inside a transaction.
func (q *queries) SaveContent(ctx context.Context, content *simplecms.Content) error {
	updateQuery := `
		UPDATE contents SET
			kind = $2, name = $3, preview_url = $4, published_on = $5,
			published_by_user = $6, status = $7, original_id = $8, updated_at = $9,
			version = version + 1
		WHERE id = $1 AND version = $10
		RETURNING version`

	var version int
	err := q.db.QueryRow(ctx, updateQuery,
		content.ID, string(content.Kind), content.Name, content.PreviewURL, content.PublishedOn,
		content.PublishedByUser, string(content.Status), content.OriginalID, content.UpdatedAt,
		content.Version).Scan(&version)

	switch {
	case err == nil:
		content.Version = version
	case errors.Is(err, pgx.ErrNoRows):
		var stored int
		lookupErr := q.db.QueryRow(ctx, `SELECT version FROM contents WHERE id = $1`, content.ID).Scan(&stored)
		if lookupErr == nil {
			return fmt.Errorf("%w: content %s stored version %d, given %d",
				simplecms.ErrVersionMismatch, content.ID, stored, content.Version)
		}
		if !errors.Is(lookupErr, pgx.ErrNoRows) {
			return handlePostgresError("save content", lookupErr)
		}
		if err := q.insertContent(ctx, content); err != nil {
			return err
		}
	default:
		return handlePostgresError("save content", err)
	}

	return q.replaceContentCollections(ctx, content)
}

func (q *queries) insertContent(ctx context.Context, content *simplecms.Content) error {
	if content.Version == 0 {
		content.Version = 1
	}
	query := `
		INSERT INTO contents (` + contentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := q.db.Exec(ctx, query,
		content.ID, string(content.Kind), content.Name, content.PreviewURL, content.PublishedOn,
		content.PublishedByUser, string(content.Status), content.Version, content.OriginalID,
		content.CreatedAt, content.UpdatedAt)
	if err != nil {
		return handlePostgresError("insert content", err)
	}
	return nil
}

// replaceContentCollections rewrites every non-nil collection of content.
func (q *queries) replaceContentCollections(ctx context.Context, content *simplecms.Content) error {
	if content.ContentOptions != nil {
		if _, err := q.db.Exec(ctx, `DELETE FROM content_options WHERE content_id = $1`, content.ID); err != nil {
			return handlePostgresError("delete content options", err)
		}
		for i, o := range content.ContentOptions {
			_, err := q.db.Exec(ctx, `
				INSERT INTO content_options (id, content_id, key, type, default_value, is_deletable, position)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				o.ID, content.ID, o.Key, string(o.Type), o.DefaultValue, o.IsDeletable, i)
			if err != nil {
				return handlePostgresError("insert content option", err)
			}
		}
	}

	if content.ContentRegions != nil {
		if _, err := q.db.Exec(ctx, `DELETE FROM content_regions WHERE content_id = $1`, content.ID); err != nil {
			return handlePostgresError("delete content regions", err)
		}
		for i, cr := range content.ContentRegions {
			_, err := q.db.Exec(ctx, `
				INSERT INTO content_regions (id, content_id, region_id, position)
				VALUES ($1, $2, $3, $4)`,
				cr.ID, content.ID, cr.RegionID, i)
			if err != nil {
				return handlePostgresError("insert content region", err)
			}
		}
	}

	if content.ChildContents != nil {
		if _, err := q.db.Exec(ctx, `DELETE FROM child_contents WHERE parent_id = $1`, content.ID); err != nil {
			return handlePostgresError("delete child contents", err)
		}
		for i, child := range content.ChildContents {
			_, err := q.db.Exec(ctx, `
				INSERT INTO child_contents (id, parent_id, child_id, assignment_identifier, position)
				VALUES ($1, $2, $3, $4, $5)`,
				child.ID, content.ID, child.ChildID, child.AssignmentIdentifier, i)
			if err != nil {
				return handlePostgresError("insert child content", err)
			}
			for j, o := range child.Options {
				_, err := q.db.Exec(ctx, `
					INSERT INTO child_content_options (id, child_content_id, key, type, value, is_deletable, position)
					VALUES ($1, $2, $3, $4, $5, $6, $7)`,
					o.ID, child.ID, o.Key, string(o.Type), o.Value, o.IsDeletable, j)
				if err != nil {
					return handlePostgresError("insert child content option", err)
				}
			}
		}
	}
	return nil
}

// Placement operations

func scanPageContent(row pgx.Row) (*simplecms.PageContent, error) {
	var pc simplecms.PageContent
	err := row.Scan(&pc.ID, &pc.PageID, &pc.RegionID, &pc.ContentID, &pc.ParentID,
		&pc.Order, &pc.Version, &pc.CreatedAt, &pc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &pc, nil
}

func (q *queries) GetPageContent(ctx context.Context, id uuid.UUID) (*simplecms.PageContent, error) {
	query := `SELECT ` + pageContentColumns + ` FROM page_contents WHERE id = $1`

	pc, err := scanPageContent(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplecms.NewNotFoundError(simplecms.EntityPageContent, id)
		}
		return nil, handlePostgresError("get page content", err)
	}
	return pc, nil
}

func (q *queries) ListPageContents(ctx context.Context, filter simplecms.PageContentFilter) ([]*simplecms.PageContent, error) {
	conditions := []string{"page_id = $1"}
	args := []interface{}{filter.PageID}
	add := func(column string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if filter.RegionID != nil {
		add("region_id", *filter.RegionID)
	}
	if filter.ContentID != nil {
		add("content_id", *filter.ContentID)
	}
	if filter.TopLevelOnly {
		conditions = append(conditions, "parent_id IS NULL")
	} else if filter.ParentID != nil {
		add("parent_id", *filter.ParentID)
	}

	query := `SELECT ` + pageContentColumns + ` FROM page_contents WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY sort_order, created_at`

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, handlePostgresError("list page contents", err)
	}
	defer rows.Close()

	result := []*simplecms.PageContent{}
	for rows.Next() {
		pc, err := scanPageContent(rows)
		if err != nil {
			return nil, handlePostgresError("scan page content", err)
		}
		result = append(result, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list page contents", err)
	}
	return result, nil
}

func (q *queries) SavePageContent(ctx context.Context, pc *simplecms.PageContent) error {
	if pc.Version == 0 {
		pc.Version = 1
	}
	query := `INSERT INTO page_contents (` + pageContentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := q.db.Exec(ctx, query,
		pc.ID, pc.PageID, pc.RegionID, pc.ContentID, pc.ParentID,
		pc.Order, pc.Version, pc.CreatedAt, pc.UpdatedAt)
	if err != nil {
		return handlePostgresError("save page content", err)
	}
	return nil
}
