package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type scanner interface {
	Scan(dest ...interface{}) error
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
	row := q.db.QueryRowContext(ctx, `
		SELECT id, title, page_url, version, created_at, updated_at FROM pages WHERE id = ?`, id)

	var page simplecms.Page
	if err := row.Scan(&page.ID, &page.Title, &page.PageURL, &page.Version, &page.CreatedAt, &page.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, simplecms.NewNotFoundError(simplecms.EntityPage, id)
		}
		return nil, handleSQLiteError("get page", err)
	}
	return &page, nil
}

func (q *queries) SavePage(ctx context.Context, page *simplecms.Page) error {
	if page.Version == 0 {
		page.Version = 1
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO pages (id, title, page_url, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			page_url = excluded.page_url,
			version = excluded.version,
			updated_at = excluded.updated_at
	`, page.ID, page.Title, page.PageURL, page.Version, page.CreatedAt, page.UpdatedAt)
	if err != nil {
		return handleSQLiteError("save page", err)
	}
	return nil
}

func (q *queries) GetRegion(ctx context.Context, id uuid.UUID) (*simplecms.Region, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, region_identifier, version, created_at, updated_at FROM regions WHERE id = ?`, id)

	var region simplecms.Region
	if err := row.Scan(&region.ID, &region.RegionIdentifier, &region.Version, &region.CreatedAt, &region.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, simplecms.NewNotFoundError(simplecms.EntityRegion, id)
		}
		return nil, handleSQLiteError("get region", err)
	}
	return &region, nil
}

func (q *queries) SaveRegion(ctx context.Context, region *simplecms.Region) error {
	if region.Version == 0 {
		region.Version = 1
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO regions (id, region_identifier, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			region_identifier = excluded.region_identifier,
			version = excluded.version,
			updated_at = excluded.updated_at
	`, region.ID, region.RegionIdentifier, region.Version, region.CreatedAt, region.UpdatedAt)
	if err != nil {
		return handleSQLiteError("save region", err)
	}
	return nil
}

// Content operations

func scanContent(row scanner) (*simplecms.Content, error) {
	var c simplecms.Content
	var kind, status string
	var publishedOn sql.NullTime
	var originalID uuid.NullUUID
	if err := row.Scan(&c.ID, &kind, &c.Name, &c.PreviewURL, &publishedOn, &c.PublishedByUser,
		&status, &c.Version, &originalID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Kind = simplecms.ContentKind(kind)
	c.Status = simplecms.ContentStatus(status)
	if publishedOn.Valid {
		t := publishedOn.Time
		c.PublishedOn = &t
	}
	if originalID.Valid {
		id := originalID.UUID
		c.OriginalID = &id
	}
	return &c, nil
}

func (q *queries) GetContent(ctx context.Context, id uuid.UUID, opts ...simplecms.FetchOption) (*simplecms.Content, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+contentColumns+` FROM contents WHERE id = ?`, id)

	content, err := scanContent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, simplecms.NewNotFoundError(simplecms.EntityContent, id)
		}
		return nil, handleSQLiteError("get content", err)
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
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, content_id, key, type, default_value, is_deletable
		FROM content_options WHERE content_id = ? ORDER BY position, key`, contentID)
	if err != nil {
		return nil, handleSQLiteError("get content options", err)
	}
	defer rows.Close()

	options := []*simplecms.ContentOption{}
	for rows.Next() {
		var o simplecms.ContentOption
		var optionType string
		if err := rows.Scan(&o.ID, &o.ContentID, &o.Key, &optionType, &o.DefaultValue, &o.IsDeletable); err != nil {
			return nil, handleSQLiteError("scan content option", err)
		}
		o.Type = simplecms.OptionType(optionType)
		options = append(options, &o)
	}
	return options, rows.Err()
}

func (q *queries) getContentRegions(ctx context.Context, contentID uuid.UUID) ([]*simplecms.ContentRegion, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT cr.id, cr.content_id, cr.region_id,
		       r.region_identifier, r.version, r.created_at, r.updated_at
		FROM content_regions cr
		JOIN regions r ON r.id = cr.region_id
		WHERE cr.content_id = ?
		ORDER BY cr.position`, contentID)
	if err != nil {
		return nil, handleSQLiteError("get content regions", err)
	}
	defer rows.Close()

	regions := []*simplecms.ContentRegion{}
	for rows.Next() {
		cr := &simplecms.ContentRegion{Region: &simplecms.Region{}}
		if err := rows.Scan(&cr.ID, &cr.ContentID, &cr.RegionID,
			&cr.Region.RegionIdentifier, &cr.Region.Version, &cr.Region.CreatedAt, &cr.Region.UpdatedAt); err != nil {
			return nil, handleSQLiteError("scan content region", err)
		}
		cr.Region.ID = cr.RegionID
		regions = append(regions, cr)
	}
	return regions, rows.Err()
}

func (q *queries) getChildContents(ctx context.Context, parentID uuid.UUID) ([]*simplecms.ChildContent, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, parent_id, child_id, assignment_identifier
		FROM child_contents WHERE parent_id = ? ORDER BY position`, parentID)
	if err != nil {
		return nil, handleSQLiteError("get child contents", err)
	}

	children := []*simplecms.ChildContent{}
	byID := map[uuid.UUID]*simplecms.ChildContent{}
	for rows.Next() {
		child := &simplecms.ChildContent{Options: []*simplecms.ChildContentOption{}}
		if err := rows.Scan(&child.ID, &child.ParentID, &child.ChildID, &child.AssignmentIdentifier); err != nil {
			rows.Close()
			return nil, handleSQLiteError("scan child content", err)
		}
		children = append(children, child)
		byID[child.ID] = child
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, handleSQLiteError("get child contents", err)
	}
	if len(children) == 0 {
		return children, nil
	}

	optionRows, err := q.db.QueryContext(ctx, `
		SELECT o.id, o.child_content_id, o.key, o.type, o.value, o.is_deletable
		FROM child_content_options o
		JOIN child_contents c ON c.id = o.child_content_id
		WHERE c.parent_id = ?
		ORDER BY o.position`, parentID)
	if err != nil {
		return nil, handleSQLiteError("get child content options", err)
	}
	defer optionRows.Close()

	for optionRows.Next() {
		var o simplecms.ChildContentOption
		var optionType string
		if err := optionRows.Scan(&o.ID, &o.ChildContentID, &o.Key, &optionType, &o.Value, &o.IsDeletable); err != nil {
			return nil, handleSQLiteError("scan child content option", err)
		}
		o.Type = simplecms.OptionType(optionType)
		if child, ok := byID[o.ChildContentID]; ok {
			child.Options = append(child.Options, &o)
		}
	}
	return children, optionRows.Err()
}

func (q *queries) getHistory(ctx context.Context, originalID uuid.UUID) ([]*simplecms.Content, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+contentColumns+` FROM contents WHERE original_id = ? ORDER BY created_at`, originalID)
	if err != nil {
		return nil, handleSQLiteError("get content history", err)
	}
	defer rows.Close()

	history := []*simplecms.Content{}
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, handleSQLiteError("scan content history", err)
		}
		history = append(history, item)
	}
	return history, rows.Err()
}

// SaveContent must run inside a transaction.
func (q *queries) SaveContent(ctx context.Context, content *simplecms.Content) error {
	var version int
	err := q.db.QueryRowContext(ctx, `
		UPDATE contents SET
			kind = ?, name = ?, preview_url = ?, published_on = ?,
			published_by_user = ?, status = ?, original_id = ?, updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?
		RETURNING version`,
		string(content.Kind), content.Name, content.PreviewURL, content.PublishedOn,
		content.PublishedByUser, string(content.Status), content.OriginalID, content.UpdatedAt,
		content.ID, content.Version).Scan(&version)

	switch {
	case err == nil:
		content.Version = version
	case errors.Is(err, sql.ErrNoRows):
		var stored int
		lookupErr := q.db.QueryRowContext(ctx, `SELECT version FROM contents WHERE id = ?`, content.ID).Scan(&stored)
		if lookupErr == nil {
			return fmt.Errorf("%w: content %s stored version %d, given %d",
				simplecms.ErrVersionMismatch, content.ID, stored, content.Version)
		}
		if !errors.Is(lookupErr, sql.ErrNoRows) {
			return handleSQLiteError("save content", lookupErr)
		}
		if err := q.insertContent(ctx, content); err != nil {
			return err
		}
	default:
		return handleSQLiteError("save content", err)
	}

	return q.replaceContentCollections(ctx, content)
}

func (q *queries) insertContent(ctx context.Context, content *simplecms.Content) error {
	if content.Version == 0 {
		content.Version = 1
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO contents (`+contentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		content.ID, string(content.Kind), content.Name, content.PreviewURL, content.PublishedOn,
		content.PublishedByUser, string(content.Status), content.Version, content.OriginalID,
		content.CreatedAt, content.UpdatedAt)
	if err != nil {
		return handleSQLiteError("insert content", err)
	}
	return nil
}

// replaceContentCollections rewrites every non-nil collection of content.
func (q *queries) replaceContentCollections(ctx context.Context, content *simplecms.Content) error {
	if content.ContentOptions != nil {
		if _, err := q.db.ExecContext(ctx, `DELETE FROM content_options WHERE content_id = ?`, content.ID); err != nil {
			return handleSQLiteError("delete content options", err)
		}
		for i, o := range content.ContentOptions {
			_, err := q.db.ExecContext(ctx, `
				INSERT INTO content_options (id, content_id, key, type, default_value, is_deletable, position)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				o.ID, content.ID, o.Key, string(o.Type), o.DefaultValue, o.IsDeletable, i)
			if err != nil {
				return handleSQLiteError("insert content option", err)
			}
		}
	}

	if content.ContentRegions != nil {
		if _, err := q.db.ExecContext(ctx, `DELETE FROM content_regions WHERE content_id = ?`, content.ID); err != nil {
			return handleSQLiteError("delete content regions", err)
		}
		for i, cr := range content.ContentRegions {
			_, err := q.db.ExecContext(ctx, `
				INSERT INTO content_regions (id, content_id, region_id, position) VALUES (?, ?, ?, ?)`,
				cr.ID, content.ID, cr.RegionID, i)
			if err != nil {
				return handleSQLiteError("insert content region", err)
			}
		}
	}

	if content.ChildContents != nil {
		if _, err := q.db.ExecContext(ctx, `DELETE FROM child_contents WHERE parent_id = ?`, content.ID); err != nil {
			return handleSQLiteError("delete child contents", err)
		}
		for i, child := range content.ChildContents {
			_, err := q.db.ExecContext(ctx, `
				INSERT INTO child_contents (id, parent_id, child_id, assignment_identifier, position)
				VALUES (?, ?, ?, ?, ?)`,
				child.ID, content.ID, child.ChildID, child.AssignmentIdentifier, i)
			if err != nil {
				return handleSQLiteError("insert child content", err)
			}
			for j, o := range child.Options {
				_, err := q.db.ExecContext(ctx, `
					INSERT INTO child_content_options (id, child_content_id, key, type, value, is_deletable, position)
					VALUES (?, ?, ?, ?, ?, ?, ?)`,
					o.ID, child.ID, o.Key, string(o.Type), o.Value, o.IsDeletable, j)
				if err != nil {
					return handleSQLiteError("insert child content option", err)
				}
			}
		}
	}
	return nil
}

// Placement operations

func scanPageContent(row scanner) (*simplecms.PageContent, error) {
	var pc simplecms.PageContent
	var parentID uuid.NullUUID
	if err := row.Scan(&pc.ID, &pc.PageID, &pc.RegionID, &pc.ContentID, &parentID,
		&pc.Order, &pc.Version, &pc.CreatedAt, &pc.UpdatedAt); err != nil {
		return nil, err
	}
	if parentID.Valid {
		id := parentID.UUID
		pc.ParentID = &id
	}
	return &pc, nil
}

func (q *queries) GetPageContent(ctx context.Context, id uuid.UUID) (*simplecms.PageContent, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+pageContentColumns+` FROM page_contents WHERE id = ?`, id)

	pc, err := scanPageContent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, simplecms.NewNotFoundError(simplecms.EntityPageContent, id)
		}
		return nil, handleSQLiteError("get page content", err)
	}
	return pc, nil
}

func (q *queries) ListPageContents(ctx context.Context, filter simplecms.PageContentFilter) ([]*simplecms.PageContent, error) {
	conditions := []string{"page_id = ?"}
	args := []interface{}{filter.PageID}

	if filter.RegionID != nil {
		conditions = append(conditions, "region_id = ?")
		args = append(args, *filter.RegionID)
	}
	if filter.ContentID != nil {
		conditions = append(conditions, "content_id = ?")
		args = append(args, *filter.ContentID)
	}
	if filter.TopLevelOnly {
		conditions = append(conditions, "parent_id IS NULL")
	} else if filter.ParentID != nil {
		conditions = append(conditions, "parent_id = ?")
		args = append(args, *filter.ParentID)
	}

	rows, err := q.db.QueryContext(ctx, `SELECT `+pageContentColumns+` FROM page_contents WHERE `+
		strings.Join(conditions, " AND ")+` ORDER BY sort_order, created_at`, args...)
	if err != nil {
		return nil, handleSQLiteError("list page contents", err)
	}
	defer rows.Close()

	result := []*simplecms.PageContent{}
	for rows.Next() {
		pc, err := scanPageContent(rows)
		if err != nil {
			return nil, handleSQLiteError("scan page content", err)
		}
		result = append(result, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, handleSQLiteError("list page contents", err)
	}
	return result, nil
}

func (q *queries) SavePageContent(ctx context.Context, pc *simplecms.PageContent) error {
	if pc.Version == 0 {
		pc.Version = 1
	}
	_, err := q.db.ExecContext(ctx, `INSERT INTO page_contents (`+pageContentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pc.ID, pc.PageID, pc.RegionID, pc.ContentID, pc.ParentID,
		pc.Order, pc.Version, pc.CreatedAt, pc.UpdatedAt)
	if err != nil {
		return handleSQLiteError("save page content", err)
	}
	return nil
}
