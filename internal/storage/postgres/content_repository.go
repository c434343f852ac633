package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/subjectboard/server/internal/domain/content"
)

var _ content.Repository = (*ContentRepository)(nil)

type ContentRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

const itemColumns = `
	ci.id, ci.group_id, ci.placement, ci.kind,
	ci.display_text, ci.link_url, ci.title, ci.body,
	ci.deadline_at, ci.start_at, COALESCE(g.name, ''),
	ci.created_at, ci.updated_at`

const itemFrom = `
	FROM content_items ci
	LEFT JOIN groups g ON g.id = ci.child_group_id`

type itemRow struct {
	ID          string
	GroupID     string
	Placement   int
	Kind        string
	DisplayText string
	LinkURL     string
	Title       string
	Body        string
	DeadlineAt  pgtype.Timestamptz
	StartAt     pgtype.Timestamptz
	GroupName   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r *itemRow) dest() []any {
	return []any{
		&r.ID, &r.GroupID, &r.Placement, &r.Kind,
		&r.DisplayText, &r.LinkURL, &r.Title, &r.Body,
		&r.DeadlineAt, &r.StartAt, &r.GroupName,
		&r.CreatedAt, &r.UpdatedAt,
	}
}

func (r itemRow) toItem() content.Item {
	item := content.Item{
		ID:          r.ID,
		ParentGroup: r.GroupID,
		Placement:   r.Placement,
		Type:        content.Type(r.Kind),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	switch item.Type {
	case content.TypeLink:
		item.Link = &content.Link{DisplayText: r.DisplayText, Link: r.LinkURL}
	case content.TypeText:
		item.Text = &content.Text{Title: r.Title, Text: r.Body}
	case content.TypeDeadline:
		d := &content.Deadline{DisplayText: r.DisplayText}
		if r.DeadlineAt.Valid {
			d.Deadline = r.DeadlineAt.Time.UTC()
		}
		if r.StartAt.Valid {
			d.Start = r.StartAt.Time.UTC()
		}
		item.Deadline = d
	case content.TypeGroup:
		item.Group = &content.GroupRef{Name: r.GroupName}
	}
	return item
}

// payloadColumns flattens the union into display_text, link_url, title,
// body, deadline_at, start_at, child_group_id.
func payloadColumns(item content.Item) (string, string, string, string, *time.Time, *time.Time, *string) {
	var displayText, linkURL, title, body string
	var deadlineAt, startAt *time.Time
	var childGroup *string
	switch item.Type {
	case content.TypeLink:
		if item.Link != nil {
			displayText, linkURL = item.Link.DisplayText, item.Link.Link
		}
	case content.TypeText:
		if item.Text != nil {
			title, body = item.Text.Title, item.Text.Text
		}
	case content.TypeDeadline:
		if item.Deadline != nil {
			displayText = item.Deadline.DisplayText
			deadline, start := item.Deadline.Deadline, item.Deadline.Start
			deadlineAt, startAt = &deadline, &start
		}
	case content.TypeGroup:
		id := item.ID
		childGroup = &id
	}
	return displayText, linkURL, title, body, deadlineAt, startAt, childGroup
}

func (r *ContentRepository) AppendItem(ctx context.Context, item content.Item) (err error) {
	defer func(start time.Time) { observe("content.append_item", start, err) }(time.Now())

	displayText, linkURL, title, body, deadlineAt, startAt, childGroup := payloadColumns(item)
	_, err = r.queryer().Exec(ctx, `
INSERT INTO content_items (
	id, group_id, placement, kind,
	display_text, link_url, title, body,
	deadline_at, start_at, child_group_id,
	created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		item.ID, item.ParentGroup, item.Placement, string(item.Type),
		displayText, linkURL, title, body,
		deadlineAt, startAt, childGroup,
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return content.ErrGroupNotFound
		}
		return fmt.Errorf("insert content item: %w", err)
	}
	return nil
}

func (r *ContentRepository) GetItem(ctx context.Context, parentGroup, id string) (_ *content.Item, err error) {
	defer func(start time.Time) { observe("content.get_item", start, err) }(time.Now())

	var row itemRow
	err = r.queryer().QueryRow(ctx, `SELECT`+itemColumns+itemFrom+`
	WHERE ci.group_id = $1 AND ci.id = $2`, parentGroup, id).Scan(row.dest()...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, content.ErrContentNotFound
		}
		return nil, fmt.Errorf("get content item: %w", err)
	}
	item := row.toItem()
	return &item, nil
}

func (r *ContentRepository) ReplaceItem(ctx context.Context, item content.Item) (err error) {
	defer func(start time.Time) { observe("content.replace_item", start, err) }(time.Now())

	displayText, linkURL, title, body, deadlineAt, startAt, _ := payloadColumns(item)
	tag, err := r.queryer().Exec(ctx, `
UPDATE content_items
   SET display_text = $4,
       link_url     = $5,
       title        = $6,
       body         = $7,
       deadline_at  = $8,
       start_at     = $9,
       updated_at   = $10
 WHERE group_id = $1 AND id = $2 AND kind = $3`,
		item.ParentGroup, item.ID, string(item.Type),
		displayText, linkURL, title, body, deadlineAt, startAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update content item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return content.ErrContentNotFound
	}
	return nil
}

func (r *ContentRepository) RemoveItem(ctx context.Context, parentGroup, id string) (err error) {
	defer func(start time.Time) { observe("content.remove_item", start, err) }(time.Now())

	tag, err := r.queryer().Exec(ctx, `DELETE FROM content_items WHERE group_id = $1 AND id = $2`, parentGroup, id)
	if err != nil {
		return fmt.Errorf("delete content item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return content.ErrContentNotFound
	}
	return nil
}

func (r *ContentRepository) CreateGroup(ctx context.Context, group content.Group) (err error) {
	defer func(start time.Time) { observe("content.create_group", start, err) }(time.Now())

	_, err = r.queryer().Exec(ctx, `
INSERT INTO groups (id, name, parent_group_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)`,
		group.ID, group.Name, nullIfEmpty(group.ParentGroup), group.CreatedAt, group.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return content.ErrGroupNotFound
		}
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

func (r *ContentRepository) GetGroup(ctx context.Context, id string) (_ *content.Group, err error) {
	defer func(start time.Time) { observe("content.get_group", start, err) }(time.Now())

	q := r.queryer()
	group, err := scanGroup(q.QueryRow(ctx, `
SELECT id, name, COALESCE(parent_group_id, ''), created_at, updated_at
  FROM groups
 WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `SELECT`+itemColumns+itemFrom+`
	WHERE ci.group_id = $1
	ORDER BY ci.placement, ci.id`, id)
	if err != nil {
		return nil, fmt.Errorf("list group content: %w", err)
	}
	defer rows.Close()

	group.Content = []content.Item{}
	for rows.Next() {
		var row itemRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		group.Content = append(group.Content, row.toItem())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group content: %w", err)
	}
	return group, nil
}

func (r *ContentRepository) ListRootGroups(ctx context.Context) (_ []content.Group, err error) {
	defer func(start time.Time) { observe("content.list_root_groups", start, err) }(time.Now())

	rows, err := r.queryer().Query(ctx, `
SELECT id, name, '', created_at, updated_at
  FROM groups
 WHERE parent_group_id IS NULL
 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list root groups: %w", err)
	}
	defer rows.Close()

	groups := []content.Group{}
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate root groups: %w", err)
	}
	return groups, nil
}

func (r *ContentRepository) RenameGroup(ctx context.Context, id, name string) (_ *content.Group, err error) {
	defer func(start time.Time) { observe("content.rename_group", start, err) }(time.Now())

	return scanGroup(r.queryer().QueryRow(ctx, `
UPDATE groups
   SET name = $2, updated_at = now()
 WHERE id = $1
RETURNING id, name, COALESCE(parent_group_id, ''), created_at, updated_at`, id, name))
}

// DeleteGroup relies on the ON DELETE CASCADE keys: sub-groups, their items
// and the reference item in the parent go with the row.
func (r *ContentRepository) DeleteGroup(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { observe("content.delete_group", start, err) }(time.Now())

	tag, err := r.queryer().Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return content.ErrGroupNotFound
	}
	return nil
}

func (r *ContentRepository) WithTx(ctx context.Context, fn func(context.Context, content.Repository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	wrapped := &ContentRepository{pool: r.pool, tx: tx}
	if err := fn(ctx, wrapped); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *ContentRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func scanGroup(row pgx.Row) (*content.Group, error) {
	var g content.Group
	if err := row.Scan(&g.ID, &g.Name, &g.ParentGroup, &g.CreatedAt, &g.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, content.ErrGroupNotFound
		}
		return nil, fmt.Errorf("scan group: %w", err)
	}
	g.CreatedAt = g.CreatedAt.UTC()
	g.UpdatedAt = g.UpdatedAt.UTC()
	return &g, nil
}
