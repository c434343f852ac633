package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/subjectboard/server/internal/domain/content"
)

var _ content.Repository = (*ContentRepository)(nil)

// ContentRepository runs against q, which is the database itself or an
// open transaction when created by WithTx.
type ContentRepository struct {
	db *sql.DB
	q  DBTX
	tx bool
}

const itemSelect = `SELECT
	ci.id, ci.group_id, ci.placement, ci.kind,
	ci.display_text, ci.link_url, ci.title, ci.body,
	ci.deadline_at, ci.start_at, COALESCE(g.name, ''),
	ci.created_at, ci.updated_at
	FROM content_items ci
	LEFT JOIN groups g ON g.id = ci.child_group_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (content.Item, error) {
	var (
		item                 content.Item
		kind                 string
		displayText, linkURL string
		title, body          string
		deadlineAt, startAt  sql.NullString
		groupName            string
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&item.ID, &item.ParentGroup, &item.Placement, &kind,
		&displayText, &linkURL, &title, &body,
		&deadlineAt, &startAt, &groupName,
		&createdAt, &updatedAt,
	); err != nil {
		return content.Item{}, err
	}

	var err error
	if item.CreatedAt, err = parseTime(createdAt); err != nil {
		return content.Item{}, err
	}
	if item.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return content.Item{}, err
	}

	item.Type = content.Type(kind)
	switch item.Type {
	case content.TypeLink:
		item.Link = &content.Link{DisplayText: displayText, Link: linkURL}
	case content.TypeText:
		item.Text = &content.Text{Title: title, Text: body}
	case content.TypeDeadline:
		d := &content.Deadline{DisplayText: displayText}
		if d.Deadline, err = parseNullableTime(deadlineAt); err != nil {
			return content.Item{}, err
		}
		if d.Start, err = parseNullableTime(startAt); err != nil {
			return content.Item{}, err
		}
		item.Deadline = d
	case content.TypeGroup:
		item.Group = &content.GroupRef{Name: groupName}
	}
	return item, nil
}

type itemColumns struct {
	displayText, linkURL, title, body string
	deadlineAt, startAt, childGroup   any
}

func columnsOf(item content.Item) itemColumns {
	c := itemColumns{}
	switch item.Type {
	case content.TypeLink:
		if item.Link != nil {
			c.displayText, c.linkURL = item.Link.DisplayText, item.Link.Link
		}
	case content.TypeText:
		if item.Text != nil {
			c.title, c.body = item.Text.Title, item.Text.Text
		}
	case content.TypeDeadline:
		if item.Deadline != nil {
			c.displayText = item.Deadline.DisplayText
			c.deadlineAt = nullableTime(&item.Deadline.Deadline)
			c.startAt = nullableTime(&item.Deadline.Start)
		}
	case content.TypeGroup:
		c.childGroup = item.ID
	}
	return c
}

func (r *ContentRepository) AppendItem(ctx context.Context, item content.Item) (err error) {
	defer func(start time.Time) { observe("content.append_item", start, err) }(time.Now())

	c := columnsOf(item)
	_, err = r.q.ExecContext(ctx, `INSERT INTO content_items (
		id, group_id, placement, kind,
		display_text, link_url, title, body,
		deadline_at, start_at, child_group_id,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.ParentGroup, item.Placement, string(item.Type),
		c.displayText, c.linkURL, c.title, c.body,
		c.deadlineAt, c.startAt, c.childGroup,
		formatTime(item.CreatedAt), formatTime(item.UpdatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return content.ErrGroupNotFound
		}
		return fmt.Errorf("inserting content item: %w", err)
	}
	return nil
}

func (r *ContentRepository) GetItem(ctx context.Context, parentGroup, id string) (_ *content.Item, err error) {
	defer func(start time.Time) { observe("content.get_item", start, err) }(time.Now())

	item, err := scanItem(r.q.QueryRowContext(ctx, itemSelect+`
	WHERE ci.group_id = ? AND ci.id = ?`, parentGroup, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, content.ErrContentNotFound
		}
		return nil, fmt.Errorf("getting content item: %w", err)
	}
	return &item, nil
}

func (r *ContentRepository) ReplaceItem(ctx context.Context, item content.Item) (err error) {
	defer func(start time.Time) { observe("content.replace_item", start, err) }(time.Now())

	c := columnsOf(item)
	res, err := r.q.ExecContext(ctx, `UPDATE content_items
		SET display_text = ?, link_url = ?, title = ?, body = ?,
		    deadline_at = ?, start_at = ?, updated_at = ?
		WHERE group_id = ? AND id = ? AND kind = ?`,
		c.displayText, c.linkURL, c.title, c.body,
		c.deadlineAt, c.startAt, formatTime(item.UpdatedAt),
		item.ParentGroup, item.ID, string(item.Type),
	)
	if err != nil {
		return fmt.Errorf("updating content item: %w", err)
	}
	return requireAffected(res, content.ErrContentNotFound)
}

func (r *ContentRepository) RemoveItem(ctx context.Context, parentGroup, id string) (err error) {
	defer func(start time.Time) { observe("content.remove_item", start, err) }(time.Now())

	res, err := r.q.ExecContext(ctx, `DELETE FROM content_items WHERE group_id = ? AND id = ?`, parentGroup, id)
	if err != nil {
		return fmt.Errorf("deleting content item: %w", err)
	}
	return requireAffected(res, content.ErrContentNotFound)
}

func (r *ContentRepository) CreateGroup(ctx context.Context, group content.Group) (err error) {
	defer func(start time.Time) { observe("content.create_group", start, err) }(time.Now())

	var parent any
	if group.ParentGroup != "" {
		parent = group.ParentGroup
	}
	_, err = r.q.ExecContext(ctx, `INSERT INTO groups (id, name, parent_group_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		group.ID, group.Name, parent, formatTime(group.CreatedAt), formatTime(group.UpdatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return content.ErrGroupNotFound
		}
		return fmt.Errorf("inserting group: %w", err)
	}
	return nil
}

func (r *ContentRepository) GetGroup(ctx context.Context, id string) (_ *content.Group, err error) {
	defer func(start time.Time) { observe("content.get_group", start, err) }(time.Now())

	group, err := r.loadGroup(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := r.q.QueryContext(ctx, itemSelect+`
	WHERE ci.group_id = ?
	ORDER BY ci.placement, ci.id`, id)
	if err != nil {
		return nil, fmt.Errorf("listing group content: %w", err)
	}
	defer rows.Close()

	group.Content = []content.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning content item: %w", err)
		}
		group.Content = append(group.Content, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating group content: %w", err)
	}
	return group, nil
}

func (r *ContentRepository) ListRootGroups(ctx context.Context) (_ []content.Group, err error) {
	defer func(start time.Time) { observe("content.list_root_groups", start, err) }(time.Now())

	rows, err := r.q.QueryContext(ctx, `SELECT id, name, '', created_at, updated_at
		FROM groups WHERE parent_group_id IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing root groups: %w", err)
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
		return nil, fmt.Errorf("iterating root groups: %w", err)
	}
	return groups, nil
}

func (r *ContentRepository) RenameGroup(ctx context.Context, id, name string) (_ *content.Group, err error) {
	defer func(start time.Time) { observe("content.rename_group", start, err) }(time.Now())

	res, err := r.q.ExecContext(ctx, `UPDATE groups SET name = ?, updated_at = ? WHERE id = ?`,
		name, formatTime(time.Now()), id)
	if err != nil {
		return nil, fmt.Errorf("renaming group: %w", err)
	}
	if err := requireAffected(res, content.ErrGroupNotFound); err != nil {
		return nil, err
	}
	return r.loadGroup(ctx, id)
}

func (r *ContentRepository) DeleteGroup(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { observe("content.delete_group", start, err) }(time.Now())

	res, err := r.q.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting group: %w", err)
	}
	return requireAffected(res, content.ErrGroupNotFound)
}

func (r *ContentRepository) WithTx(ctx context.Context, fn func(context.Context, content.Repository) error) error {
	if r.tx {
		return fn(ctx, r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &ContentRepository{db: r.db, q: tx, tx: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (r *ContentRepository) loadGroup(ctx context.Context, id string) (*content.Group, error) {
	return scanGroup(r.q.QueryRowContext(ctx, `SELECT id, name, COALESCE(parent_group_id, ''), created_at, updated_at
		FROM groups WHERE id = ?`, id))
}

func scanGroup(row scanner) (*content.Group, error) {
	var (
		g                    content.Group
		createdAt, updatedAt string
	)
	if err := row.Scan(&g.ID, &g.Name, &g.ParentGroup, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, content.ErrGroupNotFound
		}
		return nil, fmt.Errorf("scanning group: %w", err)
	}
	var err error
	if g.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if g.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
