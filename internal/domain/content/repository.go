package content

import (
	"context"
	"time"
)

// Repository is the document store behind the content service.
//
// Lookups are scoped by parent group: an item id that exists under another
// group is reported as ErrContentNotFound.
type Repository interface {
	// AppendItem adds item to the end of its parent's content list.
	// Returns ErrGroupNotFound when the parent group does not exist.
	AppendItem(ctx context.Context, item Item) error
	GetItem(ctx context.Context, parentGroup, id string) (*Item, error)
	// ReplaceItem overwrites the payload of an item of the same type.
	ReplaceItem(ctx context.Context, item Item) error
	RemoveItem(ctx context.Context, parentGroup, id string) error

	// CreateGroup inserts a group. A non-empty ParentGroup must exist.
	CreateGroup(ctx context.Context, group Group) error
	GetGroup(ctx context.Context, id string) (*Group, error)
	ListRootGroups(ctx context.Context) ([]Group, error)
	RenameGroup(ctx context.Context, id, name string) (*Group, error)
	// DeleteGroup removes the group, its reference item in the parent and
	// everything nested below it.
	DeleteGroup(ctx context.Context, id string) error

	// GetIdempotencyKey returns the record for key unless it expired before
	// now. Returns ErrIdempotencyKeyNotFound otherwise.
	GetIdempotencyKey(ctx context.Context, key string, now time.Time) (*IdempotencyRecord, error)
	// InsertIdempotencyKey stores rec, replacing an expired record with the
	// same key. Returns ErrIdempotencyConflict when a live record exists.
	InsertIdempotencyKey(ctx context.Context, rec IdempotencyRecord) error
	DeleteExpiredIdempotencyKeys(ctx context.Context, now time.Time) (int64, error)

	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
