package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/subjectboard/server/internal/audit"
	"github.com/subjectboard/server/internal/domain/ids"
	"github.com/subjectboard/server/internal/metrics"
	"github.com/subjectboard/server/internal/sanitize"
	"github.com/subjectboard/server/internal/validation"
)

const tracerName = "github.com/subjectboard/server/internal/domain/content"

// Auditor records successful mutations. Implementations must not block.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Broadcaster fans events out to connected viewers. Implementations must not
// block and never report delivery failures.
type Broadcaster interface {
	Publish(event string, payload any)
}

// Service applies content mutations and emits their audit entries and
// realtime events. Audit and broadcast happen only after the store write
// succeeded.
type Service struct {
	repo        Repository
	auditor     Auditor
	broadcaster Broadcaster
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

func NewService(repo Repository, auditor Auditor, broadcaster Broadcaster, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		auditor:     auditor,
		broadcaster: broadcaster,
		logger:      logger.With().Str("component", "content").Logger(),
		tracer:      otel.Tracer(tracerName),
		now:         time.Now,
	}
}

func (s *Service) CreateLink(ctx context.Context, req CreateLinkRequest) (*Item, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	item := Item{
		ParentGroup: ids.Normalize(req.ParentGroup),
		Placement:   placementOf(req.Placement),
		Type:        TypeLink,
		Link: &Link{
			DisplayText: sanitize.Text(req.DisplayText),
			Link:        validation.NormalizeLink(req.Link),
		},
	}
	return s.create(ctx, item, req.Fingerprint, req.IdempotencyKey,
		func() string {
			return requestHash(TypeLink, req.ParentGroup, item.Placement, req.DisplayText, req.Link)
		})
}

func (s *Service) CreateText(ctx context.Context, req CreateTextRequest) (*Item, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	item := Item{
		ParentGroup: ids.Normalize(req.ParentGroup),
		Placement:   placementOf(req.Placement),
		Type:        TypeText,
		Text: &Text{
			Title: sanitize.Text(req.Title),
			Text:  sanitize.HTML(req.Text),
		},
	}
	return s.create(ctx, item, req.Fingerprint, req.IdempotencyKey,
		func() string { return requestHash(TypeText, req.ParentGroup, item.Placement, req.Title, req.Text) })
}

func (s *Service) CreateDeadline(ctx context.Context, req CreateDeadlineRequest) (*Item, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	deadline, err := ParseTimestamp(req.Deadline, now)
	if err != nil {
		return nil, validation.Field("deadline", "must be a valid date")
	}
	start := now
	if strings.TrimSpace(req.Start) != "" {
		start, err = ParseTimestamp(req.Start, now)
		if err != nil {
			return nil, validation.Field("start", "must be a valid date")
		}
	}
	item := Item{
		ParentGroup: ids.Normalize(req.ParentGroup),
		Placement:   placementOf(req.Placement),
		Type:        TypeDeadline,
		Deadline: &Deadline{
			DisplayText: sanitize.Text(req.DisplayText),
			Deadline:    deadline,
			Start:       start,
		},
	}
	return s.create(ctx, item, req.Fingerprint, req.IdempotencyKey,
		func() string {
			return requestHash(TypeDeadline, req.ParentGroup, item.Placement, req.DisplayText, req.Deadline, req.Start)
		})
}

// create appends item. With an idempotency key the append and the key record
// commit together, and a repeated key with the same request returns the
// stored item without a second audit entry or event.
func (s *Service) create(ctx context.Context, item Item, fingerprint, idempotencyKey string, hash func() string) (*Item, error) {
	ctx, span := s.tracer.Start(ctx, "content.create", trace.WithAttributes(
		attribute.String("content.type", string(item.Type)),
		attribute.String("content.parent", item.ParentGroup),
	))
	defer span.End()

	var requestHash string
	if idempotencyKey != "" {
		requestHash = hash()
		replayed, err := s.replay(ctx, idempotencyKey, requestHash)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		if replayed != nil {
			span.SetAttributes(attribute.Bool("content.replayed", true))
			return replayed, nil
		}
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}
	now := s.now().UTC()
	item.ID = id
	item.CreatedAt = now
	item.UpdatedAt = now

	if idempotencyKey == "" {
		err = s.repo.AppendItem(ctx, item)
	} else {
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
			if err := tx.AppendItem(ctx, item); err != nil {
				return err
			}
			return tx.InsertIdempotencyKey(ctx, IdempotencyRecord{
				Key:         idempotencyKey,
				RequestHash: requestHash,
				ParentGroup: item.ParentGroup,
				ContentID:   item.ID,
				CreatedAt:   now,
				ExpiresAt:   now.Add(IdempotencyTTL),
			})
		})
	}
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("append %s: %w", item.Type, err)
	}

	fields := item.Fields()
	s.record(ctx, audit.Entry{
		Operation:   audit.OperationCreate,
		ContentType: string(item.Type),
		ContentID:   item.ID,
		ParentGroup: item.ParentGroup,
		OldValues:   make([]string, len(fields)),
		NewValues:   fields,
		Fingerprint: fingerprint,
	})
	s.publish(EventNewElement, elementEvent(item, true))
	metrics.ContentMutationsTotal.WithLabelValues(string(audit.OperationCreate), string(item.Type)).Inc()

	return &item, nil
}

func (s *Service) UpdateLink(ctx context.Context, req UpdateLinkRequest) (*Item, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	return s.update(ctx, req.ParentGroup, req.ID, TypeLink, req.Fingerprint, func(it *Item) {
		if req.DisplayText != nil {
			it.Link.DisplayText = sanitize.Text(cleared(*req.DisplayText))
		}
		if req.Link != nil {
			it.Link.Link = validation.NormalizeLink(cleared(*req.Link))
		}
	})
}

func (s *Service) UpdateText(ctx context.Context, req UpdateTextRequest) (*Item, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	return s.update(ctx, req.ParentGroup, req.ID, TypeText, req.Fingerprint, func(it *Item) {
		if req.Title != nil {
			it.Text.Title = sanitize.Text(cleared(*req.Title))
		}
		if req.Text != nil {
			it.Text.Text = sanitize.HTML(cleared(*req.Text))
		}
	})
}

// UpdateDeadline merges a partial deadline update. The deadline itself cannot
// be cleared; clearing start resets it to the current time.
func (s *Service) UpdateDeadline(ctx context.Context, req UpdateDeadlineRequest) (*Item, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	now := s.now().UTC()

	var deadline, start *time.Time
	if req.Deadline != nil {
		if isClear(*req.Deadline) {
			return nil, validation.Field("deadline", "cannot be cleared")
		}
		t, err := ParseTimestamp(*req.Deadline, now)
		if err != nil {
			return nil, validation.Field("deadline", "must be a valid date")
		}
		deadline = &t
	}
	if req.Start != nil {
		t := now
		if !isClear(*req.Start) {
			parsed, err := ParseTimestamp(*req.Start, now)
			if err != nil {
				return nil, validation.Field("start", "must be a valid date")
			}
			t = parsed
		}
		start = &t
	}

	return s.update(ctx, req.ParentGroup, req.ID, TypeDeadline, req.Fingerprint, func(it *Item) {
		if req.DisplayText != nil {
			it.Deadline.DisplayText = sanitize.Text(cleared(*req.DisplayText))
		}
		if deadline != nil {
			it.Deadline.Deadline = *deadline
		}
		if start != nil {
			it.Deadline.Start = *start
		}
	})
}

// update reads the stored item, applies merge and writes it back. The read and
// the write are separate round trips; a concurrent writer in between wins or
// loses silently.
func (s *Service) update(ctx context.Context, parentGroup, id string, kind Type, fingerprint string, merge func(*Item)) (*Item, error) {
	ctx, span := s.tracer.Start(ctx, "content.update", trace.WithAttributes(
		attribute.String("content.type", string(kind)),
		attribute.String("content.id", id),
	))
	defer span.End()

	parentGroup = ids.Normalize(parentGroup)
	id = ids.Normalize(id)

	existing, err := s.repo.GetItem(ctx, parentGroup, id)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("load %s: %w", kind, err)
	}
	if existing.Type != kind {
		return nil, fmt.Errorf("load %s: item is a %s: %w", kind, existing.Type, ErrContentNotFound)
	}

	updated := existing.Clone()
	merge(&updated)
	updated.UpdatedAt = s.now().UTC()

	if err := s.repo.ReplaceItem(ctx, updated); err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("write %s: %w", kind, err)
	}

	s.record(ctx, audit.Entry{
		Operation:   audit.OperationUpdate,
		ContentType: string(kind),
		ContentID:   updated.ID,
		ParentGroup: updated.ParentGroup,
		OldValues:   existing.Fields(),
		NewValues:   updated.Fields(),
		Fingerprint: fingerprint,
	})
	s.publish(EventUpdateElement, elementEvent(updated, false))
	metrics.ContentMutationsTotal.WithLabelValues(string(audit.OperationUpdate), string(kind)).Inc()

	return &updated, nil
}

// Delete removes one item from its parent. Deleting a group reference deletes
// the referenced group and everything below it.
func (s *Service) Delete(ctx context.Context, req ItemRequest) error {
	if err := validation.Struct(req); err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, "content.delete", trace.WithAttributes(
		attribute.String("content.id", req.ID),
	))
	defer span.End()

	parentGroup := ids.Normalize(req.ParentGroupID)
	id := ids.Normalize(req.ID)

	existing, err := s.repo.GetItem(ctx, parentGroup, id)
	if err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("load item: %w", err)
	}

	if existing.Type == TypeGroup {
		err = s.repo.DeleteGroup(ctx, id)
	} else {
		err = s.repo.RemoveItem(ctx, parentGroup, id)
	}
	if err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("remove %s: %w", existing.Type, err)
	}

	s.recordDelete(ctx, *existing, req.Fingerprint)
	return nil
}

// Read returns one item of a group.
func (s *Service) Read(ctx context.Context, req ItemRequest) (*Item, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	item, err := s.repo.GetItem(ctx, ids.Normalize(req.ParentGroupID), ids.Normalize(req.ID))
	if err != nil {
		return nil, fmt.Errorf("read item: %w", err)
	}
	return item, nil
}

func (s *Service) recordDelete(ctx context.Context, existing Item, fingerprint string) {
	fields := existing.Fields()
	s.record(ctx, audit.Entry{
		Operation:   audit.OperationDelete,
		ContentType: string(existing.Type),
		ContentID:   existing.ID,
		ParentGroup: existing.ParentGroup,
		OldValues:   fields,
		NewValues:   make([]string, len(fields)),
		Fingerprint: fingerprint,
	})
	s.publish(EventDeleteElement, DeleteEvent{
		Parent: existing.ParentGroup,
		ID:     existing.ID,
		Type:   existing.Type,
	})
	metrics.ContentMutationsTotal.WithLabelValues(string(audit.OperationDelete), string(existing.Type)).Inc()
}

func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, entry)
}

func (s *Service) publish(event string, payload any) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Publish(event, payload)
}

func placementOf(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func isClear(v string) bool {
	return strings.TrimSpace(v) == validation.ClearSentinel
}

// cleared maps the clear sentinel to the empty string.
func cleared(v string) string {
	if isClear(v) {
		return ""
	}
	return v
}

func recordSpanError(span trace.Span, err error) {
	if errors.Is(err, ErrGroupNotFound) || errors.Is(err, ErrContentNotFound) {
		span.SetAttributes(attribute.Bool("content.not_found", true))
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
