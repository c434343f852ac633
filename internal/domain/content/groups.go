package content

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/subjectboard/server/internal/audit"
	"github.com/subjectboard/server/internal/domain/ids"
	"github.com/subjectboard/server/internal/metrics"
	"github.com/subjectboard/server/internal/sanitize"
	"github.com/subjectboard/server/internal/validation"
)

// CreateGroup creates a root group, or a sub-group together with the group
// reference item in its parent. The two writes of a sub-group share one
// transaction.
func (s *Service) CreateGroup(ctx context.Context, req CreateGroupRequest) (*Group, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	name := sanitize.Label(req.Name)
	if name == "" {
		return nil, validation.Field("name", "is not allowed to be empty")
	}

	ctx, span := s.tracer.Start(ctx, "content.create_group")
	defer span.End()

	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}
	now := s.now().UTC()
	group := Group{
		ID:          id,
		Name:        name,
		ParentGroup: ids.Normalize(req.ParentGroup),
		Content:     []Item{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	ref := Item{
		ID:          id,
		ParentGroup: group.ParentGroup,
		Placement:   placementOf(req.Placement),
		Type:        TypeGroup,
		Group:       &GroupRef{Name: name},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if group.ParentGroup == "" {
		err = s.repo.CreateGroup(ctx, group)
	} else {
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
			if err := tx.CreateGroup(ctx, group); err != nil {
				return err
			}
			return tx.AppendItem(ctx, ref)
		})
	}
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("create group: %w", err)
	}

	s.record(ctx, audit.Entry{
		Operation:   audit.OperationCreate,
		ContentType: string(TypeGroup),
		ContentID:   group.ID,
		ParentGroup: group.ParentGroup,
		OldValues:   []string{""},
		NewValues:   []string{name},
		Fingerprint: req.Fingerprint,
	})
	s.publish(EventNewElement, elementEvent(ref, true))
	metrics.ContentMutationsTotal.WithLabelValues(string(audit.OperationCreate), string(TypeGroup)).Inc()

	return &group, nil
}

func (s *Service) RenameGroup(ctx context.Context, req RenameGroupRequest) (*Group, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	name := sanitize.Label(req.Name)
	if name == "" {
		return nil, validation.Field("name", "is not allowed to be empty")
	}
	id := ids.Normalize(req.ID)

	ctx, span := s.tracer.Start(ctx, "content.rename_group", trace.WithAttributes(
		attribute.String("group.id", id),
	))
	defer span.End()

	existing, err := s.repo.GetGroup(ctx, id)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("load group: %w", err)
	}
	renamed, err := s.repo.RenameGroup(ctx, id, name)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("rename group: %w", err)
	}

	s.record(ctx, audit.Entry{
		Operation:   audit.OperationUpdate,
		ContentType: string(TypeGroup),
		ContentID:   id,
		ParentGroup: existing.ParentGroup,
		OldValues:   []string{existing.Name},
		NewValues:   []string{renamed.Name},
		Fingerprint: req.Fingerprint,
	})
	s.publish(EventUpdateElement, ElementEvent{
		Parent:   existing.ParentGroup,
		ID:       id,
		FieldOne: renamed.Name,
		Type:     TypeGroup,
	})
	metrics.ContentMutationsTotal.WithLabelValues(string(audit.OperationUpdate), string(TypeGroup)).Inc()

	return renamed, nil
}

// DeleteGroup removes a group with everything nested below it.
func (s *Service) DeleteGroup(ctx context.Context, req DeleteGroupRequest) error {
	if err := validation.Struct(req); err != nil {
		return err
	}
	id := ids.Normalize(req.ID)

	ctx, span := s.tracer.Start(ctx, "content.delete_group", trace.WithAttributes(
		attribute.String("group.id", id),
	))
	defer span.End()

	existing, err := s.repo.GetGroup(ctx, id)
	if err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("load group: %w", err)
	}
	if err := s.repo.DeleteGroup(ctx, id); err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("delete group: %w", err)
	}

	s.recordDelete(ctx, Item{
		ID:          id,
		ParentGroup: existing.ParentGroup,
		Type:        TypeGroup,
		Group:       &GroupRef{Name: existing.Name},
	}, req.Fingerprint)
	return nil
}

// GetGroup returns a group with its direct content.
func (s *Service) GetGroup(ctx context.Context, id string) (*Group, error) {
	if err := ids.ValidateULID(id); err != nil {
		return nil, validation.Field("id", "must be a valid id")
	}
	group, err := s.repo.GetGroup(ctx, ids.Normalize(id))
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return group, nil
}

// ListGroups returns the root groups without their content.
func (s *Service) ListGroups(ctx context.Context) ([]Group, error) {
	groups, err := s.repo.ListRootGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}
