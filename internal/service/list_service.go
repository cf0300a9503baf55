package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/vbonduro/famshop/internal/apperr"
	"github.com/vbonduro/famshop/internal/domain"
	"github.com/vbonduro/famshop/internal/events"
	"github.com/vbonduro/famshop/internal/store"
)

// listRepository is the subset of store.ListStore that ListService requires.
type listRepository interface {
	Create(ctx context.Context, in store.NewList) (*domain.ListWithItems, error)
	GetByID(ctx context.Context, id string) (*domain.ListWithItems, error)
	ListByFamily(ctx context.Context, familyID string) ([]*domain.ListWithItems, error)
	Names(ctx context.Context, familyID string) ([]string, error)
	Update(ctx context.Context, id string, upd store.ListUpdate) (*domain.ListWithItems, error)
	Delete(ctx context.Context, id string) error
}

type ListService struct {
	lists  listRepository
	items  itemRepository
	limits store.Limits
	bus    events.Publisher
	logger *slog.Logger
}

func NewListService(lists listRepository, items itemRepository, limits store.Limits, bus events.Publisher, logger *slog.Logger) *ListService {
	return &ListService{lists: lists, items: items, limits: limits, bus: bus, logger: logger}
}

type ListItemRef struct {
	ItemID string `json:"itemId" validate:"required"`
}

type CreateListInput struct {
	Name        string        `json:"name" validate:"required"`
	Description string        `json:"description"`
	Items       []ListItemRef `json:"items" validate:"omitempty,dive"`
}

// UpdateListInput is a partial update. A non-nil Items, even empty, replaces
// the list's items.
type UpdateListInput struct {
	Name        *string       `json:"name"`
	Description *string       `json:"description"`
	Items       []ListItemRef `json:"items" validate:"omitempty,dive"`
}

var listMessages = map[string]*apperr.Error{
	"name":   apperr.Validation("Name is required"),
	"itemId": apperr.Validation("Every item reference needs an itemId"),
}

// Names returns the family's distinct list names in ascending order.
func (s *ListService) Names(ctx context.Context, actor Actor) ([]string, error) {
	names, err := s.lists.Names(ctx, actor.FamilyID())
	if err != nil {
		return nil, apperr.Internal("Failed to fetch shopping lists", err)
	}
	return names, nil
}

func (s *ListService) List(ctx context.Context, actor Actor) ([]*domain.ListWithItems, error) {
	lists, err := s.lists.ListByFamily(ctx, actor.FamilyID())
	if err != nil {
		return nil, apperr.Internal("Failed to fetch shopping lists", err)
	}
	return lists, nil
}

func (s *ListService) Get(ctx context.Context, actor Actor, id string) (*domain.ListWithItems, error) {
	return s.lookup(ctx, actor, id, "You do not have access to this shopping list")
}

func (s *ListService) Create(ctx context.Context, actor Actor, in CreateListInput) (*domain.ListWithItems, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := check(in, listMessages); err != nil {
		return nil, err
	}
	itemIDs, err := s.resolveItems(ctx, actor, in.Items)
	if err != nil {
		return nil, err
	}

	list, err := s.lists.Create(ctx, store.NewList{
		FamilyID:    actor.FamilyID(),
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		ItemIDs:     itemIDs,
	})
	if err != nil {
		return nil, storeError(err, s.limits, "Failed to create shopping list")
	}

	publish(ctx, s.bus, s.logger, events.New(events.ListCreated, list.FamilyID, map[string]any{
		"listId": list.ID, "name": list.Name,
	}))
	return list, nil
}

func (s *ListService) Update(ctx context.Context, actor Actor, id string, in UpdateListInput) (*domain.ListWithItems, error) {
	if _, err := s.lookup(ctx, actor, id, "You do not have permission to update this list"); err != nil {
		return nil, err
	}

	in.Name = trimPtr(in.Name)
	in.Description = trimPtr(in.Description)
	if in.Name != nil && *in.Name == "" {
		return nil, apperr.Validation("Name is required")
	}
	if err := check(in, listMessages); err != nil {
		return nil, err
	}

	upd := store.ListUpdate{Name: in.Name, Description: in.Description}
	if in.Items != nil {
		ids, err := s.resolveItems(ctx, actor, in.Items)
		if err != nil {
			return nil, err
		}
		upd.ItemIDs = ids
	}

	list, err := s.lists.Update(ctx, id, upd)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.ListNotFound()
	}
	if err != nil {
		return nil, storeError(err, s.limits, "Failed to update shopping list")
	}

	publish(ctx, s.bus, s.logger, events.New(events.ListUpdated, list.FamilyID, map[string]any{
		"listId": list.ID, "name": list.Name,
	}))
	return list, nil
}

func (s *ListService) Delete(ctx context.Context, actor Actor, id string) error {
	list, err := s.lookup(ctx, actor, id, "You do not have permission to delete this list")
	if err != nil {
		return err
	}
	if err := s.lists.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.ListNotFound()
		}
		return apperr.Internal("Failed to delete shopping list", err)
	}

	publish(ctx, s.bus, s.logger, events.New(events.ListDeleted, list.FamilyID, map[string]any{"listId": id}))
	return nil
}

// resolveItems checks every referenced item exists and belongs to actor's
// family. The result is non-nil so an empty reference list clears the list.
func (s *ListService) resolveItems(ctx context.Context, actor Actor, refs []ListItemRef) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		item, err := s.items.GetByID(ctx, strings.TrimSpace(ref.ItemID))
		if err != nil {
			return nil, apperr.Internal("Failed to fetch item", err)
		}
		notFound := apperr.ItemNotFound().WithDetails(map[string]string{"itemId": ref.ItemID})
		if item == nil {
			return nil, notFound
		}
		if err := actor.reach(item.FamilyID, notFound, "You do not have access to this shopping item"); err != nil {
			return nil, err
		}
		ids = append(ids, item.ID)
	}
	return ids, nil
}

func (s *ListService) lookup(ctx context.Context, actor Actor, id, denied string) (*domain.ListWithItems, error) {
	list, err := s.lists.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal("Failed to fetch shopping list", err)
	}
	if list == nil {
		return nil, apperr.ListNotFound()
	}
	if err := actor.reach(list.FamilyID, apperr.ListNotFound(), denied); err != nil {
		return nil, err
	}
	return list, nil
}
