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
	"github.com/vbonduro/famshop/internal/suggest"
)

// itemRepository is the subset of store.ItemStore that ItemService requires.
type itemRepository interface {
	Create(ctx context.Context, in store.NewItem) (*domain.ShoppingItem, error)
	GetByID(ctx context.Context, id string) (*domain.ShoppingItem, error)
	List(ctx context.Context, familyID string, filter domain.ItemFilter) ([]*domain.ShoppingItem, error)
	Update(ctx context.Context, id string, upd store.ItemUpdate) (*domain.ShoppingItem, error)
	Delete(ctx context.Context, id string) error
}

type ItemService struct {
	items     itemRepository
	limits    store.Limits
	bus       events.Publisher
	suggester suggest.Suggester
	logger    *slog.Logger
}

// NewItemService wires the item operations. A nil suggester disables
// suggestions.
func NewItemService(items itemRepository, limits store.Limits, bus events.Publisher, suggester suggest.Suggester, logger *slog.Logger) *ItemService {
	return &ItemService{items: items, limits: limits, bus: bus, suggester: suggester, logger: logger}
}

type CreateItemInput struct {
	Name      string   `json:"name" validate:"required"`
	Quantity  *int     `json:"quantity" validate:"omitempty,min=0"`
	Purchased *bool    `json:"purchased"`
	ListNames []string `json:"listNames" validate:"required,min=1,dive,required"`
}

// UpdateItemInput is a partial update; nil fields are left alone. An empty
// ListNames is the same as leaving it out.
type UpdateItemInput struct {
	Name      *string  `json:"name"`
	Quantity  *int     `json:"quantity" validate:"omitempty,min=0"`
	Purchased *bool    `json:"purchased"`
	ListNames []string `json:"listNames" validate:"omitempty,dive,required"`
}

var itemMessages = map[string]*apperr.Error{
	"name":      apperr.Validation("Name is required"),
	"quantity":  apperr.InvalidQuantity(),
	"listNames": apperr.Validation("At least one list name is required"),
}

func (s *ItemService) Create(ctx context.Context, actor Actor, in CreateItemInput) (*domain.ShoppingItem, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.ListNames = trimAll(in.ListNames)
	if err := check(in, itemMessages); err != nil {
		return nil, err
	}

	qty := 1
	if in.Quantity != nil {
		qty = *in.Quantity
	}
	item, err := s.items.Create(ctx, store.NewItem{
		Name:      in.Name,
		Quantity:  qty,
		Purchased: in.Purchased != nil && *in.Purchased,
		UserID:    actor.User.ID,
		FamilyID:  actor.FamilyID(),
		ListNames: in.ListNames,
	})
	if err != nil {
		return nil, storeError(err, s.limits, "Failed to create item")
	}

	publish(ctx, s.bus, s.logger, events.New(events.ItemCreated, item.FamilyID, map[string]any{
		"itemId": item.ID, "name": item.Name, "userId": item.UserID,
	}))
	return item, nil
}

// Get returns the item if actor may see it.
func (s *ItemService) Get(ctx context.Context, actor Actor, id string) (*domain.ShoppingItem, error) {
	return s.lookup(ctx, actor, id, "You do not have access to this shopping item")
}

func (s *ItemService) List(ctx context.Context, actor Actor, filter domain.ItemFilter) ([]*domain.ShoppingItem, error) {
	items, err := s.items.List(ctx, actor.FamilyID(), filter)
	if err != nil {
		return nil, apperr.Internal("Failed to fetch items", err)
	}
	return items, nil
}

func (s *ItemService) Update(ctx context.Context, actor Actor, id string, in UpdateItemInput) (*domain.ShoppingItem, error) {
	existing, err := s.lookup(ctx, actor, id, "You do not have permission to update this item")
	if err != nil {
		return nil, err
	}

	in.Name = trimPtr(in.Name)
	in.ListNames = trimAll(in.ListNames)
	if in.Name != nil && *in.Name == "" {
		return nil, apperr.Validation("Name is required")
	}
	if err := check(in, itemMessages); err != nil {
		return nil, err
	}

	upd := store.ItemUpdate{Name: in.Name, Quantity: in.Quantity, Purchased: in.Purchased}
	if len(in.ListNames) > 0 {
		upd.ListNames = in.ListNames
	}
	item, err := s.items.Update(ctx, id, upd)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.ItemNotFound()
	}
	if err != nil {
		return nil, storeError(err, s.limits, "Failed to update item")
	}

	data := map[string]any{"itemId": item.ID, "name": item.Name}
	publish(ctx, s.bus, s.logger, events.New(events.ItemUpdated, item.FamilyID, data))
	if item.Purchased && !existing.Purchased {
		publish(ctx, s.bus, s.logger, events.New(events.ItemPurchased, item.FamilyID, data))
	}
	return item, nil
}

func (s *ItemService) Delete(ctx context.Context, actor Actor, id string) error {
	item, err := s.lookup(ctx, actor, id, "You do not have permission to delete this item")
	if err != nil {
		return err
	}
	if err := s.items.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.ItemNotFound()
		}
		return apperr.Internal("Failed to delete item", err)
	}

	publish(ctx, s.bus, s.logger, events.New(events.ItemDeleted, item.FamilyID, map[string]any{"itemId": id}))
	return nil
}

// SuggestionsEnabled reports whether a suggester is configured.
func (s *ItemService) SuggestionsEnabled() bool { return s.suggester != nil }

func (s *ItemService) Suggest(ctx context.Context, actor Actor, limit int) ([]string, error) {
	if s.suggester == nil {
		return nil, apperr.New(apperr.CodeNotFound, "Item suggestions are disabled")
	}
	names, err := s.suggester.Suggest(ctx, actor.FamilyID(), suggest.ClampLimit(limit))
	if err != nil {
		return nil, apperr.Internal("Failed to fetch suggestions", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// lookup finds the item within actor's reach. In FamilyScope an item of
// another family does not exist; in UserScope it is forbidden with denied.
func (s *ItemService) lookup(ctx context.Context, actor Actor, id, denied string) (*domain.ShoppingItem, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal("Failed to fetch item", err)
	}
	if item == nil {
		return nil, apperr.ItemNotFound()
	}
	if err := actor.reach(item.FamilyID, apperr.ItemNotFound(), denied); err != nil {
		return nil, err
	}
	return item, nil
}
