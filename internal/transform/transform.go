// Package transform turns domain rows into the JSON shapes served over HTTP.
package transform

import (
	"time"

	"github.com/vbonduro/famshop/internal/domain"
)

type ListRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FamilyID string `json:"familyId"`
}

// ItemList is one membership of an item, nested the way clients expect.
type ItemList struct {
	List ListRef `json:"list"`
}

type Item struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Quantity  int        `json:"quantity"`
	Purchased bool       `json:"purchased"`
	UserID    string     `json:"userId"`
	FamilyID  string     `json:"familyId"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Lists     []ItemList `json:"lists"`
}

type List struct {
	ID          string    `json:"id"`
	FamilyID    string    `json:"familyId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Items       []Item    `json:"items"`
}

func FromItem(it domain.ShoppingItem) Item {
	lists := make([]ItemList, 0, len(it.Lists))
	for _, l := range it.Lists {
		lists = append(lists, ItemList{List: ListRef{ID: l.ID, Name: l.Name, FamilyID: l.FamilyID}})
	}
	return Item{
		ID:        it.ID,
		Name:      it.Name,
		Quantity:  it.Quantity,
		Purchased: it.Purchased,
		UserID:    it.UserID,
		FamilyID:  it.FamilyID,
		CreatedAt: it.CreatedAt.UTC(),
		UpdatedAt: it.UpdatedAt.UTC(),
		Lists:     lists,
	}
}

// FromItems never returns nil.
func FromItems(items []*domain.ShoppingItem) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		out = append(out, FromItem(*it))
	}
	return out
}

func FromList(l domain.ListWithItems) List {
	items := make([]Item, 0, len(l.Items))
	for _, it := range l.Items {
		items = append(items, FromItem(it))
	}
	return List{
		ID:          l.ID,
		FamilyID:    l.FamilyID,
		Name:        l.Name,
		Description: l.Description,
		CreatedAt:   l.CreatedAt.UTC(),
		UpdatedAt:   l.UpdatedAt.UTC(),
		Items:       items,
	}
}

// FromLists never returns nil.
func FromLists(lists []*domain.ListWithItems) []List {
	out := make([]List, 0, len(lists))
	for _, l := range lists {
		if l == nil {
			continue
		}
		out = append(out, FromList(*l))
	}
	return out
}
