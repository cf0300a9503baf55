package domain

import "time"

type Role string

const (
	RoleParent Role = "PARENT"
	RoleChild  Role = "CHILD"
	RoleMember Role = "MEMBER"
)

type Family struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

type User struct {
	ID        string
	FamilyID  string
	Email     string
	Role      Role
	CreatedAt time.Time
}

type ShoppingList struct {
	ID          string
	FamilyID    string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ShoppingItem carries the lists it is joined to. Lists is empty, never nil,
// once loaded by the store.
type ShoppingItem struct {
	ID        string
	Name      string
	Quantity  int
	Purchased bool
	UserID    string
	FamilyID  string
	CreatedAt time.Time
	UpdatedAt time.Time
	Lists     []ShoppingList
}

// ListWithItems is a shopping list together with the items joined to it.
type ListWithItems struct {
	ShoppingList
	Items []ShoppingItem
}

// ItemFilter narrows a family item listing. Nil pointers and empty strings
// mean "no constraint".
type ItemFilter struct {
	Purchased     *bool
	ListName      string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	UpdatedAfter  *time.Time
	UpdatedBefore *time.Time
	SortBy        string
	Order         string
}

// Identity is the caller resolved from a bearer token.
type Identity struct {
	UserID   string
	Role     string
	FamilyID string
}
