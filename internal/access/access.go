// Package access decides whether a user may touch a family's data and which
// role-gated actions they may perform.
package access

import (
	"context"
	"fmt"

	"github.com/vbonduro/famshop/internal/apperr"
	"github.com/vbonduro/famshop/internal/config"
	"github.com/vbonduro/famshop/internal/domain"
)

type Verdict int

const (
	Allow Verdict = iota
	NotMember
	WrongFamily
)

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case NotMember:
		return "not_member"
	case WrongFamily:
		return "wrong_family"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Members is the user lookup the guard needs.
type Members interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	FindMember(ctx context.Context, userID, familyID string) (*domain.User, error)
}

type Guard struct {
	members Members
}

func NewGuard(members Members) *Guard {
	return &Guard{members: members}
}

// Check verifies that userID belongs to familyID and, when entityFamilyID is
// non-empty, that the entity being touched belongs to the same family.
// The member is returned only on Allow.
func (g *Guard) Check(ctx context.Context, userID, familyID, entityFamilyID string) (Verdict, *domain.User, error) {
	member, err := g.members.FindMember(ctx, userID, familyID)
	if err != nil {
		return NotMember, nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if member == nil {
		return NotMember, nil, nil
	}
	if entityFamilyID != "" {
		if v := g.Owns(familyID, entityFamilyID); v != Allow {
			return v, nil, nil
		}
	}
	return Allow, member, nil
}

// Owns decides whether an entity of entityFamilyID is within reach of a
// caller already authorized for actorFamilyID.
func (g *Guard) Owns(actorFamilyID, entityFamilyID string) Verdict {
	if actorFamilyID == "" || entityFamilyID != actorFamilyID {
		return WrongFamily
	}
	return Allow
}

// Member loads the caller's user record, which carries the family used by
// routes that are not addressed by family id. A user missing from the
// database is reported as NotMember.
func (g *Guard) Member(ctx context.Context, userID string) (Verdict, *domain.User, error) {
	u, err := g.members.GetByID(ctx, userID)
	if err != nil {
		return NotMember, nil, fmt.Errorf("failed to load user: %w", err)
	}
	if u == nil {
		return NotMember, nil, nil
	}
	return Allow, u, nil
}

// Err is the error a caller should surface for a non-Allow verdict.
func (v Verdict) Err() *apperr.Error {
	switch v {
	case Allow:
		return nil
	case WrongFamily:
		return apperr.Forbidden("You do not have access to this resource")
	default:
		return apperr.Forbidden("Forbidden")
	}
}

type Action string

const (
	CreateLists Action = "canCreateLists"
	DeleteLists Action = "canDeleteLists"
	ManageItems Action = "canManageItems"
)

// Capabilities is the role allow-list for each gated action, fixed at startup.
type Capabilities struct {
	roles map[Action]map[string]bool
}

func NewCapabilities(r config.Roles) Capabilities {
	return Capabilities{roles: map[Action]map[string]bool{
		CreateLists: toSet(r.CanCreateLists),
		DeleteLists: toSet(r.CanDeleteLists),
		ManageItems: toSet(r.CanManageItems),
	}}
}

func toSet(roles []string) map[string]bool {
	set := make(map[string]bool, len(roles))
	for _, r := range roles {
		set[r] = true
	}
	return set
}

// Allows compares role by exact string.
func (c Capabilities) Allows(role domain.Role, action Action) bool {
	return c.roles[action][string(role)]
}

// Require returns a FORBIDDEN error naming the action when role lacks it.
func (c Capabilities) Require(role domain.Role, action Action) *apperr.Error {
	if c.Allows(role, action) {
		return nil
	}
	return apperr.Forbidden(deniedMessages[action])
}

var deniedMessages = map[Action]string{
	CreateLists: "User not authorized to create shopping lists",
	DeleteLists: "User not authorized to delete shopping lists",
	ManageItems: "User not authorized to manage shopping items",
}
