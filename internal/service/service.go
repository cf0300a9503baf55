package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vbonduro/famshop/internal/access"
	"github.com/vbonduro/famshop/internal/apperr"
	"github.com/vbonduro/famshop/internal/domain"
	"github.com/vbonduro/famshop/internal/events"
	"github.com/vbonduro/famshop/internal/store"
)

// Scope decides how an entity of another family is reported.
type Scope int

const (
	// FamilyScope hides other families' entities: they are not found.
	FamilyScope Scope = iota
	// UserScope reports other families' entities as forbidden.
	UserScope
)

// Actor is an authorized caller bound to the family whose data it may touch.
type Actor struct {
	User  *domain.User
	Scope Scope
	guard *access.Guard
}

func (a Actor) FamilyID() string { return a.User.FamilyID }

// reach asks the guard whether an entity of entityFamilyID belongs to the
// actor's family. A foreign entity is notFound in FamilyScope and forbidden
// with denied in UserScope.
func (a Actor) reach(entityFamilyID string, notFound *apperr.Error, denied string) error {
	if a.guard.Owns(a.FamilyID(), entityFamilyID) == access.Allow {
		return nil
	}
	if a.Scope == FamilyScope {
		return notFound
	}
	return apperr.Forbidden(denied)
}

// Authorizer resolves actors through the access guard.
type Authorizer struct {
	guard *access.Guard
}

func NewAuthorizer(guard *access.Guard) *Authorizer {
	return &Authorizer{guard: guard}
}

// ForFamily authorizes userID against the family named in the route.
func (a *Authorizer) ForFamily(ctx context.Context, userID, familyID string) (Actor, error) {
	verdict, member, err := a.guard.Check(ctx, userID, familyID, "")
	if err != nil {
		return Actor{}, apperr.Internal("Failed to check family membership", err)
	}
	if verdict != access.Allow {
		return Actor{}, verdict.Err()
	}
	return Actor{User: member, Scope: FamilyScope, guard: a.guard}, nil
}

// ForUser authorizes userID against the family recorded on their user row.
func (a *Authorizer) ForUser(ctx context.Context, userID string) (Actor, error) {
	verdict, u, err := a.guard.Member(ctx, userID)
	if err != nil {
		return Actor{}, apperr.Internal("Failed to load user", err)
	}
	if verdict != access.Allow {
		return Actor{}, verdict.Err()
	}
	return Actor{User: u, Scope: UserScope, guard: a.guard}, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// FieldIssue is one failed rule, reported in error details.
type FieldIssue struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// FieldIssues is the details object of a failed payload validation.
type FieldIssues struct {
	Fields []FieldIssue `json:"fields"`
}

// check validates in and maps the first failure to the public message for
// its field; every failure is listed in the details.
func check(in any, messages map[string]*apperr.Error) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Internal("Failed to validate request", err)
	}

	issues := make([]FieldIssue, 0, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		issues = append(issues, FieldIssue{Field: ns, Rule: fe.Tag()})
	}

	first := verrs[0]
	field := first.Field()
	if i := strings.IndexByte(field, '['); i >= 0 {
		field = field[:i]
	}
	details := FieldIssues{Fields: issues}
	if e, ok := messages[field]; ok {
		return e.WithDetails(details)
	}
	return apperr.Validation(fmt.Sprintf("Invalid value for %s", first.Field())).WithDetails(details)
}

func trimAll(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

// storeError maps store sentinels to coded errors; anything else becomes an
// internal error carrying fallback as its message.
func storeError(err error, limits store.Limits, fallback string) error {
	switch {
	case errors.Is(err, store.ErrDuplicateList):
		return apperr.Validation("A shopping list with this name already exists")
	case errors.Is(err, store.ErrListLimit):
		return apperr.Validation(fmt.Sprintf("A family can have at most %d shopping lists", limits.MaxListsPerFamily))
	case errors.Is(err, store.ErrItemLimit):
		return apperr.Validation(fmt.Sprintf("A shopping list can have at most %d items", limits.MaxItemsPerList))
	default:
		return apperr.From(err, fallback)
	}
}

func publish(ctx context.Context, bus events.Publisher, logger *slog.Logger, e events.Event) {
	if bus == nil {
		return
	}
	if err := bus.Publish(ctx, e); err != nil {
		logger.Error("failed to publish event", "type", e.Type, "error", err)
	}
}
