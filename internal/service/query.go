package service

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vbonduro/famshop/internal/apperr"
	"github.com/vbonduro/famshop/internal/domain"
	"github.com/vbonduro/famshop/internal/store"
)

const dateOnly = "2006-01-02"

// ParseItemFilter reads the item listing query parameters. Empty values are
// ignored; malformed ones are a VALIDATION_ERROR naming the parameter.
func ParseItemFilter(q url.Values) (domain.ItemFilter, error) {
	var f domain.ItemFilter

	switch v := strings.TrimSpace(q.Get("purchased")); v {
	case "":
	case "true", "false":
		b := v == "true"
		f.Purchased = &b
	default:
		return f, invalidParam("purchased", v, "true or false")
	}

	f.ListName = strings.TrimSpace(q.Get("listName"))

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"createdAfter", &f.CreatedAfter},
		{"createdBefore", &f.CreatedBefore},
		{"updatedAfter", &f.UpdatedAfter},
		{"updatedBefore", &f.UpdatedBefore},
	} {
		v := strings.TrimSpace(q.Get(p.name))
		if v == "" {
			continue
		}
		t, err := parseDate(v)
		if err != nil {
			return f, invalidParam(p.name, v, "an RFC3339 timestamp or YYYY-MM-DD")
		}
		*p.dst = &t
	}

	f.SortBy = strings.TrimSpace(q.Get("sortBy"))
	if f.SortBy == "" {
		f.SortBy = "createdAt"
	}
	if !store.IsSortable(f.SortBy) {
		return f, invalidParam("sortBy", f.SortBy, "one of id, name, quantity, purchased, userId, familyId, createdAt, updatedAt")
	}

	switch order := strings.ToLower(strings.TrimSpace(q.Get("order"))); order {
	case "":
		f.Order = "desc"
	case "asc", "desc":
		f.Order = order
	default:
		return f, invalidParam("order", q.Get("order"), "asc or desc")
	}
	return f, nil
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	return time.Parse(dateOnly, v)
}

// ParseLimit reads a positive integer limit; empty means 0 (use default).
func ParseLimit(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, invalidParam("limit", v, "a positive integer")
	}
	return n, nil
}

func invalidParam(name, value, want string) error {
	return apperr.Validation(fmt.Sprintf("Invalid %s: expected %s", name, want)).
		WithDetails(map[string]string{"parameter": name, "value": value})
}
