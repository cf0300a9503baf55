package web_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/famshop/internal/access"
	"github.com/vbonduro/famshop/internal/auth"
	"github.com/vbonduro/famshop/internal/config"
	"github.com/vbonduro/famshop/internal/db"
	"github.com/vbonduro/famshop/internal/domain"
	"github.com/vbonduro/famshop/internal/events"
	"github.com/vbonduro/famshop/internal/logging"
	"github.com/vbonduro/famshop/internal/metrics"
	"github.com/vbonduro/famshop/internal/plugin"
	"github.com/vbonduro/famshop/internal/service"
	"github.com/vbonduro/famshop/internal/store"
	"github.com/vbonduro/famshop/internal/suggest"
	"github.com/vbonduro/famshop/internal/web"
)

const testSecret = "integration-secret"

type env struct {
	srv    *httptest.Server
	db     *sql.DB
	issuer *auth.Issuer

	smith, jones *domain.Family
	// alice is a PARENT and carl a CHILD of smith; mia is a plain MEMBER.
	// bob is a PARENT of jones.
	alice, carl, mia, bob *domain.User
}

type options struct {
	rps         int
	suggestions bool
}

func newTestServer(t *testing.T, opts options) *env {
	t.Helper()
	database, err := db.OpenForTesting()
	require.NoError(t, err)

	ctx := context.Background()
	families := store.NewFamilyStore(database)
	users := store.NewUserStore(database)
	e := &env{db: database, issuer: auth.NewIssuer(testSecret)}

	e.smith, err = families.Create(ctx, "smith")
	require.NoError(t, err)
	e.jones, err = families.Create(ctx, "jones")
	require.NoError(t, err)
	e.alice, err = users.Create(ctx, e.smith.ID, "alice@example.com", domain.RoleParent)
	require.NoError(t, err)
	e.carl, err = users.Create(ctx, e.smith.ID, "carl@example.com", domain.RoleChild)
	require.NoError(t, err)
	e.mia, err = users.Create(ctx, e.smith.ID, "mia@example.com", domain.RoleMember)
	require.NoError(t, err)
	e.bob, err = users.Create(ctx, e.jones.ID, "bob@example.com", domain.RoleParent)
	require.NoError(t, err)

	plug := config.DefaultPlugin()
	limits := store.Limits{
		MaxListsPerFamily: plug.Limits.MaxListsPerFamily,
		MaxItemsPerList:   plug.Limits.MaxItemsPerList,
	}
	logger := logging.Discard()
	itemStore := store.NewItemStore(database, limits)
	listStore := store.NewListStore(database, limits)
	bus := events.NewLogBus(logger)

	var suggester suggest.Suggester
	if opts.suggestions {
		suggester = suggest.NewHistorySuggester(itemStore)
	}
	collector := metrics.NewCollector(listStore, itemStore)
	p := plugin.New(database, collector, bus, itemStore, plugin.Config{}, logger)
	p.Init(ctx)

	server := web.NewServer(web.Deps{
		Items:        service.NewItemService(itemStore, limits, bus, suggester, logger),
		Lists:        service.NewListService(listStore, itemStore, limits, bus, logger),
		Authorizer:   service.NewAuthorizer(access.NewGuard(users)),
		Resolver:     auth.NewResolver(testSecret, logger),
		Capabilities: access.NewCapabilities(plug.Roles),
		Plugin:       p,
		Metrics:      collector,
		Limiter:      web.NewRateLimiter(opts.rps, opts.rps),
		Logger:       logger,
	})
	e.srv = httptest.NewServer(server)
	t.Cleanup(func() {
		e.srv.Close()
		_ = database.Close()
	})
	return e
}

func skipShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

func (e *env) token(t *testing.T, u *domain.User) string {
	t.Helper()
	tok, err := e.issuer.Issue(u.ID, string(u.Role), u.FamilyID, time.Hour)
	require.NoError(t, err)
	return tok
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r response) decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.body, v), "body: %s", r.body)
}

func (e *env) do(t *testing.T, method, path, token string, body any) response {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{status: resp.StatusCode, header: resp.Header, body: data}
}

type apiItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Purchased bool   `json:"purchased"`
	UserID    string `json:"userId"`
	FamilyID  string `json:"familyId"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
	Lists     []struct {
		List struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			FamilyID string `json:"familyId"`
		} `json:"list"`
	} `json:"lists"`
}

type apiError struct {
	Error struct {
		Message string         `json:"message"`
		Code    string         `json:"code"`
		Entity  string         `json:"entity"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type wrappedResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Entity  string `json:"entity"`
	} `json:"error"`
}

func (e *env) familyPath(f *domain.Family, rest string) string {
	return "/api/families/" + f.ID + "/shopping" + rest
}

func (e *env) createItem(t *testing.T, u *domain.User, body map[string]any) apiItem {
	t.Helper()
	resp := e.do(t, http.MethodPost, e.familyPath(e.smith, ""), e.token(t, u), body)
	require.Equal(t, http.StatusCreated, resp.status, "body: %s", resp.body)
	var item apiItem
	resp.decode(t, &item)
	return item
}

func TestIntegration_Unauthorized(t *testing.T) {
	skipShort(t)
	e := newTestServer(t, options{})

	for name, token := range map[string]string{
		"missing": "",
		"garbage": "not-a-jwt",
		"foreign": func() string {
			tok, err := auth.NewIssuer("other-secret").Issue(e.alice.ID, "PARENT", e.smith.ID, time.Hour)
			require.NoError(t, err)
			return tok
		}(),
	} {
		t.Run(name, func(t *testing.T) {
			resp := e.do(t, http.MethodGet, e.familyPath(e.smith, ""), token, nil)
			assert.Equal(t, http.StatusUnauthorized, resp.status)
			assert.JSONEq(t, `{"error":{"message":"Unauthorized"}}`, string(resp.body))
		})
	}

	resp := e.do(t, http.MethodGet, "/api/shopping/lists", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.status)
	var w wrappedResponse
	resp.decode(t, &w)
	assert.False(t, w.Success)
	require.NotNil(t, w.Error)
	assert.Equal(t, "UNAUTHORIZED", w.Error.Code)
}

func TestIntegration_NonMemberForbidden(t *testing.T) {
	skipShort(t)
	e := newTestServer(t, options{})

	resp := e.do(t, http.MethodPost, e.familyPath(e.smith, ""), e.token(t, e.bob), map[string]any{
		"name": "Milk", "listNames": []string{"Groceries"},
	})
	assert.Equal(t, http.StatusForbidden, resp.status)
	var body apiError
	resp.decode(t, &body)
	assert.Equal(t, "FORBIDDEN", body.Error.Code)

	names := e.do(t, http.MethodGet, e.familyPath(e.smith, "/lists"), e.token(t, e.alice), nil)
	assert.JSONEq(t, `[]`, string(names.body), "nothing was created")

	item := e.createItem(t, e.alice, map[string]any{"name": "Milk", "listNames": []string{"Groceries"}})
	bob := e.token(t, e.bob)
	for _, c := range []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, e.familyPath(e.smith, ""), nil},
		{http.MethodPut, e.familyPath(e.smith, "/"+item.ID), map[string]any{"purchased": true}},
		{http.MethodDelete, e.familyPath(e.smith, "/"+item.ID), nil},
		{http.MethodGet, e.familyPath(e.smith, "/lists"), nil},
	} {
		resp := e.do(t, c.method, c.path, bob, c.body)
		assert.Equal(t, http.StatusForbidden, resp.status, "%s %s", c.method, c.path)
		var body apiError
		resp.decode(t, &body)
		assert.Equal(t, "FORBIDDEN", body.Error.Code, "%s %s", c.method, c.path)
	}

	resp = e.do(t, http.MethodGet, e.familyPath(e.smith, ""), e.token(t, e.alice), nil)
	var items []apiItem
	resp.decode(t, &items)
	require.Len(t, items, 1, "item survives the outsider")
	assert.False(t, items[0].Purchased)
}

func TestIntegration_CreateItem(t *testing.T) {
	skipShort(t)
	e := newTestServer(t, options{})

	item := e.createItem(t, e.alice, map[string]any{
		"name": "  Milk ", "listNames": []string{"Groceries", "Weekly", "Groceries"},
	})
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, "Milk", item.Name)
	assert.Equal(t, 1, item.Quantity)
	assert.False(t, item.Purchased)
	assert.Equal(t, e.alice.ID, item.UserID)
	assert.Equal(t, e.smith.ID, item.FamilyID)
	require.Len(t, item.Lists, 2)
	assert.Equal(t, "Groceries", item.Lists[0].List.Name)
	assert.Equal(t, e.smith.ID, item.Lists[0].List.FamilyID)
	_, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	assert.NoError(t, err)

	// A second item reuses the existing list.
	second := e.createItem(t, e.carl, map[string]any{"name": "Eggs", "quantity": 12, "listNames": []string{"Groceries"}})
	assert.Equal(t, item.Lists[0].List.ID, second.Lists[0].List.ID)
	assert.Equal(t, 12, second.Quantity)
}

func TestIntegration_CreateItemValidation(t *testing.T) {
	skipShort(t)
	e := newTestServer(t, options{})
	tok := e.token(t, e.alice)

	tests := []struct {
		name    string
		body    any
		code    string
		message string
		// field is the first entry of details.fields for payload rule failures.
		field string
	}{
		{"blank name", map[string]any{"name": " ", "listNames": []string{"G"}}, "VALIDATION_ERROR", "Name is required", "name"},
		{"negative quantity", map[string]any{"name": "Milk", "quantity": -1, "listNames": []string{"G"}}, "INVALID_QUANTITY", "Quantity must be non-negative", "quantity"},
		{"missing lists", map[string]any{"name": "Milk"}, "VALIDATION_ERROR", "At least one list name is required", "listNames"},
		{"empty lists", map[string]any{"name": "Milk", "listNames": []string{}}, "VALIDATION_ERROR", "At least one list name is required", "listNames"},
		{"malformed json", `{"name":`, "VALIDATION_ERROR", "Invalid JSON body", ""},
		{"empty body", nil, "VALIDATION_ERROR", "Request body is required", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.do(t, http.MethodPost, e.familyPath(e.smith, ""), tok, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.status)
			var body apiError
			resp.decode(t, &body)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Equal(t, tt.message, body.Error.Message)
			if tt.field == "" {
				return
			}
			fields, ok := body.Error.Details["fields"].([]any)
			require.True(t, ok, "body: %s", resp.body)
			require.NotEmpty(t, fields)
			first, ok := fields[0].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.field, first["field"])
		})
	}

	t.Run("wrong type", func(t *testing.T) {
		resp := e.do(t, http.MethodPost, e.familyPath(e.smith, ""), tok, `{"name":"Milk","quantity":"two","listNames":["G"]}`)
		assert.Equal(t, http.StatusBadRequest, resp.status)
		var body apiError
		resp.decode(t, &body)
		assert.Equal(t, "Invalid JSON body", body.Error.Message)
		assert.Equal(t, map[string]any{"field": "quantity", "expected": "number"}, body.Error.Details)
		assert.NotContains(t, string(resp.body), "Go struct")
	})
}

func TestIntegration_ListItems(t *testing.T) {
	skipShort(t)
	e := newTestServer(t, options{})
	tok := e.token(t, e.alice)

	empty := e.do(t, http.MethodGet, e.familyPath(e.smith, ""), tok, nil)
	assert.Equal(t, http.StatusOK, empty.status)
	assert.JSONEq(t, `[]`, string(empty.body))

	milk := e.createItem(t, e.alice, map[string]any{"name": "Milk", "listNames": []string{"Groceries"}})
	nails := e.createItem(t, e.alice, map[string]any{"name": "Nails", "purchased": true, "listNames": []string{"Hardware"}})
	bread := e.createItem(t, e.alice, map[string]any{"name": "Bread", "listNames": []string{"Groceries"}})

	ids := func(t *testing.T, query string) []string {
		t.Helper()
		resp := e.do(t, http.MethodGet, e.familyPath(e.smith, query), tok, nil)
		require.Equal(t, http.StatusOK, resp.status, "body: %s", resp.body)
		var items []apiItem
		resp.decode(t, &items)
		out := make([]string, len(items))
		for i, it := range items {
			out[i] = it.ID
		}
		return out
	}

	assert.Equal(t, []string{bread.ID, nails.ID, milk.ID}, ids(t, ""))
	assert.Equal(t, []string{milk.ID, nails.ID, bread.ID}, ids(t, "?order=ASC"))
	assert.Equal(t, []string{bread.ID, milk.ID, nails.ID}, ids(t, "?sortBy=name&order=asc"))
	assert.Equal(t, []string{nails.ID}, ids(t, "?purchased=true"))
	assert.Equal(t, []string{bread.ID, milk.ID}, ids(t, "?purchased=false"))
	assert.Equal(t, []string{bread.ID, milk.ID}, ids(t, "?listName=Groceries"))
	assert.Empty(t, ids(t, "?createdBefore=2000-01-01"))
	assert.Len(t, ids(t, "?createdAfter=2000-01-01"), 3)
	assert.Empty(t, ids(t, "?updatedBefore=2000-01-01"))
	assert.Len(t, ids(t, "?updatedBefore=2999-12-31"), 3)

	// Quantity ordering.
	three := e.do(t, http.MethodPut, e.familyPath(e.smith, "/"+milk.ID), tok, map[string]any{"quantity": 3})
	require.Equal(t, http.StatusOK, three.status)
	five := e.do(t, http.MethodPut, e.familyPath(e.smith, "/"+nails.ID), tok, map[string]any{"quantity": 5})
	require.Equal(t, http.StatusOK, five.status)
	assert.Equal(t, []string{nails.ID, milk.ID, bread.ID}, ids(t, "?sortBy=quantity&order=desc"))
	assert.Equal(t, []string{bread.ID, milk.ID, nails.ID}, ids(t, "?sortBy=quantity&order=asc"))

	for _, q := range []string{"?purchased=maybe", "?sortBy=lists", "?order=up", "?updatedAfter=yesterday"} {
		resp := e.do(t, http.MethodGet, e.familyPath(e.smith, q), tok, nil)
		assert.Equal(t, http.StatusBadRequest, resp.status, q)
	}

	// Other families see none of it.
	other := e.do(t, http.MethodGet, e.familyPath(e.jones, ""), e.token(t, e.bob), nil)
	assert.JSONEq(t, `[]`, string(other.body))
}

func TestIntegration_UpdateItem(t *testing.T) {
	skipShort(t)
	e := newTestServer(t, options{})
	tok := e.token(t, e.alice)
	item := e.createItem(t, e.alice, map[string]any{"name": "Milk", "listNames": []string{"Groceries"}})

	resp := e.do(t, http.MethodPut, e.familyPath(e.smith, "/"+item.ID), tok, map[string]any{
		"purchased": true, "quantity": 2, "listNames": []string{"Costco"},
	})
	require.Equal(t, http.StatusOK, resp.status, "body: %s", resp.body)
	var updated apiItem
	resp.decode(t, &updated)
	assert.True(t, updated.Purchased)
	assert.Equal(t, 2, updated.Quantity)
	assert.Equal(t, "Milk", updated.Name)
	require.Len(t, updated.Lists, 1)
	assert.Equal(t, "Costco", updated.Lists[0].List.Name)
	before, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	require.NoError(t, err)
	after, err := time.Parse(time.RFC3339Nano, updated.UpdatedAt)
	require.NoError(t, err)
	assert.False(t, after.Before(before), "updatedAt moves forward")

	resp = e.do(t, http.MethodPut, e.familyPath(e.smith, "/"+item.ID), tok, map[string]any{"quantity": -5})
	assert.Equal(t, http.StatusBadRequest, resp.status)

	resp = e.do(t, http.MethodPut, e.familyPath(e.smith, "/missing"), tok, map[string]any{"quantity": 1})
	assert.Equal(t, http.StatusNotFound, resp.status)
	var body apiError
	resp.decode(t, &body)
	assert.Equal(t, "ITEM_NOT_FOUND", body.Error.Code)
	assert.Equal(t, "Item not found", body.Error.Message)

	// Bob addressing smith's item through his own family does not find it.
	resp = e.do(t, http.MethodPut, e.familyPath(e.jones, "/"+item.ID), e.token(t, e.bob), map[string]any{"quantity": 1})
	assert.Equal(t, http.StatusNotFound, resp.status)
}

func TestIntegration_DeleteItem(t *testing.T) {
	skipShort(t)
	e := newTestServer(t, options{})
	tok := e.token(t, e.alice)
	item := e.createItem(t, e.alice, map[string]any{"name": "Milk", "listNames": []string{"Groceries"}})

	resp := e.do(t, http.MethodDelete, e.familyPath(e.smith, "/"+item.ID), tok, nil)
	assert.Equal(t, http.StatusOK, resp.status)
	assert.JSONEq(t, `{"message":"Item deleted successfully"}`, string(resp.body))

	resp = e.do(t, http.MethodDelete, e.familyPath(e.smith, "/"+item.ID), tok, nil)
	assert.Equal(t, http.StatusNotFound, resp.status)

	names := e.do(t, http.MethodGet, e.familyPath(e.smith, "/lists"), tok, nil)
	assert.JSONEq(t, `["Groceries"]`, string(names.body))
}

func TestIntegration_ListNames(t *testing.T) {
	skipShort(t)
	e := newTestServer(t, options{})
	e.createItem(t, e.alice, map[string]any{"name": "Milk", "listNames": []string{"Weekly", "Groceries"}})
	e.createItem(t, e.alice, map[string]any{"name": "Nails", "listNames": []string{"Hardware", "Weekly"}})

	resp := e.do(t, http.MethodGet, e.familyPath(e.smith, "/lists"), e.token(t, e.carl), nil)
	assert.Equal(t, http.StatusOK, resp.status)
	assert.JSONEq(t, `["Groceries","Hardware","Weekly"]`, string(resp.body))

	resp = e.do(t, http.MethodGet, e.familyPath(e.smith, "/lists"), e.token(t, e.bob), nil)
	assert.Equal(t, http.StatusForbidden, resp.status)
}

func TestIntegration_Suggestions(t *testing.T) {
	skipShort(t)

	disabled := newTestServer(t, options{})
	resp := disabled.do(t, http.MethodGet, disabled.familyPath(disabled.smith, "/suggestions"), disabled.token(t, disabled.alice), nil)
	assert.Equal(t, http.StatusNotFound, resp.status)

	e := newTestServer(t, options{suggestions: true})
	for _, body := range []map[string]any{
		{"name": "Eggs", "purchased": true, "listNames": []string{"G"}},
		{"name": "eggs", "purchased": true, "listNames": []string{"G"}},
		{"name": "Milk", "purchased": true, "listNames": []string{"G"}},
		{"name": "Bread", "purchased": true, "listNames": []string{"G"}},
		{"name": "Bread", "listNames": []string{"G"}},
	} {
		e.createItem(t, e.alice, body)
	}

	resp = e.do(t, http.MethodGet, e.familyPath(e.smith, "/suggestions"), e.token(t, e.alice), nil)
	require.Equal(t, http.StatusOK, resp.status, "body: %s", resp.body)
	assert.JSONEq(t, `["Eggs","Milk"]`, string(resp.body))

	resp = e.do(t, http.MethodGet, e.familyPath(e.smith, "/suggestions?limit=1"), e.token(t, e.alice), nil)
	assert.JSONEq(t, `["Eggs"]`, string(resp.body))

	resp = e.do(t, http.MethodGet, e.familyPath(e.smith, "/suggestions?limit=zero"), e.token(t, e.alice), nil)
	assert.Equal(t, http.StatusBadRequest, resp.status)
}

func TestIntegration_PluginLists(t *testing.T) {
	skipShort(t)
	e := newTestServer(t, options{})
	alice, carl, mia, bob := e.token(t, e.alice), e.token(t, e.carl), e.token(t, e.mia), e.token(t, e.bob)
	milk := e.createItem(t, e.alice, map[string]any{"name": "Milk", "listNames": []string{"Groceries"}})

	resp := e.do(t, http.MethodPost, "/api/shopping/lists", mia, map[string]any{"name": "Party"})
	assert.Equal(t, http.StatusForbidden, resp.status)
	var w wrappedResponse
	resp.decode(t, &w)
	require.NotNil(t, w.Error)
	assert.Equal(t, "User not authorized to create shopping lists", w.Error.Message)

	resp = e.do(t, http.MethodPost, "/api/shopping/lists", carl, map[string]any{
		"name": "Party", "description": "saturday", "items": []map[string]string{{"itemId": milk.ID}},
	})
	require.Equal(t, http.StatusCreated, resp.status, "body: %s", resp.body)
	w = wrappedResponse{}
	resp.decode(t, &w)
	assert.True(t, w.Success)
	var list struct {
		ID          string    `json:"id"`
		Name        string    `json:"name"`
		Description string    `json:"description"`
		FamilyID    string    `json:"familyId"`
		Items       []apiItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Data, &list))
	assert.Equal(t, "Party", list.Name)
	assert.Equal(t, "saturday", list.Description)
	assert.Equal(t, e.smith.ID, list.FamilyID)
	require.Len(t, list.Items, 1)
	assert.Equal(t, milk.ID, list.Items[0].ID)

	resp = e.do(t, http.MethodPost, "/api/shopping/lists", alice, map[string]any{"name": "Party"})
	assert.Equal(t, http.StatusBadRequest, resp.status)

	resp = e.do(t, http.MethodGet, "/api/shopping/lists", alice, nil)
	w = wrappedResponse{}
	resp.decode(t, &w)
	var lists []json.RawMessage
	require.NoError(t, json.Unmarshal(w.Data, &lists))
	assert.Len(t, lists, 2)

	resp = e.do(t, http.MethodGet, "/api/shopping/lists/missing", alice, nil)
	assert.Equal(t, http.StatusNotFound, resp.status)
	w = wrappedResponse{}
	resp.decode(t, &w)
	assert.Equal(t, "LIST_NOT_FOUND", w.Error.Code)

	resp = e.do(t, http.MethodGet, "/api/shopping/lists/"+list.ID, bob, nil)
	assert.Equal(t, http.StatusForbidden, resp.status)

	resp = e.do(t, http.MethodPut, "/api/shopping/lists/"+list.ID, carl, map[string]any{"name": "Birthday", "items": []any{}})
	require.Equal(t, http.StatusOK, resp.status, "body: %s", resp.body)
	w = wrappedResponse{}
	resp.decode(t, &w)
	assert.Contains(t, string(w.Data), `"name":"Birthday"`)
	assert.Contains(t, string(w.Data), `"items":[]`)

	resp = e.do(t, http.MethodDelete, "/api/shopping/lists/"+list.ID, carl, nil)
	assert.Equal(t, http.StatusForbidden, resp.status)
	w = wrappedResponse{}
	resp.decode(t, &w)
	assert.Equal(t, "User not authorized to delete shopping lists", w.Error.Message)

	resp = e.do(t, http.MethodDelete, "/api/shopping/lists/"+list.ID, alice, nil)
	assert.Equal(t, http.StatusOK, resp.status)
	assert.JSONEq(t, `{"success":true,"data":{"message":"Shopping list deleted successfully"}}`, string(resp.body))
}

func TestIntegration_PluginItems(t *testing.T) {
	skipShort(t)
	e := newTestServer(t, options{})
	alice, mia, bob := e.token(t, e.alice), e.token(t, e.mia), e.token(t, e.bob)

	resp := e.do(t, http.MethodPost, "/api/shopping/items", mia, map[string]any{"name": "Cake", "listNames": []string{"Party"}})
	assert.Equal(t, http.StatusForbidden, resp.status)
	var w wrappedResponse
	resp.decode(t, &w)
	assert.Equal(t, "User not authorized to create shopping items", w.Error.Message)

	resp = e.do(t, http.MethodPost, "/api/shopping/items", alice, map[string]any{"name": "Cake", "listNames": []string{"Party"}})
	require.Equal(t, http.StatusCreated, resp.status, "body: %s", resp.body)
	w = wrappedResponse{}
	resp.decode(t, &w)
	var item apiItem
	require.NoError(t, json.Unmarshal(w.Data, &item))
	assert.Equal(t, e.smith.ID, item.FamilyID)

	resp = e.do(t, http.MethodGet, "/api/shopping/items/"+item.ID, mia, nil)
	assert.Equal(t, http.StatusOK, resp.status, "reading needs no capability")

	resp = e.do(t, http.MethodGet, "/api/shopping/items/missing", alice, nil)
	assert.Equal(t, http.StatusNotFound, resp.status)

	resp = e.do(t, http.MethodGet, "/api/shopping/items/"+item.ID, bob, nil)
	assert.Equal(t, http.StatusForbidden, resp.status)
	w = wrappedResponse{}
	resp.decode(t, &w)
	assert.Equal(t, "You do not have access to this shopping item", w.Error.Message)

	resp = e.do(t, http.MethodPut, "/api/shopping/items/"+item.ID, bob, map[string]any{"purchased": true})
	assert.Equal(t, http.StatusForbidden, resp.status)

	resp = e.do(t, http.MethodPut, "/api/shopping/items/"+item.ID, mia, map[string]any{"purchased": true})
	w = wrappedResponse{}
	resp.decode(t, &w)
	assert.Equal(t, "User not authorized to update shopping items", w.Error.Message)

	resp = e.do(t, http.MethodPut, "/api/shopping/items/"+item.ID, alice, map[string]any{"purchased": true})
	require.Equal(t, http.StatusOK, resp.status)

	resp = e.do(t, http.MethodGet, "/api/shopping/items?purchased=true", alice, nil)
	w = wrappedResponse{}
	resp.decode(t, &w)
	var items []apiItem
	require.NoError(t, json.Unmarshal(w.Data, &items))
	require.Len(t, items, 1)
	assert.True(t, items[0].Purchased)

	resp = e.do(t, http.MethodDelete, "/api/shopping/items/"+item.ID, alice, nil)
	assert.JSONEq(t, `{"success":true,"data":{"message":"Shopping item deleted successfully"}}`, string(resp.body))
}

func TestIntegration_HealthAndMetrics(t *testing.T) {
	skipShort(t)
	e := newTestServer(t, options{})
	e.createItem(t, e.alice, map[string]any{"name": "Milk", "listNames": []string{"Groceries"}})

	resp := e.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.status)
	var h struct {
		Status    string `json:"status"`
		Timestamp int64  `json:"timestamp"`
		Message   string `json:"message"`
		Metrics   struct {
			TotalLists int `json:"totalLists"`
		} `json:"metrics"`
	}
	resp.decode(t, &h)
	assert.Equal(t, "healthy", h.Status)
	assert.NotZero(t, h.Timestamp)
	assert.Equal(t, "nosniff", resp.header.Get("X-Content-Type-Options"))

	resp = e.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, string(resp.body), "shopping_http_requests_total")
	assert.Contains(t, string(resp.body), `route="POST /api/families/{familyId}/shopping"`)
	assert.Contains(t, string(resp.body), "shopping_lists_total")

	require.NoError(t, e.db.Close())
	resp = e.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.status)
	assert.Contains(t, string(resp.body), "Database connection failed")
}

func TestIntegration_RateLimit(t *testing.T) {
	skipShort(t)
	e := newTestServer(t, options{rps: 2})
	tok := e.token(t, e.alice)

	statuses := make([]int, 0, 5)
	for range 5 {
		statuses = append(statuses, e.do(t, http.MethodGet, e.familyPath(e.smith, "/lists"), tok, nil).status)
	}
	assert.Equal(t, http.StatusOK, statuses[0])
	assert.Contains(t, statuses, http.StatusTooManyRequests)

	// Buckets are per caller.
	resp := e.do(t, http.MethodGet, e.familyPath(e.jones, "/lists"), e.token(t, e.bob), nil)
	assert.Equal(t, http.StatusOK, resp.status)

	// Bad tokens share the host's bucket even when every request dials anew.
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	t.Cleanup(client.CloseIdleConnections)
	anonymous := make([]int, 0, 5)
	for range 5 {
		req, err := http.NewRequest(http.MethodGet, e.srv.URL+e.familyPath(e.smith, ""), nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		res, err := client.Do(req)
		require.NoError(t, err)
		_ = res.Body.Close()
		anonymous = append(anonymous, res.StatusCode)
	}
	assert.Equal(t, http.StatusUnauthorized, anonymous[0])
	assert.Contains(t, anonymous, http.StatusTooManyRequests)
}
