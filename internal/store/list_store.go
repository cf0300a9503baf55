package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vbonduro/famshop/internal/domain"
)

const listColumns = "l.id, l.family_id, l.name, l.description, l.created_at, l.updated_at"

type ListStore struct {
	db     *sql.DB
	limits Limits
	now    func() time.Time
}

func NewListStore(db *sql.DB, limits Limits) *ListStore {
	return &ListStore{db: db, limits: limits, now: time.Now}
}

// NewList describes an explicitly created list. ItemIDs are linked as-is;
// callers check that they belong to FamilyID.
type NewList struct {
	FamilyID    string
	Name        string
	Description string
	ItemIDs     []string
}

// ListUpdate is a partial update. A nil ItemIDs leaves membership alone; a
// non-nil one replaces it.
type ListUpdate struct {
	Name        *string
	Description *string
	ItemIDs     []string
}

func (s *ListStore) Create(ctx context.Context, in NewList) (*domain.ListWithItems, error) {
	id := uuid.NewString()
	ts := formatTime(s.now())

	var list *domain.ListWithItems
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO shopping_lists (id, family_id, name, description, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (family_id, name) DO NOTHING
		`, id, in.FamilyID, in.Name, in.Description, ts, ts)
		if err != nil {
			return fmt.Errorf("failed to create list: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		} else if n == 0 {
			return ErrDuplicateList
		}

		if err := checkListLimit(ctx, tx, in.FamilyID, s.limits); err != nil {
			return err
		}
		if err := linkListItems(ctx, tx, id, in.ItemIDs); err != nil {
			return err
		}
		if err := checkItemLimit(ctx, tx, []string{id}, s.limits); err != nil {
			return err
		}

		list, err = getList(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (s *ListStore) GetByID(ctx context.Context, id string) (*domain.ListWithItems, error) {
	return getList(ctx, s.db, id)
}

func (s *ListStore) ListByFamily(ctx context.Context, familyID string) ([]*domain.ListWithItems, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+listColumns+` FROM shopping_lists l WHERE l.family_id = ? ORDER BY l.name ASC
	`, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lists: %w", err)
	}
	lists, err := collectLists(rows)
	if err != nil {
		return nil, err
	}
	if err := attachItems(ctx, s.db, lists); err != nil {
		return nil, err
	}
	return lists, nil
}

// Names returns the family's list names in ascending order.
func (s *ListStore) Names(ctx context.Context, familyID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT name FROM shopping_lists WHERE family_id = ? ORDER BY name ASC
	`, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list names: %w", err)
	}
	defer closeRows(rows)

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan list name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating list names: %w", err)
	}
	return names, nil
}

func (s *ListStore) Update(ctx context.Context, id string, upd ListUpdate) (*domain.ListWithItems, error) {
	var list *domain.ListWithItems
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		current, err := getListRow(ctx, tx, id)
		if err != nil {
			return err
		}

		sets := []string{"updated_at = ?"}
		args := []any{formatTime(s.now())}
		if upd.Name != nil && *upd.Name != current.Name {
			var clash int
			if err := tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM shopping_lists WHERE family_id = ? AND name = ? AND id <> ?
			`, current.FamilyID, *upd.Name, id).Scan(&clash); err != nil {
				return fmt.Errorf("failed to check list name: %w", err)
			}
			if clash > 0 {
				return ErrDuplicateList
			}
			sets = append(sets, "name = ?")
			args = append(args, *upd.Name)
		}
		if upd.Description != nil {
			sets = append(sets, "description = ?")
			args = append(args, *upd.Description)
		}
		args = append(args, id)
		if _, err := tx.ExecContext(ctx,
			"UPDATE shopping_lists SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
			return fmt.Errorf("failed to update list: %w", err)
		}

		if upd.ItemIDs != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM shopping_list_items WHERE list_id = ?`, id); err != nil {
				return fmt.Errorf("failed to clear list items: %w", err)
			}
			if err := linkListItems(ctx, tx, id, upd.ItemIDs); err != nil {
				return err
			}
			if err := checkItemLimit(ctx, tx, []string{id}, s.limits); err != nil {
				return err
			}
		}

		list, err = getList(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// Delete removes the list and its join rows. Items stay.
func (s *ListStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM shopping_lists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete list: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Count counts lists across all families; nonEmpty restricts it to lists
// with at least one item.
func (s *ListStore) Count(ctx context.Context, nonEmpty bool) (int, error) {
	query := `SELECT COUNT(*) FROM shopping_lists l`
	if nonEmpty {
		query += ` WHERE EXISTS (SELECT 1 FROM shopping_list_items li WHERE li.list_id = l.id)`
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count lists: %w", err)
	}
	return n, nil
}

// upsertLists resolves each name to a list of familyID, creating the missing
// ones. The unique (family_id, name) constraint makes concurrent creators
// converge on one row.
func upsertLists(ctx context.Context, q queryer, familyID string, names []string, now time.Time) ([]domain.ShoppingList, error) {
	ts := formatTime(now)
	lists := make([]domain.ShoppingList, 0, len(names))
	for _, name := range distinct(names) {
		row := q.QueryRowContext(ctx, `
			INSERT INTO shopping_lists (id, family_id, name, description, created_at, updated_at)
			VALUES (?, ?, ?, '', ?, ?)
			ON CONFLICT (family_id, name) DO UPDATE SET name = excluded.name
			RETURNING id, family_id, name, description, created_at, updated_at
		`, uuid.NewString(), familyID, name, ts, ts)
		l, err := scanList(row)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert list %q: %w", name, err)
		}
		lists = append(lists, *l)
	}
	return lists, nil
}

func linkListItems(ctx context.Context, q queryer, listID string, itemIDs []string) error {
	for _, itemID := range distinct(itemIDs) {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO shopping_list_items (list_id, item_id) VALUES (?, ?) ON CONFLICT DO NOTHING
		`, listID, itemID); err != nil {
			return fmt.Errorf("failed to link item %s to list %s: %w", itemID, listID, err)
		}
	}
	return nil
}

func checkListLimit(ctx context.Context, q queryer, familyID string, limits Limits) error {
	if limits.MaxListsPerFamily <= 0 {
		return nil
	}
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM shopping_lists WHERE family_id = ?`, familyID).Scan(&n); err != nil {
		return fmt.Errorf("failed to count family lists: %w", err)
	}
	if n > limits.MaxListsPerFamily {
		return ErrListLimit
	}
	return nil
}

func checkItemLimit(ctx context.Context, q queryer, listIDs []string, limits Limits) error {
	if limits.MaxItemsPerList <= 0 || len(listIDs) == 0 {
		return nil
	}
	var most int
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(n), 0) FROM (
			SELECT COUNT(*) AS n FROM shopping_list_items
			WHERE list_id IN (`+placeholders(len(listIDs))+`)
			GROUP BY list_id
		)
	`, stringArgs(listIDs)...).Scan(&most)
	if err != nil {
		return fmt.Errorf("failed to count list items: %w", err)
	}
	if most > limits.MaxItemsPerList {
		return ErrItemLimit
	}
	return nil
}

func scanList(sc scanner) (*domain.ShoppingList, error) {
	l := &domain.ShoppingList{}
	var created, updated string
	if err := sc.Scan(&l.ID, &l.FamilyID, &l.Name, &l.Description, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if l.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if l.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return l, nil
}

func getListRow(ctx context.Context, q queryer, id string) (*domain.ShoppingList, error) {
	l, err := scanList(q.QueryRowContext(ctx, `
		SELECT `+listColumns+` FROM shopping_lists l WHERE l.id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get list: %w", err)
	}
	return l, nil
}

// getList returns nil, nil when the list does not exist.
func getList(ctx context.Context, q queryer, id string) (*domain.ListWithItems, error) {
	l, err := getListRow(ctx, q, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	lists := []*domain.ListWithItems{{ShoppingList: *l}}
	if err := attachItems(ctx, q, lists); err != nil {
		return nil, err
	}
	return lists[0], nil
}

func collectLists(rows *sql.Rows) ([]*domain.ListWithItems, error) {
	defer closeRows(rows)

	lists := make([]*domain.ListWithItems, 0)
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan list: %w", err)
		}
		lists = append(lists, &domain.ListWithItems{ShoppingList: *l})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lists: %w", err)
	}
	return lists, nil
}

// attachItems loads the items joined to each list in one query. Items
// loaded this way do not carry their own lists.
func attachItems(ctx context.Context, q queryer, lists []*domain.ListWithItems) error {
	if len(lists) == 0 {
		return nil
	}
	byID := make(map[string]*domain.ListWithItems, len(lists))
	ids := make([]string, 0, len(lists))
	for _, l := range lists {
		l.Items = make([]domain.ShoppingItem, 0)
		byID[l.ID] = l
		ids = append(ids, l.ID)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT li.list_id, `+itemColumns+`
		FROM shopping_list_items li
		JOIN shopping_items i ON i.id = li.item_id
		WHERE li.list_id IN (`+placeholders(len(ids))+`)
		ORDER BY i.created_at ASC, i.id ASC
	`, stringArgs(ids)...)
	if err != nil {
		return fmt.Errorf("failed to load list items: %w", err)
	}
	defer closeRows(rows)

	for rows.Next() {
		var listID string
		item, err := scanItem(rows, &listID)
		if err != nil {
			return fmt.Errorf("failed to scan list item: %w", err)
		}
		item.Lists = make([]domain.ShoppingList, 0)
		byID[listID].Items = append(byID[listID].Items, *item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating list items: %w", err)
	}
	return nil
}
