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

const itemColumns = "i.id, i.name, i.quantity, i.purchased, i.user_id, i.family_id, i.created_at, i.updated_at"

// sortColumns maps the public sort keys to columns.
var sortColumns = map[string]string{
	"id":        "i.id",
	"name":      "i.name",
	"quantity":  "i.quantity",
	"purchased": "i.purchased",
	"userId":    "i.user_id",
	"familyId":  "i.family_id",
	"createdAt": "i.created_at",
	"updatedAt": "i.updated_at",
}

// IsSortable reports whether field can be used as ItemFilter.SortBy.
func IsSortable(field string) bool {
	_, ok := sortColumns[field]
	return ok
}

type ItemStore struct {
	db     *sql.DB
	limits Limits
	now    func() time.Time
}

func NewItemStore(db *sql.DB, limits Limits) *ItemStore {
	return &ItemStore{db: db, limits: limits, now: time.Now}
}

// NewItem describes an item to create together with the names of the lists
// it goes on. Lists missing from the family are created.
type NewItem struct {
	Name      string
	Quantity  int
	Purchased bool
	UserID    string
	FamilyID  string
	ListNames []string
}

// ItemUpdate is a partial update. A nil ListNames leaves list membership
// alone; a non-nil one replaces it entirely.
type ItemUpdate struct {
	Name      *string
	Quantity  *int
	Purchased *bool
	ListNames []string
}

// Create upserts the named lists, inserts the item and links it to every
// list, all in one transaction.
func (s *ItemStore) Create(ctx context.Context, in NewItem) (*domain.ShoppingItem, error) {
	id := uuid.NewString()
	now := s.now()
	ts := formatTime(now)

	var item *domain.ShoppingItem
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		lists, err := upsertLists(ctx, tx, in.FamilyID, in.ListNames, now)
		if err != nil {
			return err
		}
		if err := checkListLimit(ctx, tx, in.FamilyID, s.limits); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO shopping_items (id, family_id, user_id, name, quantity, purchased, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, id, in.FamilyID, in.UserID, in.Name, in.Quantity, in.Purchased, ts, ts); err != nil {
			return fmt.Errorf("failed to create item: %w", err)
		}

		if err := linkItem(ctx, tx, id, lists); err != nil {
			return err
		}
		if err := checkItemLimit(ctx, tx, listIDs(lists), s.limits); err != nil {
			return err
		}

		item, err = getItem(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// GetByID returns nil, nil when the item does not exist.
func (s *ItemStore) GetByID(ctx context.Context, id string) (*domain.ShoppingItem, error) {
	item, err := getItem(ctx, s.db, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return item, err
}

// List returns the family's items matching filter, each with its lists.
func (s *ItemStore) List(ctx context.Context, familyID string, filter domain.ItemFilter) ([]*domain.ShoppingItem, error) {
	where := []string{"i.family_id = ?"}
	args := []any{familyID}

	if filter.Purchased != nil {
		where = append(where, "i.purchased = ?")
		args = append(args, *filter.Purchased)
	}
	if filter.ListName != "" {
		where = append(where, `EXISTS (
			SELECT 1 FROM shopping_list_items li
			JOIN shopping_lists l ON l.id = li.list_id
			WHERE li.item_id = i.id AND l.name = ?)`)
		args = append(args, filter.ListName)
	}
	addRange := func(column string, after, before *time.Time) {
		if after != nil {
			where = append(where, column+" >= ?")
			args = append(args, formatTime(*after))
		}
		if before != nil {
			where = append(where, column+" <= ?")
			args = append(args, formatTime(*before))
		}
	}
	addRange("i.created_at", filter.CreatedAfter, filter.CreatedBefore)
	addRange("i.updated_at", filter.UpdatedAfter, filter.UpdatedBefore)

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = sortColumns["createdAt"]
	}
	direction := "DESC"
	if strings.EqualFold(filter.Order, "asc") {
		direction = "ASC"
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM shopping_items i
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY `+column+` `+direction+`, i.id `+direction,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	items, err := collectItems(rows)
	if err != nil {
		return nil, err
	}
	if err := attachLists(ctx, s.db, items); err != nil {
		return nil, err
	}
	return items, nil
}

// Update applies upd in one transaction. When ListNames is set the item's
// join rows are deleted and recreated for the new set.
func (s *ItemStore) Update(ctx context.Context, id string, upd ItemUpdate) (*domain.ShoppingItem, error) {
	now := s.now()

	var item *domain.ShoppingItem
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var familyID string
		err := tx.QueryRowContext(ctx, `SELECT family_id FROM shopping_items WHERE id = ?`, id).Scan(&familyID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get item: %w", err)
		}

		sets := []string{"updated_at = ?"}
		args := []any{formatTime(now)}
		if upd.Name != nil {
			sets = append(sets, "name = ?")
			args = append(args, *upd.Name)
		}
		if upd.Quantity != nil {
			sets = append(sets, "quantity = ?")
			args = append(args, *upd.Quantity)
		}
		if upd.Purchased != nil {
			sets = append(sets, "purchased = ?")
			args = append(args, *upd.Purchased)
		}
		args = append(args, id)
		if _, err := tx.ExecContext(ctx,
			"UPDATE shopping_items SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
			return fmt.Errorf("failed to update item: %w", err)
		}

		if upd.ListNames != nil {
			lists, err := upsertLists(ctx, tx, familyID, upd.ListNames, now)
			if err != nil {
				return err
			}
			if err := checkListLimit(ctx, tx, familyID, s.limits); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM shopping_list_items WHERE item_id = ?`, id); err != nil {
				return fmt.Errorf("failed to clear item lists: %w", err)
			}
			if err := linkItem(ctx, tx, id, lists); err != nil {
				return err
			}
			if err := checkItemLimit(ctx, tx, listIDs(lists), s.limits); err != nil {
				return err
			}
		}

		item, err = getItem(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Delete removes the item; its join rows go with it.
func (s *ItemStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM shopping_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
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

// Count counts items across all families; purchasedOnly restricts it to
// purchased items.
func (s *ItemStore) Count(ctx context.Context, purchasedOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM shopping_items`
	if purchasedOnly {
		query += ` WHERE purchased = 1`
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return n, nil
}

// DeletePurchasedBefore removes purchased items last updated before cutoff.
func (s *ItemStore) DeletePurchasedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM shopping_items WHERE purchased = 1 AND updated_at < ?
	`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to archive items: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// NameCount is how often a family bought an item name.
type NameCount struct {
	Name  string
	Count int
}

// PurchaseHistory ranks names the family has purchased before, skipping any
// name that is currently on an open item. Names compare case-insensitively.
func (s *ItemStore) PurchaseHistory(ctx context.Context, familyID string, limit int) ([]NameCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT MIN(name), COUNT(*) AS n FROM shopping_items
		WHERE family_id = ? AND purchased = 1
		  AND LOWER(name) NOT IN (
			SELECT LOWER(name) FROM shopping_items WHERE family_id = ? AND purchased = 0
		  )
		GROUP BY LOWER(name)
		ORDER BY n DESC, MIN(name) ASC
		LIMIT ?
	`, familyID, familyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase history: %w", err)
	}
	defer closeRows(rows)

	history := make([]NameCount, 0)
	for rows.Next() {
		var nc NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan purchase history: %w", err)
		}
		history = append(history, nc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchase history: %w", err)
	}
	return history, nil
}

func linkItem(ctx context.Context, q queryer, itemID string, lists []domain.ShoppingList) error {
	for _, l := range lists {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO shopping_list_items (list_id, item_id) VALUES (?, ?) ON CONFLICT DO NOTHING
		`, l.ID, itemID); err != nil {
			return fmt.Errorf("failed to link item to list %s: %w", l.Name, err)
		}
	}
	return nil
}

func listIDs(lists []domain.ShoppingList) []string {
	ids := make([]string, len(lists))
	for i, l := range lists {
		ids[i] = l.ID
	}
	return ids
}

// scanItem scans the item columns, preceded by any lead destinations the
// query selects first.
func scanItem(sc scanner, lead ...any) (*domain.ShoppingItem, error) {
	item := &domain.ShoppingItem{}
	var created, updated string
	dest := append(lead, &item.ID, &item.Name, &item.Quantity, &item.Purchased,
		&item.UserID, &item.FamilyID, &created, &updated)
	if err := sc.Scan(dest...); err != nil {
		return nil, err
	}
	var err error
	if item.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if item.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return item, nil
}

func getItem(ctx context.Context, q queryer, id string) (*domain.ShoppingItem, error) {
	item, err := scanItem(q.QueryRowContext(ctx, `
		SELECT `+itemColumns+` FROM shopping_items i WHERE i.id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if err := attachLists(ctx, q, []*domain.ShoppingItem{item}); err != nil {
		return nil, err
	}
	return item, nil
}

func collectItems(rows *sql.Rows) ([]*domain.ShoppingItem, error) {
	defer closeRows(rows)

	items := make([]*domain.ShoppingItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}

// attachLists loads every item's lists with one join query.
func attachLists(ctx context.Context, q queryer, items []*domain.ShoppingItem) error {
	if len(items) == 0 {
		return nil
	}
	byID := make(map[string]*domain.ShoppingItem, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		item.Lists = make([]domain.ShoppingList, 0)
		byID[item.ID] = item
		ids = append(ids, item.ID)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT li.item_id, `+listColumns+`
		FROM shopping_list_items li
		JOIN shopping_lists l ON l.id = li.list_id
		WHERE li.item_id IN (`+placeholders(len(ids))+`)
		ORDER BY l.name ASC
	`, stringArgs(ids)...)
	if err != nil {
		return fmt.Errorf("failed to load item lists: %w", err)
	}
	defer closeRows(rows)

	for rows.Next() {
		var itemID string
		l := &domain.ShoppingList{}
		var created, updated string
		if err := rows.Scan(&itemID, &l.ID, &l.FamilyID, &l.Name, &l.Description, &created, &updated); err != nil {
			return fmt.Errorf("failed to scan item list: %w", err)
		}
		if l.CreatedAt, err = parseTime(created); err != nil {
			return err
		}
		if l.UpdatedAt, err = parseTime(updated); err != nil {
			return err
		}
		byID[itemID].Lists = append(byID[itemID].Lists, *l)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating item lists: %w", err)
	}
	return nil
}
