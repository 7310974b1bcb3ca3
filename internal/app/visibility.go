package app

import (
	"fmt"

	"virtuallibrary/pkg/domain"
)

// ToggleBookVisibility hides or unhides a book for one user. Both
// directions are idempotent. The overlay is purely presentational; order
// history, payments, and stock are never touched.
func (a *App) ToggleBookVisibility(userID, bookID string, hide bool) error {
	if _, ok, err := a.store.GetBook(bookID); err != nil {
		return fmt.Errorf("lookup book: %w", err)
	} else if !ok {
		return ErrBookNotFound
	}
	if hide {
		return a.store.HideBook(userID, bookID, a.now())
	}
	return a.store.UnhideBook(userID, bookID)
}

// ListVisibleBooks returns the catalog minus the user's hidden set.
func (a *App) ListVisibleBooks(userID string) ([]domain.Book, error) {
	books, err := a.store.ListBooks()
	if err != nil {
		return nil, err
	}
	hiddenIDs, err := a.store.ListHiddenBookIDs(userID)
	if err != nil {
		return nil, err
	}
	hidden := make(map[string]struct{}, len(hiddenIDs))
	for _, id := range hiddenIDs {
		hidden[id] = struct{}{}
	}
	visible := make([]domain.Book, 0, len(books))
	for _, b := range books {
		if _, isHidden := hidden[b.ID]; !isHidden {
			visible = append(visible, b)
		}
	}
	return visible, nil
}

// ListHiddenPurchased returns the user's purchased books that are currently
// hidden, for the restore-from-hidden view. A book bought more than once
// appears once, with its most recent purchase.
func (a *App) ListHiddenPurchased(userID string) ([]domain.PurchasedBook, error) {
	hiddenIDs, err := a.store.ListHiddenBookIDs(userID)
	if err != nil {
		return nil, err
	}
	hidden := make(map[string]struct{}, len(hiddenIDs))
	for _, id := range hiddenIDs {
		hidden[id] = struct{}{}
	}
	purchased, err := a.store.ListPurchasedBooks(userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []domain.PurchasedBook
	for _, p := range purchased {
		if _, isHidden := hidden[p.ID]; !isHidden {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}
