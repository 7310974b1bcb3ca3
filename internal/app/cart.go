package app

import (
	"errors"
	"fmt"

	"virtuallibrary/internal/store"
	"virtuallibrary/internal/util"
	"virtuallibrary/pkg/domain"
)

// AddToCart puts a book in the user's cart. A (user, book) pair may appear
// at most once.
func (a *App) AddToCart(userID, bookID string, quantity int) (domain.CartItem, error) {
	if quantity < 1 {
		return domain.CartItem{}, validationf("quantity must be at least 1")
	}
	if _, ok, err := a.store.GetBook(bookID); err != nil {
		return domain.CartItem{}, fmt.Errorf("lookup book: %w", err)
	} else if !ok {
		return domain.CartItem{}, ErrBookNotFound
	}
	item := domain.CartItem{
		ID:       util.NewID(),
		UserID:   userID,
		BookID:   bookID,
		Quantity: quantity,
	}
	if err := a.store.AddCartItem(item); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.CartItem{}, ErrDuplicateCartEntry
		}
		return domain.CartItem{}, fmt.Errorf("add cart item: %w", err)
	}
	return item, nil
}

// RemoveFromCart deletes one cart row owned by the user.
func (a *App) RemoveFromCart(userID, itemID string) error {
	removed, err := a.store.RemoveCartItem(userID, itemID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	if !removed {
		return ErrCartItemNotFound
	}
	return nil
}

// ListCart returns the user's cart joined with live book data. Prices here
// are current catalog prices; they are only snapshotted at order creation.
func (a *App) ListCart(userID string) ([]domain.CartLine, error) {
	return a.store.ListCart(userID)
}
