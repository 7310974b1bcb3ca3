package app

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"virtuallibrary/internal/util"
	"virtuallibrary/pkg/domain"
)

const (
	uploadExpiry   = 15 * time.Minute
	downloadExpiry = time.Hour
)

// PresignUpload issues a direct-upload PUT URL for a new cover or book
// file. The returned key is what admins store on the book afterwards.
func (a *App) PresignUpload(ctx context.Context, kind, filename string) (key, url string, err error) {
	if a.objects == nil {
		return "", "", validationf("file storage not available")
	}
	var prefix string
	switch kind {
	case "cover":
		prefix = "covers/"
	case "file":
		prefix = "files/"
	default:
		return "", "", validationf("kind must be cover or file")
	}
	ext := strings.ToLower(path.Ext(filename))
	key = prefix + util.NewID() + ext
	url, err = a.objects.PresignPut(ctx, key, uploadExpiry)
	if err != nil {
		return "", "", fmt.Errorf("presign upload: %w", err)
	}
	return key, url, nil
}

// CoverDownloadURL issues a download URL for a book's cover image.
func (a *App) CoverDownloadURL(ctx context.Context, bookID string) (string, error) {
	if a.objects == nil {
		return "", validationf("file storage not available")
	}
	book, err := a.GetBook(bookID)
	if err != nil {
		return "", err
	}
	if book.CoverKey == "" {
		return "", ErrBookNotFound
	}
	url, err := a.objects.PresignGet(ctx, book.CoverKey, downloadExpiry)
	if err != nil {
		return "", fmt.Errorf("presign cover: %w", err)
	}
	return url, nil
}

// BookFileURL issues a download URL for the book file itself. Customers
// must have bought the book in a completed order; admins are exempt.
func (a *App) BookFileURL(ctx context.Context, user domain.User, bookID string) (string, error) {
	if a.objects == nil {
		return "", validationf("file storage not available")
	}
	book, err := a.GetBook(bookID)
	if err != nil {
		return "", err
	}
	if book.FileKey == "" {
		return "", ErrBookNotFound
	}
	if user.Role != domain.RoleAdmin {
		purchased, err := a.store.ListPurchasedBooks(user.ID)
		if err != nil {
			return "", fmt.Errorf("check purchases: %w", err)
		}
		owned := false
		for _, p := range purchased {
			if p.ID == bookID {
				owned = true
				break
			}
		}
		if !owned {
			return "", ErrOrderNotFound
		}
	}
	url, err := a.objects.PresignGet(ctx, book.FileKey, downloadExpiry)
	if err != nil {
		return "", fmt.Errorf("presign file: %w", err)
	}
	return url, nil
}
