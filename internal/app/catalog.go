package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"

	"virtuallibrary/internal/ingest"
	"virtuallibrary/internal/store"
	"virtuallibrary/internal/util"
	"virtuallibrary/pkg/domain"
)

// BookInput carries catalog fields for create/update.
type BookInput struct {
	Title       string
	Author      string
	Description string
	Price       decimal.Decimal
	Stock       int
	CategoryID  string
	CoverKey    string
	FileKey     string
}

// stripHTML flattens markup in descriptions to plain text.
func stripHTML(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	tok := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		tt := tok.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			b.Write(tok.Text())
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func (a *App) validateBookInput(in BookInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return validationf("title required")
	}
	if strings.TrimSpace(in.Author) == "" {
		return validationf("author required")
	}
	if in.Price.IsNegative() {
		return validationf("price must not be negative")
	}
	if in.Stock < 0 {
		return validationf("stock must not be negative")
	}
	if in.CategoryID != "" {
		if _, ok, err := a.store.GetCategory(in.CategoryID); err != nil {
			return fmt.Errorf("lookup category: %w", err)
		} else if !ok {
			return ErrCategoryNotFound
		}
	}
	return nil
}

// CreateBook adds a catalog item. Attaching a file queues metadata
// extraction.
func (a *App) CreateBook(in BookInput) (domain.Book, error) {
	if err := a.validateBookInput(in); err != nil {
		return domain.Book{}, err
	}
	now := a.now()
	book := domain.Book{
		ID:          util.NewID(),
		Title:       strings.TrimSpace(in.Title),
		Author:      strings.TrimSpace(in.Author),
		Description: stripHTML(in.Description),
		Price:       in.Price,
		Stock:       in.Stock,
		CategoryID:  in.CategoryID,
		CoverKey:    in.CoverKey,
		FileKey:     in.FileKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	if book.FileKey != "" {
		a.publishIngest(book.ID, book.FileKey)
	}
	return book, nil
}

// UpdateBook replaces catalog fields. Order lines hold their own price
// snapshots, so price changes never touch historical orders.
func (a *App) UpdateBook(id string, in BookInput) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("lookup book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	if err := a.validateBookInput(in); err != nil {
		return domain.Book{}, err
	}
	fileChanged := in.FileKey != "" && in.FileKey != book.FileKey
	book.Title = strings.TrimSpace(in.Title)
	book.Author = strings.TrimSpace(in.Author)
	book.Description = stripHTML(in.Description)
	book.Price = in.Price
	book.Stock = in.Stock
	book.CategoryID = in.CategoryID
	book.CoverKey = in.CoverKey
	book.FileKey = in.FileKey
	book.UpdatedAt = a.now()
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	if fileChanged {
		a.publishIngest(book.ID, book.FileKey)
	}
	return book, nil
}

// DeleteBook removes a catalog item. Order lines keep their snapshots.
func (a *App) DeleteBook(id string) error {
	if _, ok, err := a.store.GetBook(id); err != nil {
		return fmt.Errorf("lookup book: %w", err)
	} else if !ok {
		return ErrBookNotFound
	}
	return a.store.DeleteBook(id)
}

// GetBook looks up one catalog item.
func (a *App) GetBook(id string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("lookup book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	return book, nil
}

// ListBooks returns the full catalog without any visibility overlay.
func (a *App) ListBooks() ([]domain.Book, error) {
	return a.store.ListBooks()
}

// ListCategories returns all categories sorted by name.
func (a *App) ListCategories() ([]domain.Category, error) {
	return a.store.ListCategories()
}

// CreateCategory adds a category; names are unique.
func (a *App) CreateCategory(name string) (domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, validationf("category name required")
	}
	c := domain.Category{ID: util.NewID(), Name: name}
	if err := a.store.SaveCategory(c); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Category{}, validationf("category already exists")
		}
		return domain.Category{}, fmt.Errorf("save category: %w", err)
	}
	return c, nil
}

func (a *App) publishIngest(bookID, fileKey string) {
	if a.ingest == nil {
		return
	}
	ev := ingest.Event{BookID: bookID, FileKey: fileKey}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.ingest.PublishIngest(ctx, ev); err != nil {
			slog.Error("catalog.ingest", "book", bookID, "error", err)
		}
	}()
}
