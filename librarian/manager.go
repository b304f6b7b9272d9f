// Package librarian is the facade the command line talks to. It routes reads
// through the query cache, applies optimistic updates around borrows and
// reports the outcome of every mutation as a notification.
package librarian

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"library-client/api"
	"library-client/cache"
	"library-client/library"
	"library-client/notify"
)

// Cache endpoints.
const (
	EndpointBooks   = "books.list"
	EndpointBook    = "books.get"
	EndpointSummary = "borrows.summary"
)

const (
	// DefaultLimit is the page size of the book list.
	DefaultLimit = 10
	// MaxLimit caps how far "more books" can grow the list.
	MaxLimit = 100
)

const limitStep = 10

// Backend is the remote API as the manager uses it. *api.Client satisfies it.
type Backend interface {
	ListBooks(ctx context.Context, limit int) ([]library.Book, error)
	GetBook(ctx context.Context, id string) (library.Book, error)
	CreateBook(ctx context.Context, in library.BookInput) (library.Book, error)
	UpdateBook(ctx context.Context, id string, in library.BookUpdate) (library.Book, error)
	DeleteBook(ctx context.Context, id string) (string, error)
	BorrowBook(ctx context.Context, in library.BorrowInput) (library.Borrow, error)
	BorrowSummary(ctx context.Context) ([]library.BorrowSummaryItem, error)
}

// FetchError means the book a borrow refers to could not be loaded. Nothing
// was patched or sent.
type FetchError struct{ Err error }

func (e FetchError) Error() string { return "load book: " + e.Err.Error() }
func (e FetchError) Unwrap() error { return e.Err }

// Manager is safe for concurrent use; all shared state lives in the store.
type Manager struct {
	backend Backend
	store   *cache.Store
	notes   *notify.Center
	now     func() time.Time
	logger  *slog.Logger
}

type Option func(*Manager)

// WithClock replaces time.Now for due-date checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager wires a backend to a cache store and a notification center.
func NewManager(backend Backend, store *cache.Store, notes *notify.Center, opts ...Option) *Manager {
	m := &Manager{
		backend: backend,
		store:   store,
		notes:   notes,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store exposes the query cache, mainly for inspection.
func (m *Manager) Store() *cache.Store { return m.store }

// Notifications returns up to limit recent notifications, newest first.
func (m *Manager) Notifications(limit int) ([]notify.Notification, error) {
	return m.notes.Recent(limit)
}

// NextLimit grows a list page size by one step, capped at MaxLimit.
func NextLimit(limit int) int {
	return min(limit+limitStep, MaxLimit)
}

// ------------------ Queries ------------------

type listArgs struct {
	Limit int `json:"limit"`
}

// ListBooks returns up to limit books, from the cache when it holds a fresh copy.
func (m *Manager) ListBooks(ctx context.Context, limit int) ([]library.Book, error) {
	books, err := cache.Query(ctx, m.store, cache.QueryDef[[]library.Book]{
		Endpoint: EndpointBooks,
		Args:     listArgs{Limit: limit},
		Fetch: func(ctx context.Context) ([]library.Book, error) {
			return m.backend.ListBooks(ctx, limit)
		},
		Tags: func(books []library.Book) []cache.Tag {
			tags := make([]cache.Tag, 0, len(books)+1)
			tags = append(tags, listTag)
			for _, b := range books {
				tags = append(tags, bookTag(b.ID))
			}
			return tags
		},
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(books), nil
}

// GetBook returns one book, from the cache when it holds a fresh copy.
func (m *Manager) GetBook(ctx context.Context, id string) (library.Book, error) {
	return cache.Query(ctx, m.store, cache.QueryDef[library.Book]{
		Endpoint: EndpointBook,
		Args:     id,
		Fetch: func(ctx context.Context) (library.Book, error) {
			return m.backend.GetBook(ctx, id)
		},
		Tags: func(library.Book) []cache.Tag { return []cache.Tag{bookTag(id)} },
	})
}

// BorrowSummary returns the per-book totals of active borrows.
func (m *Manager) BorrowSummary(ctx context.Context) ([]library.BorrowSummaryItem, error) {
	items, err := cache.Query(ctx, m.store, cache.QueryDef[[]library.BorrowSummaryItem]{
		Endpoint: EndpointSummary,
		Fetch:    m.backend.BorrowSummary,
		Tags:     func([]library.BorrowSummaryItem) []cache.Tag { return []cache.Tag{summaryTag} },
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(items), nil
}

// ------------------ Mutations ------------------

// CreateBook validates form and creates the book. A *library.ValidationError
// means nothing was sent.
func (m *Manager) CreateBook(ctx context.Context, form library.BookForm) (library.Book, error) {
	in, err := library.ValidateBook(form, library.CreateMode)
	if err != nil {
		return library.Book{}, err
	}

	book, err := m.backend.CreateBook(ctx, in)
	if err != nil {
		m.notes.Error("Failed to add book: " + api.Message(err, "Unknown error"))
		return library.Book{}, err
	}

	m.store.Invalidate(listTag)
	m.notes.Success("Book added successfully!")
	m.logger.Info("book created", slog.String("book_id", book.ID), slog.String("isbn", book.ISBN))
	return book, nil
}

// UpdateBook validates form with the edit rules and saves it.
func (m *Manager) UpdateBook(ctx context.Context, id string, form library.BookForm) (library.Book, error) {
	in, err := library.ValidateBookUpdate(form)
	if err != nil {
		return library.Book{}, err
	}

	book, err := m.backend.UpdateBook(ctx, id, in)
	if err != nil {
		m.notes.Error(updateFailure(id, err))
		return library.Book{}, err
	}

	m.store.Invalidate(bookTag(id), listTag)
	m.notes.Success("Book updated successfully!")
	m.logger.Info("book updated", slog.String("book_id", id))
	return book, nil
}

// DeleteBook deletes a book. Confirmation is the caller's job.
func (m *Manager) DeleteBook(ctx context.Context, id string) error {
	if _, err := m.backend.DeleteBook(ctx, id); err != nil {
		m.notes.Error("Failed to delete book: " + api.Message(err, "Unknown error"))
		return err
	}

	m.store.Invalidate(bookTag(id), listTag)
	m.notes.Success("Book deleted successfully!")
	m.logger.Info("book deleted", slog.String("book_id", id))
	return nil
}

// BorrowBook validates form against the currently known book, patches every
// cached list holding that book before the request is sent, and reverts that
// patch if the request fails.
func (m *Manager) BorrowBook(ctx context.Context, form library.BorrowForm) (library.Borrow, error) {
	id := strings.TrimSpace(form.BookID)
	if id == "" {
		return library.Borrow{}, &library.ValidationError{
			Fields: []library.FieldError{{Field: "book", Message: "Please select a book"}},
		}
	}

	book, err := m.GetBook(ctx, id)
	if err != nil {
		return library.Borrow{}, FetchError{Err: err}
	}
	in, err := library.ValidateBorrow(form, book, m.now())
	if err != nil {
		return library.Borrow{}, err
	}

	patch := cache.UpdateQueryData(m.store, EndpointBooks, takeCopies(in.BookID, in.Quantity))
	m.logger.Debug("borrow sent",
		slog.String("book_id", in.BookID),
		slog.Int("quantity", in.Quantity),
		slog.Int("patched_lists", patch.Applied()))

	borrow, err := m.backend.BorrowBook(ctx, in)
	if err != nil {
		reverted := patch.Undo()
		m.notes.Error(api.Message(err, "Failed to borrow book"))
		m.logger.Warn("borrow failed",
			slog.String("book_id", in.BookID),
			slog.Int("reverted_lists", reverted),
			slog.Any("error", err))
		return library.Borrow{}, err
	}

	m.store.Invalidate(listTag, summaryTag, bookTag(in.BookID))
	m.notes.Success("Book borrowed successfully!")
	return borrow, nil
}

// takeCopies removes quantity copies of book id from a cached list. The
// inverse puts exactly those copies back, so concurrent borrows of the same
// book revert independently.
func takeCopies(id string, quantity int) cache.Recipe[[]library.Book] {
	return func(cur []library.Book) ([]library.Book, func([]library.Book) []library.Book, bool) {
		next, changed := adjustCopies(cur, id, quantity)
		if !changed {
			return cur, nil, false
		}
		undo := func(v []library.Book) []library.Book {
			out, _ := adjustCopies(v, id, -quantity)
			return out
		}
		return next, undo, true
	}
}

func adjustCopies(books []library.Book, id string, n int) ([]library.Book, bool) {
	i := slices.IndexFunc(books, func(b library.Book) bool { return b.ID == id })
	if i < 0 {
		return books, false
	}
	out := slices.Clone(books)
	out[i].TakeCopies(n)
	return out, true
}

func updateFailure(id string, err error) string {
	if msg := api.Message(err, ""); msg != "" {
		return msg
	}
	switch api.StatusCode(err) {
	case http.StatusNotFound:
		return fmt.Sprintf("Book not found (ID: %s). The book may have been deleted.", id)
	case http.StatusBadRequest:
		return "Invalid book data. Please check your input."
	case http.StatusInternalServerError:
		return "Server error. Please try again later."
	}
	return "Failed to update book"
}
