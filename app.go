package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"library-client/api"
	"library-client/cache"
	"library-client/config"
	"library-client/library"
	"library-client/librarian"
	"library-client/notify"
	"library-client/views"
)

// app holds everything one invocation needs. The shell keeps a single app,
// and therefore a single cache, for its whole session.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	mgr     *librarian.Manager
	view    *views.Renderer
	in      io.Reader
	out     io.Writer
	now     func() time.Time
	closers []func() error
}

func newApp(cfg *config.Config, in io.Reader, out, errOut io.Writer) (*app, error) {
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	a := &app{cfg: cfg, logger: logger, in: in, out: out, now: time.Now, view: views.New(out)}

	storeOpts := []cache.Option{cache.WithKeepUnusedFor(cfg.CacheKeepUnused), cache.WithLogger(logger)}
	var snap *cache.SQLiteSnapshotter
	if cfg.CachePath != "" {
		var err error
		if snap, err = cache.OpenSQLite(cfg.CachePath); err != nil {
			return nil, fmt.Errorf("open cache %s: %w", cfg.CachePath, err)
		}
		storeOpts = append(storeOpts, cache.WithSnapshotter(snap))
	}
	store, err := cache.NewStore(storeOpts...)
	if err != nil {
		if snap != nil {
			snap.Close()
		}
		return nil, fmt.Errorf("restore cache: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	var history notify.History = notify.NewMemoryHistory(cfg.NotifyHistory)
	if cfg.RedisURL != "" {
		rh, err := notify.NewRedisHistory(cfg.RedisURL, cfg.NotifyHistory)
		if err != nil {
			logger.Warn("redis unavailable, keeping notifications in memory", slog.Any("error", err))
		} else {
			history = rh
			a.closers = append(a.closers, rh.Close)
		}
	}

	notes := notify.NewCenter(out, history, notify.WithLogger(logger))
	client := api.NewClient(cfg.APIBaseURL, api.WithTimeout(cfg.HTTPTimeout), api.WithLogger(logger))
	a.mgr = librarian.NewManager(client, store, notes, librarian.WithLogger(logger))

	logger.Debug("client ready",
		slog.String("api", client.BaseURL()),
		slog.Bool("cache_snapshot", snap != nil),
		slog.Bool("redis_history", cfg.RedisURL != ""))
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// reportedError marks an error the user has already seen, as a notification,
// an error panel or inline field errors.
type reportedError struct{ err error }

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return reportedError{err: err}
}

// ------------------ Actions shared by commands and the shell ------------------

func (a *app) listBooks(ctx context.Context, limit int, f librarian.Filter) error {
	books, err := a.mgr.ListBooks(ctx, limit)
	if err != nil {
		a.view.ErrorPanel("Error loading books!", err)
		return reported(err)
	}
	if f != (librarian.Filter{}) {
		books = librarian.FilterBooks(books, f)
	}
	fmt.Fprintf(a.out, "%s\n\n", f.Title())
	a.view.BookList(books, limit)
	return nil
}

func (a *app) showBook(ctx context.Context, id string) error {
	book, err := a.mgr.GetBook(ctx, id)
	if err != nil {
		title := "Error loading book!"
		if api.StatusCode(err) == http.StatusNotFound {
			title = "Book Not Found"
		}
		a.view.ErrorPanel(title, err)
		return reported(err)
	}
	a.view.BookDetail(book)
	return nil
}

func (a *app) createBook(ctx context.Context, form library.BookForm) error {
	book, err := a.mgr.CreateBook(ctx, form)
	if err != nil {
		return a.mutationFailed(err)
	}
	fmt.Fprintf(a.out, "Created %q (ID: %s)\n", book.Title, book.ID)
	return nil
}

func (a *app) updateBook(ctx context.Context, id string, form library.BookForm) error {
	book, err := a.mgr.UpdateBook(ctx, id, form)
	if err != nil {
		return a.mutationFailed(err)
	}
	fmt.Fprintf(a.out, "%s now has %d copies (%d available)\n", book.Title, book.Copies, book.AvailableCopies)
	return nil
}

func (a *app) deleteBook(ctx context.Context, id string) error {
	return reported(a.mgr.DeleteBook(ctx, id))
}

func (a *app) borrow(ctx context.Context, form library.BorrowForm) error {
	borrow, err := a.mgr.BorrowBook(ctx, form)
	if err != nil {
		return a.mutationFailed(err)
	}
	fmt.Fprintf(a.out, "Borrowed %d %s, due %s\n", borrow.Quantity, copies(borrow.Quantity), borrow.DueDate.Format(library.DueDateLayout))
	return nil
}

func (a *app) summary(ctx context.Context, page int) ([]library.BorrowSummaryItem, error) {
	items, err := a.mgr.BorrowSummary(ctx)
	if err != nil {
		a.view.ErrorPanel("Error loading data", err)
		return nil, reported(err)
	}
	a.view.Summary(items, views.NewPager(len(items), page))
	return items, nil
}

func (a *app) notifications(limit int) error {
	ns, err := a.mgr.Notifications(limit)
	if err != nil {
		return err
	}
	a.view.Notifications(ns)
	return nil
}

// mutationFailed renders what the manager did not already report.
func (a *app) mutationFailed(err error) error {
	var verr *library.ValidationError
	switch {
	case errors.As(err, &verr):
		a.view.FieldErrors(verr)
	case errors.Is(err, library.ErrBookUnavailable):
		fmt.Fprintln(a.out, "This book is currently not available for borrowing.")
	case isFetchError(err):
		a.view.ErrorPanel("Error loading book!", err)
	}
	return reported(err)
}

// isFetchError reports errors raised while loading the book a borrow refers
// to, which happen before any notification is shown.
func isFetchError(err error) bool {
	var fe librarian.FetchError
	return errors.As(err, &fe)
}

func copies(n int) string {
	if n == 1 {
		return "copy"
	}
	return "copies"
}
