package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-client/library"
	"library-client/librarytest"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"LIBRARY_CACHE_PATH", "LIBRARY_REDIS_URL", "LIBRARY_LOG_LEVEL", "LIBRARY_PAGE_LIMIT"} {
		t.Setenv(k, "")
	}
}

func run(t *testing.T, srv *librarytest.Server, stdin string, args ...string) (string, error) {
	t.Helper()
	isolateEnv(t)

	c := newCLI()
	var out, errOut bytes.Buffer
	c.root.SetArgs(append([]string{"--api", srv.URL()}, args...))
	c.root.SetIn(strings.NewReader(stdin))
	c.root.SetOut(&out)
	c.root.SetErr(&errOut)

	err := c.root.ExecuteContext(context.Background())
	require.NoError(t, c.close())
	return out.String(), err
}

func seedDune(srv *librarytest.Server) library.Book {
	return srv.Seed(library.BookInput{
		Title: "Dune", Author: "Frank Herbert", Genre: library.GenreFiction,
		ISBN: "9780441013593", Copies: 3, Available: true,
	})
}

func TestBooksCommand(t *testing.T) {
	srv := librarytest.Start(t)
	seedDune(srv)

	out, err := run(t, srv, "", "books")
	require.NoError(t, err)
	assert.Contains(t, out, "All Books")
	assert.Contains(t, out, "Dune")
	assert.Contains(t, out, "Available (3)")
	assert.Contains(t, out, "Showing 1 books (requested 10)")
}

func TestBooksCommandFilters(t *testing.T) {
	srv := librarytest.Start(t)
	seedDune(srv)
	srv.Seed(library.BookInput{Title: "Cosmos", Author: "Carl Sagan", Genre: library.GenreScience, ISBN: "0345539435", Copies: 1, Available: true})

	out, err := run(t, srv, "", "books", "--genre", "science")
	require.NoError(t, err)
	assert.Contains(t, out, "SCIENCE books")
	assert.Contains(t, out, "Cosmos")
	assert.NotContains(t, out, "Dune")

	_, err = run(t, srv, "", "books", "--genre", "poetry")
	assert.Error(t, err)
}

func TestBookCreate(t *testing.T) {
	srv := librarytest.Start(t)

	out, err := run(t, srv, "", "book", "create",
		"--title", "Dune", "--author", "Frank Herbert", "--genre", "FICTION",
		"--isbn", "978-0-441-01359-3", "--copies", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "✔ Book added successfully!")
	assert.Equal(t, 1, srv.Requests(http.MethodPost, "/books"))
}

func TestBookCreateInvalid(t *testing.T) {
	srv := librarytest.Start(t)

	out, err := run(t, srv, "", "book", "create", "--title", "Dune", "--author", "F", "--genre", "FICTION", "--isbn", "12345", "--copies", "0")
	var rep reportedError
	require.True(t, errors.As(err, &rep), "want reported error, got %v", err)
	assert.Contains(t, out, "  ! isbn:")
	assert.Contains(t, out, "  ! copies: Total copies must be at least 1")
	assert.Zero(t, srv.Requests(http.MethodPost, "/books"))
}

func TestBookEditKeepsUnchangedFields(t *testing.T) {
	srv := librarytest.Start(t)
	book := seedDune(srv)

	out, err := run(t, srv, "", "book", "edit", book.ID, "--copies", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "✔ Book updated successfully!")

	got, _ := srv.Book(book.ID)
	assert.Equal(t, 5, got.Copies)
	assert.Equal(t, "Dune", got.Title)
}

func TestBookEditClearsDescription(t *testing.T) {
	srv := librarytest.Start(t)
	book := srv.Seed(library.BookInput{
		Title: "Dune", Author: "Frank Herbert", Genre: library.GenreFiction,
		ISBN: "9780441013593", Description: "Desert planet", Copies: 3, Available: true,
	})

	out, err := run(t, srv, "", "book", "edit", book.ID, "--description", "")
	require.NoError(t, err)
	assert.Contains(t, out, "✔ Book updated successfully!")

	got, _ := srv.Book(book.ID)
	assert.Empty(t, got.Description)
	assert.Equal(t, "Dune", got.Title)
	assert.Equal(t, 3, got.Copies)
}

func TestShellEditClearsDescription(t *testing.T) {
	srv := librarytest.Start(t)
	book := srv.Seed(library.BookInput{
		Title: "Dune", Author: "Frank Herbert", Genre: library.GenreFiction,
		ISBN: "9780441013593", Description: "Desert planet", Copies: 3, Available: true,
	})

	// Keep title, author, genre, ISBN and copies; clear the description.
	script := strings.Join([]string{"edit book", book.ID, "", "", "", "", "-", "", "exit"}, "\n") + "\n"
	out, err := run(t, srv, script, "shell")
	require.NoError(t, err)
	assert.Contains(t, out, "✔ Book updated successfully!")

	got, _ := srv.Book(book.ID)
	assert.Empty(t, got.Description)
	assert.Equal(t, "Frank Herbert", got.Author)
	assert.Equal(t, 3, got.Copies)
}

func TestBorrowCommand(t *testing.T) {
	srv := librarytest.Start(t)
	book := seedDune(srv)

	out, err := run(t, srv, "", "borrow", book.ID, "--quantity", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "✔ Book borrowed successfully!")
	got, _ := srv.Book(book.ID)
	assert.Equal(t, 1, got.AvailableCopies)

	out, err = run(t, srv, "", "borrow", book.ID, "--quantity", "2")
	assert.Error(t, err)
	assert.Contains(t, out, "Cannot borrow more than 1 copy")
}

func TestBorrowServerRejection(t *testing.T) {
	srv := librarytest.Start(t)
	book := seedDune(srv)
	srv.FailNext(http.MethodPost, "/borrows", http.StatusBadRequest, "Not enough copies available")

	out, err := run(t, srv, "", "borrow", book.ID)
	assert.Error(t, err)
	assert.Contains(t, out, "✖ Not enough copies available")
}

func TestDeleteAsksForConfirmation(t *testing.T) {
	srv := librarytest.Start(t)
	book := seedDune(srv)

	out, err := run(t, srv, "n\n", "book", "delete", book.ID)
	require.NoError(t, err)
	assert.Contains(t, out, `permanently delete the book "Dune"`)
	assert.Contains(t, out, "Cancelled.")
	_, ok := srv.Book(book.ID)
	assert.True(t, ok)

	out, err = run(t, srv, "", "book", "delete", "--yes", book.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "✔ Book deleted successfully!")
	_, ok = srv.Book(book.ID)
	assert.False(t, ok)
}

func TestSummaryErrorPanel(t *testing.T) {
	srv := librarytest.Start(t)
	srv.FailNext(http.MethodGet, "/borrows/summary", http.StatusInternalServerError, "Database unavailable")

	out, err := run(t, srv, "", "summary")
	assert.Error(t, err)
	assert.Contains(t, out, "Error loading data\nDatabase unavailable")
}

func TestShellSession(t *testing.T) {
	srv := librarytest.Start(t)
	book := seedDune(srv)

	script := strings.Join([]string{
		"list books",
		"borrow", book.ID, "2", "",
		"list books",
		"summary",
		"bogus",
		"exit",
	}, "\n") + "\n"

	out, err := run(t, srv, script, "shell")
	require.NoError(t, err)
	assert.Contains(t, out, "All Books  |  Add Book  |  Borrow Summary")
	assert.Contains(t, out, "Available (3)")
	assert.Contains(t, out, "✔ Book borrowed successfully!")
	assert.Contains(t, out, "Available (1)")
	assert.Contains(t, out, "Page 1 of 1")
	assert.Contains(t, out, "Unknown command.")
	assert.Contains(t, out, "Goodbye!")
	assert.Equal(t, 2, srv.Requests(http.MethodGet, "/books"))
}
