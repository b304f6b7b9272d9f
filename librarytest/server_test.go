package librarytest

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-client/library"
)

func patch(t *testing.T, srv *Server, id, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPatch, srv.URL()+"/books/"+id, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUpdateAppliesOnlyPresentFields(t *testing.T) {
	srv := Start(t)
	book := srv.Seed(library.BookInput{
		Title: "Dune", Author: "Frank Herbert", Genre: library.GenreFiction,
		ISBN: "9780441013593", Description: "Desert planet", Copies: 3, Available: true,
	})

	resp := patch(t, srv, book.ID, `{"copies":5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, _ := srv.Book(book.ID)
	assert.Equal(t, 5, got.Copies)
	assert.Equal(t, 5, got.AvailableCopies)
	assert.Equal(t, "Dune", got.Title)
	assert.Equal(t, "Desert planet", got.Description)

	resp = patch(t, srv, book.ID, `{"description":""}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, _ = srv.Book(book.ID)
	assert.Empty(t, got.Description)
	assert.Equal(t, 5, got.Copies)
}

func TestUpdateRejectsInvalidResult(t *testing.T) {
	srv := Start(t)
	book := srv.Seed(library.BookInput{Title: "Dune", Author: "Frank Herbert", Genre: library.GenreFiction, ISBN: "9780441013593", Copies: 3, Available: true})

	resp := patch(t, srv, book.ID, `{"title":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	got, _ := srv.Book(book.ID)
	assert.Equal(t, "Dune", got.Title)

	resp = patch(t, srv, "missing", `{"copies":1}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
