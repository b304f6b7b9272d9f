package librarian

import (
	"fmt"
	"strings"

	"library-client/library"
)

// Filter narrows an already fetched list. Zero fields match everything.
type Filter struct {
	Genre     library.Genre
	Author    string
	ExcludeID string
}

func (f Filter) match(b library.Book) bool {
	if f.ExcludeID != "" && b.ID == f.ExcludeID {
		return false
	}
	if f.Genre != "" && b.Genre != f.Genre {
		return false
	}
	if f.Author != "" && !strings.EqualFold(strings.TrimSpace(b.Author), strings.TrimSpace(f.Author)) {
		return false
	}
	return true
}

// FilterBooks returns the books matching f, preserving order.
func FilterBooks(books []library.Book, f Filter) []library.Book {
	out := make([]library.Book, 0, len(books))
	for _, b := range books {
		if f.match(b) {
			out = append(out, b)
		}
	}
	return out
}

// SameGenre is the filter behind "More <genre> books" on a detail screen.
func SameGenre(b library.Book) Filter {
	return Filter{Genre: b.Genre, ExcludeID: b.ID}
}

// SameAuthor is the filter behind "More by <author>" on a detail screen.
func SameAuthor(b library.Book) Filter {
	return Filter{Author: b.Author, ExcludeID: b.ID}
}

// Title describes a list narrowed by f.
func (f Filter) Title() string {
	switch {
	case f.Genre != "" && f.Author != "":
		return fmt.Sprintf("%s books by %s", f.Genre.Label(), f.Author)
	case f.Genre != "":
		return fmt.Sprintf("%s books", f.Genre.Label())
	case f.Author != "":
		return "Books by " + f.Author
	}
	return "All Books"
}
