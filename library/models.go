package library

import "time"

// Genre is the enumerated category a book is filed under.
type Genre string

const (
	GenreFiction    Genre = "FICTION"
	GenreNonFiction Genre = "NON_FICTION"
	GenreScience    Genre = "SCIENCE"
	GenreHistory    Genre = "HISTORY"
	GenreBiography  Genre = "BIOGRAPHY"
	GenreFantasy    Genre = "FANTASY"
)

// Genres lists every genre the API accepts, in display order.
var Genres = []Genre{GenreFiction, GenreNonFiction, GenreScience, GenreHistory, GenreBiography, GenreFantasy}

// Label renders the genre for humans ("NON_FICTION" -> "NON FICTION").
func (g Genre) Label() string {
	out := []byte(g)
	for i, c := range out {
		if c == '_' {
			out[i] = ' '
		}
	}
	return string(out)
}

// Book is the client's cached, possibly stale copy of a book record owned by the API.
type Book struct {
	ID              string    `json:"_id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Genre           Genre     `json:"genre"`
	ISBN            string    `json:"isbn"`
	Description     string    `json:"description,omitempty"`
	Copies          int       `json:"copies"`
	AvailableCopies int       `json:"availableCopies"`
	Available       bool      `json:"available"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// IsAvailable reports whether at least one copy can be borrowed.
func (b *Book) IsAvailable() bool {
	return b.AvailableCopies > 0
}

// TakeCopies removes n copies from the available count and recomputes the
// availability flag. A negative n puts copies back.
func (b *Book) TakeCopies(n int) {
	b.AvailableCopies -= n
	b.Available = b.AvailableCopies > 0
}

// BookInput is the request body for creating a book. An empty description
// is left out.
type BookInput struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Genre       Genre  `json:"genre"`
	ISBN        string `json:"isbn"`
	Description string `json:"description,omitempty"`
	Copies      int    `json:"copies"`
	Available   bool   `json:"available"`
}

// BookUpdate is the request body for editing a book. Every editable field is
// sent, so an empty description clears the stored one.
type BookUpdate struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Genre       Genre  `json:"genre"`
	ISBN        string `json:"isbn"`
	Description string `json:"description"`
	Copies      int    `json:"copies"`
	Available   bool   `json:"available"`
}

// BorrowStatus is owned by the API; the client never transitions it.
type BorrowStatus string

const (
	BorrowActive   BorrowStatus = "active"
	BorrowReturned BorrowStatus = "returned"
	BorrowOverdue  BorrowStatus = "overdue"
)

// Borrow is a borrow record created by the borrow mutation.
type Borrow struct {
	ID         string       `json:"_id"`
	BookID     string       `json:"book"`
	Quantity   int          `json:"quantity"`
	DueDate    time.Time    `json:"dueDate"`
	BorrowDate time.Time    `json:"borrowDate"`
	Status     BorrowStatus `json:"status"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// BorrowInput is the request body of the borrow mutation.
type BorrowInput struct {
	BookID   string    `json:"book"`
	Quantity int       `json:"quantity"`
	DueDate  time.Time `json:"dueDate"`
}

// BorrowSummaryItem aggregates the quantity currently borrowed for one book.
// It is derived server-side and read-only.
type BorrowSummaryItem struct {
	BookID                string `json:"bookId"`
	BookTitle             string `json:"bookTitle"`
	BookISBN              string `json:"bookISBN"`
	TotalQuantityBorrowed int    `json:"totalQuantityBorrowed"`
}
