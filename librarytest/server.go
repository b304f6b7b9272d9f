// Package librarytest runs an in-memory stand-in for the remote library API
// so the client can be exercised end to end without a network.
package librarytest

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"library-client/library"
)

const basePath = "/api"

type fault struct {
	method  string
	path    string
	status  int
	message string
}

// Server is an httptest server speaking the library API's JSON envelope.
type Server struct {
	mu       sync.Mutex
	books    map[string]*library.Book
	order    []string
	borrows  []library.Borrow
	faults   []fault
	requests map[string]int
	onBorrow func(library.BorrowInput)
	now      func() time.Time

	engine *gin.Engine
	srv    *httptest.Server
}

// Start runs a fresh server and closes it when the test ends.
func Start(t testing.TB) *Server {
	t.Helper()
	s := New()
	t.Cleanup(s.Close)
	return s
}

// New runs a fresh server. Callers must Close it.
func New() *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		books:    make(map[string]*library.Book),
		requests: make(map[string]int),
		now:      time.Now,
	}
	s.engine = gin.New()
	s.engine.Use(s.record, s.injectFaults)

	api := s.engine.Group(basePath)
	api.GET("/books", s.listBooks)
	api.GET("/books/:id", s.getBook)
	api.POST("/books", s.createBook)
	api.PATCH("/books/:id", s.updateBook)
	api.PUT("/books/:id", s.updateBook)
	api.DELETE("/books/:id", s.deleteBook)
	api.POST("/borrows", s.borrowBook)
	api.GET("/borrows/summary", s.borrowSummary)

	s.srv = httptest.NewServer(s.engine)
	return s
}

// URL is the API base URL, including the /api prefix.
func (s *Server) URL() string { return s.srv.URL + basePath }

func (s *Server) Close() { s.srv.Close() }

// Seed stores a book directly, bypassing the HTTP surface.
func (s *Server) Seed(in library.BookInput) library.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.insertLocked(in)
}

// Book returns the server-side state of a book.
func (s *Server) Book(id string) (library.Book, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return library.Book{}, false
	}
	return *b, true
}

// FailNext makes the next request matching method and path (relative to the
// API root, e.g. "/borrows") fail with status and message.
func (s *Server) FailNext(method, path string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, fault{method: method, path: path, status: status, message: message})
}

// OnBorrow registers a hook run before a borrow request is answered.
func (s *Server) OnBorrow(hook func(library.BorrowInput)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onBorrow = hook
}

// Requests returns how many requests reached method and path.
func (s *Server) Requests(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method+" "+path]
}

// ------------------ middleware ------------------

func (s *Server) record(c *gin.Context) {
	path := strings.TrimPrefix(c.Request.URL.Path, basePath)
	s.mu.Lock()
	s.requests[c.Request.Method+" "+path]++
	s.mu.Unlock()
	c.Next()
}

func (s *Server) injectFaults(c *gin.Context) {
	path := strings.TrimPrefix(c.Request.URL.Path, basePath)

	s.mu.Lock()
	for i, f := range s.faults {
		if f.method == c.Request.Method && f.path == path {
			s.faults = append(s.faults[:i], s.faults[i+1:]...)
			s.mu.Unlock()
			fail(c, f.status, f.message)
			return
		}
	}
	s.mu.Unlock()
	c.Next()
}

// ------------------ handlers ------------------

func (s *Server) listBooks(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fail(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	s.mu.Lock()
	books := make([]library.Book, 0, len(s.order))
	for _, id := range s.order {
		if limit > 0 && len(books) == limit {
			break
		}
		books = append(books, *s.books[id])
	}
	s.mu.Unlock()

	ok(c, http.StatusOK, "Books retrieved successfully", books)
}

func (s *Server) getBook(c *gin.Context) {
	book, found := s.Book(c.Param("id"))
	if !found {
		fail(c, http.StatusNotFound, "Book not found")
		return
	}
	ok(c, http.StatusOK, "Book retrieved successfully", book)
}

func (s *Server) createBook(c *gin.Context) {
	var in library.BookInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}
	if msg := checkBook(in); msg != "" {
		fail(c, http.StatusBadRequest, msg)
		return
	}

	s.mu.Lock()
	for _, b := range s.books {
		if b.ISBN == in.ISBN {
			s.mu.Unlock()
			fail(c, http.StatusBadRequest, "A book with this ISBN already exists")
			return
		}
	}
	book := *s.insertLocked(in)
	s.mu.Unlock()

	ok(c, http.StatusCreated, "Book created successfully", book)
}

// bookPatch holds the fields present in an update request. Absent fields
// keep their stored value.
type bookPatch struct {
	Title       *string        `json:"title"`
	Author      *string        `json:"author"`
	Genre       *library.Genre `json:"genre"`
	ISBN        *string        `json:"isbn"`
	Description *string        `json:"description"`
	Copies      *int           `json:"copies"`
}

func (p bookPatch) applyTo(b library.Book) library.Book {
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Author != nil {
		b.Author = *p.Author
	}
	if p.Genre != nil {
		b.Genre = *p.Genre
	}
	if p.ISBN != nil {
		b.ISBN = *p.ISBN
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.Copies != nil {
		borrowed := b.Copies - b.AvailableCopies
		b.Copies = *p.Copies
		b.AvailableCopies = max(b.Copies-borrowed, 0)
		b.Available = b.AvailableCopies > 0
	}
	return b
}

func (s *Server) updateBook(c *gin.Context) {
	var patch bookPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	s.mu.Lock()
	b, found := s.books[c.Param("id")]
	if !found {
		s.mu.Unlock()
		fail(c, http.StatusNotFound, "Book not found")
		return
	}
	next := patch.applyTo(*b)
	msg := checkBook(library.BookInput{Title: next.Title, Author: next.Author, Genre: next.Genre, Copies: next.Copies})
	if msg != "" {
		s.mu.Unlock()
		fail(c, http.StatusBadRequest, msg)
		return
	}
	next.UpdatedAt = s.now().UTC()
	*b = next
	s.mu.Unlock()

	ok(c, http.StatusOK, "Book updated successfully", next)
}

func (s *Server) deleteBook(c *gin.Context) {
	id := c.Param("id")

	s.mu.Lock()
	_, found := s.books[id]
	if found {
		delete(s.books, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if !found {
		fail(c, http.StatusNotFound, "Book not found")
		return
	}
	ok(c, http.StatusOK, "Book deleted successfully", nil)
}

func (s *Server) borrowBook(c *gin.Context) {
	var in library.BorrowInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	s.mu.Lock()
	hook := s.onBorrow
	s.mu.Unlock()
	if hook != nil {
		hook(in)
	}

	if in.Quantity < 1 {
		fail(c, http.StatusBadRequest, "Quantity must be at least 1")
		return
	}

	s.mu.Lock()
	b, found := s.books[in.BookID]
	if !found {
		s.mu.Unlock()
		fail(c, http.StatusNotFound, "Book not found")
		return
	}
	if in.Quantity > b.AvailableCopies {
		s.mu.Unlock()
		fail(c, http.StatusBadRequest, "Not enough copies available")
		return
	}
	now := s.now().UTC()
	b.TakeCopies(in.Quantity)
	b.UpdatedAt = now
	borrow := library.Borrow{
		ID:         uuid.NewString(),
		BookID:     in.BookID,
		Quantity:   in.Quantity,
		DueDate:    in.DueDate,
		BorrowDate: now,
		Status:     library.BorrowActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.borrows = append(s.borrows, borrow)
	s.mu.Unlock()

	ok(c, http.StatusCreated, "Book borrowed successfully", borrow)
}

func (s *Server) borrowSummary(c *gin.Context) {
	s.mu.Lock()
	totals := make(map[string]int)
	for _, br := range s.borrows {
		if br.Status == library.BorrowActive {
			totals[br.BookID] += br.Quantity
		}
	}
	items := make([]library.BorrowSummaryItem, 0, len(totals))
	for id, total := range totals {
		b, found := s.books[id]
		if !found {
			continue
		}
		items = append(items, library.BorrowSummaryItem{
			BookID:                id,
			BookTitle:             b.Title,
			BookISBN:              b.ISBN,
			TotalQuantityBorrowed: total,
		})
	}
	s.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].BookTitle < items[j].BookTitle })
	ok(c, http.StatusOK, "Borrowed books summary retrieved successfully", items)
}

// ------------------ helpers ------------------

func (s *Server) insertLocked(in library.BookInput) *library.Book {
	now := s.now().UTC()
	b := &library.Book{
		ID:              uuid.NewString(),
		Title:           in.Title,
		Author:          in.Author,
		Genre:           in.Genre,
		ISBN:            in.ISBN,
		Description:     in.Description,
		Copies:          in.Copies,
		AvailableCopies: in.Copies,
		Available:       in.Copies > 0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.books[b.ID] = b
	s.order = append(s.order, b.ID)
	return b
}

func checkBook(in library.BookInput) string {
	switch {
	case in.Title == "" || in.Author == "":
		return "Validation failed: title and author are required"
	case !library.IsGenre(string(in.Genre)):
		return "Validation failed: invalid genre"
	case in.Copies < 0:
		return "Validation failed: copies must be a non-negative number"
	}
	return ""
}

func ok(c *gin.Context, status int, message string, data any) {
	c.JSON(status, gin.H{"success": true, "message": message, "data": data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}
