// Package views renders library data as plain-text screens.
package views

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"

	"library-client/api"
	"library-client/library"
	"library-client/notify"
)

// DefaultWidth is used when the output is not a terminal.
const DefaultWidth = 120

const minWidth = 80

// Renderer writes screens to an io.Writer.
type Renderer struct {
	w     io.Writer
	width int
}

// New renders to w, sizing tables to the terminal when w is one.
func New(w io.Writer) *Renderer {
	return &Renderer{w: w, width: detectWidth(w)}
}

// NewWithWidth renders to w with a fixed line width.
func NewWithWidth(w io.Writer, width int) *Renderer {
	return &Renderer{w: w, width: max(width, minWidth)}
}

func detectWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return DefaultWidth
	}
	cols, _, err := term.GetSize(int(f.Fd()))
	if err != nil || cols <= 0 {
		return DefaultWidth
	}
	return max(cols, minWidth)
}

func (r *Renderer) printf(format string, args ...any) {
	fmt.Fprintf(r.w, format, args...)
}

func (r *Renderer) rule(n int) {
	fmt.Fprintln(r.w, strings.Repeat("-", min(n, r.width)))
}

// Availability is the badge shown in the list: "Available (n)" or "Unavailable (n)".
func Availability(b library.Book) string {
	if b.Available {
		return fmt.Sprintf("Available (%d)", b.AvailableCopies)
	}
	return fmt.Sprintf("Unavailable (%d)", b.AvailableCopies)
}

// ------------------ Books ------------------

// BookList renders the table of books and the "Showing N books" footer.
func (r *Renderer) BookList(books []library.Book, requested int) {
	if len(books) == 0 {
		fmt.Fprintln(r.w, "No books found in the library.")
		return
	}

	// Fixed columns: #(4) author(22) genre(12) isbn(14) copies(7) availability(17) + gaps.
	titleW := max(r.width-4-22-12-14-7-17-7, 20)

	r.printf("%-4s %-*s %-22s %-12s %-14s %-7s %s\n", "#", titleW, "Title", "Author", "Genre", "ISBN", "Copies", "Availability")
	r.rule(4 + titleW + 22 + 12 + 14 + 7 + 17 + 6)
	for i, b := range books {
		r.printf("%-4d %-*s %-22s %-12s %-14s %-7d %s\n",
			i+1,
			titleW, truncate(b.Title, titleW),
			truncate(b.Author, 22),
			b.Genre.Label(),
			b.ISBN,
			b.Copies,
			Availability(b))
	}
	r.printf("\nShowing %d books (requested %d)\n", len(books), requested)
}

// BookDetail renders one book with its quick actions.
func (r *Renderer) BookDetail(b library.Book) {
	r.printf("%s\n", b.Title)
	r.printf("by %s\n", b.Author)
	r.rule(60)

	status := "Not Available"
	if b.Available {
		status = "Available"
	}
	r.printf("%-18s %s\n", "ID:", b.ID)
	r.printf("%-18s %s\n", "ISBN:", b.ISBN)
	r.printf("%-18s %s\n", "Genre:", b.Genre.Label())
	r.printf("%-18s %d\n", "Total Copies:", b.Copies)
	r.printf("%-18s %d\n", "Available Copies:", b.AvailableCopies)
	r.printf("%-18s %s\n", "Status:", status)
	if !b.CreatedAt.IsZero() {
		r.printf("%-18s %s\n", "Added:", b.CreatedAt.Format("2006-01-02"))
	}

	if b.Description != "" {
		r.printf("\nDescription\n%s\n", wrap(b.Description, min(r.width, 100)))
	}

	r.printf("\nQuick actions:\n")
	r.printf("  More %s books   (books --genre %s)\n", b.Genre.Label(), b.Genre)
	r.printf("  More by %s   (books --author %q)\n", b.Author, b.Author)
	if b.IsAvailable() {
		r.printf("  Borrow this book   (borrow %s)\n", b.ID)
	}
}

// BorrowHeader introduces the borrow form for b.
func (r *Renderer) BorrowHeader(b library.Book) {
	r.printf("Borrow Book\n")
	r.rule(60)
	r.printf("%s by %s\n", b.Title, b.Author)
	r.printf("ISBN %s | %s\n", b.ISBN, Availability(b))
}

// ------------------ Borrow summary ------------------

// SummaryPerPage is how many summary rows fit on one page.
const SummaryPerPage = 5

// Pager tracks the current page of a paged table. Pages are 1-based.
type Pager struct {
	Page  int
	Pages int
}

// NewPager clamps page into the range for n items.
func NewPager(n, page int) Pager {
	pages := (n + SummaryPerPage - 1) / SummaryPerPage
	return Pager{Pages: pages, Page: clamp(page, 1, max(pages, 1))}
}

func (p Pager) First() Pager { return Pager{Pages: p.Pages, Page: 1} }
func (p Pager) Last() Pager { return Pager{Pages: p.Pages, Page: max(p.Pages, 1)} }
func (p Pager) Prev() Pager { return Pager{Pages: p.Pages, Page: max(p.Page-1, 1)} }
func (p Pager) Next() Pager { return Pager{Pages: p.Pages, Page: clamp(p.Page+1, 1, max(p.Pages, 1))} }

// Bounds returns the slice bounds of the current page.
func (p Pager) Bounds(n int) (start, end int) {
	start = min((p.Page-1)*SummaryPerPage, n)
	end = min(start+SummaryPerPage, n)
	return start, end
}

// Summary renders one page of the borrow summary.
func (r *Renderer) Summary(items []library.BorrowSummaryItem, p Pager) {
	r.printf("Borrowed Books Summary\n")
	if len(items) == 0 {
		r.rule(60)
		fmt.Fprintln(r.w, "No borrowed books found.")
		return
	}
	r.printf("Overview of all borrowed books\n")

	titleW := max(min(r.width, 100)-14-16-2, 20)
	r.printf("%-*s %-14s %16s\n", titleW, "Title", "ISBN", "Total Quantity")
	r.rule(titleW + 14 + 16 + 2)

	start, end := p.Bounds(len(items))
	for _, it := range items[start:end] {
		r.printf("%-*s %-14s %16d\n", titleW, truncate(it.BookTitle, titleW), it.BookISBN, it.TotalQuantityBorrowed)
	}
	r.printf("\nShowing %d to %d of %d books\n", start+1, end, len(items))
	r.printf("Page %d of %d\n", p.Page, p.Pages)
}

// ------------------ Errors & notifications ------------------

// FieldErrors renders validation messages inline, one per field.
func (r *Renderer) FieldErrors(err *library.ValidationError) {
	for _, f := range err.Fields {
		r.printf("  ! %s: %s\n", f.Field, f.Message)
	}
}

// ErrorPanel renders a failed fetch. The server message is shown when there
// is one, otherwise "Something went wrong".
func (r *Renderer) ErrorPanel(title string, err error) {
	r.printf("%s\n", title)
	r.printf("%s\n", ErrorMessage(err))
}

// ErrorMessage picks the text shown for err on an error panel.
func ErrorMessage(err error) string {
	if errors.Is(err, api.ErrSchemaMismatch) {
		return "The server sent data in an unexpected format."
	}
	return api.Message(err, "Something went wrong")
}

// Notifications renders a notification history, newest first.
func (r *Renderer) Notifications(ns []notify.Notification) {
	if len(ns) == 0 {
		fmt.Fprintln(r.w, "No notifications yet.")
		return
	}
	for _, n := range ns {
		r.printf("%s  %s\n", n.At.Format("15:04:05"), n)
	}
}

// ------------------ helpers ------------------

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 3 {
		return string([]rune(s)[:n])
	}
	return string([]rune(s)[:n-3]) + "..."
}

func wrap(s string, width int) string {
	var (
		sb   strings.Builder
		line int
	)
	for i, word := range strings.Fields(s) {
		wl := utf8.RuneCountInString(word)
		if i > 0 {
			if line+1+wl > width {
				sb.WriteByte('\n')
				line = 0
			} else {
				sb.WriteByte(' ')
				line++
			}
		}
		sb.WriteString(word)
		line += wl
	}
	return sb.String()
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
