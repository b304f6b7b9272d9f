package library

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DueDateLayout is the calendar-date format used by the borrow form.
const DueDateLayout = "2006-01-02"

// DefaultLoanPeriod is how far in the future a borrow is due unless the user picks a date.
const DefaultLoanPeriod = 14 * 24 * time.Hour

// ErrBookUnavailable is returned when a borrow is attempted on a book with no copies left.
var ErrBookUnavailable = errors.New("this book is currently not available for borrowing")

var (
	isbnChars  = regexp.MustCompile(`^[0-9-]+$`)
	isbnDigits = regexp.MustCompile(`^\d{10}(\d{3})?$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string { return jsonName(f.Tag.Get("json"), f.Name) })
	_ = v.RegisterValidation("isbn_chars", func(fl validator.FieldLevel) bool {
		return isbnChars.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("isbn_digits", func(fl validator.FieldLevel) bool {
		return isbnDigits.MatchString(NormalizeISBN(fl.Field().String()))
	})
	_ = v.RegisterValidation("genre", func(fl validator.FieldLevel) bool {
		return IsGenre(fl.Field().String())
	})
	return v
}

// NormalizeISBN strips hyphens; the API stores bare digits.
func NormalizeISBN(isbn string) string {
	return strings.ReplaceAll(strings.TrimSpace(isbn), "-", "")
}

// ValidISBN reports whether isbn reduces to exactly 10 or 13 digits.
func ValidISBN(isbn string) bool {
	raw := strings.TrimSpace(isbn)
	return isbnChars.MatchString(raw) && isbnDigits.MatchString(NormalizeISBN(raw))
}

// IsGenre reports whether s names a known genre.
func IsGenre(s string) bool {
	for _, g := range Genres {
		if string(g) == s {
			return true
		}
	}
	return false
}

// FieldError is one inline message attached to a form field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects the field errors of a rejected form. Nothing is
// sent to the API when it is returned.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Message returns the message for field, or "" when the field is valid.
func (e *ValidationError) Message(field string) string {
	for _, f := range e.Fields {
		if f.Field == field {
			return f.Message
		}
	}
	return ""
}

func (e *ValidationError) add(field, msg string) {
	if e.Message(field) == "" {
		e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// ------------------ Book forms ------------------

// FormMode selects the create or edit rules for a book form.
type FormMode int

const (
	CreateMode FormMode = iota
	EditMode
)

// BookForm is what the user typed into the create/edit screen.
type BookForm struct {
	Title       string `json:"title" validate:"required"`
	Author      string `json:"author" validate:"required"`
	Genre       string `json:"genre" validate:"required,genre"`
	ISBN        string `json:"isbn" validate:"required,min=10,max=17,isbn_chars,isbn_digits"`
	Description string `json:"description"`
	Copies      int    `json:"copies"`
}

var bookMessages = map[string]string{
	"title.required":   "Title is required",
	"author.required":  "Author is required",
	"genre.required":   "Genre is required",
	"genre.genre":      "Genre must be one of " + genreList(),
	"isbn.required":    "ISBN is required",
	"isbn.min":         "ISBN must be at least 10 characters",
	"isbn.max":         "ISBN must be at most 17 characters (including hyphens)",
	"isbn.isbn_chars":  "ISBN can only contain numbers and hyphens",
	"isbn.isbn_digits": "Invalid ISBN format (must be 10 or 13 digits)",
}

// ValidateBook checks a book form and returns the request body to send.
func ValidateBook(form BookForm, mode FormMode) (BookInput, error) {
	form.Title = strings.TrimSpace(form.Title)
	form.Author = strings.TrimSpace(form.Author)
	form.Genre = strings.ToUpper(strings.TrimSpace(form.Genre))
	form.ISBN = strings.TrimSpace(form.ISBN)
	form.Description = strings.TrimSpace(form.Description)

	verr := &ValidationError{}
	collect(verr, validate.Struct(form), bookMessages)

	switch mode {
	case CreateMode:
		if form.Copies < 1 {
			verr.add("copies", "Total copies must be at least 1")
		}
	case EditMode:
		if form.Copies < 0 {
			verr.add("copies", "Copies cannot be negative")
		}
	}

	if err := verr.orNil(); err != nil {
		return BookInput{}, err
	}
	return BookInput{
		Title:       form.Title,
		Author:      form.Author,
		Genre:       Genre(form.Genre),
		ISBN:        NormalizeISBN(form.ISBN),
		Description: form.Description,
		Copies:      form.Copies,
		Available:   form.Copies > 0,
	}, nil
}

// ValidateBookUpdate checks an edit form and returns the PATCH body.
func ValidateBookUpdate(form BookForm) (BookUpdate, error) {
	in, err := ValidateBook(form, EditMode)
	if err != nil {
		return BookUpdate{}, err
	}
	return BookUpdate(in), nil
}

// FormFromBook pre-fills the edit screen with the current record.
func FormFromBook(b Book) BookForm {
	return BookForm{
		Title:       b.Title,
		Author:      b.Author,
		Genre:       string(b.Genre),
		ISBN:        b.ISBN,
		Description: b.Description,
		Copies:      b.Copies,
	}
}

// ------------------ Borrow form ------------------

// BorrowForm is what the user typed into the borrow screen.
type BorrowForm struct {
	BookID   string `json:"book" validate:"required"`
	Quantity int    `json:"quantity"`
	DueDate  string `json:"dueDate" validate:"required,datetime=2006-01-02"`
}

var borrowMessages = map[string]string{
	"book.required":    "Please select a book",
	"dueDate.required": "Due date is required",
	"dueDate.datetime": "Due date must be a date (YYYY-MM-DD)",
}

// DefaultDueDate is the pre-filled due date for a borrow submitted at now.
func DefaultDueDate(now time.Time) string {
	return now.Add(DefaultLoanPeriod).Format(DueDateLayout)
}

// NewBorrowForm returns a form for one copy due after the default loan period.
func NewBorrowForm(bookID string, now time.Time) BorrowForm {
	return BorrowForm{BookID: bookID, Quantity: 1, DueDate: DefaultDueDate(now)}
}

// ValidateBorrow checks a borrow form against the currently known state of the
// book. The API stays the authority and may still reject the request.
func ValidateBorrow(form BorrowForm, book Book, now time.Time) (BorrowInput, error) {
	if !book.Available || book.AvailableCopies <= 0 {
		return BorrowInput{}, ErrBookUnavailable
	}

	form.BookID = strings.TrimSpace(form.BookID)
	form.DueDate = strings.TrimSpace(form.DueDate)

	verr := &ValidationError{}
	collect(verr, validate.Struct(form), borrowMessages)

	switch {
	case form.Quantity < 1:
		verr.add("quantity", "Quantity must be at least 1")
	case form.Quantity > book.AvailableCopies:
		verr.add("quantity", fmt.Sprintf("Cannot borrow more than %d %s", book.AvailableCopies, plural(book.AvailableCopies, "copy", "copies")))
	}

	var due time.Time
	if verr.Message("dueDate") == "" {
		// The form already passed the datetime tag.
		due, _ = time.Parse(DueDateLayout, form.DueDate)
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if due.Before(today) {
			verr.add("dueDate", "Due date cannot be in the past")
		}
	}

	if err := verr.orNil(); err != nil {
		return BorrowInput{}, err
	}
	return BorrowInput{BookID: form.BookID, Quantity: form.Quantity, DueDate: due.UTC()}, nil
}

// ------------------ helpers ------------------

func collect(verr *ValidationError, err error, messages map[string]string) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return
	}
	for _, fe := range fieldErrs {
		msg, ok := messages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("failed %q check", fe.Tag())
		}
		verr.add(fe.Field(), msg)
	}
}

func jsonName(tag, fallback string) string {
	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return fallback
	}
	return name
}

func genreList() string {
	names := make([]string, len(Genres))
	for i, g := range Genres {
		names[i] = string(g)
	}
	return strings.Join(names, ", ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
