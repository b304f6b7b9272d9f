package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"library-client/library"
	"library-client/librarian"
	"library-client/views"
)

func (a *app) runShell(ctx context.Context) error {
	sc := bufio.NewScanner(a.in)
	limit := a.cfg.PageLimit

	fmt.Fprintln(a.out, "Library  |  All Books  |  Add Book  |  Borrow Summary")
	fmt.Fprintln(a.out, strings.Repeat("=", 54))
	fmt.Fprintf(a.out, "Connected to %s\n", a.cfg.APIBaseURL)
	printShellHelp(a.out)

	for {
		fmt.Fprint(a.out, "\n> ")
		if !sc.Scan() {
			break
		}
		cmd := strings.ToLower(strings.TrimSpace(sc.Text()))

		switch cmd {
		case "":
			continue
		case "list books", "all books":
			a.listBooks(ctx, limit, librarian.Filter{})
		case "more books":
			if limit >= librarian.MaxLimit {
				fmt.Fprintf(a.out, "Already showing the maximum of %d books.\n", librarian.MaxLimit)
				continue
			}
			limit = librarian.NextLimit(limit)
			a.listBooks(ctx, limit, librarian.Filter{})
		case "filter books":
			a.handleFilterBooks(ctx, sc, limit)
		case "show book":
			a.handleShowBook(ctx, sc)
		case "add book":
			a.handleAddBook(ctx, sc)
		case "edit book":
			a.handleEditBook(ctx, sc)
		case "delete book":
			a.handleDeleteBook(ctx, sc)
		case "borrow":
			a.handleBorrow(ctx, sc)
		case "summary", "borrow summary":
			a.handleSummary(ctx, sc)
		case "notifications":
			a.notifications(0)
		case "help":
			printShellHelp(a.out)
		case "exit", "quit":
			printFooter(a.out)
			return nil
		default:
			fmt.Fprintln(a.out, "Unknown command. Type 'help' to see the available commands.")
		}
	}

	printFooter(a.out)
	return sc.Err()
}

func printShellHelp(out io.Writer) {
	fmt.Fprintln(out, "Available commands:")
	fmt.Fprintln(out, "  Books: list books, more books, filter books, show book, add book, edit book, delete book")
	fmt.Fprintln(out, "  Borrowing: borrow, summary")
	fmt.Fprintln(out, "  System: notifications, help, exit")
}

func printFooter(out io.Writer) {
	fmt.Fprintln(out, strings.Repeat("=", 54))
	fmt.Fprintln(out, "Minimal Library Management System. Goodbye!")
}

// prompt reads one trimmed line. ok is false when input ended.
func prompt(sc *bufio.Scanner, out io.Writer, label string) (string, bool) {
	fmt.Fprint(out, label)
	if !sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(sc.Text()), true
}

// clearValue typed at a promptDefault prompt empties the field.
const clearValue = "-"

// promptDefault shows current in brackets and keeps it on an empty answer.
func promptDefault(sc *bufio.Scanner, out io.Writer, label, current string) (string, bool) {
	v, ok := prompt(sc, out, fmt.Sprintf("%s [%s]: ", label, current))
	if !ok {
		return "", false
	}
	switch v {
	case "":
		return current, true
	case clearValue:
		return "", true
	}
	return v, true
}

func (a *app) handleFilterBooks(ctx context.Context, sc *bufio.Scanner, limit int) {
	genre, ok := prompt(sc, a.out, "Genre (empty for any): ")
	if !ok {
		return
	}
	author, ok := prompt(sc, a.out, "Author (empty for any): ")
	if !ok {
		return
	}
	f := librarian.Filter{Genre: library.Genre(strings.ToUpper(genre)), Author: author}
	if f.Genre != "" && !library.IsGenre(string(f.Genre)) {
		fmt.Fprintf(a.out, "Unknown genre %q.\n", genre)
		return
	}
	a.listBooks(ctx, limit, f)
}

func (a *app) handleShowBook(ctx context.Context, sc *bufio.Scanner) {
	id, ok := prompt(sc, a.out, "Book ID: ")
	if !ok || id == "" {
		return
	}
	a.showBook(ctx, id)
}

func (a *app) handleAddBook(ctx context.Context, sc *bufio.Scanner) {
	var form library.BookForm
	fields := []struct {
		label string
		dst   *string
	}{
		{"Title: ", &form.Title},
		{"Author: ", &form.Author},
		{"Genre (" + genreChoices() + "): ", &form.Genre},
		{"ISBN: ", &form.ISBN},
		{"Description (optional): ", &form.Description},
	}
	for _, f := range fields {
		v, ok := prompt(sc, a.out, f.label)
		if !ok {
			return
		}
		*f.dst = v
	}

	raw, ok := prompt(sc, a.out, "Copies: ")
	if !ok {
		return
	}
	copies, err := strconv.Atoi(raw)
	if err != nil {
		fmt.Fprintf(a.out, "  ! copies: Copies must be a whole number\n")
		return
	}
	form.Copies = copies

	a.createBook(ctx, form)
}

func (a *app) handleEditBook(ctx context.Context, sc *bufio.Scanner) {
	id, ok := prompt(sc, a.out, "Book ID: ")
	if !ok || id == "" {
		return
	}
	book, err := a.mgr.GetBook(ctx, id)
	if err != nil {
		a.view.ErrorPanel("Book Not Found", err)
		return
	}

	form := library.FormFromBook(book)
	fmt.Fprintf(a.out, "Press Enter to keep the current value, or %s to clear it.\n", clearValue)
	for _, f := range []struct {
		label string
		dst   *string
	}{
		{"Title", &form.Title},
		{"Author", &form.Author},
		{"Genre", &form.Genre},
		{"ISBN", &form.ISBN},
		{"Description", &form.Description},
	} {
		v, ok := promptDefault(sc, a.out, f.label, *f.dst)
		if !ok {
			return
		}
		*f.dst = v
	}

	raw, ok := promptDefault(sc, a.out, "Copies", strconv.Itoa(form.Copies))
	if !ok {
		return
	}
	copies, err := strconv.Atoi(raw)
	if err != nil {
		fmt.Fprintf(a.out, "  ! copies: Copies must be a whole number\n")
		return
	}
	form.Copies = copies

	a.updateBook(ctx, id, form)
}

func (a *app) handleDeleteBook(ctx context.Context, sc *bufio.Scanner) {
	id, ok := prompt(sc, a.out, "Book ID: ")
	if !ok || id == "" {
		return
	}
	book, err := a.mgr.GetBook(ctx, id)
	if err != nil {
		a.view.ErrorPanel("Book Not Found", err)
		return
	}
	if !confirmDelete(sc, a.out, book) {
		fmt.Fprintln(a.out, "Cancelled.")
		return
	}
	a.deleteBook(ctx, id)
}

// confirmDelete asks before a book is permanently removed.
func confirmDelete(sc *bufio.Scanner, out io.Writer, book library.Book) bool {
	fmt.Fprintln(out, "Are you sure?")
	fmt.Fprintf(out, "This action cannot be undone. This will permanently delete the book %q from the library.\n", book.Title)
	answer, ok := prompt(sc, out, "Delete? [y/N]: ")
	if !ok {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

func (a *app) handleBorrow(ctx context.Context, sc *bufio.Scanner) {
	id, ok := prompt(sc, a.out, "Book ID: ")
	if !ok || id == "" {
		return
	}
	book, err := a.mgr.GetBook(ctx, id)
	if err != nil {
		a.view.ErrorPanel("Book Not Found", err)
		return
	}

	a.view.BorrowHeader(book)
	if !book.IsAvailable() {
		fmt.Fprintln(a.out, "This book is currently not available for borrowing.")
		return
	}

	form := library.NewBorrowForm(book.ID, a.now())
	raw, ok := promptDefault(sc, a.out, fmt.Sprintf("Quantity (max %d)", book.AvailableCopies), "1")
	if !ok {
		return
	}
	qty, err := strconv.Atoi(raw)
	if err != nil {
		fmt.Fprintf(a.out, "  ! quantity: Quantity must be a whole number\n")
		return
	}
	form.Quantity = qty

	if form.DueDate, ok = promptDefault(sc, a.out, "Due date (YYYY-MM-DD)", form.DueDate); !ok {
		return
	}

	a.borrow(ctx, form)
}

func (a *app) handleSummary(ctx context.Context, sc *bufio.Scanner) {
	items, err := a.summary(ctx, 1)
	if err != nil || len(items) <= views.SummaryPerPage {
		return
	}

	p := views.NewPager(len(items), 1)
	for {
		nav, ok := prompt(sc, a.out, "[f]irst [p]rev [n]ext [l]ast, Enter to return: ")
		if !ok {
			return
		}
		switch strings.ToLower(nav) {
		case "f", "first":
			p = p.First()
		case "p", "prev":
			p = p.Prev()
		case "n", "next":
			p = p.Next()
		case "l", "last":
			p = p.Last()
		case "":
			return
		default:
			continue
		}
		a.view.Summary(items, p)
	}
}

func genreChoices() string {
	names := make([]string, len(library.Genres))
	for i, g := range library.Genres {
		names[i] = string(g)
	}
	return strings.Join(names, ", ")
}
