package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"library-client/config"
	"library-client/library"
	"library-client/librarian"
)

type cli struct {
	root *cobra.Command
	v    *viper.Viper
	app  *app
}

func newCLI() *cli {
	c := &cli{v: config.New()}

	c.root = &cobra.Command{
		Use:           "library",
		Short:         "Command-line client for the library management API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			cfg, err := config.Load(c.v)
			if err != nil {
				return err
			}
			c.app, err = newApp(cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
			return err
		},
	}

	flags := c.root.PersistentFlags()
	flags.String("api", "", "API base URL (overrides LIBRARY_API_BASE_URL)")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	_ = c.v.BindPFlag(config.KeyAPIBaseURL, flags.Lookup("api"))
	_ = c.v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))

	c.root.AddCommand(
		c.booksCmd(),
		c.bookCmd(),
		c.borrowCmd(),
		c.summaryCmd(),
		c.notificationsCmd(),
		c.shellCmd(),
	)
	return c
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	return c.app.Close()
}

func (c *cli) booksCmd() *cobra.Command {
	var (
		limit  int
		genre  string
		author string
	)
	cmd := &cobra.Command{
		Use:   "books",
		Short: "List books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				limit = c.app.cfg.PageLimit
			}
			limit = min(limit, librarian.MaxLimit)
			f := librarian.Filter{Genre: library.Genre(strings.ToUpper(strings.TrimSpace(genre))), Author: author}
			if f.Genre != "" && !library.IsGenre(string(f.Genre)) {
				return fmt.Errorf("unknown genre %q", genre)
			}
			return c.app.listBooks(cmd.Context(), limit, f)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "number of books to request (default LIBRARY_PAGE_LIMIT, max 100)")
	cmd.Flags().StringVar(&genre, "genre", "", "only show books of this genre")
	cmd.Flags().StringVar(&author, "author", "", "only show books by this author")
	return cmd
}

func (c *cli) bookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Show, create, edit or delete a single book",
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a book's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.showBook(cmd.Context(), args[0])
		},
	}

	var form library.BookForm
	create := &cobra.Command{
		Use:   "create",
		Short: "Add a book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.createBook(cmd.Context(), form)
		},
	}
	bookFlags(create, &form)

	var edits library.BookForm
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a book; only the given fields change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := c.app.mgr.GetBook(cmd.Context(), args[0])
			if err != nil {
				c.app.view.ErrorPanel("Book Not Found", err)
				return reported(err)
			}
			form := library.FormFromBook(book)
			fl := cmd.Flags()
			if fl.Changed("title") {
				form.Title = edits.Title
			}
			if fl.Changed("author") {
				form.Author = edits.Author
			}
			if fl.Changed("genre") {
				form.Genre = edits.Genre
			}
			if fl.Changed("isbn") {
				form.ISBN = edits.ISBN
			}
			if fl.Changed("description") {
				form.Description = edits.Description
			}
			if fl.Changed("copies") {
				form.Copies = edits.Copies
			}
			return c.app.updateBook(cmd.Context(), args[0], form)
		},
	}
	bookFlags(edit, &edits)

	var yes bool
	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				book, err := c.app.mgr.GetBook(cmd.Context(), args[0])
				if err != nil {
					c.app.view.ErrorPanel("Book Not Found", err)
					return reported(err)
				}
				if !confirmDelete(bufio.NewScanner(cmd.InOrStdin()), cmd.OutOrStdout(), book) {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
			}
			return c.app.deleteBook(cmd.Context(), args[0])
		},
	}
	del.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	cmd.AddCommand(show, create, edit, del)
	return cmd
}

func bookFlags(cmd *cobra.Command, form *library.BookForm) {
	fl := cmd.Flags()
	fl.StringVar(&form.Title, "title", "", "book title")
	fl.StringVar(&form.Author, "author", "", "author name")
	fl.StringVar(&form.Genre, "genre", "", "one of FICTION, NON_FICTION, SCIENCE, HISTORY, BIOGRAPHY, FANTASY")
	fl.StringVar(&form.ISBN, "isbn", "", "ISBN-10 or ISBN-13, hyphens allowed")
	fl.StringVar(&form.Description, "description", "", "optional description")
	fl.IntVar(&form.Copies, "copies", 0, "total number of copies")
}

func (c *cli) borrowCmd() *cobra.Command {
	var (
		quantity int
		due      string
	)
	cmd := &cobra.Command{
		Use:   "borrow <book-id>",
		Short: "Borrow copies of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form := library.NewBorrowForm(args[0], c.app.now())
			form.Quantity = quantity
			if due != "" {
				form.DueDate = due
			}
			return c.app.borrow(cmd.Context(), form)
		},
	}
	cmd.Flags().IntVarP(&quantity, "quantity", "q", 1, "number of copies")
	cmd.Flags().StringVar(&due, "due", "", "due date as YYYY-MM-DD (default: two weeks from today)")
	return cmd
}

func (c *cli) summaryCmd() *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show how many copies of each book are borrowed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := c.app.summary(cmd.Context(), page)
			return err
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page to show, five rows per page")
	return cmd
}

func (c *cli) notificationsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Show recent success and error messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.notifications(limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "number of notifications (default: all kept)")
	return cmd
}

func (c *cli) shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.runShell(cmd.Context())
		},
	}
}
