// Command import_books adds every book listed in a CSV file to the library API.
//
// The file needs a header row naming at least title, author, genre, isbn and
// copies; a description column is optional.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"library-client/api"
	"library-client/config"
	"library-client/library"
)

var requiredColumns = []string{"title", "author", "genre", "isbn", "copies"}

// creator is the part of the API client the importer needs.
type creator interface {
	CreateBook(ctx context.Context, in library.BookInput) (library.Book, error)
}

type result struct {
	imported []library.Book
	failed   int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newCommand(config.New()).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "import_books <file.csv>",
		Short:         "Import books from a CSV file",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			client := api.NewClient(cfg.APIBaseURL, api.WithTimeout(cfg.HTTPTimeout))
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Importing books from %s into %s...\n", args[0], cfg.APIBaseURL)

			res, err := importBooks(cmd.Context(), client, f, out)
			if err != nil {
				return err
			}
			printReport(out, res)
			if res.failed > 0 {
				return fmt.Errorf("%d rows failed", res.failed)
			}
			return nil
		},
	}
	cmd.Flags().String("api", "", "API base URL (overrides LIBRARY_API_BASE_URL)")
	_ = v.BindPFlag(config.KeyAPIBaseURL, cmd.Flags().Lookup("api"))
	return cmd
}

// importBooks validates and creates one book per row. A bad row is reported
// and skipped; only an unreadable file stops the import.
func importBooks(ctx context.Context, c creator, r io.Reader, out io.Writer) (result, error) {
	var res result

	rd := csv.NewReader(r)
	rd.TrimLeadingSpace = true
	header, err := rd.Read()
	if err != nil {
		return res, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return res, fmt.Errorf("missing column %q", name)
		}
	}
	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	for line := 2; ; line++ {
		row, err := rd.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}

		form := library.BookForm{
			Title:       field(row, "title"),
			Author:      field(row, "author"),
			Genre:       strings.ToUpper(field(row, "genre")),
			ISBN:        field(row, "isbn"),
			Description: field(row, "description"),
		}
		fmt.Fprintf(out, "Importing: %s by %s... ", form.Title, form.Author)

		copies, err := strconv.Atoi(field(row, "copies"))
		if err != nil {
			fmt.Fprintf(out, "ERROR - copies must be a whole number\n")
			res.failed++
			continue
		}
		form.Copies = copies

		in, err := library.ValidateBook(form, library.CreateMode)
		if err != nil {
			fmt.Fprintf(out, "ERROR - %v\n", err)
			res.failed++
			continue
		}
		book, err := c.CreateBook(ctx, in)
		if err != nil {
			fmt.Fprintf(out, "ERROR - %s\n", api.Message(err, "Unknown error"))
			res.failed++
			continue
		}
		fmt.Fprintf(out, "SUCCESS (ID: %s)\n", book.ID)
		res.imported = append(res.imported, book)
	}
	return res, nil
}

func printReport(out io.Writer, res result) {
	fmt.Fprintf(out, "\nImport complete!\n")
	fmt.Fprintf(out, "Successfully imported: %d books\n", len(res.imported))
	fmt.Fprintf(out, "Errors: %d\n", res.failed)

	if len(res.imported) == 0 {
		return
	}
	fmt.Fprintln(out, "\nImported books:")
	fmt.Fprintf(out, "%-24s %-40s %-24s\n", "ID", "Title", "Author")
	fmt.Fprintln(out, strings.Repeat("-", 90))
	for _, b := range res.imported {
		fmt.Fprintf(out, "%-24s %-40s %-24s\n", b.ID, truncateString(b.Title, 40), truncateString(b.Author, 24))
	}
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
