// Package api is the typed HTTP client for the remote library API.
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel/trace"

	"library-client/library"
)

// DefaultTimeout bounds a single request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 10 << 20

var (
	lenient = jsoniter.ConfigCompatibleWithStandardLibrary
	strict  = jsoniter.Config{
		EscapeHTML:             true,
		ValidateJsonRawMessage: true,
		DisallowUnknownFields:  true,
	}.Froze()
)

// envelope is the shape of every API response.
type envelope struct {
	Success *bool               `json:"success"`
	Message string              `json:"message"`
	Data    jsoniter.RawMessage `json:"data"`
}

// Client talks to the library API rooted at a base URL.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

type clientOptions struct {
	timeout   time.Duration
	logger    *slog.Logger
	transport http.RoundTripper
	tracer    trace.TracerProvider
}

// Option configures a Client.
type Option func(*clientOptions)

// WithTimeout bounds each request. Zero keeps DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// WithTransport replaces the network transport under the logging and tracing layers.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.transport = rt }
}

// WithTracerProvider sets the provider used for request spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *clientOptions) { o.tracer = tp }
}

// NewClient creates a client for the API at baseURL. Requests are never retried.
func NewClient(baseURL string, opts ...Option) *Client {
	o := clientOptions{timeout: DefaultTimeout, logger: slog.Default(), transport: http.DefaultTransport}
	for _, opt := range opts {
		opt(&o)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  o.logger,
		http: &http.Client{
			Transport: &TracingTransport{
				Base:     &LoggingTransport{Base: o.transport, Logger: o.logger},
				Provider: o.tracer,
			},
			Timeout: o.timeout,
		},
	}
}

// BaseURL returns the API root the client was created with.
func (c *Client) BaseURL() string { return c.baseURL }

// ------------------ Books ------------------

// ListBooks fetches up to limit books; limit 0 leaves the page size to the API.
func (c *Client) ListBooks(ctx context.Context, limit int) ([]library.Book, error) {
	path := "/books"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var books []library.Book
	if _, err := c.do(ctx, "list books", http.MethodGet, path, nil, &books, lenient); err != nil {
		return nil, err
	}
	if books == nil {
		books = []library.Book{}
	}
	return books, nil
}

// GetBook fetches a single book.
func (c *Client) GetBook(ctx context.Context, id string) (library.Book, error) {
	var book library.Book
	if _, err := c.do(ctx, "get book", http.MethodGet, "/books/"+url.PathEscape(id), nil, &book, lenient); err != nil {
		return library.Book{}, err
	}
	if book.ID == "" {
		return library.Book{}, fmt.Errorf("get book: %w: missing _id", ErrSchemaMismatch)
	}
	return book, nil
}

// CreateBook creates a book and returns the stored record.
func (c *Client) CreateBook(ctx context.Context, in library.BookInput) (library.Book, error) {
	var book library.Book
	if _, err := c.do(ctx, "create book", http.MethodPost, "/books", in, &book, lenient); err != nil {
		return library.Book{}, err
	}
	return book, nil
}

// UpdateBook sends every editable field of a book.
func (c *Client) UpdateBook(ctx context.Context, id string, in library.BookUpdate) (library.Book, error) {
	var book library.Book
	if _, err := c.do(ctx, "update book", http.MethodPatch, "/books/"+url.PathEscape(id), in, &book, lenient); err != nil {
		return library.Book{}, err
	}
	return book, nil
}

// DeleteBook deletes a book and returns the API's confirmation message.
func (c *Client) DeleteBook(ctx context.Context, id string) (string, error) {
	return c.do(ctx, "delete book", http.MethodDelete, "/books/"+url.PathEscape(id), nil, nil, lenient)
}

// ------------------ Borrows ------------------

// BorrowBook records a borrow transaction.
func (c *Client) BorrowBook(ctx context.Context, in library.BorrowInput) (library.Borrow, error) {
	var borrow library.Borrow
	if _, err := c.do(ctx, "borrow book", http.MethodPost, "/borrows", in, &borrow, lenient); err != nil {
		return library.Borrow{}, err
	}
	return borrow, nil
}

// BorrowSummary fetches the per-book totals of active borrows. The payload is
// decoded strictly and every item must carry a book id and title.
func (c *Client) BorrowSummary(ctx context.Context) ([]library.BorrowSummaryItem, error) {
	var items []library.BorrowSummaryItem
	if _, err := c.do(ctx, "borrow summary", http.MethodGet, "/borrows/summary", nil, &items, strict); err != nil {
		return nil, err
	}
	for i, it := range items {
		if it.BookID == "" || it.BookTitle == "" {
			return nil, fmt.Errorf("borrow summary: %w: item %d lacks bookId or bookTitle", ErrSchemaMismatch, i)
		}
	}
	if items == nil {
		items = []library.BorrowSummaryItem{}
	}
	return items, nil
}

// ------------------ plumbing ------------------

// do sends one request and decodes the envelope's data into out. It returns
// the envelope message.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any, codec jsoniter.API) (string, error) {
	var reader io.Reader
	if body != nil {
		payload, err := lenient.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return "", fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env envelope
		_ = lenient.Unmarshal(raw, &env)
		c.logger.Debug("api rejected request", slog.String("op", op), slog.Int("status", resp.StatusCode), slog.String("message", env.Message))
		return "", &APIError{Op: op, Status: resp.StatusCode, Message: env.Message}
	}

	var env envelope
	if err := lenient.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, ErrSchemaMismatch, err)
	}
	if env.Success != nil && !*env.Success {
		return "", &APIError{Op: op, Status: resp.StatusCode, Message: env.Message}
	}

	if out != nil {
		if len(env.Data) == 0 || string(env.Data) == "null" {
			return "", fmt.Errorf("%s: %w: missing data", op, ErrSchemaMismatch)
		}
		if err := codec.Unmarshal(env.Data, out); err != nil {
			return "", fmt.Errorf("%s: %w: %v", op, ErrSchemaMismatch, err)
		}
	}
	return env.Message, nil
}
