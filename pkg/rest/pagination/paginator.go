// Package pagination splits a result source into numbered pages and renders
// the page-number and link-header response styles.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/edgeflare/restful/pkg/metrics"
	"go.uber.org/zap"
)

var (
	ErrInvalidPage      = errors.New("invalid page")
	ErrPageNotAnInteger = fmt.Errorf("%w: not an integer", ErrInvalidPage)
	ErrEmptyPage        = fmt.Errorf("%w: empty page", ErrInvalidPage)
)

// InvalidPageError carries the client-facing message of a rejected page
// number. It unwraps to ErrPageNotAnInteger or ErrEmptyPage.
type InvalidPageError struct {
	Kind    error
	Message string
}

func (e *InvalidPageError) Error() string { return e.Message }

func (e *InvalidPageError) Unwrap() error { return e.Kind }

func (e *InvalidPageError) reason() string {
	if errors.Is(e.Kind, ErrPageNotAnInteger) {
		return "not_an_integer"
	}
	return "empty"
}

func notAnInteger() error {
	return &InvalidPageError{Kind: ErrPageNotAnInteger, Message: "That page number is not an integer"}
}

func emptyPage(message string) error {
	return &InvalidPageError{Kind: ErrEmptyPage, Message: message}
}

// Source yields the items in [lo, hi). A negative hi reads to the end.
type Source[T any] interface {
	Slice(ctx context.Context, lo, hi int) ([]T, error)
}

// Counter is implemented by sources that count without loading items.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Lener is implemented by in-memory sources.
type Lener interface {
	Len() int
}

// Orderer is implemented by sources that know whether they are sorted.
type Orderer interface {
	Ordered() bool
}

// List is an in-memory Source.
type List[T any] []T

func (l List[T]) Slice(_ context.Context, lo, hi int) ([]T, error) {
	lo = min(max(lo, 0), len(l))
	if hi < 0 || hi > len(l) {
		hi = len(l)
	}
	return l[lo:max(lo, hi)], nil
}

func (l List[T]) Len() int { return len(l) }

type options struct {
	orphans             int
	allowEmptyFirstPage bool
	logger              *zap.Logger
}

type Option func(*options)

// WithOrphans merges a trailing page of at most n items into the page before it.
func WithOrphans(n int) Option {
	return func(o *options) {
		o.orphans = max(n, 0)
	}
}

// WithAllowEmptyFirstPage controls whether page 1 of an empty source is valid.
// It is by default.
func WithAllowEmptyFirstPage(allow bool) Option {
	return func(o *options) {
		o.allowEmptyFirstPage = allow
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Paginator computes page windows over a source. The total is read once,
// at construction.
type Paginator[T any] struct {
	src     Source[T]
	perPage int
	count   int
	// all holds the materialized source when it can neither count nor report
	// its length.
	all []T
	options
}

// NewPaginator counts src and returns a paginator of perPage items per page.
func NewPaginator[T any](ctx context.Context, src Source[T], perPage int, opts ...Option) (*Paginator[T], error) {
	if perPage < 1 {
		return nil, fmt.Errorf("pagination: page size must be positive, got %d", perPage)
	}
	p := &Paginator[T]{
		src:     src,
		perPage: perPage,
		options: options{allowEmptyFirstPage: true, logger: zap.NewNop()},
	}
	for _, opt := range opts {
		opt(&p.options)
	}

	if o, ok := src.(Orderer); ok && !o.Ordered() {
		p.logger.Warn("pagination may yield inconsistent results with an unordered source")
		metrics.UnorderedPagination.Inc()
	}

	switch s := src.(type) {
	case Counter:
		n, err := s.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("pagination: count: %w", err)
		}
		p.count = n
	case Lener:
		p.count = s.Len()
	default:
		all, err := src.Slice(ctx, 0, -1)
		if err != nil {
			return nil, fmt.Errorf("pagination: load: %w", err)
		}
		p.all = all
		p.count = len(all)
	}
	return p, nil
}

// PerPage returns the page size.
func (p *Paginator[T]) PerPage() int { return p.perPage }

// Orphans returns the configured orphan allowance.
func (p *Paginator[T]) Orphans() int { return p.orphans }

// Count returns the total number of items across all pages.
func (p *Paginator[T]) Count() int { return p.count }

// NumPages returns the number of pages, counting leftover orphans as part of
// the last page. It is 0 only for an empty source that disallows an empty
// first page.
func (p *Paginator[T]) NumPages() int {
	if p.count == 0 && !p.allowEmptyFirstPage {
		return 0
	}
	hits := max(1, p.count-p.orphans)
	return (hits-1)/p.perPage + 1
}

// PageRange returns the 1-based page numbers.
func (p *Paginator[T]) PageRange() []int {
	pages := make([]int, p.NumPages())
	for i := range pages {
		pages[i] = i + 1
	}
	return pages
}

// ValidateNumber checks that number names an existing page.
func (p *Paginator[T]) ValidateNumber(number int) (int, error) {
	if number < 1 {
		return 0, emptyPage("That page number is less than 1")
	}
	if number > p.NumPages() && !(number == 1 && p.allowEmptyFirstPage) {
		return 0, emptyPage("That page contains no results")
	}
	return number, nil
}

// ValidatePage parses raw as a page number and validates it.
func (p *Paginator[T]) ValidatePage(raw string) (int, error) {
	number, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, notAnInteger()
	}
	return p.ValidateNumber(number)
}

// Page returns the page with the given 1-based number. Its items are not
// loaded until Items is called.
func (p *Paginator[T]) Page(number int) (*Page[T], error) {
	number, err := p.ValidateNumber(number)
	if err != nil {
		return nil, err
	}
	// number <= NumPages keeps bottom below count
	bottom := (number - 1) * p.perPage
	top := p.count
	if rest := p.count - bottom; rest > p.perPage && rest-p.perPage > p.orphans {
		top = bottom + p.perPage
	}
	return &Page[T]{Number: number, paginator: p, bottom: bottom, top: top}, nil
}

func (p *Paginator[T]) slice(ctx context.Context, lo, hi int) ([]T, error) {
	if p.all != nil {
		return List[T](p.all).Slice(ctx, lo, hi)
	}
	return p.src.Slice(ctx, lo, hi)
}

// Page is one window of a paginated source. A Page belongs to a single
// request.
type Page[T any] struct {
	Number int

	paginator   *Paginator[T]
	bottom, top int
	items       []T
	loaded      bool
}

// Paginator returns the paginator the page was cut from.
func (pg *Page[T]) Paginator() *Paginator[T] { return pg.paginator }

// Items loads the page's items on first use and returns the cached slice
// afterwards.
func (pg *Page[T]) Items(ctx context.Context) ([]T, error) {
	if pg.loaded {
		return pg.items, nil
	}
	if pg.top <= pg.bottom {
		pg.items, pg.loaded = []T{}, true
		return pg.items, nil
	}
	items, err := pg.paginator.slice(ctx, pg.bottom, pg.top)
	if err != nil {
		return nil, err
	}
	pg.items, pg.loaded = items, true
	return items, nil
}

// Len is the number of items in the window.
func (pg *Page[T]) Len() int {
	if pg.loaded {
		return len(pg.items)
	}
	return max(pg.top-pg.bottom, 0)
}

func (pg *Page[T]) HasNext() bool { return pg.Number < pg.paginator.NumPages() }

func (pg *Page[T]) HasPrevious() bool { return pg.Number > 1 }

func (pg *Page[T]) HasOtherPages() bool { return pg.HasPrevious() || pg.HasNext() }

func (pg *Page[T]) NextPageNumber() (int, error) {
	return pg.paginator.ValidateNumber(pg.Number + 1)
}

func (pg *Page[T]) PreviousPageNumber() (int, error) {
	return pg.paginator.ValidateNumber(pg.Number - 1)
}

// StartIndex is the 1-based index of the page's first item, 0 when the
// source is empty.
func (pg *Page[T]) StartIndex() int {
	if pg.paginator.count == 0 {
		return 0
	}
	return pg.paginator.perPage*(pg.Number-1) + 1
}

// EndIndex is the 1-based index of the page's last item.
func (pg *Page[T]) EndIndex() int {
	if pg.Number == pg.paginator.NumPages() {
		return pg.paginator.count
	}
	return pg.Number * pg.paginator.perPage
}

func (pg *Page[T]) String() string {
	return fmt.Sprintf("<Page %d of %d>", pg.Number, pg.paginator.NumPages())
}

// Info is the navigation state of a page, independent of its item type.
type Info struct {
	Number   int
	NumPages int
	Count    int
	PerPage  int
	Next     int // 0 when there is no next page
	Previous int // 0 when there is no previous page
}

// HasNext reports whether a next page exists.
func (i Info) HasNext() bool { return i.Next > 0 }

// HasPrevious reports whether a previous page exists.
func (i Info) HasPrevious() bool { return i.Previous > 0 }

func (pg *Page[T]) Info() Info {
	info := Info{
		Number:   pg.Number,
		NumPages: pg.paginator.NumPages(),
		Count:    pg.paginator.count,
		PerPage:  pg.paginator.perPage,
	}
	if pg.HasNext() {
		info.Next = pg.Number + 1
	}
	if pg.HasPrevious() {
		info.Previous = pg.Number - 1
	}
	return info
}
