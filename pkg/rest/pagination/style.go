package pagination

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/edgeflare/restful/pkg/httputil"
	"github.com/edgeflare/restful/pkg/metrics"
	"go.uber.org/zap"
)

const (
	DefaultPageQueryParam     = "page"
	DefaultInvalidPageMessage = `Invalid page "{page_number}": {message}.`
)

// Style is a pagination response style. Both styles share the page-number
// resolution of PageNumber and differ in how they write the response.
type Style interface {
	Base() *PageNumber
	WriteResponse(w http.ResponseWriter, r *http.Request, info Info, data any)
}

// PageNumber paginates with ?page=N and answers with a JSON envelope of
// count, next, previous and results.
//
//	http://api.example.org/accounts/?page=4
//	http://api.example.org/accounts/?page=4&page_size=100
type PageNumber struct {
	// PageSize is the default page size. Zero disables pagination unless the
	// client picks a size through PageSizeQueryParam.
	PageSize int `mapstructure:"page_size"`
	// PageQueryParam names the page number parameter, "page" when empty.
	PageQueryParam string `mapstructure:"page_query_param"`
	// PageSizeQueryParam, when set, lets clients choose the page size.
	PageSizeQueryParam string `mapstructure:"page_size_query_param"`
	// MaxPageSize caps client-chosen page sizes when positive.
	MaxPageSize int `mapstructure:"max_page_size"`
	Orphans     int `mapstructure:"orphans"`
	// LastPageStrings are page values that select the last page, {"last"}
	// when empty.
	LastPageStrings []string `mapstructure:"last_page_strings"`
	// InvalidPageMessage formats 404 bodies with {page_number} and
	// {message} placeholders.
	InvalidPageMessage string `mapstructure:"invalid_page_message"`

	Logger *zap.Logger `mapstructure:"-"`
}

func (p *PageNumber) Base() *PageNumber { return p }

func (p *PageNumber) pageQueryParam() string {
	return cmp.Or(p.PageQueryParam, DefaultPageQueryParam)
}

func (p *PageNumber) lastPageStrings() []string {
	if len(p.LastPageStrings) == 0 {
		return []string{"last"}
	}
	return p.LastPageStrings
}

func (p *PageNumber) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// ResolvePageSize returns the client's page size when PageSizeQueryParam is
// configured and carries a positive integer, capped at MaxPageSize, and
// PageSize otherwise.
func (p *PageNumber) ResolvePageSize(r *http.Request) int {
	if p.PageSizeQueryParam != "" {
		if raw := r.URL.Query().Get(p.PageSizeQueryParam); raw != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n > 0 {
				if p.MaxPageSize > 0 {
					n = min(n, p.MaxPageSize)
				}
				return n
			}
		}
	}
	return p.PageSize
}

func (p *PageNumber) invalidPageMessage(page string, err error) string {
	return strings.NewReplacer(
		"{page_number}", page,
		"{message}", err.Error(),
	).Replace(cmp.Or(p.InvalidPageMessage, DefaultInvalidPageMessage))
}

// NextLink is the current request URL pointed at the next page.
func (p *PageNumber) NextLink(r *http.Request, info Info) *string {
	if !info.HasNext() {
		return nil
	}
	link := ReplaceQueryParam(RequestURL(r), p.pageQueryParam(), strconv.Itoa(info.Next))
	return &link
}

// PreviousLink is the current request URL pointed at the previous page.
// Page 1 is linked without a page parameter.
func (p *PageNumber) PreviousLink(r *http.Request, info Info) *string {
	if !info.HasPrevious() {
		return nil
	}
	var link string
	if info.Previous == 1 {
		link = RemoveQueryParam(RequestURL(r), p.pageQueryParam())
	} else {
		link = ReplaceQueryParam(RequestURL(r), p.pageQueryParam(), strconv.Itoa(info.Previous))
	}
	return &link
}

func (p *PageNumber) FirstLink(r *http.Request) string {
	return ReplaceQueryParam(RequestURL(r), p.pageQueryParam(), "1")
}

func (p *PageNumber) LastLink(r *http.Request, info Info) string {
	return ReplaceQueryParam(RequestURL(r), p.pageQueryParam(), strconv.Itoa(info.NumPages))
}

// Envelope is the page-number response body.
type Envelope struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  any     `json:"results"`
}

func (p *PageNumber) Envelope(r *http.Request, info Info, data any) Envelope {
	return Envelope{
		Count:    info.Count,
		Next:     p.NextLink(r, info),
		Previous: p.PreviousLink(r, info),
		Results:  data,
	}
}

func (p *PageNumber) WriteResponse(w http.ResponseWriter, r *http.Request, info Info, data any) {
	httputil.JSON(w, http.StatusOK, p.Envelope(r, info, data))
}

// LinkHeader paginates like PageNumber but answers with the bare results
// and navigation in Link and X-Total-Count headers.
type LinkHeader struct {
	PageNumber `mapstructure:",squash"`
}

// Link renders the Link header value, empty when the result fits one page.
// first and last are present whenever next or prev is.
func (l *LinkHeader) Link(r *http.Request, info Info) string {
	var links []string
	if next := l.NextLink(r, info); next != nil {
		links = append(links, `<`+*next+`>; rel="next"`)
	}
	if prev := l.PreviousLink(r, info); prev != nil {
		links = append(links, `<`+*prev+`>; rel="prev"`)
	}
	if len(links) == 0 {
		return ""
	}
	links = append(links,
		`<`+l.FirstLink(r)+`>; rel="first"`,
		`<`+l.LastLink(r, info)+`>; rel="last"`,
	)
	return strings.Join(links, ", ")
}

func (l *LinkHeader) WriteResponse(w http.ResponseWriter, r *http.Request, info Info, data any) {
	if link := l.Link(r, info); link != "" {
		w.Header().Set("Link", link)
		w.Header().Set("X-Total-Count", strconv.Itoa(info.Count))
	}
	httputil.JSON(w, http.StatusOK, data)
}

// Paginate cuts the page the request asks for out of src. It returns a nil
// page and no error when pagination is disabled for the request. A page
// number that is not an integer or out of range is answered with a 404
// *httputil.HTTPError.
func Paginate[T any](ctx context.Context, style Style, r *http.Request, src Source[T]) (*Page[T], error) {
	p := style.Base()
	size := p.ResolvePageSize(r)
	if size <= 0 {
		return nil, nil
	}

	paginator, err := NewPaginator(ctx, src, size, WithOrphans(p.Orphans), WithLogger(p.logger()))
	if err != nil {
		return nil, err
	}

	raw := "1"
	if values, ok := r.URL.Query()[p.pageQueryParam()]; ok && len(values) > 0 {
		raw = values[0]
	}
	if slices.Contains(p.lastPageStrings(), raw) {
		raw = strconv.Itoa(paginator.NumPages())
	}

	number, err := paginator.ValidatePage(raw)
	if err == nil {
		var page *Page[T]
		if page, err = paginator.Page(number); err == nil {
			return page, nil
		}
	}

	var invalid *InvalidPageError
	if errors.As(err, &invalid) {
		metrics.InvalidPages.WithLabelValues(invalid.reason()).Inc()
		p.logger().Debug("invalid page", zap.String("page", raw), zap.String("reason", invalid.reason()))
		return nil, httputil.NewError(http.StatusNotFound, p.invalidPageMessage(raw, invalid))
	}
	return nil, err
}
