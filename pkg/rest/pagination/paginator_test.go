package pagination

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/edgeflare/restful/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func seq(from, to int) List[int] {
	l := make(List[int], 0, to-from+1)
	for i := from; i <= to; i++ {
		l = append(l, i)
	}
	return l
}

func TestNumPages(t *testing.T) {
	tests := []struct {
		name       string
		count      int
		perPage    int
		orphans    int
		allowEmpty bool
		want       int
	}{
		{name: "exact fit", count: 10, perPage: 5, allowEmpty: true, want: 2},
		{name: "remainder", count: 11, perPage: 5, allowEmpty: true, want: 3},
		{name: "orphans absorbed", count: 10, perPage: 4, orphans: 2, allowEmpty: true, want: 2},
		{name: "orphans below threshold", count: 11, perPage: 4, orphans: 2, allowEmpty: true, want: 3},
		{name: "empty allowed", count: 0, perPage: 5, allowEmpty: true, want: 1},
		{name: "empty disallowed", count: 0, perPage: 5, want: 0},
		{name: "fewer than orphans", count: 2, perPage: 5, orphans: 3, allowEmpty: true, want: 1},
		{name: "largest page size", count: 100, perPage: math.MaxInt, allowEmpty: true, want: 1},
		{name: "largest page size with orphans", count: 100, perPage: math.MaxInt, orphans: 3, allowEmpty: true, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPaginator[int](context.Background(), seq(1, tt.count), tt.perPage,
				WithOrphans(tt.orphans), WithAllowEmptyFirstPage(tt.allowEmpty))
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.NumPages())
			assert.Len(t, p.PageRange(), tt.want)
		})
	}
}

func TestPageWindowWithOrphans(t *testing.T) {
	ctx := context.Background()
	p, err := NewPaginator[int](ctx, seq(0, 9), 4, WithOrphans(2))
	require.NoError(t, err)
	require.Equal(t, 2, p.NumPages())

	first, err := p.Page(1)
	require.NoError(t, err)
	items, err := first.Items(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, items)

	last, err := p.Page(2)
	require.NoError(t, err)
	items, err = last.Items(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5, 6, 7, 8, 9}, items)
	assert.Equal(t, 6, last.Len())
	assert.Equal(t, 5, last.StartIndex())
	assert.Equal(t, 10, last.EndIndex())
	assert.False(t, last.HasNext())
}

func TestPageLargestPageSize(t *testing.T) {
	ctx := context.Background()
	p, err := NewPaginator[int](ctx, seq(1, 100), math.MaxInt, WithOrphans(2))
	require.NoError(t, err)

	page, err := p.Page(1)
	require.NoError(t, err)
	assert.Equal(t, 1, page.StartIndex())
	assert.Equal(t, 100, page.EndIndex())
	assert.False(t, page.HasNext())

	items, err := page.Items(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 100)
}

func TestValidateNumber(t *testing.T) {
	empty, err := NewPaginator[int](context.Background(), List[int]{}, 5)
	require.NoError(t, err)

	n, err := empty.ValidateNumber(1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for _, number := range []int{0, -1, 999} {
		_, err := empty.ValidateNumber(number)
		assert.ErrorIs(t, err, ErrEmptyPage, number)
		assert.ErrorIs(t, err, ErrInvalidPage, number)
	}

	_, err = empty.ValidateNumber(0)
	assert.EqualError(t, err, "That page number is less than 1")
	_, err = empty.ValidateNumber(2)
	assert.EqualError(t, err, "That page contains no results")

	for _, raw := range []string{"abc", "1.5", ""} {
		_, err := empty.ValidatePage(raw)
		assert.ErrorIs(t, err, ErrPageNotAnInteger, raw)
		assert.ErrorIs(t, err, ErrInvalidPage, raw)
		assert.False(t, errors.Is(err, ErrEmptyPage), raw)
	}

	n, err = empty.ValidatePage(" 1 ")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	strict, err := NewPaginator[int](context.Background(), List[int]{}, 5, WithAllowEmptyFirstPage(false))
	require.NoError(t, err)
	_, err = strict.ValidateNumber(1)
	assert.ErrorIs(t, err, ErrEmptyPage)
}

func TestPageNavigation(t *testing.T) {
	p, err := NewPaginator[int](context.Background(), seq(1, 100), 5)
	require.NoError(t, err)

	first, err := p.Page(1)
	require.NoError(t, err)
	assert.Equal(t, "<Page 1 of 20>", first.String())
	assert.True(t, first.HasNext())
	assert.False(t, first.HasPrevious())
	assert.True(t, first.HasOtherPages())
	next, err := first.NextPageNumber()
	require.NoError(t, err)
	assert.Equal(t, 2, next)
	_, err = first.PreviousPageNumber()
	assert.ErrorIs(t, err, ErrEmptyPage)
	assert.Equal(t, Info{Number: 1, NumPages: 20, Count: 100, PerPage: 5, Next: 2}, first.Info())

	last, err := p.Page(20)
	require.NoError(t, err)
	assert.Equal(t, 96, last.StartIndex())
	assert.Equal(t, 100, last.EndIndex())
	assert.Equal(t, Info{Number: 20, NumPages: 20, Count: 100, PerPage: 5, Previous: 19}, last.Info())

	_, err = p.Page(21)
	assert.ErrorIs(t, err, ErrEmptyPage)

	single, err := NewPaginator[int](context.Background(), seq(1, 3), 5)
	require.NoError(t, err)
	only, err := single.Page(1)
	require.NoError(t, err)
	assert.False(t, only.HasOtherPages())
}

func TestEmptyPageItems(t *testing.T) {
	p, err := NewPaginator[int](context.Background(), List[int]{}, 5)
	require.NoError(t, err)
	page, err := p.Page(1)
	require.NoError(t, err)

	items, err := page.Items(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, page.StartIndex())
	assert.Equal(t, 0, page.EndIndex())
}

// countingSource counts without loading and records every slice it serves.
type countingSource struct {
	count   int
	ordered bool
	slices  [][2]int
}

func (s *countingSource) Count(context.Context) (int, error) { return s.count, nil }

func (s *countingSource) Ordered() bool { return s.ordered }

func (s *countingSource) Slice(_ context.Context, lo, hi int) ([]int, error) {
	s.slices = append(s.slices, [2]int{lo, hi})
	out := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, i)
	}
	return out, nil
}

func TestCountingSourceLoadsOnePage(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{count: 1000, ordered: true}

	p, err := NewPaginator[int](ctx, src, 10)
	require.NoError(t, err)
	assert.Equal(t, 1000, p.Count())
	assert.Empty(t, src.slices)

	page, err := p.Page(3)
	require.NoError(t, err)
	assert.Empty(t, src.slices, "items load lazily")

	items, err := page.Items(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{20, 21, 22, 23, 24, 25, 26, 27, 28, 29}, items)

	_, err = page.Items(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{20, 30}}, src.slices)
}

// sliceOnly can neither count nor report its length.
type sliceOnly struct {
	items List[int]
	calls int
}

func (s *sliceOnly) Slice(ctx context.Context, lo, hi int) ([]int, error) {
	s.calls++
	return s.items.Slice(ctx, lo, hi)
}

func TestSourceWithoutCountIsMaterializedOnce(t *testing.T) {
	ctx := context.Background()
	src := &sliceOnly{items: seq(1, 12)}

	p, err := NewPaginator[int](ctx, src, 5)
	require.NoError(t, err)
	assert.Equal(t, 12, p.Count())

	page, err := p.Page(3)
	require.NoError(t, err)
	items, err := page.Items(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{11, 12}, items)
	assert.Equal(t, 1, src.calls)
}

func TestUnorderedSourceWarns(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	before := testutil.ToFloat64(metrics.UnorderedPagination)

	_, err := NewPaginator[int](context.Background(), &countingSource{count: 3}, 2, WithLogger(zap.New(core)))
	require.NoError(t, err)

	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.UnorderedPagination))

	_, err = NewPaginator[int](context.Background(), &countingSource{count: 3, ordered: true}, 2, WithLogger(zap.New(core)))
	require.NoError(t, err)
	assert.Equal(t, 1, logs.Len())
}

func TestNewPaginatorRejectsPageSize(t *testing.T) {
	_, err := NewPaginator[int](context.Background(), seq(1, 3), 0)
	assert.Error(t, err)
}

func TestListSliceBounds(t *testing.T) {
	l := seq(1, 5)
	ctx := context.Background()

	got, _ := l.Slice(ctx, 3, -1)
	assert.Equal(t, []int{4, 5}, got)
	got, _ = l.Slice(ctx, 4, 99)
	assert.Equal(t, []int{5}, got)
	got, _ = l.Slice(ctx, 9, 12)
	assert.Empty(t, got)
}
