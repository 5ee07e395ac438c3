package geocode_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/geocode"
)

type mockGeocoder struct {
	searchFn func(ctx context.Context, q string) ([]domain.SearchResult, error)
}

func (m *mockGeocoder) Search(ctx context.Context, q string) ([]domain.SearchResult, error) {
	return m.searchFn(ctx, q)
}

type mockCache struct {
	data map[string][]byte
	ttls map[string]int
}

func newMockCache() *mockCache {
	return &mockCache{data: map[string][]byte{}, ttls: map[string]int{}}
}

func (m *mockCache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, errors.New("miss")
	}
	return v, nil
}

func (m *mockCache) Set(_ context.Context, key string, value []byte, ttl int) error {
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *mockCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestCached_ReadThrough(t *testing.T) {
	calls := 0
	next := &mockGeocoder{searchFn: func(_ context.Context, q string) ([]domain.SearchResult, error) {
		calls++
		return []domain.SearchResult{{Label: "Gueliz", Coordinates: domain.GeoPoint{Lat: 31.637, Lon: -8.01}}}, nil
	}}
	cache := newMockCache()
	g := geocode.NewCached(next, cache, 60)

	first, err := g.Search(context.Background(), "Gueliz")
	require.NoError(t, err)
	second, err := g.Search(context.Background(), "  gueliz ")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.Equal(t, 60, cache.ttls["geocode:search:gueliz"])
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	calls := 0
	next := &mockGeocoder{searchFn: func(context.Context, string) ([]domain.SearchResult, error) {
		calls++
		return nil, errors.New("timeout")
	}}
	cache := newMockCache()
	g := geocode.NewCached(next, cache, 0)

	_, err := g.Search(context.Background(), "x")
	assert.Error(t, err)
	_, err = g.Search(context.Background(), "x")
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Empty(t, cache.data)
}

func TestCached_NilCachePassesThrough(t *testing.T) {
	next := &mockGeocoder{searchFn: func(context.Context, string) ([]domain.SearchResult, error) {
		return nil, nil
	}}
	_, err := geocode.NewCached(next, nil, 0).Search(context.Background(), "x")
	assert.NoError(t, err)
}
