package carsensor

import (
	"context"
	"embed"
	"strings"
	"sync/atomic"
)

//go:embed fixtures/*.html
var fixtures embed.FS

// MockFetcher serves canned search and detail pages without touching the
// network. It backs SCRAPER_MODE=mock and the package tests.
type MockFetcher struct {
	search string
	detail string
	calls  atomic.Int64
}

// NewMockFetcher loads the embedded fixtures.
func NewMockFetcher() *MockFetcher {
	search, _ := fixtures.ReadFile("fixtures/search.html")
	detail, _ := fixtures.ReadFile("fixtures/detail.html")
	return &MockFetcher{search: string(search), detail: string(detail)}
}

// Fetch returns the detail fixture for detail URLs and the search fixture
// for everything else.
func (m *MockFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.calls.Add(1)
	if strings.Contains(url, "/usedcar/detail/") {
		return m.detail, nil
	}
	return m.search, nil
}

// Calls reports how many fetches were served.
func (m *MockFetcher) Calls() int {
	return int(m.calls.Load())
}
