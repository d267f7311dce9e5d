package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repoaudit/internal/config"
	"repoaudit/internal/types"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func sampleReport() types.ScanReport {
	return types.ScanReport{
		Repo:     types.RepoRef{Owner: "acme", Name: "web"},
		Revision: "abc123",
		Stats:    map[string]int{types.StatFiles: 3},
		Issues:   []types.Finding{{ID: "sec-1", Type: types.TypeSecurity, Severity: types.SeverityHigh, Title: "eval"}},
		Provider: "fake",
		Model:    "offline",
	}
}

func newTestCache(b Backend) (*ScanCache, *clock) {
	c := New(b, nil)
	clk := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c.now = clk.now
	return c, clk
}

func key() Key {
	return Key{Owner: "acme", Repo: "web", Revision: "abc123", Provider: "fake", Model: "offline"}
}

func TestLookupWithinMaxAge(t *testing.T) {
	c, clk := newTestCache(NewMemory(8, 0))
	ctx := context.Background()
	c.Store(ctx, key(), sampleReport())

	clk.t = clk.t.Add(30 * time.Minute)
	got, ok := c.Lookup(ctx, key(), time.Hour)
	require.True(t, ok)
	assert.True(t, got.Cached)
	assert.Equal(t, "abc123", got.Revision)
	require.Len(t, got.Issues, 1)

	clk.t = clk.t.Add(time.Hour)
	_, ok = c.Lookup(ctx, key(), time.Hour)
	assert.False(t, ok)

	_, ok = c.Lookup(ctx, key(), 0)
	assert.True(t, ok, "zero max age disables the filter")
}

func TestMissingRevisionSkipsCache(t *testing.T) {
	mem := NewMemory(8, 0)
	c, _ := newTestCache(mem)
	ctx := context.Background()
	k := key()
	k.Revision = ""

	c.Store(ctx, k, sampleReport())
	assert.Equal(t, 0, mem.Len())
	_, ok := c.Lookup(ctx, k, time.Hour)
	assert.False(t, ok)
}

func TestKeySeparatesRevisionAndProvider(t *testing.T) {
	c, _ := newTestCache(NewMemory(8, 0))
	ctx := context.Background()
	c.Store(ctx, key(), sampleReport())

	for _, k := range []Key{
		{Owner: "acme", Repo: "web", Revision: "def456", Provider: "fake", Model: "offline"},
		{Owner: "acme", Repo: "web", Revision: "abc123", Provider: "gemini", Model: "offline"},
		{Owner: "acme", Repo: "web", Revision: "abc123", Provider: "fake", Model: "other"},
	} {
		_, ok := c.Lookup(ctx, k, time.Hour)
		assert.False(t, ok, k.String())
	}
	_, ok := c.Lookup(ctx, Key{Owner: "ACME", Repo: "Web", Revision: "abc123", Provider: "fake", Model: "offline"}, time.Hour)
	assert.True(t, ok, "owner and repo compare case-insensitively")
}

type brokenBackend struct{}

func (brokenBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}
func (brokenBackend) Set(context.Context, string, []byte) error { return errors.New("disk full") }
func (brokenBackend) Close() error                              { return nil }

func TestBackendErrorsAreSwallowed(t *testing.T) {
	c, _ := newTestCache(brokenBackend{})
	ctx := context.Background()
	assert.NotPanics(t, func() { c.Store(ctx, key(), sampleReport()) })
	_, ok := c.Lookup(ctx, key(), time.Hour)
	assert.False(t, ok)
}

func TestCorruptEntryIsMiss(t *testing.T) {
	mem := NewMemory(8, 0)
	c, _ := newTestCache(mem)
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, key().String(), []byte("{not json")))
	_, ok := c.Lookup(ctx, key(), time.Hour)
	assert.False(t, ok)
}

func TestDiskBackedCacheSurvivesReopen(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	d, err := NewDisk(DiskConfig{Root: root, MaxEntries: 4})
	require.NoError(t, err)
	c, _ := newTestCache(d)
	c.Store(ctx, key(), sampleReport())

	d2, err := NewDisk(DiskConfig{Root: root, MaxEntries: 4})
	require.NoError(t, err)
	c2, _ := newTestCache(d2)
	got, ok := c2.Lookup(ctx, key(), time.Hour)
	require.True(t, ok)
	assert.Equal(t, "web", got.Repo.Name)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	c, err := Open(ctx, config.CacheConfig{Backend: "none"}, nil)
	require.NoError(t, err)
	c.Store(ctx, key(), sampleReport())
	_, ok := c.Lookup(ctx, key(), 0)
	assert.False(t, ok)

	c, err = Open(ctx, config.CacheConfig{Backend: "disk", DiskRoot: t.TempDir(), MaxEntries: 4}, nil)
	require.NoError(t, err)
	c.Store(ctx, key(), sampleReport())
	_, ok = c.Lookup(ctx, key(), 0)
	assert.True(t, ok)

	_, err = Open(ctx, config.CacheConfig{Backend: "redis"}, nil)
	assert.Error(t, err)

	_, err = Open(ctx, config.CacheConfig{Backend: "s3"}, nil)
	assert.Error(t, err)
}

func TestOpenDiskHonoursMaxEntries(t *testing.T) {
	ctx := context.Background()
	c, err := Open(ctx, config.CacheConfig{Backend: "disk", DiskRoot: t.TempDir(), MaxEntries: 1}, nil)
	require.NoError(t, err)
	defer c.Close()

	older := key()
	newer := key()
	newer.Revision = "def456"
	c.Store(ctx, older, sampleReport())
	c.Store(ctx, newer, sampleReport())

	_, ok := c.Lookup(ctx, older, 0)
	assert.False(t, ok)
	_, ok = c.Lookup(ctx, newer, 0)
	assert.True(t, ok)
}
