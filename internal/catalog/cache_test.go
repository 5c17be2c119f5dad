package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func writeCatalog(t *testing.T, path, body string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func newTestCache(t *testing.T, path string, ttl time.Duration) (*Cache, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := NewCache(Options{Path: path, TTL: ttl, Delimiter: "auto"})
	c.now = clk.Now
	return c, clk
}

const twoRows = "code_rome;libelle_rome\nM1203;Comptabilité\nK2111;Formation\n"

func TestCacheServesSameSnapshotWithinTTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rome.csv")
	writeCatalog(t, path, twoRows, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))
	c, clk := newTestCache(t, path, time.Hour)

	assert.Equal(t, StateEmpty, c.State())
	first, err := c.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 2)

	clk.Advance(30 * time.Minute)
	second, err := c.Entries(context.Background())
	require.NoError(t, err)
	assert.Same(t, &first[0], &second[0])
	assert.Equal(t, StateLoaded, c.State())
}

func TestCacheReloadsWhenFileChangesWithinTTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rome.csv")
	writeCatalog(t, path, twoRows, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))
	c, clk := newTestCache(t, path, time.Hour)

	first, err := c.Entries(context.Background())
	require.NoError(t, err)

	writeCatalog(t, path, "code_rome;libelle_rome\nA1101;Conduite\n", time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC))
	clk.Advance(time.Minute)
	assert.Equal(t, StateStale, c.State())

	second, err := c.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.NotSame(t, &first[0], &second[0])
	assert.Equal(t, "A1101", second[0].Code)
}

func TestCacheReloadsAfterTTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rome.csv")
	writeCatalog(t, path, twoRows, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))
	c, clk := newTestCache(t, path, time.Hour)

	var reads atomic.Int32
	c.read = func(p string, cols Columns, d string) (Parsed, error) {
		reads.Add(1)
		return ReadFile(p, cols, d)
	}

	_, err := c.Entries(context.Background())
	require.NoError(t, err)
	clk.Advance(time.Hour)
	_, err = c.Entries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), reads.Load())
}

func TestCacheMissingFileIsUnavailable(t *testing.T) {
	c, _ := newTestCache(t, filepath.Join(t.TempDir(), "missing.csv"), time.Hour)

	entries, err := c.Entries(context.Background())
	assert.Nil(t, entries)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, StateEmpty, c.State())
}

func TestCacheWithoutCodeColumnIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rome.csv")
	writeCatalog(t, path, "code;libelle_rome\nM1203;Comptabilité\nK2111;Formation\n", time.Now())
	c, _ := newTestCache(t, path, time.Hour)

	entries, err := c.Entries(context.Background())
	assert.Nil(t, entries)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "2 rows skipped")
	assert.Equal(t, StateEmpty, c.State())
}

func TestCacheFailedReloadKeepsPreviousSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rome.csv")
	writeCatalog(t, path, twoRows, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))
	c, clk := newTestCache(t, path, time.Hour)

	_, err := c.Entries(context.Background())
	require.NoError(t, err)

	// Only rows without a code: the reload produces nothing usable.
	writeCatalog(t, path, "code_rome;libelle_rome\n;orphan\n", time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC))
	clk.Advance(time.Minute)

	entries, err := c.Entries(context.Background())
	assert.Nil(t, entries)
	assert.ErrorIs(t, err, ErrUnavailable)

	d := c.Diagnostics()
	assert.Equal(t, 2, d.Entries)
	assert.Equal(t, "utf-8", d.Encoding)
}

func TestCacheStatFailureServesWithinTTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rome.csv")
	writeCatalog(t, path, twoRows, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))
	c, clk := newTestCache(t, path, time.Hour)

	first, err := c.Entries(context.Background())
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	clk.Advance(time.Minute)
	second, err := c.Entries(context.Background())
	require.NoError(t, err)
	assert.Same(t, &first[0], &second[0])
}

func TestCacheConcurrentCallersLoadOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rome.csv")
	writeCatalog(t, path, twoRows, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))
	c, _ := newTestCache(t, path, time.Hour)

	var reads atomic.Int32
	c.read = func(p string, cols Columns, d string) (Parsed, error) {
		reads.Add(1)
		time.Sleep(10 * time.Millisecond)
		return ReadFile(p, cols, d)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entries, err := c.Entries(context.Background())
			if err != nil || len(entries) != 2 {
				t.Errorf("unexpected result: %v %d", err, len(entries))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), reads.Load())
}
