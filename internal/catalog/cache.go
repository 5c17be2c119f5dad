package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"resume-pipeline/internal/shared/metrics"
)

// ErrUnavailable signals that no usable catalog could be produced.
var ErrUnavailable = errors.New("reference catalog unavailable")

// State is the cache lifecycle: empty, then loaded, then stale until the next reload.
type State string

const (
	StateEmpty  State = "empty"
	StateLoaded State = "loaded"
	StateStale  State = "stale"
)

// Options configures a Cache.
type Options struct {
	Path      string
	TTL       time.Duration
	Columns   Columns
	Delimiter string
	Logger    *zap.Logger
}

// snapshot is immutable once published.
type snapshot struct {
	entries  []Category
	loadedAt time.Time
	modTime  time.Time
	skipped  int
	encoding string
}

// Cache serves the reference catalog from memory and reloads it when the TTL
// elapses or the backing file's modification time changes. Readers take the
// published snapshot without locking; reloads are serialized by mu.
type Cache struct {
	opts   Options
	logger *zap.Logger

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]

	now  func() time.Time
	stat func(string) (os.FileInfo, error)
	read func(string, Columns, string) (Parsed, error)
}

// NewCache constructs an empty cache.
func NewCache(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.Columns.Code == "" || opts.Columns.Label == "" {
		opts.Columns = DefaultColumns()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		opts:   opts,
		logger: logger.With(zap.String("catalog_path", opts.Path)),
		now:    time.Now,
		stat:   os.Stat,
		read:   ReadFile,
	}
}

// Entries returns the current catalog, reloading it first when stale. The
// returned slice is shared and must not be modified.
func (c *Cache) Entries(ctx context.Context) ([]Category, error) {
	if s := c.snap.Load(); c.fresh(s) {
		return s.entries, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another caller may have reloaded while we waited.
	if s := c.snap.Load(); c.fresh(s) {
		return s.entries, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := c.load()
	if err != nil {
		metrics.RecordCatalogReload(false, 0)
		c.logger.Warn("catalog.reload_failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.snap.Store(s)
	metrics.RecordCatalogReload(true, len(s.entries))
	c.logger.Info("catalog.reloaded",
		zap.Int("entries", len(s.entries)),
		zap.Int("skipped", s.skipped),
		zap.String("encoding", s.encoding),
	)
	return s.entries, nil
}

// State reports where the cache is in its lifecycle.
func (c *Cache) State() State {
	s := c.snap.Load()
	switch {
	case s == nil:
		return StateEmpty
	case c.fresh(s):
		return StateLoaded
	default:
		return StateStale
	}
}

// Diagnostics describes the published snapshot.
type Diagnostics struct {
	Path     string    `json:"path"`
	State    State     `json:"state"`
	Entries  int       `json:"entries"`
	Skipped  int       `json:"skipped_rows"`
	Encoding string    `json:"encoding,omitempty"`
	LoadedAt time.Time `json:"loaded_at,omitempty"`
	ModTime  time.Time `json:"file_mod_time,omitempty"`
}

// Diagnostics returns counters for the current snapshot.
func (c *Cache) Diagnostics() Diagnostics {
	d := Diagnostics{Path: c.opts.Path, State: c.State()}
	if s := c.snap.Load(); s != nil {
		d.Entries = len(s.entries)
		d.Skipped = s.skipped
		d.Encoding = s.encoding
		d.LoadedAt = s.loadedAt
		d.ModTime = s.modTime
	}
	return d
}

func (c *Cache) fresh(s *snapshot) bool {
	if s == nil || len(s.entries) == 0 {
		return false
	}
	if c.now().Sub(s.loadedAt) >= c.opts.TTL {
		return false
	}
	info, err := c.stat(c.opts.Path)
	if err != nil {
		// The file vanished or is unreadable; keep serving until the TTL expires.
		return true
	}
	return info.ModTime().Equal(s.modTime)
}

func (c *Cache) load() (*snapshot, error) {
	info, err := c.stat(c.opts.Path)
	if err != nil {
		return nil, err
	}
	parsed, err := c.read(c.opts.Path, c.opts.Columns, c.opts.Delimiter)
	if err != nil {
		return nil, err
	}
	if len(parsed.Entries) == 0 {
		return nil, fmt.Errorf("no entries (%d rows skipped)", parsed.Skipped)
	}
	return &snapshot{
		entries:  parsed.Entries,
		loadedAt: c.now(),
		modTime:  info.ModTime(),
		skipped:  parsed.Skipped,
		encoding: parsed.Encoding,
	}, nil
}
