package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"repoaudit/internal/logging"
	"repoaudit/internal/types"
)

// Backend is a byte-oriented key/value store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Key identifies one cached report. Two commits or two analysis backends
// never share a key.
type Key struct {
	Owner    string
	Repo     string
	Revision string
	Provider string
	Model    string
}

// Cacheable is false when no stable revision is known.
func (k Key) Cacheable() bool {
	return strings.TrimSpace(k.Revision) != ""
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s@%s#%s:%s",
		strings.ToLower(k.Owner), strings.ToLower(k.Repo),
		k.Revision, strings.ToLower(k.Provider), k.Model)
}

type envelope struct {
	StoredAt time.Time        `json:"stored_at"`
	Report   types.ScanReport `json:"report"`
}

// ScanCache serves finished reports. Every failure is logged and reported as
// a miss; callers never see cache errors.
type ScanCache struct {
	backend Backend
	log     *zap.Logger
	now     func() time.Time
}

func New(backend Backend, logger *zap.Logger) *ScanCache {
	return &ScanCache{backend: backend, log: logging.OrNop(logger), now: time.Now}
}

// Lookup returns a copy of the stored report marked Cached. maxAge <= 0
// disables the age filter.
func (c *ScanCache) Lookup(ctx context.Context, key Key, maxAge time.Duration) (*types.ScanReport, bool) {
	if c == nil || c.backend == nil || !key.Cacheable() {
		return nil, false
	}
	raw, ok, err := c.backend.Get(ctx, key.String())
	if err != nil {
		c.log.Warn("cache lookup failed", zap.String("key", key.String()), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Warn("cache entry unreadable", zap.String("key", key.String()), zap.Error(err))
		return nil, false
	}
	if maxAge > 0 && c.now().Sub(env.StoredAt) > maxAge {
		c.log.Debug("cache entry too old", zap.String("key", key.String()), zap.Time("stored_at", env.StoredAt))
		return nil, false
	}
	report := env.Report
	report.Cached = true
	return &report, true
}

// Store writes the report under key. It is skipped when the key has no revision.
func (c *ScanCache) Store(ctx context.Context, key Key, report types.ScanReport) {
	if c == nil || c.backend == nil || !key.Cacheable() {
		return
	}
	report.Cached = false
	raw, err := json.Marshal(envelope{StoredAt: c.now().UTC(), Report: report})
	if err != nil {
		c.log.Warn("cache encode failed", zap.Error(err))
		return
	}
	if err := c.backend.Set(ctx, key.String(), raw); err != nil {
		c.log.Warn("cache store failed", zap.String("key", key.String()), zap.Error(err))
		return
	}
	c.log.Debug("cache stored", zap.String("key", key.String()), zap.Int("bytes", len(raw)))
}

func (c *ScanCache) Close() error {
	if c == nil || c.backend == nil {
		return nil
	}
	return c.backend.Close()
}

var errNilStore = errors.New("store is nil")
