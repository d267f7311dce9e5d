package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type DiskConfig struct {
	Root       string
	MaxEntries int
	MaxBytes   int64
	TTL        time.Duration
}

type diskEntry struct {
	File       string    `json:"file"`
	Size       int64     `json:"size"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	AccessedAt time.Time `json:"accessed_at"`
}

type diskIndex struct {
	Entries map[string]diskEntry `json:"entries"`
}

// Disk persists reports as files under Root/reports and keeps a JSON index
// used for TTL expiry and least-recently-used eviction. The index survives
// restarts.
type Disk struct {
	mu sync.Mutex

	dir       string
	indexPath string

	maxEntries int
	maxBytes   int64
	ttl        time.Duration

	total   int64
	entries map[string]diskEntry
}

func NewDisk(cfg DiskConfig) (*Disk, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, fmt.Errorf("disk cache root is required")
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 256
	}
	d := &Disk{
		dir:        filepath.Join(root, "reports"),
		indexPath:  filepath.Join(root, "index.json"),
		maxEntries: cfg.MaxEntries,
		maxBytes:   cfg.MaxBytes,
		ttl:        cfg.TTL,
		entries:    map[string]diskEntry{},
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create disk cache: %w", err)
	}
	if err := d.loadIndex(); err != nil {
		return nil, fmt.Errorf("load disk cache index: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.sweepLocked(time.Now()); err != nil {
		return nil, err
	}
	return d, d.persistLocked()
}

func (d *Disk) Get(_ context.Context, key string) ([]byte, bool, error) {
	if d == nil {
		return nil, false, errNilStore
	}
	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()

	ent, ok := d.entries[key]
	if !ok {
		return nil, false, nil
	}
	if d.expired(ent, now) {
		d.removeLocked(key, ent)
		return nil, false, d.persistLocked()
	}
	raw, err := os.ReadFile(filepath.Join(d.dir, ent.File))
	if os.IsNotExist(err) {
		d.removeLocked(key, ent)
		return nil, false, d.persistLocked()
	}
	if err != nil {
		return nil, false, err
	}
	ent.AccessedAt = now
	d.entries[key] = ent
	return raw, true, d.persistLocked()
}

func (d *Disk) Set(_ context.Context, key string, value []byte) error {
	if d == nil {
		return errNilStore
	}
	now := time.Now()
	file := fileName(key)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.WriteFile(filepath.Join(d.dir, file), value, 0o644); err != nil {
		return err
	}
	if old, ok := d.entries[key]; ok {
		d.total -= old.Size
	}
	ent := diskEntry{File: file, Size: int64(len(value)), AccessedAt: now}
	if d.ttl > 0 {
		ent.ExpiresAt = now.Add(d.ttl)
	}
	d.entries[key] = ent
	d.total += ent.Size

	if err := d.sweepLocked(now); err != nil {
		return err
	}
	return d.persistLocked()
}

func (d *Disk) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *Disk) Close() error { return nil }

func (d *Disk) expired(ent diskEntry, now time.Time) bool {
	return !ent.ExpiresAt.IsZero() && now.After(ent.ExpiresAt)
}

func (d *Disk) loadIndex() error {
	raw, err := os.ReadFile(d.indexPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var idx diskIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return err
	}
	if idx.Entries != nil {
		d.entries = idx.Entries
	}
	for _, ent := range d.entries {
		d.total += ent.Size
	}
	return nil
}

// sweepLocked drops expired or orphaned entries, then evicts by recency
// until both limits hold.
func (d *Disk) sweepLocked(now time.Time) error {
	for key, ent := range d.entries {
		if d.expired(ent, now) {
			d.removeLocked(key, ent)
			continue
		}
		if _, err := os.Stat(filepath.Join(d.dir, ent.File)); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
			d.removeLocked(key, ent)
		}
	}
	for len(d.entries) > 0 && (len(d.entries) > d.maxEntries || (d.maxBytes > 0 && d.total > d.maxBytes)) {
		key := d.oldestLocked()
		d.removeLocked(key, d.entries[key])
	}
	return nil
}

func (d *Disk) oldestLocked() string {
	keys := make([]string, 0, len(d.entries))
	for k := range d.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := d.entries[keys[i]].AccessedAt, d.entries[keys[j]].AccessedAt
		if a.Equal(b) {
			return keys[i] < keys[j]
		}
		return a.Before(b)
	})
	return keys[0]
}

func (d *Disk) removeLocked(key string, ent diskEntry) {
	delete(d.entries, key)
	d.total -= ent.Size
	if d.total < 0 {
		d.total = 0
	}
	_ = os.Remove(filepath.Join(d.dir, ent.File))
}

func (d *Disk) persistLocked() error {
	raw, err := json.MarshalIndent(diskIndex{Entries: d.entries}, "", "  ")
	if err != nil {
		return err
	}
	tmp := d.indexPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, d.indexPath)
}

func fileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) + ".json"
}
