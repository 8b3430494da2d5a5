// Package catalog holds the set of satellites the engine renders. Writes go
// through a mutex; readers take lock-free snapshots so frame builds and
// request handlers never block behind an upsert.
package catalog

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orbview/orbview/internal/metrics"
	"github.com/orbview/orbview/internal/propagation"
)

// Satellite is one catalog entry. The element set lines are stored opaque;
// they are validated for shape on upsert but parsed only by the propagation
// layer.
type Satellite struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
}

// Snapshot is an immutable view of the catalog at one version. Satellites is
// ordered by ID and must not be mutated by callers.
type Snapshot struct {
	Version    uint64      `json:"version"`
	UpdatedAt  time.Time   `json:"updated_at"`
	Satellites []Satellite `json:"satellites"`
}

// Catalog is the mutable registry. The zero value is not usable; call New.
type Catalog struct {
	snap atomic.Pointer[Snapshot]
	mu   sync.Mutex // serializes writes; readers go through snap only
	ver  uint64
}

func New() *Catalog {
	c := &Catalog{}
	c.snap.Store(&Snapshot{Version: 0, UpdatedAt: time.Now().UTC()})
	return c
}

// Snapshot returns the current immutable view.
func (c *Catalog) Snapshot() *Snapshot {
	return c.snap.Load()
}

// Version returns the current catalog version. It increments on every
// successful Upsert or Remove, so consumers can detect membership changes
// without diffing snapshots.
func (c *Catalog) Version() uint64 {
	return c.snap.Load().Version
}

// Get returns the satellite with the given ID.
func (c *Catalog) Get(id string) (Satellite, bool) {
	for _, s := range c.snap.Load().Satellites {
		if s.ID == id {
			return s, true
		}
	}
	return Satellite{}, false
}

// List returns all satellites ordered by ID. The slice is shared with the
// snapshot and must not be modified.
func (c *Catalog) List() []Satellite {
	return c.snap.Load().Satellites
}

// Len reports the number of satellites.
func (c *Catalog) Len() int {
	return len(c.snap.Load().Satellites)
}

// Upsert adds or replaces a satellite. The element set is rejected if the
// propagation layer cannot initialize from it.
func (c *Catalog) Upsert(sat Satellite) error {
	if sat.ID == "" {
		return fmt.Errorf("catalog: empty satellite id")
	}
	if _, err := propagation.NewAdapter(sat.ID, sat.Line1, sat.Line2); err != nil {
		return fmt.Errorf("catalog: satellite %s: %w", sat.ID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.snap.Load().Satellites
	next := make([]Satellite, 0, len(cur)+1)
	replaced := false
	for _, s := range cur {
		if s.ID == sat.ID {
			next = append(next, sat)
			replaced = true
		} else {
			next = append(next, s)
		}
	}
	if !replaced {
		next = append(next, sat)
		sort.Slice(next, func(i, j int) bool { return next[i].ID < next[j].ID })
	}
	c.publishLocked(next)
	return nil
}

// Remove deletes a satellite by ID. Removing an unknown ID is an error so
// callers can distinguish a no-op from a delete.
func (c *Catalog) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.snap.Load().Satellites
	next := make([]Satellite, 0, len(cur))
	found := false
	for _, s := range cur {
		if s.ID == id {
			found = true
			continue
		}
		next = append(next, s)
	}
	if !found {
		return fmt.Errorf("catalog: satellite %s not found", id)
	}
	c.publishLocked(next)
	return nil
}

// Replace swaps the entire catalog contents in one version bump. Entries are
// validated up front; any failure leaves the catalog unchanged.
func (c *Catalog) Replace(sats []Satellite) error {
	next := make([]Satellite, 0, len(sats))
	seen := make(map[string]bool, len(sats))
	for _, sat := range sats {
		if sat.ID == "" {
			return fmt.Errorf("catalog: empty satellite id")
		}
		if seen[sat.ID] {
			return fmt.Errorf("catalog: duplicate satellite id %s", sat.ID)
		}
		seen[sat.ID] = true
		if _, err := propagation.NewAdapter(sat.ID, sat.Line1, sat.Line2); err != nil {
			return fmt.Errorf("catalog: satellite %s: %w", sat.ID, err)
		}
		next = append(next, sat)
	}
	sort.Slice(next, func(i, j int) bool { return next[i].ID < next[j].ID })

	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishLocked(next)
	return nil
}

func (c *Catalog) publishLocked(sats []Satellite) {
	c.ver++
	c.snap.Store(&Snapshot{
		Version:    c.ver,
		UpdatedAt:  time.Now().UTC(),
		Satellites: sats,
	})
	metrics.SetCatalogSatellites(len(sats))
}
