package convert

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Limit is the number of descriptors a site specialises for before it
// switches to the generic path for good.
const Limit = 3

type entry struct {
	desc *Descriptor
	conv Converter
}

// cacheState is immutable; transitions swap the whole state.
type cacheState struct {
	entries []entry
	generic bool
}

var (
	emptyState   = &cacheState{}
	genericState = &cacheState{generic: true}
)

type siteCache struct {
	state       atomic.Pointer[cacheState]
	specialized atomic.Uint64
	generic     atomic.Uint64
}

// Stats reports how a site's conversions were served in one direction.
type Stats struct {
	Specialized uint64
	Generic     uint64
	Cached      int
	Megamorphic bool
}

// SiteStats holds the stats of both directions of a site.
type SiteStats struct {
	ToNative   Stats
	FromNative Stats
}

// Site is a conversion call site. It keeps a small cache of specialised
// converters per direction, keyed by descriptor identity. The first Limit
// distinct descriptors each get a cached converter; the next one replaces
// them all with the generic path, permanently.
//
// A Site is safe for concurrent use. A goroutine that observes a stale
// cache state still converts correctly.
type Site struct {
	boundary *Boundary
	to       siteCache
	from     siteCache
}

// ToNative converts a host value to the native form of d.
func (s *Site) ToNative(d *Descriptor, v any) (any, error) {
	return s.to.convert(s.boundary, ToNative, d, v)
}

// FromNative converts a native value of d to a host value.
func (s *Site) FromNative(d *Descriptor, v any) (any, error) {
	return s.from.convert(s.boundary, FromNative, d, v)
}

// Stats returns the path counters of both directions.
func (s *Site) Stats() SiteStats {
	return SiteStats{ToNative: s.to.stats(), FromNative: s.from.stats()}
}

func (c *siteCache) load() *cacheState {
	if st := c.state.Load(); st != nil {
		return st
	}
	c.state.CompareAndSwap(nil, emptyState)
	return c.state.Load()
}

func (c *siteCache) stats() Stats {
	st := c.load()
	return Stats{
		Specialized: c.specialized.Load(),
		Generic:     c.generic.Load(),
		Cached:      len(st.entries),
		Megamorphic: st.generic,
	}
}

func (c *siteCache) convert(b *Boundary, dir Direction, d *Descriptor, v any) (any, error) {
	st := c.load()
	if st.generic {
		c.generic.Add(1)
		return b.Convert(dir, d, v)
	}

	for _, e := range st.entries {
		if e.desc == d {
			c.specialized.Add(1)
			return e.conv(v)
		}
	}

	conv, err := b.converter(dir, d)
	if err != nil {
		return nil, err
	}

	if len(st.entries) < Limit {
		next := &cacheState{entries: make([]entry, len(st.entries), len(st.entries)+1)}
		copy(next.entries, st.entries)
		next.entries = append(next.entries, entry{desc: d, conv: conv})
		// Losing the race leaves the cache to the winner; this call still
		// converts with its own converter.
		c.state.CompareAndSwap(st, next)
		c.specialized.Add(1)
		return conv(v)
	}

	for {
		cur := c.state.Load()
		if cur.generic {
			break
		}
		if c.state.CompareAndSwap(cur, genericState) {
			Logger().Debug("conversion site switched to generic path",
				zap.Stringer("direction", dir),
				zap.Stringer("descriptor", d),
				zap.Int("cached", len(cur.entries)))
			break
		}
	}
	c.generic.Add(1)
	return conv(v)
}
