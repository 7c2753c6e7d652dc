package obslog

import "sync/atomic"

// SiteCache memoizes an "is this level enabled" decision at a single call
// site, so a hot path (the per-frame sample socket read loop, for example)
// doesn't pay for a level comparison and a mutex-guarded load of the
// package logger on every iteration. It is invalidated automatically
// whenever SetLevel or SetWriter runs, by comparing against Generation.
//
// The zero value is ready to use.
type SiteCache struct {
	// packed holds ((generation+1) << 1 | enabled) so a single atomic load
	// serves both fields without tearing; the +1 keeps the zero value from
	// matching any generation, so the first call always consults the logger.
	packed atomic.Uint64
}

// Enabled reports whether level is currently enabled, consulting the
// package logger only on the first call after the generation advances.
func (c *SiteCache) Enabled(level Level) bool {
	gen := Generation()
	packed := c.packed.Load()
	if packed>>1 == gen+1 {
		return packed&1 != 0
	}
	enabled := L().Build(level).Enabled()
	next := (gen + 1) << 1
	if enabled {
		next |= 1
	}
	c.packed.Store(next)
	return enabled
}
