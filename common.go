// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pathmap

// Config holds the build-flag-equivalent switches from spec §6. The teacher
// picks a representation per Go type (Table/Lite/Fast); PathMap is a single
// generic type configured once at construction via functional options,
// since a library consumed as source rather than compiled per flag
// combination should not multiply types per switch.
type Config struct {
	// graftRootVals treats a node's own value as part of Join/Meet/
	// Subtract/Restrict performed at its position; with it off, those
	// operations see only the values of childless nodes. Graft, GraftMap
	// and TakeMap do not consult it: they always carry the focus's own
	// value along with its subtree. Default true (spec §6: graft_root_vals,
	// default on).
	graftRootVals bool

	// allDenseNodes forces every node to the Dense variant, disabling
	// Line/Sparse/Bridge transitions. Useful for benchmarking and for
	// reproducing bugs independent of variant-selection heuristics.
	allDenseNodes bool

	// bridgeNodes enables the experimental Bridge variant. Mutually
	// exclusive with allDenseNodes; New panics if both are set.
	bridgeNodes bool

	// slimPtrs is carried for API parity with spec §6; this Go port
	// always uses a single interior-pointer width (Go has no analogue to
	// a 64-byte inter-node pointer type), so instead it biases the arena's
	// small/full page classification (internal/arena.AllocSmallCohort)
	// toward the shared, compact small-cohort encoding over a node
	// getting its own full page.
	slimPtrs bool

	// arenaCompact enables the arena allocation regime (spec §4.2). Off
	// by default: all nodes live in the heap regime, backed by the node
	// pool.
	arenaCompact bool

	// counters exposes the allocator/pool profiling counters via
	// PathMap.Stats.
	counters bool

	// zipperTracking exposes zipper-lifetime introspection via
	// ZipperHead.OutstandingZippers, for debugging ZipperHead exclusivity
	// bugs.
	zipperTracking bool

	// evictThreshold and minEvictThreshold tune the arena's small-node
	// packing (spec §9: "EVICT_THRESHOLD and MIN_EVICT_THRESHOLD without
	// fixed values"). This port fixes sensible defaults, see
	// DESIGN.md.
	evictThreshold    int
	minEvictThreshold int

	// denseThreshold (T1 in spec §4.1) is the child count above which a
	// node is promoted from Sparse to Dense.
	denseThreshold int
}

// Option configures a PathMap at construction time.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		graftRootVals:     true,
		evictThreshold:    32,
		minEvictThreshold: 8,
		denseThreshold:    8,
	}
}

// WithGraftRootVals overrides the default (on) for graft_root_vals.
func WithGraftRootVals(on bool) Option {
	return func(c *Config) { c.graftRootVals = on }
}

// WithAllDenseNodes forces every node to the Dense variant.
func WithAllDenseNodes() Option {
	return func(c *Config) { c.allDenseNodes = true }
}

// WithBridgeNodes enables the experimental Bridge variant.
func WithBridgeNodes() Option {
	return func(c *Config) { c.bridgeNodes = true }
}

// WithSlimPtrs biases the arena's page-packing classification toward the
// shared, compact small-cohort encoding over giving a node its own full
// page.
func WithSlimPtrs() Option {
	return func(c *Config) { c.slimPtrs = true }
}

// WithArenaCompact enables the arena allocation regime.
func WithArenaCompact() Option {
	return func(c *Config) { c.arenaCompact = true }
}

// WithCounters turns on allocator/pool profiling counters.
func WithCounters() Option {
	return func(c *Config) { c.counters = true }
}

// WithZipperTracking turns on zipper-lifetime introspection, populating
// ZipperHead.OutstandingZippers.
func WithZipperTracking() Option {
	return func(c *Config) { c.zipperTracking = true }
}

// WithDenseThreshold overrides T1, the Sparse→Dense promotion threshold.
func WithDenseThreshold(n int) Option {
	return func(c *Config) { c.denseThreshold = n }
}

// WithEvictThresholds overrides the arena's small-node packing thresholds.
func WithEvictThresholds(evict, minEvict int) Option {
	return func(c *Config) { c.evictThreshold, c.minEvictThreshold = evict, minEvict }
}
