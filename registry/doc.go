// Package registry maps a cell id and channel to a concrete version, its
// artifact locations and its manifest.
//
// Cells are identified as "sector/name" and published as immutable semantic
// versions. Each cell carries named channels. "stable" only moves through
// UpdateChannel or Promote, every other channel declared at first publish
// follows the newest version automatically.
//
// Entries live under cells/{sector}/{name} and artifacts under
// artifacts/{sector}/{name}/{version}/{upload}/{server|client|schema} in any
// storage.Store. Writes go through storage.Updater when the store offers it,
// so two registries sharing a NATS KV bucket never lose each other's updates.
//
// Resolutions are cached per id and channel for the configured TTL. Any
// channel move, publish or health change drops every cached resolution of
// that cell. Downloads and last-access times are written back through a
// small worker pool and are counted on cache misses only.
//
//	reg, err := registry.New(entries, artifacts,
//	    registry.WithCacheTTL(5*time.Minute),
//	    registry.WithLogger(logger),
//	)
//	res, err := reg.ResolveCell(ctx, "finance/tax", "beta")
//	fmt.Println(res.Version, res.Locations.Server)
package registry
