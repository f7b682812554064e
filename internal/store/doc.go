// Package store caches JSON values behind a pluggable Adapter with per-key
// expiry.
//
// [MemoryAdapter] keeps entries in process. [SQLiteAdapter] persists them in
// a SQLite file so market data survives restarts. [Cache] layers typed
// access and load deduplication on top of an adapter:
//
//	bars := store.NewCache[[]market.Bar](adapter, "bars", 5*time.Minute)
//	v, err := bars.GetOrLoad(ctx, "TSLA:2025-09-18:2025-10-18", fetch)
//
// [Sessions] stores conversation history per session ID on the same
// adapters.
package store
