// Package catalog holds the domain model shared by the cache store, the
// search index, the sync orchestrator and the command layer: content types,
// catalog items with their series seasons and episodes, categories, profiles
// and the per-profile sync bookkeeping records.
package catalog
