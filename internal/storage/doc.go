// Package storage persists named snapshot blobs.
//
// Each component that needs durability (schedule cache, subscriptions,
// homework marks) owns one blob and rewrites it wholesale after every
// mutation. Drivers:
//   - "file": one <prefix>.<name>.snapshot.json per blob, replaced atomically
//   - "sqlite": a single snapshots table in a SQLite database
//   - "memory" / "none": process-local only, nothing survives a restart
package storage
