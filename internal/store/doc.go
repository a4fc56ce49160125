// Package store provides SQLite-backed run history and a result cache.
//
// Every simulate invocation can be recorded as a Run: the recipe, its
// stoichiometry, the performance result, and the content hash of all
// inputs that determine that result (see canon.InputHash). A later run with
// the same input hash can be served from the most recent converged record
// instead of calling the equilibrium solver again.
//
// # Ordering
//
// Listing is newest first by created_at, then by id descending, so two
// runs recorded within the same clock tick still have a stable order. Run
// IDs are UUIDv7, which sort by creation time on their own.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - user_version: Schema version for migrations
package store
