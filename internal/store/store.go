// Package store provides a hierarchical key-path document store with
// atomic multi-path updates and push-based subscriptions.
//
// Paths are slash-separated segments ("games/MUNCH-A2B4/turnState/turnIndex").
// Leaves hold JSON-compatible values: bool, float64, string, []any, and
// map[string]any. Writing nil at a path deletes the subtree rooted there.
package store

import "context"

// Store is the key-path primitive the game layer is written against.
//
// All write operations are atomic: every path in a single call commits
// together, and subscribers observe the batch as one new document version.
// Subscribers receive every version of their subtree after subscribing,
// including versions produced by their own writes, delivered asynchronously
// in commit order.
type Store interface {
	// Get returns a deep copy of the value at path, and whether it exists.
	Get(ctx context.Context, path string) (any, bool, error)

	// Set replaces the subtree at path with value. A nil value deletes.
	Set(ctx context.Context, path string, value any) error

	// SetIfAbsent writes value at path only when nothing exists there yet.
	// The existence check and the write happen under the same lock, so two
	// racing creators can never both succeed. It reports whether the write
	// happened.
	SetIfAbsent(ctx context.Context, path string, value any) (bool, error)

	// Update applies all path→value pairs as one atomic batch. Paths are
	// relative to the store root; a nil value deletes that path.
	Update(ctx context.Context, patch map[string]any) error

	// Append inserts value into the collection at path under a generated
	// key and returns that key.
	Append(ctx context.Context, path string, value any) (string, error)

	// Subscribe registers onChange for the subtree at path. The callback
	// fires once with the current value (nil if absent) and then for every
	// subsequent version. The returned function cancels the subscription.
	Subscribe(path string, onChange func(value any)) (func(), error)
}
