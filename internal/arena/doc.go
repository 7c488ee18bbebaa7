// Package arena resolves engine-owned arrays to zero-copy views.
//
// The engine keeps its simulation state in one contiguous byte arena. A
// [Pointer] names a region of that arena by offset, element stride and
// element count; a [View] is a borrowed window onto the region.
//
// # Lifetime
//
// An offset is only meaningful until the next call that can resize or
// relocate the arena: creating or deleting atoms, rebuilding neighbor lists,
// computing bonds or particles, stepping, or running any command. Callers
// must re-resolve after such a call. Every view records the [Epoch] it was
// resolved in and every accessor re-checks it, so touching a view after the
// arena moved returns a [StaleViewError] instead of reading detached memory.
// Views also record the source's memory generation, which catches growth
// the engine does inside calls that do not advance the epoch, such as guest
// allocations made while resolving modifiers.
//
// Views are not safe for concurrent use with engine calls.
package arena
