// Package state implements the channel-based store that graph nodes read from
// and write into.
//
// A Schema declares every channel up front: its name, its reduction (how
// writes combine), an optional Go type, and a default. The reduction of a
// channel is fixed once the schema is built.
//
//   - Overwrite: a write replaces the previous value. Two different nodes
//     writing the same overwrite channel in one round is a ConflictError.
//   - Append: writes are unioned into a Set of distinct string identifiers.
//     Writing the same identifier twice has no effect, which makes completion
//     signals idempotent.
//
// Nodes never touch a Store. They receive a View (an immutable snapshot taken
// at round start) and return an Update; the engine collects the round's
// updates as Writes and applies them together with Store.Merge.
//
// # Namespaces
//
// A node may carry a namespace. Keys it writes resolve to "namespace.key"
// when that channel is declared and to the flat "key" otherwise; reads from a
// scoped View resolve the same way. Key builds the qualified name.
package state
