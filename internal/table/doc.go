// Package table holds the channel table behind a slotbox Store.
//
// The table owns every [Slot] and resolves them by the composite
// (endpoint, channel) key. Each endpoint gets its own sub-map guarded by its
// own lock, so traffic on one endpoint never contends with another.
//
// The main components are:
//
//   - [Table]: keyed lookup, lazy creation and whole-table teardown
//   - [Slot]: the single-message buffer for one (endpoint, channel) pair
//   - [Event]: change notification published after every replacement
//
// Slots are created on first write and are never freed individually; only
// [Table.Teardown] releases them.
//
// Users of the slotbox library should not need to interact with this package
// directly. The table is owned and driven by slotbox.Store.
package table
