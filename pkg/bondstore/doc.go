// Package bondstore remembers which Bluetooth devices are bonded with this host.
//
// Bonded devices can be listed without scanning. Not every platform stack exposes its pairing
// database, so the [Store] keeps its own record of bonds, keyed by device address, along with the
// name, class and services last known for each device.
//
// A Store can be persisted with [Store.Export] or [Store.ExportToFile] and loaded again with
// [Import] or [ImportFromFile]. The serialized form is JSON.
//
// The same Store may safely be used from multiple goroutines; platform adapters consult it from
// scan callbacks to report bond state.
package bondstore
