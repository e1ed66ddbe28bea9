// Package registry maintains the canonical, deduplicated set of known Bluetooth devices.
//
// A [Registry] merges two sources: enumerations of bonded devices and live discovery events
// reported while a scan is active. Records are keyed by address and kept in the order they were
// first seen, so a presentation layer can render a stable list.
//
// A Registry performs no locking. Callers must serialize access; see the session package for an
// owner that does so.
package registry

import (
	"time"

	"github.com/bluetoothscan/btscan/internal/log"
	"github.com/bluetoothscan/btscan/pkg/device"
)

// State is the scan status of a Registry.
type State int

const (
	StateIdle State = iota
	StateScanning
)

func (s State) String() string {
	if s == StateScanning {
		return "scanning"
	}
	return "idle"
}

type Registry struct {
	entries map[string]*device.Record
	order   []string
	state   State

	now func() time.Time
}

func New() *Registry {
	return &Registry{
		entries: make(map[string]*device.Record),
		now:     time.Now,
	}
}

// LoadBonded upserts every device in devices as bonded and returns the resulting snapshot.
// Signal strength is left untouched, so a bonded-only record never has one.
func (r *Registry) LoadBonded(devices []device.RawDevice) []device.Record {
	for _, raw := range devices {
		incoming := device.Normalize(raw)
		if incoming.Address == "" {
			log.Debug("Ignoring bonded device without address")
			continue
		}
		incoming.BondState = device.BondBonded
		if existing, ok := r.entries[incoming.Address]; ok {
			existing.Merge(incoming)
			existing.BondState = device.BondBonded
			continue
		}
		r.insert(incoming)
	}
	return r.Snapshot()
}

// BeginScan moves the registry from idle to scanning. Known entries are kept, but signal
// strengths from a previous scan are discarded.
func (r *Registry) BeginScan() error {
	if r.state == StateScanning {
		return &StateError{Op: "begin scan", State: r.state}
	}
	r.state = StateScanning
	for _, record := range r.entries {
		record.SignalStrength = nil
	}
	return nil
}

// OnDeviceFound merges a discovery event and returns the updated record. Events are accepted in
// either state; one that arrives shortly after EndScan is still merged. An event without an
// address is ignored and the zero Record is returned.
func (r *Registry) OnDeviceFound(raw device.RawDevice, signalStrength int16) device.Record {
	incoming := device.Normalize(raw)
	if incoming.Address == "" {
		log.Debug("Ignoring discovery event without address")
		return device.Record{}
	}
	incoming.SignalStrength = &signalStrength
	incoming.LastSeen = r.now()

	existing, ok := r.entries[incoming.Address]
	if !ok {
		log.Debug("Found %s (%s) rssi=%d", incoming.Address, incoming.Name, signalStrength)
		return r.insert(incoming).Clone()
	}
	existing.Merge(incoming)
	existing.BondState = incoming.BondState
	existing.SignalStrength = incoming.SignalStrength
	return existing.Clone()
}

// Enrich merges details about an already known device, such as services resolved over a
// connection, without touching its bond state or signal strength. It returns false if the device
// is unknown; unknown devices are not added.
func (r *Registry) Enrich(raw device.RawDevice) (device.Record, bool) {
	incoming := device.Normalize(raw)
	existing, ok := r.entries[incoming.Address]
	if !ok {
		return device.Record{}, false
	}
	existing.Merge(incoming)
	return existing.Clone(), true
}

// EndScan moves the registry to idle. Calling it while idle has no effect.
func (r *Registry) EndScan() {
	r.state = StateIdle
}

// Reset discards all entries. It fails while scanning so that in-flight discovery results are not
// lost.
func (r *Registry) Reset() error {
	if r.state == StateScanning {
		return &StateError{Op: "reset", State: r.state}
	}
	r.entries = make(map[string]*device.Record)
	r.order = nil
	return nil
}

// Snapshot returns copies of all records in the order they were first seen.
func (r *Registry) Snapshot() []device.Record {
	snapshot := make([]device.Record, 0, len(r.order))
	for _, address := range r.order {
		snapshot = append(snapshot, r.entries[address].Clone())
	}
	return snapshot
}

// Lookup returns a copy of the record for address, which may use any case.
func (r *Registry) Lookup(address string) (device.Record, bool) {
	record, ok := r.entries[device.CanonicalAddress(address)]
	if !ok {
		return device.Record{}, false
	}
	return record.Clone(), true
}

func (r *Registry) State() State {
	return r.state
}

func (r *Registry) Scanning() bool {
	return r.state == StateScanning
}

func (r *Registry) Len() int {
	return len(r.order)
}

func (r *Registry) insert(record device.Record) *device.Record {
	stored := record.Clone()
	r.entries[record.Address] = &stored
	r.order = append(r.order, record.Address)
	return &stored
}
