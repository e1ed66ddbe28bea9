package bondstore

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/bluetoothscan/btscan/pkg/device"
)

var ErrNoAddress = errors.New("bondstore: device address is empty")

// Entry holds what is known about a bonded device.
type Entry struct {
	Name        string    `json:"name,omitempty"`
	DeviceClass *uint32   `json:"device_class,omitempty"`
	ServiceIDs  []string  `json:"service_ids,omitempty"`
	BondedAt    time.Time `json:"bonded_at"`
}

type Store struct {
	MaxEntries int              `json:"max_entries,omitempty"`
	Devices    map[string]Entry `json:"devices"`
	lock       sync.Mutex
}

// New returns a Store that holds up to maxEntries bonded devices. When the Store is full, adding
// a device evicts the device with the oldest bond.
//
// Set maxEntries to zero for an unbounded store.
func New(maxEntries int) *Store {
	return &Store{
		MaxEntries: maxEntries,
		Devices:    make(map[string]Entry),
	}
}

// Import a Store using data in r.
// The data should previously have been generated using [Store.Export].
func Import(r io.Reader) (*Store, error) {
	var store Store
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&store); err != nil {
		return nil, err
	}
	devices := make(map[string]Entry, len(store.Devices))
	for address, entry := range store.Devices {
		address = device.CanonicalAddress(address)
		if address == "" {
			continue
		}
		if existing, ok := devices[address]; ok {
			entry = existing.merge(address, entry)
		}
		devices[address] = entry
	}
	store.Devices = devices
	return &store, nil
}

// ImportFromFile reads a Store from disk.
func ImportFromFile(filename string) (*Store, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Import(file)
}

// Export writes a serialized Store to w.
func (s *Store) Export(w io.Writer) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	return json.NewEncoder(w).Encode(s)
}

// ExportToFile writes a Store to disk, replacing any previous contents.
func (s *Store) ExportToFile(filename string) error {
	file, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	return s.Export(file)
}

// Update records address as bonded. Details already stored for address are merged with entry
// rather than replaced, and the original bond time is kept.
func (s *Store) Update(address string, entry Entry) error {
	address = device.CanonicalAddress(address)
	if address == "" {
		return ErrNoAddress
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if entry.BondedAt.IsZero() {
		entry.BondedAt = time.Now()
	}
	if existing, ok := s.Devices[address]; ok {
		entry = existing.merge(address, entry)
		entry.BondedAt = existing.BondedAt
	} else {
		entry = entry.merge(address, Entry{BondedAt: entry.BondedAt})
	}
	s.Devices[address] = entry

	if s.MaxEntries > 0 && len(s.Devices) > s.MaxEntries {
		oldest := address
		oldestBond := entry.BondedAt
		for a, e := range s.Devices {
			if e.BondedAt.Before(oldestBond) {
				oldest = a
				oldestBond = e.BondedAt
			}
		}
		delete(s.Devices, oldest)
	}
	return nil
}

// Remove forgets address. It returns false if address was not bonded.
func (s *Store) Remove(address string) bool {
	address = device.CanonicalAddress(address)

	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.Devices[address]; !ok {
		return false
	}
	delete(s.Devices, address)
	return true
}

// Get returns the entry for address.
func (s *Store) Get(address string) (Entry, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	entry, ok := s.Devices[device.CanonicalAddress(address)]
	return entry, ok
}

func (s *Store) Contains(address string) bool {
	_, ok := s.Get(address)
	return ok
}

// BondedDevices returns the stored devices ordered by bond time, oldest first. Devices bonded at
// the same instant are ordered by address.
func (s *Store) BondedDevices() []device.RawDevice {
	s.lock.Lock()
	defer s.lock.Unlock()

	addresses := make([]string, 0, len(s.Devices))
	for address := range s.Devices {
		addresses = append(addresses, address)
	}
	sort.Slice(addresses, func(i, j int) bool {
		a, b := s.Devices[addresses[i]], s.Devices[addresses[j]]
		if !a.BondedAt.Equal(b.BondedAt) {
			return a.BondedAt.Before(b.BondedAt)
		}
		return addresses[i] < addresses[j]
	})

	devices := make([]device.RawDevice, 0, len(addresses))
	for _, address := range addresses {
		record := s.Devices[address].record(address)
		devices = append(devices, device.RawDevice{
			Address:     record.Address,
			Name:        record.Name,
			BondState:   device.BondBonded,
			DeviceClass: record.DeviceClass,
			ServiceIDs:  record.ServiceIDs,
		})
	}
	return devices
}

// merge folds other into e. Details are merged as for registry records and the earlier bond time
// is kept.
func (e Entry) merge(address string, other Entry) Entry {
	merged := e.record(address)
	merged.Merge(other.record(address))
	bondedAt := e.BondedAt
	if bondedAt.IsZero() || (!other.BondedAt.IsZero() && other.BondedAt.Before(bondedAt)) {
		bondedAt = other.BondedAt
	}
	return Entry{
		Name:        merged.Name,
		DeviceClass: merged.DeviceClass,
		ServiceIDs:  merged.ServiceIDs,
		BondedAt:    bondedAt,
	}
}

func (e Entry) record(address string) device.Record {
	return device.Normalize(device.RawDevice{
		Address:     address,
		Name:        e.Name,
		BondState:   device.BondBonded,
		DeviceClass: e.DeviceClass,
		ServiceIDs:  e.ServiceIDs,
	})
}
