// Package session owns a device registry for the lifetime of a discovery session.
//
// A [Session] couples a [registry.Registry] with the platform [ble.Adapter] that feeds it. Adapter
// callbacks arrive on goroutines owned by the platform; the Session serializes them before they
// reach the registry, which is not safe for concurrent use on its own.
//
// Presentation layers observe the registry through [Session.Subscribe]. Each change delivers a
// complete snapshot, so subscribers re-render rather than apply diffs.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bluetoothscan/btscan/internal/log"
	"github.com/bluetoothscan/btscan/pkg/connector/ble"
	"github.com/bluetoothscan/btscan/pkg/device"
	"github.com/bluetoothscan/btscan/pkg/registry"
)

var ErrClosed = errors.New("session: closed")

type Session struct {
	adapter  ble.Adapter
	registry *registry.Registry

	lock        sync.Mutex
	subscribers map[int]chan []device.Record
	nextID      int
	closed      bool
}

// New returns a Session that discovers devices through adapter. The Session takes ownership of
// adapter and closes it in [Session.Close].
func New(adapter ble.Adapter) *Session {
	return &Session{
		adapter:     adapter,
		registry:    registry.New(),
		subscribers: make(map[int]chan []device.Record),
	}
}

// LoadBonded merges the adapter's bonded devices into the registry and returns the snapshot.
func (s *Session) LoadBonded(ctx context.Context) ([]device.Record, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	bonded, err := s.adapter.BondedDevices(ctx)
	if err != nil {
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	log.Debug("Loading %d bonded devices", len(bonded))
	snapshot := s.registry.LoadBonded(bonded)
	s.publish(snapshot)
	return snapshot, nil
}

// Scan discovers devices until timeout elapses or ctx is canceled. A timeout of zero scans until
// ctx is canceled.
//
// Reaching the timeout is the normal end of a scan and returns nil. If ctx is canceled first, its
// error is returned. In both cases the registry leaves the scanning state before Scan returns, and
// every device found up to that point remains in the snapshot.
//
// Scan fails with an error matching [registry.ErrInvalidState] if another scan is in progress.
func (s *Session) Scan(ctx context.Context, timeout time.Duration) error {
	return s.scan(ctx, timeout, nil)
}

// Find scans like [Session.Scan] but stops as soon as the device at address is seen. It returns
// the device's record, or false if the scan ended without seeing it.
func (s *Session) Find(ctx context.Context, address string, timeout time.Duration) (device.Record, bool, error) {
	address = device.CanonicalAddress(address)
	var found device.Record
	var ok bool
	err := s.scan(ctx, timeout, func(r device.Record) bool {
		if !ok && r.Address == address {
			found, ok = r, true
		}
		return ok
	})
	return found, ok, err
}

func (s *Session) scan(ctx context.Context, timeout time.Duration, stop func(device.Record) bool) error {
	if err := s.beginScan(); err != nil {
		return err
	}
	// Guarded by s.lock. Events the platform delivers after the scan ends are still merged, but
	// stop is no longer consulted once scan has returned.
	active := true
	defer s.endScan(&active)

	var scanCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		scanCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		scanCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	log.Info("Scanning for devices...")
	err := s.adapter.Scan(scanCtx, func(a ble.Advertisement) {
		s.lock.Lock()
		defer s.lock.Unlock()
		record := s.registry.OnDeviceFound(a.Device, a.RSSI)
		if record.Address == "" {
			return
		}
		s.publish(s.registry.Snapshot())
		if active && stop != nil && stop(record) {
			cancel()
		}
	})

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && !ble.IsScanEnd(err) {
		log.Warning("Scan failed: %s", err)
		return err
	}
	return nil
}

func (s *Session) beginScan() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.registry.BeginScan()
}

func (s *Session) endScan(active *bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	*active = false
	s.registry.EndScan()
	log.Info("Scan finished with %d devices", s.registry.Len())
	s.publish(s.registry.Snapshot())
}

// ResolveServices asks the adapter for the full service list of the device at address and merges
// it into the device's record. The device must already be known.
func (s *Session) ResolveServices(ctx context.Context, address string) (device.Record, error) {
	if s.isClosed() {
		return device.Record{}, ErrClosed
	}
	record, ok := s.Lookup(address)
	if !ok {
		return device.Record{}, &UnknownDeviceError{Address: device.CanonicalAddress(address)}
	}
	ids, err := s.adapter.ResolveServices(ctx, record.Address)
	if err != nil {
		return device.Record{}, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	updated, _ := s.registry.Enrich(device.RawDevice{Address: record.Address, ServiceIDs: ids})
	s.publish(s.registry.Snapshot())
	return updated, nil
}

func (s *Session) Snapshot() []device.Record {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.registry.Snapshot()
}

func (s *Session) Lookup(address string) (device.Record, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.registry.Lookup(address)
}

func (s *Session) Scanning() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.registry.Scanning()
}

// Reset discards every known device. It fails while a scan is in progress.
func (s *Session) Reset() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.registry.Reset(); err != nil {
		return err
	}
	s.publish(s.registry.Snapshot())
	return nil
}

// Subscribe returns a channel that receives a snapshot after every change, starting with the
// current one, and a function that ends the subscription and closes the channel.
//
// Deliveries are coalesced: a subscriber that falls behind receives only the latest snapshot.
// The release function may be called more than once. Subscriptions still open when the Session is
// closed are released then.
func (s *Session) Subscribe() (<-chan []device.Record, func()) {
	s.lock.Lock()
	defer s.lock.Unlock()

	ch := make(chan []device.Record, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.subscribers[id] = ch
	ch <- s.registry.Snapshot()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.lock.Lock()
			defer s.lock.Unlock()
			if sub, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(sub)
			}
		})
	}
}

// Close releases all subscriptions and the adapter. Repeated calls are no-ops.
func (s *Session) Close() error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return nil
	}
	s.closed = true
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
	s.lock.Unlock()

	return s.adapter.Close()
}

func (s *Session) isClosed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.closed
}

// publish must be called with s.lock held.
func (s *Session) publish(snapshot []device.Record) {
	for _, ch := range s.subscribers {
		// Each subscriber gets its own copy; records hold pointers.
		snapshot := cloneAll(snapshot)
		select {
		case ch <- snapshot:
			continue
		default:
		}
		// Drop the stale snapshot the subscriber hasn't read yet.
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

func cloneAll(records []device.Record) []device.Record {
	out := make([]device.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
