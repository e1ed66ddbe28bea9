package registry_test

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bluetoothscan/btscan/pkg/device"
	"github.com/bluetoothscan/btscan/pkg/registry"
)

func addresses(records []device.Record) []string {
	var out []string
	for _, r := range records {
		out = append(out, r.Address)
	}
	return out
}

var _ = Describe("Registry", func() {
	var r *registry.Registry

	BeforeEach(func() {
		r = registry.New()
	})

	Describe("LoadBonded", func() {
		It("returns a bonded record without signal strength", func() {
			snapshot := r.LoadBonded([]device.RawDevice{{Address: "AA:BB", Name: "Phone", BondState: device.BondBonded}})
			Expect(snapshot).To(HaveLen(1))
			Expect(snapshot[0].Address).To(Equal("AA:BB"))
			Expect(snapshot[0].Name).To(Equal("Phone"))
			Expect(snapshot[0].BondState).To(Equal(device.BondBonded))
			Expect(snapshot[0].SignalStrength).To(BeNil())
			Expect(r.Snapshot()).To(Equal(snapshot))
		})

		It("marks devices as bonded regardless of the reported state", func() {
			snapshot := r.LoadBonded([]device.RawDevice{{Address: "AA:BB", BondState: device.BondNone}})
			Expect(snapshot[0].BondState).To(Equal(device.BondBonded))
		})

		It("leaves the registry unchanged for empty input", func() {
			r.LoadBonded([]device.RawDevice{{Address: "AA:BB", Name: "Phone"}})
			before := r.Snapshot()
			Expect(r.LoadBonded(nil)).To(Equal(before))
		})

		It("merges into a previously discovered device without dropping its signal strength", func() {
			Expect(r.BeginScan()).To(Succeed())
			r.OnDeviceFound(device.RawDevice{Address: "AA:BB"}, -70)
			snapshot := r.LoadBonded([]device.RawDevice{{Address: "aa:bb", Name: "Watch"}})
			Expect(snapshot).To(HaveLen(1))
			Expect(snapshot[0].Name).To(Equal("Watch"))
			Expect(snapshot[0].BondState).To(Equal(device.BondBonded))
			Expect(*snapshot[0].SignalStrength).To(BeEquivalentTo(-70))
		})

		It("skips devices without an address", func() {
			Expect(r.LoadBonded([]device.RawDevice{{Name: "ghost"}})).To(BeEmpty())
		})
	})

	Describe("scan state", func() {
		It("rejects a second BeginScan", func() {
			Expect(r.BeginScan()).To(Succeed())
			err := r.BeginScan()
			Expect(errors.Is(err, registry.ErrInvalidState)).To(BeTrue())
			var stateErr *registry.StateError
			Expect(errors.As(err, &stateErr)).To(BeTrue())
			Expect(stateErr.State).To(Equal(registry.StateScanning))
		})

		It("allows a new scan after EndScan", func() {
			Expect(r.BeginScan()).To(Succeed())
			r.EndScan()
			Expect(r.Scanning()).To(BeFalse())
			Expect(r.BeginScan()).To(Succeed())
			Expect(r.State()).To(Equal(registry.StateScanning))
		})

		It("treats EndScan without BeginScan as a no-op", func() {
			r.LoadBonded([]device.RawDevice{{Address: "AA:BB"}})
			r.EndScan()
			r.EndScan()
			Expect(r.State()).To(Equal(registry.StateIdle))
			Expect(r.Len()).To(Equal(1))
		})

		It("keeps known entries but clears stale signal strength when a scan begins", func() {
			Expect(r.BeginScan()).To(Succeed())
			r.OnDeviceFound(device.RawDevice{Address: "CC:DD", Name: "Speaker"}, -60)
			r.EndScan()

			Expect(r.BeginScan()).To(Succeed())
			record, ok := r.Lookup("CC:DD")
			Expect(ok).To(BeTrue())
			Expect(record.Name).To(Equal("Speaker"))
			Expect(record.SignalStrength).To(BeNil())
		})
	})

	Describe("OnDeviceFound", func() {
		BeforeEach(func() {
			Expect(r.BeginScan()).To(Succeed())
		})

		It("creates and then updates a single record", func() {
			r.OnDeviceFound(device.RawDevice{Address: "CC:DD", Name: ""}, -60)
			snapshot := r.Snapshot()
			Expect(snapshot).To(HaveLen(1))
			Expect(snapshot[0].Address).To(Equal("CC:DD"))
			Expect(snapshot[0].Name).To(BeEmpty())
			Expect(*snapshot[0].SignalStrength).To(BeEquivalentTo(-60))

			updated := r.OnDeviceFound(device.RawDevice{Address: "CC:DD", Name: "Speaker"}, -55)
			Expect(updated.Name).To(Equal("Speaker"))
			snapshot = r.Snapshot()
			Expect(snapshot).To(HaveLen(1))
			Expect(snapshot[0].Name).To(Equal("Speaker"))
			Expect(*snapshot[0].SignalStrength).To(BeEquivalentTo(-55))
		})

		It("never overwrites a known name with an empty one", func() {
			r.OnDeviceFound(device.RawDevice{Address: "CC:DD", Name: "Speaker", ServiceIDs: []string{"110b"}}, -60)
			r.OnDeviceFound(device.RawDevice{Address: "CC:DD"}, -80)
			record, ok := r.Lookup("cc:dd")
			Expect(ok).To(BeTrue())
			Expect(record.Name).To(Equal("Speaker"))
			Expect(record.ServiceIDs).To(ConsistOf("0000110b-0000-1000-8000-00805f9b34fb"))
			Expect(*record.SignalStrength).To(BeEquivalentTo(-80))
		})

		It("takes the bond state from the latest event", func() {
			r.LoadBonded([]device.RawDevice{{Address: "AA:BB"}})
			r.OnDeviceFound(device.RawDevice{Address: "AA:BB", BondState: device.BondBonding}, -50)
			record, _ := r.Lookup("AA:BB")
			Expect(record.BondState).To(Equal(device.BondBonding))
			Expect(record.LastSeen.IsZero()).To(BeFalse())
		})

		It("preserves first-seen order", func() {
			r.OnDeviceFound(device.RawDevice{Address: "03"}, -1)
			r.OnDeviceFound(device.RawDevice{Address: "01"}, -1)
			r.OnDeviceFound(device.RawDevice{Address: "02"}, -1)
			r.OnDeviceFound(device.RawDevice{Address: "01"}, -2)
			Expect(addresses(r.Snapshot())).To(Equal([]string{"03", "01", "02"}))
		})

		It("merges events that arrive after EndScan", func() {
			r.EndScan()
			r.OnDeviceFound(device.RawDevice{Address: "EE:FF", Name: "Late"}, -90)
			Expect(r.Len()).To(Equal(1))
			Expect(r.Scanning()).To(BeFalse())
		})

		It("ignores events without an address", func() {
			Expect(r.OnDeviceFound(device.RawDevice{Name: "nameless"}, -40)).To(Equal(device.Record{}))
			Expect(r.Len()).To(BeZero())
		})

		It("holds at most one record per address", func() {
			for i := 0; i < 50; i++ {
				address := fmt.Sprintf("00:%02X", i%7)
				if i%2 == 0 {
					address = device.CanonicalAddress(address)
				}
				r.OnDeviceFound(device.RawDevice{Address: address, Name: fmt.Sprint(i)}, int16(-i))
				r.LoadBonded([]device.RawDevice{{Address: fmt.Sprintf("00:%02x", i%5)}})
			}
			seen := map[string]bool{}
			for _, record := range r.Snapshot() {
				Expect(seen).NotTo(HaveKey(record.Address))
				seen[record.Address] = true
			}
			Expect(seen).To(HaveLen(7))
		})
	})

	Describe("Enrich", func() {
		It("adds resolved services to a known device", func() {
			r.LoadBonded([]device.RawDevice{{Address: "AA:BB", Name: "Headset", ServiceIDs: []string{"110b"}}})
			record, ok := r.Enrich(device.RawDevice{Address: "aa:bb", ServiceIDs: []string{"110e", "111e"}})
			Expect(ok).To(BeTrue())
			Expect(record.Name).To(Equal("Headset"))
			Expect(record.BondState).To(Equal(device.BondBonded))
			Expect(record.SignalStrength).To(BeNil())
			Expect(record.ServiceIDs).To(HaveLen(3))
			Expect(record.HasService("111e")).To(BeTrue())
		})

		It("does not add unknown devices", func() {
			_, ok := r.Enrich(device.RawDevice{Address: "AA:BB", ServiceIDs: []string{"110e"}})
			Expect(ok).To(BeFalse())
			Expect(r.Len()).To(BeZero())
		})
	})

	Describe("Reset", func() {
		It("fails while scanning", func() {
			r.LoadBonded([]device.RawDevice{{Address: "AA:BB"}})
			Expect(r.BeginScan()).To(Succeed())
			Expect(r.Reset()).To(MatchError(registry.ErrInvalidState))
			Expect(r.Len()).To(Equal(1))
		})

		It("clears the snapshot while idle", func() {
			r.LoadBonded([]device.RawDevice{{Address: "AA:BB"}})
			Expect(r.Reset()).To(Succeed())
			Expect(r.Snapshot()).To(BeEmpty())
			_, ok := r.Lookup("AA:BB")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Snapshot", func() {
		It("returns copies that do not alias registry state", func() {
			Expect(r.BeginScan()).To(Succeed())
			r.OnDeviceFound(device.RawDevice{Address: "AA:BB", ServiceIDs: []string{"180d"}}, -30)
			snapshot := r.Snapshot()
			*snapshot[0].SignalStrength = 0
			snapshot[0].ServiceIDs[0] = "mutated"
			record, _ := r.Lookup("AA:BB")
			Expect(*record.SignalStrength).To(BeEquivalentTo(-30))
			Expect(record.ServiceIDs[0]).NotTo(Equal("mutated"))
		})
	})
})
