package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/bluetoothscan/btscan/mocks"
	"github.com/bluetoothscan/btscan/pkg/connector/ble"
	"github.com/bluetoothscan/btscan/pkg/device"
	"github.com/bluetoothscan/btscan/pkg/registry"
	"github.com/bluetoothscan/btscan/pkg/session"
)

func advertisement(address, name string, rssi int16) ble.Advertisement {
	return ble.Advertisement{Device: device.RawDevice{Address: address, Name: name}, RSSI: rssi}
}

// emitThenWait reports advs and then blocks until the scan's context ends, as a platform scan does.
func emitThenWait(advs ...ble.Advertisement) func(context.Context, func(ble.Advertisement)) error {
	return func(ctx context.Context, handler func(ble.Advertisement)) error {
		for _, a := range advs {
			handler(a)
		}
		<-ctx.Done()
		return ctx.Err()
	}
}

var _ = Describe("Session", func() {
	var (
		ctrl    *gomock.Controller
		adapter *mocks.BLEAdapter
		s       *session.Session
	)

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		adapter = mocks.NewBLEAdapter(ctrl)
		s = session.New(adapter)
		DeferCleanup(func() {
			ctrl.Finish()
		})
	})

	Describe("LoadBonded", func() {
		It("merges bonded devices from the adapter", func() {
			adapter.EXPECT().BondedDevices(gomock.Any()).Return([]device.RawDevice{
				{Address: "aa:bb", Name: "Phone", BondState: device.BondBonded},
			}, nil)
			records, err := s.LoadBonded(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].Address).To(Equal("AA:BB"))
			Expect(records[0].SignalStrength).To(BeNil())
			Expect(s.Snapshot()).To(Equal(records))
		})

		It("returns adapter errors without touching the registry", func() {
			adapter.EXPECT().BondedDevices(gomock.Any()).Return(nil, errors.New("adapter unavailable"))
			_, err := s.LoadBonded(context.Background())
			Expect(err).To(MatchError("adapter unavailable"))
			Expect(s.Snapshot()).To(BeEmpty())
		})
	})

	Describe("Scan", func() {
		It("treats the timeout as a normal end of the scan", func() {
			adapter.EXPECT().Scan(gomock.Any(), gomock.Any()).DoAndReturn(emitThenWait(
				advertisement("CC:DD", "", -60),
				advertisement("CC:DD", "Speaker", -55),
				advertisement("EE:FF", "Watch", -70),
			))
			Expect(s.Scan(context.Background(), 20*time.Millisecond)).To(Succeed())
			Expect(s.Scanning()).To(BeFalse())

			snapshot := s.Snapshot()
			Expect(snapshot).To(HaveLen(2))
			Expect(snapshot[0].Name).To(Equal("Speaker"))
			Expect(*snapshot[0].SignalStrength).To(BeEquivalentTo(-55))
		})

		It("returns the parent context's error when canceled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			adapter.EXPECT().Scan(gomock.Any(), gomock.Any()).DoAndReturn(
				func(scanCtx context.Context, handler func(ble.Advertisement)) error {
					handler(advertisement("CC:DD", "Speaker", -55))
					cancel()
					<-scanCtx.Done()
					return scanCtx.Err()
				})
			Expect(s.Scan(ctx, time.Minute)).To(MatchError(context.Canceled))
			Expect(s.Scanning()).To(BeFalse())
			Expect(s.Snapshot()).To(HaveLen(1))
		})

		It("ends the scan when the adapter fails", func() {
			adapter.EXPECT().Scan(gomock.Any(), gomock.Any()).Return(errors.New("hci: command disallowed"))
			Expect(s.Scan(context.Background(), time.Minute)).To(MatchError("hci: command disallowed"))
			Expect(s.Scanning()).To(BeFalse())
			Expect(s.Reset()).To(Succeed())
		})

		It("rejects a concurrent scan and a reset while scanning", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			started := make(chan struct{})
			adapter.EXPECT().Scan(gomock.Any(), gomock.Any()).DoAndReturn(
				func(scanCtx context.Context, _ func(ble.Advertisement)) error {
					close(started)
					<-scanCtx.Done()
					return scanCtx.Err()
				})

			done := make(chan error, 1)
			go func() {
				done <- s.Scan(ctx, 0)
			}()
			Eventually(started).Should(BeClosed())
			Expect(s.Scanning()).To(BeTrue())

			Expect(s.Scan(context.Background(), time.Second)).To(MatchError(registry.ErrInvalidState))
			Expect(s.Reset()).To(MatchError(registry.ErrInvalidState))

			cancel()
			Eventually(done).Should(Receive(MatchError(context.Canceled)))
			Expect(s.Scanning()).To(BeFalse())
		})

		It("serializes advertisements delivered from many goroutines", func() {
			adapter.EXPECT().Scan(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, handler func(ble.Advertisement)) error {
					var wg sync.WaitGroup
					for g := 0; g < 8; g++ {
						wg.Add(1)
						go func(g int) {
							defer wg.Done()
							for i := 0; i < 100; i++ {
								handler(advertisement(fmt.Sprintf("00:%02x", i%10), fmt.Sprint(g), int16(-i)))
							}
						}(g)
					}
					wg.Wait()
					return nil
				})
			Expect(s.Scan(context.Background(), 0)).To(Succeed())
			Expect(s.Snapshot()).To(HaveLen(10))
		})

		It("merges advertisements that arrive after the scan ended", func() {
			var late func(ble.Advertisement)
			adapter.EXPECT().Scan(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, handler func(ble.Advertisement)) error {
					late = handler
					return nil
				})
			Expect(s.Scan(context.Background(), 0)).To(Succeed())
			late(advertisement("EE:FF", "Late", -90))
			record, ok := s.Lookup("ee:ff")
			Expect(ok).To(BeTrue())
			Expect(record.Name).To(Equal("Late"))
			Expect(s.Scanning()).To(BeFalse())
		})
	})

	Describe("Find", func() {
		It("stops scanning once the device is seen", func() {
			adapter.EXPECT().Scan(gomock.Any(), gomock.Any()).DoAndReturn(emitThenWait(
				advertisement("11:22", "Other", -40),
				advertisement("cc:dd", "Speaker", -50),
			))
			record, ok, err := s.Find(context.Background(), "CC:DD", time.Hour)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(record.Name).To(Equal("Speaker"))
			Expect(s.Snapshot()).To(HaveLen(2))
		})

		It("reports a miss when the timeout expires", func() {
			adapter.EXPECT().Scan(gomock.Any(), gomock.Any()).DoAndReturn(emitThenWait(advertisement("11:22", "Other", -40)))
			_, ok, err := s.Find(context.Background(), "CC:DD", 10*time.Millisecond)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("ignores the device when it is only seen after the timeout", func() {
			lateDelivered := make(chan struct{})
			adapter.EXPECT().Scan(gomock.Any(), gomock.Any()).DoAndReturn(
				func(ctx context.Context, handler func(ble.Advertisement)) error {
					go func() {
						defer close(lateDelivered)
						<-ctx.Done()
						for i := 0; i < 20; i++ {
							handler(advertisement("cc:dd", "Speaker", -50))
							time.Sleep(time.Millisecond)
						}
					}()
					<-ctx.Done()
					return ctx.Err()
				})
			record, ok, err := s.Find(context.Background(), "CC:DD", 5*time.Millisecond)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(record.Address).To(BeEmpty())

			Eventually(lateDelivered).Should(BeClosed())
			merged, known := s.Lookup("CC:DD")
			Expect(known).To(BeTrue())
			Expect(merged.Name).To(Equal("Speaker"))
		})
	})

	Describe("ResolveServices", func() {
		It("fails for unknown devices", func() {
			_, err := s.ResolveServices(context.Background(), "AA:BB")
			var unknown *session.UnknownDeviceError
			Expect(errors.As(err, &unknown)).To(BeTrue())
			Expect(unknown.Address).To(Equal("AA:BB"))
		})

		It("merges resolved services into a known device", func() {
			adapter.EXPECT().BondedDevices(gomock.Any()).Return([]device.RawDevice{{Address: "AA:BB", Name: "Headset"}}, nil)
			adapter.EXPECT().ResolveServices(gomock.Any(), "AA:BB").Return([]string{"110B", "110E"}, nil)
			_, err := s.LoadBonded(context.Background())
			Expect(err).NotTo(HaveOccurred())

			record, err := s.ResolveServices(context.Background(), "aa:bb")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Name).To(Equal("Headset"))
			Expect(record.ServiceIDs).To(ConsistOf(
				"0000110b-0000-1000-8000-00805f9b34fb",
				"0000110e-0000-1000-8000-00805f9b34fb",
			))
		})
	})

	Describe("Subscribe", func() {
		It("delivers the current snapshot and every change", func() {
			updates, release := s.Subscribe()
			defer release()
			Eventually(updates).Should(Receive(BeEmpty()))

			adapter.EXPECT().BondedDevices(gomock.Any()).Return([]device.RawDevice{{Address: "AA:BB"}}, nil)
			_, err := s.LoadBonded(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Eventually(updates).Should(Receive(HaveLen(1)))

			Expect(s.Reset()).To(Succeed())
			Eventually(updates).Should(Receive(BeEmpty()))
		})

		It("coalesces snapshots for slow subscribers", func() {
			updates, release := s.Subscribe()
			defer release()
			adapter.EXPECT().Scan(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, handler func(ble.Advertisement)) error {
					for i := 0; i < 5; i++ {
						handler(advertisement(fmt.Sprintf("00:%02X", i), "", -1))
					}
					return nil
				})
			Expect(s.Scan(context.Background(), 0)).To(Succeed())
			Expect(updates).To(Receive(HaveLen(5)))
			Consistently(updates).ShouldNot(Receive())
		})

		It("closes the channel on release, once", func() {
			updates, release := s.Subscribe()
			release()
			release()
			Eventually(updates).Should(BeClosed())
		})

		It("releases subscriptions and the adapter on Close", func() {
			first, releaseFirst := s.Subscribe()
			second, _ := s.Subscribe()
			adapter.EXPECT().Close().Return(nil).Times(1)

			Expect(s.Close()).To(Succeed())
			Expect(s.Close()).To(Succeed())
			Eventually(first).Should(BeClosed())
			Eventually(second).Should(BeClosed())
			releaseFirst()

			late, _ := s.Subscribe()
			Eventually(late).Should(BeClosed())
			Expect(s.Scan(context.Background(), 0)).To(MatchError(session.ErrClosed))
			_, err := s.LoadBonded(context.Background())
			Expect(err).To(MatchError(session.ErrClosed))
		})
	})
})
