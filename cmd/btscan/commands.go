package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bluetoothscan/btscan/pkg/bondstore"
	"github.com/bluetoothscan/btscan/pkg/cli"
	"github.com/bluetoothscan/btscan/pkg/device"
	"github.com/bluetoothscan/btscan/pkg/session"
)

var (
	ErrCommandLineArgs = errors.New("invalid command line arguments")
	ErrInvalidDuration = errors.New("invalid duration")
	ErrUnknownCommand  = errors.New("unrecognized command")
)

// shell holds everything a command handler may touch.
type shell struct {
	session     *session.Session
	config      *cli.Config
	out         io.Writer
	json        bool
	scanTimeout time.Duration
}

type Argument struct {
	name string
	help string
}

type Handler func(ctx context.Context, sh *shell, args map[string]string) error

type Command struct {
	help     string
	args     []Argument
	optional []Argument
	handler  Handler
}

// ParseScanDuration accepts a Go duration ("30s") or a plain number of seconds ("30"). An empty
// string yields fallback.
func ParseScanDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		seconds, convErr := strconv.Atoi(value)
		if convErr != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidDuration, value)
		}
		d = time.Duration(seconds) * time.Second
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: must be positive", ErrInvalidDuration)
	}
	return d, nil
}

func formatSignal(rssi *int16) string {
	if rssi == nil {
		return "-"
	}
	return fmt.Sprintf("%d dBm", *rssi)
}

func formatName(r device.Record) string {
	if r.Name == "" {
		return "(unknown)"
	}
	return r.Name
}

func printRecords(w io.Writer, records []device.Record, asJSON bool) error {
	if asJSON {
		if records == nil {
			records = []device.Record{}
		}
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(records)
	}
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No devices.")
		return err
	}
	table := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(table, "ADDRESS\tNAME\tBOND\tCLASS\tSIGNAL\tSERVICES")
	for _, r := range records {
		class := r.MajorClass()
		if class == "" {
			class = "-"
		}
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\t%d\n", r.Address, formatName(r), r.BondState, class, formatSignal(r.SignalStrength), len(r.ServiceIDs))
	}
	return table.Flush()
}

func printRecord(w io.Writer, r device.Record, asJSON bool) error {
	if asJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(r)
	}
	fmt.Fprintf(w, "Address:  %s\n", r.Address)
	fmt.Fprintf(w, "Name:     %s\n", formatName(r))
	fmt.Fprintf(w, "Bond:     %s\n", r.BondState)
	if r.DeviceClass != nil {
		fmt.Fprintf(w, "Class:    0x%06x %s\n", *r.DeviceClass, r.MajorClass())
	}
	fmt.Fprintf(w, "Signal:   %s\n", formatSignal(r.SignalStrength))
	if !r.LastSeen.IsZero() {
		fmt.Fprintf(w, "Seen:     %s\n", r.LastSeen.Format(time.RFC3339))
	}
	for _, id := range r.ServiceIDs {
		fmt.Fprintf(w, "Service:  %s\n", id)
	}
	return nil
}

// watchScan prints each device the first time it appears in a snapshot and returns a function
// that stops watching.
func watchScan(sh *shell) func() {
	seen := make(map[string]bool)
	for _, r := range sh.session.Snapshot() {
		seen[r.Address] = true
	}
	updates, release := sh.session.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for snapshot := range updates {
			for _, r := range snapshot {
				if !seen[r.Address] && !sh.json {
					fmt.Fprintf(sh.out, "Found %s %s (%s)\n", r.Address, formatName(r), formatSignal(r.SignalStrength))
				}
				seen[r.Address] = true
			}
		}
	}()
	return func() {
		release()
		<-done
	}
}

// scanErr treats an interrupted scan as a normal stop; the devices found so far are still
// reported.
func scanErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func execute(ctx context.Context, sh *shell, args []string) error {
	if len(args) == 0 {
		return errors.New("missing COMMAND")
	}
	if args[0] == "help" {
		if len(args) == 1 {
			Usage()
			return nil
		}
		info, ok := commands[args[1]]
		if !ok {
			return ErrUnknownCommand
		}
		info.Usage(args[1])
		return nil
	}

	info, ok := commands[args[0]]
	if !ok {
		return ErrUnknownCommand
	}

	var err error
	if len(args)-1 < len(info.args) || len(args)-1 > len(info.args)+len(info.optional) {
		writeErr("Invalid number of command line arguments: %d (%d required, %d optional).", len(args)-1, len(info.args), len(info.optional))
		err = ErrCommandLineArgs
	} else {
		keywords := make(map[string]string)
		for i, argInfo := range info.args {
			keywords[argInfo.name] = args[i+1]
		}
		index := len(info.args) + 1
		for _, argInfo := range info.optional {
			if index >= len(args) {
				break
			}
			keywords[argInfo.name] = args[index]
			index++
		}
		err = info.handler(ctx, sh, keywords)
	}

	// Print command-specific help
	if errors.Is(err, ErrCommandLineArgs) {
		info.Usage(args[0])
	}
	return err
}

func (c *Command) Usage(name string) {
	fmt.Printf("Usage: %s", name)
	maxLength := 0
	for _, arg := range c.args {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" [")
	}
	for _, arg := range c.optional {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" ]")
	}
	fmt.Printf("\n%s\n", c.help)
	maxLength++
	for _, arg := range c.args {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
	for _, arg := range c.optional {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
}

var commands = map[string]*Command{
	"list": &Command{
		help: "List every known device, bonded or discovered, in the order first seen",
		handler: func(ctx context.Context, sh *shell, args map[string]string) error {
			return printRecords(sh.out, sh.session.Snapshot(), sh.json)
		},
	},
	"bonded": &Command{
		help: "Reload bonded devices and list them",
		handler: func(ctx context.Context, sh *shell, args map[string]string) error {
			snapshot, err := sh.session.LoadBonded(ctx)
			if err != nil {
				return err
			}
			var bonded []device.Record
			for _, r := range snapshot {
				if r.BondState == device.BondBonded {
					bonded = append(bonded, r)
				}
			}
			return printRecords(sh.out, bonded, sh.json)
		},
	},
	"scan": &Command{
		help: "Discover nearby devices, then list every known device",
		optional: []Argument{
			Argument{name: "DURATION", help: "How long to scan, e.g. 30s. Defaults to -scan-timeout."},
		},
		handler: func(ctx context.Context, sh *shell, args map[string]string) error {
			duration, err := ParseScanDuration(args["DURATION"], sh.scanTimeout)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrCommandLineArgs, err)
			}
			stop := watchScan(sh)
			err = scanErr(sh.session.Scan(ctx, duration))
			stop()
			if err != nil {
				return err
			}
			return printRecords(sh.out, sh.session.Snapshot(), sh.json)
		},
	},
	"find": &Command{
		help: "Scan until a specific device is seen",
		args: []Argument{
			Argument{name: "ADDRESS", help: "Device address, e.g. AA:BB:CC:DD:EE:FF"},
		},
		optional: []Argument{
			Argument{name: "DURATION", help: "Give up after this long. Defaults to -scan-timeout."},
		},
		handler: func(ctx context.Context, sh *shell, args map[string]string) error {
			duration, err := ParseScanDuration(args["DURATION"], sh.scanTimeout)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrCommandLineArgs, err)
			}
			record, ok, err := sh.session.Find(ctx, args["ADDRESS"], duration)
			if err = scanErr(err); err != nil {
				return err
			}
			if !ok {
				return &session.UnknownDeviceError{Address: device.CanonicalAddress(args["ADDRESS"])}
			}
			return printRecord(sh.out, record, sh.json)
		},
	},
	"reset": &Command{
		help: "Forget every device seen so far (bonded devices reappear after the next bonded or scan)",
		handler: func(ctx context.Context, sh *shell, args map[string]string) error {
			return sh.session.Reset()
		},
	},
	"show": &Command{
		help: "Show details of one device",
		args: []Argument{
			Argument{name: "ADDRESS", help: "Device address"},
		},
		handler: func(ctx context.Context, sh *shell, args map[string]string) error {
			record, ok := sh.session.Lookup(args["ADDRESS"])
			if !ok {
				return &session.UnknownDeviceError{Address: device.CanonicalAddress(args["ADDRESS"])}
			}
			return printRecord(sh.out, record, sh.json)
		},
	},
	"services": &Command{
		help: "Connect to a device and list all the services it exposes",
		args: []Argument{
			Argument{name: "ADDRESS", help: "Device address"},
		},
		handler: func(ctx context.Context, sh *shell, args map[string]string) error {
			record, err := sh.session.ResolveServices(ctx, args["ADDRESS"])
			if err != nil {
				return err
			}
			return printRecord(sh.out, record, sh.json)
		},
	},
	"bond": &Command{
		help: "Remember a device as bonded",
		args: []Argument{
			Argument{name: "ADDRESS", help: "Device address"},
		},
		optional: []Argument{
			Argument{name: "NAME", help: "Name to remember for the device"},
		},
		handler: func(ctx context.Context, sh *shell, args map[string]string) error {
			bonds, err := sh.config.Bonds()
			if err != nil {
				return err
			}
			entry := bondstore.Entry{Name: args["NAME"]}
			if record, ok := sh.session.Lookup(args["ADDRESS"]); ok {
				if entry.Name == "" {
					entry.Name = record.Name
				}
				entry.DeviceClass = record.DeviceClass
				entry.ServiceIDs = record.ServiceIDs
			}
			if err := bonds.Update(args["ADDRESS"], entry); err != nil {
				return fmt.Errorf("%w: %s", ErrCommandLineArgs, err)
			}
			if err := sh.config.WriteBonds(); err != nil {
				return err
			}
			_, err = sh.session.LoadBonded(ctx)
			return err
		},
	},
	"forget": &Command{
		help: "Stop remembering a bonded device (takes effect in the device list after reset)",
		args: []Argument{
			Argument{name: "ADDRESS", help: "Device address"},
		},
		handler: func(ctx context.Context, sh *shell, args map[string]string) error {
			bonds, err := sh.config.Bonds()
			if err != nil {
				return err
			}
			if !bonds.Remove(args["ADDRESS"]) {
				return &session.UnknownDeviceError{Address: device.CanonicalAddress(args["ADDRESS"])}
			}
			return sh.config.WriteBonds()
		},
	},
}
