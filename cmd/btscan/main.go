package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"
	"golang.org/x/term"

	"github.com/bluetoothscan/btscan/internal/log"
	"github.com/bluetoothscan/btscan/pkg/cli"
	"github.com/bluetoothscan/btscan/pkg/connector/ble/goble"
	"github.com/bluetoothscan/btscan/pkg/registry"
	"github.com/bluetoothscan/btscan/pkg/session"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

const usage = `
 * Bonded devices are remembered in the file given by -bond-file.
 * Without a COMMAND, commands are read from standard input until "exit".
 * Press Ctrl-C to stop a scan early.`

func Usage() {
	fmt.Printf("Usage: %s [OPTION...] COMMAND [ARG...]\n", os.Args[0])
	fmt.Printf("\nRun %s help COMMAND for more information. Valid COMMANDs are listed below.", os.Args[0])
	fmt.Println("")
	fmt.Println(usage)
	fmt.Println("")

	fmt.Printf("Available OPTIONs:\n")
	flag.PrintDefaults()
	fmt.Println("")
	fmt.Printf("Available COMMANDs:\n")
	maxLength := 0
	var labels []string
	for command := range commands {
		labels = append(labels, command)
		if len(command) > maxLength {
			maxLength = len(command)
		}
	}
	sort.Strings(labels)
	for _, command := range labels {
		info := commands[command]
		fmt.Printf("  %s%s %s\n", command, strings.Repeat(" ", maxLength-len(command)), info.help)
	}
}

func runCommand(sh *shell, args []string, timeout time.Duration) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	if err := execute(ctx, sh, args); err != nil {
		var unknown *session.UnknownDeviceError
		if errors.Is(err, registry.ErrInvalidState) {
			writeErr("Not now: %s", err)
		} else if errors.As(err, &unknown) {
			writeErr("No such device: %s (run scan first)", unknown.Address)
		} else {
			writeErr("Failed to execute command: %s", err)
		}
		return 1
	}
	return 0
}

func runInteractiveShell(sh *shell, timeout time.Duration) int {
	prompt := ""
	if term.IsTerminal(int(os.Stdin.Fd())) {
		prompt = "> "
	}
	scanner := bufio.NewScanner(os.Stdin)
	for fmt.Print(prompt); scanner.Scan(); fmt.Print(prompt) {
		args, err := shlex.Split(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			return 0
		}
		if err != nil {
			writeErr("Invalid command: %s", err)
			continue
		}
		runCommand(sh, args, timeout)
	}
	if err := scanner.Err(); err != nil {
		writeErr("Error reading command: %s", err)
		return 1
	}
	return 0
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	var (
		jsonOutput     bool
		logLevel       string
		commandTimeout time.Duration
		connTimeout    time.Duration
	)
	config := cli.NewConfig()
	flag.Usage = Usage
	flag.StringVar(&logLevel, "log-level", "", "Log `level` (error, warning, info, debug). -debug implies debug.")
	flag.BoolVar(&jsonOutput, "json", false, "Print devices as JSON instead of a table")
	flag.DurationVar(&commandTimeout, "command-timeout", 5*time.Minute, "Set upper bound on the duration of a single command.")
	flag.DurationVar(&connTimeout, "connect-timeout", 10*time.Second, "Set timeout for loading bonded devices.")
	config.RegisterCommandLineFlags()
	flag.Parse()
	config.ReadFromEnvironment()
	if err := config.LoadFile(config.ConfigFilename); err != nil {
		writeErr("Error loading configuration: %s", err)
		return
	}
	if err := config.Validate(); err != nil {
		writeErr("Invalid configuration: %s", err)
		return
	}
	if config.Debug {
		log.SetLevel(log.LevelDebug)
	} else if logLevel != "" {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			writeErr("Invalid -log-level: %s", err)
			return
		}
		log.SetLevel(level)
	}

	args := flag.Args()
	if len(args) > 0 {
		if args[0] == "help" {
			if len(args) == 1 {
				Usage()
				status = 0
				return
			}
			info, ok := commands[args[1]]
			if !ok {
				writeErr("Unrecognized command: %s", args[1])
				return
			}
			info.Usage(args[1])
			status = 0
			return
		}
		if _, ok := commands[args[0]]; !ok {
			writeErr("Unrecognized command: %s", args[0])
			return
		}
	}

	s, err := config.Connect()
	if err != nil {
		if goble.IsAdapterError(err) {
			writeErr("%s", goble.AdapterErrorHelpMessage(err))
		} else {
			writeErr("Error: %s", err)
		}
		return
	}
	defer s.Close()
	defer config.SaveBonds()

	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()
	if _, err := s.LoadBonded(ctx); err != nil {
		writeErr("Error loading bonded devices: %s", err)
		return
	}

	sh := &shell{
		session:     s,
		config:      config,
		out:         os.Stdout,
		json:        jsonOutput,
		scanTimeout: config.ScanTimeout,
	}
	if len(args) > 0 {
		status = runCommand(sh, args, commandTimeout)
	} else {
		status = runInteractiveShell(sh, commandTimeout)
	}
}
