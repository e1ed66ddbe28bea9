/*
Package cli facilitates building command-line applications that discover Bluetooth devices. It
defines a [Config] type that can be used to register common command-line flags (using the Golang
flag package), environment variable equivalents, and an optional YAML configuration file.

# Examples

	config := NewConfig()
	config.RegisterCommandLineFlags() // Adds command-line flags for the adapter, bond file, etc.
	flag.Parse()
	config.ReadFromEnvironment()      // Fills in missing fields using environment variables
	if err := config.LoadFile(config.ConfigFilename); err != nil { // Fills in whatever is still missing
		panic(err)
	}
	if err := config.Validate(); err != nil { // Applies defaults
		panic(err)
	}

	s, err := config.Connect()
	if err != nil {
		panic(err)
	}
	defer s.Close()
	defer config.SaveBonds()

Explicit command-line flags take precedence over the environment, which takes precedence over the
configuration file.
*/
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bluetoothscan/btscan/internal/log"
	"github.com/bluetoothscan/btscan/pkg/bondstore"
	"github.com/bluetoothscan/btscan/pkg/connector/ble/goble"
	"github.com/bluetoothscan/btscan/pkg/session"
)

// Environment variable names used are used by [Config.ReadFromEnvironment] to set common parameters.
const (
	EnvAdapter     = "BTSCAN_ADAPTER"
	EnvBondFile    = "BTSCAN_BOND_FILE"
	EnvMaxBonds    = "BTSCAN_MAX_BONDS"
	EnvScanTimeout = "BTSCAN_SCAN_TIMEOUT"
	EnvConfigFile  = "BTSCAN_CONFIG"
	EnvVerbose     = "BTSCAN_VERBOSE"
)

// DefaultScanTimeout matches the length of a classic Bluetooth inquiry on most platforms.
const DefaultScanTimeout = 12 * time.Second

var (
	ErrNegativeTimeout  = errors.New("scan timeout must not be negative")
	ErrNegativeMaxBonds = errors.New("maximum number of bonds must not be negative")
)

// Config fields determine which adapter is used and where bonded devices are remembered.
type Config struct {
	AdapterID       string        `yaml:"adapter"`
	BondFilename    string        `yaml:"bond_file"`
	MaxBonds        int           `yaml:"max_bonds"`
	ScanTimeout     time.Duration `yaml:"scan_timeout"`
	AllowDuplicates bool          `yaml:"allow_duplicates"`
	Debug           bool          `yaml:"debug"`
	ConfigFilename  string        `yaml:"-"`

	bonds *bondstore.Store
}

func NewConfig() *Config {
	return &Config{}
}

// RegisterCommandLineFlags adds c's options to the default flag set.
func (c *Config) RegisterCommandLineFlags() {
	c.RegisterFlags(flag.CommandLine)
}

// RegisterFlags adds c's options to fs.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFilename, "config", "", "Load settings from YAML `file`. Defaults to $BTSCAN_CONFIG.")
	fs.StringVar(&c.BondFilename, "bond-file", "", "Remember bonded devices in `file`. Defaults to $BTSCAN_BOND_FILE.")
	fs.IntVar(&c.MaxBonds, "max-bonds", 0, "Remember at most `n` bonded devices (0 for no limit). Defaults to $BTSCAN_MAX_BONDS.")
	fs.DurationVar(&c.ScanTimeout, "scan-timeout", 0, "Default scan `duration`. Defaults to $BTSCAN_SCAN_TIMEOUT, then 12s.")
	fs.BoolVar(&c.AllowDuplicates, "duplicates", false, "Report every advertisement, keeping signal strength current")
	fs.BoolVar(&c.Debug, "debug", false, "Enable verbose debugging messages")
	c.registerFlagsOsSpecific(fs)
}

// ReadFromEnvironment populates c using environment variables. Values that are already populated
// are not overwritten.
//
// Calling ReadFromEnvironment after flag.Parse() (or other initialization method) will prevent the
// environment from overriding explicit command-line parameters.
func (c *Config) ReadFromEnvironment() {
	if c.ConfigFilename == "" {
		c.ConfigFilename = os.Getenv(EnvConfigFile)
	}
	if c.AdapterID == "" {
		c.AdapterID = os.Getenv(EnvAdapter)
		log.Debug("Set adapter to '%s'", c.AdapterID)
	}
	if c.BondFilename == "" {
		c.BondFilename = os.Getenv(EnvBondFile)
		log.Debug("Set bond file to '%s'", c.BondFilename)
	}
	if c.MaxBonds == 0 {
		if value, ok := os.LookupEnv(EnvMaxBonds); ok {
			if n, err := strconv.Atoi(value); err == nil {
				c.MaxBonds = n
			} else {
				log.Warning("Ignoring invalid %s '%s'", EnvMaxBonds, value)
			}
		}
	}
	if c.ScanTimeout == 0 {
		if value, ok := os.LookupEnv(EnvScanTimeout); ok {
			if d, err := time.ParseDuration(value); err == nil {
				c.ScanTimeout = d
			} else {
				log.Warning("Ignoring invalid %s '%s'", EnvScanTimeout, value)
			}
		}
	}
	if !c.Debug {
		if value, ok := os.LookupEnv(EnvVerbose); ok {
			c.Debug = value != "false" && value != "0"
		}
	}
}

// LoadFile fills fields of c that are still unset from the YAML file filename. An empty filename
// is ignored.
func (c *Config) LoadFile(filename string) error {
	if filename == "" {
		return nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}
	log.Debug("Loaded config file %s", filename)

	if c.AdapterID == "" {
		c.AdapterID = file.AdapterID
	}
	if c.BondFilename == "" {
		c.BondFilename = file.BondFilename
	}
	if c.MaxBonds == 0 {
		c.MaxBonds = file.MaxBonds
	}
	if c.ScanTimeout == 0 {
		c.ScanTimeout = file.ScanTimeout
	}
	c.AllowDuplicates = c.AllowDuplicates || file.AllowDuplicates
	c.Debug = c.Debug || file.Debug
	return nil
}

// Validate rejects invalid settings and applies defaults to those that are unset.
func (c *Config) Validate() error {
	if c.ScanTimeout < 0 {
		return ErrNegativeTimeout
	}
	if c.MaxBonds < 0 {
		return ErrNegativeMaxBonds
	}
	if c.ScanTimeout == 0 {
		c.ScanTimeout = DefaultScanTimeout
	}
	return nil
}

// Bonds returns the bond store, loading it from c.BondFilename on first use. If the file does not
// exist yet, an empty store is returned and created on the next call to [Config.SaveBonds].
func (c *Config) Bonds() (*bondstore.Store, error) {
	if c.bonds != nil {
		return c.bonds, nil
	}
	if c.BondFilename == "" {
		c.bonds = bondstore.New(c.MaxBonds)
		return c.bonds, nil
	}

	log.Debug("Loading bonds from %s...", c.BondFilename)
	bonds, err := bondstore.ImportFromFile(c.BondFilename)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load bond file: %w", err)
		}
		bonds = bondstore.New(c.MaxBonds)
	}
	if c.MaxBonds > 0 {
		bonds.MaxEntries = c.MaxBonds
	}
	c.bonds = bonds
	return c.bonds, nil
}

// WriteBonds writes the bond store to c.BondFilename.
//
// If c.BondFilename is not set or the bond store was never loaded, then this method does nothing.
func (c *Config) WriteBonds() error {
	if c.BondFilename == "" || c.bonds == nil {
		return nil
	}
	if err := c.bonds.ExportToFile(c.BondFilename); err != nil {
		return fmt.Errorf("failed to update bond file: %w", err)
	}
	return nil
}

// SaveBonds is like [Config.WriteBonds] but logs failures instead of returning them, for use in
// deferred calls.
func (c *Config) SaveBonds() {
	if err := c.WriteBonds(); err != nil {
		log.Error("Error updating bond file: %s", err)
	}
}

// Connect opens the configured Bluetooth adapter and returns a session that owns it.
func (c *Config) Connect() (*session.Session, error) {
	bonds, err := c.Bonds()
	if err != nil {
		return nil, err
	}
	log.Debug("Opening Bluetooth adapter '%s'...", c.AdapterID)
	adapter, err := goble.NewAdapter(c.AdapterID, bonds, c.AllowDuplicates)
	if err != nil {
		return nil, err
	}
	return session.New(adapter), nil
}
