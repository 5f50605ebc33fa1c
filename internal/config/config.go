package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. The file doubles as the device's secrets store, which is why
// it is never written with broader permissions.

// Calendar source kinds.
const (
	SourceGoogle = "google"
	SourceICS    = "ics"
)

// State store drivers.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Secrets holds credentials loaded once at boot. They are owned by the
// auth/weather collaborators and never written back by the device.
type Secrets struct {
	GoogleClientID     string `yaml:"google_client_id" json:"-"`
	GoogleClientSecret string `yaml:"google_client_secret" json:"-"`
	GoogleAccessToken  string `yaml:"google_access_token" json:"-"`
	GoogleRefreshToken string `yaml:"google_refresh_token" json:"-"`

	// CalendarID can sometimes be your email address.
	CalendarID string `yaml:"calendar_id" json:"calendar_id"`

	AIOUsername string `yaml:"aio_username" json:"aio_username"`
	AIOKey      string `yaml:"aio_key" json:"-"`

	// WeatherLocationID is the Adafruit IO weather integration record id.
	WeatherLocationID int `yaml:"weather_location_id" json:"weather_location_id"`
}

// ICSConfig describes a single ICS subscription source, used when
// CalendarSource is "ics".
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
}

// StateConfig selects where the backoff slots survive between wakes.
type StateConfig struct {
	// Driver is one of "file", "sqlite" or "memory".
	Driver string `yaml:"driver" json:"driver"`
	// Path is the state file or SQLite database path.
	Path string `yaml:"path" json:"path"`
}

// BackoffConfig mirrors backoff.Policy in seconds.
type BackoffConfig struct {
	MinSeconds int `yaml:"min_seconds" json:"min_seconds"`
	MaxSeconds int `yaml:"max_seconds" json:"max_seconds"`
	MaxCount   int `yaml:"max_count" json:"max_count"`
}

// HardwareConfig names the buses and pins of the peripherals. Empty bus
// names mean "first available" in periph's registries.
type HardwareConfig struct {
	// Enabled switches from mock peripherals to periph.io-backed ones.
	Enabled bool `yaml:"enabled" json:"enabled"`

	ButtonPin string `yaml:"button_pin" json:"button_pin"`
	BuzzerPin string `yaml:"buzzer_pin" json:"buzzer_pin"`

	I2CBus       string `yaml:"i2c_bus" json:"i2c_bus"`
	LightAddr    uint16 `yaml:"light_addr" json:"light_addr"`
	BatteryAddr  uint16 `yaml:"battery_addr" json:"battery_addr"`
	PixelSPIPort string `yaml:"pixel_spi_port" json:"pixel_spi_port"`
	PixelCount   int    `yaml:"pixel_count" json:"pixel_count"`

	// LowBatteryVolts triggers the charge-me tone.
	LowBatteryVolts float64 `yaml:"low_battery_volts" json:"low_battery_volts"`
}

// DisplayConfig selects the frame sinks.
type DisplayConfig struct {
	// PreviewPath is where the last frame is written as PNG. Empty disables.
	PreviewPath string `yaml:"preview_path" json:"preview_path"`
	// Panel enables the Waveshare 2.13" V2 HAT on PanelSPIPort.
	Panel        bool   `yaml:"panel" json:"panel"`
	PanelSPIPort string `yaml:"panel_spi_port" json:"panel_spi_port"`
	// WeatherFont is a TTF containing the Weather Icons glyphs.
	WeatherFont string `yaml:"weather_font" json:"weather_font"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status server.
// Password may be a bcrypt hash ("$2a$..."); plain values are compared in
// constant time.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the status server. Empty
	// disables the server.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used for the device-local clock.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule ("*/30 * * * *" or "@every 30m")
	// deciding when the next timer alarm fires after a successful cycle.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// MaxEvents bounds the number of calendar rows per cycle.
	MaxEvents int `yaml:"max_events" json:"max_events"`

	// NormalizeEndOfDay makes the "events today" upper bound roll over
	// month/year ends. Off by default: the bound then increments the
	// day-of-month field as-is.
	NormalizeEndOfDay bool `yaml:"normalize_end_of_day" json:"normalize_end_of_day"`

	// TimeSync selects where the local time comes from: "aio" or "system".
	TimeSync string `yaml:"time_sync" json:"time_sync"`

	// CalendarSource is "google" or "ics".
	CalendarSource string      `yaml:"calendar_source" json:"calendar_source"`
	ICS            []ICSConfig `yaml:"ics" json:"ics"`
	ICSCacheDir    string      `yaml:"ics_cache_dir" json:"ics_cache_dir"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Secrets  Secrets        `yaml:"secrets" json:"secrets"`
	State    StateConfig    `yaml:"state" json:"state"`
	Backoff  BackoffConfig  `yaml:"backoff" json:"backoff"`
	Hardware HardwareConfig `yaml:"hardware" json:"hardware"`
	Display  DisplayConfig  `yaml:"display" json:"display"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// status endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"-"`
}

const (
	defaultTimezone    = "America/New_York"
	defaultRefreshCron = "*/30 * * * *"
	defaultMaxEvents   = 4
	defaultStatePath   = "/var/lib/gcalpaper/sleep-memory.bin"
	defaultICSCacheDir = "/var/lib/gcalpaper/ics-cache"
	defaultPreviewPath = "/var/lib/gcalpaper/preview.png"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         "",
		Timezone:       defaultTimezone,
		RefreshCron:    defaultRefreshCron,
		MaxEvents:      defaultMaxEvents,
		TimeSync:       "aio",
		CalendarSource: SourceGoogle,
		ICS:            []ICSConfig{},
		ICSCacheDir:    defaultICSCacheDir,
		LogLevel:       "info",
		Secrets:        Secrets{CalendarID: "primary"},
		State: StateConfig{
			Driver: StoreFile,
			Path:   defaultStatePath,
		},
		Backoff: BackoffConfig{
			MinSeconds: 15,
			MaxSeconds: 60 * 5,
			MaxCount:   60 / 5,
		},
		Hardware: HardwareConfig{
			ButtonPin:       "GPIO5",
			BuzzerPin:       "GPIO12",
			LightAddr:       0x23,
			BatteryAddr:     0x57,
			PixelSPIPort:    "SPI1.0",
			PixelCount:      4,
			LowBatteryVolts: 3.5,
		},
		Display: DisplayConfig{
			PreviewPath:  defaultPreviewPath,
			PanelSPIPort: "SPI0.0",
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()

	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = d.MaxEvents
	}
	switch c.TimeSync {
	case "aio", "system":
	default:
		c.TimeSync = d.TimeSync
	}
	switch c.CalendarSource {
	case SourceGoogle, SourceICS:
	default:
		// Unknown value; fall back to the Google Calendar API.
		c.CalendarSource = SourceGoogle
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.ICSCacheDir == "" {
		c.ICSCacheDir = d.ICSCacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Secrets.CalendarID == "" {
		c.Secrets.CalendarID = d.Secrets.CalendarID
	}

	switch c.State.Driver {
	case StoreFile, StoreSQLite, StoreMemory:
	default:
		c.State.Driver = d.State.Driver
	}
	if c.State.Path == "" {
		c.State.Path = d.State.Path
	}

	if c.Backoff.MinSeconds <= 0 {
		c.Backoff.MinSeconds = d.Backoff.MinSeconds
	}
	if c.Backoff.MaxSeconds < c.Backoff.MinSeconds {
		c.Backoff.MaxSeconds = d.Backoff.MaxSeconds
	}
	if c.Backoff.MaxCount <= 0 {
		c.Backoff.MaxCount = d.Backoff.MaxCount
	}

	h := &c.Hardware
	if h.ButtonPin == "" {
		h.ButtonPin = d.Hardware.ButtonPin
	}
	if h.BuzzerPin == "" {
		h.BuzzerPin = d.Hardware.BuzzerPin
	}
	if h.LightAddr == 0 {
		h.LightAddr = d.Hardware.LightAddr
	}
	if h.BatteryAddr == 0 {
		h.BatteryAddr = d.Hardware.BatteryAddr
	}
	if h.PixelSPIPort == "" {
		h.PixelSPIPort = d.Hardware.PixelSPIPort
	}
	if h.PixelCount <= 0 {
		h.PixelCount = d.Hardware.PixelCount
	}
	if h.LowBatteryVolts <= 0 {
		h.LowBatteryVolts = d.Hardware.LowBatteryVolts
	}

	if c.Display.PanelSPIPort == "" {
		c.Display.PanelSPIPort = d.Display.PanelSPIPort
	}
}

// Validate checks the fields Normalize cannot default: the refresh
// schedule, the timezone and the secrets required by the chosen sources.
func (c *Config) Validate() error {
	if _, err := c.RefreshSchedule(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
	}
	switch c.CalendarSource {
	case SourceGoogle:
		s := c.Secrets
		if s.GoogleClientID == "" || s.GoogleClientSecret == "" || s.GoogleRefreshToken == "" {
			return errors.New("config: google_client_id, google_client_secret and google_refresh_token are required")
		}
	case SourceICS:
		if len(c.ICS) == 0 {
			return errors.New("config: calendar_source is ics but no ics sources are configured")
		}
	}
	if c.Secrets.AIOUsername == "" || c.Secrets.AIOKey == "" {
		return errors.New("config: aio_username and aio_key are required for weather")
	}
	return nil
}

// RefreshSchedule parses RefreshCron. Standard five-field specs and
// descriptors such as "@every 30m" are accepted.
func (c *Config) RefreshSchedule() (cron.Schedule, error) {
	sched, err := cron.ParseStandard(c.RefreshCron)
	if err != nil {
		return nil, fmt.Errorf("config: invalid refresh schedule %q: %w", c.RefreshCron, err)
	}
	return sched, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0o600)
}

// WriteFileAtomic writes data to a temp file in the target directory, syncs
// it, applies perm and renames it over path. The parent directory is created
// with 0700 if missing.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".gcalpaper-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
