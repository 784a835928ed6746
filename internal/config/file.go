// Package config handles poundlens configuration from YAML files.
//
// A Config is built once at startup and passed by value to constructors;
// nothing mutates it afterwards.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level poundlens configuration.
type Config struct {
	Marker    MarkerConfig    `yaml:"marker"`
	Naming    NamingConfig    `yaml:"naming"`
	LookupURL string          `yaml:"lookup_url"` // fmt template, %s = escaped name
	Style     string          `yaml:"style"`      // inline style for injected controls
	Timing    TimingConfig    `yaml:"timing"`
	Extract   ExtractConfig   `yaml:"extract"`
	Variants  []VariantConfig `yaml:"variants"`
	Browser   BrowserConfig   `yaml:"browser"`
	Server    ServerConfig    `yaml:"server"`
	Sinks     []SinkConfig    `yaml:"sinks"`
}

// MarkerConfig names the attributes that tag injected elements.
type MarkerConfig struct {
	Class      string `yaml:"class"`
	EntityAttr string `yaml:"entity_attr"`
	RoleAttr   string `yaml:"role_attr"`
}

// NamingConfig holds the element id conventions.
type NamingConfig struct {
	SlotPrefix string `yaml:"slot_prefix"`
	NameSuffix string `yaml:"name_suffix"`
	Separator  string `yaml:"separator"`
}

// TimingConfig controls scheduling of passes.
type TimingConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	Debounce     time.Duration `yaml:"debounce"`
	MaxWait      time.Duration `yaml:"max_wait"`
	Interval     time.Duration `yaml:"interval"`
	ErrorFlash   time.Duration `yaml:"error_flash"`
}

// ExtractConfig tunes the field extractor.
type ExtractConfig struct {
	// LegacyGender reproduces the substring gender check, which reads any
	// text containing "female" as male.
	LegacyGender bool `yaml:"legacy_gender"`
}

// VariantConfig describes one page family and how to annotate it.
type VariantConfig struct {
	Name      string   `yaml:"name"`
	Kind      string   `yaml:"kind"`      // inline | listing | detail
	Paths     []string `yaml:"paths"`     // path.Match globs
	Query     string   `yaml:"query"`     // required query key, optional
	Fields    string   `yaml:"fields"`    // species | stats | detail
	Slots     int      `yaml:"slots"`     // fixed slot count (inline)
	Discover  string   `yaml:"discover"`  // selector group for name elements (inline)
	CellScan  bool     `yaml:"cell_scan"` // enable the table-cell heuristic (inline)
	Blocks    string   `yaml:"blocks"`    // selector for listing entries
	Anchor    string   `yaml:"anchor"`    // selector for the summary control
	Companion string   `yaml:"companion"` // selector for the companion description
	Trophies  string   `yaml:"trophies"`  // selector for trophy elements
}

// BrowserConfig controls the live Chrome host.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Headless         bool          `yaml:"headless"`
	Stealth          bool          `yaml:"stealth"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SinkConfig defines an output backend for pass reports.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook
	URL  string `yaml:"url"`  // for webhook
}

// LoadFile reads a YAML configuration file and fills in defaults.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and fills in defaults.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the built-in configuration for the pound pages.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// Validate checks values that defaults cannot repair.
func (c Config) Validate() error {
	for _, v := range c.Variants {
		switch v.Kind {
		case "inline", "listing", "detail":
		default:
			return fmt.Errorf("config: variant %q: unknown kind %q", v.Name, v.Kind)
		}
		if len(v.Paths) == 0 {
			return fmt.Errorf("config: variant %q: no paths", v.Name)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Marker.Class == "" {
		c.Marker.Class = "poundlens-annotation"
	}
	if c.Marker.EntityAttr == "" {
		c.Marker.EntityAttr = "data-poundlens-entity"
	}
	if c.Marker.RoleAttr == "" {
		c.Marker.RoleAttr = "data-poundlens-role"
	}
	if c.Naming.SlotPrefix == "" {
		c.Naming.SlotPrefix = "pet"
	}
	if c.Naming.NameSuffix == "" {
		c.Naming.NameSuffix = "_name"
	}
	if c.Naming.Separator == "" {
		c.Naming.Separator = "_"
	}
	if c.LookupURL == "" {
		c.LookupURL = "https://www.neopets.com/petlookup.phtml?pet=%s"
	}
	if c.Style == "" {
		c.Style = "color: #5a73ae; margin-left: 5px; font-size: 0.9em; text-decoration: underline; cursor: pointer; font-weight: bold;"
	}
	if c.Timing.InitialDelay <= 0 {
		c.Timing.InitialDelay = 500 * time.Millisecond
	}
	if c.Timing.Debounce <= 0 {
		c.Timing.Debounce = 300 * time.Millisecond
	}
	if c.Timing.MaxWait <= 0 {
		c.Timing.MaxWait = 2 * time.Second
	}
	if c.Timing.Interval <= 0 {
		c.Timing.Interval = 5 * time.Second
	}
	if c.Timing.ErrorFlash <= 0 {
		c.Timing.ErrorFlash = 2 * time.Second
	}
	if len(c.Variants) == 0 {
		c.Variants = DefaultVariants()
	}
	for i := range c.Variants {
		v := &c.Variants[i]
		if v.Kind == "" {
			v.Kind = "inline"
		}
		if v.Kind == "inline" && v.Discover == "" {
			v.Discover = `input[name*="pet_name"], input[name*="petname"], td[id*="pet_name"], span[id*="pet_name"]`
		}
		if v.Anchor == "" {
			v.Anchor = "h1, h2, .contentModuleHeader"
		}
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8765"
	}
}

// DefaultVariants are the page families poundlens activates on when the
// configuration lists none.
func DefaultVariants() []VariantConfig {
	return []VariantConfig{
		{
			Name:     "pound",
			Kind:     "inline",
			Paths:    []string{"/pound/*"},
			Fields:   "species",
			Slots:    3,
			CellScan: true,
		},
		{
			Name:   "quickref",
			Kind:   "inline",
			Paths:  []string{"/quickref.phtml"},
			Fields: "stats",
			Slots:  4,
		},
		{
			Name:   "profile",
			Kind:   "listing",
			Paths:  []string{"/userlookup.phtml"},
			Query:  "user",
			Fields: "species",
			Blocks: ".pet-entry, #userneopets td",
		},
		{
			Name:      "petlookup",
			Kind:      "detail",
			Paths:     []string{"/petlookup.phtml"},
			Query:     "pet",
			Fields:    "detail",
			Companion: ".petpet-description, #petpet_desc",
			Trophies:  ".trophy, img[alt*=Trophy]",
		},
	}
}
