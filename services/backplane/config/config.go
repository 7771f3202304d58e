// Package config loads the backplane setup document and publishes it on the
// bus for services that follow it.
package config

import (
	"bytes"
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"backplane-go/bus"
	"backplane-go/errcode"
	"backplane-go/types"
	"backplane-go/x/timex"
)

const (
	DefaultPlatform     = "sim"
	DefaultScanPeriod   = 10 * time.Millisecond
	DefaultMaxModules   = 20
	DefaultMaxGPIO      = 100
	DefaultMaxResources = 30
	DefaultSPIHz        = 1_000_000

	configPrefix = "config"
	serviceName  = "backplane"
)

// Platforms lists the accepted platform names.
var Platforms = []string{"sim", "periph", "rp2040"}

// Topic is where Publish retains the setup.
var Topic = bus.T(configPrefix, serviceName)

// Load reads, defaults and validates the document at path.
func Load(path string) (*types.Setup, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "config load", Msg: path, Err: err}
	}
	return Parse(raw)
}

// Parse decodes a document. Unknown fields are rejected.
func Parse(raw []byte) (*types.Setup, error) {
	var s types.Setup
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "config parse", Err: err}
	}
	ApplyDefaults(&s)
	if err := Validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ApplyDefaults fills every zero field that has a default.
func ApplyDefaults(s *types.Setup) {
	if s.Platform == "" {
		s.Platform = DefaultPlatform
	}
	switch {
	case s.ScanPeriod == 0 && s.ScanHz > 0:
		s.ScanPeriod = timex.PeriodFromHz(s.ScanHz)
	case s.ScanPeriod == 0:
		s.ScanPeriod = DefaultScanPeriod
	}
	if s.Limits.MaxModules == 0 {
		s.Limits.MaxModules = DefaultMaxModules
	}
	if s.Limits.MaxGPIO == 0 {
		s.Limits.MaxGPIO = DefaultMaxGPIO
	}
	if s.Limits.MaxResources == 0 {
		s.Limits.MaxResources = DefaultMaxResources
	}
	if s.Periph.SPIHz == 0 {
		s.Periph.SPIHz = DefaultSPIHz
	}
}

// Validate reports every problem in s at once.
func Validate(s *types.Setup) error {
	var errs []error
	bad := func(msg string) {
		errs = append(errs, &errcode.E{C: errcode.InvalidParams, Op: "config validate", Msg: msg})
	}
	known := false
	for _, p := range Platforms {
		if s.Platform == p {
			known = true
		}
	}
	if !known {
		bad("unknown platform " + strconv.Quote(s.Platform))
	}
	if s.ScanPeriod <= 0 {
		bad("scan_period must be positive")
	}
	if s.ScanHz > 0 && s.ScanPeriod != timex.PeriodFromHz(s.ScanHz) {
		bad("scan_period and scan_hz disagree")
	}
	if s.Limits.MaxModules < 0 || s.Limits.MaxGPIO < 0 || s.Limits.MaxResources < 0 {
		bad("limits must not be negative")
	}
	if len(s.Modules) == 0 {
		bad("no modules")
	}
	if len(s.Modules) > s.Limits.MaxModules && s.Limits.MaxModules > 0 {
		bad("more modules than max_modules")
	}
	names := map[string]int{}
	for i, m := range s.Modules {
		if m.Kind == "" {
			bad("module " + strconv.Itoa(i) + " has no kind")
		}
		if m.Name == "" {
			continue
		}
		if j, dup := names[m.Name]; dup {
			bad("module name " + strconv.Quote(m.Name) + " used by modules " + strconv.Itoa(j) + " and " + strconv.Itoa(i))
		}
		names[m.Name] = i
	}
	return errors.Join(errs...)
}

// Publish retains s on Topic.
func Publish(conn *bus.Connection, s *types.Setup) {
	conn.Publish(conn.NewMessage(Topic, s, true))
}
