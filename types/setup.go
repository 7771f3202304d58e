package types

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Setup is the backplane setup document.
type Setup struct {
	Platform   string        `yaml:"platform" json:"platform"`
	ScanPeriod time.Duration `yaml:"scan_period" json:"scan_period_ns"`
	// ScanHz is an alternative to ScanPeriod; setting both is an error.
	ScanHz      uint32        `yaml:"scan_hz,omitempty" json:"scan_hz,omitempty"`
	MetricsAddr string        `yaml:"metrics_addr" json:"metrics_addr,omitempty"`
	Limits      Limits        `yaml:"limits" json:"limits"`
	Periph      PeriphSetup   `yaml:"periph" json:"periph"`
	Modules     []ModuleSetup `yaml:"modules" json:"modules"`
}

// Limits sizes the module table, the output table and the resource pool.
type Limits struct {
	MaxModules   int `yaml:"max_modules" json:"max_modules"`
	MaxGPIO      int `yaml:"max_gpio" json:"max_gpio"`
	MaxResources int `yaml:"max_resources" json:"max_resources"`
}

// PeriphSetup names Linux devices for the periph platform.
type PeriphSetup struct {
	I2CBus  string `yaml:"i2c_bus" json:"i2c_bus,omitempty"`
	SPIPort string `yaml:"spi_port" json:"spi_port,omitempty"`
	SPIHz   uint32 `yaml:"spi_hz" json:"spi_hz,omitempty"`
}

// ModuleSetup is one entry of the ordered module list. Params is decoded by
// the builder for Kind.
type ModuleSetup struct {
	Kind   string    `yaml:"kind" json:"kind"`
	Name   string    `yaml:"name,omitempty" json:"name,omitempty"`
	Params yaml.Node `yaml:"params,omitempty" json:"-"`
}
