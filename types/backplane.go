package types

// ---- Backplane state (retained) ----

type BackplaneState struct {
	Level  string `json:"level"` // "initialising", "running", "stopped"
	Status string `json:"status,omitempty"`
	Ticks  uint64 `json:"ticks"`
	TS     int64  `json:"ts_ms"`
}

// ModuleStatus is published retained per slot whenever it changes.
type ModuleStatus struct {
	Slot       int      `json:"slot"`
	Kind       string   `json:"kind"`
	Name       string   `json:"name"`
	HWType     uint8    `json:"hw_type"`
	HWVersion  string   `json:"hw_version"`
	FWVersion  string   `json:"fw_version"`
	Stage      string   `json:"stage"`
	Degraded   bool     `json:"degraded"`
	Failed     []string `json:"failed,omitempty"`
	GPIOStart  int      `json:"gpio_start"`
	Interfaces int      `json:"interfaces"`
	TS         int64    `json:"ts_ms"`
}

// InterfaceValue is published when an interface's value or validity changes.
type InterfaceValue struct {
	Module string `json:"module"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Value  uint32 `json:"value"`
	Valid  bool   `json:"valid"`
	TS     int64  `json:"ts_ms"`
}
