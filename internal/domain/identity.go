package domain

import "strings"

// Unidentified is the identity label used when no query answered
const Unidentified = "unidentified"

// Category is the functional class of an instrument
type Category string

const (
	CategoryDAQ             Category = "daq"
	CategoryDCSource        Category = "dc_source"
	CategoryELoad           Category = "eload"
	CategoryOscilloscope    Category = "oscilloscope"
	CategorySignalGenerator Category = "signal_generator"
)

// Categories lists every category in classification order
var Categories = []Category{
	CategoryDCSource,
	CategoryELoad,
	CategoryDAQ,
	CategoryOscilloscope,
	CategorySignalGenerator,
}

var categoryAliases = map[string]Category{
	"daq":              CategoryDAQ,
	"dc_source":        CategoryDCSource,
	"power_supply":     CategoryDCSource,
	"eload":            CategoryELoad,
	"electronic_load":  CategoryELoad,
	"oscilloscope":     CategoryOscilloscope,
	"scope":            CategoryOscilloscope,
	"signal_generator": CategorySignalGenerator,
	"afg":              CategorySignalGenerator,
}

// ParseCategory accepts canonical names and the legacy aliases used by older clients
func ParseCategory(s string) (Category, bool) {
	c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(s))]
	return c, ok
}

// DeviceIdentity is the parsed answer to an identity query
type DeviceIdentity struct {
	Raw          string   `json:"raw"`
	Category     Category `json:"category,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Serial       string   `json:"serial,omitempty"`
	Firmware     string   `json:"firmware,omitempty"`
	Identified   bool     `json:"identified"`
}

// ParseIdentity splits a "manufacturer,model,serial,firmware" string.
// Missing trailing fields are left empty.
func ParseIdentity(raw string) DeviceIdentity {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DeviceIdentity{Raw: Unidentified}
	}

	id := DeviceIdentity{Raw: raw, Identified: true}
	parts := strings.SplitN(raw, ",", 4)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	id.Manufacturer = parts[0]
	if len(parts) > 1 {
		id.Model = parts[1]
	}
	if len(parts) > 2 {
		id.Serial = parts[2]
	}
	if len(parts) > 3 {
		id.Firmware = parts[3]
	}
	return id
}

// DisplayName is the operator-facing label for the identity
func (d DeviceIdentity) DisplayName() string {
	if !d.Identified {
		return Unidentified
	}
	if d.Manufacturer != "" && d.Model != "" {
		return d.Manufacturer + " " + d.Model
	}
	return d.Raw
}

// DeviceEntry is one row of a discover result
type DeviceEntry struct {
	DisplayName  string   `json:"name"`
	Address      string   `json:"address"`
	Bus          BusKind  `json:"bus"`
	Category     Category `json:"category,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Identity     string   `json:"identity,omitempty"`
	Identified   bool     `json:"identified"`
}

// NewDeviceEntry builds a discover row, falling back to a bus heuristic label
func NewDeviceEntry(res TransportResource, id DeviceIdentity) DeviceEntry {
	entry := DeviceEntry{
		Address:      res.Address,
		Bus:          res.Bus,
		Category:     id.Category,
		Manufacturer: id.Manufacturer,
		Model:        id.Model,
		Identified:   id.Identified,
	}
	if id.Identified {
		entry.DisplayName = id.DisplayName()
		entry.Identity = id.Raw
	} else {
		entry.DisplayName = res.Bus.HeuristicLabel(res.Address)
	}
	return entry
}
