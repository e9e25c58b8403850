package node

import (
	"sort"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/bus"
)

// Role selects what a node does.
type Role string

const (
	RoleInput        Role = "input"
	RoleOutput       Role = "output"
	RoleVirtual      Role = "virtual"
	RoleNotification Role = "notification"
)

// Kind describes a registered node type.
type Kind struct {
	Type string `json:"type"`
	Role Role   `json:"role"`

	// ServiceCategory restricts the configured service to one category.
	// Empty accepts any service.
	ServiceCategory string `json:"service_category,omitempty"`

	// DefaultService is used when the config names no service.
	DefaultService string `json:"default_service,omitempty"`

	// DefaultPath is used when the config names no path.
	DefaultPath string `json:"default_path,omitempty"`

	// DeviceType is the virtual device type when the config names none.
	DeviceType string `json:"device_type,omitempty"`
}

func inputKind(category string) Kind {
	return Kind{Type: "victron-input-" + category, Role: RoleInput, ServiceCategory: category}
}

func outputKind(category string) Kind {
	return Kind{Type: "victron-output-" + category, Role: RoleOutput, ServiceCategory: category}
}

var kinds = func() map[string]Kind {
	m := make(map[string]Kind)
	add := func(k Kind) { m[k.Type] = k }

	for _, c := range []string{
		"acload", "alternator", "battery", "charger", "dcdc", "dcgenset", "dcload",
		"dcsource", "digitalinput", "evcharger", "genset", "gps", "gridmeter", "inverter",
		"meteo", "motordrive", "multi", "pulsemeter", "pvinverter", "solarcharger",
		"switch", "tank", "temperature", "vebus",
	} {
		add(inputKind(c))
	}
	add(Kind{Type: "victron-input-system", Role: RoleInput, ServiceCategory: "system", DefaultService: bus.Namespace + ".system"})
	add(Kind{Type: "victron-input-settings", Role: RoleInput, ServiceCategory: "settings", DefaultService: bus.SettingsService})
	add(Kind{Type: "victron-input-custom", Role: RoleInput})

	for _, c := range []string{
		"charger", "evcharger", "inverter", "multi", "pvinverter", "solarcharger", "switch", "vebus",
	} {
		add(outputKind(c))
	}
	add(Kind{
		Type:            "victron-output-relay",
		Role:            RoleOutput,
		ServiceCategory: "system",
		DefaultService:  bus.Namespace + ".system",
		DefaultPath:     "/Relay/0/State",
	})
	add(Kind{Type: "victron-output-ess", Role: RoleOutput, ServiceCategory: "settings", DefaultService: bus.SettingsService})
	add(Kind{Type: "victron-output-settings", Role: RoleOutput, ServiceCategory: "settings", DefaultService: bus.SettingsService})
	add(Kind{Type: "victron-output-custom", Role: RoleOutput})

	add(Kind{Type: "victron-virtual", Role: RoleVirtual})
	add(Kind{Type: "victron-virtual-switch", Role: RoleVirtual, DeviceType: "switch"})

	add(Kind{Type: "victron-notification", Role: RoleNotification})
	return m
}()

// LookupKind returns the Kind registered for a node type name.
func LookupKind(typeName string) (Kind, bool) {
	k, ok := kinds[typeName]
	return k, ok
}

// Kinds returns every registered Kind sorted by type name.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
