package bus

import (
	"fmt"
	"strings"
)

// Well-known services.
const (
	// Namespace prefixes every Victron service name.
	Namespace = "com.victronenergy"

	// SettingsService stores persistent settings such as device instances.
	SettingsService = Namespace + ".settings"

	// PlatformService accepts notification injection.
	PlatformService = Namespace + ".platform"
)

// Address identifies one value on the bus. It is comparable and used as a
// map key.
type Address struct {
	Service string `json:"service" yaml:"service"`
	Path    string `json:"path" yaml:"path"`
}

// NewAddress builds an Address, adding a leading slash to path if missing.
func NewAddress(service, path string) Address {
	return Address{Service: service, Path: NormalizePath(path)}
}

// String returns "service/path".
func (a Address) String() string {
	return a.Service + a.Path
}

// Validate reports whether the address can be subscribed to or written.
func (a Address) Validate() error {
	switch {
	case a.Service == "":
		return fmt.Errorf("%w: service is required", ErrInvalidAddress)
	case strings.ContainsAny(a.Service, "/+# "):
		return fmt.Errorf("%w: service %q contains a reserved character", ErrInvalidAddress, a.Service)
	case !strings.HasPrefix(a.Path, "/") || len(a.Path) < 2:
		return fmt.Errorf("%w: path %q must start with / and name a value", ErrInvalidAddress, a.Path)
	case strings.ContainsAny(a.Path, "+#"):
		return fmt.Errorf("%w: path %q contains a wildcard", ErrInvalidAddress, a.Path)
	}
	return nil
}

// NormalizePath ensures p starts with a single slash.
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	return "/" + strings.TrimLeft(p, "/")
}

// ServiceCategory returns the category segment of a service name,
// "battery" for com.victronenergy.battery.ttyUSB0.
func ServiceCategory(service string) string {
	rest, ok := strings.CutPrefix(service, Namespace+".")
	if !ok {
		return ""
	}
	category, _, _ := strings.Cut(rest, ".")
	return category
}
