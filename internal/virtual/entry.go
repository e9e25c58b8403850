package virtual

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/bus"
)

// LocalIDPrefix starts every local id owned by this runtime.
const LocalIDPrefix = "virtual_"

var (
	localIDPattern    = regexp.MustCompile(`^virtual_[A-Za-z0-9_-]+$`)
	deviceTypePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
)

// namespaceExceptions lists device types whose bus service category is
// not the type tag itself.
var namespaceExceptions = map[string]string{
	"generator":   "genset",
	"acgenerator": "genset",
	"dcgenerator": "dcgenset",
	"drive":       "motordrive",
}

// Entry is one persisted device identity setting.
type Entry struct {
	LocalID string `json:"local_id"`

	// ClassAndVrmInstance is the raw "<type>:<instance>" value. It may be
	// empty or malformed when written by other tooling.
	ClassAndVrmInstance string `json:"class_and_vrm_instance"`
}

// LocalID derives the local id for a node. Characters outside
// [A-Za-z0-9_-] are replaced with '_'.
func LocalID(nodeID string) string {
	var b strings.Builder
	b.Grow(len(LocalIDPrefix) + len(nodeID))
	b.WriteString(LocalIDPrefix)
	for _, r := range nodeID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// IsLocalID reports whether id follows the virtual_<id> convention.
func IsLocalID(id string) bool {
	return localIDPattern.MatchString(id)
}

// SettingsPath returns the settings path holding the identity of localID.
func SettingsPath(localID string) string {
	return "/Settings/Devices/" + localID + "/ClassAndVrmInstance"
}

// FormatClassAndInstance renders "<type>:<instance>".
func FormatClassAndInstance(deviceType string, instance int) string {
	return deviceType + ":" + strconv.Itoa(instance)
}

// ParseClassAndInstance splits "<type>:<instance>". The type must be a
// lower-case tag and the instance a non-negative integer.
func ParseClassAndInstance(v string) (deviceType string, instance int, err error) {
	t, n, ok := strings.Cut(strings.TrimSpace(v), ":")
	if !ok {
		return "", 0, fmt.Errorf("%w: %q has no separator", ErrMalformedSettings, v)
	}
	if !deviceTypePattern.MatchString(t) {
		return "", 0, fmt.Errorf("%w: type %q", ErrMalformedSettings, t)
	}
	instance, err = strconv.Atoi(n)
	if err != nil || instance < 0 {
		return "", 0, fmt.Errorf("%w: instance %q", ErrMalformedSettings, n)
	}
	return t, instance, nil
}

// ValidDeviceType reports whether t can be used as a device type tag.
func ValidDeviceType(t string) bool {
	return deviceTypePattern.MatchString(t)
}

// ServiceCategory maps a device type to its bus service category.
func ServiceCategory(deviceType string) string {
	if c, ok := namespaceExceptions[deviceType]; ok {
		return c
	}
	return deviceType
}

// ServiceName derives the bus service name of a virtual device.
func ServiceName(deviceType, localID string) string {
	return bus.Namespace + "." + ServiceCategory(deviceType) + "." + localID
}

// ExpectedService returns the bus service name this entry should have.
// It fails if the local id or the settings value does not follow the
// convention.
func (e Entry) ExpectedService() (string, error) {
	if !IsLocalID(e.LocalID) {
		return "", fmt.Errorf("local id %q does not match %s<id>", e.LocalID, LocalIDPrefix)
	}
	t, _, err := ParseClassAndInstance(e.ClassAndVrmInstance)
	if err != nil {
		return "", err
	}
	return ServiceName(t, e.LocalID), nil
}
