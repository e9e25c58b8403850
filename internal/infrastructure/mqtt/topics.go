package mqtt

import "strings"

// DefaultTopicPrefix is the topic root used when none is configured.
const DefaultTopicPrefix = "venus"

// Topic kinds under the prefix.
const (
	kindNotify  = "N"
	kindWrite   = "W"
	kindService = "S"
	kindBridge  = "bridge"
)

// Topics builds the system bus topics under a configurable prefix.
//
// The bus is exposed over MQTT with three topic families:
//
//	<prefix>/N/<service><path>   value notifications, JSON {"value": ...}
//	<prefix>/W/<service><path>   write requests, same payload shape
//	<prefix>/S/<service>         service presence, {"connected": true} or empty
//
// Example:
//
//	topics := mqtt.NewTopics("venus")
//	topics.Notify("com.victronenergy.battery.ttyUSB0", "/Soc")
//	// Returns: "venus/N/com.victronenergy.battery.ttyUSB0/Soc"
type Topics struct {
	prefix string
}

// NewTopics returns a builder rooted at prefix. Leading and trailing slashes
// are stripped; an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// Notify returns the value notification topic for service and path.
//
// Example: venus/N/com.victronenergy.system/Dc/Battery/Soc
func (t Topics) Notify(service, path string) string {
	return t.join(kindNotify, service, path)
}

// Write returns the write request topic for service and path.
//
// Example: venus/W/com.victronenergy.settings/Settings/Devices/virtual_a1/ClassAndVrmInstance
func (t Topics) Write(service, path string) string {
	return t.join(kindWrite, service, path)
}

// Service returns the presence topic for a service.
//
// Example: venus/S/com.victronenergy.switch.virtual_a1
func (t Topics) Service(service string) string {
	return t.Prefix() + "/" + kindService + "/" + service
}

// AllServices returns a pattern matching every presence topic.
//
// Pattern: venus/S/+
func (t Topics) AllServices() string {
	return t.Prefix() + "/" + kindService + "/+"
}

// AllWrites returns a pattern matching every write to one service.
//
// Pattern: venus/W/com.victronenergy.switch.virtual_a1/#
func (t Topics) AllWrites(service string) string {
	return t.Prefix() + "/" + kindWrite + "/" + service + "/#"
}

// BridgeStatus returns the retained online/offline topic for this client.
//
// Example: venus/bridge/victron-bridge/status
func (t Topics) BridgeStatus(clientID string) string {
	return t.Prefix() + "/" + kindBridge + "/" + clientID + "/status"
}

// ServiceFromTopic extracts the service name from a presence topic.
// ok is false if topic is not a presence topic under this prefix.
func (t Topics) ServiceFromTopic(topic string) (service string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix()+"/"+kindService+"/")
	if !found || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

// PathFromWriteTopic extracts the path from a write topic for service.
func (t Topics) PathFromWriteTopic(service, topic string) (path string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix()+"/"+kindWrite+"/"+service)
	if !found || !strings.HasPrefix(rest, "/") {
		return "", false
	}
	return rest, true
}

func (t Topics) join(kind, service, path string) string {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return t.Prefix() + "/" + kind + "/" + service + path
}
