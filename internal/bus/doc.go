// Package bus addresses values on the Venus OS system bus and carries them
// over MQTT.
//
// A value is identified by an Address: a service name such as
// com.victronenergy.battery.ttyUSB0 and a slash-separated path such as /Soc.
// Client maps the operations the broker and nodes need (subscribe, write,
// publish a service) onto the N/, W/ and S/ topic families built by
// mqtt.Topics. Values travel as JSON {"value": ...}; an empty payload means
// the value (or service) went away and is delivered as nil.
package bus
