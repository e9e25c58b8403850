package influxdb

import (
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementBusValue    = "bus_value"
	measurementConditional = "conditional_result"
)

// WriteBusValue records one numeric bus value.
//
// The point is tagged with the full service name, its category (the second
// dotted segment, e.g. "battery" for com.victronenergy.battery.ttyUSB0) and
// the path. The write is non-blocking; points are batched.
//
// Example:
//
//	client.WriteBusValue("com.victronenergy.battery.ttyUSB0", "/Soc", 87.5, time.Now())
func (c *Client) WriteBusValue(service, path string, value float64, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(BusValuePoint(service, path, value, ts))
}

// WriteConditionalResult records a confirmed conditional node outcome.
func (c *Client) WriteConditionalResult(nodeID string, result bool, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		measurementConditional,
		map[string]string{"node_id": nodeID},
		map[string]any{"result": result},
		ts,
	))
}

// BusValuePoint builds the point WriteBusValue sends.
func BusValuePoint(service, path string, value float64, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementBusValue,
		map[string]string{
			"service":  service,
			"category": serviceCategory(service),
			"path":     path,
		},
		map[string]any{"value": value},
		ts,
	)
}

// serviceCategory returns "battery" for "com.victronenergy.battery.ttyUSB0".
func serviceCategory(service string) string {
	parts := strings.SplitN(service, ".", 4)
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}
