// Package mqtt provides the MQTT connection the bridge uses to reach the
// Venus OS system bus.
//
// On a GX device every D-Bus value is mirrored to MQTT. This package owns
// the broker connection; package bus maps bus addresses onto the topics
// built by Topics.
//
// This package manages:
//   - Connection with auto-reconnect and connect-retry
//   - Publishing with QoS and retained flags
//   - Subscriptions that survive reconnects
//   - Last Will and Testament on <prefix>/bridge/<client-id>/status
//
// # Usage
//
//	client := mqtt.Start(cfg.MQTT)
//	defer client.Close()
//
//	client.SetOnConnect(func() {
//	    client.Subscribe(client.Topics().AllServices(), 0, onPresence)
//	})
//
// # Security Considerations
//
//   - Enable TLS (mqtt.broker.tls) when the broker is not on localhost
//   - Pass credentials via VICTRON_MQTT_USERNAME / VICTRON_MQTT_PASSWORD
package mqtt
