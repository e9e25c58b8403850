// Package logging provides structured logging for the Victron flow bridge.
//
// It wraps log/slog so every component logs with the same default
// fields (service, version) and honours the configured level and format.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("broker").Info("bus connected", "services", 12)
//
// Never log MQTT passwords, InfluxDB tokens or JWT secrets.
package logging
