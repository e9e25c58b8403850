// Package config loads and validates the Victron flow bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with VICTRON_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - MQTT passwords, InfluxDB tokens and the JWT secret should be set via
//     environment variables rather than committed to the config file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.PortalID)
package config
