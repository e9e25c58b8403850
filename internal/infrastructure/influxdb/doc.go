// Package influxdb records bus value history in InfluxDB 2.x.
//
// It wraps influxdb-client-go v2 with connection management, a batching
// non-blocking write API and health checks. The history recorder feeds it
// the values listed under influxdb.record in config.yaml.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history is optional
//	}
//	defer client.Close()
//
//	client.WriteBusValue("com.victronenergy.battery.ttyUSB0", "/Soc", 87.5, time.Now())
//
// Write errors are reported asynchronously through SetOnError.
package influxdb
