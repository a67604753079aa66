// Package influxdb records archive operation metrics in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched metric writing and health monitoring.
//
// # Measurements
//
//   - archive_operations: one point per register, release or recall call
//   - archive_walks: one point per directory walk
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	mgr := archive.NewManager(backend, archive.WithObserver(client))
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
