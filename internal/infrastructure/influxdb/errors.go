package influxdb

import "errors"

// Errors returned by Connect and HealthCheck. Asynchronous write failures
// are not returned at all; they go to the SetOnError callback.
var (
	// ErrDisabled means influxdb.enabled is false. Callers skip the sink.
	ErrDisabled = errors.New("influxdb: disabled")

	// ErrConnectionFailed wraps the ping failure that stopped Connect.
	ErrConnectionFailed = errors.New("influxdb: cannot reach server")

	// ErrUnhealthy means the server answered the ping but reported itself
	// not ready.
	ErrUnhealthy = errors.New("influxdb: server not healthy")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: client closed")
)
