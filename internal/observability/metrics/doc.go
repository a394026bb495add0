// Package metrics owns the process-wide HTTP and database pool collectors.
// Notification, gateway and worker metrics live next to the code that
// records them.
//
// All collectors register with the default Prometheus registry and are
// exposed on /metrics.
package metrics
