// Package resilience groups the fault tolerance helpers used around the
// Engage gateway and the delivery log database.
//
//   - circuitbreaker wraps gobreaker with per-dependency settings
//   - retry runs idempotent operations again with exponential backoff
//
// Usage:
//
//	cb := circuitbreaker.New(circuitbreaker.GatewayConfig())
//	result, err := cb.Execute(func() (interface{}, error) {
//	    return client.Get(ctx, path)
//	})
//
//	err := retry.WithBackoff(ctx, retry.GatewayReadConfig(), func() error {
//	    return lookupContact(ctx)
//	})
package resilience
