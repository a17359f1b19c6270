// Package api provides the HTTP REST API and WebSocket server for
// ecoSYNC Core.
//
// It exposes the discovered devices, their sensors and parameters,
// weekly schedules and the fuel meter, and accepts parameter writes
// that are routed through the engine's per-device write queues. A
// WebSocket endpoint streams state change events to subscribed clients.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
