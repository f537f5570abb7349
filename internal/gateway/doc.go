// Package gateway wires the whole server: store, automation backend, AI
// provider, method registry, dispatcher, and forwarding client, exposed over
// HTTP and WebSocket listeners (plain TCP or Tailscale tsnet).
//
// Surfaces:
//
//	POST /rpc          one request envelope in, one response envelope out
//	GET  /rpc/ws       WebSocket; one envelope per text message
//	GET  /health       liveness
//	GET  /health/ready readiness per component
//	GET  /metrics      Prometheus (when enabled)
//	GET  /docs         method reference
package gateway
