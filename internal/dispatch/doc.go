// Package dispatch drives a request from raw bytes to a response envelope:
// decode, method lookup, parameter validation, locality routing, and
// execution either in-process or through the forwarding client. Every
// request produces exactly one response, panics included.
package dispatch
