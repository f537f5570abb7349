// Package envelope implements the request/response wire envelope used by the
// gateway: correlation ids, method names, params, and the result/error codec.
package envelope
