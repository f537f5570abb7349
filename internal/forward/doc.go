// Package forward performs remote envelope calls with timeouts, a bounded
// retry budget, and health probing.
//
// Transport failures are translated into two distinguished conditions:
// ErrUnreachable (connection-level failure) and ErrUpstreamTimeout (the call
// exceeded its deadline). Both are kept separate from domain errors carried
// inside a well-formed response envelope, which are never retried. A health
// tracker remembers known-dead endpoints so they do not pay the full retry
// budget on every call.
package forward
