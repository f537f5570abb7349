// Package automation defines the operation contract for the native
// diagram-automation backend and an in-memory reference implementation.
//
// The gateway's local handlers only ever call through the Backend interface.
// MemoryBackend serves development, the all-local deployment, and tests; a
// platform-native backend driving a real automation surface implements the
// same contract outside this repository, or runs behind a second gateway
// instance reached by forwarding.
package automation
