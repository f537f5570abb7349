// Package methods defines the gateway's fixed method table: the parameter
// schemas and the local handlers binding the automation backend, the AI
// provider, and the store into callable operations.
package methods
