// Package store persists the gateway's call log and named diagram documents
// in SQLite. The store is optional at runtime: a nil store disables the call
// log and switches document persistence to the documents directory.
package store
