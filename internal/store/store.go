// ABOUTME: Store interface, call record types, and sentinel errors.
// ABOUTME: One CallRecord per dispatched request; documents are JSON blobs keyed by name.

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/drawbridge/internal/diagram"
)

var (
	// ErrDocNotFound indicates the named document is not in the store.
	ErrDocNotFound = errors.New("document not found in store")
)

// Routing outcomes recorded per call.
const (
	RoutedLocal         = "local"
	RoutedRemote        = "remote"
	RoutedFallbackLocal = "fallback_local"
)

// CallRecord is one dispatched request. Code is 0 on success, else the
// envelope error code.
type CallRecord struct {
	ID        string
	RequestID string
	Method    string
	Routed    string
	Code      int
	Duration  time.Duration
	CreatedAt time.Time
}

// CallFilter narrows ListCalls. Zero values mean no filtering; Limit 0 uses
// the default limit.
type CallFilter struct {
	Method string
	Limit  int
}

// Store is the persistence contract: append-only call log plus named
// document storage.
type Store interface {
	// Append records one dispatched call.
	Append(ctx context.Context, record *CallRecord) error

	// ListCalls returns records newest-first, filtered.
	ListCalls(ctx context.Context, filter CallFilter) ([]*CallRecord, error)

	// PutDocument stores a document under a name, replacing any previous blob.
	PutDocument(ctx context.Context, name string, doc *diagram.Document) error

	// GetDocument retrieves a named document, ErrDocNotFound when absent.
	GetDocument(ctx context.Context, name string) (*diagram.Document, error)

	// ListDocuments returns stored document names in lexical order.
	ListDocuments(ctx context.Context) ([]string, error)

	// Close releases the underlying database.
	Close() error
}
