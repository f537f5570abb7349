// ABOUTME: Immutable method registry with lookup and coarse parameter validation.
// ABOUTME: Locality for automation/ai methods is resolved from route config at build time.

package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/drawbridge/internal/envelope"
)

// ErrMethodNotFound indicates the method name is not in the registry.
var ErrMethodNotFound = errors.New("method not found")

// ErrDuplicateMethod indicates the fixed table defines a name twice.
var ErrDuplicateMethod = errors.New("duplicate method")

// Domain groups methods by the collaborator that serves them.
type Domain string

const (
	DomainSystem     Domain = "system"
	DomainAutomation Domain = "automation"
	DomainAI         Domain = "ai"
)

// Locality is the routing class of a method.
type Locality string

const (
	// LocalityLocal always executes in-process.
	LocalityLocal Locality = "local"
	// LocalityRemote always forwards to the domain's configured endpoint.
	LocalityRemote Locality = "remote"
	// LocalityRemoteFallbackLocal forwards first and falls back to the local
	// handler when the endpoint is unreachable.
	LocalityRemoteFallbackLocal Locality = "remote_fallback_local"
)

// Kind is the coarse type of a parameter field.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindObject Kind = "object"
	KindList   Kind = "list"
)

// Field describes one named parameter.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	Doc      string
}

// Handler executes a method in-process and returns the result payload.
type Handler func(ctx context.Context, req *envelope.Request) (any, error)

// MethodSpec describes one callable method.
type MethodSpec struct {
	Name     string
	Domain   Domain
	Doc      string
	Params   []Field
	Locality Locality
	Handler  Handler
}

// ValidationError describes why params were rejected. It carries the
// offending field so clients can fix the call.
type ValidationError struct {
	Method string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid params for %s: field %q: %s", e.Method, e.Field, e.Reason)
}

// ValidateParams checks presence of required fields and coarse kind
// compatibility. Domain checks (shape ids, analysis vocabularies) belong to
// handlers. Unknown fields are ignored.
func (m *MethodSpec) ValidateParams(params map[string]any) error {
	for _, f := range m.Params {
		val, present := params[f.Name]
		if !present {
			if f.Required {
				return &ValidationError{Method: m.Name, Field: f.Name, Reason: "missing required field"}
			}
			continue
		}
		if val == nil {
			return &ValidationError{Method: m.Name, Field: f.Name, Reason: "must not be null"}
		}
		if !kindMatches(f.Kind, val) {
			return &ValidationError{Method: m.Name, Field: f.Name, Reason: fmt.Sprintf("must be a %s", f.Kind)}
		}
	}
	return nil
}

// kindMatches checks a decoded JSON value against a coarse kind. Numbers
// arrive as float64 from encoding/json.
func kindMatches(kind Kind, val any) bool {
	switch kind {
	case KindString:
		_, ok := val.(string)
		return ok
	case KindNumber:
		_, ok := val.(float64)
		return ok
	case KindObject:
		_, ok := val.(map[string]any)
		return ok
	case KindList:
		_, ok := val.([]any)
		return ok
	}
	return false
}

// Registry is the immutable method table. All mutation happens inside Build;
// afterwards lookups need no locking.
type Registry struct {
	byName map[string]*MethodSpec
	order  []string
	logger *slog.Logger
}

// Build resolves localities and freezes the table. System methods are always
// local; automation/ai methods take the locality from localityFor. A local
// method without a handler is a build error, as is a duplicate name.
func Build(logger *slog.Logger, table []MethodSpec, localityFor func(Domain) Locality) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]*MethodSpec, len(table)),
		logger: logger.With("component", "registry"),
	}

	for i := range table {
		spec := table[i]
		if _, exists := r.byName[spec.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateMethod, spec.Name)
		}

		switch spec.Domain {
		case DomainSystem:
			spec.Locality = LocalityLocal
		case DomainAutomation, DomainAI:
			spec.Locality = localityFor(spec.Domain)
		default:
			return nil, fmt.Errorf("method %s: unknown domain %q", spec.Name, spec.Domain)
		}

		if spec.Locality == LocalityLocal && spec.Handler == nil {
			return nil, fmt.Errorf("method %s is local but has no handler", spec.Name)
		}

		r.byName[spec.Name] = &spec
		r.order = append(r.order, spec.Name)
	}

	r.logger.Info("method registry built", "methods", len(r.order))
	return r, nil
}

// Lookup finds a method by name.
func (r *Registry) Lookup(name string) (*MethodSpec, error) {
	spec, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrMethodNotFound)
	}
	return spec, nil
}

// Methods returns all specs in registration order.
func (r *Registry) Methods() []*MethodSpec {
	out := make([]*MethodSpec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
