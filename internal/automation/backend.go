// ABOUTME: Operation contract between the gateway's local handlers and the automation backend.
// ABOUTME: Instruction and result types decode straight from envelope params with unknown fields ignored.

package automation

import (
	"context"
	"errors"

	"github.com/2389/drawbridge/internal/diagram"
)

var (
	// ErrNoActiveDocument indicates no document is open in the backend.
	ErrNoActiveDocument = errors.New("no active document")

	// ErrDocumentNotFound indicates the named document is not known to the
	// backend or its persistence layer.
	ErrDocumentNotFound = errors.New("document not found")
)

// Backend is the contract the gateway calls for every automation operation.
// Implementations are synchronous; callers bound each call with a context
// deadline and serialize calls per document.
type Backend interface {
	// Analyze produces the requested analysis of a document. An empty doc
	// name targets the active document.
	Analyze(ctx context.Context, doc string, typ diagram.AnalysisType) (*diagram.Analysis, error)

	// Modify applies shape/connection instruction lists to a document.
	Modify(ctx context.Context, doc string, instr ModifyInstructions) (*ModifyResult, error)

	// VerifyConnections checks whether the given endpoint pairs are connected.
	VerifyConnections(ctx context.Context, doc string, pairs []ConnectionCheck) (*VerifyResult, error)

	// Generate builds a new document from instructions and makes it active.
	Generate(ctx context.Context, doc string, instr GenerateInstructions) (*GenerateResult, error)

	// ActiveDocument describes the currently active document.
	ActiveDocument(ctx context.Context) (*DocumentInfo, error)

	// Document returns the model for a named document (active when empty).
	// Used to build AI context from diagram state.
	Document(ctx context.Context, doc string) (*diagram.Document, error)

	// SaveFile persists a document by name.
	SaveFile(ctx context.Context, doc string) error

	// LoadFile loads a persisted document and makes it active.
	LoadFile(ctx context.Context, doc string) error

	// Ping checks the backend is responsive.
	Ping(ctx context.Context) error
}

// ShapeInstruction adds one shape. Zero geometry falls back to the stencil
// catalog entry for Master (or the default master size).
type ShapeInstruction struct {
	Page   string  `json:"page,omitempty"`
	ID     string  `json:"id,omitempty"`
	Master string  `json:"master,omitempty"`
	Name   string  `json:"name,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Text   string  `json:"text,omitempty"`
}

// ShapeUpdate changes fields on an existing shape, addressed by id or by
// display name. Nil fields are left untouched.
type ShapeUpdate struct {
	Page string   `json:"page,omitempty"`
	ID   string   `json:"id,omitempty"`
	Name string   `json:"name,omitempty"`
	Text *string  `json:"text,omitempty"`
	X    *float64 `json:"x,omitempty"`
	Y    *float64 `json:"y,omitempty"`
}

// ShapeRef addresses a shape for deletion, by id or by display name.
type ShapeRef struct {
	Page string `json:"page,omitempty"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// ConnectionInstruction adds one connector between two shapes, addressed by
// id or by display name.
type ConnectionInstruction struct {
	Page  string `json:"page,omitempty"`
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// ModifyInstructions is the instruction set for modify_diagram.
type ModifyInstructions struct {
	AddShapes      []ShapeInstruction      `json:"add_shapes,omitempty"`
	UpdateShapes   []ShapeUpdate           `json:"update_shapes,omitempty"`
	DeleteShapes   []ShapeRef              `json:"delete_shapes,omitempty"`
	AddConnections []ConnectionInstruction `json:"add_connections,omitempty"`
}

// ModifyResult counts what a modify operation applied.
type ModifyResult struct {
	ShapesAdded      int `json:"shapes_added"`
	ShapesUpdated    int `json:"shapes_updated"`
	ShapesDeleted    int `json:"shapes_deleted"`
	ConnectionsAdded int `json:"connections_added"`
}

// ConnectionCheck names two shapes whose connection should be verified.
type ConnectionCheck struct {
	Page string `json:"page,omitempty"`
	From string `json:"from"`
	To   string `json:"to"`
}

// ConnectionStatus is the verification outcome for one pair.
type ConnectionStatus struct {
	From              string `json:"from"`
	To                string `json:"to"`
	ConnectionExists  bool   `json:"connection_exists"`
	ShapesValid       bool   `json:"shapes_valid"`
	ValidationMessage string `json:"validation_message,omitempty"`
}

// VerifyResult carries one status per checked pair, in input order.
type VerifyResult struct {
	Results []ConnectionStatus `json:"results"`
}

// PageInstruction describes one page of a generated document.
type PageInstruction struct {
	Name       string                  `json:"name"`
	Shapes     []ShapeInstruction      `json:"shapes,omitempty"`
	Connectors []ConnectionInstruction `json:"connectors,omitempty"`
}

// GenerateInstructions is the instruction set for generate_diagram.
type GenerateInstructions struct {
	Title string            `json:"title,omitempty"`
	Pages []PageInstruction `json:"pages"`
}

// GenerateResult summarizes a generated document.
type GenerateResult struct {
	Document   string `json:"document"`
	Pages      int    `json:"pages"`
	Shapes     int    `json:"shapes"`
	Connectors int    `json:"connectors"`
}

// PageSummary is one page in a document info listing.
type PageSummary struct {
	Name        string `json:"name"`
	ShapesCount int    `json:"shapes_count"`
}

// DocumentInfo describes a document without its full contents.
type DocumentInfo struct {
	Name       string        `json:"name"`
	PagesCount int           `json:"pages_count"`
	Pages      []PageSummary `json:"pages"`
}
