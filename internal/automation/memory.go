// ABOUTME: In-memory reference implementation of the automation Backend contract.
// ABOUTME: Holds documents under one mutex; persists by name through a store or a documents directory.

package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/drawbridge/internal/diagram"
)

// DocumentStore persists named documents. Implemented by the SQLite store;
// kept minimal here so the backend does not depend on the store package.
type DocumentStore interface {
	PutDocument(ctx context.Context, name string, doc *diagram.Document) error
	GetDocument(ctx context.Context, name string) (*diagram.Document, error)
}

// MemoryConfig configures a MemoryBackend. When Store is nil, save/load use
// DocumentsDir as a JSON file per document.
type MemoryConfig struct {
	Store        DocumentStore
	DocumentsDir string
	Logger       *slog.Logger
}

// MemoryBackend implements Backend against in-memory documents. The native
// automation surface it stands in for is single-threaded, so one mutex
// guards all document state; callers additionally serialize per document.
type MemoryBackend struct {
	mu       sync.Mutex
	docs     map[string]*diagram.Document
	active   string
	store    DocumentStore
	dir      string
	stencils *Stencils
	logger   *slog.Logger
}

// NewMemoryBackend creates a backend with the embedded stencil catalog.
func NewMemoryBackend(cfg MemoryConfig) (*MemoryBackend, error) {
	stencils, err := EmbeddedStencils()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dir := cfg.DocumentsDir
	if dir == "" {
		dir = "documents"
	}
	return &MemoryBackend{
		docs:     make(map[string]*diagram.Document),
		store:    cfg.Store,
		dir:      dir,
		stencils: stencils,
		logger:   logger.With("component", "automation"),
	}, nil
}

// Seed registers a document and makes it active. Used by the development
// instance and tests.
func (b *MemoryBackend) Seed(doc *diagram.Document) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs[doc.Name()] = doc
	b.active = doc.Name()
}

// resolve finds a document by name, or the active one when name is empty.
// Callers must hold b.mu.
func (b *MemoryBackend) resolve(name string) (*diagram.Document, error) {
	if name == "" {
		if b.active == "" {
			return nil, ErrNoActiveDocument
		}
		name = b.active
	}
	doc, ok := b.docs[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrDocumentNotFound)
	}
	return doc, nil
}

func (b *MemoryBackend) Analyze(ctx context.Context, doc string, typ diagram.AnalysisType) (*diagram.Analysis, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, err := b.resolve(doc)
	if err != nil {
		return nil, err
	}
	return diagram.Analyze(d, typ)
}

func (b *MemoryBackend) Modify(ctx context.Context, doc string, instr ModifyInstructions) (*ModifyResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, err := b.resolve(doc)
	if err != nil {
		return nil, err
	}

	result := &ModifyResult{}

	for _, add := range instr.AddShapes {
		page := b.pageFor(d, add.Page)
		shape := b.shapeFromInstruction(add)
		if err := page.AddShape(shape); err != nil {
			return nil, err
		}
		result.ShapesAdded++
	}

	for _, upd := range instr.UpdateShapes {
		page := b.pageFor(d, upd.Page)
		shape, err := findShape(page, upd.ID, upd.Name)
		if err != nil {
			return nil, err
		}
		if upd.Text != nil {
			shape.Text = *upd.Text
		}
		if upd.X != nil {
			shape.X = *upd.X
		}
		if upd.Y != nil {
			shape.Y = *upd.Y
		}
		result.ShapesUpdated++
	}

	for _, del := range instr.DeleteShapes {
		page := b.pageFor(d, del.Page)
		shape, err := findShape(page, del.ID, del.Name)
		if err != nil {
			return nil, err
		}
		if _, err := page.RemoveShape(shape.ID); err != nil {
			return nil, err
		}
		result.ShapesDeleted++
	}

	for _, conn := range instr.AddConnections {
		page := b.pageFor(d, conn.Page)
		from, err := findShape(page, conn.From, conn.From)
		if err != nil {
			return nil, fmt.Errorf("connection from %q: %w", conn.From, err)
		}
		to, err := findShape(page, conn.To, conn.To)
		if err != nil {
			return nil, fmt.Errorf("connection to %q: %w", conn.To, err)
		}
		c := &diagram.Connector{
			ID:    "conn-" + shortID(),
			From:  from.ID,
			To:    to.ID,
			Label: conn.Label,
		}
		if err := page.AddConnector(c); err != nil {
			return nil, err
		}
		result.ConnectionsAdded++
	}

	b.logger.Debug("modified document", "document", d.Name(),
		"added", result.ShapesAdded, "updated", result.ShapesUpdated,
		"deleted", result.ShapesDeleted, "connected", result.ConnectionsAdded)
	return result, nil
}

func (b *MemoryBackend) VerifyConnections(ctx context.Context, doc string, pairs []ConnectionCheck) (*VerifyResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, err := b.resolve(doc)
	if err != nil {
		return nil, err
	}

	out := &VerifyResult{Results: make([]ConnectionStatus, 0, len(pairs))}
	for _, pair := range pairs {
		out.Results = append(out.Results, verifyPair(d, pair))
	}
	return out, nil
}

// verifyPair checks one endpoint pair across the document (or one page when
// the check names it). A connector counts in either direction.
func verifyPair(d *diagram.Document, pair ConnectionCheck) ConnectionStatus {
	status := ConnectionStatus{From: pair.From, To: pair.To}

	pages := d.Pages()
	if pair.Page != "" {
		page, ok := d.Page(pair.Page)
		if !ok {
			status.ValidationMessage = fmt.Sprintf("page %q not found", pair.Page)
			return status
		}
		pages = []*diagram.Page{page}
	}

	for _, page := range pages {
		from, okFrom := findShapeLoose(page, pair.From)
		to, okTo := findShapeLoose(page, pair.To)
		if !okFrom || !okTo {
			continue
		}
		status.ShapesValid = true
		for _, c := range page.Connectors() {
			if (c.From == from.ID && c.To == to.ID) || (c.From == to.ID && c.To == from.ID) {
				status.ConnectionExists = true
				status.ValidationMessage = fmt.Sprintf("connected via %s on page %q", c.ID, page.Name())
				return status
			}
		}
	}

	if !status.ShapesValid {
		status.ValidationMessage = "one or both shapes not found"
	} else {
		status.ValidationMessage = "shapes exist but are not connected"
	}
	return status
}

func (b *MemoryBackend) Generate(ctx context.Context, doc string, instr GenerateInstructions) (*GenerateResult, error) {
	name := doc
	if name == "" {
		name = instr.Title
	}
	if name == "" {
		name = "untitled-" + shortID()
	}

	pages := make([]diagram.PageInput, 0, len(instr.Pages))
	for i, pi := range instr.Pages {
		pageName := pi.Name
		if pageName == "" {
			pageName = fmt.Sprintf("Page-%d", i+1)
		}
		input := diagram.PageInput{Name: pageName}

		// Resolve names to ids up front so connectors can address either.
		idsByName := make(map[string]string)
		for _, si := range pi.Shapes {
			shape := b.shapeFromInstruction(si)
			input.Shapes = append(input.Shapes, *shape)
			idsByName[shape.DisplayName()] = shape.ID
			idsByName[shape.ID] = shape.ID
		}
		for _, ci := range pi.Connectors {
			from, ok := idsByName[ci.From]
			if !ok {
				return nil, fmt.Errorf("page %q: connector from %q: %w", pageName, ci.From, diagram.ErrShapeNotFound)
			}
			to, ok := idsByName[ci.To]
			if !ok {
				return nil, fmt.Errorf("page %q: connector to %q: %w", pageName, ci.To, diagram.ErrShapeNotFound)
			}
			input.Connectors = append(input.Connectors, diagram.Connector{
				ID:    "conn-" + shortID(),
				From:  from,
				To:    to,
				Label: ci.Label,
			})
		}
		pages = append(pages, input)
	}

	built, err := diagram.BuildDocument(name, pages)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.docs[name] = built
	b.active = name
	b.mu.Unlock()

	sum := built.Summary()
	b.logger.Info("generated document", "document", name,
		"pages", sum.Pages, "shapes", sum.Shapes, "connectors", sum.Connectors)
	return &GenerateResult{Document: name, Pages: sum.Pages, Shapes: sum.Shapes, Connectors: sum.Connectors}, nil
}

func (b *MemoryBackend) ActiveDocument(ctx context.Context) (*DocumentInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, err := b.resolve("")
	if err != nil {
		return nil, err
	}

	info := &DocumentInfo{Name: d.Name()}
	for _, page := range d.Pages() {
		info.Pages = append(info.Pages, PageSummary{Name: page.Name(), ShapesCount: len(page.Shapes())})
	}
	info.PagesCount = len(info.Pages)
	return info, nil
}

func (b *MemoryBackend) Document(ctx context.Context, doc string) (*diagram.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resolve(doc)
}

func (b *MemoryBackend) SaveFile(ctx context.Context, doc string) error {
	b.mu.Lock()
	d, err := b.resolve(doc)
	b.mu.Unlock()
	if err != nil {
		return err
	}

	if b.store != nil {
		return b.store.PutDocument(ctx, d.Name(), d)
	}

	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return fmt.Errorf("creating documents directory: %w", err)
	}
	raw, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	path := b.documentPath(d.Name())
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("writing document: %w", err)
	}
	b.logger.Info("saved document", "document", d.Name(), "path", path)
	return nil
}

func (b *MemoryBackend) LoadFile(ctx context.Context, doc string) error {
	var loaded *diagram.Document
	if b.store != nil {
		d, err := b.store.GetDocument(ctx, doc)
		if err != nil {
			return err
		}
		loaded = d
	} else {
		raw, err := os.ReadFile(b.documentPath(doc))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%q: %w", doc, ErrDocumentNotFound)
			}
			return fmt.Errorf("reading document: %w", err)
		}
		loaded = &diagram.Document{}
		if err := json.Unmarshal(raw, loaded); err != nil {
			return fmt.Errorf("decoding document %q: %w", doc, err)
		}
	}

	b.mu.Lock()
	b.docs[doc] = loaded
	b.active = doc
	b.mu.Unlock()
	b.logger.Info("loaded document", "document", doc)
	return nil
}

func (b *MemoryBackend) Ping(ctx context.Context) error {
	return nil
}

// documentPath maps a document name to its JSON file, stripping any path
// components so names cannot escape the documents directory.
func (b *MemoryBackend) documentPath(name string) string {
	return filepath.Join(b.dir, filepath.Base(name)+".json")
}

// pageFor returns the named page, the first page when unnamed, or a fresh
// page when the document is empty. Callers must hold b.mu.
func (b *MemoryBackend) pageFor(d *diagram.Document, name string) *diagram.Page {
	if name != "" {
		if page, ok := d.Page(name); ok {
			return page
		}
		return d.AddPage(name)
	}
	if page, ok := d.PageAt(0); ok {
		return page
	}
	return d.AddPage("Page-1")
}

// shapeFromInstruction fills in stencil defaults for missing geometry.
func (b *MemoryBackend) shapeFromInstruction(in ShapeInstruction) *diagram.Shape {
	master := b.stencils.Resolve(in.Master)
	shape := &diagram.Shape{
		ID:     in.ID,
		Type:   master.Type,
		X:      in.X,
		Y:      in.Y,
		Width:  in.Width,
		Height: in.Height,
		Text:   in.Text,
	}
	if shape.ID == "" {
		shape.ID = "shape-" + shortID()
	}
	if shape.Width == 0 {
		shape.Width = master.Width
	}
	if shape.Height == 0 {
		shape.Height = master.Height
	}
	if in.Name != "" {
		shape.Properties = map[string]string{"name": in.Name}
	}
	return shape
}

// findShape addresses a shape by id first, then by display name.
func findShape(page *diagram.Page, id, name string) (*diagram.Shape, error) {
	if id != "" {
		if s, ok := page.Shape(id); ok {
			return s, nil
		}
	}
	if name != "" {
		if s, ok := page.ShapeByName(name); ok {
			return s, nil
		}
	}
	ref := id
	if ref == "" {
		ref = name
	}
	return nil, fmt.Errorf("page %q: shape %q: %w", page.Name(), ref, diagram.ErrShapeNotFound)
}

// findShapeLoose tries id then name without producing an error.
func findShapeLoose(page *diagram.Page, ref string) (*diagram.Shape, bool) {
	if s, ok := page.Shape(ref); ok {
		return s, true
	}
	return page.ShapeByName(ref)
}

// shortID returns an 8-character unique token for generated ids.
func shortID() string {
	return uuid.NewString()[:8]
}
