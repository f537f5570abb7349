// ABOUTME: Diagram model types and validated construction/mutation.
// ABOUTME: Pages own shapes and connectors; connector endpoints must exist on the page.

package diagram

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrDuplicateID indicates two shapes (or two connectors) on the same page
	// share an id.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrDanglingConnector indicates a connector endpoint that is not among the
	// page's shapes.
	ErrDanglingConnector = errors.New("dangling connector")

	// ErrPageNotFound indicates a named page is not in the document.
	ErrPageNotFound = errors.New("page not found")

	// ErrShapeNotFound indicates a shape id (or name) is not on the page.
	ErrShapeNotFound = errors.New("shape not found")
)

// Shape is a single diagram element. ID is unique within its page. Geometry
// fields are opaque to the gateway; Properties carries anything beyond the
// fixed fields (display name, fill, layer).
type Shape struct {
	ID         string            `json:"id"`
	Type       string            `json:"type,omitempty"`
	X          float64           `json:"x"`
	Y          float64           `json:"y"`
	Width      float64           `json:"width,omitempty"`
	Height     float64           `json:"height,omitempty"`
	Text       string            `json:"text,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// DisplayName returns the shape's name property, falling back to its id.
func (s *Shape) DisplayName() string {
	if name, ok := s.Properties["name"]; ok && name != "" {
		return name
	}
	return s.ID
}

// Connector links two shapes on the same page.
type Connector struct {
	ID    string `json:"id"`
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// Page owns its shapes and connectors. Shapes are never shared across pages.
type Page struct {
	name       string
	shapes     []*Shape
	connectors []*Connector
	shapeIdx   map[string]*Shape
	connIdx    map[string]*Connector
}

// Document is an ordered sequence of pages.
type Document struct {
	name  string
	pages []*Page
}

// PageInput supplies raw shapes and connectors for one page of a build.
type PageInput struct {
	Name       string
	Shapes     []Shape
	Connectors []Connector
}

// BuildDocument validates raw pages into a Document. It fails with
// ErrDuplicateID when ids collide within a page and ErrDanglingConnector when
// a connector references a shape id not supplied for that page.
func BuildDocument(name string, pages []PageInput) (*Document, error) {
	doc := &Document{name: name}
	for _, in := range pages {
		page, err := buildPage(in)
		if err != nil {
			return nil, err
		}
		doc.pages = append(doc.pages, page)
	}
	return doc, nil
}

func buildPage(in PageInput) (*Page, error) {
	page := newPage(in.Name)
	for i := range in.Shapes {
		s := in.Shapes[i]
		if err := page.AddShape(&s); err != nil {
			return nil, err
		}
	}
	for i := range in.Connectors {
		c := in.Connectors[i]
		if err := page.AddConnector(&c); err != nil {
			return nil, err
		}
	}
	return page, nil
}

func newPage(name string) *Page {
	return &Page{
		name:     name,
		shapeIdx: map[string]*Shape{},
		connIdx:  map[string]*Connector{},
	}
}

// Name returns the page name.
func (p *Page) Name() string { return p.name }

// AddShape appends a shape, rejecting duplicate ids.
func (p *Page) AddShape(s *Shape) error {
	if s.ID == "" {
		return fmt.Errorf("page %q: shape with empty id", p.name)
	}
	if _, exists := p.shapeIdx[s.ID]; exists {
		return fmt.Errorf("page %q: shape %q: %w", p.name, s.ID, ErrDuplicateID)
	}
	p.shapes = append(p.shapes, s)
	p.shapeIdx[s.ID] = s
	return nil
}

// AddConnector appends a connector. Both endpoints must already be shapes on
// this page; a missing endpoint is an ErrDanglingConnector, never a nil link.
func (p *Page) AddConnector(c *Connector) error {
	if c.ID == "" {
		return fmt.Errorf("page %q: connector with empty id", p.name)
	}
	if _, exists := p.connIdx[c.ID]; exists {
		return fmt.Errorf("page %q: connector %q: %w", p.name, c.ID, ErrDuplicateID)
	}
	for _, end := range []string{c.From, c.To} {
		if _, ok := p.shapeIdx[end]; !ok {
			return fmt.Errorf("page %q: connector %q references shape %q: %w", p.name, c.ID, end, ErrDanglingConnector)
		}
	}
	p.connectors = append(p.connectors, c)
	p.connIdx[c.ID] = c
	return nil
}

// RemoveShape deletes a shape by id and cascades to connectors touching it so
// the page never holds a dangling connector. Returns the number of connectors
// removed alongside the shape.
func (p *Page) RemoveShape(id string) (int, error) {
	if _, ok := p.shapeIdx[id]; !ok {
		return 0, fmt.Errorf("page %q: shape %q: %w", p.name, id, ErrShapeNotFound)
	}
	delete(p.shapeIdx, id)
	for i, s := range p.shapes {
		if s.ID == id {
			p.shapes = append(p.shapes[:i], p.shapes[i+1:]...)
			break
		}
	}

	removed := 0
	kept := p.connectors[:0]
	for _, c := range p.connectors {
		if c.From == id || c.To == id {
			delete(p.connIdx, c.ID)
			removed++
			continue
		}
		kept = append(kept, c)
	}
	p.connectors = kept
	return removed, nil
}

// Shape looks up a shape by id.
func (p *Page) Shape(id string) (*Shape, bool) {
	s, ok := p.shapeIdx[id]
	return s, ok
}

// ShapeByName finds the first shape (in insertion order) whose display name
// matches. Used for instruction sets that address shapes by name.
func (p *Page) ShapeByName(name string) (*Shape, bool) {
	for _, s := range p.shapes {
		if s.DisplayName() == name {
			return s, true
		}
	}
	return nil, false
}

// Connector looks up a connector by id.
func (p *Page) Connector(id string) (*Connector, bool) {
	c, ok := p.connIdx[id]
	return c, ok
}

// Shapes returns the page's shapes in insertion order. The slice is a copy;
// the shapes are shared.
func (p *Page) Shapes() []*Shape {
	out := make([]*Shape, len(p.shapes))
	copy(out, p.shapes)
	return out
}

// Connectors returns the page's connectors in insertion order.
func (p *Page) Connectors() []*Connector {
	out := make([]*Connector, len(p.connectors))
	copy(out, p.connectors)
	return out
}

// Name returns the document name.
func (d *Document) Name() string { return d.name }

// Pages returns the document's pages in insertion order.
func (d *Document) Pages() []*Page {
	out := make([]*Page, len(d.pages))
	copy(out, d.pages)
	return out
}

// Page looks up a page by name.
func (d *Document) Page(name string) (*Page, bool) {
	for _, p := range d.pages {
		if p.name == name {
			return p, true
		}
	}
	return nil, false
}

// PageAt returns the page at the given index.
func (d *Document) PageAt(i int) (*Page, bool) {
	if i < 0 || i >= len(d.pages) {
		return nil, false
	}
	return d.pages[i], true
}

// AddPage appends an empty page. Page names are not required to be unique;
// lookup by name finds the first match.
func (d *Document) AddPage(name string) *Page {
	p := newPage(name)
	d.pages = append(d.pages, p)
	return p
}

// EachShape walks every shape in traversal order (page insertion order, then
// shape insertion order). The walk stops early when fn returns false. Two
// walks of the same document yield identical sequences.
func (d *Document) EachShape(fn func(p *Page, s *Shape) bool) {
	for _, p := range d.pages {
		for _, s := range p.shapes {
			if !fn(p, s) {
				return
			}
		}
	}
}

// EachConnector walks every connector in traversal order.
func (d *Document) EachConnector(fn func(p *Page, c *Connector) bool) {
	for _, p := range d.pages {
		for _, c := range p.connectors {
			if !fn(p, c) {
				return
			}
		}
	}
}

// Summary holds document-level counts.
type Summary struct {
	Pages      int `json:"pages"`
	Shapes     int `json:"shapes"`
	Connectors int `json:"connectors"`
}

// Summary counts pages, shapes, and connectors.
func (d *Document) Summary() Summary {
	sum := Summary{Pages: len(d.pages)}
	for _, p := range d.pages {
		sum.Shapes += len(p.shapes)
		sum.Connectors += len(p.connectors)
	}
	return sum
}

// pageJSON is the persisted form of a page.
type pageJSON struct {
	Name       string      `json:"name"`
	Shapes     []Shape     `json:"shapes,omitempty"`
	Connectors []Connector `json:"connectors,omitempty"`
}

// documentJSON is the persisted form of a document.
type documentJSON struct {
	Name  string     `json:"name"`
	Pages []pageJSON `json:"pages"`
}

// MarshalJSON encodes the document with pages, shapes, and connectors in
// traversal order, so persisted documents round-trip deterministically.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := documentJSON{Name: d.name}
	for _, p := range d.pages {
		pj := pageJSON{Name: p.name}
		for _, s := range p.shapes {
			pj.Shapes = append(pj.Shapes, *s)
		}
		for _, c := range p.connectors {
			pj.Connectors = append(pj.Connectors, *c)
		}
		out.Pages = append(out.Pages, pj)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a persisted document through the same validation as
// BuildDocument, so a corrupted blob cannot produce an invalid model.
func (d *Document) UnmarshalJSON(raw []byte) error {
	var in documentJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return err
	}
	pages := make([]PageInput, 0, len(in.Pages))
	for _, pj := range in.Pages {
		pages = append(pages, PageInput{Name: pj.Name, Shapes: pj.Shapes, Connectors: pj.Connectors})
	}
	built, err := BuildDocument(in.Name, pages)
	if err != nil {
		return err
	}
	*d = *built
	return nil
}
