// ABOUTME: Typed analyses derived from a document: structure, connections, text.
// ABOUTME: Fields for other analysis types are absent from the payload, never null-filled.

package diagram

import (
	"encoding/json"
	"errors"
	"fmt"
)

// AnalysisType selects which analysis of a document to produce.
type AnalysisType string

const (
	AnalysisStructure   AnalysisType = "structure"
	AnalysisConnections AnalysisType = "connections"
	AnalysisText        AnalysisType = "text"
)

// ErrUnknownAnalysisType indicates an analysis type outside the fixed set.
var ErrUnknownAnalysisType = errors.New("unknown analysis type")

// ShapeInfo is the per-shape slice of a structure analysis.
type ShapeInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Text string `json:"text,omitempty"`
}

// PageStructure describes one page in a structure analysis.
type PageStructure struct {
	Name        string      `json:"name"`
	ShapesCount int         `json:"shapes_count"`
	Shapes      []ShapeInfo `json:"shapes"`
}

// StructureAnalysis reports document composition. The embedded Summary puts
// the page/shape/connector counts at the top level of the payload.
type StructureAnalysis struct {
	AnalysisType AnalysisType `json:"analysis_type"`
	Document     string       `json:"document,omitempty"`
	Summary
	PageDetails []PageStructure `json:"page_details"`
	TotalShapes int             `json:"total_shapes"`
}

// Endpoint identifies one end of a connection.
type Endpoint struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ConnectionInfo describes one connector and its resolved endpoints.
type ConnectionInfo struct {
	ConnectorID string   `json:"connector_id"`
	Label       string   `json:"label,omitempty"`
	Page        string   `json:"page"`
	From        Endpoint `json:"from"`
	To          Endpoint `json:"to"`
}

// ConnectionsAnalysis reports every connector with resolved endpoints.
type ConnectionsAnalysis struct {
	AnalysisType     AnalysisType     `json:"analysis_type"`
	Document         string           `json:"document,omitempty"`
	Connections      []ConnectionInfo `json:"connections"`
	TotalConnections int              `json:"total_connections"`
}

// TextShapeInfo is one shape that carries text.
type TextShapeInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Page string `json:"page"`
	Text string `json:"text"`
}

// TextAnalysis reports only the shapes that carry text.
type TextAnalysis struct {
	AnalysisType    AnalysisType    `json:"analysis_type"`
	Document        string          `json:"document,omitempty"`
	TextShapes      []TextShapeInfo `json:"text_shapes"`
	TotalTextShapes int             `json:"total_text_shapes"`
}

// Analysis wraps exactly one populated analysis payload.
type Analysis struct {
	Type        AnalysisType
	Structure   *StructureAnalysis
	Connections *ConnectionsAnalysis
	Text        *TextAnalysis
}

// MarshalJSON emits only the populated payload.
func (a *Analysis) MarshalJSON() ([]byte, error) {
	switch {
	case a.Structure != nil:
		return json.Marshal(a.Structure)
	case a.Connections != nil:
		return json.Marshal(a.Connections)
	case a.Text != nil:
		return json.Marshal(a.Text)
	}
	return nil, fmt.Errorf("analysis %q has no payload", a.Type)
}

// Analyze produces the requested analysis of a document.
func Analyze(doc *Document, typ AnalysisType) (*Analysis, error) {
	switch typ {
	case AnalysisStructure:
		return &Analysis{Type: typ, Structure: AnalyzeStructure(doc)}, nil
	case AnalysisConnections:
		return &Analysis{Type: typ, Connections: AnalyzeConnections(doc)}, nil
	case AnalysisText:
		return &Analysis{Type: typ, Text: AnalyzeText(doc)}, nil
	default:
		return nil, fmt.Errorf("%q: %w", typ, ErrUnknownAnalysisType)
	}
}

// AnalyzeStructure summarizes pages and their shapes in traversal order.
func AnalyzeStructure(doc *Document) *StructureAnalysis {
	out := &StructureAnalysis{
		AnalysisType: AnalysisStructure,
		Document:     doc.Name(),
		Summary:      doc.Summary(),
		PageDetails:  []PageStructure{},
	}
	for _, page := range doc.Pages() {
		ps := PageStructure{Name: page.Name(), Shapes: []ShapeInfo{}}
		for _, s := range page.Shapes() {
			ps.Shapes = append(ps.Shapes, ShapeInfo{
				ID:   s.ID,
				Name: s.DisplayName(),
				Type: s.Type,
				Text: s.Text,
			})
		}
		ps.ShapesCount = len(ps.Shapes)
		out.TotalShapes += ps.ShapesCount
		out.PageDetails = append(out.PageDetails, ps)
	}
	return out
}

// AnalyzeConnections lists connectors with endpoints resolved to shapes.
func AnalyzeConnections(doc *Document) *ConnectionsAnalysis {
	out := &ConnectionsAnalysis{
		AnalysisType: AnalysisConnections,
		Document:     doc.Name(),
		Connections:  []ConnectionInfo{},
	}
	doc.EachConnector(func(page *Page, c *Connector) bool {
		info := ConnectionInfo{ConnectorID: c.ID, Label: c.Label, Page: page.Name()}
		if from, ok := page.Shape(c.From); ok {
			info.From = Endpoint{ID: from.ID, Name: from.DisplayName()}
		}
		if to, ok := page.Shape(c.To); ok {
			info.To = Endpoint{ID: to.ID, Name: to.DisplayName()}
		}
		out.Connections = append(out.Connections, info)
		return true
	})
	out.TotalConnections = len(out.Connections)
	return out
}

// AnalyzeText lists shapes carrying text, in traversal order.
func AnalyzeText(doc *Document) *TextAnalysis {
	out := &TextAnalysis{
		AnalysisType: AnalysisText,
		Document:     doc.Name(),
		TextShapes:   []TextShapeInfo{},
	}
	doc.EachShape(func(page *Page, s *Shape) bool {
		if s.Text != "" {
			out.TextShapes = append(out.TextShapes, TextShapeInfo{
				ID:   s.ID,
				Name: s.DisplayName(),
				Page: page.Name(),
				Text: s.Text,
			})
		}
		return true
	})
	out.TotalTextShapes = len(out.TextShapes)
	return out
}
