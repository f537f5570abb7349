// ABOUTME: The fixed method table and its local handlers.
// ABOUTME: Coarse param schemas live here; domain checks live in the backend.

package methods

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/drawbridge/internal/ai"
	"github.com/2389/drawbridge/internal/automation"
	"github.com/2389/drawbridge/internal/diagram"
	"github.com/2389/drawbridge/internal/envelope"
	"github.com/2389/drawbridge/internal/forward"
	"github.com/2389/drawbridge/internal/registry"
)

// Deps are the handles handlers close over. Backend and Provider are always
// set; Tracker may be nil when no remote routes are configured.
type Deps struct {
	Backend       automation.Backend
	Provider      ai.Provider
	Tracker       *forward.Tracker
	Model         string
	ContextBudget int
	Logger        *slog.Logger
}

// Table builds the fixed method table. Localities are resolved later by
// registry.Build; the table itself never changes at runtime.
func Table(deps Deps) []registry.MethodSpec {
	return []registry.MethodSpec{
		{
			Name:    "ping",
			Domain:  registry.DomainSystem,
			Doc:     "Liveness check; returns a timestamp.",
			Handler: deps.ping,
		},
		{
			Name:    "health",
			Domain:  registry.DomainSystem,
			Doc:     "Component health: automation backend, AI provider, remote endpoints.",
			Handler: deps.health,
		},
		{
			Name:   "analyze_diagram",
			Domain: registry.DomainAutomation,
			Doc:    "Analyze a document's structure, connections, or text.",
			Params: []registry.Field{
				{Name: "analysis_type", Kind: registry.KindString, Required: true, Doc: "structure | connections | text"},
				{Name: "document", Kind: registry.KindString, Doc: "document name; active document when omitted"},
			},
			Handler: deps.analyzeDiagram,
		},
		{
			Name:   "modify_diagram",
			Domain: registry.DomainAutomation,
			Doc:    "Apply add/update/delete shape and connection instructions.",
			Params: []registry.Field{
				{Name: "instructions", Kind: registry.KindObject, Required: true, Doc: "add_shapes, update_shapes, delete_shapes, add_connections"},
				{Name: "document", Kind: registry.KindString, Doc: "document name; active document when omitted"},
			},
			Handler: deps.modifyDiagram,
		},
		{
			Name:   "verify_connections",
			Domain: registry.DomainAutomation,
			Doc:    "Check whether given shape pairs are connected.",
			Params: []registry.Field{
				{Name: "connections", Kind: registry.KindList, Required: true, Doc: "list of {from, to} pairs"},
				{Name: "document", Kind: registry.KindString, Doc: "document name; active document when omitted"},
			},
			Handler: deps.verifyConnections,
		},
		{
			Name:   "generate_diagram",
			Domain: registry.DomainAutomation,
			Doc:    "Build a new document from page/shape/connector instructions.",
			Params: []registry.Field{
				{Name: "instructions", Kind: registry.KindObject, Required: true, Doc: "{title, pages: [{name, shapes, connectors}]}"},
				{Name: "document", Kind: registry.KindString, Doc: "name for the generated document"},
			},
			Handler: deps.generateDiagram,
		},
		{
			Name:    "get_active_document",
			Domain:  registry.DomainAutomation,
			Doc:     "Describe the currently active document.",
			Handler: deps.getActiveDocument,
		},
		{
			Name:   "save_diagram_file",
			Domain: registry.DomainAutomation,
			Doc:    "Persist a document by name.",
			Params: []registry.Field{
				{Name: "document", Kind: registry.KindString, Required: true},
			},
			Handler: deps.saveDiagramFile,
		},
		{
			Name:   "load_diagram_file",
			Domain: registry.DomainAutomation,
			Doc:    "Load a persisted document and make it active.",
			Params: []registry.Field{
				{Name: "document", Kind: registry.KindString, Required: true},
			},
			Handler: deps.loadDiagramFile,
		},
		{
			Name:   "ask_diagram_ai",
			Domain: registry.DomainAI,
			Doc:    "Ask the AI collaborator a question about a document.",
			Params: []registry.Field{
				{Name: "question", Kind: registry.KindString, Required: true},
				{Name: "document", Kind: registry.KindString, Doc: "document name; active document when omitted"},
				{Name: "history", Kind: registry.KindList, Doc: "prior turns: [{role, content}]"},
				{Name: "model", Kind: registry.KindString, Doc: "model override"},
			},
			Handler: deps.askDiagramAI,
		},
	}
}

func (d Deps) ping(ctx context.Context, req *envelope.Request) (any, error) {
	return map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (d Deps) health(ctx context.Context, req *envelope.Request) (any, error) {
	components := map[string]any{}
	healthy := true

	if err := d.Backend.Ping(ctx); err != nil {
		components["automation"] = err.Error()
		healthy = false
	} else {
		components["automation"] = "ok"
	}

	if d.Provider != nil {
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := d.Provider.Available(probeCtx); err != nil {
			components["ai"] = err.Error()
			healthy = false
		} else {
			components["ai"] = d.Provider.Name()
		}
		cancel()
	}

	if d.Tracker != nil {
		endpoints := map[string]any{}
		for _, st := range d.Tracker.Status() {
			if st.Up {
				endpoints[st.Endpoint] = "up"
			} else {
				endpoints[st.Endpoint] = "down"
				healthy = false
			}
		}
		if len(endpoints) > 0 {
			components["endpoints"] = endpoints
		}
	}

	status := "ok"
	if !healthy {
		status = "degraded"
	}
	return map[string]any{"status": status, "components": components}, nil
}

type documentParam struct {
	Document string `json:"document"`
}

func (d Deps) analyzeDiagram(ctx context.Context, req *envelope.Request) (any, error) {
	var p struct {
		documentParam
		AnalysisType string `json:"analysis_type"`
	}
	if err := req.UnmarshalParams(&p); err != nil {
		return nil, err
	}

	analysis, err := d.Backend.Analyze(ctx, p.Document, diagram.AnalysisType(p.AnalysisType))
	if err != nil {
		return nil, err
	}

	// The payload rides alongside the document-level counts.
	result := map[string]any{}
	encoded, err := json.Marshal(analysis)
	if err != nil {
		return nil, fmt.Errorf("encoding analysis: %w", err)
	}
	if err := json.Unmarshal(encoded, &result); err != nil {
		return nil, fmt.Errorf("encoding analysis: %w", err)
	}
	if doc, err := d.Backend.Document(ctx, p.Document); err == nil {
		result["summary"] = doc.Summary()
	}
	return result, nil
}

func (d Deps) modifyDiagram(ctx context.Context, req *envelope.Request) (any, error) {
	var p struct {
		documentParam
		Instructions automation.ModifyInstructions `json:"instructions"`
	}
	if err := req.UnmarshalParams(&p); err != nil {
		return nil, err
	}

	applied, err := d.Backend.Modify(ctx, p.Document, p.Instructions)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":   "modified",
		"document": d.documentLabel(ctx, p.Document),
		"applied":  applied,
	}, nil
}

func (d Deps) verifyConnections(ctx context.Context, req *envelope.Request) (any, error) {
	var p struct {
		documentParam
		Connections []automation.ConnectionCheck `json:"connections"`
	}
	if err := req.UnmarshalParams(&p); err != nil {
		return nil, err
	}

	verified, err := d.Backend.VerifyConnections(ctx, p.Document, p.Connections)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":   "verified",
		"document": d.documentLabel(ctx, p.Document),
		"results":  verified.Results,
	}, nil
}

func (d Deps) generateDiagram(ctx context.Context, req *envelope.Request) (any, error) {
	var p struct {
		documentParam
		Instructions automation.GenerateInstructions `json:"instructions"`
	}
	if err := req.UnmarshalParams(&p); err != nil {
		return nil, err
	}

	generated, err := d.Backend.Generate(ctx, p.Document, p.Instructions)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":     "generated",
		"document":   generated.Document,
		"pages":      generated.Pages,
		"shapes":     generated.Shapes,
		"connectors": generated.Connectors,
	}, nil
}

func (d Deps) getActiveDocument(ctx context.Context, req *envelope.Request) (any, error) {
	return d.Backend.ActiveDocument(ctx)
}

func (d Deps) saveDiagramFile(ctx context.Context, req *envelope.Request) (any, error) {
	var p documentParam
	if err := req.UnmarshalParams(&p); err != nil {
		return nil, err
	}
	if err := d.Backend.SaveFile(ctx, p.Document); err != nil {
		return nil, err
	}
	return map[string]any{
		"status":   "saved",
		"document": p.Document,
		"message":  fmt.Sprintf("document %q saved", p.Document),
	}, nil
}

func (d Deps) loadDiagramFile(ctx context.Context, req *envelope.Request) (any, error) {
	var p documentParam
	if err := req.UnmarshalParams(&p); err != nil {
		return nil, err
	}
	if err := d.Backend.LoadFile(ctx, p.Document); err != nil {
		return nil, err
	}
	return map[string]any{
		"status":   "loaded",
		"document": p.Document,
		"message":  fmt.Sprintf("document %q loaded and active", p.Document),
	}, nil
}

func (d Deps) askDiagramAI(ctx context.Context, req *envelope.Request) (any, error) {
	if d.Provider == nil {
		return nil, errors.New("no ai provider configured")
	}

	var p struct {
		documentParam
		Question string       `json:"question"`
		History  []ai.Message `json:"history"`
		Model    string       `json:"model"`
	}
	if err := req.UnmarshalParams(&p); err != nil {
		return nil, err
	}

	// A question with no open document still gets an answer; the context just
	// says so.
	doc, err := d.Backend.Document(ctx, p.Document)
	if err != nil && !errors.Is(err, automation.ErrNoActiveDocument) {
		return nil, err
	}

	payload := ai.BuildContext(doc, p.History, d.ContextBudget)

	answer, err := d.Provider.Chat(ctx, payload.Messages(p.Question), p.Model)
	if err != nil {
		return nil, fmt.Errorf("ai provider: %w", err)
	}

	model := p.Model
	if model == "" {
		model = d.Model
	}
	return map[string]any{
		"answer":   answer,
		"model":    model,
		"provider": d.Provider.Name(),
		"context": map[string]any{
			"truncated":  payload.Truncated,
			"shapes":     len(payload.Shapes),
			"connectors": len(payload.Connectors),
			"tokens":     payload.Tokens,
		},
	}, nil
}

// documentLabel resolves the name to report in results: the explicit param,
// else the active document's name when one is open.
func (d Deps) documentLabel(ctx context.Context, name string) string {
	if name != "" {
		return name
	}
	info, err := d.Backend.ActiveDocument(ctx)
	if err != nil {
		return ""
	}
	return info.Name
}
