// ABOUTME: Tests for the in-memory automation backend: generate, modify, verify, save/load.
// ABOUTME: Uses t.TempDir for directory persistence and the embedded stencil catalog.

package automation

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/drawbridge/internal/diagram"
)

func setupBackend(t *testing.T) *MemoryBackend {
	t.Helper()
	b, err := NewMemoryBackend(MemoryConfig{DocumentsDir: t.TempDir(), Logger: slog.Default()})
	require.NoError(t, err)
	return b
}

func flowInstructions() GenerateInstructions {
	return GenerateInstructions{
		Title: "order-flow",
		Pages: []PageInstruction{
			{
				Name: "Main",
				Shapes: []ShapeInstruction{
					{ID: "s1", Master: "Start", Name: "Start"},
					{ID: "s2", Master: "Process", Name: "Validate", Text: "validate order"},
					{ID: "s3", Master: "End", Name: "Done"},
				},
				Connectors: []ConnectionInstruction{
					{From: "Start", To: "Validate"},
					{From: "s2", To: "s3", Label: "ok"},
				},
			},
		},
	}
}

func TestGenerate(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	result, err := b.Generate(ctx, "", flowInstructions())
	require.NoError(t, err)
	assert.Equal(t, "order-flow", result.Document)
	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, 3, result.Shapes)
	assert.Equal(t, 2, result.Connectors)

	// Generated document becomes active.
	info, err := b.ActiveDocument(ctx)
	require.NoError(t, err)
	assert.Equal(t, "order-flow", info.Name)
	require.Len(t, info.Pages, 1)
	assert.Equal(t, 3, info.Pages[0].ShapesCount)

	// Stencil defaults fill missing geometry.
	doc, err := b.Document(ctx, "order-flow")
	require.NoError(t, err)
	page, ok := doc.PageAt(0)
	require.True(t, ok)
	s2, ok := page.Shape("s2")
	require.True(t, ok)
	assert.Equal(t, "Process", s2.Type)
	assert.Greater(t, s2.Width, 0.0)
}

func TestGenerate_UnknownConnectorEndpoint(t *testing.T) {
	b := setupBackend(t)
	instr := GenerateInstructions{
		Title: "bad",
		Pages: []PageInstruction{{
			Name:       "Main",
			Shapes:     []ShapeInstruction{{ID: "s1", Master: "Start"}},
			Connectors: []ConnectionInstruction{{From: "s1", To: "ghost"}},
		}},
	}
	_, err := b.Generate(context.Background(), "", instr)
	assert.ErrorIs(t, err, diagram.ErrShapeNotFound)
}

func TestModify(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	_, err := b.Generate(ctx, "", flowInstructions())
	require.NoError(t, err)

	newText := "validate and price"
	result, err := b.Modify(ctx, "order-flow", ModifyInstructions{
		AddShapes:      []ShapeInstruction{{ID: "s4", Master: "Decision", Name: "Approved?"}},
		UpdateShapes:   []ShapeUpdate{{Name: "Validate", Text: &newText}},
		AddConnections: []ConnectionInstruction{{From: "Validate", To: "Approved?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ShapesAdded)
	assert.Equal(t, 1, result.ShapesUpdated)
	assert.Equal(t, 1, result.ConnectionsAdded)

	doc, err := b.Document(ctx, "order-flow")
	require.NoError(t, err)
	page, _ := doc.PageAt(0)
	s2, _ := page.Shape("s2")
	assert.Equal(t, newText, s2.Text)
	assert.Len(t, page.Connectors(), 3)
}

func TestModify_DeleteCascadesConnectors(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	_, err := b.Generate(ctx, "", flowInstructions())
	require.NoError(t, err)

	result, err := b.Modify(ctx, "", ModifyInstructions{
		DeleteShapes: []ShapeRef{{ID: "s2"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ShapesDeleted)

	doc, err := b.Document(ctx, "")
	require.NoError(t, err)
	page, _ := doc.PageAt(0)
	assert.Len(t, page.Shapes(), 2)
	assert.Empty(t, page.Connectors(), "connectors touching a deleted shape are removed")
}

func TestModify_ShapeNotFound(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	_, err := b.Generate(ctx, "", flowInstructions())
	require.NoError(t, err)

	_, err = b.Modify(ctx, "", ModifyInstructions{
		DeleteShapes: []ShapeRef{{ID: "ghost"}},
	})
	assert.ErrorIs(t, err, diagram.ErrShapeNotFound)
}

func TestVerifyConnections(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	_, err := b.Generate(ctx, "", flowInstructions())
	require.NoError(t, err)

	result, err := b.VerifyConnections(ctx, "", []ConnectionCheck{
		{From: "Start", To: "Validate"},
		{From: "Validate", To: "Start"}, // reverse direction still counts
		{From: "Start", To: "Done"},
		{From: "Start", To: "ghost"},
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 4)

	assert.True(t, result.Results[0].ConnectionExists)
	assert.True(t, result.Results[0].ShapesValid)
	assert.True(t, result.Results[1].ConnectionExists)
	assert.False(t, result.Results[2].ConnectionExists)
	assert.True(t, result.Results[2].ShapesValid)
	assert.False(t, result.Results[3].ShapesValid)
}

func TestAnalyze(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	_, err := b.Generate(ctx, "", flowInstructions())
	require.NoError(t, err)

	analysis, err := b.Analyze(ctx, "", diagram.AnalysisStructure)
	require.NoError(t, err)
	require.NotNil(t, analysis.Structure)
	assert.Equal(t, 3, analysis.Structure.TotalShapes)

	_, err = b.Analyze(ctx, "", diagram.AnalysisType("sentiment"))
	assert.ErrorIs(t, err, diagram.ErrUnknownAnalysisType)

	_, err = b.Analyze(ctx, "missing", diagram.AnalysisStructure)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestNoActiveDocument(t *testing.T) {
	b := setupBackend(t)
	_, err := b.ActiveDocument(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveDocument)

	_, err = b.Analyze(context.Background(), "", diagram.AnalysisStructure)
	assert.ErrorIs(t, err, ErrNoActiveDocument)
}

func TestSaveLoadRoundTrip_Directory(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	_, err := b.Generate(ctx, "", flowInstructions())
	require.NoError(t, err)

	require.NoError(t, b.SaveFile(ctx, "order-flow"))

	// A fresh backend sharing the directory can load it back.
	fresh, err := NewMemoryBackend(MemoryConfig{DocumentsDir: b.dir, Logger: slog.Default()})
	require.NoError(t, err)
	require.NoError(t, fresh.LoadFile(ctx, "order-flow"))

	info, err := fresh.ActiveDocument(ctx)
	require.NoError(t, err)
	assert.Equal(t, "order-flow", info.Name)
	assert.Equal(t, 1, info.PagesCount)

	assert.ErrorIs(t, fresh.LoadFile(ctx, "missing"), ErrDocumentNotFound)
}

func TestStencils(t *testing.T) {
	s, err := EmbeddedStencils()
	require.NoError(t, err)

	decision := s.Resolve("decision")
	assert.Equal(t, "Decision", decision.Type, "lookup is case-insensitive")
	assert.Greater(t, decision.Width, 0.0)

	unknown := s.Resolve("Teleporter")
	assert.Equal(t, "Teleporter", unknown.Type, "unknown masters keep their name as the type tag")
	assert.Greater(t, unknown.Width, 0.0)

	assert.NotEmpty(t, s.Names())
}
