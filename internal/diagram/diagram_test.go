// ABOUTME: Tests for document construction, validation, mutation, and traversal.
// ABOUTME: Covers duplicate ids, dangling connectors, cascade removal, and JSON round-trips.

package diagram

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoPageDoc builds the document used across tests: 2 pages, 3 shapes, 1 connector.
func twoPageDoc(t *testing.T) *Document {
	t.Helper()
	doc, err := BuildDocument("flow.vsdx", []PageInput{
		{
			Name: "Page-1",
			Shapes: []Shape{
				{ID: "s1", Type: "Start", Text: "Begin", Properties: map[string]string{"name": "Start"}},
				{ID: "s2", Type: "Process", Text: "Do work"},
			},
			Connectors: []Connector{
				{ID: "c1", From: "s1", To: "s2", Label: "next"},
			},
		},
		{
			Name:   "Page-2",
			Shapes: []Shape{{ID: "s3", Type: "End"}},
		},
	})
	require.NoError(t, err)
	return doc
}

func TestBuildDocument(t *testing.T) {
	doc := twoPageDoc(t)

	sum := doc.Summary()
	assert.Equal(t, 2, sum.Pages)
	assert.Equal(t, 3, sum.Shapes)
	assert.Equal(t, 1, sum.Connectors)

	page, ok := doc.Page("Page-1")
	require.True(t, ok)
	s, ok := page.Shape("s2")
	require.True(t, ok)
	assert.Equal(t, "Do work", s.Text)
}

func TestBuildDocument_DuplicateShapeID(t *testing.T) {
	_, err := BuildDocument("d", []PageInput{
		{Name: "P", Shapes: []Shape{{ID: "a"}, {ID: "a"}}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.Contains(t, err.Error(), `"a"`)
}

func TestBuildDocument_DuplicateConnectorID(t *testing.T) {
	_, err := BuildDocument("d", []PageInput{
		{
			Name:   "P",
			Shapes: []Shape{{ID: "a"}, {ID: "b"}},
			Connectors: []Connector{
				{ID: "c", From: "a", To: "b"},
				{ID: "c", From: "b", To: "a"},
			},
		},
	})
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestBuildDocument_DanglingConnector(t *testing.T) {
	cases := []Connector{
		{ID: "c", From: "missing", To: "a"},
		{ID: "c", From: "a", To: "missing"},
	}
	for _, conn := range cases {
		_, err := BuildDocument("d", []PageInput{
			{Name: "P", Shapes: []Shape{{ID: "a"}}, Connectors: []Connector{conn}},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDanglingConnector)
		assert.Contains(t, err.Error(), `"missing"`)
	}
}

func TestBuildDocument_SameIDAcrossPagesAllowed(t *testing.T) {
	// Ids are unique per page, not per document.
	_, err := BuildDocument("d", []PageInput{
		{Name: "P1", Shapes: []Shape{{ID: "a"}}},
		{Name: "P2", Shapes: []Shape{{ID: "a"}}},
	})
	assert.NoError(t, err)
}

func TestConnectorAcrossPagesRejected(t *testing.T) {
	// Endpoints must be on the connector's own page.
	_, err := BuildDocument("d", []PageInput{
		{Name: "P1", Shapes: []Shape{{ID: "a"}}},
		{Name: "P2", Shapes: []Shape{{ID: "b"}}, Connectors: []Connector{{ID: "c", From: "a", To: "b"}}},
	})
	assert.ErrorIs(t, err, ErrDanglingConnector)
}

func TestTraversal_Stable(t *testing.T) {
	doc := twoPageDoc(t)

	walk := func() []string {
		var ids []string
		doc.EachShape(func(p *Page, s *Shape) bool {
			ids = append(ids, p.Name()+"/"+s.ID)
			return true
		})
		return ids
	}

	first := walk()
	second := walk()
	assert.Equal(t, []string{"Page-1/s1", "Page-1/s2", "Page-2/s3"}, first)
	assert.Equal(t, first, second)
}

func TestTraversal_EarlyStop(t *testing.T) {
	doc := twoPageDoc(t)

	var seen int
	doc.EachShape(func(p *Page, s *Shape) bool {
		seen++
		return seen < 2
	})
	assert.Equal(t, 2, seen)
}

func TestRemoveShape_CascadesConnectors(t *testing.T) {
	doc := twoPageDoc(t)
	page, _ := doc.Page("Page-1")

	removed, err := page.RemoveShape("s1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok := page.Shape("s1")
	assert.False(t, ok)
	assert.Empty(t, page.Connectors())

	_, err = page.RemoveShape("s1")
	assert.ErrorIs(t, err, ErrShapeNotFound)
}

func TestShapeByName(t *testing.T) {
	doc := twoPageDoc(t)
	page, _ := doc.Page("Page-1")

	s, ok := page.ShapeByName("Start")
	require.True(t, ok)
	assert.Equal(t, "s1", s.ID)

	// Falls back to id when no name property is set.
	s, ok = page.ShapeByName("s2")
	require.True(t, ok)
	assert.Equal(t, "Do work", s.Text)

	_, ok = page.ShapeByName("nope")
	assert.False(t, ok)
}

func TestDocument_JSONRoundTrip(t *testing.T) {
	doc := twoPageDoc(t)

	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	var back Document
	require.NoError(t, json.Unmarshal(raw, &back))

	assert.Equal(t, doc.Name(), back.Name())
	assert.Equal(t, doc.Summary(), back.Summary())

	raw2, err := json.Marshal(&back)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(raw2))
}

func TestDocument_UnmarshalRevalidates(t *testing.T) {
	raw := []byte(`{"name":"bad","pages":[{"name":"P","shapes":[{"id":"a"}],"connectors":[{"id":"c","from":"a","to":"ghost"}]}]}`)
	var doc Document
	err := json.Unmarshal(raw, &doc)
	assert.ErrorIs(t, err, ErrDanglingConnector)
}

func TestAddPageAndMutate(t *testing.T) {
	doc, err := BuildDocument("d", nil)
	require.NoError(t, err)

	page := doc.AddPage("New")
	require.NoError(t, page.AddShape(&Shape{ID: "x", X: 1, Y: 2}))
	require.NoError(t, page.AddShape(&Shape{ID: "y"}))
	require.NoError(t, page.AddConnector(&Connector{ID: "c", From: "x", To: "y"}))

	err = page.AddConnector(&Connector{ID: "c2", From: "x", To: "ghost"})
	assert.ErrorIs(t, err, ErrDanglingConnector)

	sum := doc.Summary()
	assert.Equal(t, Summary{Pages: 1, Shapes: 2, Connectors: 1}, sum)
}
