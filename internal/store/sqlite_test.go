// ABOUTME: Tests for the SQLite store: call log append/list and document round-trips.
// ABOUTME: Runs against :memory: and a t.TempDir file database.

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/drawbridge/internal/diagram"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func testDocument(t *testing.T) *diagram.Document {
	t.Helper()
	doc, err := diagram.BuildDocument("flow", []diagram.PageInput{
		{
			Name: "Main",
			Shapes: []diagram.Shape{
				{ID: "s1", Type: "Start"},
				{ID: "s2", Type: "End", Text: "done"},
			},
			Connectors: []diagram.Connector{{ID: "c1", From: "s1", To: "s2"}},
		},
	})
	require.NoError(t, err)
	return doc
}

func TestAppendAndListCalls(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	for i, method := range []string{"ping", "analyze_diagram", "analyze_diagram"} {
		err := s.Append(ctx, &CallRecord{
			ID:        uuid.New().String(),
			RequestID: "req-" + method,
			Method:    method,
			Routed:    RoutedLocal,
			Code:      0,
			Duration:  25 * time.Millisecond,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	all, err := s.ListCalls(ctx, CallFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "analyze_diagram", all[0].Method, "newest first")
	assert.Equal(t, 25*time.Millisecond, all[0].Duration)

	filtered, err := s.ListCalls(ctx, CallFilter{Method: "ping"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "req-ping", filtered[0].RequestID)

	limited, err := s.ListCalls(ctx, CallFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestAppend_RejectsUnknownRouted(t *testing.T) {
	s := setupTestStore(t)
	err := s.Append(context.Background(), &CallRecord{
		ID:        uuid.New().String(),
		RequestID: "r1",
		Method:    "ping",
		Routed:    "teleported",
	})
	assert.Error(t, err)
}

func TestDocumentRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	doc := testDocument(t)

	require.NoError(t, s.PutDocument(ctx, "flow", doc))

	got, err := s.GetDocument(ctx, "flow")
	require.NoError(t, err)
	assert.Equal(t, "flow", got.Name())
	assert.Equal(t, doc.Summary(), got.Summary())

	page, ok := got.PageAt(0)
	require.True(t, ok)
	s2, ok := page.Shape("s2")
	require.True(t, ok)
	assert.Equal(t, "done", s2.Text)
}

func TestGetDocument_NotFound(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrDocNotFound)
}

func TestPutDocument_Replaces(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutDocument(ctx, "flow", testDocument(t)))

	bigger, err := diagram.BuildDocument("flow", []diagram.PageInput{
		{Name: "Main", Shapes: []diagram.Shape{{ID: "s1"}, {ID: "s2"}, {ID: "s3"}}},
	})
	require.NoError(t, err)
	require.NoError(t, s.PutDocument(ctx, "flow", bigger))

	got, err := s.GetDocument(ctx, "flow")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Summary().Shapes)

	names, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"flow"}, names)
}

func TestFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gateway.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err, "parent directories are created")

	require.NoError(t, s.PutDocument(context.Background(), "flow", testDocument(t)))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	names, err := reopened.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"flow"}, names)
}
