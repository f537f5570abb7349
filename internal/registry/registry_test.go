// ABOUTME: Tests for registry build, lookup, and coarse parameter validation.
// ABOUTME: Covers locality resolution, duplicate names, and kind mismatches.

package registry

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/drawbridge/internal/envelope"
)

func noopHandler(ctx context.Context, req *envelope.Request) (any, error) {
	return map[string]any{"ok": true}, nil
}

func alwaysLocal(Domain) Locality { return LocalityLocal }

func testTable() []MethodSpec {
	return []MethodSpec{
		{Name: "ping", Domain: DomainSystem, Handler: noopHandler},
		{
			Name:    "analyze_diagram",
			Domain:  DomainAutomation,
			Handler: noopHandler,
			Params: []Field{
				{Name: "analysis_type", Kind: KindString, Required: true},
				{Name: "document", Kind: KindString},
			},
		},
		{
			Name:    "ask_diagram_ai",
			Domain:  DomainAI,
			Handler: noopHandler,
			Params: []Field{
				{Name: "question", Kind: KindString, Required: true},
				{Name: "history", Kind: KindList},
				{Name: "temperature", Kind: KindNumber},
				{Name: "options", Kind: KindObject},
			},
		},
	}
}

func TestBuild_ResolvesLocality(t *testing.T) {
	reg, err := Build(slog.Default(), testTable(), func(d Domain) Locality {
		if d == DomainAutomation {
			return LocalityRemote
		}
		return LocalityLocal
	})
	require.NoError(t, err)

	ping, err := reg.Lookup("ping")
	require.NoError(t, err)
	assert.Equal(t, LocalityLocal, ping.Locality)

	analyze, err := reg.Lookup("analyze_diagram")
	require.NoError(t, err)
	assert.Equal(t, LocalityRemote, analyze.Locality)

	ask, err := reg.Lookup("ask_diagram_ai")
	require.NoError(t, err)
	assert.Equal(t, LocalityLocal, ask.Locality)
}

func TestBuild_Rejects(t *testing.T) {
	dup := append(testTable(), MethodSpec{Name: "ping", Domain: DomainSystem, Handler: noopHandler})
	_, err := Build(slog.Default(), dup, alwaysLocal)
	assert.ErrorIs(t, err, ErrDuplicateMethod)

	noHandler := []MethodSpec{{Name: "x", Domain: DomainSystem}}
	_, err = Build(slog.Default(), noHandler, alwaysLocal)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no handler")

	badDomain := []MethodSpec{{Name: "x", Domain: "mystery", Handler: noopHandler}}
	_, err = Build(slog.Default(), badDomain, alwaysLocal)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown domain")
}

func TestBuild_RemoteWithoutHandlerAllowed(t *testing.T) {
	table := []MethodSpec{{Name: "fwd", Domain: DomainAutomation}}
	reg, err := Build(slog.Default(), table, func(Domain) Locality { return LocalityRemote })
	require.NoError(t, err)

	spec, err := reg.Lookup("fwd")
	require.NoError(t, err)
	assert.Nil(t, spec.Handler)
}

func TestLookup_NotFound(t *testing.T) {
	reg, err := Build(slog.Default(), testTable(), alwaysLocal)
	require.NoError(t, err)

	_, err = reg.Lookup("no_such_method")
	assert.ErrorIs(t, err, ErrMethodNotFound)
}

func TestMethods_StableOrder(t *testing.T) {
	reg, err := Build(slog.Default(), testTable(), alwaysLocal)
	require.NoError(t, err)

	var names []string
	for _, spec := range reg.Methods() {
		names = append(names, spec.Name)
	}
	assert.Equal(t, []string{"ping", "analyze_diagram", "ask_diagram_ai"}, names)
}

func TestValidateParams(t *testing.T) {
	reg, err := Build(slog.Default(), testTable(), alwaysLocal)
	require.NoError(t, err)

	ask, err := reg.Lookup("ask_diagram_ai")
	require.NoError(t, err)

	cases := []struct {
		name    string
		params  map[string]any
		wantErr string
	}{
		{"minimal valid", map[string]any{"question": "what?"}, ""},
		{
			"all fields valid",
			map[string]any{
				"question":    "what?",
				"history":     []any{map[string]any{"role": "user"}},
				"temperature": 0.7,
				"options":     map[string]any{"seed": 1.0},
			},
			"",
		},
		{"missing required", map[string]any{}, "missing required field"},
		{"wrong kind string", map[string]any{"question": 42.0}, "must be a string"},
		{"wrong kind list", map[string]any{"question": "q", "history": "nope"}, "must be a list"},
		{"wrong kind number", map[string]any{"question": "q", "temperature": "hot"}, "must be a number"},
		{"wrong kind object", map[string]any{"question": "q", "options": []any{}}, "must be a object"},
		{"null value", map[string]any{"question": nil}, "must not be null"},
		{"unknown field ignored", map[string]any{"question": "q", "mystery": 1.0}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ask.ValidateParams(tc.params)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)

			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestValidateParams_EveryMethodMinimal(t *testing.T) {
	// Every method's documented minimal params must validate.
	reg, err := Build(slog.Default(), testTable(), alwaysLocal)
	require.NoError(t, err)

	minimal := map[string]map[string]any{
		"ping":            {},
		"analyze_diagram": {"analysis_type": "structure"},
		"ask_diagram_ai":  {"question": "q"},
	}

	for _, spec := range reg.Methods() {
		params, ok := minimal[spec.Name]
		require.True(t, ok, "no minimal params for %s", spec.Name)
		assert.NoError(t, spec.ValidateParams(params), "method %s", spec.Name)
	}
}
