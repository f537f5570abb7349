// ABOUTME: Stencil catalog mapping master names to default shape geometry.
// ABOUTME: Loaded from the embedded TOML catalog; unknown masters get the default size.

package automation

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/2389/drawbridge/internal/assets"
)

// Master is one stencil entry: the type tag and default geometry a shape
// gets when an instruction names the master without explicit size.
type Master struct {
	Type   string  `toml:"type"`
	Width  float64 `toml:"width"`
	Height float64 `toml:"height"`
}

// stencilFile is the on-disk shape of the catalog.
type stencilFile struct {
	Default Master            `toml:"default"`
	Masters map[string]Master `toml:"masters"`
}

// Stencils resolves master names case-insensitively.
type Stencils struct {
	def     Master
	masters map[string]Master
}

// LoadStencils parses a TOML catalog.
func LoadStencils(raw []byte) (*Stencils, error) {
	var file stencilFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing stencil catalog: %w", err)
	}
	if file.Default.Width <= 0 || file.Default.Height <= 0 {
		return nil, fmt.Errorf("stencil catalog: default master must have positive geometry")
	}

	s := &Stencils{def: file.Default, masters: make(map[string]Master, len(file.Masters))}
	for name, m := range file.Masters {
		if m.Type == "" {
			m.Type = name
		}
		s.masters[strings.ToLower(name)] = m
	}
	return s, nil
}

// EmbeddedStencils loads the catalog shipped with the binary.
func EmbeddedStencils() (*Stencils, error) {
	return LoadStencils(assets.StencilsTOML)
}

// Resolve returns the master for a name. Unknown names get the default
// geometry with the requested name as the type tag, so callers can use any
// vocabulary without the catalog becoming a gatekeeper.
func (s *Stencils) Resolve(name string) Master {
	if m, ok := s.masters[strings.ToLower(name)]; ok {
		return m
	}
	m := s.def
	if name != "" {
		m.Type = name
	}
	return m
}

// Names returns the catalog's master names, unsorted.
func (s *Stencils) Names() []string {
	out := make([]string, 0, len(s.masters))
	for name := range s.masters {
		out = append(out, name)
	}
	return out
}
