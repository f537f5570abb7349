// Package assets embeds the static files shipped with the gateway binary:
// the stencil catalog consumed by the automation backend and the method
// reference rendered on the docs page.
package assets

import (
	_ "embed"
)

// StencilsTOML is the stencil catalog: default geometry per master name.
//
//go:embed stencils.toml
var StencilsTOML []byte

// MethodsMarkdown is the method reference served at /docs.
//
//go:embed methods.md
var MethodsMarkdown []byte
