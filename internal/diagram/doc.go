// Package diagram provides the normalized in-memory diagram model: documents,
// pages, shapes, and connectors, independent of any native document format.
//
// The model is pure data with validation. Construction rejects duplicate ids
// and connectors whose endpoints are missing from their page. Traversal walks
// pages in insertion order, then shapes/connectors in insertion order, and is
// stable across repeated walks of the same document.
package diagram
