// Package ai holds the AI collaborator integration: the provider contract,
// the Ollama and OpenAI-compatible clients, and the context builder that
// turns a diagram plus conversation history into a bounded prompt payload.
package ai
