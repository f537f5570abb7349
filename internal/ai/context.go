// ABOUTME: Builds the bounded diagram context sent to the AI collaborator.
// ABOUTME: Token budget via tiktoken cl100k_base; deterministic first-N truncation.

package ai

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/2389/drawbridge/internal/diagram"
)

// DefaultContextBudget is the token budget used when configuration leaves it
// unset.
const DefaultContextBudget = 2048

// Tokenizer is loaded once; when the encoding cannot load we fall back to a
// character estimate.
var (
	tokenizer     *tiktoken.Tiktoken
	tokenizerErr  error
	tokenizerOnce sync.Once
)

func initTokenizer() {
	tokenizerOnce.Do(func() {
		tokenizer, tokenizerErr = tiktoken.GetEncoding("cl100k_base")
	})
}

// CountTokens counts BPE tokens in text, estimating one token per four
// characters when the tokenizer is unavailable.
func CountTokens(text string) int {
	initTokenizer()
	if tokenizerErr != nil || tokenizer == nil {
		return (len(text) + 3) / 4
	}
	return len(tokenizer.Encode(text, nil, nil))
}

// ContextShape is one shape in the context enumeration.
type ContextShape struct {
	Page string `json:"page"`
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
	Text string `json:"text,omitempty"`
}

// ContextConnector is one connector in the context enumeration.
type ContextConnector struct {
	Page  string `json:"page"`
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// ContextPayload is the bounded structured summary of a document plus the
// verbatim conversation turns. Truncated is set whenever the enumeration or
// the history was cut to fit the budget. Tokens is the cost of the rendered
// diagram context.
type ContextPayload struct {
	Document   string             `json:"document"`
	Summary    diagram.Summary    `json:"summary"`
	Shapes     []ContextShape     `json:"shapes"`
	Connectors []ContextConnector `json:"connectors"`
	History    []Message          `json:"history,omitempty"`
	Truncated  bool               `json:"truncated"`
	Tokens     int                `json:"tokens"`
}

// BuildContext assembles a context payload for doc within a token budget.
// Shapes then connectors are enumerated first-N in traversal order (pages in
// document order, shapes and connectors in insertion order) so the same
// document always produces the same payload. History turns are dropped
// oldest-first, never split, when the remaining budget requires it. A nil
// doc produces a payload carrying only the history.
func BuildContext(doc *diagram.Document, history []Message, budget int) ContextPayload {
	if budget <= 0 {
		budget = DefaultContextBudget
	}

	payload := ContextPayload{}
	if doc != nil {
		payload.Document = doc.Name()
		payload.Summary = doc.Summary()

		used := CountTokens(payload.header())

		doc.EachShape(func(p *diagram.Page, s *diagram.Shape) bool {
			cs := ContextShape{Page: p.Name(), ID: s.ID, Type: s.Type, Text: s.Text}
			if name := s.DisplayName(); name != s.ID {
				cs.Name = name
			}
			cost := CountTokens(shapeLine(cs))
			if used+cost > budget {
				payload.Truncated = true
				return false
			}
			used += cost
			payload.Shapes = append(payload.Shapes, cs)
			return true
		})

		if !payload.Truncated {
			doc.EachConnector(func(p *diagram.Page, c *diagram.Connector) bool {
				cc := ContextConnector{Page: p.Name(), From: c.From, To: c.To, Label: c.Label}
				cost := CountTokens(connectorLine(cc))
				if used+cost > budget {
					payload.Truncated = true
					return false
				}
				used += cost
				payload.Connectors = append(payload.Connectors, cc)
				return true
			})
		}
		payload.Tokens = used
	}

	// Oldest turns go first; drop from the front until the remainder fits.
	remaining := budget - payload.Tokens
	kept := history
	for len(kept) > 0 {
		total := 0
		for _, m := range kept {
			total += CountTokens(m.Content)
		}
		if total <= remaining {
			break
		}
		kept = kept[1:]
		payload.Truncated = true
	}
	if len(kept) > 0 {
		payload.History = append([]Message(nil), kept...)
	}

	return payload
}

func (p ContextPayload) header() string {
	return fmt.Sprintf("Document %q: %d pages, %d shapes, %d connectors.\n",
		p.Document, p.Summary.Pages, p.Summary.Shapes, p.Summary.Connectors)
}

func shapeLine(s ContextShape) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- [%s] %s", s.Page, s.ID)
	if s.Type != "" {
		fmt.Fprintf(&b, " (%s)", s.Type)
	}
	if s.Name != "" {
		fmt.Fprintf(&b, " name=%q", s.Name)
	}
	if s.Text != "" {
		fmt.Fprintf(&b, " text=%q", s.Text)
	}
	b.WriteString("\n")
	return b.String()
}

func connectorLine(c ContextConnector) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- [%s] %s -> %s", c.Page, c.From, c.To)
	if c.Label != "" {
		fmt.Fprintf(&b, " %q", c.Label)
	}
	b.WriteString("\n")
	return b.String()
}

// Render produces the system-message text for the payload. History turns are
// not rendered here; they are appended to the conversation as-is.
func (p ContextPayload) Render() string {
	var b strings.Builder
	b.WriteString("You are a diagram assistant. The user is working on the following diagram.\n\n")
	if p.Document == "" {
		b.WriteString("No document is open.\n")
		return b.String()
	}
	b.WriteString(p.header())
	if len(p.Shapes) > 0 {
		b.WriteString("Shapes:\n")
		for _, s := range p.Shapes {
			b.WriteString(shapeLine(s))
		}
	}
	if len(p.Connectors) > 0 {
		b.WriteString("Connectors:\n")
		for _, c := range p.Connectors {
			b.WriteString(connectorLine(c))
		}
	}
	if p.Truncated {
		b.WriteString("(listing truncated to fit the context budget)\n")
	}
	return b.String()
}

// Messages assembles the full conversation for the provider: rendered
// context as the system message, kept history, then the question.
func (p ContextPayload) Messages(question string) []Message {
	msgs := make([]Message, 0, len(p.History)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: p.Render()})
	msgs = append(msgs, p.History...)
	msgs = append(msgs, Message{Role: RoleUser, Content: question})
	return msgs
}
