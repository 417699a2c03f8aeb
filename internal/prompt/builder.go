// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prompt renders reviewer personas and document text into review
// requests. Rendering is pure: the same panel and input always produce the
// same requests.
package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/statement-review/pkg/types"
)

// ErrMissingContext is returned when the aggregator has no reviews to combine.
var ErrMissingContext = errors.New("missing context")

// Builder holds a validated panel and its compiled templates.
type Builder struct {
	panel     Panel
	templates map[string]*template.Template
	order     map[string]int
}

// NewBuilder validates the panel and compiles every persona template.
func NewBuilder(panel Panel) (*Builder, error) {
	if err := panel.Validate(); err != nil {
		return nil, err
	}
	b := &Builder{
		panel:     panel,
		templates: make(map[string]*template.Template, len(panel.Specialists)+1),
		order:     make(map[string]int, len(panel.Specialists)),
	}
	for i, s := range panel.Specialists {
		b.order[s.Key] = i
	}
	for _, s := range append(append([]Persona(nil), panel.Specialists...), panel.Aggregator) {
		tmpl, err := template.New(s.Key).Option("missingkey=error").Parse(s.Template)
		if err != nil {
			return nil, fmt.Errorf("persona %q: parsing template: %w", s.Key, err)
		}
		b.templates[s.Key] = tmpl
	}
	return b, nil
}

// Panel returns the builder's panel.
func (b *Builder) Panel() Panel {
	return b.panel
}

// Specialist renders the review request for one specialist persona. The
// document text is embedded verbatim; an empty document still yields a
// well-formed request.
func (b *Builder) Specialist(p Persona, doc types.SourceDocument) (types.ReviewRequest, error) {
	if _, ok := b.order[p.Key]; !ok {
		return types.ReviewRequest{}, fmt.Errorf("persona %q is not a specialist on this panel", p.Key)
	}
	task, err := b.render(p.Key, struct{ Document string }{Document: doc.Text})
	if err != nil {
		return types.ReviewRequest{}, err
	}
	return b.request(p, task), nil
}

// Aggregator renders the aggregator request from the labeled specialist reviews.
func (b *Builder) Aggregator(in AggregationInput) (types.ReviewRequest, error) {
	if len(in.Sections) == 0 {
		return types.ReviewRequest{}, fmt.Errorf("aggregator: %w: no specialist reviews", ErrMissingContext)
	}
	agg := b.panel.Aggregator
	task, err := b.render(agg.Key, struct{ Reviews string }{Reviews: in.String()})
	if err != nil {
		return types.ReviewRequest{}, err
	}
	return b.request(agg, task), nil
}

// Result wraps generated text with the persona's provenance.
func (b *Builder) Result(p Persona, text string) types.ReviewResult {
	return types.ReviewResult{
		Persona: p.Key,
		Label:   p.Label,
		Role:    p.Role,
		Model:   b.panel.model(p),
		Text:    text,
	}
}

func (b *Builder) request(p Persona, task string) types.ReviewRequest {
	return types.ReviewRequest{
		Persona: p.Key,
		Role:    p.Role,
		Goal:    p.Goal,
		Task:    task,
		Model:   b.panel.model(p),
	}
}

func (b *Builder) render(key string, data any) (string, error) {
	var buf bytes.Buffer
	if err := b.templates[key].Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %q template: %w", key, err)
	}
	return buf.String(), nil
}

// Section is one labeled specialist review inside the aggregation input.
type Section struct {
	Label string
	Text  string
}

// AggregationInput is the labeled concatenation of specialist reviews.
type AggregationInput struct {
	Sections []Section
}

// NewAggregationInput orders results by their persona's position on the
// panel, so the input does not depend on which review finished first.
// Results for personas not on the panel are dropped.
func (b *Builder) NewAggregationInput(results []types.ReviewResult) AggregationInput {
	slots := make([]*types.ReviewResult, len(b.panel.Specialists))
	for i := range results {
		if idx, ok := b.order[results[i].Persona]; ok {
			slots[idx] = &results[i]
		}
	}
	var in AggregationInput
	for idx, r := range slots {
		if r == nil {
			continue
		}
		in.Sections = append(in.Sections, Section{
			Label: b.panel.Specialists[idx].Label,
			Text:  r.Text,
		})
	}
	return in
}

// String renders each section as "Label:\ntext", separated by blank lines.
func (in AggregationInput) String() string {
	parts := make([]string, len(in.Sections))
	for i, s := range in.Sections {
		parts[i] = s.Label + ":\n" + s.Text
	}
	return strings.Join(parts, "\n\n")
}
