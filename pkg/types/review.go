// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// SourceDocument is the transcribed text of a disclosure document,
// assembled page by page. It is built once per run and read-only afterwards.
type SourceDocument struct {
	// Pages holds the per-page transcriptions in page order.
	Pages []string `json:"pages" yaml:"pages"`

	// Text is the pages joined with a blank line.
	Text string `json:"text" yaml:"text"`
}

// PageCount returns the number of pages in the document.
func (d SourceDocument) PageCount() int {
	return len(d.Pages)
}

// ReviewRequest is one call to the completion service.
type ReviewRequest struct {
	// Persona is the panel key of the reviewer that issues the request.
	Persona string `json:"persona" yaml:"persona"`

	Role string `json:"role" yaml:"role"`
	Goal string `json:"goal" yaml:"goal"`

	// Task embeds the full source text, or the specialist outputs for the
	// aggregator, verbatim.
	Task string `json:"task" yaml:"task"`

	// Model identifies the remote model variant.
	Model string `json:"model" yaml:"model"`
}

// ReviewResult is the generated text of one review with its provenance.
type ReviewResult struct {
	Persona string `json:"persona" yaml:"persona"`
	Label   string `json:"label" yaml:"label"`
	Role    string `json:"role" yaml:"role"`
	Model   string `json:"model" yaml:"model"`
	Text    string `json:"text" yaml:"text"`
}

// Report is the terminal value of a review run.
type Report struct {
	// Final is the aggregator's review; its Text is the advisory report.
	Final ReviewResult `json:"final" yaml:"final"`

	// Specialists are the reviews that fed the aggregator, in panel order.
	Specialists []ReviewResult `json:"specialists" yaml:"specialists"`

	// Missing lists specialist personas dropped under the partial policy.
	Missing []string `json:"missing,omitempty" yaml:"missing,omitempty"`

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

// RunState is the lifecycle state of a single review run.
type RunState string

const (
	StateIdle                RunState = "idle"
	StateSpecialistsInFlight RunState = "specialists_in_flight"
	StateSpecialistsComplete RunState = "specialists_complete"
	StateAggregatorInFlight  RunState = "aggregator_in_flight"
	StateDone                RunState = "done"
	StateFailed              RunState = "failed"
)

// RunRecord is an archived, successful review run.
type RunRecord struct {
	// ID is derived from the document hash and the finish time.
	ID string `json:"id" yaml:"id"`

	// Source is the input path the driver was given.
	Source string `json:"source" yaml:"source"`

	// DocumentHash is the hex SHA-256 of the source document text.
	DocumentHash string `json:"document_hash" yaml:"document_hash"`

	PageCount int    `json:"page_count" yaml:"page_count"`
	Report    Report `json:"report" yaml:"report"`
}
