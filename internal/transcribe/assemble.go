// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package transcribe turns a scanned PDF into a SourceDocument: it splits the
// PDF into single pages, runs each page through the OCR model, and joins the
// page texts in order.
package transcribe

import (
	"strings"

	"github.com/pdiddy/statement-review/pkg/types"
)

// PageSeparator sits between consecutive page texts.
const PageSeparator = "\n\n"

// Assemble joins page texts in order. A single page yields its text exactly;
// no pages yields an empty document.
func Assemble(pages []string) types.SourceDocument {
	kept := make([]string, len(pages))
	copy(kept, pages)
	return types.SourceDocument{
		Pages: kept,
		Text:  strings.Join(kept, PageSeparator),
	}
}
