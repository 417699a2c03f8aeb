// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pdiddy/statement-review/pkg/types"
)

// ErrExtraction classifies any failure to turn the PDF into text.
var ErrExtraction = errors.New("extraction failure")

// PageError reports the page whose transcription failed.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("%v: page %d: %v", ErrExtraction, e.Page, e.Err)
}

func (e *PageError) Unwrap() []error { return []error{ErrExtraction, e.Err} }

// Document transcribes pages one at a time in order and assembles the
// result. Progress lines go to progress when it is non-nil. The first
// failing page aborts the run; a blank page is kept as empty text.
func Document(ctx context.Context, t PageTranscriber, pages []Page, progress io.Writer, logger *slog.Logger) (types.SourceDocument, error) {
	if logger == nil {
		logger = slog.Default()
	}

	texts := make([]string, 0, len(pages))
	for i, p := range pages {
		if err := ctx.Err(); err != nil {
			return types.SourceDocument{}, &PageError{Page: p.Number, Err: err}
		}
		if progress != nil {
			fmt.Fprintf(progress, "Processing page %d/%d\n", i+1, len(pages))
		}

		start := time.Now()
		text, err := t.Transcribe(ctx, p)
		if err != nil {
			return types.SourceDocument{}, &PageError{Page: p.Number, Err: err}
		}
		if text == "" {
			logger.WarnContext(ctx, "page transcribed to empty text", "page", p.Number)
		}
		logger.DebugContext(ctx, "page transcribed",
			"page", p.Number,
			"chars", len(text),
			"duration_ms", time.Since(start).Milliseconds())
		texts = append(texts, text)
	}
	return Assemble(texts), nil
}
