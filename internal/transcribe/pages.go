// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package transcribe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Page is one single-page PDF cut from the source document.
type Page struct {
	// Number is 1-based.
	Number int
	Path   string
}

// SplitPages validates the PDF at pdfPath in relaxed mode, writes an
// optimized copy to workDir and splits it into one file per page. Pages are
// returned in document order.
func SplitPages(pdfPath, workDir string) ([]Page, error) {
	if _, err := os.Stat(pdfPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating work directory %s: %w", workDir, err)
	}

	optimized := filepath.Join(workDir, "source.pdf")
	if err := optimizePDF(pdfPath, optimized); err != nil {
		return nil, fmt.Errorf("%w: validating %s: %w", ErrExtraction, pdfPath, err)
	}

	count, err := api.PageCountFile(optimized)
	if err != nil {
		return nil, fmt.Errorf("%w: counting pages: %w", ErrExtraction, err)
	}
	if count == 0 {
		return nil, nil
	}
	if err := api.SplitFile(optimized, workDir, 1, nil); err != nil {
		return nil, fmt.Errorf("%w: splitting %s: %w", ErrExtraction, pdfPath, err)
	}

	base := strings.TrimSuffix(optimized, filepath.Ext(optimized))
	pages := make([]Page, count)
	for i := range pages {
		path := fmt.Sprintf("%s_%d.pdf", base, i+1)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: page %d missing after split: %w", ErrExtraction, i+1, err)
		}
		pages[i] = Page{Number: i + 1, Path: path}
	}
	return pages, nil
}

func optimizePDF(inPath, outPath string) error {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return api.OptimizeFile(inPath, outPath, cfg)
}
