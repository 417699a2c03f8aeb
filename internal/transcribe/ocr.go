// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pdiddy/statement-review/internal/container"
	"github.com/pdiddy/statement-review/pkg/types"
)

// OCR defaults, matching the generation settings the Nougat model is tuned for.
const (
	DefaultOCRImage          = "nougat-ocr:latest"
	DefaultOCRModel          = "facebook/nougat-base"
	DefaultMaxNewTokens      = 4096
	DefaultTemperature       = 0.3
	DefaultTopP              = 0.95
	DefaultRepetitionPenalty = 1.2
)

// DefaultOCRConfig returns the OCR settings used when none are configured.
func DefaultOCRConfig() types.OCRConfig {
	return types.OCRConfig{
		Image:             DefaultOCRImage,
		Model:             DefaultOCRModel,
		MaxNewTokens:      DefaultMaxNewTokens,
		Temperature:       DefaultTemperature,
		TopP:              DefaultTopP,
		RepetitionPenalty: DefaultRepetitionPenalty,
	}
}

// PageTranscriber turns one page into text.
type PageTranscriber interface {
	Transcribe(ctx context.Context, p Page) (string, error)
}

// NougatTranscriber pipes each single-page PDF through the OCR container.
// The image reads the PDF on stdin and writes the page text to stdout.
type NougatTranscriber struct {
	runtime container.Runtime
	cfg     types.OCRConfig
}

// NewNougatTranscriber checks that the OCR image exists before returning.
// Unset image, model, token limit, top-p and penalty take the defaults;
// temperature is used as given.
func NewNougatTranscriber(ctx context.Context, rt container.Runtime, cfg types.OCRConfig) (*NougatTranscriber, error) {
	cfg = withDefaults(cfg)
	if err := rt.ImageExists(ctx, cfg.Image); err != nil {
		return nil, fmt.Errorf("OCR image not available in %s: %w", rt.Name(), err)
	}
	return &NougatTranscriber{runtime: rt, cfg: cfg}, nil
}

func withDefaults(cfg types.OCRConfig) types.OCRConfig {
	d := DefaultOCRConfig()
	if cfg.Image == "" {
		cfg.Image = d.Image
	}
	if cfg.Model == "" {
		cfg.Model = d.Model
	}
	if cfg.MaxNewTokens <= 0 {
		cfg.MaxNewTokens = d.MaxNewTokens
	}
	if cfg.TopP == 0 {
		cfg.TopP = d.TopP
	}
	if cfg.RepetitionPenalty == 0 {
		cfg.RepetitionPenalty = d.RepetitionPenalty
	}
	return cfg
}

// Args returns the generation flags passed to the OCR image.
func (n *NougatTranscriber) Args() []string {
	args := []string{
		"--model", n.cfg.Model,
		"--max-new-tokens", strconv.Itoa(n.cfg.MaxNewTokens),
		"--temperature", formatFloat(n.cfg.Temperature),
		"--top-p", formatFloat(n.cfg.TopP),
		"--repetition-penalty", formatFloat(n.cfg.RepetitionPenalty),
	}
	if n.cfg.EOSToken != "" {
		args = append(args, "--eos-token", n.cfg.EOSToken)
	}
	return args
}

// Transcribe runs the OCR image over one page and returns its trimmed
// output. A blank page yields "".
func (n *NougatTranscriber) Transcribe(ctx context.Context, p Page) (string, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return "", fmt.Errorf("opening page %d: %w", p.Number, err)
	}
	defer f.Close()

	var out bytes.Buffer
	if err := n.runtime.Run(ctx, n.cfg.Image, n.Args(), f, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.String()), nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
