// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/statement-review/internal/archive"
	"github.com/pdiddy/statement-review/internal/completion"
	"github.com/pdiddy/statement-review/internal/container"
	"github.com/pdiddy/statement-review/internal/prompt"
	"github.com/pdiddy/statement-review/internal/review"
	"github.com/pdiddy/statement-review/internal/transcribe"
	"github.com/pdiddy/statement-review/pkg/types"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Transcribe a vendor's statement and produce the advisory report",
	Long: `Review runs the full pipeline. Each page of the PDF is transcribed by the
OCR model, the lawyer, buyer's agent and conveyancer review the text
concurrently, and the principal lawyer combines their reviews.

The report goes to stdout, or to --output. With --text-input the OCR stage is
skipped and the given text file is reviewed as is.

Failure policy: fail-fast (default) aborts on the first failed review;
partial continues when at least --min-specialists reviews succeeded.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		keys := map[string]string{
			"policy":          "review.policy",
			"min-specialists": "review.min_specialists",
			"max-retries":     "review.max_retries",
			"panel":           "review.panel_file",
			"archive":         "archive.enabled",
			"model":           "completion.default_model",
		}
		for k, v := range ocrFlagKeys {
			keys[k] = v
		}
		return bindFlags(cmd, keys)
	},
	RunE: runReview,
}

func runReview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	input, _ := cmd.Flags().GetString("input")
	textInput, _ := cmd.Flags().GetString("text-input")
	output, _ := cmd.Flags().GetString("output")

	if (input == "") == (textInput == "") {
		return fmt.Errorf("exactly one of --input or --text-input is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The completion client is validated before any OCR work starts.
	client, err := completion.New(cfg.Completion, completion.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	panel, err := loadPanel(cfg)
	if err != nil {
		return err
	}
	builder, err := prompt.NewBuilder(panel)
	if err != nil {
		return err
	}

	source := input
	var doc types.SourceDocument
	if textInput != "" {
		source = textInput
		doc, err = readTextDocument(textInput)
	} else {
		doc, err = transcribePDF(ctx, cfg.OCR, input, cmd.ErrOrStderr())
	}
	if err != nil {
		return err
	}

	orch := review.New(client, builder,
		review.WithConfig(cfg.Review),
		review.WithLogger(slog.Default()),
		review.WithStateObserver(func(from, to types.RunState) {
			slog.Debug("run state", "from", string(from), "state", string(to))
		}),
	)
	report, err := orch.Run(ctx, doc)
	if err != nil {
		return err
	}

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	if len(report.Missing) > 0 {
		fmt.Fprintf(stderr, "Warning: report produced without %v\n", report.Missing)
	}

	if err := writeResult(output, report.Final.Text, stdout); err != nil {
		return err
	}
	if output != "" {
		fmt.Fprintf(stderr, "Reviewed result saved to %s\n", output)
	}

	// An archive failure is reported but does not fail the run.
	if cfg.Archive.Enabled {
		id, err := archiveRun(ctx, cfg.Archive, source, doc, report)
		if err != nil {
			fmt.Fprintf(stderr, "Warning: run not archived: %v\n", err)
			return nil
		}
		fmt.Fprintf(stderr, "Archived run %s\n", id)
	}
	return nil
}

// readTextDocument loads an already transcribed document as a single page.
func readTextDocument(path string) (types.SourceDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.SourceDocument{}, fmt.Errorf("reading text input: %w", err)
	}
	return transcribe.Assemble([]string{string(data)}), nil
}

// transcribePDF splits the PDF into pages and runs each through the OCR
// container, reporting progress to progress.
func transcribePDF(ctx context.Context, ocr types.OCRConfig, pdfPath string, progress io.Writer) (types.SourceDocument, error) {
	rt, err := container.DetectRuntime(ctx)
	if err != nil {
		return types.SourceDocument{}, err
	}
	t, err := transcribe.NewNougatTranscriber(ctx, rt, ocr)
	if err != nil {
		return types.SourceDocument{}, err
	}

	workDir, err := os.MkdirTemp("", "statement-review-*")
	if err != nil {
		return types.SourceDocument{}, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	pages, err := transcribe.SplitPages(pdfPath, filepath.Join(workDir, "pages"))
	if err != nil {
		return types.SourceDocument{}, err
	}
	slog.Info("transcribing document", "path", pdfPath, "pages", len(pages), "runtime", rt.Name())
	return transcribe.Document(ctx, t, pages, progress, slog.Default())
}

// writeResult writes text to path, or to stdout when path is empty.
func writeResult(path, text string, stdout io.Writer) error {
	if path == "" {
		_, err := fmt.Fprintln(stdout, text)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

func archiveRun(ctx context.Context, cfg types.ArchiveConfig, source string, doc types.SourceDocument, report *types.Report) (string, error) {
	store, err := archive.Open(cfg)
	if err != nil {
		return "", err
	}
	defer store.Close()

	rec, err := store.Save(ctx, source, doc, report)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

func addReviewFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("input", "i", "", "path to the scanned PDF")
	cmd.Flags().String("text-input", "", "review an already transcribed text file instead of a PDF")
	cmd.Flags().StringP("output", "o", "", "write the report to this file instead of stdout")
	cmd.Flags().String("policy", string(types.PolicyFailFast), "failure policy: fail-fast or partial")
	cmd.Flags().Int("min-specialists", 2, "fewest successful specialist reviews the partial policy accepts")
	cmd.Flags().Int("max-retries", 2, "retries per review call on transport failures")
	cmd.Flags().String("panel", "", "YAML file replacing the built-in reviewer panel")
	cmd.Flags().String("model", "", "default completion model for personas that name none")
	cmd.Flags().Bool("archive", false, "record the run in the history database")
	addOCRFlags(cmd)
}

func init() {
	addReviewFlags(reviewCmd)
	rootCmd.AddCommand(reviewCmd)
}
