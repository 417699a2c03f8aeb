// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe",
	Short: "Transcribe a scanned PDF to text with the OCR model",
	Long: `Transcribe runs only the OCR stage: the PDF is split into pages, each page
is piped through the OCR container, and the page texts are joined with a
blank line. The output can be reviewed later with "review --text-input".`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, ocrFlagKeys)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		output, _ := cmd.Flags().GetString("output")
		if input == "" {
			return fmt.Errorf("--input is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		doc, err := transcribePDF(cmd.Context(), cfg.OCR, input, os.Stderr)
		if err != nil {
			return err
		}
		if err := writeResult(output, doc.Text, os.Stdout); err != nil {
			return err
		}
		if output != "" {
			fmt.Fprintf(os.Stderr, "Transcribed %d pages to %s\n", doc.PageCount(), output)
		}
		return nil
	},
}

func init() {
	transcribeCmd.Flags().StringP("input", "i", "", "path to the scanned PDF")
	transcribeCmd.Flags().StringP("output", "o", "", "write the text to this file instead of stdout")
	addOCRFlags(transcribeCmd)

	rootCmd.AddCommand(transcribeCmd)
}
