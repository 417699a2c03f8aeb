// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/statement-review/internal/completion"
	"github.com/pdiddy/statement-review/internal/prompt"
	"github.com/pdiddy/statement-review/internal/review"
	"github.com/pdiddy/statement-review/internal/secrets"
	"github.com/pdiddy/statement-review/internal/transcribe"
	"github.com/pdiddy/statement-review/pkg/types"
)

func setDefaults() {
	viper.SetDefault("completion.base_url", completion.DefaultBaseURL)
	viper.SetDefault("completion.api_version", completion.DefaultAPIVersion)
	viper.SetDefault("completion.max_tokens", completion.DefaultMaxTokens)
	viper.SetDefault("completion.timeout", completion.DefaultTimeout)
	viper.SetDefault("completion.user_agent", "statement-review/"+version)

	ocr := transcribe.DefaultOCRConfig()
	viper.SetDefault("ocr.image", ocr.Image)
	viper.SetDefault("ocr.model", ocr.Model)
	viper.SetDefault("ocr.max_new_tokens", ocr.MaxNewTokens)
	viper.SetDefault("ocr.temperature", ocr.Temperature)
	viper.SetDefault("ocr.top_p", ocr.TopP)
	viper.SetDefault("ocr.repetition_penalty", ocr.RepetitionPenalty)

	rc := review.DefaultConfig()
	viper.SetDefault("review.policy", string(rc.Policy))
	viper.SetDefault("review.min_specialists", rc.MinSpecialists)
	viper.SetDefault("review.max_retries", rc.MaxRetries)

	viper.SetDefault("archive.dir", defaultArchiveDir())
	viper.SetDefault("secrets_dir", ".secrets")
}

func defaultArchiveDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".statement-review"
	}
	return filepath.Join(home, ".local", "share", "statement-review")
}

// bindFlags binds the named flags of cmd to viper keys. Binding happens when
// the command runs so that commands sharing a key do not overwrite each
// other's bindings.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for flag, key := range keys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			return fmt.Errorf("unknown flag %q", flag)
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %q: %w", flag, err)
		}
	}
	return nil
}

var ocrFlagKeys = map[string]string{
	"ocr-image":          "ocr.image",
	"ocr-model":          "ocr.model",
	"max-new-tokens":     "ocr.max_new_tokens",
	"eos-token":          "ocr.eos_token",
	"temperature":        "ocr.temperature",
	"top-p":              "ocr.top_p",
	"repetition-penalty": "ocr.repetition_penalty",
}

func addOCRFlags(cmd *cobra.Command) {
	d := transcribe.DefaultOCRConfig()
	cmd.Flags().String("ocr-image", d.Image, "container image that runs the OCR model")
	cmd.Flags().String("ocr-model", d.Model, "OCR model name or path inside the image")
	cmd.Flags().Int("max-new-tokens", d.MaxNewTokens, "maximum tokens generated per page")
	cmd.Flags().String("eos-token", "", "override the end-of-sequence marker")
	cmd.Flags().Float64("temperature", d.Temperature, "OCR sampling temperature")
	cmd.Flags().Float64("top-p", d.TopP, "OCR nucleus sampling threshold")
	cmd.Flags().Float64("repetition-penalty", d.RepetitionPenalty, "OCR repetition penalty")
}

// loadConfig reads the effective configuration from viper.
func loadConfig() (types.PipelineConfig, error) {
	cfg := types.PipelineConfig{
		Completion: types.CompletionConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("completion.timeout"),
				UserAgent: viper.GetString("completion.user_agent"),
			},
			APIKey:       viper.GetString("completion.api_key"),
			BaseURL:      viper.GetString("completion.base_url"),
			APIVersion:   viper.GetString("completion.api_version"),
			MaxTokens:    viper.GetInt("completion.max_tokens"),
			DefaultModel: viper.GetString("completion.default_model"),
		},
		OCR: types.OCRConfig{
			Image:             viper.GetString("ocr.image"),
			Model:             viper.GetString("ocr.model"),
			MaxNewTokens:      viper.GetInt("ocr.max_new_tokens"),
			EOSToken:          viper.GetString("ocr.eos_token"),
			Temperature:       viper.GetFloat64("ocr.temperature"),
			TopP:              viper.GetFloat64("ocr.top_p"),
			RepetitionPenalty: viper.GetFloat64("ocr.repetition_penalty"),
		},
		Review: types.ReviewConfig{
			Policy:         types.FailurePolicy(viper.GetString("review.policy")),
			MinSpecialists: viper.GetInt("review.min_specialists"),
			MaxRetries:     viper.GetInt("review.max_retries"),
			PanelFile:      viper.GetString("review.panel_file"),
		},
		Archive: types.ArchiveConfig{
			Enabled: viper.GetBool("archive.enabled"),
			Dir:     viper.GetString("archive.dir"),
		},
	}

	switch cfg.Review.Policy {
	case types.PolicyFailFast, types.PolicyPartial:
	case "":
		cfg.Review.Policy = types.PolicyFailFast
	default:
		return cfg, fmt.Errorf("unknown review policy %q: use %s or %s",
			cfg.Review.Policy, types.PolicyFailFast, types.PolicyPartial)
	}
	if cfg.Review.MaxRetries < 0 {
		return cfg, fmt.Errorf("max retries must not be negative, got %d", cfg.Review.MaxRetries)
	}

	key, src, err := secrets.ResolveAPIKey(cfg.Completion.APIKey, viper.GetString("secrets_dir"))
	if err != nil {
		return cfg, err
	}
	cfg.Completion.APIKey = key
	if src != secrets.SourceMissing {
		fmt.Fprintf(os.Stderr, "Using API key from %s\n", src)
	}
	return cfg, nil
}

// loadPanel returns the configured panel, or the built-in one. A configured
// default model replaces the panel's.
func loadPanel(cfg types.PipelineConfig) (prompt.Panel, error) {
	panel := prompt.DefaultPanel()
	if cfg.Review.PanelFile != "" {
		p, err := prompt.LoadPanel(cfg.Review.PanelFile)
		if err != nil {
			return prompt.Panel{}, err
		}
		panel = p
	}
	if cfg.Completion.DefaultModel != "" {
		panel.DefaultModel = cfg.Completion.DefaultModel
	}
	return panel, nil
}
