// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"

	"github.com/spf13/cobra"
)

var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Print the effective reviewer panel as YAML",
	Long: `Panel prints the personas a review run would use: the built-in panel, or
the file named by --panel or review.panel_file. The output is a valid panel
file and can be edited and passed back with --panel.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, map[string]string{
			"panel": "review.panel_file",
			"model": "completion.default_model",
		})
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		panel, err := loadPanel(cfg)
		if err != nil {
			return err
		}
		data, err := panel.Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	panelCmd.Flags().String("panel", "", "YAML file replacing the built-in reviewer panel")
	panelCmd.Flags().String("model", "", "default completion model for personas that name none")

	rootCmd.AddCommand(panelCmd)
}
