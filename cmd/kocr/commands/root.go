// Package commands implements the kocr CLI command tree.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "kocr",
	Short: "K-OCR Web Corrector - Korean PDF OCR and correction pipeline",
	Long: `kocr runs the K-OCR processing pipeline: PDF page rendering, image
enhancement, Korean OCR, and language correction. It can serve the web API,
process a document locally, or sweep expired state.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
