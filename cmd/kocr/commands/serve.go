package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/k-ocr/web-corrector/internal/app"
	"github.com/k-ocr/web-corrector/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the K-OCR API server with workers and the expiry sweeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		a, err := app.New(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		a.Log.Info().
			Str("storage", cfg.Storage.Driver).
			Str("jobs", cfg.Jobs.Driver).
			Msg("Starting K-OCR API")

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return a.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
