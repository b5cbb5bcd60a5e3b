package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/k-ocr/web-corrector/internal/app"
	"github.com/k-ocr/web-corrector/internal/config"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one expiry sweep over job records and stored blobs",
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

		jobs, blobs, err := a.Sweeper.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Swept %d expired job(s) and %d expired blob(s)\n", jobs, blobs)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
