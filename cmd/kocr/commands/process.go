package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/k-ocr/web-corrector/internal/app"
	"github.com/k-ocr/web-corrector/internal/config"
	"github.com/k-ocr/web-corrector/internal/job"
)

var (
	processEngine string
	processDPI    int
	processOutput string
)

var processCmd = &cobra.Command{
	Use:   "process <file.pdf>",
	Short: "Process one PDF locally through the full pipeline",
	Long: `Runs the complete pipeline against a local PDF using in-process memory
stores, polling job status with a progress bar, and writes the corrected
text next to the input (or to --output).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		// A one-shot local run has no use for external stores.
		cfg.Storage.Driver = "memory"
		cfg.Jobs.Driver = "memory"

		a, err := app.New(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		owner := uuid.NewString()
		ref, err := a.Blobs.Save(ctx, owner, data, "application/pdf")
		if err != nil {
			return err
		}

		opts := map[string]any{}
		if processEngine != "" {
			opts["ocr_engine"] = processEngine
		}
		if processDPI != 0 {
			opts["dpi"] = processDPI
		}
		rawOpts, err := json.Marshal(opts)
		if err != nil {
			return err
		}

		rec, err := a.Coordinator.CreateJob(ctx, owner, ref, rawOpts)
		if err != nil {
			return err
		}
		if err := a.Coordinator.Start(ctx, rec.ID, owner); err != nil {
			return err
		}

		bar := progressbar.NewOptions(100,
			progressbar.OptionSetWidth(50),
			progressbar.OptionSetDescription("Processing"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(os.Stderr, "\n")
			}),
		)

		for {
			select {
			case <-ctx.Done():
				cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = a.Coordinator.Cancel(cancelCtx, rec.ID, owner)
				cancel()
				return errors.New("interrupted")
			case <-time.After(200 * time.Millisecond):
			}

			view, err := a.Status.GetStatus(ctx, rec.ID, owner)
			if err != nil {
				return err
			}
			_ = bar.Set(view.ProgressPercent)
			bar.Describe(view.CurrentStep)

			switch job.Stage(view.Status) {
			case job.StageCompleted:
				_ = bar.Finish()
				return writeResult(ctx, a, rec.ID, owner, args[0], view.AvgConfidence)
			case job.StageFailed:
				return errors.New(view.Error)
			case job.StageCancelled:
				return errors.New("job was cancelled")
			}
		}
	},
}

func writeResult(ctx context.Context, a *app.App, jobID uuid.UUID, owner, inputPath string, confidence float64) error {
	entry, err := a.Status.ResolveDownload(ctx, jobID, owner)
	if err != nil {
		return err
	}

	out := processOutput
	if out == "" {
		out = strings.TrimSuffix(inputPath, ".pdf") + ".txt"
	}
	if err := os.WriteFile(out, entry.Data, 0o644); err != nil {
		return err
	}
	fmt.Printf("Corrected text written to %s (avg confidence %.0f%%)\n", out, confidence*100)
	return nil
}

func init() {
	processCmd.Flags().StringVarP(&processEngine, "engine", "e", "", "ocr engine: tesseract, paddle or ensemble")
	processCmd.Flags().IntVar(&processDPI, "dpi", 0, "render resolution (72-600)")
	processCmd.Flags().StringVarP(&processOutput, "output", "o", "", "output text file")
	rootCmd.AddCommand(processCmd)
}
