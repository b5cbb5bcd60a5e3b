package recognize

import (
	"context"

	"github.com/k-ocr/web-corrector/internal/job"
	"github.com/k-ocr/web-corrector/internal/stage"
)

// Ensemble runs two engines over the same page and keeps the
// higher-confidence result. It sits behind the same Recognizer contract, so
// the coordinator cannot tell it from a single engine.
type Ensemble struct {
	primary   stage.Recognizer
	secondary stage.Recognizer
}

// NewEnsemble creates an ensemble over two leaf recognizers.
func NewEnsemble(primary, secondary stage.Recognizer) *Ensemble {
	return &Ensemble{primary: primary, secondary: secondary}
}

// Name returns the engine selector this adapter serves.
func (e *Ensemble) Name() string { return string(job.EngineEnsemble) }

// Recognize runs both engines and picks the higher-confidence output per
// page. When one engine fails the other's result is used as-is; the page
// fails only when both do.
func (e *Ensemble) Recognize(ctx context.Context, png []byte, opts job.Options) (stage.Recognition, error) {
	first, errFirst := e.primary.Recognize(ctx, png, opts)
	if err := ctx.Err(); err != nil {
		return stage.Recognition{}, err
	}
	second, errSecond := e.secondary.Recognize(ctx, png, opts)

	switch {
	case errFirst == nil && errSecond == nil:
		if second.Confidence > first.Confidence {
			return second, nil
		}
		return first, nil
	case errFirst == nil:
		return first, nil
	case errSecond == nil:
		return second, nil
	}

	// Both failed: terminal only if both failures are terminal, otherwise
	// leave the coordinator room to retry.
	if stage.IsTerminal(errFirst) && stage.IsTerminal(errSecond) {
		return stage.Recognition{}, stage.NewTerminal(job.StageRecognizing, "all engines rejected the page", errFirst)
	}
	if !stage.IsTerminal(errFirst) {
		return stage.Recognition{}, errFirst
	}
	return stage.Recognition{}, errSecond
}
