package recognize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k-ocr/web-corrector/internal/job"
	"github.com/k-ocr/web-corrector/internal/stage"
)

type fakeEngine struct {
	name   string
	result stage.Recognition
	err    error
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Recognize(ctx context.Context, png []byte, opts job.Options) (stage.Recognition, error) {
	if f.err != nil {
		return stage.Recognition{}, f.err
	}
	return f.result, nil
}

func TestEnsemble_HigherConfidenceWins(t *testing.T) {
	a := &fakeEngine{name: "a", result: stage.Recognition{Text: "from a", Confidence: 0.72, Engine: "a"}}
	b := &fakeEngine{name: "b", result: stage.Recognition{Text: "from b", Confidence: 0.91, Engine: "b"}}

	got, err := NewEnsemble(a, b).Recognize(context.Background(), nil, job.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "from b", got.Text)
	assert.Equal(t, 0.91, got.Confidence)
}

func TestEnsemble_TieKeepsPrimary(t *testing.T) {
	a := &fakeEngine{name: "a", result: stage.Recognition{Text: "from a", Confidence: 0.8}}
	b := &fakeEngine{name: "b", result: stage.Recognition{Text: "from b", Confidence: 0.8}}

	got, err := NewEnsemble(a, b).Recognize(context.Background(), nil, job.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "from a", got.Text)
}

func TestEnsemble_DegradesToSurvivingEngine(t *testing.T) {
	failed := &fakeEngine{name: "a", err: stage.NewTerminal(job.StageRecognizing, "engine down", nil)}
	ok := &fakeEngine{name: "b", result: stage.Recognition{Text: "rescued", Confidence: 0.4}}

	got, err := NewEnsemble(failed, ok).Recognize(context.Background(), nil, job.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "rescued", got.Text)

	got, err = NewEnsemble(ok, failed).Recognize(context.Background(), nil, job.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "rescued", got.Text)
}

func TestEnsemble_BothTerminalIsTerminal(t *testing.T) {
	a := &fakeEngine{name: "a", err: stage.NewTerminal(job.StageRecognizing, "bad page", nil)}
	b := &fakeEngine{name: "b", err: stage.NewTerminal(job.StageRecognizing, "bad page", nil)}

	_, err := NewEnsemble(a, b).Recognize(context.Background(), nil, job.DefaultOptions())
	require.Error(t, err)
	assert.True(t, stage.IsTerminal(err))
}

func TestEnsemble_TransientFailureStaysRetryable(t *testing.T) {
	a := &fakeEngine{name: "a", err: stage.NewTransient(job.StageRecognizing, "timeout", nil)}
	b := &fakeEngine{name: "b", err: stage.NewTerminal(job.StageRecognizing, "bad page", nil)}

	_, err := NewEnsemble(a, b).Recognize(context.Background(), nil, job.DefaultOptions())
	require.Error(t, err)
	assert.False(t, stage.IsTerminal(err), "one retryable engine keeps the page retryable")
}
