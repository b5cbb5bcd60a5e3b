package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecord() *Record {
	return NewRecord("owner-a", "blob-src", DefaultOptions(), time.Hour)
}

func TestRecord_AdvanceFollowsPipelineOrder(t *testing.T) {
	rec := newTestRecord()

	for _, next := range PipelineStages {
		require.NoError(t, rec.AdvanceTo(next))
		assert.Equal(t, next, rec.Stage)
	}
	require.NoError(t, rec.AdvanceTo(StageCompleted))
	assert.True(t, rec.Terminal())
}

func TestRecord_AdvanceRejectsSkippedStage(t *testing.T) {
	rec := newTestRecord()

	err := rec.AdvanceTo(StageRecognizing)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, StagePending, rec.Stage, "failed transition must not change state")
}

func TestRecord_AdvanceRejectsBackwardTransition(t *testing.T) {
	rec := newTestRecord()
	require.NoError(t, rec.AdvanceTo(StageConverting))
	require.NoError(t, rec.AdvanceTo(StagePreprocessing))

	err := rec.AdvanceTo(StageConverting)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, StagePreprocessing, rec.Stage)
}

func TestRecord_TerminalStagesAreFinal(t *testing.T) {
	for _, terminal := range []Stage{StageCompleted, StageFailed, StageCancelled} {
		rec := newTestRecord()
		require.NoError(t, rec.AdvanceTo(StageConverting))
		require.NoError(t, rec.AdvanceTo(terminal))

		for _, next := range []Stage{StageConverting, StageCompleted, StageFailed, StageCancelled} {
			assert.ErrorIs(t, rec.AdvanceTo(next), ErrInvalidState,
				"no transition may leave %s", terminal)
		}
	}
}

func TestRecord_FailAndCancelReachableFromAnyWorkingStage(t *testing.T) {
	for _, from := range append([]Stage{StagePending}, PipelineStages...) {
		rec := newTestRecord()
		rec.Stage = from
		require.NoError(t, rec.Fail("stage failed"), "FAILED must be reachable from %s", from)

		rec = newTestRecord()
		rec.Stage = from
		require.NoError(t, rec.MarkCancelled(), "CANCELLED must be reachable from %s", from)
	}
}

func TestRecord_ProgressMonotonic(t *testing.T) {
	rec := newTestRecord()
	require.NoError(t, rec.AdvanceTo(StageConverting))

	require.NoError(t, rec.SetProgress(15))
	assert.Equal(t, 15, rec.ProgressPercent)

	// A stale lower value never moves progress backwards.
	require.NoError(t, rec.SetProgress(12))
	assert.Equal(t, 15, rec.ProgressPercent)

	require.NoError(t, rec.SetProgress(20))
	assert.Equal(t, 20, rec.ProgressPercent)
}

func TestRecord_ProgressFrozenWhenTerminal(t *testing.T) {
	rec := newTestRecord()
	require.NoError(t, rec.Fail("boom"))

	assert.ErrorIs(t, rec.SetProgress(50), ErrInvalidState)
}

func TestRecord_AdvancePinsBandStart(t *testing.T) {
	rec := newTestRecord()
	require.NoError(t, rec.AdvanceTo(StageConverting))
	assert.Equal(t, 10, rec.ProgressPercent)

	require.NoError(t, rec.AdvanceTo(StagePreprocessing))
	assert.Equal(t, 30, rec.ProgressPercent)

	require.NoError(t, rec.AdvanceTo(StageRecognizing))
	assert.Equal(t, 50, rec.ProgressPercent)

	require.NoError(t, rec.AdvanceTo(StageCorrecting))
	assert.Equal(t, 80, rec.ProgressPercent)
}

func TestRecord_CompleteSetsResultAndFullProgress(t *testing.T) {
	rec := newTestRecord()
	for _, next := range PipelineStages {
		require.NoError(t, rec.AdvanceTo(next))
	}

	require.NoError(t, rec.Complete("blob-result"))
	assert.Equal(t, StageCompleted, rec.Stage)
	assert.Equal(t, 100, rec.ProgressPercent)
	assert.Equal(t, "blob-result", rec.ResultBlobRef)
	assert.Empty(t, rec.ErrorSummary)
}

func TestRecord_FailSetsErrorAndClearsResult(t *testing.T) {
	rec := newTestRecord()
	require.NoError(t, rec.AdvanceTo(StageConverting))

	require.NoError(t, rec.Fail("document could not be processed"))
	assert.Equal(t, StageFailed, rec.Stage)
	assert.Equal(t, "document could not be processed", rec.ErrorSummary)
	assert.Empty(t, rec.ResultBlobRef, "FAILED and result ref are mutually exclusive")
}

func TestRecord_CancelledHasNeitherResultNorError(t *testing.T) {
	rec := newTestRecord()
	require.NoError(t, rec.AdvanceTo(StageConverting))
	require.NoError(t, rec.MarkCancelled())

	assert.Empty(t, rec.ResultBlobRef)
	assert.Empty(t, rec.ErrorSummary)
}

func TestRecord_OwnedBlobsIncludesSourceIntermediatesAndResult(t *testing.T) {
	rec := newTestRecord()
	rec.TrackBlob("page-1")
	rec.TrackBlob("page-2")
	rec.TrackBlob("page-1") // duplicates collapse
	rec.ResultBlobRef = "result"

	assert.Equal(t, []string{"blob-src", "page-1", "page-2", "result"}, rec.OwnedBlobs())
}

func TestRecord_TeardownBlobsKeepsSource(t *testing.T) {
	rec := newTestRecord()
	rec.TrackBlob("page-1")
	rec.TrackBlob("page-2")
	rec.ResultBlobRef = "result"

	// The uploaded source must survive a failed or cancelled run so the
	// owner can start over from the same blob.
	assert.Equal(t, []string{"page-1", "page-2", "result"}, rec.TeardownBlobs())
	assert.NotContains(t, rec.TeardownBlobs(), rec.SourceBlobRef)
}

func TestBandProgress(t *testing.T) {
	assert.Equal(t, 10, BandProgress(StageConverting, 0, 4))
	assert.Equal(t, 25, BandProgress(StageConverting, 4, 4))
	assert.Equal(t, 62, BandProgress(StageRecognizing, 1, 2))
	// done beyond total clamps to the band end
	assert.Equal(t, 45, BandProgress(StagePreprocessing, 9, 3))
	// zero total pins to the band start
	assert.Equal(t, 50, BandProgress(StageRecognizing, 0, 0))
}
