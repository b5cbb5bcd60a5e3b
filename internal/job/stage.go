// Package job defines the Job Record entity, its lifecycle state machine,
// processing options, and the repositories that persist it.
package job

// Stage is the lifecycle stage of a processing job.
type Stage string

const (
	StagePending       Stage = "pending"
	StageConverting    Stage = "converting"
	StagePreprocessing Stage = "preprocessing"
	StageRecognizing   Stage = "recognizing"
	StageCorrecting    Stage = "correcting"
	StageCompleted     Stage = "completed"
	StageFailed        Stage = "failed"
	StageCancelled     Stage = "cancelled"
)

// PipelineStages is the fixed execution order of the working stages.
var PipelineStages = []Stage{
	StageConverting,
	StagePreprocessing,
	StageRecognizing,
	StageCorrecting,
}

// order assigns each working stage its position along the pipeline.
// Terminal stages are not ordered; they are reachable from anywhere.
var order = map[Stage]int{
	StagePending:       0,
	StageConverting:    1,
	StagePreprocessing: 2,
	StageRecognizing:   3,
	StageCorrecting:    4,
	StageCompleted:     5,
}

// Terminal reports whether no further transition can leave the stage.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed || s == StageCancelled
}

// CanAdvanceTo reports whether moving from s to next follows the state
// graph: strictly forward along the pipeline, or into FAILED/CANCELLED from
// any non-terminal stage.
func (s Stage) CanAdvanceTo(next Stage) bool {
	if s.Terminal() {
		return false
	}
	if next == StageFailed || next == StageCancelled {
		return true
	}
	from, ok := order[s]
	if !ok {
		return false
	}
	to, ok := order[next]
	if !ok {
		return false
	}
	return to == from+1
}

// Label returns the human-readable current-step label shown to polling
// clients.
func (s Stage) Label() string {
	switch s {
	case StagePending:
		return "Waiting to start"
	case StageConverting:
		return "Converting PDF pages"
	case StagePreprocessing:
		return "Enhancing page images"
	case StageRecognizing:
		return "Recognizing text"
	case StageCorrecting:
		return "Correcting text"
	case StageCompleted:
		return "Completed"
	case StageFailed:
		return "Failed"
	case StageCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

// Progress bands per stage. A client polling mid-run sees continuously
// increasing, stage-attributable progress.
var progressBands = map[Stage][2]int{
	StagePending:       {0, 0},
	StageConverting:    {10, 25},
	StagePreprocessing: {30, 45},
	StageRecognizing:   {50, 75},
	StageCorrecting:    {80, 95},
	StageCompleted:     {100, 100},
}

// BandProgress scales per-stage completion (done of total steps) into the
// stage's progress band.
func BandProgress(s Stage, done, total int) int {
	band, ok := progressBands[s]
	if !ok {
		return 0
	}
	if total <= 0 {
		return band[0]
	}
	if done > total {
		done = total
	}
	return band[0] + (band[1]-band[0])*done/total
}

// BandStart returns the entry progress value for a stage.
func BandStart(s Stage) int {
	return progressBands[s][0]
}
