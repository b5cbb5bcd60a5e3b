package job

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// EngineSelector names an OCR engine choice.
type EngineSelector string

const (
	EngineTesseract EngineSelector = "tesseract"
	EnginePaddle    EngineSelector = "paddle"
	EngineEnsemble  EngineSelector = "ensemble"
)

// ValidationError is returned synchronously at job creation when the options
// record is malformed. No job record is created in that case.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid options: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("invalid options: %s", e.Msg)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PreprocessOptions are the per-filter toggles for image enhancement.
type PreprocessOptions struct {
	ApplyCLAHE        bool `json:"apply_clahe" yaml:"apply_clahe"`
	DeskewEnabled     bool `json:"deskew_enabled" yaml:"deskew_enabled"`
	NoiseRemoval      bool `json:"noise_removal" yaml:"noise_removal"`
	AdaptiveThreshold bool `json:"adaptive_threshold" yaml:"adaptive_threshold"`
	SuperResolution   bool `json:"super_resolution" yaml:"super_resolution"`
}

// CorrectionOptions are the per-correction toggles for Korean text cleanup.
type CorrectionOptions struct {
	Enabled            bool `json:"enabled" yaml:"enabled"`
	SpacingCorrection  bool `json:"spacing_correction" yaml:"spacing_correction"`
	SpellingCorrection bool `json:"spelling_correction" yaml:"spelling_correction"`
	CustomRules        bool `json:"custom_rules" yaml:"custom_rules"`
}

// Options is the immutable snapshot of user-chosen settings captured at job
// creation.
type Options struct {
	Engine     EngineSelector    `json:"ocr_engine" yaml:"ocr_engine"`
	DPI        int               `json:"dpi" yaml:"dpi"`
	Preprocess PreprocessOptions `json:"preprocessing_options" yaml:"preprocessing_options"`
	Correction CorrectionOptions `json:"correction_options" yaml:"correction_options"`
}

// DefaultOptions mirrors the defaults offered to a first-time user.
func DefaultOptions() Options {
	return Options{
		Engine: EnginePaddle,
		DPI:    200,
		Preprocess: PreprocessOptions{
			ApplyCLAHE:        true,
			DeskewEnabled:     true,
			NoiseRemoval:      true,
			AdaptiveThreshold: true,
			SuperResolution:   false,
		},
		Correction: CorrectionOptions{
			Enabled:            true,
			SpacingCorrection:  true,
			SpellingCorrection: true,
			CustomRules:        false,
		},
	}
}

// Validate checks the options record for errors.
func (o Options) Validate() error {
	switch o.Engine {
	case EngineTesseract, EnginePaddle, EngineEnsemble:
	default:
		return &ValidationError{Msg: fmt.Sprintf("unknown ocr_engine %q (valid: tesseract, paddle, ensemble)", o.Engine)}
	}
	if o.DPI < 72 || o.DPI > 600 {
		return &ValidationError{Msg: fmt.Sprintf("dpi must be between 72 and 600, got %d", o.DPI)}
	}
	return nil
}

// EstimateSeconds gives a rough processing-time estimate for the options,
// surfaced to the client at job creation.
func (o Options) EstimateSeconds() int {
	secs := 60
	switch o.Engine {
	case EnginePaddle:
		secs += 30
	case EngineTesseract:
		secs += 45
	case EngineEnsemble:
		secs += 75
	}
	if o.Preprocess.SuperResolution {
		secs += 120
	}
	if o.Preprocess.DeskewEnabled {
		secs += 15
	}
	if o.Preprocess.NoiseRemoval {
		secs += 10
	}
	if o.Correction.Enabled {
		secs += 20
		if o.Correction.SpellingCorrection {
			secs += 30
		}
	}
	return secs
}

// optionsSchema rejects unrecognized fields at the job-creation boundary so
// client typos fail fast instead of being silently ignored.
const optionsSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "ocr_engine": {"type": "string", "enum": ["tesseract", "paddle", "ensemble"]},
    "dpi": {"type": "integer", "minimum": 72, "maximum": 600},
    "preprocessing_options": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "apply_clahe": {"type": "boolean"},
        "deskew_enabled": {"type": "boolean"},
        "noise_removal": {"type": "boolean"},
        "adaptive_threshold": {"type": "boolean"},
        "super_resolution": {"type": "boolean"}
      }
    },
    "correction_options": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "spacing_correction": {"type": "boolean"},
        "spelling_correction": {"type": "boolean"},
        "custom_rules": {"type": "boolean"}
      }
    }
  }
}`

var compiledOptionsSchema = jsonschema.MustCompileString("options.json", optionsSchema)

// ParseOptionsJSON decodes a client-supplied options document, applying
// defaults for absent fields and failing with ValidationError on unknown
// fields, unknown engines, or out-of-range values.
func ParseOptionsJSON(raw []byte) (Options, error) {
	opts := DefaultOptions()
	if len(raw) == 0 || strings.TrimSpace(string(raw)) == "" {
		return opts, nil
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Options{}, &ValidationError{Msg: "options must be a JSON object", Err: err}
	}
	if err := compiledOptionsSchema.Validate(doc); err != nil {
		return Options{}, &ValidationError{Msg: "unrecognized or malformed options", Err: err}
	}
	if err := json.Unmarshal(raw, &opts); err != nil {
		return Options{}, &ValidationError{Msg: "decode options", Err: err}
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}
