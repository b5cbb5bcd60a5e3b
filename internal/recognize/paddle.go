package recognize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/k-ocr/web-corrector/internal/job"
	"github.com/k-ocr/web-corrector/internal/stage"
)

// PaddleClient recognizes text through a PaddleOCR serving endpoint. The
// adapter owns the full HTTP error surface: the coordinator only ever sees
// stage errors.
type PaddleClient struct {
	baseURL    string
	httpClient *http.Client
}

// PaddleConfig holds the serving endpoint settings.
type PaddleConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NewPaddleClient creates a recognizer backed by a PaddleOCR service.
func NewPaddleClient(cfg PaddleConfig) *PaddleClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 90 * time.Second
	}
	return &PaddleClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name returns the engine selector this adapter serves.
func (p *PaddleClient) Name() string { return string(job.EnginePaddle) }

type paddleRequest struct {
	Image    string `json:"image"` // base64 PNG
	Language string `json:"language"`
}

type paddleResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
}

// Recognize sends one page image to the serving endpoint.
func (p *PaddleClient) Recognize(ctx context.Context, png []byte, opts job.Options) (stage.Recognition, error) {
	body, err := json.Marshal(paddleRequest{
		Image:    base64.StdEncoding.EncodeToString(png),
		Language: "korean",
	})
	if err != nil {
		return stage.Recognition{}, stage.NewTerminal(job.StageRecognizing, "request could not be encoded", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/predict/ocr", bytes.NewReader(body))
	if err != nil {
		return stage.Recognition{}, stage.NewTerminal(job.StageRecognizing, "request could not be built", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return stage.Recognition{}, err
		}
		// Connection refused, DNS failure, client timeout: all retryable.
		return stage.Recognition{}, stage.NewTransient(job.StageRecognizing, "engine unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return stage.Recognition{}, classifyStatus(resp.StatusCode)
	}

	var out paddleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return stage.Recognition{}, stage.NewTransient(job.StageRecognizing, "engine response could not be decoded", err)
	}
	if out.Error != "" {
		return stage.Recognition{}, stage.NewTerminal(job.StageRecognizing, "engine rejected the page", errors.New(out.Error))
	}

	return stage.Recognition{
		Text:       out.Text,
		Confidence: out.Confidence,
		Engine:     p.Name(),
	}, nil
}

// classifyStatus maps HTTP status codes onto the two failure classes:
// overload and server faults retry, everything else is the caller's fault
// and fails the page for good.
func classifyStatus(code int) error {
	err := fmt.Errorf("engine returned status %d", code)
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return stage.NewTransient(job.StageRecognizing, "engine overloaded", err)
	default:
		return stage.NewTerminal(job.StageRecognizing, "engine rejected the request", err)
	}
}
