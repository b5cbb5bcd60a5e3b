// Package correct implements the language corrector stage adapter: a client
// for the Korean spacing/spelling service plus a local rule table for
// recurrent OCR confusions.
package correct

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/k-ocr/web-corrector/internal/job"
	"github.com/k-ocr/web-corrector/internal/stage"
)

// ServiceClient corrects text through the Korean correction service.
type ServiceClient struct {
	baseURL    string
	httpClient *http.Client
	rules      *RuleTable
}

// Config holds the correction service settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// NewServiceClient creates a corrector backed by the remote service.
func NewServiceClient(cfg Config) *ServiceClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &ServiceClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		rules:      DefaultRuleTable(),
	}
}

type correctionRequest struct {
	Text     string `json:"text"`
	Spacing  bool   `json:"spacing"`
	Spelling bool   `json:"spelling"`
}

type correctionResponse struct {
	Text    string `json:"text"`
	Changes int    `json:"changes"`
	Error   string `json:"error,omitempty"`
}

// Correct applies the enabled corrections to one page's recognized text.
// Custom rules run locally after the service pass so they win over it.
func (c *ServiceClient) Correct(ctx context.Context, text string, opts job.CorrectionOptions) (stage.Correction, error) {
	result := stage.Correction{Text: text}

	if opts.SpacingCorrection || opts.SpellingCorrection {
		remote, err := c.callService(ctx, text, opts)
		if err != nil {
			return stage.Correction{}, err
		}
		result = remote
	}

	if opts.CustomRules {
		corrected, changes := c.rules.Apply(result.Text)
		result.Text = corrected
		result.Changes += changes
	}

	return result, nil
}

func (c *ServiceClient) callService(ctx context.Context, text string, opts job.CorrectionOptions) (stage.Correction, error) {
	body, err := json.Marshal(correctionRequest{
		Text:     text,
		Spacing:  opts.SpacingCorrection,
		Spelling: opts.SpellingCorrection,
	})
	if err != nil {
		return stage.Correction{}, stage.NewTerminal(job.StageCorrecting, "request could not be encoded", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/correct", bytes.NewReader(body))
	if err != nil {
		return stage.Correction{}, stage.NewTerminal(job.StageCorrecting, "request could not be built", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return stage.Correction{}, err
		}
		return stage.Correction{}, stage.NewTransient(job.StageCorrecting, "correction service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("correction service returned status %d", resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return stage.Correction{}, stage.NewTransient(job.StageCorrecting, "correction service overloaded", err)
		}
		return stage.Correction{}, stage.NewTerminal(job.StageCorrecting, "correction service rejected the text", err)
	}

	var out correctionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return stage.Correction{}, stage.NewTransient(job.StageCorrecting, "service response could not be decoded", err)
	}
	if out.Error != "" {
		return stage.Correction{}, stage.NewTerminal(job.StageCorrecting, "correction service rejected the text", errors.New(out.Error))
	}

	return stage.Correction{Text: out.Text, Changes: out.Changes}, nil
}
