package correct

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k-ocr/web-corrector/internal/job"
	"github.com/k-ocr/web-corrector/internal/stage"
)

func TestServiceClient_Correct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/correct", r.URL.Path)

		var req correctionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Spacing)
		assert.False(t, req.Spelling)

		json.NewEncoder(w).Encode(correctionResponse{Text: "띄어쓰기가 고쳐진 글", Changes: 3})
	}))
	defer srv.Close()

	c := NewServiceClient(Config{BaseURL: srv.URL})
	got, err := c.Correct(context.Background(), "띄어쓰기가고쳐진글", job.CorrectionOptions{
		Enabled:           true,
		SpacingCorrection: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "띄어쓰기가 고쳐진 글", got.Text)
	assert.Equal(t, 3, got.Changes)
}

func TestServiceClient_SkipsServiceWhenOnlyCustomRules(t *testing.T) {
	// No server at all: the call must never leave the process.
	c := NewServiceClient(Config{BaseURL: "http://127.0.0.1:1"})

	got, err := c.Correct(context.Background(), "ㅇl 문서", job.CorrectionOptions{
		Enabled:     true,
		CustomRules: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "이 문서", got.Text)
	assert.Equal(t, 1, got.Changes)
}

func TestServiceClient_UnreachableIsTransient(t *testing.T) {
	c := NewServiceClient(Config{BaseURL: "http://127.0.0.1:1"})

	_, err := c.Correct(context.Background(), "텍스트", job.CorrectionOptions{
		Enabled:           true,
		SpacingCorrection: true,
	})
	require.Error(t, err)
	assert.False(t, stage.IsTerminal(err))
}

func TestServiceClient_RejectionIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewServiceClient(Config{BaseURL: srv.URL})
	_, err := c.Correct(context.Background(), "텍스트", job.CorrectionOptions{
		Enabled:            true,
		SpellingCorrection: true,
	})
	require.Error(t, err)
	assert.True(t, stage.IsTerminal(err))
}

func TestRuleTable_ApplyCountsChanges(t *testing.T) {
	rt := NewRuleTable()
	rt.Add("0l", "이")
	rt.Add("##", "")

	out, changes := rt.Apply("0l 문서 ## 0l")
	assert.Equal(t, "이 문서  이", out)
	assert.Equal(t, 3, changes)
}

func TestRuleTable_NoMatchesNoChanges(t *testing.T) {
	out, changes := DefaultRuleTable().Apply("깨끗한 문장")
	assert.Equal(t, "깨끗한 문장", out)
	assert.Zero(t, changes)
}
