package enhance

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k-ocr/web-corrector/internal/job"
	"github.com/k-ocr/web-corrector/internal/stage"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testPage(t *testing.T) []byte {
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = 200 // light background
	}
	// a dark "text line"
	for x := 4; x < 28; x++ {
		img.SetGray(x, 16, color.Gray{Y: 40})
	}
	return encodePNG(t, img)
}

func TestProcessor_EnhanceRoundTrips(t *testing.T) {
	p := NewProcessor()

	out, err := p.Enhance(context.Background(), testPage(t), job.PreprocessOptions{
		ApplyCLAHE:        true,
		NoiseRemoval:      true,
		AdaptiveThreshold: true,
	})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())
}

func TestProcessor_EnhanceRejectsGarbage(t *testing.T) {
	p := NewProcessor()

	_, err := p.Enhance(context.Background(), []byte("not a png"), job.PreprocessOptions{})
	require.Error(t, err)
	assert.True(t, stage.IsTerminal(err), "undecodable input is terminal, not retryable")
}

func TestProcessor_SuperResolutionDoublesDimensions(t *testing.T) {
	p := NewProcessor()

	out, err := p.Enhance(context.Background(), testPage(t), job.PreprocessOptions{
		SuperResolution: true,
	})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 64, img.Bounds().Dy())
}

func TestOtsuThreshold_Binarizes(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		if i%2 == 0 {
			img.Pix[i] = 230
		} else {
			img.Pix[i] = 30
		}
	}

	out := otsuThreshold(img)
	for _, px := range out.Pix {
		assert.Contains(t, []uint8{0, 255}, px, "thresholded image must be binary")
	}
}

func TestStretchContrast_UsesFullRange(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 1))
	copy(img.Pix, []uint8{100, 120, 140, 160})

	out := stretchContrast(img)
	assert.Equal(t, uint8(0), out.Pix[0])
	assert.Equal(t, uint8(255), out.Pix[3])
}

func TestStretchContrast_FlatImageUnchanged(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 1))
	copy(img.Pix, []uint8{128, 128, 128, 128})

	out := stretchContrast(img)
	assert.Equal(t, img.Pix, out.Pix)
}
