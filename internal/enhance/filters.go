package enhance

import (
	"image"
	"image/color"
	"math"
	"sort"

	"golang.org/x/image/draw"
)

func toGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return g
	}
	bounds := src.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, src, bounds.Min, draw.Src)
	return gray
}

// stretchContrast expands the used luminance range to the full 0..255 span.
// Stands in for CLAHE: scanned text pages are near-bimodal, so a global
// stretch recovers most of the local-equalization benefit.
func stretchContrast(img *image.Gray) *image.Gray {
	lo, hi := uint8(255), uint8(0)
	for _, px := range img.Pix {
		if px < lo {
			lo = px
		}
		if px > hi {
			hi = px
		}
	}
	if hi <= lo {
		return img
	}

	out := image.NewGray(img.Bounds())
	span := float64(hi - lo)
	for i, px := range img.Pix {
		out.Pix[i] = uint8(math.Round(float64(px-lo) / span * 255))
	}
	return out
}

// medianDenoise applies a 3x3 median filter, removing salt-and-pepper noise
// without blurring glyph edges the way a box blur would.
func medianDenoise(img *image.Gray) *image.Gray {
	bounds := img.Bounds()
	out := image.NewGray(bounds)
	var window [9]byte

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			n := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < bounds.Min.X || nx >= bounds.Max.X || ny < bounds.Min.Y || ny >= bounds.Max.Y {
						continue
					}
					window[n] = img.GrayAt(nx, ny).Y
					n++
				}
			}
			s := window[:n]
			sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
			out.SetGray(x, y, color.Gray{Y: s[n/2]})
		}
	}
	return out
}

// otsuThreshold binarizes the page using Otsu's between-class variance
// criterion.
func otsuThreshold(img *image.Gray) *image.Gray {
	var hist [256]int
	for _, px := range img.Pix {
		hist[px]++
	}
	total := len(img.Pix)
	if total == 0 {
		return img
	}

	var sum float64
	for i, c := range hist {
		sum += float64(i * c)
	}

	var sumB, wB float64
	var maxVar float64
	threshold := 127
	for i := 0; i < 256; i++ {
		wB += float64(hist[i])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(i * hist[i])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		v := wB * wF * (mB - mF) * (mB - mF)
		if v > maxVar {
			maxVar = v
			threshold = i
		}
	}

	out := image.NewGray(img.Bounds())
	for i, px := range img.Pix {
		if int(px) > threshold {
			out.Pix[i] = 255
		} else {
			out.Pix[i] = 0
		}
	}
	return out
}

// deskew searches small rotation angles for the one maximizing the variance
// of horizontal projection profiles; text lines align when rows alternate
// between dense ink and blank gaps.
func deskew(img *image.Gray) *image.Gray {
	const maxAngle = 5.0
	bestAngle := 0.0
	bestScore := projectionVariance(img, 0)

	for a := -maxAngle; a <= maxAngle; a += 0.5 {
		if a == 0 {
			continue
		}
		if score := projectionVariance(img, a); score > bestScore {
			bestScore = score
			bestAngle = a
		}
	}

	if bestAngle == 0 {
		return img
	}
	return rotate(img, bestAngle)
}

func projectionVariance(img *image.Gray, degrees float64) float64 {
	bounds := img.Bounds()
	h := bounds.Dy()
	if h == 0 {
		return 0
	}
	rad := degrees * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	cx := float64(bounds.Min.X+bounds.Max.X) / 2
	cy := float64(bounds.Min.Y+bounds.Max.Y) / 2

	rows := make([]float64, h)
	// Sample a grid rather than every pixel; the profile shape, not its
	// resolution, is what the variance measures.
	stepX := bounds.Dx()/256 + 1
	stepY := bounds.Dy()/256 + 1
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			// Position of this pixel after rotating by -degrees.
			ry := -sin*(float64(x)-cx) + cos*(float64(y)-cy) + cy
			row := int(ry) - bounds.Min.Y
			if row < 0 || row >= h {
				continue
			}
			if img.GrayAt(x, y).Y < 128 {
				rows[row]++
			}
		}
	}

	var mean float64
	for _, v := range rows {
		mean += v
	}
	mean /= float64(h)

	var variance float64
	for _, v := range rows {
		variance += (v - mean) * (v - mean)
	}
	return variance / float64(h)
}

func rotate(img *image.Gray, degrees float64) *image.Gray {
	bounds := img.Bounds()
	out := image.NewGray(bounds)
	rad := degrees * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	cx := float64(bounds.Min.X+bounds.Max.X) / 2
	cy := float64(bounds.Min.Y+bounds.Max.Y) / 2

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			// Inverse mapping keeps the output free of holes.
			sx := cos*(float64(x)-cx) + sin*(float64(y)-cy) + cx
			sy := -sin*(float64(x)-cx) + cos*(float64(y)-cy) + cy
			xi, yi := int(math.Round(sx)), int(math.Round(sy))
			if xi >= bounds.Min.X && xi < bounds.Max.X && yi >= bounds.Min.Y && yi < bounds.Max.Y {
				out.SetGray(x, y, img.GrayAt(xi, yi))
			} else {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// upscale resamples the page by the given factor with Catmull-Rom
// interpolation. Stands in for the super-resolution model of the source
// system.
func upscale(img *image.Gray, factor int) *image.Gray {
	bounds := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, bounds.Dx()*factor, bounds.Dy()*factor))
	draw.CatmullRom.Scale(out, out.Bounds(), img, bounds, draw.Src, nil)
	return out
}
