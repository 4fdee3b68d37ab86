package embedding

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeImage(t *testing.T) {
	img, err := DecodeImage(encodePNG(t, 40, 20, color.White))
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())

	_, err = DecodeImage(nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = DecodeImage([]byte("not an image"))
	assert.Error(t, err)
}

func TestPixelValues(t *testing.T) {
	img, err := DecodeImage(encodePNG(t, 64, 32, color.NRGBA{R: 255, G: 0, B: 0, A: 255}))
	require.NoError(t, err)

	px := PixelValues(img, 8)
	require.Len(t, px, 3*8*8)

	plane := 8 * 8
	wantR := (1 - clipMean[0]) / clipStd[0]
	wantG := (0 - clipMean[1]) / clipStd[1]
	for i := 0; i < plane; i++ {
		assert.InDelta(t, wantR, px[i], 1e-3)
		assert.InDelta(t, wantG, px[plane+i], 1e-3)
	}
}
