package embedding

import (
	"bytes"
	"fmt"
	"image"
	// registered decoders
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

// ImageSize is the square input resolution of the CLIP vision encoder.
const ImageSize = 224

var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// DecodeImage decodes PNG or JPEG data, applying EXIF orientation.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// PixelValues resizes img to fill a size x size square (center crop) and returns its pixels in
// CHW order, scaled to [0,1] and normalized with the CLIP channel mean and std.
func PixelValues(img image.Image, size int) []float32 {
	if size <= 0 {
		size = ImageSize
	}
	square := imaging.Fill(img, size, size, imaging.Center, imaging.CatmullRom)
	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		row := square.Pix[y*square.Stride:]
		for x := 0; x < size; x++ {
			p := row[x*4 : x*4+3]
			i := y*size + x
			for c := 0; c < 3; c++ {
				out[c*plane+i] = (float32(p[c])/255 - clipMean[c]) / clipStd[c]
			}
		}
	}
	return out
}
