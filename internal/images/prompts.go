package images

import (
	"math/rand/v2"
	"strings"
)

const (
	// DefaultPrompt is used when Generate is called without a prompt.
	DefaultPrompt = "a beautiful landscape"
	// UploadedPrompt is the prompt recorded for uploaded images. All uploads share it, so they
	// form one similarity scope.
	UploadedPrompt = "uploaded"
)

// CameraAngles are appended to a base prompt to vary composition.
var CameraAngles = []string{
	"from above", "from below", "from the side",
	"from a distance", "close-up", "wide angle",
	"telephoto", "fisheye lens", "drone shot",
}

// StyleModifiers are appended to a base prompt to vary rendering style.
var StyleModifiers = []string{
	"oil painting", "watercolor", "sketch", "digital art",
	"photorealistic", "abstract", "minimalist", "surrealist",
	"black and white photograph", "vintage", "cyberpunk",
	"anime style", "cartoon style", "3D render",
}

// ModifyPrompt returns "<base>, <camera angle>, <style>" with the angle and style picked by
// intn, which must return a value in [0, n).
func ModifyPrompt(base string, intn func(n int) int) string {
	if intn == nil {
		intn = rand.IntN
	}
	angle := CameraAngles[intn(len(CameraAngles))]
	style := StyleModifiers[intn(len(StyleModifiers))]
	return strings.Join([]string{base, angle, style}, ", ")
}
