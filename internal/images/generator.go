package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"image/color"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/disintegration/imaging"
)

// DefaultImageModel is the Titan image generator used by BedrockGenerator.
const DefaultImageModel = "amazon.titan-image-generator-v2:0"

// Generator renders a PNG image for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// ModelInvoker is the subset of the Bedrock runtime client used by BedrockGenerator.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// GeneratorConfig holds Titan image generation parameters.
type GeneratorConfig struct {
	Model    string
	Width    int
	Height   int
	CfgScale float64
	Quality  string
}

// DefaultGeneratorConfig returns the parameters used when none are configured.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Model:    DefaultImageModel,
		Width:    704,
		Height:   320,
		CfgScale: 8.0,
		Quality:  "standard",
	}
}

type titanTextToImageParams struct {
	Text string `json:"text"`
}

type titanImageGenerationConfig struct {
	Quality        string  `json:"quality"`
	NumberOfImages int     `json:"numberOfImages"`
	Height         int     `json:"height"`
	Width          int     `json:"width"`
	CfgScale       float64 `json:"cfgScale"`
}

type titanImageRequest struct {
	TaskType              string                     `json:"taskType"`
	TextToImageParams     titanTextToImageParams     `json:"textToImageParams"`
	ImageGenerationConfig titanImageGenerationConfig `json:"imageGenerationConfig"`
}

type titanImageResponse struct {
	Images []string `json:"images"`
	Error  string   `json:"error"`
}

// BedrockGenerator generates images with a Titan image model.
type BedrockGenerator struct {
	client ModelInvoker
	cfg    GeneratorConfig
}

// NewBedrockGenerator returns a generator backed by client. Zero fields in cfg take their
// defaults.
func NewBedrockGenerator(client ModelInvoker, cfg GeneratorConfig) *BedrockGenerator {
	def := DefaultGeneratorConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Width <= 0 {
		cfg.Width = def.Width
	}
	if cfg.Height <= 0 {
		cfg.Height = def.Height
	}
	if cfg.CfgScale <= 0 {
		cfg.CfgScale = def.CfgScale
	}
	if cfg.Quality == "" {
		cfg.Quality = def.Quality
	}
	return &BedrockGenerator{client: client, cfg: cfg}
}

// Generate renders one image for prompt and returns its PNG bytes.
func (g *BedrockGenerator) Generate(ctx context.Context, prompt string) ([]byte, error) {
	body, err := json.Marshal(titanImageRequest{
		TaskType:          "TEXT_IMAGE",
		TextToImageParams: titanTextToImageParams{Text: prompt},
		ImageGenerationConfig: titanImageGenerationConfig{
			Quality:        g.cfg.Quality,
			NumberOfImages: 1,
			Height:         g.cfg.Height,
			Width:          g.cfg.Width,
			CfgScale:       g.cfg.CfgScale,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := g.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(g.cfg.Model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", g.cfg.Model, err)
	}

	var out titanImageResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("invoke %s: %s", g.cfg.Model, out.Error)
	}
	if len(out.Images) == 0 {
		return nil, fmt.Errorf("invoke %s: no image returned", g.cfg.Model)
	}
	data, err := base64.StdEncoding.DecodeString(out.Images[0])
	if err != nil {
		return nil, fmt.Errorf("decode generated image: %w", err)
	}
	return data, nil
}

// MockGenerator renders a solid-color PNG whose color is derived from the prompt. It lets the
// service run without Bedrock access.
type MockGenerator struct {
	Width, Height int
}

// Generate returns a PNG for prompt.
func (g MockGenerator) Generate(ctx context.Context, prompt string) ([]byte, error) {
	w, h := g.Width, g.Height
	if w <= 0 || h <= 0 {
		w, h = 64, 64
	}
	sum := fnv.New32a()
	_, _ = sum.Write([]byte(prompt))
	v := sum.Sum32()
	img := imaging.New(w, h, color.NRGBA{R: uint8(v), G: uint8(v >> 8), B: uint8(v >> 16), A: 255})

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
