package embedding

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/hyperjump/ruiji/pkg/utils"
)

// DefaultBedrockModel is the Titan multimodal embedding model. It embeds images and text
// into the same space.
const DefaultBedrockModel = "amazon.titan-embed-image-v1"

// ModelInvoker is the subset of the Bedrock runtime client used here; *bedrockruntime.Client
// satisfies it.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type titanEmbeddingConfig struct {
	OutputEmbeddingLength int `json:"outputEmbeddingLength"`
}

type titanMultimodalRequest struct {
	InputText       string               `json:"inputText,omitempty"`
	InputImage      string               `json:"inputImage,omitempty"`
	EmbeddingConfig titanEmbeddingConfig `json:"embeddingConfig"`
}

type titanMultimodalResponse struct {
	Embedding []float32 `json:"embedding"`
	Message   string    `json:"message"`
}

// BedrockEmbedder calls a Titan multimodal embedding model through Bedrock.
type BedrockEmbedder struct {
	client     ModelInvoker
	model      string
	dimensions int
}

// NewBedrockEmbedder returns an embedder backed by client. Titan multimodal supports 256,
// 384 and 1024 output dimensions.
func NewBedrockEmbedder(client ModelInvoker, model string, dimensions int) (*BedrockEmbedder, error) {
	if client == nil {
		return nil, fmt.Errorf("bedrock client is required")
	}
	if model == "" {
		model = DefaultBedrockModel
	}
	switch dimensions {
	case 0:
		dimensions = 1024
	case 256, 384, 1024:
	default:
		return nil, fmt.Errorf("unsupported titan embedding length %d", dimensions)
	}
	return &BedrockEmbedder{client: client, model: model, dimensions: dimensions}, nil
}

// EmbedImage embeds raw image bytes (PNG or JPEG).
func (e *BedrockEmbedder) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	return e.invoke(ctx, titanMultimodalRequest{InputImage: base64.StdEncoding.EncodeToString(data)})
}

// EmbedText embeds text into the image embedding space.
func (e *BedrockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	return e.invoke(ctx, titanMultimodalRequest{InputText: text})
}

func (e *BedrockEmbedder) invoke(ctx context.Context, req titanMultimodalRequest) ([]float32, error) {
	req.EmbeddingConfig.OutputEmbeddingLength = e.dimensions
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", e.model, err)
	}

	var out titanMultimodalResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if out.Message != "" && len(out.Embedding) == 0 {
		return nil, fmt.Errorf("invoke %s: %s", e.model, out.Message)
	}
	if len(out.Embedding) != e.dimensions {
		return nil, fmt.Errorf("invoke %s: got %d dimensions, want %d", e.model, len(out.Embedding), e.dimensions)
	}
	utils.NormalizeL2(out.Embedding)
	return out.Embedding, nil
}

// Dimensions returns the embedding dimension.
func (e *BedrockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the Bedrock client holds no resources that need releasing.
func (e *BedrockEmbedder) Close() error {
	return nil
}
