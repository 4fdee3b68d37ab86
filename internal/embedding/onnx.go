//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/ruiji/pkg/utils"
)

// ONNXEmbedder runs the text and vision towers of a CLIP model exported to ONNX. It requires
// CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	textSession   *ort.AdvancedSession
	visionSession *ort.AdvancedSession
	dimensions    int
	maxTokens     int
	tokenizer     Tokenizer
	// Pre-allocated tensors for Run(); we update input data and read output.
	inputIDsTensor      *ort.Tensor[int64]
	attentionMaskTensor *ort.Tensor[int64]
	textOutputTensor    *ort.Tensor[float32]
	pixelTensor         *ort.Tensor[float32]
	visionOutputTensor  *ort.Tensor[float32]
	textMu              sync.Mutex
	visionMu            sync.Mutex
}

// ONNXConfig locates the two CLIP towers.
type ONNXConfig struct {
	TextModelPath   string
	VisionModelPath string
	Dimensions      int
	// LibraryPath overrides the onnxruntime shared library location.
	LibraryPath string
}

// NewONNXEmbedder creates an ONNX embedder. InitializeEnvironment is called if not already done.
func NewONNXEmbedder(cfg ONNXConfig) (*ONNXEmbedder, error) {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 512
	}
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	e := &ONNXEmbedder{
		dimensions: cfg.Dimensions,
		maxTokens:  ContextLength,
		tokenizer:  &SimpleTokenizer{},
	}
	if err := e.initText(cfg.TextModelPath); err != nil {
		_ = e.Close()
		return nil, err
	}
	if err := e.initVision(cfg.VisionModelPath); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *ONNXEmbedder) initText(modelPath string) error {
	var err error
	seq := ort.NewShape(1, int64(e.maxTokens))
	if e.inputIDsTensor, err = ort.NewEmptyTensor[int64](seq); err != nil {
		return fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if e.attentionMaskTensor, err = ort.NewEmptyTensor[int64](seq); err != nil {
		return fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if e.textOutputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.dimensions))); err != nil {
		return fmt.Errorf("failed to create text output tensor: %w", err)
	}
	e.textSession, err = ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"text_embeds"},
		[]ort.ArbitraryTensor{e.inputIDsTensor, e.attentionMaskTensor},
		[]ort.ArbitraryTensor{e.textOutputTensor},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create text session: %w", err)
	}
	return nil
}

func (e *ONNXEmbedder) initVision(modelPath string) error {
	var err error
	if e.pixelTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, ImageSize, ImageSize)); err != nil {
		return fmt.Errorf("failed to create pixel_values tensor: %w", err)
	}
	if e.visionOutputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.dimensions))); err != nil {
		return fmt.Errorf("failed to create image output tensor: %w", err)
	}
	e.visionSession, err = ort.NewAdvancedSession(
		modelPath,
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		[]ort.ArbitraryTensor{e.pixelTensor},
		[]ort.ArbitraryTensor{e.visionOutputTensor},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create vision session: %w", err)
	}
	return nil
}

// EmbedText returns the CLIP text embedding for text.
func (e *ONNXEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.textMu.Lock()
	defer e.textMu.Unlock()

	inputIDs, attentionMask := e.tokenizer.Tokenize(text, e.maxTokens)
	copy(e.inputIDsTensor.GetData(), inputIDs)
	copy(e.attentionMaskTensor.GetData(), attentionMask)

	if err := e.textSession.Run(); err != nil {
		return nil, fmt.Errorf("text inference failed: %w", err)
	}
	return e.readOutput(e.textOutputTensor), nil
}

// EmbedImage returns the CLIP image embedding for PNG or JPEG data.
func (e *ONNXEmbedder) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	pixels := PixelValues(img, ImageSize)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.visionMu.Lock()
	defer e.visionMu.Unlock()

	copy(e.pixelTensor.GetData(), pixels)
	if err := e.visionSession.Run(); err != nil {
		return nil, fmt.Errorf("image inference failed: %w", err)
	}
	return e.readOutput(e.visionOutputTensor), nil
}

func (e *ONNXEmbedder) readOutput(t *ort.Tensor[float32]) []float32 {
	embedding := make([]float32, e.dimensions)
	copy(embedding, t.GetData()[:e.dimensions])
	utils.NormalizeL2(embedding)
	return embedding
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the sessions and tensors.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.textSession != nil {
		err = e.textSession.Destroy()
		e.textSession = nil
	}
	if e.visionSession != nil {
		if verr := e.visionSession.Destroy(); err == nil {
			err = verr
		}
		e.visionSession = nil
	}
	for _, t := range []*ort.Tensor[int64]{e.inputIDsTensor, e.attentionMaskTensor} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	for _, t := range []*ort.Tensor[float32]{e.textOutputTensor, e.pixelTensor, e.visionOutputTensor} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	e.inputIDsTensor, e.attentionMaskTensor = nil, nil
	e.textOutputTensor, e.pixelTensor, e.visionOutputTensor = nil, nil, nil
	return err
}
