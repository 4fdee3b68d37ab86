package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/ruiji/internal/models"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOutputFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteSimilarityResults_JSON(t *testing.T) {
	response := &models.SimilarityResponse{Results: []models.SimilarityResult{
		{ImageID: "img-2", Similarity: 0.91},
		{ImageID: "img-3", Similarity: 0.42},
	}}
	var buf bytes.Buffer
	if err := WriteSimilarityResults(&buf, "img-1", "a cat", response, OutputJSON); err != nil {
		t.Fatalf("WriteSimilarityResults(json): %v", err)
	}
	var decoded models.SimilarityResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded.Results) != 2 || decoded.Results[0].ImageID != "img-2" {
		t.Errorf("decoded results: got %+v", decoded.Results)
	}
}

func TestWriteSimilarityResults_JSONEmptyList(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSimilarityResults(&buf, "img-1", "a cat", &models.SimilarityResponse{Results: []models.SimilarityResult{}}, OutputJSON)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"results": []`) {
		t.Errorf("expected empty results array, got %s", buf.String())
	}
}

func TestWriteSimilarityResults_Text(t *testing.T) {
	response := &models.SimilarityResponse{Results: []models.SimilarityResult{
		{ImageID: "img-2", Similarity: 0.91},
		{ImageID: "img-3", Similarity: -0.25},
	}}
	var buf bytes.Buffer
	if err := WriteSimilarityResults(&buf, "img-1", "a cat", response, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"2 similar images to img-1", `"a cat"`, "img-2", "0.9100", "-0.2500"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "img-2") > strings.Index(out, "img-3") {
		t.Errorf("results out of order:\n%s", out)
	}
}

func TestWriteSimilarityResults_TextNoResults(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSimilarityResults(&buf, "img-1", "p", &models.SimilarityResponse{}, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No candidate") {
		t.Errorf("got %q", buf.String())
	}
}

func TestWriteImage_Text(t *testing.T) {
	img := &models.Image{
		ID:             "img-1",
		Prompt:         "a cat",
		ModifiedPrompt: "a cat, aerial view, oil painting",
		ObjectKey:      "images/img-1.png",
		EmbeddingID:    "img-1",
		CreatedAt:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		URL:            "https://bucket.example/images/img-1.png?X-Amz-Signature=abc",
	}
	var buf bytes.Buffer
	if err := WriteImage(&buf, img, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"img-1", "a cat, aerial view, oil painting", "images/img-1.png", "2024-05-01 12:00:00 UTC", "X-Amz-Signature"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteImage_TextUploadedOmitsModifiedPrompt(t *testing.T) {
	img := &models.Image{ID: "u1", Prompt: "uploaded", ModifiedPrompt: "uploaded"}
	var buf bytes.Buffer
	if err := WriteImage(&buf, img, OutputText); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "Modified prompt") {
		t.Errorf("unexpected modified prompt line:\n%s", buf.String())
	}
}

func TestWriteEmbedding(t *testing.T) {
	resp := &models.EmbeddingResponse{
		EmbeddingID: "img-1",
		Embedding:   []float32{0.5, -0.25, 0, 0, 0, 0, 0, 0, 0, 0.1},
		Source:      models.SourceGenerated,
	}
	var buf bytes.Buffer
	if err := WriteEmbedding(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"img-1", "generated", "0.5000", "-0.2500", "...", "(10 dims)"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := WriteEmbedding(&buf, resp, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.EmbeddingResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded.Embedding) != 10 || decoded.Source != models.SourceGenerated {
		t.Errorf("decoded: got %+v", decoded)
	}
}

func TestWriteGeneratedAndUploaded(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteGenerated(&buf, &models.GenerateResponse{
		BasePrompt: "a cat", ModifiedPrompt: "a cat, close-up, sketch", ImageID: "g1",
	}, OutputText); err != nil {
		t.Fatal(err)
	}
	if err := WriteUploaded(&buf, &models.UploadResponse{ImageID: "u1"}, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Generated image g1", "a cat, close-up, sketch", "Uploaded image u1"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteStatus_Text(t *testing.T) {
	var status map[string]interface{}
	raw := `{"images": 3, "embeddings": 2, "disk_usage_bytes": 2048,
		"config": {"store_type": "sqlite", "top_k": 10},
		"watch_directories": ["/inbox"]}`
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, status, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"images: 3", "embeddings: 2", "disk_usage_bytes: 2.0 KiB", "config:\n", "  store_type: sqlite", "  top_k: 10", "  - /inbox"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "config:") > strings.Index(out, "images:") {
		t.Errorf("keys not sorted:\n%s", out)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
